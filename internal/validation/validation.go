// Package validation содержит локальные проверки инвариантов,
// выполняемые до любого сетевого вызова.
//
// Реестр остаётся финальным арбитром: даже прошедшая локальные проверки
// транзакция может быть отклонена на устаревшем локальном состоянии.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/mmeshcher/provenance-system/internal/model"
)

// ErrValidation возвращается при нарушении локального инварианта данных.
var (
	ErrValidation = errors.New("validation failed")
	// ErrAuthorization возвращается, когда операцию вызывает не тот аккаунт.
	ErrAuthorization = errors.New("authorization failed")
	// ErrNotFound возвращается, если сущности нет в текущем каталоге.
	ErrNotFound = errors.New("not found")
)

// IsValidAddress проверяет адрес аккаунта: hex-форма с префиксом 0x
// либо base58-кодировка 32 байт.
func IsValidAddress(addr string) bool {
	if rest, ok := strings.CutPrefix(addr, "0x"); ok {
		if len(rest) == 0 || len(rest) > 64 {
			return false
		}
		for _, ch := range rest {
			if !isHexDigit(ch) {
				return false
			}
		}
		return true
	}

	decoded, err := base58.Decode(addr)
	return err == nil && len(decoded) == 32
}

func isHexDigit(ch rune) bool {
	return (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

// ValidateBatchDraft проверяет данные новой партии.
func ValidateBatchDraft(d model.BatchDraft) error {
	if strings.TrimSpace(d.ProductName) == "" {
		return fmt.Errorf("%w: product name is required", ErrValidation)
	}
	if d.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrValidation, d.Quantity)
	}
	return nil
}

// ValidateApproveBatch проверяет, что партию можно одобрить и что это
// делает её владелец.
func ValidateApproveBatch(b model.Batch, caller string) error {
	if caller != b.Owner {
		return fmt.Errorf("%w: only batch owner can approve, caller %s", ErrAuthorization, caller)
	}
	if b.Status != model.BatchStatusPending {
		return fmt.Errorf("%w: batch %d has status %q, approval requires %q", ErrValidation, b.ID, b.Status, model.BatchStatusPending)
	}
	return nil
}

// ValidateCreateOrder проверяет, что по партии можно оформить заказ
// указанного объёма.
func ValidateCreateOrder(b model.Batch, quantity int64) error {
	if b.Status != model.BatchStatusApproved {
		return fmt.Errorf("%w: batch %d has status %q, ordering requires %q", ErrValidation, b.ID, b.Status, model.BatchStatusApproved)
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: order quantity must be positive, got %d", ErrValidation, quantity)
	}
	if quantity > b.Quantity {
		return fmt.Errorf("%w: order quantity %d exceeds batch quantity %d", ErrValidation, quantity, b.Quantity)
	}
	return nil
}

// ValidateMarkDelivered проверяет, что заказ ещё не помечен доставленным.
func ValidateMarkDelivered(o model.Order) error {
	if o.IsDelivered {
		return fmt.Errorf("%w: order %d is already delivered", ErrValidation, o.ID)
	}
	return nil
}

// ValidateFeedback проверяет оценку отзыва и что его оставляет
// покупатель заказа.
func ValidateFeedback(o model.Order, caller string, rating int64) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5, got %d", ErrValidation, rating)
	}
	if caller != o.Buyer {
		return fmt.Errorf("%w: only order buyer can leave feedback, caller %s", ErrAuthorization, caller)
	}
	return nil
}

// ValidateStatusUpdate проверяет, что новый статус относится к известному
// набору. Линейный порядок переходов здесь сознательно не проверяется:
// операция служит свободной корректировкой статуса и локации.
func ValidateStatusUpdate(status string) error {
	if !model.BatchStatus(strings.ToLower(strings.TrimSpace(status))).Valid() {
		return fmt.Errorf("%w: unknown batch status %q", ErrValidation, status)
	}
	return nil
}
