// Package service реализует оркестрацию мутирующих операций реестра поставок.
//
// Каждая операция проходит фиксированную последовательность: локальные
// проверки инвариантов, ленивая инициализация аккаунта, сборка аргументов
// в проводной формат, отправка, ожидание подтверждения и обновление
// каталога. Вызывающий никогда не видит успешный результат раньше,
// чем будет предпринята попытка обновления.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/provenance-system/internal/ledger"
	"github.com/mmeshcher/provenance-system/internal/metrics"
	"github.com/mmeshcher/provenance-system/internal/model"
	"github.com/mmeshcher/provenance-system/internal/validation"
)

// LedgerWriter описывает контракт отправки транзакций в реестр.
type LedgerWriter interface {
	SubmitEntry(ctx context.Context, sender, entry string, args []any) (string, error)
	WaitForTransaction(ctx context.Context, hash string) error
}

// Catalog описывает контракт каталога, используемый оркестратором.
type Catalog interface {
	Refresh(ctx context.Context) error
	BatchByID(owner string, id int64) (model.Batch, bool)
	OrderByID(id int64) (model.Order, bool)
	AddAccount(account string)
}

// Notifier описывает побочный канал уведомлений. Его ошибки никогда
// не влияют на результат операции.
type Notifier interface {
	Send(ctx context.Context, contact, message string) error
}

// Service содержит оркестрацию транзакций реестра поставок.
type Service struct {
	writer   LedgerWriter
	catalog  Catalog
	notifier Notifier
	logger   *zap.Logger
	metrics  *metrics.Registry

	mu          sync.Mutex
	initialized map[string]struct{}
}

// NewService создаёт оркестратор с указанными клиентом реестра и каталогом.
func NewService(writer LedgerWriter, cat Catalog, notifier Notifier, logger *zap.Logger, reg *metrics.Registry) *Service {
	return &Service{
		writer:      writer,
		catalog:     cat,
		notifier:    notifier,
		logger:      logger,
		metrics:     reg,
		initialized: make(map[string]struct{}),
	}
}

// Initialize явно создаёт состояние цепочки поставок для аккаунта.
// В отличие от ленивой инициализации внутри мутирующих операций,
// ошибки здесь возвращаются вызывающему.
func (s *Service) Initialize(ctx context.Context, caller string) (string, error) {
	hash, err := s.submitAndConfirm(ctx, caller, "initialize_supply_chain", []any{})
	if err != nil {
		return "", err
	}

	s.markInitialized(caller)
	s.catalog.AddAccount(caller)
	return hash, nil
}

// RegisterBatch регистрирует новую партию от имени вызывающего аккаунта.
func (s *Service) RegisterBatch(ctx context.Context, caller string, draft model.BatchDraft) (string, error) {
	if err := validation.ValidateBatchDraft(draft); err != nil {
		return "", err
	}

	s.ensureInitialized(ctx, caller)
	s.catalog.AddAccount(caller)

	args := []any{
		draft.ProductName,
		draft.ProductType,
		strconv.FormatInt(draft.Quantity, 10),
		strconv.FormatInt(time.Now().Unix(), 10),
		draft.OriginLocation,
		draft.Destination,
		sliceArg(draft.Tags),
		sliceArg(draft.Documents),
	}

	hash, err := s.submitAndConfirm(ctx, caller, "register_batch", args)
	if err != nil {
		return "", err
	}

	s.notifyContact(ctx, draft.PhoneNotifications,
		fmt.Sprintf("New batch %q created successfully. Status: pending approval.", draft.ProductName))

	return hash, nil
}

// CreateOrder оформляет заказ покупателя на часть одобренной партии.
func (s *Service) CreateOrder(ctx context.Context, caller, owner string, batchID, quantity int64) (string, error) {
	batch, ok := s.catalog.BatchByID(owner, batchID)
	if !ok {
		return "", fmt.Errorf("batch %d of %s: %w", batchID, owner, validation.ErrNotFound)
	}
	if err := validation.ValidateCreateOrder(batch, quantity); err != nil {
		return "", err
	}

	s.ensureInitialized(ctx, caller)

	args := []any{
		owner,
		strconv.FormatInt(batchID, 10),
		strconv.FormatInt(quantity, 10),
	}

	hash, err := s.submitAndConfirm(ctx, caller, "create_order", args)
	if err != nil {
		return "", err
	}

	s.notifyContact(ctx, batch.PhoneNotifications,
		fmt.Sprintf("New order for batch %q: %d units.", batch.ProductName, quantity))

	return hash, nil
}

// SubmitFeedback отправляет отзыв покупателя по заказу.
func (s *Service) SubmitFeedback(ctx context.Context, caller string, draft model.FeedbackDraft) (string, error) {
	order, ok := s.catalog.OrderByID(draft.OrderID)
	if !ok {
		return "", fmt.Errorf("order %d: %w", draft.OrderID, validation.ErrNotFound)
	}
	if err := validation.ValidateFeedback(order, caller, draft.Rating); err != nil {
		return "", err
	}

	s.ensureInitialized(ctx, caller)

	owner := draft.Owner
	if owner == "" {
		owner = caller
	}

	args := []any{
		owner,
		strconv.FormatInt(draft.OrderID, 10),
		strconv.FormatInt(draft.Rating, 10),
		sliceArg(draft.Tags),
		draft.Comments,
	}

	return s.submitAndConfirm(ctx, caller, "submit_feedback", args)
}

// UpdateBatchStatus обновляет статус, локацию и примечания партии.
// Линейный порядок жизненного цикла здесь не проверяется: операция
// служит свободной корректировкой, финальное слово за реестром.
func (s *Service) UpdateBatchStatus(ctx context.Context, caller, owner string, batchID int64, newStatus, newLocation, notes string) (string, error) {
	batch, ok := s.catalog.BatchByID(owner, batchID)
	if !ok {
		return "", fmt.Errorf("batch %d of %s: %w", batchID, owner, validation.ErrNotFound)
	}
	if err := validation.ValidateStatusUpdate(newStatus); err != nil {
		return "", err
	}

	args := []any{
		owner,
		strconv.FormatInt(batchID, 10),
		newStatus,
		newLocation,
		notes,
	}

	hash, err := s.submitAndConfirm(ctx, caller, "update_batch_status", args)
	if err != nil {
		return "", err
	}

	s.notifyContact(ctx, batch.PhoneNotifications,
		fmt.Sprintf("Batch %q status updated to %s.", batch.ProductName, newStatus))

	return hash, nil
}

// ApproveBatch одобряет ожидающую партию от имени её владельца.
func (s *Service) ApproveBatch(ctx context.Context, caller, owner string, batchID int64) (string, error) {
	batch, ok := s.catalog.BatchByID(owner, batchID)
	if !ok {
		return "", fmt.Errorf("batch %d of %s: %w", batchID, owner, validation.ErrNotFound)
	}
	if err := validation.ValidateApproveBatch(batch, caller); err != nil {
		return "", err
	}

	args := []any{
		owner,
		strconv.FormatInt(batchID, 10),
	}

	hash, err := s.submitAndConfirm(ctx, caller, "approve_batch", args)
	if err != nil {
		return "", err
	}

	s.notifyContact(ctx, batch.PhoneNotifications,
		fmt.Sprintf("Batch %q has been approved.", batch.ProductName))

	return hash, nil
}

// MarkOrderDelivered помечает заказ доставленным.
func (s *Service) MarkOrderDelivered(ctx context.Context, caller string, orderID int64) (string, error) {
	order, ok := s.catalog.OrderByID(orderID)
	if !ok {
		return "", fmt.Errorf("order %d: %w", orderID, validation.ErrNotFound)
	}
	if err := validation.ValidateMarkDelivered(order); err != nil {
		return "", err
	}

	args := []any{strconv.FormatInt(orderID, 10)}

	return s.submitAndConfirm(ctx, caller, "mark_order_delivered", args)
}

// submitAndConfirm выполняет общую часть мутирующей операции:
// отправка, ожидание подтверждения, обновление каталога. Отклонение
// реестра возвращается вызывающему без изменений; ошибка обновления
// каталога успех записи не отменяет и фиксируется отдельно.
func (s *Service) submitAndConfirm(ctx context.Context, sender, entry string, args []any) (string, error) {
	hash, err := s.writer.SubmitEntry(ctx, sender, entry, args)
	if err != nil {
		return "", fmt.Errorf("submit %s: %w", entry, err)
	}
	s.metrics.TxSubmitted.Inc()

	start := time.Now()
	if err := s.writer.WaitForTransaction(ctx, hash); err != nil {
		s.metrics.TxRejected.Inc()
		return "", err
	}
	s.metrics.TxConfirmed.Inc()
	s.metrics.TxLatencySec.Observe(time.Since(start).Seconds())

	if err := s.catalog.Refresh(ctx); err != nil {
		s.logger.Warn("catalog refresh after write failed",
			zap.String("entry", entry),
			zap.Error(err),
		)
	}

	return hash, nil
}

// ensureInitialized лениво создаёт состояние аккаунта перед первой записью.
// Любая ошибка подавляется: «состояние уже существует» — ожидаемый и
// безвредный исход, а прочие сбои инициализации не должны блокировать
// основную операцию. Успешно инициализированные аккаунты запоминаются,
// чтобы не отправлять повторные транзакции в рамках сессии.
func (s *Service) ensureInitialized(ctx context.Context, caller string) {
	s.mu.Lock()
	_, done := s.initialized[caller]
	s.mu.Unlock()
	if done {
		return
	}

	hash, err := s.writer.SubmitEntry(ctx, caller, "initialize_supply_chain", []any{})
	if err != nil {
		s.suppressInit(caller, err)
		return
	}

	if err := s.writer.WaitForTransaction(ctx, hash); err != nil {
		s.suppressInit(caller, err)

		// Отклонение реестром означает, что состояние уже создано
		var rejection *ledger.RejectionError
		if errors.As(err, &rejection) {
			s.markInitialized(caller)
		}
		return
	}

	s.markInitialized(caller)
}

func (s *Service) suppressInit(caller string, err error) {
	s.metrics.InitSuppressed.Inc()
	s.logger.Info("suppressed account init failure",
		zap.String("account", caller),
		zap.Error(err),
	)
}

func (s *Service) markInitialized(caller string) {
	s.mu.Lock()
	s.initialized[caller] = struct{}{}
	s.mu.Unlock()
}

// notifyContact отправляет уведомление контакту партии. Канал побочный:
// ошибки подавляются и видны только в логах и метриках.
func (s *Service) notifyContact(ctx context.Context, contact, message string) {
	if s.notifier == nil || contact == "" {
		return
	}

	if err := s.notifier.Send(ctx, contact, message); err != nil {
		s.metrics.NotifyFailed.Inc()
		s.logger.Info("suppressed notification failure",
			zap.String("contact", contact),
			zap.Error(err),
		)
	}
}

// StartCatalogRefresh запускает фоновое периодическое обновление каталога.
func (s *Service) StartCatalogRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.catalog.Refresh(ctx); err != nil {
					s.logger.Warn("periodic catalog refresh failed", zap.Error(err))
				}
			}
		}
	}()
}

func sliceArg(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
