// Package normalize приводит сырые записи реестра к строгим доменным сущностям.
//
// Реестр возвращает слабо типизированный JSON: числа u64 приходят строками,
// часть полей может отсутствовать у записей старых схем или частично
// инициализированных аккаунтов. Нормализация тотальна: любой вход даёт
// полностью заполненную сущность, отсутствующие поля получают значения
// по умолчанию. Остальной код никогда не проверяет наличие поля.
package normalize

import (
	"strconv"

	"github.com/mmeshcher/provenance-system/internal/model"
)

// Batch превращает сырую запись реестра в партию.
func Batch(raw map[string]any) model.Batch {
	return model.Batch{
		ID:                 intField(raw, "id"),
		Owner:              strField(raw, "owner"),
		ProductName:        strField(raw, "product_name"),
		ProductType:        strField(raw, "product_type"),
		Quantity:           intField(raw, "quantity"),
		ManufacturingDate:  intField(raw, "manufacturing_date"),
		OriginLocation:     strField(raw, "origin_location"),
		Destination:        strField(raw, "destination"),
		CurrentLocation:    strField(raw, "current_location"),
		Status:             model.ParseBatchStatus(strField(raw, "status")),
		Tags:               strSliceField(raw, "tags"),
		Documents:          strSliceField(raw, "documents"),
		CreatedAt:          intField(raw, "created_at"),
		UpdatedAt:          intField(raw, "updated_at"),
		ApprovedBy:         strField(raw, "approved_by"),
		IsActive:           boolField(raw, "is_active"),
		PhoneNotifications: strField(raw, "phone_notifications"),
	}
}

// Order превращает сырую запись реестра в заказ.
func Order(raw map[string]any) model.Order {
	return model.Order{
		ID:           intField(raw, "order_id"),
		BatchID:      intField(raw, "batch_id"),
		Buyer:        strField(raw, "buyer"),
		Quantity:     intField(raw, "quantity"),
		OrderDate:    intField(raw, "order_date"),
		DeliveryDate: intField(raw, "delivery_date"),
		Status:       strField(raw, "status"),
		IsDelivered:  boolField(raw, "is_delivered"),
	}
}

// Feedback превращает сырую запись реестра в отзыв.
func Feedback(raw map[string]any) model.Feedback {
	return model.Feedback{
		ID:        intField(raw, "feedback_id"),
		BatchID:   intField(raw, "batch_id"),
		OrderID:   intField(raw, "order_id"),
		Buyer:     strField(raw, "buyer"),
		Rating:    intField(raw, "rating"),
		Tags:      strSliceField(raw, "tags"),
		Comments:  strField(raw, "comments"),
		CreatedAt: intField(raw, "created_at"),
	}
}

func strField(raw map[string]any, key string) string {
	if s, ok := raw[key].(string); ok {
		return s
	}
	return ""
}

func intField(raw map[string]any, key string) int64 {
	switch v := raw[key].(type) {
	case string:
		// u64 в ответах узла закодирован десятичной строкой
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return int64(f)
		}
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

func boolField(raw map[string]any, key string) bool {
	switch v := raw[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

func strSliceField(raw map[string]any, key string) []string {
	res := []string{}
	switch v := raw[key].(type) {
	case []string:
		res = append(res, v...)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				res = append(res, s)
			}
		}
	}
	return res
}
