// Package model содержит доменные сущности слоя синхронизации с реестром поставок.
package model

import "strings"

// BatchStatus описывает статус партии в жизненном цикле поставки.
type BatchStatus string

// Жизненный цикл партии линейный: pending -> approved -> in_transit -> delivered.
const (
	BatchStatusPending   BatchStatus = "pending"
	BatchStatusApproved  BatchStatus = "approved"
	BatchStatusInTransit BatchStatus = "in_transit"
	BatchStatusDelivered BatchStatus = "delivered"
)

var statusRank = map[BatchStatus]int{
	BatchStatusPending:   0,
	BatchStatusApproved:  1,
	BatchStatusInTransit: 2,
	BatchStatusDelivered: 3,
}

// Valid сообщает, относится ли статус к известному набору значений.
func (s BatchStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// ParseBatchStatus приводит строку из записи реестра к известному статусу.
// Записи частично инициализированных аккаунтов могут не содержать статуса
// или содержать его в произвольном регистре; неизвестные значения
// считаются pending.
func ParseBatchStatus(s string) BatchStatus {
	st := BatchStatus(strings.ToLower(strings.TrimSpace(s)))
	if st.Valid() {
		return st
	}
	return BatchStatusPending
}

// CanTransition сообщает, допустим ли переход между статусами партии.
// Разрешён только шаг вперёд по линейному графу, возвратов нет.
func CanTransition(from, to BatchStatus) bool {
	f, okFrom := statusRank[from]
	t, okTo := statusRank[to]
	return okFrom && okTo && t == f+1
}

// Batch представляет партию продукции, зафиксированную в реестре.
type Batch struct {
	ID                 int64       `json:"id"`
	Owner              string      `json:"owner"`
	ProductName        string      `json:"product_name"`
	ProductType        string      `json:"product_type"`
	Quantity           int64       `json:"quantity"`
	ManufacturingDate  int64       `json:"manufacturing_date"`
	OriginLocation     string      `json:"origin_location"`
	Destination        string      `json:"destination"`
	CurrentLocation    string      `json:"current_location"`
	Status             BatchStatus `json:"status"`
	Tags               []string    `json:"tags"`
	Documents          []string    `json:"documents"`
	CreatedAt          int64       `json:"created_at"`
	UpdatedAt          int64       `json:"updated_at"`
	ApprovedBy         string      `json:"approved_by"`
	IsActive           bool        `json:"is_active"`
	PhoneNotifications string      `json:"phone_notifications"`
}

// Order представляет заявку покупателя на часть партии.
type Order struct {
	ID           int64  `json:"order_id"`
	BatchID      int64  `json:"batch_id"`
	Buyer        string `json:"buyer"`
	Quantity     int64  `json:"quantity"`
	OrderDate    int64  `json:"order_date"`
	DeliveryDate int64  `json:"delivery_date"`
	Status       string `json:"status"`
	IsDelivered  bool   `json:"is_delivered"`
}

// Feedback представляет отзыв покупателя, привязанный к заказу.
type Feedback struct {
	ID        int64    `json:"feedback_id"`
	BatchID   int64    `json:"batch_id"`
	OrderID   int64    `json:"order_id"`
	Buyer     string   `json:"buyer"`
	Rating    int64    `json:"rating"`
	Tags      []string `json:"tags"`
	Comments  string   `json:"comments"`
	CreatedAt int64    `json:"created_at"`
}

// Reputation — производная сводка по аккаунту. Вычисляется по требованию
// из истории заказов и отзывов, отдельно не хранится.
type Reputation struct {
	Address              string `json:"address"`
	Score                int64  `json:"score"`
	SuccessfulDeliveries int64  `json:"successful_deliveries"`
	Disputes             int64  `json:"disputes"`
}

// BatchDraft содержит данные новой партии до отправки в реестр.
// Контакт для уведомлений используется только локальным каналом
// оповещений и в транзакцию не попадает.
type BatchDraft struct {
	ProductName        string   `json:"product_name"`
	ProductType        string   `json:"product_type"`
	Quantity           int64    `json:"quantity"`
	OriginLocation     string   `json:"origin_location"`
	Destination        string   `json:"destination"`
	Tags               []string `json:"tags"`
	Documents          []string `json:"documents"`
	PhoneNotifications string   `json:"phone_notifications"`
}

// FeedbackDraft содержит данные отзыва до отправки в реестр.
type FeedbackDraft struct {
	Owner    string   `json:"owner"`
	OrderID  int64    `json:"order_id"`
	Rating   int64    `json:"rating"`
	Tags     []string `json:"tags"`
	Comments string   `json:"comments"`
}
