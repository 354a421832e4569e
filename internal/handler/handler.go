// Package handler содержит HTTP-обработчики API сервиса происхождения поставок.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/mmeshcher/provenance-system/internal/catalog"
	"github.com/mmeshcher/provenance-system/internal/chat"
	"github.com/mmeshcher/provenance-system/internal/ledger"
	"github.com/mmeshcher/provenance-system/internal/middleware"
	"github.com/mmeshcher/provenance-system/internal/model"
	"github.com/mmeshcher/provenance-system/internal/reputation"
	"github.com/mmeshcher/provenance-system/internal/validation"
)

// Service определяет контракт оркестратора транзакций, используемый
// HTTP-обработчиками.
type Service interface {
	Initialize(ctx context.Context, caller string) (string, error)
	RegisterBatch(ctx context.Context, caller string, draft model.BatchDraft) (string, error)
	CreateOrder(ctx context.Context, caller, owner string, batchID, quantity int64) (string, error)
	SubmitFeedback(ctx context.Context, caller string, draft model.FeedbackDraft) (string, error)
	UpdateBatchStatus(ctx context.Context, caller, owner string, batchID int64, newStatus, newLocation, notes string) (string, error)
	ApproveBatch(ctx context.Context, caller, owner string, batchID int64) (string, error)
	MarkOrderDelivered(ctx context.Context, caller string, orderID int64) (string, error)
}

// Catalog определяет контракт каталога, используемый HTTP-обработчиками.
type Catalog interface {
	Refresh(ctx context.Context) error
	AddAccount(account string)
	Suppliers() []string
	Batches() []model.Batch
	Orders() []model.Order
	Feedbacks() []model.Feedback
	Warnings() []catalog.Warning
	BatchByID(owner string, id int64) (model.Batch, bool)
	FilterByStatus(status model.BatchStatus) []model.Batch
	Search(query string) []model.Batch
	GroupByOwner() map[string][]model.Batch
	Select(owner string, id int64) bool
	Selected() (model.Batch, bool)
}

// Handler реализует HTTP-обработчики API сервиса происхождения поставок.
type Handler struct {
	service        Service
	catalog        Catalog
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	metricsHandler http.Handler
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, c Catalog, logger *zap.Logger, auth *middleware.AuthMiddleware, metricsHandler http.Handler) *Handler {
	return &Handler{
		service:        s,
		catalog:        c,
		logger:         logger,
		authMiddleware: auth,
		metricsHandler: metricsHandler,
	}
}

type txResponse struct {
	Hash string `json:"hash"`
}

// writeError транслирует ошибки слоя оркестрации в HTTP-статусы.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var rejection *ledger.RejectionError
	switch {
	case errors.Is(err, validation.ErrValidation):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, validation.ErrAuthorization):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, validation.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &rejection):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":     "transaction rejected",
			"hash":      rejection.Hash,
			"vm_status": rejection.VMStatus,
		})
	default:
		h.logger.Error("internal error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) writeTx(w http.ResponseWriter, hash string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(txResponse{Hash: hash})
}

func accountFrom(r *http.Request) (string, bool) {
	return middleware.GetAccountFromContext(r.Context())
}

type connectRequest struct {
	Address string `json:"address"`
}

// Connect открывает сессию для указанного адреса аккаунта и регистрирует
// его как поставщика в каталоге.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validation.IsValidAddress(req.Address) {
		http.Error(w, "invalid account address", http.StatusUnprocessableEntity)
		return
	}

	h.catalog.AddAccount(req.Address)
	h.authMiddleware.SetSessionCookie(w, req.Address)
	w.WriteHeader(http.StatusOK)
}

// Initialize явно создаёт состояние цепочки поставок для текущего аккаунта.
func (h *Handler) Initialize(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	hash, err := h.service.Initialize(r.Context(), account)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeTx(w, hash)
}

// GetBatches возвращает партии каталога с необязательной фильтрацией
// по статусу и поисковой строке.
func (h *Handler) GetBatches(w http.ResponseWriter, r *http.Request) {
	batches := h.catalog.Batches()

	if q := r.URL.Query().Get("q"); q != "" {
		batches = h.catalog.Search(q)
	}

	if status := r.URL.Query().Get("status"); status != "" {
		parsed := model.BatchStatus(status)
		if !parsed.Valid() {
			http.Error(w, "unknown batch status", http.StatusUnprocessableEntity)
			return
		}
		filtered := make([]model.Batch, 0, len(batches))
		for _, b := range batches {
			if b.Status == parsed {
				filtered = append(filtered, b)
			}
		}
		batches = filtered
	}

	h.writeJSON(w, batches)
}

// GetBatch возвращает одну партию по владельцу и идентификатору.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	owner := pathParam(r, "owner")
	id, err := strconv.ParseInt(pathParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	b, ok := h.catalog.BatchByID(owner, id)
	if !ok {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	h.writeJSON(w, b)
}

// GetBatchesGrouped возвращает партии, сгруппированные по владельцам.
func (h *Handler) GetBatchesGrouped(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.catalog.GroupByOwner())
}

// GetOrders возвращает все заказы каталога.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.catalog.Orders())
}

// GetFeedbacks возвращает все отзывы каталога.
func (h *Handler) GetFeedbacks(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.catalog.Feedbacks())
}

// GetSuppliers возвращает список известных аккаунтов-поставщиков.
func (h *Handler) GetSuppliers(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.catalog.Suppliers())
}

// GetWarnings возвращает предупреждения последнего цикла агрегации.
func (h *Handler) GetWarnings(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.catalog.Warnings())
}

// GetReputation возвращает вычисленную репутацию указанного аккаунта.
func (h *Handler) GetReputation(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	if !validation.IsValidAddress(address) {
		http.Error(w, "invalid account address", http.StatusUnprocessableEntity)
		return
	}

	rep := reputation.Compute(address, h.catalog.Orders(), h.catalog.Feedbacks())
	h.writeJSON(w, rep)
}

// Refresh запускает внеочередное обновление каталога.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Refresh(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// RegisterBatch регистрирует новую партию от имени текущего аккаунта.
func (h *Handler) RegisterBatch(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var draft model.BatchDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	hash, err := h.service.RegisterBatch(r.Context(), account, draft)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeTx(w, hash)
}

type approveRequest struct {
	Owner   string `json:"owner"`
	BatchID int64  `json:"batch_id"`
}

// ApproveBatch одобряет ожидающую партию.
func (h *Handler) ApproveBatch(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	hash, err := h.service.ApproveBatch(r.Context(), account, req.Owner, req.BatchID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeTx(w, hash)
}

type statusRequest struct {
	Owner    string `json:"owner"`
	BatchID  int64  `json:"batch_id"`
	Status   string `json:"status"`
	Location string `json:"location"`
	Notes    string `json:"notes"`
}

// UpdateBatchStatus обновляет статус и локацию партии.
func (h *Handler) UpdateBatchStatus(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	hash, err := h.service.UpdateBatchStatus(r.Context(), account, req.Owner, req.BatchID, req.Status, req.Location, req.Notes)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeTx(w, hash)
}

type selectRequest struct {
	Owner   string `json:"owner"`
	BatchID int64  `json:"batch_id"`
}

// SelectBatch помечает партию выбранной для детального просмотра.
func (h *Handler) SelectBatch(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !h.catalog.Select(req.Owner, req.BatchID) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetSelected возвращает текущую выбранную партию.
func (h *Handler) GetSelected(w http.ResponseWriter, r *http.Request) {
	b, ok := h.catalog.Selected()
	if !ok {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	h.writeJSON(w, b)
}

type orderRequest struct {
	Owner    string `json:"owner"`
	BatchID  int64  `json:"batch_id"`
	Quantity int64  `json:"quantity"`
}

// CreateOrder оформляет заказ на часть одобренной партии.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	hash, err := h.service.CreateOrder(r.Context(), account, req.Owner, req.BatchID, req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeTx(w, hash)
}

type deliveredRequest struct {
	OrderID int64 `json:"order_id"`
}

// MarkOrderDelivered помечает заказ доставленным.
func (h *Handler) MarkOrderDelivered(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req deliveredRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	hash, err := h.service.MarkOrderDelivered(r.Context(), account, req.OrderID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeTx(w, hash)
}

// SubmitFeedback отправляет отзыв по заказу от имени текущего аккаунта.
func (h *Handler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var draft model.FeedbackDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	hash, err := h.service.SubmitFeedback(r.Context(), account, draft)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeTx(w, hash)
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// Chat отвечает на сообщение пользователя встроенным ассистентом.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, chatResponse{Response: chat.Respond(req.Message)})
}
