// Package catalog агрегирует данные реестра по известным аккаунтам
// в единый каталог нормализованных сущностей.
package catalog

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/provenance-system/internal/metrics"
	"github.com/mmeshcher/provenance-system/internal/model"
	"github.com/mmeshcher/provenance-system/internal/normalize"
)

// Reader описывает контракт чтения сырых записей реестра по аккаунту.
type Reader interface {
	GetBatches(ctx context.Context, account string) ([]map[string]any, error)
	GetOrders(ctx context.Context, account string) ([]map[string]any, error)
	GetFeedbacks(ctx context.Context, account string) ([]map[string]any, error)
}

// Warning фиксирует несмертельную ошибку чтения одного аккаунта
// во время обновления каталога.
type Warning struct {
	Account string `json:"account"`
	Reason  string `json:"reason"`
}

// snapshot — неизменяемый срез каталога. Заменяется целиком при Refresh,
// читатели никогда не видят частично перестроенное состояние.
type snapshot struct {
	batches   []model.Batch
	orders    []model.Order
	feedbacks []model.Feedback
	warnings  []Warning
}

func emptySnapshot() *snapshot {
	return &snapshot{
		batches:   []model.Batch{},
		orders:    []model.Order{},
		feedbacks: []model.Feedback{},
		warnings:  []Warning{},
	}
}

type selection struct {
	owner string
	id    int64
	set   bool
}

// Aggregator владеет агрегированным каталогом на время жизни сессии.
// Единственный способ перестроить каталог — Refresh.
type Aggregator struct {
	reader  Reader
	logger  *zap.Logger
	metrics *metrics.Registry

	mu       sync.RWMutex
	accounts []string
	snap     *snapshot
	selected selection
}

// NewAggregator создаёт агрегатор с начальным набором известных аккаунтов.
func NewAggregator(reader Reader, accounts []string, logger *zap.Logger, reg *metrics.Registry) *Aggregator {
	a := &Aggregator{
		reader:  reader,
		logger:  logger,
		metrics: reg,
		snap:    emptySnapshot(),
	}
	for _, acc := range accounts {
		a.AddAccount(acc)
	}
	return a
}

// AddAccount регистрирует аккаунт для последующих обновлений каталога.
func (a *Aggregator) AddAccount(account string) {
	if account == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, existing := range a.accounts {
		if existing == account {
			return
		}
	}
	a.accounts = append(a.accounts, account)
}

// Suppliers возвращает список известных аккаунтов-поставщиков.
func (a *Aggregator) Suppliers() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, len(a.accounts))
	copy(out, a.accounts)
	return out
}

type accountData struct {
	batches   []model.Batch
	orders    []model.Order
	feedbacks []model.Feedback
	warnings  []Warning
}

// Refresh полностью перестраивает каталог из свежих чтений реестра.
// Чтения по аккаунтам идут конкурентно; ошибка чтения одного аккаунта
// логируется, превращается в Warning и не прерывает остальные.
// Ошибку возвращает только отмена контекста.
func (a *Aggregator) Refresh(ctx context.Context) error {
	accounts := a.Suppliers()

	results := make([]accountData, len(accounts))

	g := new(errgroup.Group)
	g.SetLimit(4)
	for i, account := range accounts {
		i, account := i, account
		g.Go(func() error {
			results[i] = a.readAccount(ctx, account)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	next := emptySnapshot()
	for _, res := range results {
		next.batches = append(next.batches, res.batches...)
		next.orders = append(next.orders, res.orders...)
		next.feedbacks = append(next.feedbacks, res.feedbacks...)
		next.warnings = append(next.warnings, res.warnings...)
	}

	a.mu.Lock()
	a.snap = next
	a.mu.Unlock()

	a.metrics.RefreshTotal.Inc()
	a.metrics.CatalogBatches.Set(float64(len(next.batches)))

	return nil
}

func (a *Aggregator) readAccount(ctx context.Context, account string) accountData {
	var data accountData

	warn := func(kind string, err error) {
		a.logger.Warn("account read failed during refresh",
			zap.String("account", account),
			zap.String("kind", kind),
			zap.Error(err),
		)
		a.metrics.RefreshAccountErrors.Inc()
		data.warnings = append(data.warnings, Warning{Account: account, Reason: kind + ": " + err.Error()})
	}

	rawBatches, err := a.reader.GetBatches(ctx, account)
	if err != nil {
		warn("batches", err)
	}
	for _, raw := range rawBatches {
		data.batches = append(data.batches, normalize.Batch(raw))
	}

	rawOrders, err := a.reader.GetOrders(ctx, account)
	if err != nil {
		warn("orders", err)
	}
	for _, raw := range rawOrders {
		data.orders = append(data.orders, normalize.Order(raw))
	}

	rawFeedbacks, err := a.reader.GetFeedbacks(ctx, account)
	if err != nil {
		warn("feedbacks", err)
	}
	for _, raw := range rawFeedbacks {
		data.feedbacks = append(data.feedbacks, normalize.Feedback(raw))
	}

	return data
}

// Warnings возвращает предупреждения последнего обновления.
func (a *Aggregator) Warnings() []Warning {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Warning, len(a.snap.warnings))
	copy(out, a.snap.warnings)
	return out
}

// Batches возвращает копию всех партий каталога.
func (a *Aggregator) Batches() []model.Batch {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]model.Batch, len(a.snap.batches))
	copy(out, a.snap.batches)
	return out
}

// Orders возвращает копию всех заказов каталога.
func (a *Aggregator) Orders() []model.Order {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]model.Order, len(a.snap.orders))
	copy(out, a.snap.orders)
	return out
}

// Feedbacks возвращает копию всех отзывов каталога.
func (a *Aggregator) Feedbacks() []model.Feedback {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]model.Feedback, len(a.snap.feedbacks))
	copy(out, a.snap.feedbacks)
	return out
}

// BatchByID ищет партию по владельцу и идентификатору.
func (a *Aggregator) BatchByID(owner string, id int64) (model.Batch, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, b := range a.snap.batches {
		if b.Owner == owner && b.ID == id {
			return b, true
		}
	}
	return model.Batch{}, false
}

// OrderByID ищет заказ по идентификатору.
func (a *Aggregator) OrderByID(id int64) (model.Order, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, o := range a.snap.orders {
		if o.ID == id {
			return o, true
		}
	}
	return model.Order{}, false
}

// FilterByStatus возвращает партии с указанным статусом.
func (a *Aggregator) FilterByStatus(status model.BatchStatus) []model.Batch {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := []model.Batch{}
	for _, b := range a.snap.batches {
		if b.Status == status {
			out = append(out, b)
		}
	}
	return out
}

// Search возвращает партии, у которых название или тип продукта содержит
// подстроку запроса без учёта регистра.
func (a *Aggregator) Search(query string) []model.Batch {
	q := strings.ToLower(query)

	a.mu.RLock()
	defer a.mu.RUnlock()
	out := []model.Batch{}
	for _, b := range a.snap.batches {
		if strings.Contains(strings.ToLower(b.ProductName), q) ||
			strings.Contains(strings.ToLower(b.ProductType), q) {
			out = append(out, b)
		}
	}
	return out
}

// GroupByOwner группирует партии по аккаунту-владельцу.
func (a *Aggregator) GroupByOwner() map[string][]model.Batch {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string][]model.Batch)
	for _, b := range a.snap.batches {
		out[b.Owner] = append(out[b.Owner], b)
	}
	return out
}

// Select отмечает партию как выбранную. Возвращает false, если партии
// нет в текущем каталоге.
func (a *Aggregator) Select(owner string, id int64) bool {
	if _, ok := a.BatchByID(owner, id); !ok {
		return false
	}

	a.mu.Lock()
	a.selected = selection{owner: owner, id: id, set: true}
	a.mu.Unlock()
	return true
}

// Selected возвращает актуальный снимок выбранной партии.
// Выбор переживает Refresh: партия ищется в текущем каталоге заново.
func (a *Aggregator) Selected() (model.Batch, bool) {
	a.mu.RLock()
	sel := a.selected
	a.mu.RUnlock()

	if !sel.set {
		return model.Batch{}, false
	}
	return a.BatchByID(sel.owner, sel.id)
}
