// Package metrics содержит телеметрию слоя синхронизации.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry агрегирует счётчики и гистограммы сервиса.
// Подавленные ошибки (инициализация аккаунта, уведомления, частичные
// обновления каталога) видны только здесь и в логах.
type Registry struct {
	reg *prometheus.Registry

	RefreshTotal         prometheus.Counter
	RefreshAccountErrors prometheus.Counter
	CatalogBatches       prometheus.Gauge

	TxSubmitted  prometheus.Counter
	TxConfirmed  prometheus.Counter
	TxRejected   prometheus.Counter
	TxLatencySec prometheus.Histogram

	InitSuppressed prometheus.Counter
	NotifyFailed   prometheus.Counter
}

// NewRegistry создаёт и регистрирует набор метрик сервиса.
func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	refreshTotal := prometheus.NewCounter(prometheus.CounterOpts{Name: "provenance_refresh_total"})
	refreshAccountErrors := prometheus.NewCounter(prometheus.CounterOpts{Name: "provenance_refresh_account_errors_total"})
	catalogBatches := prometheus.NewGauge(prometheus.GaugeOpts{Name: "provenance_catalog_batches"})

	txSubmitted := prometheus.NewCounter(prometheus.CounterOpts{Name: "provenance_tx_submitted_total"})
	txConfirmed := prometheus.NewCounter(prometheus.CounterOpts{Name: "provenance_tx_confirmed_total"})
	txRejected := prometheus.NewCounter(prometheus.CounterOpts{Name: "provenance_tx_rejected_total"})
	txLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "provenance_tx_confirm_latency_seconds",
		Buckets: prometheus.DefBuckets,
	})

	initSuppressed := prometheus.NewCounter(prometheus.CounterOpts{Name: "provenance_init_suppressed_total"})
	notifyFailed := prometheus.NewCounter(prometheus.CounterOpts{Name: "provenance_notify_failed_total"})

	r.MustRegister(refreshTotal, refreshAccountErrors, catalogBatches,
		txSubmitted, txConfirmed, txRejected, txLatency,
		initSuppressed, notifyFailed)

	return &Registry{
		reg:                  r,
		RefreshTotal:         refreshTotal,
		RefreshAccountErrors: refreshAccountErrors,
		CatalogBatches:       catalogBatches,
		TxSubmitted:          txSubmitted,
		TxConfirmed:          txConfirmed,
		TxRejected:           txRejected,
		TxLatencySec:         txLatency,
		InitSuppressed:       initSuppressed,
		NotifyFailed:         notifyFailed,
	}
}

// Handler возвращает HTTP-обработчик для отдачи метрик.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
