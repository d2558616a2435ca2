package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: длительность транзакции (включая внешний перевод и коммит в хранилище)
	TxDuration *prometheus.HistogramVec

	// Traffic/Errors: транзакции по операции и результату (ok / код отказа)
	TxTotal *prometheus.CounterVec

	// Выплаченные суммы: release / withdraw
	PaidOut *prometheus.CounterVec

	// Заявки, набравшие порог: vesting / withdraw
	ThresholdReached *prometheus.CounterVec

	// Journal: заполненность буфера (backpressure)
	JournalBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		TxDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_tx_duration_seconds",
			Help:    "Histogram of ledger transaction latencies.",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),

		TxTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_tx_total",
			Help: "Total number of ledger transactions by result.",
		}, []string{"operation", "result"}),

		PaidOut: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_paid_out_total",
			Help: "Token amount transferred out of escrow.",
		}, []string{"kind"}),

		ThresholdReached: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_approval_threshold_reached_total",
			Help: "Requests that reached the approval threshold.",
		}, []string{"workflow"}),

		JournalBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "ledger_journal_buffer_utilization",
			Help: "Current number of receipts waiting in the journal buffer.",
		}),
	}
}
