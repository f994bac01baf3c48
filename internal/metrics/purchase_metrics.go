package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PurchaseMetrics содержит метрики допуска и расчёта покупок.
type PurchaseMetrics struct {
	// Счётчики допуска по результату (accepted, conflict, out_of_stock, ...).
	admissions *prometheus.CounterVec
	// Исходы резервирования в кеше остатков.
	reservations *prometheus.CounterVec
	// Счётчики расчёта по результату (settled, skipped_duplicate, failed).
	settlements *prometheus.CounterVec
	// Компенсирующие возвраты резерва после неуспешного расчёта.
	reservationReleases prometheus.Counter

	// Гистограммы времени выполнения.
	admissionDuration  prometheus.Histogram
	settlementDuration prometheus.Histogram

	// Gauge для команд, находящихся в расчёте.
	settlingCommands prometheus.Gauge
}

// NewPurchaseMetrics создаёт и регистрирует метрики пайплайна покупок.
func NewPurchaseMetrics() *PurchaseMetrics {
	return newPurchaseMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newPurchaseMetricsWithRegisterer(registerer prometheus.Registerer) *PurchaseMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &PurchaseMetrics{
		admissions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pointshop_order_admissions_total",
			Help: "Total number of order admission requests grouped by result",
		}, []string{"result"}),
		reservations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pointshop_stock_reservations_total",
			Help: "Total number of stock cache reservation attempts grouped by outcome",
		}, []string{"outcome"}),
		settlements: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pointshop_purchase_settlements_total",
			Help: "Total number of purchase settlement attempts grouped by result",
		}, []string{"result"}),
		reservationReleases: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pointshop_stock_reservation_releases_total",
			Help: "Total number of compensating stock reservation releases",
		}),
		admissionDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "pointshop_order_admission_duration_seconds",
			Help:    "Duration of synchronous order admission in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		settlementDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "pointshop_purchase_settlement_duration_seconds",
			Help:    "Duration of purchase settlement in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		settlingCommands: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "pointshop_settling_commands",
			Help: "Number of purchase commands currently being settled",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordAdmission увеличивает счётчик допусков с заданным результатом.
func (m *PurchaseMetrics) RecordAdmission(result string) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(result).Inc()
}

// RecordReservation увеличивает счётчик исходов резервирования.
func (m *PurchaseMetrics) RecordReservation(outcome string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(outcome).Inc()
}

// RecordSettlement увеличивает счётчик расчётов с заданным результатом.
func (m *PurchaseMetrics) RecordSettlement(result string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(result).Inc()
}

// RecordReservationRelease увеличивает счётчик компенсирующих возвратов.
func (m *PurchaseMetrics) RecordReservationRelease() {
	if m == nil {
		return
	}
	m.reservationReleases.Inc()
}

// RecordAdmissionDuration записывает длительность допуска.
func (m *PurchaseMetrics) RecordAdmissionDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.admissionDuration.Observe(duration.Seconds())
}

// RecordSettlementDuration записывает длительность расчёта.
func (m *PurchaseMetrics) RecordSettlementDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.settlementDuration.Observe(duration.Seconds())
}

// SettlingStarted увеличивает количество команд в расчёте.
func (m *PurchaseMetrics) SettlingStarted() {
	if m == nil {
		return
	}
	m.settlingCommands.Inc()
}

// SettlingFinished уменьшает количество команд в расчёте.
func (m *PurchaseMetrics) SettlingFinished() {
	if m == nil {
		return
	}
	m.settlingCommands.Dec()
}
