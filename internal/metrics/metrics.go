package metrics

import (
	"math/big"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for pool operations.
type Metrics struct {
	Registrations     prometheus.Counter
	Deposits          prometheus.Counter
	Redemptions       prometheus.Counter
	Failures          *prometheus.CounterVec
	Participants      prometheus.Gauge
	CurrentTurn       prometheus.Gauge
	AssetsHeld        prometheus.Gauge
	PayoutAmount      prometheus.Counter
	PersistFailures   prometheus.Counter
	Unconfirmed       *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

// New creates pool metrics registered on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Registrations: factory.NewCounter(prometheus.CounterOpts{
			Name: "pasanaco_registrations_total",
			Help: "Total number of participants registered",
		}),
		Deposits: factory.NewCounter(prometheus.CounterOpts{
			Name: "pasanaco_deposits_total",
			Help: "Total number of successful round deposits",
		}),
		Redemptions: factory.NewCounter(prometheus.CounterOpts{
			Name: "pasanaco_redemptions_total",
			Help: "Total number of completed payouts",
		}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pasanaco_operation_failures_total",
			Help: "Rejected pool operations by operation and reason",
		}, []string{"operation", "reason"}),
		Participants: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pasanaco_participants",
			Help: "Registered participants",
		}),
		CurrentTurn: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pasanaco_current_turn",
			Help: "Completed payout rounds",
		}),
		AssetsHeld: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pasanaco_assets_held",
			Help: "Pooled balance in token base units (approximate beyond 2^53)",
		}),
		PayoutAmount: factory.NewCounter(prometheus.CounterOpts{
			Name: "pasanaco_payout_base_units_total",
			Help: "Sum of payouts in token base units (approximate beyond 2^53)",
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "pasanaco_persist_failures_total",
			Help: "Snapshot or journal writes that failed after a committed operation",
		}),
		Unconfirmed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pasanaco_unconfirmed_transfers_total",
			Help: "Transfers committed without a confirmed receipt, by operation",
		}, []string{"operation"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pasanaco_operation_duration_seconds",
			Help:    "Duration of pool operations including ledger transfers",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"operation"}),
	}
}

// ObserveOperation records the duration of op.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(op string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// IncrementFailure records a rejected operation.
func (m *Metrics) IncrementFailure(op, reason string) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(op, reason).Inc()
}

// IncrementPersistFailure records a failed snapshot or journal write.
func (m *Metrics) IncrementPersistFailure() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

// IncrementUnconfirmed records a transfer committed before its receipt was seen.
func (m *Metrics) IncrementUnconfirmed(op string) {
	if m == nil {
		return
	}
	m.Unconfirmed.WithLabelValues(op).Inc()
}

// RecordRegistration updates counters after a registration.
func (m *Metrics) RecordRegistration(participants int) {
	if m == nil {
		return
	}
	m.Registrations.Inc()
	m.Participants.Set(float64(participants))
}

// RecordDeposit updates counters after a deposit.
func (m *Metrics) RecordDeposit(held *big.Int) {
	if m == nil {
		return
	}
	m.Deposits.Inc()
	m.AssetsHeld.Set(toFloat(held))
}

// RecordRedemption updates counters after a payout.
func (m *Metrics) RecordRedemption(amount *big.Int, turn uint64) {
	if m == nil {
		return
	}
	m.Redemptions.Inc()
	m.PayoutAmount.Add(toFloat(amount))
	m.CurrentTurn.Set(float64(turn))
	m.AssetsHeld.Set(0)
}

// SetState aligns gauges with a restored pool.
func (m *Metrics) SetState(participants int, turn uint64, held *big.Int) {
	if m == nil {
		return
	}
	m.Participants.Set(float64(participants))
	m.CurrentTurn.Set(float64(turn))
	m.AssetsHeld.Set(toFloat(held))
}

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
