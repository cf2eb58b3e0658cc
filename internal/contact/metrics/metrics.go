package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for IdentifyTotal.
const (
	OutcomeNewIdentity      = "new_identity"
	OutcomeSecondaryCreated = "secondary_created"
	OutcomeMerged           = "merged"
	OutcomeUnchanged        = "unchanged"
	OutcomeFailed           = "failed"
)

// Metrics provides observability for identity resolution.
type Metrics struct {
	IdentifyTotal    *prometheus.CounterVec
	ContactsDemoted  prometheus.Counter
	ContactsRelinked prometheus.Counter
	LockRetries      prometheus.Counter
	IdentifyDuration prometheus.Histogram
	EventsDropped    prometheus.Counter
}

// New registers the contact metrics on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg. Tests pass a fresh prometheus.NewRegistry().
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		IdentifyTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "contactlink_identify_total",
			Help: "Identify resolutions by outcome",
		}, []string{"outcome"}),
		ContactsDemoted: factory.NewCounter(prometheus.CounterOpts{
			Name: "contactlink_contacts_demoted_total",
			Help: "Primary contacts demoted to secondary during cluster merges",
		}),
		ContactsRelinked: factory.NewCounter(prometheus.CounterOpts{
			Name: "contactlink_contacts_relinked_total",
			Help: "Secondary contacts re-pointed at a surviving primary",
		}),
		LockRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "contactlink_lock_retries_total",
			Help: "Cluster transactions retried because the cluster outgrew the held lock set",
		}),
		IdentifyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "contactlink_identify_duration_seconds",
			Help:    "Duration of Identify resolutions including lock acquisition",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "contactlink_events_dropped_total",
			Help: "Link events that could not be published",
		}),
	}
}

func (m *Metrics) RecordOutcome(outcome string) {
	m.IdentifyTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AddDemoted(n int) {
	m.ContactsDemoted.Add(float64(n))
}

func (m *Metrics) AddRelinked(n int) {
	m.ContactsRelinked.Add(float64(n))
}

func (m *Metrics) IncrementLockRetries() {
	m.LockRetries.Inc()
}

func (m *Metrics) IncrementEventsDropped() {
	m.EventsDropped.Inc()
}

// ObserveIdentify records the duration of an Identify call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveIdentify(start time.Time) {
	m.IdentifyDuration.Observe(time.Since(start).Seconds())
}
