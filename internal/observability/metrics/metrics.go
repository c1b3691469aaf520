package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the constant labels attached to every series.
type Config struct {
	ServiceName string
	Environment string
}

const (
	LicenseOutcomeDisabled = "disabled"
	LicenseOutcomeCached   = "cached"
	LicenseOutcomeOnline   = "online_valid"
	LicenseOutcomeInvalid  = "online_invalid"
	LicenseOutcomeOffline  = "offline_grace"
	LicenseOutcomeNoGrace  = "unreachable"
)

const (
	RecurringBatchCommitted  = "committed"
	RecurringBatchRolledBack = "rolled_back"
	RecurringBatchSkipped    = "lock_held"
)

// Metrics holds the license gate, recurring engine and session gate series.
type Metrics struct {
	licenseValidations *prometheus.CounterVec
	licenseCheckTime   prometheus.Observer
	licenseDeactivated prometheus.Counter
	recurringCreated   prometheus.Counter
	recurringRetired   prometheus.Counter
	recurringBatches   *prometheus.CounterVec
	recurringBatchTime prometheus.Observer
	accessTransitions  *prometheus.CounterVec
	errors             *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide metrics registered on the default registerer.
func Default() *Metrics {
	return WithConfig(Config{})
}

// WithConfig returns the process-wide metrics using cfg labels on first use.
func WithConfig(cfg Config) *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewWithRegisterer(prometheus.DefaultRegisterer, cfg)
	})
	return defaultMetrics
}

// NewWithRegisterer builds an independent set of series, mainly for tests.
func NewWithRegisterer(registerer prometheus.Registerer, cfg Config) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "fintrack"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	licenseValidations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fintrack_license_validations_total",
		Help:        "License validations by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	licenseCheckTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "fintrack_license_remote_check_seconds",
		Help:        "Latency of calls to the remote license server.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	})
	licenseDeactivated := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "fintrack_license_deactivations_total",
		Help:        "Local license deactivations.",
		ConstLabels: constLabels,
	})
	recurringCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "fintrack_recurring_materialized_total",
		Help:        "Ledger transactions materialized from recurring templates.",
		ConstLabels: constLabels,
	})
	recurringRetired := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "fintrack_recurring_deactivated_total",
		Help:        "Recurring templates deactivated after their end date.",
		ConstLabels: constLabels,
	})
	recurringBatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fintrack_recurring_batches_total",
		Help:        "Recurring processing batches by result.",
		ConstLabels: constLabels,
	}, []string{"result"})
	recurringBatchTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "fintrack_recurring_batch_duration_seconds",
		Help:        "Duration of a recurring processing batch.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	})
	accessTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fintrack_session_transitions_total",
		Help:        "Session gate state transitions.",
		ConstLabels: constLabels,
	}, []string{"from", "to"})
	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fintrack_errors_total",
		Help:        "Errors by component and low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"component", "reason"})

	registerer.MustRegister(
		licenseValidations,
		licenseCheckTime,
		licenseDeactivated,
		recurringCreated,
		recurringRetired,
		recurringBatches,
		recurringBatchTime,
		accessTransitions,
		errorsTotal,
	)

	return &Metrics{
		licenseValidations: licenseValidations,
		licenseCheckTime:   licenseCheckTime,
		licenseDeactivated: licenseDeactivated,
		recurringCreated:   recurringCreated,
		recurringRetired:   recurringRetired,
		recurringBatches:   recurringBatches,
		recurringBatchTime: recurringBatchTime,
		accessTransitions:  accessTransitions,
		errors:             errorsTotal,
	}
}

func (m *Metrics) IncLicenseValidation(outcome string) {
	if m == nil {
		return
	}
	m.licenseValidations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveLicenseRemoteCheck(d time.Duration) {
	if m == nil {
		return
	}
	m.licenseCheckTime.Observe(d.Seconds())
}

func (m *Metrics) IncLicenseDeactivation() {
	if m == nil {
		return
	}
	m.licenseDeactivated.Inc()
}

// ObserveRecurringBatch records one ProcessDue call.
func (m *Metrics) ObserveRecurringBatch(result string, materialized, deactivated int, d time.Duration) {
	if m == nil {
		return
	}
	m.recurringBatches.WithLabelValues(result).Inc()
	m.recurringBatchTime.Observe(d.Seconds())
	if materialized > 0 {
		m.recurringCreated.Add(float64(materialized))
	}
	if deactivated > 0 {
		m.recurringRetired.Add(float64(deactivated))
	}
}

func (m *Metrics) IncSessionTransition(from, to string) {
	if m == nil {
		return
	}
	m.accessTransitions.WithLabelValues(from, to).Inc()
}

// IncError records err under component using ClassifyReason.
func (m *Metrics) IncError(component string, err error) {
	if m == nil || err == nil {
		return
	}
	m.errors.WithLabelValues(component, ClassifyReason(err)).Inc()
}
