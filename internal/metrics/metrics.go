package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scheduling"

// Operation modes.
const (
	ModeByDate     = "by_date"
	ModeInstant    = "instant"
	ModeReschedule = "reschedule"
	ModeCancel     = "cancel"
)

// Outcomes.
const (
	OutcomeOK             = "ok"
	OutcomeConflict       = "slot_conflict"
	OutcomeNoAvailability = "no_availability"
	OutcomeBusy           = "busy"
	OutcomeInvalid        = "invalid"
	OutcomeNotFound       = "not_found"
	OutcomeError          = "error"
)

var (
	once sync.Once

	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Count of calendar mutations by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time spent serving a calendar mutation, lock wait included.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 2, 5},
		},
		[]string{"mode"},
	)

	lockWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "doctor_lock_wait_seconds",
			Help:      "Time spent waiting for a doctor's lock before it was acquired.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 2},
		},
		[]string{"mode"},
	)

	lockBusy = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "doctor_lock_busy_total",
			Help:      "Count of operations that gave up waiting for a doctor's lock.",
		},
		[]string{"mode"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(operations, operationDuration, lockWait, lockBusy, httpRequests)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

type Timer struct {
	mode  string
	start time.Time
}

func StartBooking(mode string) Timer {
	return Timer{mode: mode, start: time.Now()}
}

// Done records the outcome and the elapsed time since StartBooking.
func (t Timer) Done(outcome string) {
	operations.WithLabelValues(t.mode, outcome).Inc()
	operationDuration.WithLabelValues(t.mode).Observe(time.Since(t.start).Seconds())
}

func ObserveLockWait(mode string, d time.Duration) {
	lockWait.WithLabelValues(mode).Observe(d.Seconds())
}

func IncLockBusy(mode string) {
	lockBusy.WithLabelValues(mode).Inc()
}

func IncHTTPRequest(route string, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}
