package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventport",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "kind", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "eventport",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "kind", "route", "status"},
	)
	realmTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventport",
			Subsystem: "realm",
			Name:      "tasks_total",
			Help:      "Tasks run by realm loops.",
		},
		[]string{"realm"},
	)
	realmErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventport",
			Subsystem: "realm",
			Name:      "reported_errors_total",
			Help:      "Errors surfaced through realm error reporting.",
		},
		[]string{"realm"},
	)
	mirrorsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventport",
			Subsystem: "mirror",
			Name:      "created_total",
			Help:      "Mirrors created, by origin pairing or revival.",
		},
		[]string{"realm", "source"},
	)
	controlMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventport",
			Subsystem: "mirror",
			Name:      "control_messages_total",
			Help:      "Registration control messages sent by mirrors.",
		},
		[]string{"realm", "action"},
	)
	listenerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventport",
			Subsystem: "mirror",
			Name:      "listener_errors_total",
			Help:      "Mirror subscriber failures reported asynchronously.",
		},
		[]string{"realm"},
	)
	eventsRelayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventport",
			Subsystem: "origin",
			Name:      "events_relayed_total",
			Help:      "Origin events sanitized and relayed to a mirror.",
		},
		[]string{"realm", "type"},
	)
	sanitizeRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventport",
			Subsystem: "origin",
			Name:      "sanitize_retries_total",
			Help:      "Sanitizer passes retried after a failed property read.",
		},
		[]string{"realm"},
	)
	sanitizeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "eventport",
			Subsystem: "origin",
			Name:      "sanitize_duration_seconds",
			Help:      "Time spent producing one event snapshot.",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		},
		[]string{"realm"},
	)
	transfersWrapped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventport",
			Subsystem: "transfer",
			Name:      "wrapped_total",
			Help:      "Outgoing payloads wrapped with mirror transfer metadata.",
		},
		[]string{"realm", "mode"},
	)
	mirrorsRevived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventport",
			Subsystem: "transfer",
			Name:      "revived_total",
			Help:      "Mirrors rebuilt from incoming transfer metadata.",
		},
		[]string{"realm"},
	)
	instrumentFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventport",
			Subsystem: "instrument",
			Name:      "failures_total",
			Help:      "Objects left uninstrumented after a hook refused installation.",
		},
		[]string{"realm", "kind"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			realmTasks, realmErrors,
			mirrorsCreated, controlMessages, listenerErrors,
			eventsRelayed, sanitizeRetries, sanitizeDuration,
			transfersWrapped, mirrorsRevived,
			instrumentFailures,
		)
	})
}

func RecordHTTPRequest(node, kind, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, kind, route, statusLabel).Inc()
	httpDuration.WithLabelValues(node, kind, route, statusLabel).Observe(duration.Seconds())
}

func RecordRealmTasks(realm string, n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	realmTasks.WithLabelValues(realm).Add(float64(n))
}

func RecordRealmError(realm string) {
	RegisterMetrics()
	realmErrors.WithLabelValues(realm).Inc()
}

func RecordMirrorCreated(realm, source string) {
	RegisterMetrics()
	mirrorsCreated.WithLabelValues(realm, source).Inc()
}

func RecordControlMessage(realm, action string) {
	RegisterMetrics()
	controlMessages.WithLabelValues(realm, action).Inc()
}

func RecordListenerError(realm string) {
	RegisterMetrics()
	listenerErrors.WithLabelValues(realm).Inc()
}

func RecordEventRelayed(realm, typ string, sanitize time.Duration, retries int) {
	RegisterMetrics()
	eventsRelayed.WithLabelValues(realm, typ).Inc()
	sanitizeDuration.WithLabelValues(realm).Observe(sanitize.Seconds())
	if retries > 0 {
		sanitizeRetries.WithLabelValues(realm).Add(float64(retries))
	}
}

func RecordTransferWrapped(realm, mode string) {
	RegisterMetrics()
	transfersWrapped.WithLabelValues(realm, mode).Inc()
}

func RecordMirrorsRevived(realm string, n int) {
	RegisterMetrics()
	mirrorsRevived.WithLabelValues(realm).Add(float64(n))
}

func RecordInstrumentFailure(realm, kind string) {
	RegisterMetrics()
	instrumentFailures.WithLabelValues(realm, kind).Inc()
}
