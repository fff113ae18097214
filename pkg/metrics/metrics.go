package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "voicehive"
	subsystem = "deploy"

	LabelEnvironment = "environment"
	LabelFromState   = "from_state"
	LabelToState     = "to_state"
	LabelStage       = "stage"
	LabelCategory    = "category"
	LabelSeverity    = "severity"
	LabelPassed      = "passed"
	LabelTarget      = "target"
	LabelSuccess     = "success"
)

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      name,
		Help:      help,
		Namespace: namespace,
		Subsystem: subsystem,
	})
}

// StateTransition records a single rollout state machine transition.
func StateTransition(environment, from, to string) {
	stateTransitions.With(prometheus.Labels{
		LabelEnvironment: environment,
		LabelFromState:   from,
		LabelToState:     to,
	}).Inc()
}

// StageDuration records how long a single pipeline stage took.
func StageDuration(environment, stage string, elapsed time.Duration) {
	stageDuration.With(prometheus.Labels{
		LabelEnvironment: environment,
		LabelStage:       stage,
	}).Observe(elapsed.Seconds())
}

// ValidationCheck records the outcome of a single post-deployment check.
func ValidationCheck(category, severity string, passed bool) {
	validationChecks.With(prometheus.Labels{
		LabelCategory: category,
		LabelSeverity: severity,
		LabelPassed:   strconv.FormatBool(passed),
	}).Inc()
}

// Notification records a notification dispatch attempt.
func Notification(target string, success bool) {
	notifications.With(prometheus.Labels{
		LabelTarget:  target,
		LabelSuccess: strconv.FormatBool(success),
	}).Inc()
}

var (
	stateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:      "state_transitions",
		Help:      "number of rollout state machine transitions",
		Namespace: namespace,
		Subsystem: subsystem,
	},
		[]string{
			LabelEnvironment,
			LabelFromState,
			LabelToState,
		},
	)

	stageDuration = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name:      "stage_duration_seconds",
		Help:      "the time spent in each stage of the deployment pipeline",
		Namespace: namespace,
		Subsystem: subsystem,
	},
		[]string{
			LabelEnvironment,
			LabelStage,
		},
	)

	validationChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:      "validation_checks",
		Help:      "number of post-deployment validation check results",
		Namespace: namespace,
		Subsystem: subsystem,
	},
		[]string{
			LabelCategory,
			LabelSeverity,
			LabelPassed,
		},
	)

	notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:      "notifications",
		Help:      "number of notification dispatch attempts",
		Namespace: namespace,
		Subsystem: subsystem,
	},
		[]string{
			LabelTarget,
			LabelSuccess,
		},
	)

	Rollbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name:      "rollbacks",
		Help:      "number of rollbacks triggered by failed deployments",
		Namespace: namespace,
		Subsystem: subsystem,
	})

	InFlight = gauge("in_flight", "number of deployment pipelines currently running")
)

func init() {
	prometheus.MustRegister(stateTransitions)
	prometheus.MustRegister(stageDuration)
	prometheus.MustRegister(validationChecks)
	prometheus.MustRegister(notifications)
	prometheus.MustRegister(Rollbacks)
	prometheus.MustRegister(InFlight)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
