package validation

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/cluster"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/metrics"
	log "github.com/sirupsen/logrus"
)

type Category string

const (
	CategoryHealth     Category = "health"
	CategorySmoke      Category = "smoke"
	CategorySecurity   Category = "security"
	CategoryMonitoring Category = "monitoring"
)

type Severity string

const (
	SeverityBlocking Severity = "blocking"
	SeverityWarning  Severity = "warning"
)

// CheckResult is the outcome of a single post-deployment check.
type CheckResult struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Passed   bool     `json:"passed"`
	Severity Severity `json:"severity"`
	Detail   string   `json:"detail,omitempty"`
}

// Report is the ordered set of check results for one validation run.
// Partial results are retained even on failure, for diagnosis.
type Report struct {
	Skipped bool          `json:"skipped"`
	Results []CheckResult `json:"results"`
}

// Passed is true when no blocking check failed. Warnings never fail a report.
func (r *Report) Passed() bool {
	for _, result := range r.Results {
		if !result.Passed && result.Severity == SeverityBlocking {
			return false
		}
	}
	return true
}

// BlockingFailures returns the results that forced the report to fail.
func (r *Report) BlockingFailures() []CheckResult {
	failures := make([]CheckResult, 0)
	for _, result := range r.Results {
		if !result.Passed && result.Severity == SeverityBlocking {
			failures = append(failures, result)
		}
	}
	return failures
}

// SkippedReport marks an explicit operator opt-out from validation.
func SkippedReport() *Report {
	return &Report{Skipped: true, Results: []CheckResult{}}
}

// Target tells the checks what to look at. It is derived from the
// environment's declarative configuration.
type Target struct {
	Namespace        string
	Selector         string
	BaseURL          string
	ReadinessPath    string
	LivenessPath     string
	StartupPath      string
	AuthProbePath    string
	LatencyThreshold time.Duration

	RequireNetworkPolicies bool
	RunAsNonRoot           bool
	ReadOnlyRootFilesystem bool

	MonitoringEnabled bool
	MetricsURL        string
	MetricsNamespace  string
}

type check interface {
	Name() string
	Category() Category
	Run(ctx context.Context, target Target) []CheckResult
}

const defaultWorkers = 4

// Runner composes the independent check categories. Checks run concurrently
// under a bounded worker pool and are joined before the report is computed;
// cancellation of the parent context marks unfinished checks as failed.
type Runner struct {
	Cluster cluster.Interface
	HTTP    *http.Client
	Workers int
}

func (r *Runner) Run(ctx context.Context, target Target) *Report {
	httpClient := r.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Second * 10}
	}

	workers := r.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	checks := []check{
		healthCheck{cluster: r.Cluster},
		smokeCheck{client: httpClient},
		securityCheck{cluster: r.Cluster},
		monitoringCheck{client: httpClient},
	}

	results := make([][]CheckResult, len(checks))
	semaphore := make(chan struct{}, workers)
	wg := sync.WaitGroup{}

	for i, c := range checks {
		wg.Add(1)
		go func(i int, c check) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				results[i] = cancelled(c, ctx.Err())
				return
			}

			if ctx.Err() != nil {
				results[i] = cancelled(c, ctx.Err())
				return
			}

			log.Debugf("Running %s validation", c.Category())
			results[i] = c.Run(ctx, target)
		}(i, c)
	}

	wg.Wait()

	report := &Report{Results: make([]CheckResult, 0)}
	for _, partial := range results {
		report.Results = append(report.Results, partial...)
	}

	for _, result := range report.Results {
		metrics.ValidationCheck(string(result.Category), string(result.Severity), result.Passed)
		logResult(result)
	}

	return report
}

// A check interrupted by the parent deadline counts as failed-by-timeout.
func cancelled(c check, cause error) []CheckResult {
	return []CheckResult{{
		Name:     c.Name(),
		Category: c.Category(),
		Passed:   false,
		Severity: SeverityBlocking,
		Detail:   "cancelled before completion: " + cause.Error(),
	}}
}

func logResult(result CheckResult) {
	logger := log.WithFields(log.Fields{
		"check":    result.Name,
		"category": result.Category,
		"severity": result.Severity,
	})
	switch {
	case result.Passed:
		logger.Infof("validation passed")
	case result.Severity == SeverityWarning:
		logger.Warnf("validation warning: %s", result.Detail)
	default:
		logger.Errorf("validation failed: %s", result.Detail)
	}
}
