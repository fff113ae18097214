package validation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// smokeCheck exercises the application's HTTP surface from the outside:
// the readiness, liveness and startup probes must answer 200 within the
// configured latency threshold, and the authenticated endpoint must reject
// unauthenticated requests.
type smokeCheck struct {
	client *http.Client
}

func (s smokeCheck) Name() string       { return "smoke" }
func (s smokeCheck) Category() Category { return CategorySmoke }

func (s smokeCheck) Run(ctx context.Context, target Target) []CheckResult {
	if target.BaseURL == "" {
		return []CheckResult{{
			Name:     s.Name(),
			Category: s.Category(),
			Passed:   false,
			Severity: SeverityBlocking,
			Detail:   "no base URL configured for smoke tests",
		}}
	}

	results := make([]CheckResult, 0)

	probes := []struct {
		name string
		path string
	}{
		{"readiness", target.ReadinessPath},
		{"liveness", target.LivenessPath},
		{"startup", target.StartupPath},
	}

	for _, probe := range probes {
		if probe.path == "" {
			continue
		}
		results = append(results, s.probe(ctx, target, probe.name, probe.path))
	}

	if target.AuthProbePath != "" {
		results = append(results, s.authProbe(ctx, target))
	}

	return results
}

func (s smokeCheck) probe(ctx context.Context, target Target, name, path string) CheckResult {
	result := CheckResult{
		Name:     "smoke-" + name,
		Category: s.Category(),
		Severity: SeverityBlocking,
	}

	status, elapsed, err := s.get(ctx, target.BaseURL, path)
	if err != nil {
		result.Detail = fmt.Sprintf("GET %s: %s", path, err)
		return result
	}

	if status != http.StatusOK {
		result.Detail = fmt.Sprintf("GET %s returned %d, expected 200", path, status)
		return result
	}

	// Slow but correct answers warn instead of forcing a rollback.
	if target.LatencyThreshold > 0 && elapsed > target.LatencyThreshold {
		result.Severity = SeverityWarning
		result.Detail = fmt.Sprintf("GET %s took %s, threshold is %s", path, elapsed, target.LatencyThreshold)
		return result
	}

	result.Passed = true
	result.Detail = fmt.Sprintf("GET %s returned 200 in %s", path, elapsed)
	return result
}

// authProbe verifies that the protected endpoint denies requests that carry
// no credentials. A 200 here means authentication is misconfigured.
func (s smokeCheck) authProbe(ctx context.Context, target Target) CheckResult {
	result := CheckResult{
		Name:     "smoke-auth",
		Category: s.Category(),
		Severity: SeverityBlocking,
	}

	status, _, err := s.get(ctx, target.BaseURL, target.AuthProbePath)
	if err != nil {
		result.Detail = fmt.Sprintf("GET %s: %s", target.AuthProbePath, err)
		return result
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		result.Passed = true
		result.Detail = fmt.Sprintf("unauthenticated request rejected with %d", status)
	default:
		result.Detail = fmt.Sprintf("unauthenticated GET %s returned %d, expected 401 or 403", target.AuthProbePath, status)
	}

	return result
}

func (s smokeCheck) get(ctx context.Context, baseURL, path string) (int, time.Duration, error) {
	endpoint, err := url.JoinPath(baseURL, path)
	if err != nil {
		return 0, 0, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, 0, err
	}

	start := time.Now()
	response, err := s.client.Do(request)
	elapsed := time.Since(start)
	if err != nil {
		return 0, elapsed, err
	}
	defer response.Body.Close()

	return response.StatusCode, elapsed, nil
}
