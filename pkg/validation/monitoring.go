package validation

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// monitoringCheck scrapes the application's metrics endpoint and verifies
// that it exposes metrics under the expected namespace. A deployment whose
// telemetry went dark is not observable and must not be promoted blindly,
// but environments may opt out of monitoring entirely.
type monitoringCheck struct {
	client *http.Client
}

func (m monitoringCheck) Name() string       { return "metrics-scrape" }
func (m monitoringCheck) Category() Category { return CategoryMonitoring }

func (m monitoringCheck) Run(ctx context.Context, target Target) []CheckResult {
	result := CheckResult{
		Name:     m.Name(),
		Category: m.Category(),
		Severity: SeverityBlocking,
	}

	if !target.MonitoringEnabled {
		result.Passed = true
		result.Severity = SeverityWarning
		result.Detail = "monitoring disabled for this environment"
		return []CheckResult{result}
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target.MetricsURL, nil)
	if err != nil {
		result.Detail = fmt.Sprintf("build metrics request: %s", err)
		return []CheckResult{result}
	}

	response, err := m.client.Do(request)
	if err != nil {
		result.Detail = fmt.Sprintf("scrape %s: %s", target.MetricsURL, err)
		return []CheckResult{result}
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		result.Detail = fmt.Sprintf("scrape %s returned %d", target.MetricsURL, response.StatusCode)
		return []CheckResult{result}
	}

	parser := expfmt.TextParser{}
	families, err := parser.TextToMetricFamilies(response.Body)
	if err != nil {
		result.Detail = fmt.Sprintf("parse metrics exposition: %s", err)
		return []CheckResult{result}
	}

	if len(families) == 0 {
		result.Detail = "metrics endpoint exposes no metrics"
		return []CheckResult{result}
	}

	if target.MetricsNamespace != "" && !hasNamespacedMetric(families, target.MetricsNamespace) {
		result.Detail = fmt.Sprintf("no metrics found under namespace '%s'", target.MetricsNamespace)
		return []CheckResult{result}
	}

	result.Passed = true
	result.Detail = fmt.Sprintf("%d metric families exposed", len(families))
	return []CheckResult{result}
}

func hasNamespacedMetric(families map[string]*dto.MetricFamily, namespace string) bool {
	prefix := namespace + "_"
	for name := range families {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
