package validation

import (
	"context"
	"fmt"

	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/cluster"
	corev1 "k8s.io/api/core/v1"
)

// healthCheck inspects the rollout workload's pods. All pods selected by the
// application selector must be Running and Ready, with no container in a
// crash loop. Restarted containers produce a warning only, since a pod that
// recovered is not grounds for rollback on its own.
type healthCheck struct {
	cluster cluster.Interface
}

func (h healthCheck) Name() string       { return "pod-health" }
func (h healthCheck) Category() Category { return CategoryHealth }

func (h healthCheck) Run(ctx context.Context, target Target) []CheckResult {
	result := CheckResult{
		Name:     h.Name(),
		Category: h.Category(),
		Severity: SeverityBlocking,
	}

	pods, err := h.cluster.Pods(ctx, target.Namespace, target.Selector)
	if err != nil {
		result.Detail = fmt.Sprintf("list pods: %s", err)
		return []CheckResult{result}
	}

	if len(pods) == 0 {
		result.Detail = fmt.Sprintf("no pods match selector '%s' in namespace '%s'", target.Selector, target.Namespace)
		return []CheckResult{result}
	}

	results := make([]CheckResult, 0)

	for _, pod := range pods {
		if reason := podUnhealthy(pod); reason != "" {
			result.Detail = fmt.Sprintf("pod '%s': %s", pod.Name, reason)
			return append(results, result)
		}
		for _, status := range pod.Status.ContainerStatuses {
			if status.RestartCount > 0 {
				results = append(results, CheckResult{
					Name:     "pod-restarts",
					Category: h.Category(),
					Passed:   false,
					Severity: SeverityWarning,
					Detail:   fmt.Sprintf("container '%s' in pod '%s' restarted %d times", status.Name, pod.Name, status.RestartCount),
				})
			}
		}
	}

	result.Passed = true
	result.Detail = fmt.Sprintf("%d pods running and ready", len(pods))
	return append(results, result)
}

func podUnhealthy(pod corev1.Pod) string {
	if pod.Status.Phase != corev1.PodRunning {
		return fmt.Sprintf("phase is %s", pod.Status.Phase)
	}

	for _, status := range pod.Status.ContainerStatuses {
		if status.State.Waiting != nil && status.State.Waiting.Reason == "CrashLoopBackOff" {
			return fmt.Sprintf("container '%s' is in CrashLoopBackOff", status.Name)
		}
		if !status.Ready {
			return fmt.Sprintf("container '%s' is not ready", status.Name)
		}
	}

	for _, condition := range pod.Status.Conditions {
		if condition.Type == corev1.PodReady && condition.Status != corev1.ConditionTrue {
			return "pod is not ready"
		}
	}

	return ""
}
