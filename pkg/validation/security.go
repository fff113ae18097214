package validation

import (
	"context"
	"fmt"

	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/cluster"
	corev1 "k8s.io/api/core/v1"
)

// securityCheck verifies the posture the environment declares: pod security
// context settings and the presence of network policies in the namespace.
type securityCheck struct {
	cluster cluster.Interface
}

func (s securityCheck) Name() string       { return "security-posture" }
func (s securityCheck) Category() Category { return CategorySecurity }

func (s securityCheck) Run(ctx context.Context, target Target) []CheckResult {
	results := make([]CheckResult, 0)

	pods, err := s.cluster.Pods(ctx, target.Namespace, target.Selector)
	if err != nil {
		return []CheckResult{{
			Name:     s.Name(),
			Category: s.Category(),
			Passed:   false,
			Severity: SeverityBlocking,
			Detail:   fmt.Sprintf("list pods: %s", err),
		}}
	}

	if target.RunAsNonRoot {
		results = append(results, s.podSetting(pods, "run-as-non-root", runsAsNonRoot))
	}

	if target.ReadOnlyRootFilesystem {
		results = append(results, s.podSetting(pods, "read-only-root-filesystem", readOnlyRootFilesystem))
	}

	if target.RequireNetworkPolicies {
		results = append(results, s.networkPolicies(ctx, target))
	}

	return results
}

func (s securityCheck) podSetting(pods []corev1.Pod, name string, satisfied func(corev1.Pod) string) CheckResult {
	result := CheckResult{
		Name:     "security-" + name,
		Category: s.Category(),
		Severity: SeverityBlocking,
	}

	for _, pod := range pods {
		if reason := satisfied(pod); reason != "" {
			result.Detail = fmt.Sprintf("pod '%s': %s", pod.Name, reason)
			return result
		}
	}

	result.Passed = true
	result.Detail = fmt.Sprintf("all %d pods satisfy %s", len(pods), name)
	return result
}

// Missing network policies warn rather than block, since some environments
// intentionally run without them.
func (s securityCheck) networkPolicies(ctx context.Context, target Target) CheckResult {
	result := CheckResult{
		Name:     "security-network-policies",
		Category: s.Category(),
		Severity: SeverityWarning,
	}

	policies, err := s.cluster.NetworkPolicies(ctx, target.Namespace)
	if err != nil {
		result.Detail = fmt.Sprintf("list network policies: %s", err)
		return result
	}

	if len(policies) == 0 {
		result.Detail = fmt.Sprintf("namespace '%s' has no network policies", target.Namespace)
		return result
	}

	result.Passed = true
	result.Detail = fmt.Sprintf("%d network policies present", len(policies))
	return result
}

func runsAsNonRoot(pod corev1.Pod) string {
	podLevel := pod.Spec.SecurityContext != nil &&
		pod.Spec.SecurityContext.RunAsNonRoot != nil &&
		*pod.Spec.SecurityContext.RunAsNonRoot

	for _, container := range pod.Spec.Containers {
		containerLevel := container.SecurityContext != nil &&
			container.SecurityContext.RunAsNonRoot != nil &&
			*container.SecurityContext.RunAsNonRoot
		if !podLevel && !containerLevel {
			return fmt.Sprintf("container '%s' does not enforce runAsNonRoot", container.Name)
		}
	}

	return ""
}

func readOnlyRootFilesystem(pod corev1.Pod) string {
	for _, container := range pod.Spec.Containers {
		enforced := container.SecurityContext != nil &&
			container.SecurityContext.ReadOnlyRootFilesystem != nil &&
			*container.SecurityContext.ReadOnlyRootFilesystem
		if !enforced {
			return fmt.Sprintf("container '%s' does not enforce readOnlyRootFilesystem", container.Name)
		}
	}

	return ""
}
