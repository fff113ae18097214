package cluster

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	netv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Phase is the lifecycle phase reported by the rollout controller.
type Phase string

const (
	PhaseHealthy     Phase = "Healthy"
	PhaseProgressing Phase = "Progressing"
	PhasePaused      Phase = "Paused"
	PhaseDegraded    Phase = "Degraded"
)

// RolloutStatus is a snapshot of the rollout resource driving the blue-green switch.
type RolloutStatus struct {
	Phase         Phase
	Image         string
	Revision      int64
	ReadyReplicas int64
	Message       string
}

// Interface is the narrow control-plane capability set consumed by the
// deployment pipeline. The production implementation wraps the official
// Kubernetes client; tests use MockInterface.
type Interface interface {
	// Reachable returns an error if the cluster control plane cannot be contacted.
	Reachable(ctx context.Context) error

	// NamespaceExists reports whether the given namespace is present in the cluster.
	NamespaceExists(ctx context.Context, namespace string) (bool, error)

	// HasRolloutSupport reports whether the rollout controller CRD is installed.
	HasRolloutSupport(ctx context.Context) (bool, error)

	// Apply creates or updates the given resource. Returns true if the cluster
	// state changed; re-applying an identical resource is a no-op.
	Apply(ctx context.Context, resource unstructured.Unstructured) (bool, error)

	// PatchImage points the rollout's application container at a new image.
	PatchImage(ctx context.Context, namespace, name, image string) error

	// RolloutStatus reads the current state of the rollout resource.
	RolloutStatus(ctx context.Context, namespace, name string) (*RolloutStatus, error)

	// WaitForPhase blocks until the rollout reports the wanted phase, or the
	// context deadline expires.
	WaitForPhase(ctx context.Context, namespace, name string, phase Phase) error

	// Promote directs live traffic to the candidate, making it the new stable.
	Promote(ctx context.Context, namespace, name string) error

	// Abort stops an in-progress rollout and reverts traffic to stable.
	Abort(ctx context.Context, namespace, name string) error

	// Pods lists the pods matching a label selector in the given namespace.
	Pods(ctx context.Context, namespace, selector string) ([]corev1.Pod, error)

	// NetworkPolicies lists the network policy objects in the given namespace.
	NetworkPolicies(ctx context.Context, namespace string) ([]netv1.NetworkPolicy, error)

	// ConfigMap fetches a single config map.
	ConfigMap(ctx context.Context, namespace, name string) (*corev1.ConfigMap, error)
}
