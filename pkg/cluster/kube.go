package cluster

import (
	"context"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	netv1 "k8s.io/api/networking/v1"
	apiequality "k8s.io/apimachinery/pkg/api/equality"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	_ "k8s.io/client-go/plugin/pkg/client/auth" // Needed for auth side effect
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	rolloutGroup       = "argoproj.io"
	rolloutVersion     = "v1alpha1"
	rolloutResource    = "rollouts"
	revisionAnnotation = "rollout.argoproj.io/revision"
	maxPollInterval    = time.Second * 15
)

var rolloutGVR = schema.GroupVersionResource{
	Group:    rolloutGroup,
	Version:  rolloutVersion,
	Resource: rolloutResource,
}

type client struct {
	static  kubernetes.Interface
	dynamic dynamic.Interface
	config  *rest.Config
}

var _ Interface = &client{}

func New(config *rest.Config) (Interface, error) {
	cli, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, err
	}

	dyn, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, err
	}

	return &client{
		static:  cli,
		dynamic: dyn,
		config:  config,
	}, nil
}

// RestConfig resolves client configuration from a kubeconfig file, falling
// back to the standard loading rules when path is empty.
func RestConfig(path string) (*rest.Config, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if len(path) > 0 {
		loadingRules.ExplicitPath = path
	}
	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("resolve client configuration: %w", err)
	}
	return config, nil
}

// NewFromKubeconfig builds a cluster client from a kubeconfig file.
func NewFromKubeconfig(path string) (Interface, error) {
	config, err := RestConfig(path)
	if err != nil {
		return nil, err
	}
	return New(config)
}

func (c *client) Reachable(ctx context.Context) error {
	_, err := c.static.Discovery().ServerVersion()
	if err != nil {
		return fmt.Errorf("contacting cluster at %s: %w", c.config.Host, err)
	}
	return nil
}

func (c *client) NamespaceExists(ctx context.Context, namespace string) (bool, error) {
	_, err := c.static.CoreV1().Namespaces().Get(ctx, namespace, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *client) HasRolloutSupport(ctx context.Context) (bool, error) {
	resources, err := c.static.Discovery().ServerResourcesForGroupVersion(rolloutGroup + "/" + rolloutVersion)
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, resource := range resources.APIResources {
		if resource.Name == rolloutResource {
			return true, nil
		}
	}
	return false, nil
}

func (c *client) Apply(ctx context.Context, resource unstructured.Unstructured) (bool, error) {
	ri, err := c.resourceInterface(&resource)
	if err != nil {
		return false, err
	}

	existing, err := ri.Get(ctx, resource.GetName(), metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err = ri.Create(ctx, &resource, metav1.CreateOptions{
			FieldValidation: metav1.FieldValidationStrict,
		})
		if err != nil {
			return false, fmt.Errorf("creating resource: %w", err)
		}
		return true, nil
	} else if err != nil {
		return false, fmt.Errorf("get existing resource: %w", err)
	}

	if applied(existing, &resource) {
		log.WithFields(log.Fields{
			"name":      resource.GetName(),
			"namespace": resource.GetNamespace(),
			"gvk":       resource.GroupVersionKind().String(),
		}).Debugf("Resource is unchanged; skipping apply")
		return false, nil
	}

	resource.SetResourceVersion(existing.GetResourceVersion())
	_, err = ri.Update(ctx, &resource, metav1.UpdateOptions{
		FieldValidation: metav1.FieldValidationStrict,
	})
	if err != nil {
		return false, fmt.Errorf("updating resource: %w", err)
	}

	return true, nil
}

// applied reports whether the desired resource is already reflected in the
// cluster, ignoring metadata the server maintains.
func applied(existing, desired *unstructured.Unstructured) bool {
	for _, field := range []string{"spec", "data", "stringData", "type"} {
		if !apiequality.Semantic.DeepEqual(existing.Object[field], desired.Object[field]) {
			return false
		}
	}
	return true
}

func (c *client) PatchImage(ctx context.Context, namespace, name, image string) error {
	ri := c.dynamic.Resource(rolloutGVR).Namespace(namespace)

	rollout, err := ri.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("get rollout %s/%s: %w", namespace, name, err)
	}

	containers, found, err := unstructured.NestedSlice(rollout.Object, "spec", "template", "spec", "containers")
	if err != nil || !found || len(containers) == 0 {
		return fmt.Errorf("rollout %s/%s has no containers", namespace, name)
	}

	// The first container is the application container; sidecars follow it.
	container, ok := containers[0].(map[string]interface{})
	if !ok {
		return fmt.Errorf("rollout %s/%s has a malformed container spec", namespace, name)
	}
	container["image"] = image

	err = unstructured.SetNestedSlice(rollout.Object, containers, "spec", "template", "spec", "containers")
	if err != nil {
		return err
	}

	_, err = ri.Update(ctx, rollout, metav1.UpdateOptions{})
	if err != nil {
		return fmt.Errorf("update rollout %s/%s: %w", namespace, name, err)
	}

	return nil
}

func (c *client) RolloutStatus(ctx context.Context, namespace, name string) (*RolloutStatus, error) {
	rollout, err := c.dynamic.Resource(rolloutGVR).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("get rollout %s/%s: %w", namespace, name, err)
	}

	status := &RolloutStatus{}

	phase, _, _ := unstructured.NestedString(rollout.Object, "status", "phase")
	status.Phase = Phase(phase)

	message, _, _ := unstructured.NestedString(rollout.Object, "status", "message")
	status.Message = message

	ready, _, _ := unstructured.NestedInt64(rollout.Object, "status", "readyReplicas")
	status.ReadyReplicas = ready

	containers, found, _ := unstructured.NestedSlice(rollout.Object, "spec", "template", "spec", "containers")
	if found && len(containers) > 0 {
		if container, ok := containers[0].(map[string]interface{}); ok {
			if image, ok := container["image"].(string); ok {
				status.Image = image
			}
		}
	}

	if revision, ok := rollout.GetAnnotations()[revisionAnnotation]; ok {
		status.Revision, _ = strconv.ParseInt(revision, 10, 64)
	} else {
		status.Revision = rollout.GetGeneration()
	}

	return status, nil
}

func (c *client) WaitForPhase(ctx context.Context, namespace, name string, phase Phase) error {
	var lastErr error
	var lastPhase Phase

	for poll := 0; ; poll++ {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("waiting for rollout %s/%s to become %s: %w; last error was: %s", namespace, name, phase, ctx.Err(), lastErr)
			}
			return fmt.Errorf("waiting for rollout %s/%s to become %s (currently %s): %w", namespace, name, phase, lastPhase, ctx.Err())
		case <-time.After(jitteredExponential(poll, maxPollInterval)):
		}

		status, err := c.RolloutStatus(ctx, namespace, name)
		if err != nil {
			lastErr = err
			log.Debugf("Recoverable error while polling rollout status: %s", err)
			continue
		}

		lastErr = nil
		lastPhase = status.Phase
		if status.Phase == phase {
			return nil
		}

		log.WithFields(log.Fields{
			"rollout":        name,
			"namespace":      namespace,
			"phase":          status.Phase,
			"ready_replicas": status.ReadyReplicas,
		}).Debugf("Still waiting for rollout to become %s...", phase)
	}
}

func (c *client) Promote(ctx context.Context, namespace, name string) error {
	ri := c.dynamic.Resource(rolloutGVR).Namespace(namespace)

	rollout, err := ri.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("get rollout %s/%s: %w", namespace, name, err)
	}

	err = unstructured.SetNestedField(rollout.Object, false, "spec", "paused")
	if err != nil {
		return err
	}
	unstructured.RemoveNestedField(rollout.Object, "status", "pauseConditions")

	_, err = ri.Update(ctx, rollout, metav1.UpdateOptions{})
	if err != nil {
		return fmt.Errorf("promote rollout %s/%s: %w", namespace, name, err)
	}

	return nil
}

func (c *client) Abort(ctx context.Context, namespace, name string) error {
	ri := c.dynamic.Resource(rolloutGVR).Namespace(namespace)

	rollout, err := ri.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("get rollout %s/%s: %w", namespace, name, err)
	}

	err = unstructured.SetNestedField(rollout.Object, true, "status", "abort")
	if err != nil {
		return err
	}

	_, err = ri.Update(ctx, rollout, metav1.UpdateOptions{})
	if err != nil {
		return fmt.Errorf("abort rollout %s/%s: %w", namespace, name, err)
	}

	return nil
}

func (c *client) Pods(ctx context.Context, namespace, selector string) ([]corev1.Pod, error) {
	pods, err := c.static.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: selector,
	})
	if err != nil {
		return nil, fmt.Errorf("list pods in %s: %w", namespace, err)
	}
	return pods.Items, nil
}

func (c *client) NetworkPolicies(ctx context.Context, namespace string) ([]netv1.NetworkPolicy, error) {
	policies, err := c.static.NetworkingV1().NetworkPolicies(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list network policies in %s: %w", namespace, err)
	}
	return policies.Items, nil
}

func (c *client) ConfigMap(ctx context.Context, namespace, name string) (*corev1.ConfigMap, error) {
	return c.static.CoreV1().ConfigMaps(namespace).Get(ctx, name, metav1.GetOptions{})
}

// Given an unstructured Kubernetes resource, return a dynamic client that knows how to apply it to the cluster.
func (c *client) resourceInterface(resource *unstructured.Unstructured) (dynamic.ResourceInterface, error) {
	gvr, err := c.gvr(resource)
	if err != nil {
		return nil, err
	}

	resourceInterface := c.dynamic.Resource(*gvr)
	ns := resource.GetNamespace()

	if len(ns) == 0 {
		return resourceInterface, nil
	}

	return resourceInterface.Namespace(ns), nil
}

// Given an unstructured Kubernetes resource, return a GroupVersionResource that identifies it in the cluster.
func (c *client) gvr(resource *unstructured.Unstructured) (*schema.GroupVersionResource, error) {
	groupResources, err := restmapper.GetAPIGroupResources(c.static.Discovery())
	if err != nil {
		return nil, fmt.Errorf("unable to run kubernetes resource discovery: %s", err)
	}
	restMapper := restmapper.NewDiscoveryRESTMapper(groupResources)

	gvk := resource.GroupVersionKind()
	gk := schema.GroupKind{Group: gvk.Group, Kind: gvk.Kind}
	mapping, err := restMapper.RESTMapping(gk, gvk.Version)
	if err != nil {
		return nil, fmt.Errorf("unable to discover resource using REST mapper: %s", err)
	}

	return &mapping.Resource, nil
}
