package envconfig

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/cluster"
	"github.com/aymerick/raymond"
	"github.com/ghodss/yaml"
	log "github.com/sirupsen/logrus"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Error wraps any failure in configuration resolution or application.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func configError(format string, args ...interface{}) *Error {
	return &Error{Err: fmt.Errorf(format, args...)}
}

// Rendered holds the cluster-ready artifacts generated from an environment's
// declarative configuration. Secret material is rendered as named
// placeholders only; the resolver never materializes secret values.
type Rendered struct {
	Environment *Environment
	Objects     []unstructured.Unstructured
}

// Resolver loads per-environment declarative configuration and renders,
// applies, backs up, and restores the resulting cluster artifacts.
type Resolver struct {
	Dir     string
	Cluster cluster.Interface
}

// Generate reads and validates the declarative source for the named
// environment and renders its cluster artifacts.
func (r *Resolver) Generate(name string) (*Rendered, error) {
	path := filepath.Join(r.Dir, name+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, configError("read environment configuration: %s", err)
	}

	templated, err := raymond.Render(string(data), map[string]interface{}{
		"environment": name,
	})
	if err != nil {
		return nil, configError("%s: render template: %s", path, err)
	}

	env := &Environment{}
	err = yaml.Unmarshal([]byte(templated), env)
	if err != nil {
		return nil, configError("%s: %s", path, err)
	}

	if env.Name != name {
		return nil, configError("%s: environment name %q does not match file name", path, env.Name)
	}

	err = env.Validate()
	if err != nil {
		return nil, &Error{Err: err}
	}

	return &Rendered{
		Environment: env,
		Objects: []unstructured.Unstructured{
			configMap(env),
			secretPlaceholders(env),
		},
	}, nil
}

// Apply submits all rendered artifacts to the cluster. Applying an identical
// rendering twice is a no-op; returns true if anything changed.
func (r *Resolver) Apply(ctx context.Context, rendered *Rendered) (bool, error) {
	changed := false
	for _, object := range rendered.Objects {
		objectChanged, err := r.Cluster.Apply(ctx, object)
		if err != nil {
			return changed, configError("apply %s %s/%s: %s", object.GetKind(), object.GetNamespace(), object.GetName(), err)
		}
		if objectChanged {
			log.Infof("Applied %s '%s' in namespace '%s'", object.GetKind(), object.GetName(), object.GetNamespace())
			changed = true
		}
	}
	return changed, nil
}

// Diff returns a human-readable summary of how the rendered config map
// differs from what is currently applied in the cluster.
func (r *Resolver) Diff(ctx context.Context, rendered *Rendered) []string {
	env := rendered.Environment
	current, err := r.Cluster.ConfigMap(ctx, env.Namespace, configMapName(env))
	if apierrors.IsNotFound(err) {
		return []string{"config map not present in cluster; all keys will be created"}
	}
	if err != nil {
		return []string{fmt.Sprintf("unable to read current config map: %s", err)}
	}

	desired := configData(env)
	lines := make([]string, 0)

	keys := make([]string, 0, len(desired))
	for key := range desired {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		previous, ok := current.Data[key]
		switch {
		case !ok:
			lines = append(lines, fmt.Sprintf("+ %s: %s", key, desired[key]))
		case previous != desired[key]:
			lines = append(lines, fmt.Sprintf("~ %s: %s -> %s", key, previous, desired[key]))
		}
	}
	for key := range current.Data {
		if _, ok := desired[key]; !ok {
			lines = append(lines, fmt.Sprintf("- %s", key))
		}
	}

	return lines
}

func configMapName(env *Environment) string {
	return env.Application.Name + "-config"
}

func secretName(env *Environment) string {
	return env.Application.Name + "-secrets"
}

func configData(env *Environment) map[string]string {
	return map[string]string{
		"environment":               env.Name,
		"tier":                      env.Tier,
		"pms-endpoint":              env.Datastores.PMS,
		"postgres-endpoint":         env.Datastores.Postgres,
		"redis-endpoint":            env.Datastores.Redis,
		"run-as-non-root":           strconv.FormatBool(env.Security.RunAsNonRoot),
		"read-only-root-filesystem": strconv.FormatBool(env.Security.ReadOnlyRootFilesystem),
		"monitoring-enabled":        strconv.FormatBool(env.MonitoringEnabled()),
	}
}

func configMap(env *Environment) unstructured.Unstructured {
	data := map[string]interface{}{}
	for key, value := range configData(env) {
		data[key] = value
	}

	return unstructured.Unstructured{
		Object: map[string]interface{}{
			"apiVersion": "v1",
			"kind":       "ConfigMap",
			"metadata": map[string]interface{}{
				"name":      configMapName(env),
				"namespace": env.Namespace,
				"labels": map[string]interface{}{
					"app":                          env.Application.Name,
					"app.kubernetes.io/managed-by": "voicehive-deploy",
				},
			},
			"data": data,
		},
	}
}

// secretPlaceholders renders the environment's secret object with named
// placeholder references. The actual values are resolved in-cluster by the
// secrets operator; this tool never sees them.
func secretPlaceholders(env *Environment) unstructured.Unstructured {
	stringData := map[string]interface{}{}
	for _, key := range env.Security.SecretKeys {
		stringData[key] = fmt.Sprintf("vault:voicehive/data/%s/%s", env.Name, key)
	}

	return unstructured.Unstructured{
		Object: map[string]interface{}{
			"apiVersion": "v1",
			"kind":       "Secret",
			"type":       "Opaque",
			"metadata": map[string]interface{}{
				"name":      secretName(env),
				"namespace": env.Namespace,
				"labels": map[string]interface{}{
					"app":                          env.Application.Name,
					"app.kubernetes.io/managed-by": "voicehive-deploy",
				},
			},
			"stringData": stringData,
		},
	}
}
