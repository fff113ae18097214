package prereq

import (
	"context"
	"fmt"

	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/cluster"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/envconfig"
	log "github.com/sirupsen/logrus"
)

// Error identifies the prerequisite check that failed. A prerequisite
// failure always happens before any mutation, so no cleanup is required.
type Error struct {
	Check string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("prerequisite '%s' not met: %s", e.Check, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Checker confirms connectivity, configuration, and cluster capability
// before the pipeline is allowed to mutate anything.
type Checker struct {
	Cluster  cluster.Interface
	Resolver *envconfig.Resolver
}

// Check runs all prerequisite checks in order, short-circuiting on the first
// failure. The environment configuration is validated as part of the checks;
// on success the rendered configuration is returned for later stages.
//
// The namespace check runs after configuration, since the target namespace
// is declared by the environment configuration itself.
func (c *Checker) Check(ctx context.Context, environment string) (*envconfig.Rendered, error) {
	err := c.Cluster.Reachable(ctx)
	if err != nil {
		return nil, &Error{Check: "cluster-reachable", Err: err}
	}
	log.Debugf("Prerequisite: cluster control plane is reachable")

	rendered, err := c.Resolver.Generate(environment)
	if err != nil {
		return nil, &Error{Check: "environment-configuration", Err: err}
	}
	log.Debugf("Prerequisite: environment configuration for '%s' is valid", environment)

	namespace := rendered.Environment.Namespace
	exists, err := c.Cluster.NamespaceExists(ctx, namespace)
	if err != nil {
		return nil, &Error{Check: "namespace", Err: err}
	}
	if !exists {
		return nil, &Error{Check: "namespace", Err: fmt.Errorf("namespace '%s' does not exist", namespace)}
	}
	log.Debugf("Prerequisite: namespace '%s' exists", namespace)

	supported, err := c.Cluster.HasRolloutSupport(ctx)
	if err != nil {
		return nil, &Error{Check: "rollout-support", Err: err}
	}
	if !supported {
		return nil, &Error{Check: "rollout-support", Err: fmt.Errorf("rollout controller resources are not installed in the cluster")}
	}
	log.Debugf("Prerequisite: rollout controller is available")

	return rendered, nil
}
