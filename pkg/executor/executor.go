package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/cluster"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/envconfig"
	log "github.com/sirupsen/logrus"
)

// ErrDeploymentTimeout is returned when the rollout does not become healthy
// within the deployment timeout. It always routes the pipeline to rollback;
// an expired deadline is never silently retried.
var ErrDeploymentTimeout = errors.New("timeout while waiting for rollout to become healthy")

// Result describes a completed (or simulated) rollout execution.
type Result struct {
	Simulated bool
	Image     string
}

// Executor drives the blue-green rollout through the cluster client,
// bounded by the context deadline handed to Execute.
type Executor struct {
	Cluster cluster.Interface
}

// Execute patches the running rollout to the requested image and waits for
// the rollout controller to report a healthy candidate. In dry-run mode only
// read-only calls are made and the result is marked as simulated.
func (e *Executor) Execute(ctx context.Context, env *envconfig.Environment, tag string, dryRun bool) (*Result, error) {
	image := env.Application.ImageRepository + ":" + tag
	logger := log.WithFields(log.Fields{
		"rollout":   env.Application.Rollout,
		"namespace": env.Namespace,
		"image":     image,
	})

	status, err := e.Cluster.RolloutStatus(ctx, env.Namespace, env.Application.Rollout)
	if err != nil {
		return nil, fmt.Errorf("read rollout state: %w", err)
	}

	if dryRun {
		logger.Infof("Dry run: would update rollout image from '%s' to '%s'", status.Image, image)
		return &Result{Simulated: true, Image: image}, nil
	}

	logger.Infof("Updating rollout image from '%s' to '%s'", status.Image, image)

	err = e.Cluster.PatchImage(ctx, env.Namespace, env.Application.Rollout, image)
	if err != nil {
		return nil, fmt.Errorf("patch rollout image: %w", err)
	}

	logger.Infof("Waiting for rollout to report a healthy candidate...")

	err = e.Cluster.WaitForPhase(ctx, env.Namespace, env.Application.Rollout, cluster.PhaseHealthy)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s", ErrDeploymentTimeout, err)
		}
		return nil, err
	}

	logger.Infof("Rollout is healthy")

	return &Result{Image: image}, nil
}

// Promote lifts the rollout's pause so the controller shifts live traffic to
// the validated candidate, then waits for the switch to settle.
func (e *Executor) Promote(ctx context.Context, env *envconfig.Environment) error {
	logger := log.WithFields(log.Fields{
		"rollout":   env.Application.Rollout,
		"namespace": env.Namespace,
	})

	logger.Infof("Promoting rollout")

	err := e.Cluster.Promote(ctx, env.Namespace, env.Application.Rollout)
	if err != nil {
		return fmt.Errorf("promote rollout: %w", err)
	}

	err = e.Cluster.WaitForPhase(ctx, env.Namespace, env.Application.Rollout, cluster.PhaseHealthy)
	if err != nil {
		return fmt.Errorf("rollout did not settle after promotion: %w", err)
	}

	logger.Infof("Promotion complete")

	return nil
}
