package envconfig

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// BackupRef is a snapshot of the environment's applied configuration and
// rollout descriptor, captured before any mutation. It is the reference
// point that makes rollback deterministic; it is read-only once captured.
type BackupRef struct {
	Environment string            `json:"environment"`
	TakenAt     time.Time         `json:"takenAt"`
	Image       string            `json:"image"`
	Revision    int64             `json:"revision"`
	ConfigData  map[string]string `json:"configData,omitempty"`
}

// Backup captures the currently applied config and the current rollout
// image/revision. The deployment must not proceed without a successful
// backup, since rollback would otherwise lose its reference point.
func (r *Resolver) Backup(ctx context.Context, env *Environment) (*BackupRef, error) {
	status, err := r.Cluster.RolloutStatus(ctx, env.Namespace, env.Application.Rollout)
	if err != nil {
		return nil, configError("snapshot rollout state: %s", err)
	}

	ref := &BackupRef{
		Environment: env.Name,
		TakenAt:     time.Now(),
		Image:       status.Image,
		Revision:    status.Revision,
	}

	current, err := r.Cluster.ConfigMap(ctx, env.Namespace, configMapName(env))
	if err == nil {
		ref.ConfigData = current.Data
	} else if !apierrors.IsNotFound(err) {
		return nil, configError("snapshot applied configuration: %s", err)
	}

	log.WithFields(log.Fields{
		"environment": env.Name,
		"image":       ref.Image,
		"revision":    ref.Revision,
	}).Infof("Captured pre-deployment backup")

	return ref, nil
}

// Restore brings the environment back to the state captured in the backup.
// Restoring an environment that already matches the backup performs no
// mutating calls and returns success.
func (r *Resolver) Restore(ctx context.Context, env *Environment, ref *BackupRef) error {
	status, err := r.Cluster.RolloutStatus(ctx, env.Namespace, env.Application.Rollout)
	if err != nil {
		return configError("read rollout state before restore: %s", err)
	}

	if status.Image != ref.Image {
		err = r.Cluster.Abort(ctx, env.Namespace, env.Application.Rollout)
		if err != nil {
			return configError("abort in-flight rollout: %s", err)
		}

		err = r.Cluster.PatchImage(ctx, env.Namespace, env.Application.Rollout, ref.Image)
		if err != nil {
			return configError("restore rollout image %q: %s", ref.Image, err)
		}

		log.Infof("Rollout image restored to '%s'", ref.Image)
	} else {
		log.Infof("Rollout already at backup image '%s'; nothing to restore", ref.Image)
	}

	if ref.ConfigData != nil {
		restored := configMap(env)
		data := map[string]interface{}{}
		for key, value := range ref.ConfigData {
			data[key] = value
		}
		restored.Object["data"] = data

		changed, err := r.Cluster.Apply(ctx, restored)
		if err != nil {
			return configError("restore applied configuration: %s", err)
		}
		if changed {
			log.Infof("Applied configuration restored from backup taken %s", ref.TakenAt.Format(time.RFC3339))
		}
	}

	return nil
}
