package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	coordinationv1 "k8s.io/api/coordination/v1"
	kubeerrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/ptr"
)

var ErrAlreadyLocked = errors.New("another deployment is in progress for this environment")

const defaultLeaseDuration = time.Minute * 30

// Locker serializes deployments per environment. The holder identifies the
// run that owns the lock, so a release can never undo another run's claim.
type Locker interface {
	Acquire(ctx context.Context, environment, holder string) error
	Release(ctx context.Context, environment, holder string) error
}

// LeaseLocker implements Locker on top of Kubernetes coordination Leases,
// one per environment in the environment's own namespace. A lease whose
// holder died is taken over once its duration has elapsed.
type LeaseLocker struct {
	Client    kubernetes.Interface
	Namespace string
	Duration  time.Duration
}

func NewLeaseLocker(client kubernetes.Interface, namespace string) *LeaseLocker {
	return &LeaseLocker{
		Client:    client,
		Namespace: namespace,
		Duration:  defaultLeaseDuration,
	}
}

func leaseName(environment string) string {
	return fmt.Sprintf("deploy-lock-%s", environment)
}

func (l *LeaseLocker) Acquire(ctx context.Context, environment, holder string) error {
	leases := l.Client.CoordinationV1().Leases(l.Namespace)
	name := leaseName(environment)
	now := metav1.NewMicroTime(time.Now())

	existing, err := leases.Get(ctx, name, metav1.GetOptions{})
	if kubeerrors.IsNotFound(err) {
		_, err = leases.Create(ctx, l.lease(name, holder, now), metav1.CreateOptions{})
		if kubeerrors.IsAlreadyExists(err) {
			return ErrAlreadyLocked
		}
		return err
	} else if err != nil {
		return fmt.Errorf("get lease '%s': %w", name, err)
	}

	if l.held(existing, now.Time) {
		return ErrAlreadyLocked
	}

	log.Warnf("Taking over expired deployment lock previously held by '%s'", holderOf(existing))

	existing.Spec = l.lease(name, holder, now).Spec
	_, err = leases.Update(ctx, existing, metav1.UpdateOptions{})
	if kubeerrors.IsConflict(err) {
		return ErrAlreadyLocked
	}
	return err
}

func (l *LeaseLocker) Release(ctx context.Context, environment, holder string) error {
	leases := l.Client.CoordinationV1().Leases(l.Namespace)
	name := leaseName(environment)

	existing, err := leases.Get(ctx, name, metav1.GetOptions{})
	if kubeerrors.IsNotFound(err) {
		return nil
	} else if err != nil {
		return err
	}

	if holderOf(existing) != holder {
		return fmt.Errorf("lease '%s' is held by '%s', refusing to release", name, holderOf(existing))
	}

	err = leases.Delete(ctx, name, metav1.DeleteOptions{})
	if kubeerrors.IsNotFound(err) {
		return nil
	}
	return err
}

func (l *LeaseLocker) lease(name, holder string, now metav1.MicroTime) *coordinationv1.Lease {
	duration := l.Duration
	if duration == 0 {
		duration = defaultLeaseDuration
	}
	return &coordinationv1.Lease{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: l.Namespace,
		},
		Spec: coordinationv1.LeaseSpec{
			HolderIdentity:       ptr.To(holder),
			LeaseDurationSeconds: ptr.To(int32(duration.Seconds())),
			AcquireTime:          &now,
			RenewTime:            &now,
		},
	}
}

// held reports whether a lease is still within its holder's claim window.
func (l *LeaseLocker) held(lease *coordinationv1.Lease, now time.Time) bool {
	if lease.Spec.HolderIdentity == nil || *lease.Spec.HolderIdentity == "" {
		return false
	}
	if lease.Spec.RenewTime == nil || lease.Spec.LeaseDurationSeconds == nil {
		return false
	}
	expiry := lease.Spec.RenewTime.Add(time.Duration(*lease.Spec.LeaseDurationSeconds) * time.Second)
	return now.Before(expiry)
}

func holderOf(lease *coordinationv1.Lease) string {
	if lease.Spec.HolderIdentity == nil {
		return ""
	}
	return *lease.Spec.HolderIdentity
}
