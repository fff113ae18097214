package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/cluster"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/envconfig"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/executor"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/lock"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/notify"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/pipeline"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/prereq"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	netv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/utils/ptr"
)

const environmentTemplate = `
name: {{environment}}
tier: testing
namespace: voicehive-{{environment}}
application:
  name: voicehive
  rollout: voicehive-server
  image-repository: ghcr.io/voicehive/server
  selector: app=voicehive
datastores:
  pms: pms.internal:443
  postgres: postgres.internal:5432
  redis: redis.internal:6379
security:
  run-as-non-root: true
  read-only-root-filesystem: true
  require-network-policies: true
  secret-keys:
    - postgres-password
monitoring:
  enabled: true
  metrics-url: %[1]s/metrics
  metrics-namespace: voicehive
smoke:
  base-url: %[1]s
  readiness-path: /healthz/ready
  liveness-path: /healthz/live
  startup-path: /healthz/startup
  auth-probe-path: /api/v1/calls
  latency-threshold-millis: 2000
notifications: {}
`

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	holders  []string
	acquires int
	releases int
	failWith error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (f *fakeLocker) Acquire(ctx context.Context, environment, holder string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.holders = append(f.holders, holder)
	if f.held[environment] {
		return lock.ErrAlreadyLocked
	}
	f.held[environment] = true
	f.acquires++
	return nil
}

func (f *fakeLocker) Release(ctx context.Context, environment, holder string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, environment)
	f.releases++
	return nil
}

type captureSender struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *captureSender) Name() string {
	return "capture"
}

func (c *captureSender) Send(ctx context.Context, event notify.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureSender) last() notify.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1]
}

type harness struct {
	cluster *cluster.MockInterface
	locker  *fakeLocker
	sender  *captureSender
	pipe    *pipeline.Pipeline
	server  *httptest.Server
}

// newHarness wires a pipeline against a mocked cluster, a fake lock and a
// stub HTTP application serving healthy smoke and metrics endpoints.
func newHarness(t *testing.T, environment string, authStatus int) *harness {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v1/calls", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(authStatus)
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "# TYPE voicehive_calls_total counter")
		fmt.Fprintln(w, "voicehive_calls_total 42")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	dir := t.TempDir()
	contents := fmt.Sprintf(environmentTemplate, server.URL)
	err := os.WriteFile(filepath.Join(dir, environment+".yaml"), []byte(contents), 0o644)
	require.NoError(t, err)

	clusterMock := &cluster.MockInterface{}
	resolver := &envconfig.Resolver{Dir: dir, Cluster: clusterMock}
	locker := newFakeLocker()
	sender := &captureSender{}

	pipe := &pipeline.Pipeline{
		Prereqs:   &prereq.Checker{Cluster: clusterMock, Resolver: resolver},
		Resolver:  resolver,
		Executor:  &executor.Executor{Cluster: clusterMock},
		Validator: &validation.Runner{Cluster: clusterMock, HTTP: server.Client()},
		Locker:    locker,
		Notifier:  notify.NewRouter(sender),
	}

	return &harness{
		cluster: clusterMock,
		locker:  locker,
		sender:  sender,
		pipe:    pipe,
		server:  server,
	}
}

func (h *harness) expectPrereqs(namespace string) {
	h.cluster.On("Reachable", mock.Anything).Return(nil)
	h.cluster.On("NamespaceExists", mock.Anything, namespace).Return(true, nil)
	h.cluster.On("HasRolloutSupport", mock.Anything).Return(true, nil)
}

func (h *harness) expectHealthyWorkload(namespace string) {
	h.cluster.On("Pods", mock.Anything, namespace, "app=voicehive").Return([]corev1.Pod{healthyPod("voicehive-1")}, nil)
	h.cluster.On("NetworkPolicies", mock.Anything, namespace).Return([]netv1.NetworkPolicy{{
		ObjectMeta: metav1.ObjectMeta{Name: "default-deny"},
	}}, nil)
}

func healthyPod(name string) corev1.Pod {
	return corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Spec: corev1.PodSpec{
			SecurityContext: &corev1.PodSecurityContext{
				RunAsNonRoot: ptr.To(true),
			},
			Containers: []corev1.Container{{
				Name: "voicehive",
				SecurityContext: &corev1.SecurityContext{
					RunAsNonRoot:           ptr.To(true),
					ReadOnlyRootFilesystem: ptr.To(true),
				},
			}},
		},
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			Conditions: []corev1.PodCondition{{
				Type:   corev1.PodReady,
				Status: corev1.ConditionTrue,
			}},
			ContainerStatuses: []corev1.ContainerStatus{{
				Name:  "voicehive",
				Ready: true,
			}},
		},
	}
}

func rolloutStatus(image string, revision int64) *cluster.RolloutStatus {
	return &cluster.RolloutStatus{
		Phase:         cluster.PhaseHealthy,
		Image:         image,
		Revision:      revision,
		ReadyReplicas: 2,
	}
}

func notFound(name string) error {
	return apierrors.NewNotFound(schema.GroupResource{Resource: "configmaps"}, name)
}

func baseRequest(environment, tag string) pipeline.Request {
	return pipeline.Request{
		Environment:       environment,
		Tag:               tag,
		DeploymentTimeout: time.Second * 5,
		ValidationTimeout: time.Second * 5,
		RollbackTimeout:   time.Second * 5,
	}
}

func states(report *pipeline.Report) []pipeline.State {
	visited := make([]pipeline.State, 0, len(report.Events))
	for _, event := range report.Events {
		visited = append(visited, event.To)
	}
	return visited
}

// A dry run must not mutate the cluster, take the lock, or capture a backup.
func TestDryRunMakesNoMutatingCalls(t *testing.T) {
	h := newHarness(t, "staging", http.StatusUnauthorized)
	namespace := "voicehive-staging"

	h.expectPrereqs(namespace)
	h.cluster.On("ConfigMap", mock.Anything, namespace, "voicehive-config").Return(nil, notFound("voicehive-config"))
	h.cluster.On("RolloutStatus", mock.Anything, namespace, "voicehive-server").Return(rolloutStatus("ghcr.io/voicehive/server:v1.2.2", 3), nil)
	h.expectHealthyWorkload(namespace)

	request := baseRequest("staging", "v1.2.3")
	request.DryRun = true

	report, err := h.pipe.Run(context.Background(), request)

	assert.NoError(t, err)
	assert.True(t, report.Simulated)
	assert.Nil(t, report.Backup)
	assert.Equal(t, pipeline.StateAwaitingPromotion, report.FinalState)
	assert.Equal(t, pipeline.ExitSuccess, report.ExitCode())

	assert.Zero(t, h.locker.acquires)
	h.cluster.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
	h.cluster.AssertNotCalled(t, "PatchImage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	h.cluster.AssertNotCalled(t, "Promote", mock.Anything, mock.Anything, mock.Anything)
	h.cluster.AssertNotCalled(t, "Abort", mock.Anything, mock.Anything, mock.Anything)
}

func TestSuccessfulDeploymentWithAutoPromote(t *testing.T) {
	h := newHarness(t, "production", http.StatusUnauthorized)
	namespace := "voicehive-production"

	h.expectPrereqs(namespace)
	h.cluster.On("RolloutStatus", mock.Anything, namespace, "voicehive-server").Return(rolloutStatus("ghcr.io/voicehive/server:v1.9.0", 7), nil)
	h.cluster.On("ConfigMap", mock.Anything, namespace, "voicehive-config").Return(nil, notFound("voicehive-config"))
	h.cluster.On("Apply", mock.Anything, mock.Anything).Return(true, nil)
	h.cluster.On("PatchImage", mock.Anything, namespace, "voicehive-server", "ghcr.io/voicehive/server:v2.0.0").Return(nil)
	h.cluster.On("WaitForPhase", mock.Anything, namespace, "voicehive-server", cluster.PhaseHealthy).Return(nil)
	h.expectHealthyWorkload(namespace)
	h.cluster.On("Promote", mock.Anything, namespace, "voicehive-server").Return(nil)

	request := baseRequest("production", "v2.0.0")
	request.AutoPromote = true

	report, err := h.pipe.Run(context.Background(), request)

	assert.NoError(t, err)
	assert.Equal(t, pipeline.StatePromoted, report.FinalState)
	assert.Equal(t, pipeline.ExitSuccess, report.ExitCode())
	assert.True(t, report.Validation.Passed())
	require.NotNil(t, report.Backup)
	assert.Equal(t, "ghcr.io/voicehive/server:v1.9.0", report.Backup.Image)

	assert.Equal(t, []pipeline.State{
		pipeline.StatePrereqsChecked,
		pipeline.StatePrepared,
		pipeline.StateDeploying,
		pipeline.StateValidating,
		pipeline.StatePromoting,
		pipeline.StatePromoted,
	}, states(report))

	assert.Equal(t, 1, h.locker.acquires)
	assert.Equal(t, 1, h.locker.releases)
	assert.Equal(t, []string{report.RunID}, h.locker.holders)
	assert.Equal(t, "Promoted", h.sender.last().State)
}

func TestValidationPassWithoutAutoPromoteAwaitsPromotion(t *testing.T) {
	h := newHarness(t, "production", http.StatusUnauthorized)
	namespace := "voicehive-production"

	h.expectPrereqs(namespace)
	h.cluster.On("RolloutStatus", mock.Anything, namespace, "voicehive-server").Return(rolloutStatus("ghcr.io/voicehive/server:v1.9.0", 7), nil)
	h.cluster.On("ConfigMap", mock.Anything, namespace, "voicehive-config").Return(nil, notFound("voicehive-config"))
	h.cluster.On("Apply", mock.Anything, mock.Anything).Return(true, nil)
	h.cluster.On("PatchImage", mock.Anything, namespace, "voicehive-server", "ghcr.io/voicehive/server:v2.0.0").Return(nil)
	h.cluster.On("WaitForPhase", mock.Anything, namespace, "voicehive-server", cluster.PhaseHealthy).Return(nil)
	h.expectHealthyWorkload(namespace)

	report, err := h.pipe.Run(context.Background(), baseRequest("production", "v2.0.0"))

	assert.NoError(t, err)
	assert.Equal(t, pipeline.StateAwaitingPromotion, report.FinalState)
	assert.Equal(t, pipeline.ExitSuccess, report.ExitCode())

	h.cluster.AssertNotCalled(t, "Promote", mock.Anything, mock.Anything, mock.Anything)
	h.cluster.AssertNotCalled(t, "Abort", mock.Anything, mock.Anything, mock.Anything)
}

// An authenticated endpoint answering an unauthenticated probe with 200 is a
// blocking validation failure and must force a rollback.
func TestBlockingValidationFailureRollsBack(t *testing.T) {
	h := newHarness(t, "production", http.StatusOK)
	namespace := "voicehive-production"

	h.expectPrereqs(namespace)
	// Backup and pre-patch reads see the old image; the restore read sees
	// the half-deployed candidate.
	h.cluster.On("RolloutStatus", mock.Anything, namespace, "voicehive-server").Return(rolloutStatus("ghcr.io/voicehive/server:v1.9.0", 7), nil).Twice()
	h.cluster.On("RolloutStatus", mock.Anything, namespace, "voicehive-server").Return(rolloutStatus("ghcr.io/voicehive/server:v2.0.0", 8), nil)
	h.cluster.On("ConfigMap", mock.Anything, namespace, "voicehive-config").Return(nil, notFound("voicehive-config"))
	h.cluster.On("Apply", mock.Anything, mock.Anything).Return(true, nil)
	h.cluster.On("PatchImage", mock.Anything, namespace, "voicehive-server", "ghcr.io/voicehive/server:v2.0.0").Return(nil)
	h.cluster.On("WaitForPhase", mock.Anything, namespace, "voicehive-server", cluster.PhaseHealthy).Return(nil)
	h.expectHealthyWorkload(namespace)
	h.cluster.On("Abort", mock.Anything, namespace, "voicehive-server").Return(nil)
	h.cluster.On("PatchImage", mock.Anything, namespace, "voicehive-server", "ghcr.io/voicehive/server:v1.9.0").Return(nil)

	request := baseRequest("production", "v2.0.0")
	request.AutoPromote = true

	report, err := h.pipe.Run(context.Background(), request)

	assert.Error(t, err)
	assert.Equal(t, pipeline.StateRolledBack, report.FinalState)
	assert.Equal(t, pipeline.ExitFailure, report.ExitCode())
	assert.False(t, report.Validation.Passed())

	h.cluster.AssertCalled(t, "Abort", mock.Anything, namespace, "voicehive-server")
	h.cluster.AssertCalled(t, "PatchImage", mock.Anything, namespace, "voicehive-server", "ghcr.io/voicehive/server:v1.9.0")
	h.cluster.AssertNotCalled(t, "Promote", mock.Anything, mock.Anything, mock.Anything)

	assert.Equal(t, notify.SeverityError, h.sender.last().Severity)
	assert.Equal(t, 1, h.locker.releases)
}

func TestDeploymentTimeoutRollsBack(t *testing.T) {
	h := newHarness(t, "production", http.StatusUnauthorized)
	namespace := "voicehive-production"

	h.expectPrereqs(namespace)
	h.cluster.On("RolloutStatus", mock.Anything, namespace, "voicehive-server").Return(rolloutStatus("ghcr.io/voicehive/server:v1.9.0", 7), nil).Twice()
	h.cluster.On("RolloutStatus", mock.Anything, namespace, "voicehive-server").Return(rolloutStatus("ghcr.io/voicehive/server:v2.0.0", 8), nil)
	h.cluster.On("ConfigMap", mock.Anything, namespace, "voicehive-config").Return(nil, notFound("voicehive-config"))
	h.cluster.On("Apply", mock.Anything, mock.Anything).Return(true, nil)
	h.cluster.On("PatchImage", mock.Anything, namespace, "voicehive-server", "ghcr.io/voicehive/server:v2.0.0").Return(nil)
	h.cluster.On("WaitForPhase", mock.Anything, namespace, "voicehive-server", cluster.PhaseHealthy).
		Run(func(args mock.Arguments) {
			time.Sleep(time.Millisecond * 100)
		}).
		Return(errors.New("rollout still progressing"))
	h.cluster.On("Abort", mock.Anything, namespace, "voicehive-server").Return(nil)
	h.cluster.On("PatchImage", mock.Anything, namespace, "voicehive-server", "ghcr.io/voicehive/server:v1.9.0").Return(nil)

	request := baseRequest("production", "v2.0.0")
	request.DeploymentTimeout = time.Millisecond * 5

	report, err := h.pipe.Run(context.Background(), request)

	assert.Error(t, err)
	assert.ErrorIs(t, err, executor.ErrDeploymentTimeout)
	assert.Equal(t, pipeline.StateRolledBack, report.FinalState)
	assert.Equal(t, pipeline.ExitFailure, report.ExitCode())
}

func TestConcurrentInvocationIsRejected(t *testing.T) {
	h := newHarness(t, "production", http.StatusUnauthorized)
	namespace := "voicehive-production"

	h.expectPrereqs(namespace)
	h.locker.failWith = lock.ErrAlreadyLocked

	report, err := h.pipe.Run(context.Background(), baseRequest("production", "v2.0.0"))

	assert.ErrorIs(t, err, lock.ErrAlreadyLocked)
	assert.Equal(t, pipeline.StateFailed, report.FinalState)
	assert.Equal(t, pipeline.ExitFailure, report.ExitCode())

	h.cluster.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
	h.cluster.AssertNotCalled(t, "PatchImage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPrerequisiteFailureAbortsBeforeMutation(t *testing.T) {
	h := newHarness(t, "production", http.StatusUnauthorized)

	h.cluster.On("Reachable", mock.Anything).Return(errors.New("connection refused"))

	report, err := h.pipe.Run(context.Background(), baseRequest("production", "v2.0.0"))

	assert.Error(t, err)
	assert.Equal(t, pipeline.StateFailed, report.FinalState)
	assert.Nil(t, report.Backup)

	var stageErr *pipeline.Error
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, pipeline.StagePrerequisites, stageErr.Stage)

	assert.Zero(t, h.locker.acquires)
	h.cluster.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
}

func TestSkipValidationBypassesChecks(t *testing.T) {
	h := newHarness(t, "production", http.StatusOK)
	namespace := "voicehive-production"

	h.expectPrereqs(namespace)
	h.cluster.On("RolloutStatus", mock.Anything, namespace, "voicehive-server").Return(rolloutStatus("ghcr.io/voicehive/server:v1.9.0", 7), nil)
	h.cluster.On("ConfigMap", mock.Anything, namespace, "voicehive-config").Return(nil, notFound("voicehive-config"))
	h.cluster.On("Apply", mock.Anything, mock.Anything).Return(true, nil)
	h.cluster.On("PatchImage", mock.Anything, namespace, "voicehive-server", "ghcr.io/voicehive/server:v2.0.0").Return(nil)
	h.cluster.On("WaitForPhase", mock.Anything, namespace, "voicehive-server", cluster.PhaseHealthy).Return(nil)

	request := baseRequest("production", "v2.0.0")
	request.SkipValidation = true

	report, err := h.pipe.Run(context.Background(), request)

	assert.NoError(t, err)
	assert.Equal(t, pipeline.StateAwaitingPromotion, report.FinalState)
	require.NotNil(t, report.Validation)
	assert.True(t, report.Validation.Skipped)
	assert.Empty(t, report.Validation.Results)

	h.cluster.AssertNotCalled(t, "Pods", mock.Anything, mock.Anything, mock.Anything)
}

func TestRollbackFailureIsFatal(t *testing.T) {
	h := newHarness(t, "production", http.StatusOK)
	namespace := "voicehive-production"

	h.expectPrereqs(namespace)
	h.cluster.On("RolloutStatus", mock.Anything, namespace, "voicehive-server").Return(rolloutStatus("ghcr.io/voicehive/server:v1.9.0", 7), nil).Twice()
	h.cluster.On("RolloutStatus", mock.Anything, namespace, "voicehive-server").Return(rolloutStatus("ghcr.io/voicehive/server:v2.0.0", 8), nil)
	h.cluster.On("ConfigMap", mock.Anything, namespace, "voicehive-config").Return(nil, notFound("voicehive-config"))
	h.cluster.On("Apply", mock.Anything, mock.Anything).Return(true, nil)
	h.cluster.On("PatchImage", mock.Anything, namespace, "voicehive-server", "ghcr.io/voicehive/server:v2.0.0").Return(nil)
	h.cluster.On("WaitForPhase", mock.Anything, namespace, "voicehive-server", cluster.PhaseHealthy).Return(nil)
	h.expectHealthyWorkload(namespace)
	h.cluster.On("Abort", mock.Anything, namespace, "voicehive-server").Return(errors.New("api server gone"))

	request := baseRequest("production", "v2.0.0")
	request.AutoPromote = true

	report, err := h.pipe.Run(context.Background(), request)

	var fatal *pipeline.RollbackError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, pipeline.StateFailed, report.FinalState)
	assert.Equal(t, pipeline.ExitFailure, report.ExitCode())
	assert.Equal(t, notify.SeverityCritical, h.sender.last().Severity)
	assert.Equal(t, 1, h.locker.releases)
}
