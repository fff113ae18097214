package executor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/cluster"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/envconfig"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testEnvironment() *envconfig.Environment {
	return &envconfig.Environment{
		Name:      "prod",
		Namespace: "voicehive-prod",
		Application: envconfig.Application{
			Name:            "voicehive",
			Rollout:         "voicehive-server",
			ImageRepository: "ghcr.io/voicehive/server",
			Selector:        "app=voicehive",
		},
	}
}

func TestExecuteRollsOutNewImage(t *testing.T) {
	clusterMock := &cluster.MockInterface{}
	exec := &executor.Executor{Cluster: clusterMock}

	clusterMock.On("RolloutStatus", mock.Anything, "voicehive-prod", "voicehive-server").Return(&cluster.RolloutStatus{
		Image: "ghcr.io/voicehive/server:v1.0.0",
	}, nil).Once()
	clusterMock.On("PatchImage", mock.Anything, "voicehive-prod", "voicehive-server", "ghcr.io/voicehive/server:v2.0.0").Return(nil).Once()
	clusterMock.On("WaitForPhase", mock.Anything, "voicehive-prod", "voicehive-server", cluster.PhaseHealthy).Return(nil).Once()

	result, err := exec.Execute(context.Background(), testEnvironment(), "v2.0.0", false)

	require.NoError(t, err)
	assert.False(t, result.Simulated)
	assert.Equal(t, "ghcr.io/voicehive/server:v2.0.0", result.Image)
	clusterMock.AssertExpectations(t)
}

func TestExecuteDryRunOnlyReads(t *testing.T) {
	clusterMock := &cluster.MockInterface{}
	exec := &executor.Executor{Cluster: clusterMock}

	clusterMock.On("RolloutStatus", mock.Anything, "voicehive-prod", "voicehive-server").Return(&cluster.RolloutStatus{
		Image: "ghcr.io/voicehive/server:v1.0.0",
	}, nil).Once()

	result, err := exec.Execute(context.Background(), testEnvironment(), "v2.0.0", true)

	require.NoError(t, err)
	assert.True(t, result.Simulated)
	clusterMock.AssertNotCalled(t, "PatchImage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	clusterMock.AssertNotCalled(t, "WaitForPhase", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExecuteTimeoutIsClassified(t *testing.T) {
	clusterMock := &cluster.MockInterface{}
	exec := &executor.Executor{Cluster: clusterMock}

	clusterMock.On("RolloutStatus", mock.Anything, "voicehive-prod", "voicehive-server").Return(&cluster.RolloutStatus{
		Image: "ghcr.io/voicehive/server:v1.0.0",
	}, nil).Once()
	clusterMock.On("PatchImage", mock.Anything, "voicehive-prod", "voicehive-server", "ghcr.io/voicehive/server:v2.0.0").Return(nil).Once()
	clusterMock.On("WaitForPhase", mock.Anything, "voicehive-prod", "voicehive-server", cluster.PhaseHealthy).
		Run(func(args mock.Arguments) {
			time.Sleep(time.Millisecond * 50)
		}).
		Return(errors.New("rollout still progressing")).
		Once()

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*5)
	defer cancel()

	_, err := exec.Execute(ctx, testEnvironment(), "v2.0.0", false)
	assert.ErrorIs(t, err, executor.ErrDeploymentTimeout)
}

func TestExecuteWaitFailureWithoutDeadline(t *testing.T) {
	clusterMock := &cluster.MockInterface{}
	exec := &executor.Executor{Cluster: clusterMock}

	clusterMock.On("RolloutStatus", mock.Anything, "voicehive-prod", "voicehive-server").Return(&cluster.RolloutStatus{
		Image: "ghcr.io/voicehive/server:v1.0.0",
	}, nil).Once()
	clusterMock.On("PatchImage", mock.Anything, "voicehive-prod", "voicehive-server", "ghcr.io/voicehive/server:v2.0.0").Return(nil).Once()
	clusterMock.On("WaitForPhase", mock.Anything, "voicehive-prod", "voicehive-server", cluster.PhaseHealthy).
		Return(errors.New("rollout degraded")).
		Once()

	_, err := exec.Execute(context.Background(), testEnvironment(), "v2.0.0", false)

	require.Error(t, err)
	assert.NotErrorIs(t, err, executor.ErrDeploymentTimeout)
}

func TestPromoteLiftsPauseAndWaits(t *testing.T) {
	clusterMock := &cluster.MockInterface{}
	exec := &executor.Executor{Cluster: clusterMock}

	clusterMock.On("Promote", mock.Anything, "voicehive-prod", "voicehive-server").Return(nil).Once()
	clusterMock.On("WaitForPhase", mock.Anything, "voicehive-prod", "voicehive-server", cluster.PhaseHealthy).Return(nil).Once()

	err := exec.Promote(context.Background(), testEnvironment())

	require.NoError(t, err)
	clusterMock.AssertExpectations(t)
}
