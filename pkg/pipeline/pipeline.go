package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/envconfig"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/executor"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/lock"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/metrics"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/notify"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/prereq"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/telemetry"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/validation"
	log "github.com/sirupsen/logrus"
)

// Pipeline drives a single deployment run through its state machine. All
// collaborators are injected so the state machine can be exercised against
// fakes in tests.
type Pipeline struct {
	Prereqs   *prereq.Checker
	Resolver  *envconfig.Resolver
	Executor  *executor.Executor
	Validator *validation.Runner
	Locker    lock.Locker
	Notifier  *notify.Router
}

// Run takes a request from Init to a terminal state. The returned report is
// always non-nil and always carries a terminal FinalState; the error, when
// set, explains why the run did not end in success.
func (p *Pipeline) Run(ctx context.Context, request Request) (*Report, error) {
	report := NewReport(request)

	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.Run")
	defer span.End()

	fields := log.Fields{
		"run_id":      report.RunID,
		"environment": request.Environment,
		"tag":         request.Tag,
	}
	if traceID := telemetry.TraceID(ctx); traceID != "" {
		fields["trace_id"] = traceID
	}
	log.WithFields(fields).Infof("Starting deployment")

	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	err := p.run(ctx, request, report)
	p.finalize(ctx, report, err)
	return report, err
}

func (p *Pipeline) run(ctx context.Context, request Request, report *Report) error {
	rendered, err := p.Prereqs.Check(ctx, request.Environment)
	if err != nil {
		p.fail(ctx, report, err)
		return ErrorWrap(StagePrerequisites, err)
	}
	p.transition(ctx, report, StatePrereqsChecked, "all prerequisites satisfied")

	if request.DryRun {
		return p.simulate(ctx, request, report, rendered)
	}

	// Serialize runs per environment. The run ID identifies the lock holder,
	// and the lock is released on every exit path, including cancellation,
	// using a context that survives the parent's deadline.
	if err := p.Locker.Acquire(ctx, request.Environment, report.RunID); err != nil {
		p.fail(ctx, report, err)
		return ErrorWrap(StagePrepare, err)
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second*10)
		defer cancel()
		if err := p.Locker.Release(releaseCtx, request.Environment, report.RunID); err != nil {
			log.Errorf("Release deployment lock: %s", err)
		}
	}()

	// The backup is the rollback's reference point and must exist before
	// any mutation.
	backup, err := p.Resolver.Backup(ctx, rendered.Environment)
	if err != nil {
		p.fail(ctx, report, ErrorWrap(StagePrepare, err))
		return ErrorWrap(StagePrepare, err)
	}
	report.Backup = backup

	if _, err := p.Resolver.Apply(ctx, rendered); err != nil {
		// Config may have been partially applied; compensate.
		return p.rollback(ctx, request, report, rendered, ErrorWrap(StagePrepare, err))
	}
	p.transition(ctx, report, StatePrepared, "configuration applied and backup captured")

	p.transition(ctx, report, StateDeploying, fmt.Sprintf("rolling out tag %s", request.Tag))
	deployStart := time.Now()
	deployCtx, cancel := context.WithTimeout(ctx, request.DeploymentTimeout)
	_, err = p.Executor.Execute(deployCtx, rendered.Environment, request.Tag, false)
	cancel()
	metrics.StageDuration(request.Environment, StageDeploy, time.Since(deployStart))
	if err != nil {
		return p.rollback(ctx, request, report, rendered, ErrorWrap(StageDeploy, err))
	}

	p.transition(ctx, report, StateValidating, "rollout healthy, running validation")
	report.Validation = p.validate(ctx, request, rendered.Environment)
	if !report.Validation.Passed() {
		failures := report.Validation.BlockingFailures()
		return p.rollback(ctx, request, report, rendered,
			Errorf(StageValidate, "%d blocking validation failures, first: %s", len(failures), failures[0].Detail))
	}

	if !request.AutoPromote {
		p.transition(ctx, report, StateAwaitingPromotion, "validation passed, awaiting manual promotion")
		return nil
	}

	p.transition(ctx, report, StatePromoting, "validation passed, promoting")
	if err := p.promote(ctx, request, rendered.Environment); err != nil {
		return p.rollback(ctx, request, report, rendered, ErrorWrap(StagePromote, err))
	}
	p.transition(ctx, report, StatePromoted, fmt.Sprintf("tag %s promoted to stable", request.Tag))
	return nil
}

// simulate walks the read-only portion of the pipeline. No lock is taken,
// no backup captured and no mutating cluster call is made.
func (p *Pipeline) simulate(ctx context.Context, request Request, report *Report, rendered *envconfig.Rendered) error {
	report.Simulated = true

	for _, line := range p.Resolver.Diff(ctx, rendered) {
		log.Infof("config diff: %s", line)
	}
	p.transition(ctx, report, StatePrepared, "dry run: configuration rendered, nothing applied")

	p.transition(ctx, report, StateDeploying, fmt.Sprintf("dry run: would roll out tag %s", request.Tag))
	if _, err := p.Executor.Execute(ctx, rendered.Environment, request.Tag, true); err != nil {
		p.fail(ctx, report, ErrorWrap(StageDeploy, err))
		return ErrorWrap(StageDeploy, err)
	}

	p.transition(ctx, report, StateValidating, "dry run: validating current environment")
	report.Validation = p.validate(ctx, request, rendered.Environment)
	if !report.Validation.Passed() {
		err := Errorf(StageValidate, "environment would fail validation")
		p.fail(ctx, report, err)
		return err
	}

	if request.AutoPromote {
		p.transition(ctx, report, StatePromoted, "dry run: would promote")
	} else {
		p.transition(ctx, report, StateAwaitingPromotion, "dry run: would await manual promotion")
	}
	return nil
}

func (p *Pipeline) validate(ctx context.Context, request Request, env *envconfig.Environment) *validation.Report {
	if request.SkipValidation {
		log.Warnf("Validation skipped on operator request")
		return validation.SkippedReport()
	}

	start := time.Now()
	validateCtx, cancel := context.WithTimeout(ctx, request.ValidationTimeout)
	defer cancel()

	vreport := p.Validator.Run(validateCtx, validationTarget(env))
	metrics.StageDuration(request.Environment, StageValidate, time.Since(start))
	return vreport
}

func (p *Pipeline) promote(ctx context.Context, request Request, env *envconfig.Environment) error {
	promoteCtx, cancel := context.WithTimeout(ctx, request.DeploymentTimeout)
	defer cancel()
	return p.Executor.Promote(promoteCtx, env)
}

// rollback is the compensating action for every failure past Prepared. It
// runs under its own deadline on a context detached from the parent's
// cancellation, so a deployment timeout cannot also starve the rollback.
func (p *Pipeline) rollback(ctx context.Context, request Request, report *Report, rendered *envconfig.Rendered, cause error) error {
	p.transition(ctx, report, StateRollingBack, cause.Error())
	metrics.Rollbacks.Inc()

	rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), request.RollbackTimeout)
	defer cancel()

	if err := p.Resolver.Restore(rollbackCtx, rendered.Environment, report.Backup); err != nil {
		// Manual intervention territory. The notification must stand out
		// from an ordinary failed run.
		fatal := &RollbackError{Err: err}
		p.transitionWith(ctx, report, StateFailed, fatal.Error(), notify.SeverityCritical)
		return fatal
	}

	p.transition(ctx, report, StateRolledBack, "previous state restored")
	return cause
}

func (p *Pipeline) fail(ctx context.Context, report *Report, cause error) {
	p.transition(ctx, report, StateFailed, cause.Error())
}

func (p *Pipeline) transition(ctx context.Context, report *Report, to State, message string) {
	p.transitionWith(ctx, report, to, message, severityFor(to))
}

// transitionWith is the single place state changes happen: it appends the
// event, updates metrics and notifies listeners.
func (p *Pipeline) transitionWith(ctx context.Context, report *Report, to State, message string, severity notify.Severity) {
	from := report.FinalState
	report.FinalState = to
	report.Events = append(report.Events, Event{
		From:      from,
		To:        to,
		Message:   message,
		Timestamp: time.Now(),
	})

	metrics.StateTransition(report.Request.Environment, string(from), string(to))

	log.WithFields(log.Fields{
		"run_id": report.RunID,
		"from":   from,
		"to":     to,
	}).Infof("%s", message)

	if p.Notifier != nil {
		p.Notifier.Publish(ctx, notify.Event{
			RunID:       report.RunID,
			Environment: report.Request.Environment,
			Tag:         report.Request.Tag,
			State:       string(to),
			Severity:    severity,
			Message:     message,
		})
	}
}

func (p *Pipeline) finalize(ctx context.Context, report *Report, err error) {
	report.EndTime = time.Now()

	if !report.FinalState.Terminal() {
		// A run can only leave the state machine mid-flight through a bug
		// or a panic recovered upstream.
		p.fail(ctx, report, fmt.Errorf("run ended in non-terminal state %s", report.FinalState))
	}

	if err != nil {
		report.Error = err.Error()
	}

	var fatal *RollbackError
	if errors.As(err, &fatal) {
		log.Errorf("ROLLBACK FAILED for environment '%s', manual intervention required: %s",
			report.Request.Environment, fatal.Err)
	}
}

func severityFor(state State) notify.Severity {
	switch state {
	case StateFailed:
		return notify.SeverityError
	case StateRollingBack, StateRolledBack:
		return notify.SeverityError
	case StateAwaitingPromotion:
		return notify.SeverityWarning
	default:
		return notify.SeverityInfo
	}
}

func validationTarget(env *envconfig.Environment) validation.Target {
	target := validation.Target{
		Namespace:        env.Namespace,
		Selector:         env.Application.Selector,
		BaseURL:          env.Smoke.BaseURL,
		ReadinessPath:    env.Smoke.ReadinessPath,
		LivenessPath:     env.Smoke.LivenessPath,
		StartupPath:      env.Smoke.StartupPath,
		AuthProbePath:    env.Smoke.AuthProbePath,
		LatencyThreshold: time.Duration(env.Smoke.LatencyThresholdMillis) * time.Millisecond,

		MonitoringEnabled: env.MonitoringEnabled(),
	}
	if env.Security != nil {
		target.RequireNetworkPolicies = env.Security.RequireNetworkPolicies
		target.RunAsNonRoot = env.Security.RunAsNonRoot
		target.ReadOnlyRootFilesystem = env.Security.ReadOnlyRootFilesystem
	}
	if env.Monitoring != nil {
		target.MetricsURL = env.Monitoring.MetricsURL
		target.MetricsNamespace = env.Monitoring.MetricsNamespace
	}
	return target
}
