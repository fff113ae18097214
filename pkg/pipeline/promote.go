package pipeline

import (
	"context"
	"time"

	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/notify"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Promote completes a deployment that a previous run left in
// AwaitingPromotion. It takes the same per-environment lock as a full run so
// a promotion can never interleave with a deployment in progress.
func (p *Pipeline) Promote(ctx context.Context, request Request) error {
	rendered, err := p.Prereqs.Check(ctx, request.Environment)
	if err != nil {
		return ErrorWrap(StagePrerequisites, err)
	}

	holder := uuid.New().String()
	if err := p.Locker.Acquire(ctx, request.Environment, holder); err != nil {
		return ErrorWrap(StagePromote, err)
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second*10)
		defer cancel()
		if err := p.Locker.Release(releaseCtx, request.Environment, holder); err != nil {
			log.Errorf("Release deployment lock: %s", err)
		}
	}()

	if err := p.promote(ctx, request, rendered.Environment); err != nil {
		p.notifyState(ctx, request, StateFailed, err.Error(), notify.SeverityError)
		return ErrorWrap(StagePromote, err)
	}

	p.notifyState(ctx, request, StatePromoted, "manual promotion complete", notify.SeverityInfo)
	return nil
}

func (p *Pipeline) notifyState(ctx context.Context, request Request, state State, message string, severity notify.Severity) {
	if p.Notifier == nil {
		return
	}
	p.Notifier.Publish(ctx, notify.Event{
		Environment: request.Environment,
		Tag:         request.Tag,
		State:       string(state),
		Severity:    severity,
		Message:     message,
	})
}
