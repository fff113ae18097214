package notify

import (
	"context"
	"time"

	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/metrics"
	log "github.com/sirupsen/logrus"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	// SeverityCritical is reserved for failures that require manual
	// intervention, such as a failed rollback.
	SeverityCritical Severity = "critical"
)

// Event is a state change or terminal outcome worth telling humans about.
type Event struct {
	RunID       string    `json:"runId"`
	Environment string    `json:"environment"`
	Tag         string    `json:"tag"`
	State       string    `json:"state"`
	Severity    Severity  `json:"severity"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

// Sender delivers an event to a single notification target.
type Sender interface {
	Name() string
	Send(ctx context.Context, event Event) error
}

// Router fans events out to every configured sender. Delivery is best
// effort: a failing target is logged and never fails the deployment.
type Router struct {
	senders []Sender
}

func NewRouter(senders ...Sender) *Router {
	return &Router{senders: senders}
}

func (r *Router) Publish(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, sender := range r.senders {
		err := sender.Send(ctx, event)
		metrics.Notification(sender.Name(), err == nil)
		if err != nil {
			log.WithFields(log.Fields{
				"target": sender.Name(),
				"state":  event.State,
			}).Warnf("notification delivery failed: %s", err)
		}
	}
}
