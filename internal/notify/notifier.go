package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Sink receives events for local delivery, typically a connection hub.
type Sink interface {
	Deliver(sessionID string, event Event)
}

// Transport moves an event to every replica's sinks.
type Transport interface {
	Publish(ctx context.Context, sessionID string, event Event) error
}

// Notifier emits phase transitions. Call it only after the write that caused
// the transition has committed. Delivery failures are logged, never returned.
type Notifier struct {
	transport Transport
	log       *logrus.Entry
}

func NewNotifier(transport Transport) *Notifier {
	return &Notifier{
		transport: transport,
		log:       logrus.WithField("component", "notifier"),
	}
}

func (n *Notifier) Notify(ctx context.Context, sessionID string, event Event) {
	if err := n.transport.Publish(ctx, sessionID, event); err != nil {
		n.log.WithError(err).WithFields(logrus.Fields{
			"session_id": sessionID,
			"event":      event,
		}).Warn("failed to publish event")
		return
	}
	n.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"event":      event,
	}).Debug("event published")
}

// LocalTransport delivers straight to in-process sinks. Used when Redis is
// not configured and in tests.
type LocalTransport struct {
	sinks []Sink
}

func NewLocalTransport(sinks ...Sink) *LocalTransport {
	return &LocalTransport{sinks: sinks}
}

func (t *LocalTransport) Publish(ctx context.Context, sessionID string, event Event) error {
	for _, s := range t.sinks {
		s.Deliver(sessionID, event)
	}
	return nil
}
