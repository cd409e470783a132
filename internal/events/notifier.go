// Package events dispatches tenant notifications raised by the sync engine.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const (
	// StreamName is the JetStream stream holding marketplace events
	StreamName = "MARKETPLACE_EVENTS"
	// SubjectPrefix prefixes every published event type
	SubjectPrefix = "marketplace."
)

// Envelope is the JSON body of a published event
type Envelope struct {
	EventID    string                 `json:"event_id"`
	EventType  string                 `json:"event_type"`
	TenantID   string                 `json:"tenant_id"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload"`
}

// publisher is the slice of nats.JetStreamContext the notifier needs
type publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSNotifier publishes notifications to JetStream
type NATSNotifier struct {
	conn   *nats.Conn
	js     publisher
	logger *logrus.Entry
	now    func() time.Time
}

// NewNATSNotifier connects to url and makes sure the stream exists
func NewNATSNotifier(url string, logger *logrus.Logger) (*NATSNotifier, error) {
	conn, err := nats.Connect(url,
		nats.Name("marketplace-sync-service"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open JetStream context: %w", err)
	}

	if _, err := js.StreamInfo(StreamName); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			conn.Close()
			return nil, fmt.Errorf("failed to look up stream %s: %w", StreamName, err)
		}
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     StreamName,
			Subjects: []string{SubjectPrefix + ">"},
			MaxAge:   7 * 24 * time.Hour,
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create stream %s: %w", StreamName, err)
		}
	}

	return newNATSNotifier(conn, js, logger.WithField("component", "events.publisher")), nil
}

func newNATSNotifier(conn *nats.Conn, js publisher, logger *logrus.Entry) *NATSNotifier {
	return &NATSNotifier{conn: conn, js: js, logger: logger, now: time.Now}
}

// Notify publishes event to marketplace.<event>
func (n *NATSNotifier) Notify(ctx context.Context, tenantID, event string, payload map[string]interface{}) error {
	envelope := Envelope{
		EventID:    uuid.NewString(),
		EventType:  event,
		TenantID:   tenantID,
		OccurredAt: n.now().UTC(),
		Payload:    payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event, err)
	}

	subject := SubjectPrefix + event
	if _, err := n.js.Publish(subject, data, nats.Context(ctx), nats.MsgId(envelope.EventID)); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}

	n.logger.WithFields(logrus.Fields{
		"subject":  subject,
		"tenantId": tenantID,
		"eventId":  envelope.EventID,
	}).Debug("Published event")
	return nil
}

// Close drains the connection
func (n *NATSNotifier) Close() {
	if n.conn != nil {
		_ = n.conn.Drain()
	}
}

// LogNotifier writes notifications to the log when no broker is configured
type LogNotifier struct {
	logger *logrus.Entry
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.WithField("component", "events.log")}
}

func (n *LogNotifier) Notify(ctx context.Context, tenantID, event string, payload map[string]interface{}) error {
	n.logger.WithFields(logrus.Fields{
		"tenantId": tenantID,
		"event":    event,
		"payload":  payload,
	}).Info("Notification")
	return nil
}
