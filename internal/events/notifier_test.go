package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.msgs = append(p.msgs, published{subject: subj, data: data})
	return &nats.PubAck{Stream: StreamName, Sequence: uint64(len(p.msgs))}, nil
}

func TestNATSNotifierPublishesEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	logger, _ := test.NewNullLogger()
	n := newNATSNotifier(nil, pub, logrus.NewEntry(logger))
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return fixed }

	err := n.Notify(context.Background(), "tenant-1", "inventory.low_stock", map[string]interface{}{"productId": "p-1"})
	require.NoError(t, err)
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "marketplace.inventory.low_stock", pub.msgs[0].subject)

	var env Envelope
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &env))
	assert.Equal(t, "tenant-1", env.TenantID)
	assert.Equal(t, "inventory.low_stock", env.EventType)
	assert.Equal(t, fixed, env.OccurredAt)
	assert.Equal(t, "p-1", env.Payload["productId"])
	assert.NotEmpty(t, env.EventID)
}

func TestNATSNotifierReturnsPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("no responders")}
	logger, _ := test.NewNullLogger()
	n := newNATSNotifier(nil, pub, logrus.NewEntry(logger))

	err := n.Notify(context.Background(), "tenant-1", "sync.failed", nil)
	assert.ErrorContains(t, err, "marketplace.sync.failed")
}

func TestLogNotifier(t *testing.T) {
	logger, hook := test.NewNullLogger()
	n := NewLogNotifier(logger)

	require.NoError(t, n.Notify(context.Background(), "tenant-1", "product.conflict_detected", map[string]interface{}{"field": "price"}))
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "product.conflict_detected", hook.LastEntry().Data["event"])
}
