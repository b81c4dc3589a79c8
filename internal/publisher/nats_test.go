package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/mealsense/mealsense_core/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs       []published
	publishErr error
	connected  bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	c.msgs = append(c.msgs, published{subject: subject, data: data})
	return nil
}

func (c *fakeConn) FlushWithContext(context.Context) error { return nil }

func (c *fakeConn) IsConnected() bool { return c.connected }

func TestSubjectToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "rice", want: "rice"},
		{in: " basmati rice ", want: "basmati_rice"},
		{in: "a.b>c*d/e", want: "a_b_c_d_e"},
		{in: "", want: "_"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, subjectToken(tt.in), tt.in)
	}
}

func TestRecordPublishesDemandEvent(t *testing.T) {
	fc := &fakeConn{connected: true}
	p := newPublisher(fc, "mealsense", nil)

	entry := models.DemandLogEntry{Timestamp: "2026-03-01T00:00:00Z", Food: "Basmati Rice", Origin: "Amritsar", Destination: "Chennai"}
	require.NoError(t, p.Record(context.Background(), entry))

	require.Len(t, fc.msgs, 1)
	assert.Equal(t, "mealsense.demand.basmati_rice", fc.msgs[0].subject)

	var msg DemandMessage
	require.NoError(t, json.Unmarshal(fc.msgs[0].data, &msg))
	assert.Equal(t, DemandMessage(entry), msg)
	assert.Equal(t, "nats", p.Name())
}

func TestRecordPublishError(t *testing.T) {
	p := newPublisher(&fakeConn{publishErr: nats.ErrConnectionClosed}, "mealsense", nil)

	err := p.Record(context.Background(), models.DemandLogEntry{Food: "Rice"})
	assert.True(t, errors.Is(err, nats.ErrConnectionClosed))
}

func TestPublishDigest(t *testing.T) {
	fc := &fakeConn{}
	p := newPublisher(fc, "mealsense", nil)

	require.NoError(t, p.PublishDigest(context.Background(), models.DemandSummary{Total: 7}))
	require.Len(t, fc.msgs, 1)
	assert.Equal(t, "mealsense.digest", fc.msgs[0].subject)
	assert.Contains(t, string(fc.msgs[0].data), `"total":7`)

	assert.Error(t, p.HealthCheck())
}

func TestNATSPublisherIntegration(t *testing.T) {
	url := os.Getenv("TEST_NATS_URL")
	if url == "" {
		t.Skip("TEST_NATS_URL not set")
	}

	p, err := NewNATSPublisher(url, "mealsense_test", nil)
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.HealthCheck())

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()
	s, err := sub.SubscribeSync("mealsense_test.demand.>")
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	require.NoError(t, p.Record(context.Background(), models.DemandLogEntry{Timestamp: "2026-03-01T00:00:00Z", Food: "Rice"}))

	msg, err := s.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "mealsense_test.demand.rice", msg.Subject)
}
