package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/mealsense/mealsense_core/internal/metrics"
	"github.com/mealsense/mealsense_core/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	summary models.DemandSummary
	err     error
}

func (s staticSource) Summary(context.Context) (models.DemandSummary, error) {
	return s.summary, s.err
}

type recordingPublisher struct {
	got []models.DemandSummary
	err error
}

func (p *recordingPublisher) PublishDigest(ctx context.Context, s models.DemandSummary) error {
	p.got = append(p.got, s)
	return p.err
}

func TestRunOnce(t *testing.T) {
	m := metrics.NewCollector()
	pub := &recordingPublisher{}
	d := NewDemandDigest(staticSource{summary: models.DemandSummary{Total: 12}}, pub, m, nil)

	s, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, s.Total)
	assert.Len(t, pub.got, 1)
	assert.Equal(t, 12.0, testutil.ToFloat64(m.DemandEntries))
}

func TestRunOnceWithoutPublisher(t *testing.T) {
	d := NewDemandDigest(staticSource{summary: models.DemandSummary{Total: 3}}, nil, nil, nil)

	s, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, s.Total)
}

func TestRunOnceErrors(t *testing.T) {
	d := NewDemandDigest(staticSource{err: errors.New("log corrupt")}, nil, nil, nil)
	_, err := d.RunOnce(context.Background())
	assert.Error(t, err)

	pub := &recordingPublisher{err: errors.New("nats down")}
	d = NewDemandDigest(staticSource{}, pub, nil, nil)
	_, err = d.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	d := NewDemandDigest(staticSource{}, nil, nil, nil)
	assert.Error(t, d.Start("every now and then"))

	require.NoError(t, d.Start("@hourly"))
	d.Stop()
}
