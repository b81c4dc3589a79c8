package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mealsense/mealsense_core/internal/metrics"
	"github.com/mealsense/mealsense_core/internal/models"
	"github.com/robfig/cron/v3"
)

// SummarySource computes the current demand summary
type SummarySource interface {
	Summary(ctx context.Context) (models.DemandSummary, error)
}

// DigestPublisher broadcasts a summary
type DigestPublisher interface {
	PublishDigest(ctx context.Context, summary models.DemandSummary) error
}

// DemandDigest periodically summarises the demand log, updates the entries
// gauge and publishes the digest when a publisher is configured.
type DemandDigest struct {
	cronScheduler *cron.Cron
	source        SummarySource
	publisher     DigestPublisher // optional
	metrics       *metrics.Collector
	logger        *slog.Logger
	jobID         cron.EntryID
}

// NewDemandDigest creates the job; Start schedules it
func NewDemandDigest(source SummarySource, publisher DigestPublisher, m *metrics.Collector, logger *slog.Logger) *DemandDigest {
	if logger == nil {
		logger = slog.Default()
	}
	return &DemandDigest{
		cronScheduler: cron.New(),
		source:        source,
		publisher:     publisher,
		metrics:       m,
		logger:        logger,
	}
}

// Start schedules the digest. schedule is a standard 5-field spec or a
// descriptor such as "@hourly".
func (d *DemandDigest) Start(schedule string) error {
	var err error
	d.jobID, err = d.cronScheduler.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := d.RunOnce(ctx); err != nil {
			d.logger.Error("demand digest failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("error scheduling demand digest: %w", err)
	}

	d.cronScheduler.Start()
	d.logger.Info("demand digest scheduled", "schedule", schedule)
	return nil
}

// Stop terminates the scheduler and waits for a running digest
func (d *DemandDigest) Stop() {
	<-d.cronScheduler.Stop().Done()
	d.logger.Info("demand digest stopped")
}

// RunOnce computes and publishes one digest
func (d *DemandDigest) RunOnce(ctx context.Context) (models.DemandSummary, error) {
	summary, err := d.source.Summary(ctx)
	if err != nil {
		return models.DemandSummary{}, fmt.Errorf("failed to summarise demand: %w", err)
	}

	d.metrics.SetDemandEntries(summary.Total)
	d.logger.Info("demand digest",
		"total", summary.Total,
		"last_7_days", summary.LastSevenDays,
		"top_foods", summary.TopFoods,
	)

	if d.publisher != nil {
		if err := d.publisher.PublishDigest(ctx, summary); err != nil {
			return summary, fmt.Errorf("failed to publish digest: %w", err)
		}
	}
	return summary, nil
}
