package supplier

import (
	"context"
	"log/slog"
	"time"

	"github.com/mealsense/mealsense_core/internal/demand"
	"github.com/mealsense/mealsense_core/internal/models"
)

// EntryReader reads the demand log
type EntryReader interface {
	ReadAll() ([]models.DemandLogEntry, error)
}

// SummaryStore aggregates demand in a database
type SummaryStore interface {
	Summary(ctx context.Context, now time.Time, topN int) (models.DemandSummary, error)
	FoodCounts(ctx context.Context) (map[string]int, error)
}

// Dashboard computes the supplier demand overview. With a Store it aggregates
// in SQL and falls back to the log if the query fails.
type Dashboard struct {
	Log       EntryReader
	Store     SummaryStore // optional
	Catalogue Catalogue
	TopN      int
	Logger    *slog.Logger
	Now       func() time.Time
}

// Summary returns the current demand summary. Errors come from the log only.
func (d *Dashboard) Summary(ctx context.Context) (models.DemandSummary, error) {
	now := time.Now()
	if d.Now != nil {
		now = d.Now()
	}

	if d.Store != nil {
		summary, err := d.storeSummary(ctx, now)
		if err == nil {
			return summary, nil
		}
		d.logger().Warn("demand summary from database failed, reading log", "err", err)
	}

	entries, err := d.Log.ReadAll()
	if err != nil {
		return models.DemandSummary{}, err
	}
	return demand.Summarize(entries, now, d.TopN, d.score), nil
}

// Entries returns the raw demand log
func (d *Dashboard) Entries() ([]models.DemandLogEntry, error) {
	return d.Log.ReadAll()
}

func (d *Dashboard) storeSummary(ctx context.Context, now time.Time) (models.DemandSummary, error) {
	topN := d.TopN
	if topN <= 0 {
		topN = demand.DefaultTopN
	}

	summary, err := d.Store.Summary(ctx, now, topN)
	if err != nil {
		return models.DemandSummary{}, err
	}
	counts, err := d.Store.FoodCounts(ctx)
	if err != nil {
		return models.DemandSummary{}, err
	}
	summary.AvgSustainabilityScore = demand.AverageScore(counts, d.score)
	return summary, nil
}

func (d *Dashboard) score(food string) (float64, bool) {
	if d.Catalogue == nil {
		return 0, false
	}
	rec, err := d.Catalogue.Get(food)
	if err != nil {
		return 0, false
	}
	s := SustainabilityScore(rec)
	if s == nil {
		return 0, false
	}
	return *s, true
}

func (d *Dashboard) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}
