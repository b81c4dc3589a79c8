package demand

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mealsense/mealsense_core/internal/metrics"
	"github.com/mealsense/mealsense_core/internal/models"
)

const sinkTimeout = 5 * time.Second

// Sink mirrors committed entries somewhere else (database, message bus).
// Sinks never affect the outcome of an append.
type Sink interface {
	Name() string
	Record(ctx context.Context, entry models.DemandLogEntry) error
}

// Recorder appends to the JSON log, which stays the source of truth, and then
// notifies sinks in the background.
type Recorder struct {
	log     *Log
	sinks   []Sink
	metrics *metrics.Collector
	logger  *slog.Logger

	wg sync.WaitGroup
}

// NewRecorder creates a Recorder. logger may be nil.
func NewRecorder(log *Log, m *metrics.Collector, logger *slog.Logger, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		log:     log,
		sinks:   sinks,
		metrics: m,
		logger:  logger,
	}
}

// Append writes the entry to the log and fans it out to the sinks
func (r *Recorder) Append(ctx context.Context, food, originQuery, destQuery string) (models.DemandLogEntry, error) {
	entry, err := r.log.Append(food, originQuery, destQuery)
	r.metrics.DemandAppend(err == nil)
	if err != nil {
		return models.DemandLogEntry{}, err
	}

	for _, s := range r.sinks {
		r.wg.Add(1)
		go func(s Sink) {
			defer r.wg.Done()

			sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
			defer cancel()

			if err := s.Record(sinkCtx, entry); err != nil {
				r.metrics.DemandSinkError(s.Name())
				r.logger.Warn("demand sink failed", "sink", s.Name(), "food", entry.Food, "err", err)
			}
		}(s)
	}

	return entry, nil
}

// ReadAll returns the entries from the log
func (r *Recorder) ReadAll() ([]models.DemandLogEntry, error) {
	return r.log.ReadAll()
}

// Wait blocks until in-flight sink notifications finish
func (r *Recorder) Wait() {
	r.wg.Wait()
}
