package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mealsense/mealsense_core/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS demand_log (
	id          BIGSERIAL PRIMARY KEY,
	logged_at   TIMESTAMPTZ NOT NULL,
	food        TEXT NOT NULL,
	origin      TEXT NOT NULL,
	destination TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS demand_log_logged_at_idx ON demand_log (logged_at);
CREATE INDEX IF NOT EXISTS demand_log_food_idx ON demand_log (food);
`

// DemandStore mirrors the demand log into Postgres for SQL-side aggregation.
// It satisfies demand.Sink.
type DemandStore struct {
	pool *pgxpool.Pool
}

// NewDemandStore wraps pool
func NewDemandStore(pool *pgxpool.Pool) *DemandStore {
	return &DemandStore{pool: pool}
}

// EnsureSchema creates the demand_log table if needed
func (s *DemandStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create demand_log schema: %w", err)
	}
	return nil
}

func (s *DemandStore) Name() string { return "postgres" }

// Record inserts one entry
func (s *DemandStore) Record(ctx context.Context, entry models.DemandLogEntry) error {
	loggedAt, err := time.Parse(time.RFC3339, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("invalid entry timestamp %q: %w", entry.Timestamp, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO demand_log (logged_at, food, origin, destination) VALUES ($1, $2, $3, $4)`,
		loggedAt, entry.Food, entry.Origin, entry.Destination,
	)
	if err != nil {
		return fmt.Errorf("failed to insert demand entry: %w", err)
	}
	return nil
}

// Summary aggregates the mirrored entries as of now.
// AvgSustainabilityScore is left for the caller, which owns the catalogue.
func (s *DemandStore) Summary(ctx context.Context, now time.Time, topN int) (models.DemandSummary, error) {
	summary := models.DemandSummary{GeneratedAt: now.UTC()}

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE logged_at >= $1 AND logged_at <= $2)
		FROM demand_log
	`, now.Add(-7*24*time.Hour), now).Scan(&summary.Total, &summary.LastSevenDays)
	if err != nil {
		return models.DemandSummary{}, fmt.Errorf("failed to count demand: %w", err)
	}

	summary.TopFoods, err = s.topBy(ctx, "food", topN)
	if err != nil {
		return models.DemandSummary{}, err
	}
	summary.TopDestinations, err = s.topBy(ctx, "destination", topN)
	if err != nil {
		return models.DemandSummary{}, err
	}

	return summary, nil
}

// FoodCounts returns per-food request counts, used to weight sustainability scores
func (s *DemandStore) FoodCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT food, COUNT(*) FROM demand_log GROUP BY food`)
	if err != nil {
		return nil, fmt.Errorf("failed to count foods: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var food string
		var n int
		if err := rows.Scan(&food, &n); err != nil {
			return nil, fmt.Errorf("failed to scan food count: %w", err)
		}
		counts[food] = n
	}
	return counts, rows.Err()
}

// column is always one of the two literals passed by Summary
func (s *DemandStore) topBy(ctx context.Context, column string, n int) ([]models.DemandCount, error) {
	query := fmt.Sprintf(`
		SELECT %[1]s, COUNT(*) AS n
		FROM demand_log
		GROUP BY %[1]s
		ORDER BY n DESC, %[1]s ASC
		LIMIT $1
	`, column)

	rows, err := s.pool.Query(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query top %s: %w", column, err)
	}
	defer rows.Close()

	out := []models.DemandCount{}
	for rows.Next() {
		var c models.DemandCount
		if err := rows.Scan(&c.Key, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
