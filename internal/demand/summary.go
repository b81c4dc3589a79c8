package demand

import (
	"sort"
	"time"

	"github.com/mealsense/mealsense_core/internal/geo"
	"github.com/mealsense/mealsense_core/internal/models"
)

// DefaultTopN is how many foods and destinations a summary lists
const DefaultTopN = 5

// ScoreFunc returns the sustainability score of a food, if known
type ScoreFunc func(food string) (float64, bool)

// Summarize aggregates entries as of now. Entries whose timestamp does not parse
// still count towards the total. score may be nil.
func Summarize(entries []models.DemandLogEntry, now time.Time, topN int, score ScoreFunc) models.DemandSummary {
	if topN <= 0 {
		topN = DefaultTopN
	}
	cutoff := now.Add(-7 * 24 * time.Hour)

	foods := make(map[string]int)
	destinations := make(map[string]int)
	lastWeek := 0

	for _, e := range entries {
		foods[e.Food]++
		destinations[e.Destination]++

		if ts, err := time.Parse(TimestampLayout, e.Timestamp); err == nil && !ts.Before(cutoff) && !ts.After(now) {
			lastWeek++
		}
	}

	return models.DemandSummary{
		Total:                  len(entries),
		LastSevenDays:          lastWeek,
		TopFoods:               topCounts(foods, topN),
		TopDestinations:        topCounts(destinations, topN),
		AvgSustainabilityScore: AverageScore(foods, score),
		GeneratedAt:            now.UTC(),
	}
}

// AverageScore is the request-weighted mean score over foods with a known score,
// rounded to one decimal. It is nil when no requested food has a score.
func AverageScore(foodCounts map[string]int, score ScoreFunc) *float64 {
	if score == nil {
		return nil
	}

	sum, n := 0.0, 0
	for food, count := range foodCounts {
		if s, ok := score(food); ok {
			sum += s * float64(count)
			n += count
		}
	}
	if n == 0 {
		return nil
	}

	avg := geo.Round(sum/float64(n), 1)
	return &avg
}

// topCounts orders by count descending, then key ascending
func topCounts(counts map[string]int, n int) []models.DemandCount {
	out := make([]models.DemandCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, models.DemandCount{Key: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
