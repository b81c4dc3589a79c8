// Package supplier builds the startup plan shown to food suppliers: a fuzzy
// catalogue match, a manufacturing process template and a sustainability score.
package supplier

import (
	"strings"

	"github.com/mealsense/mealsense_core/internal/geo"
	"github.com/mealsense/mealsense_core/internal/models"
)

const (
	AdviceLong  = "Process seems long; consider combining adjacent steps."
	AdviceLean  = "Process is leaner. Good start!"
	maxLeanStep = 4
)

// processTemplates maps a category token to its manufacturing steps
var processTemplates = map[string][]string{
	"Rice":   {"Harvesting", "Cleaning", "Milling", "Packaging", "Transport"},
	"Tomato": {"Harvesting", "Grading", "Cooling", "Packaging", "Transport"},
	"Milk":   {"Collection", "Pasteurization", "Packaging", "Distribution"},
}

var defaultSteps = []string{"Step 1", "Step 2", "Step 3"}

// Catalogue is what a plan needs from the food catalogue
type Catalogue interface {
	FuzzyMatch(query string) (string, int)
	Get(food string) (models.FoodRecord, error)
}

// Plan is the supplier startup plan for one product
type Plan struct {
	Query               string             `json:"query"`
	Match               string             `json:"match"`
	Confidence          int                `json:"confidence"`
	Category            string             `json:"category"`
	Food                *models.FoodRecord `json:"food,omitempty"`
	Steps               []string           `json:"steps"`
	Advice              string             `json:"advice"`
	SustainabilityScore *float64           `json:"sustainability_score,omitempty"`
}

// BuildPlan matches name against the catalogue and assembles the plan.
// The template key is the first word of the matched name.
func BuildPlan(c Catalogue, name string) Plan {
	match, confidence := c.FuzzyMatch(name)

	plan := Plan{
		Query:      name,
		Match:      match,
		Confidence: confidence,
		Category:   categoryToken(match),
	}
	plan.Steps = ProcessSteps(plan.Category)
	plan.Advice = Advice(plan.Steps)

	if rec, err := c.Get(match); err == nil {
		plan.Food = &rec
		plan.SustainabilityScore = SustainabilityScore(rec)
	}

	return plan
}

// ProcessSteps returns a copy of the template for category
func ProcessSteps(category string) []string {
	steps, ok := processTemplates[category]
	if !ok {
		steps = defaultSteps
	}
	return append([]string(nil), steps...)
}

// Advice comments on the length of a process
func Advice(steps []string) string {
	if len(steps) > maxLeanStep {
		return AdviceLong
	}
	return AdviceLean
}

// SustainabilityScore is 100 - 10*carbon, rounded to one decimal and clamped
// to [0, 100]. It is nil when the record has no carbon figure.
func SustainabilityScore(rec models.FoodRecord) *float64 {
	if rec.CarbonKgCO2ePerKg == nil {
		return nil
	}
	score := geo.Round(100-*rec.CarbonKgCO2ePerKg*10, 1)
	score = max(0, min(100, score))
	return &score
}

func categoryToken(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
