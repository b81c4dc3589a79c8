package catalogue

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mealsense/mealsense_core/internal/models"
	"github.com/xuri/excelize/v2"
)

// Recognised header names
const (
	colFood        = "Food"
	colOriginState = "Origin State"
	colCategory    = "Category"
	colOriginLat   = "Origin Lat"
	colOriginLon   = "Origin Lon"
	colCost        = "Cost_INR_per_kg"
	colCarbon      = "Carbon_kgCO2e_per_kg"
	colWater       = "Water_liters_per_kg"
	colCalories    = "Calories_per_100g"
	colProtein     = "Protein_g"
	colCarbs       = "Carbs_g"
	colFat         = "Fat_g"
	colDistance    = "Distance_km"
)

// LoadError is returned when a catalogue file cannot be turned into a Catalogue
type LoadError struct {
	Path   string
	Row    int // 1-based file row, 0 when not row specific
	Column string
	Err    error
}

func (e *LoadError) Error() string {
	switch {
	case e.Row > 0 && e.Column != "":
		return fmt.Sprintf("catalogue %s: row %d, column %q: %v", e.Path, e.Row, e.Column, e.Err)
	case e.Row > 0:
		return fmt.Sprintf("catalogue %s: row %d: %v", e.Path, e.Row, e.Err)
	default:
		return fmt.Sprintf("catalogue %s: %v", e.Path, e.Err)
	}
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load reads a catalogue from a CSV or XLSX file with a header row
func Load(path string) (*Catalogue, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return loadXLSX(path)
	default:
		return loadCSV(path)
	}
}

func loadCSV(path string) (*Catalogue, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer file.Close()

	return parseFromReader(path, file)
}

// parseFromReader parses CSV content; name is only used in errors
func parseFromReader(name string, reader io.Reader) (*Catalogue, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return nil, &LoadError{Path: name, Row: parseErr.StartLine, Err: parseErr.Err}
			}
			return nil, &LoadError{Path: name, Err: err}
		}
		rows = append(rows, record)
	}

	return fromRows(name, rows)
}

func loadXLSX(path string) (*Catalogue, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &LoadError{Path: path, Err: errors.New("workbook has no sheets")}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)}
	}

	return fromRows(path, rows)
}

// fromRows builds a Catalogue from a header row followed by data rows
func fromRows(name string, rows [][]string) (*Catalogue, error) {
	if len(rows) == 0 {
		return nil, &LoadError{Path: name, Err: errors.New("missing header row")}
	}

	colMap := makeColumnMap(rows[0])
	if _, ok := colMap[colFood]; !ok {
		return nil, &LoadError{Path: name, Row: 1, Column: colFood, Err: errors.New("required column missing")}
	}

	records := make([]models.FoodRecord, 0, len(rows)-1)
	for i, record := range rows[1:] {
		rowNum := i + 2
		if isBlankRow(record) {
			continue
		}

		food, err := parseRecord(record, colMap)
		if err != nil {
			var fieldErr *fieldError
			if errors.As(err, &fieldErr) {
				return nil, &LoadError{Path: name, Row: rowNum, Column: fieldErr.column, Err: fieldErr.err}
			}
			return nil, &LoadError{Path: name, Row: rowNum, Err: err}
		}
		records = append(records, food)
	}

	c, err := New(records)
	if err != nil {
		return nil, &LoadError{Path: name, Err: err}
	}
	return c, nil
}

type fieldError struct {
	column string
	err    error
}

func (e *fieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.column, e.err)
}

func parseRecord(record []string, colMap map[string]int) (models.FoodRecord, error) {
	food := models.FoodRecord{
		Food:        getField(record, colMap, colFood),
		Category:    getField(record, colMap, colCategory),
		OriginState: getField(record, colMap, colOriginState),
	}
	if food.Food == "" {
		return food, &fieldError{column: colFood, err: errors.New("food name is blank")}
	}

	numeric := []struct {
		column   string
		dest     **float64
		min, max float64
	}{
		{colOriginLat, &food.OriginLat, -90, 90},
		{colOriginLon, &food.OriginLon, -180, 180},
		{colCost, &food.CostINRPerKg, 0, math.Inf(1)},
		{colCarbon, &food.CarbonKgCO2ePerKg, 0, math.Inf(1)},
		{colWater, &food.WaterLPerKg, 0, math.Inf(1)},
		{colCalories, &food.CaloriesPer100g, 0, math.Inf(1)},
		{colProtein, &food.ProteinG, 0, math.Inf(1)},
		{colCarbs, &food.CarbsG, 0, math.Inf(1)},
		{colFat, &food.FatG, 0, math.Inf(1)},
		{colDistance, &food.DistanceKmTemplate, 0, math.Inf(1)},
	}

	for _, n := range numeric {
		v, err := parseOptionalFloat(getField(record, colMap, n.column))
		if err != nil {
			return food, &fieldError{column: n.column, err: err}
		}
		if v != nil && (*v < n.min || *v > n.max) {
			return food, &fieldError{column: n.column, err: fmt.Errorf("value %v out of range [%v, %v]", *v, n.min, n.max)}
		}
		*n.dest = v
	}

	return food, nil
}

// parseOptionalFloat treats blank and NaN-like cells as missing
func parseOptionalFloat(s string) (*float64, error) {
	switch strings.ToLower(s) {
	case "", "nan", "na", "n/a", "null":
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	return &v, nil
}

func makeColumnMap(header []string) map[string]int {
	colMap := make(map[string]int)
	for i, col := range header {
		col = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
		colMap[col] = i
	}
	return colMap
}

func getField(record []string, colMap map[string]int, fieldName string) string {
	if idx, ok := colMap[fieldName]; ok && idx < len(record) {
		return strings.TrimSpace(record[idx])
	}
	return ""
}

func isBlankRow(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
