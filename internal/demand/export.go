package demand

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/mealsense/mealsense_core/internal/models"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Summary"
	entriesSheet = "Entries"
)

// WriteXLSX writes a two-sheet supplier report: the summary and the raw entries
func WriteXLSX(w io.Writer, summary models.DemandSummary, entries []models.DemandLogEntry) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}
	if _, err := f.NewSheet(entriesSheet); err != nil {
		return fmt.Errorf("failed to create entries sheet: %w", err)
	}

	avg := "n/a"
	if summary.AvgSustainabilityScore != nil {
		avg = fmt.Sprintf("%.1f", *summary.AvgSustainabilityScore)
	}

	rows := [][]interface{}{
		{"Generated at", summary.GeneratedAt.Format(TimestampLayout)},
		{"Total requests", summary.Total},
		{"Requests (last 7 days)", summary.LastSevenDays},
		{"Avg sustainability score", avg},
		{},
		{"Top foods", "Requests"},
	}
	for _, c := range summary.TopFoods {
		rows = append(rows, []interface{}{c.Key, c.Count})
	}
	rows = append(rows, []interface{}{}, []interface{}{"Top destinations", "Requests"})
	for _, c := range summary.TopDestinations {
		rows = append(rows, []interface{}{c.Key, c.Count})
	}
	if err := writeRows(f, summarySheet, rows); err != nil {
		return err
	}

	entryRows := make([][]interface{}, 0, len(entries)+1)
	entryRows = append(entryRows, []interface{}{"Timestamp", "Food", "Origin", "Destination"})
	for _, e := range entries {
		entryRows = append(entryRows, []interface{}{e.Timestamp, e.Food, e.Origin, e.Destination})
	}
	if err := writeRows(f, entriesSheet, entryRows); err != nil {
		return err
	}

	if err := f.SetColWidth(summarySheet, "A", "A", 28); err != nil {
		return err
	}
	if err := f.SetColWidth(entriesSheet, "A", "D", 24); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// WriteArchive writes entries as a zstd-compressed JSON array in the log's own format
func WriteArchive(w io.Writer, entries []models.DemandLogEntry) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		enc.Close()
		return fmt.Errorf("failed to encode entries: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		return fmt.Errorf("failed to compress entries: %w", err)
	}
	return enc.Close()
}

// ReadArchive decodes an archive written by WriteArchive
func ReadArchive(r io.Reader) ([]models.DemandLogEntry, error) {
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer dec.Close()

	var entries []models.DemandLogEntry
	if err := json.NewDecoder(dec).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode archive: %w", err)
	}
	return entries, nil
}
