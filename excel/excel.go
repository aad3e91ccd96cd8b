// Package excel reads and writes household spreadsheets.
package excel

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"welfare-server-go/models"
)

const (
	SheetName = "households"
	InfoSheet = "info"
)

// Columns of the households sheet, in export order
var Columns = []string{
	"id",
	"name",
	"address",
	"education",
	"num_children",
	"monthly_income",
	"occupation",
	"classification",
	"image_path",
	"created_at",
}

var columnWidths = map[string]float64{
	"A": 8, "B": 28, "C": 36, "D": 16, "E": 14,
	"F": 18, "G": 30, "H": 16, "I": 40, "J": 20,
}

var (
	ErrMissingColumn = errors.New("required column is missing")
	ErrEmptyFile     = errors.New("excel file has no rows")
	ErrInvalidFile   = errors.New("not a readable xlsx file")
)

// RowError describes a spreadsheet row that could not be imported
type RowError struct {
	Row    int    `json:"row"` // 1-based, as shown by spreadsheet programs
	Reason string `json:"reason"`
}

// Row is a parsed, validated spreadsheet row
type Row struct {
	Number int
	Input  models.HouseholdInput
}

// ImportResult summarises an import run
type ImportResult struct {
	Inserted int        `json:"inserted"`
	Failed   []RowError `json:"failed"`
}

// Export writes households to w as an xlsx workbook. The note, the
// generation time and the row count go to the info sheet.
func Export(w io.Writer, households []models.Household, note string, now time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9D9D9"}},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(Columns))
	if err := f.SetCellStyle(SheetName, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	for col, width := range columnWidths {
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return fmt.Errorf("set width of column %s: %w", col, err)
		}
	}

	for i, h := range households {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			h.ID,
			h.Name,
			h.Address,
			h.Education,
			h.NumChildren,
			h.MonthlyIncome,
			h.Occupation,
			string(h.Classification),
			h.ImagePath,
			h.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if _, err := f.NewSheet(InfoSheet); err != nil {
		return fmt.Errorf("create info sheet: %w", err)
	}
	info := [][]interface{}{
		{"Catatan", note},
		{"Dibuat", now.Format("2006-01-02 15:04:05")},
		{"Jumlah data", len(households)},
	}
	for i, row := range info {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(InfoSheet, cell, &row); err != nil {
			return fmt.Errorf("write info row: %w", err)
		}
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Parse reads households from the first sheet of the workbook in r.
//
// The first row is the header; columns are matched by name, in any order
// and case. Only "name" is required. Empty cells take the import defaults.
// Rows that fail to parse or validate are returned as RowErrors; the rest
// are returned as Rows.
func Parse(r io.Reader) ([]Row, []RowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, nil, fmt.Errorf("%w: no sheets", ErrInvalidFile)
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get rows from sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil, ErrEmptyFile
	}

	cols := headerIndex(rows[0])
	if _, ok := cols["name"]; !ok {
		return nil, nil, fmt.Errorf("%w: name", ErrMissingColumn)
	}

	var (
		parsed []Row
		failed []RowError
	)
	for i, cells := range rows[1:] {
		number := i + 2
		if blank(cells) {
			continue
		}

		in, err := parseRow(cols, cells)
		if err == nil {
			err = models.Validate(in)
		}
		if err != nil {
			failed = append(failed, RowError{Row: number, Reason: models.ValidationMessage(err)})
			continue
		}
		parsed = append(parsed, Row{Number: number, Input: in})
	}
	return parsed, failed, nil
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := idx[key]; key != "" && !dup {
			idx[key] = i
		}
	}
	return idx
}

func parseRow(cols map[string]int, cells []string) (models.HouseholdInput, error) {
	get := func(col string) string {
		i, ok := cols[col]
		if !ok || i >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[i])
	}

	in := models.HouseholdInput{
		Name:       get("name"),
		Address:    get("address"),
		Education:  orDefault(get("education"), models.DefaultEducation),
		Occupation: orDefault(get("occupation"), models.DefaultOccupation),
	}

	if v := get("num_children"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || n != math.Trunc(n) {
			return in, fmt.Errorf("num_children %q is not a whole number", v)
		}
		in.NumChildren = int(n)
	}
	if v := get("monthly_income"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return in, fmt.Errorf("monthly_income %q is not a number", v)
		}
		in.MonthlyIncome = n
	}
	return in, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
