// Package ingest reads study data files into participant records. It
// handles both CSV and XLSX inputs with shared row processing, validates
// the required columns up front, and corrects reverse-coded items before
// anything downstream sees them.
package ingest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/derekpowell/cava-rep/domain/core"
	"github.com/derekpowell/cava-rep/domain/dataset"
	"github.com/derekpowell/cava-rep/internal/logging"
)

// Schema names the columns a study file must provide and how to interpret
// them. Item columns are discovered from headers by the _pre/_post suffix
// convention; the suffix is stripped to produce the item label.
type Schema struct {
	IDColumn        string
	ConditionColumn string
	EligibleColumn  string
	ReturnedColumn  string
	ExcludedColumn  string
	PretestColumn   string
	PosttestColumn  string

	// ReverseCoded lists item labels whose scores are reflected
	// (lo+hi-x) during ingestion.
	ReverseCoded []string

	// Bounds is the closed response scale; scores outside it are a data
	// error.
	Bounds dataset.ScaleBounds
}

// DefaultSchema matches the study export layout.
func DefaultSchema() Schema {
	return Schema{
		IDColumn:        "participant",
		ConditionColumn: "condition",
		EligibleColumn:  "eligible",
		ReturnedColumn:  "returned",
		ExcludedColumn:  "excluded",
		PretestColumn:   "pretest",
		PosttestColumn:  "posttest",
		Bounds:          dataset.DefaultBounds,
	}
}

const (
	preSuffix  = "_pre"
	postSuffix = "_post"
)

// DataReader reads participant records from Excel and CSV files.
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	sheet    string
	schema   Schema
	log      *logging.Logger
}

// NewDataReader creates a reader for the given file; the extension decides
// the format.
func NewDataReader(filePath, sheet string, schema Schema) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &DataReader{
		filePath: filePath,
		fileType: fileType,
		sheet:    sheet,
		schema:   schema,
		log:      logging.NewDefaultLogger(),
	}
}

// Read loads the file and returns one record per participant row.
func (r *DataReader) Read() ([]dataset.Participant, error) {
	r.log.Info("reading %s file: %s", r.fileType, r.filePath)

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("data file not found: %s", r.filePath)
	}

	var rows [][]string
	var err error
	switch r.fileType {
	case "csv":
		rows, err = r.readCSVRows()
	case "xlsx":
		rows, err = r.readExcelRows()
	default:
		return nil, fmt.Errorf("unsupported file type: %s", r.fileType)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: file must have a header row and at least one data row", core.ErrEmptyData)
	}

	participants, err := r.processRows(rows)
	if err != nil {
		return nil, err
	}
	r.log.Info("read %d participant rows", len(participants))
	return participants, nil
}

func (r *DataReader) readCSVRows() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return rows, nil
}

func (r *DataReader) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(r.sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", r.sheet, err)
	}
	return rows, nil
}

// processRows converts raw string rows into participant records. The first
// row is the header; every required column must be present, and every item
// column pair (_pre and _post) contributes one item label.
func (r *DataReader) processRows(rows [][]string) ([]dataset.Participant, error) {
	header := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}

	required := []string{
		r.schema.IDColumn, r.schema.ConditionColumn,
		r.schema.EligibleColumn, r.schema.ReturnedColumn, r.schema.ExcludedColumn,
		r.schema.PretestColumn, r.schema.PosttestColumn,
	}
	cols := make(map[string]int, len(required))
	for _, name := range required {
		idx, ok := header[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", core.ErrMissingColumn, name)
		}
		cols[name] = idx
	}

	preItems, postItems := itemColumns(rows[0])
	for item := range preItems {
		if _, ok := postItems[item]; !ok {
			return nil, fmt.Errorf("%w: %q has no %s column", core.ErrMissingColumn, item, postSuffix)
		}
	}
	for item := range postItems {
		if _, ok := preItems[item]; !ok {
			return nil, fmt.Errorf("%w: %q has no %s column", core.ErrMissingColumn, item, preSuffix)
		}
	}

	reversed := make(map[string]bool, len(r.schema.ReverseCoded))
	for _, item := range r.schema.ReverseCoded {
		reversed[item] = true
	}

	participants := make([]dataset.Participant, 0, len(rows)-1)
	for rowIdx, row := range rows[1:] {
		p := dataset.Participant{
			ID:        core.ParticipantID(cell(row, cols[r.schema.IDColumn])),
			Condition: dataset.Condition(cell(row, cols[r.schema.ConditionColumn])),
			PreItems:  make(map[string]float64, len(preItems)),
			PostItems: make(map[string]float64, len(postItems)),
		}
		if p.ID == "" {
			return nil, fmt.Errorf("row %d: empty participant id", rowIdx+2)
		}

		var err error
		if p.Eligible, err = parseFlag(cell(row, cols[r.schema.EligibleColumn])); err != nil {
			return nil, rowError(rowIdx, r.schema.EligibleColumn, err)
		}
		if p.Returned, err = parseFlag(cell(row, cols[r.schema.ReturnedColumn])); err != nil {
			return nil, rowError(rowIdx, r.schema.ReturnedColumn, err)
		}
		if p.Excluded, err = parseFlag(cell(row, cols[r.schema.ExcludedColumn])); err != nil {
			return nil, rowError(rowIdx, r.schema.ExcludedColumn, err)
		}
		if p.Pretest, err = r.compositeScore(cell(row, cols[r.schema.PretestColumn]), r.schema.PretestColumn); err != nil {
			return nil, rowError(rowIdx, r.schema.PretestColumn, err)
		}
		if p.Posttest, err = r.compositeScore(cell(row, cols[r.schema.PosttestColumn]), r.schema.PosttestColumn); err != nil {
			return nil, rowError(rowIdx, r.schema.PosttestColumn, err)
		}

		for item, idx := range preItems {
			v, err := r.itemScore(cell(row, idx), item, reversed[item])
			if err != nil {
				return nil, rowError(rowIdx, item+preSuffix, err)
			}
			p.PreItems[item] = v
		}
		for item, idx := range postItems {
			v, err := r.itemScore(cell(row, idx), item, reversed[item])
			if err != nil {
				return nil, rowError(rowIdx, item+postSuffix, err)
			}
			p.PostItems[item] = v
		}

		participants = append(participants, p)
	}
	return participants, nil
}

// compositeScore parses a pre-computed composite (mean of item scores) and
// checks it against the scale bounds. A mean of in-range items is in range,
// so a violation here means the column itself is corrupt.
func (r *DataReader) compositeScore(raw, column string) (float64, error) {
	v, err := parseScore(raw)
	if err != nil {
		return 0, err
	}
	if !r.schema.Bounds.Contains(v) {
		return 0, core.NewOutOfRangeError(column, v, r.schema.Bounds.Lower, r.schema.Bounds.Upper)
	}
	return v, nil
}

// itemScore parses one item response, reflects it when the item is
// reverse-coded, and checks it against the scale bounds.
func (r *DataReader) itemScore(raw, item string, reverse bool) (float64, error) {
	v, err := parseScore(raw)
	if err != nil {
		return 0, err
	}
	if reverse {
		v = r.schema.Bounds.Reflect(v)
	}
	if !r.schema.Bounds.Contains(v) {
		return 0, core.NewOutOfRangeError(item, v, r.schema.Bounds.Lower, r.schema.Bounds.Upper)
	}
	return v, nil
}

// itemColumns scans the header for _pre/_post suffixed columns and maps
// item label to column index for each phase.
func itemColumns(header []string) (pre, post map[string]int) {
	pre = make(map[string]int)
	post = make(map[string]int)
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.HasSuffix(name, preSuffix):
			pre[strings.TrimSuffix(name, preSuffix)] = i
		case strings.HasSuffix(name, postSuffix):
			post[strings.TrimSuffix(name, postSuffix)] = i
		}
	}
	return pre, post
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseFlag(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "y":
		return true, nil
	case "0", "false", "no", "n", "":
		return false, nil
	}
	return false, fmt.Errorf("cannot interpret %q as a flag", raw)
}

func parseScore(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot interpret %q as a score", raw)
	}
	return v, nil
}

func rowError(rowIdx int, column string, err error) error {
	// +2: header row plus 1-based numbering
	return fmt.Errorf("row %d, column %q: %w", rowIdx+2, column, err)
}
