package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	FormatJSON  = "json"
	FormatCSV   = "csv"
	FormatExcel = "xlsx"
)

type fileSink struct {
	dir     string
	formats []string
}

// NewFile exports every report into dir, once per format. No formats means json.
func NewFile(dir string, formats []string) (Sink, error) {
	if len(formats) == 0 {
		formats = []string{FormatJSON}
	}
	for _, f := range formats {
		switch f {
		case FormatJSON, FormatCSV, FormatExcel:
		default:
			return nil, fmt.Errorf("unsupported report format: %s", f)
		}
	}
	return &fileSink{dir: dir, formats: formats}, nil
}

func (s *fileSink) Name() string { return "file:" + strings.Join(s.formats, ",") }

// Filename is the base name (without extension) used for r's exports.
func Filename(r *Report) string {
	id := r.RunID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s_report_%s_%s", r.Op, r.StartedAt.Format("20060102_150405"), id)
}

func (s *fileSink) Push(_ context.Context, r *Report) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	base := filepath.Join(s.dir, Filename(r))
	for _, f := range s.formats {
		var (
			data []byte
			err  error
		)
		switch f {
		case FormatJSON:
			data, err = json.MarshalIndent(r, "", "  ")
		case FormatCSV:
			data, err = exportCSV(r)
		case FormatExcel:
			data, err = exportExcel(r)
		}
		if err != nil {
			return fmt.Errorf("export %s: %w", f, err)
		}
		if err := os.WriteFile(base+"."+f, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// exportCSV writes one row per change and per error, prefixed by the counts.
func exportCSV(r *Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"Type", "ID", "URL", "Field", "From", "To", "Message"}); err != nil {
		return nil, err
	}
	summary := r.Summary()
	for _, k := range summaryKeys() {
		if err := w.Write([]string{"count", "", "", k, "", fmt.Sprint(summary[k]), ""}); err != nil {
			return nil, err
		}
	}
	for _, k := range r.ReasonKeys() {
		if err := w.Write([]string{"reason", "", "", k, "", fmt.Sprint(r.Reasons[k]), ""}); err != nil {
			return nil, err
		}
	}
	for _, c := range r.Changes {
		if err := w.Write([]string{"change", c.ID, "", c.Field, c.From, c.To, ""}); err != nil {
			return nil, err
		}
	}
	for _, e := range r.Errors {
		if err := w.Write([]string{"error", e.ID, e.URL, "", "", "", e.Message}); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// exportExcel lays the report out over three sheets: Summary, Changes, Errors.
func exportExcel(r *Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const summary = "Summary"
	index, err := f.NewSheet(summary)
	if err != nil {
		return nil, err
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	rows := [][]any{
		{"Run ID", r.RunID},
		{"Operation", r.Op},
		{"Started", r.StartedAt.Format("2006-01-02 15:04:05")},
		{"Finished", r.FinishedAt.Format("2006-01-02 15:04:05")},
	}
	counts := r.Summary()
	for _, k := range summaryKeys() {
		rows = append(rows, []any{k, counts[k]})
	}
	for _, k := range r.ReasonKeys() {
		rows = append(rows, []any{"reason: " + k, r.Reasons[k]})
	}
	if err := writeRows(f, summary, rows); err != nil {
		return nil, err
	}

	changes := [][]any{{"ID", "Field", "From", "To"}}
	for _, c := range r.Changes {
		changes = append(changes, []any{c.ID, c.Field, c.From, c.To})
	}
	if _, err := f.NewSheet("Changes"); err != nil {
		return nil, err
	}
	if err := writeRows(f, "Changes", changes); err != nil {
		return nil, err
	}

	errs := [][]any{{"ID", "URL", "Message"}}
	for _, e := range r.Errors {
		errs = append(errs, []any{e.ID, e.URL, e.Message})
	}
	if _, err := f.NewSheet("Errors"); err != nil {
		return nil, err
	}
	if err := writeRows(f, "Errors", errs); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
