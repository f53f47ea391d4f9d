package report

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/traceqa/backend/pkg/testcases"
)

const (
	// CasesSheet holds one row per test case.
	CasesSheet = "Test Cases"
	// SummarySheet holds the aggregate counts.
	SummarySheet = "Summary"

	// TimestampLayout is used for the generation timestamp.
	TimestampLayout = "2006-01-02 15:04:05"

	maxColumnWidth = 50
	columnPadding  = 2
	summaryTitle   = "Test Case Summary"
	summaryFirst   = 3
)

// Builder renders test case records into an xlsx workbook.
type Builder struct {
	palette Palette
	now     func() time.Time
}

type Option func(*Builder)

// WithClock overrides the clock used for default dates and the summary timestamp.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

func NewBuilder(palette Palette, opts ...Option) *Builder {
	b := &Builder{palette: palette, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build renders records into a workbook and returns its serialized bytes.
// No bytes are returned if any step fails.
func (b *Builder) Build(records []testcases.Record) ([]byte, error) {
	now := b.now()
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close workbook")
		}
	}()

	if err := f.SetSheetName(f.GetSheetName(0), CasesSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	w := &sheetWriter{file: f, sheet: CasesSheet, styles: map[string]int{}}
	if err := w.writeCases(records, b.palette, now); err != nil {
		return nil, fmt.Errorf("failed to write test cases: %w", err)
	}
	if err := writeSummary(f, Summarize(records, now)); err != nil {
		return nil, fmt.Errorf("failed to write summary: %w", err)
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

type sheetWriter struct {
	file   *excelize.File
	sheet  string
	styles map[string]int
}

func (w *sheetWriter) writeCases(records []testcases.Record, palette Palette, now time.Time) error {
	widths := make([]int, len(testcases.Columns))

	headerStyle, err := w.file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{palette.Header}},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	for col, header := range testcases.Headers() {
		if err := w.set(col, 1, header, headerStyle); err != nil {
			return err
		}
		widths[col] = utf8.RuneCountInString(header)
	}

	for i, record := range records {
		row := i + 2
		for col, value := range testcases.Row(record, now) {
			color, _ := palette.fill(col, value)
			style, err := w.bodyStyle(color)
			if err != nil {
				return err
			}
			if err := w.set(col, row, value, style); err != nil {
				return err
			}
			if n := utf8.RuneCountInString(value); n > widths[col] {
				widths[col] = n
			}
		}
	}

	for col, width := range widths {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		if err := w.file.SetColWidth(w.sheet, name, name, columnWidth(width)); err != nil {
			return fmt.Errorf("failed to size column %s: %w", name, err)
		}
	}
	return nil
}

func columnWidth(longest int) float64 {
	width := longest + columnPadding
	if width > maxColumnWidth {
		width = maxColumnWidth
	}
	return float64(width)
}

// bodyStyle returns a wrapped, top-aligned style with an optional fill, creating
// each distinct style once per workbook.
func (w *sheetWriter) bodyStyle(color string) (int, error) {
	if id, ok := w.styles[color]; ok {
		return id, nil
	}
	style := &excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	}
	if color != "" {
		style.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}}
	}
	id, err := w.file.NewStyle(style)
	if err != nil {
		return 0, fmt.Errorf("failed to create style for fill %q: %w", color, err)
	}
	w.styles[color] = id
	return id, nil
}

func (w *sheetWriter) set(col, row int, value string, style int) error {
	cell, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return err
	}
	if err := w.file.SetCellStr(w.sheet, cell, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", cell, err)
	}
	return w.file.SetCellStyle(w.sheet, cell, cell, style)
}

func writeSummary(f *excelize.File, summary Summary) error {
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return err
	}
	if err := f.SetCellStr(SummarySheet, "A1", summaryTitle); err != nil {
		return err
	}
	titleStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 16}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SummarySheet, "A1", "A1", titleStyle); err != nil {
		return err
	}
	for i, row := range summary.rows() {
		line := summaryFirst + i
		if err := f.SetCellValue(SummarySheet, fmt.Sprintf("A%d", line), row.label); err != nil {
			return err
		}
		if err := f.SetCellValue(SummarySheet, fmt.Sprintf("B%d", line), row.value); err != nil {
			return err
		}
	}
	return nil
}
