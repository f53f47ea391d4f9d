package report

import (
	"time"

	"github.com/traceqa/backend/pkg/testcases"
)

// Summary aggregates a record set for the summary sheet.
type Summary struct {
	Total       int
	Positive    int
	Negative    int
	Edge        int
	High        int
	Medium      int
	Low         int
	GeneratedAt time.Time
}

// Summarize counts records by their resolved test type and priority, so a record
// without a test type counts as positive. Unrecognized values are not bucketed.
func Summarize(records []testcases.Record, now time.Time) Summary {
	summary := Summary{Total: len(records), GeneratedAt: now}
	typeColumn := testcases.Columns[testcases.ColumnTestType]
	priorityColumn := testcases.Columns[testcases.ColumnPriority]
	for _, record := range records {
		switch typeColumn.Resolve(record, now) {
		case testcases.TypePositive:
			summary.Positive++
		case testcases.TypeNegative:
			summary.Negative++
		case testcases.TypeEdge:
			summary.Edge++
		}
		switch priorityColumn.Resolve(record, now) {
		case testcases.PriorityHigh:
			summary.High++
		case testcases.PriorityMedium:
			summary.Medium++
		case testcases.PriorityLow:
			summary.Low++
		}
	}
	return summary
}

type summaryRow struct {
	label string
	value interface{}
}

func (s Summary) rows() []summaryRow {
	return []summaryRow{
		{"Total Test Cases", s.Total},
		{"Positive Cases", s.Positive},
		{"Negative Cases", s.Negative},
		{"Edge Cases", s.Edge},
		{"High Priority", s.High},
		{"Medium Priority", s.Medium},
		{"Low Priority", s.Low},
		{"Generated Date", s.GeneratedAt.Format(TimestampLayout)},
	}
}
