package testcases

import (
	"fmt"
	"strings"
	"time"
)

// Record is a single generated test case. Its keys vary between the structured
// format and the legacy formats emitted by older generators, so it is kept as a
// loosely typed map and resolved through Column definitions.
type Record map[string]interface{}

const (
	TypePositive = "positive"
	TypeNegative = "negative"
	TypeEdge     = "edge"

	PriorityHigh   = "High"
	PriorityMedium = "Medium"
	PriorityLow    = "Low"

	StatusDraft = "Draft"

	dateLayout = "2006-01-02"
)

// Formatter turns a resolved value into cell text.
type Formatter func(value interface{}) string

// Column describes one positional column of the rendered report.
type Column struct {
	// Header is the text of the header cell.
	Header string
	// Keys are looked up in order; the first key present in the record wins.
	Keys []string
	// Format renders the resolved value. Scalar is used when unset.
	Format Formatter
	// Default produces the value used when none of the keys is present.
	Default func(now time.Time) string
}

func constant(value string) func(time.Time) string {
	return func(time.Time) string { return value }
}

// Column indexes into Columns.
const (
	ColumnName = iota
	ColumnPreconditions
	ColumnSteps
	ColumnExpectedResult
	ColumnActualResult
	ColumnTestType
	ColumnPriority
	ColumnJourney
	ColumnRequirementReference
	ColumnStatus
	ColumnID
	ColumnCreatedDate
)

// Columns is the fixed column set of the test case sheet.
var Columns = []Column{
	{Header: "Test Case Name", Keys: []string{"test_case_name", "name", "title"}},
	{Header: "Preconditions", Keys: []string{"preconditions", "precondition_objective"}, Format: Bulleted},
	{Header: "Steps", Keys: []string{"steps", "test_script"}, Format: Numbered},
	{Header: "Expected Result", Keys: []string{"expected_result", "expected"}, Format: Bulleted},
	{Header: "Actual Result", Keys: []string{"actual_result"}},
	{Header: "Test Type", Keys: []string{"test_type"}, Default: constant(TypePositive)},
	{Header: "Priority", Keys: []string{"priority"}, Default: constant(PriorityMedium)},
	{Header: "Journey", Keys: []string{"journey"}},
	{Header: "Requirement Reference", Keys: []string{"requirement_reference"}},
	{Header: "Status", Keys: []string{"status"}, Default: constant(StatusDraft)},
	{Header: "Test Case ID", Keys: []string{"test_case_id", "key", "test_id"}},
	{Header: "Created Date", Keys: []string{"created_date"}, Default: func(now time.Time) string { return now.Format(dateLayout) }},
}

// Headers returns the header row.
func Headers() []string {
	headers := make([]string, 0, len(Columns))
	for _, column := range Columns {
		headers = append(headers, column.Header)
	}
	return headers
}

// Lookup returns the value stored under the first of keys present in the record.
// A key that is present with a null value still wins over later keys.
func Lookup(record Record, keys ...string) (interface{}, bool) {
	for _, key := range keys {
		if value, ok := record[key]; ok {
			return value, true
		}
	}
	return nil, false
}

// Resolve renders the column for the record.
func (c Column) Resolve(record Record, now time.Time) string {
	value, ok := Lookup(record, c.Keys...)
	if !ok {
		if c.Default != nil {
			return c.Default(now)
		}
		return ""
	}
	format := c.Format
	if format == nil {
		format = Scalar
	}
	return format(value)
}

// Row renders every column of the record in order.
func Row(record Record, now time.Time) []string {
	row := make([]string, 0, len(Columns))
	for _, column := range Columns {
		row = append(row, column.Resolve(record, now))
	}
	return row
}

// Scalar stringifies a value as-is. Null renders as an empty string.
func Scalar(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []interface{}, []string:
		return strings.Join(items(v), ", ")
	default:
		return fmt.Sprint(v)
	}
}

// Numbered renders lists as "1. a\n2. b".
func Numbered(value interface{}) string {
	return flatten(value, func(i int, item string) string {
		return fmt.Sprintf("%d. %s", i+1, item)
	})
}

// Bulleted renders lists as "• a\n• b".
func Bulleted(value interface{}) string {
	return flatten(value, func(_ int, item string) string {
		return "• " + item
	})
}

func flatten(value interface{}, line func(int, string) string) string {
	switch value.(type) {
	case []interface{}, []string:
	default:
		if empty(value) {
			return ""
		}
		return Scalar(value)
	}
	var lines []string
	for i, item := range items(value) {
		lines = append(lines, line(i, item))
	}
	return strings.Join(lines, "\n")
}

func items(value interface{}) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, Scalar(item))
		}
		return out
	}
	return nil
}

// empty mirrors the falsy values the generators emit for "no content".
func empty(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case bool:
		return !v
	case float64:
		return v == 0
	case int:
		return v == 0
	}
	return false
}
