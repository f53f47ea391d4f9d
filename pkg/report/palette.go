package report

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/traceqa/backend/pkg/testcases"
)

const (
	colorHeader = "366092"
	colorGreen  = "C6EFCE"
	colorRed    = "FFC7CE"
	colorYellow = "FFEB9C"
)

// Palette maps cell values to fill colors (RGB hex, no leading '#').
type Palette struct {
	Header     string            `json:"header,omitempty"`
	TestTypes  map[string]string `json:"test_types,omitempty"`
	Priorities map[string]string `json:"priorities,omitempty"`
}

// DefaultPalette shades High priority like negative cases and Low priority like
// positive cases.
func DefaultPalette() Palette {
	return Palette{
		Header: colorHeader,
		TestTypes: map[string]string{
			testcases.TypePositive: colorGreen,
			testcases.TypeNegative: colorRed,
			testcases.TypeEdge:     colorYellow,
		},
		Priorities: map[string]string{
			testcases.PriorityHigh:   colorRed,
			testcases.PriorityMedium: colorYellow,
			testcases.PriorityLow:    colorGreen,
		},
	}
}

// LoadPalette reads a YAML or JSON palette and merges it over DefaultPalette.
// An empty path yields the defaults.
func LoadPalette(path string) (Palette, error) {
	palette := DefaultPalette()
	if path == "" {
		return palette, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return palette, fmt.Errorf("failed to read palette %s: %w", path, err)
	}
	var override Palette
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return palette, fmt.Errorf("failed to unmarshal palette %s: %w", path, err)
	}
	return palette.merge(override), nil
}

func (p Palette) merge(override Palette) Palette {
	if override.Header != "" {
		p.Header = override.Header
	}
	for value, color := range override.TestTypes {
		p.TestTypes[value] = color
	}
	for value, color := range override.Priorities {
		p.Priorities[value] = color
	}
	return p
}

// fill returns the color for a cell in the given column, if any.
func (p Palette) fill(column int, value string) (string, bool) {
	var colors map[string]string
	switch column {
	case testcases.ColumnTestType:
		colors = p.TestTypes
	case testcases.ColumnPriority:
		colors = p.Priorities
	default:
		return "", false
	}
	color, ok := colors[value]
	return color, ok && color != ""
}
