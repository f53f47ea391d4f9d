package testhelper

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pmezard/go-difflib/difflib"
	"sigs.k8s.io/yaml"
)

const fixturePrefix = "zz_fixture_"

type Options struct {
	Prefix    string
	Extension string
}

type Option func(*Options)

func WithPrefix(prefix string) Option {
	return func(o *Options) {
		o.Prefix = prefix
	}
}

// WithExtension stores the fixture with the given extension instead of .yaml.
func WithExtension(extension string) Option {
	return func(o *Options) {
		o.Extension = extension
	}
}

// EquateErrorMessage reports errors to be equal if both are nil or both have the same message.
var EquateErrorMessage = cmp.FilterValues(func(x, y interface{}) bool {
	_, ok1 := x.(error)
	_, ok2 := y.(error)
	return ok1 && ok2
}, cmp.Comparer(func(x, y interface{}) bool {
	xe, ye := x.(error), y.(error)
	if xe == nil || ye == nil {
		return xe == nil && ye == nil
	}
	return xe.Error() == ye.Error()
}))

// CompareWithFixture compares output with testdata/zz_fixture_<prefix><test name><extension>.
// Strings and byte slices are compared as they are, anything else as yaml.
// Running with UPDATE set rewrites the fixture.
func CompareWithFixture(t *testing.T, output interface{}, opts ...Option) {
	t.Helper()
	options := &Options{Extension: ".yaml"}
	for _, opt := range opts {
		opt(options)
	}

	actual := serialize(t, output)
	golden := fixturePath(options.Prefix+t.Name(), options.Extension)
	if os.Getenv("UPDATE") != "" {
		if err := os.MkdirAll(filepath.Dir(golden), 0755); err != nil {
			t.Fatalf("failed to create %s: %v", filepath.Dir(golden), err)
		}
		if err := os.WriteFile(golden, actual, 0644); err != nil {
			t.Fatalf("failed to update %s: %v", golden, err)
		}
	}
	expected, err := os.ReadFile(golden)
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(expected)),
		B:        difflib.SplitLines(string(actual)),
		FromFile: "Fixture",
		ToFile:   "Current",
		Context:  3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff != "" {
		t.Errorf("output differs from %s:\n%s\n\nRun the test with UPDATE=true if the change is intended.", filepath.Base(golden), diff)
	}
}

func serialize(t *testing.T, output interface{}) []byte {
	t.Helper()
	switch v := output.(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	}
	serialized, err := yaml.Marshal(output)
	if err != nil {
		t.Fatalf("failed to marshal %T: %v", output, err)
	}
	return serialized
}

func fixturePath(name, extension string) string {
	return filepath.Join("testdata", fixtureName(name)+extension)
}

// fixtureName keeps letters, digits, dots and underscores and collapses every
// other run of characters into a single underscore.
func fixtureName(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '.' {
			result.WriteRune(r)
			continue
		}
		if !strings.HasSuffix(result.String(), "_") {
			result.WriteRune('_')
		}
	}
	return fixturePrefix + result.String()
}
