//go:build property
// +build property

package extractor

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var fragments = []string{
	"",
	"ACCESS CONTROL",
	"3. Retention",
	"Staff must wear badges.",
	"Customer data must be encrypted at rest using AES-256 encryption.",
	"Personal data should not leave the region.",
	"Logs are kept for 90 days.",
	"Approval required for production changes.",
	"Coffee is served at noon.",
	"  Backups shall be encrypted.  ",
}

func buildText(picks []int) string {
	lines := make([]string, len(picks))
	for i, p := range picks {
		lines[i] = fragments[p]
	}
	return strings.Join(lines, "\n")
}

// Property: Extract(text) == Extract(text) for any text.
func TestExtractDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	e, err := New(nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	properties.Property("extraction is deterministic", prop.ForAll(
		func(picks []int) bool {
			text := buildText(picks)
			first, err1 := e.Extract(context.Background(), text, "prop.txt")
			second, err2 := e.Extract(context.Background(), text, "prop.txt")
			if err1 != nil || err2 != nil {
				return false
			}
			return reflect.DeepEqual(first, second)
		},
		gen.SliceOf(gen.IntRange(0, len(fragments)-1)),
	))

	properties.Property("headers and blank lines never become rules", prop.ForAll(
		func(picks []int) bool {
			rs, err := e.Extract(context.Background(), buildText(picks), "prop.txt")
			if err != nil {
				return false
			}
			for _, r := range rs {
				if r.Description == "" || isHeader(r.Description) {
					return false
				}
				if !r.Level.Valid() {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(fragments)-1)),
	))

	properties.TestingRun(t)
}
