package signals

import (
	"regexp"

	"github.com/loupe-data/loupe/internal/domain/dataset/field"
	"github.com/loupe-data/loupe/internal/domain/dataset/value"
)

var emailRe = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]*\w`)

// PII finds personally identifying substrings in text and reports them
// as spans into the source string.
type PII struct{}

// Name implements Signal.
func (PII) Name() string { return "pii" }

// OutputField implements Signal.
func (PII) OutputField() *field.Field {
	return &field.Field{
		Fields: map[string]*field.Field{
			"emails": field.RepeatedOf(field.Leaf(field.StringSpan)),
		},
		Signal: &field.SignalInfo{Name: "pii"},
	}
}

// Compute implements Signal.
func (PII) Compute(text string) any {
	var emails []any
	for _, loc := range emailRe.FindAllStringIndex(text, -1) {
		emails = append(emails, value.SpanValue{Span: value.Span{Start: loc[0], End: loc[1]}})
	}
	return map[string]any{"emails": emails}
}
