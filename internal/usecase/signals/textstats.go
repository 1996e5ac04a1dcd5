package signals

import (
	"strings"
	"unicode/utf8"

	"github.com/loupe-data/loupe/internal/domain/dataset/field"
)

// TextStatistics reports simple length statistics of the source text.
type TextStatistics struct{}

// Name implements Signal.
func (TextStatistics) Name() string { return "text_statistics" }

// OutputField implements Signal.
func (TextStatistics) OutputField() *field.Field {
	return &field.Field{
		Fields: map[string]*field.Field{
			"num_chars": field.Leaf(field.Int64),
			"num_words": field.Leaf(field.Int64),
		},
		Signal: &field.SignalInfo{Name: "text_statistics"},
	}
}

// Compute implements Signal.
func (TextStatistics) Compute(text string) any {
	return map[string]any{
		"num_chars": int64(utf8.RuneCountInString(text)),
		"num_words": int64(len(strings.Fields(text))),
	}
}
