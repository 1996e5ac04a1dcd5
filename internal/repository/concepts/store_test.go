package concepts

import (
	"errors"
	"math"
	"testing"

	"github.com/loupe-data/loupe/internal/domain"
)

func TestModelScoreSigmoid(t *testing.T) {
	m := &Model{Weights: []float32{2, 0}, Bias: 0}

	if got := m.Score([]float32{0, 0}); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("Score(zero) = %f, want 0.5", got)
	}
	high := m.Score([]float32{1, 0})
	low := m.Score([]float32{-1, 0})
	if high <= 0.5 || low >= 0.5 {
		t.Fatalf("scores not monotone: high=%f low=%f", high, low)
	}
	if math.Abs(high+low-1) > 1e-9 {
		t.Fatalf("sigmoid not symmetric: %f + %f", high, low)
	}
}

func TestStoreVersioning(t *testing.T) {
	s := NewStore()
	first := s.Put(&Model{Namespace: "local", Name: "toxicity", Embedding: "minilm"})
	if first.Version != 1 {
		t.Fatalf("first version = %d", first.Version)
	}
	second := s.Put(&Model{Namespace: "local", Name: "toxicity", Embedding: "minilm"})
	if second.Version != 2 {
		t.Fatalf("replaced version = %d", second.Version)
	}

	got, err := s.Get("local", "toxicity", "minilm")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Version != 2 {
		t.Fatalf("stored version = %d", got.Version)
	}
}

func TestStoreGetMissing(t *testing.T) {
	s := NewStore()
	if _, err := s.Get("local", "nope", "minilm"); !errors.Is(err, domain.ErrConceptMissing) {
		t.Fatalf("err = %v, want ErrConceptMissing", err)
	}
}
