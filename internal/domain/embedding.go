package domain

import "context"

// EmbeddingResult is the outcome of vectorizing one text.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult is the outcome of vectorizing several texts in
// one provider call. Embeddings align with the input order.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// HealthChecker is implemented by collaborators that can report
// their own availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
