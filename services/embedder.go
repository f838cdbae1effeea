package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// Embedder turns text into vectors. Documents and queries may be embedded
// differently by some models, hence the two methods.
type Embedder interface {
	Name() string
	// Dimension is the vector length, or 0 while still unknown.
	Dimension() int
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"do": {}, "does": {}, "for": {}, "from": {}, "has": {}, "have": {}, "how": {},
	"i": {}, "in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {}, "or": {},
	"that": {}, "the": {}, "this": {}, "to": {}, "was": {}, "were": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "who": {}, "why": {}, "will": {}, "with": {},
}

// HashingEmbedder is a local bag-of-words embedder: tokens are hashed into a
// fixed number of buckets with sublinear term weights, then L2 normalised.
// It needs no corpus preparation, so queries can be embedded at any time.
type HashingEmbedder struct {
	dim int
}

func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = 512
	}
	return &HashingEmbedder{dim: dim}
}

func (e *HashingEmbedder) Name() string { return fmt.Sprintf("hashing-%d", e.dim) }

func (e *HashingEmbedder) Dimension() int { return e.dim }

func (e *HashingEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *HashingEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e *HashingEmbedder) embed(text string) []float32 {
	counts := make(map[int]int)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		counts[int(h.Sum32()%uint32(e.dim))]++
	}
	vec := make([]float32, e.dim)
	var norm float64
	for idx, c := range counts {
		w := 1 + math.Log(float64(c))
		vec[idx] = float32(w)
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

func tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, tok := range raw {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// OllamaEmbedder calls an Ollama server through langchaingo.
type OllamaEmbedder struct {
	model    string
	embedder embeddings.Embedder

	mu  sync.Mutex
	dim int
}

// NewOllamaEmbedder connects to serverURL and uses model for both documents and queries.
func NewOllamaEmbedder(serverURL, model string, batchSize int) (*OllamaEmbedder, error) {
	llm, err := ollama.New(ollama.WithServerURL(serverURL), ollama.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	emb, err := embeddings.NewEmbedder(llm, embeddings.WithBatchSize(batchSize))
	if err != nil {
		return nil, fmt.Errorf("create ollama embedder: %w", err)
	}
	return &OllamaEmbedder{model: model, embedder: emb}, nil
}

func (e *OllamaEmbedder) Name() string { return "ollama:" + e.model }

func (e *OllamaEmbedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dim
}

func (e *OllamaEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents with %s: %w", e.model, err)
	}
	if len(vectors) > 0 {
		e.remember(len(vectors[0]))
	}
	return vectors, nil
}

func (e *OllamaEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query with %s: %w", e.model, err)
	}
	e.remember(len(vector))
	return vector, nil
}

func (e *OllamaEmbedder) remember(dim int) {
	e.mu.Lock()
	e.dim = dim
	e.mu.Unlock()
}
