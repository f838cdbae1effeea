package services

import (
	"context"
	"math"
	"path/filepath"
	"sort"

	"github/itish2003/docbot/models"
)

// Searchable is a loaded index that can answer similarity lookups.
type Searchable interface {
	Manifest() models.IndexManifest
	Search(ctx context.Context, query []float32, k int) ([]models.SourceDocument, error)
}

// Index is an in-memory vector index over every chunk of the corpus.
type Index struct {
	manifest models.IndexManifest
	entries  []models.IndexEntry
}

func NewIndex(manifest models.IndexManifest, entries []models.IndexEntry) *Index {
	manifest.ChunkCount = len(entries)
	return &Index{manifest: manifest, entries: entries}
}

func (i *Index) Manifest() models.IndexManifest { return i.manifest }

// Entries exposes the chunks for persistence.
func (i *Index) Entries() []models.IndexEntry { return i.entries }

// Search scores every chunk by cosine similarity and returns the best k.
func (i *Index) Search(_ context.Context, query []float32, k int) ([]models.SourceDocument, error) {
	if k <= 0 {
		k = 2
	}
	type scored struct {
		idx   int
		score float64
	}
	qNorm := vectorNorm(query)
	hits := make([]scored, 0, len(i.entries))
	for idx, e := range i.entries {
		if len(e.Embedding) != len(query) {
			continue
		}
		hits = append(hits, scored{idx: idx, score: cosineSimilarity(query, e.Embedding, qNorm)})
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if k > len(hits) {
		k = len(hits)
	}
	out := make([]models.SourceDocument, 0, k)
	for _, h := range hits[:k] {
		out = append(out, sourceDocument(i.entries[h.idx], h.score))
	}
	return out, nil
}

func sourceDocument(e models.IndexEntry, score float64) models.SourceDocument {
	return models.SourceDocument{
		Text:  e.Text,
		Score: score,
		Metadata: map[string]interface{}{
			"source_file": e.Source,
			"file_name":   filepath.Base(e.Source),
			"namespace":   e.Namespace,
			"chunk_num":   e.ChunkNum,
		},
	}
}

func cosineSimilarity(a, b []float32, normA float64) float64 {
	if normA == 0 {
		return 0
	}
	normB := vectorNorm(b)
	if normB == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
