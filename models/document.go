package models

import "time"

// Document is a single ingested file and the text extracted from it.
type Document struct {
	ID        string
	Namespace string
	Name      string
	Path      string
	Hash      string
	Text      string
}

// IndexEntry is one embedded chunk of a Document as stored by an index backend.
type IndexEntry struct {
	ChunkID   string    `json:"chunk_id"`
	DocID     string    `json:"doc_id"`
	Source    string    `json:"source"`
	Namespace string    `json:"namespace"`
	ChunkNum  int       `json:"chunk_num"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

// IndexManifest describes a persisted index build.
type IndexManifest struct {
	BuildID     string    `json:"build_id"`
	BuiltAt     time.Time `json:"built_at"`
	Embedder    string    `json:"embedder"`
	Dimension   int       `json:"dimension"`
	Documents   []string  `json:"documents"`
	ChunkCount  int       `json:"chunk_count"`
	Fingerprint string    `json:"fingerprint"`
}

// SourceDocument represents a retrieved chunk of text and its origin.
type SourceDocument struct {
	Text     string                 `json:"text"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// FileListing groups the stored file names per content directory.
type FileListing struct {
	Direct  []string `json:"data"`
	Webhook []string `json:"data_webhooks"`
}
