package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/textsplitter"
	"golang.org/x/sync/errgroup"

	"github/itish2003/docbot/logging"
	"github/itish2003/docbot/models"
)

// IngestionPipeline rebuilds the whole index from the content directories.
// Only one rebuild runs at a time; concurrent callers queue.
type IngestionPipeline struct {
	mu       sync.Mutex
	content  *ContentStore
	store    IndexStore
	embedder Embedder
	splitter textsplitter.RecursiveCharacter
	log      *logrus.Entry
}

// NewIngestionPipeline wires the pipeline. chunkSize and chunkOverlap are in characters.
func NewIngestionPipeline(content *ContentStore, store IndexStore, embedder Embedder, chunkSize, chunkOverlap int) *IngestionPipeline {
	return &IngestionPipeline{
		content:  content,
		store:    store,
		embedder: embedder,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
		log: logging.For("indexer"),
	}
}

// Store returns the backend the pipeline persists into.
func (p *IngestionPipeline) Store() IndexStore { return p.store }

// Embedder returns the embedder used for both chunks and queries.
func (p *IngestionPipeline) Embedder() Embedder { return p.embedder }

// Rebuild loads every document, embeds all chunks and persists a new index
// over the previous one. Any failure returns before Persist is called, or
// inside Persist, which leaves the prior index intact.
func (p *IngestionPipeline) Rebuild(ctx context.Context) (*Index, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	if err := p.content.EnsureLayout(); err != nil {
		return nil, err
	}

	docs, err := p.LoadDocuments(ctx)
	if err != nil {
		return nil, err
	}
	p.log.WithField("documents", len(docs)).Debug("documents loaded")

	var entries []models.IndexEntry
	var texts []string
	docIDs := make([]string, 0, len(docs))
	for _, doc := range docs {
		docIDs = append(docIDs, doc.ID)
		if strings.TrimSpace(doc.Text) == "" {
			continue
		}
		chunks, err := p.splitter.SplitText(doc.Text)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", doc.ID, err)
		}
		n := 0
		for _, chunk := range chunks {
			if strings.TrimSpace(chunk) == "" {
				continue
			}
			entries = append(entries, models.IndexEntry{
				ChunkID:   fmt.Sprintf("%s#%d", doc.ID, n),
				DocID:     doc.ID,
				Source:    doc.Path,
				Namespace: doc.Namespace,
				ChunkNum:  n,
				Text:      chunk,
			})
			texts = append(texts, chunk)
			n++
		}
	}

	if len(texts) > 0 {
		vectors, err := p.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(texts))
		}
		for i := range entries {
			entries[i].Embedding = vectors[i]
		}
	}

	manifest := models.IndexManifest{
		BuildID:     uuid.New().String(),
		BuiltAt:     time.Now().UTC(),
		Embedder:    p.embedder.Name(),
		Dimension:   p.embedder.Dimension(),
		Documents:   docIDs,
		Fingerprint: fingerprintDocuments(docs),
	}
	idx := NewIndex(manifest, entries)

	if err := p.store.Persist(ctx, idx); err != nil {
		return nil, fmt.Errorf("persist index: %w", err)
	}
	p.log.WithFields(logrus.Fields{
		"build_id":  manifest.BuildID,
		"documents": len(docs),
		"chunks":    len(entries),
		"backend":   p.store.Name(),
		"elapsed":   time.Since(start).Truncate(time.Millisecond).String(),
	}).Info("index rebuilt")
	return idx, nil
}

// LoadDocuments reads every namespace concurrently and returns the direct
// documents followed by the webhook documents.
func (p *IngestionPipeline) LoadDocuments(ctx context.Context) ([]models.Document, error) {
	namespaces := p.content.Namespaces()
	results := make([][]models.Document, len(namespaces))

	g, gctx := errgroup.WithContext(ctx)
	for i, ns := range namespaces {
		g.Go(func() error {
			docs, err := p.loadNamespace(gctx, ns)
			if err != nil {
				return err
			}
			results[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []models.Document
	for _, docs := range results {
		all = append(all, docs...)
	}
	return all, nil
}

func (p *IngestionPipeline) loadNamespace(ctx context.Context, ns Namespace) ([]models.Document, error) {
	paths, err := p.content.ContentPaths(ns)
	if err != nil {
		return nil, fmt.Errorf("list %s files: %w", ns, err)
	}
	docs := make([]models.Document, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := ExtractTextFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		hash, err := calculateFileHash(path)
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", path, err)
		}
		name := filepath.Base(path)
		docs = append(docs, models.Document{
			ID:        string(ns) + "/" + name,
			Namespace: string(ns),
			Name:      name,
			Path:      path,
			Hash:      hash,
			Text:      text,
		})
	}
	return docs, nil
}

// Fingerprint hashes the current corpus without extracting any text. It
// matches the manifest fingerprint of an index built from the same files.
func (p *IngestionPipeline) Fingerprint() (string, error) {
	var docs []models.Document
	for _, ns := range p.content.Namespaces() {
		paths, err := p.content.ContentPaths(ns)
		if err != nil {
			return "", err
		}
		for _, path := range paths {
			hash, err := calculateFileHash(path)
			if err != nil {
				return "", err
			}
			name := filepath.Base(path)
			docs = append(docs, models.Document{ID: string(ns) + "/" + name, Hash: hash})
		}
	}
	return fingerprintDocuments(docs), nil
}

func fingerprintDocuments(docs []models.Document) string {
	lines := make([]string, 0, len(docs))
	for _, d := range docs {
		lines = append(lines, d.ID+":"+d.Hash)
	}
	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

func calculateFileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
