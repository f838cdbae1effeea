package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github/itish2003/docbot/logging"
)

// IndexCache holds the process-wide loaded index.
type IndexCache struct {
	pipeline *IngestionPipeline
	log      *logrus.Entry

	mu      sync.Mutex
	current Searchable
}

func NewIndexCache(pipeline *IngestionPipeline) *IndexCache {
	return &IndexCache{pipeline: pipeline, log: logging.For("index-cache")}
}

// Current returns the held index, loading it from the store on first use.
// With nothing persisted, or with an index built by a different embedder,
// the pipeline builds a fresh one.
func (c *IndexCache) Current(ctx context.Context) (Searchable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return c.current, nil
	}

	store := c.pipeline.Store()
	exists, err := store.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check persisted index: %w", err)
	}
	if exists {
		idx, err := store.Load(ctx)
		if err != nil {
			return nil, err
		}
		if c.compatible(idx) {
			c.current = idx
			c.log.WithField("build_id", idx.Manifest().BuildID).Info("index loaded from storage")
			return idx, nil
		}
		c.log.WithField("embedder", idx.Manifest().Embedder).Warn("persisted index built with another embedder, rebuilding")
	}

	idx, err := c.pipeline.Rebuild(ctx)
	if err != nil {
		return nil, err
	}
	c.current = idx
	return idx, nil
}

func (c *IndexCache) compatible(idx Searchable) bool {
	m := idx.Manifest()
	emb := c.pipeline.Embedder()
	if m.Embedder != emb.Name() {
		return false
	}
	if dim := emb.Dimension(); dim > 0 && m.Dimension > 0 && dim != m.Dimension {
		return false
	}
	return true
}

// Replace swaps in a freshly built index.
func (c *IndexCache) Replace(idx Searchable) {
	c.mu.Lock()
	c.current = idx
	c.mu.Unlock()
}

// Peek returns the held index without loading anything.
func (c *IndexCache) Peek() Searchable {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
