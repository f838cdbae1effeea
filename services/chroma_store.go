package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/sirupsen/logrus"

	"github/itish2003/docbot/logging"
	"github/itish2003/docbot/models"
)

const chromaManifestName = "chroma_manifest.json"

// ChromaIndexStore keeps chunks in a Chroma collection. Every chunk carries
// the build id; the previous build is deleted only after the new one has
// been added completely, so a failed rebuild leaves the old build in place.
type ChromaIndexStore struct {
	client     chromago.Client
	collection chromago.Collection
	dir        string
	log        *logrus.Entry
}

// NewChromaIndexStore connects to baseURL and gets or creates the collection.
func NewChromaIndexStore(ctx context.Context, baseURL, collectionName, dir string) (*ChromaIndexStore, error) {
	client, err := chromago.NewHTTPClient(chromago.WithBaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("create chroma client: %w", err)
	}
	collection, err := getOrCreateCollection(ctx, client, collectionName)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &ChromaIndexStore{
		client:     client,
		collection: collection,
		dir:        dir,
		log:        logging.For("chroma"),
	}, nil
}

func getOrCreateCollection(ctx context.Context, client chromago.Client, name string) (chromago.Collection, error) {
	collection, err := client.GetOrCreateCollection(
		ctx,
		name,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("description", "docbot document index"),
				chromago.NewStringAttribute("created_by", "docbot"),
			),
		),
		chromago.WithHNSWSpaceCreate(embeddings.COSINE),
	)
	if err != nil {
		return nil, fmt.Errorf("get or create collection %q: %w", name, err)
	}
	return collection, nil
}

func (s *ChromaIndexStore) Name() string { return "chroma" }

func (s *ChromaIndexStore) manifestPath() string { return filepath.Join(s.dir, chromaManifestName) }

func (s *ChromaIndexStore) Exists(_ context.Context) (bool, error) {
	_, err := os.Stat(s.manifestPath())
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *ChromaIndexStore) readManifest() (*models.IndexManifest, error) {
	data, err := os.ReadFile(s.manifestPath())
	if err != nil {
		return nil, err
	}
	var m models.IndexManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse chroma manifest: %w", err)
	}
	return &m, nil
}

func (s *ChromaIndexStore) Persist(ctx context.Context, idx *Index) error {
	manifest := idx.Manifest()
	previous, err := s.readManifest()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	for _, e := range idx.Entries() {
		metadata := chromago.NewDocumentMetadata(
			chromago.NewStringAttribute("build_id", manifest.BuildID),
			chromago.NewStringAttribute("source_file", e.Source),
			chromago.NewStringAttribute("doc_id", e.DocID),
			chromago.NewStringAttribute("namespace", e.Namespace),
			chromago.NewIntAttribute("chunk_num", int64(e.ChunkNum)),
		)
		err := s.collection.Add(ctx,
			chromago.WithIDs(chromago.DocumentID(manifest.BuildID+"-"+e.ChunkID)),
			chromago.WithTexts(e.Text),
			chromago.WithEmbeddings(embeddings.NewEmbeddingFromFloat32(e.Embedding)),
			chromago.WithMetadatas(metadata),
		)
		if err != nil {
			s.discardBuild(ctx, manifest.BuildID)
			return fmt.Errorf("add chunk %s to chroma: %w", e.ChunkID, err)
		}
	}

	if err := writeJSONAtomic(s.dir, chromaManifestName, manifest); err != nil {
		s.discardBuild(ctx, manifest.BuildID)
		return err
	}
	if previous != nil && previous.BuildID != "" && previous.BuildID != manifest.BuildID {
		s.discardBuild(ctx, previous.BuildID)
	}
	return nil
}

func (s *ChromaIndexStore) discardBuild(ctx context.Context, buildID string) {
	where := chromago.EqString("build_id", buildID)
	if err := s.collection.Delete(ctx, chromago.WithWhereDelete(where)); err != nil {
		s.log.WithError(err).WithField("build_id", buildID).Warn("could not delete chunks of build")
	}
}

func (s *ChromaIndexStore) Load(_ context.Context) (Searchable, error) {
	m, err := s.readManifest()
	if err != nil {
		return nil, fmt.Errorf("read chroma manifest: %w", err)
	}
	return &chromaIndex{manifest: *m, collection: s.collection, log: s.log}, nil
}

func (s *ChromaIndexStore) Close() error { return s.client.Close() }

type chromaIndex struct {
	manifest   models.IndexManifest
	collection chromago.Collection
	log        *logrus.Entry
}

func (c *chromaIndex) Manifest() models.IndexManifest { return c.manifest }

func (c *chromaIndex) Search(ctx context.Context, query []float32, k int) ([]models.SourceDocument, error) {
	if c.manifest.ChunkCount == 0 {
		return nil, nil
	}
	if k > c.manifest.ChunkCount {
		k = c.manifest.ChunkCount
	}
	results, err := c.collection.Query(
		ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(query)),
		chromago.WithWhereQuery(chromago.EqString("build_id", c.manifest.BuildID)),
		chromago.WithNResults(k),
	)
	if err != nil {
		return nil, fmt.Errorf("query chroma: %w", err)
	}
	return chromaHits(results, c.manifest.BuildID, c.log), nil
}

// chromaHits converts the first result group of a query into source
// documents. The collection uses cosine distance, so the score is 1 - d.
func chromaHits(results chromago.QueryResult, buildID string, log *logrus.Entry) []models.SourceDocument {
	documentGroups := results.GetDocumentsGroups()
	if len(documentGroups) == 0 {
		return nil
	}
	var metadatas chromago.DocumentMetadatas
	if groups := results.GetMetadatasGroups(); len(groups) > 0 {
		metadatas = groups[0]
	}
	var distances embeddings.Distances
	if groups := results.GetDistancesGroups(); len(groups) > 0 {
		distances = groups[0]
	}

	var docs []models.SourceDocument
	for i, doc := range documentGroups[0] {
		if doc == nil || doc.ContentString() == "" {
			continue
		}
		metadataMap := map[string]interface{}{}
		if i < len(metadatas) && metadatas[i] != nil {
			if build, ok := metadatas[i].GetString("build_id"); ok && build != buildID {
				continue
			}
			// DocumentMetadata has no exported accessor for all values; round-trip through JSON.
			jsonBytes, err := json.Marshal(metadatas[i])
			if err == nil {
				if err := json.Unmarshal(jsonBytes, &metadataMap); err != nil {
					log.WithError(err).Warn("could not decode chunk metadata")
				}
			}
		}
		if src, ok := metadataMap["source_file"].(string); ok {
			metadataMap["file_name"] = filepath.Base(src)
		}
		score := 0.0
		if i < len(distances) {
			score = 1 - float64(distances[i])
		}
		docs = append(docs, models.SourceDocument{
			Text:     doc.ContentString(),
			Score:    score,
			Metadata: metadataMap,
		})
	}
	return docs
}

func writeJSONAtomic(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+name+"-*")
	if err != nil {
		return err
	}
	if err := json.NewEncoder(tmp).Encode(v); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}
