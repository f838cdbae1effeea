package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github/itish2003/docbot/logging"
	"github/itish2003/docbot/models"
)

// DefaultTextFileName receives pasted text when the caller names no file.
const DefaultTextFileName = "uploaded_text.txt"

// FileUpload is one file received from a client.
type FileUpload struct {
	Name    string
	Content io.Reader
}

// RAGService is the document chatbot: content mutations that rebuild the
// index, and stateless queries against the current index.
type RAGService interface {
	Query(ctx context.Context, text string) (string, error)
	Retrieve(ctx context.Context, text string) ([]models.SourceDocument, error)
	AddDirectFiles(ctx context.Context, files []FileUpload) ([]string, error)
	AddWebhookFile(ctx context.Context, rawURL, fileName string) (string, error)
	AppendText(ctx context.Context, fileName, text string) (string, error)
	DeleteFile(ctx context.Context, ns Namespace, fileName string) error
	DeleteAll(ctx context.Context, ns Namespace) (int, error)
	ListFiles(ctx context.Context) (*models.FileListing, error)
	Rebuild(ctx context.Context) (*models.IndexManifest, error)
	IndexStatus(ctx context.Context) (*models.IndexManifest, error)
	SyncIfChanged(ctx context.Context) (bool, error)
}

// ragServiceImpl holds the dependencies it needs to do its job. mu
// serializes every mutation together with the rebuild that follows it.
type ragServiceImpl struct {
	content     *ContentStore
	pipeline    *IngestionPipeline
	cache       *IndexCache
	downloader  *WebhookDownloader
	synthesizer Synthesizer
	topK        int
	minScore    float64
	log         *logrus.Entry

	mu sync.Mutex
}

// Options tunes retrieval.
type Options struct {
	TopK     int
	MinScore float64
}

// NewRAGService creates a new RAG service instance.
func NewRAGService(content *ContentStore, pipeline *IngestionPipeline, cache *IndexCache, downloader *WebhookDownloader, synthesizer Synthesizer, opts Options) RAGService {
	if opts.TopK <= 0 {
		opts.TopK = 2
	}
	return &ragServiceImpl{
		content:     content,
		pipeline:    pipeline,
		cache:       cache,
		downloader:  downloader,
		synthesizer: synthesizer,
		topK:        opts.TopK,
		minScore:    opts.MinScore,
		log:         logging.For("service"),
	}
}

// Retrieve embeds the question and returns the relevant chunks of the current index.
func (r *ragServiceImpl) Retrieve(ctx context.Context, text string) ([]models.SourceDocument, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	idx, err := r.cache.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	vector, err := r.pipeline.Embedder().EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := idx.Search(ctx, vector, r.topK)
	if err != nil {
		return nil, err
	}
	relevant := hits[:0]
	for _, h := range hits {
		if h.Score >= r.minScore && h.Score > 0 {
			relevant = append(relevant, h)
		}
	}
	return relevant, nil
}

// Query answers text from the current index. Every call is independent.
func (r *ragServiceImpl) Query(ctx context.Context, text string) (string, error) {
	// 1. Retrieve the chunks that clear the score threshold. No chunks is not
	// an error; the synthesizer turns it into the empty answer.
	docs, err := r.Retrieve(ctx, text)
	if err != nil {
		return "", err
	}

	// 2. Compose the answer from those chunks only.
	answer, err := r.synthesizer.Synthesize(ctx, strings.TrimSpace(text), docs)
	if err != nil {
		return "", fmt.Errorf("synthesize answer: %w", err)
	}
	r.log.WithFields(logrus.Fields{"sources": len(docs), "synthesizer": r.synthesizer.Name()}).Info("query answered")
	return answer, nil
}

// AddDirectFiles stores every upload and rebuilds once. Files are staged and
// checked for extractable text first, so one bad file rejects the whole batch.
func (r *ragServiceImpl) AddDirectFiles(ctx context.Context, files []FileUpload) ([]string, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no file uploaded", ErrInvalidFilename)
	}
	// Stage and validate outside the lock; nothing is visible yet.
	staged := make([]*StagedFile, 0, len(files))
	discardAll := func() {
		for _, s := range staged {
			s.Discard()
		}
	}
	for _, f := range files {
		s, err := r.content.Stage(NamespaceDirect, f.Name)
		if err != nil {
			discardAll()
			return nil, err
		}
		staged = append(staged, s)
		if _, err := io.Copy(s, f.Content); err != nil {
			discardAll()
			return nil, fmt.Errorf("save %s: %w", f.Name, err)
		}
		if err := validateStaged(s); err != nil {
			discardAll()
			return nil, err
		}
	}

	// Commit and rebuild as one step so queries never see a file that the
	// index does not know about yet.
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(staged))
	for i, s := range staged {
		if err := s.Commit(); err != nil {
			for _, rest := range staged[i+1:] {
				rest.Discard()
			}
			return names, err
		}
		names = append(names, baseName(s.FinalPath()))
	}
	r.log.WithField("files", names).Info("direct files uploaded")
	return names, r.rebuildLocked(ctx)
}

// AddWebhookFile downloads rawURL into the webhook directory. The download
// happens outside the mutation lock into a hidden staged file, so a failed
// fetch never touches the visible content.
func (r *ragServiceImpl) AddWebhookFile(ctx context.Context, rawURL, fileName string) (string, error) {
	if _, err := ParseWebhookURL(rawURL); err != nil {
		return "", err
	}
	if strings.TrimSpace(fileName) == "" {
		name, err := FileNameFromURL(rawURL)
		if err != nil {
			return "", err
		}
		fileName = name
	}

	staged, err := r.content.Stage(NamespaceWebhook, fileName)
	if err != nil {
		return "", err
	}
	n, err := r.downloader.Fetch(ctx, rawURL, staged)
	if err != nil {
		staged.Discard()
		r.log.WithError(err).WithField("url", rawURL).Warn("webhook download failed")
		return "", err
	}
	if err := validateStaged(staged); err != nil {
		staged.Discard()
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := staged.Commit(); err != nil {
		return "", err
	}
	name := baseName(staged.FinalPath())
	r.log.WithFields(logrus.Fields{"file": name, "bytes": n}).Info("webhook file downloaded")
	return name, r.rebuildLocked(ctx)
}

// AppendText adds text to fileName in the direct directory.
func (r *ragServiceImpl) AppendText(ctx context.Context, fileName, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	if strings.TrimSpace(fileName) == "" {
		fileName = DefaultTextFileName
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	path, err := r.content.AppendText(NamespaceDirect, fileName, text)
	if err != nil {
		return "", err
	}
	name := baseName(path)
	r.log.WithField("file", name).Info("text appended")
	return name, r.rebuildLocked(ctx)
}

// DeleteFile removes fileName from ns and rebuilds. The placeholder cannot be
// removed.
func (r *ragServiceImpl) DeleteFile(ctx context.Context, ns Namespace, fileName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.content.Remove(ns, fileName); err != nil {
		return err
	}
	r.log.WithFields(logrus.Fields{"namespace": ns, "file": fileName}).Info("file deleted")
	return r.rebuildLocked(ctx)
}

// DeleteAll empties ns, keeping the placeholder file.
func (r *ragServiceImpl) DeleteAll(ctx context.Context, ns Namespace) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.content.RemoveAll(ns)
	if err != nil {
		return n, err
	}
	r.log.WithFields(logrus.Fields{"namespace": ns, "files": n}).Info("all files deleted")
	return n, r.rebuildLocked(ctx)
}

// ListFiles returns the visible files of both namespaces, placeholder excluded.
func (r *ragServiceImpl) ListFiles(_ context.Context) (*models.FileListing, error) {
	direct, err := r.content.List(NamespaceDirect)
	if err != nil {
		return nil, err
	}
	webhook, err := r.content.List(NamespaceWebhook)
	if err != nil {
		return nil, err
	}
	if direct == nil {
		direct = []string{}
	}
	if webhook == nil {
		webhook = []string{}
	}
	return &models.FileListing{Direct: direct, Webhook: webhook}, nil
}

// Rebuild forces a full rebuild and swaps the cached index.
func (r *ragServiceImpl) Rebuild(ctx context.Context) (*models.IndexManifest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.rebuildLocked(ctx); err != nil {
		return nil, err
	}
	m := r.cache.Peek().Manifest()
	return &m, nil
}

// IndexStatus returns the manifest of the serving index, loading it first if
// nothing has been served yet.
func (r *ragServiceImpl) IndexStatus(ctx context.Context) (*models.IndexManifest, error) {
	idx, err := r.cache.Current(ctx)
	if err != nil {
		return nil, err
	}
	m := idx.Manifest()
	return &m, nil
}

// SyncIfChanged rebuilds when the files on disk no longer match the
// fingerprint of the current index, e.g. after edits made outside the API.
func (r *ragServiceImpl) SyncIfChanged(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, err := r.cache.Current(ctx)
	if err != nil {
		return false, err
	}
	fp, err := r.pipeline.Fingerprint()
	if err != nil {
		return false, err
	}
	if fp == idx.Manifest().Fingerprint {
		return false, nil
	}
	return true, r.rebuildLocked(ctx)
}

// rebuildLocked must be called with mu held. On failure the cache keeps the
// previous index.
func (r *ragServiceImpl) rebuildLocked(ctx context.Context) error {
	idx, err := r.pipeline.Rebuild(ctx)
	if err != nil {
		r.log.WithError(err).Error("index rebuild failed, previous index kept")
		return fmt.Errorf("rebuild index: %w", err)
	}
	r.cache.Replace(idx)
	return nil
}

func validateStaged(s *StagedFile) error {
	if err := s.Sync(); err != nil {
		return err
	}
	if _, err := ExtractTextFromFile(s.Name()); err != nil {
		return err
	}
	return nil
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
