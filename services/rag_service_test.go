package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/itish2003/docbot/models"
)

type testService struct {
	RAGService
	content *ContentStore
	cache   *IndexCache
}

func newTestService(t *testing.T) *testService {
	t.Helper()
	content := newTestContentStore(t)
	pipeline := NewIngestionPipeline(content, NewFileIndexStore(content.StorageDir()), NewHashingEmbedder(512), 1000, 100)
	cache := NewIndexCache(pipeline)
	svc := NewRAGService(content, pipeline, cache, NewWebhookDownloader(5*time.Second, 1<<20), NewExtractiveSynthesizer(), Options{TopK: 2, MinScore: 0.05})
	return &testService{RAGService: svc, content: content, cache: cache}
}

func upload(t *testing.T, svc RAGService, name, text string) {
	t.Helper()
	_, err := svc.AddDirectFiles(context.Background(), []FileUpload{{Name: name, Content: strings.NewReader(text)}})
	require.NoError(t, err)
}

func TestUploadQueryDeleteScenario(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	upload(t, svc, "facts.txt", "Paris is the capital of France")

	answer, err := svc.Query(ctx, "What is the capital of France?")
	require.NoError(t, err)
	assert.Contains(t, answer, "Paris")

	require.NoError(t, svc.DeleteFile(ctx, NamespaceDirect, "facts.txt"))

	answer, err = svc.Query(ctx, "What is the capital of France?")
	require.NoError(t, err)
	assert.NotContains(t, answer, "Paris")
	assert.Equal(t, EmptyResponse, answer)
}

func TestQueryIsStateless(t *testing.T) {
	svc := newTestService(t)
	upload(t, svc, "facts.txt", "Paris is the capital of France")
	ctx := context.Background()

	first, err := svc.Query(ctx, "capital of France")
	require.NoError(t, err)
	second, err := svc.Query(ctx, "capital of France")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestQueryRejectsEmpty(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Query(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestQueryRanksRelevantChunk(t *testing.T) {
	svc := newTestService(t)
	upload(t, svc, "fruit.txt", "Bananas are yellow and rich in potassium.")
	upload(t, svc, "geo.txt", "Berlin is the capital of Germany.")

	docs, err := svc.Retrieve(context.Background(), "Which city is the capital of Germany?")
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	assert.Equal(t, "geo.txt", docs[0].Metadata["file_name"])
}

func TestUploadRejectsUnsupportedContent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	upload(t, svc, "facts.txt", "Paris is the capital of France")
	before, err := svc.IndexStatus(ctx)
	require.NoError(t, err)

	_, err = svc.AddDirectFiles(ctx, []FileUpload{
		{Name: "ok.txt", Content: strings.NewReader("fine")},
		{Name: "blob.bin", Content: strings.NewReader("\xff\xfe\x00\x81")},
	})
	require.ErrorIs(t, err, ErrUnsupportedContent)
	assert.True(t, IsValidationError(err))

	listing, err := svc.ListFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"facts.txt"}, listing.Direct)

	dir, _ := svc.content.Dir(NamespaceDirect)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "."), "staged file %s left behind", e.Name())
	}

	after, err := svc.IndexStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.BuildID, after.BuildID)
}

func TestUploadOverwritesSameName(t *testing.T) {
	svc := newTestService(t)
	upload(t, svc, "facts.txt", "Rome is the capital of Italy")
	upload(t, svc, "facts.txt", "Paris is the capital of France")

	answer, err := svc.Query(context.Background(), "capital of Italy")
	require.NoError(t, err)
	assert.NotContains(t, answer, "Rome")
}

func TestUploadRejectsPlaceholderName(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.AddDirectFiles(context.Background(), []FileUpload{{Name: PlaceholderName, Content: strings.NewReader("x")}})
	assert.ErrorIs(t, err, ErrReservedFile)
}

func TestAppendText(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	name, err := svc.AppendText(ctx, "", "Canberra is the capital of Australia.")
	require.NoError(t, err)
	assert.Equal(t, DefaultTextFileName, name)
	_, err = svc.AppendText(ctx, "", "Ottawa is the capital of Canada.")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(mustDir(t, svc.content, NamespaceDirect), DefaultTextFileName))
	require.NoError(t, err)
	assert.Equal(t, "Canberra is the capital of Australia.\nOttawa is the capital of Canada.", string(data))

	answer, err := svc.Query(ctx, "capital of Canada")
	require.NoError(t, err)
	assert.Contains(t, answer, "Ottawa")

	_, err = svc.AppendText(ctx, "notes.txt", "  ")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestAddWebhookFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/docs/tokyo.txt":
			_, _ = w.Write([]byte("Tokyo is the capital of Japan."))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	svc := newTestService(t)
	ctx := context.Background()

	name, err := svc.AddWebhookFile(ctx, srv.URL+"/docs/tokyo.txt", "")
	require.NoError(t, err)
	assert.Equal(t, "tokyo.txt", name)

	answer, err := svc.Query(ctx, "capital of Japan")
	require.NoError(t, err)
	assert.Contains(t, answer, "Tokyo")

	name, err = svc.AddWebhookFile(ctx, srv.URL+"/docs/tokyo.txt", "japan.txt")
	require.NoError(t, err)
	assert.Equal(t, "japan.txt", name)

	listing, err := svc.ListFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"japan.txt", "tokyo.txt"}, listing.Webhook)
	assert.Empty(t, listing.Direct)
}

func TestAddWebhookFileFailureLeavesDirectoryUnchanged(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddWebhookFile(ctx, srv.URL+"/missing.txt", "")
	require.ErrorIs(t, err, ErrWebhookStatus)
	assert.False(t, IsValidationError(err))

	dir := mustDir(t, svc.content, NamespaceWebhook)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, PlaceholderName, entries[0].Name())

	_, err = svc.AddWebhookFile(ctx, "not a url", "")
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestDeleteAllKeepsPlaceholder(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	upload(t, svc, "a.txt", "alpha document")
	upload(t, svc, "b.txt", "beta document")

	n, err := svc.DeleteAll(ctx, NamespaceDirect)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	listing, err := svc.ListFiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, listing.Direct)
	assert.FileExists(t, filepath.Join(mustDir(t, svc.content, NamespaceDirect), PlaceholderName))

	status, err := svc.IndexStatus(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.ChunkCount)
}

func TestDeleteMissingFile(t *testing.T) {
	svc := newTestService(t)
	err := svc.DeleteFile(context.Background(), NamespaceWebhook, "nope.txt")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, IsValidationError(err))
}

func TestListFilesEmpty(t *testing.T) {
	listing, err := newTestService(t).ListFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &models.FileListing{Direct: []string{}, Webhook: []string{}}, listing)
}

func TestRebuildAndSync(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	m, err := svc.Rebuild(ctx)
	require.NoError(t, err)

	rebuilt, err := svc.SyncIfChanged(ctx)
	require.NoError(t, err)
	assert.False(t, rebuilt)

	putFile(t, svc.content, NamespaceDirect, "external.txt", "Lima is the capital of Peru.")
	rebuilt, err = svc.SyncIfChanged(ctx)
	require.NoError(t, err)
	assert.True(t, rebuilt)

	status, err := svc.IndexStatus(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, m.BuildID, status.BuildID)
	assert.Contains(t, status.Documents, "direct/external.txt")
}

func TestConcurrentMutationsAndQueries(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	upload(t, svc, "base.txt", "Paris is the capital of France")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.AppendText(ctx, "log.txt", "entry")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			answer, err := svc.Query(ctx, "capital of France")
			assert.NoError(t, err)
			assert.Contains(t, answer, "Paris")
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(filepath.Join(mustDir(t, svc.content, NamespaceDirect), "log.txt"))
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSuffix(strings.Repeat("entry\n", 4), "\n"), string(data))
}

func TestPersistedIndexAnswersAfterReload(t *testing.T) {
	backends := map[string]func(t *testing.T, dir string) IndexStore{
		"file": func(_ *testing.T, dir string) IndexStore { return NewFileIndexStore(dir) },
		"sqlite": func(t *testing.T, dir string) IndexStore {
			store, err := NewSQLiteIndexStore(dir)
			require.NoError(t, err)
			t.Cleanup(func() { store.Close() })
			return store
		},
	}
	const question = "What is the capital of France?"

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			content := newTestContentStore(t)
			newService := func() (RAGService, *IndexCache) {
				pipeline := NewIngestionPipeline(content, open(t, content.StorageDir()), NewHashingEmbedder(512), 1000, 100)
				cache := NewIndexCache(pipeline)
				svc := NewRAGService(content, pipeline, cache, NewWebhookDownloader(5*time.Second, 1<<20), NewExtractiveSynthesizer(), Options{TopK: 2, MinScore: 0.05})
				return svc, cache
			}

			first, firstCache := newService()
			upload(t, first, "facts.txt", "Paris is the capital of France. Berlin is the capital of Germany.")
			want, err := first.Query(ctx, question)
			require.NoError(t, err)
			require.Contains(t, want, "Paris")

			second, secondCache := newService()
			got, err := second.Query(ctx, question)
			require.NoError(t, err)
			assert.Equal(t, want, got)
			assert.Equal(t, firstCache.Peek().Manifest().BuildID, secondCache.Peek().Manifest().BuildID)
		})
	}
}
