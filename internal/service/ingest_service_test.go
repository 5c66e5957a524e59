package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/helmsan/kompass/internal/model"
	appErr "github.com/helmsan/kompass/internal/pkg/errors"
)

type memVectorStore struct {
	records map[string]*model.VectorRecord
}

func newMemVectorStore() *memVectorStore {
	return &memVectorStore{records: map[string]*model.VectorRecord{}}
}

func sourceKey(scope model.Scope, st model.SourceType, id string) string {
	return scope.Key() + "\x00" + string(st) + "\x00" + id
}

func (m *memVectorStore) Upsert(ctx context.Context, rec *model.VectorRecord) error {
	clone := *rec
	key := fmt.Sprintf("%s\x00%d", sourceKey(rec.Scope, rec.SourceType, rec.SourceID), rec.ChunkIndex)
	m.records[key] = &clone
	return nil
}

func (m *memVectorStore) chunksOf(scope model.Scope, st model.SourceType, id string) []*model.VectorRecord {
	prefix := sourceKey(scope, st, id) + "\x00"
	var chunks []*model.VectorRecord
	for key, rec := range m.records {
		if strings.HasPrefix(key, prefix) {
			chunks = append(chunks, rec)
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })
	return chunks
}

func (m *memVectorStore) GetBySource(ctx context.Context, scope model.Scope, st model.SourceType, id string) (*model.VectorRecord, error) {
	chunks := m.chunksOf(scope, st, id)
	if len(chunks) == 0 {
		return nil, appErr.ErrNotFound
	}
	clone := *chunks[0]
	return &clone, nil
}

func (m *memVectorStore) DeleteBySource(ctx context.Context, scope model.Scope, st model.SourceType, id string) error {
	prefix := sourceKey(scope, st, id) + "\x00"
	for key := range m.records {
		if strings.HasPrefix(key, prefix) {
			delete(m.records, key)
		}
	}
	return nil
}

func TestIngestAcceptsThenSkipsUnchanged(t *testing.T) {
	store := newMemVectorStore()
	embedder := &stubEmbedder{id: "alpha", dim: 3, vec: []float32{1, 2, 3}}
	svc := NewIngestService(store, embedder, 0)
	base := time.Unix(1700000000, 0)
	svc.now = func() time.Time { return base }
	scope := model.Scope{Org: "acme"}

	item := IngestItem{SourceType: model.SourceIssue, SourceID: "KB-1", Text: "login page blank"}
	report, err := svc.Ingest(context.Background(), scope, []IngestItem{item})
	require.NoError(t, err)
	require.Equal(t, 1, report.Accepted)

	rec, err := store.GetBySource(context.Background(), scope, model.SourceIssue, "KB-1")
	require.NoError(t, err)
	require.Equal(t, "alpha", rec.Provider)
	require.Equal(t, 3, rec.Dimension)
	require.Equal(t, base.Unix(), rec.Ctime)

	// same text again: nothing to re-embed
	svc.now = func() time.Time { return base.Add(time.Hour) }
	report, err = svc.Ingest(context.Background(), scope, []IngestItem{item})
	require.NoError(t, err)
	require.Equal(t, 1, report.Skipped)
	require.Equal(t, 0, report.Accepted)

	// changed text: re-embedded, ctime preserved
	item.Text = "login page blank after update"
	report, err = svc.Ingest(context.Background(), scope, []IngestItem{item})
	require.NoError(t, err)
	require.Equal(t, 1, report.Accepted)
	rec, err = store.GetBySource(context.Background(), scope, model.SourceIssue, "KB-1")
	require.NoError(t, err)
	require.Equal(t, base.Unix(), rec.Ctime)
	require.Equal(t, base.Add(time.Hour).Unix(), rec.Mtime)
}

func TestIngestChunksLongDocument(t *testing.T) {
	store := newMemVectorStore()
	svc := NewIngestService(store, &stubEmbedder{id: "alpha", dim: 3, vec: []float32{1, 2, 3}}, 60)
	scope := model.Scope{Org: "acme"}

	doc := "# Install\n\nRun the installer and accept the defaults.\n\n# Configure\n\nSet the endpoint flag before first start."
	report, err := svc.Ingest(context.Background(), scope, []IngestItem{
		{SourceType: model.SourceWiki, SourceID: "runbook", Text: doc},
	})
	require.NoError(t, err)
	require.Equal(t, 1, report.Accepted, "one document, however many chunks")

	chunks := store.chunksOf(scope, model.SourceWiki, "runbook")
	require.Len(t, chunks, 2)
	require.Equal(t, 0, chunks[0].ChunkIndex)
	require.Equal(t, 1, chunks[1].ChunkIndex)
	require.Contains(t, chunks[0].Content, "Heading: Install")
	require.Contains(t, chunks[0].Content, "accept the defaults")
	require.Contains(t, chunks[1].Content, "Heading: Configure")
	require.Contains(t, chunks[1].Content, "endpoint flag")
	// both chunks carry the whole-document hash
	require.Equal(t, chunks[0].Hash, chunks[1].Hash)

	// unchanged document skips without touching any chunk
	report, err = svc.Ingest(context.Background(), scope, []IngestItem{
		{SourceType: model.SourceWiki, SourceID: "runbook", Text: doc},
	})
	require.NoError(t, err)
	require.Equal(t, 1, report.Skipped)
}

func TestIngestShrinkingDocumentDropsStaleChunks(t *testing.T) {
	store := newMemVectorStore()
	svc := NewIngestService(store, &stubEmbedder{id: "alpha", dim: 3, vec: []float32{1, 2, 3}}, 60)
	scope := model.Scope{Org: "acme"}

	long := "# Install\n\nRun the installer and accept the defaults.\n\n# Configure\n\nSet the endpoint flag before first start."
	_, err := svc.Ingest(context.Background(), scope, []IngestItem{
		{SourceType: model.SourceWiki, SourceID: "runbook", Text: long},
	})
	require.NoError(t, err)
	require.Len(t, store.chunksOf(scope, model.SourceWiki, "runbook"), 2)

	report, err := svc.Ingest(context.Background(), scope, []IngestItem{
		{SourceType: model.SourceWiki, SourceID: "runbook", Text: "# Install\n\nJust run it."},
	})
	require.NoError(t, err)
	require.Equal(t, 1, report.Accepted)

	chunks := store.chunksOf(scope, model.SourceWiki, "runbook")
	require.Len(t, chunks, 1)
	require.Contains(t, chunks[0].Content, "Just run it")
}

func TestIngestSplitsOversizedPlainText(t *testing.T) {
	store := newMemVectorStore()
	svc := NewIngestService(store, &stubEmbedder{id: "alpha", dim: 3, vec: []float32{1, 2, 3}}, 50)
	scope := model.Scope{Org: "acme"}

	long := strings.Repeat("the export job hangs on large projects. ", 6)
	_, err := svc.Ingest(context.Background(), scope, []IngestItem{
		{SourceType: model.SourceIssue, SourceID: "TK-1", Text: long},
	})
	require.NoError(t, err)

	chunks := store.chunksOf(scope, model.SourceIssue, "TK-1")
	require.Greater(t, len(chunks), 1)
	var total int
	for _, c := range chunks {
		total += len(c.Content)
	}
	require.GreaterOrEqual(t, total, len(strings.TrimSpace(long)), "no text dropped")
}

func TestIngestReembedsOnProviderSwitch(t *testing.T) {
	store := newMemVectorStore()
	scope := model.Scope{Org: "acme"}
	item := IngestItem{SourceType: model.SourceIssue, SourceID: "KB-1", Text: "login page blank"}

	first := NewIngestService(store, &stubEmbedder{id: "alpha", dim: 3, vec: []float32{1, 2, 3}}, 0)
	_, err := first.Ingest(context.Background(), scope, []IngestItem{item})
	require.NoError(t, err)

	second := NewIngestService(store, &stubEmbedder{id: "beta", dim: 4, vec: []float32{1, 2, 3, 4}}, 0)
	report, err := second.Ingest(context.Background(), scope, []IngestItem{item})
	require.NoError(t, err)
	require.Equal(t, 1, report.Accepted)

	rec, err := store.GetBySource(context.Background(), scope, model.SourceIssue, "KB-1")
	require.NoError(t, err)
	require.Equal(t, "beta", rec.Provider)
	require.Equal(t, 4, rec.Dimension)
}

func TestIngestBadItemsDoNotSinkBatch(t *testing.T) {
	store := newMemVectorStore()
	svc := NewIngestService(store, &stubEmbedder{id: "alpha", dim: 3, vec: []float32{1, 2, 3}}, 0)
	scope := model.Scope{Org: "acme"}

	report, err := svc.Ingest(context.Background(), scope, []IngestItem{
		{SourceType: "bogus", SourceID: "x", Text: "text"},
		{SourceType: model.SourceIssue, SourceID: "", Text: "text"},
		{SourceType: model.SourceIssue, SourceID: "KB-2", Text: "   "},
		{SourceType: model.SourceIssue, SourceID: "KB-3", Text: "good item"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, report.Accepted)
	require.Equal(t, 3, report.Rejected)
	require.Len(t, report.Errors, 3)
}

func TestIngestInvalidScope(t *testing.T) {
	svc := NewIngestService(newMemVectorStore(), &stubEmbedder{id: "alpha", dim: 3, vec: []float32{1, 2, 3}}, 0)
	_, err := svc.Ingest(context.Background(), model.Scope{}, nil)
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestIngestDeleteRemovesRecord(t *testing.T) {
	store := newMemVectorStore()
	svc := NewIngestService(store, &stubEmbedder{id: "alpha", dim: 3, vec: []float32{1, 2, 3}}, 0)
	scope := model.Scope{Org: "acme"}

	_, err := svc.Ingest(context.Background(), scope, []IngestItem{
		{SourceType: model.SourceWiki, SourceID: "page-1", Text: "hello"},
	})
	require.NoError(t, err)

	report, err := svc.Ingest(context.Background(), scope, []IngestItem{
		{SourceType: model.SourceWiki, SourceID: "page-1", Deleted: true},
	})
	require.NoError(t, err)
	require.Equal(t, 1, report.Accepted)

	_, err = store.GetBySource(context.Background(), scope, model.SourceWiki, "page-1")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestIngestStripsMarkdownForWikiContent(t *testing.T) {
	store := newMemVectorStore()
	svc := NewIngestService(store, &stubEmbedder{id: "alpha", dim: 3, vec: []float32{1, 2, 3}}, 0)
	scope := model.Scope{Org: "acme"}

	_, err := svc.Ingest(context.Background(), scope, []IngestItem{
		{SourceType: model.SourceWiki, SourceID: "page-1", Text: "# Deploy Guide\n\nUse the **blue** button."},
	})
	require.NoError(t, err)

	rec, err := store.GetBySource(context.Background(), scope, model.SourceWiki, "page-1")
	require.NoError(t, err)
	require.Contains(t, rec.Content, "Deploy Guide")
	require.Contains(t, rec.Content, "blue")
	require.NotContains(t, rec.Content, "#")
	require.NotContains(t, rec.Content, "**")
}

func TestIngestKeepsUnknownMetadataVerbatim(t *testing.T) {
	store := newMemVectorStore()
	svc := NewIngestService(store, &stubEmbedder{id: "alpha", dim: 3, vec: []float32{1, 2, 3}}, 0)
	scope := model.Scope{Org: "acme"}

	raw := json.RawMessage(`{"custom_field": true}`)
	_, err := svc.Ingest(context.Background(), scope, []IngestItem{
		{SourceType: model.SourceIssue, SourceID: "KB-1", Text: "text", Metadata: raw},
	})
	require.NoError(t, err)

	rec, err := store.GetBySource(context.Background(), scope, model.SourceIssue, "KB-1")
	require.NoError(t, err)
	require.Nil(t, rec.Metadata.Issue)
	require.JSONEq(t, `{"custom_field": true}`, string(rec.Metadata.Other))
}
