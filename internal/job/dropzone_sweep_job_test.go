package job

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/helmsan/kompass/internal/config"
	"github.com/helmsan/kompass/internal/ingeststore"
	"github.com/helmsan/kompass/internal/model"
	appErr "github.com/helmsan/kompass/internal/pkg/errors"
	"github.com/helmsan/kompass/internal/service"
)

type sweepEmbedder struct{}

func (sweepEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	return []float32{1, 0}, nil
}
func (sweepEmbedder) ProviderID() string { return "alpha" }
func (sweepEmbedder) ModelName() string  { return "model-a" }
func (sweepEmbedder) Dimension() int     { return 2 }

type sweepStore struct {
	records map[string]*model.VectorRecord
}

func newSweepStore() *sweepStore {
	return &sweepStore{records: map[string]*model.VectorRecord{}}
}

func (s *sweepStore) key(scope model.Scope, st model.SourceType, id string) string {
	return scope.Key() + "|" + string(st) + "|" + id
}

func (s *sweepStore) Upsert(ctx context.Context, rec *model.VectorRecord) error {
	s.records[s.key(rec.Scope, rec.SourceType, rec.SourceID)] = rec
	return nil
}

func (s *sweepStore) GetBySource(ctx context.Context, scope model.Scope, st model.SourceType, id string) (*model.VectorRecord, error) {
	rec, ok := s.records[s.key(scope, st, id)]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return rec, nil
}

func (s *sweepStore) DeleteBySource(ctx context.Context, scope model.Scope, st model.SourceType, id string) error {
	delete(s.records, s.key(scope, st, id))
	return nil
}

func writeBatch(t *testing.T, dir, name string, batch IngestBatch) {
	t.Helper()
	data, err := json.Marshal(batch)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func TestDropzoneSweepImportsAndRemovesBatches(t *testing.T) {
	dir := t.TempDir()
	dropzone, err := ingeststore.New(config.DropzoneConfig{Type: "local", Data: map[string]interface{}{"dir": dir}})
	require.NoError(t, err)

	store := newSweepStore()
	ingest := service.NewIngestService(store, sweepEmbedder{}, 0)
	scope := model.Scope{Org: "acme"}
	writeBatch(t, dir, "batch-1.json", IngestBatch{
		Scope: scope,
		Items: []service.IngestItem{
			{SourceType: model.SourceWiki, SourceID: "page-1", Text: "# Export guide"},
			{SourceType: model.SourceIssue, SourceID: "TK-9", Text: "export hangs"},
		},
	})

	j := NewDropzoneSweepJob(dropzone, ingest)
	require.Equal(t, "dropzone_sweep", j.Name())
	require.NoError(t, j.Run(context.Background()))

	require.Len(t, store.records, 2)
	keys, err := dropzone.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, keys, "imported batches are removed")
}

func TestDropzoneSweepKeepsMalformedBatches(t *testing.T) {
	dir := t.TempDir()
	dropzone, err := ingeststore.New(config.DropzoneConfig{Type: "local", Data: map[string]interface{}{"dir": dir}})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644))
	store := newSweepStore()
	scope := model.Scope{Org: "acme"}
	writeBatch(t, dir, "good.json", IngestBatch{
		Scope: scope,
		Items: []service.IngestItem{{SourceType: model.SourceWiki, SourceID: "page-1", Text: "hello"}},
	})

	j := NewDropzoneSweepJob(dropzone, service.NewIngestService(store, sweepEmbedder{}, 0))
	err = j.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "1 of 2")

	// the good batch was still imported and removed, the broken one stays
	require.Len(t, store.records, 1)
	keys, err := dropzone.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"broken.json"}, keys)
}

func TestDropzoneSweepNoStoreConfigured(t *testing.T) {
	j := NewDropzoneSweepJob(nil, nil)
	require.NoError(t, j.Run(context.Background()))
}
