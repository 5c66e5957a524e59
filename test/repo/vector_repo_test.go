package repo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/helmsan/kompass/internal/model"
	appErr "github.com/helmsan/kompass/internal/pkg/errors"
	"github.com/helmsan/kompass/internal/repo"
	"github.com/helmsan/kompass/test/testutil"
)

func testRecord(scope model.Scope, st model.SourceType, id, provider string, vec []float32, mtime int64) *model.VectorRecord {
	return &model.VectorRecord{
		SourceType: st,
		SourceID:   id,
		Scope:      scope,
		Provider:   provider,
		Dimension:  len(vec),
		Content:    "content for " + id,
		Hash:       "hash-" + id,
		Metadata:   model.Metadata{Kind: st},
		Embedding:  vec,
		Ctime:      mtime,
		Mtime:      mtime,
	}
}

func TestVectorRepoUpsertIsIdempotent(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	vectors := repo.NewVectorRepo(conn)
	scope := model.Scope{Org: testutil.RandomOrg(t), Division: "platform", App: "helpdesk"}
	ctx := context.Background()

	rec := testRecord(scope, model.SourceWiki, "page-1", "alpha", []float32{1, 0, 0}, 100)
	require.NoError(t, vectors.Upsert(ctx, rec))
	rec.Content = "updated content"
	rec.Hash = "hash-2"
	rec.Mtime = 200
	require.NoError(t, vectors.Upsert(ctx, rec))

	got, err := vectors.GetBySource(ctx, scope, model.SourceWiki, "page-1")
	require.NoError(t, err)
	require.Equal(t, "updated content", got.Content)
	require.Equal(t, "hash-2", got.Hash)
	require.Equal(t, int64(100), got.Ctime)
	require.Equal(t, int64(200), got.Mtime)

	results, err := vectors.Search(ctx, repo.SearchQuery{
		Scope: scope, Provider: "alpha", Vector: []float32{1, 0, 0}, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestVectorRepoScopeContainment(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	vectors := repo.NewVectorRepo(conn)
	ctx := context.Background()
	scopeA := model.Scope{Org: testutil.RandomOrg(t)}
	scopeB := model.Scope{Org: testutil.RandomOrg(t)}

	require.NoError(t, vectors.Upsert(ctx, testRecord(scopeA, model.SourceWiki, "page-a", "alpha", []float32{1, 0, 0}, 1)))
	require.NoError(t, vectors.Upsert(ctx, testRecord(scopeB, model.SourceWiki, "page-b", "alpha", []float32{1, 0, 0}, 1)))

	results, err := vectors.Search(ctx, repo.SearchQuery{
		Scope: scopeA, Provider: "alpha", Vector: []float32{1, 0, 0}, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "page-a", results[0].Record.SourceID)
}

func TestVectorRepoProviderBucketsNeverMix(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	vectors := repo.NewVectorRepo(conn)
	ctx := context.Background()
	scope := model.Scope{Org: testutil.RandomOrg(t)}

	require.NoError(t, vectors.Upsert(ctx, testRecord(scope, model.SourceWiki, "page-3d", "alpha", []float32{1, 0, 0}, 1)))
	require.NoError(t, vectors.Upsert(ctx, testRecord(scope, model.SourceIssue, "issue-4d", "beta", []float32{0, 1, 0, 0}, 1)))

	results, err := vectors.Search(ctx, repo.SearchQuery{
		Scope: scope, Provider: "alpha", Vector: []float32{1, 0, 0}, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "alpha", results[0].Record.Provider)

	providers, err := vectors.ProvidersInScope(ctx, scope)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"alpha", "beta"}, providers)
}

func TestVectorRepoSearchFilters(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	vectors := repo.NewVectorRepo(conn)
	ctx := context.Background()
	scope := model.Scope{Org: testutil.RandomOrg(t)}

	require.NoError(t, vectors.Upsert(ctx, testRecord(scope, model.SourceWiki, "w1", "alpha", []float32{1, 0, 0}, 1)))
	require.NoError(t, vectors.Upsert(ctx, testRecord(scope, model.SourceIssue, "i1", "alpha", []float32{0.9, 0.1, 0}, 1)))
	require.NoError(t, vectors.Upsert(ctx, testRecord(scope, model.SourceGit, "g1", "alpha", []float32{0, 0, 1}, 1)))

	results, err := vectors.Search(ctx, repo.SearchQuery{
		Scope:       scope,
		Provider:    "alpha",
		Vector:      []float32{1, 0, 0},
		SourceTypes: []model.SourceType{model.SourceWiki, model.SourceIssue},
		Limit:       10,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	// ordered by ascending distance
	require.Equal(t, "w1", results[0].Record.SourceID)
	require.GreaterOrEqual(t, results[0].Similarity, results[1].Similarity)

	results, err = vectors.Search(ctx, repo.SearchQuery{
		Scope:         scope,
		Provider:      "alpha",
		Vector:        []float32{1, 0, 0},
		Limit:         10,
		MinSimilarity: 0.95,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	_, err = vectors.Search(ctx, repo.SearchQuery{Provider: "alpha", Vector: []float32{1}})
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestVectorRepoChunkedDocument(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	vectors := repo.NewVectorRepo(conn)
	ctx := context.Background()
	scope := model.Scope{Org: testutil.RandomOrg(t)}

	first := testRecord(scope, model.SourceWiki, "runbook", "alpha", []float32{1, 0, 0}, 100)
	second := testRecord(scope, model.SourceWiki, "runbook", "alpha", []float32{0, 1, 0}, 100)
	second.ChunkIndex = 1
	second.Content = "second chunk content"
	require.NoError(t, vectors.Upsert(ctx, first))
	require.NoError(t, vectors.Upsert(ctx, second))

	// chunks are distinct rows visible to search
	results, err := vectors.Search(ctx, repo.SearchQuery{
		Scope: scope, Provider: "alpha", Vector: []float32{1, 1, 0}, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// the first chunk answers the hash lookup
	got, err := vectors.GetBySource(ctx, scope, model.SourceWiki, "runbook")
	require.NoError(t, err)
	require.Equal(t, 0, got.ChunkIndex)

	// recent-edit listing counts the document once
	records, err := vectors.ListRecentlyEdited(ctx, scope, 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	// delete removes every chunk
	require.NoError(t, vectors.DeleteBySource(ctx, scope, model.SourceWiki, "runbook"))
	_, err = vectors.GetBySource(ctx, scope, model.SourceWiki, "runbook")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestVectorRepoDeleteBySource(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	vectors := repo.NewVectorRepo(conn)
	ctx := context.Background()
	scope := model.Scope{Org: testutil.RandomOrg(t)}

	require.NoError(t, vectors.Upsert(ctx, testRecord(scope, model.SourceWiki, "gone", "alpha", []float32{1, 0, 0}, 1)))
	require.NoError(t, vectors.DeleteBySource(ctx, scope, model.SourceWiki, "gone"))

	_, err := vectors.GetBySource(ctx, scope, model.SourceWiki, "gone")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestVectorRepoListRecentlyEdited(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	vectors := repo.NewVectorRepo(conn)
	ctx := context.Background()
	scope := model.Scope{Org: testutil.RandomOrg(t)}

	require.NoError(t, vectors.Upsert(ctx, testRecord(scope, model.SourceWiki, "old", "alpha", []float32{1, 0, 0}, 100)))
	require.NoError(t, vectors.Upsert(ctx, testRecord(scope, model.SourceWiki, "new", "alpha", []float32{0, 1, 0}, 500)))

	records, err := vectors.ListRecentlyEdited(ctx, scope, 200, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "new", records[0].SourceID)
}
