package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/helmsan/kompass/internal/model"
	"github.com/helmsan/kompass/internal/pkg/dbutil"
	appErr "github.com/helmsan/kompass/internal/pkg/errors"
)

type VectorRepo struct {
	db *sql.DB
}

func NewVectorRepo(db *sql.DB) *VectorRepo {
	return &VectorRepo{db: db}
}

// SearchQuery restricts a similarity scan to one scope and one provider
// bucket. The query vector must match the bucket's dimension.
type SearchQuery struct {
	Scope         model.Scope
	Provider      string
	Vector        []float32
	SourceTypes   []model.SourceType
	Limit         int
	MinSimilarity float64
}

func (r *VectorRepo) Upsert(ctx context.Context, rec *model.VectorRecord) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO vector_records
			(source_type, source_id, chunk_index, org, division, app, provider, dimension,
			 content, content_hash, metadata, embedding, ctime, mtime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (source_type, source_id, chunk_index, org, division, app) DO UPDATE SET
			provider = EXCLUDED.provider,
			dimension = EXCLUDED.dimension,
			content = EXCLUDED.content,
			content_hash = EXCLUDED.content_hash,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			mtime = EXCLUDED.mtime
	`
	_, err = r.db.ExecContext(ctx, query,
		rec.SourceType, rec.SourceID, rec.ChunkIndex,
		rec.Scope.Org, rec.Scope.Division, rec.Scope.App,
		rec.Provider, rec.Dimension,
		rec.Content, rec.Hash, meta,
		pgvector.NewVector(rec.Embedding),
		rec.Ctime, rec.Mtime,
	)
	return err
}

// GetBySource returns the document's first chunk, which carries the
// whole-document content hash the ingest short-circuit compares against.
func (r *VectorRepo) GetBySource(ctx context.Context, scope model.Scope, sourceType model.SourceType, sourceID string) (*model.VectorRecord, error) {
	where := map[string]interface{}{
		"source_type": string(sourceType),
		"source_id":   sourceID,
		"org":         scope.Org,
		"division":    scope.Division,
		"app":         scope.App,
		"_orderby":    "chunk_index asc",
		"_limit":      []uint{0, 1},
	}
	sqlStr, args, err := builder.BuildSelect("vector_records", where,
		[]string{"id", "source_type", "source_id", "chunk_index", "org", "division", "app", "provider", "dimension", "content", "content_hash", "metadata", "ctime", "mtime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Search runs a cosine scan restricted to one provider bucket. Records of
// other providers never enter the distance computation.
func (r *VectorRepo) Search(ctx context.Context, q SearchQuery) ([]model.SearchResult, error) {
	if len(q.Vector) == 0 || q.Provider == "" || !q.Scope.IsValid() {
		return nil, appErr.ErrInvalid
	}
	query := `
		SELECT id, source_type, source_id, chunk_index, org, division, app, provider, dimension,
			content, content_hash, metadata, ctime, mtime,
			1 - (embedding <=> ?) AS similarity
		FROM vector_records
		WHERE org = ? AND division = ? AND app = ?
			AND provider = ? AND dimension = ?
	`
	args := []interface{}{
		pgvector.NewVector(q.Vector),
		q.Scope.Org, q.Scope.Division, q.Scope.App,
		q.Provider, len(q.Vector),
	}
	if len(q.SourceTypes) > 0 {
		types := make([]string, 0, len(q.SourceTypes))
		for _, t := range q.SourceTypes {
			types = append(types, string(t))
		}
		inQuery, inArgs, err := sqlx.In(" AND source_type IN (?)", types)
		if err != nil {
			return nil, err
		}
		query += inQuery
		args = append(args, inArgs...)
	}
	query += " ORDER BY embedding <=> ? LIMIT ?"
	args = append(args, pgvector.NewVector(q.Vector), q.Limit)
	query, args = dbutil.Finalize(query, args)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.SearchResult
	for rows.Next() {
		var rec model.VectorRecord
		var meta []byte
		var similarity float64
		if err := rows.Scan(
			&rec.ID, &rec.SourceType, &rec.SourceID, &rec.ChunkIndex,
			&rec.Scope.Org, &rec.Scope.Division, &rec.Scope.App,
			&rec.Provider, &rec.Dimension,
			&rec.Content, &rec.Hash, &meta, &rec.Ctime, &rec.Mtime,
			&similarity,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for record %d: %w", rec.ID, err)
		}
		if similarity < q.MinSimilarity {
			continue
		}
		results = append(results, model.SearchResult{Record: rec, Similarity: similarity})
	}
	return results, rows.Err()
}

// ProvidersInScope lists the embedding buckets that actually hold records
// for the scope, so a query is embedded once per bucket and no more.
func (r *VectorRepo) ProvidersInScope(ctx context.Context, scope model.Scope) ([]string, error) {
	const query = `
		SELECT DISTINCT provider FROM vector_records
		WHERE org = $1 AND division = $2 AND app = $3
	`
	rows, err := r.db.QueryContext(ctx, query, scope.Org, scope.Division, scope.App)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var providers []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// ListScopes enumerates every scope that holds records, for the scheduled
// refresh to walk.
func (r *VectorRepo) ListScopes(ctx context.Context) ([]model.Scope, error) {
	const query = `SELECT DISTINCT org, division, app FROM vector_records`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var scopes []model.Scope
	for rows.Next() {
		var scope model.Scope
		if err := rows.Scan(&scope.Org, &scope.Division, &scope.App); err != nil {
			return nil, err
		}
		scopes = append(scopes, scope)
	}
	return scopes, rows.Err()
}

// ListRecentlyEdited feeds the doc-edit signal source. Only the first chunk
// of each document counts, so a long document edited once is one signal.
func (r *VectorRepo) ListRecentlyEdited(ctx context.Context, scope model.Scope, since int64, limit int) ([]model.VectorRecord, error) {
	const query = `
		SELECT id, source_type, source_id, chunk_index, org, division, app, provider, dimension,
			content, content_hash, metadata, ctime, mtime
		FROM vector_records
		WHERE org = $1 AND division = $2 AND app = $3 AND mtime >= $4 AND chunk_index = 0
		ORDER BY mtime DESC
		LIMIT $5
	`
	rows, err := r.db.QueryContext(ctx, query, scope.Org, scope.Division, scope.App, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []model.VectorRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (r *VectorRepo) DeleteBySource(ctx context.Context, scope model.Scope, sourceType model.SourceType, sourceID string) error {
	const query = `
		DELETE FROM vector_records
		WHERE source_type = $1 AND source_id = $2 AND org = $3 AND division = $4 AND app = $5
	`
	_, err := r.db.ExecContext(ctx, query, sourceType, sourceID, scope.Org, scope.Division, scope.App)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*model.VectorRecord, error) {
	var rec model.VectorRecord
	var meta []byte
	if err := row.Scan(
		&rec.ID, &rec.SourceType, &rec.SourceID, &rec.ChunkIndex,
		&rec.Scope.Org, &rec.Scope.Division, &rec.Scope.App,
		&rec.Provider, &rec.Dimension,
		&rec.Content, &rec.Hash, &meta, &rec.Ctime, &rec.Mtime,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata for record %d: %w", rec.ID, err)
	}
	return &rec, nil
}
