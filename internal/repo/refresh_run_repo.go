package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/helmsan/kompass/internal/model"
)

type RefreshRunRepo struct {
	db *sql.DB
}

func NewRefreshRunRepo(db *sql.DB) *RefreshRunRepo {
	return &RefreshRunRepo{db: db}
}

func (r *RefreshRunRepo) Create(ctx context.Context, run *model.RefreshRun) error {
	const query = `
		INSERT INTO refresh_runs (id, org, division, app, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.Scope.Org, run.Scope.Division, run.Scope.App, run.StartedAt)
	return err
}

func (r *RefreshRunRepo) Finalize(ctx context.Context, run *model.RefreshRun) error {
	breakdown, err := json.Marshal(run.SourceBreakdown)
	if err != nil {
		return err
	}
	success, err := json.Marshal(run.SourceSuccess)
	if err != nil {
		return err
	}
	errList, err := json.Marshal(run.Errors)
	if err != nil {
		return err
	}
	const query = `
		UPDATE refresh_runs SET
			finished_at = $2, success = $3, source_breakdown = $4,
			source_success = $5, errors = $6, topic_count = $7
		WHERE id = $1
	`
	_, err = r.db.ExecContext(ctx, query,
		run.ID, run.FinishedAt, run.Success, breakdown, success, errList, run.TopicCount)
	return err
}

func (r *RefreshRunRepo) ListRecent(ctx context.Context, scope model.Scope, limit int) ([]model.RefreshRun, error) {
	const query = `
		SELECT id, org, division, app, started_at, finished_at, success,
			source_breakdown, source_success, errors, topic_count
		FROM refresh_runs
		WHERE org = $1 AND division = $2 AND app = $3
		ORDER BY started_at DESC
		LIMIT $4
	`
	rows, err := r.db.QueryContext(ctx, query, scope.Org, scope.Division, scope.App, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []model.RefreshRun
	for rows.Next() {
		var run model.RefreshRun
		var breakdown, success, errList []byte
		if err := rows.Scan(
			&run.ID, &run.Scope.Org, &run.Scope.Division, &run.Scope.App,
			&run.StartedAt, &run.FinishedAt, &run.Success,
			&breakdown, &success, &errList, &run.TopicCount,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(breakdown, &run.SourceBreakdown); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(success, &run.SourceSuccess); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(errList, &run.Errors); err != nil {
			return nil, err
		}
		run.InProgress = run.FinishedAt == 0
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
