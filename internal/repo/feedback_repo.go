package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/didi/gendry/builder"

	"github.com/helmsan/kompass/internal/model"
	"github.com/helmsan/kompass/internal/pkg/dbutil"
)

type FeedbackRepo struct {
	db *sql.DB
}

func NewFeedbackRepo(db *sql.DB) *FeedbackRepo {
	return &FeedbackRepo{db: db}
}

func (r *FeedbackRepo) Add(ctx context.Context, scope model.Scope, question, sentiment string, now int64) error {
	data := map[string]interface{}{
		"org":       scope.Org,
		"division":  scope.Division,
		"app":       scope.App,
		"question":  strings.TrimSpace(question),
		"sentiment": sentiment,
		"ctime":     now,
	}
	sqlStr, args, err := builder.BuildInsert("feedback_entries", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// ListRecent returns negative feedback questions within the signal window.
func (r *FeedbackRepo) ListRecent(ctx context.Context, scope model.Scope, since int64, limit int) ([]model.RawSignal, error) {
	const query = `
		SELECT question, ctime FROM feedback_entries
		WHERE org = $1 AND division = $2 AND app = $3
			AND sentiment = 'negative' AND ctime >= $4
		ORDER BY ctime DESC
		LIMIT $5
	`
	rows, err := r.db.QueryContext(ctx, query, scope.Org, scope.Division, scope.App, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var signals []model.RawSignal
	for rows.Next() {
		var question string
		var ctime int64
		if err := rows.Scan(&question, &ctime); err != nil {
			return nil, err
		}
		signals = append(signals, model.RawSignal{
			Source:     "feedback",
			Kind:       model.SignalComplaint,
			Text:       question,
			OccurredAt: ctime,
		})
	}
	return signals, rows.Err()
}
