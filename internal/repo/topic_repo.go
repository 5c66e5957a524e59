package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/helmsan/kompass/internal/model"
	appErr "github.com/helmsan/kompass/internal/pkg/errors"
)

type TopicRepo struct {
	db *sql.DB
}

func NewTopicRepo(db *sql.DB) *TopicRepo {
	return &TopicRepo{db: db}
}

// SaveGeneration writes a full topic set as a new generation and flips the
// current pointer in the same transaction. Readers see either the old
// generation or the new one, never a mix.
func (r *TopicRepo) SaveGeneration(ctx context.Context, scope model.Scope, topics []model.Topic) (int64, error) {
	if len(topics) == 0 {
		return 0, appErr.ErrInvalid
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	var genID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO topic_generations (org, division, app, topic_count, ctime)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, scope.Org, scope.Division, scope.App, len(topics), now).Scan(&genID)
	if err != nil {
		return 0, err
	}
	for rank, topic := range topics {
		sources, err := json.Marshal(topic.Sources)
		if err != nil {
			return 0, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO topics
				(id, generation_id, question_text, category, raw_score, frequency,
				 sources, trend, has_good_answer, answer_confidence, validated, last_seen, rank)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, topic.ID, genID, topic.QuestionText, topic.Category, topic.RawScore,
			topic.Frequency, sources, topic.Trend, topic.HasGoodAnswer,
			topic.AnswerConfidence, topic.Validated, topic.LastSeen, rank)
		if err != nil {
			return 0, err
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO topic_cache_state (org, division, app, current_generation, mtime)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (org, division, app) DO UPDATE SET
			current_generation = EXCLUDED.current_generation,
			mtime = EXCLUDED.mtime
	`, scope.Org, scope.Division, scope.App, genID, now)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return genID, nil
}

// GetCurrent returns the generation the current pointer names, with its
// topics in rank order. ErrNotFound means no generation has ever been
// persisted for the scope.
func (r *TopicRepo) GetCurrent(ctx context.Context, scope model.Scope) (*model.TopicGeneration, []model.Topic, error) {
	var genID int64
	err := r.db.QueryRowContext(ctx, `
		SELECT current_generation FROM topic_cache_state
		WHERE org = $1 AND division = $2 AND app = $3
	`, scope.Org, scope.Division, scope.App).Scan(&genID)
	if err == sql.ErrNoRows {
		return nil, nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	gen := &model.TopicGeneration{ID: genID, Scope: scope}
	err = r.db.QueryRowContext(ctx, `
		SELECT topic_count, ctime FROM topic_generations WHERE id = $1
	`, genID).Scan(&gen.TopicCount, &gen.Ctime)
	if err != nil {
		return nil, nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, question_text, category, raw_score, frequency, sources,
			trend, has_good_answer, answer_confidence, validated, last_seen
		FROM topics
		WHERE generation_id = $1
		ORDER BY rank
	`, genID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var topics []model.Topic
	for rows.Next() {
		var topic model.Topic
		var sources []byte
		if err := rows.Scan(
			&topic.ID, &topic.QuestionText, &topic.Category, &topic.RawScore,
			&topic.Frequency, &sources, &topic.Trend, &topic.HasGoodAnswer,
			&topic.AnswerConfidence, &topic.Validated, &topic.LastSeen,
		); err != nil {
			return nil, nil, err
		}
		if err := json.Unmarshal(sources, &topic.Sources); err != nil {
			return nil, nil, err
		}
		topics = append(topics, topic)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return gen, topics, nil
}

// DeleteGenerationsBefore drops superseded generations, keeping anything a
// current pointer still references.
func (r *TopicRepo) DeleteGenerationsBefore(ctx context.Context, cutoff int64) (int64, error) {
	const query = `
		DELETE FROM topic_generations
		WHERE ctime < $1
			AND id NOT IN (SELECT current_generation FROM topic_cache_state)
	`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
