package job

import (
	"context"
	"time"

	"github.com/helmsan/kompass/internal/repo"
)

// TopicCleanupJob removes superseded topic generations. Generations still
// pointed at by a scope's cache state are never deleted.
type TopicCleanupJob struct {
	repo       *repo.TopicRepo
	maxAgeDays int
}

func NewTopicCleanupJob(repo *repo.TopicRepo, maxAgeDays int) *TopicCleanupJob {
	return &TopicCleanupJob{repo: repo, maxAgeDays: maxAgeDays}
}

func (j *TopicCleanupJob) Name() string {
	return "topic_generation_cleanup"
}

func (j *TopicCleanupJob) Run(ctx context.Context) error {
	if j.repo == nil {
		return nil
	}
	maxAgeDays := j.maxAgeDays
	if maxAgeDays <= 0 {
		maxAgeDays = 14
	}
	cutoff := time.Now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour).Unix()
	_, err := j.repo.DeleteGenerationsBefore(ctx, cutoff)
	return err
}
