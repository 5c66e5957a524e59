package signal

import (
	"context"
	"time"

	"github.com/helmsan/kompass/internal/model"
	"github.com/helmsan/kompass/internal/repo"
)

// FeedbackSource reads explicit negative chat feedback. It carries the
// highest default weight: a user saying an answer did not help is the most
// intentional signal the aggregator sees.
type FeedbackSource struct {
	repo   *repo.FeedbackRepo
	weight float64
}

func NewFeedbackSource(repo *repo.FeedbackRepo, weight float64) *FeedbackSource {
	return &FeedbackSource{repo: repo, weight: weight}
}

func (s *FeedbackSource) Name() string {
	return "feedback"
}

func (s *FeedbackSource) Weight() float64 {
	return s.weight
}

func (s *FeedbackSource) Fetch(ctx context.Context, scope model.Scope, since time.Time) ([]model.RawSignal, error) {
	return s.repo.ListRecent(ctx, scope, since.Unix(), fetchLimit)
}
