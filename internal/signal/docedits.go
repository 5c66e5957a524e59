package signal

import (
	"context"
	"strings"
	"time"

	"github.com/helmsan/kompass/internal/model"
	"github.com/helmsan/kompass/internal/repo"
)

// DocEditSource treats recently re-ingested knowledge content as a weak
// interest signal: documents being touched tend to track what people ask
// about.
type DocEditSource struct {
	repo   *repo.VectorRepo
	weight float64
}

func NewDocEditSource(repo *repo.VectorRepo, weight float64) *DocEditSource {
	return &DocEditSource{repo: repo, weight: weight}
}

func (s *DocEditSource) Name() string {
	return "doc_edits"
}

func (s *DocEditSource) Weight() float64 {
	return s.weight
}

func (s *DocEditSource) Fetch(ctx context.Context, scope model.Scope, since time.Time) ([]model.RawSignal, error) {
	records, err := s.repo.ListRecentlyEdited(ctx, scope, since.Unix(), fetchLimit)
	if err != nil {
		return nil, err
	}
	signals := make([]model.RawSignal, 0, len(records))
	for _, rec := range records {
		text := rec.Metadata.Title()
		if text == "" {
			text = excerpt(rec.Content, 120)
		}
		if text == "" {
			continue
		}
		signals = append(signals, model.RawSignal{
			Source:     s.Name(),
			Kind:       model.SignalDocEdit,
			Text:       text,
			Ref:        string(rec.SourceType) + "/" + rec.SourceID,
			OccurredAt: rec.Mtime,
		})
	}
	return signals, nil
}

func excerpt(content string, max int) string {
	trimmed := strings.TrimSpace(content)
	runes := []rune(trimmed)
	if len(runes) <= max {
		return trimmed
	}
	return string(runes[:max])
}
