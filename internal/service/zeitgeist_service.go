package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/helmsan/kompass/internal/ai"
	"github.com/helmsan/kompass/internal/config"
	"github.com/helmsan/kompass/internal/model"
	appErr "github.com/helmsan/kompass/internal/pkg/errors"
	"github.com/helmsan/kompass/internal/pkg/fallback"
	"github.com/helmsan/kompass/internal/signal"
)

const sourceFetchTimeout = 30 * time.Second

type topicStore interface {
	SaveGeneration(ctx context.Context, scope model.Scope, topics []model.Topic) (int64, error)
	GetCurrent(ctx context.Context, scope model.Scope) (*model.TopicGeneration, []model.Topic, error)
}

type runStore interface {
	Create(ctx context.Context, run *model.RefreshRun) error
	Finalize(ctx context.Context, run *model.RefreshRun) error
	ListRecent(ctx context.Context, scope model.Scope, limit int) ([]model.RefreshRun, error)
}

type knowledgeSearcher interface {
	SearchKnowledge(ctx context.Context, query string, opts SearchOptions) (*SearchOutput, error)
}

// ZeitgeistService fuses weighted, decaying activity signals into a ranked
// topic cache. One refresh cycle walks Collecting, Scoring, Validating and
// Persisting; any stage failing leaves the previous cache generation in
// place.
type ZeitgeistService struct {
	sources  []signal.Source
	topics   topicStore
	runs     runStore
	search   knowledgeSearcher
	embedder ai.IEmbedder
	cfg      config.ZeitgeistConfig
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]*model.RefreshRun
}

func NewZeitgeistService(sources []signal.Source, topics topicStore, runs runStore, search knowledgeSearcher, embedder ai.IEmbedder, cfg config.ZeitgeistConfig) *ZeitgeistService {
	return &ZeitgeistService{
		sources:  sources,
		topics:   topics,
		runs:     runs,
		search:   search,
		embedder: embedder,
		cfg:      cfg,
		now:      time.Now,
		inflight: make(map[string]*model.RefreshRun),
	}
}

// Refresh triggers a cycle for the scope and returns immediately. A cycle
// already in flight for the same scope makes the trigger a no-op returning
// that run.
func (s *ZeitgeistService) Refresh(scope model.Scope) (*model.RefreshRun, error) {
	run, err := s.begin(scope)
	if err != nil {
		return run, err
	}
	go func() {
		budget := time.Duration(s.cfg.RefreshBudgetSeconds) * time.Second
		ctx, cancel := context.WithTimeout(context.Background(), budget)
		defer cancel()
		s.runCycle(ctx, scope, run)
	}()
	snapshot := *run
	return &snapshot, nil
}

// RunCycle executes a full cycle synchronously; the cron job uses it so one
// scheduled invocation covers the whole set of scopes back to back.
func (s *ZeitgeistService) RunCycle(ctx context.Context, scope model.Scope) (*model.RefreshRun, error) {
	run, err := s.begin(scope)
	if err != nil {
		return run, err
	}
	budget := time.Duration(s.cfg.RefreshBudgetSeconds) * time.Second
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	s.runCycle(ctx, scope, run)
	snapshot := *run
	return &snapshot, nil
}

func (s *ZeitgeistService) begin(scope model.Scope) (*model.RefreshRun, error) {
	if !scope.IsValid() {
		return nil, appErr.ErrInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.inflight[scope.Key()]; ok {
		snapshot := *current
		return &snapshot, appErr.ErrRefreshInProgress
	}
	run := &model.RefreshRun{
		ID:              newID(),
		Scope:           scope,
		StartedAt:       s.now().Unix(),
		InProgress:      true,
		SourceBreakdown: map[string]int{},
		SourceSuccess:   map[string]bool{},
	}
	s.inflight[scope.Key()] = run
	return run, nil
}

func (s *ZeitgeistService) finish(run *model.RefreshRun) {
	s.mu.Lock()
	delete(s.inflight, run.Scope.Key())
	s.mu.Unlock()
}

func (s *ZeitgeistService) runCycle(ctx context.Context, scope model.Scope, run *model.RefreshRun) {
	defer s.finish(run)
	logger := logutil.GetLogger(ctx).With(zap.String("run_id", run.ID), zap.String("scope", scope.Key()))
	if err := s.runs.Create(ctx, run); err != nil {
		logger.Error("record refresh run failed", zap.Error(err))
	}

	persisted := s.executeStages(ctx, scope, run, logger)

	// A budget that expires after the generation landed does not undo the
	// persist; only a cut-short cycle counts as a timeout.
	if ctx.Err() != nil && !persisted {
		run.Errors = append(run.Errors, appErr.ErrRefreshTimeout.Error())
		run.Success = false
	} else {
		sourcesOK := 0
		for _, ok := range run.SourceSuccess {
			if ok {
				sourcesOK++
			}
		}
		run.Success = sourcesOK > 0 && (persisted || run.TopicCount == 0)
	}
	run.FinishedAt = s.now().Unix()
	run.InProgress = false
	if err := s.runs.Finalize(context.WithoutCancel(ctx), run); err != nil {
		logger.Error("finalize refresh run failed", zap.Error(err))
	}
	logger.Info("refresh cycle finished",
		zap.Bool("success", run.Success),
		zap.Int("topics", run.TopicCount),
		zap.Any("breakdown", run.SourceBreakdown))
}

// executeStages reports whether a new generation was persisted.
func (s *ZeitgeistService) executeStages(ctx context.Context, scope model.Scope, run *model.RefreshRun, logger *zap.Logger) bool {
	// Collecting: every source attempted, failures absorbed
	signals := s.collect(ctx, scope, run)
	if ctx.Err() != nil {
		return false
	}

	// Scoring: cluster into canonical topics with decayed weighted scores
	topics := s.score(ctx, signals)
	run.TopicCount = len(topics)
	if len(topics) == 0 {
		logger.Info("no topics scored, keeping previous cache generation")
		return false
	}
	if ctx.Err() != nil {
		return false
	}

	// Validating: check which topics the knowledge base already answers
	s.validate(ctx, scope, topics)
	if ctx.Err() != nil {
		return false
	}

	// Persisting: rank and write the new generation; trend needs the
	// previous one before the pointer flips
	s.applyTrend(ctx, scope, topics)
	sort.SliceStable(topics, func(i, j int) bool {
		if topics[i].RawScore != topics[j].RawScore {
			return topics[i].RawScore > topics[j].RawScore
		}
		return topics[i].Frequency > topics[j].Frequency
	})
	if _, err := s.topics.SaveGeneration(ctx, scope, topics); err != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("persist: %v", err))
		logger.Error("persist topic generation failed", zap.Error(err))
		return false
	}
	return true
}

func (s *ZeitgeistService) collect(ctx context.Context, scope model.Scope, run *model.RefreshRun) []weightedSignal {
	since := s.now().AddDate(0, 0, -s.cfg.WindowDays)
	attempts := make([]fallback.Attempt[[]model.RawSignal], 0, len(s.sources))
	for _, src := range s.sources {
		attempts = append(attempts, fallback.Attempt[[]model.RawSignal]{
			Name: src.Name(),
			Run: func(ctx context.Context) ([]model.RawSignal, error) {
				return src.Fetch(ctx, scope, since)
			},
		})
	}
	outcomes := fallback.SettleAll(ctx, sourceFetchTimeout, attempts)

	weights := s.sourceWeights()
	var collected []weightedSignal
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			run.SourceSuccess[outcome.Name] = false
			run.SourceBreakdown[outcome.Name] = 0
			run.Errors = append(run.Errors, fmt.Sprintf("%s: %v", outcome.Name, outcome.Err))
			continue
		}
		run.SourceSuccess[outcome.Name] = true
		run.SourceBreakdown[outcome.Name] = len(outcome.Value)
		for _, sig := range outcome.Value {
			collected = append(collected, weightedSignal{RawSignal: sig, weight: weights[sig.Source]})
		}
	}
	return collected
}

func (s *ZeitgeistService) sourceWeights() map[string]float64 {
	weights := make(map[string]float64, len(s.sources))
	for _, src := range s.sources {
		w := src.Weight()
		if w <= 0 {
			w = s.cfg.SourceWeights[src.Name()]
		}
		if w <= 0 {
			w = 1
		}
		weights[src.Name()] = w
	}
	return weights
}

func (s *ZeitgeistService) score(ctx context.Context, signals []weightedSignal) []model.Topic {
	signals = dedupSignals(signals)
	if len(signals) == 0 {
		return nil
	}
	clusters := s.cluster(ctx, signals)
	now := s.now()
	topics := make([]model.Topic, 0, len(clusters))
	for _, c := range clusters {
		topics = append(topics, c.toTopic(now, s.cfg.DecayRate))
	}
	return topics
}

// validate checks which topics the knowledge base already answers. Topics
// past the configured cap stay Validated=false so a skipped check is never
// mistaken for a verified gap.
func (s *ZeitgeistService) validate(ctx context.Context, scope model.Scope, topics []model.Topic) {
	limit := len(topics)
	if s.cfg.MaxValidatedTopics > 0 && limit > s.cfg.MaxValidatedTopics {
		limit = s.cfg.MaxValidatedTopics
	}
	for i := 0; i < limit; i++ {
		out, err := s.search.SearchKnowledge(ctx, topics[i].QuestionText, SearchOptions{
			MatchCount: 1,
			Scope:      scope,
		})
		if err != nil {
			continue
		}
		topics[i].Validated = true
		if len(out.Results) == 0 {
			continue
		}
		confidence := out.Results[0].Similarity
		topics[i].AnswerConfidence = confidence
		topics[i].HasGoodAnswer = confidence >= s.cfg.AnswerThreshold
	}
}

func (s *ZeitgeistService) applyTrend(ctx context.Context, scope model.Scope, topics []model.Topic) {
	_, previous, err := s.topics.GetCurrent(ctx, scope)
	if err != nil {
		return
	}
	prevScores := make(map[string]float64, len(previous))
	for _, t := range previous {
		prevScores[t.ID] = t.RawScore
	}
	for i := range topics {
		topics[i].Trend = topics[i].RawScore - prevScores[topics[i].ID]
	}
}

// Suggestions serves the top-K topics from the current cache generation.
// It degrades to built-in defaults rather than ever answering empty.
func (s *ZeitgeistService) Suggestions(ctx context.Context, scope model.Scope) []model.Topic {
	if !scope.IsValid() {
		return defaultSuggestions()
	}
	_, topics, err := s.topics.GetCurrent(ctx, scope)
	if err != nil || len(topics) == 0 {
		if err != nil && !appErr.IsNotFound(err) {
			logutil.GetLogger(ctx).Warn("topic cache read failed, serving defaults", zap.Error(err))
		}
		return defaultSuggestions()
	}
	if len(topics) > s.cfg.SuggestionCount {
		topics = topics[:s.cfg.SuggestionCount]
	}
	return topics
}

type TrendingOutput struct {
	Topics      []model.Topic  `json:"topics"`
	Generation  int64          `json:"generation"`
	RefreshedAt int64          `json:"refreshed_at"`
	BySource    map[string]int `json:"by_source"`
}

// Trending is the uncapped admin view with per-source breakdown.
func (s *ZeitgeistService) Trending(ctx context.Context, scope model.Scope) (*TrendingOutput, error) {
	if !scope.IsValid() {
		return nil, appErr.ErrInvalid
	}
	gen, topics, err := s.topics.GetCurrent(ctx, scope)
	if err != nil {
		if appErr.IsNotFound(err) {
			return &TrendingOutput{Topics: []model.Topic{}, BySource: map[string]int{}}, nil
		}
		return nil, err
	}
	bySource := map[string]int{}
	for _, t := range topics {
		for _, src := range t.Sources {
			bySource[src.Type] += src.Count
		}
	}
	return &TrendingOutput{
		Topics:      topics,
		Generation:  gen.ID,
		RefreshedAt: gen.Ctime,
		BySource:    bySource,
	}, nil
}

func (s *ZeitgeistService) RecentRuns(ctx context.Context, scope model.Scope, limit int) ([]model.RefreshRun, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.runs.ListRecent(ctx, scope, limit)
}

func defaultSuggestions() []model.Topic {
	texts := []string{
		"How do I get started?",
		"Where is the product documentation?",
		"How do I report a bug?",
		"What changed in the latest release?",
		"How do I request access?",
		"Who do I contact for support?",
	}
	topics := make([]model.Topic, 0, len(texts))
	for _, text := range texts {
		topics = append(topics, model.Topic{
			ID:           topicID(text),
			QuestionText: text,
			Category:     model.CategoryOther,
		})
	}
	return topics
}

func newID() string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
