package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/helmsan/kompass/internal/ai"
	"github.com/helmsan/kompass/internal/model"
	appErr "github.com/helmsan/kompass/internal/pkg/errors"
	"github.com/helmsan/kompass/internal/pkg/fallback"
	"github.com/helmsan/kompass/internal/repo"
)

const providerFanoutTimeout = 20 * time.Second

// vectorSearcher is the slice of the vector repo the orchestrator needs.
type vectorSearcher interface {
	Search(ctx context.Context, q repo.SearchQuery) ([]model.SearchResult, error)
	ProvidersInScope(ctx context.Context, scope model.Scope) ([]string, error)
}

type SearchOptions struct {
	MatchCount  int
	SourceTypes []model.SourceType
	Scope       model.Scope
}

type SearchOutput struct {
	Results []model.SearchResult `json:"results"`
	Stats   model.SearchStats    `json:"stats"`
}

type SearchService struct {
	store               vectorSearcher
	embedders           map[string]ai.IEmbedder
	defaultMatchCount   int
	candidateMultiplier int
	minSimilarity       float64
	priority            map[string]int
}

func NewSearchService(store vectorSearcher, embedders []ai.IEmbedder, defaultMatchCount, candidateMultiplier int, minSimilarity float64, sourcePriority []string) *SearchService {
	byID := make(map[string]ai.IEmbedder, len(embedders))
	for _, e := range embedders {
		byID[e.ProviderID()] = e
	}
	priority := make(map[string]int, len(sourcePriority))
	for i, t := range sourcePriority {
		priority[t] = i
	}
	return &SearchService{
		store:               store,
		embedders:           byID,
		defaultMatchCount:   defaultMatchCount,
		candidateMultiplier: candidateMultiplier,
		minSimilarity:       minSimilarity,
		priority:            priority,
	}
}

// SearchKnowledge embeds the query once per provider bucket present in
// scope, fans out the similarity scans, then merges the per-provider result
// sets into one comparable ranking.
func (s *SearchService) SearchKnowledge(ctx context.Context, query string, opts SearchOptions) (*SearchOutput, error) {
	query = strings.TrimSpace(query)
	if query == "" || !opts.Scope.IsValid() {
		return nil, appErr.ErrInvalid
	}
	matchCount := opts.MatchCount
	if matchCount <= 0 {
		matchCount = s.defaultMatchCount
	}
	for _, t := range opts.SourceTypes {
		if !t.IsValid() {
			return nil, fmt.Errorf("%w: unknown source type %q", appErr.ErrInvalid, t)
		}
	}
	start := time.Now()

	providers, err := s.store.ProvidersInScope(ctx, opts.Scope)
	if err != nil {
		return nil, err
	}
	attempts, unmatched := s.buildAttempts(providers, query, opts, matchCount*s.candidateMultiplier)
	if len(attempts) == 0 {
		if len(unmatched) > 0 {
			// records exist but every bucket belongs to a provider this
			// deployment no longer configures
			logutil.GetLogger(ctx).Warn("scope has records but no searchable provider",
				zap.String("scope", opts.Scope.Key()),
				zap.Strings("unconfigured", unmatched))
		}
		// nothing searchable for this scope: a valid empty outcome
		return &SearchOutput{
			Results: []model.SearchResult{},
			Stats: model.SearchStats{
				SourcesCovered:  []string{},
				ProvidersFailed: unmatched,
				DurationMs:      time.Since(start).Milliseconds(),
			},
		}, nil
	}

	outcomes := fallback.SettleAll(ctx, providerFanoutTimeout, attempts)
	succeeded := fallback.Succeeded(outcomes)
	if len(succeeded) == 0 {
		return nil, fmt.Errorf("%w: all %d providers failed", appErr.ErrSearchUnavailable, len(outcomes))
	}

	var merged []model.SearchResult
	var providersUsed []string
	for _, outcome := range succeeded {
		providersUsed = append(providersUsed, outcome.Name)
		merged = append(merged, normalizeBatch(outcome.Value)...)
	}
	providersFailed := unmatched
	for _, outcome := range fallback.Failed(outcomes) {
		providersFailed = append(providersFailed, outcome.Name)
		logutil.GetLogger(ctx).Warn("provider search failed, serving partial results",
			zap.String("provider", outcome.Name), zap.Error(outcome.Err))
	}

	merged = dedupBySource(merged)
	s.sortResults(merged)
	if len(merged) > matchCount {
		merged = merged[:matchCount]
	}
	assignSourceRanks(merged)

	return &SearchOutput{
		Results: merged,
		Stats: model.SearchStats{
			SourcesCovered:  coveredSources(merged),
			ProvidersUsed:   providersUsed,
			ProvidersFailed: providersFailed,
			DurationMs:      time.Since(start).Milliseconds(),
		},
	}, nil
}

// buildAttempts pairs each provider bucket found in scope with its configured
// embedder. Buckets without one come back in unmatched; their records are
// unreachable until the provider is configured again.
func (s *SearchService) buildAttempts(providers []string, query string, opts SearchOptions, candidateLimit int) (attempts []fallback.Attempt[[]model.SearchResult], unmatched []string) {
	for _, providerID := range providers {
		embedder, ok := s.embedders[providerID]
		if !ok {
			unmatched = append(unmatched, providerID)
			continue
		}
		attempts = append(attempts, fallback.Attempt[[]model.SearchResult]{
			Name: providerID,
			Run: func(ctx context.Context) ([]model.SearchResult, error) {
				vec, err := embedder.Embed(ctx, query, "RETRIEVAL_QUERY")
				if err != nil {
					return nil, fmt.Errorf("%w: %v", appErr.ErrEmbeddingProvider, err)
				}
				return s.store.Search(ctx, repo.SearchQuery{
					Scope:         opts.Scope,
					Provider:      embedder.ProviderID(),
					Vector:        vec,
					SourceTypes:   opts.SourceTypes,
					Limit:         candidateLimit,
					MinSimilarity: s.minSimilarity,
				})
			},
		})
	}
	return attempts, unmatched
}

// normalizeBatch min-max rescales one provider's batch so scores from
// providers with different similarity distributions become comparable. A
// flat batch keeps its raw scores.
func normalizeBatch(batch []model.SearchResult) []model.SearchResult {
	if len(batch) == 0 {
		return batch
	}
	lo, hi := batch[0].Similarity, batch[0].Similarity
	for _, r := range batch[1:] {
		if r.Similarity < lo {
			lo = r.Similarity
		}
		if r.Similarity > hi {
			hi = r.Similarity
		}
	}
	for i := range batch {
		if hi > lo {
			batch[i].Normalized = (batch[i].Similarity - lo) / (hi - lo)
		} else {
			batch[i].Normalized = batch[i].Similarity
		}
	}
	return batch
}

// dedupBySource keeps the highest-normalized representative per
// (sourceType, sourceId): the same document may surface through multiple
// providers or chunks.
func dedupBySource(results []model.SearchResult) []model.SearchResult {
	best := make(map[string]int, len(results))
	var out []model.SearchResult
	for _, r := range results {
		key := string(r.Record.SourceType) + "\x00" + r.Record.SourceID
		if idx, ok := best[key]; ok {
			if r.Normalized > out[idx].Normalized {
				out[idx] = r
			}
			continue
		}
		best[key] = len(out)
		out = append(out, r)
	}
	return out
}

func (s *SearchService) sortResults(results []model.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Normalized != b.Normalized {
			return a.Normalized > b.Normalized
		}
		if a.Record.Mtime != b.Record.Mtime {
			return a.Record.Mtime > b.Record.Mtime
		}
		return s.priorityOf(a.Record.SourceType) < s.priorityOf(b.Record.SourceType)
	})
}

func (s *SearchService) priorityOf(t model.SourceType) int {
	if idx, ok := s.priority[string(t)]; ok {
		return idx
	}
	return len(s.priority)
}

func assignSourceRanks(results []model.SearchResult) {
	counts := map[model.SourceType]int{}
	for i := range results {
		counts[results[i].Record.SourceType]++
		results[i].RankWithinSource = counts[results[i].Record.SourceType]
	}
}

func coveredSources(results []model.SearchResult) []string {
	seen := map[string]bool{}
	covered := []string{}
	for _, r := range results {
		t := string(r.Record.SourceType)
		if !seen[t] {
			seen[t] = true
			covered = append(covered, t)
		}
	}
	return covered
}
