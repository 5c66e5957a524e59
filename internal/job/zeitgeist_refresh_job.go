package job

import (
	"context"
	"errors"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	kerrors "github.com/helmsan/kompass/internal/pkg/errors"
	"github.com/helmsan/kompass/internal/repo"
	"github.com/helmsan/kompass/internal/service"
)

// ZeitgeistRefreshJob rebuilds the trending-topic cache for every scope that
// holds at least one knowledge record.
type ZeitgeistRefreshJob struct {
	zeitgeist *service.ZeitgeistService
	vectors   *repo.VectorRepo
}

func NewZeitgeistRefreshJob(zeitgeist *service.ZeitgeistService, vectors *repo.VectorRepo) *ZeitgeistRefreshJob {
	return &ZeitgeistRefreshJob{zeitgeist: zeitgeist, vectors: vectors}
}

func (j *ZeitgeistRefreshJob) Name() string {
	return "zeitgeist_refresh"
}

func (j *ZeitgeistRefreshJob) Run(ctx context.Context) error {
	if j.zeitgeist == nil || j.vectors == nil {
		return nil
	}
	scopes, err := j.vectors.ListScopes(ctx)
	if err != nil {
		return fmt.Errorf("list scopes: %w", err)
	}
	logger := logutil.GetLogger(ctx)
	var failed int
	for _, scope := range scopes {
		run, err := j.zeitgeist.RunCycle(ctx, scope)
		if errors.Is(err, kerrors.ErrRefreshInProgress) {
			logger.Info("refresh already running, skipping scope", zap.String("scope", scope.Key()))
			continue
		}
		if err != nil {
			failed++
			logger.Error("refresh scope failed", zap.String("scope", scope.Key()), zap.Error(err))
			continue
		}
		if run != nil && !run.Success {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("refresh failed for %d of %d scopes", failed, len(scopes))
	}
	return nil
}
