package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/helmsan/kompass/internal/ingeststore"
	"github.com/helmsan/kompass/internal/model"
	"github.com/helmsan/kompass/internal/service"
)

// IngestBatch is the JSON layout of a dropzone batch file written by the
// crawler pipelines.
type IngestBatch struct {
	Scope model.Scope          `json:"scope"`
	Items []service.IngestItem `json:"items"`
}

// DropzoneSweepJob imports crawler batch files from the dropzone. Each file is
// removed only after its batch was accepted; failed files stay behind for the
// next sweep.
type DropzoneSweepJob struct {
	store  ingeststore.Store
	ingest *service.IngestService
}

func NewDropzoneSweepJob(store ingeststore.Store, ingest *service.IngestService) *DropzoneSweepJob {
	return &DropzoneSweepJob{store: store, ingest: ingest}
}

func (j *DropzoneSweepJob) Name() string {
	return "dropzone_sweep"
}

func (j *DropzoneSweepJob) Run(ctx context.Context) error {
	if j.store == nil || j.ingest == nil {
		return nil
	}
	keys, err := j.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list dropzone: %w", err)
	}
	logger := logutil.GetLogger(ctx)
	var failed int
	for _, key := range keys {
		if err := j.sweepOne(ctx, key); err != nil {
			failed++
			logger.Error("import batch failed", zap.String("key", key), zap.Error(err))
		}
	}
	if failed > 0 {
		return fmt.Errorf("sweep failed for %d of %d batches", failed, len(keys))
	}
	return nil
}

func (j *DropzoneSweepJob) sweepOne(ctx context.Context, key string) error {
	rc, err := j.store.Open(ctx, key)
	if err != nil {
		return fmt.Errorf("open batch: %w", err)
	}
	defer rc.Close()
	batch := &IngestBatch{}
	if err := json.NewDecoder(rc).Decode(batch); err != nil {
		return fmt.Errorf("decode batch: %w", err)
	}
	report, err := j.ingest.Ingest(ctx, batch.Scope, batch.Items)
	if err != nil {
		return fmt.Errorf("ingest batch: %w", err)
	}
	logutil.GetLogger(ctx).Info("batch imported",
		zap.String("key", key),
		zap.String("scope", batch.Scope.Key()),
		zap.Int("accepted", report.Accepted),
		zap.Int("skipped", report.Skipped),
		zap.Int("rejected", report.Rejected),
	)
	return j.store.Remove(ctx, key)
}
