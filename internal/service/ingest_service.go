package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/helmsan/kompass/internal/ai"
	"github.com/helmsan/kompass/internal/model"
	appErr "github.com/helmsan/kompass/internal/pkg/errors"
	"github.com/helmsan/kompass/internal/pkg/mdtext"
)

const defaultChunkChars = 8000

// vectorWriter is the slice of the vector repo the ingest path needs.
type vectorWriter interface {
	Upsert(ctx context.Context, rec *model.VectorRecord) error
	GetBySource(ctx context.Context, scope model.Scope, sourceType model.SourceType, sourceID string) (*model.VectorRecord, error)
	DeleteBySource(ctx context.Context, scope model.Scope, sourceType model.SourceType, sourceID string) error
}

// IngestItem is the contract the crawl/ingest pipelines produce.
type IngestItem struct {
	SourceType model.SourceType `json:"source_type"`
	SourceID   string           `json:"source_id"`
	Text       string           `json:"text"`
	Metadata   json.RawMessage  `json:"metadata"`
	Deleted    bool             `json:"deleted"`
}

type IngestReport struct {
	Accepted int      `json:"accepted"`
	Skipped  int      `json:"skipped"`
	Rejected int      `json:"rejected"`
	Errors   []string `json:"errors,omitempty"`
}

type IngestService struct {
	store         vectorWriter
	embedder      ai.IEmbedder
	maxChunkChars int
	now           func() time.Time
}

// NewIngestService builds the write path. maxChunkChars caps each stored
// chunk so nothing is lost to the embedder's input truncation; 0 picks the
// default.
func NewIngestService(store vectorWriter, embedder ai.IEmbedder, maxChunkChars int) *IngestService {
	if maxChunkChars <= 0 {
		maxChunkChars = defaultChunkChars
	}
	return &IngestService{store: store, embedder: embedder, maxChunkChars: maxChunkChars, now: time.Now}
}

// Ingest embeds and upserts a batch. Items are independent: one bad item is
// rejected and counted, the rest of the batch proceeds.
func (s *IngestService) Ingest(ctx context.Context, scope model.Scope, items []IngestItem) (*IngestReport, error) {
	if !scope.IsValid() {
		return nil, appErr.ErrInvalid
	}
	report := &IngestReport{}
	for i, item := range items {
		if err := s.ingestOne(ctx, scope, item, report); err != nil {
			report.Rejected++
			report.Errors = append(report.Errors, fmt.Sprintf("item %d (%s/%s): %v", i, item.SourceType, item.SourceID, err))
			logutil.GetLogger(ctx).Warn("ingest item rejected",
				zap.String("source_type", string(item.SourceType)),
				zap.String("source_id", item.SourceID),
				zap.Error(err))
		}
	}
	return report, nil
}

func (s *IngestService) ingestOne(ctx context.Context, scope model.Scope, item IngestItem, report *IngestReport) error {
	if !item.SourceType.IsValid() {
		return fmt.Errorf("%w: unknown source type %q", appErr.ErrInvalid, item.SourceType)
	}
	if strings.TrimSpace(item.SourceID) == "" {
		return fmt.Errorf("%w: source_id is required", appErr.ErrInvalid)
	}
	if item.Deleted {
		if err := s.store.DeleteBySource(ctx, scope, item.SourceType, item.SourceID); err != nil {
			return err
		}
		report.Accepted++
		return nil
	}
	chunks := chunkContent(item.SourceType, item.Text, s.maxChunkChars)
	if len(chunks) == 0 {
		return fmt.Errorf("%w: empty text", appErr.ErrInvalid)
	}
	meta, err := model.ParseMetadata(item.SourceType, item.Metadata)
	if err != nil {
		return fmt.Errorf("%w: %v", appErr.ErrInvalid, err)
	}

	// the hash covers the whole document; every chunk carries it so the
	// first chunk answers the changed-or-not question
	hash := contentHash(strings.Join(chunks, "\n"))
	now := s.now().Unix()
	ctime := now
	existing, err := s.store.GetBySource(ctx, scope, item.SourceType, item.SourceID)
	if err == nil {
		if existing.Hash == hash && existing.Provider == s.embedder.ProviderID() {
			report.Skipped++
			return nil
		}
		ctime = existing.Ctime
		// the new content may produce fewer chunks; drop the old set so no
		// stale tail survives. A failed re-embed leaves the document absent
		// until the next crawl retries it.
		if err := s.store.DeleteBySource(ctx, scope, item.SourceType, item.SourceID); err != nil {
			return err
		}
	} else if !appErr.IsNotFound(err) {
		return err
	}

	for idx, chunk := range chunks {
		emb, err := s.embedder.Embed(ctx, chunk, "RETRIEVAL_DOCUMENT")
		if err != nil {
			return fmt.Errorf("%w: %v", appErr.ErrEmbeddingProvider, err)
		}
		if err := s.store.Upsert(ctx, &model.VectorRecord{
			SourceType: item.SourceType,
			SourceID:   item.SourceID,
			ChunkIndex: idx,
			Scope:      scope,
			Provider:   s.embedder.ProviderID(),
			Dimension:  s.embedder.Dimension(),
			Content:    chunk,
			Hash:       hash,
			Metadata:   meta,
			Embedding:  emb,
			Ctime:      ctime,
			Mtime:      now,
		}); err != nil {
			return err
		}
	}
	report.Accepted++
	return nil
}

// chunkContent normalizes a document into embedding-sized plain-text chunks.
// Markdown sources go through the heading-aware splitter; other sources are
// flattened and only split when they exceed the budget.
func chunkContent(sourceType model.SourceType, text string, budget int) []string {
	switch sourceType {
	case model.SourceWiki, model.SourceCrawl, model.SourceKnowledge:
		return mdtext.Chunk(text, budget)
	}
	flat := mdtext.Strip(text)
	if flat == "" {
		return nil
	}
	if len(flat) <= budget {
		return []string{flat}
	}
	return mdtext.Chunk(flat, budget)
}

func contentHash(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])
}
