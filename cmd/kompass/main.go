package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/helmsan/kompass/internal/ai"
	"github.com/helmsan/kompass/internal/config"
	"github.com/helmsan/kompass/internal/db"
	"github.com/helmsan/kompass/internal/embedcache"
	"github.com/helmsan/kompass/internal/handler"
	"github.com/helmsan/kompass/internal/ingeststore"
	"github.com/helmsan/kompass/internal/job"
	"github.com/helmsan/kompass/internal/middleware"
	"github.com/helmsan/kompass/internal/repo"
	"github.com/helmsan/kompass/internal/schedule"
	"github.com/helmsan/kompass/internal/service"
	sigsrc "github.com/helmsan/kompass/internal/signal"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "kompass",
		Short: "kompass knowledge retrieval server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run kompass server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			database, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := db.ApplyMigrations(database); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, database)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func buildEmbedders(cfg *config.Config, cacheRepo *repo.EmbeddingCacheRepo) ([]ai.IEmbedder, error) {
	embedders := make([]ai.IEmbedder, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		provider, err := ai.NewProvider(pc.Type, pc.Args)
		if err != nil {
			return nil, fmt.Errorf("init provider %s: %w", pc.Name, err)
		}
		embedder := ai.NewEmbedder(provider, ai.EmbedderConfig{
			Name:          pc.Name,
			Model:         pc.Model,
			Dimension:     pc.Dimension,
			MaxInputChars: pc.MaxInputChars,
			Timeout:       time.Duration(pc.TimeoutSecs) * time.Second,
		})
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, cacheRepo)
		embedder = embedcache.WrapLruCacheToEmbedder(embedder,
			cfg.EmbedCache.LRUSize,
			time.Duration(cfg.EmbedCache.LRUTTLMins)*time.Minute)
		embedders = append(embedders, embedder)
	}
	return embedders, nil
}

func buildSignalSources(cfg *config.Config, feedbackRepo *repo.FeedbackRepo, vectorRepo *repo.VectorRepo) []sigsrc.Source {
	weights := cfg.Zeitgeist.SourceWeights
	var sources []sigsrc.Source
	if cfg.Signals.Feedback.Enable {
		sources = append(sources, sigsrc.NewFeedbackSource(feedbackRepo, weights["feedback"]))
	}
	if cfg.Signals.Issues.Enable {
		sources = append(sources, sigsrc.NewIssueSource(
			cfg.Signals.Issues.BaseURL,
			cfg.Signals.Issues.Token,
			cfg.Signals.Issues.Project,
			weights["issues"],
			time.Duration(cfg.Signals.Issues.TimeoutSecs)*time.Second,
		))
	}
	if cfg.Signals.TestFailures.Enable {
		sources = append(sources, sigsrc.NewTestFailureSource(
			cfg.Signals.TestFailures.BaseURL,
			cfg.Signals.TestFailures.Token,
			weights["test_failures"],
			time.Duration(cfg.Signals.TestFailures.TimeoutSecs)*time.Second,
		))
	}
	if cfg.Signals.DocEdits.Enable {
		sources = append(sources, sigsrc.NewDocEditSource(vectorRepo, weights["doc_edits"]))
	}
	return sources
}

func runServer(cfg *config.Config, database *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.Int("providers", len(cfg.Providers)),
		zap.String("dropzone", cfg.Dropzone.Type),
	)

	vectorRepo := repo.NewVectorRepo(database)
	topicRepo := repo.NewTopicRepo(database)
	runRepo := repo.NewRefreshRunRepo(database)
	cacheRepo := repo.NewEmbeddingCacheRepo(database)
	feedbackRepo := repo.NewFeedbackRepo(database)

	embedders, err := buildEmbedders(cfg, cacheRepo)
	if err != nil {
		return err
	}
	// first configured provider embeds ingested documents and cluster texts
	primary := embedders[0]

	searchService := service.NewSearchService(
		vectorRepo,
		embedders,
		cfg.Search.DefaultMatchCount,
		cfg.Search.CandidateMultiplier,
		cfg.Search.MinSimilarity,
		cfg.Search.SourcePriority,
	)
	ingestService := service.NewIngestService(vectorRepo, primary, cfg.Providers[0].MaxInputChars)
	sources := buildSignalSources(cfg, feedbackRepo, vectorRepo)
	zeitgeistService := service.NewZeitgeistService(sources, topicRepo, runRepo, searchService, primary, cfg.Zeitgeist)

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewZeitgeistRefreshJob(zeitgeistService, vectorRepo), cfg.Zeitgeist.CronSpec); err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}
	if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(cacheRepo, cfg.EmbedCache.DBMaxAgeDays), "30 4 * * *"); err != nil {
		return fmt.Errorf("schedule cache cleanup: %w", err)
	}
	if err := scheduler.AddJob(job.NewTopicCleanupJob(topicRepo, cfg.Zeitgeist.WindowDays), "45 4 * * *"); err != nil {
		return fmt.Errorf("schedule topic cleanup: %w", err)
	}
	if cfg.Dropzone.Type != "" {
		store, err := ingeststore.New(cfg.Dropzone)
		if err != nil {
			return fmt.Errorf("init dropzone: %w", err)
		}
		if err := scheduler.AddJob(job.NewDropzoneSweepJob(store, ingestService), cfg.Dropzone.SweepCron); err != nil {
			return fmt.Errorf("schedule dropzone sweep: %w", err)
		}
	}

	deps := handler.RouterDeps{
		Search:      handler.NewSearchHandler(searchService),
		Zeitgeist:   handler.NewZeitgeistHandler(zeitgeistService),
		Ingest:      handler.NewIngestHandler(ingestService),
		Feedback:    handler.NewFeedbackHandler(feedbackRepo),
		TokenSecret: []byte(cfg.ScopeTokenSecret),
		RateWindow:  time.Duration(cfg.Search.RateLimitMS) * time.Millisecond,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler.Start(ctx)
	defer scheduler.Stop()

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
