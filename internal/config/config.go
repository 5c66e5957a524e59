package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port             int              `json:"port"`
	LogConfig        logger.LogConfig `json:"log_config"`
	Database         DatabaseConfig   `json:"database"`
	ScopeTokenSecret string           `json:"scope_token_secret"`
	CORSAllowlist    []string         `json:"cors_allowlist"`
	Providers        []ProviderConfig `json:"providers"`
	EmbedCache       EmbedCacheConfig `json:"embed_cache"`
	Search           SearchConfig     `json:"search"`
	Zeitgeist        ZeitgeistConfig  `json:"zeitgeist"`
	Signals          SignalsConfig    `json:"signal_sources"`
	Dropzone         DropzoneConfig   `json:"dropzone"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

// ProviderConfig describes one embedding backend. Name is the stable bucket
// tag stored on every vector record; records tagged with different names are
// never compared.
type ProviderConfig struct {
	Name          string      `json:"name"`
	Type          string      `json:"type"`
	Model         string      `json:"model"`
	Dimension     int         `json:"dimension"`
	MaxInputChars int         `json:"max_input_chars"`
	TimeoutSecs   int         `json:"timeout_seconds"`
	Args          interface{} `json:"args"`
}

type EmbedCacheConfig struct {
	LRUSize      int `json:"lru_size"`
	LRUTTLMins   int `json:"lru_ttl_minutes"`
	DBMaxAgeDays int `json:"db_max_age_days"`
}

type SearchConfig struct {
	DefaultMatchCount   int      `json:"default_match_count"`
	CandidateMultiplier int      `json:"candidate_multiplier"`
	MinSimilarity       float64  `json:"min_similarity"`
	SourcePriority      []string `json:"source_priority"`
	RateLimitMS         int      `json:"rate_limit_ms"`
}

type ZeitgeistConfig struct {
	WindowDays           int                `json:"window_days"`
	DecayRate            float64            `json:"decay_rate"`
	SourceWeights        map[string]float64 `json:"source_weights"`
	ClusterThreshold     float64            `json:"cluster_threshold"`
	AnswerThreshold      float64            `json:"answer_threshold"`
	SuggestionCount      int                `json:"suggestion_count"`
	MaxValidatedTopics   int                `json:"max_validated_topics"`
	RefreshBudgetSeconds int                `json:"refresh_budget_seconds"`
	CronSpec             string             `json:"cron_spec"`
}

type SignalsConfig struct {
	Issues       RemoteSourceConfig `json:"issues"`
	TestFailures RemoteSourceConfig `json:"test_failures"`
	Feedback     LocalSourceConfig  `json:"feedback"`
	DocEdits     LocalSourceConfig  `json:"doc_edits"`
}

type RemoteSourceConfig struct {
	Enable      bool   `json:"enable"`
	BaseURL     string `json:"base_url"`
	Token       string `json:"token"`
	Project     string `json:"project"`
	TimeoutSecs int    `json:"timeout_seconds"`
}

type LocalSourceConfig struct {
	Enable bool `json:"enable"`
}

type DropzoneConfig struct {
	Type      string      `json:"type"`
	SweepCron string      `json:"sweep_cron"`
	Data      interface{} `json:"data"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.ScopeTokenSecret == "" {
		return nil, fmt.Errorf("scope_token_secret is required")
	}
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("at least one embedding provider is required")
	}
	seen := map[string]bool{}
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.Name == "" || p.Type == "" || p.Model == "" {
			return nil, fmt.Errorf("providers[%d]: name/type/model are required", i)
		}
		if p.Dimension <= 0 {
			return nil, fmt.Errorf("providers[%d]: dimension is required", i)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("providers[%d]: duplicate provider name %s", i, p.Name)
		}
		seen[p.Name] = true
		if p.MaxInputChars == 0 {
			p.MaxInputChars = 8000
		}
		if p.TimeoutSecs == 0 {
			p.TimeoutSecs = 15
		}
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	applySearchDefaults(&cfg.Search)
	applyZeitgeistDefaults(&cfg.Zeitgeist)
	if cfg.EmbedCache.LRUSize == 0 {
		cfg.EmbedCache.LRUSize = 10000
	}
	if cfg.EmbedCache.LRUTTLMins == 0 {
		cfg.EmbedCache.LRUTTLMins = 120
	}
	if cfg.EmbedCache.DBMaxAgeDays == 0 {
		cfg.EmbedCache.DBMaxAgeDays = 30
	}
	if cfg.Dropzone.Type != "" && cfg.Dropzone.SweepCron == "" {
		cfg.Dropzone.SweepCron = "*/30 * * * *"
	}
	return &cfg, nil
}

func applySearchDefaults(cfg *SearchConfig) {
	if cfg.DefaultMatchCount == 0 {
		cfg.DefaultMatchCount = 8
	}
	if cfg.CandidateMultiplier == 0 {
		cfg.CandidateMultiplier = 4
	}
	if len(cfg.SourcePriority) == 0 {
		cfg.SourcePriority = []string{"knowledge", "issue", "wiki", "email", "git", "crawl"}
	}
	if cfg.RateLimitMS == 0 {
		cfg.RateLimitMS = 500
	}
}

func applyZeitgeistDefaults(cfg *ZeitgeistConfig) {
	if cfg.WindowDays == 0 {
		cfg.WindowDays = 14
	}
	if cfg.DecayRate == 0 {
		// halves roughly every 9 days, ~10% left after 30
		cfg.DecayRate = 0.0768
	}
	if len(cfg.SourceWeights) == 0 {
		cfg.SourceWeights = map[string]float64{
			"feedback":      3.0,
			"issues":        1.5,
			"test_failures": 1.0,
			"doc_edits":     0.5,
		}
	}
	if cfg.ClusterThreshold == 0 {
		cfg.ClusterThreshold = 0.83
	}
	if cfg.AnswerThreshold == 0 {
		cfg.AnswerThreshold = 0.72
	}
	if cfg.SuggestionCount == 0 {
		cfg.SuggestionCount = 6
	}
	if cfg.MaxValidatedTopics == 0 {
		cfg.MaxValidatedTopics = 30
	}
	if cfg.RefreshBudgetSeconds == 0 {
		cfg.RefreshBudgetSeconds = 300
	}
	if cfg.CronSpec == "" {
		cfg.CronSpec = "0 5 * * *"
	}
}
