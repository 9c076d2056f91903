package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port        int              `json:"port"`
	JWTSecret   string           `json:"jwt_secret"`
	JWTTTLHours int              `json:"jwt_ttl_hours"`
	CORSOrigins []string         `json:"cors_origins"`
	LogConfig   logger.LogConfig `json:"log_config"`
	Database    DatabaseConfig   `json:"database"`
	AI          AIConfig         `json:"ai"`
	Policy      PolicyConfig     `json:"policy"`
	Trace       TraceConfig      `json:"trace"`
	Agent       AgentConfig      `json:"agent"`
	Redis       RedisConfig      `json:"redis"`
	FileStore   FileStoreConfig  `json:"file_store"`
	Jobs        JobsConfig       `json:"jobs"`
	UploadLimit int64            `json:"upload_limit_bytes"`
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

// AIFallbackConfig is one failover provider tried when the primary
// errors. Model names default to the primary's.
type AIFallbackConfig struct {
	Provider   string      `json:"provider"`
	Data       interface{} `json:"data"`
	ChatModel  string      `json:"chat_model"`
	EmbedModel string      `json:"embed_model"`
}

type AIConfig struct {
	Provider            string             `json:"provider"`
	Data                interface{}        `json:"data"`
	Fallbacks           []AIFallbackConfig `json:"fallbacks"`
	ChatModel           string             `json:"chat_model"`
	EmbedModel          string             `json:"embed_model"`
	MaxInputChars       int                `json:"max_input_chars"`
	Timeout             int                `json:"timeout_seconds"`
	EmbedCacheSize      int                `json:"embed_cache_size"`
	EmbedCacheTTLMins   int                `json:"embed_cache_ttl_minutes"`
	SimilarityThreshold float64            `json:"similarity_threshold"`
	MaxResults          int                `json:"max_results"`
	ContextTokenBudget  int                `json:"context_token_budget"`
}

// PolicyConfig points at the external authorization (fact) service. When
// Endpoint is empty every check falls back to local role rules.
type PolicyConfig struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	Timeout  int    `json:"timeout_seconds"`
}

// TraceConfig points at the observability ingest endpoint. When Endpoint is
// empty tracing is disabled; traces are buffered and flushed best-effort.
type TraceConfig struct {
	Endpoint  string `json:"endpoint"`
	APIKey    string `json:"api_key"`
	Project   string `json:"project"`
	LogStream string `json:"log_stream"`
	Timeout   int    `json:"timeout_seconds"`
}

type AgentConfig struct {
	Model              string `json:"model"`
	MaxIterations      int    `json:"max_iterations"`
	FallbackAgent      string `json:"fallback_agent"`
	SessionTTL         int    `json:"session_ttl_hours"`
	SessionMaxMessages int    `json:"session_max_messages"`
	MCPCommand         string `json:"mcp_command"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type JobsConfig struct {
	EmbeddingSpec    string `json:"embedding_spec"`
	EmbeddingBatch   int    `json:"embedding_batch"`
	FactResyncSpec   string `json:"fact_resync_spec"`
	TraceFlushSpec   string `json:"trace_flush_spec"`
	DisableSchedules bool   `json:"disable_schedules"`
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
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt_secret is required")
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.JWTTTLHours == 0 {
		cfg.JWTTTLHours = 8
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
	}
	if cfg.AI.ChatModel == "" {
		cfg.AI.ChatModel = "gpt-4o-mini"
	}
	if cfg.AI.EmbedModel == "" {
		cfg.AI.EmbedModel = "text-embedding-3-small"
	}
	if cfg.AI.SimilarityThreshold == 0 {
		cfg.AI.SimilarityThreshold = 0.1
	}
	if cfg.AI.MaxResults == 0 {
		cfg.AI.MaxResults = 5
	}
	if cfg.AI.ContextTokenBudget == 0 {
		cfg.AI.ContextTokenBudget = 6000
	}
	if cfg.Agent.Model == "" {
		cfg.Agent.Model = cfg.AI.ChatModel
	}
	if cfg.Agent.MaxIterations == 0 {
		cfg.Agent.MaxIterations = 10
	}
	if cfg.Agent.SessionTTL == 0 {
		cfg.Agent.SessionTTL = 24
	}
	if cfg.Agent.SessionMaxMessages == 0 {
		cfg.Agent.SessionMaxMessages = 40
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.UploadLimit == 0 {
		cfg.UploadLimit = 20 * 1024 * 1024
	}
	if cfg.Jobs.EmbeddingSpec == "" {
		cfg.Jobs.EmbeddingSpec = "*/5 * * * *"
	}
	if cfg.Jobs.EmbeddingBatch == 0 {
		cfg.Jobs.EmbeddingBatch = 20
	}
	if cfg.Jobs.FactResyncSpec == "" {
		cfg.Jobs.FactResyncSpec = "0 4 * * *"
	}
	if cfg.Jobs.TraceFlushSpec == "" {
		cfg.Jobs.TraceFlushSpec = "* * * * *"
	}
	return &cfg, nil
}
