package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"

	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
)

type Config struct {
	DBPath      string            `json:"db_path"`
	Port        int               `json:"port"`
	LogConfig   logger.LogConfig  `json:"log_config"`
	VectorIndex VectorIndexConfig `json:"vector_index"`
	AI          AIConfig          `json:"ai"`
	RAG         RAGConfig         `json:"rag"`
	Corpus      CorpusConfig      `json:"corpus"`
	Schedule    ScheduleConfig    `json:"schedule"`
	CORSOrigins []string          `json:"cors_origins"`
	RateLimit   RateLimitConfig   `json:"rate_limit"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type VectorIndexConfig struct {
	Type string `json:"type"`
	// Timeout bounds each index call, in milliseconds.
	Timeout int         `json:"timeout"`
	Data    interface{} `json:"data"`
}

type ProviderConfig struct {
	Name      string      `json:"name"`
	APIKeyEnv string      `json:"api_key_env"`
	Data      interface{} `json:"data"`
}

type AIConfig struct {
	EmbedProviders    []ProviderConfig `json:"embed_providers"`
	GenerateProviders []ProviderConfig `json:"generate_providers"`
	EmbedModel        string           `json:"embed_model"`
	ChatModel         string           `json:"chat_model"`
	// Timeout bounds each model call, in seconds.
	Timeout         int     `json:"timeout"`
	MaxAttempts     int     `json:"max_attempts"`
	RetryDelayMs    int     `json:"retry_delay_ms"`
	RatePerSecond   float64 `json:"rate_per_second"`
	Burst           int     `json:"burst"`
	CacheSize       int     `json:"cache_size"`
	CacheTTLMinutes int     `json:"cache_ttl_minutes"`
	DBCache         bool    `json:"db_cache"`
}

type RAGConfig struct {
	IndexName            string   `json:"index_name"`
	ChunkSize            int      `json:"chunk_size"`
	ChunkOverlap         *int     `json:"chunk_overlap"`
	TopK                 int      `json:"top_k"`
	PromptBudget         int      `json:"prompt_budget"`
	HistoryTurns         int      `json:"history_turns"`
	MaxTurns             int      `json:"max_turns"`
	SessionTTLMinutes    int      `json:"session_ttl_minutes"`
	SessionCapacity      int      `json:"session_capacity"`
	EmbedBatchSize       int      `json:"embed_batch_size"`
	EmbedConcurrency     int      `json:"embed_concurrency"`
	Examples             []string `json:"examples"`
	AssistantDescription string   `json:"assistant_description"`
}

type CorpusConfig struct {
	Location    string   `json:"location"`
	ReindexCron string   `json:"reindex_cron"`
	Extensions  []string `json:"extensions"`
	S3          S3Config `json:"s3"`
}

type S3Config struct {
	Endpoint  string `json:"endpoint"`
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
	Region    string `json:"region"`
	UseSSL    bool   `json:"use_ssl"`
}

type ScheduleConfig struct {
	EmbeddingCacheCleanupCron string `json:"embedding_cache_cleanup_cron"`
	EmbeddingCacheMaxAgeDays  int    `json:"embedding_cache_max_age_days"`
}

type RateLimitConfig struct {
	Limit         int `json:"limit"`
	WindowSeconds int `json:"window_seconds"`
}

// Load reads a JSON or YAML (by extension) config file. A .env file in
// the working directory is loaded first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var tree map[string]interface{}
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		// decode through the json tags
		raw, err = json.Marshal(tree)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	if c.DBPath == "" {
		return appErr.NewConfigurationError("db_path", "is required")
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	if err := c.VectorIndex.normalize(); err != nil {
		return err
	}
	if err := c.AI.normalize(); err != nil {
		return err
	}
	if err := c.RAG.normalize(); err != nil {
		return err
	}
	if c.Schedule.EmbeddingCacheMaxAgeDays <= 0 {
		c.Schedule.EmbeddingCacheMaxAgeDays = 30
	}
	if len(c.Corpus.Extensions) == 0 {
		c.Corpus.Extensions = []string{".txt", ".md", ".markdown"}
	}
	if c.Corpus.S3.Region == "" {
		c.Corpus.S3.Region = "us-east-1"
	}
	if c.RateLimit.WindowSeconds <= 0 {
		c.RateLimit.WindowSeconds = 60
	}
	return nil
}

func (c *VectorIndexConfig) normalize() error {
	if c.Type == "" {
		c.Type = "sqlite"
	}
	switch c.Type {
	case "memory", "sqlite", "pgvector":
	default:
		return appErr.NewConfigurationError("vector_index.type", "must be memory, sqlite or pgvector, got %q", c.Type)
	}
	if c.Timeout <= 0 {
		c.Timeout = 5000
	}
	return nil
}

func (c *AIConfig) normalize() error {
	if len(c.EmbedProviders) == 0 {
		return appErr.NewConfigurationError("ai.embed_providers", "at least one provider is required")
	}
	if len(c.GenerateProviders) == 0 {
		return appErr.NewConfigurationError("ai.generate_providers", "at least one provider is required")
	}
	for i := range c.EmbedProviders {
		if err := c.EmbedProviders[i].resolve(fmt.Sprintf("ai.embed_providers[%d]", i)); err != nil {
			return err
		}
	}
	for i := range c.GenerateProviders {
		if err := c.GenerateProviders[i].resolve(fmt.Sprintf("ai.generate_providers[%d]", i)); err != nil {
			return err
		}
	}
	if c.EmbedModel == "" {
		c.EmbedModel = "text-embedding-3-small"
	}
	if c.ChatModel == "" {
		c.ChatModel = "gpt-4o"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelayMs <= 0 {
		c.RetryDelayMs = 500
	}
	if c.CacheTTLMinutes <= 0 {
		c.CacheTTLMinutes = 60
	}
	return nil
}

// resolve injects api_key from api_key_env into the provider data, failing
// fast when the variable is named but unset.
func (p *ProviderConfig) resolve(field string) error {
	if p.Name == "" {
		return appErr.NewConfigurationError(field+".name", "is required")
	}
	if p.APIKeyEnv == "" {
		return nil
	}
	key := strings.TrimSpace(os.Getenv(p.APIKeyEnv))
	if key == "" {
		return appErr.NewConfigurationError(field+".api_key_env", "environment variable %s is not set", p.APIKeyEnv)
	}
	data := map[string]interface{}{}
	if m, ok := p.Data.(map[string]interface{}); ok {
		for k, v := range m {
			data[k] = v
		}
	}
	data["api_key"] = key
	p.Data = data
	return nil
}

func (c *RAGConfig) Overlap() int {
	if c.ChunkOverlap == nil {
		return 0
	}
	return *c.ChunkOverlap
}

func (c *RAGConfig) normalize() error {
	if c.IndexName == "" {
		c.IndexName = "ragchat"
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1000
	}
	if c.ChunkOverlap == nil {
		overlap := min(200, c.ChunkSize/5)
		c.ChunkOverlap = &overlap
	}
	if *c.ChunkOverlap < 0 || *c.ChunkOverlap >= c.ChunkSize {
		return appErr.NewConfigurationError("rag.chunk_overlap", "must be in [0, chunk_size), got %d", *c.ChunkOverlap)
	}
	if c.TopK <= 0 {
		c.TopK = 4
	}
	if c.PromptBudget <= 0 {
		c.PromptBudget = 12000
	}
	if c.HistoryTurns <= 0 {
		c.HistoryTurns = 6
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = 50
	}
	if c.SessionTTLMinutes <= 0 {
		c.SessionTTLMinutes = 60
	}
	if c.SessionCapacity <= 0 {
		c.SessionCapacity = 1024
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = 32
	}
	if c.EmbedConcurrency <= 0 {
		c.EmbedConcurrency = 4
	}
	if len(c.Examples) == 0 {
		c.Examples = []string{
			"What is this knowledge base about?",
			"Summarize the main topics covered in the documents.",
		}
	}
	if c.AssistantDescription == "" {
		c.AssistantDescription = "You are a helpful assistant that answers questions using the provided documents."
	}
	return nil
}
