// Package config loads the engine's typed configuration: YAML file plus
// environment overlay plus defaults (file-read -> unmarshal -> env override
// -> default-fill) generalized to this pipeline's component table.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ragengine/internal/engerr"
)

// RetrievalConfig holds the Hybrid Retriever's tunables.
type RetrievalConfig struct {
	Alpha float64 `yaml:"alpha"`
	Beta  float64 `yaml:"beta"`
	Gamma float64 `yaml:"gamma"`
	RRFK  int     `yaml:"rrf_k"`
}

// RerankConfig holds the Adaptive Reranker's tunables.
type RerankConfig struct {
	KoreanModelID       string  `yaml:"korean_model_id"`
	MultilingualModelID string  `yaml:"multilingual_model_id"`
	FP16                bool    `yaml:"fp16"`
	INT8                bool    `yaml:"int8"`
	CacheSize           int     `yaml:"cache_size"`
	EarlyStopThreshold  float64 `yaml:"early_stopping_threshold"`
}

// MemoryConfig holds STM/LTM/episodic tunables.
type MemoryConfig struct {
	STMTTLSeconds            int     `yaml:"stm_ttl_seconds"`
	LTMSimilarityThreshold   float64 `yaml:"ltm_similarity_threshold"`
	EpisodeSimilarityThreshold float64 `yaml:"episode_similarity_threshold"`
	EpisodeMinConfidence     float64 `yaml:"episode_min_confidence"`
	EpisodeRetentionDays     int     `yaml:"episode_retention_days"`
}

// RetryConfig holds the Error/Retry Envelope's tunables.
type RetryConfig struct {
	BaseMS     int     `yaml:"base_ms"`
	MaxMS      int     `yaml:"max_ms"`
	Factor     float64 `yaml:"factor"`
	MaxRetries int     `yaml:"max_retries"`
	JitterMin  float64 `yaml:"jitter_min"`
	JitterMax  float64 `yaml:"jitter_max"`
}

// ClassifierConfig records the Query Classifier's word-count thresholds.
// classifier.Classify does not read it; it uses fixed thresholds of 10
// and 30 words.
type ClassifierConfig struct {
	SimpleWordCountMax  int `yaml:"simple_word_count_max"`
	ComplexWordCountMin int `yaml:"complex_word_count_min"`
}

// QualityConfig holds the Quality Monitor's tunables.
type QualityConfig struct {
	WindowSize int `yaml:"window_size"`
}

// AgentConfig holds the Agent Graph's tunables.
type AgentConfig struct {
	MaxIterations      int `yaml:"max_iterations"`
	QueryTimeoutSeconds int `yaml:"query_timeout_seconds"`
}

// EmbeddingConfig selects and configures the Embedding Gateway's inner
// embedder.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "openai" or "deterministic"
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Dim      int    `yaml:"dim"`
	CacheSize int   `yaml:"cache_size"`
}

// ServerConfig holds the HTTP listener's tunables.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ObsConfig holds OpenTelemetry/logging tunables, the same shape the
// observability package consumes.
type ObsConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`
	OTLP           string `yaml:"otlp_endpoint"`
	LogPath        string `yaml:"log_path"`
	LogLevel       string `yaml:"log_level"`
}

// Config is the engine's top-level configuration tree.
type Config struct {
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Rerank     RerankConfig     `yaml:"rerank"`
	Memory     MemoryConfig     `yaml:"memory"`
	Retry      RetryConfig      `yaml:"retry"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Quality    QualityConfig    `yaml:"quality"`
	Agent      AgentConfig      `yaml:"agent"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Server     ServerConfig     `yaml:"server"`
	Obs        ObsConfig        `yaml:"observability"`

	LLMProvider string `yaml:"llm_provider"`
	LLMModel    string `yaml:"llm_model"`
	AnthropicAPIKey string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	QdrantDSN       string `yaml:"qdrant_dsn"`
	QdrantCollection string `yaml:"qdrant_collection"`
	RedisAddr       string `yaml:"redis_addr"`
	RedisPassword   string `yaml:"-"`
	RerankURL       string `yaml:"rerank_url"`
	BleveIndexPath  string `yaml:"bleve_index_path"`
	SearXNGURL      string `yaml:"searxng_url"`
	LocalDataRoot   string `yaml:"local_data_root"`
}

// Default returns a Config with every recognized option at its default.
func Default() Config {
	return Config{
		Retrieval: RetrievalConfig{Alpha: 0.6, Beta: 0.2, Gamma: 0.2, RRFK: 60},
		Rerank: RerankConfig{
			KoreanModelID:       "ko-reranker",
			MultilingualModelID: "bge-reranker-v2-m3",
			FP16:                true,
			CacheSize:           1000,
			EarlyStopThreshold:  0.1,
		},
		Memory: MemoryConfig{
			STMTTLSeconds:              3600,
			LTMSimilarityThreshold:     0.6,
			EpisodeSimilarityThreshold: 0.85,
			EpisodeMinConfidence:       0.7,
			EpisodeRetentionDays:       30,
		},
		Retry: RetryConfig{BaseMS: 1000, MaxMS: 10000, Factor: 2.0, MaxRetries: 3, JitterMin: 0.5, JitterMax: 1.5},
		Classifier: ClassifierConfig{SimpleWordCountMax: 10, ComplexWordCountMin: 31},
		Quality:    QualityConfig{WindowSize: 500},
		Agent:      AgentConfig{MaxIterations: 10, QueryTimeoutSeconds: 300},
		Embedding:  EmbeddingConfig{Provider: "deterministic", Dim: 256, CacheSize: 10000},
		Server:     ServerConfig{Addr: ":8099"},
		Obs: ObsConfig{
			ServiceName:    "ragengine",
			ServiceVersion: "dev",
			Environment:    "development",
			LogPath:        "ragengine.log",
			LogLevel:       "info",
		},
	}
}

// Load reads path (if non-empty and present) as YAML over Default(),
// then applies environment-variable overrides (reading a local .env via
// godotenv.Overload first), layered so file values win
// over baked-in defaults and env wins over the file.
func Load(path string) (Config, error) {
	_ = godotenv.Overload()
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, engerr.New(engerr.Internal, "config.Load", err)
			}
		} else if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, engerr.New(engerr.Internal, "config.Load", err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
		cfg.AnthropicAPIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("LLM_PROVIDER")); v != "" {
		cfg.LLMProvider = v
	}
	if v := strings.TrimSpace(os.Getenv("LLM_MODEL")); v != "" {
		cfg.LLMModel = v
	}
	if v := strings.TrimSpace(os.Getenv("QDRANT_DSN")); v != "" {
		cfg.QdrantDSN = v
	}
	if v := strings.TrimSpace(os.Getenv("QDRANT_COLLECTION")); v != "" {
		cfg.QdrantCollection = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		cfg.RedisAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_PASSWORD")); v != "" {
		cfg.RedisPassword = v
	}
	if v := strings.TrimSpace(os.Getenv("RERANK_URL")); v != "" {
		cfg.RerankURL = v
	}
	if v := strings.TrimSpace(os.Getenv("EMBEDDING_PROVIDER")); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := strings.TrimSpace(os.Getenv("OTLP_ENDPOINT")); v != "" {
		cfg.Obs.OTLP = v
	}
	if v := strings.TrimSpace(os.Getenv("SERVER_ADDR")); v != "" {
		cfg.Server.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("SEARXNG_URL")); v != "" {
		cfg.SearXNGURL = v
	}
	if v := strings.TrimSpace(os.Getenv("LOCAL_DATA_ROOT")); v != "" {
		cfg.LocalDataRoot = v
	}
	if v := strings.TrimSpace(os.Getenv("MAX_ITERATIONS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Agent.MaxIterations = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("QUERY_TIMEOUT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Agent.QueryTimeoutSeconds = n
		}
	}
}

// QueryTimeout returns the configured overall per-query wall-clock
// timeout as a time.Duration.
func (c Config) QueryTimeout() time.Duration {
	if c.Agent.QueryTimeoutSeconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.Agent.QueryTimeoutSeconds) * time.Second
}

// STMTTL returns the configured STM TTL as a time.Duration.
func (c Config) STMTTL() time.Duration {
	if c.Memory.STMTTLSeconds <= 0 {
		return 3600 * time.Second
	}
	return time.Duration(c.Memory.STMTTLSeconds) * time.Second
}
