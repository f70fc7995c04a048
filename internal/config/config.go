// Package config handles reading maru.yaml and environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level structure for maru.yaml.
type Config struct {
	Turn      TurnConfig      `yaml:"turn"`
	LLM       LLMConfig       `yaml:"llm"`
	Cache     CacheConfig     `yaml:"cache"`
	Normalize NormalizeConfig `yaml:"normalize"`
	Classify  ClassifyConfig  `yaml:"classify"`
	Guardian  GuardianConfig  `yaml:"guardian"`
	Recovery  RecoveryConfig  `yaml:"recovery"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Events    EventsConfig    `yaml:"events"`
	Backends  BackendsConfig  `yaml:"backends"`
}

// TurnConfig bounds a single turn.
type TurnConfig struct {
	Deadline       time.Duration `yaml:"deadline"`        // overall turn budget
	SnapshotBudget int           `yaml:"snapshot_budget"` // context snapshot token budget
}

// LLMConfig routes the two logical models.
type LLMConfig struct {
	FastModel    string        `yaml:"fast_model"`    // L1: FAST generation and L3 normalization
	QualityModel string        `yaml:"quality_model"` // L2: Architect/Generator/Guardian
	Timeout      time.Duration `yaml:"timeout"`
	MaxTokens    int           `yaml:"max_tokens"`
}

// CacheConfig controls the tiered cache and the Redis circuit breaker.
type CacheConfig struct {
	NormalizationTTL  time.Duration `yaml:"normalization_ttl"`
	NegativeTTL       time.Duration `yaml:"negative_ttl"`
	ClassificationTTL time.Duration `yaml:"classification_ttl"`
	OpBudget          time.Duration `yaml:"op_budget"`
	MemoryCapacity    int           `yaml:"memory_capacity"`

	BreakerFailures int           `yaml:"breaker_failures"` // N consecutive failures
	BreakerWindow   time.Duration `yaml:"breaker_window"`   // within W
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"` // before HALF_OPEN
}

// NormalizeConfig controls the three-layer normalizer.
type NormalizeConfig struct {
	L3PerSessionLimit int     `yaml:"l3_per_session_limit"` // per session per minute
	L3GlobalLimit     float64 `yaml:"l3_global_limit"`      // process-wide per second
	FuzzyThreshold    float64 `yaml:"fuzzy_threshold"`      // default when no tuned group threshold
}

// ClassifyConfig controls the answer-type classifier.
type ClassifyConfig struct {
	LowConfidence              float64 `yaml:"low_confidence"`
	MaxClarificationsPerIntent int     `yaml:"max_clarifications_per_intent"`
}

// GuardianConfig controls verification strictness.
type GuardianConfig struct {
	MaxRetries       int     `yaml:"max_retries"`
	EscalationSample float64 `yaml:"escalation_sample"` // FAST drafts audited by the Full Guardian
	MinEvidenceItems int     `yaml:"min_evidence_items"`
	MinSources       int     `yaml:"min_sources"`
	MinAvgConfidence float64 `yaml:"min_avg_confidence"`
	MinDraftLength   int     `yaml:"min_draft_length"`
}

// RecoveryConfig bounds self-healing.
type RecoveryConfig struct {
	MaxAttemptsPerAction int `yaml:"max_attempts_per_action"`
}

// RetrievalConfig controls the hybrid retrieval blend.
type RetrievalConfig struct {
	TopK            int     `yaml:"top_k"`
	ConfidenceFloor float64 `yaml:"confidence_floor"`
	RRFConstant     float64 `yaml:"rrf_constant"`
	DocWeight       float64 `yaml:"doc_weight"`
	GraphWeight     float64 `yaml:"graph_weight"`
}

// EventsConfig controls tiered event emission.
type EventsConfig struct {
	ProvenanceSample float64 `yaml:"provenance_sample"`
	RingCapacity     int     `yaml:"ring_capacity"`
}

// BackendsConfig carries connection settings; env vars override file values.
type BackendsConfig struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	Neo4jURI      string `yaml:"neo4j_uri"`
	Neo4jUser     string `yaml:"neo4j_user"`
	Neo4jPassword string `yaml:"neo4j_password"`
	RedisAddr     string `yaml:"redis_addr"`
	MilvusAddr    string `yaml:"milvus_addr"`
	MilvusColl    string `yaml:"milvus_collection"`
	EmbedModel    string `yaml:"embed_model"`
	EmbedDim      int    `yaml:"embed_dim"`
}

// Default returns the configuration used when no maru.yaml is present.
func Default() Config {
	return Config{
		Turn: TurnConfig{
			Deadline:       15 * time.Second,
			SnapshotBudget: 1200,
		},
		LLM: LLMConfig{
			FastModel:    "gpt-4o-mini",
			QualityModel: "gpt-4o",
			Timeout:      20 * time.Second,
			MaxTokens:    2000,
		},
		Cache: CacheConfig{
			NormalizationTTL:  time.Hour,
			NegativeTTL:       3 * time.Minute,
			ClassificationTTL: 10 * time.Minute,
			OpBudget:          50 * time.Millisecond,
			MemoryCapacity:    4096,
			BreakerFailures:   5,
			BreakerWindow:     30 * time.Second,
			BreakerCooldown:   15 * time.Second,
		},
		Normalize: NormalizeConfig{
			L3PerSessionLimit: 3,
			L3GlobalLimit:     2.0,
			FuzzyThreshold:    0.70,
		},
		Classify: ClassifyConfig{
			LowConfidence:              0.55,
			MaxClarificationsPerIntent: 2,
		},
		Guardian: GuardianConfig{
			MaxRetries:       2,
			EscalationSample: 0.05,
			MinEvidenceItems: 2,
			MinSources:       2,
			MinAvgConfidence: 0.60,
			MinDraftLength:   20,
		},
		Recovery: RecoveryConfig{
			MaxAttemptsPerAction: 3,
		},
		Retrieval: RetrievalConfig{
			TopK:            5,
			ConfidenceFloor: 0.35,
			RRFConstant:     60,
			DocWeight:       1.0,
			GraphWeight:     0.8,
		},
		Events: EventsConfig{
			ProvenanceSample: 0.10,
			RingCapacity:     1024,
		},
		Backends: BackendsConfig{
			Neo4jURI:   "bolt://localhost:7687",
			RedisAddr:  "localhost:6379",
			MilvusAddr: "localhost:19530",
			MilvusColl: "maru_chunks",
			EmbedModel: "text-embedding-3-large",
			EmbedDim:   3072,
		},
	}
}

// Load reads the config file at path, applies defaults for zero values, and
// lets environment variables override backend addresses. A missing file is
// not an error; defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MARU_POSTGRES_DSN"); v != "" {
		cfg.Backends.PostgresDSN = v
	}
	if v := os.Getenv("MARU_NEO4J_URI"); v != "" {
		cfg.Backends.Neo4jURI = v
	}
	if v := os.Getenv("MARU_NEO4J_USER"); v != "" {
		cfg.Backends.Neo4jUser = v
	}
	if v := os.Getenv("MARU_NEO4J_PASSWORD"); v != "" {
		cfg.Backends.Neo4jPassword = v
	}
	if v := os.Getenv("MARU_REDIS_ADDR"); v != "" {
		cfg.Backends.RedisAddr = v
	}
	if v := os.Getenv("MILVUS_ADDRESS"); v != "" {
		cfg.Backends.MilvusAddr = v
	}
}
