package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for the consent pipeline tunables.
const (
	DefaultMaxPromptsPerSession     = 2
	DefaultCacheTTLHours            = 24
	DefaultBatchSimilarityThreshold = 0.8
	DefaultRecoveryDays             = 30
	DefaultCallbackTimeout          = 30 * time.Second
)

// Server captures process-level configuration. Env vars override the YAML
// file so container deployments stay twelve-factor.
type Server struct {
	Addr          string        `yaml:"addr"`
	DBPath        string        `yaml:"db_path"`
	JWTSigningKey string        `yaml:"jwt_signing_key"`
	RulesPath     string        `yaml:"sanitization_rules_path"`
	CallbackURL   string        `yaml:"callback_url"`
	Consent       ConsentConfig `yaml:"consent"`
}

// ConsentConfig carries the engine, cache, batch, and ledger tunables.
type ConsentConfig struct {
	MaxPromptsPerSession     int           `yaml:"max_consent_prompts_per_session"`
	CacheTTLHours            int           `yaml:"consent_cache_ttl_hours"`
	BatchSimilarityThreshold float64       `yaml:"batch_similarity_threshold"`
	EnableSmartDefaults      bool          `yaml:"enable_smart_defaults"`
	RecoveryDays             int           `yaml:"recovery_days"`
	CallbackTimeout          time.Duration `yaml:"callback_timeout"`
}

// CacheTTL converts the hour-denominated setting to a duration.
func (c ConsentConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

func defaults() Server {
	return Server{
		Addr:   ":8080",
		DBPath: "custodia.db",
		Consent: ConsentConfig{
			MaxPromptsPerSession:     DefaultMaxPromptsPerSession,
			CacheTTLHours:            DefaultCacheTTLHours,
			BatchSimilarityThreshold: DefaultBatchSimilarityThreshold,
			EnableSmartDefaults:      true,
			RecoveryDays:             DefaultRecoveryDays,
			CallbackTimeout:          DefaultCallbackTimeout,
		},
	}
}

// Load builds a Server config from an optional YAML file merged with
// environment variables so main stays lean. An empty path skips the file.
func Load(path string) (Server, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// FromEnv builds a Server config from environment variables alone.
func FromEnv() Server {
	cfg := defaults()
	applyEnv(&cfg)
	return cfg
}

func applyEnv(cfg *Server) {
	if addr := os.Getenv("CUSTODIA_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if dbPath := os.Getenv("CUSTODIA_DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if key := os.Getenv("CUSTODIA_JWT_SIGNING_KEY"); key != "" {
		cfg.JWTSigningKey = key
	}
	if rules := os.Getenv("CUSTODIA_SANITIZATION_RULES"); rules != "" {
		cfg.RulesPath = rules
	}
	if url := os.Getenv("CUSTODIA_CALLBACK_URL"); url != "" {
		cfg.CallbackURL = url
	}
	if v := os.Getenv("CUSTODIA_MAX_PROMPTS_PER_SESSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Consent.MaxPromptsPerSession = n
		}
	}
	if v := os.Getenv("CUSTODIA_CACHE_TTL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Consent.CacheTTLHours = n
		}
	}
	if v := os.Getenv("CUSTODIA_BATCH_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			cfg.Consent.BatchSimilarityThreshold = f
		}
	}
	if v := os.Getenv("CUSTODIA_SMART_DEFAULTS"); v != "" {
		cfg.Consent.EnableSmartDefaults = v == "true"
	}
	if v := os.Getenv("CUSTODIA_RECOVERY_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Consent.RecoveryDays = n
		}
	}
	if v := os.Getenv("CUSTODIA_CALLBACK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Consent.CallbackTimeout = d
		}
	}
}
