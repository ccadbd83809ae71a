package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ConfigSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) TestDefaults() {
	cfg := FromEnv()

	s.Equal(":8080", cfg.Addr)
	s.Equal("custodia.db", cfg.DBPath)
	s.Equal(DefaultMaxPromptsPerSession, cfg.Consent.MaxPromptsPerSession)
	s.Equal(24*time.Hour, cfg.Consent.CacheTTL())
	s.InDelta(DefaultBatchSimilarityThreshold, cfg.Consent.BatchSimilarityThreshold, 0.001)
	s.True(cfg.Consent.EnableSmartDefaults)
	s.Equal(DefaultRecoveryDays, cfg.Consent.RecoveryDays)
	s.Equal(DefaultCallbackTimeout, cfg.Consent.CallbackTimeout)
}

func (s *ConfigSuite) TestYAMLFile() {
	path := filepath.Join(s.T().TempDir(), "config.yaml")
	content := `
addr: ":9090"
db_path: /var/lib/custodia/custodia.db
consent:
  max_consent_prompts_per_session: 5
  consent_cache_ttl_hours: 12
  enable_smart_defaults: false
`
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	s.Require().NoError(err)

	s.Equal(":9090", cfg.Addr)
	s.Equal("/var/lib/custodia/custodia.db", cfg.DBPath)
	s.Equal(5, cfg.Consent.MaxPromptsPerSession)
	s.Equal(12*time.Hour, cfg.Consent.CacheTTL())
	s.False(cfg.Consent.EnableSmartDefaults)
}

func (s *ConfigSuite) TestMissingFileUsesDefaults() {
	cfg, err := Load(filepath.Join(s.T().TempDir(), "nope.yaml"))
	s.Require().NoError(err)
	s.Equal(":8080", cfg.Addr)
}

func (s *ConfigSuite) TestEnvOverridesFile() {
	path := filepath.Join(s.T().TempDir(), "config.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("addr: \":9090\"\n"), 0o644))

	s.T().Setenv("CUSTODIA_ADDR", ":7070")
	s.T().Setenv("CUSTODIA_MAX_PROMPTS_PER_SESSION", "9")
	s.T().Setenv("CUSTODIA_CALLBACK_TIMEOUT", "45s")
	s.T().Setenv("CUSTODIA_SMART_DEFAULTS", "false")

	cfg, err := Load(path)
	s.Require().NoError(err)

	s.Equal(":7070", cfg.Addr)
	s.Equal(9, cfg.Consent.MaxPromptsPerSession)
	s.Equal(45*time.Second, cfg.Consent.CallbackTimeout)
	s.False(cfg.Consent.EnableSmartDefaults)
}

func (s *ConfigSuite) TestInvalidEnvValuesIgnored() {
	s.T().Setenv("CUSTODIA_MAX_PROMPTS_PER_SESSION", "not-a-number")
	s.T().Setenv("CUSTODIA_BATCH_SIMILARITY_THRESHOLD", "3.5")

	cfg := FromEnv()
	s.Equal(DefaultMaxPromptsPerSession, cfg.Consent.MaxPromptsPerSession)
	s.InDelta(DefaultBatchSimilarityThreshold, cfg.Consent.BatchSimilarityThreshold, 0.001)
}
