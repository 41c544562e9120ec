package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests configuration parsing
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
}

func (s *ConfigTestSuite) SetupSuite() {
	var err error
	s.tempDir, err = os.MkdirTemp("", "config-test-*")
	s.Require().NoError(err)
}

func (s *ConfigTestSuite) TearDownSuite() {
	if s.tempDir != "" {
		os.RemoveAll(s.tempDir)
	}
}

func lookupMap(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func (s *ConfigTestSuite) TestDefaults() {
	cfg, err := Parse(lookupMap(nil))
	s.Require().NoError(err)

	s.False(cfg.MultiBackend())
	s.Equal(0, cfg.ActiveIndex)
	s.Equal(int64(450*1024*1024), cfg.Thresholds.LimitBytes)
	s.Equal(int64(450*1024*1024)*85/100, cfg.Thresholds.WarnBytes)
	s.Equal(time.Hour, cfg.CheckInterval)
	s.Equal(5*time.Second, cfg.StartupProbeDelay)
	s.Equal(10*time.Second, cfg.StartupEvaluateDelay)
	s.Equal(":8080", cfg.ListenAddr)
	s.Equal("info", cfg.LogLevel)
	s.Equal(10*time.Second, cfg.ShutdownTimeout)
}

func (s *ConfigTestSuite) TestMultiBackend() {
	cfg, err := Parse(lookupMap(map[string]string{
		KeyDatabaseURL:     "postgres://default/db",
		KeyDatabaseURLs:    "postgres://a/db, postgres://b/db;\npostgres://c/db",
		KeyActiveIndex:     "2",
		KeySizeLimitMB:     "100",
		KeyCheckIntervalMS: "60000",
		KeyAdminToken:      " s3cret ",
	}))
	s.Require().NoError(err)

	s.True(cfg.MultiBackend())
	s.Equal([]string{"postgres://a/db", "postgres://b/db", "postgres://c/db"}, cfg.DatabaseURLs)
	s.Equal("postgres://default/db", cfg.DatabaseURL)
	s.Equal(2, cfg.ActiveIndex)
	s.Equal(int64(100*1024*1024), cfg.Thresholds.LimitBytes)
	s.Equal(int64(85*1024*1024), cfg.Thresholds.WarnBytes)
	s.Equal(time.Minute, cfg.CheckInterval)
	s.Equal("s3cret", cfg.AdminToken)
}

func (s *ConfigTestSuite) TestInvalidValues() {
	testCases := map[string]string{
		KeyActiveIndex:         "first",
		KeySizeLimitMB:         "0",
		KeyCheckIntervalMS:     "-5",
		KeyStartupProbeDelayMS: "soon",
	}
	for key, value := range testCases {
		_, err := Parse(lookupMap(map[string]string{key: value}))
		s.ErrorIs(err, ErrInvalidConfig, key)
	}

	_, err := Parse(lookupMap(map[string]string{KeyActiveIndex: "-1"}))
	s.ErrorIs(err, ErrInvalidConfig)
}

func (s *ConfigTestSuite) TestNewThresholds() {
	thresholds := NewThresholds(1000)
	s.Equal(int64(1000), thresholds.LimitBytes)
	s.Equal(int64(850), thresholds.WarnBytes)
}

func (s *ConfigTestSuite) TestLoadYAMLOverlay() {
	path := filepath.Join(s.tempDir, "router.yaml")
	content := `
database_urls:
  - sqlite:///tmp/a.db
  - sqlite:///tmp/b.db
DB_SIZE_LIMIT_MB: 200
log_level: debug
`
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600))

	s.T().Setenv(KeySizeLimitMB, "300")

	cfg, err := Load(path)
	s.Require().NoError(err)
	s.Equal([]string{"sqlite:///tmp/a.db", "sqlite:///tmp/b.db"}, cfg.DatabaseURLs)
	s.Equal("debug", cfg.LogLevel)
	s.Equal(int64(300*1024*1024), cfg.Thresholds.LimitBytes, "environment wins over the file")
}

func (s *ConfigTestSuite) TestLoadMissingFile() {
	_, err := Load(filepath.Join(s.tempDir, "missing.yaml"))
	s.ErrorIs(err, ErrInvalidConfig)
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}
