// internal/platform/config/config_test.go
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"phishfuse/internal/core/domain"
	"phishfuse/internal/testutil"
)

// noDotEnv keeps a stray .env in the package directory out of the tests.
const noDotEnv = "--env-file="

func TestGetenv(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		def      string
		envValue string
		set      bool
		expected string
	}{
		{name: "env var exists", key: "PF_TEST_KEY_1", def: "default", envValue: "custom", set: true, expected: "custom"},
		{name: "env var missing - uses default", key: "PF_TEST_KEY_MISSING", def: "default", expected: "default"},
		{name: "env var set but empty", key: "PF_TEST_KEY_EMPTY", def: "default", envValue: "", set: true, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.set {
				t.Setenv(tt.key, tt.envValue)
			}
			testutil.AssertEqual(t, getenv(tt.key, tt.def), tt.expected, "getenv")
		})
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
		wantErr  bool
	}{
		{"true", true, false},
		{"YES", true, false},
		{"on", true, false},
		{"1", true, false},
		{"false", false, false},
		{"off", false, false},
		{"0", false, false},
		{"maybe", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseBool(tt.input)
			if tt.wantErr {
				testutil.AssertError(t, err, "invalid bool")
				return
			}
			testutil.AssertNoError(t, err, "parse")
			testutil.AssertEqual(t, got, tt.expected, "value")
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"90", 90 * time.Second, false},
		{"2m", 2 * time.Minute, false},
		{"1m30s", 90 * time.Second, false},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseDuration(tt.input)
			if tt.wantErr {
				testutil.AssertError(t, err, "invalid duration")
				return
			}
			testutil.AssertNoError(t, err, "parse")
			testutil.AssertEqual(t, got, tt.expected, "duration")
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("VT_API_KEY", "")

	cfg, args, err := Load([]string{noDotEnv})
	testutil.AssertNoError(t, err, "load")
	testutil.AssertLen(t, args, 0, "no positional args")

	want := DefaultConfig()
	want.EnvFile = ""
	testutil.AssertDeepEqual(t, cfg, want, "defaults")
}

func TestLoad_CommandAndFlags(t *testing.T) {
	t.Setenv("VT_API_KEY", "")

	cfg, args, err := Load([]string{"run", "-i", "posts.jsonl", "--strategy", "TWO-STAGE", "-q", "-v", noDotEnv})
	testutil.AssertNoError(t, err, "load")
	testutil.AssertDeepEqual(t, args, []string{"run"}, "command")
	testutil.AssertEqual(t, cfg.Ingest.Source, "posts.jsonl", "input")
	testutil.AssertEqual(t, cfg.Fusion.Strategy, "two-stage", "strategy normalized")
	testutil.AssertTrue(t, cfg.Output.Quiet, "quiet")
	testutil.AssertEqual(t, cfg.LogLevel, "debug", "verbose raises log level")
}

func TestLoad_Layering(t *testing.T) {
	t.Setenv("VT_API_KEY", "")
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "phishfuse.yaml")
	testutil.AssertNoError(t, os.WriteFile(yamlPath, []byte(`
store:
  driver: postgres
  dsn: postgres://pf@localhost/pf
intel:
  delay: 90s
  cooldown: 10s
fusion:
  strategy: two-stage
server:
  addr: ":6000"
`), 0o600), "write yaml")

	envPath := filepath.Join(dir, "test.env")
	testutil.AssertNoError(t, os.WriteFile(envPath, []byte(
		"PHISHFUSE_OUTPUT_LIMIT=7\nPHISHFUSE_SERVER_ADDR=:9000\n"), 0o600), "write env file")
	t.Cleanup(func() { os.Unsetenv("PHISHFUSE_OUTPUT_LIMIT") })

	t.Setenv("PHISHFUSE_SERVER_ADDR", ":7000")
	t.Setenv("PHISHFUSE_INTEL_DELAY", "45")

	cfg, _, err := Load([]string{"--config", yamlPath, "--env-file", envPath, "--strategy", "precedence"})
	testutil.AssertNoError(t, err, "load")

	testutil.AssertEqual(t, cfg.Store.Driver, "postgres", "yaml store driver")
	testutil.AssertEqual(t, cfg.Store.DSN, "postgres://pf@localhost/pf", "yaml dsn")
	testutil.AssertEqual(t, cfg.Intel.Cooldown, 10*time.Second, "yaml cooldown")
	testutil.AssertEqual(t, cfg.Intel.Delay, 45*time.Second, "env overrides yaml")
	testutil.AssertEqual(t, cfg.Output.Limit, 7, ".env fills unset variables")
	testutil.AssertEqual(t, cfg.Server.Addr, ":7000", ".env does not override the environment")
	testutil.AssertEqual(t, cfg.Fusion.Strategy, "precedence", "flag overrides yaml")
	testutil.AssertEqual(t, cfg.Intel.MaxRetries, DefaultConfig().Intel.MaxRetries, "untouched default")
}

func TestLoad_APIKeyAlias(t *testing.T) {
	t.Setenv("VT_API_KEY", "vt-secret")

	cfg, _, err := Load([]string{noDotEnv})
	testutil.AssertNoError(t, err, "load")
	testutil.AssertEqual(t, cfg.Intel.APIKey, "vt-secret", "alias")

	t.Setenv("PHISHFUSE_INTEL_API_KEY", "pf-secret")
	cfg, _, err = Load([]string{noDotEnv})
	testutil.AssertNoError(t, err, "load")
	testutil.AssertEqual(t, cfg.Intel.APIKey, "pf-secret", "prefixed variable wins")

	js, err := cfg.ToJSON()
	testutil.AssertNoError(t, err, "json")
	testutil.AssertNotContains(t, js, "pf-secret", "secret omitted")
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("VT_API_KEY", "")

	t.Run("bad env value", func(t *testing.T) {
		t.Setenv("PHISHFUSE_INTEL_MAX_RETRIES", "many")
		_, _, err := Load([]string{noDotEnv})
		testutil.AssertErrorIs(t, err, domain.ErrInvalidConfig, "env parse")
	})

	t.Run("missing config file", func(t *testing.T) {
		_, _, err := Load([]string{"--config", filepath.Join(t.TempDir(), "none.yaml"), noDotEnv})
		testutil.AssertError(t, err, "missing file")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		testutil.AssertNoError(t, os.WriteFile(path, []byte("intel: [unclosed"), 0o600), "write")
		_, _, err := Load([]string{"--config", path, noDotEnv})
		testutil.AssertErrorIs(t, err, domain.ErrInvalidConfig, "yaml")
	})

	t.Run("unknown flag", func(t *testing.T) {
		_, _, err := Load([]string{"--target", "example.com", noDotEnv})
		testutil.AssertError(t, err, "unknown flag")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "postgres", mutate: func(c *Config) { c.Store.Driver = "postgres" }},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "mysql" }, wantErr: true},
		{name: "empty dsn", mutate: func(c *Config) { c.Store.DSN = "" }, wantErr: true},
		{name: "threshold above one", mutate: func(c *Config) { c.Classifier.Threshold = 1.5 }, wantErr: true},
		{name: "negative ratio", mutate: func(c *Config) { c.Intel.SuspiciousRatio = -0.1 }, wantErr: true},
		{name: "zero retries", mutate: func(c *Config) { c.Intel.MaxRetries = 0 }, wantErr: true},
		{name: "negative delay", mutate: func(c *Config) { c.Intel.Delay = -time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				testutil.AssertErrorIs(t, err, domain.ErrInvalidConfig, "invalid")
			} else {
				testutil.AssertNoError(t, err, "valid")
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Driver = " SQLite "
	cfg.Ingest.Concurrency = 0
	cfg.Classifier.Concurrency = -3
	cfg.Ingest.MinRisk = -1
	cfg.Output.Dir = ""
	cfg.Output.Limit = 0

	normalize(&cfg)

	testutil.AssertEqual(t, cfg.Store.Driver, "sqlite", "driver")
	testutil.AssertEqual(t, cfg.Ingest.Concurrency, 1, "ingest workers floor")
	testutil.AssertEqual(t, cfg.Classifier.Concurrency, 1, "classifier workers floor")
	testutil.AssertEqual(t, cfg.Ingest.MinRisk, 0, "min risk floor")
	testutil.AssertEqual(t, cfg.Output.Dir, "phishfuse_out", "output dir")
	testutil.AssertEqual(t, cfg.Output.Limit, 50, "limit")
}

func TestPrintVersion(t *testing.T) {
	var buf bytes.Buffer
	PrintVersion(&buf, "1.2.0", "abc123", "2026-10-01")
	testutil.AssertContains(t, buf.String(), "PhishFuse 1.2.0", "version line")
	testutil.AssertContains(t, buf.String(), "abc123", "commit")
}
