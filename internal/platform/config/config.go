// internal/platform/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"phishfuse/internal/core/domain"
)

// EnvPrefix antecede a todas las variables de entorno reconocidas.
const EnvPrefix = "PHISHFUSE_"

type Config struct {
	// App (sólo CLI)
	ConfigPath   string `yaml:"-" json:"-"`
	EnvFile      string `yaml:"-" json:"-"`
	Verbose      bool   `yaml:"-" json:"-"`
	PrintVersion bool   `yaml:"-" json:"-"`
	Reassess     bool   `yaml:"-" json:"-"`

	LogLevel   string     `yaml:"log_level" json:"log_level"`
	Store      Store      `yaml:"store" json:"store"`
	Ingest     Ingest     `yaml:"ingest" json:"ingest"`
	Scoring    Scoring    `yaml:"scoring" json:"scoring"`
	Classifier Classifier `yaml:"classifier" json:"classifier"`
	Intel      Intel      `yaml:"intel" json:"intel"`
	Fusion     Fusion     `yaml:"fusion" json:"fusion"`
	Server     Server     `yaml:"server" json:"server"`
	Output     Output     `yaml:"output" json:"output"`
}

type Store struct {
	Driver string `yaml:"driver" json:"driver"` // sqlite | postgres
	DSN    string `yaml:"dsn" json:"-"`
}

type Ingest struct {
	Source      string `yaml:"source" json:"source"`
	Format      string `yaml:"format" json:"format"` // auto | lines | jsonl
	MinRisk     int    `yaml:"min_risk" json:"min_risk"`
	Concurrency int    `yaml:"concurrency" json:"concurrency"`
	Expand      bool   `yaml:"expand_links" json:"expand_links"`
	FetchPages  bool   `yaml:"fetch_pages" json:"fetch_pages"`
	DomainInfo  bool   `yaml:"domain_info" json:"domain_info"`
	RDAPURL     string `yaml:"rdap_url" json:"rdap_url"`
}

type Scoring struct {
	Keywords string `yaml:"keywords" json:"keywords"` // vacío = tabla embebida
}

type Classifier struct {
	Model       string        `yaml:"model" json:"model"`       // vacío = modelo embebido
	Endpoint    string        `yaml:"endpoint" json:"endpoint"` // tiene prioridad sobre model
	Threshold   float64       `yaml:"threshold" json:"threshold"`
	Concurrency int           `yaml:"concurrency" json:"concurrency"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

type Intel struct {
	APIKey          string        `yaml:"api_key" json:"-"`
	BaseURL         string        `yaml:"base_url" json:"base_url"`
	RateLimit       float64       `yaml:"rate_limit" json:"rate_limit"` // req/s, 0 = sin límite
	MaxRetries      int           `yaml:"max_retries" json:"max_retries"`
	Delay           time.Duration `yaml:"delay" json:"delay"`
	Cooldown        time.Duration `yaml:"cooldown" json:"cooldown"`
	Concurrency     int           `yaml:"concurrency" json:"concurrency"`
	ResubmitAfter   int           `yaml:"resubmit_after" json:"resubmit_after"`
	SuspiciousRatio float64       `yaml:"suspicious_ratio" json:"suspicious_ratio"`
	BatchLimit      int           `yaml:"batch_limit" json:"batch_limit"`
	MaxPauses       int           `yaml:"max_pauses" json:"max_pauses"`
}

type Fusion struct {
	Strategy      string  `yaml:"strategy" json:"strategy"`
	LowRiskCutoff int     `yaml:"low_risk_cutoff" json:"low_risk_cutoff"`
	RuleHitFloor  int     `yaml:"rule_hit_floor" json:"rule_hit_floor"`
	LowConfidence float64 `yaml:"low_confidence" json:"low_confidence"`
}

type Server struct {
	Addr string `yaml:"addr" json:"addr"`
}

type Output struct {
	Dir   string `yaml:"dir" json:"dir"`
	Quiet bool   `yaml:"quiet" json:"quiet"` // sin tabla ni UI, sólo JSON
	Limit int    `yaml:"limit" json:"limit"`
}

// DefaultConfig retorna una configuración por defecto.
func DefaultConfig() Config {
	return Config{
		EnvFile:  ".env",
		LogLevel: "info",
		Store: Store{
			Driver: "sqlite",
			DSN:    "phishfuse.db",
		},
		Ingest: Ingest{
			Source:      "",
			Format:      "auto",
			MinRisk:     1,
			Concurrency: 4,
			Expand:      true,
			FetchPages:  false,
			DomainInfo:  true,
		},
		Classifier: Classifier{
			Threshold:   0.75,
			Concurrency: 4,
			Timeout:     10 * time.Second,
		},
		Intel: Intel{
			BaseURL:         "https://www.virustotal.com/api/v3",
			RateLimit:       4.0 / 60.0,
			MaxRetries:      10,
			Delay:           120 * time.Second,
			Cooldown:        30 * time.Second,
			Concurrency:     4,
			ResubmitAfter:   5,
			SuspiciousRatio: 0.10,
			BatchLimit:      400,
			MaxPauses:       20,
		},
		Fusion: Fusion{
			Strategy:      "precedence",
			LowRiskCutoff: 10,
			RuleHitFloor:  3,
			LowConfidence: 0.4,
		},
		Server: Server{Addr: "127.0.0.1:8080"},
		Output: Output{Dir: "phishfuse_out", Limit: 50},
	}
}

// Load arma la configuración por capas: defaults -> archivo YAML -> .env ->
// variables PHISHFUSE_* -> flags. Retorna los argumentos posicionales
// (el comando y sus argumentos).
func Load(args []string) (Config, []string, error) {
	// Primera pasada: sólo para conocer --config y --env-file.
	early := DefaultConfig()
	fs := newFlagSet(&early)
	if err := fs.Parse(args); err != nil {
		return early, nil, err
	}

	cfg := DefaultConfig()
	cfg.ConfigPath, cfg.EnvFile = early.ConfigPath, early.EnvFile

	if cfg.ConfigPath != "" {
		if err := loadFile(&cfg, cfg.ConfigPath); err != nil {
			return cfg, nil, err
		}
	}
	if err := loadDotEnv(cfg.EnvFile); err != nil {
		return cfg, nil, err
	}
	if err := loadFromEnv(&cfg); err != nil {
		return cfg, nil, err
	}

	// Segunda pasada: los flags pisan todo lo anterior.
	fs = newFlagSet(&cfg)
	if err := fs.Parse(args); err != nil {
		return cfg, nil, err
	}
	if cfg.Verbose {
		cfg.LogLevel = "debug"
	}

	normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}
	return cfg, fs.Args(), nil
}

// loadFile aplica un archivo YAML sobre cfg. Los campos ausentes conservan su valor.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: parse %s: %v", domain.ErrInvalidConfig, path, err)
	}
	return nil
}

// loadDotEnv carga el archivo .env si existe. No pisa variables ya definidas.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("%w: load %s: %v", domain.ErrInvalidConfig, path, err)
	}
	return nil
}

// envBinding asocia una variable de entorno con el campo que actualiza.
type envBinding struct {
	key string
	set func(v string) error
}

func envBindings(cfg *Config) []envBinding {
	return []envBinding{
		{"LOG_LEVEL", setString(&cfg.LogLevel)},
		{"STORE_DRIVER", setString(&cfg.Store.Driver)},
		{"STORE_DSN", setString(&cfg.Store.DSN)},
		{"INGEST_SOURCE", setString(&cfg.Ingest.Source)},
		{"INGEST_FORMAT", setString(&cfg.Ingest.Format)},
		{"INGEST_MIN_RISK", setInt(&cfg.Ingest.MinRisk)},
		{"INGEST_CONCURRENCY", setInt(&cfg.Ingest.Concurrency)},
		{"INGEST_EXPAND_LINKS", setBool(&cfg.Ingest.Expand)},
		{"INGEST_FETCH_PAGES", setBool(&cfg.Ingest.FetchPages)},
		{"INGEST_DOMAIN_INFO", setBool(&cfg.Ingest.DomainInfo)},
		{"INGEST_RDAP_URL", setString(&cfg.Ingest.RDAPURL)},
		{"SCORING_KEYWORDS", setString(&cfg.Scoring.Keywords)},
		{"CLASSIFIER_MODEL", setString(&cfg.Classifier.Model)},
		{"CLASSIFIER_ENDPOINT", setString(&cfg.Classifier.Endpoint)},
		{"CLASSIFIER_THRESHOLD", setFloat(&cfg.Classifier.Threshold)},
		{"CLASSIFIER_CONCURRENCY", setInt(&cfg.Classifier.Concurrency)},
		{"CLASSIFIER_TIMEOUT", setDuration(&cfg.Classifier.Timeout)},
		{"INTEL_API_KEY", setString(&cfg.Intel.APIKey)},
		{"INTEL_BASE_URL", setString(&cfg.Intel.BaseURL)},
		{"INTEL_RATE_LIMIT", setFloat(&cfg.Intel.RateLimit)},
		{"INTEL_MAX_RETRIES", setInt(&cfg.Intel.MaxRetries)},
		{"INTEL_DELAY", setDuration(&cfg.Intel.Delay)},
		{"INTEL_COOLDOWN", setDuration(&cfg.Intel.Cooldown)},
		{"INTEL_CONCURRENCY", setInt(&cfg.Intel.Concurrency)},
		{"INTEL_RESUBMIT_AFTER", setInt(&cfg.Intel.ResubmitAfter)},
		{"INTEL_SUSPICIOUS_RATIO", setFloat(&cfg.Intel.SuspiciousRatio)},
		{"INTEL_BATCH_LIMIT", setInt(&cfg.Intel.BatchLimit)},
		{"INTEL_MAX_PAUSES", setInt(&cfg.Intel.MaxPauses)},
		{"FUSION_STRATEGY", setString(&cfg.Fusion.Strategy)},
		{"FUSION_LOW_RISK_CUTOFF", setInt(&cfg.Fusion.LowRiskCutoff)},
		{"FUSION_RULE_HIT_FLOOR", setInt(&cfg.Fusion.RuleHitFloor)},
		{"FUSION_LOW_CONFIDENCE", setFloat(&cfg.Fusion.LowConfidence)},
		{"SERVER_ADDR", setString(&cfg.Server.Addr)},
		{"OUTPUT_DIR", setString(&cfg.Output.Dir)},
		{"OUTPUT_QUIET", setBool(&cfg.Output.Quiet)},
		{"OUTPUT_LIMIT", setInt(&cfg.Output.Limit)},
	}
}

// loadFromEnv carga configuración desde variables PHISHFUSE_*.
// VT_API_KEY se acepta como alias de PHISHFUSE_INTEL_API_KEY.
func loadFromEnv(cfg *Config) error {
	if v := getenv("VT_API_KEY", ""); v != "" {
		cfg.Intel.APIKey = v
	}
	for _, b := range envBindings(cfg) {
		v, ok := os.LookupEnv(EnvPrefix + b.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := b.set(strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%w: %s%s=%q: %v", domain.ErrInvalidConfig, EnvPrefix, b.key, v, err)
		}
	}
	return nil
}

// newFlagSet registra los flags sobre cfg; los defaults son los valores actuales.
func newFlagSet(cfg *Config) *pflag.FlagSet {
	fs := pflag.NewFlagSet("phishfuse", pflag.ContinueOnError)
	fs.SetInterspersed(true)
	// main imprime la ayuda al recibir pflag.ErrHelp
	fs.Usage = func() {}

	fs.StringVarP(&cfg.ConfigPath, "config", "c", cfg.ConfigPath, "YAML config file")
	fs.StringVar(&cfg.EnvFile, "env-file", cfg.EnvFile, ".env file to load")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Debug logging")
	fs.BoolVar(&cfg.PrintVersion, "version", cfg.PrintVersion, "Print version and exit")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	fs.StringVar(&cfg.Store.Driver, "store.driver", cfg.Store.Driver, "Store driver (sqlite, postgres)")
	fs.StringVar(&cfg.Store.DSN, "store.dsn", cfg.Store.DSN, "Store DSN or sqlite file")

	fs.StringVarP(&cfg.Ingest.Source, "input", "i", cfg.Ingest.Source, "Text source file")
	fs.StringVar(&cfg.Ingest.Format, "input.format", cfg.Ingest.Format, "Text source format (auto, lines, jsonl)")
	fs.IntVar(&cfg.Ingest.MinRisk, "intel.min-risk", cfg.Ingest.MinRisk, "Minimum risk score to send URLs to intel")
	fs.IntVar(&cfg.Ingest.Concurrency, "ingest.workers", cfg.Ingest.Concurrency, "Concurrent ingest workers")
	fs.BoolVar(&cfg.Ingest.Expand, "expand-links", cfg.Ingest.Expand, "Follow shortener redirects")
	fs.BoolVar(&cfg.Ingest.FetchPages, "fetch-pages", cfg.Ingest.FetchPages, "Score page text of the first URL")
	fs.BoolVar(&cfg.Ingest.DomainInfo, "domain-info", cfg.Ingest.DomainInfo, "Look up domain registration via RDAP")

	fs.StringVar(&cfg.Scoring.Keywords, "keywords", cfg.Scoring.Keywords, "Keyword table YAML (default: bundled)")

	fs.StringVar(&cfg.Classifier.Model, "model", cfg.Classifier.Model, "Linear model YAML (default: bundled)")
	fs.StringVar(&cfg.Classifier.Endpoint, "classifier.endpoint", cfg.Classifier.Endpoint, "Remote classifier URL")
	fs.Float64Var(&cfg.Classifier.Threshold, "threshold", cfg.Classifier.Threshold, "Classifier decision threshold")
	fs.BoolVar(&cfg.Reassess, "reassess", cfg.Reassess, "Recompute cached classifier assessments")

	fs.StringVar(&cfg.Intel.APIKey, "intel.api-key", cfg.Intel.APIKey, "Verdict service API key")
	fs.IntVar(&cfg.Intel.MaxRetries, "intel.max-retries", cfg.Intel.MaxRetries, "Poll passes before timeout")
	fs.DurationVar(&cfg.Intel.Delay, "intel.delay", cfg.Intel.Delay, "Wait between poll passes")
	fs.DurationVar(&cfg.Intel.Cooldown, "intel.cooldown", cfg.Intel.Cooldown, "Pause on rate limit without Retry-After")
	fs.IntVar(&cfg.Intel.Concurrency, "intel.workers", cfg.Intel.Concurrency, "Concurrent intel requests")
	fs.IntVar(&cfg.Intel.BatchLimit, "intel.batch", cfg.Intel.BatchLimit, "Records per poll run")

	fs.StringVar(&cfg.Fusion.Strategy, "strategy", cfg.Fusion.Strategy, "Fusion strategy (precedence, two-stage)")

	fs.StringVar(&cfg.Server.Addr, "addr", cfg.Server.Addr, "HTTP listen address for serve")

	fs.StringVarP(&cfg.Output.Dir, "out", "o", cfg.Output.Dir, "Output directory")
	fs.BoolVarP(&cfg.Output.Quiet, "quiet", "q", cfg.Output.Quiet, "No table or progress UI, JSON only")
	fs.IntVarP(&cfg.Output.Limit, "limit", "n", cfg.Output.Limit, "Flagged documents to report")
	return fs
}

func normalize(c *Config) {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.Fusion.Strategy = strings.ToLower(strings.TrimSpace(c.Fusion.Strategy))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.Ingest.Concurrency < 1 {
		c.Ingest.Concurrency = 1
	}
	if c.Classifier.Concurrency < 1 {
		c.Classifier.Concurrency = 1
	}
	if c.Ingest.MinRisk < 0 {
		c.Ingest.MinRisk = 0
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "phishfuse_out"
	}
	if c.Output.Limit <= 0 {
		c.Output.Limit = 50
	}
}

// Validate verifica rangos y valores enumerados.
func (c Config) Validate() error {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "sqlite3", "postgres", "postgresql", "pgx":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q", c.Store.Driver))
	}
	if c.Store.DSN == "" {
		errs = append(errs, "store.dsn is empty")
	}
	if c.Classifier.Threshold < 0 || c.Classifier.Threshold > 1 {
		errs = append(errs, fmt.Sprintf("classifier.threshold %v outside [0,1]", c.Classifier.Threshold))
	}
	if c.Intel.SuspiciousRatio < 0 || c.Intel.SuspiciousRatio > 1 {
		errs = append(errs, fmt.Sprintf("intel.suspicious_ratio %v outside [0,1]", c.Intel.SuspiciousRatio))
	}
	if c.Intel.MaxRetries < 1 {
		errs = append(errs, "intel.max_retries must be >= 1")
	}
	if c.Intel.Delay < 0 || c.Intel.Cooldown < 0 {
		errs = append(errs, "intel delays must be >= 0")
	}
	if c.Fusion.LowConfidence < 0 || c.Fusion.LowConfidence > 1 {
		errs = append(errs, fmt.Sprintf("fusion.low_confidence %v outside [0,1]", c.Fusion.LowConfidence))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// ToJSON serializa la configuración a JSON (útil para debugging). Los secretos se omiten.
func (c Config) ToJSON() (string, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Helpers

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok {
		return v
	}
	return def
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "t", "true", "y", "yes", "on":
		return true, nil
	case "0", "f", "false", "n", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("not a boolean")
	}
}

// parseDuration acepta "90s", "2m" o segundos sin unidad.
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func setString(p *string) func(string) error {
	return func(v string) error { *p = v; return nil }
}

func setInt(p *int) func(string) error {
	return func(v string) error {
		i, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*p = i
		return nil
	}
}

func setFloat(p *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*p = f
		return nil
	}
}

func setBool(p *bool) func(string) error {
	return func(v string) error {
		b, err := parseBool(v)
		if err != nil {
			return err
		}
		*p = b
		return nil
	}
}

func setDuration(p *time.Duration) func(string) error {
	return func(v string) error {
		d, err := parseDuration(v)
		if err != nil {
			return err
		}
		*p = d
		return nil
	}
}
