package common

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Log      LogConfig
	Database DatabaseConfig
	Server   ServerConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Search   SearchConfig
	Pipeline PipelineConfig
	Scoring  ScoringConfig
	Storage  StorageConfig
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string // debug | info | warn | error
	Format string // json | text
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // postgres | sqlite
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr    string
	GRPCAddr    string
	Workers     int
	QueueSize   int
	EvalTimeout time.Duration
}

// OCRConfig holds OCR provider configuration
type OCRConfig struct {
	Provider     string // vision | pdftext
	BaseURL      string
	APIKey       string
	BatchSize    int
	MaxPages     int
	Stride       int
	Timeout      time.Duration
	CostPerPage  float64
	CostPerImage float64
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Provider        string // openai | vertex | none
	Model           string
	APIKey          string
	BaseURL         string
	Project         string
	Region          string
	Temperature     float32
	Timeout         time.Duration
	CostPer1KTokens float64
}

// SearchConfig holds search provider configuration
type SearchConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxResults int
}

// PipelineConfig holds stage scheduling and retry configuration
type PipelineConfig struct {
	MaxConcurrency   int
	DocConcurrency   int
	MaxRetries       int
	DefaultRetryWait time.Duration
	AmountTolerance  string // decimal, currency units
}

// ScoringConfig points at the band configuration
type ScoringConfig struct {
	BandsFile string
}

// StorageConfig holds attachment blob settings
type StorageConfig struct {
	GCSEnabled      bool
	MaxAttachmentMB int
}

// defaults mirrors the environment fallbacks of every key.
var defaults = map[string]any{
	"log.level":  "info",
	"log.format": "json",

	"db.driver":              "postgres",
	"db.url":                 "",
	"db.max_conns":           20,
	"db.min_conns":           5,
	"db.max_conn_lifetime":   30 * time.Minute,
	"db.max_conn_idle_time":  5 * time.Minute,
	"db.dial_timeout":        3 * time.Second,
	"db.statement_timeout":   time.Duration(0),
	"server.http_addr":       ":8081",
	"server.grpc_addr":       ":8080",
	"server.workers":         4,
	"server.queue_size":      256,
	"server.eval_timeout":    10 * time.Minute,
	"ocr.provider":           "vision",
	"ocr.base_url":           "",
	"ocr.api_key":            "",
	"ocr.batch_size":         5,
	"ocr.max_pages":          50,
	"ocr.stride":             10,
	"ocr.timeout":            60 * time.Second,
	"ocr.cost_per_page":      0.0015,
	"ocr.cost_per_image":     0.0015,
	"llm.provider":           "openai",
	"llm.model":              "gpt-4o-mini",
	"llm.api_key":            "",
	"llm.base_url":           "https://api.openai.com/v1",
	"llm.project":            "",
	"llm.region":             "us-central1",
	"llm.temperature":        0.0,
	"llm.timeout":            45 * time.Second,
	"llm.cost_per_1k_tokens": 0.00015,
	"search.base_url":        "",
	"search.api_key":         "",
	"search.timeout":         15 * time.Second,
	"search.max_results":     10,

	"pipeline.max_concurrency":    4,
	"pipeline.doc_concurrency":    3,
	"pipeline.max_retries":        3,
	"pipeline.default_retry_wait": 20 * time.Second,
	"pipeline.amount_tolerance":   "1",
	"scoring.bands_file":          "",
	"storage.gcs_enabled":         false,
	"storage.max_attachment_mb":   25,
}

// legacyEnv keeps the unprefixed variable names working.
var legacyEnv = map[string]string{
	"db.url":           "DB_URL",
	"llm.api_key":      "OPENAI_API_KEY",
	"llm.model":        "OPENAI_MODEL",
	"llm.project":      "GOOGLE_CLOUD_PROJECT",
	"server.grpc_addr": "GRPC_ADDR",
}

// NewViper returns a viper instance wired to UNDERWRITER_* environment variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("UNDERWRITER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, def := range defaults {
		v.SetDefault(k, def)
	}
	for k, env := range legacyEnv {
		_ = v.BindEnv(k, "UNDERWRITER_"+strings.ToUpper(strings.ReplaceAll(k, ".", "_")), env)
	}
	return v
}

// LoadConfig loads configuration from the given viper instance (file + environment).
// A nil instance reads the environment only.
func LoadConfig(v *viper.Viper) *Config {
	if v == nil {
		v = NewViper()
	}
	return &Config{
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Database: DatabaseConfig{
			Driver:           strings.ToLower(v.GetString("db.driver")),
			DSN:              v.GetString("db.url"),
			MaxConns:         v.GetInt32("db.max_conns"),
			MinConns:         v.GetInt32("db.min_conns"),
			MaxConnLifetime:  v.GetDuration("db.max_conn_lifetime"),
			MaxConnIdleTime:  v.GetDuration("db.max_conn_idle_time"),
			DialTimeout:      v.GetDuration("db.dial_timeout"),
			StatementTimeout: v.GetDuration("db.statement_timeout"),
		},
		Server: ServerConfig{
			HTTPAddr:    v.GetString("server.http_addr"),
			GRPCAddr:    v.GetString("server.grpc_addr"),
			Workers:     v.GetInt("server.workers"),
			QueueSize:   v.GetInt("server.queue_size"),
			EvalTimeout: v.GetDuration("server.eval_timeout"),
		},
		OCR: OCRConfig{
			Provider:     strings.ToLower(v.GetString("ocr.provider")),
			BaseURL:      v.GetString("ocr.base_url"),
			APIKey:       v.GetString("ocr.api_key"),
			BatchSize:    v.GetInt("ocr.batch_size"),
			MaxPages:     v.GetInt("ocr.max_pages"),
			Stride:       v.GetInt("ocr.stride"),
			Timeout:      v.GetDuration("ocr.timeout"),
			CostPerPage:  v.GetFloat64("ocr.cost_per_page"),
			CostPerImage: v.GetFloat64("ocr.cost_per_image"),
		},
		LLM: LLMConfig{
			Provider:        strings.ToLower(v.GetString("llm.provider")),
			Model:           v.GetString("llm.model"),
			APIKey:          v.GetString("llm.api_key"),
			BaseURL:         v.GetString("llm.base_url"),
			Project:         v.GetString("llm.project"),
			Region:          v.GetString("llm.region"),
			Temperature:     float32(v.GetFloat64("llm.temperature")),
			Timeout:         v.GetDuration("llm.timeout"),
			CostPer1KTokens: v.GetFloat64("llm.cost_per_1k_tokens"),
		},
		Search: SearchConfig{
			BaseURL:    v.GetString("search.base_url"),
			APIKey:     v.GetString("search.api_key"),
			Timeout:    v.GetDuration("search.timeout"),
			MaxResults: v.GetInt("search.max_results"),
		},
		Pipeline: PipelineConfig{
			MaxConcurrency:   v.GetInt("pipeline.max_concurrency"),
			DocConcurrency:   v.GetInt("pipeline.doc_concurrency"),
			MaxRetries:       v.GetInt("pipeline.max_retries"),
			DefaultRetryWait: v.GetDuration("pipeline.default_retry_wait"),
			AmountTolerance:  v.GetString("pipeline.amount_tolerance"),
		},
		Scoring: ScoringConfig{
			BandsFile: v.GetString("scoring.bands_file"),
		},
		Storage: StorageConfig{
			GCSEnabled:      v.GetBool("storage.gcs_enabled"),
			MaxAttachmentMB: v.GetInt("storage.max_attachment_mb"),
		},
	}
}

// Validate checks credentials and limits before any stage runs.
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("db.driver", c.Database.Driver, OneOf("postgres", "sqlite"))
	v.Field("db.url", c.Database.DSN, Required)
	v.Field("ocr.provider", c.OCR.Provider, OneOf("vision", "pdftext"))
	v.Field("ocr.batch_size", c.OCR.BatchSize, Positive)
	v.Field("ocr.max_pages", c.OCR.MaxPages, Positive)
	v.Field("ocr.stride", c.OCR.Stride, Positive)
	v.Field("llm.provider", c.LLM.Provider, OneOf("openai", "vertex", "none"))
	v.Field("pipeline.max_concurrency", c.Pipeline.MaxConcurrency, Positive)

	if c.OCR.Provider == "vision" {
		v.Field("ocr.base_url", c.OCR.BaseURL, Required)
		v.Field("ocr.api_key", c.OCR.APIKey, Required)
	}
	switch c.LLM.Provider {
	case "openai":
		v.Field("llm.api_key", c.LLM.APIKey, Required)
	case "vertex":
		v.Field("llm.project", c.LLM.Project, Required)
		v.Field("llm.region", c.LLM.Region, Required)
	}

	if v.HasErrors() {
		return NewAppError(CodeConfig, v.ErrorMessage(), ErrConfiguration)
	}
	return nil
}
