// Package config loads deployment settings from defaults, an optional YAML file
// and environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is shared by the evaluator function, the API function and the CLI.
type Config struct {
	ProjectID           string        `mapstructure:"project-id"`
	Bucket              string        `mapstructure:"bucket"`
	PendingPrefix       string        `mapstructure:"pending-prefix" validate:"required,endswith=/"`
	CompletedPrefix     string        `mapstructure:"completed-prefix" validate:"required,endswith=/,nefield=PendingPrefix"`
	TombstonePrefix     string        `mapstructure:"tombstone-prefix" validate:"required,endswith=/,nefield=PendingPrefix,nefield=CompletedPrefix"`
	UploadURLTTL        time.Duration `mapstructure:"upload-url-ttl" validate:"gt=0"`
	DownloadURLTTL      time.Duration `mapstructure:"download-url-ttl" validate:"gt=0"`
	FirestoreCollection string        `mapstructure:"firestore-collection"`

	LLM      LLMConfig      `mapstructure:"llm"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Log      LogConfig      `mapstructure:"log"`
}

type LLMConfig struct {
	Provider     string   `mapstructure:"provider" validate:"oneof=vertex gemini openai"`
	Model        string   `mapstructure:"model"`
	Region       string   `mapstructure:"region"`
	BaseURL      string   `mapstructure:"base-url" validate:"omitempty,url"`
	APIKeyEnv    string   `mapstructure:"api-key-env"`
	APIKeyFile   string   `mapstructure:"api-key-file"`
	APIKeySecret string   `mapstructure:"api-key-secret"`
	Temperature  *float32 `mapstructure:"temperature" validate:"omitempty,gte=0,lte=2"`
}

type PipelineConfig struct {
	MaxWords         int    `mapstructure:"max-words" validate:"min=1"`
	MapConcurrency   int    `mapstructure:"map-concurrency" validate:"min=1"`
	BatchConcurrency int    `mapstructure:"batch-concurrency" validate:"min=1"`
	Rubric           string `mapstructure:"rubric" validate:"required"`
	RubricFile       string `mapstructure:"rubric-file"`
}

type LogConfig struct {
	Format string `mapstructure:"format" validate:"oneof=json text"`
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

var defaults = map[string]any{
	"pending-prefix":             "resumes/",
	"completed-prefix":           "results/",
	"tombstone-prefix":           "deletions/",
	"upload-url-ttl":             "30m",
	"download-url-ttl":           "15m",
	"llm.provider":               "vertex",
	"llm.region":                 "us-central1",
	"llm.api-key-env":            "OPENAI_API_KEY",
	"pipeline.max-words":         2000,
	"pipeline.map-concurrency":   10,
	"pipeline.batch-concurrency": 10,
	"pipeline.rubric":            "resume",
	"log.format":                 "json",
	"log.level":                  "info",
}

// env maps keys to the environment variables that set them.
var env = map[string]string{
	"project-id":                 "PROJECT_ID",
	"bucket":                     "EVALUATIONS_BUCKET",
	"pending-prefix":             "PENDING_PREFIX",
	"completed-prefix":           "COMPLETED_PREFIX",
	"tombstone-prefix":           "TOMBSTONE_PREFIX",
	"upload-url-ttl":             "UPLOAD_URL_TTL",
	"download-url-ttl":           "DOWNLOAD_URL_TTL",
	"firestore-collection":       "FIRESTORE_COLLECTION",
	"llm.provider":               "LLM_PROVIDER",
	"llm.model":                  "LLM_MODEL",
	"llm.region":                 "VERTEX_AI_REGION",
	"llm.base-url":               "LLM_BASE_URL",
	"llm.api-key-env":            "LLM_API_KEY_ENV",
	"llm.api-key-file":           "LLM_API_KEY_FILE",
	"llm.api-key-secret":         "LLM_API_KEY_SECRET",
	"llm.temperature":            "LLM_TEMPERATURE",
	"pipeline.max-words":         "MAX_WORDS",
	"pipeline.map-concurrency":   "MAP_CONCURRENCY",
	"pipeline.batch-concurrency": "BATCH_CONCURRENCY",
	"pipeline.rubric":            "RUBRIC",
	"pipeline.rubric-file":       "RUBRIC_FILE",
	"log.format":                 "LOG_FORMAT",
	"log.level":                  "LOG_LEVEL",
}

// Load reads configuration. file may be empty. Call Require on the result for the
// fields a particular entry point cannot run without.
func Load(file string) (*Config, error) {
	return load(viper.New(), file)
}

// LoadWith behaves like Load but reads from v, so callers can bind flags first.
func LoadWith(v *viper.Viper, file string) (*Config, error) {
	return load(v, file)
}

func load(v *viper.Viper, file string) (*Config, error) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	for k, name := range env {
		if err := v.BindEnv(k, name); err != nil {
			return nil, fmt.Errorf("binding %s environment variable: %w", name, err)
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Require reports the first of the named settings that is empty.
// Names are "project-id", "bucket" and "llm.region".
func (c *Config) Require(names ...string) error {
	for _, n := range names {
		var v string
		switch n {
		case "project-id":
			v = c.ProjectID
		case "bucket":
			v = c.Bucket
		case "llm.region":
			v = c.LLM.Region
		default:
			return fmt.Errorf("unknown setting %q", n)
		}
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%s must be set (environment variable %s)", n, env[n])
		}
	}
	return nil
}

// NeedsAPIKey reports whether the configured provider authenticates with an API key.
func (c *Config) NeedsAPIKey() bool {
	return c.LLM.Provider != "vertex"
}
