// Package config loads finpulse configuration from a TOML file with
// environment variable overrides for deployment settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config holds all finpulse configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	BigQuery BigQueryConfig `toml:"bigquery"`
	Storage  StorageConfig  `toml:"storage"`
	Models   ModelsConfig   `toml:"models"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Worker   WorkerConfig   `toml:"worker"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int `toml:"port"`
	ShutdownTimeout int `toml:"shutdown_timeout_secs"`
}

// BigQueryConfig holds project and dataset settings.
type BigQueryConfig struct {
	ProjectID string `toml:"project_id"`
	DatasetID string `toml:"dataset_id"`
}

// StorageConfig holds GCS settings for uploaded statements.
type StorageConfig struct {
	Bucket string `toml:"bucket"`
}

// ModelsConfig holds Gemini model names.
type ModelsConfig struct {
	EmbeddingModel  string `toml:"embedding_model"`
	ClassifierModel string `toml:"classifier_model"`
}

// PipelineConfig holds categorization and alerting thresholds.
type PipelineConfig struct {
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	MaxConcurrentEmbeds int     `toml:"max_concurrent_embeds"`
	CallTimeoutSecs     int     `toml:"call_timeout_secs"`
	BudgetAlertPct      float64 `toml:"budget_alert_pct"`
}

// WorkerConfig holds job queue settings.
type WorkerConfig struct {
	QueueSize   int    `toml:"queue_size"`
	WorkerCount int    `toml:"worker_count"`
	JobDBPath   string `toml:"job_db_path,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 30,
		},
		BigQuery: BigQueryConfig{
			ProjectID: "finpulse-dev",
			DatasetID: "finance",
		},
		Storage: StorageConfig{
			Bucket: "finpulse-statements",
		},
		Models: ModelsConfig{
			EmbeddingModel:  "gemini-embedding-001",
			ClassifierModel: "gemini-2.5-flash",
		},
		Pipeline: PipelineConfig{
			SimilarityThreshold: 0.85,
			MaxConcurrentEmbeds: 8,
			CallTimeoutSecs:     30,
			BudgetAlertPct:      110,
		},
		Worker: WorkerConfig{
			QueueSize:   100,
			WorkerCount: 5,
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "finpulse")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "finpulse")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	if p := os.Getenv("FINPULSE_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the config file, returning defaults if it doesn't exist, then
// applies environment variable overrides.
func Load() (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(ConfigPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FINPULSE_BQ_PROJECT"); v != "" {
		cfg.BigQuery.ProjectID = v
	}
	if v := os.Getenv("FINPULSE_BQ_DATASET"); v != "" {
		cfg.BigQuery.DatasetID = v
	}
	if v := os.Getenv("FINPULSE_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}
