// Package config provides configuration management for the training service.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Training  TrainingConfig  `mapstructure:"training"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Log       LogConfig       `mapstructure:"log"`
}

// TrainingConfig holds the default hyperparameters and engine settings used
// to grow a gradient-boosted ensemble, and the worker's local working
// directory.
type TrainingConfig struct {
	Version   string `mapstructure:"version"`
	DataDir   string `mapstructure:"data_dir"`
	MaxWorker int    `mapstructure:"max_worker"`

	Objective        string  `mapstructure:"objective"`
	Rounds           int     `mapstructure:"rounds"`
	Depth            int     `mapstructure:"depth"`
	Eta              float64 `mapstructure:"eta"`
	Lambda           float64 `mapstructure:"lambda"`
	Alpha            float64 `mapstructure:"alpha"`
	Gamma            float64 `mapstructure:"gamma"`
	MinChildWeight   float64 `mapstructure:"min_child_weight"`
	MinLeafSize      int64   `mapstructure:"min_leaf_size"`
	ColsampleByTree  float64 `mapstructure:"colsample_by_tree"`
	ColsampleByLevel float64 `mapstructure:"colsample_by_level"`
	LabelsCount      int     `mapstructure:"labels_count"`

	Seed            uint64 `mapstructure:"seed"`
	OverlapDepth    int    `mapstructure:"overlap_depth"`
	DoublePrecision bool   `mapstructure:"double_precision"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // postgres or mysql; Validate rejects any other value
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// StorageConfig holds object storage configuration for ensemble checkpoints.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`     // e.g., "myqcloud.com"
	Scheme    string `mapstructure:"scheme"`     // e.g., "https" or "http"
	LocalPath string `mapstructure:"local_path"` // for local storage
}

// NotifyConfig holds webhook configuration fired when a training run completes.
type NotifyConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// SchedulerConfig holds worker-pool configuration for polling the
// training-run ledger for pending runs.
type SchedulerConfig struct {
	PollInterval  int `mapstructure:"poll_interval"` // in seconds
	WorkerCount   int `mapstructure:"worker_count"`
	PrioritySlots int `mapstructure:"priority_slots"`
	TaskBatchSize int `mapstructure:"task_batch_size"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"` // json or text
}

// Load reads configuration from the specified file path.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/gbdt")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults")
		} else if os.IsNotExist(err) {
			fmt.Printf("Config file %s not found, using defaults\n", configPath)
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from an io.Reader (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("training.version", "1.0.0")
	v.SetDefault("training.data_dir", "./data")
	v.SetDefault("training.max_worker", 5)
	v.SetDefault("training.objective", "linear_regression")
	v.SetDefault("training.rounds", 100)
	v.SetDefault("training.depth", 6)
	v.SetDefault("training.eta", 0.3)
	v.SetDefault("training.lambda", 1.0)
	v.SetDefault("training.alpha", 0.0)
	v.SetDefault("training.gamma", 0.0)
	v.SetDefault("training.min_child_weight", 1.0)
	v.SetDefault("training.min_leaf_size", 1)
	v.SetDefault("training.colsample_by_tree", 1.0)
	v.SetDefault("training.colsample_by_level", 1.0)
	v.SetDefault("training.labels_count", 1)
	v.SetDefault("training.overlap_depth", 2)
	v.SetDefault("training.double_precision", false)

	v.SetDefault("database.type", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./storage")

	v.SetDefault("scheduler.poll_interval", 2)
	v.SetDefault("scheduler.worker_count", 5)
	v.SetDefault("scheduler.priority_slots", 2)
	v.SetDefault("scheduler.task_batch_size", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.output_path", "./logs")
	v.SetDefault("log.format", "text")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Type != "postgres" && c.Database.Type != "mysql" {
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	// Storage config validation is delegated to the storage package.

	if c.Scheduler.WorkerCount < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}

	return nil
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	if c.Training.DataDir == "" {
		return nil
	}
	return os.MkdirAll(c.Training.DataDir, 0755)
}

// GetRunDir returns the run-specific working directory path.
func (c *Config) GetRunDir(tid string) string {
	return filepath.Join(c.Training.DataDir, tid)
}
