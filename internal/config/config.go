package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all hark environment variables.
const EnvPrefix = "HARK_"

// Config holds all daemon configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config
// file.
type Config struct {
	SocketPath    string `yaml:"socket_path"`
	HTTPAddr      string `yaml:"http_addr"`
	DBPath        string `yaml:"db_path"`
	RecordingsDir string `yaml:"recordings_dir"`

	SampleRate       int     `yaml:"sample_rate"`
	SilenceThreshold float64 `yaml:"silence_threshold"`
	StopWait         string  `yaml:"stop_wait"`
	SessionRetention string  `yaml:"session_retention"`

	CacheCapacityBytes int64  `yaml:"cache_capacity_bytes"`
	CacheStrategy      string `yaml:"cache_strategy"`
	CacheSweepInterval string `yaml:"cache_sweep_interval"`
	MemoryHighWater    uint64 `yaml:"memory_high_water"`
	MemoryLowWater     uint64 `yaml:"memory_low_water"`

	SnapshotInterval string `yaml:"snapshot_interval"`
	TaskRetention    string `yaml:"task_retention"`

	Transcriber   string `yaml:"transcriber"`
	OpenAIModel   string `yaml:"openai_model"`
	DeepgramModel string `yaml:"deepgram_model"`
	Language      string `yaml:"language"`

	GDriveFolderID        string `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`

	LogLevel string `yaml:"log_level"`

	// Secrets — env vars only, never serialized to YAML.
	DeepgramAPIKey string `yaml:"-"`
	OpenAIAPIKey   string `yaml:"-"`
}

func defaults() Config {
	return Config{
		SocketPath:            "data/hark.sock",
		HTTPAddr:              "127.0.0.1:4573",
		DBPath:                "data/hark.db",
		RecordingsDir:         "data/recordings",
		SampleRate:            16000,
		StopWait:              "5s",
		SessionRetention:      "10m",
		CacheCapacityBytes:    64 << 20,
		CacheStrategy:         "lru",
		CacheSweepInterval:    "30s",
		SnapshotInterval:      "2s",
		TaskRetention:         "10m",
		Transcriber:           "openai",
		OpenAIModel:           "gpt-4o-mini",
		DeepgramModel:         "nova-2",
		GoogleCredentialsFile: "./service-account.json",
		LogLevel:              "info",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the
// result. It returns the config, any validation warnings, and an error
// if the file exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedStopWait returns StopWait with a 5s fallback.
func (c *Config) ParsedStopWait() time.Duration {
	return parseDuration(c.StopWait, 5*time.Second)
}

// ParsedSessionRetention returns SessionRetention with a 10m fallback.
func (c *Config) ParsedSessionRetention() time.Duration {
	return parseDuration(c.SessionRetention, 10*time.Minute)
}

// ParsedCacheSweepInterval returns CacheSweepInterval with a 30s
// fallback.
func (c *Config) ParsedCacheSweepInterval() time.Duration {
	return parseDuration(c.CacheSweepInterval, 30*time.Second)
}

// ParsedSnapshotInterval returns SnapshotInterval with a 2s fallback.
func (c *Config) ParsedSnapshotInterval() time.Duration {
	return parseDuration(c.SnapshotInterval, 2*time.Second)
}

// ParsedTaskRetention returns TaskRetention with a 10m fallback.
func (c *Config) ParsedTaskRetention() time.Duration {
	return parseDuration(c.TaskRetention, 10*time.Minute)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	setString("SOCKET_PATH", &cfg.SocketPath)
	setString("HTTP_ADDR", &cfg.HTTPAddr)
	setString("DB_PATH", &cfg.DBPath)
	setString("RECORDINGS_DIR", &cfg.RecordingsDir)
	setString("STOP_WAIT", &cfg.StopWait)
	setString("SESSION_RETENTION", &cfg.SessionRetention)
	setString("CACHE_STRATEGY", &cfg.CacheStrategy)
	setString("CACHE_SWEEP_INTERVAL", &cfg.CacheSweepInterval)
	setString("SNAPSHOT_INTERVAL", &cfg.SnapshotInterval)
	setString("TASK_RETENTION", &cfg.TaskRetention)
	setString("TRANSCRIBER", &cfg.Transcriber)
	setString("OPENAI_MODEL", &cfg.OpenAIModel)
	setString("DEEPGRAM_MODEL", &cfg.DeepgramModel)
	setString("LANGUAGE", &cfg.Language)
	setString("GDRIVE_FOLDER_ID", &cfg.GDriveFolderID)
	setString("GOOGLE_CREDENTIALS_FILE", &cfg.GoogleCredentialsFile)
	setString("LOG_LEVEL", &cfg.LogLevel)

	if v := os.Getenv(EnvPrefix + "SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rate > 0 {
			cfg.SampleRate = rate
		}
	}
	if v := os.Getenv(EnvPrefix + "SILENCE_THRESHOLD"); v != "" {
		if threshold, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && threshold > 0 {
			cfg.SilenceThreshold = threshold
		}
	}
	if v := os.Getenv(EnvPrefix + "CACHE_CAPACITY_BYTES"); v != "" {
		if capacity, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && capacity > 0 {
			cfg.CacheCapacityBytes = capacity
		}
	}
	if v := os.Getenv(EnvPrefix + "MEMORY_HIGH_WATER"); v != "" {
		if water, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.MemoryHighWater = water
		}
	}
	if v := os.Getenv(EnvPrefix + "MEMORY_LOW_WATER"); v != "" {
		if water, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.MemoryLowWater = water
		}
	}
}

func loadSecrets(cfg *Config) {
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.OpenAIAPIKey == "" {
		warnings = append(warnings, "OpenAI API key not configured, transcription and summaries via OpenAI are disabled. Set "+EnvPrefix+"OPENAI_API_KEY.")
	}
	if cfg.Transcriber == "deepgram" && cfg.DeepgramAPIKey == "" {
		warnings = append(warnings, "Deepgram API key not configured but transcriber is deepgram. Set "+EnvPrefix+"DEEPGRAM_API_KEY.")
	}
	switch cfg.Transcriber {
	case "openai", "deepgram":
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown transcriber %q, using openai.", cfg.Transcriber))
		cfg.Transcriber = "openai"
	}
	switch cfg.CacheStrategy {
	case "lru", "lfu", "ttl", "adaptive":
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown cache_strategy %q, using lru.", cfg.CacheStrategy))
		cfg.CacheStrategy = "lru"
	}
	for field, raw := range map[string]string{
		"stop_wait":            cfg.StopWait,
		"session_retention":    cfg.SessionRetention,
		"cache_sweep_interval": cfg.CacheSweepInterval,
		"snapshot_interval":    cfg.SnapshotInterval,
		"task_retention":       cfg.TaskRetention,
	} {
		if _, err := time.ParseDuration(raw); err != nil {
			warnings = append(warnings, fmt.Sprintf("Invalid %s %q, using default.", field, raw))
		}
	}
	if cfg.MemoryHighWater > 0 && cfg.MemoryLowWater >= cfg.MemoryHighWater {
		warnings = append(warnings, "memory_low_water must be below memory_high_water, pressure eviction disabled.")
		cfg.MemoryHighWater = 0
		cfg.MemoryLowWater = 0
	}

	return warnings
}
