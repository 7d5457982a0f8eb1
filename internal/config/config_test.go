package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SOCKET_PATH", "HTTP_ADDR", "DB_PATH", "RECORDINGS_DIR",
		"SAMPLE_RATE", "SILENCE_THRESHOLD",
		"STOP_WAIT", "SESSION_RETENTION",
		"CACHE_CAPACITY_BYTES", "CACHE_STRATEGY", "CACHE_SWEEP_INTERVAL",
		"MEMORY_HIGH_WATER", "MEMORY_LOW_WATER",
		"SNAPSHOT_INTERVAL", "TASK_RETENTION",
		"TRANSCRIBER", "OPENAI_MODEL", "DEEPGRAM_MODEL", "LANGUAGE",
		"GDRIVE_FOLDER_ID", "GOOGLE_CREDENTIALS_FILE", "LOG_LEVEL",
		"DEEPGRAM_API_KEY", "OPENAI_API_KEY", "CONFIG",
	} {
		t.Setenv(EnvPrefix+key, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.SocketPath != "data/hark.sock" {
		t.Fatalf("expected default socket_path, got %q", cfg.SocketPath)
	}
	if cfg.DBPath != "data/hark.db" {
		t.Fatalf("expected default db_path, got %q", cfg.DBPath)
	}
	if cfg.RecordingsDir != "data/recordings" {
		t.Fatalf("expected default recordings_dir, got %q", cfg.RecordingsDir)
	}
	if cfg.SampleRate != 16000 {
		t.Fatalf("expected default sample_rate 16000, got %d", cfg.SampleRate)
	}
	if cfg.CacheStrategy != "lru" {
		t.Fatalf("expected default cache_strategy lru, got %q", cfg.CacheStrategy)
	}
	if cfg.CacheCapacityBytes != 64<<20 {
		t.Fatalf("expected default cache capacity, got %d", cfg.CacheCapacityBytes)
	}
	if cfg.Transcriber != "openai" {
		t.Fatalf("expected default transcriber openai, got %q", cfg.Transcriber)
	}
}

func TestYAMLLoading(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	yamlContent := `
socket_path: /run/hark.sock
db_path: /custom/hark.db
recordings_dir: /custom/recordings
sample_rate: 48000
stop_wait: 45s
cache_capacity_bytes: 1048576
cache_strategy: lfu
snapshot_interval: 5s
transcriber: deepgram
deepgram_model: nova-3
gdrive_folder_id: my-folder
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.SocketPath != "/run/hark.sock" {
		t.Fatalf("expected yaml socket_path, got %q", cfg.SocketPath)
	}
	if cfg.DBPath != "/custom/hark.db" {
		t.Fatalf("expected yaml db_path, got %q", cfg.DBPath)
	}
	if cfg.SampleRate != 48000 {
		t.Fatalf("expected yaml sample_rate, got %d", cfg.SampleRate)
	}
	if cfg.ParsedStopWait() != 45*time.Second {
		t.Fatalf("expected yaml stop_wait 45s, got %v", cfg.ParsedStopWait())
	}
	if cfg.CacheCapacityBytes != 1048576 {
		t.Fatalf("expected yaml cache capacity, got %d", cfg.CacheCapacityBytes)
	}
	if cfg.CacheStrategy != "lfu" {
		t.Fatalf("expected yaml cache_strategy, got %q", cfg.CacheStrategy)
	}
	if cfg.ParsedSnapshotInterval() != 5*time.Second {
		t.Fatalf("expected yaml snapshot_interval 5s, got %v", cfg.ParsedSnapshotInterval())
	}
	if cfg.Transcriber != "deepgram" {
		t.Fatalf("expected yaml transcriber, got %q", cfg.Transcriber)
	}
	if cfg.GDriveFolderID != "my-folder" {
		t.Fatalf("expected yaml gdrive_folder_id, got %q", cfg.GDriveFolderID)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	yamlContent := `
db_path: /from/yaml
cache_strategy: lfu
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	clearEnv(t)
	t.Setenv(EnvPrefix+"DB_PATH", "/from/env")
	t.Setenv(EnvPrefix+"CACHE_STRATEGY", "ttl")
	t.Setenv(EnvPrefix+"SAMPLE_RATE", "44100")

	cfg, _, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DBPath != "/from/env" {
		t.Fatalf("expected env override for db_path, got %q", cfg.DBPath)
	}
	if cfg.CacheStrategy != "ttl" {
		t.Fatalf("expected env override for cache_strategy, got %q", cfg.CacheStrategy)
	}
	if cfg.SampleRate != 44100 {
		t.Fatalf("expected env override for sample_rate, got %d", cfg.SampleRate)
	}
}

func TestSecretsFromEnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"DEEPGRAM_API_KEY", "dg-secret")
	t.Setenv(EnvPrefix+"OPENAI_API_KEY", "oai-secret")

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DeepgramAPIKey != "dg-secret" {
		t.Fatalf("expected deepgram key from env, got %q", cfg.DeepgramAPIKey)
	}
	if cfg.OpenAIAPIKey != "oai-secret" {
		t.Fatalf("expected openai key from env, got %q", cfg.OpenAIAPIKey)
	}
}

func TestSecretsIgnoredInYAML(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	yamlContent := `
deepgram_api_key: should-be-ignored
openai_api_key: also-ignored
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DeepgramAPIKey != "" {
		t.Fatalf("expected empty deepgram key (yaml should be ignored), got %q", cfg.DeepgramAPIKey)
	}
	if cfg.OpenAIAPIKey != "" {
		t.Fatalf("expected empty openai key (yaml should be ignored), got %q", cfg.OpenAIAPIKey)
	}
}

func TestValidationWarnsOnMissingOpenAIKey(t *testing.T) {
	clearEnv(t)

	_, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	found := false
	for _, w := range warnings {
		if strings.Contains(w, "OpenAI") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected OpenAI warning when key is missing, got warnings: %v", warnings)
	}
}

func TestValidationWarnsOnDeepgramWithoutKey(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"OPENAI_API_KEY", "key")
	t.Setenv(EnvPrefix+"TRANSCRIBER", "deepgram")

	_, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	found := false
	for _, w := range warnings {
		if strings.Contains(w, "Deepgram") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Deepgram warning, got warnings: %v", warnings)
	}
}

func TestValidationNoWarningsWhenConfigured(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"DEEPGRAM_API_KEY", "key")
	t.Setenv(EnvPrefix+"OPENAI_API_KEY", "key")

	_, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(warnings) != 0 {
		t.Fatalf("expected no warnings when fully configured, got: %v", warnings)
	}
}

func TestUnknownStrategyFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"OPENAI_API_KEY", "key")
	t.Setenv(EnvPrefix+"CACHE_STRATEGY", "mru")

	cfg, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.CacheStrategy != "lru" {
		t.Fatalf("expected fallback to lru, got %q", cfg.CacheStrategy)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "cache_strategy") {
		t.Fatalf("expected cache_strategy warning, got: %v", warnings)
	}
}

func TestInvalidDurationWarning(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"OPENAI_API_KEY", "key")
	t.Setenv(EnvPrefix+"STOP_WAIT", "not-a-duration")

	cfg, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(warnings) != 1 || !strings.Contains(warnings[0], "stop_wait") {
		t.Fatalf("expected stop_wait warning, got: %v", warnings)
	}
	if cfg.ParsedStopWait() != 5*time.Second {
		t.Fatalf("expected fallback to 5s, got %v", cfg.ParsedStopWait())
	}
}

func TestInvertedWatermarksDisabled(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"OPENAI_API_KEY", "key")
	t.Setenv(EnvPrefix+"MEMORY_HIGH_WATER", "100")
	t.Setenv(EnvPrefix+"MEMORY_LOW_WATER", "200")

	cfg, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.MemoryHighWater != 0 || cfg.MemoryLowWater != 0 {
		t.Fatalf("expected watermarks zeroed, got high=%d low=%d", cfg.MemoryHighWater, cfg.MemoryLowWater)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "memory_low_water") {
		t.Fatalf("expected watermark warning, got: %v", warnings)
	}
}

func TestMissingConfigFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, _, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("Load should not fail for missing config file, got: %v", err)
	}

	if cfg.DBPath != "data/hark.db" {
		t.Fatalf("expected defaults when config file missing, got db_path=%q", cfg.DBPath)
	}
}

func TestInvalidConfigFileReturnsError(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(configPath, []byte(":::invalid yaml"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	clearEnv(t)

	_, _, err := Load(configPath)
	if err == nil {
		t.Fatal("expected error for invalid yaml, got nil")
	}
}
