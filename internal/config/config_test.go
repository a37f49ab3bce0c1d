package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testYAML = `
app:
  name: companion-backend
  environment: test
llm:
  provider: gemini
  gemini:
    apiKey: ${TEST_GEMINI_KEY}
    model: gemini-pro
databases:
  redis:
    address: "localhost:6379"
  minio:
    endpoint: "localhost:9000"
    accessKey: "minio"
    secretKey: "minio123"
    bucket: "recordings"
  mongodb:
    address: "localhost:27017"
    database: "companion"
  kafka:
    brokers: ["localhost:9092"]
    tasksTopic: "companion.tasks"
    groupID: "companion-workers"
worker:
  maxRetries: 5
  retryBaseSeconds: 3
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfigExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "secret-key")

	cfg, err := LoadConfig(writeTestConfig(t, testYAML))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.LLM.Gemini.APIKey != "secret-key" {
		t.Errorf("Expected the env-expanded key, got %q", cfg.LLM.Gemini.APIKey)
	}

	// Explicit values override defaults, unset ones keep them.
	if cfg.Worker.MaxRetries != 5 {
		t.Errorf("Expected maxRetries 5, got %d", cfg.Worker.MaxRetries)
	}
	if cfg.Worker.RetryBase() != 3*time.Second {
		t.Errorf("Expected a 3s retry base, got %v", cfg.Worker.RetryBase())
	}
	if cfg.Worker.HistoryWindowLimit != 10 {
		t.Errorf("Expected the default window limit 10, got %d", cfg.Worker.HistoryWindowLimit)
	}
	if cfg.Worker.StatusTTL() != 86400*time.Second {
		t.Errorf("Expected the default status TTL, got %v", cfg.Worker.StatusTTL())
	}
	if cfg.Gateway.WaitTimeoutSeconds != 60 {
		t.Errorf("Expected the default wait timeout, got %d", cfg.Gateway.WaitTimeoutSeconds)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidateFailsFastOnMissingCredentials(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "secret-key")
	cfg, err := LoadConfig(writeTestConfig(t, testYAML))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	cfg.Databases.MinIO.SecretKey = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation to fail without MinIO credentials")
	}

	cfg, _ = LoadConfig(writeTestConfig(t, testYAML))
	cfg.LLM.Gemini.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation to fail without the Gemini key")
	}

	cfg, _ = LoadConfig(writeTestConfig(t, testYAML))
	cfg.Databases.Kafka.Brokers = nil
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation to fail without Kafka brokers")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}
