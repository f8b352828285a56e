package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("ZIGBEECORE_CONFIG")
	defer os.Setenv("ZIGBEECORE_CONFIG", originalEnv)

	os.Setenv("ZIGBEECORE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_InvalidCoordinator verifies run fails when a coordinator block
// is missing its broker host.
func TestRun_InvalidCoordinator(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
database:
  path: "` + filepath.Join(tmpDir, "test.db") + `"
  wal_mode: true
  busy_timeout: 5

coordinators:
  - id: 1
    name: "house"

influxdb:
  enabled: false

api:
  enabled: false

logging:
  level: error
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("ZIGBEECORE_CONFIG")
	defer os.Setenv("ZIGBEECORE_CONFIG", originalEnv)
	os.Setenv("ZIGBEECORE_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail when coordinator broker host is missing")
	}
}

func TestGetConfigPath(t *testing.T) {
	originalEnv := os.Getenv("ZIGBEECORE_CONFIG")
	defer os.Setenv("ZIGBEECORE_CONFIG", originalEnv)

	os.Setenv("ZIGBEECORE_CONFIG", "/custom/config.yaml")
	if got := getConfigPath(); got != "/custom/config.yaml" {
		t.Errorf("getConfigPath() = %q, want /custom/config.yaml", got)
	}

	os.Unsetenv("ZIGBEECORE_CONFIG")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}
}
