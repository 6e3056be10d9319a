package config_test

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/psilva81/inferq/pkg/config"
)

func TestLoadWithoutPathReturnsDefaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("Expected listen_addr :8080, got %s", cfg.Server.ListenAddr)
	}
	if cfg.Scheduler.MaxWorkers != 3 {
		t.Errorf("Expected 3 workers, got %d", cfg.Scheduler.MaxWorkers)
	}
	if !cfg.Scheduler.EnableAdaptiveScaling {
		t.Error("Expected adaptive scaling enabled by default")
	}
	if cfg.Analyzer.Model != "gpt-4o-mini" {
		t.Errorf("Unexpected default model: %s", cfg.Analyzer.Model)
	}
	if cfg.Archive.Enabled {
		t.Error("Archive should be disabled by default")
	}
	if cfg.Tracing.Enabled {
		t.Error("Tracing should be disabled by default")
	}
}

func TestLoadOverlaysFileOverDefaults(t *testing.T) {
	path := "/tmp/test_inferq_config.yaml"
	content := `
server:
  listen_addr: ":9999"
  api_key: "sekrit"
scheduler:
  max_workers: 8
  enable_adaptive_scaling: false
archive:
  enabled: true
  backend: "postgres"
  dsn: "postgres://localhost/inferq"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	defer os.Remove(path)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.ListenAddr != ":9999" {
		t.Errorf("Expected listen_addr :9999, got %s", cfg.Server.ListenAddr)
	}
	if cfg.Server.APIKey != "sekrit" {
		t.Errorf("Expected api_key sekrit, got %s", cfg.Server.APIKey)
	}
	if cfg.Scheduler.MaxWorkers != 8 {
		t.Errorf("Expected 8 workers, got %d", cfg.Scheduler.MaxWorkers)
	}
	if cfg.Scheduler.EnableAdaptiveScaling {
		t.Error("Adaptive scaling should be disabled by the file")
	}
	if !cfg.Archive.Enabled || cfg.Archive.Backend != "postgres" {
		t.Errorf("Archive section not applied: %+v", cfg.Archive)
	}

	// Keys absent from the file keep their defaults
	if cfg.Server.MetricsAddr != ":9090" {
		t.Errorf("Expected default metrics_addr, got %s", cfg.Server.MetricsAddr)
	}
	if !cfg.Scheduler.EnablePriorityBoosting {
		t.Error("Priority boosting default should survive a partial file")
	}
	if cfg.Scheduler.MaxQueueSize != 100 {
		t.Errorf("Expected default queue size 100, got %d", cfg.Scheduler.MaxQueueSize)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load("/tmp/does_not_exist_inferq.yaml")
	if err == nil {
		t.Fatal("Expected error for missing file")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := "/tmp/test_inferq_config_bad.yaml"
	if err := os.WriteFile(path, []byte("server: [not a mapping"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	defer os.Remove(path)

	_, err := config.Load(path)
	if err == nil {
		t.Fatal("Expected error for malformed YAML")
	}
	if !strings.Contains(err.Error(), "failed to parse config file") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestToSchedulerParsesDurations(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.WorkerTimeout = "90s"
	cfg.Scheduler.BoostThreshold = "45s"

	sched, err := cfg.ToScheduler()
	if err != nil {
		t.Fatalf("ToScheduler failed: %v", err)
	}
	if sched.WorkerTimeout != 90*time.Second {
		t.Errorf("Expected 90s worker timeout, got %v", sched.WorkerTimeout)
	}
	if sched.BoostThreshold != 45*time.Second {
		t.Errorf("Expected 45s boost threshold, got %v", sched.BoostThreshold)
	}
	if err := sched.Validate(); err != nil {
		t.Errorf("Converted defaults should validate: %v", err)
	}
}

func TestToSchedulerRejectsBadDuration(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.WorkerTimeout = "soon"

	_, err := cfg.ToScheduler()
	if err == nil {
		t.Fatal("Expected error for unparseable duration")
	}
	if !strings.Contains(err.Error(), "worker_timeout") {
		t.Errorf("Error should name the field: %v", err)
	}
}

func TestToAnalyzerParsesRetrySettings(t *testing.T) {
	cfg := config.Default()
	cfg.Analyzer.MaxRetries = 5
	cfg.Analyzer.InitialBackoff = "250ms"

	model, err := cfg.ToAnalyzer()
	if err != nil {
		t.Fatalf("ToAnalyzer failed: %v", err)
	}
	if model.Retry.MaxRetries != 5 {
		t.Errorf("Expected 5 retries, got %d", model.Retry.MaxRetries)
	}
	if model.Retry.InitialBackoff != 250*time.Millisecond {
		t.Errorf("Expected 250ms backoff, got %v", model.Retry.InitialBackoff)
	}
	if model.RequestTimeout != 60*time.Second {
		t.Errorf("Expected default 60s request timeout, got %v", model.RequestTimeout)
	}
	if err := model.Validate(); err != nil {
		t.Errorf("Converted defaults should validate: %v", err)
	}
}

func TestToArchiveTreatsEmptyDurationsAsZero(t *testing.T) {
	cfg := config.Default()

	arch, err := cfg.ToArchive()
	if err != nil {
		t.Fatalf("ToArchive failed: %v", err)
	}
	if arch.ConnMaxLifetime != 0 || arch.ConnMaxIdleTime != 0 {
		t.Errorf("Expected zero pool lifetimes, got %v / %v", arch.ConnMaxLifetime, arch.ConnMaxIdleTime)
	}
	if arch.Backend != "sqlite" || arch.Path != "inferq-archive.db" {
		t.Errorf("Unexpected archive defaults: %+v", arch)
	}
}

func TestSessionTTL(t *testing.T) {
	cfg := config.Default()
	ttl, err := cfg.SessionTTL()
	if err != nil {
		t.Fatalf("SessionTTL failed: %v", err)
	}
	if ttl != 24*time.Hour {
		t.Errorf("Expected 24h TTL, got %v", ttl)
	}
}

func TestExampleConfigStaysLoadable(t *testing.T) {
	path := "/tmp/test_inferq_example_config.yaml"
	if err := os.WriteFile(path, []byte(config.ExampleConfig), 0644); err != nil {
		t.Fatalf("Failed to write example config: %v", err)
	}
	defer os.Remove(path)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Example config failed to load: %v", err)
	}
	if _, err := cfg.ToScheduler(); err != nil {
		t.Errorf("Example scheduler section does not convert: %v", err)
	}
	if _, err := cfg.ToAnalyzer(); err != nil {
		t.Errorf("Example analyzer section does not convert: %v", err)
	}
	if _, err := cfg.ToArchive(); err != nil {
		t.Errorf("Example archive section does not convert: %v", err)
	}
	if _, err := cfg.SessionTTL(); err != nil {
		t.Errorf("Example session_ttl does not parse: %v", err)
	}
}
