package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MinioBucket != "cloudnotes2014" || cfg.MinioRegion != "us-west-2" {
		t.Fatalf("unexpected bucket defaults: %s %s", cfg.MinioBucket, cfg.MinioRegion)
	}
	if cfg.MaxRetries != 3 || cfg.WorkerConcurrency != 5 {
		t.Fatalf("unexpected worker defaults: retries=%d concurrency=%d", cfg.MaxRetries, cfg.WorkerConcurrency)
	}
	if cfg.URLExpiry != 15*time.Minute {
		t.Fatalf("unexpected url expiry %v", cfg.URLExpiry)
	}
	if cfg.RedisAddr != "" {
		t.Fatalf("redis cache must be off by default")
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "WORKER_CONCURRENCY=8\nSCYLLADB_HOSTS=a:9042, b:9042\nTRACKER_BACKEND=scylla\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("WORKER_CONCURRENCY")
		os.Unsetenv("SCYLLADB_HOSTS")
		os.Unsetenv("TRACKER_BACKEND")
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WorkerConcurrency != 8 || cfg.TrackerBackend != BackendScylla {
		t.Fatalf("env file not applied: %+v", cfg)
	}
	if len(cfg.ScyllaHosts) != 2 || cfg.ScyllaHosts[1] != "b:9042" {
		t.Fatalf("unexpected hosts %v", cfg.ScyllaHosts)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"MAX_RETRIES":     "zero",
		"URL_EXPIRY":      "200h",
		"STORE_BACKEND":   "ftp",
		"STALE_AFTER":     "1s",
		"QUEUE_BACKEND":   "kafka",
		"MINIO_USE_SSL":   "maybe",
		"TRACKER_BACKEND": "sqlite",
		"RETRY_MAX_DELAY": "1h",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}
