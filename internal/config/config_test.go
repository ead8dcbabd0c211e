package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SIGNSYNC_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("SIGNSYNC_REMOTE_BASE_URL", "https://signage.example.com/api")
	t.Setenv("SIGNSYNC_ENV", "development")
}

func TestLoadAppliesEngineDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Engine.BaselineMinItems != 4 {
		t.Fatalf("expected baseline minimum 4, got %d", cfg.Engine.BaselineMinItems)
	}
	if cfg.RemoteConcurrency != 5 {
		t.Fatalf("expected gateway concurrency 5, got %d", cfg.RemoteConcurrency)
	}
	if cfg.RemoteTimeout != 15*time.Second {
		t.Fatalf("expected 15s remote timeout, got %s", cfg.RemoteTimeout)
	}
	if !cfg.Engine.PlaylistOnly {
		t.Fatal("expected playlist-only mode to default on")
	}
	for pkg, want := range map[string]int{"SINGLE": 1, "triple": 3, " TEN ": 10, "GOLD": 0} {
		if got := cfg.Engine.PackageLimit(pkg); got != want {
			t.Fatalf("package %q: expected %d screens, got %d", pkg, want, got)
		}
	}
}

func TestLoadRequiresRemoteBaseURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SIGNSYNC_REMOTE_BASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected missing remote base url to fail")
	}
}

func TestLoadProductionRequiresJWTKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SIGNSYNC_ENV", "production")
	t.Setenv("SIGNSYNC_JWT_SIGNING_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected production config without jwt key to fail")
	}

	t.Setenv("SIGNSYNC_JWT_SIGNING_KEY", "supersecret")
	if _, err := Load(); err != nil {
		t.Fatalf("expected production config with jwt key to load: %v", err)
	}
}

func TestLoadDurationAcceptsPlainSeconds(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SIGNSYNC_REMOTE_TIMEOUT", "20")
	t.Setenv("SIGNSYNC_DEFAULT_AD_DURATION", "10s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RemoteTimeout != 20*time.Second {
		t.Fatalf("expected 20s, got %s", cfg.RemoteTimeout)
	}
	if cfg.Engine.DefaultAdDuration != 10*time.Second {
		t.Fatalf("expected 10s, got %s", cfg.Engine.DefaultAdDuration)
	}
}

func TestLoadEngineFileOverrides(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "engine.yaml")
	body := []byte(`
baseline_min_items: 6
baseline_seed_media_ids: [11, 12]
package_limits:
  single: 2
  quad: 4
playlist_only: false
retry_delays: ["1s", "3s"]
settle_delay: 250ms
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write engine file: %v", err)
	}
	t.Setenv("SIGNSYNC_ENGINE_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Engine.BaselineMinItems != 6 {
		t.Fatalf("expected 6, got %d", cfg.Engine.BaselineMinItems)
	}
	if cfg.Engine.PlaylistOnly {
		t.Fatal("expected playlist-only to be switched off")
	}
	if cfg.Engine.PackageLimit("SINGLE") != 2 || cfg.Engine.PackageLimit("QUAD") != 4 || cfg.Engine.PackageLimit("TEN") != 10 {
		t.Fatalf("unexpected package limits: %v", cfg.Engine.PackageLimits)
	}
	if len(cfg.Engine.RetryDelays) != 2 || cfg.Engine.RetryDelays[1] != 3*time.Second {
		t.Fatalf("unexpected retry delays: %v", cfg.Engine.RetryDelays)
	}
	if cfg.Engine.SettleDelay != 250*time.Millisecond {
		t.Fatalf("unexpected settle delay: %s", cfg.Engine.SettleDelay)
	}
	if len(cfg.Engine.BaselineSeedMediaIDs) != 2 {
		t.Fatalf("unexpected seed media: %v", cfg.Engine.BaselineSeedMediaIDs)
	}
}

func TestLoadRejectsBadEngineFile(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "engine.yaml")
	if err := os.WriteFile(path, []byte("settle_delay: soon\n"), 0o600); err != nil {
		t.Fatalf("write engine file: %v", err)
	}
	t.Setenv("SIGNSYNC_ENGINE_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected invalid duration to fail")
	}
}

func TestLoadRejectsNonPositiveMediaReadyTimeout(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "engine.yaml")
	if err := os.WriteFile(path, []byte("media_ready_timeout: 0s\n"), 0o600); err != nil {
		t.Fatalf("write engine file: %v", err)
	}
	t.Setenv("SIGNSYNC_ENGINE_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected zero media ready timeout to fail")
	}

	e := DefaultEngineConfig()
	e.MediaReadyTimeout = -time.Second
	if err := e.Validate(); err == nil {
		t.Fatal("expected negative media ready timeout to fail")
	}
}
