package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"renderworker/internal/pkg/errors"
)

func lookupFrom(m map[string]string) Lookup {
	return func(k string) string { return m[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(lookupFrom(nil))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Worker.BackoffMin != 10*time.Millisecond || cfg.Worker.BackoffMax != 5*time.Second {
		t.Errorf("unexpected backoff bounds %v..%v", cfg.Worker.BackoffMin, cfg.Worker.BackoffMax)
	}
	if cfg.Worker.ReloadDelay != 2*time.Second || cfg.Worker.RejectedReloadDelay != 10*time.Second {
		t.Errorf("unexpected reload delays %v / %v", cfg.Worker.ReloadDelay, cfg.Worker.RejectedReloadDelay)
	}
	if cfg.Surface.Width != 256 || cfg.Surface.Height != 256 {
		t.Errorf("unexpected surface %dx%d", cfg.Surface.Width, cfg.Surface.Height)
	}
	if cfg.Dispatch.Transport != TransportHTTP {
		t.Errorf("expected http transport, got %s", cfg.Dispatch.Transport)
	}
	if cfg.Surface.MaxSize != 4096 || cfg.Surface.MaxTextureSize != 4096 {
		t.Errorf("unexpected limits %d/%d", cfg.Surface.MaxSize, cfg.Surface.MaxTextureSize)
	}
	if cfg.Graphics.Device != DeviceNative {
		t.Errorf("expected native device, got %s", cfg.Graphics.Device)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	cfg, err := Load(lookupFrom(map[string]string{
		"DISPATCH_TRANSPORT":    "redis",
		"REDIS_ADDR":            "redis:6379",
		"WORKER_SLOTS":          "3",
		"WORKER_NAMES":          "alpha, ,gamma",
		"BACKOFF_MIN":           "20",
		"BACKOFF_MAX":           "2s",
		"HTTP_DISABLED":         "true",
		"SHADER_FLAVOUR":        "es3",
		"GRAPHICS_DEVICE":       "soft",
		"GRAPHICS_ANTIALIASING": "true",
		"SHADER_STEP_BUDGET":    "5000",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Dispatch.Transport != TransportRedis || cfg.Dispatch.RedisAddr != "redis:6379" {
		t.Errorf("unexpected dispatch config %+v", cfg.Dispatch)
	}
	if cfg.Worker.Slots != 3 {
		t.Errorf("expected 3 slots, got %d", cfg.Worker.Slots)
	}
	if cfg.Worker.BackoffMin != 20*time.Millisecond {
		t.Errorf("bare integers are milliseconds, got %v", cfg.Worker.BackoffMin)
	}
	if cfg.HTTP.Addr != "" {
		t.Errorf("HTTP_DISABLED should clear the address, got %q", cfg.HTTP.Addr)
	}
	if g := cfg.Graphics; g.Device != DeviceSoft || !g.Antialiasing || g.StepBudget != 5000 {
		t.Errorf("unexpected graphics config %+v", g)
	}

	names := []string{"alpha", "", "gamma"}
	for slot, want := range names {
		if got := cfg.RequestedName(slot); got != want {
			t.Errorf("RequestedName(%d) = %q, want %q", slot, got, want)
		}
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "worker.yaml")
	data := `
dispatch:
  url: http://dispatch:9000
  timeout: 5s
worker:
  slots: 2
  name: bench-01
identity:
  store: memory
surface:
  width: 128
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(lookupFrom(map[string]string{
		"WORKER_CONFIG": path,
		"SURFACE_WIDTH": "64",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Dispatch.URL != "http://dispatch:9000" || cfg.Dispatch.Timeout != 5*time.Second {
		t.Errorf("unexpected dispatch config %+v", cfg.Dispatch)
	}
	if cfg.Worker.Slots != 2 || cfg.RequestedName(0) != "bench-01" || cfg.RequestedName(1) != "" {
		t.Errorf("unexpected worker config %+v", cfg.Worker)
	}
	if cfg.Surface.Width != 64 {
		t.Errorf("env must win over file, got width %d", cfg.Surface.Width)
	}
	if cfg.Surface.Height != 256 {
		t.Errorf("unset keys keep defaults, got height %d", cfg.Surface.Height)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad integer", map[string]string{"WORKER_SLOTS": "many"}, "WORKER_SLOTS"},
		{"bad duration", map[string]string{"RELOAD_DELAY": "soon"}, "RELOAD_DELAY"},
		{"unknown transport", map[string]string{"DISPATCH_TRANSPORT": "carrier-pigeon"}, "unknown dispatch transport"},
		{"redis without addr", map[string]string{"DISPATCH_TRANSPORT": "redis"}, "REDIS_ADDR"},
		{"zero slots", map[string]string{"WORKER_SLOTS": "0"}, "at least 1"},
		{"postgres without url", map[string]string{"IDENTITY_STORE": "postgres"}, "DATABASE_URL"},
		{"gdrive without creds", map[string]string{"STORAGE_PROVIDER": "gdrive"}, "GDRIVE_CLIENT_ID"},
		{"inverted backoff", map[string]string{"BACKOFF_MIN": "10s", "BACKOFF_MAX": "1s"}, "backoff"},
		{"missing file", map[string]string{"WORKER_CONFIG": "/nonexistent/worker.yaml"}, "config file"},
		{"surface above max", map[string]string{"SURFACE_WIDTH": "512", "MAX_SURFACE_SIZE": "256"}, "MAX_SURFACE_SIZE"},
		{"zero texture limit", map[string]string{"MAX_TEXTURE_SIZE": "0"}, "MAX_TEXTURE_SIZE"},
		{"unknown device", map[string]string{"GRAPHICS_DEVICE": "vulkan"}, "unknown graphics device"},
		{"negative step budget", map[string]string{"SHADER_STEP_BUDGET": "-1"}, "SHADER_STEP_BUDGET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(lookupFrom(tt.env))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q in error, got %v", tt.want, err)
			}
		})
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	cfg := Default()
	err := Parse([]byte("worker:\n  slotz: 4\n"), &cfg)
	if !errors.IsCode(err, errors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseEmptyDocument(t *testing.T) {
	cfg := Default()
	if err := Parse(nil, &cfg); err != nil {
		t.Fatalf("empty file should be accepted, got %v", err)
	}
	if cfg.Worker.Slots != 1 {
		t.Errorf("defaults should survive, got %d slots", cfg.Worker.Slots)
	}
}
