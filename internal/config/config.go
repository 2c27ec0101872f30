// Package config loads render worker settings.
//
// Values come from three layers, later ones winning: built-in defaults, an
// optional YAML file named by WORKER_CONFIG, and environment variables.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"renderworker/internal/pkg/errors"
)

// Dispatch transports.
const (
	TransportHTTP  = "http"
	TransportRedis = "redis"
)

// Identity stores.
const (
	IdentityFile     = "file"
	IdentityPostgres = "postgres"
	IdentityMemory   = "memory"
)

// Storage providers.
const (
	StorageLocalFS = "localfs"
	StorageGDrive  = "gdrive"
	StorageNone    = "none"
)

// Graphics devices.
const (
	DeviceNative = "native"
	DeviceSoft   = "soft"
)

// Config is the complete worker configuration.
type Config struct {
	Dispatch Dispatch `yaml:"dispatch"`
	Worker   Worker   `yaml:"worker"`
	Identity Identity `yaml:"identity"`
	Storage  Storage  `yaml:"storage"`
	Database Database `yaml:"database"`
	HTTP     HTTP     `yaml:"http"`
	Surface  Surface  `yaml:"surface"`
	Graphics Graphics `yaml:"graphics"`
}

// Dispatch selects and configures the dispatch service transport.
type Dispatch struct {
	Transport string        `yaml:"transport"`
	URL       string        `yaml:"url"`
	Timeout   time.Duration `yaml:"timeout"`
	RedisAddr string        `yaml:"redis_addr"`
}

// Worker configures the slot loop.
type Worker struct {
	Slots int `yaml:"slots"`
	// Name is the requested name for slot 0. Names overrides it per slot.
	Name                string        `yaml:"name"`
	Names               []string      `yaml:"names"`
	BackoffMin          time.Duration `yaml:"backoff_min"`
	BackoffMax          time.Duration `yaml:"backoff_max"`
	ReloadDelay         time.Duration `yaml:"reload_delay"`
	RejectedReloadDelay time.Duration `yaml:"rejected_reload_delay"`
	// ShaderFlavour picks the default vertex shader: "es2" or "es3".
	ShaderFlavour string `yaml:"shader_flavour"`
}

// Identity configures where accepted worker names are persisted.
type Identity struct {
	Store    string `yaml:"store"`
	StateDir string `yaml:"state_dir"`
}

// Storage configures the result archive.
type Storage struct {
	Provider  string `yaml:"provider"`
	LocalRoot string `yaml:"local_root"`
	GDrive    GDrive `yaml:"gdrive"`
}

// GDrive holds Google Drive OAuth credentials.
type GDrive struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	FolderID     string `yaml:"folder_id"`
}

// Database configures the optional Postgres connection.
type Database struct {
	URL string `yaml:"url"`
}

// HTTP configures the status API. An empty Addr disables it.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// Surface is the default render surface size and the largest surface and
// texture a job may ask for.
type Surface struct {
	Width          int `yaml:"width"`
	Height         int `yaml:"height"`
	MaxSize        int `yaml:"max_size"`
	MaxTextureSize int `yaml:"max_texture_size"`
}

// Graphics selects the device slots render with.
type Graphics struct {
	// Device is DeviceNative (EGL and the system OpenGL ES driver) or
	// DeviceSoft (the built-in software renderer).
	Device string `yaml:"device"`
	// Antialiasing asks for multisampled surfaces.
	Antialiasing bool `yaml:"antialiasing"`
	// StepBudget bounds the shader steps one soft draw call may take before
	// the device reports context loss. Zero uses the renderer default.
	StepBudget int `yaml:"step_budget"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Dispatch: Dispatch{
			Transport: TransportHTTP,
			URL:       "http://localhost:8080",
		},
		Worker: Worker{
			Slots:               1,
			BackoffMin:          10 * time.Millisecond,
			BackoffMax:          5 * time.Second,
			ReloadDelay:         2 * time.Second,
			RejectedReloadDelay: 10 * time.Second,
			ShaderFlavour:       "es2",
		},
		Identity: Identity{
			Store:    IdentityFile,
			StateDir: ".render-worker",
		},
		Storage: Storage{
			Provider: StorageNone,
		},
		HTTP:     HTTP{Addr: ":8090"},
		Surface:  Surface{Width: 256, Height: 256, MaxSize: 4096, MaxTextureSize: 4096},
		Graphics: Graphics{Device: DeviceNative},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// WORKER_CONFIG and the environment. A nil lookup reads the process env.
func Load(lookup Lookup) (Config, error) {
	e := newEnv(lookup)
	cfg := Default()

	if path := e.Env("WORKER_CONFIG", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "config.load", "failed to read config file")
		}
		if err := Parse(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.applyEnv(e)
	if len(e.invalid) > 0 {
		return Config{}, errors.Validationf("invalid values for %s", strings.Join(e.invalid, ", ")).
			WithOp("config.load")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse overlays YAML data onto cfg. Keys absent from data keep their value.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return errors.WrapWithCode(err, errors.CodeValidation, "config.parse", "invalid config file")
	}
	return nil
}

func (c *Config) applyEnv(e *env) {
	c.Dispatch.Transport = e.Env("DISPATCH_TRANSPORT", c.Dispatch.Transport)
	c.Dispatch.URL = e.Env("DISPATCH_URL", c.Dispatch.URL)
	c.Dispatch.Timeout = e.DurationEnv("DISPATCH_TIMEOUT", c.Dispatch.Timeout)
	c.Dispatch.RedisAddr = e.Env("REDIS_ADDR", c.Dispatch.RedisAddr)

	c.Worker.Slots = e.IntEnv("WORKER_SLOTS", c.Worker.Slots)
	c.Worker.Name = e.Env("WORKER_NAME", c.Worker.Name)
	c.Worker.Names = e.ListEnv("WORKER_NAMES", c.Worker.Names)
	c.Worker.BackoffMin = e.DurationEnv("BACKOFF_MIN", c.Worker.BackoffMin)
	c.Worker.BackoffMax = e.DurationEnv("BACKOFF_MAX", c.Worker.BackoffMax)
	c.Worker.ReloadDelay = e.DurationEnv("RELOAD_DELAY", c.Worker.ReloadDelay)
	c.Worker.RejectedReloadDelay = e.DurationEnv("REJECTED_RELOAD_DELAY", c.Worker.RejectedReloadDelay)
	c.Worker.ShaderFlavour = e.Env("SHADER_FLAVOUR", c.Worker.ShaderFlavour)

	c.Identity.Store = e.Env("IDENTITY_STORE", c.Identity.Store)
	c.Identity.StateDir = e.Env("STATE_DIR", c.Identity.StateDir)

	c.Storage.Provider = e.Env("STORAGE_PROVIDER", c.Storage.Provider)
	c.Storage.LocalRoot = e.Env("STORAGE_LOCAL_ROOT", c.Storage.LocalRoot)
	c.Storage.GDrive.ClientID = e.Env("GDRIVE_CLIENT_ID", c.Storage.GDrive.ClientID)
	c.Storage.GDrive.ClientSecret = e.Env("GDRIVE_CLIENT_SECRET", c.Storage.GDrive.ClientSecret)
	c.Storage.GDrive.RefreshToken = e.Env("GDRIVE_REFRESH_TOKEN", c.Storage.GDrive.RefreshToken)
	c.Storage.GDrive.FolderID = e.Env("GDRIVE_FOLDER_ID", c.Storage.GDrive.FolderID)

	c.Database.URL = e.Env("DATABASE_URL", c.Database.URL)
	if e.BoolEnv("HTTP_DISABLED", false) {
		c.HTTP.Addr = ""
	} else {
		c.HTTP.Addr = e.Env("HTTP_ADDR", c.HTTP.Addr)
	}

	c.Surface.Width = e.IntEnv("SURFACE_WIDTH", c.Surface.Width)
	c.Surface.Height = e.IntEnv("SURFACE_HEIGHT", c.Surface.Height)
	c.Surface.MaxSize = e.IntEnv("MAX_SURFACE_SIZE", c.Surface.MaxSize)
	c.Surface.MaxTextureSize = e.IntEnv("MAX_TEXTURE_SIZE", c.Surface.MaxTextureSize)

	c.Graphics.Device = e.Env("GRAPHICS_DEVICE", c.Graphics.Device)
	c.Graphics.Antialiasing = e.BoolEnv("GRAPHICS_ANTIALIASING", c.Graphics.Antialiasing)
	c.Graphics.StepBudget = e.IntEnv("SHADER_STEP_BUDGET", c.Graphics.StepBudget)
}

// Validate checks the configuration for contradictions.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Dispatch.Transport {
	case TransportHTTP:
		if c.Dispatch.URL == "" {
			add("dispatch url is required for the http transport")
		}
	case TransportRedis:
		if c.Dispatch.RedisAddr == "" {
			add("REDIS_ADDR is required for the redis transport")
		}
	default:
		add("unknown dispatch transport %q", c.Dispatch.Transport)
	}

	if c.Worker.Slots < 1 {
		add("worker slots must be at least 1")
	}
	if c.Worker.BackoffMin <= 0 || c.Worker.BackoffMax < c.Worker.BackoffMin {
		add("backoff bounds must satisfy 0 < min <= max")
	}
	if c.Worker.ShaderFlavour != "es2" && c.Worker.ShaderFlavour != "es3" {
		add("unknown shader flavour %q", c.Worker.ShaderFlavour)
	}

	switch c.Identity.Store {
	case IdentityFile:
		if c.Identity.StateDir == "" {
			add("STATE_DIR is required for the file identity store")
		}
	case IdentityPostgres:
		if c.Database.URL == "" {
			add("DATABASE_URL is required for the postgres identity store")
		}
	case IdentityMemory:
	default:
		add("unknown identity store %q", c.Identity.Store)
	}

	switch c.Storage.Provider {
	case StorageNone:
	case StorageLocalFS:
		if c.Storage.LocalRoot == "" {
			add("STORAGE_LOCAL_ROOT is required for the localfs provider")
		}
	case StorageGDrive:
		g := c.Storage.GDrive
		if g.ClientID == "" || g.ClientSecret == "" || g.RefreshToken == "" {
			add("GDRIVE_CLIENT_ID, GDRIVE_CLIENT_SECRET and GDRIVE_REFRESH_TOKEN are required for the gdrive provider")
		}
	default:
		add("unknown storage provider %q", c.Storage.Provider)
	}

	if c.Surface.Width < 1 || c.Surface.Height < 1 {
		add("surface size must be positive")
	}
	if c.Surface.MaxSize < c.Surface.Width || c.Surface.MaxSize < c.Surface.Height {
		add("MAX_SURFACE_SIZE must be at least the surface size")
	}
	if c.Surface.MaxTextureSize < 1 {
		add("MAX_TEXTURE_SIZE must be positive")
	}

	switch c.Graphics.Device {
	case DeviceNative, DeviceSoft:
	default:
		add("unknown graphics device %q", c.Graphics.Device)
	}
	if c.Graphics.StepBudget < 0 {
		add("SHADER_STEP_BUDGET must not be negative")
	}

	if len(problems) > 0 {
		return errors.New(errors.CodeValidation, strings.Join(problems, "; ")).WithOp("config.validate")
	}
	return nil
}

// RequestedName returns the name slot asks the dispatch service for. An
// empty result means the slot falls back to its persisted identity.
func (c Config) RequestedName(slot int) string {
	if slot < len(c.Worker.Names) && c.Worker.Names[slot] != "" {
		return c.Worker.Names[slot]
	}
	if slot == 0 {
		return c.Worker.Name
	}
	return ""
}
