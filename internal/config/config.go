package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/creasty/defaults"
	validatorV10 "github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/acm19/shrink/internal/logger"
	"github.com/acm19/shrink/internal/shrink"
)

// DefaultPath is the configuration file used when none is given.
const DefaultPath = "shrink.yaml"

// Progress backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

var validate = validatorV10.New()

// Config represents the application configuration
type Config struct {
	Library  LibraryConfig   `yaml:"library"`
	Settings shrink.Settings `yaml:"settings"`
	Progress ProgressConfig  `yaml:"progress"`
	Vault    VaultConfig     `yaml:"vault"`
	Tools    ToolsConfig     `yaml:"tools"`
	Server   ServerConfig    `yaml:"server"`
	Bulk     BulkConfig      `yaml:"bulk"`
}

// LibraryConfig locates the image library.
type LibraryConfig struct {
	Manifest string `yaml:"manifest" default:"library.json" validate:"required"`
	Root     string `yaml:"root" default:"uploads" validate:"required"`
	BaseURL  string `yaml:"base_url"`
}

// ProgressConfig selects where the resume cursor is kept.
type ProgressConfig struct {
	Backend string      `yaml:"backend" default:"file" validate:"oneof=file redis"`
	Path    string      `yaml:"path" default:".shrink-progress.json"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds the connection details for the redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"min=0"`
	Prefix   string `yaml:"prefix" default:"shrink"`
}

// VaultConfig configures where originals are copied before deletion.
type VaultConfig struct {
	Driver    string `yaml:"driver" default:"none" validate:"oneof=none s3 minio"`
	Bucket    string `yaml:"bucket" validate:"required_unless=Driver none"`
	Prefix    string `yaml:"prefix" default:"originals"`
	Endpoint  string `yaml:"endpoint" validate:"required_if=Driver minio"`
	Region    string `yaml:"region" default:"us-east-1"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl" default:"true"`
}

// ToolsConfig toggles the optional external binaries.
type ToolsConfig struct {
	Exiftool  bool `yaml:"exiftool" default:"true"`
	Jpegoptim bool `yaml:"jpegoptim" default:"true"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr     string        `yaml:"addr" default:":8080"`
	APIKey   string        `yaml:"api_key"`
	TokenTTL time.Duration `yaml:"token_ttl" default:"12h" validate:"gt=0"`
}

// BulkConfig configures bulk runs.
type BulkConfig struct {
	Pause time.Duration `yaml:"pause" default:"1s" validate:"min=0"`
	Cap   int           `yaml:"cap" default:"250" validate:"min=1"`
}

// Load reads and parses the configuration file. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to set defaults: %w", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Debug("Config file not found, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// applyEnv lets secrets come from the environment instead of the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("SHRINK_API_KEY"); v != "" {
		c.Server.APIKey = v
	}
	if v := os.Getenv("SHRINK_VAULT_ACCESS_KEY"); v != "" {
		c.Vault.AccessKey = v
	}
	if v := os.Getenv("SHRINK_VAULT_SECRET_KEY"); v != "" {
		c.Vault.SecretKey = v
	}
	if v := os.Getenv("SHRINK_REDIS_PASSWORD"); v != "" {
		c.Progress.Redis.Password = v
	}
}

// Validate checks the struct tags and reports every failing field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrors validatorV10.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		msgs = append(msgs, fmt.Sprintf("%s %s", fe.Namespace(), validationMessage(fe)))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func validationMessage(fe validatorV10.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if", "required_unless":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation for tag '%s'", fe.Tag())
	}
}

// VaultOptions converts the vault section for shrink.NewVault.
func (c *Config) VaultOptions() shrink.VaultOptions {
	return shrink.VaultOptions{
		Driver:    c.Vault.Driver,
		Bucket:    c.Vault.Bucket,
		Prefix:    c.Vault.Prefix,
		Endpoint:  c.Vault.Endpoint,
		Region:    c.Vault.Region,
		AccessKey: c.Vault.AccessKey,
		SecretKey: c.Vault.SecretKey,
		UseSSL:    c.Vault.UseSSL,
		Root:      c.Library.Root,
	}
}

// RedisOptions converts the redis section for shrink.NewRedisTracker.
func (c *Config) RedisOptions() shrink.RedisOptions {
	return shrink.RedisOptions{
		Addr:     c.Progress.Redis.Addr,
		Password: c.Progress.Redis.Password,
		DB:       c.Progress.Redis.DB,
		Prefix:   c.Progress.Redis.Prefix,
	}
}

// FileSettings is a shrink.SettingsSource backed by the settings section of a
// configuration file. The file is re-read whenever its modification time
// changes.
type FileSettings struct {
	path string

	mu       sync.Mutex
	modTime  time.Time
	loaded   bool
	settings shrink.Settings
}

// NewFileSettings creates a FileSettings for path. initial is served until the
// file is first read successfully.
func NewFileSettings(path string, initial shrink.Settings) *FileSettings {
	return &FileSettings{path: path, settings: initial}
}

// Settings returns the current settings, reloading the file if it changed. If
// a reload fails the last good settings are kept.
func (f *FileSettings) Settings() (shrink.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f.settings, nil
		}
		return f.settings, fmt.Errorf("cannot access config file: %w", err)
	}
	if f.loaded && info.ModTime().Equal(f.modTime) {
		return f.settings, nil
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return f.settings, fmt.Errorf("failed to read config file: %w", err)
	}
	var doc struct {
		Settings shrink.Settings `yaml:"settings"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		logger.Warn("Ignoring invalid settings, keeping previous values", "path", f.path, "error", err)
		f.modTime = info.ModTime()
		f.loaded = true
		return f.settings, nil
	}
	if err := validate.Struct(doc.Settings); err != nil {
		logger.Warn("Ignoring invalid settings, keeping previous values", "path", f.path, "error", err)
		f.modTime = info.ModTime()
		f.loaded = true
		return f.settings, nil
	}

	if f.loaded {
		logger.Info("Settings reloaded", "path", f.path)
	}
	f.settings = doc.Settings
	f.modTime = info.ModTime()
	f.loaded = true
	return f.settings, nil
}
