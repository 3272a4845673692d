package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/c360studio/coursegen/model"
)

const (
	ProjectConfigFile = "coursegen.yaml"
	UserConfigDir     = ".config/coursegen"
	UserConfigFile    = "config.yaml"
)

// Environment variables read by the loader.
const (
	EnvAPIKeys   = "COURSEGEN_API_KEYS"
	EnvHostURL   = "COURSEGEN_HOST_URL"
	EnvProvider  = "COURSEGEN_PROVIDER"
	EnvNATSURL   = "COURSEGEN_NATS_URL"
	EnvRedisAddr = "COURSEGEN_REDIS_ADDR"
)

// Loader resolves configuration from defaults, config files, and the
// environment. Later sources win.
type Loader struct {
	logger  *slog.Logger
	getenv  func(string) string
	homeDir func() (string, error)
	workDir func() (string, error)
}

func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		logger:  logger,
		getenv:  os.Getenv,
		homeDir: os.UserHomeDir,
		workDir: os.Getwd,
	}
}

// source is one config file layer. A missing optional file is skipped and an
// unreadable one is logged; a required file must load.
type source struct {
	name     string
	path     string
	required bool
}

// Load merges, in order: defaults, ~/.config/coursegen/config.yaml, the
// nearest coursegen.yaml at or above the working directory, explicitPath,
// and the COURSEGEN_* environment. The result is validated.
func (l *Loader) Load(explicitPath string) (*Config, error) {
	cfg := DefaultConfig()

	sources := []source{
		{name: "user", path: l.userConfigPath()},
		{name: "project", path: l.findProjectConfig()},
		{name: "explicit", path: explicitPath, required: true},
	}
	for _, src := range sources {
		if src.path == "" {
			continue
		}
		layer, err := loadLayer(src.path)
		switch {
		case err == nil:
			cfg.Merge(layer)
			l.logger.Debug("Config layer applied", "layer", src.name, "path", src.path)
		case src.required:
			return nil, fmt.Errorf("config %s: %w", src.path, err)
		case !errors.Is(err, fs.ErrNotExist):
			l.logger.Warn("Config layer skipped", "layer", src.name, "path", src.path, "error", err)
		}
	}

	l.applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l.logger.Debug("Configuration loaded",
		"provider", cfg.Host.Provider,
		"credentials", len(cfg.Credentials),
		"gate", cfg.Gate.Backend)
	return cfg, nil
}

// applyEnv overlays environment variables. COURSEGEN_API_KEYS replaces the
// configured credentials; COURSEGEN_REDIS_ADDR also selects the redis gate.
func (l *Loader) applyEnv(cfg *Config) {
	if keys := strings.TrimSpace(l.getenv(EnvAPIKeys)); keys != "" {
		cfg.Credentials = model.ParseKeyList(keys)
		l.logger.Debug("Credentials from environment", "count", len(cfg.Credentials))
	}

	overlay := []struct {
		env string
		dst *string
	}{
		{EnvHostURL, &cfg.Host.URL},
		{EnvProvider, &cfg.Host.Provider},
		{EnvNATSURL, &cfg.NATS.URL},
		{EnvRedisAddr, &cfg.Gate.RedisAddr},
	}
	for _, o := range overlay {
		if v := l.getenv(o.env); v != "" {
			*o.dst = v
		}
	}
	if l.getenv(EnvRedisAddr) != "" {
		cfg.Gate.Backend = GateRedis
	}
}

// EnsureUserConfig writes the defaults to the user config path unless a file
// is already there, and returns the path.
func (l *Loader) EnsureUserConfig() (string, error) {
	p := l.userConfigPath()
	if p == "" {
		return "", errors.New("cannot determine home directory")
	}
	if _, err := os.Stat(p); err == nil {
		return p, nil
	}
	if err := DefaultConfig().SaveToFile(p); err != nil {
		return "", err
	}
	l.logger.Info("Created default user config", "path", p)
	return p, nil
}

func (l *Loader) userConfigPath() string {
	home, err := l.homeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig walks up from the working directory to the filesystem
// root looking for ProjectConfigFile.
func (l *Loader) findProjectConfig() string {
	dir, err := l.workDir()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ProjectConfigFile)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		next := filepath.Dir(dir)
		if next == dir {
			return ""
		}
		dir = next
	}
}
