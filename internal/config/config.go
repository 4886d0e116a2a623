package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	apperrors "github.com/bibin-skaria/imgdump/internal/errors"
	"github.com/bibin-skaria/imgdump/internal/types"
)

// Image sources
const (
	SourceDaemon  = "daemon"
	SourceRemote  = "remote"
	SourceArchive = "archive"
)

const DefaultExportConcurrency = 100

// RegistryAuth holds credentials for one registry host
type RegistryAuth struct {
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Token    string `yaml:"token,omitempty"`
}

// Config is the on-disk configuration of imgdump
type Config struct {
	CacheDir           string                  `yaml:"cache_dir"`
	Source             string                  `yaml:"source"`
	Platform           string                  `yaml:"platform,omitempty"`
	LogLevel           string                  `yaml:"log_level"`
	LogFormat          string                  `yaml:"log_format"`
	NoCache            bool                    `yaml:"no_cache"`
	ExportConcurrency  int                     `yaml:"export_concurrency"`
	InsecureRegistries []string                `yaml:"insecure_registries,omitempty"`
	Registries         map[string]RegistryAuth `yaml:"registries,omitempty"`
	Retry              apperrors.RetryConfig   `yaml:"retry"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		CacheDir:          DefaultCacheDir(),
		Source:            SourceDaemon,
		LogLevel:          "warn",
		LogFormat:         "text",
		ExportConcurrency: DefaultExportConcurrency,
		Registries:        map[string]RegistryAuth{},
		Retry:             *apperrors.DefaultRetryConfig(),
	}
}

// DefaultCacheDir returns ~/.imgdump/cache, or a temp directory when there is no home
func DefaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "imgdump-cache")
	}
	return filepath.Join(home, ".imgdump", "cache")
}

// SearchPaths lists the files Load tries when no path is given
func SearchPaths() []string {
	var paths []string
	if env := os.Getenv("IMGDUMP_CONFIG"); env != "" {
		paths = append(paths, env)
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".imgdump", "config.yaml"))
	}
	return append(paths, "/etc/imgdump/config.yaml")
}

// Load reads the configuration file at path, or the first one found in
// SearchPaths when path is empty. Missing files leave the defaults in place;
// an explicit path that does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	candidates := SearchPaths()
	if path != "" {
		candidates = []string{path}
	}

	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate)
		if os.IsNotExist(err) {
			if path != "" {
				return nil, apperrors.NewConfigurationError("load_config", fmt.Sprintf("config file %s not found", path), err)
			}
			continue
		}
		if err != nil {
			return nil, apperrors.NewConfigurationError("load_config", fmt.Sprintf("reading %s", candidate), err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.NewConfigurationError("load_config", fmt.Sprintf("malformed config %s", candidate), err)
		}
		break
	}

	if cfg.Registries == nil {
		cfg.Registries = map[string]RegistryAuth{}
	}

	return cfg, nil
}

// ApplyEnv overrides settings from IMGDUMP_* environment variables
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("IMGDUMP_CACHE_DIR"); v != "" {
		c.CacheDir = v
	}
	if v := os.Getenv("IMGDUMP_SOURCE"); v != "" {
		c.Source = v
	}
	if v := os.Getenv("IMGDUMP_PLATFORM"); v != "" {
		c.Platform = v
	}
	if v := os.Getenv("IMGDUMP_NO_CACHE"); v != "" {
		noCache, err := strconv.ParseBool(v)
		if err != nil {
			return apperrors.NewConfigurationError("apply_env", "IMGDUMP_NO_CACHE must be a boolean", err)
		}
		c.NoCache = noCache
	}
	if v := os.Getenv("IMGDUMP_INSECURE_REGISTRIES"); v != "" {
		c.InsecureRegistries = nil
		for _, host := range strings.Split(v, ",") {
			if host = strings.TrimSpace(host); host != "" {
				c.InsecureRegistries = append(c.InsecureRegistries, host)
			}
		}
	}
	return nil
}

// Validate checks the settings that cannot be caught by the YAML decoder
func (c *Config) Validate() error {
	switch c.Source {
	case SourceDaemon, SourceRemote, SourceArchive:
	default:
		return apperrors.NewConfigurationError("validate_config",
			fmt.Sprintf("unknown source %q, want %s, %s or %s", c.Source, SourceDaemon, SourceRemote, SourceArchive), nil)
	}

	if c.ExportConcurrency <= 0 {
		return apperrors.NewConfigurationError("validate_config", "export_concurrency must be positive", nil)
	}

	if c.Platform != "" {
		if _, err := types.ParsePlatform(c.Platform); err != nil {
			return apperrors.NewConfigurationError("validate_config", "invalid platform", err)
		}
	}

	if c.CacheDir == "" && !c.NoCache {
		return apperrors.NewConfigurationError("validate_config", "cache_dir is required unless no_cache is set", nil)
	}

	return nil
}

// IsInsecure reports whether registry may be reached over plain HTTP
func (c *Config) IsInsecure(registry string) bool {
	for _, host := range c.InsecureRegistries {
		if host == registry {
			return true
		}
	}
	return false
}
