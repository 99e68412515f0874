package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds settings for both the chat client and the dev server. Values
// load from a YAML file and can be overridden with ONBOARD_* environment
// variables.
type Config struct {
	API    APIConfig    `yaml:"api"`
	Server ServerConfig `yaml:"server"`
}

type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	DB   string `yaml:"db"`
	Role string `yaml:"role"`
}

func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL: "http://localhost:8080",
		},
		Server: ServerConfig{
			Addr: ":8080",
			DB:   "onboard.db",
			Role: "Borrower",
		},
	}
}

// DefaultPath returns ~/.onboard/config.yaml, or "" when the home directory
// cannot be resolved.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".onboard", "config.yaml")
}

// Load reads the config file at path (missing files are fine, defaults
// apply) and then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// no file, defaults only
		case err != nil:
			return cfg, errors.Wrapf(err, "could not read config file %s", path)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, errors.Wrapf(err, "could not parse config file %s", path)
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ONBOARD_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("ONBOARD_API_TOKEN"); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv("ONBOARD_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("ONBOARD_SERVER_DB"); v != "" {
		cfg.Server.DB = v
	}
	if v := os.Getenv("ONBOARD_SERVER_ROLE"); v != "" {
		cfg.Server.Role = v
	}
}
