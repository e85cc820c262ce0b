// Package config loads the optional .schedloom.yaml file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the working directory when no --config is given.
const DefaultFile = ".schedloom.yaml"

// Config is the merged tool configuration. Command-line flags override it.
type Config struct {
	DBPath         string `yaml:"db" validate:"required"`
	StateDir       string `yaml:"state_dir" validate:"required"`
	DefaultProject string `yaml:"default_project"`
	LogLevel       string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat      string `yaml:"log_format" validate:"oneof=text json"`
	MaxParallel    int    `yaml:"max_parallel" validate:"gte=1,lte=64"`
	MetricsFile    string `yaml:"metrics_file"`
	// Tentative is the default for `schedule`; --direct overrides it.
	Tentative bool `yaml:"tentative"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DBPath:      ".schedloom/db",
		StateDir:    ".schedloom",
		LogLevel:    "info",
		LogFormat:   "text",
		MaxParallel: 4,
		Tentative:   true,
	}
}

var validate = validator.New()

// Load reads path over the defaults. A missing file is not an error when
// path is the default file name.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s: failed %q (got %v)", fe.Field(), fe.Tag(), fe.Value())
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}
