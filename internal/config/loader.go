package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/joho/godotenv"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v2"
)

// Environment overrides.
const (
	EnvHost     = "ARCHER_HOST"
	EnvUsername = "ARCHER_USERNAME"
	EnvPassword = "ARCHER_PASSWORD"
	EnvEvict    = "ARCHER_EVICT"
	EnvLogLevel = "ARCHER_LOG_LEVEL"
)

// LoadFile loads a config file. The format follows the extension: .hcl,
// .json, .yaml or .yml; anything else is tried as HCL, then YAML.
// Defaults are applied; environment overrides are not.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Load(data, path)
}

// Load parses data, using filename to pick the format.
func Load(data []byte, filename string) (*Config, error) {
	var (
		cfg Config
		err error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".hcl", ".json":
		err = decodeHCL(data, filename, &cfg)
	case ".yaml", ".yml":
		err = decodeYAML(data, &cfg)
	default:
		if err = decodeHCL(data, filename+".hcl", &cfg); err != nil {
			cfg = Config{}
			if yerr := decodeYAML(data, &cfg); yerr != nil {
				return nil, fmt.Errorf("config is neither HCL (%v) nor YAML (%v)", err, yerr)
			}
			err = nil
		}
	}
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// decodeHCL handles native HCL and HCL's JSON syntax. Expressions may read
// the process environment as env.NAME.
func decodeHCL(data []byte, filename string, cfg *Config) error {
	if err := hclsimple.Decode(filename, data, envContext(), cfg); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}

func decodeYAML(data []byte, cfg *Config) error {
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return fmt.Errorf("failed to decode YAML config: %w", err)
	}
	return nil
}

func envContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		vars[name] = cty.StringVal(value)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vars),
		},
	}
}

// LoadDotEnv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from ARCHER_* variables.
func (c *Config) ApplyEnv() error {
	c.applyDefaults()
	if v, ok := os.LookupEnv(EnvHost); ok && v != "" {
		c.Router.Host = v
	}
	if v, ok := os.LookupEnv(EnvUsername); ok && v != "" {
		c.Router.Username = v
	}
	if v, ok := os.LookupEnv(EnvPassword); ok && v != "" {
		c.Router.Password = v
	}
	if v, ok := os.LookupEnv(EnvEvict); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvEvict, err)
		}
		c.Router.EvictExisting = b
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	return nil
}
