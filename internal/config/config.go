// Package config loads the archer client configuration from HCL, JSON or
// YAML files, a .env file and ARCHER_* environment variables.
//
// Example HCL:
//
//	router {
//	  host           = "192.168.0.1"
//	  password       = env.ARCHER_PASSWORD
//	  evict_existing = true
//	  timeout        = "10s"
//	}
//
//	log {
//	  level = "debug"
//	}
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/jgrimard/TPLink-APIClient/internal/logging"
)

const (
	DefaultUsername = "admin"
	DefaultTimeout  = 10 * time.Second
)

// Config is the whole client configuration.
type Config struct {
	Router *RouterConfig `hcl:"router,block" json:"router,omitempty" yaml:"router,omitempty"`
	Log    *LogConfig    `hcl:"log,block" json:"log,omitempty" yaml:"log,omitempty"`
}

// RouterConfig addresses and authenticates against one router.
type RouterConfig struct {
	Host          string `hcl:"host,optional" json:"host,omitempty" yaml:"host,omitempty"`
	Username      string `hcl:"username,optional" json:"username,omitempty" yaml:"username,omitempty"`
	Password      string `hcl:"password,optional" json:"password,omitempty" yaml:"password,omitempty"`
	EvictExisting bool   `hcl:"evict_existing,optional" json:"evict_existing,omitempty" yaml:"evict_existing,omitempty"`
	Timeout       string `hcl:"timeout,optional" json:"timeout,omitempty" yaml:"timeout,omitempty"`
	UserAgent     string `hcl:"user_agent,optional" json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level string `hcl:"level,optional" json:"level,omitempty" yaml:"level,omitempty"`
	JSON  bool   `hcl:"json,optional" json:"json,omitempty" yaml:"json,omitempty"`
}

// Default returns a config with every optional field filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Router == nil {
		c.Router = &RouterConfig{}
	}
	if c.Router.Username == "" {
		c.Router.Username = DefaultUsername
	}
	if c.Router.Timeout == "" {
		c.Router.Timeout = DefaultTimeout.String()
	}
	if c.Log == nil {
		c.Log = &LogConfig{}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// RequestTimeout parses router.timeout.
func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Router.Timeout)
	if err != nil || d <= 0 {
		return DefaultTimeout
	}
	return d
}

// LogLevel parses log.level, falling back to info.
func (c *Config) LogLevel() logging.Level {
	lvl, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return logging.LevelInfo
	}
	return lvl
}

// ValidationError is one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the config after defaults and overrides are applied.
// The password is not required here; it may come from the keyring or a
// prompt.
func (c *Config) Validate() error {
	var errs ValidationErrors

	host := strings.TrimSpace(c.Router.Host)
	switch {
	case host == "":
		errs = append(errs, ValidationError{"router.host", "is required"})
	case strings.HasPrefix(host, "https://"):
		errs = append(errs, ValidationError{"router.host", "the management API is plain http"})
	case strings.ContainsAny(strings.TrimPrefix(host, "http://"), "/?# "):
		errs = append(errs, ValidationError{"router.host", fmt.Sprintf("%q is not a bare host", host)})
	}

	if d, err := time.ParseDuration(c.Router.Timeout); err != nil {
		errs = append(errs, ValidationError{"router.timeout", err.Error()})
	} else if d <= 0 {
		errs = append(errs, ValidationError{"router.timeout", "must be positive"})
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, ValidationError{"log.level", err.Error()})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
