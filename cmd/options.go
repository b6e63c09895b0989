package cmd

import (
	"errors"
	"flag"
	"io"
	"io/fs"
	"os"

	"github.com/jgrimard/TPLink-APIClient/internal/brand"
	"github.com/jgrimard/TPLink-APIClient/internal/config"
	"github.com/jgrimard/TPLink-APIClient/internal/i18n"
	"github.com/jgrimard/TPLink-APIClient/internal/logging"
)

// Printer is the global message printer for the CLI
var Printer = i18n.NewCLIPrinter()

// stdout is where command output goes; tests swap it.
var stdout io.Writer = os.Stdout

// Options are the flags every device command accepts.
type Options struct {
	ConfigFile  string
	Host        string
	Evict       bool
	Verbose     bool
	MetricsFile string
}

// RegisterFlags adds the common flags to flags.
func RegisterFlags(flags *flag.FlagSet) *Options {
	o := &Options{}
	flags.StringVar(&o.ConfigFile, "config", brand.DefaultConfigPath(), "Configuration file")
	flags.StringVar(&o.ConfigFile, "c", brand.DefaultConfigPath(), "Configuration file (short)")
	flags.StringVar(&o.Host, "host", "", "Router address, overrides the config file")
	flags.BoolVar(&o.Evict, "evict", false, "Log out another admin session if one is active")
	flags.BoolVar(&o.Verbose, "v", false, "Verbose logging")
	flags.StringVar(&o.MetricsFile, "metrics", "", "Write Prometheus metrics to this textfile on exit")
	return o
}

// loadConfig resolves the effective configuration: defaults, then the
// config file if it exists, then .env and ARCHER_* variables, then flags.
func loadConfig(o *Options) (*config.Config, error) {
	if err := config.LoadDotEnv(brand.DotEnvFile); err != nil {
		return nil, err
	}

	cfg := config.Default()
	if o.ConfigFile != "" {
		loaded, err := config.LoadFile(o.ConfigFile)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, fs.ErrNotExist) && o.ConfigFile == brand.DefaultConfigPath():
			// No config yet; env and flags may be enough.
		default:
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if o.Host != "" {
		cfg.Router.Host = o.Host
	}
	if o.Evict {
		cfg.Router.EvictExisting = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging installs the default logger for this run. -v raises the
// configured level to debug.
func setupLogging(cfg *config.Config, verbose bool) *logging.Logger {
	logging.SetPrefix(brand.BinaryName)

	lc := logging.DefaultConfig()
	lc.Level = cfg.LogLevel()
	lc.JSON = cfg.Log.JSON
	l := logging.New(lc)
	if verbose {
		l.SetLevel(logging.LevelDebug)
	}
	logging.SetDefault(l)
	return l
}
