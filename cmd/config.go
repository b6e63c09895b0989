package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/zclconf/go-cty/cty"

	"github.com/jgrimard/TPLink-APIClient/internal/auth"
	"github.com/jgrimard/TPLink-APIClient/internal/brand"
	"github.com/jgrimard/TPLink-APIClient/internal/config"
)

// RunConfigInit writes a starter config file for host.
func RunConfigInit(path, host string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", path)
	}

	cfg := config.Default()
	cfg.Router.Host = host
	if err := cfg.Validate(); err != nil {
		return err
	}

	cf, err := config.NewConfigFile(path, cfg)
	if err != nil {
		return err
	}
	if err := cf.Save(); err != nil {
		return err
	}
	Printer.Fprintf(stdout, "Wrote %s\n", path)
	return nil
}

// RunConfigSet changes one router attribute in an existing config file,
// keeping its comments.
func RunConfigSet(path, name, value string) error {
	cf, err := config.LoadConfigFile(path)
	if err != nil {
		return err
	}

	v := cty.StringVal(value)
	if name == "evict_existing" {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("evict_existing: %w", err)
		}
		v = cty.BoolVal(b)
	}
	if err := cf.SetRouterAttribute(name, v); err != nil {
		return err
	}
	if err := cf.Save(); err != nil {
		return err
	}
	Printer.Fprintf(stdout, "Wrote %s\n", path)
	return nil
}

// RunCheck validates the effective configuration and reports where the
// password will come from. It does not contact the router.
func RunCheck(o *Options) error {
	if _, err := os.Stat(o.ConfigFile); errors.Is(err, fs.ErrNotExist) && o.ConfigFile != brand.DefaultConfigPath() {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	cfg, err := loadConfig(o)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	Printer.Fprintf(stdout, "Configuration valid!\n")
	Printer.Fprintf(stdout, "Router: %s\n", cfg.Router.Host)
	Printer.Fprintf(stdout, "Username: %s\n", cfg.Router.Username)
	Printer.Fprintf(stdout, "Timeout: %s\n", cfg.RequestTimeout())
	Printer.Fprintf(stdout, "Evict existing session: %v\n", cfg.Router.EvictExisting)
	Printer.Fprintf(stdout, "Log level: %s\n", setupLogging(cfg, o.Verbose).GetLevel())

	if o.Verbose {
		_, src, err := (&auth.Resolver{
			Configured: cfg.Router.Password,
			EnvVar:     config.EnvPassword,
			Host:       cfg.Router.Host,
			Username:   cfg.Router.Username,
		}).Resolve(context.Background())
		if err != nil {
			Printer.Fprintf(stdout, "Password: %v\n", err)
		} else {
			Printer.Fprintf(stdout, "Password source: %s\n", src)
		}
	}
	return nil
}

// RunKeyringSet stores the router password in the OS keyring. It takes the
// password from ARCHER_PASSWORD when set and prompts otherwise.
func RunKeyringSet(o *Options) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}

	pw := os.Getenv(config.EnvPassword)
	if pw == "" {
		if !interactive() {
			return fmt.Errorf("keyring-set needs a terminal or %s", config.EnvPassword)
		}
		title := "Password for " + auth.Account(cfg.Router.Host, cfg.Router.Username)
		if pw, err = auth.TerminalPrompt(context.Background(), title); err != nil {
			return err
		}
	}
	if pw == "" {
		return auth.ErrNoPassword
	}

	if err := auth.StorePassword(cfg.Router.Host, cfg.Router.Username, pw); err != nil {
		return err
	}
	Printer.Fprintf(stdout, "Password stored for %s\n", auth.Account(cfg.Router.Host, cfg.Router.Username))
	return nil
}

// RunKeyringDelete removes the stored router password.
func RunKeyringDelete(o *Options) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	if err := auth.DeletePassword(cfg.Router.Host, cfg.Router.Username); err != nil {
		return err
	}
	Printer.Fprintf(stdout, "Password removed for %s\n", auth.Account(cfg.Router.Host, cfg.Router.Username))
	return nil
}

// RunVersion prints build information.
func RunVersion() {
	Printer.Fprintf(stdout, "%s %s (commit %s, built %s)\n", brand.Name, brand.Version, brand.GitCommit, brand.BuildTime)
}
