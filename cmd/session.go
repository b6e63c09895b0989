package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jgrimard/TPLink-APIClient/internal/auth"
	"github.com/jgrimard/TPLink-APIClient/internal/config"
	"github.com/jgrimard/TPLink-APIClient/internal/logging"
	"github.com/jgrimard/TPLink-APIClient/internal/luci"
	"github.com/jgrimard/TPLink-APIClient/internal/metrics"
	"github.com/jgrimard/TPLink-APIClient/internal/router"
)

// interactive reports whether stdin is a terminal we may prompt on.
func interactive() bool {
	fi, err := os.Stdin.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

func resolvePassword(ctx context.Context, cfg *config.Config, prompt bool) (string, error) {
	r := &auth.Resolver{
		Configured: cfg.Router.Password,
		EnvVar:     config.EnvPassword,
		Host:       cfg.Router.Host,
		Username:   cfg.Router.Username,
	}
	if prompt {
		r.Prompt = auth.TerminalPrompt
	}
	pw, src, err := r.Resolve(ctx)
	if err != nil {
		return "", err
	}
	logging.Debug("password resolved", "source", string(src))
	return pw, nil
}

func newClient(cfg *config.Config, logger *logging.Logger) (*luci.Client, error) {
	return luci.NewClient(cfg.Router.Host,
		luci.WithUsername(cfg.Router.Username),
		luci.WithTimeout(cfg.RequestTimeout()),
		luci.WithUserAgent(cfg.Router.UserAgent),
		luci.WithLogger(logger),
		luci.WithMetrics(metrics.Get()),
	)
}

// withRouter logs in, runs fn, and always logs out so the single admin slot
// on the device is released.
func withRouter(o *Options, fn func(ctx context.Context, r *router.Router) error) (err error) {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	logger := setupLogging(cfg, o.Verbose)
	log := logging.WithComponent("cli")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if o.MetricsFile != "" {
		defer func() {
			if werr := metrics.WriteTextfile(o.MetricsFile); werr != nil {
				log.Warn("failed to write metrics", "path", o.MetricsFile, "error", werr)
			}
		}()
	}

	password, err := resolvePassword(ctx, cfg, interactive())
	if err != nil {
		return err
	}

	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}

	sess, err := client.Connect(ctx, password, cfg.Router.EvictExisting)
	if err != nil {
		return explainLoginError(err)
	}
	log.Debug("session established", "stok", logging.Redact(sess.Token()))

	defer func() {
		// Logout runs on a fresh context so an interrupted command still
		// frees the admin slot.
		lctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout())
		defer cancel()
		if lerr := sess.Logout(lctx); lerr != nil {
			log.Warn("logout failed", "error", lerr)
		}
	}()

	return fn(ctx, router.New(sess, logger))
}

func explainLoginError(err error) error {
	switch {
	case errors.Is(err, luci.ErrSessionConflict):
		return fmt.Errorf("%w: another administrator is logged in, rerun with -evict to take over", err)
	case errors.Is(err, luci.ErrAttemptsExhausted):
		return fmt.Errorf("%w; the router locks logins for a while, try again later", err)
	}
	return err
}
