// Package auth resolves the router admin password from the config, the
// environment, the OS keyring or an interactive prompt, in that order.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/zalando/go-keyring"
)

// KeyringService is the keyring service name passwords are stored under.
const KeyringService = "archer"

// ErrNoPassword is returned when no source produced a password.
var ErrNoPassword = errors.New("no router password configured")

// Source names where a password came from.
type Source string

const (
	SourceConfig  Source = "config"
	SourceEnv     Source = "env"
	SourceKeyring Source = "keyring"
	SourcePrompt  Source = "prompt"
)

// Prompter asks the user for a password.
type Prompter func(ctx context.Context, title string) (string, error)

// Resolver looks up the password for one router account.
type Resolver struct {
	// Configured is the password from the config file, if any.
	Configured string
	// EnvVar is read when Configured is empty.
	EnvVar string
	// Host and Username form the keyring account.
	Host     string
	Username string
	// Prompt is the last resort. Nil disables prompting.
	Prompt Prompter
}

// Account is the keyring account name for a router login.
func Account(host, username string) string {
	return username + "@" + strings.TrimPrefix(host, "http://")
}

// Resolve returns the first password found and where it came from.
func (r *Resolver) Resolve(ctx context.Context) (string, Source, error) {
	if r.Configured != "" {
		return r.Configured, SourceConfig, nil
	}
	if r.EnvVar != "" {
		if v := os.Getenv(r.EnvVar); v != "" {
			return v, SourceEnv, nil
		}
	}

	pw, err := keyring.Get(KeyringService, Account(r.Host, r.Username))
	switch {
	case err == nil && pw != "":
		return pw, SourceKeyring, nil
	case err != nil && !errors.Is(err, keyring.ErrNotFound) && r.Prompt == nil:
		return "", "", fmt.Errorf("failed to read keyring: %w", err)
	}

	if r.Prompt == nil {
		return "", "", ErrNoPassword
	}
	pw, err = r.Prompt(ctx, fmt.Sprintf("Password for %s", Account(r.Host, r.Username)))
	if err != nil {
		return "", "", err
	}
	if pw == "" {
		return "", "", ErrNoPassword
	}
	return pw, SourcePrompt, nil
}

// StorePassword saves password in the OS keyring.
func StorePassword(host, username, password string) error {
	if password == "" {
		return ErrNoPassword
	}
	if err := keyring.Set(KeyringService, Account(host, username), password); err != nil {
		return fmt.Errorf("failed to store password in keyring: %w", err)
	}
	return nil
}

// DeletePassword removes a stored password. Deleting a missing entry is
// not an error.
func DeletePassword(host, username string) error {
	err := keyring.Delete(KeyringService, Account(host, username))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete password from keyring: %w", err)
	}
	return nil
}

// TerminalPrompt reads a password with echo disabled.
func TerminalPrompt(ctx context.Context, title string) (string, error) {
	var pw string
	input := huh.NewInput().
		Title(title).
		EchoMode(huh.EchoModePassword).
		Value(&pw).
		Validate(func(s string) error {
			if s == "" {
				return errors.New("password cannot be empty")
			}
			return nil
		})

	form := huh.NewForm(huh.NewGroup(input)).WithTheme(huh.ThemeBase16())
	if err := form.RunWithContext(ctx); err != nil {
		return "", err
	}
	return pw, nil
}
