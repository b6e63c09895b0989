package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

const (
	host = "192.168.0.1"
	user = "admin"
)

func noPrompt(t *testing.T) Prompter {
	return func(context.Context, string) (string, error) {
		t.Error("prompt should not be reached")
		return "", errors.New("unexpected prompt")
	}
}

func TestResolve_Order(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, StorePassword(host, user, "from-keyring"))
	t.Setenv("ARCHER_TEST_PW", "from-env")

	r := &Resolver{Configured: "from-config", EnvVar: "ARCHER_TEST_PW", Host: host, Username: user, Prompt: noPrompt(t)}
	pw, src, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-config", pw)
	assert.Equal(t, SourceConfig, src)

	r.Configured = ""
	pw, src, err = r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-env", pw)
	assert.Equal(t, SourceEnv, src)

	t.Setenv("ARCHER_TEST_PW", "")
	pw, src, err = r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", pw)
	assert.Equal(t, SourceKeyring, src)
}

func TestResolve_Prompt(t *testing.T) {
	keyring.MockInit()

	var asked string
	r := &Resolver{Host: host, Username: user, Prompt: func(_ context.Context, title string) (string, error) {
		asked = title
		return "typed", nil
	}}
	pw, src, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "typed", pw)
	assert.Equal(t, SourcePrompt, src)
	assert.Equal(t, "Password for admin@192.168.0.1", asked)

	r.Prompt = func(context.Context, string) (string, error) { return "", nil }
	_, _, err = r.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrNoPassword)
}

func TestResolve_NothingConfigured(t *testing.T) {
	keyring.MockInit()

	_, _, err := (&Resolver{Host: host, Username: user}).Resolve(context.Background())
	assert.ErrorIs(t, err, ErrNoPassword)
}

func TestResolve_KeyringFailure(t *testing.T) {
	broken := errors.New("dbus unavailable")
	keyring.MockInitWithError(broken)

	_, _, err := (&Resolver{Host: host, Username: user}).Resolve(context.Background())
	assert.ErrorIs(t, err, broken)

	// A working prompt still gets the user through.
	r := &Resolver{Host: host, Username: user, Prompt: func(context.Context, string) (string, error) { return "typed", nil }}
	pw, src, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "typed", pw)
	assert.Equal(t, SourcePrompt, src)
}

func TestStoreAndDeletePassword(t *testing.T) {
	keyring.MockInit()

	assert.ErrorIs(t, StorePassword(host, user, ""), ErrNoPassword)
	require.NoError(t, StorePassword("http://"+host, user, "pw"))

	got, err := keyring.Get(KeyringService, "admin@192.168.0.1")
	require.NoError(t, err)
	assert.Equal(t, "pw", got)

	require.NoError(t, DeletePassword(host, user))
	require.NoError(t, DeletePassword(host, user))
	_, err = keyring.Get(KeyringService, Account(host, user))
	assert.ErrorIs(t, err, keyring.ErrNotFound)
}
