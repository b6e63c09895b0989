package cmd

import (
	"bytes"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"golang.org/x/text/language"

	"github.com/jgrimard/TPLink-APIClient/internal/auth"
	"github.com/jgrimard/TPLink-APIClient/internal/brand"
	"github.com/jgrimard/TPLink-APIClient/internal/config"
	"github.com/jgrimard/TPLink-APIClient/internal/i18n"
	"github.com/jgrimard/TPLink-APIClient/internal/logging"
	"github.com/jgrimard/TPLink-APIClient/internal/luci"
	"github.com/jgrimard/TPLink-APIClient/internal/testutil"
)

const password = "secret"

// setup points the CLI at f through the environment and captures stdout.
func setup(t *testing.T, f *testutil.FakeRouter) (*Options, *bytes.Buffer) {
	t.Helper()
	keyring.MockInit()

	t.Setenv(brand.ConfigEnvPrefix+"_CONFIG_DIR", t.TempDir())
	t.Setenv(config.EnvHost, "")
	t.Setenv(config.EnvPassword, password)
	t.Setenv(config.EnvEvict, "")
	t.Setenv(config.EnvLogLevel, "error")
	if f != nil {
		t.Setenv(config.EnvHost, f.Host())
	}

	var out bytes.Buffer
	oldOut, oldPrinter := stdout, Printer
	stdout, Printer = &out, i18n.NewPrinter(language.English)
	t.Cleanup(func() { stdout, Printer = oldOut, oldPrinter })

	return &Options{ConfigFile: brand.DefaultConfigPath()}, &out
}

func TestRunLED(t *testing.T) {
	f := testutil.NewFakeRouter(t, password)
	f.Handle("admin/ledgeneral", "setting", func(p url.Values) string {
		if p.Get("operation") == "write" {
			return `{"success":true}`
		}
		return `{"success":true,"data":{"enable":"on"}}`
	})
	o, out := setup(t, f)

	require.NoError(t, RunLED(o, ""))
	assert.Equal(t, "LEDs are on\n", out.String())
	assert.Empty(t, f.ActiveToken(), "session must be released")

	out.Reset()
	require.NoError(t, RunLED(o, "off"))
	assert.Equal(t, "LEDs are on\n", out.String())

	var writes int
	for _, r := range f.Requests() {
		if r.Params.Get("led_status") == "off" {
			writes++
		}
	}
	assert.Equal(t, 1, writes)

	assert.Error(t, RunLED(o, "blink"))
}

func TestRunClients(t *testing.T) {
	f := testutil.NewFakeRouter(t, password)
	f.Handle("admin/status", "client_status", func(url.Values) string {
		return `{"success":true,"data":{"access_devices_wireless_host":[{"hostname":"laptop"}]}}`
	})
	o, out := setup(t, f)

	require.NoError(t, RunClients(o))
	assert.JSONEq(t, `{"access_devices_wireless_host":[{"hostname":"laptop"}]}`, out.String())
	assert.Contains(t, out.String(), "\n    ")
}

func TestRunBlockList(t *testing.T) {
	f := testutil.NewFakeRouter(t, password)
	f.Handle("admin/access_control", "black_list", func(url.Values) string {
		return `{"success":true,"data":[{"mac":"7D-24-92-59-70-E8","name":"tv","key":"key-1"}]}`
	})
	o, out := setup(t, f)

	require.NoError(t, RunBlockList(o))
	assert.Contains(t, out.String(), "MAC")
	assert.Contains(t, out.String(), "7D-24-92-59-70-E8")
	assert.Contains(t, out.String(), "tv")
}

func TestRunCandidates_Empty(t *testing.T) {
	f := testutil.NewFakeRouter(t, password)
	f.Handle("admin/access_control", "black_devices", func(url.Values) string {
		return `{"success":true,"data":[]}`
	})
	o, out := setup(t, f)

	require.NoError(t, RunCandidates(o))
	assert.Equal(t, "No devices\n", out.String())
}

func TestRunBlockUnblock(t *testing.T) {
	f := testutil.NewFakeRouter(t, password)
	f.Handle("admin/access_control", "black_list", func(p url.Values) string {
		if p.Get("operation") == "remove" {
			return `{"success":true}`
		}
		return `{"success":true,"data":[{"mac":"7D-24-92-59-70-E8","key":"key-1"}]}`
	})
	o, out := setup(t, f)

	require.NoError(t, RunBlock(o, "7d:24:92:59:70:e8"))
	assert.Equal(t, "Blocked 7D-24-92-59-70-E8\n", out.String())

	out.Reset()
	require.NoError(t, RunUnblock(o, "7d-24-92-59-70-e8"))
	assert.Equal(t, "Unblocked 7D-24-92-59-70-E8\n", out.String())

	assert.Error(t, RunBlock(o, "not-a-mac"))
}

func TestWithRouter_WrongPassword(t *testing.T) {
	f := testutil.NewFakeRouter(t, "other")
	o, _ := setup(t, f)

	err := RunLED(o, "")
	assert.ErrorIs(t, err, luci.ErrWrongCredentials)
}

func TestWithRouter_Conflict(t *testing.T) {
	f := testutil.NewFakeRouter(t, password)
	f.Handle("admin/ledgeneral", "setting", func(url.Values) string {
		return `{"success":true,"data":{"enable":"off"}}`
	})
	f.Login("other-admin")
	o, out := setup(t, f)

	err := RunLED(o, "")
	require.ErrorIs(t, err, luci.ErrSessionConflict)
	assert.Contains(t, err.Error(), "-evict")

	o.Evict = true
	require.NoError(t, RunLED(o, ""))
	assert.Equal(t, "LEDs are off\n", out.String())
}

func TestWithRouter_MetricsFile(t *testing.T) {
	f := testutil.NewFakeRouter(t, password)
	o, _ := setup(t, f)
	o.MetricsFile = filepath.Join(t.TempDir(), "archer.prom")

	require.NoError(t, RunCandidates(o))

	data, err := os.ReadFile(o.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "archer_handshakes_total")
	assert.Contains(t, string(data), "archer_calls_total")
}

func TestLoadConfig_Precedence(t *testing.T) {
	o, _ := setup(t, nil)
	path := filepath.Join(t.TempDir(), "archer.hcl")
	require.NoError(t, os.WriteFile(path, []byte("router {\n  host = \"10.0.0.1\"\n  username = \"root\"\n}\n"), 0o600))
	o.ConfigFile = path

	cfg, err := loadConfig(o)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", cfg.Router.Host)
	assert.Equal(t, "root", cfg.Router.Username)
	assert.Equal(t, password, cfg.Router.Password)

	t.Setenv(config.EnvHost, "10.0.0.2")
	cfg, err = loadConfig(o)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", cfg.Router.Host)

	o.Host = "10.0.0.3"
	o.Evict = true
	cfg, err = loadConfig(o)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.3", cfg.Router.Host)
	assert.True(t, cfg.Router.EvictExisting)

	o.ConfigFile = filepath.Join(t.TempDir(), "missing.hcl")
	_, err = loadConfig(o)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadConfig_NoHost(t *testing.T) {
	o, _ := setup(t, nil)
	_, err := loadConfig(o)
	assert.ErrorContains(t, err, "router.host")
}

func TestRunConfigInitAndSet(t *testing.T) {
	_, out := setup(t, nil)
	t.Setenv(config.EnvPassword, "")
	path := filepath.Join(t.TempDir(), "archer.hcl")

	require.NoError(t, RunConfigInit(path, "192.168.0.1", false))
	assert.Equal(t, "Wrote "+path+"\n", out.String())
	assert.ErrorContains(t, RunConfigInit(path, "192.168.0.1", false), "already exists")

	require.NoError(t, RunConfigSet(path, "evict_existing", "true"))
	require.NoError(t, RunConfigSet(path, "username", "root"))
	assert.Error(t, RunConfigSet(path, "evict_existing", "perhaps"))
	assert.Error(t, RunConfigSet(path, "port", "80"))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "192.168.0.1", cfg.Router.Host)
	assert.Equal(t, "root", cfg.Router.Username)
	assert.True(t, cfg.Router.EvictExisting)

	require.NoError(t, RunConfigInit(path, "10.0.0.1", true))
	assert.Error(t, RunConfigInit(path, "https://10.0.0.1", true))
}

func TestRunCheck(t *testing.T) {
	o, out := setup(t, nil)
	t.Setenv(config.EnvHost, "192.168.0.1")
	o.Verbose = true

	require.NoError(t, RunCheck(o))
	assert.Contains(t, out.String(), "Configuration valid!")
	assert.Contains(t, out.String(), "Router: 192.168.0.1")
	assert.Contains(t, out.String(), "Password source: config")
	assert.Contains(t, out.String(), "Log level: DEBUG")

	o.ConfigFile = filepath.Join(t.TempDir(), "missing.hcl")
	assert.ErrorContains(t, RunCheck(o), "configuration invalid")
}

func TestRunKeyringSet(t *testing.T) {
	o, out := setup(t, nil)
	t.Setenv(config.EnvHost, "192.168.0.1")

	require.NoError(t, RunKeyringSet(o))
	assert.Equal(t, "Password stored for admin@192.168.0.1\n", out.String())

	pw, err := keyring.Get(auth.KeyringService, auth.Account("192.168.0.1", "admin"))
	require.NoError(t, err)
	assert.Equal(t, password, pw)

	out.Reset()
	require.NoError(t, RunKeyringDelete(o))
	assert.Equal(t, "Password removed for admin@192.168.0.1\n", out.String())
	_, err = keyring.Get(auth.KeyringService, auth.Account("192.168.0.1", "admin"))
	assert.ErrorIs(t, err, keyring.ErrNotFound)

	require.NoError(t, RunKeyringDelete(o), "deleting a missing entry")
}

func TestRunVersion(t *testing.T) {
	_, out := setup(t, nil)
	RunVersion()
	assert.Contains(t, out.String(), brand.Name)
	assert.Contains(t, out.String(), brand.Version)
}

func TestSetupLogging(t *testing.T) {
	setup(t, nil)
	prev := logging.Default()
	t.Cleanup(func() { logging.SetDefault(prev) })

	cfg := config.Default()
	cfg.Log.Level = "warn"

	l := setupLogging(cfg, false)
	assert.Equal(t, logging.LevelWarn, l.GetLevel())
	assert.Same(t, l, logging.Default())
	assert.Equal(t, brand.BinaryName, logging.GetPrefix())

	l = setupLogging(cfg, true)
	assert.Equal(t, logging.LevelDebug, l.GetLevel())
}
