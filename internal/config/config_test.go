package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingOptionalFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"), false)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMissingRequiredFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"), true)
	assert.Error(t, err)
}

func TestLoadJSONWithComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		// talk to the kitchen box
		"server_url": "http://10.0.0.5:8765",
		"retry_delay": "1s",
		"server": {"port": 9000, "announce": false,},
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path, true)
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.5:8765", cfg.ServerURL)
	assert.Equal(t, time.Second, cfg.RetryDelay.Duration)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.False(t, cfg.Server.Announce)
	assert.Equal(t, BackendHTTP, cfg.Backend, "unset fields keep defaults")
	assert.Equal(t, 2, cfg.WriteRetries)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sever_url": "typo"}`), 0600))

	_, err := Load(path, true)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown backend":      func(c *Config) { c.Backend = "redis" },
		"firestore no project": func(c *Config) { c.Backend = BackendFirestore },
		"bad document path":    func(c *Config) { c.DocumentPath = "state" },
		"negative retries":     func(c *Config) { c.WriteRetries = -1 },
		"port out of range":    func(c *Config) { c.Server.Port = 70000 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func parseFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("shoplist", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestFlagsRepairIncompleteConfigFile(t *testing.T) {
	path := writeConfig(t, `{"backend": "firestore"}`)

	cfg, err := Load(path, true)
	require.NoError(t, err, "loading does not validate")
	require.Error(t, cfg.Validate())

	require.NoError(t, cfg.ApplyFlags(parseFlags(t, "--firestore-project", "kitchen")))
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendFirestore, cfg.Backend)
	assert.Equal(t, "kitchen", cfg.Firestore.Project)
}

func TestLocalFlagOverridesFileBackend(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{"backend": "firestore"}`), true)
	require.NoError(t, err)

	require.NoError(t, cfg.ApplyFlags(parseFlags(t, "--local")))
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, BackendMemory, cfg.Backend)
}

func TestUnsetFlagsKeepFileValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{
		"server_url": "http://10.0.0.5:8765",
		"write_retries": 5,
		"server": {"port": 9000, "announce": false},
	}`), true)
	require.NoError(t, err)

	require.NoError(t, cfg.ApplyFlags(parseFlags(t, "--port", "9100", "--timeout", "3s")))

	assert.Equal(t, "http://10.0.0.5:8765", cfg.ServerURL)
	assert.Equal(t, 5, cfg.WriteRetries)
	assert.False(t, cfg.Server.Announce)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Timeout.Duration)
}
