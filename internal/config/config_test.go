package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points user config and data dirs at temp locations so the tests
// never read the developer's real configuration.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	for _, k := range []string{
		"UNIFIND_DATA_DIR", "UNIFIND_OWNER", "UNIFIND_ROOTS", "UNIFIND_BATCH_SIZE",
		"UNIFIND_SYNC_INTERVAL", "UNIFIND_PROVIDER_TIMEOUT", "UNIFIND_BACKEND_TIMEOUT",
		"UNIFIND_LOG_LEVEL", "UNIFIND_TRANSPORT",
		"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "DROPBOX_APP_KEY", "DROPBOX_APP_SECRET",
	} {
		t.Setenv(k, "")
	}
	return dir
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration
	dir := isolate(t)

	// When: building defaults
	cfg := NewConfig()

	// Then: every section has a usable default
	require.NoError(t, cfg.Validate())
	assert.Equal(t, filepath.Join(dir, "data", "unifind"), cfg.DataDir)
	assert.Equal(t, 500, cfg.Crawl.BatchSize)
	assert.Equal(t, 10*time.Minute, cfg.Sync.LocalIntervalDuration())
	assert.Equal(t, 10*time.Minute, cfg.Sync.DriveIntervalDuration())
	assert.Equal(t, 10*time.Minute, cfg.Sync.DropboxIntervalDuration())
	assert.Equal(t, 60*time.Second, cfg.Sync.ProviderTimeoutDuration())
	assert.Equal(t, 100, cfg.Sync.PageSize)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.Equal(t, 5*time.Second, cfg.Search.BackendTimeoutDuration())
	assert.Equal(t, DefaultTokenURL, cfg.Providers.Google.TokenURL)
	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.NotEmpty(t, cfg.Owner)
}

func TestLoad_LayersUserFileAndExplicitFile(t *testing.T) {
	// Given: a user config and an explicit config file
	dir := isolate(t)
	userPath := GetUserConfigPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0755))
	require.NoError(t, os.WriteFile(userPath, []byte(`
owner: alice
crawl:
  batch_size: 50
  exclude_dirs: ["**/build"]
sync:
  drive_interval: 30m
`), 0644))

	explicit := filepath.Join(dir, "explicit.yaml")
	require.NoError(t, os.WriteFile(explicit, []byte(`
crawl:
  batch_size: 75
  exclude_dirs: ["**/dist"]
search:
  max_limit: 40
`), 0644))

	// When: loading
	cfg, err := Load(explicit)

	// Then: later layers win, exclusions accumulate
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.Owner)
	assert.Equal(t, 75, cfg.Crawl.BatchSize)
	assert.Equal(t, []string{"**/build", "**/dist"}, cfg.Crawl.ExcludeDirs)
	assert.Equal(t, 30*time.Minute, cfg.Sync.DriveIntervalDuration())
	assert.Equal(t, 10*time.Minute, cfg.Sync.DropboxIntervalDuration())
	assert.Equal(t, 40, cfg.Search.MaxLimit)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	// Given: a config file and env overrides
	dir := isolate(t)
	path := filepath.Join(dir, "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("owner: alice\n"), 0644))
	t.Setenv("UNIFIND_OWNER", "bob")
	t.Setenv("UNIFIND_SYNC_INTERVAL", "90s")
	t.Setenv("UNIFIND_ROOTS", "/srv/a"+string(os.PathListSeparator)+"/srv/b")
	t.Setenv("GOOGLE_CLIENT_ID", "gid")

	// When: loading
	cfg, err := Load(path)

	// Then: env values apply
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.Owner)
	assert.Equal(t, 90*time.Second, cfg.Sync.LocalIntervalDuration())
	assert.Equal(t, 90*time.Second, cfg.Sync.DropboxIntervalDuration())
	assert.Equal(t, []string{"/srv/a", "/srv/b"}, cfg.CrawlRoots())
	assert.Equal(t, "gid", cfg.Providers.Google.ClientID)
}

func TestLoad_DotEnvInDataDir(t *testing.T) {
	// Given: a .env with provider secrets in the data dir
	dir := isolate(t)
	dataDir := filepath.Join(dir, "data", "unifind")
	require.NoError(t, os.MkdirAll(dataDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, ".env"),
		[]byte("DROPBOX_APP_KEY=from-dotenv\nDROPBOX_APP_SECRET=s3cret\n"), 0600))
	require.NoError(t, os.Unsetenv("DROPBOX_APP_KEY"))
	require.NoError(t, os.Unsetenv("DROPBOX_APP_SECRET"))
	t.Cleanup(func() {
		_ = os.Unsetenv("DROPBOX_APP_KEY")
		_ = os.Unsetenv("DROPBOX_APP_SECRET")
	})

	// When: loading
	cfg, err := Load("")

	// Then: the dotenv values are picked up
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Providers.Dropbox.AppKey)
	assert.Equal(t, "s3cret", cfg.Providers.Dropbox.AppSecret)
}

func TestLoad_MissingExplicitFile_ReturnsError(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "nope.yaml"))

	assert.Error(t, err)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"batch size", func(c *Config) { c.Crawl.BatchSize = 0 }, "batch_size"},
		{"interval", func(c *Config) { c.Sync.LocalInterval = "soon" }, "sync.local_interval"},
		{"negative timeout", func(c *Config) { c.Sync.ProviderTimeout = "-1s" }, "provider_timeout"},
		{"page size", func(c *Config) { c.Sync.PageSize = 5000 }, "page_size"},
		{"limits", func(c *Config) { c.Search.MaxLimit = 5 }, "max_limit"},
		{"transport", func(c *Config) { c.Server.Transport = "sse" }, "transport"},
		{"log level", func(c *Config) { c.Server.LogLevel = "trace" }, "log_level"},
		{"owner", func(c *Config) { c.Owner = "" }, "owner"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	// Given: a customised config
	dir := isolate(t)
	cfg := NewConfig()
	cfg.Owner = "carol"
	cfg.Crawl.Roots = []string{"/data"}
	path := filepath.Join(dir, "out", "config.yaml")

	// When: writing and reloading
	require.NoError(t, cfg.WriteYAML(path))
	loaded, err := Load(path)

	// Then: the values survive
	require.NoError(t, err)
	assert.Equal(t, "carol", loaded.Owner)
	assert.Equal(t, []string{"/data"}, loaded.Crawl.Roots)
}

func TestBackupUserConfig(t *testing.T) {
	// Given: no user config
	isolate(t)
	path, err := BackupUserConfig()
	require.NoError(t, err)
	assert.Empty(t, path)

	// When: a user config exists and is backed up
	require.NoError(t, NewConfig().WriteYAML(GetUserConfigPath()))
	path, err = BackupUserConfig()

	// Then: the backup is listed
	require.NoError(t, err)
	assert.FileExists(t, path)
	backups, err := ListUserConfigBackups()
	require.NoError(t, err)
	assert.Contains(t, backups, path)
}
