package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides.
const EnvPrefix = "UNIFIND_"

// Config represents the complete unifind configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	DataDir   string          `yaml:"data_dir" json:"data_dir"`
	Owner     string          `yaml:"owner" json:"owner"`
	Crawl     CrawlConfig     `yaml:"crawl" json:"crawl"`
	Sync      SyncConfig      `yaml:"sync" json:"sync"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Providers ProvidersConfig `yaml:"providers" json:"providers"`
	Server    ServerConfig    `yaml:"server" json:"server"`
}

// CrawlConfig configures the local crawler.
type CrawlConfig struct {
	// Roots are the directories re-walked by the incremental worker for every
	// owner. Empty means the current user's home directory.
	Roots []string `yaml:"roots" json:"roots"`

	// ExcludeDirs are extra glob patterns appended to the built-in exclusion set.
	ExcludeDirs []string `yaml:"exclude_dirs" json:"exclude_dirs"`

	// BatchSize caps the in-memory buffer between flushes.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
}

// SyncConfig configures the background scheduler and provider calls.
// Durations are Go duration strings ("10m", "45s").
type SyncConfig struct {
	LocalInterval   string `yaml:"local_interval" json:"local_interval"`
	DriveInterval   string `yaml:"drive_interval" json:"drive_interval"`
	DropboxInterval string `yaml:"dropbox_interval" json:"dropbox_interval"`

	// ProviderTimeout bounds every single provider API call.
	ProviderTimeout string `yaml:"provider_timeout" json:"provider_timeout"`

	// PageSize is the listing page size requested from providers.
	PageSize int `yaml:"page_size" json:"page_size"`

	// RequestsPerSecond and Burst feed the per-provider rate limiter.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`

	// ClientCacheSize bounds the number of cached provider clients.
	ClientCacheSize int `yaml:"client_cache_size" json:"client_cache_size"`
}

// SearchConfig configures the search coordinator.
type SearchConfig struct {
	DefaultLimit   int     `yaml:"default_limit" json:"default_limit"`
	MaxLimit       int     `yaml:"max_limit" json:"max_limit"`
	BackendTimeout string  `yaml:"backend_timeout" json:"backend_timeout"`
	PrefixBoost    float64 `yaml:"prefix_boost" json:"prefix_boost"`
	FuzzyBoost     float64 `yaml:"fuzzy_boost" json:"fuzzy_boost"`
}

// ProvidersConfig holds OAuth client credentials. Secrets are normally
// supplied through the environment or a .env file rather than YAML.
type ProvidersConfig struct {
	Google  GoogleConfig  `yaml:"google" json:"google"`
	Dropbox DropboxConfig `yaml:"dropbox" json:"dropbox"`
}

// GoogleConfig configures the Google Drive client.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"-"`
	TokenURL     string `yaml:"token_url" json:"token_url"`
}

// DropboxConfig configures the Dropbox client.
type DropboxConfig struct {
	AppKey    string `yaml:"app_key" json:"app_key"`
	AppSecret string `yaml:"app_secret" json:"-"`
}

// ServerConfig configures the MCP surface and logging.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// DefaultTokenURL is Google's OAuth2 token endpoint.
const DefaultTokenURL = "https://oauth2.googleapis.com/token"

// NewConfig returns a configuration populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: defaultDataDir(),
		Owner:   defaultOwner(),
		Crawl: CrawlConfig{
			Roots:       nil,
			ExcludeDirs: nil,
			BatchSize:   500,
		},
		Sync: SyncConfig{
			LocalInterval:     "10m",
			DriveInterval:     "10m",
			DropboxInterval:   "10m",
			ProviderTimeout:   "60s",
			PageSize:          100,
			RequestsPerSecond: 5,
			Burst:             10,
			ClientCacheSize:   64,
		},
		Search: SearchConfig{
			DefaultLimit:   10,
			MaxLimit:       100,
			BackendTimeout: "5s",
			PrefixBoost:    2.0,
			FuzzyBoost:     1.0,
		},
		Providers: ProvidersConfig{
			Google: GoogleConfig{TokenURL: DefaultTokenURL},
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "unifind")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".unifind")
	}
	return filepath.Join(home, ".local", "share", "unifind")
}

func defaultOwner() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "local"
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/unifind/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/unifind/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "unifind", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "unifind", "config.yaml")
	}
	return filepath.Join(home, ".config", "unifind", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load builds the configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/unifind/config.yaml)
//  3. Explicit config file (path, may be empty)
//  4. .env in the working directory and in the data dir (never overriding
//     variables that are already set)
//  5. Environment variables (UNIFIND_*, GOOGLE_*, DROPBOX_*)
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if fileExists(GetUserConfigPath()) {
		if err := cfg.loadYAML(GetUserConfigPath()); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	loadDotEnv(".env", filepath.Join(cfg.DataDir, ".env"))

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads each existing file. godotenv.Load never overwrites
// variables already present in the process environment.
func loadDotEnv(paths ...string) {
	for _, p := range paths {
		if fileExists(p) {
			_ = godotenv.Load(p)
		}
	}
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.DataDir != "" {
		c.DataDir = expandHome(other.DataDir)
	}
	if other.Owner != "" {
		c.Owner = other.Owner
	}

	// Crawl
	if len(other.Crawl.Roots) > 0 {
		roots := make([]string, 0, len(other.Crawl.Roots))
		for _, r := range other.Crawl.Roots {
			roots = append(roots, expandHome(r))
		}
		c.Crawl.Roots = roots
	}
	if len(other.Crawl.ExcludeDirs) > 0 {
		// Appended: the built-in exclusion set always applies.
		c.Crawl.ExcludeDirs = append(c.Crawl.ExcludeDirs, other.Crawl.ExcludeDirs...)
	}
	if other.Crawl.BatchSize != 0 {
		c.Crawl.BatchSize = other.Crawl.BatchSize
	}

	// Sync
	mergeString(&c.Sync.LocalInterval, other.Sync.LocalInterval)
	mergeString(&c.Sync.DriveInterval, other.Sync.DriveInterval)
	mergeString(&c.Sync.DropboxInterval, other.Sync.DropboxInterval)
	mergeString(&c.Sync.ProviderTimeout, other.Sync.ProviderTimeout)
	if other.Sync.PageSize != 0 {
		c.Sync.PageSize = other.Sync.PageSize
	}
	if other.Sync.RequestsPerSecond != 0 {
		c.Sync.RequestsPerSecond = other.Sync.RequestsPerSecond
	}
	if other.Sync.Burst != 0 {
		c.Sync.Burst = other.Sync.Burst
	}
	if other.Sync.ClientCacheSize != 0 {
		c.Sync.ClientCacheSize = other.Sync.ClientCacheSize
	}

	// Search
	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.MaxLimit != 0 {
		c.Search.MaxLimit = other.Search.MaxLimit
	}
	mergeString(&c.Search.BackendTimeout, other.Search.BackendTimeout)
	if other.Search.PrefixBoost != 0 {
		c.Search.PrefixBoost = other.Search.PrefixBoost
	}
	if other.Search.FuzzyBoost != 0 {
		c.Search.FuzzyBoost = other.Search.FuzzyBoost
	}

	// Providers
	mergeString(&c.Providers.Google.ClientID, other.Providers.Google.ClientID)
	mergeString(&c.Providers.Google.ClientSecret, other.Providers.Google.ClientSecret)
	mergeString(&c.Providers.Google.TokenURL, other.Providers.Google.TokenURL)
	mergeString(&c.Providers.Dropbox.AppKey, other.Providers.Dropbox.AppKey)
	mergeString(&c.Providers.Dropbox.AppSecret, other.Providers.Dropbox.AppSecret)

	// Server
	mergeString(&c.Server.Transport, other.Server.Transport)
	mergeString(&c.Server.LogLevel, other.Server.LogLevel)
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvPrefix + "DATA_DIR"); v != "" {
		c.DataDir = expandHome(v)
	}
	if v := os.Getenv(EnvPrefix + "OWNER"); v != "" {
		c.Owner = v
	}
	if v := os.Getenv(EnvPrefix + "ROOTS"); v != "" {
		c.Crawl.Roots = nil
		for _, r := range filepath.SplitList(v) {
			if r = strings.TrimSpace(r); r != "" {
				c.Crawl.Roots = append(c.Crawl.Roots, expandHome(r))
			}
		}
	}
	if v := os.Getenv(EnvPrefix + "BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Crawl.BatchSize = n
		}
	}
	if v := os.Getenv(EnvPrefix + "SYNC_INTERVAL"); v != "" {
		// One knob for all three workers, matching the single interval the
		// scheduler historically used.
		c.Sync.LocalInterval = v
		c.Sync.DriveInterval = v
		c.Sync.DropboxInterval = v
	}
	if v := os.Getenv(EnvPrefix + "PROVIDER_TIMEOUT"); v != "" {
		c.Sync.ProviderTimeout = v
	}
	if v := os.Getenv(EnvPrefix + "BACKEND_TIMEOUT"); v != "" {
		c.Search.BackendTimeout = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "TRANSPORT"); v != "" {
		c.Server.Transport = v
	}

	// Provider credentials use the provider's conventional names.
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		c.Providers.Google.ClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		c.Providers.Google.ClientSecret = v
	}
	if v := os.Getenv("DROPBOX_APP_KEY"); v != "" {
		c.Providers.Dropbox.AppKey = v
	}
	if v := os.Getenv("DROPBOX_APP_SECRET"); v != "" {
		c.Providers.Dropbox.AppSecret = v
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Owner == "" {
		return fmt.Errorf("owner must not be empty")
	}
	if c.Crawl.BatchSize <= 0 {
		return fmt.Errorf("crawl.batch_size must be positive, got %d", c.Crawl.BatchSize)
	}

	durations := map[string]string{
		"sync.local_interval":    c.Sync.LocalInterval,
		"sync.drive_interval":    c.Sync.DriveInterval,
		"sync.dropbox_interval":  c.Sync.DropboxInterval,
		"sync.provider_timeout":  c.Sync.ProviderTimeout,
		"search.backend_timeout": c.Search.BackendTimeout,
	}
	for name, v := range durations {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s must be a duration, got %q", name, v)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, v)
		}
	}

	if c.Sync.PageSize <= 0 || c.Sync.PageSize > 1000 {
		return fmt.Errorf("sync.page_size must be between 1 and 1000, got %d", c.Sync.PageSize)
	}
	if c.Sync.RequestsPerSecond <= 0 {
		return fmt.Errorf("sync.requests_per_second must be positive, got %f", c.Sync.RequestsPerSecond)
	}
	if c.Sync.Burst <= 0 {
		return fmt.Errorf("sync.burst must be positive, got %d", c.Sync.Burst)
	}

	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search.default_limit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search.max_limit (%d) must be >= search.default_limit (%d)", c.Search.MaxLimit, c.Search.DefaultLimit)
	}

	validTransports := map[string]bool{"stdio": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// Duration accessors. Validate has already rejected bad values, so parse
// errors fall back to the defaults.

// LocalIntervalDuration returns the local incremental crawl interval.
func (s SyncConfig) LocalIntervalDuration() time.Duration {
	return parseDuration(s.LocalInterval, 10*time.Minute)
}

// DriveIntervalDuration returns the Google Drive sync interval.
func (s SyncConfig) DriveIntervalDuration() time.Duration {
	return parseDuration(s.DriveInterval, 10*time.Minute)
}

// DropboxIntervalDuration returns the Dropbox sync interval.
func (s SyncConfig) DropboxIntervalDuration() time.Duration {
	return parseDuration(s.DropboxInterval, 10*time.Minute)
}

// ProviderTimeoutDuration returns the per-call provider timeout.
func (s SyncConfig) ProviderTimeoutDuration() time.Duration {
	return parseDuration(s.ProviderTimeout, 60*time.Second)
}

// BackendTimeoutDuration returns the search backend call timeout.
func (s SearchConfig) BackendTimeoutDuration() time.Duration {
	return parseDuration(s.BackendTimeout, 5*time.Second)
}

func parseDuration(v string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// CrawlRoots returns the configured roots, or the user's home directory.
func (c *Config) CrawlRoots() []string {
	if len(c.Crawl.Roots) > 0 {
		return c.Crawl.Roots
	}
	if home, err := os.UserHomeDir(); err == nil {
		return []string{home}
	}
	return nil
}

// IndexPath returns the sqlite database location.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir, "index.db")
}

// SearchIndexPath returns the bleve index location.
func (c *Config) SearchIndexPath() string {
	return filepath.Join(c.DataDir, "search.bleve")
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
