package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Connection types supported by the engine factory.
const (
	ConnectEmbedded      = "embedded"
	ConnectElasticsearch = "elasticsearch"
)

// ProjectConfigFile is the project-level configuration file name.
const ProjectConfigFile = ".searchschema.yaml"

// Config represents the complete searchschema configuration.
type Config struct {
	Version       int                 `yaml:"version" json:"version"`
	Connect       ConnectConfig       `yaml:"connect" json:"connect"`
	Index         IndexConfig         `yaml:"index" json:"index"`
	SchemaManager SchemaManagerConfig `yaml:"schema_manager" json:"schema_manager"`
	Retention     RetentionConfig     `yaml:"retention" json:"retention"`
	Server        ServerConfig        `yaml:"server" json:"server"`
}

// ConnectConfig selects and configures the document store.
type ConnectConfig struct {
	// Type is "embedded" (bleve + sqlite on local disk) or "elasticsearch".
	Type string `yaml:"type" json:"type"`
	// URL is the cluster address for remote stores.
	URL      string `yaml:"url" json:"url"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
	// IndexPrefix is prepended to every index and template name.
	IndexPrefix string `yaml:"index_prefix" json:"index_prefix"`
	// DataDir is where the embedded store keeps its files. Empty keeps everything in memory.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// RequestTimeout bounds single requests to a remote store (e.g. "15s").
	RequestTimeout string `yaml:"request_timeout" json:"request_timeout"`
}

// IndexConfig holds the settings applied to every managed index and template.
type IndexConfig struct {
	NumberOfShards   int `yaml:"number_of_shards" json:"number_of_shards"`
	NumberOfReplicas int `yaml:"number_of_replicas" json:"number_of_replicas"`
	// ReplicasByIndexName overrides NumberOfReplicas per logical index name.
	ReplicasByIndexName map[string]int `yaml:"replicas_by_index_name" json:"replicas_by_index_name"`
	// ShardsByIndexName overrides NumberOfShards per logical index name.
	ShardsByIndexName map[string]int `yaml:"shards_by_index_name" json:"shards_by_index_name"`
	TemplatePriority  int            `yaml:"template_priority" json:"template_priority"`
}

// SchemaManagerConfig controls schema creation and the startup retry loop.
type SchemaManagerConfig struct {
	// CreateSchema disables all schema management when false.
	CreateSchema bool        `yaml:"create_schema" json:"create_schema"`
	Retry        RetryConfig `yaml:"retry" json:"retry"`
	// CreationTimeout bounds the join of all concurrent creations in one pass.
	CreationTimeout string `yaml:"creation_timeout" json:"creation_timeout"`
}

// RetryConfig configures the backoff around schema initialization.
type RetryConfig struct {
	// MaxRetries < 0 retries until success or shutdown.
	MaxRetries   int     `yaml:"max_retries" json:"max_retries"`
	InitialDelay string  `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     string  `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64 `yaml:"multiplier" json:"multiplier"`
	Jitter       bool    `yaml:"jitter" json:"jitter"`
}

// RetentionConfig configures the lifecycle policy installed at startup.
type RetentionConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	PolicyName string `yaml:"policy_name" json:"policy_name"`
	MinimumAge string `yaml:"minimum_age" json:"minimum_age"`
}

// ServerConfig configures the probe/admin HTTP server.
type ServerConfig struct {
	Address  string `yaml:"address" json:"address"`
	LogLevel string `yaml:"log_level" json:"log_level"`
	// LogFile receives a rotated copy of the serve logs. Empty disables it.
	LogFile string `yaml:"log_file" json:"log_file"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Connect: ConnectConfig{
			Type:           ConnectEmbedded,
			URL:            "http://localhost:9200",
			IndexPrefix:    "analytics",
			DataDir:        defaultDataDir(),
			RequestTimeout: "15s",
		},
		Index: IndexConfig{
			NumberOfShards:      1,
			NumberOfReplicas:    0,
			ReplicasByIndexName: map[string]int{},
			ShardsByIndexName:   map[string]int{},
			TemplatePriority:    0,
		},
		SchemaManager: SchemaManagerConfig{
			CreateSchema: true,
			Retry: RetryConfig{
				MaxRetries:   -1, // never give up; the store may still be starting
				InitialDelay: "500ms",
				MaxDelay:     "30s",
				Multiplier:   2.0,
				Jitter:       true,
			},
			CreationTimeout: "60s",
		},
		Retention: RetentionConfig{
			Enabled:    false,
			PolicyName: "analytics_history_retention",
			MinimumAge: "30d",
		},
		Server: ServerConfig{
			Address:  ":9600",
			LogLevel: "info",
		},
	}
}

// ShardsFor returns the shard count for a logical index name.
func (c IndexConfig) ShardsFor(indexName string) int {
	if n, ok := c.ShardsByIndexName[indexName]; ok {
		return n
	}
	return c.NumberOfShards
}

// ReplicasFor returns the replica count for a logical index name.
func (c IndexConfig) ReplicasFor(indexName string) int {
	if n, ok := c.ReplicasByIndexName[indexName]; ok {
		return n
	}
	return c.NumberOfReplicas
}

// CreationTimeoutDuration parses CreationTimeout, falling back to 60s.
func (c SchemaManagerConfig) CreationTimeoutDuration() time.Duration {
	return parseDurationOr(c.CreationTimeout, 60*time.Second)
}

// RequestTimeoutDuration parses RequestTimeout, falling back to 15s.
func (c ConnectConfig) RequestTimeoutDuration() time.Duration {
	return parseDurationOr(c.RequestTimeout, 15*time.Second)
}

// InitialDelayDuration parses InitialDelay, falling back to 500ms.
func (c RetryConfig) InitialDelayDuration() time.Duration {
	return parseDurationOr(c.InitialDelay, 500*time.Millisecond)
}

// MaxDelayDuration parses MaxDelay, falling back to 30s.
func (c RetryConfig) MaxDelayDuration() time.Duration {
	return parseDurationOr(c.MaxDelay, 30*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// defaultDataDir returns the default embedded store location.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".searchschema", "data")
	}
	return filepath.Join(home, ".searchschema", "data")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/searchschema/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/searchschema/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "searchschema", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "searchschema", "config.yaml")
	}
	return filepath.Join(home, ".config", "searchschema", "config.yaml")
}

// Load loads configuration for the given directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/searchschema/config.yaml)
//  3. Project config (.searchschema.yaml in dir)
//  4. Environment variables (SEARCHSCHEMA_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFile loads defaults, then the given file, then env overrides.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromFile attempts to load .searchschema.yaml or .searchschema.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ProjectConfigFile)
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".searchschema.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}

	return nil
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

	// Booleans that default to true can only be switched off explicitly.
	var raw struct {
		SchemaManager struct {
			CreateSchema *bool `yaml:"create_schema"`
			Retry        struct {
				MaxRetries *int  `yaml:"max_retries"`
				Jitter     *bool `yaml:"jitter"`
			} `yaml:"retry"`
		} `yaml:"schema_manager"`
		Retention struct {
			Enabled *bool `yaml:"enabled"`
		} `yaml:"retention"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	if raw.SchemaManager.CreateSchema != nil {
		c.SchemaManager.CreateSchema = *raw.SchemaManager.CreateSchema
	}
	if raw.SchemaManager.Retry.MaxRetries != nil {
		c.SchemaManager.Retry.MaxRetries = *raw.SchemaManager.Retry.MaxRetries
	}
	if raw.SchemaManager.Retry.Jitter != nil {
		c.SchemaManager.Retry.Jitter = *raw.SchemaManager.Retry.Jitter
	}
	if raw.Retention.Enabled != nil {
		c.Retention.Enabled = *raw.Retention.Enabled
	}
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Connect
	if other.Connect.Type != "" {
		c.Connect.Type = other.Connect.Type
	}
	if other.Connect.URL != "" {
		c.Connect.URL = other.Connect.URL
	}
	if other.Connect.Username != "" {
		c.Connect.Username = other.Connect.Username
	}
	if other.Connect.Password != "" {
		c.Connect.Password = other.Connect.Password
	}
	if other.Connect.IndexPrefix != "" {
		c.Connect.IndexPrefix = other.Connect.IndexPrefix
	}
	if other.Connect.DataDir != "" {
		c.Connect.DataDir = other.Connect.DataDir
	}
	if other.Connect.RequestTimeout != "" {
		c.Connect.RequestTimeout = other.Connect.RequestTimeout
	}

	// Index
	if other.Index.NumberOfShards != 0 {
		c.Index.NumberOfShards = other.Index.NumberOfShards
	}
	if other.Index.NumberOfReplicas != 0 {
		c.Index.NumberOfReplicas = other.Index.NumberOfReplicas
	}
	for name, n := range other.Index.ReplicasByIndexName {
		c.Index.ReplicasByIndexName[name] = n
	}
	for name, n := range other.Index.ShardsByIndexName {
		c.Index.ShardsByIndexName[name] = n
	}
	if other.Index.TemplatePriority != 0 {
		c.Index.TemplatePriority = other.Index.TemplatePriority
	}

	// Schema manager
	if other.SchemaManager.CreationTimeout != "" {
		c.SchemaManager.CreationTimeout = other.SchemaManager.CreationTimeout
	}
	if other.SchemaManager.Retry.InitialDelay != "" {
		c.SchemaManager.Retry.InitialDelay = other.SchemaManager.Retry.InitialDelay
	}
	if other.SchemaManager.Retry.MaxDelay != "" {
		c.SchemaManager.Retry.MaxDelay = other.SchemaManager.Retry.MaxDelay
	}
	if other.SchemaManager.Retry.Multiplier != 0 {
		c.SchemaManager.Retry.Multiplier = other.SchemaManager.Retry.Multiplier
	}

	// Retention
	if other.Retention.PolicyName != "" {
		c.Retention.PolicyName = other.Retention.PolicyName
	}
	if other.Retention.MinimumAge != "" {
		c.Retention.MinimumAge = other.Retention.MinimumAge
	}

	// Server
	if other.Server.Address != "" {
		c.Server.Address = other.Server.Address
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.LogFile != "" {
		c.Server.LogFile = other.Server.LogFile
	}
}

// applyEnvOverrides applies SEARCHSCHEMA_* environment variables.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SEARCHSCHEMA_CONNECT_TYPE"); v != "" {
		c.Connect.Type = v
	}
	if v := os.Getenv("SEARCHSCHEMA_URL"); v != "" {
		c.Connect.URL = v
	}
	if v := os.Getenv("SEARCHSCHEMA_USERNAME"); v != "" {
		c.Connect.Username = v
	}
	if v := os.Getenv("SEARCHSCHEMA_PASSWORD"); v != "" {
		c.Connect.Password = v
	}
	if v := os.Getenv("SEARCHSCHEMA_INDEX_PREFIX"); v != "" {
		c.Connect.IndexPrefix = v
	}
	if v := os.Getenv("SEARCHSCHEMA_DATA_DIR"); v != "" {
		c.Connect.DataDir = v
	}
	if v := os.Getenv("SEARCHSCHEMA_NUMBER_OF_REPLICAS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Index.NumberOfReplicas = n
		}
	}
	if v := os.Getenv("SEARCHSCHEMA_NUMBER_OF_SHARDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Index.NumberOfShards = n
		}
	}
	if v := os.Getenv("SEARCHSCHEMA_CREATE_SCHEMA"); v != "" {
		c.SchemaManager.CreateSchema = parseBool(v)
	}
	if v := os.Getenv("SEARCHSCHEMA_RETENTION_ENABLED"); v != "" {
		c.Retention.Enabled = parseBool(v)
	}
	if v := os.Getenv("SEARCHSCHEMA_RETENTION_MINIMUM_AGE"); v != "" {
		c.Retention.MinimumAge = v
	}
	if v := os.Getenv("SEARCHSCHEMA_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("SEARCHSCHEMA_LOG_FILE"); v != "" {
		c.Server.LogFile = v
	}
	if v := os.Getenv("SEARCHSCHEMA_ADDRESS"); v != "" {
		c.Server.Address = v
	}
}

func parseBool(v string) bool {
	return strings.ToLower(v) == "true" || v == "1"
}

// Validate checks the final configuration.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Connect.Type) {
	case ConnectEmbedded, ConnectElasticsearch:
	default:
		return fmt.Errorf("connect.type must be 'embedded' or 'elasticsearch', got %s", c.Connect.Type)
	}

	if c.Connect.IndexPrefix == "" {
		return fmt.Errorf("connect.index_prefix must not be empty")
	}
	if strings.ContainsAny(c.Connect.IndexPrefix, " *,\"/\\?<>|#") || strings.ToLower(c.Connect.IndexPrefix) != c.Connect.IndexPrefix {
		return fmt.Errorf("connect.index_prefix must be lowercase without wildcards or separators, got %q", c.Connect.IndexPrefix)
	}

	if c.Index.NumberOfShards < 1 {
		return fmt.Errorf("index.number_of_shards must be at least 1, got %d", c.Index.NumberOfShards)
	}
	if c.Index.NumberOfReplicas < 0 {
		return fmt.Errorf("index.number_of_replicas must be non-negative, got %d", c.Index.NumberOfReplicas)
	}
	for name, n := range c.Index.ShardsByIndexName {
		if n < 1 {
			return fmt.Errorf("index.shards_by_index_name[%s] must be at least 1, got %d", name, n)
		}
	}
	for name, n := range c.Index.ReplicasByIndexName {
		if n < 0 {
			return fmt.Errorf("index.replicas_by_index_name[%s] must be non-negative, got %d", name, n)
		}
	}

	if c.SchemaManager.Retry.Multiplier < 1 {
		return fmt.Errorf("schema_manager.retry.multiplier must be >= 1, got %.2f", c.SchemaManager.Retry.Multiplier)
	}
	for field, v := range map[string]string{
		"schema_manager.retry.initial_delay": c.SchemaManager.Retry.InitialDelay,
		"schema_manager.retry.max_delay":     c.SchemaManager.Retry.MaxDelay,
		"schema_manager.creation_timeout":    c.SchemaManager.CreationTimeout,
		"connect.request_timeout":            c.Connect.RequestTimeout,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: invalid duration %q", field, v)
		}
	}

	if c.Retention.Enabled {
		if c.Retention.PolicyName == "" {
			return fmt.Errorf("retention.policy_name is required when retention is enabled")
		}
		if !validMinimumAge(c.Retention.MinimumAge) {
			return fmt.Errorf("retention.minimum_age must look like '30d' or '12h', got %q", c.Retention.MinimumAge)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// validMinimumAge accepts the store's time units: d, h, m, s, ms.
func validMinimumAge(s string) bool {
	for _, unit := range []string{"ms", "d", "h", "m", "s"} {
		if num, ok := strings.CutSuffix(s, unit); ok {
			n, err := strconv.Atoi(num)
			return err == nil && n >= 0
		}
	}
	return false
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
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
