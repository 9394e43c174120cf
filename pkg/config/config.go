package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete lwcomply configuration
type Config struct {
	Lacework   LaceworkConfig   `mapstructure:"lacework"`
	AWS        AWSConfig        `mapstructure:"aws"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Transport  TransportConfig  `mapstructure:"transport"`
	Inventory  InventoryConfig  `mapstructure:"inventory"`
	Tags       TagsConfig       `mapstructure:"tags"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Output     OutputConfig     `mapstructure:"output"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// LaceworkConfig contains platform credentials and access mode
type LaceworkConfig struct {
	Account    string        `mapstructure:"account"`
	Subaccount string        `mapstructure:"subaccount"`
	APIKey     string        `mapstructure:"api_key"`
	APISecret  string        `mapstructure:"api_secret"`
	Mode       string        `mapstructure:"mode"`
	CLIPath    string        `mapstructure:"cli_path"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// AWSConfig contains settings for the AWS-native inventory source
type AWSConfig struct {
	Profile    string        `mapstructure:"profile"`
	Region     string        `mapstructure:"region"`
	MaxRetries int           `mapstructure:"max_retries"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// CacheConfig contains caching configuration
type CacheConfig struct {
	Backend string                   `mapstructure:"backend"`
	Dir     string                   `mapstructure:"dir"`
	TTLs    map[string]time.Duration `mapstructure:"ttls"`
	Redis   RedisConfig              `mapstructure:"redis"`
}

// RedisConfig configures the shared redis cache backend
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// TransportConfig controls retry and pacing of remote calls
type TransportConfig struct {
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	MaxRetries        int           `mapstructure:"max_retries"`
	Jitter            float64       `mapstructure:"jitter"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// InventoryConfig controls resource inventory retrieval
type InventoryConfig struct {
	Source   string `mapstructure:"source"`
	PageSize int    `mapstructure:"page_size"`
	MaxPages int    `mapstructure:"max_pages"`
}

// TagsConfig controls ownership tag resolution
type TagsConfig struct {
	Namespace            string            `mapstructure:"namespace"`
	Precedence           string            `mapstructure:"precedence"`
	OrgDefaults          map[string]string `mapstructure:"org_defaults"`
	NormalizeEnvironment bool              `mapstructure:"normalize_environment"`
}

// AggregatorConfig controls a compliance run
type AggregatorConfig struct {
	ReportName      string        `mapstructure:"report_name"`
	Accounts        []string      `mapstructure:"accounts"`
	IncludeDisabled bool          `mapstructure:"include_disabled"`
	AccountPause    time.Duration `mapstructure:"account_pause"`
	SkipTags        bool          `mapstructure:"skip_tags"`
	ValidateReport  bool          `mapstructure:"validate_report"`
}

// OutputConfig contains output formatting configuration
type OutputConfig struct {
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var (
	validBackends    = []string{"file", "memory", "redis"}
	validModes       = []string{"api", "cli"}
	validSources     = []string{"lacework", "aws"}
	validPrecedences = []string{"profile-only", "profile-then-defaults", "defaults-first"}
)

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Lacework: LaceworkConfig{
			Mode:    "api",
			CLIPath: "lacework",
			Timeout: 60 * time.Second,
		},
		AWS: AWSConfig{
			MaxRetries: 3,
			Timeout:    30 * time.Second,
		},
		Cache: CacheConfig{
			Backend: "file",
			Dir:     filepath.Join(homeDir, ".lwcomply", "cache"),
			TTLs:    map[string]time.Duration{},
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				Prefix:  "lwcomply",
				LockTTL: 30 * time.Second,
			},
		},
		Transport: TransportConfig{
			BaseDelay:  2 * time.Second,
			MaxDelay:   60 * time.Second,
			MaxRetries: 5,
			Jitter:     0.2,
			Burst:      1,
		},
		Inventory: InventoryConfig{
			Source:   "lacework",
			PageSize: 5000,
			MaxPages: 1000,
		},
		Tags: TagsConfig{
			Namespace:  "unsw",
			Precedence: "profile-only",
		},
		Aggregator: AggregatorConfig{
			ReportName:     "AWS CIS Benchmark and S3 Report",
			AccountPause:   2 * time.Second,
			ValidateReport: true,
		},
		Output: OutputConfig{
			Format: "json",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from the global viper instance
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper(), "")
}

// LoadFrom loads configuration from v. When configFile is empty the usual
// search paths are used.
func LoadFrom(v *viper.Viper, configFile string) (*Config, error) {
	config := DefaultConfig()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".lwcomply"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("LWCOMPLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("lacework.account", "LWCOMPLY_LACEWORK_ACCOUNT", "LW_ACCOUNT")
	v.BindEnv("lacework.subaccount", "LWCOMPLY_LACEWORK_SUBACCOUNT", "LW_SUBACCOUNT")
	v.BindEnv("lacework.api_key", "LWCOMPLY_LACEWORK_API_KEY", "LW_API_KEY")
	v.BindEnv("lacework.api_secret", "LWCOMPLY_LACEWORK_API_SECRET", "LW_API_SECRET")
	v.BindEnv("aws.profile", "LWCOMPLY_AWS_PROFILE", "AWS_PROFILE")
	v.BindEnv("aws.region", "LWCOMPLY_AWS_REGION", "AWS_REGION")
	v.BindEnv("cache.dir", "LWCOMPLY_CACHE_DIR")
	v.BindEnv("cache.backend", "LWCOMPLY_CACHE_BACKEND")
	v.BindEnv("cache.redis.addr", "LWCOMPLY_REDIS_ADDR")
	v.BindEnv("logging.level", "LWCOMPLY_LOG_LEVEL", "LOG_LEVEL")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is not an error - we'll use defaults
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.ExpandPaths(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !contains(validBackends, c.Cache.Backend) {
		return fmt.Errorf("cache backend %q must be one of %s", c.Cache.Backend, strings.Join(validBackends, ", "))
	}
	if c.Cache.Backend == "file" && c.Cache.Dir == "" {
		return fmt.Errorf("cache dir is required for the file backend")
	}
	if c.Cache.Backend == "redis" && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache redis addr is required for the redis backend")
	}
	for ns, ttl := range c.Cache.TTLs {
		if ttl < 0 {
			return fmt.Errorf("cache ttl for %s must not be negative", ns)
		}
	}

	if !contains(validModes, c.Lacework.Mode) {
		return fmt.Errorf("lacework mode %q must be one of %s", c.Lacework.Mode, strings.Join(validModes, ", "))
	}

	if c.Transport.MaxRetries < 1 {
		return fmt.Errorf("transport max_retries must be at least 1")
	}
	if c.Transport.BaseDelay <= 0 {
		return fmt.Errorf("transport base_delay must be positive")
	}
	if c.Transport.MaxDelay < c.Transport.BaseDelay {
		return fmt.Errorf("transport max_delay must not be less than base_delay")
	}
	if c.Transport.Jitter < 0 || c.Transport.Jitter >= 1 {
		return fmt.Errorf("transport jitter must be in [0, 1)")
	}

	if !contains(validSources, c.Inventory.Source) {
		return fmt.Errorf("inventory source %q must be one of %s", c.Inventory.Source, strings.Join(validSources, ", "))
	}
	if c.Inventory.PageSize <= 0 {
		return fmt.Errorf("inventory page_size must be positive")
	}

	if c.Tags.Namespace == "" {
		return fmt.Errorf("tags namespace is required")
	}
	if !contains(validPrecedences, c.Tags.Precedence) {
		return fmt.Errorf("tags precedence %q must be one of %s", c.Tags.Precedence, strings.Join(validPrecedences, ", "))
	}
	if c.Tags.Precedence != "profile-only" && len(c.Tags.OrgDefaults) == 0 {
		return fmt.Errorf("tags precedence %s requires org_defaults", c.Tags.Precedence)
	}

	return nil
}

// HasLaceworkCredentials reports whether API credentials are configured
func (c *Config) HasLaceworkCredentials() bool {
	return c.Lacework.Account != "" && c.Lacework.APIKey != "" && c.Lacework.APISecret != ""
}

// LaceworkBaseURL returns the API base URL for the configured account
func (c *Config) LaceworkBaseURL() string {
	if c.Lacework.BaseURL != "" {
		return strings.TrimRight(c.Lacework.BaseURL, "/")
	}
	account := strings.TrimSuffix(c.Lacework.Account, ".lacework.net")
	return fmt.Sprintf("https://%s.lacework.net", account)
}

// ExpandPaths expands home directory paths
func (c *Config) ExpandPaths() error {
	var err error
	c.Cache.Dir, err = expandPath(c.Cache.Dir)
	if err != nil {
		return fmt.Errorf("failed to expand cache dir: %w", err)
	}
	c.Lacework.CLIPath, err = expandPath(c.Lacework.CLIPath)
	if err != nil {
		return fmt.Errorf("failed to expand lacework cli path: %w", err)
	}
	return nil
}

// expandPath expands ~ to home directory
func expandPath(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path, err
	}

	if len(path) == 1 {
		return home, nil
	}

	return filepath.Join(home, path[1:]), nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
