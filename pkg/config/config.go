// Package config loads web-tools settings from an optional YAML file, the
// environment (prefix WEBTOOLS_) and a .env file, and reads the bearer token
// from the credential file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/solarecho3/web-tools/pkg/client"
	"github.com/solarecho3/web-tools/pkg/pagination"
)

// ErrCredentials is returned when the credential file is missing, malformed
// or holds no bearer token. It is fatal for the run.
var ErrCredentials = errors.New("invalid credentials")

// EnvPrefix prefixes environment overrides, e.g. WEBTOOLS_DATA_DIR.
const EnvPrefix = "WEBTOOLS"

// tokenField is the credential file key holding the bearer token.
const tokenField = "Bearer Token"

// Config holds all configuration options.
type Config struct {
	CredentialsFile string        `mapstructure:"credentials_file" yaml:"credentials_file"`
	DataDir         string        `mapstructure:"data_dir" yaml:"data_dir"`
	APIBaseURL      string        `mapstructure:"api_base_url" yaml:"api_base_url"`
	HTTPTimeout     time.Duration `mapstructure:"http_timeout" yaml:"http_timeout"`
	UserAgent       string        `mapstructure:"user_agent" yaml:"user_agent"`

	Redis     RedisConfig     `mapstructure:"redis" yaml:"redis"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Dashboard DashboardConfig `mapstructure:"dashboard" yaml:"dashboard"`

	// Endpoints overrides per-endpoint collection options, keyed by endpoint
	// name (user_tweets, user_following, user_followers, query).
	Endpoints map[string]pagination.Config `mapstructure:"endpoints" yaml:"endpoints,omitempty"`
}

// RedisConfig configures the optional rate-limit mirror. An empty Addr
// disables it.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

// DashboardConfig configures the read-only dashboard.
type DashboardConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	Glob string `mapstructure:"glob" yaml:"glob"`
}

// collectionEndpoints are the endpoints whose options can be overridden.
var collectionEndpoints = []string{
	client.UserTweetsEndpoint.Name,
	client.UserFollowingEndpoint.Name,
	client.UserFollowersEndpoint.Name,
	client.SearchEndpoint.Name,
}

// DefaultConfig returns a configuration with defaults for every field.
func DefaultConfig() *Config {
	return &Config{
		CredentialsFile: "keys.json",
		DataDir:         "data",
		APIBaseURL:      client.DefaultBaseURL,
		HTTPTimeout:     30 * time.Second,
		UserAgent:       "web-tools/1.0",
		Log: LogConfig{
			Level: "info",
		},
		Dashboard: DashboardConfig{
			Addr: ":8501",
			Glob: "data/*.db",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("credentials_file", d.CredentialsFile)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("api_base_url", d.APIBaseURL)
	v.SetDefault("http_timeout", d.HTTPTimeout)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)
	v.SetDefault("dashboard.addr", d.Dashboard.Addr)
	v.SetDefault("dashboard.glob", d.Dashboard.Glob)
}

// Load reads the configuration. A .env file in the working directory is
// loaded into the environment first when present. With an empty path,
// config.yaml is searched in the working directory and $HOME/.web-tools and
// may be absent; an explicit path must exist. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.web-tools")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.UnmarshalExact(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects values the tool cannot run with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive (got %s)", c.HTTPTimeout)
	}

	names := make([]string, 0, len(c.Endpoints))
	for name := range c.Endpoints {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !knownEndpoint(name) {
			return fmt.Errorf("endpoints: unknown endpoint %q (known: %s)", name, strings.Join(collectionEndpoints, ", "))
		}
		opts := c.Endpoints[name]
		if opts.MaxPages < 0 {
			return fmt.Errorf("endpoints.%s.max_pages must not be negative (got %d)", name, opts.MaxPages)
		}
		if opts.ThrottleInterval < 0 {
			return fmt.Errorf("endpoints.%s.throttle_interval must not be negative (got %s)", name, opts.ThrottleInterval)
		}
	}
	return nil
}

func knownEndpoint(name string) bool {
	for _, n := range collectionEndpoints {
		if n == name {
			return true
		}
	}
	return false
}

// Collection returns the configured options for an endpoint. Zero fields
// select the endpoint's defaults.
func (c *Config) Collection(endpoint string) pagination.Config {
	return c.Endpoints[endpoint]
}

// Session returns the client configuration for token.
func (c *Config) Session(token string) client.Config {
	return client.Config{
		Token:     token,
		BaseURL:   c.APIBaseURL,
		Timeout:   c.HTTPTimeout,
		UserAgent: c.UserAgent,
	}
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return out, nil
}

// LoadToken reads the bearer token from a credential file of the form
// {"keys": {"Bearer Token": "..."}}.
func LoadToken(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrCredentials, path, err)
	}

	var creds struct {
		Keys map[string]any `json:"keys"`
	}
	if err := json.Unmarshal(raw, &creds); err != nil {
		return "", fmt.Errorf("%w: parse %s: %v", ErrCredentials, path, err)
	}

	token, _ := creds.Keys[tokenField].(string)
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: %s has no keys.%q", ErrCredentials, path, tokenField)
	}

	return token, nil
}
