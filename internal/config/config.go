package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultStatURL     = "https://stat.ripe.net/data"
	DefaultRegistryURL = "https://rest.db.ripe.net/ripe"
)

// Config represents the complete configuration for uplinks
type Config struct {
	// Query
	Deep   int    `yaml:"deep" json:"deep"`
	Output string `yaml:"output" json:"output"`

	// Remote services
	UA          string  `yaml:"ua" json:"ua"`
	StatURL     string  `yaml:"stat_url" json:"stat_url"`
	RegistryURL string  `yaml:"registry_url" json:"registry_url"`
	TimeoutSec  int     `yaml:"timeout_sec" json:"timeout_sec"`
	Retries     int     `yaml:"retries" json:"retries"`
	RatePerSec  float64 `yaml:"rate_per_sec" json:"rate_per_sec"`
	RateBurst   int     `yaml:"rate_burst" json:"rate_burst"`
	// Breaker stops calling an endpoint after repeated failures. Off by
	// default so that every aut-num and holder lookup is attempted.
	Breaker bool `yaml:"breaker" json:"breaker"`

	// IP to AS resolution
	IPLookup  string `yaml:"ip_lookup" json:"ip_lookup"`
	MMDBPath  string `yaml:"mmdb_path" json:"mmdb_path"`
	DNSServer string `yaml:"dns_server" json:"dns_server"`

	// Cache
	CacheSize   int    `yaml:"cache_size" json:"cache_size"`
	CacheTTLSec int    `yaml:"cache_ttl_sec" json:"cache_ttl_sec"`
	RedisAddr   string `yaml:"redis_addr" json:"redis_addr"`

	// Logging
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`

	// API server
	Listen string `yaml:"listen" json:"listen"`

	// Observability
	OTELEndpoint string `yaml:"otel_endpoint" json:"otel_endpoint"`
	OTELInsecure bool   `yaml:"otel_insecure" json:"otel_insecure"`
	OTELService  string `yaml:"otel_service" json:"otel_service"`
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	if c.Deep == 0 {
		c.Deep = 1
	}
	if c.Output == "" {
		c.Output = "text"
	}
	if c.UA == "" {
		c.UA = "uplinks/1.0 (+https://github.com/gustycube/uplinks)"
	}
	if c.StatURL == "" {
		c.StatURL = DefaultStatURL
	}
	if c.RegistryURL == "" {
		c.RegistryURL = DefaultRegistryURL
	}
	if c.TimeoutSec == 0 {
		c.TimeoutSec = 30
	}
	if c.RatePerSec == 0 {
		c.RatePerSec = 10
	}
	if c.RateBurst == 0 {
		c.RateBurst = 10
	}
	if c.IPLookup == "" {
		c.IPLookup = "ripestat"
	}
	if c.DNSServer == "" {
		c.DNSServer = "8.8.8.8:53"
	}
	if c.CacheTTLSec == 0 {
		c.CacheTTLSec = 3600
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.OTELService == "" {
		c.OTELService = "uplinks"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Deep < 1 || c.Deep > 3 {
		return fmt.Errorf("deep must be one of 1, 2, 3 (got %d)", c.Deep)
	}
	switch c.Output {
	case "text", "json", "jsonl", "csv":
	default:
		return fmt.Errorf("unsupported output format: %s", c.Output)
	}
	if c.TimeoutSec < 1 {
		return fmt.Errorf("timeout_sec must be at least 1")
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative")
	}
	if c.RatePerSec < 0 || c.RateBurst < 1 {
		return fmt.Errorf("rate_per_sec must not be negative and rate_burst must be at least 1")
	}
	switch c.IPLookup {
	case "ripestat", "cymru":
	case "mmdb":
		if c.MMDBPath == "" {
			return fmt.Errorf("mmdb_path is required when ip_lookup is mmdb")
		}
	default:
		return fmt.Errorf("unknown ip_lookup: %s (use ripestat, cymru or mmdb)", c.IPLookup)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must not be negative")
	}
	return nil
}

// Timeout returns the per-request timeout
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// CacheTTL returns the cache entry lifetime
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSec) * time.Second
}

// LoadFromFile loads configuration from a YAML or JSON file and applies defaults
func LoadFromFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (use .yaml, .yml, or .json)", ext)
	}

	config.SetDefaults()

	// env and flags may still fill in required fields; callers Validate after layering
	return &config, nil
}

// MergeWithFlags merges command-line flags with file configuration
// Command-line flags take precedence over file configuration
func (c *Config) MergeWithFlags(flags map[string]interface{}) {
	if v, ok := flags["deep"].(int); ok {
		c.Deep = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output = v
	}
	if v, ok := flags["stat_url"].(string); ok && v != "" {
		c.StatURL = v
	}
	if v, ok := flags["registry_url"].(string); ok && v != "" {
		c.RegistryURL = v
	}
	if v, ok := flags["timeout_sec"].(int); ok && v > 0 {
		c.TimeoutSec = v
	}
	if v, ok := flags["retries"].(int); ok && v >= 0 {
		c.Retries = v
	}
	if v, ok := flags["breaker"].(bool); ok {
		c.Breaker = v
	}
	if v, ok := flags["ip_lookup"].(string); ok && v != "" {
		c.IPLookup = v
	}
	if v, ok := flags["mmdb_path"].(string); ok && v != "" {
		c.MMDBPath = v
	}
	if v, ok := flags["dns_server"].(string); ok && v != "" {
		c.DNSServer = v
	}
	if v, ok := flags["cache_size"].(int); ok && v >= 0 {
		c.CacheSize = v
	}
	if v, ok := flags["redis_addr"].(string); ok && v != "" {
		c.RedisAddr = v
	}
	if v, ok := flags["log_level"].(string); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := flags["log_format"].(string); ok && v != "" {
		c.LogFormat = v
	}
	if v, ok := flags["listen"].(string); ok && v != "" {
		c.Listen = v
	}
	if v, ok := flags["otel_endpoint"].(string); ok && v != "" {
		c.OTELEndpoint = v
	}
	if v, ok := flags["otel_insecure"].(bool); ok {
		c.OTELInsecure = v
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("UPLINKS_STAT_URL"); v != "" {
		c.StatURL = v
	}
	if v := os.Getenv("UPLINKS_REGISTRY_URL"); v != "" {
		c.RegistryURL = v
	}
	if v := os.Getenv("UPLINKS_IP_LOOKUP"); v != "" {
		c.IPLookup = v
	}
	if v := os.Getenv("UPLINKS_MMDB"); v != "" {
		c.MMDBPath = v
	}
}
