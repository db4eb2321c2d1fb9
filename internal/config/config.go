package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the RCA engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	AI        AIConfig        `yaml:"ai"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig controls the HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// WarehouseConfig configures the SQL statement execution backend.
type WarehouseConfig struct {
	WorkspaceURL  string        `yaml:"workspaceURL"`
	WarehouseID   string        `yaml:"warehouseID"`
	Token         string        `yaml:"token"`
	CatalogSchema string        `yaml:"catalogSchema"`
	VolumePath    string        `yaml:"volumePath"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxWait       time.Duration `yaml:"maxWait"`
	PollInterval  time.Duration `yaml:"pollInterval"`
}

// ScraperConfig controls the status-page scraping pipeline.
type ScraperConfig struct {
	UserAgent string        `yaml:"userAgent"`
	Timeout   time.Duration `yaml:"timeout"`
}

// AIConfig configures the chat-completion backend used for narrative enrichment.
type AIConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BaseURL       string        `yaml:"baseURL"`
	Endpoint      string        `yaml:"endpoint"`
	Token         string        `yaml:"token"`
	Timeout       time.Duration `yaml:"timeout"`
	ProgressGrace time.Duration `yaml:"progressGrace"`
}

// CacheConfig controls Valkey-backed caching of expensive warehouse lookups.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	TLS          bool          `yaml:"tls"`
	IncidentsTTL time.Duration `yaml:"incidentsTTL"`
	ClustersTTL  time.Duration `yaml:"clustersTTL"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("LAKEWATCH_RCA_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Warehouse.CatalogSchema != "" && !validIdentifierShape(c.Warehouse.CatalogSchema) {
		return fmt.Errorf("warehouse.catalogSchema %q is not a valid identifier", c.Warehouse.CatalogSchema)
	}
	return nil
}

func validIdentifierShape(s string) bool {
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			return false
		}
		for _, r := range part {
			if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
				return false
			}
		}
	}
	return true
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Warehouse: WarehouseConfig{
			Timeout:      30 * time.Second,
			MaxWait:      60 * time.Second,
			PollInterval: time.Second,
		},
		Scraper: ScraperConfig{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			Timeout:   15 * time.Second,
		},
		AI: AIConfig{
			Enabled:       false,
			Endpoint:      "databricks-claude-sonnet-4-5",
			Timeout:       90 * time.Second,
			ProgressGrace: 30 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			IncidentsTTL: 2 * time.Minute,
			ClustersTTL:  5 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LAKEWATCH_RCA_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("LAKEWATCH_RCA_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("LAKEWATCH_WORKSPACE_URL"); v != "" {
		cfg.Warehouse.WorkspaceURL = v
	}
	if v := os.Getenv("LAKEWATCH_WAREHOUSE_ID"); v != "" {
		cfg.Warehouse.WarehouseID = v
	}
	if v := os.Getenv("LAKEWATCH_WAREHOUSE_TOKEN"); v != "" {
		cfg.Warehouse.Token = v
	}
	if v := os.Getenv("LAKEWATCH_CATALOG_SCHEMA"); v != "" {
		cfg.Warehouse.CatalogSchema = v
	}
	if v := os.Getenv("LAKEWATCH_VOLUME_PATH"); v != "" {
		cfg.Warehouse.VolumePath = v
	}
	if v := os.Getenv("LAKEWATCH_WAREHOUSE_MAX_WAIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Warehouse.MaxWait = d
		}
	}
	if v := os.Getenv("LAKEWATCH_WAREHOUSE_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Warehouse.PollInterval = d
		}
	}
	if v := os.Getenv("LAKEWATCH_AI_ENABLED"); v != "" {
		cfg.AI.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("LAKEWATCH_AI_BASE_URL"); v != "" {
		cfg.AI.BaseURL = v
	}
	if v := os.Getenv("LAKEWATCH_AI_ENDPOINT"); v != "" {
		cfg.AI.Endpoint = v
	}
	if v := os.Getenv("LAKEWATCH_AI_TOKEN"); v != "" {
		cfg.AI.Token = v
	}
	if v := os.Getenv("LAKEWATCH_RCA_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("LAKEWATCH_RCA_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("LAKEWATCH_RCA_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("LAKEWATCH_RCA_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("LAKEWATCH_RCA_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("LAKEWATCH_RCA_CACHE_TLS"); strings.EqualFold(v, "true") || v == "1" {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("LAKEWATCH_RCA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LAKEWATCH_RCA_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}
