package config

import (
	"fmt"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API. CacheEntries bounds the
// rendered-response cache; 0 disables it.
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	CORSOrigins  []string      `yaml:"cors_origins" mapstructure:"cors_origins"`
	CacheEntries int           `yaml:"cache_entries" mapstructure:"cache_entries"`
	CacheTTL     time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// ExtractConfig configures graph extraction and its outputs.
type ExtractConfig struct {
	Format    string   `yaml:"format" mapstructure:"format"`
	Workers   int      `yaml:"workers" mapstructure:"workers"`
	OutputDir string   `yaml:"output_dir" mapstructure:"output_dir"`
	Outputs   []string `yaml:"outputs" mapstructure:"outputs"`
	KeepAll   bool     `yaml:"keep_all" mapstructure:"keep_all"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Output names accepted in extract.outputs.
const (
	OutputCSV       = "csv"
	OutputShapefile = "shp"
	OutputStore     = "store"
)

var validOutputs = []string{OutputCSV, OutputShapefile, OutputStore}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ROADGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "roadgraph.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.cache_entries", 1024)
	v.SetDefault("server.cache_ttl", "10m")
	v.SetDefault("extract.format", "auto")
	v.SetDefault("extract.workers", runtime.GOMAXPROCS(0))
	v.SetDefault("extract.output_dir", ".")
	v.SetDefault("extract.outputs", []string{OutputCSV})
	v.SetDefault("extract.keep_all", false)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are
// "extract" and "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "extract":
		if c.Extract.Workers < 1 {
			errs = append(errs, "extract.workers must be >= 1")
		}
		switch c.Extract.Format {
		case "auto", "pbf", "xml":
		default:
			errs = append(errs, fmt.Sprintf("extract.format %q must be auto, pbf or xml", c.Extract.Format))
		}
		if len(c.Extract.Outputs) == 0 {
			errs = append(errs, "extract.outputs must not be empty")
		}
		for _, o := range c.Extract.Outputs {
			if !slices.Contains(validOutputs, o) {
				errs = append(errs, fmt.Sprintf("extract.outputs: unknown output %q", o))
			}
		}
		if slices.Contains(c.Extract.Outputs, OutputStore) {
			errs = append(errs, c.Store.validate()...)
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Server.CacheEntries < 0 {
			errs = append(errs, "server.cache_entries must be >= 0")
		}
		errs = append(errs, c.Store.validate()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (s StoreConfig) validate() []string {
	switch s.Driver {
	case "sqlite":
		if s.Path == "" {
			return []string{"store.path is required for sqlite"}
		}
	case "postgres":
		if s.DatabaseURL == "" {
			return []string{"store.database_url is required for postgres"}
		}
	default:
		return []string{fmt.Sprintf("store.driver %q must be sqlite or postgres", s.Driver)}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
