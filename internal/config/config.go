package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store         StoreConfig         `yaml:"store" mapstructure:"store"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
	Proxy         ProxyConfig         `yaml:"proxy" mapstructure:"proxy"`
	GeoAPI        GeoAPIConfig        `yaml:"geoapi" mapstructure:"geoapi"`
	Ameli         AmeliConfig         `yaml:"ameli" mapstructure:"ameli"`
	Verify        VerifyConfig        `yaml:"verify" mapstructure:"verify"`
	Staging       StagingConfig       `yaml:"staging" mapstructure:"staging"`
	Psychologists PsychologistsConfig `yaml:"psychologists" mapstructure:"psychologists"`
	Search        SearchConfig        `yaml:"search" mapstructure:"search"`
	Metrics       MetricsConfig       `yaml:"metrics" mapstructure:"metrics"`
}

// StoreConfig configures the primary catalog database.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ProxyConfig points at the egress endpoint list and its shared credentials.
type ProxyConfig struct {
	ListPath string `yaml:"list_path" mapstructure:"list_path"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Scheme   string `yaml:"scheme" mapstructure:"scheme"`
}

// GeoAPIConfig configures the geographic reference API client.
type GeoAPIConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// AmeliConfig configures the psychologist directory client.
type AmeliConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// VerifyConfig configures the catalog verification run.
type VerifyConfig struct {
	BatchSize    int    `yaml:"batch_size" mapstructure:"batch_size"`
	MinDelayMs   int    `yaml:"min_delay_ms" mapstructure:"min_delay_ms"`
	MaxDelayMs   int    `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	ProgressPath string `yaml:"progress_path" mapstructure:"progress_path"`
	ReportPath   string `yaml:"report_path" mapstructure:"report_path"`
}

// StagingConfig locates the local staging database.
type StagingConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PsychologistsConfig configures the directory extraction and load.
type PsychologistsConfig struct {
	ParallelRequests int `yaml:"parallel_requests" mapstructure:"parallel_requests"`
	RefetchAfterDays int `yaml:"refetch_after_days" mapstructure:"refetch_after_days"`
	LoadBatchSize    int `yaml:"load_batch_size" mapstructure:"load_batch_size"`
	LoadConcurrency  int `yaml:"load_concurrency" mapstructure:"load_concurrency"`
	MinDelayMs       int `yaml:"min_delay_ms" mapstructure:"min_delay_ms"`
	MaxDelayMs       int `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
}

// SearchConfig configures the proximity search.
type SearchConfig struct {
	RadiusKm float64 `yaml:"radius_km" mapstructure:"radius_km"`
}

// MetricsConfig configures the optional Prometheus textfile export.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path" mapstructure:"textfile_path"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PSY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("proxy.username", "PSY_PROXY_USERNAME", "OXYLABS_USERNAME")
	_ = v.BindEnv("proxy.password", "PSY_PROXY_PASSWORD", "OXYLABS_PASSWORD")
	_ = v.BindEnv("store.database_url", "PSY_STORE_DATABASE_URL", "DATABASE_URL")

	// Defaults
	v.SetDefault("store.max_conns", 20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("proxy.list_path", "proxy_lists.json")
	v.SetDefault("proxy.scheme", "https")
	v.SetDefault("geoapi.base_url", "https://geo.api.gouv.fr")
	v.SetDefault("geoapi.timeout_secs", 25)
	v.SetDefault("geoapi.rate_per_sec", 0)
	v.SetDefault("ameli.base_url", "https://monsoutienpsy.ameli.fr")
	v.SetDefault("ameli.timeout_secs", 30)
	v.SetDefault("verify.batch_size", 20)
	v.SetDefault("verify.min_delay_ms", 1000)
	v.SetDefault("verify.max_delay_ms", 3000)
	v.SetDefault("verify.progress_path", "verification_progress.json")
	v.SetDefault("verify.report_path", "verification_report.txt")
	v.SetDefault("staging.path", "psychologists.sqlite")
	v.SetDefault("psychologists.parallel_requests", 20)
	v.SetDefault("psychologists.refetch_after_days", 7)
	v.SetDefault("psychologists.load_batch_size", 250)
	v.SetDefault("psychologists.load_concurrency", 10)
	v.SetDefault("psychologists.min_delay_ms", 1000)
	v.SetDefault("psychologists.max_delay_ms", 6000)
	v.SetDefault("search.radius_km", 15)

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

// Requirement names a precondition a command places on the configuration.
type Requirement string

const (
	RequireDatabase Requirement = "database"
	RequireProxy    Requirement = "proxy"
	RequireStaging  Requirement = "staging"
)

// Validate checks the configuration against the preconditions of a command.
// All problems are reported at once.
func (c *Config) Validate(reqs ...Requirement) error {
	var problems []string
	for _, r := range reqs {
		switch r {
		case RequireDatabase:
			if c.Store.DatabaseURL == "" {
				problems = append(problems, "store.database_url is required")
			}
		case RequireProxy:
			if c.Proxy.Username == "" || c.Proxy.Password == "" {
				problems = append(problems, "proxy credentials are required (OXYLABS_USERNAME and OXYLABS_PASSWORD)")
			}
			if c.Proxy.ListPath == "" {
				problems = append(problems, "proxy.list_path is required")
			}
		case RequireStaging:
			if c.Staging.Path == "" {
				problems = append(problems, "staging.path is required")
			}
		default:
			problems = append(problems, "unknown requirement "+string(r))
		}
	}

	if c.Verify.BatchSize < 1 {
		problems = append(problems, "verify.batch_size must be at least 1")
	}
	if c.Verify.MinDelayMs < 0 || c.Verify.MaxDelayMs < c.Verify.MinDelayMs {
		problems = append(problems, "verify delays must satisfy 0 <= min_delay_ms <= max_delay_ms")
	}
	if c.Psychologists.MinDelayMs < 0 || c.Psychologists.MaxDelayMs < c.Psychologists.MinDelayMs {
		problems = append(problems, "psychologists delays must satisfy 0 <= min_delay_ms <= max_delay_ms")
	}
	if c.Psychologists.LoadConcurrency < 1 || c.Psychologists.LoadBatchSize < 1 {
		problems = append(problems, "psychologists load_batch_size and load_concurrency must be at least 1")
	}
	if c.Search.RadiusKm <= 0 {
		problems = append(problems, "search.radius_km must be positive")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
