// Package config loads copper-cli configuration and initializes logging.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/copper-cli/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store         StoreConfig            `yaml:"store" mapstructure:"store"`
	Anthropic     AnthropicConfig        `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity    PerplexityConfig       `yaml:"perplexity" mapstructure:"perplexity"`
	Ingest        IngestConfig           `yaml:"ingest" mapstructure:"ingest"`
	Schedule      ScheduleConfig         `yaml:"schedule" mapstructure:"schedule"`
	Server        ServerConfig           `yaml:"server" mapstructure:"server"`
	Monitoring    MonitoringConfig       `yaml:"monitoring" mapstructure:"monitoring"`
	Log           LogConfig              `yaml:"log" mapstructure:"log"`
	MaterialsFile string                 `yaml:"materials_file" mapstructure:"materials_file"`
	Materials     []model.MaterialConfig `yaml:"materials" mapstructure:"materials"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite, postgres, csv, xlsx
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key           string   `yaml:"key" mapstructure:"key"`
	BaseURL       string   `yaml:"base_url" mapstructure:"base_url"`
	Model         string   `yaml:"model" mapstructure:"model"`
	SearchDomains []string `yaml:"search_domains" mapstructure:"search_domains"`
}

// IngestConfig controls the ingestion cycle.
type IngestConfig struct {
	MaxAttempts        int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryDelaySecs     int     `yaml:"retry_delay_secs" mapstructure:"retry_delay_secs"`
	ExponentialBackoff bool    `yaml:"exponential_backoff" mapstructure:"exponential_backoff"`
	CooldownSecs       int     `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
	FetchTimeoutSecs   int     `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	RequestsPerMinute  int     `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	MinPrice           float64 `yaml:"min_price" mapstructure:"min_price"`
	MaxPrice           float64 `yaml:"max_price" mapstructure:"max_price"`
	BackfillWeeks      int     `yaml:"backfill_weeks" mapstructure:"backfill_weeks"`
	Timezone           string  `yaml:"timezone" mapstructure:"timezone"`
	SkipExisting       bool    `yaml:"skip_existing" mapstructure:"skip_existing"`
	Insights           bool    `yaml:"insights" mapstructure:"insights"`
}

// ScheduleConfig configures the scheduled ingestion tick used by serve.
type ScheduleConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Cron    string `yaml:"cron" mapstructure:"cron"`
}

// ServerConfig configures the dashboard API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures failure and staleness alerts.
type MonitoringConfig struct {
	WebhookURL        string `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	StaleAfterDays    int    `yaml:"stale_after_days" mapstructure:"stale_after_days"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COPPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "copper.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("perplexity.search_domains", []string{"smm.cn", "mysteel.com", "ccmn.cn"})
	v.SetDefault("ingest.max_attempts", 3)
	v.SetDefault("ingest.retry_delay_secs", 5)
	v.SetDefault("ingest.exponential_backoff", false)
	v.SetDefault("ingest.cooldown_secs", 5)
	v.SetDefault("ingest.fetch_timeout_secs", 60)
	v.SetDefault("ingest.requests_per_minute", 20)
	v.SetDefault("ingest.min_price", 30000)
	v.SetDefault("ingest.max_price", 200000)
	v.SetDefault("ingest.backfill_weeks", 52)
	v.SetDefault("ingest.timezone", "Asia/Shanghai")
	v.SetDefault("ingest.skip_existing", true)
	v.SetDefault("ingest.insights", true)
	v.SetDefault("monitoring.check_interval_secs", 3600)
	v.SetDefault("monitoring.stale_after_days", 4)
	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.cron", "CRON_TZ=Asia/Shanghai 0 30 10 * * *")

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

	if cfg.MaterialsFile != "" {
		materials, err := LoadMaterials(cfg.MaterialsFile)
		if err != nil {
			return nil, err
		}
		cfg.Materials = materials
	}
	if len(cfg.Materials) == 0 {
		cfg.Materials = model.DefaultMaterials()
	}

	return &cfg, nil
}

// Validate checks that the settings a command needs are present. mode is
// the command family: "ingest" (fetching commands), "serve", or "store".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "csv", "xlsx":
		if c.Store.Path == "" {
			errs = append(errs, "store.path is required for the "+c.Store.Driver+" driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	default:
		errs = append(errs, "store.driver must be one of sqlite, postgres, csv, xlsx")
	}

	if mode == "ingest" || mode == "serve" {
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if c.Perplexity.Key == "" {
			errs = append(errs, "perplexity.key is required")
		}
		if c.Ingest.MinPrice >= c.Ingest.MaxPrice {
			errs = append(errs, "ingest.min_price must be below ingest.max_price")
		}
		if len(model.ActiveMaterials(c.Materials)) == 0 {
			errs = append(errs, "at least one active material is required")
		}
	}

	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
