package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"auction-engine/internal/auction"
	"auction-engine/internal/models"
	"auction-engine/internal/scheduler"
)

// Config materialises application configuration.
type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Fanout    FanoutConfig    `mapstructure:"fanout"`
}

// HTTPConfig controls the API listener.
type HTTPConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig selects the logrus level and formatter.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN keeps
// everything in memory.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ApplyMigrations bool          `mapstructure:"apply_migrations"`
}

// EngineConfig holds the bidding policies.
type EngineConfig struct {
	EndingSoonWindow       time.Duration `mapstructure:"ending_soon_window"`
	AntiSnipeGrace         time.Duration `mapstructure:"anti_snipe_grace"`
	MaxAntiSnipeExtensions int           `mapstructure:"max_anti_snipe_extensions"`
	IncrementPolicy        string        `mapstructure:"increment_policy"`
	RejectRedundantBids    bool          `mapstructure:"reject_redundant_bids"`
	MailboxSize            int           `mapstructure:"mailbox_size"`
	MaxContentionRetries   int           `mapstructure:"max_contention_retries"`
	PersistRetries         int           `mapstructure:"persist_retries"`
	PersistBackoff         time.Duration `mapstructure:"persist_backoff"`
	PersistMaxBackoff      time.Duration `mapstructure:"persist_max_backoff"`
}

// SchedulerConfig governs lifecycle dispatch.
type SchedulerConfig struct {
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	Workers    int           `mapstructure:"workers"`
}

// FanoutConfig sizes the per-subscriber event buffers.
type FanoutConfig struct {
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AUCTION_ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_header_timeout", "5s")
	v.SetDefault("http.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.apply_migrations", true)

	v.SetDefault("engine.ending_soon_window", "5m")
	v.SetDefault("engine.anti_snipe_grace", "60s")
	v.SetDefault("engine.max_anti_snipe_extensions", 10)
	v.SetDefault("engine.increment_policy", string(models.IncrementFixed))
	v.SetDefault("engine.reject_redundant_bids", false)
	v.SetDefault("engine.mailbox_size", 64)
	v.SetDefault("engine.max_contention_retries", 3)
	v.SetDefault("engine.persist_retries", 3)
	v.SetDefault("engine.persist_backoff", "50ms")
	v.SetDefault("engine.persist_max_backoff", "2s")

	v.SetDefault("scheduler.retry_delay", "1s")
	v.SetDefault("scheduler.workers", 8)

	v.SetDefault("fanout.subscriber_buffer", 256)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr must be set")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	if c.Engine.EndingSoonWindow <= 0 {
		return fmt.Errorf("engine.ending_soon_window must be greater than zero")
	}
	if c.Engine.AntiSnipeGrace < 0 {
		return fmt.Errorf("engine.anti_snipe_grace cannot be negative")
	}
	if c.Engine.MaxAntiSnipeExtensions < 0 {
		return fmt.Errorf("engine.max_anti_snipe_extensions cannot be negative")
	}
	switch models.IncrementPolicy(c.Engine.IncrementPolicy) {
	case models.IncrementFixed, models.IncrementPercentage:
	default:
		return fmt.Errorf("engine.increment_policy must be fixed or percentage, got %q", c.Engine.IncrementPolicy)
	}
	if c.Engine.MailboxSize <= 0 {
		return fmt.Errorf("engine.mailbox_size must be greater than zero")
	}
	if c.Engine.MaxContentionRetries < 0 || c.Engine.PersistRetries < 0 {
		return fmt.Errorf("engine retry counts cannot be negative")
	}
	if c.Engine.PersistBackoff <= 0 || c.Engine.PersistMaxBackoff < c.Engine.PersistBackoff {
		return fmt.Errorf("engine.persist_backoff must be positive and not above engine.persist_max_backoff")
	}
	if c.Scheduler.RetryDelay <= 0 {
		return fmt.Errorf("scheduler.retry_delay must be greater than zero")
	}
	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("scheduler.workers must be greater than zero")
	}
	if c.Fanout.SubscriberBuffer <= 0 {
		return fmt.Errorf("fanout.subscriber_buffer must be greater than zero")
	}
	return nil
}

// ActorConfig is the per-auction actor policy derived from the engine section.
func (c *Config) ActorConfig() auction.Config {
	return auction.Config{
		EndingSoonWindow:       c.Engine.EndingSoonWindow,
		AntiSnipeGrace:         c.Engine.AntiSnipeGrace,
		MaxAntiSnipeExtensions: c.Engine.MaxAntiSnipeExtensions,
		RejectRedundantBids:    c.Engine.RejectRedundantBids,
		MailboxSize:            c.Engine.MailboxSize,
		MaxContentionRetries:   c.Engine.MaxContentionRetries,
		PersistRetries:         c.Engine.PersistRetries,
		PersistBackoff:         c.Engine.PersistBackoff,
		PersistMaxBackoff:      c.Engine.PersistMaxBackoff,
	}
}

// SchedulerOptions is the scheduler configuration; the ending-soon window is
// shared with the actors.
func (c *Config) SchedulerOptions() scheduler.Config {
	return scheduler.Config{
		EndingSoonWindow: c.Engine.EndingSoonWindow,
		RetryDelay:       c.Scheduler.RetryDelay,
		Workers:          c.Scheduler.Workers,
	}
}
