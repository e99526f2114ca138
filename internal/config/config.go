package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/hashtop/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel   = "info"
	DefaultEnvPrefix  = "HASHTOP"
	DefaultConfigName = "hashtop"
	DefaultConfigDir  = "/etc"
)

type Config struct {
	LogLevel  string          `mapstructure:"log_level"`
	PIDFile   string          `mapstructure:"pid_file"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Collector CollectorConfig `mapstructure:"collector"`
	Pool      PoolConfig      `mapstructure:"pool"`
	Aggregate AggregateConfig `mapstructure:"aggregate"`
	Agent     AgentConfig     `mapstructure:"agent"`
}

type DatabaseConfig struct {
	Path            string `mapstructure:"path"`
	BackupOnMigrate bool   `mapstructure:"backup_on_migrate"`
}

type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type CollectorConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int           `mapstructure:"concurrency"`
}

type PoolConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Rate    float64       `mapstructure:"rate"`
	Burst   int           `mapstructure:"burst"`
}

type AggregateConfig struct {
	MAFactor int `mapstructure:"ma_factor"`
}

type AgentConfig struct {
	APIURL      string        `mapstructure:"api_url"`
	MinerID     string        `mapstructure:"miner_id"`
	Interval    time.Duration `mapstructure:"interval"`
	HashrateURL string        `mapstructure:"hashrate_url"`
}

// flagKeys maps command line flag names onto configuration keys.
var flagKeys = map[string]string{
	"log-level":          "log_level",
	"pid-file":           "pid_file",
	"database":           "database.path",
	"listen":             "server.listen",
	"collector-interval": "collector.interval",
	"pool-url":           "pool.base_url",
	"agent-api-url":      "agent.api_url",
	"agent-miner-id":     "agent.miner_id",
	"agent-interval":     "agent.interval",
	"agent-hashrate-url": "agent.hashrate_url",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("pid_file", "")
	v.SetDefault("database.path", "/var/lib/hashtop/hashtop.db")
	v.SetDefault("database.backup_on_migrate", true)
	v.SetDefault("server.listen", ":5000")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("collector.enabled", true)
	v.SetDefault("collector.interval", 10*time.Minute)
	v.SetDefault("collector.timeout", 2*time.Minute)
	v.SetDefault("collector.concurrency", 8)
	v.SetDefault("pool.base_url", "https://flexpool.io/api/v1")
	v.SetDefault("pool.timeout", 10*time.Second)
	v.SetDefault("pool.rate", 10.0)
	v.SetDefault("pool.burst", 5)
	v.SetDefault("aggregate.ma_factor", 4)
	v.SetDefault("agent.api_url", "http://localhost:5000")
	v.SetDefault("agent.miner_id", "")
	v.SetDefault("agent.interval", time.Minute)
	v.SetDefault("agent.hashrate_url", "http://127.0.0.1:4067/summary")
}

func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{
		configPath: os.Getenv(DefaultEnvPrefix + "_CONFIG"),
		envPrefix:  DefaultEnvPrefix,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	// Load configuration from file
	if o.configPath != "" {
		v.SetConfigFile(o.configPath)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("toml")
		v.AddConfigPath(DefaultConfigDir)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
		}
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Override config file values with command line flags
	if o.flags != nil {
		if err := bindFlags(v, o.flags); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	level := LogLevel(strings.ToLower(c.LogLevel))
	if level == "warn" {
		level = LogLevelWarning
	}
	if !level.IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.Database.Path == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "database.path must be set")
	}
	if c.Collector.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, struct {
			Key   string
			Value time.Duration
		}{
			Key:   "collector.interval",
			Value: c.Collector.Interval,
		})
	}
	if c.Collector.Timeout <= 0 || c.Collector.Timeout > c.Collector.Interval {
		return errFactory.WithData(errors.ErrInvalidInterval, struct {
			Key   string
			Value time.Duration
		}{
			Key:   "collector.timeout",
			Value: c.Collector.Timeout,
		})
	}
	if c.Collector.Concurrency < 1 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "collector.concurrency must be at least 1")
	}
	if c.Collector.Enabled && c.Pool.BaseURL == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "pool.base_url must be set when the collector is enabled")
	}
	if c.Pool.Rate <= 0 || c.Pool.Burst < 1 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "pool.rate and pool.burst must be positive")
	}
	if c.Aggregate.MAFactor < 1 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "aggregate.ma_factor must be at least 1")
	}
	if c.Agent.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, struct {
			Key   string
			Value time.Duration
		}{
			Key:   "agent.interval",
			Value: c.Agent.Interval,
		})
	}

	return nil
}

// RegisterFlags defines the command line flags understood by Load.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.String("pid-file", "", "Write a PID file and refuse to start twice")
	fs.String("database", "", "Path to the SQLite database")
	fs.String("listen", "", "HTTP listen address")
	fs.Duration("collector-interval", 0, "Interval between pool statistics collections")
	fs.String("pool-url", "", "Base URL of the pool statistics API")
	fs.String("agent-api-url", "", "Base URL of the hashtop API the agent reports to")
	fs.String("agent-miner-id", "", "Miner id the agent reports as")
	fs.Duration("agent-interval", 0, "Interval between agent reports")
	fs.String("agent-hashrate-url", "", "Stats endpoint of the local miner the agent reads hashrates from")
}
