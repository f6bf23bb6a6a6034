package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable the server reads at boot. Values come
// from config.yaml when present, overridden by CONSULT_* environment
// variables.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`
	DBPath     string `mapstructure:"db_path"`

	LedgerURL      string  `mapstructure:"ledger_url"`
	DefaultBalance float64 `mapstructure:"default_balance"`

	AMQPURL      string `mapstructure:"amqp_url"`
	AMQPExchange string `mapstructure:"amqp_exchange"`

	Billing   BillingConfig   `mapstructure:"billing"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Channel   ChannelConfig   `mapstructure:"channel"`
}

type BillingConfig struct {
	MinimumFloorMinutes float64       `mapstructure:"minimum_floor_minutes"`
	TickInterval        time.Duration `mapstructure:"tick_interval"`
}

type QueueConfig struct {
	HoldWindow             time.Duration `mapstructure:"hold_window"`
	DefaultWaitPerPosition time.Duration `mapstructure:"default_wait_per_position"`
}

type LifecycleConfig struct {
	InactivityWarning    time.Duration `mapstructure:"inactivity_warning"`
	InactivityTimeout    time.Duration `mapstructure:"inactivity_timeout"`
	ContinuationInterval time.Duration `mapstructure:"continuation_interval"`
	LowBalanceWarning    time.Duration `mapstructure:"low_balance_warning"`
	LedgerTimeout        time.Duration `mapstructure:"ledger_timeout"`
}

type ChannelConfig struct {
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	ReconnectBackoff  time.Duration `mapstructure:"reconnect_backoff"`
}

// Load reads the configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("db_path", "consult.db")
	v.SetDefault("ledger_url", "")
	v.SetDefault("default_balance", 500.0)
	v.SetDefault("amqp_url", "")
	v.SetDefault("amqp_exchange", "consult.notifications")

	v.SetDefault("billing.minimum_floor_minutes", 5.0)
	v.SetDefault("billing.tick_interval", time.Second)

	v.SetDefault("queue.hold_window", 30*time.Second)
	v.SetDefault("queue.default_wait_per_position", 5*time.Minute)

	v.SetDefault("lifecycle.inactivity_warning", 270*time.Second)
	v.SetDefault("lifecycle.inactivity_timeout", 300*time.Second)
	v.SetDefault("lifecycle.continuation_interval", 5*time.Minute)
	v.SetDefault("lifecycle.low_balance_warning", 60*time.Second)
	v.SetDefault("lifecycle.ledger_timeout", 10*time.Second)

	v.SetDefault("channel.connect_timeout", 10*time.Second)
	v.SetDefault("channel.reconnect_attempts", 5)
	v.SetDefault("channel.reconnect_backoff", time.Second)

	v.SetEnvPrefix("CONSULT")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.consult-engine")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
