// Package config loads and validates the engine's runtime
// configuration from a YAML file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Journal JournalConfig `mapstructure:"journal"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Server  ServerConfig  `mapstructure:"server"`
	Sim     SimConfig     `mapstructure:"sim"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name      string `mapstructure:"name"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // "json" or "console"
}

// EngineConfig lists the instruments the engine trades.
type EngineConfig struct {
	Instruments []InstrumentConfig `mapstructure:"instruments"`
}

// InstrumentConfig describes one tradable instrument. Tick and lot
// sizes are decimal strings so the grid survives YAML float parsing.
type InstrumentConfig struct {
	Symbol   string `mapstructure:"symbol"`
	TickSize string `mapstructure:"tick_size"`
	LotSize  string `mapstructure:"lot_size"`
}

// JournalConfig contains trade journal settings.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// KafkaConfig contains market-data publishing settings.
type KafkaConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Brokers       []string      `mapstructure:"brokers"`
	TradeTopic    string        `mapstructure:"trade_topic"`
	DepthTopic    string        `mapstructure:"depth_topic"`
	TradeInterval time.Duration `mapstructure:"trade_interval"`
	DepthInterval time.Duration `mapstructure:"depth_interval"`
	DepthLevels   int           `mapstructure:"depth_levels"`
}

// ServerConfig contains the HTTP listener settings. One listener
// serves both the websocket feed and the metrics endpoint.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// SimConfig controls the built-in market-maker simulation.
type SimConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Random    bool          `mapstructure:"random"`
	BasePrice string        `mapstructure:"base_price"` // ladder midpoint before the first trade
	Levels    int           `mapstructure:"levels"`
	Size      int64         `mapstructure:"size"` // quote size in lots
	Interval  time.Duration `mapstructure:"interval"`
	Seed      int64         `mapstructure:"seed"`
}

// Load reads configuration from the given file (or the defaults when
// path is empty), applies MATCHBOOK_* environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("MATCHBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// No file found: defaults plus environment.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for inconsistencies before the
// engine starts.
func (c *Config) Validate() error {
	if len(c.Engine.Instruments) == 0 {
		return fmt.Errorf("config: at least one instrument is required")
	}
	seen := make(map[string]bool, len(c.Engine.Instruments))
	for _, ins := range c.Engine.Instruments {
		if ins.Symbol == "" {
			return fmt.Errorf("config: instrument with empty symbol")
		}
		if seen[ins.Symbol] {
			return fmt.Errorf("config: duplicate instrument %q", ins.Symbol)
		}
		seen[ins.Symbol] = true
		if ins.TickSize == "" || ins.LotSize == "" {
			return fmt.Errorf("config: instrument %q needs tick_size and lot_size", ins.Symbol)
		}
	}
	if c.Journal.Enabled && c.Journal.Dir == "" {
		return fmt.Errorf("config: journal enabled but journal.dir is empty")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka enabled but no brokers listed")
		}
		if c.Kafka.TradeTopic == "" || c.Kafka.DepthTopic == "" {
			return fmt.Errorf("config: kafka enabled but topics are empty")
		}
	}
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("config: server.listen_addr is empty")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "matchbook")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.dir", "data/journal")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.trade_topic", "matchbook.trades")
	v.SetDefault("kafka.depth_topic", "matchbook.depth")
	v.SetDefault("kafka.trade_interval", time.Second)
	v.SetDefault("kafka.depth_interval", time.Second)
	v.SetDefault("kafka.depth_levels", 10)
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("sim.enabled", false)
	v.SetDefault("sim.random", false)
	v.SetDefault("sim.base_price", "100")
	v.SetDefault("sim.levels", 5)
	v.SetDefault("sim.size", 100)
	v.SetDefault("sim.interval", 500*time.Millisecond)
}
