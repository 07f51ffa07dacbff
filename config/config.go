package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Game    GameConfig    `mapstructure:"game"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig is the HTTP listener.
type ServerConfig struct {
	HTTPAddress string `mapstructure:"http_address"`
}

// RedisConfig selects the snapshot store. An empty Address keeps snapshots in memory.
type RedisConfig struct {
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
	Lock     bool          `mapstructure:"lock"`
}

// ArchiveConfig enables the Postgres archive when PostgresDSN is set.
type ArchiveConfig struct {
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// GameConfig holds the defaults for new games.
type GameConfig struct {
	Mode              string        `mapstructure:"mode"`
	DefinitionFile    string        `mapstructure:"definition_file"`
	DayMinTurns       int           `mapstructure:"day_min_turns"`
	DayMaxTurns       int           `mapstructure:"day_max_turns"`
	BeliefConcurrency int           `mapstructure:"belief_concurrency"`
	StepInterval      time.Duration `mapstructure:"step_interval"`
	MaxSteps          int           `mapstructure:"max_steps"`
}

// LogConfig selects the zap level and encoding.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "onenight:session:")
	v.SetDefault("redis.ttl", 24*time.Hour)
	v.SetDefault("redis.lock", false)
	v.SetDefault("archive.postgres_dsn", "")
	v.SetDefault("game.mode", "classic")
	v.SetDefault("game.definition_file", "")
	v.SetDefault("game.day_min_turns", 0)
	v.SetDefault("game.day_max_turns", 0)
	v.SetDefault("game.belief_concurrency", 4)
	v.SetDefault("game.step_interval", time.Duration(0))
	v.SetDefault("game.max_steps", 200)
	v.SetDefault("log.level", "info")
}

// LoadConfig reads config.yaml from path (if present), then the environment.
// Environment keys use the ONENIGHT_ prefix, e.g. ONENIGHT_REDIS_ADDRESS.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("onenight")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
