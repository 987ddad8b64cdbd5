// Package config loads server configuration from a YAML file, SKIRMISH_*
// environment variables and built-in defaults, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/thraizz/skirmish-server-go/internal/game"
	"github.com/thraizz/skirmish-server-go/internal/game/entity"
)

// Config is the root configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Game        GameConfig        `mapstructure:"game"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Replay      ReplayConfig      `mapstructure:"replay"`
}

type ServerConfig struct {
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	// ShutdownTimeout bounds graceful stop of both listeners.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type GRPCConfig struct {
	Address              string `mapstructure:"address"`
	MaxConcurrentStreams int    `mapstructure:"max_concurrent_streams"`
}

type WebSocketConfig struct {
	Address         string   `mapstructure:"address"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	ReadBufferSize  int      `mapstructure:"read_buffer_size"`
	WriteBufferSize int      `mapstructure:"write_buffer_size"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig configures the Postgres pool. An empty URL runs the server
// without persistence.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

// GameConfig holds the match rules exposed to operators.
type GameConfig struct {
	StartingEnergy           int `mapstructure:"starting_energy"`
	MaxEnergy                int `mapstructure:"max_energy"`
	ActionsPerTurn           int `mapstructure:"actions_per_turn"`
	BaseMaxHealth            int `mapstructure:"base_max_health"`
	BaseDefense              int `mapstructure:"base_defense"`
	NodeMaxValue             int `mapstructure:"node_max_value"`
	NodeInitialValue         int `mapstructure:"node_initial_value"`
	RegenerationRate         int `mapstructure:"regeneration_rate"`
	StartingWorkers          int `mapstructure:"starting_workers"`
	MaxTurns                 int `mapstructure:"max_turns"`
	ResourceVictoryThreshold int `mapstructure:"resource_victory_threshold"`
}

type PersistenceConfig struct {
	FlushTimeout time.Duration `mapstructure:"flush_timeout"`
}

type ReplayConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc.address", ":50051")
	v.SetDefault("server.grpc.max_concurrent_streams", 100)
	v.SetDefault("server.websocket.address", ":8080")
	v.SetDefault("server.websocket.allowed_origins", []string{})
	v.SetDefault("server.websocket.read_buffer_size", 1024)
	v.SetDefault("server.websocket.write_buffer_size", 1024)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("database.migrate_on_start", true)

	def := entity.DefaultFactoryConfig()
	v.SetDefault("game.starting_energy", def.StartingEnergy)
	v.SetDefault("game.max_energy", def.MaxEnergy)
	v.SetDefault("game.actions_per_turn", def.ActionsPerTurn)
	v.SetDefault("game.base_max_health", def.BaseMaxHealth)
	v.SetDefault("game.base_defense", def.BaseDefense)
	v.SetDefault("game.node_max_value", def.NodeMaxValue)
	v.SetDefault("game.node_initial_value", 0)
	v.SetDefault("game.regeneration_rate", def.RegenerationRate)
	v.SetDefault("game.starting_workers", 1)
	v.SetDefault("game.max_turns", 0)
	v.SetDefault("game.resource_victory_threshold", 0)

	v.SetDefault("persistence.flush_timeout", 5*time.Second)

	v.SetDefault("replay.enabled", false)
	v.SetDefault("replay.directory", "replays")
}

// Load reads configuration from path. A missing file is not an error; the
// defaults and environment still apply. An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SKIRMISH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	var errs []error
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not json or console", c.Logging.Format))
	}
	if c.Game.ActionsPerTurn < 1 {
		errs = append(errs, fmt.Errorf("game.actions_per_turn must be positive"))
	}
	if c.Game.StartingEnergy < 0 || c.Game.StartingEnergy > c.Game.MaxEnergy {
		errs = append(errs, fmt.Errorf("game.starting_energy must be within [0, game.max_energy]"))
	}
	if c.Game.BaseMaxHealth < 1 || c.Game.NodeMaxValue < 1 {
		errs = append(errs, fmt.Errorf("game.base_max_health and game.node_max_value must be positive"))
	}
	if c.Game.StartingWorkers < 0 || c.Game.StartingWorkers > 8 {
		errs = append(errs, fmt.Errorf("game.starting_workers must be within [0, 8]"))
	}
	if c.Game.MaxTurns < 0 || c.Game.ResourceVictoryThreshold < 0 {
		errs = append(errs, fmt.Errorf("game.max_turns and game.resource_victory_threshold must not be negative"))
	}
	if c.Replay.Enabled && c.Replay.Directory == "" {
		errs = append(errs, fmt.Errorf("replay.directory is required when replay.enabled is set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// MatchConfig converts the game section into the engine's match configuration.
// The board layout always comes from game.DefaultConfig.
func (c *Config) MatchConfig() game.Config {
	cfg := game.DefaultConfig()
	cfg.Factory = entity.FactoryConfig{
		StartingEnergy:   c.Game.StartingEnergy,
		MaxEnergy:        c.Game.MaxEnergy,
		ActionsPerTurn:   c.Game.ActionsPerTurn,
		BaseMaxHealth:    c.Game.BaseMaxHealth,
		BaseDefense:      c.Game.BaseDefense,
		NodeMaxValue:     c.Game.NodeMaxValue,
		RegenerationRate: c.Game.RegenerationRate,
	}
	cfg.NodeInitialValue = c.Game.NodeInitialValue
	cfg.StartingWorkers = c.Game.StartingWorkers
	cfg.MaxTurns = c.Game.MaxTurns
	cfg.ResourceVictoryThreshold = c.Game.ResourceVictoryThreshold
	return cfg
}
