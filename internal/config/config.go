package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"emsxbridge.com/internal/constants"
)

type Config struct {
	Session   SessionConfig
	Gateway   GatewayConfig
	Database  DatabaseConfig
	Server    ServerConfig
	Log       LogConfig
	Simulator SimulatorConfig
}

type SessionConfig struct {
	Host              string
	Port              int
	Service           string
	HistoryService    string `mapstructure:"history_service"`
	BrokerSpecService string `mapstructure:"brokerspec_service"`
}

// GatewayConfig selects how commands reach the vendor bridge.
// Transport is one of "memory", "redis" or "websocket".
type GatewayConfig struct {
	Transport           string
	Redis               RedisConfig
	CommandQueue        string        `mapstructure:"command_queue"`
	EventQueue          string        `mapstructure:"event_queue"`
	SubscriptionChannel string        `mapstructure:"subscription_channel"`
	WebsocketURL        string        `mapstructure:"websocket_url"`
	ReadTimeout         time.Duration `mapstructure:"read_timeout"`
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	Driver      string
	Path        string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	TimeZone    string
	TablePrefix string `mapstructure:"table_prefix"`
}

type ServerConfig struct {
	Port           string
	AppName        string        `mapstructure:"app_name"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	EventBuffer    int           `mapstructure:"event_buffer"`
}

type LogConfig struct {
	Level  string
	Format string
}

type SimulatorConfig struct {
	Listen            string
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("session.host", "localhost")
	v.SetDefault("session.port", 8194)
	v.SetDefault("session.service", "//blp/emapisvc_beta")
	v.SetDefault("session.history_service", "//blp/emsx.history.uat")
	v.SetDefault("session.brokerspec_service", "//blp/emsx.brokerspec")

	v.SetDefault("gateway.transport", "memory")
	v.SetDefault("gateway.redis.addr", "localhost:6379")
	v.SetDefault("gateway.command_queue", constants.RedisQueueCommand)
	v.SetDefault("gateway.event_queue", constants.RedisQueueEvent)
	v.SetDefault("gateway.subscription_channel", constants.RedisPubSubSubscriptionPrefix)
	v.SetDefault("gateway.websocket_url", "ws://localhost:8195/ws")
	v.SetDefault("gateway.read_timeout", 15*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "emsx.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.timezone", "UTC")

	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.app_name", "emsx-blotter")
	v.SetDefault("server.request_timeout", 10*time.Second)
	v.SetDefault("server.event_buffer", 4096)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("simulator.listen", ":8195")
	v.SetDefault("simulator.heartbeat_interval", time.Second)
}

// LoadConfig reads config.yaml from the given directories (default "." and
// "./config"), then applies environment overrides such as SESSION_HOST.
// A missing config file is not an error.
func LoadConfig(paths ...string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	return &cfg, nil
}
