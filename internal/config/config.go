package config

import (
	"fmt"
	"os"
	"time"

	pkgconfig "github.com/afikyefet/sudoku-live/pkg/config"
	"github.com/afikyefet/sudoku-live/pkg/database"
	"github.com/afikyefet/sudoku-live/pkg/jwt"
	"github.com/afikyefet/sudoku-live/pkg/pubsub"
	"github.com/afikyefet/sudoku-live/pkg/storage"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Auth modes for websocket connections.
const (
	AuthModeNone     = "none"
	AuthModeOptional = "optional"
	AuthModeRequired = "required"
)

type Config struct {
	Server    ServerConfig
	Internal  InternalConfig
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Auth      AuthConfig
	Live      LiveConfig
	Chat      ChatConfig
	PubSub    pubsub.Config `mapstructure:"pubsub"`
	Store     StoreConfig
	Kafka     KafkaConfig
	History   HistoryConfig
	Archive   storage.Config
	Database  database.Config
	Metrics   MetricsConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	InstanceID     string   `mapstructure:"instance_id"`
	AllowedOrigins []string `mapstructure:"-"`
}

type InternalConfig struct {
	Port        int
	RequireAuth bool `mapstructure:"require_auth"`
}

type GRPCConfig struct {
	Enabled bool
	Port    int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
}

type AuthConfig struct {
	Mode        string
	DefaultName string     `mapstructure:"default_name"`
	JWT         jwt.Config `mapstructure:",squash"`
}

type LiveConfig struct {
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`
}

type ChatConfig struct {
	MaxLength int `mapstructure:"max_length"`
}

type StoreConfig struct {
	Enabled bool
	Redis   RedisConfig
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type KafkaConfig struct {
	Enabled           bool
	Brokers           string
	LiveTopic         string `mapstructure:"live_topic"`
	InteractionsTopic string `mapstructure:"interactions_topic"`
	GroupID           string `mapstructure:"group_id"`
	Partitions        int
}

type HistoryConfig struct {
	Enabled bool
}

type MetricsConfig struct {
	Enabled bool
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// Load reads ./config/config.yaml (optional) and the environment.
func Load() (*Config, error) {
	return LoadFrom("./config")
}

// LoadFrom is Load with an explicit config directory.
func LoadFrom(configPath string) (*Config, error) {
	v, err := pkgconfig.Load(configPath, "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.instance_id", defaultInstanceID())
	v.SetDefault("server.allowed_origins", pkgconfig.GetEnv("CLIENT_URL", "http://localhost:5173"))
	v.SetDefault("internal.port", 5001)
	v.SetDefault("internal.require_auth", false)
	v.SetDefault("grpc.enabled", true)
	v.SetDefault("grpc.port", 5002)
	v.SetDefault("websocket.ping_interval", "25s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.rate_limit", 20)
	v.SetDefault("websocket.rate_burst", 40)
	v.SetDefault("auth.mode", AuthModeOptional)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.public_key_path", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.default_name", "Spectator")
	v.SetDefault("live.heartbeat_timeout", "15s")
	v.SetDefault("chat.max_length", 500)
	v.SetDefault("pubsub.driver", pubsub.DriverNone)
	v.SetDefault("pubsub.redis.address", "localhost:6379")
	v.SetDefault("pubsub.redis.pool_size", 10)
	v.SetDefault("pubsub.kafka.brokers", "localhost:9092")
	v.SetDefault("pubsub.kafka.partitions", 4)
	v.SetDefault("store.enabled", false)
	v.SetDefault("store.redis.address", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.live_topic", "puzzle-live-events")
	v.SetDefault("kafka.interactions_topic", "puzzle-interactions")
	v.SetDefault("kafka.group_id", "puzzle-live")
	v.SetDefault("kafka.partitions", 3)
	v.SetDefault("history.enabled", false)
	v.SetDefault("archive.driver", storage.DriverNone)
	v.SetDefault("archive.local.base_path", "./data/boards")
	v.SetDefault("archive.s3.region", "us-east-1")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.file_path", "puzzle-live.db")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.instance_id", "INSTANCE_ID")
	v.BindEnv("server.allowed_origins", "CORS_ORIGINS")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("auth.mode", "AUTH_MODE")
	v.BindEnv("pubsub.driver", "PUBSUB_DRIVER")
	v.BindEnv("pubsub.redis.address", "REDIS_ADDRESS")
	v.BindEnv("pubsub.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("store.redis.address", "REDIS_ADDRESS")
	v.BindEnv("store.redis.password", "REDIS_PASSWORD")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("archive.driver", "ARCHIVE_DRIVER")
	v.BindEnv("archive.s3.bucket", "ARCHIVE_BUCKET")
	v.BindEnv("archive.s3.endpoint", "ARCHIVE_ENDPOINT")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Server.AllowedOrigins = pkgconfig.SplitList(v.GetString("server.allowed_origins"))

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 25*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Live.HeartbeatTimeout = parseDuration(v, "live.heartbeat_timeout", 15*time.Second)

	// Every instance needs its own relay consumer group.
	if cfg.PubSub.Kafka.GroupID == "" {
		cfg.PubSub.Kafka.GroupID = "puzzle-relay-" + cfg.Server.InstanceID
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Auth.Mode {
	case AuthModeNone, AuthModeOptional:
	case AuthModeRequired:
		if c.Auth.JWT.Secret == "" && c.Auth.JWT.PublicKeyPath == "" {
			return fmt.Errorf("auth.mode %q needs auth.jwt_secret or auth.public_key_path", c.Auth.Mode)
		}
	default:
		return fmt.Errorf("unknown auth.mode %q", c.Auth.Mode)
	}

	switch c.PubSub.Driver {
	case pubsub.DriverNone, pubsub.DriverRedis, pubsub.DriverKafka:
	default:
		return fmt.Errorf("unknown pubsub.driver %q", c.PubSub.Driver)
	}

	if c.Chat.MaxLength <= 0 {
		return fmt.Errorf("chat.max_length must be positive")
	}
	if c.WebSocket.PingInterval >= c.WebSocket.PongWait {
		return fmt.Errorf("websocket.ping_interval must be shorter than websocket.pong_wait")
	}
	if c.Internal.RequireAuth && c.Auth.JWT.Secret == "" && c.Auth.JWT.PublicKeyPath == "" {
		return fmt.Errorf("internal.require_auth needs auth.jwt_secret or auth.public_key_path")
	}
	return nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}

func defaultInstanceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return uuid.New().String()
}
