package config

import (
	"errors"
	"fmt"
	"time"
)

// Server is the configuration of cmd/api.
type Server struct {
	HTTP      HTTPConfig
	GRPC      GRPCConfig
	TLS       TLSConfig
	Mongo     MongoConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	WebSocket WebSocketConfig
	Presence  PresenceConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Log       LogConfig
}

type HTTPConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// AllowedOrigins is checked on websocket upgrades. Empty allows any.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Addr is the listen address.
func (h HTTPConfig) Addr() string { return fmt.Sprintf("%s:%d", h.Host, h.Port) }

type GRPCConfig struct {
	Host string
	Port int
}

// Addr is the listen address.
func (g GRPCConfig) Addr() string { return fmt.Sprintf("%s:%d", g.Host, g.Port) }

type TLSConfig struct {
	Cert    string
	Key     string
	Require bool
}

type MongoConfig struct {
	URI      string
	Database string
}

// JWTConfig takes either one Secret or a rotating Keys list in
// "kid:secret,kid:secret" form with ActiveKID naming the signing key.
type JWTConfig struct {
	Secret    string
	Keys      string
	ActiveKID string `mapstructure:"active_kid"`
	TTL       time.Duration
}

type RateLimitConfig struct {
	// RPM limits login and register per client and per account.
	RPM   int
	Burst int
	// EventsPerMinute limits live events per connection.
	EventsPerMinute int `mapstructure:"events_per_minute"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type PresenceConfig struct {
	// Backend is "memory" or "redis".
	Backend string
	// Interval between onlineUsers broadcasts.
	Interval time.Duration
}

type RedisConfig struct {
	Address           string
	Password          string
	DB                int
	Prefix            string
	InstanceID        string        `mapstructure:"instance_id"`
	KeyTTL            time.Duration `mapstructure:"key_ttl"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

type StorageConfig struct {
	// Backend is "local" or "s3".
	Backend   string
	LocalPath string `mapstructure:"local_path"`
	// MaxUploadBytes bounds a profile picture.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
	S3             S3Config
}

type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// LoadServer reads server.yaml (or configFile) and the environment.
func LoadServer(configFile string) (*Server, error) {
	v, err := newViper(configFile, "server")
	if err != nil {
		return nil, err
	}

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 5000)
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "15s")
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)
	v.SetDefault("mongo.database", "skillswap")
	v.SetDefault("jwt.ttl", "24h")
	v.SetDefault("rate_limit.rpm", 10)
	v.SetDefault("rate_limit.burst", 3)
	v.SetDefault("rate_limit.events_per_minute", 600)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 64*1024)
	v.SetDefault("websocket.send_buffer", 64)
	v.SetDefault("presence.backend", "memory")
	v.SetDefault("presence.interval", "30s")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.prefix", "skillswap:presence")
	v.SetDefault("redis.key_ttl", "30s")
	v.SetDefault("redis.heartbeat_interval", "10s")
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_path", "./uploads")
	v.SetDefault("storage.max_upload_bytes", 5<<20)
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("log.level", "info")

	bindEnv(v, map[string]string{
		"http.port":                    "PORT",
		"grpc.port":                    "GRPC_PORT",
		"tls.cert":                     "TLS_CERT",
		"tls.key":                      "TLS_KEY",
		"tls.require":                  "REQUIRE_TLS",
		"mongo.uri":                    "MONGODB_URI",
		"mongo.database":               "MONGODB_DATABASE",
		"jwt.secret":                   "JWT_SECRET",
		"jwt.keys":                     "JWT_KEYS",
		"jwt.active_kid":               "JWT_ACTIVE_KID",
		"rate_limit.rpm":               "RATE_LIMIT_RPM",
		"presence.backend":             "PRESENCE_BACKEND",
		"redis.address":                "REDIS_ADDR",
		"redis.password":               "REDIS_PASSWORD",
		"redis.instance_id":            "INSTANCE_ID",
		"storage.backend":              "STORAGE_BACKEND",
		"storage.s3.endpoint":          "S3_ENDPOINT",
		"storage.s3.bucket":            "S3_BUCKET",
		"storage.s3.access_key_id":     "AWS_ACCESS_KEY_ID",
		"storage.s3.secret_access_key": "AWS_SECRET_ACCESS_KEY",
		"log.level":                    "LOG_LEVEL",
	})

	var cfg Server
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode server: %w", err)
	}
	cfg.Presence.Interval = durationOr(cfg.Presence.Interval, 30*time.Second)
	cfg.JWT.TTL = durationOr(cfg.JWT.TTL, 24*time.Hour)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings the server cannot start without.
func (c *Server) Validate() error {
	var errs []error
	if c.Mongo.URI == "" {
		errs = append(errs, errors.New("MONGODB_URI must be set"))
	}
	if c.JWT.Secret == "" && c.JWT.Keys == "" {
		errs = append(errs, errors.New("either JWT_SECRET or JWT_KEYS must be set"))
	}
	if c.JWT.Keys != "" && c.JWT.ActiveKID == "" {
		errs = append(errs, errors.New("JWT_ACTIVE_KID must be set with JWT_KEYS"))
	}
	if c.TLS.Require && (c.TLS.Cert == "" || c.TLS.Key == "") {
		errs = append(errs, errors.New("REQUIRE_TLS is true but TLS_CERT/TLS_KEY are not configured"))
	}
	switch c.Presence.Backend {
	case "memory":
	case "redis":
		if c.Redis.InstanceID == "" {
			errs = append(errs, errors.New("INSTANCE_ID must be set for the redis presence backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown presence backend %q", c.Presence.Backend))
	}
	switch c.Storage.Backend {
	case "local":
	case "s3":
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET must be set for the s3 storage backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
