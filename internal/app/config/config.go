package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type GatewayConfig struct {
	BaseURL string        `yaml:"base_url" env:"CART_API_BASE_URL" env-required:"true"`
	Timeout time.Duration `yaml:"timeout" env:"CART_API_TIMEOUT" env-default:"10s"`
}

type SessionConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
}

// LocalStoreConfig selects the guest-cart backend: "redis", "mongo" or
// "file".
type LocalStoreConfig struct {
	Backend string        `yaml:"backend" env:"LOCAL_STORE_BACKEND" env-default:"redis"`
	Dir     string        `yaml:"dir" env:"LOCAL_STORE_DIR" env-default:"guest-carts"`
	TTL     time.Duration `yaml:"ttl" env:"GUEST_CART_TTL" env-default:"24h"`
}

type AuthEventsConfig struct {
	Enabled       bool   `yaml:"enabled" env:"AUTH_EVENTS_ENABLED" env-default:"true"`
	LoginSubject  string `yaml:"login_subject" env:"AUTH_LOGIN_SUBJECT" env-default:"auth.user.login"`
	LogoutSubject string `yaml:"logout_subject" env:"AUTH_LOGOUT_SUBJECT" env-default:"auth.user.logout"`
}

type MetricsConfig struct {
	Port string `yaml:"port" env:"METRICS_PORT"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type MongoDBConfig struct {
	URI      string `yaml:"uri" env:"MONGO_URI" env-default:"mongodb://localhost:27017"`
	User     string `yaml:"user" env:"MONGO_USER"`
	Password string `yaml:"password" env:"MONGO_PASSWORD"`
	Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"cart_service_db"`
}

type NATSConfig struct {
	URL string `yaml:"url" env:"NATS_URL" env-default:"nats://localhost:4222"`
}

type LoggerConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Encoding   string `yaml:"encoding" env:"LOG_ENCODING" env-default:"json"`
	TimeFormat string `yaml:"time_format" env:"LOG_TIME_FORMAT" env-default:"2006-01-02T15:04:05.000Z07:00"`
}

type Config struct {
	Env        string           `yaml:"env" env:"ENV" env-default:"local"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Session    SessionConfig    `yaml:"session"`
	LocalStore LocalStoreConfig `yaml:"local_store"`
	AuthEvents AuthEventsConfig `yaml:"auth_events"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Redis      RedisConfig      `yaml:"redis"`
	MongoDB    MongoDBConfig    `yaml:"mongo"`
	NATS       NATSConfig       `yaml:"nats"`
	Logger     LoggerConfig     `yaml:"logger"`
}

func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path == "" {
		err := cleanenv.ReadEnv(&cfg)
		if err != nil {
			return nil, err
		}
		return &cfg, nil
	}

	err := cleanenv.ReadConfig(path, &cfg)
	if err != nil {
		if _, ok := err.(*os.PathError); ok && path != "" {
			log.Printf("Warning: Config file not found at %s, attempting to load from environment variables only.", path)
			errEnv := cleanenv.ReadEnv(&cfg)
			if errEnv != nil {
				return nil, errEnv
			}
			return &cfg, nil
		}
		return nil, err
	}
	return &cfg, nil
}

func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH_CART_SERVICE")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}
	return cfg
}
