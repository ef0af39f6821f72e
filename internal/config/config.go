package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const defaultPath = "config/local.yaml"

type Config struct {
	Env             string      `yaml:"env" env:"ENV" env-default:"local"`
	StoragePath     string      `yaml:"storage_path" env:"STORAGE_PATH" env-required:"true"`
	StorageAttempts uint64      `yaml:"storage_attempts" env:"STORAGE_ATTEMPTS" env-default:"5"`
	HTTP            HTTPConfig  `yaml:"http"`
	Auth            AuthConfig  `yaml:"auth"`
	Live            LiveConfig  `yaml:"live"`
	Kafka           KafkaConfig `yaml:"kafka"`
}

type HTTPConfig struct {
	Port           int      `yaml:"port" env:"HTTP_PORT" env-default:"3000"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS" env-separator:","`
}

type AuthConfig struct {
	Secret     string        `yaml:"secret" env:"AUTH_SECRET" env-required:"true"`
	SessionTTL time.Duration `yaml:"session_ttl" env:"AUTH_SESSION_TTL" env-default:"24h"`
}

type LiveConfig struct {
	SendBuffer   int           `yaml:"send_buffer" env:"LIVE_SEND_BUFFER" env-default:"16"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"LIVE_WRITE_TIMEOUT" env-default:"10s"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"poll-events"`
}

// Load reads the config file at path, letting environment variables override it.
func Load(path string) (*Config, error) {
	var config Config
	if err := cleanenv.ReadConfig(path, &config); err != nil {
		return nil, fmt.Errorf("cannot read config %q: %w", path, err)
	}
	return &config, nil
}

// MustLoad resolves the path from -config, CONFIG_PATH or the default and
// exits when the config cannot be read. A .env file next to the binary is
// loaded first when present.
func MustLoad() *Config {
	_ = godotenv.Load()

	config, err := Load(fetchPath())
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return config
}

func fetchPath() string {
	var path string
	flag.StringVar(&path, "config", "", "path to config file")
	flag.Parse()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = defaultPath
	}
	return path
}
