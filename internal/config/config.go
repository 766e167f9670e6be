package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StorageBackendPostgres = "postgres"
	StorageBackendMemory   = "memory"
	LedgerBackendRedis     = "redis"
)

type Config struct {
	Env        string `yaml:"env" env:"ENV" env-default:"local"`
	HTTPServer `yaml:"http_server"`
	Storage    `yaml:"storage"`
	Postgres   `yaml:"postgres"`
	Redis      `yaml:"redis"`
	RabbitMQ   `yaml:"rabbitmq"`
	S3         `yaml:"s3"`
	Tokens     `yaml:"tokens"`
	Sessions   `yaml:"sessions"`
	Speech     `yaml:"speech"`
	LLM        `yaml:"llm"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	BaseURL     string        `yaml:"base_url" env-default:"http://localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// Storage picks the repository implementations. Both live behind the
// same interfaces; the choice is configuration, not code paths.
type Storage struct {
	Backend string `yaml:"backend" env-default:"postgres"`
	Ledger  string `yaml:"ledger" env-default:"postgres"`
}

type Postgres struct {
	Host     string `yaml:"host" env-default:"postgres"`
	Port     int    `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD"`
	DBName   string `yaml:"dbname" env-default:"voicescribe"`
	SSLMode  string `yaml:"sslmode" env-default:"disable"`
}

func (p Postgres) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

type Redis struct {
	Address  string `yaml:"address" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env-default:"0"`
}

type RabbitMQ struct {
	URL       string `yaml:"url" env:"RABBITMQ_URL"`
	QueueName string `yaml:"queue_name" env-default:"email_events"`
}

type S3 struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region" env-default:"us-east-1"`
	Bucket          string `yaml:"bucket" env-default:"voicescribe-audio"`
	AccessKeyID     string `yaml:"access_key_id" env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"S3_SECRET_ACCESS_KEY"`
}

type Tokens struct {
	Secret                  string        `yaml:"secret" env:"TOKEN_SECRET" env-required:"true"`
	AccessTokenTTL          time.Duration `yaml:"access_token_ttl" env-default:"15m"`
	RefreshTokenTTL         time.Duration `yaml:"refresh_token_ttl" env-default:"168h"`
	VerificationTokenTTL    time.Duration `yaml:"verification_token_ttl" env-default:"24h"`
	VerificationTokenSecret string        `yaml:"verification_token_secret" env:"VERIFICATION_TOKEN_SECRET" env-required:"true"`
}

type Sessions struct {
	// MaxPerUser caps live refresh tokens per user; 0 means unlimited
	// concurrent sessions (multi-device).
	MaxPerUser    int           `yaml:"max_per_user" env-default:"0"`
	SweepInterval time.Duration `yaml:"sweep_interval" env-default:"1h"`
}

type Speech struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key" env:"SPEECH_API_KEY"`
	Model  string `yaml:"model" env-default:"whisper-1"`
}

type LLM struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key" env:"LLM_API_KEY"`
	Model  string `yaml:"model" env-default:"gpt-4o-mini"`
}

func MustLoad(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("failed to read config: " + err.Error())
	}

	return &cfg
}

// SecureCookies reports whether refresh cookies must carry the Secure
// flag. Only local development goes without it.
func (c *Config) SecureCookies() bool {
	return c.Env != "local"
}
