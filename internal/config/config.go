package config

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr        string
	PostgresDSN     string
	RedisAddr       string
	KafkaBrokers    []string
	JWTSecret       string
	ChainNetwork    string
	ContractAddress string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	cfg := &Config{
		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		PostgresDSN:     os.Getenv("POSTGRES_DSN"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		KafkaBrokers:    []string{os.Getenv("KAFKA_BROKER")},
		JWTSecret:       os.Getenv("JWT_SECRET"),
		ChainNetwork:    os.Getenv("CHAIN_NETWORK"),
		ContractAddress: os.Getenv("CONTRACT_ADDRESS"),
	}

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.PostgresDSN == "" {
		cfg.PostgresDSN = "host=localhost user=postgres password=postgres dbname=corneadesci sslmode=disable"
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if len(cfg.KafkaBrokers) == 1 && cfg.KafkaBrokers[0] == "" {
		cfg.KafkaBrokers = []string{"localhost:9092"}
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "supersecret"
	}
	if cfg.ChainNetwork == "" {
		cfg.ChainNetwork = "localhost"
	}
	if cfg.ContractAddress == "" {
		cfg.ContractAddress = "0x0000000000000000000000000000000000000000"
	}

	slog.Info("config loaded", "http_addr", cfg.HTTPAddr, "redis_addr", cfg.RedisAddr, "kafka_brokers", cfg.KafkaBrokers, "chain_network", cfg.ChainNetwork)
	return cfg
}
