package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Services ServicesConfig `yaml:"services"`
	Booking  BookingConfig  `yaml:"booking"`
	Worker   WorkerConfig   `yaml:"worker"`
}

type HTTPConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type ServicesConfig struct {
	FlightServiceURL string `yaml:"flight_service_url"`
	UserServiceURL   string `yaml:"user_service_url"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
}

type BookingConfig struct {
	PaymentWindowMinutes int `yaml:"payment_window_minutes"`
	IdempotencyTTLHours  int `yaml:"idempotency_ttl_hours"`
}

type WorkerConfig struct {
	ExpirationSweepMinutes int `yaml:"expiration_sweep_minutes"`
	RecoverySweepMinutes   int `yaml:"recovery_sweep_minutes"`
	IntentGraceSeconds     int `yaml:"intent_grace_seconds"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Booking.PaymentWindowMinutes == 0 {
		cfg.Booking.PaymentWindowMinutes = 60
	}
	if cfg.Booking.IdempotencyTTLHours == 0 {
		cfg.Booking.IdempotencyTTLHours = 24
	}
	if cfg.Worker.ExpirationSweepMinutes == 0 {
		cfg.Worker.ExpirationSweepMinutes = 5
	}
	if cfg.Worker.RecoverySweepMinutes == 0 {
		cfg.Worker.RecoverySweepMinutes = 1
	}
	if cfg.Worker.IntentGraceSeconds == 0 {
		cfg.Worker.IntentGraceSeconds = 120
	}

	return &cfg, nil
}
