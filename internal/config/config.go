package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	KafkaBrokers    string `env:"KAFKA_BROKERS,required=true"`
	DatabaseDSN     string `env:"DATABASE_DSN,required=true"`
	RedisURL        string `env:"REDIS_URL,required=true"`
	UsersServiceURL string `env:"USERS_SERVICE_URL,required=true"`
	MailerURL       string `env:"MAILER_URL,required=true"`
	SenderEmail     string `env:"SENDER_EMAIL,required=true"`
	TrackingBaseURL string `env:"TRACKING_BASE_URL,required=true"`

	MailRateLimitPerSec int `env:"MAIL_RATE_LIMIT_PER_SEC,default=50"`

	HighSessionTimeoutMS    int `env:"HIGH_PRIORITY_SESSION_TIMEOUT_MS,default=30000"`
	HighHeartbeatIntervalMS int `env:"HIGH_PRIORITY_HEARTBEAT_MS,default=3000"`
	StdSessionTimeoutMS     int `env:"STANDARD_PRIORITY_SESSION_TIMEOUT_MS,default=45000"`
	StdHeartbeatIntervalMS  int `env:"STANDARD_PRIORITY_HEARTBEAT_MS,default=5000"`
	PromoIntervalSec        int `env:"PROMO_INTERVAL_SEC,default=300"`
	PromoSampleSize         int `env:"PROMO_SAMPLE_SIZE,default=10"`
	FlushIntervalSec        int `env:"FLUSH_INTERVAL_SEC,default=300"`
	FlushScanLimit          int `env:"FLUSH_SCAN_LIMIT,default=10"`
	FlushConcurrency        int `env:"FLUSH_CONCURRENCY,default=5"`
	DirectoryTimeoutSec     int `env:"DIRECTORY_TIMEOUT_SEC,default=5"`
	MailerTimeoutSec        int `env:"MAILER_TIMEOUT_SEC,default=10"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Brokers splits the comma-separated KAFKA_BROKERS list.
func (c *Config) Brokers() []string {
	parts := strings.Split(c.KafkaBrokers, ",")
	brokers := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}

func (c *Config) HighSessionTimeout() time.Duration {
	return time.Duration(c.HighSessionTimeoutMS) * time.Millisecond
}

func (c *Config) HighHeartbeatInterval() time.Duration {
	return time.Duration(c.HighHeartbeatIntervalMS) * time.Millisecond
}

func (c *Config) StdSessionTimeout() time.Duration {
	return time.Duration(c.StdSessionTimeoutMS) * time.Millisecond
}

func (c *Config) StdHeartbeatInterval() time.Duration {
	return time.Duration(c.StdHeartbeatIntervalMS) * time.Millisecond
}

func (c *Config) PromoInterval() time.Duration {
	return time.Duration(c.PromoIntervalSec) * time.Second
}

func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSec) * time.Second
}

func (c *Config) DirectoryTimeout() time.Duration {
	return time.Duration(c.DirectoryTimeoutSec) * time.Second
}

func (c *Config) MailerTimeout() time.Duration {
	return time.Duration(c.MailerTimeoutSec) * time.Second
}
