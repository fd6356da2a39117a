package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Server   ServerConfig
	Metrics  MetricsConfig
	Database DatabaseConfig
	RabbitMQ RabbitMQConfig
	Topology TopologyConfig
	Security SecurityConfig
	DLQ      DLQConfig
}

type ServerConfig struct {
	Port string
	Host string
}

type MetricsConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RabbitMQConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	VHost    string
}

// TopologyConfig describes the exchange/queue graph shared by the
// publisher, the listener and the dead-letter consumer.
type TopologyConfig struct {
	RequestsExchange     string
	DeadLetterExchange   string
	WorkQueue            string
	DeadLetterQueue      string
	RoutingKeyPattern    string
	DeadLetterRoutingKey string
	PrefetchCount        int
}

type SecurityConfig struct {
	// SigningKey is the shared HMAC secret. It may legitimately be absent
	// at startup; the listener treats that as a deployment fault rather
	// than a reason to crash-loop.
	SigningKey string
}

type DLQConfig struct {
	OutputDirectory string
}

func Load() (*Config, error) {
	var missing []string

	get := func(key string) string {
		val := os.Getenv(key)
		if val == "" {
			missing = append(missing, key)
		}
		return val
	}

	getDefault := func(key, fallback string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		return fallback
	}

	prefetch, err := strconv.Atoi(getDefault("RABBITMQ_PREFETCH_COUNT", "10"))
	if err != nil || prefetch < 1 {
		return nil, fmt.Errorf("invalid RABBITMQ_PREFETCH_COUNT: %q", os.Getenv("RABBITMQ_PREFETCH_COUNT"))
	}

	config := &Config{
		Server: ServerConfig{
			Port: getDefault("SERVER_PORT", "8080"),
			Host: getDefault("SERVER_HOST", "0.0.0.0"),
		},
		Metrics: MetricsConfig{
			Port: getDefault("METRICS_PORT", "9090"),
		},
		Database: DatabaseConfig{
			Host:     get("DB_HOST"),
			Port:     get("DB_PORT"),
			User:     get("DB_USER"),
			Password: get("DB_PASSWORD"),
			DBName:   get("DB_NAME"),
			SSLMode:  getDefault("DB_SSLMODE", "disable"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      os.Getenv("RABBITMQ_URL"),
			Host:     get("RABBITMQ_HOST"),
			Port:     get("RABBITMQ_PORT"),
			User:     get("RABBITMQ_USER"),
			Password: get("RABBITMQ_PASSWORD"),
			VHost:    getDefault("RABBITMQ_VHOST", "/"),
		},
		Topology: TopologyConfig{
			RequestsExchange:     getDefault("RABBITMQ_REQUESTS_EXCHANGE", "cms.requests"),
			DeadLetterExchange:   getDefault("RABBITMQ_DEAD_LETTER_EXCHANGE", "cms.dlx"),
			WorkQueue:            getDefault("RABBITMQ_WORK_QUEUE", "cms.requests.processor"),
			DeadLetterQueue:      getDefault("RABBITMQ_DEAD_LETTER_QUEUE", "cms.dlq"),
			RoutingKeyPattern:    getDefault("RABBITMQ_ROUTING_KEY_PATTERN", "page.*.request"),
			DeadLetterRoutingKey: getDefault("RABBITMQ_DEAD_LETTER_ROUTING_KEY", "dlq"),
			PrefetchCount:        prefetch,
		},
		Security: SecurityConfig{
			SigningKey: os.Getenv("EVENT_SIGNING_KEY"),
		},
		DLQ: DLQConfig{
			OutputDirectory: getDefault("DLQ_OUTPUT_DIRECTORY", "dlq-messages"),
		},
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return config, nil
}

// ConnectionString returns a DSN string for GORM
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.Host, c.User, c.Password, c.DBName, c.Port, c.SSLMode)
}

// MigrationURL returns a DSN string for golang-migrate
func (c *DatabaseConfig) MigrationURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

func (c *RabbitMQConfig) ConnectionURL() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s%s",
		c.User, c.Password, c.Host, c.Port, c.VHost)
}
