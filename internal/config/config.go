package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Engine   EngineConfig   `yaml:"engine"`
	AI       AIConfig       `yaml:"ai"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration for the job
// history archive
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange configuration for
// the notification publisher
type RabbitMQConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	VHost           string        `yaml:"vhost"`
	Exchange        string        `yaml:"exchange"`
	ExchangeDurable bool          `yaml:"exchange_durable"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryInterval   time.Duration `yaml:"retry_interval"`
	Heartbeat       time.Duration `yaml:"heartbeat"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// EngineConfig holds the AI job engine tunables
type EngineConfig struct {
	MinWorkers        int           `yaml:"min_workers"`
	MaxWorkers        int           `yaml:"max_workers"`
	TickInterval      time.Duration `yaml:"tick_interval"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	InferenceTimeout  time.Duration `yaml:"inference_timeout"`
	MaxAttempts       int           `yaml:"max_attempts"`
	BackoffBase       time.Duration `yaml:"backoff_base"`
	BackoffCap        time.Duration `yaml:"backoff_cap"`
	RegistryCapacity  int           `yaml:"registry_capacity"`
	RegistryMaxAge    time.Duration `yaml:"registry_max_age"`
	WorkerGracePeriod time.Duration `yaml:"worker_grace_period"`
	WorkerMaxJobs     int           `yaml:"worker_max_jobs"`
	WorkerIdleTimeout time.Duration `yaml:"worker_idle_timeout"`
}

// AIConfig holds the inference upstream configuration
type AIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.AI.BaseURL == "" {
		return fmt.Errorf("ai base_url is required")
	}

	return c.validateEngine()
}

// validateEngine checks the engine tunables
func (c *Config) validateEngine() error {
	if c.Engine.MinWorkers <= 0 {
		return fmt.Errorf("engine min_workers must be greater than 0")
	}

	if c.Engine.MaxWorkers < c.Engine.MinWorkers {
		return fmt.Errorf("engine max_workers (%d) must be >= min_workers (%d)", c.Engine.MaxWorkers, c.Engine.MinWorkers)
	}

	if c.Engine.TickInterval <= 0 {
		return fmt.Errorf("engine tick_interval must be greater than 0")
	}

	if c.Engine.MaxAttempts <= 0 {
		return fmt.Errorf("engine max_attempts must be greater than 0")
	}

	if c.Engine.BackoffCap > 0 && c.Engine.BackoffBase > c.Engine.BackoffCap {
		return fmt.Errorf("engine backoff_base must not exceed backoff_cap")
	}

	return nil
}
