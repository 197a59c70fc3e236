package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				// Verify some key fields are populated
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "mailmind", cfg.Database.Database)
				assert.Equal(t, "job_events", cfg.RabbitMQ.Exchange)
				assert.Equal(t, "mailmind-ai-service", cfg.App.Name)
				assert.Equal(t, 2, cfg.Engine.MinWorkers)
				assert.Equal(t, 10, cfg.Engine.MaxWorkers)
				assert.Equal(t, time.Second, cfg.Engine.TickInterval)
				assert.Equal(t, 30*time.Second, cfg.Engine.BackoffCap)
				assert.Equal(t, "http://localhost:9090", cfg.AI.BaseURL)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 8080},
			Database: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "mailmind",
			},
			RabbitMQ: RabbitMQConfig{
				Host:     "localhost",
				Port:     5672,
				Exchange: "job_events",
			},
			AI: AIConfig{BaseURL: "http://localhost:9090"},
			Engine: EngineConfig{
				MinWorkers:   2,
				MaxWorkers:   10,
				TickInterval: time.Second,
				MaxAttempts:  3,
				BackoffBase:  time.Second,
				BackoffCap:   30 * time.Second,
			},
		}
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:      "invalid server port",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "missing database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "missing database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name:      "missing rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name:      "missing exchange",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange = "" },
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "missing ai base url",
			mutate:    func(c *Config) { c.AI.BaseURL = "" },
			wantErr:   true,
			errString: "ai base_url is required",
		},
		{
			name:      "zero min workers",
			mutate:    func(c *Config) { c.Engine.MinWorkers = 0 },
			wantErr:   true,
			errString: "min_workers must be greater than 0",
		},
		{
			name:      "max workers below min",
			mutate:    func(c *Config) { c.Engine.MaxWorkers = 1 },
			wantErr:   true,
			errString: "max_workers",
		},
		{
			name:      "zero tick interval",
			mutate:    func(c *Config) { c.Engine.TickInterval = 0 },
			wantErr:   true,
			errString: "tick_interval must be greater than 0",
		},
		{
			name:      "backoff base above cap",
			mutate:    func(c *Config) { c.Engine.BackoffBase = time.Minute },
			wantErr:   true,
			errString: "backoff_base must not exceed backoff_cap",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
