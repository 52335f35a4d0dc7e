package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port          int    `yaml:"port"`
	StaticDir     string `yaml:"static_dir"`
	MaxUploadMB   int    `yaml:"max_upload_mb"`
	PacketBatch   int    `yaml:"packet_batch"`
	ClientBacklog int    `yaml:"client_backlog"`
}

// ParserConfig tunes each parse.
type ParserConfig struct {
	Timing          bool `yaml:"timing"`
	MaxStreamBuffer int  `yaml:"max_stream_buffer"`
}

// NATSConfig enables publishing packet summaries to NATS.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// ClickHouseConfig enables writing packet summaries to ClickHouse.
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ExportConfig groups the result sinks.
type ExportConfig struct {
	NATS       NATSConfig       `yaml:"nats"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Parser ParserConfig `yaml:"parser"`
	Export ExportConfig `yaml:"export"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          8080,
			StaticDir:     "web",
			MaxUploadMB:   256,
			PacketBatch:   200,
			ClientBacklog: 4096,
		},
		Parser: ParserConfig{
			Timing:          true,
			MaxStreamBuffer: 256 * 1024,
		},
		Export: ExportConfig{
			NATS: NATSConfig{
				URL:     "nats://127.0.0.1:4222",
				Subject: "pcapscope.packets",
			},
			ClickHouse: ClickHouseConfig{
				Host:     "127.0.0.1",
				Port:     9000,
				Database: "default",
				Username: "default",
			},
		},
	}
}

// LoadConfig reads the configuration from a YAML file on top of the
// defaults. Keys missing from the file keep their default values.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max_upload_mb %d", c.Server.MaxUploadMB)
	}
	if c.Export.NATS.Enabled && c.Export.NATS.Subject == "" {
		return fmt.Errorf("nats export needs a subject")
	}
	return nil
}
