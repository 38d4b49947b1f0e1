package config

import (
	"log"

	"github.com/spf13/viper"
)

type IngestConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type ReportConfig struct {
	WorkerCount     int    `mapstructure:"worker_count"`
	DefaultTimezone string `mapstructure:"default_timezone"`
}

type Config struct {
	DatabaseURL string       `mapstructure:"database_url"`
	ServerPort  string       `mapstructure:"server_port"`
	Ingest      IngestConfig `mapstructure:"ingest"`
	Report      ReportConfig `mapstructure:"report"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}
	if config.DatabaseURL == "" {
		log.Fatal("database_url must be set in the config file")
	}
	if config.Report.WorkerCount <= 0 {
		config.Report.WorkerCount = 8
	}
	if config.Report.DefaultTimezone == "" {
		config.Report.DefaultTimezone = "America/Chicago"
	}
	if config.Ingest.DataDir == "" {
		config.Ingest.DataDir = "data"
	}

	return &config
}
