package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingAPIKey is returned when no backend credential is configured.
var ErrMissingAPIKey = errors.New("missing LLM API key: set OPENAI_API_KEY")

// Config holds the application configuration
type Config struct {
	LLM       LLMConfig
	Server    ServerConfig
	Log       LogConfig
	Documents DocumentsConfig
}

// LLMConfig holds the LLM configuration
type LLMConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DocumentsConfig locates the SQLite document catalogue.
type DocumentsConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// Load reads config.yaml (or the file named by CONFIG_PATH), then environment
// variables prefixed with CRYPTOSEC_. The API key also binds to OPENAI_API_KEY.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("cryptosec")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("llm.api_key", "CRYPTOSEC_LLM_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if strings.TrimSpace(config.LLM.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("documents.db_path", "documents.db")
}
