// Package config provides file and environment configuration for the chat shell.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// ResponderConfig configures the generation collaborator.
type ResponderConfig struct {
	Provider    string  `json:"provider"` // "openai", "anthropic", or "local"
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// UIConfig configures terminal output.
type UIConfig struct {
	ColorsEnabled   bool `json:"colors_enabled"`
	ShowTimestamps  bool `json:"show_timestamps"`
	TypingIndicator bool `json:"typing_indicator"`
}

// ConversationConfig configures conversation handling.
type ConversationConfig struct {
	MaxContextMessages int    `json:"max_context_messages"`
	SaveDirectory      string `json:"save_directory"`
}

// RedisConfig configures the indexed storage backend.
type RedisConfig struct {
	Addr           string        `json:"addr"`
	DB             int           `json:"db"`
	Password       string        `json:"password"`
	DialTimeout    time.Duration `json:"-"`
	ReadTimeout    time.Duration `json:"-"`
	WriteTimeout   time.Duration `json:"-"`
	DialTimeoutSec int           `json:"dial_timeout_seconds"`
	TimeoutSec     int           `json:"timeout_seconds"`
}

// Config holds all configuration for the application.
type Config struct {
	Responder    ResponderConfig    `json:"responder"`
	UI           UIConfig           `json:"ui"`
	Conversation ConversationConfig `json:"conversation"`
	Redis        RedisConfig        `json:"redis"`

	LogLevel    string `json:"log_level"`
	LogFile     string `json:"log_file"`
	UseRedis    bool   `json:"use_redis"`
	MetricsAddr string `json:"metrics_addr"` // empty disables the debug listener

	// API keys come from the environment only, never the config file.
	OpenAIAPIKey    string `json:"-"`
	AnthropicAPIKey string `json:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Responder: ResponderConfig{
			Provider:    "local",
			Model:       "",
			MaxTokens:   1024,
			Temperature: 0.7,
		},
		UI: UIConfig{
			ColorsEnabled:   true,
			ShowTimestamps:  true,
			TypingIndicator: true,
		},
		Conversation: ConversationConfig{
			MaxContextMessages: 10,
			SaveDirectory:      "conversations",
		},
		Redis: RedisConfig{
			Addr:           "localhost:6379",
			DB:             0,
			DialTimeoutSec: 5,
			TimeoutSec:     5,
		},
		LogLevel:    "info",
		LogFile:     "logs/chatshell.log",
		UseRedis:    true,
		MetricsAddr: "",
	}
}

// fileConfig mirrors Config with optional fields so that a config file may set
// any subset of keys. Unknown keys are ignored by the decoder; merging is
// explicit and per-field, never reflective.
type fileConfig struct {
	Responder *struct {
		Provider    *string  `json:"provider"`
		Model       *string  `json:"model"`
		MaxTokens   *int     `json:"max_tokens"`
		Temperature *float64 `json:"temperature"`
	} `json:"responder"`
	UI *struct {
		ColorsEnabled   *bool `json:"colors_enabled"`
		ShowTimestamps  *bool `json:"show_timestamps"`
		TypingIndicator *bool `json:"typing_indicator"`
	} `json:"ui"`
	Conversation *struct {
		MaxContextMessages *int    `json:"max_context_messages"`
		SaveDirectory      *string `json:"save_directory"`
	} `json:"conversation"`
	Redis *struct {
		Addr           *string `json:"addr"`
		DB             *int    `json:"db"`
		Password       *string `json:"password"`
		DialTimeoutSec *int    `json:"dial_timeout_seconds"`
		TimeoutSec     *int    `json:"timeout_seconds"`
	} `json:"redis"`
	LogLevel    *string `json:"log_level"`
	LogFile     *string `json:"log_file"`
	UseRedis    *bool   `json:"use_redis"`
	MetricsAddr *string `json:"metrics_addr"`
}

// Load reads configuration from the given JSON file, layering it over the
// defaults. A missing file yields the defaults; a malformed file is an error.
// API keys are always read from the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		var fc fileConfig
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg.merge(&fc)
	}

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")

	cfg.Redis.DialTimeout = time.Duration(cfg.Redis.DialTimeoutSec) * time.Second
	cfg.Redis.ReadTimeout = time.Duration(cfg.Redis.TimeoutSec) * time.Second
	cfg.Redis.WriteTimeout = time.Duration(cfg.Redis.TimeoutSec) * time.Second

	return cfg, nil
}

func (c *Config) merge(fc *fileConfig) {
	if r := fc.Responder; r != nil {
		if r.Provider != nil {
			c.Responder.Provider = *r.Provider
		}
		if r.Model != nil {
			c.Responder.Model = *r.Model
		}
		if r.MaxTokens != nil {
			c.Responder.MaxTokens = *r.MaxTokens
		}
		if r.Temperature != nil {
			c.Responder.Temperature = *r.Temperature
		}
	}
	if u := fc.UI; u != nil {
		if u.ColorsEnabled != nil {
			c.UI.ColorsEnabled = *u.ColorsEnabled
		}
		if u.ShowTimestamps != nil {
			c.UI.ShowTimestamps = *u.ShowTimestamps
		}
		if u.TypingIndicator != nil {
			c.UI.TypingIndicator = *u.TypingIndicator
		}
	}
	if cv := fc.Conversation; cv != nil {
		if cv.MaxContextMessages != nil {
			c.Conversation.MaxContextMessages = *cv.MaxContextMessages
		}
		if cv.SaveDirectory != nil {
			c.Conversation.SaveDirectory = *cv.SaveDirectory
		}
	}
	if r := fc.Redis; r != nil {
		if r.Addr != nil {
			c.Redis.Addr = *r.Addr
		}
		if r.DB != nil {
			c.Redis.DB = *r.DB
		}
		if r.Password != nil {
			c.Redis.Password = *r.Password
		}
		if r.DialTimeoutSec != nil {
			c.Redis.DialTimeoutSec = *r.DialTimeoutSec
		}
		if r.TimeoutSec != nil {
			c.Redis.TimeoutSec = *r.TimeoutSec
		}
	}
	if fc.LogLevel != nil {
		c.LogLevel = *fc.LogLevel
	}
	if fc.LogFile != nil {
		c.LogFile = *fc.LogFile
	}
	if fc.UseRedis != nil {
		c.UseRedis = *fc.UseRedis
	}
	if fc.MetricsAddr != nil {
		c.MetricsAddr = *fc.MetricsAddr
	}
}
