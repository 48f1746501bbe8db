package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the root configuration of every guardex process.
type Config struct {
	Server      ServerConfig    `mapstructure:"server"`
	Socket      SocketConfig    `mapstructure:"socket"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Log         LogConfig       `mapstructure:"log"`
	Security    SecurityConfig  `mapstructure:"security"`
	Mail        MailConfig      `mapstructure:"mail"`
	LLM         LLMConfig       `mapstructure:"llm"`
	Crawler     CrawlerConfig   `mapstructure:"crawler"`
	Scanner     ScannerConfig   `mapstructure:"scanner"`
	Assistant   AssistantConfig `mapstructure:"assistant"`
	FrontendURL string          `mapstructure:"frontend_url"`
}

// ServerConfig configures the REST API.
type ServerConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// Addr returns the listen address of the REST API.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SocketConfig configures the live scan socket server.
type SocketConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Path         string        `mapstructure:"path"`
	QueueSize    int           `mapstructure:"queue_size"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	PingTimeout  time.Duration `mapstructure:"ping_timeout"`
	MaxPayload   int64         `mapstructure:"max_payload"`
}

// Addr returns the listen address of the socket server.
func (s SocketConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig selects the gorm driver and its DSN.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // sqlite or mysql
	DSN      string `mapstructure:"dsn"`
	LogLevel string `mapstructure:"log_level"`
}

// LogConfig configures logrus and the optional rotating log file.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // text or json
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Caller     bool   `mapstructure:"caller"`
}

// SecurityConfig holds password hashing and session token settings.
type SecurityConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`
}

// MailConfig holds the SMTP account used for verification emails.
type MailConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	TokenURL     string `mapstructure:"token_url"`
}

// LLMConfig configures the completion key pool.
type LLMConfig struct {
	Endpoint      string   `mapstructure:"endpoint"`
	Azure         bool     `mapstructure:"azure"`
	Keys          []string `mapstructure:"keys"`
	Model         string   `mapstructure:"model"`
	SummaryModel  string   `mapstructure:"summary_model"`
	RotationLimit int      `mapstructure:"rotation_limit"`
}

// CrawlerConfig configures JS file discovery.
type CrawlerConfig struct {
	MaxDepth      int           `mapstructure:"max_depth"`
	Workers       int           `mapstructure:"workers"`
	Timeout       time.Duration `mapstructure:"timeout"`
	UserAgent     string        `mapstructure:"user_agent"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Render        bool          `mapstructure:"render"`
}

// ScannerConfig configures the scan pipeline.
type ScannerConfig struct {
	ChunkSize    int           `mapstructure:"chunk_size"`
	ChunkWorkers int           `mapstructure:"chunk_workers"`
	SummaryBatch int           `mapstructure:"summary_batch"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	Plugins      []string      `mapstructure:"plugins"`
}

// AssistantConfig configures the voice assistant.
type AssistantConfig struct {
	DeepgramKey string  `mapstructure:"deepgram_key"`
	DeepgramURL string  `mapstructure:"deepgram_url"`
	STTModel    string  `mapstructure:"stt_model"`
	TTSModel    string  `mapstructure:"tts_model"`
	OpenAIKey   string  `mapstructure:"openai_key"`
	Endpoint    string  `mapstructure:"endpoint"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// Validate checks the values no process can run without.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Socket.Port <= 0 {
		return errors.New("server and socket ports must be positive")
	}
	if c.Crawler.Workers < 1 {
		return errors.New("crawler.workers must be at least 1")
	}
	if c.Scanner.ChunkSize < 1 {
		return errors.New("scanner.chunk_size must be at least 1")
	}
	if c.Scanner.ChunkWorkers < 1 {
		return errors.New("scanner.chunk_workers must be at least 1")
	}
	if c.Scanner.SummaryBatch < 1 {
		return errors.New("scanner.summary_batch must be at least 1")
	}
	if c.LLM.RotationLimit < 1 {
		return errors.New("llm.rotation_limit must be at least 1")
	}
	return nil
}
