package config

import (
	"errors"
	"fmt"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Load reads the configuration for the given environment. An empty path
// falls back to $GUARDEX_CONFIG_PATH and then "configs". A missing file is
// not an error: defaults and environment variables still apply.
func Load(path, env string) (*Config, error) {
	// .env is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.Warnf("failed to read .env: %v", err)
	}

	if env == "" {
		env = os.Getenv("GUARDEX_ENV")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("GUARDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	file := configFile(path, env)
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// GUARDEX_LLM_KEYS="k1, k2" may arrive unsplit or with padding.
	var keys []string
	for _, k := range cfg.LLM.Keys {
		keys = append(keys, splitList(k)...)
	}
	cfg.LLM.Keys = keys

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// configFile returns the file for env, or "" when none exists.
func configFile(path, env string) string {
	if path == "" {
		path = os.Getenv("GUARDEX_CONFIG_PATH")
	}
	if path == "" {
		path = "configs"
	}
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		return path
	}

	candidates := []string{filepath.Join(path, "config.yaml")}
	switch env {
	case "production", "prod":
		candidates = append([]string{filepath.Join(path, "config.prod.yaml")}, candidates...)
	case "test", "testing":
		candidates = append([]string{filepath.Join(path, "config.test.yaml")}, candidates...)
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.allow_origins", []string{"*"})

	v.SetDefault("socket.host", "0.0.0.0")
	v.SetDefault("socket.port", 5001)
	v.SetDefault("socket.path", "/socket.io/")
	v.SetDefault("socket.queue_size", 64)
	v.SetDefault("socket.write_timeout", 10*time.Second)
	v.SetDefault("socket.ping_interval", 25*time.Second)
	v.SetDefault("socket.ping_timeout", 20*time.Second)
	v.SetDefault("socket.max_payload", 1000000)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "guardex.db")
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	v.SetDefault("security.jwt_secret", "change-me")
	v.SetDefault("security.token_ttl", 24*time.Hour)
	v.SetDefault("security.bcrypt_cost", 10)

	v.SetDefault("mail.host", "smtp.gmail.com")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.token_url", "https://oauth2.googleapis.com/token")

	v.SetDefault("llm.endpoint", "https://generativelanguage.googleapis.com/v1beta/openai/")
	v.SetDefault("llm.model", "gemini-1.5-flash")
	v.SetDefault("llm.summary_model", "gemini-2.0-flash")
	v.SetDefault("llm.rotation_limit", 3)

	v.SetDefault("crawler.max_depth", 4)
	v.SetDefault("crawler.workers", 5)
	v.SetDefault("crawler.timeout", 10*time.Second)
	v.SetDefault("crawler.user_agent", "Mozilla/5.0")
	v.SetDefault("crawler.rate_per_second", 10.0)

	v.SetDefault("scanner.chunk_size", 82000)
	v.SetDefault("scanner.chunk_workers", 4)
	v.SetDefault("scanner.summary_batch", 20)
	v.SetDefault("scanner.fetch_timeout", 10*time.Second)
	v.SetDefault("scanner.plugins", []string{"llm", "secrets"})

	v.SetDefault("assistant.deepgram_url", "https://api.deepgram.com/v1")
	v.SetDefault("assistant.stt_model", "nova-3")
	v.SetDefault("assistant.tts_model", "aura-2-thalia-en")
	v.SetDefault("assistant.endpoint", "https://api.openai.com/v1")
	v.SetDefault("assistant.model", "gpt-4o")
	v.SetDefault("assistant.max_tokens", 200)
	v.SetDefault("assistant.temperature", 0.5)

	v.SetDefault("frontend_url", "http://localhost:5173")
}

// bindLegacyEnv accepts the unprefixed variable names of older deployments.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("server.port", "GUARDEX_SERVER_PORT", "PORT")
	_ = v.BindEnv("frontend_url", "GUARDEX_FRONTEND_URL", "FRONTEND_URL")
	_ = v.BindEnv("mail.username", "GUARDEX_MAIL_USERNAME", "EMAIL_HOST")
	_ = v.BindEnv("mail.client_id", "GUARDEX_MAIL_CLIENT_ID", "CLIENT_ID")
	_ = v.BindEnv("mail.client_secret", "GUARDEX_MAIL_CLIENT_SECRET", "CLIENT_SECRET")
	_ = v.BindEnv("mail.refresh_token", "GUARDEX_MAIL_REFRESH_TOKEN", "OAUTH_REFRESH_TOKEN")
	_ = v.BindEnv("assistant.deepgram_key", "GUARDEX_ASSISTANT_DEEPGRAM_KEY", "DEEPGRAM_API_KEY")
	_ = v.BindEnv("assistant.openai_key", "GUARDEX_ASSISTANT_OPENAI_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.keys", "GUARDEX_LLM_KEYS")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
