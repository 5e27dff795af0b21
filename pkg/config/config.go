package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Analyze   AnalyzeConfig   `mapstructure:"analyze"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver" validate:"oneof=memory postgres sqlite"`
	Host     string `mapstructure:"host" validate:"required_if=Driver postgres"`
	Port     int    `mapstructure:"port" validate:"min=0,max=65535"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname" validate:"required_if=Driver postgres"`
	SSLMode  string `mapstructure:"sslmode"`
	// Path is the SQLite file; ":memory:" works for throwaway runs.
	Path string `mapstructure:"path" validate:"required_if=Driver sqlite"`
}

type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url" validate:"omitempty,url"`
	Model       string  `mapstructure:"model" validate:"required"`
	MaxTokens   int     `mapstructure:"max_tokens" validate:"min=1"`
	Temperature float64 `mapstructure:"temperature" validate:"min=0,max=2"`
	JSONMode    bool    `mapstructure:"json_mode"`
}

type LLMConfig struct {
	Provider string `mapstructure:"provider" validate:"oneof=openai heuristic"`
}

type AnalyzeConfig struct {
	BatchSize      int           `mapstructure:"batch_size" validate:"min=1"`
	RateLimitDelay time.Duration `mapstructure:"rate_limit_delay"`
	Workers        int           `mapstructure:"workers" validate:"min=1"`
	MaxAttempts    int           `mapstructure:"max_attempts" validate:"min=1"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	TimeBudget     time.Duration `mapstructure:"time_budget"`
}

type MetricsConfig struct {
	HumanCost float64 `mapstructure:"human_cost" validate:"gte=0"`
	BotCost   float64 `mapstructure:"bot_cost" validate:"gte=0"`
	TopK      int     `mapstructure:"top_k" validate:"min=1"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

type TelemetryConfig struct {
	Listen string `mapstructure:"listen"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

// flagKeys maps command line flags to config keys. Flags that a command does
// not define are skipped.
var flagKeys = map[string]string{
	"driver":       "database.driver",
	"sqlite-path":  "database.path",
	"provider":     "llm.provider",
	"model":        "openai.model",
	"batch-size":   "analyze.batch_size",
	"delay":        "analyze.rate_limit_delay",
	"workers":      "analyze.workers",
	"time-budget":  "analyze.time_budget",
	"metrics-addr": "telemetry.listen",
	"log-level":    "log.level",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "chatmetrics")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "chatmetrics.db")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 2048)
	v.SetDefault("openai.temperature", 0.3)
	v.SetDefault("openai.json_mode", false)

	v.SetDefault("llm.provider", "openai")

	v.SetDefault("analyze.batch_size", 10)
	v.SetDefault("analyze.rate_limit_delay", time.Second)
	v.SetDefault("analyze.workers", 1)
	v.SetDefault("analyze.max_attempts", 3)
	v.SetDefault("analyze.retry_backoff", time.Second)
	v.SetDefault("analyze.time_budget", time.Duration(0))

	v.SetDefault("metrics.human_cost", 12.50)
	v.SetDefault("metrics.bot_cost", 0.35)
	v.SetDefault("metrics.top_k", 5)

	v.SetDefault("notify.telegram.token", "")
	v.SetDefault("notify.telegram.chat_id", 0)

	v.SetDefault("telemetry.listen", "")
	v.SetDefault("log.level", "info")
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return DatabaseConfig{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	password, _ := u.User.Password()
	port := 5432
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}
	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Driver:   "postgres",
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

// LoadConfig reads defaults, then the config file, then CHATMETRICS_*
// environment variables, then flags. An empty path looks for an optional
// config.yaml in the working directory.
func LoadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CHATMETRICS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("openai_api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("telegram_token", "TELEGRAM_TOKEN")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if dbURL := v.GetString("database_url"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		dbConfig.Path = config.Database.Path
		config.Database = dbConfig
	}
	if apiKey := v.GetString("openai_api_key"); apiKey != "" && config.OpenAI.APIKey == "" {
		config.OpenAI.APIKey = apiKey
	}
	if token := v.GetString("telegram_token"); token != "" && config.Notify.Telegram.Token == "" {
		config.Notify.Telegram.Token = token
	}

	return &config, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.LLM.Provider == "openai" && c.OpenAI.APIKey == "" {
		return errors.New("invalid config: openai.api_key is required when llm.provider is openai")
	}
	if c.Analyze.RateLimitDelay < 0 || c.Analyze.RetryBackoff < 0 || c.Analyze.TimeBudget < 0 {
		return errors.New("invalid config: analyze durations must not be negative")
	}
	if c.Notify.Telegram.Token != "" && c.Notify.Telegram.ChatID == 0 {
		return errors.New("invalid config: notify.telegram.chat_id is required with a token")
	}
	return nil
}
