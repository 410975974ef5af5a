package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// ErrInvalidConfig is returned by Validate for any rejected setting.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	ProviderIMAP   = "imap"
	ProviderGmail  = "gmail"
	ProviderDemo   = "demo"
	ProviderOpenAI = "openai"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Mailbox    MailboxConfig    `mapstructure:"mailbox"`
	IMAP       IMAPConfig       `mapstructure:"imap"`
	Gmail      GmailConfig      `mapstructure:"gmail"`
	Generator  GeneratorConfig  `mapstructure:"generator"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Response   ResponseConfig   `mapstructure:"response"`
	Security   SecurityConfig   `mapstructure:"security"`
	Log        LogConfig        `mapstructure:"log"`
	Demo       bool             `mapstructure:"demo"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// OpenAIConfig holds the text-generation settings
type OpenAIConfig struct {
	APIKey              string        `mapstructure:"api_key"`
	BaseURL             string        `mapstructure:"base_url"`
	Model               string        `mapstructure:"model"`
	Temperature         float64       `mapstructure:"temperature"`
	MaxTokens           int           `mapstructure:"max_tokens"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ClassifyTemperature float64       `mapstructure:"classify_temperature"`
	ClassifyMaxTokens   int           `mapstructure:"classify_max_tokens"`
}

type MailboxConfig struct {
	Provider string `mapstructure:"provider"`
}

// IMAPConfig holds the mailbox server connection
type IMAPConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	TLS      bool          `mapstructure:"tls"`
	Account  string        `mapstructure:"account"`
	Password string        `mapstructure:"password"`
	Folders  []string      `mapstructure:"folders"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// GmailConfig holds Gmail API configuration
type GmailConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	UserEmail    string `mapstructure:"user_email"`
}

type GeneratorConfig struct {
	Provider string `mapstructure:"provider"`
}

// ProcessingConfig controls batch size and cadence
type ProcessingConfig struct {
	Limit        int           `mapstructure:"limit"`
	MaxLimit     int           `mapstructure:"max_limit"`
	Interval     time.Duration `mapstructure:"interval"`
	MaxEmailSize int64         `mapstructure:"max_email_size"`
	Workers      int           `mapstructure:"workers"`
	RunOnce      bool          `mapstructure:"run_once"`
}

// ResponseConfig holds the reply wording settings
type ResponseConfig struct {
	Timezone    string `mapstructure:"timezone"`
	CompanyName string `mapstructure:"company_name"`
	Language    string `mapstructure:"language"`
}

type SecurityConfig struct {
	AllowedDomains []string `mapstructure:"allowed_domains"`
	Blacklist      []string `mapstructure:"blacklist"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// LoadConfig loads configuration from .env, an optional config file and
// environment variables, in increasing order of precedence.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("error binding environment: %w", err)
	}

	var config Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&config, hook); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	config.IMAP.Folders = splitList(config.IMAP.Folders)
	config.Security.AllowedDomains = splitList(config.Security.AllowedDomains)
	config.Security.Blacklist = splitList(config.Security.Blacklist)

	if config.Demo {
		config.Mailbox.Provider = ProviderDemo
		config.Generator.Provider = ProviderDemo
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("openai.model", "gpt-3.5-turbo-1106")
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("openai.max_tokens", 500)
	v.SetDefault("openai.timeout", "30s")
	v.SetDefault("openai.classify_temperature", 0.3)
	v.SetDefault("openai.classify_max_tokens", 10)

	v.SetDefault("mailbox.provider", ProviderIMAP)
	v.SetDefault("imap.host", "imap.gmail.com")
	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.tls", true)
	v.SetDefault("imap.folders", []string{"INBOX", "Important"})
	v.SetDefault("imap.timeout", "30s")

	v.SetDefault("gmail.user_email", "me")

	v.SetDefault("generator.provider", ProviderOpenAI)
	v.SetDefault("demo", false)

	v.SetDefault("processing.limit", 10)
	v.SetDefault("processing.max_limit", 50)
	v.SetDefault("processing.interval", "300s")
	v.SetDefault("processing.max_email_size", 1048576)
	v.SetDefault("processing.workers", 1)
	v.SetDefault("processing.run_once", false)

	v.SetDefault("response.timezone", "America/Mexico_City")
	v.SetDefault("response.company_name", "Mi Empresa")
	v.SetDefault("response.language", "español")

	v.SetDefault("security.allowed_domains", []string{"gmail.com", "miempresa.com"})
	v.SetDefault("security.blacklist", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
}

var envBindings = map[string]string{
	"server.port":          "SERVER_PORT",
	"server.read_timeout":  "SERVER_READ_TIMEOUT",
	"server.write_timeout": "SERVER_WRITE_TIMEOUT",

	"openai.api_key":              "OPENAI_API_KEY",
	"openai.base_url":             "OPENAI_BASE_URL",
	"openai.model":                "OPENAI_MODEL",
	"openai.temperature":          "OPENAI_TEMPERATURE",
	"openai.max_tokens":           "OPENAI_MAX_TOKENS",
	"openai.timeout":              "OPENAI_TIMEOUT",
	"openai.classify_temperature": "OPENAI_CLASSIFY_TEMPERATURE",
	"openai.classify_max_tokens":  "OPENAI_CLASSIFY_MAX_TOKENS",

	"mailbox.provider": "MAILBOX_PROVIDER",
	"imap.host":        "IMAP_SERVER",
	"imap.port":        "IMAP_PORT",
	"imap.tls":         "IMAP_TLS",
	"imap.account":     "EMAIL_ACCOUNT",
	"imap.password":    "EMAIL_PASSWORD",
	"imap.folders":     "EMAIL_FOLDERS",
	"imap.timeout":     "IMAP_TIMEOUT",

	"gmail.client_id":     "GMAIL_CLIENT_ID",
	"gmail.client_secret": "GMAIL_CLIENT_SECRET",
	"gmail.refresh_token": "GMAIL_REFRESH_TOKEN",
	"gmail.user_email":    "GMAIL_USER_EMAIL",

	"generator.provider": "GENERATOR_PROVIDER",
	"demo":               "DEMO_MODE",

	"processing.limit":          "PROCESSING_LIMIT",
	"processing.max_limit":      "PROCESSING_MAX_LIMIT",
	"processing.interval":       "PROCESSING_INTERVAL",
	"processing.max_email_size": "MAX_EMAIL_SIZE",
	"processing.workers":        "PROCESSING_WORKERS",
	"processing.run_once":       "RUN_ONCE",

	"response.timezone":     "DEFAULT_TIMEZONE",
	"response.company_name": "COMPANY_NAME",
	"response.language":     "RESPONSE_LANGUAGE",

	"security.allowed_domains": "ALLOWED_DOMAINS",
	"security.blacklist":       "BLACKLIST",

	"log.level":  "LOG_LEVEL",
	"log.format": "LOG_FORMAT",
	"log.file":   "LOG_FILE",
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars(v *viper.Viper) error {
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}

// secondsToDurationHook reads bare integers (300, "300") as seconds so
// durations written for the original settings keep working.
func secondsToDurationHook() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != durationType {
			return data, nil
		}
		switch f.Kind() {
		case reflect.String:
			n, err := strconv.ParseInt(strings.TrimSpace(data.(string)), 10, 64)
			if err != nil {
				return data, nil
			}
			return time.Duration(n) * time.Second, nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if f == durationType {
				return data, nil
			}
			return time.Duration(reflect.ValueOf(data).Int()) * time.Second, nil
		case reflect.Float32, reflect.Float64:
			return time.Duration(reflect.ValueOf(data).Float() * float64(time.Second)), nil
		}
		return data, nil
	}
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return invalid("server port is required")
	}

	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 1 {
		return invalid("temperature must be between 0 and 1, got %v", c.OpenAI.Temperature)
	}
	if c.OpenAI.ClassifyTemperature < 0 || c.OpenAI.ClassifyTemperature > 1 {
		return invalid("classify temperature must be between 0 and 1, got %v", c.OpenAI.ClassifyTemperature)
	}
	if c.OpenAI.MaxTokens <= 0 || c.OpenAI.ClassifyMaxTokens <= 0 {
		return invalid("max tokens must be greater than 0")
	}
	if c.OpenAI.Timeout <= 0 {
		return invalid("openai timeout must be greater than 0")
	}

	switch c.Mailbox.Provider {
	case ProviderIMAP:
		if c.IMAP.Port < 1 || c.IMAP.Port > 65535 {
			return invalid("imap port must be between 1 and 65535, got %d", c.IMAP.Port)
		}
		if c.IMAP.Host == "" || c.IMAP.Account == "" || c.IMAP.Password == "" {
			return invalid("imap server, account and password are required")
		}
		if c.IMAP.Timeout <= 0 {
			return invalid("imap timeout must be greater than 0")
		}
	case ProviderGmail:
		if c.Gmail.ClientID == "" || c.Gmail.ClientSecret == "" || c.Gmail.RefreshToken == "" {
			return invalid("Gmail OAuth2 credentials are required")
		}
	case ProviderDemo:
	default:
		return invalid("unknown mailbox provider %q", c.Mailbox.Provider)
	}

	switch c.Generator.Provider {
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return invalid("openai api key is required")
		}
	case ProviderDemo:
	default:
		return invalid("unknown generator provider %q", c.Generator.Provider)
	}

	if c.Processing.Limit < 1 {
		return invalid("processing limit must be at least 1, got %d", c.Processing.Limit)
	}
	if c.Processing.MaxLimit < 1 {
		return invalid("processing max limit must be at least 1, got %d", c.Processing.MaxLimit)
	}
	if c.Processing.Interval <= 0 {
		return invalid("processing interval must be greater than 0")
	}
	if c.Processing.Workers < 1 {
		return invalid("processing workers must be at least 1, got %d", c.Processing.Workers)
	}
	if c.Processing.MaxEmailSize <= 0 {
		return invalid("max email size must be greater than 0")
	}

	if _, err := c.Location(); err != nil {
		return invalid("unknown timezone %q", c.Response.Timezone)
	}

	return nil
}

// EffectiveLimit returns the batch size after clamping to the maximum.
func (c *Config) EffectiveLimit() int {
	if c.Processing.Limit > c.Processing.MaxLimit {
		return c.Processing.MaxLimit
	}
	return c.Processing.Limit
}

// Location resolves the response time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Response.Timezone)
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
