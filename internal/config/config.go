package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                 = "TRAINHUB"
	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultDatabasePath       = "trainhub.db"
	defaultLogLevel           = "info"
	defaultTokenTTLMinutes    = 720
	defaultUploadsDir         = "uploads"
	defaultBarcodeBaseURL     = "https://searchupcdata.com/api"
	defaultBarcodeTimeoutSecs = 10
	defaultAllowedOrigins     = "*"

	defaultServerURL         = "http://localhost:8080"
	defaultClientTimeoutSecs = 15
	defaultClientLogLevel    = "warn"
	sessionFileName          = "session.yaml"
	sessionDirName           = ".trainhub"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	DatabasePath   string
	LogLevel       string
	SigningSecret  string
	TokenTTL       time.Duration
	UploadsDir     string
	StaticDir      string
	AllowedOrigins []string
	Barcode        BarcodeConfig
}

// BarcodeConfig configures the external UPC lookup service.
type BarcodeConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// ClientConfig captures runtime configuration for the command line client.
type ClientConfig struct {
	ServerURL   string
	SessionPath string
	Timeout     time.Duration
	LogLevel    string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("uploads.dir", defaultUploadsDir)
	configViper.SetDefault("static.dir", "")
	configViper.SetDefault("cors.allowed_origins", defaultAllowedOrigins)
	configViper.SetDefault("barcode.base_url", defaultBarcodeBaseURL)
	configViper.SetDefault("barcode.timeout_seconds", defaultBarcodeTimeoutSecs)
}

// ApplyClientDefaults configures defaults for the command line client.
func ApplyClientDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("server.url", defaultServerURL)
	configViper.SetDefault("session.path", defaultSessionPath())
	configViper.SetDefault("client.timeout_seconds", defaultClientTimeoutSecs)
	configViper.SetDefault("log.level", defaultClientLogLevel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabasePath:   configViper.GetString("database.path"),
		LogLevel:       configViper.GetString("log.level"),
		SigningSecret:  configViper.GetString("auth.signing_secret"),
		TokenTTL:       time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		UploadsDir:     configViper.GetString("uploads.dir"),
		StaticDir:      configViper.GetString("static.dir"),
		AllowedOrigins: splitList(configViper.GetString("cors.allowed_origins")),
		Barcode: BarcodeConfig{
			BaseURL: configViper.GetString("barcode.base_url"),
			APIKey:  configViper.GetString("barcode.api_key"),
			Timeout: time.Duration(configViper.GetInt("barcode.timeout_seconds")) * time.Second,
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadClient parses client configuration from viper.
func LoadClient(configViper *viper.Viper) (ClientConfig, error) {
	cfg := ClientConfig{
		ServerURL:   strings.TrimRight(configViper.GetString("server.url"), "/"),
		SessionPath: configViper.GetString("session.path"),
		Timeout:     time.Duration(configViper.GetInt("client.timeout_seconds")) * time.Second,
		LogLevel:    configViper.GetString("log.level"),
	}
	if strings.TrimSpace(cfg.ServerURL) == "" {
		return ClientConfig{}, fmt.Errorf("server.url is required")
	}
	if strings.TrimSpace(cfg.SessionPath) == "" {
		return ClientConfig{}, fmt.Errorf("session.path is required")
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.UploadsDir) == "" {
		return fmt.Errorf("uploads.dir is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("cors.allowed_origins is required")
	}
	return nil
}

func splitList(raw string) []string {
	values := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(sessionDirName, sessionFileName)
	}
	return filepath.Join(home, sessionDirName, sessionFileName)
}
