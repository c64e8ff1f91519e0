package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Mimir    MimirConfig
	Ops      OpsConfig
	App      AppConfig
	Sweeps   Sweeps `mapstructure:"-"`

	v *viper.Viper
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdleConns   int
	MigrateOnStart bool
}

type AuthConfig struct {
	JWTSecret string
}

type MimirConfig struct {
	URL           string
	TenantHeader  string
	Tenant        string
	BatchSize     int
	FlushInterval time.Duration
	AuthToken     string
}

// OpsConfig selects the external operations channel. Slack wins when both a
// Slack webhook and a generic webhook are configured.
type OpsConfig struct {
	Source          string
	SlackWebhookURL string
	SlackChannel    string
	WebhookURL      string
	WebhookSecret   string
	Timeout         time.Duration
}

type AppConfig struct {
	BaseURL string
}

// Load reads .env files, config.yaml and GUARDIAN_* environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if path := os.Getenv("GUARDIAN_CONFIG"); path != "" {
		v.SetConfigFile(path)
	}
	v.SetEnvPrefix("GUARDIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, err
		}
	}

	cfg := Config{v: v}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.v = v
	cfg.Sweeps = loadSweeps(v)

	// Override with conventional environment variables
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if url := os.Getenv("SLACK_WEBHOOK_URL"); url != "" {
		cfg.Ops.SlackWebhookURL = url
	}
	if token := os.Getenv("MIMIR_AUTH_TOKEN"); token != "" {
		cfg.Mimir.AuthToken = token
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.maxconnections", 10)
	v.SetDefault("database.maxidleconns", 2)
	v.SetDefault("database.migrateonstart", true)
	v.SetDefault("mimir.tenantheader", "X-Scope-OrgID")
	v.SetDefault("mimir.tenant", "portfolio-guardian")
	v.SetDefault("mimir.batchsize", 1000)
	v.SetDefault("mimir.flushinterval", "30s")
	v.SetDefault("ops.source", "portfolio-guardian")
	v.SetDefault("ops.timeout", "10s")
	v.SetDefault("app.baseurl", "")

	for key, value := range sweepDefaults {
		v.SetDefault(key, value)
	}
}
