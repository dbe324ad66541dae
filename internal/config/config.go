package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"flowsentry/pkg/models"
)

// Config holds the configuration for the application.
type Config struct {
	Store string `mapstructure:"store"` // "postgres" or "memory"

	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`

	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`

	TLS struct {
		Enable       bool          `mapstructure:"enable"`
		CertFile     string        `mapstructure:"cert_file"`
		KeyFile      string        `mapstructure:"key_file"`
		Hostnames    []string      `mapstructure:"hostnames"`
		Organization string        `mapstructure:"organization"`
		ValidFor     time.Duration `mapstructure:"valid_for"`
	} `mapstructure:"tls"`

	WorkflowSource struct {
		BaseURL        string        `mapstructure:"base_url"`
		TimeoutSeconds int           `mapstructure:"timeout_seconds"`
		RetryCount     int           `mapstructure:"retry_count"`
		RetryWaitTime  time.Duration `mapstructure:"retry_wait_time"`
	} `mapstructure:"workflow_source"`

	Scheduler struct {
		TickInterval           time.Duration `mapstructure:"tick_interval"`
		WorkflowTimeoutSeconds int           `mapstructure:"workflow_timeout_seconds"`
	} `mapstructure:"scheduler"`

	Alerting struct {
		SMTP struct {
			Host string `mapstructure:"host"`
			Port int    `mapstructure:"port"`
			From string `mapstructure:"from"`
			User string `mapstructure:"user"`
			Pass string `mapstructure:"pass"`
		} `mapstructure:"smtp"`
		WebhookTimeoutSeconds int           `mapstructure:"webhook_timeout_seconds"`
		DedupCooldown         time.Duration `mapstructure:"dedup_cooldown"`
		MaxBackoff            time.Duration `mapstructure:"max_backoff"`
	} `mapstructure:"alerting"`

	Metrics struct {
		TrendMarginPct float64       `mapstructure:"trend_margin_pct"`
		CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	} `mapstructure:"metrics"`

	// Scoring maps finding severity to points deducted. Point values are
	// configuration so rule weights can be tuned without touching
	// detector code.
	Scoring struct {
		Points map[string]int `mapstructure:"points"`
	} `mapstructure:"scoring"`
}

// LoadConfig loads the configuration from a file and the environment.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env vars apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("store", "postgres")
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", 5432)
	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("workflow_source.timeout_seconds", 15)
	viper.SetDefault("workflow_source.retry_count", 2)
	viper.SetDefault("workflow_source.retry_wait_time", 2*time.Second)
	viper.SetDefault("scheduler.tick_interval", time.Minute)
	viper.SetDefault("scheduler.workflow_timeout_seconds", 5)
	viper.SetDefault("alerting.smtp.port", 587)
	viper.SetDefault("alerting.webhook_timeout_seconds", 10)
	viper.SetDefault("alerting.dedup_cooldown", time.Hour)
	viper.SetDefault("alerting.max_backoff", 24*time.Hour)
	viper.SetDefault("metrics.trend_margin_pct", 10.0)
	viper.SetDefault("metrics.cache_ttl", 30*time.Second)
	viper.SetDefault("scoring.points", map[string]int{
		string(models.SeverityCritical): 25,
		string(models.SeverityHigh):     15,
		string(models.SeverityMedium):   10,
		string(models.SeverityLow):      3,
	})
}

// SeverityPoints converts the configured scoring table into typed keys,
// falling back to the defaults for any severity left unset.
func (c *Config) SeverityPoints() map[models.Severity]int {
	points := map[models.Severity]int{
		models.SeverityCritical: 25,
		models.SeverityHigh:     15,
		models.SeverityMedium:   10,
		models.SeverityLow:      3,
	}
	for k, v := range c.Scoring.Points {
		points[models.Severity(k)] = v
	}
	return points
}

// DatabaseURL assembles a pgx-compatible connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode,
	)
}
