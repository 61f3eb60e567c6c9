// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Feeds         FeedConfig         `mapstructure:"feeds"`
	Scheduler     SchedulerConfig    `mapstructure:"scheduler"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Audit         AuditConfig        `mapstructure:"audit"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// FeedConfig bounds resubscription after a change-feed infrastructure failure.
type FeedConfig struct {
	ResubscribeMax   int `mapstructure:"resubscribe_max"`
	ResubscribeDelay int `mapstructure:"resubscribe_delay_ms"`
}

// SchedulerConfig drives the slot-materialization cron job.
type SchedulerConfig struct {
	Enabled   bool           `mapstructure:"enabled"`
	CronSpec  string         `mapstructure:"cron_spec"`
	Templates []SlotTemplate `mapstructure:"templates"`
}

// SlotTemplate describes one weekly block of bookable slots.
type SlotTemplate struct {
	Weekday         string `mapstructure:"weekday"`
	Start           string `mapstructure:"start"` // "09:00"
	End             string `mapstructure:"end"`   // "11:00"
	DurationMinutes int    `mapstructure:"duration_minutes"`
	GapMinutes      int    `mapstructure:"gap_minutes"`
	HorizonDays     int    `mapstructure:"horizon_days"`
}

// NotificationConfig controls the optional urgent-item delivery channel.
type NotificationConfig struct {
	Delivery DeliveryConfig `mapstructure:"delivery"`
}

type DeliveryConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	AWSRegion string `mapstructure:"aws_region"`
	EmailFrom string `mapstructure:"email_from"`
	SMSPrefix string `mapstructure:"sms_prefix"`
}

// AuditConfig controls the Elasticsearch transition audit trail.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Index   string `mapstructure:"index"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Address string `mapstructure:"address"`
}
