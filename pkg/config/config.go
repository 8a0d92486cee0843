package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the typed view of config.yaml and MCWATCH_* environment variables.
type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Database DatabaseConfig `mapstructure:"database"`
	Probe    ProbeConfig    `mapstructure:"probe"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	CheckAll CheckAllConfig `mapstructure:"checkall"`
}

type TelegramConfig struct {
	Token   string  `mapstructure:"token"`
	Debug   bool    `mapstructure:"debug"`
	Timeout int     `mapstructure:"timeout"` // long-poll seconds
	Admins  []int64 `mapstructure:"admins"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // sqlite or postgres
	DSN      string `mapstructure:"dsn"`    // sqlite only
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type ProbeConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	Transport       string        `mapstructure:"transport"`
	ProtocolVersion int           `mapstructure:"protocol_version"`
}

type MonitorConfig struct {
	FirstDelay time.Duration `mapstructure:"first_delay"`
	Interval   time.Duration `mapstructure:"interval"`
}

type CheckAllConfig struct {
	Workers int `mapstructure:"workers"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// SetDefaults registers every default on v. Call it before reading the config
// file so that file and environment values override them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("telegram.timeout", 60)
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.dsn", "file:mcwatch.db?cache=shared")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("probe.timeout", 5*time.Second)
	v.SetDefault("probe.protocol_version", 47)
	v.SetDefault("monitor.first_delay", 5*time.Second)
	v.SetDefault("monitor.interval", 30*time.Second)
	v.SetDefault("checkall.workers", 4)
}

// BindEnv makes every key readable from MCWATCH_SECTION_KEY variables.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix("mcwatch")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load unmarshals v into a Config and validates it. The Telegram token is not
// checked here because only the run command needs it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for sqlite")
		}
	case DriverPostgres:
		if c.Database.Host == "" || c.Database.DBName == "" {
			return errors.New("database.host and database.dbname are required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	if c.Probe.Timeout <= 0 {
		return fmt.Errorf("probe.timeout must be positive, got %s", c.Probe.Timeout)
	}
	if c.Monitor.FirstDelay < 0 {
		return fmt.Errorf("monitor.first_delay must not be negative, got %s", c.Monitor.FirstDelay)
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive, got %s", c.Monitor.Interval)
	}
	if c.CheckAll.Workers < 1 {
		c.CheckAll.Workers = 1
	}
	return nil
}

// IsAdmin reports whether userID may run destructive bot commands.
func (t TelegramConfig) IsAdmin(userID int64) bool {
	for _, id := range t.Admins {
		if id == userID {
			return true
		}
	}
	return false
}

// PostgresDSN builds the connection string the same way for every command.
func (d DatabaseConfig) PostgresDSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.DBName,
		RawQuery: url.Values{"sslmode": []string{d.SSLMode}}.Encode(),
	}
	return u.String()
}
