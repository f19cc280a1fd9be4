// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

var Module = fx.Module("config",
	fx.Provide(Load),
)

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Observability ObservabilityConfig
	Publish       PublishConfig
	Scheduler     SchedulerConfig
}

type ServerConfig struct {
	Addr string
	Mode string
}

type DatabaseConfig struct {
	Driver                 string
	Host                   string
	Port                   int
	User                   string
	Password               string
	Name                   string
	SSLMode                string
	Path                   string
	MaxOpenConns           int
	MaxIdleConns           int
	ConnMaxLifetimeMinutes int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ObservabilityConfig struct {
	ServiceName  string
	OTLPEndpoint string
}

type PublishConfig struct {
	// Workers bounds the recomputation fan-out during publish.
	Workers int
}

type SchedulerConfig struct {
	PollIntervalSeconds int
	BatchSize           int
}

func (c ObservabilityConfig) TracingEnabled() bool {
	return strings.TrimSpace(c.OTLPEndpoint) != ""
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// DSN builds the driver-specific connection string.
func (c DatabaseConfig) DSN() string {
	switch c.Driver {
	case DriverPostgres:
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
		)
	case DriverMySQL:
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Name,
		)
	case DriverSQLite:
		if c.Path == "" {
			return "file:mutua.db?cache=shared"
		}
		return c.Path
	default:
		return ""
	}
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("MUTUA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "mutua")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "mutua")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime_minutes", 30)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("observability.service_name", "mutua")
	v.SetDefault("observability.otlp_endpoint", "")

	v.SetDefault("publish.workers", 4)

	v.SetDefault("scheduler.poll_interval_seconds", 10)
	v.SetDefault("scheduler.batch_size", 50)

	cfg := Config{
		Server: ServerConfig{
			Addr: v.GetString("server.addr"),
			Mode: v.GetString("server.mode"),
		},
		Database: DatabaseConfig{
			Driver:                 strings.ToLower(v.GetString("database.driver")),
			Host:                   v.GetString("database.host"),
			Port:                   v.GetInt("database.port"),
			User:                   v.GetString("database.user"),
			Password:               v.GetString("database.password"),
			Name:                   v.GetString("database.name"),
			SSLMode:                v.GetString("database.sslmode"),
			Path:                   v.GetString("database.path"),
			MaxOpenConns:           v.GetInt("database.max_open_conns"),
			MaxIdleConns:           v.GetInt("database.max_idle_conns"),
			ConnMaxLifetimeMinutes: v.GetInt("database.conn_max_lifetime_minutes"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Observability: ObservabilityConfig{
			ServiceName:  v.GetString("observability.service_name"),
			OTLPEndpoint: v.GetString("observability.otlp_endpoint"),
		},
		Publish: PublishConfig{
			Workers: v.GetInt("publish.workers"),
		},
		Scheduler: SchedulerConfig{
			PollIntervalSeconds: v.GetInt("scheduler.poll_interval_seconds"),
			BatchSize:           v.GetInt("scheduler.batch_size"),
		},
	}

	switch cfg.Database.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	return &cfg, nil
}
