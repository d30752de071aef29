// Package config loads the mig YAML configuration file describing the
// target database, migrations directory, and optional Redis lock.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig describes the target database connection.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // sqlite, mysql or postgres
	Path     string `yaml:"path"`   // sqlite file path
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"` // postgres only
}

// MigrationsConfig describes where migration scripts live and which table
// records applied versions.
type MigrationsConfig struct {
	Dir   string `yaml:"dir"`
	Table string `yaml:"table"`
}

// LockConfig configures the optional Redis-based migration lock. A lock is
// used when Addr is non-empty.
type LockConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// Config is the root of the mig configuration file.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Migrations MigrationsConfig `yaml:"migrations"`
	Lock       LockConfig       `yaml:"lock"`
}

// LoadConfig reads and parses the YAML file at path, applying defaults for
// optional fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Migrations.Dir == "" {
		c.Migrations.Dir = "migrations"
	}
	if c.Migrations.Table == "" {
		c.Migrations.Table = "schema_migrations"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.Port == 0 {
		switch c.Database.Driver {
		case "mysql":
			c.Database.Port = 3306
		case "postgres":
			c.Database.Port = 5432
		}
	}
	if c.Lock.TTLSeconds == 0 {
		c.Lock.TTLSeconds = 300
	}
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("config: sqlite driver requires database.path")
		}
	case "mysql", "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("config: %s driver requires database.host", c.Database.Driver)
		}
		if c.Database.Database == "" {
			return fmt.Errorf("config: %s driver requires database.database", c.Database.Driver)
		}
	case "":
		return fmt.Errorf("config: database.driver is required")
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	return nil
}

// DSN builds the driver-specific connection string.
func (c *Config) DSN() string {
	db := c.Database
	switch db.Driver {
	case "sqlite":
		return db.Path
	case "mysql":
		// multiStatements lets a single migration script contain several
		// statements; parseTime matches the runner's timestamp handling.
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
			db.Username, db.Password, db.Host, db.Port, db.Database)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
	}
	return ""
}
