package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/burugo/mig"
	"github.com/burugo/mig/drivers/db/mysql"
	"github.com/burugo/mig/drivers/db/postgres"
	"github.com/burugo/mig/drivers/db/sqlite"
	"github.com/burugo/mig/internal/config"
	"github.com/burugo/mig/internal/migration"
	redislock "github.com/burugo/mig/lock/redis"
)

var (
	cfgPath string
	verbose bool
	logger  = logrus.New()
)

func main() {
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(logrus.InfoLevel)

	rootCmd := &cobra.Command{
		Use:   "mig",
		Short: "Database schema migration tool",
		Long:  "mig applies versioned SQL migrations against SQLite, MySQL and PostgreSQL databases.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logger.SetLevel(logrus.DebugLevel)
			}
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "mig.yaml", "path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(upCmd(), downCmd(), statusCmd(), newCmd())

	if err := rootCmd.Execute(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func upCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, cleanup, err := buildMigrator()
			if err != nil {
				return err
			}
			defer cleanup()
			return m.Up(cmd.Context())
		},
	}
}

func downCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, cleanup, err := buildMigrator()
			if err != nil {
				return err
			}
			defer cleanup()
			return m.Down(cmd.Context(), steps)
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "number of migrations to roll back")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, cleanup, err := buildMigrator()
			if err != nil {
				return err
			}
			defer cleanup()

			statuses, err := m.Status(cmd.Context())
			if err != nil {
				return err
			}
			if len(statuses) == 0 {
				fmt.Println("no migrations found")
				return nil
			}
			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = "applied"
				}
				fmt.Printf("%d\t%s\t%s\n", s.Version, s.Name, state)
			}
			return nil
		},
	}
}

func newCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new <name>",
		Short: "Create a new pair of up/down migration files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.Migrations.Dir, 0o755); err != nil {
				return fmt.Errorf("failed to create migrations directory: %w", err)
			}

			version := time.Now().Format("20060102150405")
			for _, direction := range []string{"up", "down"} {
				name := fmt.Sprintf("%s_%s.%s.sql", version, args[0], direction)
				path := filepath.Join(cfg.Migrations.Dir, name)
				if err := os.WriteFile(path, []byte("-- "+args[0]+" ("+direction+")\n"), 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", path, err)
				}
				logger.Infof("Created %s", path)
			}
			return nil
		},
	}
}

// buildMigrator loads config, opens the database connection and wires the
// optional Redis lock. The cleanup function closes everything.
func buildMigrator() (*migration.Migrator, func(), error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, nil, err
	}

	conn, err := openConn(cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanups := []func(){func() {
		if err := conn.Close(); err != nil {
			logger.Warnf("Error closing database connection: %v", err)
		}
	}}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	m := migration.NewMigrator(conn, cfg.Migrations.Dir)
	m.SetTable(cfg.Migrations.Table)
	m.SetLogger(logger)

	if cfg.Lock.Addr != "" {
		lock, lockCleanup, err := redislock.New(redislock.Options{
			Addr:     cfg.Lock.Addr,
			Password: cfg.Lock.Password,
			DB:       cfg.Lock.DB,
			TTL:      time.Duration(cfg.Lock.TTLSeconds) * time.Second,
		})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		cleanups = append(cleanups, lockCleanup)
		m.UseLock(lock)
	}

	return m, cleanup, nil
}

func openConn(cfg *config.Config) (mig.Conn, error) {
	dsn := cfg.DSN()
	switch cfg.Database.Driver {
	case "sqlite":
		return sqlite.NewAdapter(dsn)
	case "mysql":
		return mysql.NewAdapter(dsn)
	case "postgres":
		return postgres.NewAdapter(dsn)
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
}
