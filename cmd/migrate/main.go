// Command migrate moves the PostgreSQL schema between migration versions and
// authors new migrations. Without --path the migrations compiled into the
// binary are used.
package main

import (
	"database/sql"
	"fmt"
	"io/fs"
	"os"

	_ "github.com/lib/pq"
	"github.com/procurement/backend/internal/infrastructure/config"
	"github.com/procurement/backend/internal/infrastructure/logger"
	"github.com/procurement/backend/internal/infrastructure/migration"
	"github.com/procurement/backend/migrations"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "migrate",
		Usage: "apply and author schema migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Usage: "migrations `DIR`, embedded migrations when omitted"},
			&cli.StringFlag{Name: "log-level", Value: "info"},
		},
		Commands: []*cli.Command{
			schemaCommand("up", "apply all pending migrations", func(c *cli.Context, m *migration.Migrator) error {
				return m.Up()
			}),
			schemaCommand("down", "roll back every migration", func(c *cli.Context, m *migration.Migrator) error {
				return m.Down()
			}),
			schemaCommand("step", "apply N migrations, roll back when N is negative", func(c *cli.Context, m *migration.Migrator) error {
				n, err := intArg(c)
				if err != nil {
					return err
				}
				return m.Steps(n)
			}),
			schemaCommand("goto", "migrate up or down to version V", func(c *cli.Context, m *migration.Migrator) error {
				v, err := intArg(c)
				if err != nil {
					return err
				}
				if v < 0 {
					return cli.Exit(fmt.Sprintf("version %d is negative", v), 2)
				}
				return m.Goto(uint(v))
			}),
			schemaCommand("force", "mark version V applied, repairing a dirty schema", func(c *cli.Context, m *migration.Migrator) error {
				v, err := intArg(c)
				if err != nil {
					return err
				}
				return m.Force(v)
			}),
			schemaCommand("version", "print the applied version", func(c *cli.Context, m *migration.Migrator) error {
				v, dirty, err := m.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "version %d dirty=%t\n", v, dirty)
				return nil
			}),
			{
				Name:  "list",
				Usage: "list the available migrations",
				Action: func(c *cli.Context) error {
					var src fs.FS = migrations.FS
					if dir := c.String("path"); dir != "" {
						src = os.DirFS(dir)
					}
					names, err := migration.ListMigrations(src)
					if err != nil {
						return err
					}
					for _, n := range names {
						fmt.Fprintln(c.App.Writer, n)
					}
					return nil
				},
			},
			{
				Name:      "create",
				Usage:     "write an empty up/down pair",
				ArgsUsage: "<name> [description]",
				Action: func(c *cli.Context) error {
					name := c.Args().First()
					if name == "" {
						return cli.Exit("create needs a migration name", 2)
					}
					dir := c.String("path")
					if dir == "" {
						dir = "migrations"
					}
					mf, err := migration.CreateMigration(dir, name, c.Args().Get(1))
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "created %s\ncreated %s\n", mf.UpPath, mf.DownPath)
					return nil
				},
			},
		},
	}
}

// schemaCommand wraps an operation that needs a migrator on the configured
// database
func schemaCommand(name, usage string, op func(*cli.Context, *migration.Migrator) error) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Action: func(c *cli.Context) error {
			log, err := logger.New(&logger.Config{Level: c.String("log-level"), Format: "console", Output: "stderr"})
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			m, closeDB, err := openMigrator(c.String("path"), log)
			if err != nil {
				return err
			}
			defer closeDB()
			defer m.Close()

			if err := op(c, m); err != nil {
				log.Error("migration failed", zap.String("command", name), zap.Error(err))
				return err
			}
			return nil
		},
	}
}

func openMigrator(dir string, log *zap.Logger) (*migration.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Database.Driver != "postgres" {
		return nil, nil, fmt.Errorf("migrations target PostgreSQL, database.driver is %q", cfg.Database.Driver)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	m, err := migration.New(db, dir, log)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return m, func() { _ = db.Close() }, nil
}

func intArg(c *cli.Context) (int, error) {
	var n int
	if _, err := fmt.Sscan(c.Args().First(), &n); err != nil {
		return 0, cli.Exit(fmt.Sprintf("%s needs an integer argument", c.Command.Name), 2)
	}
	return n, nil
}
