package command

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/dzmesh-go/internal/cli/output"
	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/internal/core/service"
	"github.com/yndnr/dzmesh-go/internal/infra/confloader"
	"github.com/yndnr/dzmesh-go/internal/server/config"
	"github.com/yndnr/dzmesh-go/internal/storage/sqlstore"
	"github.com/yndnr/dzmesh-go/internal/telemetry/logger"
)

// DBCommand returns the database subcommand group.
func DBCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "server configuration file to read the database section from",
			EnvVars: []string{"DZMESH_CONFIG"},
		},
		&cli.StringFlag{Name: "driver", Usage: "database driver: sqlite or pgx"},
		&cli.StringFlag{Name: "dsn", Usage: "database DSN"},
	}
	return &cli.Command{
		Name:  "db",
		Usage: "work on the shared expedition database",
		Subcommands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "apply pending schema migrations",
				Flags:  flags,
				Action: dbMigrate,
			},
			{
				Name:   "version",
				Usage:  "print the applied schema version",
				Flags:  flags,
				Action: dbVersion,
			},
			{
				Name:    "expeditions",
				Aliases: []string{"exp"},
				Usage:   "list persisted expeditions",
				Flags:   flags,
				Action:  dbExpeditions,
			},
		},
	}
}

// databaseConfig resolves the database section: defaults, then the config
// file and DZMESH_* environment, then --driver and --dsn.
func databaseConfig(c *cli.Context) (config.DatabaseSection, error) {
	cfg := config.Default()

	var opts []confloader.Option
	if path := c.String("config"); path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	overrides := map[string]any{}
	if c.IsSet("driver") {
		overrides["database.driver"] = c.String("driver")
	}
	if c.IsSet("dsn") {
		overrides["database.dsn"] = c.String("dsn")
	}
	if len(overrides) > 0 {
		opts = append(opts, confloader.WithOverrides(overrides))
	}

	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return config.DatabaseSection{}, fmt.Errorf("load config: %w", err)
	}
	return cfg.Database, nil
}

func openDB(c *cli.Context) (*sql.DB, sqlstore.Dialect, error) {
	dbc, err := databaseConfig(c)
	if err != nil {
		return nil, "", err
	}
	dialect, err := sqlstore.ParseDialect(dbc.Driver)
	if err != nil {
		return nil, "", err
	}
	db, err := sqlstore.Open(c.Context, sqlstore.Options{
		Dialect:      dialect,
		DSN:          dbc.DSN,
		MaxOpenConns: 1,
	})
	if err != nil {
		return nil, "", fmt.Errorf("%w (dsn %s)", err, config.MaskDSN(dbc.DSN))
	}
	return db, dialect, nil
}

func dbMigrate(c *cli.Context) error {
	db, dialect, err := openDB(c)
	if err != nil {
		return err
	}
	defer db.Close()

	log, err := logger.New(logger.Config{Level: "info", Format: "text", Output: c.App.ErrWriter})
	if err != nil {
		return err
	}
	if err := sqlstore.Migrate(c.Context, db, dialect, log.Slog()); err != nil {
		return err
	}
	return printVersion(c, db, dialect)
}

func dbVersion(c *cli.Context) error {
	db, dialect, err := openDB(c)
	if err != nil {
		return err
	}
	defer db.Close()
	return printVersion(c, db, dialect)
}

func printVersion(c *cli.Context, db *sql.DB, dialect sqlstore.Dialect) error {
	v, err := sqlstore.MigrationVersion(c.Context, db, dialect)
	if err != nil {
		return err
	}
	result := map[string]any{"dialect": string(dialect), "version": v}
	if ParseGlobalFlags(c).Output != output.FormatTable {
		return render(c, result, nil)
	}
	fmt.Fprintf(c.App.Writer, "schema version %d (%s)\n", v, dialect)
	return nil
}

// storedExpedition is one row of db expeditions.
type storedExpedition struct {
	ID         uint32        `json:"id"`
	UUID       string        `json:"uuid" table:"wide"`
	Name       string        `json:"name"`
	Leader     string        `json:"leader"`
	Members    int           `json:"members"`
	MaxPlayers uint32        `json:"max_players"`
	ZoneID     uint32        `json:"zone_id"`
	InstanceID uint32        `json:"instance_id"`
	Remaining  time.Duration `json:"remaining"`
	Lockouts   int           `json:"lockouts" table:"wide"`
	IsLocked   bool          `json:"is_locked"`
}

func toStored(e *domain.Expedition, now time.Time) storedExpedition {
	remaining := e.Instance.StartTime.Add(e.Instance.Duration).Sub(now).Truncate(time.Second)
	if e.Instance.Duration == 0 || remaining < 0 {
		remaining = 0
	}
	return storedExpedition{
		ID:         e.ID,
		UUID:       e.UUID,
		Name:       e.Name,
		Leader:     e.Leader().CharacterName,
		Members:    e.MemberCount(),
		MaxPlayers: e.MaxPlayers,
		ZoneID:     e.Instance.ZoneID,
		InstanceID: e.Instance.InstanceID,
		Remaining:  remaining,
		Lockouts:   len(e.Lockouts()),
		IsLocked:   e.IsLocked,
	}
}

func dbExpeditions(c *cli.Context) error {
	db, dialect, err := openDB(c)
	if err != nil {
		return err
	}
	store := sqlstore.New(db, dialect)
	defer store.Close()

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()
	exps, err := service.LoadExpeditions(ctx, store, nil)
	if err != nil {
		return err
	}

	now := time.Now()
	rows := make([]storedExpedition, 0, len(exps))
	for _, e := range exps {
		rows = append(rows, toStored(e, now))
	}
	if ParseGlobalFlags(c).Output != output.FormatTable {
		return render(c, map[string]any{"expeditions": rows, "total": len(rows)}, nil)
	}
	if err := render(c, rows, nil); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%d expedition(s)\n", len(rows))
	return nil
}
