package command

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/dzmesh-go/internal/cli/connection"
	"github.com/yndnr/dzmesh-go/internal/cli/output"
	"github.com/yndnr/dzmesh-go/internal/infra/buildinfo"
)

// App creates the CLI application.
func App() *cli.App {
	info := buildinfo.Get()
	return &cli.App{
		Name:    "dzmesh-cli",
		Usage:   "dzmesh expedition sync administration tool",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.BuildTime),
		Flags:   globalFlags(),
		Before: func(c *cli.Context) error {
			_, err := output.ParseFormat(c.String("output"))
			return err
		},
		Commands: []*cli.Command{
			StatusCommand(),
			HealthCommand(),
			ReadyCommand(),
			ExpeditionCommand(),
			ZoneCommand(),
			DBCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "admin address of a world or zone process",
			EnvVars: []string{"DZMESH_ADMIN"},
			Value:   "127.0.0.1:7180",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "show extra columns",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "request timeout",
			Value: connection.DefaultTimeout,
		},
	}
}

// GlobalFlags are the flags shared by every command.
type GlobalFlags struct {
	Server string
	Output output.Format
	Wide   bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	format, _ := output.ParseFormat(c.String("output"))
	return &GlobalFlags{
		Server: c.String("server"),
		Output: format,
		Wide:   c.Bool("wide"),
	}
}

// client builds the admin client and a request context for c.
func client(c *cli.Context) (*connection.Client, context.Context, context.CancelFunc) {
	timeout := c.Duration("timeout")
	ctx, cancel := context.WithTimeout(c.Context, timeout)
	return connection.NewClient(c.String("server"), timeout), ctx, cancel
}

// render writes data in the selected format. table, when non-nil, replaces
// data for table output.
func render(c *cli.Context, data any, table *output.Table) error {
	flags := ParseGlobalFlags(c)
	if flags.Output == output.FormatTable && table != nil {
		return table.Render(c.App.Writer)
	}
	return output.NewFormatter(flags.Output, flags.Wide).Format(c.App.Writer, data)
}
