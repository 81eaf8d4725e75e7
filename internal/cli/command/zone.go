package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/dzmesh-go/internal/cli/output"
	"github.com/yndnr/dzmesh-go/internal/server/httpserver/handler"
)

// ZoneCommand returns the zone subcommand group.
func ZoneCommand() *cli.Command {
	return &cli.Command{
		Name:  "zone",
		Usage: "inspect zones linked to the world",
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "list linked zone processes (world only)",
				Action:  zoneList,
			},
		},
	}
}

func zoneList(c *cli.Context) error {
	cl, ctx, cancel := client(c)
	defer cancel()

	var result struct {
		Zones []handler.ZoneView `json:"zones"`
		Total int                `json:"total"`
	}
	if err := cl.GetData(ctx, "/admin/v1/zones", &result); err != nil {
		return err
	}
	if ParseGlobalFlags(c).Output != output.FormatTable {
		return render(c, result, nil)
	}
	return render(c, result.Zones, nil)
}
