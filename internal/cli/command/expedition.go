package command

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/dzmesh-go/internal/cli/output"
	"github.com/yndnr/dzmesh-go/internal/server/httpserver/handler"
)

// ExpeditionCommand returns the expedition subcommand group.
func ExpeditionCommand() *cli.Command {
	return &cli.Command{
		Name:    "expedition",
		Aliases: []string{"exp"},
		Usage:   "inspect cached expeditions",
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "list expeditions",
				Action:  expeditionList,
			},
			{
				Name:      "get",
				Usage:     "show one expedition with its roster and lockouts",
				ArgsUsage: "<id>",
				Action:    expeditionGet,
			},
		},
	}
}

func expeditionList(c *cli.Context) error {
	cl, ctx, cancel := client(c)
	defer cancel()

	var result struct {
		Expeditions []handler.ExpeditionSummary `json:"expeditions"`
		Total       int                         `json:"total"`
	}
	if err := cl.GetData(ctx, "/admin/v1/expeditions", &result); err != nil {
		return err
	}
	if ParseGlobalFlags(c).Output != output.FormatTable {
		return render(c, result, nil)
	}
	return render(c, result.Expeditions, nil)
}

func expeditionGet(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: expedition get <id>", 1)
	}
	id, err := strconv.ParseUint(c.Args().First(), 10, 32)
	if err != nil || id == 0 {
		return cli.Exit(fmt.Sprintf("invalid expedition id %q", c.Args().First()), 1)
	}

	cl, ctx, cancel := client(c)
	defer cancel()

	var d handler.ExpeditionDetail
	if err := cl.GetData(ctx, "/admin/v1/expeditions/"+strconv.FormatUint(id, 10), &d); err != nil {
		return err
	}
	flags := ParseGlobalFlags(c)
	if flags.Output != output.FormatTable {
		return render(c, d, nil)
	}

	w := c.App.Writer
	table := &output.TableFormatter{Wide: flags.Wide}
	if err := table.Format(w, d.ExpeditionSummary); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nRoster (%d/%d):\n", len(d.Roster), d.MaxPlayers)
	if err := table.Format(w, d.Roster); err != nil {
		return err
	}
	if len(d.Lockouts) > 0 {
		fmt.Fprintf(w, "\nLockouts:\n")
		return table.Format(w, d.Lockouts)
	}
	return nil
}
