package command

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/dzmesh-go/internal/cli/connection"
	"github.com/yndnr/dzmesh-go/internal/cli/output"
	"github.com/yndnr/dzmesh-go/internal/server/httpserver/handler"
)

// StatusCommand shows the status summary of a process.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "show role, identity and cache size of a process",
		Action: status,
	}
}

// HealthCommand checks liveness.
func HealthCommand() *cli.Command {
	return &cli.Command{
		Name:   "health",
		Usage:  "check that a process is alive",
		Action: health,
	}
}

// ReadyCommand checks readiness and fails when any check fails.
func ReadyCommand() *cli.Command {
	return &cli.Command{
		Name:   "ready",
		Usage:  "check database and world link readiness",
		Action: ready,
	}
}

func status(c *cli.Context) error {
	cl, ctx, cancel := client(c)
	defer cancel()

	var s handler.StatusSummary
	if err := cl.GetData(ctx, "/admin/v1/status/summary", &s); err != nil {
		return err
	}

	t := &output.Table{Headers: []string{"FIELD", "VALUE"}}
	t.AddRow("role", s.Role)
	if s.ZoneID != 0 || s.InstanceID != 0 {
		t.AddRow("zone", fmt.Sprintf("%d:%d", s.ZoneID, s.InstanceID))
	}
	t.AddRow("expeditions", strconv.Itoa(s.Expeditions))
	if s.Zones != nil {
		t.AddRow("zones", strconv.Itoa(*s.Zones))
	}
	if s.LinkUp != nil {
		t.AddRow("link_up", strconv.FormatBool(*s.LinkUp))
	}
	t.AddRow("version", s.Build.Version)
	t.AddRow("commit", s.Build.Commit)
	return render(c, s, t)
}

func health(c *cli.Context) error {
	cl, ctx, cancel := client(c)
	defer cancel()

	var result struct {
		Status string `json:"status"`
	}
	if err := cl.GetData(ctx, "/health", &result); err != nil {
		return fmt.Errorf("%s is unhealthy: %w", cl.BaseURL(), err)
	}
	if ParseGlobalFlags(c).Output != output.FormatTable {
		return render(c, result, nil)
	}
	fmt.Fprintf(c.App.Writer, "%s is %s\n", cl.BaseURL(), result.Status)
	return nil
}

func ready(c *cli.Context) error {
	cl, ctx, cancel := client(c)
	defer cancel()

	var result struct {
		Status string            `json:"status"`
		Failed map[string]string `json:"failed,omitempty"`
	}
	err := cl.GetData(ctx, "/ready", &result)
	var apiErr *connection.APIError
	if err != nil && !(errors.As(err, &apiErr) && result.Status != "") {
		return err
	}

	if ParseGlobalFlags(c).Output != output.FormatTable {
		if rerr := render(c, result, nil); rerr != nil {
			return rerr
		}
	} else {
		fmt.Fprintf(c.App.Writer, "%s is %s\n", cl.BaseURL(), result.Status)
		names := make([]string, 0, len(result.Failed))
		for name := range result.Failed {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(c.App.Writer, "  %s: %s\n", name, result.Failed[name])
		}
	}
	if len(result.Failed) > 0 {
		return cli.Exit("not ready", 2)
	}
	return nil
}
