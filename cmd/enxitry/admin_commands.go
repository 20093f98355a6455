package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/enxitry/enxitry/internal/enxitry/service"
)

func newOccupantsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "occupants",
		Short: "List people currently in the room",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAdmin(cmd.Context(), func(a *service.Admin) error {
				recs, err := a.Occupants(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, recs)
				}
				out := cmd.OutOrStdout()
				if len(recs) == 0 {
					fmt.Fprintln(out, "Nobody is in the room.")
					return nil
				}
				rows := make([][]string, len(recs))
				for i, r := range recs {
					rows[i] = []string{r.ExternalID, r.Name, since(r.EnteredAt)}
				}
				fmt.Fprintln(out, renderTable(out, []string{"ID", "Name", "Entered"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var (
		asJSON bool
		person string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent attendance events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAdmin(cmd.Context(), func(a *service.Admin) error {
				events, err := a.Events(cmd.Context(), person, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, events)
				}
				loc := ctx.config.Location()
				rows := make([][]string, len(events))
				for i, e := range events {
					rows[i] = []string{
						e.Timestamp.In(loc).Format("2006-01-02 15:04:05"),
						since(e.Timestamp),
						e.PersonExternalID,
						string(e.Action),
					}
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(out, []string{"Time", "", "Person", "Action"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	cmd.Flags().StringVar(&person, "person", "", "Only show events for this external id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of events (0 for all)")
	return cmd
}

func newUnregisterCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unregister <external-id>",
		Short: "Remove a person and unbind their card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAdmin(cmd.Context(), func(a *service.Admin) error {
				p, err := a.Unregister(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Unregistered %s (%s)\n", p.Name, p.ExternalID)
				return nil
			})
		},
	}
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <roster.yaml|->",
		Short: "Import or update people from a YAML roster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open roster: %w", err)
				}
				defer f.Close()
				in = f
			}
			return ctx.withAdmin(cmd.Context(), func(a *service.Admin) error {
				res, err := a.Import(cmd.Context(), in)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(out,
					[]string{"Added", "Updated", "Unchanged", "Rejected"},
					[][]string{{
						strconv.Itoa(res.Added),
						strconv.Itoa(res.Updated),
						strconv.Itoa(res.Unchanged),
						strconv.Itoa(len(res.Rejected)),
					}},
					[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
				))
				for _, rerr := range res.Rejected {
					fmt.Fprintf(cmd.ErrOrStderr(), "rejected: %v\n", rerr)
				}
				return nil
			})
		},
	}
}

func since(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}
