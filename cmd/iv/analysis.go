package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"intervene/internal/engine"
	"intervene/internal/export"
	"intervene/internal/plan"
	"intervene/internal/repo"
)

var errBundleInvalid = errors.New("bundle is invalid")

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <bundle-id>",
		Short: "Check a bundle for dependency cycles and resource conflicts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.ValidateBundle(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					if err := printJSON(report); err != nil {
						return err
					}
				} else if report.Valid {
					fmt.Println("bundle OK")
				} else {
					for _, msg := range report.Errors {
						fmt.Println("-", msg)
					}
				}
				if !report.Valid {
					return fmt.Errorf("%s: %w", args[0], errBundleInvalid)
				}
				return nil
			})
		},
	}
}

func timelineCmd() *cobra.Command {
	var weeks int
	var gantt bool
	cmd := &cobra.Command{
		Use:   "timeline <bundle-id>",
		Short: "Compute the week-by-week schedule of a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tl, err := e.ScheduleBundle(ctx, args[0], weeks)
				if err != nil {
					if errors.Is(err, plan.ErrCycle) {
						return fmt.Errorf("%w (run 'iv validate %s')", err, args[0])
					}
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tl)
				}
				b, err := e.GetBundle(ctx, args[0])
				if err != nil {
					return err
				}
				if gantt {
					fmt.Print(export.RenderGantt(b, tl))
					return nil
				}
				names := map[string]string{}
				for _, iv := range b.Interventions {
					names[iv.ID] = iv.Label()
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Intervention", "Start", "Duration", "End", "Slack", "Critical"})
				for _, entry := range tl.Entries {
					end := fmt.Sprint(entry.EndWeek)
					if entry.ExceedsWindow {
						end += " !"
					}
					tw.AppendRow(table.Row{names[entry.InterventionID], entry.StartWeek, entry.Duration, end, entry.Slack, entry.CriticalPath})
				}
				tw.AppendFooter(table.Row{"Total", "", "", tl.TotalWeeks, "", tl.CriticalCount})
				tw.SetColumnConfigs([]table.ColumnConfig{
					{Number: 2, Align: text.AlignRight},
					{Number: 3, Align: text.AlignRight},
					{Number: 4, Align: text.AlignRight},
					{Number: 5, Align: text.AlignRight},
				})
				tw.Render()
				if len(tl.LongestPath) > 0 {
					fmt.Println("Longest path:", strings.Join(tl.LongestPath, " -> "))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&weeks, "weeks", 0, "planning window (bundle window when 0)")
	cmd.Flags().BoolVar(&gantt, "gantt", false, "draw a gantt chart")
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var f repo.EventFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListEvents(ctx, n, 0, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Bundle", "Entity", "Actor"})
				for _, ev := range items {
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.BundleID, ev.EntityKind + " " + ev.EntityID, ev.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.BundleID, "bundle", "", "bundle filter")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind filter")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id filter")
	return cmd
}
