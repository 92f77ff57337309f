package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"intervene/internal/domain"
	"intervene/internal/engine"
)

func interventionCmd() *cobra.Command {
	iv := &cobra.Command{Use: "intervention", Short: "Manage interventions in a bundle"}
	iv.AddCommand(interventionAddCmd())
	iv.AddCommand(interventionUpdateCmd())
	iv.AddCommand(interventionRemoveCmd())
	iv.AddCommand(interventionListCmd())
	return iv
}

func interventionAddCmd() *cobra.Command {
	var id, name, zone, complexity string
	var tasks, resources []string
	cmd := &cobra.Command{
		Use:   "add <bundle-id>",
		Short: "Add an intervention",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := parseResources(resources)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				iv, err := e.AddIntervention(ctx, engine.InterventionCreateOptions{
					BundleID:   args[0],
					ID:         id,
					Name:       name,
					Zone:       domain.Zone(zone),
					Complexity: domain.Complexity(complexity),
					MicroTasks: parseTasks(tasks),
					Resources:  res,
					ActorID:    actorID(),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(iv)
				}
				fmt.Printf("Added intervention %s (%s, %d tasks)\n", iv.ID, iv.Complexity, len(iv.MicroTasks))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "intervention id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "intervention name")
	cmd.Flags().StringVar(&zone, "zone", "", "zone: think, act, monitor or innovate")
	cmd.Flags().StringVarP(&complexity, "complexity", "c", "Medium", "Low, Medium or High")
	cmd.Flags().StringArrayVar(&tasks, "task", nil, "micro task title (repeatable)")
	cmd.Flags().StringArrayVar(&resources, "resource", nil, "resource as type:name (repeatable)")
	return cmd
}

func interventionUpdateCmd() *cobra.Command {
	var name, zone, complexity string
	var position int
	var tasks, resources []string
	cmd := &cobra.Command{
		Use:   "update <bundle-id> <intervention-id>",
		Short: "Update intervention fields",
		Long:  "--task and --resource replace the whole list when given.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.InterventionUpdateOptions{
				BundleID: args[0],
				ID:       args[1],
				Name:     optionalString(cmd, "name", name),
				Position: optionalInt(cmd, "position", position),
				ActorID:  actorID(),
			}
			if cmd.Flags().Changed("zone") {
				z := domain.Zone(zone)
				opts.Zone = &z
			}
			if cmd.Flags().Changed("complexity") {
				c := domain.Complexity(complexity)
				opts.Complexity = &c
			}
			if cmd.Flags().Changed("task") {
				mt := parseTasks(tasks)
				opts.MicroTasks = &mt
			}
			if cmd.Flags().Changed("resource") {
				res, err := parseResources(resources)
				if err != nil {
					return err
				}
				opts.Resources = &res
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				iv, err := e.UpdateIntervention(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(iv)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "intervention name")
	cmd.Flags().StringVar(&zone, "zone", "", "zone")
	cmd.Flags().StringVarP(&complexity, "complexity", "c", "", "Low, Medium or High")
	cmd.Flags().IntVar(&position, "position", 0, "display position")
	cmd.Flags().StringArrayVar(&tasks, "task", nil, "micro task title (repeatable)")
	cmd.Flags().StringArrayVar(&resources, "resource", nil, "resource as type:name (repeatable)")
	return cmd
}

func interventionRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <bundle-id> <intervention-id>",
		Short: "Remove an intervention and the dependencies touching it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				dropped, err := e.RemoveIntervention(ctx, args[0], args[1], actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"removed": args[1], "dropped_dependencies": dropped})
				}
				fmt.Printf("Removed intervention %s (%d dependencies dropped)\n", args[1], dropped)
				return nil
			})
		},
	}
}

func interventionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <bundle-id>",
		Short: "List interventions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListInterventions(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Zone", "Complexity", "Tasks", "Resources"})
				for _, iv := range items {
					tw.AppendRow(table.Row{iv.ID, iv.Name, iv.Zone, iv.Complexity, len(iv.MicroTasks), formatResources(iv.Resources)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func parseTasks(titles []string) []domain.MicroTask {
	out := make([]domain.MicroTask, 0, len(titles))
	for _, t := range titles {
		out = append(out, domain.MicroTask{Title: strings.TrimSpace(t)})
	}
	return out
}

// parseResources reads "type:name" pairs; a bare name has an empty type.
func parseResources(specs []string) ([]domain.Resource, error) {
	out := make([]domain.Resource, 0, len(specs))
	for _, s := range specs {
		typ, name, ok := strings.Cut(s, ":")
		if !ok {
			typ, name = "", s
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("invalid resource %q (want type:name)", s)
		}
		out = append(out, domain.Resource{Type: strings.TrimSpace(typ), Name: name})
	}
	return out, nil
}

func formatResources(rs []domain.Resource) string {
	parts := make([]string, 0, len(rs))
	for _, r := range rs {
		if r.Type == "" {
			parts = append(parts, r.Name)
			continue
		}
		parts = append(parts, r.Type+":"+r.Name)
	}
	return strings.Join(parts, ", ")
}
