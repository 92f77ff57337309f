package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"intervene/internal/domain"
	"intervene/internal/engine"
	"intervene/internal/plan"
)

func depCmd() *cobra.Command {
	dep := &cobra.Command{
		Use:   "dep",
		Short: "Manage dependencies between interventions",
		Long:  "An edge <from> <to> means <to> starts after <from> ends. Identical edges may be added more than once; remove and update act on every copy.",
	}
	dep.AddCommand(depAddCmd())
	dep.AddCommand(depRemoveCmd())
	dep.AddCommand(depUpdateCmd())
	dep.AddCommand(depListCmd())
	return dep
}

func depAddCmd() *cobra.Command {
	var typ, description string
	var critical bool
	cmd := &cobra.Command{
		Use:   "add <bundle-id> <from> <to>",
		Short: "Add a dependency; rejected when it would create a cycle",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				edge, err := e.AddDependency(ctx, engine.DependencyAddOptions{
					BundleID: args[0],
					Edge: domain.DependencyEdge{
						Type:               domain.DependencyType(typ),
						FromInterventionID: args[1],
						ToInterventionID:   args[2],
						CriticalPath:       critical,
						Description:        description,
					},
					ActorID: actorID(),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(edge)
				}
				fmt.Printf("Added %s dependency %s -> %s\n", edge.Type, edge.FromInterventionID, edge.ToInterventionID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&typ, "type", "t", "sequence", "sequence, parallel or conditional")
	cmd.Flags().BoolVar(&critical, "critical", false, "mark the edge as critical path")
	cmd.Flags().StringVar(&description, "description", "", "description")
	return cmd
}

func depRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <bundle-id> <from> <to>",
		Short: "Remove every dependency from -> to",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.RemoveDependency(ctx, args[0], args[1], args[2], actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"removed": n})
				}
				fmt.Printf("Removed %d dependencies %s -> %s\n", n, args[1], args[2])
				return nil
			})
		},
	}
}

func depUpdateCmd() *cobra.Command {
	var typ, description string
	var critical bool
	cmd := &cobra.Command{
		Use:   "update <bundle-id> <from> <to>",
		Short: "Update every dependency from -> to",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch plan.EdgePatch
			if cmd.Flags().Changed("type") {
				t := domain.DependencyType(typ)
				patch.Type = &t
			}
			if cmd.Flags().Changed("critical") {
				patch.CriticalPath = &critical
			}
			patch.Description = optionalString(cmd, "description", description)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.UpdateDependency(ctx, engine.DependencyUpdateOptions{
					BundleID: args[0],
					From:     args[1],
					To:       args[2],
					Patch:    patch,
					ActorID:  actorID(),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"updated": n})
				}
				fmt.Printf("Updated %d dependencies %s -> %s\n", n, args[1], args[2])
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&typ, "type", "t", "", "sequence, parallel or conditional")
	cmd.Flags().BoolVar(&critical, "critical", false, "critical path flag")
	cmd.Flags().StringVar(&description, "description", "", "description")
	return cmd
}

func depListCmd() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "list <bundle-id>",
		Short: "List dependencies in insertion order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				edges, err := e.ListDependencies(ctx, args[0], to)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(edges)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"#", "From", "To", "Type", "Critical", "Description"})
				for i, d := range edges {
					tw.AppendRow(table.Row{i + 1, d.FromInterventionID, d.ToInterventionID, d.Type, d.CriticalPath, d.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "only dependencies of this intervention")
	return cmd
}
