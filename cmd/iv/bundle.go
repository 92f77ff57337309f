package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"intervene/internal/app"
	"intervene/internal/engine"
	"intervene/internal/export"
)

func bundleCmd() *cobra.Command {
	b := &cobra.Command{Use: "bundle", Short: "Manage intervention bundles"}
	b.AddCommand(bundleCreateCmd())
	b.AddCommand(bundleListCmd())
	b.AddCommand(bundleShowCmd())
	b.AddCommand(bundleUpdateCmd())
	b.AddCommand(bundleDeleteCmd())
	b.AddCommand(bundleImportCmd())
	b.AddCommand(bundleExportCmd())
	return b
}

func bundleCreateCmd() *cobra.Command {
	var opts engine.BundleCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.ActorID = actorID()
				b, err := e.CreateBundle(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(b)
				}
				fmt.Printf("Created bundle %s (%s, %d weeks)\n", b.ID, b.Name, b.TimelineWeeks)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "bundle id (generated when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "bundle name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().IntVar(&opts.TimelineWeeks, "weeks", 0, "planning window in weeks (config default when 0)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func bundleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List bundles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListBundles(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Weeks", "Interventions", "Dependencies", "Updated"})
				for _, b := range items {
					tw.AppendRow(table.Row{b.ID, b.Name, b.TimelineWeeks, len(b.Interventions), len(b.Dependencies), b.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func bundleShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <bundle-id>",
		Short: "Show a bundle with its interventions and dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.GetBundle(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
}

func bundleUpdateCmd() *cobra.Command {
	var name, description string
	var weeks int
	cmd := &cobra.Command{
		Use:   "update <bundle-id>",
		Short: "Update bundle fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.UpdateBundle(ctx, engine.BundleUpdateOptions{
					ID:            args[0],
					Name:          optionalString(cmd, "name", name),
					Description:   optionalString(cmd, "description", description),
					TimelineWeeks: optionalInt(cmd, "weeks", weeks),
					ActorID:       actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "bundle name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().IntVar(&weeks, "weeks", 0, "planning window in weeks")
	return cmd
}

func bundleDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <bundle-id>",
		Short: "Delete a bundle and everything in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteBundle(ctx, args[0], actorID()); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"deleted": args[0]})
				}
				fmt.Printf("Deleted bundle %s\n", args[0])
				return nil
			})
		},
	}
}

func bundleImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Import a bundle or a JSON export",
		Long:  "Import stores interventions and the dependency list as given. Imported edges are not checked for cycles; run 'iv validate' afterwards.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			in, err := export.DecodeBundle(data)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.ImportBundle(ctx, in, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(b)
				}
				fmt.Printf("Imported bundle %s (%d interventions, %d dependencies)\n", b.ID, len(b.Interventions), len(b.Dependencies))
				return nil
			})
		},
	}
}

func bundleExportCmd() *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export <bundle-id>",
		Short: "Export a bundle with its timeline",
		Long:  "Formats: json, csv, text, dot, svg. Without --out the export is printed. With --out it is written to that directory, or to S3 when export.s3.bucket is configured.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				if out == "" {
					_, data, err := ws.Engine.ExportBundle(ctx, args[0], f)
					if err != nil {
						return err
					}
					_, err = os.Stdout.Write(data)
					return err
				}
				dest, err := ws.ExportDestination(ctx, out)
				if err != nil {
					return err
				}
				location, err := ws.Engine.PublishExport(ctx, args[0], f, dest, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"location": location, "format": f})
				}
				fmt.Printf("Exported %s to %s\n", args[0], location)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "export format")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output directory")
	return cmd
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
