package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"intervene/internal/app"
	"intervene/internal/db"
	"intervene/internal/engine"
)

const rootLong = `Intervene plans bundles of governance interventions.
Core concepts:
- Bundle: a named set of interventions planned over a window of weeks (26 by default).
- Intervention: a unit of work with a complexity (Low, Medium, High), a zone, micro tasks and resources.
- Dependency: a directed edge "from must finish before to starts". Edges may repeat; cycles and self loops are rejected.
- Validation: reports cycles and resources shared across parallel edges.
- Timeline: each intervention lasts clamp(base + ceil(tasks/4), 1, window) weeks and starts the week after its last predecessor ends.
- Event log: every change is recorded, view with 'iv log tail'.`

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "iv",
		Short:         "Intervene CLI",
		Long:          rootLong,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := log.WarnLevel
			if viper.GetBool("verbose") {
				level = log.DebugLevel
			}
			cmd.SetContext(withLogger(cmd.Context(), newLogger(os.Stderr, level)))
			if _, err := db.EnsureWorkspace(viper.GetString("workspace")); err != nil {
				return err
			}
			return nil
		},
	}
	addPersistentFlags(root)
	registerCommands(root)
	return root
}

func main() {
	cobra.OnInitialize(initConfig)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(exitCode(err))
	}
}

func initConfig() {
	viper.SetEnvPrefix("INTERVENE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags(root *cobra.Command) {
	root.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	root.PersistentFlags().Bool("json", false, "output JSON")
	root.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose logging")
	for _, name := range []string{"workspace", "json", "actor-id", "verbose"} {
		_ = viper.BindPFlag(name, root.PersistentFlags().Lookup(name))
	}
}

func registerCommands(root *cobra.Command) {
	root.AddCommand(bundleCmd())
	root.AddCommand(interventionCmd())
	root.AddCommand(depCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(timelineCmd())
	root.AddCommand(logCmd())
	root.AddCommand(configCmd())
	root.AddCommand(serveCmd())
}

// exitCode is 2 for rejected dependencies and invalid bundles, 1 otherwise.
func exitCode(err error) int {
	if engine.IsRejected(err) || errors.Is(err, errBundleInvalid) {
		return 2
	}
	return 1
}

func withWorkspace(ctx context.Context, fn func(context.Context, *app.Workspace) error) error {
	ws, err := app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		Logger:    loggerFromContext(ctx),
	})
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withWorkspace(ctx, func(ctx context.Context, ws *app.Workspace) error {
		return fn(ctx, ws.Engine)
	})
}

func actorID() string {
	return viper.GetString("actor-id")
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(cmd *cobra.Command, name, value string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}

func optionalInt(cmd *cobra.Command, name string, value int) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}
