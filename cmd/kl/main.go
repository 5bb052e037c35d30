package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"kilnline/internal/app"
	"kilnline/internal/filter"
	"kilnline/internal/repo"
)

var logger = zap.NewNop()

var rootCmd = &cobra.Command{
	Use:   "kl",
	Short: "Kilnline workshop CLI",
	Long: `Kilnline follows handmade instrument orders through the workshop:
ordered, build, dry, fire, smoke, tuning, packing, shipping.

Attributes (type, tuning, color, frequency) are resolved from the serial table,
the item's own fields and its order, in that order. Filters always work item
by item; orders are listed through the items that matched.

Drying completes by itself a few days after build, and smoke firing completes
by itself for smoke-fired finishes. Checking or unchecking either stage by hand
overrides that.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if strings.EqualFold(viper.GetString("log-level"), "debug") {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		l, err := cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// initConfig loads the workspace .env before viper reads the environment.
func initConfig() {
	workspace := viper.GetString("workspace")
	if workspace == "" {
		workspace = "."
	}
	_ = godotenv.Load(filepath.Join(workspace, ".env"))
	viper.SetEnvPrefix("KILNLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("workspace", "w", ".", "workspace directory")
	pf.Bool("json", false, "output JSON")
	pf.String("user", "local-user", "who is working; keys preferences and is recorded on writes")
	pf.String("remote", "", "base URL of a kilnline server to work against")
	pf.String("log-level", "info", "log level (info or debug)")
	for _, name := range []string{"workspace", "json", "user", "remote", "log-level"} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(itemsCmd())
	rootCmd.AddCommand(ordersCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(stageCmd())
	rootCmd.AddCommand(notesCmd())
	rootCmd.AddCommand(archiveCmd())
	rootCmd.AddCommand(boxCmd())
	rootCmd.AddCommand(boxesCmd())
	rootCmd.AddCommand(waitingCmd())
	rootCmd.AddCommand(prefsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- helpers ---

func withWorkshop(ctx context.Context, fn func(context.Context, *app.Workshop) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	w, err := app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		Remote:    viper.GetString("remote"),
		User:      viper.GetString("user"),
		Log:       logger,
	})
	if err != nil {
		return err
	}
	defer w.Close()
	ctx = repo.WithActor(ctx, viper.GetString("user"))
	return fn(ctx, w)
}

// withLocalWorkshop is withWorkshop for commands that need the database.
func withLocalWorkshop(ctx context.Context, fn func(context.Context, *app.Workshop) error) error {
	return withWorkshop(ctx, func(ctx context.Context, w *app.Workshop) error {
		if w.Conn == nil {
			return fmt.Errorf("this command needs the local database; drop --remote")
		}
		return fn(ctx, w)
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type filterFlags struct {
	itemType     string
	tuning       string
	colors       []string
	frequency    string
	reseller     string
	resellerName string
	stage        string
	search       string
	selected     []int64
	archived     bool
}

func (f *filterFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.itemType, "type", "", "instrument line (INNATO, NATEY, DOUBLE, ZEN, OVA, CARDS)")
	fl.StringVar(&f.tuning, "tuning", "", "tuning note, e.g. Am3 or C#4")
	fl.StringSliceVar(&f.colors, "color", nil, "color codes (B, SB, T, TB, C)")
	fl.StringVar(&f.frequency, "hz", "", "frequency (432, 440, 64)")
	fl.StringVar(&f.reseller, "reseller", "", "none, any, direct or specific")
	fl.StringVar(&f.resellerName, "reseller-name", "", "reseller nickname for --reseller specific")
	fl.StringVar(&f.stage, "stage", "", "current stage")
	fl.StringVarP(&f.search, "search", "s", "", "free-text search")
	fl.Int64SliceVar(&f.selected, "only", nil, "restrict to these item ids")
	fl.BoolVar(&f.archived, "archived", false, "include archived orders")
}

func (f *filterFlags) criteria(cmd *cobra.Command) (filter.Criteria, error) {
	c := filter.Criteria{}.
		WithType(f.itemType).
		WithTuning(f.tuning).
		WithFrequency(f.frequency).
		WithStage(f.stage).
		WithSearch(f.search).
		WithArchived(f.archived)
	if len(f.colors) > 0 {
		c = c.WithColors(f.colors...)
	}
	kind, ok := filter.ParseResellerKind(f.reseller)
	if !ok {
		return filter.Criteria{}, fmt.Errorf("invalid --reseller %q", f.reseller)
	}
	c = c.WithReseller(kind, f.resellerName)
	if cmd.Flags().Changed("only") {
		c = c.WithSelected(f.selected...)
	}
	return c, nil
}
