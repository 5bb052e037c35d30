package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"kilnline/internal/app"
	"kilnline/internal/config"
	"kilnline/internal/db"
	"kilnline/internal/domain"
	"kilnline/internal/migrate"
	"kilnline/internal/prefs"
	"kilnline/internal/server"
	kilnlinesdk "kilnline/sdk/go"
)

func initCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create kilnline.yml and the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				fmt.Printf("%s already exists\n", path)
			} else if os.IsNotExist(err) {
				if name == "" {
					name = "workshop"
				}
				if err := os.WriteFile(path, []byte(config.GenerateDefault(name)), 0o644); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", path)
			} else {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace, Driver: cfg.Storage.Driver, DSN: cfg.Storage.DSN})
			if err != nil {
				return err
			}
			defer conn.Close()
			return migrate.Migrate(conn)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "workshop name")
	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <export.json>",
		Short: "Import orders and items from a JSON export",
		Long: `The export is {"orders": [...], "items": [...]}. Order ids may be numbers or
numeric strings, and specification bags that are not objects are read as empty.
Existing records with the same id are replaced.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var payload struct {
				Orders []domain.Order     `json:"orders"`
				Items  []domain.OrderItem `json:"items"`
			}
			if err := json.Unmarshal(data, &payload); err != nil {
				return fmt.Errorf("invalid export %s: %w", args[0], err)
			}
			if remote := viper.GetString("remote"); remote != "" {
				client := kilnlinesdk.New(remote)
				client.Actor = viper.GetString("user")
				res, err := client.Import(cmd.Context(), payload.Orders, payload.Items)
				if err != nil {
					return err
				}
				return printImport(res.Orders, res.Items, res.Orphans)
			}
			return withLocalWorkshop(cmd.Context(), func(ctx context.Context, w *app.Workshop) error {
				res, err := w.Repo.Import(ctx, payload.Orders, payload.Items)
				if err != nil {
					return err
				}
				logger.Info("import finished")
				return printImport(res.Orders, res.Items, res.Orphans)
			})
		},
	}
}

func printImport(orders, items, orphans int) error {
	if viper.GetBool("json") {
		return printJSON(map[string]int{"orders": orders, "items": items, "orphans": orphans})
	}
	fmt.Printf("imported %d orders, %d items\n", orders, items)
	if orphans > 0 {
		color.New(color.FgYellow).Printf("%d items reference unknown orders and will not be listed\n", orphans)
	}
	return nil
}

func stageCmd() *cobra.Command {
	var undo, order bool
	cmd := &cobra.Command{
		Use:   "stage <id> <stage>",
		Short: "Check (or with --undo uncheck) a stage on an item or order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			name := strings.ToLower(strings.TrimSpace(args[1]))
			return withWorkshop(cmd.Context(), func(ctx context.Context, w *app.Workshop) error {
				if order {
					o, err := w.Engine.SetOrderStage(ctx, id, name, !undo)
					if err != nil {
						return err
					}
					return printResult(o, fmt.Sprintf("order %s: %s %s", o.OrderNumber, name, doneWord(!undo)))
				}
				it, err := w.Engine.SetItemStage(ctx, id, name, !undo)
				if err != nil {
					return err
				}
				return printResult(it, fmt.Sprintf("item %d: %s %s", it.ID, name, doneWord(!undo)))
			})
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "uncheck the stage")
	cmd.Flags().BoolVar(&order, "order", false, "the id is an order id")
	return cmd
}

func doneWord(complete bool) string {
	if complete {
		return color.New(color.FgHiGreen).Sprint("done")
	}
	return color.New(color.FgYellow).Sprint("not done")
}

func printResult(v any, msg string) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	fmt.Println(msg)
	return nil
}

func notesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notes <order-id> <text>",
		Short: "Replace an order's notes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			notes := strings.Join(args[1:], " ")
			return withWorkshop(cmd.Context(), func(ctx context.Context, w *app.Workshop) error {
				o, err := w.Engine.SetOrderNotes(ctx, id, notes)
				if err != nil {
					return err
				}
				return printResult(o, fmt.Sprintf("order %s notes updated", o.OrderNumber))
			})
		},
	}
}

func archiveCmd() *cobra.Command {
	var item, restore bool
	cmd := &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive (or with --restore unarchive) an order or item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withWorkshop(cmd.Context(), func(ctx context.Context, w *app.Workshop) error {
				if item {
					it, err := w.Engine.SetItemArchived(ctx, id, !restore)
					if err != nil {
						return err
					}
					return printResult(it, fmt.Sprintf("item %d archived=%v", it.ID, it.Archived))
				}
				o, err := w.Engine.SetOrderArchived(ctx, id, !restore)
				if err != nil {
					return err
				}
				return printResult(o, fmt.Sprintf("order %s archived=%v", o.OrderNumber, o.Archived))
			})
		},
	}
	cmd.Flags().BoolVar(&item, "item", false, "the id is an item id")
	cmd.Flags().BoolVar(&restore, "restore", false, "unarchive")
	return cmd
}

func boxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "box <order-id> <size> <item-id>...",
		Short: "Pack items of one order into a box; several items share a joint box",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID, err := parseID(args[0])
			if err != nil {
				return err
			}
			ids := make([]int64, 0, len(args)-2)
			for _, a := range args[2:] {
				id, err := parseID(a)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return withWorkshop(cmd.Context(), func(ctx context.Context, w *app.Workshop) error {
				items, err := w.Engine.AssignBox(ctx, orderID, ids, args[1])
				if err != nil {
					return err
				}
				return printResult(items, fmt.Sprintf("%d items packed in a %s box", len(items), args[1]))
			})
		},
	}
}

func prefsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "prefs", Short: "Non-working days and history window"}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkshop(cmd.Context(), func(ctx context.Context, w *app.Workshop) error {
				return printPrefs(w.Prefs.Get())
			})
		},
	})

	var start, end, reason string
	add := &cobra.Command{
		Use:   "add-period",
		Short: "Add a non-working period",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := prefs.ParseDate(start)
			if err != nil {
				return err
			}
			e := s
			if end != "" {
				if e, err = prefs.ParseDate(end); err != nil {
					return err
				}
			}
			return withWorkshop(cmd.Context(), func(ctx context.Context, w *app.Workshop) error {
				p, err := w.Prefs.AddPeriod(ctx, prefs.Period{Start: s, End: e, Reason: reason})
				if err != nil {
					return err
				}
				return printPrefs(p)
			})
		},
	}
	add.Flags().StringVar(&start, "start", "", "first day (YYYY-MM-DD)")
	add.Flags().StringVar(&end, "end", "", "last day (YYYY-MM-DD); defaults to start")
	add.Flags().StringVar(&reason, "reason", "", "reason")
	_ = add.MarkFlagRequired("start")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove-period <index>",
		Short: "Remove a non-working period by its index in prefs show",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[0])
			}
			return withWorkshop(cmd.Context(), func(ctx context.Context, w *app.Workshop) error {
				p, err := w.Prefs.RemovePeriod(ctx, i)
				if err != nil {
					return err
				}
				return printPrefs(p)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "window <days>",
		Short: "Limit reports to orders created in the last N days (0 = no limit)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			days, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid days %q", args[0])
			}
			return withWorkshop(cmd.Context(), func(ctx context.Context, w *app.Workshop) error {
				p, err := w.Prefs.SetHistoryWindow(ctx, days)
				if err != nil {
					return err
				}
				return printPrefs(p)
			})
		},
	})
	return cmd
}

func printPrefs(p prefs.Preferences) error {
	if viper.GetBool("json") {
		return printJSON(p)
	}
	window := "unlimited"
	if p.HistoryWindowDays > 0 {
		window = fmt.Sprintf("%d days", p.HistoryWindowDays)
	}
	fmt.Printf("History window: %s\n", window)
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "Start", "End", "Reason"})
	for i, period := range p.NonWorkingPeriods {
		tw.AppendRow(table.Row{i, period.Start, period.End, period.Reason})
	}
	tw.Render()
	return nil
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withLocalWorkshop(ctx, func(ctx context.Context, w *app.Workshop) error {
				handler, err := server.New(server.Config{
					Engine:   w.Engine,
					Repo:     w.Repo,
					Prefs:    w.Prefs,
					BasePath: basePath,
					Log:      logger,
				})
				if err != nil {
					return err
				}
				if err := w.Engine.Load(ctx); err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(sctx)
				}()
				fmt.Printf("Serving Kilnline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}
