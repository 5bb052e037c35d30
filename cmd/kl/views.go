package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"kilnline/internal/app"
	"kilnline/internal/domain"
	"kilnline/internal/engine"
	"kilnline/internal/repo"
	"kilnline/internal/stage"
)

func stageLabel(v engine.ItemView) string {
	switch {
	case v.CurrentStage == stage.Done:
		return color.New(color.FgHiGreen).Sprint(v.CurrentStage)
	case v.Drying:
		return color.New(color.FgYellow).Sprintf("%s (drying, %dd left)", v.CurrentStage, v.DryingDays)
	default:
		return v.CurrentStage
	}
}

func itemsCmd() *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "items",
		Short: "List items matching a filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ff.criteria(cmd)
			if err != nil {
				return err
			}
			return withWorkshop(cmd.Context(), func(ctx context.Context, w *app.Workshop) error {
				matches, err := w.Engine.FilterItems(ctx, c)
				if err != nil {
					return err
				}
				views := make([]engine.ItemView, 0, len(matches))
				for _, m := range matches {
					views = append(views, w.Engine.View(m))
				}
				if viper.GetBool("json") {
					return printJSON(views)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Item", "Order", "Type", "Tuning", "Color", "Hz", "Stage", "Waiting"})
				for _, v := range views {
					tw.AppendRow(table.Row{
						v.Item.ID, v.Order.OrderNumber, v.Attributes.Type, v.Attributes.TuningNote,
						v.Attributes.ColorCode, v.Attributes.Frequency, stageLabel(v), fmt.Sprintf("%dd", v.WaitingDays),
					})
				}
				tw.AppendFooter(table.Row{"", "", "", "", "", "", "Total", len(views)})
				tw.Render()
				return nil
			})
		},
	}
	ff.bind(cmd)
	return cmd
}

func ordersCmd() *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List orders that have matching items",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ff.criteria(cmd)
			if err != nil {
				return err
			}
			return withWorkshop(cmd.Context(), func(ctx context.Context, w *app.Workshop) error {
				orders, err := w.Engine.FilterOrders(ctx, c)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(orders)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Order", "Customer", "Reseller", "Matching items", "Created", "Notes"})
				for _, om := range orders {
					o := om.Order
					created := ""
					if !o.CreatedAt.IsZero() {
						created = humanize.Time(o.CreatedAt)
					}
					tw.AppendRow(table.Row{o.ID, o.OrderNumber, o.CustomerName, o.ResellerNickname, len(om.Items), created, o.Notes})
				}
				tw.Render()
				return nil
			})
		},
	}
	ff.bind(cmd)
	return cmd
}

func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <item-id>",
		Short: "Show resolved attributes and stages of an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withWorkshop(cmd.Context(), func(ctx context.Context, w *app.Workshop) error {
				v, err := w.Engine.ResolveItem(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(v)
				}
				fmt.Printf("Item %d of order %s (%s)\n", v.Item.ID, v.Order.OrderNumber, v.Order.CustomerName)
				fmt.Printf("Type %s  Tuning %s  Color %s  Frequency %s\n",
					v.Attributes.Type, dash(v.Attributes.TuningNote), dash(v.Attributes.ColorCode), dash(v.Attributes.Frequency))
				fmt.Printf("Current stage: %s, waiting %d working days\n", stageLabel(v), v.WaitingDays)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Stage", "Done", "Source", "At"})
				for _, s := range v.Stages {
					if !s.Applicable {
						continue
					}
					done := color.New(color.FgRed).Sprint("no")
					if s.Complete {
						done = color.New(color.FgHiGreen).Sprint("yes")
					}
					source := ""
					switch {
					case s.Manual:
						source = "manual"
					case s.Derived && s.Complete:
						source = "derived"
					}
					at := ""
					if !s.At.IsZero() {
						at = humanize.Time(s.At)
					}
					tw.AppendRow(table.Row{s.Name, done, source, at})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func waitingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "waiting",
		Short: "Open orders by working days waited",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkshop(cmd.Context(), func(ctx context.Context, w *app.Workshop) error {
				rows, err := w.Engine.Waiting(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Order", "Customer", "Waiting", "Open items", "Earliest stage"})
				for _, r := range rows {
					days := fmt.Sprintf("%dd", r.WaitingDays)
					if r.WaitingDays > 30 {
						days = color.New(color.FgRed).Sprint(days)
					}
					tw.AppendRow(table.Row{r.Order.OrderNumber, r.Order.CustomerName, days, r.OpenItems, r.CurrentStage})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func boxesCmd() *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "boxes",
		Short: "Count boxes needed per size for matching items",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ff.criteria(cmd)
			if err != nil {
				return err
			}
			return withWorkshop(cmd.Context(), func(ctx context.Context, w *app.Workshop) error {
				matches, err := w.Engine.FilterItems(ctx, c)
				if err != nil {
					return err
				}
				items := make([]domain.OrderItem, 0, len(matches))
				for _, m := range matches {
					items = append(items, m.Item)
				}
				usage := engine.BoxUsage(items)
				if viper.GetBool("json") {
					return printJSON(usage)
				}
				sizes := make([]string, 0, len(usage))
				for s := range usage {
					sizes = append(sizes, s)
				}
				sort.Strings(sizes)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Size", "Boxes"})
				for _, s := range sizes {
					tw.AppendRow(table.Row{s, usage[s]})
				}
				tw.Render()
				return nil
			})
		},
	}
	ff.bind(cmd)
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every persisted write: imports, stage toggles, notes, archiving, box assignments and settings.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocalWorkshop(cmd.Context(), func(ctx context.Context, w *app.Workshop) error {
				evts, err := w.Repo.LatestEvents(ctx, repo.EventFilters{Type: evtType, EntityKind: entityKind, EntityID: entityID, Limit: n})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"When", "Type", "Entity", "Actor", "Payload"})
				for _, e := range evts {
					entity := e.EntityKind
					if e.EntityID != "" {
						entity += " " + e.EntityID
					}
					tw.AppendRow(table.Row{e.TS, e.Type, entity, e.ActorID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind (order, item, setting, import)")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(s), "#"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
