package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kilnline/internal/attributes"
	"kilnline/internal/config"
	"kilnline/internal/domain"
	"kilnline/internal/filter"
	"kilnline/internal/prefs"
	"kilnline/internal/repo"
	"kilnline/internal/stage"
	"kilnline/internal/tentative"
)

// Collaborator is the persistence the engine reads from and writes through.
// repo.Repo implements it over SQL; the Go SDK implements it over HTTP.
type Collaborator interface {
	ListOrders(ctx context.Context) ([]domain.Order, error)
	ListItems(ctx context.Context) ([]domain.OrderItem, error)
	SetOrderStage(ctx context.Context, orderID int64, w domain.StageWrite) error
	SetItemStage(ctx context.Context, itemID int64, w domain.StageWrite) error
	SetOrderNotes(ctx context.Context, orderID int64, notes string) error
	SetOrderArchived(ctx context.Context, orderID int64, archived bool) error
	SetItemArchived(ctx context.Context, itemID int64, archived bool) error
	PatchItemSpecifications(ctx context.Context, itemID int64, patch map[string]any) error
}

var _ Collaborator = repo.Repo{}

// permanent is implemented by collaborator errors that a retry cannot fix.
type permanent interface {
	Permanent() bool
}

// ErrNotLoaded is returned by reads before Load succeeded once.
var ErrNotLoaded = errors.New("snapshot not loaded")

type Engine struct {
	Store    Collaborator
	Config   *config.Config
	Resolver *attributes.Resolver
	Tracker  *stage.Tracker
	Filter   *filter.Engine
	Prefs    *prefs.Manager
	Log      *zap.Logger
	Metrics  *Metrics
	Now      func() time.Time

	orders *tentative.Store[int64, domain.Order]
	items  *tentative.Store[int64, domain.OrderItem]

	mu     sync.Mutex
	loaded bool
}

// New wires an engine over store. serials may be nil.
func New(store Collaborator, cfg *config.Config, serials attributes.SerialLookup, log *zap.Logger) *Engine {
	if cfg == nil {
		cfg = config.Default("workshop")
	}
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		Store:   store,
		Config:  cfg,
		Log:     log,
		Metrics: NewMetrics(),
		Now:     time.Now,
	}
	e.Resolver = attributes.New(serials)
	e.Tracker = stage.New(e.Resolver, cfg.Workshop.DryingDays)
	e.Tracker.Now = e.now
	e.Filter = filter.New(e.Resolver, e.Tracker, filter.Settings{
		OrderMin:      cfg.Filters.OrderRange.Min,
		OrderMax:      cfg.Filters.OrderRange.Max,
		TypeOverrides: cfg.Filters.TypeOverrides,
	})
	opts := tentative.Options{
		Attempts:  cfg.Writes.Attempts,
		Timeout:   cfg.Writes.Timeout,
		Backoff:   cfg.Writes.Backoff,
		Retryable: retryable,
		Logger:    log,
	}
	e.orders = tentative.New[int64, domain.Order](opts)
	e.items = tentative.New[int64, domain.OrderItem](opts)
	return e
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func retryable(err error) bool {
	if errors.Is(err, repo.ErrNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	var p permanent
	if errors.As(err, &p) && p.Permanent() {
		return false
	}
	return true
}

// Load fetches orders and items concurrently and replaces the snapshot.
// Records with a write still committing keep their tentative value.
func (e *Engine) Load(ctx context.Context) error {
	var (
		orders []domain.Order
		items  []domain.OrderItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orders, err = e.Store.ListOrders(gctx)
		if err != nil {
			return fmt.Errorf("list orders: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		items, err = e.Store.ListItems(gctx)
		if err != nil {
			return fmt.Errorf("list items: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	e.orders.Reset(orders, func(o domain.Order) int64 { return o.ID })
	e.items.Reset(items, func(it domain.OrderItem) int64 { return it.ID })
	e.mu.Lock()
	e.loaded = true
	e.mu.Unlock()
	e.Metrics.snapshotSize(e.orders.Len(), e.items.Len())
	e.Log.Debug("snapshot loaded", zap.Int("orders", e.orders.Len()), zap.Int("items", e.items.Len()))
	return nil
}

func (e *Engine) ensureLoaded(ctx context.Context) error {
	e.mu.Lock()
	loaded := e.loaded
	e.mu.Unlock()
	if loaded {
		return nil
	}
	return e.Load(ctx)
}

// Orders returns the snapshot's orders.
func (e *Engine) Orders() []domain.Order { return e.orders.Values() }

// Items returns the snapshot's items.
func (e *Engine) Items() []domain.OrderItem { return e.items.Values() }

// FilterItems evaluates c against the snapshot.
func (e *Engine) FilterItems(ctx context.Context, c filter.Criteria) ([]filter.Match, error) {
	if err := e.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	defer e.Metrics.observeFilter(time.Now())
	return e.Filter.Matches(e.Items(), e.Orders(), c), nil
}

// OrderMatch is an order with the items that made it match.
type OrderMatch struct {
	Order domain.Order
	Items []filter.Match
}

// FilterOrders filters item-first and regroups the matches by order.
func (e *Engine) FilterOrders(ctx context.Context, c filter.Criteria) ([]OrderMatch, error) {
	matches, err := e.FilterItems(ctx, c)
	if err != nil {
		return nil, err
	}
	items := make([]domain.OrderItem, 0, len(matches))
	byOrder := map[int64][]filter.Match{}
	for _, m := range matches {
		items = append(items, m.Item)
		byOrder[m.Order.ID] = append(byOrder[m.Order.ID], m)
	}
	ids := filter.ProjectToOrders(items)
	out := make([]OrderMatch, 0, len(ids))
	for _, o := range filter.Orders(e.Orders(), ids) {
		out = append(out, OrderMatch{Order: o, Items: byOrder[o.ID]})
	}
	return out, nil
}

// StageStatus describes one stage of an item or order.
type StageStatus struct {
	Name       string    `json:"name"`
	Applicable bool      `json:"applicable"`
	Complete   bool      `json:"complete"`
	Derived    bool      `json:"derived"`
	Manual     bool      `json:"manual"`
	At         time.Time `json:"at,omitempty"`
}

// ItemView is an item with everything derived from it.
type ItemView struct {
	Item         domain.OrderItem    `json:"item"`
	Order        domain.Order        `json:"order"`
	Attributes   domain.AttributeSet `json:"attributes"`
	CurrentStage string              `json:"currentStage"`
	Stages       []StageStatus       `json:"stages"`
	DryingDays   int                 `json:"dryingDaysRemaining"`
	Drying       bool                `json:"drying"`
	WaitingDays  int                 `json:"waitingDays"`
}

func (e *Engine) stages(target stage.Target) []StageStatus {
	out := make([]StageStatus, 0, len(stage.Sequence))
	for _, name := range stage.Sequence {
		mark, manual := target.Stages.Get(name)
		out = append(out, StageStatus{
			Name:       name,
			Applicable: e.Tracker.Applicable(target, name),
			Complete:   e.Tracker.IsComplete(target, name),
			Derived:    stage.IsDerived(name),
			Manual:     manual,
			At:         mark.At,
		})
	}
	return out
}

// ResolveItem returns the view of a single item.
func (e *Engine) ResolveItem(ctx context.Context, itemID int64) (ItemView, error) {
	if err := e.ensureLoaded(ctx); err != nil {
		return ItemView{}, err
	}
	item, ok := e.items.Get(itemID)
	if !ok {
		return ItemView{}, fmt.Errorf("item %d: %w", itemID, repo.ErrNotFound)
	}
	order, ok := e.orders.Get(int64(item.OrderID))
	if !ok {
		return ItemView{}, fmt.Errorf("order %d of item %d: %w", item.OrderID, itemID, repo.ErrNotFound)
	}
	return e.view(item, order), nil
}

// View builds the item view for a filter match.
func (e *Engine) View(m filter.Match) ItemView {
	return e.view(m.Item, m.Order)
}

func (e *Engine) view(item domain.OrderItem, order domain.Order) ItemView {
	target := stage.ItemTarget(item, &order)
	days, drying := e.Tracker.DryingDaysRemaining(target)
	v := ItemView{
		Item:         item,
		Order:        order,
		Attributes:   e.Resolver.Resolve(target.Subject),
		CurrentStage: e.Tracker.CurrentStage(target),
		Stages:       e.stages(target),
		DryingDays:   days,
		Drying:       drying,
	}
	var periods []prefs.Period
	if e.Prefs != nil {
		periods = e.Prefs.Get().NonWorkingPeriods
	}
	if !order.CreatedAt.IsZero() {
		v.WaitingDays = prefs.WaitingDays(order.CreatedAt, e.now(), periods)
	}
	return v
}

// finish records the outcome of a write and maps a missing snapshot key to
// repo.ErrNotFound.
func (e *Engine) finish(kind string, id int64, err error, fields ...zap.Field) error {
	if errors.Is(err, tentative.ErrUnknownKey) {
		return fmt.Errorf("%s %d: %w", kind, id, repo.ErrNotFound)
	}
	e.Metrics.write(kind, err)
	if err == nil {
		return nil
	}
	fields = append(fields, zap.String("kind", kind), zap.Int64("id", id), zap.String("write_id", uuid.NewString()), zap.Error(err))
	e.Log.Warn("write rolled back", fields...)
	return err
}

// SetItemStage toggles a stage on an item. The snapshot changes at once and
// is reverted when the collaborator rejects the write.
func (e *Engine) SetItemStage(ctx context.Context, itemID int64, name string, complete bool) (domain.OrderItem, error) {
	if err := e.ensureLoaded(ctx); err != nil {
		return domain.OrderItem{}, err
	}
	w, err := e.Tracker.Write(name, complete)
	if err != nil {
		return domain.OrderItem{}, err
	}
	it, err := e.items.Apply(ctx, itemID, func(it domain.OrderItem) domain.OrderItem {
		it.Stages = it.Stages.Apply(w)
		return it
	}, func(ctx context.Context, _ domain.OrderItem) error {
		return e.Store.SetItemStage(ctx, itemID, w)
	})
	return it, e.finish("item_stage", itemID, err, zap.Int64("item_id", itemID), zap.String("stage", name), zap.Bool("complete", complete))
}

func (e *Engine) SetOrderStage(ctx context.Context, orderID int64, name string, complete bool) (domain.Order, error) {
	if err := e.ensureLoaded(ctx); err != nil {
		return domain.Order{}, err
	}
	w, err := e.Tracker.Write(name, complete)
	if err != nil {
		return domain.Order{}, err
	}
	o, err := e.orders.Apply(ctx, orderID, func(o domain.Order) domain.Order {
		o.Stages = o.Stages.Apply(w)
		return o
	}, func(ctx context.Context, _ domain.Order) error {
		return e.Store.SetOrderStage(ctx, orderID, w)
	})
	return o, e.finish("order_stage", orderID, err, zap.Int64("order_id", orderID), zap.String("stage", name), zap.Bool("complete", complete))
}

// IsComplete reports a stage of an item against the current snapshot.
func (e *Engine) IsComplete(ctx context.Context, itemID int64, name string) (bool, error) {
	v, err := e.ResolveItem(ctx, itemID)
	if err != nil {
		return false, err
	}
	return e.Tracker.IsComplete(stage.ItemTarget(v.Item, &v.Order), name), nil
}

func (e *Engine) SetOrderNotes(ctx context.Context, orderID int64, notes string) (domain.Order, error) {
	if err := e.ensureLoaded(ctx); err != nil {
		return domain.Order{}, err
	}
	o, err := e.orders.Apply(ctx, orderID, func(o domain.Order) domain.Order {
		o.Notes = notes
		return o
	}, func(ctx context.Context, _ domain.Order) error {
		return e.Store.SetOrderNotes(ctx, orderID, notes)
	})
	return o, e.finish("order_notes", orderID, err)
}

func (e *Engine) SetOrderArchived(ctx context.Context, orderID int64, archived bool) (domain.Order, error) {
	if err := e.ensureLoaded(ctx); err != nil {
		return domain.Order{}, err
	}
	o, err := e.orders.Apply(ctx, orderID, func(o domain.Order) domain.Order {
		o.Archived = archived
		return o
	}, func(ctx context.Context, _ domain.Order) error {
		return e.Store.SetOrderArchived(ctx, orderID, archived)
	})
	return o, e.finish("order_archived", orderID, err)
}

func (e *Engine) SetItemArchived(ctx context.Context, itemID int64, archived bool) (domain.OrderItem, error) {
	if err := e.ensureLoaded(ctx); err != nil {
		return domain.OrderItem{}, err
	}
	it, err := e.items.Apply(ctx, itemID, func(it domain.OrderItem) domain.OrderItem {
		it.Archived = archived
		return it
	}, func(ctx context.Context, _ domain.OrderItem) error {
		return e.Store.SetItemArchived(ctx, itemID, archived)
	})
	return it, e.finish("item_archived", itemID, err)
}

func (e *Engine) PatchItemSpecifications(ctx context.Context, itemID int64, patch map[string]any) (domain.OrderItem, error) {
	if err := e.ensureLoaded(ctx); err != nil {
		return domain.OrderItem{}, err
	}
	it, err := e.items.Apply(ctx, itemID, func(it domain.OrderItem) domain.OrderItem {
		it.Specifications = it.Specifications.Merge(patch)
		return it
	}, func(ctx context.Context, _ domain.OrderItem) error {
		return e.Store.PatchItemSpecifications(ctx, itemID, patch)
	})
	return it, e.finish("item_specifications", itemID, err)
}

// WaitingRow is one open order in the waiting report.
type WaitingRow struct {
	Order        domain.Order `json:"order"`
	WaitingDays  int          `json:"waitingDays"`
	OpenItems    int          `json:"openItems"`
	CurrentStage string       `json:"currentStage"`
}

// Waiting lists open orders inside the history window, longest waiting
// first. An order is open while any of its live items is not done.
func (e *Engine) Waiting(ctx context.Context) ([]WaitingRow, error) {
	matches, err := e.FilterItems(ctx, filter.Criteria{})
	if err != nil {
		return nil, err
	}
	p := prefs.Default()
	if e.Prefs != nil {
		p = e.Prefs.Get()
	}
	now := e.now()
	rows := map[int64]*WaitingRow{}
	var order []int64
	for _, m := range matches {
		if !p.InWindow(m.Order.CreatedAt, now) {
			continue
		}
		cur := e.Tracker.CurrentStage(stage.ItemTarget(m.Item, &m.Order))
		if cur == stage.Done {
			continue
		}
		row, ok := rows[m.Order.ID]
		if !ok {
			row = &WaitingRow{
				Order:        m.Order,
				WaitingDays:  prefs.WaitingDays(m.Order.CreatedAt, now, p.NonWorkingPeriods),
				CurrentStage: cur,
			}
			rows[m.Order.ID] = row
			order = append(order, m.Order.ID)
		}
		row.OpenItems++
		if stageIndex(cur) < stageIndex(row.CurrentStage) {
			row.CurrentStage = cur
		}
	}
	out := make([]WaitingRow, 0, len(order))
	for _, id := range order {
		out = append(out, *rows[id])
	}
	sortWaiting(out)
	return out, nil
}

func stageIndex(name string) int {
	for i, s := range stage.Sequence {
		if s == name {
			return i
		}
	}
	return len(stage.Sequence)
}

func sortWaiting(rows []WaitingRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].WaitingDays != rows[j].WaitingDays {
			return rows[i].WaitingDays > rows[j].WaitingDays
		}
		return rows[i].Order.OrderNumber < rows[j].Order.OrderNumber
	})
}
