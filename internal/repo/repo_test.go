package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"kilnline/internal/db"
	"kilnline/internal/domain"
	"kilnline/internal/events"
	"kilnline/internal/migrate"
)

var fixedNow = time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)

func setupRepo(t *testing.T) Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := func() time.Time { return fixedNow }
	return Repo{DB: conn, Events: events.Writer{Now: clock}, Now: clock}
}

func seed(t *testing.T, r Repo) {
	t.Helper()
	orders := []domain.Order{{
		ID:             10,
		OrderNumber:    "1500",
		CustomerName:   "Ada",
		Specifications: []domain.SpecField{{Name: "Color", Value: "Blue"}},
		IsReseller:     true,
		Status:         domain.StatusOrdered,
		CreatedAt:      fixedNow.Add(-48 * time.Hour),
	}}
	items := []domain.OrderItem{
		{ID: 1, OrderID: 10, SerialNumber: "SW-1001", Specifications: domain.Specs{"type": "Innato Am3"}, Quantity: 1},
		{ID: 2, OrderID: 99, Specifications: domain.Specs{"type": "Natey G4"}},
	}
	res, err := r.Import(context.Background(), orders, items)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if diff := cmp.Diff(ImportResult{Orders: 1, Items: 2, Orphans: 1}, res); diff != "" {
		t.Fatalf("import result (-want +got):\n%s", diff)
	}
}

func TestImportAndList(t *testing.T) {
	r := setupRepo(t)
	seed(t, r)
	ctx := context.Background()
	orders, err := r.ListOrders(ctx)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 1 || !orders[0].IsReseller || orders[0].Bag()["Color"] != "Blue" {
		t.Fatalf("orders: %+v", orders)
	}
	if !orders[0].CreatedAt.Equal(fixedNow.Add(-48 * time.Hour)) {
		t.Fatalf("created_at = %v", orders[0].CreatedAt)
	}
	items, err := r.ListItems(ctx)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 2 || items[0].OrderID != 10 || items[0].Specifications["type"] != "Innato Am3" {
		t.Fatalf("items: %+v", items)
	}
}

func TestSetItemStage(t *testing.T) {
	r := setupRepo(t)
	seed(t, r)
	ctx := WithActor(context.Background(), "bench-2")
	if err := r.SetItemStage(ctx, 1, domain.StageWrite{Stage: "build", Complete: true}); err != nil {
		t.Fatalf("set build: %v", err)
	}
	if err := r.SetItemStage(ctx, 1, domain.StageWrite{Stage: "smoke", Pin: true}); err != nil {
		t.Fatalf("pin smoke: %v", err)
	}
	it, err := r.GetItem(ctx, 1)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	want := domain.StageRecord{
		"build": {Done: true, At: fixedNow},
		"smoke": {},
	}
	if diff := cmp.Diff(want, it.Stages); diff != "" {
		t.Fatalf("stages (-want +got):\n%s", diff)
	}
	if err := r.SetItemStage(ctx, 1, domain.StageWrite{Stage: "build"}); err != nil {
		t.Fatalf("uncheck build: %v", err)
	}
	it, _ = r.GetItem(ctx, 1)
	if _, ok := it.Stages.Get("build"); ok {
		t.Fatalf("build should be removed: %+v", it.Stages)
	}
	if err := r.SetItemStage(ctx, 404, domain.StageWrite{Stage: "build", Complete: true}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	evts, err := r.LatestEvents(ctx, EventFilters{Type: events.TypeItemStage})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 3 || evts[0].ActorID != "bench-2" || evts[0].EntityID != "1" {
		t.Fatalf("events: %+v", evts)
	}
}

func TestOrderWrites(t *testing.T) {
	r := setupRepo(t)
	seed(t, r)
	ctx := context.Background()
	if err := r.SetOrderNotes(ctx, 10, "call before shipping"); err != nil {
		t.Fatalf("notes: %v", err)
	}
	if err := r.SetOrderArchived(ctx, 10, true); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := r.SetOrderStage(ctx, 10, domain.StageWrite{Stage: "packing", Complete: true, At: fixedNow}); err != nil {
		t.Fatalf("stage: %v", err)
	}
	o, err := r.GetOrder(ctx, 10)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if o.Notes != "call before shipping" || !o.Archived || !o.Stages["packing"].Done {
		t.Fatalf("order: %+v", o)
	}
	if err := r.SetOrderNotes(ctx, 11, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPatchItemSpecifications(t *testing.T) {
	r := setupRepo(t)
	seed(t, r)
	ctx := context.Background()
	if err := r.PatchItemSpecifications(ctx, 1, map[string]any{"box": "L", "jointBox": "jb-1"}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	if err := r.PatchItemSpecifications(ctx, 1, map[string]any{"jointBox": nil}); err != nil {
		t.Fatalf("patch delete: %v", err)
	}
	it, _ := r.GetItem(ctx, 1)
	want := domain.Specs{"type": "Innato Am3", "box": "L"}
	if diff := cmp.Diff(want, it.Specifications); diff != "" {
		t.Fatalf("specs (-want +got):\n%s", diff)
	}
	if err := r.SetItemArchived(ctx, 1, true); err != nil {
		t.Fatalf("archive item: %v", err)
	}
	it, _ = r.GetItem(ctx, 1)
	if !it.Archived {
		t.Fatalf("item should be archived")
	}
}

func TestSettings(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()
	if _, ok, err := r.GetSetting(ctx, "prefs/a/history_window_days"); err != nil || ok {
		t.Fatalf("missing setting: %v %v", ok, err)
	}
	if err := r.PutSetting(ctx, "prefs/a/history_window_days", "30"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := r.PutSetting(ctx, "prefs/a/history_window_days", "45"); err != nil {
		t.Fatalf("put again: %v", err)
	}
	v, ok, err := r.GetSetting(ctx, "prefs/a/history_window_days")
	if err != nil || !ok || v != "45" {
		t.Fatalf("get: %q %v %v", v, ok, err)
	}
}
