package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"kilnline/internal/db"
	"kilnline/internal/domain"
	"kilnline/internal/events"
)

// Repo is the SQL persistence collaborator. Every write runs in a
// transaction together with its event row.
type Repo struct {
	DB     *db.Conn
	Events events.Writer
	Now    func() time.Time
}

var ErrNotFound = errors.New("not found")

type actorKey struct{}

// WithActor tags writes made with ctx with actor in the event log.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFrom(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok && v != "" {
		return v
	}
	return "system"
}

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

const orderColumns = `id,order_number,customer_name,customer_email,specifications_json,direct_json,is_reseller,reseller_nickname,archived,status,notes,stages_json,created_at`

const itemColumns = `id,order_id,serial_number,direct_json,specifications_json,stages_json,quantity,refunded_quantity,archived,deleted`

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (domain.Order, error) {
	var (
		o                         domain.Order
		specs, direct, stages, ts string
		reseller, archived        int
	)
	if err := s.Scan(&o.ID, &o.OrderNumber, &o.CustomerName, &o.CustomerEmail, &specs, &direct, &reseller, &o.ResellerNickname, &archived, &o.Status, &o.Notes, &stages, &ts); err != nil {
		return o, err
	}
	o.IsReseller = reseller != 0
	o.Archived = archived != 0
	if err := decodeJSON(specs, &o.Specifications); err != nil {
		return o, fmt.Errorf("order %d specifications: %w", o.ID, err)
	}
	if err := decodeJSON(direct, &o.Direct); err != nil {
		return o, fmt.Errorf("order %d direct: %w", o.ID, err)
	}
	if err := decodeJSON(stages, &o.Stages); err != nil {
		return o, fmt.Errorf("order %d stages: %w", o.ID, err)
	}
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		o.CreatedAt = t
	}
	return o, nil
}

func scanItem(s scanner) (domain.OrderItem, error) {
	var (
		it                    domain.OrderItem
		orderID               int64
		direct, specs, stages string
		archived, deleted     int
	)
	if err := s.Scan(&it.ID, &orderID, &it.SerialNumber, &direct, &specs, &stages, &it.Quantity, &it.RefundedQuantity, &archived, &deleted); err != nil {
		return it, err
	}
	it.OrderID = domain.OrderKey(orderID)
	it.Archived = archived != 0
	it.Deleted = deleted != 0
	if err := decodeJSON(direct, &it.Direct); err != nil {
		return it, fmt.Errorf("item %d direct: %w", it.ID, err)
	}
	if err := decodeJSON(specs, &it.Specifications); err != nil {
		return it, fmt.Errorf("item %d specifications: %w", it.ID, err)
	}
	if err := decodeJSON(stages, &it.Stages); err != nil {
		return it, fmt.Errorf("item %d stages: %w", it.ID, err)
	}
	return it, nil
}

func decodeJSON(raw string, dst any) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func encodeJSON(v any, empty string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return empty, nil
	}
	return string(data), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r Repo) ListOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (r Repo) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	o, err := scanOrder(r.DB.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return o, ErrNotFound
	}
	return o, err
}

func (r Repo) ListItems(ctx context.Context) ([]domain.OrderItem, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+itemColumns+` FROM order_items ORDER BY order_id ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.OrderItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, rows.Err()
}

func (r Repo) GetItem(ctx context.Context, id int64) (domain.OrderItem, error) {
	it, err := scanItem(r.DB.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM order_items WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return it, ErrNotFound
	}
	return it, err
}

// withTx runs fn in a transaction and commits when it succeeds.
func (r Repo) withTx(ctx context.Context, fn func(tx *db.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (r Repo) SetOrderStage(ctx context.Context, orderID int64, w domain.StageWrite) error {
	return r.setStage(ctx, "orders", "order", events.TypeOrderStage, orderID, w)
}

func (r Repo) SetItemStage(ctx context.Context, itemID int64, w domain.StageWrite) error {
	return r.setStage(ctx, "order_items", "item", events.TypeItemStage, itemID, w)
}

func (r Repo) setStage(ctx context.Context, table, kind, evtType string, id int64, w domain.StageWrite) error {
	if strings.TrimSpace(w.Stage) == "" {
		return fmt.Errorf("stage name required")
	}
	if w.Complete && w.At.IsZero() {
		w.At = r.now().UTC()
	}
	return r.withTx(ctx, func(tx *db.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx, `SELECT stages_json FROM `+table+` WHERE id=?`, id).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var stages domain.StageRecord
		if err := decodeJSON(raw, &stages); err != nil {
			return fmt.Errorf("%s %d stages: %w", kind, id, err)
		}
		next, err := encodeJSON(stages.Apply(w), "{}")
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE `+table+` SET stages_json=? WHERE id=?`, next, id); err != nil {
			return err
		}
		return r.Events.Append(ctx, tx, evtType, kind, strconv.FormatInt(id, 10), actorFrom(ctx), events.EventPayload{
			"stage":    w.Stage,
			"complete": w.Complete,
			"pinned":   w.Pin,
		})
	})
}

// updateOne runs an UPDATE that must touch exactly one row and logs evt.
func (r Repo) updateOne(ctx context.Context, query string, args []any, evtType, kind string, id int64, payload events.EventPayload) error {
	return r.withTx(ctx, func(tx *db.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return r.Events.Append(ctx, tx, evtType, kind, strconv.FormatInt(id, 10), actorFrom(ctx), payload)
	})
}

func (r Repo) SetOrderNotes(ctx context.Context, orderID int64, notes string) error {
	return r.updateOne(ctx, `UPDATE orders SET notes=? WHERE id=?`, []any{notes, orderID},
		events.TypeOrderNotes, "order", orderID, events.EventPayload{"length": len(notes)})
}

func (r Repo) SetOrderArchived(ctx context.Context, orderID int64, archived bool) error {
	return r.updateOne(ctx, `UPDATE orders SET archived=? WHERE id=?`, []any{boolInt(archived), orderID},
		events.TypeOrderArchived, "order", orderID, events.EventPayload{"archived": archived})
}

func (r Repo) SetItemArchived(ctx context.Context, itemID int64, archived bool) error {
	return r.updateOne(ctx, `UPDATE order_items SET archived=? WHERE id=?`, []any{boolInt(archived), itemID},
		events.TypeItemArchived, "item", itemID, events.EventPayload{"archived": archived})
}

// PatchItemSpecifications merges patch into the item's specifications bag.
// Nil values remove keys.
func (r Repo) PatchItemSpecifications(ctx context.Context, itemID int64, patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}
	return r.withTx(ctx, func(tx *db.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx, `SELECT specifications_json FROM order_items WHERE id=?`, itemID).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var specs domain.Specs
		if err := decodeJSON(raw, &specs); err != nil {
			return fmt.Errorf("item %d specifications: %w", itemID, err)
		}
		next, err := encodeJSON(specs.Merge(patch), "{}")
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE order_items SET specifications_json=? WHERE id=?`, next, itemID); err != nil {
			return err
		}
		keys := make([]string, 0, len(patch))
		for k := range patch {
			keys = append(keys, k)
		}
		return r.Events.Append(ctx, tx, events.TypeItemSpecs, "item", strconv.FormatInt(itemID, 10), actorFrom(ctx), events.EventPayload{"keys": keys})
	})
}

type ImportResult struct {
	Orders int `json:"orders"`
	Items  int `json:"items"`
	// Orphans counts items whose order is neither imported nor stored.
	Orphans int `json:"orphans"`
}

// Import upserts orders and items from an export.
func (r Repo) Import(ctx context.Context, orders []domain.Order, items []domain.OrderItem) (ImportResult, error) {
	var res ImportResult
	err := r.withTx(ctx, func(tx *db.Tx) error {
		known := map[int64]bool{}
		for _, o := range orders {
			if err := upsertOrder(ctx, tx, o, r.now()); err != nil {
				return fmt.Errorf("order %d: %w", o.ID, err)
			}
			known[o.ID] = true
			res.Orders++
		}
		for _, it := range items {
			if it.ID == 0 {
				return fmt.Errorf("item without id in order %d", it.OrderID)
			}
			if err := upsertItem(ctx, tx, it); err != nil {
				return fmt.Errorf("item %d: %w", it.ID, err)
			}
			res.Items++
			oid := int64(it.OrderID)
			if !known[oid] {
				var one int
				err := tx.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE id=?`, oid).Scan(&one)
				switch {
				case errors.Is(err, sql.ErrNoRows):
					res.Orphans++
				case err != nil:
					return err
				default:
					known[oid] = true
				}
			}
		}
		return r.Events.Append(ctx, tx, events.TypeImport, "import", "", actorFrom(ctx), events.EventPayload{
			"orders":  res.Orders,
			"items":   res.Items,
			"orphans": res.Orphans,
		})
	})
	return res, err
}

func upsertOrder(ctx context.Context, tx *db.Tx, o domain.Order, now time.Time) error {
	specs, err := encodeJSON(o.Specifications, "[]")
	if err != nil {
		return err
	}
	direct, err := encodeJSON(o.Direct, "{}")
	if err != nil {
		return err
	}
	stages, err := encodeJSON(o.Stages, "{}")
	if err != nil {
		return err
	}
	created := o.CreatedAt
	if created.IsZero() {
		created = now
	}
	status := o.Status
	if status == "" {
		status = domain.StatusOrdered
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO orders(`+orderColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET order_number=excluded.order_number, customer_name=excluded.customer_name,
customer_email=excluded.customer_email, specifications_json=excluded.specifications_json, direct_json=excluded.direct_json,
is_reseller=excluded.is_reseller, reseller_nickname=excluded.reseller_nickname, archived=excluded.archived,
status=excluded.status, notes=excluded.notes, stages_json=excluded.stages_json, created_at=excluded.created_at`,
		o.ID, o.OrderNumber, o.CustomerName, o.CustomerEmail, specs, direct, boolInt(o.IsReseller), o.ResellerNickname,
		boolInt(o.Archived), status, o.Notes, stages, created.UTC().Format(time.RFC3339Nano))
	return err
}

func upsertItem(ctx context.Context, tx *db.Tx, it domain.OrderItem) error {
	direct, err := encodeJSON(it.Direct, "{}")
	if err != nil {
		return err
	}
	specs, err := encodeJSON(it.Specifications, "{}")
	if err != nil {
		return err
	}
	stages, err := encodeJSON(it.Stages, "{}")
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO order_items(`+itemColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET order_id=excluded.order_id, serial_number=excluded.serial_number,
direct_json=excluded.direct_json, specifications_json=excluded.specifications_json, stages_json=excluded.stages_json,
quantity=excluded.quantity, refunded_quantity=excluded.refunded_quantity, archived=excluded.archived, deleted=excluded.deleted`,
		it.ID, int64(it.OrderID), it.SerialNumber, direct, specs, stages, it.Quantity, it.RefundedQuantity,
		boolInt(it.Archived), boolInt(it.Deleted))
	return err
}

// GetSetting reads a key/value setting.
func (r Repo) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM settings WHERE key=?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r Repo) PutSetting(ctx context.Context, key, value string) error {
	return r.withTx(ctx, func(tx *db.Tx) error {
		now := r.now().UTC().Format(time.RFC3339Nano)
		if _, err := tx.ExecContext(ctx, `INSERT INTO settings(key,value,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, key, value, now); err != nil {
			return err
		}
		return r.Events.Append(ctx, tx, events.TypeSetting, "setting", key, actorFrom(ctx), nil)
	})
}

type EventFilters struct {
	Type       string
	EntityKind string
	EntityID   string
	// Before returns events strictly older than this timestamp.
	Before string
	Limit  int
}

// LatestEvents returns events newest first.
func (r Repo) LatestEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Before != "" {
		clauses = append(clauses, "ts<?")
		args = append(args, f.Before)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events %s ORDER BY ts DESC, id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
