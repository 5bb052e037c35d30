package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kilnline/internal/db"
)

// Event types written by the repository.
const (
	TypeImport        = "orders.imported"
	TypeOrderStage    = "order.stage"
	TypeItemStage     = "item.stage"
	TypeOrderNotes    = "order.notes"
	TypeOrderArchived = "order.archived"
	TypeItemArchived  = "item.archived"
	TypeItemSpecs     = "item.specifications"
	TypeSetting       = "setting.updated"
)

type Writer struct {
	Now   func() time.Time
	NewID func() string
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *db.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	if w.NewID == nil {
		w.NewID = uuid.NewString
	}
	if actorID == "" {
		actorID = "system"
	}
	ts := w.Now().UTC().Format(time.RFC3339Nano)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(id,ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		w.NewID(), ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
