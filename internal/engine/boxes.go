package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"kilnline/internal/domain"
	"kilnline/internal/repo"
)

const (
	boxKey      = "box"
	jointBoxKey = "jointBox"
)

// AssignBox records the box size on every listed item of an order. Two or
// more items share one joint box id; a single item has its joint box id
// cleared. Items are written one by one; when one fails, the items already
// written get their previous box fields back.
func (e *Engine) AssignBox(ctx context.Context, orderID int64, itemIDs []int64, size string) ([]domain.OrderItem, error) {
	size = strings.TrimSpace(size)
	if size == "" {
		return nil, fmt.Errorf("box size is required")
	}
	if len(itemIDs) == 0 {
		return nil, fmt.Errorf("at least one item is required")
	}
	if err := e.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	for _, id := range itemIDs {
		it, ok := e.items.Get(id)
		if !ok {
			return nil, fmt.Errorf("item %d: %w", id, repo.ErrNotFound)
		}
		if int64(it.OrderID) != orderID {
			return nil, fmt.Errorf("item %d belongs to order %d, not %d", id, it.OrderID, orderID)
		}
	}
	patch := map[string]any{boxKey: size, jointBoxKey: nil}
	if len(itemIDs) > 1 {
		patch[jointBoxKey] = uuid.NewString()
	}
	out := make([]domain.OrderItem, 0, len(itemIDs))
	var undo []boxUndo
	for _, id := range itemIDs {
		prev, _ := e.items.Get(id)
		it, err := e.PatchItemSpecifications(ctx, id, patch)
		if err != nil {
			err = fmt.Errorf("assign box to item %d: %w", id, err)
			return nil, e.undoBoxes(ctx, undo, err)
		}
		undo = append(undo, boxUndo{id: id, patch: boxFields(prev.Specifications)})
		out = append(out, it)
	}
	return out, nil
}

type boxUndo struct {
	id    int64
	patch map[string]any
}

// boxFields returns the patch that restores the box fields of specs.
func boxFields(specs domain.Specs) map[string]any {
	patch := map[string]any{boxKey: nil, jointBoxKey: nil}
	for k := range patch {
		if v, ok := specs[k]; ok {
			patch[k] = v
		}
	}
	return patch
}

func (e *Engine) undoBoxes(ctx context.Context, undo []boxUndo, cause error) error {
	var stuck []int64
	for i := len(undo) - 1; i >= 0; i-- {
		if _, err := e.PatchItemSpecifications(ctx, undo[i].id, undo[i].patch); err != nil {
			stuck = append(stuck, undo[i].id)
		}
	}
	if len(stuck) > 0 {
		return fmt.Errorf("%w; items %v keep the new box", cause, stuck)
	}
	return cause
}

// BoxUsage counts boxes per size. Items sharing a joint box id count once.
func BoxUsage(items []domain.OrderItem) map[string]int {
	usage := map[string]int{}
	seen := map[string]bool{}
	for _, it := range items {
		size, ok := it.Specifications.String(boxKey)
		if !ok || size == "" {
			continue
		}
		if joint, ok := it.Specifications.String(jointBoxKey); ok && joint != "" {
			if seen[joint] {
				continue
			}
			seen[joint] = true
		}
		usage[size]++
	}
	return usage
}
