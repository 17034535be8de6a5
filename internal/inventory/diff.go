package inventory

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/trainhub/internal/softdelete"
)

// Change describes how one item moved between two versions of a record.
type Change struct {
	ItemID    string
	Operation softdelete.Operation
}

// Diff reports the lifecycle operations that turn previous into next, in the order the
// items appear in next followed by items that disappeared. Unchanged items are omitted.
// A move the recycling bin does not allow, such as an active item vanishing without
// passing through the bin, yields softdelete.ErrInvalidTransition.
func Diff(previous, next Record) ([]Change, error) {
	before := indexRecord(previous)
	after := indexRecord(next)

	changes := make([]Change, 0)
	visit := func(item Item, to softdelete.State) error {
		if item.ID == "" {
			return nil
		}
		from := before[item.ID]
		op, changed := operationBetween(from.state, to, from.item != item)
		if !changed {
			return nil
		}
		if _, err := softdelete.Transition(from.state, op); err != nil {
			return fmt.Errorf("item %s: %w", item.ID, err)
		}
		changes = append(changes, Change{ItemID: item.ID, Operation: op})
		return nil
	}
	for _, item := range next.Inventory {
		if err := visit(item, softdelete.StateActive); err != nil {
			return nil, err
		}
	}
	for _, item := range next.DeletedInventory {
		if err := visit(item, softdelete.StateDeleted); err != nil {
			return nil, err
		}
	}
	for _, list := range [][]Item{previous.Inventory, previous.DeletedInventory} {
		for _, item := range list {
			if _, kept := after[item.ID]; kept || item.ID == "" {
				continue
			}
			if _, err := softdelete.Transition(before[item.ID].state, softdelete.OperationPurge); err != nil {
				return nil, fmt.Errorf("item %s: %w", item.ID, err)
			}
			changes = append(changes, Change{ItemID: item.ID, Operation: softdelete.OperationPurge})
		}
	}
	return changes, nil
}

type indexedItem struct {
	item  Item
	state softdelete.State
}

func indexRecord(record Record) map[string]indexedItem {
	index := make(map[string]indexedItem, len(record.Inventory)+len(record.DeletedInventory))
	for _, item := range record.Inventory {
		index[item.ID] = indexedItem{item: item, state: softdelete.StateActive}
	}
	for _, item := range record.DeletedInventory {
		index[item.ID] = indexedItem{item: item, state: softdelete.StateDeleted}
	}
	return index
}

func operationBetween(from, to softdelete.State, contentChanged bool) (softdelete.Operation, bool) {
	switch {
	case from == to && to == softdelete.StateActive:
		return softdelete.OperationUpdate, contentChanged
	case from == to:
		return "", false
	case to == softdelete.StateActive && from == softdelete.StateAbsent:
		return softdelete.OperationAdd, true
	case to == softdelete.StateActive:
		return softdelete.OperationRestore, true
	default:
		return softdelete.OperationRemove, true
	}
}
