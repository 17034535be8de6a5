package softdelete

import (
	"fmt"
	"slices"
)

// Entity is anything addressable by a stable identifier.
type Entity interface {
	EntityID() string
}

// Collection partitions entities into the active list and the recycling bin.
// Methods never modify the receiver; they return the collection that results from the
// operation.
type Collection[E Entity] struct {
	Active  []E
	Deleted []E
}

// Clone returns a copy that shares no backing arrays with c.
func (c Collection[E]) Clone() Collection[E] {
	return Collection[E]{
		Active:  cloneOrEmpty(c.Active),
		Deleted: cloneOrEmpty(c.Deleted),
	}
}

// Locate reports the state of the entity with the given id and its index within the
// list for that state.
func (c Collection[E]) Locate(id string) (State, int) {
	if index := indexOf(c.Active, id); index >= 0 {
		return StateActive, index
	}
	if index := indexOf(c.Deleted, id); index >= 0 {
		return StateDeleted, index
	}
	return StateAbsent, -1
}

// Find returns the entity with the given id and its state.
func (c Collection[E]) Find(id string) (E, State, bool) {
	state, index := c.Locate(id)
	switch state {
	case StateActive:
		return c.Active[index], state, true
	case StateDeleted:
		return c.Deleted[index], state, true
	default:
		var zero E
		return zero, StateAbsent, false
	}
}

// Add appends a new entity to the active list.
func (c Collection[E]) Add(item E) (Collection[E], error) {
	id := item.EntityID()
	if id == "" {
		return c, ErrMissingID
	}
	state, _ := c.Locate(id)
	if state != StateAbsent {
		return c, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	if _, err := Transition(state, OperationAdd); err != nil {
		return c, err
	}
	next := c.Clone()
	next.Active = append(next.Active, item)
	return next, nil
}

// Update replaces an active entity in place, keeping its position.
func (c Collection[E]) Update(item E) (Collection[E], error) {
	_, index, err := c.check(item.EntityID(), OperationUpdate)
	if err != nil {
		return c, err
	}
	next := c.Clone()
	next.Active[index] = item
	return next, nil
}

// Remove moves an active entity to the end of the recycling bin.
func (c Collection[E]) Remove(id string) (Collection[E], E, error) {
	var zero E
	_, index, err := c.check(id, OperationRemove)
	if err != nil {
		return c, zero, err
	}
	next := c.Clone()
	item := next.Active[index]
	next.Active = slices.Delete(next.Active, index, index+1)
	next.Deleted = append(next.Deleted, item)
	return next, item, nil
}

// Restore moves an entity from the recycling bin to the end of the active list.
func (c Collection[E]) Restore(id string) (Collection[E], E, error) {
	var zero E
	_, index, err := c.check(id, OperationRestore)
	if err != nil {
		return c, zero, err
	}
	next := c.Clone()
	item := next.Deleted[index]
	next.Deleted = slices.Delete(next.Deleted, index, index+1)
	next.Active = append(next.Active, item)
	return next, item, nil
}

// Purge drops an entity from the recycling bin. Active entities cannot be purged.
func (c Collection[E]) Purge(id string) (Collection[E], E, error) {
	var zero E
	_, index, err := c.check(id, OperationPurge)
	if err != nil {
		return c, zero, err
	}
	next := c.Clone()
	item := next.Deleted[index]
	next.Deleted = slices.Delete(next.Deleted, index, index+1)
	return next, item, nil
}

// Replace swaps the entity identified by id for item in whichever list holds it.
func (c Collection[E]) Replace(id string, item E) Collection[E] {
	state, index := c.Locate(id)
	next := c.Clone()
	switch state {
	case StateActive:
		next.Active[index] = item
	case StateDeleted:
		next.Deleted[index] = item
	}
	return next
}

func (c Collection[E]) check(id string, op Operation) (State, int, error) {
	if id == "" {
		return StateAbsent, -1, ErrMissingID
	}
	state, index := c.Locate(id)
	if state == StateAbsent {
		return state, index, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if _, err := Transition(state, op); err != nil {
		return state, index, err
	}
	return state, index, nil
}

func indexOf[E Entity](items []E, id string) int {
	return slices.IndexFunc(items, func(item E) bool {
		return item.EntityID() == id
	})
}

func cloneOrEmpty[E any](items []E) []E {
	if items == nil {
		return []E{}
	}
	return slices.Clone(items)
}
