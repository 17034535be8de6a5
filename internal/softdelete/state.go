// Package softdelete implements recoverable deletion for any entity with a stable id.
//
// Entities move Active -> Deleted -> Purged. Deleted entities sit in a recycling bin from
// which they can be restored; purging is irreversible and only reachable from the bin.
// The package is used by the API server to check document transitions and by the client
// stores, which wrap a Collection in a Manager that persists every change before it
// becomes visible.
package softdelete

import (
	"errors"
	"fmt"
)

// State is the lifecycle position of an entity.
type State string

const (
	// StateAbsent marks an entity that does not exist yet.
	StateAbsent State = ""
	// StateActive marks an entity in the active collection.
	StateActive State = "active"
	// StateDeleted marks an entity sitting in the recycling bin.
	StateDeleted State = "deleted"
	// StatePurged marks an entity that was removed permanently.
	StatePurged State = "purged"
)

// Operation is a request to change the state or content of an entity.
type Operation string

const (
	OperationAdd     Operation = "add"
	OperationUpdate  Operation = "update"
	OperationRemove  Operation = "remove"
	OperationRestore Operation = "restore"
	OperationPurge   Operation = "purge"
)

var (
	// ErrInvalidTransition indicates the operation is not allowed from the entity's state.
	ErrInvalidTransition = errors.New("softdelete: invalid transition")
	// ErrNotFound indicates no entity carries the requested id.
	ErrNotFound = errors.New("softdelete: entity not found")
	// ErrDuplicateID indicates an added entity reuses an id already tracked.
	ErrDuplicateID = errors.New("softdelete: duplicate entity id")
	// ErrMissingID indicates an entity without an identifier.
	ErrMissingID = errors.New("softdelete: entity id required")
)

type transitionKey struct {
	from State
	op   Operation
}

var transitions = map[transitionKey]State{
	{from: StateAbsent, op: OperationAdd}:      StateActive,
	{from: StateActive, op: OperationUpdate}:   StateActive,
	{from: StateActive, op: OperationRemove}:   StateDeleted,
	{from: StateDeleted, op: OperationRestore}: StateActive,
	{from: StateDeleted, op: OperationPurge}:   StatePurged,
}

// Transition returns the state reached by applying op to an entity in state from.
func Transition(from State, op Operation) (State, error) {
	next, ok := transitions[transitionKey{from: from, op: op}]
	if !ok {
		return from, fmt.Errorf("%w: cannot %s %s entity", ErrInvalidTransition, op, describe(from))
	}
	return next, nil
}

func describe(state State) string {
	if state == StateAbsent {
		return "missing"
	}
	return string(state)
}
