package softdelete

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	errMissingBackend = errors.New("softdelete: backend is required")
	noOpLogger        = zap.NewNop()
)

// Change describes a mutation handed to a Backend for persistence.
type Change[E Entity] struct {
	Operation Operation
	Actor     string
	Item      E
	Previous  Collection[E]
	Next      Collection[E]
}

// Backend loads and persists a collection. Commit must return the entity as confirmed
// by the persistence layer; the confirmed value replaces Item in the committed snapshot.
type Backend[E Entity] interface {
	Fetch(ctx context.Context) (Collection[E], error)
	Commit(ctx context.Context, change Change[E]) (E, error)
}

// Policy carries the entity-specific predicates consulted before any persistence.
type Policy[E Entity] struct {
	// Validate checks the fields of added or updated entities.
	Validate func(item E) error
	// Authorize decides whether actor may apply op to item.
	Authorize func(op Operation, item E, actor string) error
}

// ManagerConfig wires a Manager.
type ManagerConfig[E Entity] struct {
	Backend Backend[E]
	Policy  Policy[E]
	Actor   string
	Logger  *zap.Logger
}

// Manager owns the committed view of a collection. Every operation is validated,
// persisted through the backend, and only then published to the snapshot, so a failed
// commit leaves the visible state untouched. Operations run one at a time in the order
// they were issued.
type Manager[E Entity] struct {
	mu       sync.Mutex
	backend  Backend[E]
	policy   Policy[E]
	actor    string
	logger   *zap.Logger
	snapshot Collection[E]
	loaded   bool
}

// NewManager constructs a Manager.
func NewManager[E Entity](cfg ManagerConfig[E]) (*Manager[E], error) {
	if cfg.Backend == nil {
		return nil, errMissingBackend
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Manager[E]{
		backend: cfg.Backend,
		policy:  cfg.Policy,
		actor:   cfg.Actor,
		logger:  logger,
	}, nil
}

// Actor returns the principal the manager acts for.
func (m *Manager[E]) Actor() string {
	return m.actor
}

// Refresh replaces the snapshot with the backend's authoritative copy.
func (m *Manager[E]) Refresh(ctx context.Context) (Collection[E], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.refreshLocked(ctx); err != nil {
		return Collection[E]{}, err
	}
	return m.snapshot.Clone(), nil
}

// Snapshot returns a copy of the last committed collection.
func (m *Manager[E]) Snapshot() Collection[E] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot.Clone()
}

// Add validates and persists a new active entity.
func (m *Manager[E]) Add(ctx context.Context, item E) (E, error) {
	return m.mutate(ctx, OperationAdd, item.EntityID(), func(current Collection[E]) (Collection[E], E, error) {
		if err := m.validate(item); err != nil {
			return current, item, err
		}
		if err := m.authorize(OperationAdd, item); err != nil {
			return current, item, err
		}
		next, err := current.Add(item)
		return next, item, err
	})
}

// Update validates and persists new content for an active entity.
func (m *Manager[E]) Update(ctx context.Context, item E) (E, error) {
	return m.mutate(ctx, OperationUpdate, item.EntityID(), func(current Collection[E]) (Collection[E], E, error) {
		if err := m.validate(item); err != nil {
			return current, item, err
		}
		existing, _, found := current.Find(item.EntityID())
		if found {
			if err := m.authorize(OperationUpdate, existing); err != nil {
				return current, item, err
			}
		}
		next, err := current.Update(item)
		return next, item, err
	})
}

// Remove moves an active entity to the recycling bin.
func (m *Manager[E]) Remove(ctx context.Context, id string) (E, error) {
	return m.mutate(ctx, OperationRemove, id, func(current Collection[E]) (Collection[E], E, error) {
		return m.guarded(current, OperationRemove, id, current.Remove)
	})
}

// Restore moves an entity from the recycling bin back to the active list.
func (m *Manager[E]) Restore(ctx context.Context, id string) (E, error) {
	return m.mutate(ctx, OperationRestore, id, func(current Collection[E]) (Collection[E], E, error) {
		return m.guarded(current, OperationRestore, id, current.Restore)
	})
}

// Purge permanently drops an entity from the recycling bin.
func (m *Manager[E]) Purge(ctx context.Context, id string) (E, error) {
	return m.mutate(ctx, OperationPurge, id, func(current Collection[E]) (Collection[E], E, error) {
		return m.guarded(current, OperationPurge, id, current.Purge)
	})
}

type planFunc[E Entity] func(current Collection[E]) (Collection[E], E, error)

func (m *Manager[E]) mutate(ctx context.Context, op Operation, id string, plan planFunc[E]) (E, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero E
	if !m.loaded {
		if err := m.refreshLocked(ctx); err != nil {
			return zero, err
		}
	}

	previous := m.snapshot.Clone()
	next, item, err := plan(previous)
	if err != nil {
		return zero, err
	}

	confirmed, err := m.backend.Commit(ctx, Change[E]{
		Operation: op,
		Actor:     m.actor,
		Item:      item,
		Previous:  previous,
		Next:      next,
	})
	if err != nil {
		m.logger.Warn("soft delete commit failed",
			zap.String("operation", string(op)),
			zap.String("entity_id", id),
			zap.Error(err))
		return zero, err
	}

	if op != OperationPurge {
		next = next.Replace(id, confirmed)
	}
	m.snapshot = next
	return confirmed, nil
}

func (m *Manager[E]) guarded(current Collection[E], op Operation, id string, apply func(string) (Collection[E], E, error)) (Collection[E], E, error) {
	existing, _, found := current.Find(id)
	if found {
		if err := m.authorize(op, existing); err != nil {
			return current, existing, err
		}
	}
	return apply(id)
}

func (m *Manager[E]) refreshLocked(ctx context.Context) error {
	collection, err := m.backend.Fetch(ctx)
	if err != nil {
		return err
	}
	m.snapshot = collection.Clone()
	m.loaded = true
	return nil
}

func (m *Manager[E]) validate(item E) error {
	if m.policy.Validate == nil {
		return nil
	}
	return m.policy.Validate(item)
}

func (m *Manager[E]) authorize(op Operation, item E) error {
	if m.policy.Authorize == nil {
		return nil
	}
	return m.policy.Authorize(op, item, m.actor)
}
