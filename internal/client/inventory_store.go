package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/trainhub/internal/inventory"
	"github.com/MarcoPoloResearchLab/trainhub/internal/softdelete"
	"github.com/MarcoPoloResearchLab/trainhub/internal/transport"
	"go.uber.org/zap"
)

// ErrSignedOut indicates a store operation without a signed-in principal.
var ErrSignedOut = errors.New("client: not signed in")

// InventoryStore is the signed-in user's inventory with its recycling bin. Every change
// saves the full record before the store reflects it.
type InventoryStore struct {
	manager *softdelete.Manager[inventory.Item]
}

// NewInventoryStore builds the store for email.
func NewInventoryStore(api *API, email string, logger *zap.Logger) (*InventoryStore, error) {
	if email == "" {
		return nil, ErrSignedOut
	}
	manager, err := softdelete.NewManager(softdelete.ManagerConfig[inventory.Item]{
		Backend: &inventoryBackend{api: api, email: email},
		Policy: softdelete.Policy[inventory.Item]{
			Validate: inventory.Validate,
		},
		Actor:  email,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	return &InventoryStore{manager: manager}, nil
}

// Refresh reloads the record from the server.
func (s *InventoryStore) Refresh(ctx context.Context) (softdelete.Collection[inventory.Item], error) {
	return s.manager.Refresh(ctx)
}

// Items returns the last committed lists.
func (s *InventoryStore) Items() softdelete.Collection[inventory.Item] {
	return s.manager.Snapshot()
}

// Add appends item to the active list, assigning it an id when it has none.
func (s *InventoryStore) Add(ctx context.Context, item inventory.Item) (inventory.Item, error) {
	if item.ID == "" {
		id, err := inventory.NewItemID()
		if err != nil {
			return inventory.Item{}, fmt.Errorf("client: item id: %w", err)
		}
		item.ID = id
	}
	return s.manager.Add(ctx, item)
}

func (s *InventoryStore) Update(ctx context.Context, item inventory.Item) (inventory.Item, error) {
	return s.manager.Update(ctx, item)
}

func (s *InventoryStore) Remove(ctx context.Context, id string) (inventory.Item, error) {
	return s.manager.Remove(ctx, id)
}

func (s *InventoryStore) Restore(ctx context.Context, id string) (inventory.Item, error) {
	return s.manager.Restore(ctx, id)
}

func (s *InventoryStore) Purge(ctx context.Context, id string) (inventory.Item, error) {
	return s.manager.Purge(ctx, id)
}

type inventoryBackend struct {
	api   *API
	email string
}

func (b *inventoryBackend) Fetch(ctx context.Context) (softdelete.Collection[inventory.Item], error) {
	user, err := b.api.GetUser(ctx, b.email)
	if err != nil {
		return softdelete.Collection[inventory.Item]{}, err
	}
	return softdelete.Collection[inventory.Item]{Active: user.Inventory, Deleted: user.DeletedInventory}, nil
}

// Commit saves the whole record and returns the item as the server stored it.
func (b *inventoryBackend) Commit(ctx context.Context, change softdelete.Change[inventory.Item]) (inventory.Item, error) {
	saved, err := b.api.SaveUser(ctx, inventory.Record{
		Email:            b.email,
		Inventory:        change.Next.Active,
		DeletedInventory: change.Next.Deleted,
	})
	if err != nil {
		return inventory.Item{}, err
	}
	if change.Operation == softdelete.OperationPurge {
		return change.Item, nil
	}
	stored := softdelete.Collection[inventory.Item]{Active: saved.Inventory, Deleted: saved.DeletedInventory}
	item, _, found := stored.Find(change.Item.ID)
	if !found {
		return inventory.Item{}, &transport.TransportError{
			Kind: transport.KindMalformed,
			Op:   "POST /api/user",
			Err:  fmt.Errorf("saved record lacks item %s", change.Item.ID),
		}
	}
	return item, nil
}
