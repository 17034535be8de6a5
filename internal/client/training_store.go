package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/MarcoPoloResearchLab/trainhub/internal/softdelete"
	"github.com/MarcoPoloResearchLab/trainhub/internal/training"
	"github.com/MarcoPoloResearchLab/trainhub/internal/transport"
	"github.com/MarcoPoloResearchLab/trainhub/internal/validation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// pendingPrefix marks ids of documents the server has not confirmed yet.
const pendingPrefix = "pending-"

// TrainingStore holds the active trainings and the signed-in author's recycling bin.
// Mutations other than create are limited to the author's own documents.
type TrainingStore struct {
	api     *API
	actor   string
	manager *softdelete.Manager[training.Document]
}

// NewTrainingStore builds the store. An empty actor yields a read-only store.
func NewTrainingStore(api *API, actor string, logger *zap.Logger) (*TrainingStore, error) {
	store := &TrainingStore{api: api, actor: actor}
	manager, err := softdelete.NewManager(softdelete.ManagerConfig[training.Document]{
		Backend: &trainingBackend{api: api, actor: actor},
		Policy: softdelete.Policy[training.Document]{
			Validate:  training.ValidateDocument,
			Authorize: authorizeDocument,
		},
		Actor:  actor,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	store.manager = manager
	return store, nil
}

// Refresh reloads both lists from the server.
func (s *TrainingStore) Refresh(ctx context.Context) (softdelete.Collection[training.Document], error) {
	return s.manager.Refresh(ctx)
}

// Documents returns the last committed lists.
func (s *TrainingStore) Documents() softdelete.Collection[training.Document] {
	return s.manager.Snapshot()
}

// Get fetches a single active document straight from the server.
func (s *TrainingStore) Get(ctx context.Context, id string) (training.Document, error) {
	return s.api.GetTraining(ctx, id)
}

// Create publishes a new document authored by the actor.
func (s *TrainingStore) Create(ctx context.Context, draft training.Draft) (training.Document, error) {
	if s.actor == "" {
		return training.Document{}, ErrSignedOut
	}
	id, err := uuid.NewV7()
	if err != nil {
		return training.Document{}, fmt.Errorf("client: pending id: %w", err)
	}
	return s.manager.Add(ctx, training.Document{
		ID:           pendingPrefix + id.String(),
		Title:        draft.Title,
		Description:  draft.Description,
		ThumbnailURL: draft.ThumbnailURL,
		CreatedBy:    s.actor,
		Blocks:       draft.Blocks,
	})
}

// Update replaces the content of an active document.
func (s *TrainingStore) Update(ctx context.Context, document training.Document) (training.Document, error) {
	return s.manager.Update(ctx, document)
}

// MoveBlock moves a block of an active document to position and saves the new order.
func (s *TrainingStore) MoveBlock(ctx context.Context, documentID, blockID string, position int) (training.Document, error) {
	return s.editBlocks(ctx, documentID, blockID, func(blocks []training.Block) ([]training.Block, error) {
		return training.MoveBlock(blocks, blockID, position)
	})
}

// RemoveBlock drops a block from an active document. Removing the last block leaves the
// document with an empty block list.
func (s *TrainingStore) RemoveBlock(ctx context.Context, documentID, blockID string) (training.Document, error) {
	return s.editBlocks(ctx, documentID, blockID, func(blocks []training.Block) ([]training.Block, error) {
		return training.RemoveBlock(blocks, blockID)
	})
}

func (s *TrainingStore) editBlocks(ctx context.Context, documentID, blockID string, edit func([]training.Block) ([]training.Block, error)) (training.Document, error) {
	collection, err := s.manager.Refresh(ctx)
	if err != nil {
		return training.Document{}, err
	}
	document, state, found := collection.Find(documentID)
	if !found || state != softdelete.StateActive {
		return training.Document{}, validation.New("id", "training "+documentID+" not found")
	}
	blocks, err := edit(document.Blocks)
	if errors.Is(err, training.ErrUnknownBlock) {
		return training.Document{}, validation.New("block", "block "+blockID+" not found")
	}
	if err != nil {
		return training.Document{}, err
	}
	document.Blocks = blocks
	return s.manager.Update(ctx, document)
}

func (s *TrainingStore) Remove(ctx context.Context, id string) (training.Document, error) {
	return s.manager.Remove(ctx, id)
}

func (s *TrainingStore) Restore(ctx context.Context, id string) (training.Document, error) {
	return s.manager.Restore(ctx, id)
}

func (s *TrainingStore) Purge(ctx context.Context, id string) (training.Document, error) {
	return s.manager.Purge(ctx, id)
}

// authorizeDocument mirrors the server's owner check so foreign documents fail without a
// round trip, with the same code and message the server would send.
func authorizeDocument(op softdelete.Operation, document training.Document, actor string) error {
	if op == softdelete.OperationAdd {
		return nil
	}
	if actor != "" && document.CreatedBy == actor {
		return nil
	}
	verb, name := "delete", "delete"
	switch op {
	case softdelete.OperationUpdate:
		verb, name = "edit", "update"
	case softdelete.OperationRestore:
		verb, name = "restore", "restore"
	case softdelete.OperationPurge:
		name = "purge"
	}
	return &transport.ApplicationError{
		Code:    "training." + name + ".not_owner",
		Message: "you can only " + verb + " your own trainings",
		Status:  http.StatusOK,
	}
}

type trainingBackend struct {
	api   *API
	actor string
}

func (b *trainingBackend) Fetch(ctx context.Context) (softdelete.Collection[training.Document], error) {
	active, err := b.api.ListTrainings(ctx)
	if err != nil {
		return softdelete.Collection[training.Document]{}, err
	}
	collection := softdelete.Collection[training.Document]{Active: active}
	if b.actor == "" {
		return collection, nil
	}
	deleted, err := b.api.ListDeletedTrainings(ctx, b.actor)
	if err != nil {
		return softdelete.Collection[training.Document]{}, err
	}
	collection.Deleted = deleted
	return collection, nil
}

// Commit sends each operation to its endpoint.
func (b *trainingBackend) Commit(ctx context.Context, change softdelete.Change[training.Document]) (training.Document, error) {
	document := change.Item
	switch change.Operation {
	case softdelete.OperationAdd:
		return b.api.CreateTraining(ctx, b.actor, training.Draft{
			Title:        document.Title,
			Description:  document.Description,
			ThumbnailURL: document.ThumbnailURL,
			Blocks:       document.Blocks,
		})
	case softdelete.OperationUpdate:
		return b.api.UpdateTraining(ctx, training.Patch{
			ID:           document.ID,
			Title:        document.Title,
			Description:  document.Description,
			ThumbnailURL: document.ThumbnailURL,
			Blocks:       document.Blocks,
		})
	case softdelete.OperationRemove:
		return document, b.api.DeleteTraining(ctx, document.ID, b.actor)
	case softdelete.OperationRestore:
		return document, b.api.RestoreTraining(ctx, document.ID, b.actor)
	case softdelete.OperationPurge:
		return document, b.api.PurgeTraining(ctx, document.ID, b.actor)
	default:
		return training.Document{}, fmt.Errorf("client: unsupported training operation %q", change.Operation)
	}
}
