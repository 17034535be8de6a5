package training

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/trainhub/internal/softdelete"
	"github.com/MarcoPoloResearchLab/trainhub/internal/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates the training does not exist in the requested state.
	ErrNotFound = errors.New("training: not found")
	// ErrNotOwner indicates the acting principal did not author the training.
	ErrNotOwner = errors.New("training: not owner")
	// ErrMissingActor indicates the acting principal was not supplied.
	ErrMissingActor = errors.New("training: acting principal required")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries a dotted error code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew  = "training.service.new"
	opList        = "training.list"
	opListDeleted = "training.list_deleted"
	opGet         = "training.get"
	opCreate      = "training.create"
	opUpdate      = "training.update"
	opDelete      = "training.delete"
	opRestore     = "training.restore"
	opPurge       = "training.purge"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service persists training documents and applies the recycling bin lifecycle.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// List returns every active training, oldest first.
func (s *Service) List(ctx context.Context) ([]Document, error) {
	if s.db == nil {
		return nil, newServiceError(opList, "missing_database", errMissingDatabase)
	}
	documents := make([]Document, 0)
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&documents).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, newServiceError(opList, "query_failed", err)
	}
	return documents, nil
}

// ListDeleted returns the recycling bin of the acting principal, most recently deleted first.
func (s *Service) ListDeleted(ctx context.Context, actor string) ([]Document, error) {
	if s.db == nil {
		return nil, newServiceError(opListDeleted, "missing_database", errMissingDatabase)
	}
	actor = validation.NormalizeEmail(actor)
	if actor == "" {
		return nil, newServiceError(opListDeleted, "missing_actor", ErrMissingActor)
	}
	documents := make([]Document, 0)
	err := s.db.WithContext(ctx).Unscoped().
		Where("created_by = ? AND deleted_at IS NOT NULL", actor).
		Order("deleted_at DESC").
		Find(&documents).Error
	if err != nil {
		s.logError(opListDeleted, "query_failed", err, zap.String("actor", actor))
		return nil, newServiceError(opListDeleted, "query_failed", err)
	}
	return documents, nil
}

// Get returns a single active training.
func (s *Service) Get(ctx context.Context, id string) (Document, error) {
	if s.db == nil {
		return Document{}, newServiceError(opGet, "missing_database", errMissingDatabase)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Document{}, newServiceError(opGet, "missing_id", validation.New("id", "id required"))
	}
	var document Document
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&document).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, newServiceError(opGet, "not_found", ErrNotFound)
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("training_id", id))
		return Document{}, newServiceError(opGet, "query_failed", err)
	}
	return document, nil
}

// Create stores a new active training authored by actor.
func (s *Service) Create(ctx context.Context, actor string, draft Draft) (Document, error) {
	if s.db == nil {
		return Document{}, newServiceError(opCreate, "missing_database", errMissingDatabase)
	}
	actor = validation.NormalizeEmail(actor)
	if actor == "" {
		return Document{}, newServiceError(opCreate, "missing_actor", ErrMissingActor)
	}
	if err := ValidateTitle(draft.Title); err != nil {
		return Document{}, newServiceError(opCreate, "invalid_title", err)
	}
	blocks, err := NormalizeBlocks(draft.Blocks, s.idProvider)
	if err != nil {
		return Document{}, newServiceError(opCreate, "invalid_blocks", err)
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Document{}, newServiceError(opCreate, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	document := Document{
		ID:           id,
		Title:        strings.TrimSpace(draft.Title),
		Description:  strings.TrimSpace(draft.Description),
		ThumbnailURL: strings.TrimSpace(draft.ThumbnailURL),
		CreatedBy:    actor,
		Blocks:       blocks,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(&document).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("actor", actor))
		return Document{}, newServiceError(opCreate, "insert_failed", err)
	}
	return document, nil
}

// Update applies a patch to an active training owned by actor.
func (s *Service) Update(ctx context.Context, actor string, patch Patch) (Document, error) {
	var updated Document
	err := s.transition(ctx, opUpdate, actor, patch.ID, softdelete.OperationUpdate, func(tx *gorm.DB, document *Document) error {
		if patch.Title != "" {
			if err := ValidateTitle(patch.Title); err != nil {
				return newServiceError(opUpdate, "invalid_title", err)
			}
			document.Title = strings.TrimSpace(patch.Title)
		}
		if patch.Description != "" {
			document.Description = strings.TrimSpace(patch.Description)
		}
		if patch.ThumbnailURL != "" {
			document.ThumbnailURL = strings.TrimSpace(patch.ThumbnailURL)
		}
		if patch.Blocks != nil {
			blocks, err := NormalizeBlocks(patch.Blocks, s.idProvider)
			if err != nil {
				return newServiceError(opUpdate, "invalid_blocks", err)
			}
			document.Blocks = blocks
		}
		document.UpdatedAt = s.clock().UTC()
		if err := tx.Save(document).Error; err != nil {
			return err
		}
		updated = *document
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	return updated, nil
}

// Delete moves an active training owned by actor into the recycling bin.
func (s *Service) Delete(ctx context.Context, actor, id string) error {
	return s.transition(ctx, opDelete, actor, id, softdelete.OperationRemove, func(tx *gorm.DB, document *Document) error {
		now := s.clock().UTC()
		return tx.Unscoped().Model(document).Updates(map[string]any{
			"deleted_at": now,
			"updated_at": now,
		}).Error
	})
}

// Restore moves a training owned by actor out of the recycling bin.
func (s *Service) Restore(ctx context.Context, actor, id string) error {
	return s.transition(ctx, opRestore, actor, id, softdelete.OperationRestore, func(tx *gorm.DB, document *Document) error {
		return tx.Unscoped().Model(document).Updates(map[string]any{
			"deleted_at": nil,
			"updated_at": s.clock().UTC(),
		}).Error
	})
}

// Purge permanently removes a training owned by actor from the recycling bin.
func (s *Service) Purge(ctx context.Context, actor, id string) error {
	return s.transition(ctx, opPurge, actor, id, softdelete.OperationPurge, func(tx *gorm.DB, document *Document) error {
		return tx.Unscoped().Delete(document).Error
	})
}

type transitionFunc func(tx *gorm.DB, document *Document) error

// transition loads the document regardless of its bin state, checks ownership and the
// lifecycle transition, then applies the change inside one transaction.
func (s *Service) transition(ctx context.Context, operation, actor, id string, op softdelete.Operation, apply transitionFunc) error {
	if s.db == nil {
		return newServiceError(operation, "missing_database", errMissingDatabase)
	}
	actor = validation.NormalizeEmail(actor)
	if actor == "" {
		return newServiceError(operation, "missing_actor", ErrMissingActor)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return newServiceError(operation, "missing_id", validation.New("id", "id required"))
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var document Document
		err := tx.Unscoped().Where("id = ?", id).Take(&document).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(operation, "not_found", ErrNotFound)
		}
		if err != nil {
			s.logError(operation, "query_failed", err, zap.String("training_id", id))
			return newServiceError(operation, "query_failed", err)
		}
		if document.CreatedBy != actor {
			return newServiceError(operation, "not_owner", ErrNotOwner)
		}
		if _, err := softdelete.Transition(StateOf(document), op); err != nil {
			return newServiceError(operation, "invalid_transition", err)
		}
		if err := apply(tx, &document); err != nil {
			var serviceErr *ServiceError
			if errors.As(err, &serviceErr) {
				return err
			}
			s.logError(operation, "write_failed", err, zap.String("training_id", id))
			return newServiceError(operation, "write_failed", err)
		}
		return nil
	})
}

// StateOf reports whether a stored document is active or in the recycling bin.
func StateOf(document Document) softdelete.State {
	if document.DeletedAt.Valid {
		return softdelete.StateDeleted
	}
	return softdelete.StateActive
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("training service error", attrs...)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}
