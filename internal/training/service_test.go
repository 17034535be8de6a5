package training

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/trainhub/internal/softdelete"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testOwner    = "owner@example.com"
	testStranger = "stranger@example.com"
)

type sequenceProvider struct {
	next int
}

func (p *sequenceProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("id-%d", p.next), nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "training.db")
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Document{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	current := time.Unix(1700000000, 0)
	service, err := NewService(ServiceConfig{
		Database:   db,
		IDProvider: &sequenceProvider{},
		Logger:     zap.NewNop(),
		Clock: func() time.Time {
			current = current.Add(time.Second)
			return current
		},
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service
}

func mustCreate(t *testing.T, service *Service, actor, title string) Document {
	t.Helper()
	document, err := service.Create(context.Background(), actor, Draft{
		Title: title,
		Blocks: []Block{
			{Type: BlockText, Order: 5, Content: map[string]any{"text": "second"}},
			{Type: BlockTitle, Order: 1, Content: map[string]any{"text": "first"}},
		},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return document
}

func serviceCode(t *testing.T, err error) string {
	t.Helper()
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected service error, got %v", err)
	}
	return serviceErr.Code()
}

func TestCreateNormalizesBlocks(t *testing.T) {
	service := newTestService(t)
	document := mustCreate(t, service, "Owner@Example.com", "Forklift Safety")

	if document.CreatedBy != testOwner {
		t.Fatalf("expected normalized author, got %q", document.CreatedBy)
	}
	if len(document.Blocks) != 2 {
		t.Fatalf("expected two blocks, got %d", len(document.Blocks))
	}
	if document.Blocks[0].Type != BlockTitle || document.Blocks[0].Order != 0 || document.Blocks[1].Order != 1 {
		t.Fatalf("expected dense order sorted by submitted order, got %+v", document.Blocks)
	}
	if document.Blocks[0].ID == "" || document.Blocks[1].ID == "" {
		t.Fatalf("expected block ids to be assigned")
	}

	stored, err := service.Get(context.Background(), document.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(stored.Blocks) != 2 || stored.Blocks[1].Content["text"] != "second" {
		t.Fatalf("unexpected stored blocks: %+v", stored.Blocks)
	}
}

func TestCreateRequiresTitle(t *testing.T) {
	service := newTestService(t)
	_, err := service.Create(context.Background(), testOwner, Draft{Title: "   "})
	if code := serviceCode(t, err); code != "training.create.invalid_title" {
		t.Fatalf("unexpected code %q", code)
	}
}

func TestDeleteRequiresOwnership(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	document := mustCreate(t, service, testOwner, "Ladder Use")

	err := service.Delete(ctx, testStranger, document.ID)
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ownership error, got %v", err)
	}
	if code := serviceCode(t, err); code != "training.delete.not_owner" {
		t.Fatalf("unexpected code %q", code)
	}

	if _, err := service.Get(ctx, document.ID); err != nil {
		t.Fatalf("expected document to remain active: %v", err)
	}
}

func TestRecyclingBinLifecycle(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	document := mustCreate(t, service, testOwner, "Lockout Tagout")

	if err := service.Delete(ctx, testOwner, document.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := service.Get(ctx, document.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted document to be hidden, got %v", err)
	}
	active, err := service.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active documents, got %d", len(active))
	}
	bin, err := service.ListDeleted(ctx, testOwner)
	if err != nil {
		t.Fatalf("list deleted failed: %v", err)
	}
	if len(bin) != 1 || bin[0].ID != document.ID {
		t.Fatalf("expected document in bin, got %+v", bin)
	}
	if StateOf(bin[0]) != softdelete.StateDeleted {
		t.Fatalf("expected deleted state")
	}
	strangerBin, err := service.ListDeleted(ctx, testStranger)
	if err != nil {
		t.Fatalf("list deleted failed: %v", err)
	}
	if len(strangerBin) != 0 {
		t.Fatalf("expected stranger bin to be empty")
	}

	if err := service.Restore(ctx, testOwner, document.ID); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	restored, err := service.Get(ctx, document.ID)
	if err != nil {
		t.Fatalf("expected restored document: %v", err)
	}
	if restored.Title != document.Title || len(restored.Blocks) != len(document.Blocks) {
		t.Fatalf("restored document differs: %+v", restored)
	}
}

func TestPurgeOnlyFromBin(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	document := mustCreate(t, service, testOwner, "Hazmat")

	err := service.Purge(ctx, testOwner, document.ID)
	if !errors.Is(err, softdelete.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if _, err := service.Get(ctx, document.ID); err != nil {
		t.Fatalf("expected active document to survive purge attempt: %v", err)
	}

	if err := service.Delete(ctx, testOwner, document.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := service.Purge(ctx, testOwner, document.ID); err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if err := service.Restore(ctx, testOwner, document.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected purged document to be gone, got %v", err)
	}
}

func TestUpdateKeepsUnsetFields(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	document := mustCreate(t, service, testOwner, "Original")

	updated, err := service.Update(ctx, testOwner, Patch{ID: document.ID, Description: "new description"})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Title != "Original" || updated.Description != "new description" {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if len(updated.Blocks) != 2 {
		t.Fatalf("expected blocks to be preserved")
	}

	if _, err := service.Update(ctx, testStranger, Patch{ID: document.ID, Title: "Hijack"}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ownership error, got %v", err)
	}
}

func TestServiceWithoutDatabaseReportsCode(t *testing.T) {
	service := &Service{}
	_, err := service.List(context.Background())
	if code := serviceCode(t, err); code != "training.list.missing_database" {
		t.Fatalf("unexpected code %q", code)
	}
}
