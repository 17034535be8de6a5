package users

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/trainhub/internal/inventory"
	"github.com/MarcoPoloResearchLab/trainhub/internal/softdelete"
	"github.com/MarcoPoloResearchLab/trainhub/internal/validation"
	sqlite "github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "users.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Account{}); err != nil {
		t.Fatalf("failed to migrate account schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database: db,
		HashCost: bcrypt.MinCost,
		Clock: func() time.Time {
			return time.Unix(1700000000, 0)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func TestSignupAndLogin(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	principal, err := service.Signup(ctx, "  Dana Smith ", " Dana@Example.COM ", "secret-pass")
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	if principal.Email != "dana@example.com" || principal.Name != "Dana Smith" {
		t.Fatalf("unexpected principal %+v", principal)
	}

	_, err = service.Signup(ctx, "Dana Again", "dana@example.com", "secret-pass")
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected duplicate signup to fail, got %v", err)
	}

	loggedIn, err := service.Login(ctx, "DANA@example.com", "secret-pass")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if loggedIn != principal {
		t.Fatalf("expected login to return %+v, got %+v", principal, loggedIn)
	}

	if _, err := service.Login(ctx, "dana@example.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := service.Login(ctx, "nobody@example.com", "secret-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
}

func TestSignupValidatesInput(t *testing.T) {
	service, _ := newTestService(t)
	_, err := service.Signup(context.Background(), "D", "dana@example.com", "secret-pass")
	var validationErr *validation.ValidationError
	if !errors.As(err, &validationErr) || validationErr.Field != "name" {
		t.Fatalf("expected name validation error, got %v", err)
	}
}

func TestGetRecordNormalizesLegacyItems(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()
	if _, err := service.Signup(ctx, "Legacy User", "legacy@example.com", "secret-pass"); err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	legacy := datatypes.JSON(`["Hammer","Saw","Cordless Drill"]`)
	if err := db.Model(&Account{}).Where("email = ?", "legacy@example.com").Update("inventory", legacy).Error; err != nil {
		t.Fatalf("failed to seed legacy inventory: %v", err)
	}

	principal, record, err := service.GetRecord(ctx, "legacy@example.com")
	if err != nil {
		t.Fatalf("get record failed: %v", err)
	}
	if principal.Name != "Legacy User" {
		t.Fatalf("unexpected principal %+v", principal)
	}
	if len(record.Inventory) != 3 {
		t.Fatalf("expected three items, got %d", len(record.Inventory))
	}
	drill := record.Inventory[2]
	if drill.Description != "Cordless Drill" || drill.Code != "LEGACY-3" || drill.Number != "3" || drill.Quantity != 1 || drill.TargetQuantity != 1 {
		t.Fatalf("unexpected legacy normalization %+v", drill)
	}
	if drill.ID == "" {
		t.Fatalf("expected legacy item to receive an id")
	}

	_, again, err := service.GetRecord(ctx, "legacy@example.com")
	if err != nil {
		t.Fatalf("second get record failed: %v", err)
	}
	if again.Inventory[2].ID != drill.ID {
		t.Fatalf("expected legacy ids to be stable across reads")
	}
	if len(record.DeletedInventory) != 0 {
		t.Fatalf("expected empty deleted inventory")
	}
}

func TestSaveRecordAssignsIDsAndEnforcesPartition(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	if _, err := service.Signup(ctx, "Inventory User", "stock@example.com", "secret-pass"); err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	saved, err := service.SaveRecord(ctx, inventory.Record{
		Email: "stock@example.com",
		Inventory: []inventory.Item{
			{Description: "Drill", UPC: "123", Number: "1", Quantity: 5, TargetQuantity: 10},
		},
		DeletedInventory: []inventory.Item{},
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if len(saved.Inventory) != 1 || saved.Inventory[0].ID == "" {
		t.Fatalf("expected saved item to receive an id, got %+v", saved.Inventory)
	}

	_, record, err := service.GetRecord(ctx, "stock@example.com")
	if err != nil {
		t.Fatalf("get record failed: %v", err)
	}
	if record.Inventory[0] != saved.Inventory[0] {
		t.Fatalf("expected stored item %+v, got %+v", saved.Inventory[0], record.Inventory[0])
	}

	item := saved.Inventory[0]
	_, err = service.SaveRecord(ctx, inventory.Record{
		Email:            "stock@example.com",
		Inventory:        []inventory.Item{item},
		DeletedInventory: []inventory.Item{item},
	})
	if !errors.Is(err, inventory.ErrDuplicateItemID) {
		t.Fatalf("expected duplicate id rejection, got %v", err)
	}

	_, err = service.SaveRecord(ctx, inventory.Record{Email: "ghost@example.com", Inventory: []inventory.Item{}})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown account, got %v", err)
	}
}

func TestSaveRecordRejectsOversizedInventory(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	if _, err := service.Signup(ctx, "Big User", "big@example.com", "secret-pass"); err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	items := make([]inventory.Item, inventory.MaxItems+1)
	for index := range items {
		items[index] = inventory.Item{Description: "bolt"}
	}
	_, err := service.SaveRecord(ctx, inventory.Record{Email: "big@example.com", Inventory: items})
	if !errors.Is(err, inventory.ErrTooManyItems) {
		t.Fatalf("expected too many items error, got %v", err)
	}
}

func TestSaveRecordChecksBinTransitionsAgainstStoredRecord(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	if _, err := service.Signup(ctx, "Bin User", "bin@example.com", "secret-pass"); err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	added, err := service.SaveRecord(ctx, inventory.Record{
		Email:     "bin@example.com",
		Inventory: []inventory.Item{{Description: "Ladder", Quantity: 1, TargetQuantity: 2}},
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	item := added.Inventory[0]
	if len(added.Changes) != 1 || added.Changes[0].ItemID != item.ID || added.Changes[0].Operation != softdelete.OperationAdd {
		t.Fatalf("expected a single add change for %s, got %+v", item.ID, added.Changes)
	}

	_, err = service.SaveRecord(ctx, inventory.Record{
		Email:            "bin@example.com",
		Inventory:        []inventory.Item{},
		DeletedInventory: []inventory.Item{},
	})
	if !errors.Is(err, softdelete.ErrInvalidTransition) {
		t.Fatalf("expected purge of an active item to be rejected, got %v", err)
	}
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "users.save_record.invalid_transition" {
		t.Fatalf("expected invalid_transition code, got %v", err)
	}
	_, record, err := service.GetRecord(ctx, "bin@example.com")
	if err != nil {
		t.Fatalf("get record failed: %v", err)
	}
	if len(record.Inventory) != 1 || record.Inventory[0] != item {
		t.Fatalf("rejected save must leave the record untouched, got %+v", record)
	}

	removed, err := service.SaveRecord(ctx, inventory.Record{
		Email:            "bin@example.com",
		Inventory:        []inventory.Item{},
		DeletedInventory: []inventory.Item{item},
	})
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if len(removed.Changes) != 1 || removed.Changes[0].Operation != softdelete.OperationRemove {
		t.Fatalf("expected a remove change, got %+v", removed.Changes)
	}
}
