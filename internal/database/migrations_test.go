package database

import (
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/trainhub/internal/inventory"
	"github.com/MarcoPoloResearchLab/trainhub/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func TestApplyMigrationsNormalizesLegacyInventory(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&users.Account{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	account := users.Account{
		Email:            "legacy@example.com",
		Name:             "Legacy",
		PasswordHash:     "hash",
		Inventory:        datatypes.JSON(`["Hammer","Saw","Cordless Drill"]`),
		DeletedInventory: datatypes.JSON(`[{"description":"Tape","quantity":2,"target_quantity":4}]`),
	}
	if err := database.Create(&account).Error; err != nil {
		testContext.Fatalf("failed to insert account: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored users.Account
	if err := database.Where("email = ?", account.Email).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload account: %v", err)
	}
	active, err := inventory.DecodeList(stored.Inventory, "unused-scope")
	if err != nil {
		testContext.Fatalf("failed to decode migrated inventory: %v", err)
	}
	if len(active) != 3 {
		testContext.Fatalf("expected three migrated items, got %d", len(active))
	}
	drill := active[2]
	if drill.Description != "Cordless Drill" || drill.Code != "LEGACY-3" || drill.Number != "3" || drill.Quantity != 1 || drill.TargetQuantity != 1 {
		testContext.Fatalf("unexpected migrated item %+v", drill)
	}
	expected, err := inventory.DecodeList(account.Inventory, users.InventoryScope(account.Email))
	if err != nil {
		testContext.Fatalf("failed to decode legacy inventory: %v", err)
	}
	if drill.ID != expected[2].ID {
		testContext.Fatalf("expected migrated id %s to match read-time id %s", drill.ID, expected[2].ID)
	}

	deleted, err := inventory.DecodeList(stored.DeletedInventory, "unused-scope")
	if err != nil {
		testContext.Fatalf("failed to decode migrated bin: %v", err)
	}
	if len(deleted) != 1 || deleted[0].ID == "" || deleted[0].Quantity != 2 {
		testContext.Fatalf("unexpected migrated bin %+v", deleted)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationNormalizeLegacyInventory).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}

func TestOpenSQLiteCreatesSchema(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "open.db")
	database, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	for _, table := range []string{"accounts", "trainings", "db_migrations"} {
		if !database.Migrator().HasTable(table) {
			testContext.Fatalf("expected table %s to exist", table)
		}
	}
	if _, err := OpenSQLite("", nil); err == nil {
		testContext.Fatalf("expected empty path to be rejected")
	}
}

func TestOpenSQLiteCreatesParentDirectory(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "nested", "data", "trainhub.db")
	database, err := OpenSQLite(databasePath, nil)
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		testContext.Fatalf("failed to access sql db: %v", err)
	}
	defer sqlDB.Close()
	if sqlDB.Stats().MaxOpenConnections != 1 {
		testContext.Fatalf("expected a single connection, got %d", sqlDB.Stats().MaxOpenConnections)
	}
}

func TestDataSourceNameKeepsExplicitOptions(testContext *testing.T) {
	if got := dataSourceName("file:shared?mode=memory"); got != "file:shared?mode=memory" {
		testContext.Fatalf("explicit options rewritten: %s", got)
	}
	if got := dataSourceName("trainhub.db"); got != "trainhub.db?"+sqlitePragmas {
		testContext.Fatalf("unexpected dsn %s", got)
	}
}
