package database

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/trainhub/internal/inventory"
	"github.com/MarcoPoloResearchLab/trainhub/internal/users"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const migrationNormalizeLegacyInventory = "2025-06-01_normalize_legacy_inventory"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeLegacyInventory, apply: normalizeLegacyInventory},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeLegacyInventory rewrites bare-string and id-less inventory entries into the
// current item shape so that stored ids stop depending on list position.
func normalizeLegacyInventory(db *gorm.DB) error {
	var accounts []users.Account
	if err := db.Find(&accounts).Error; err != nil {
		return err
	}
	for _, account := range accounts {
		updates := map[string]any{}
		lists := []struct {
			column string
			scope  string
			data   datatypes.JSON
		}{
			{column: "inventory", scope: users.InventoryScope(account.Email), data: account.Inventory},
			{column: "deleted_inventory", scope: users.DeletedInventoryScope(account.Email), data: account.DeletedInventory},
		}
		for _, list := range lists {
			items, err := inventory.DecodeList(list.data, list.scope)
			if err != nil {
				return err
			}
			encoded, err := json.Marshal(items)
			if err != nil {
				return err
			}
			if !bytes.Equal(bytes.TrimSpace(list.data), encoded) {
				updates[list.column] = datatypes.JSON(encoded)
			}
		}
		if len(updates) == 0 {
			continue
		}
		if err := db.Model(&users.Account{}).Where("email = ?", account.Email).Updates(updates).Error; err != nil {
			return err
		}
	}
	return nil
}
