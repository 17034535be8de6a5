package users

import (
	"time"

	"gorm.io/datatypes"
)

// Account stores a principal, its password hash, and its inventory record.
// The inventory columns keep the raw stored JSON so that legacy rows are normalized on read.
type Account struct {
	Email            string         `gorm:"column:email;primaryKey;size:320;not null"`
	Name             string         `gorm:"column:name;size:100;not null"`
	PasswordHash     string         `gorm:"column:password_hash;size:100;not null"`
	Inventory        datatypes.JSON `gorm:"column:inventory"`
	DeletedInventory datatypes.JSON `gorm:"column:deleted_inventory"`
	CreatedAt        time.Time      `gorm:"column:created_at"`
	UpdatedAt        time.Time      `gorm:"column:updated_at"`
}

// TableName exposes the table backing accounts.
func (Account) TableName() string {
	return "accounts"
}

// Principal is the public identity of an account.
type Principal struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (a Account) principal() Principal {
	return Principal{Name: a.Name, Email: a.Email}
}

// InventoryScope seeds the derived ids of legacy items in the active list.
func InventoryScope(email string) string {
	return email + "/inventory"
}

// DeletedInventoryScope seeds the derived ids of legacy items in the recycling bin.
func DeletedInventoryScope(email string) string {
	return email + "/deleted_inventory"
}
