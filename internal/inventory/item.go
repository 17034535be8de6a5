package inventory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/trainhub/internal/validation"
)

// MaxItems bounds the active inventory of a single user.
const MaxItems = 1000

var (
	// ErrDuplicateItemID indicates an item id appears more than once across a record.
	ErrDuplicateItemID = errors.New("inventory: duplicate item id")
	// ErrTooManyItems indicates the active list exceeds MaxItems.
	ErrTooManyItems = errors.New("inventory: too many items")
)

// Item is a single tracked inventory line.
type Item struct {
	ID             string `json:"id"`
	Description    string `json:"description"`
	UPC            string `json:"upc"`
	Code           string `json:"code,omitempty"`
	Number         string `json:"number"`
	Quantity       int    `json:"quantity"`
	TargetQuantity int    `json:"target_quantity"`
}

// EntityID returns the stable identifier of the item.
func (i Item) EntityID() string {
	return i.ID
}

// Record is the per-user inventory document. An item lives in exactly one of the lists.
type Record struct {
	Email            string `json:"email"`
	Inventory        []Item `json:"inventory"`
	DeletedInventory []Item `json:"deleted_inventory"`
}

// Validate checks the caller-supplied fields of an item.
func Validate(item Item) error {
	if strings.TrimSpace(item.Description) == "" {
		return validation.New("description", "description is required")
	}
	if item.Quantity < 0 {
		return validation.New("quantity", "quantity must not be negative")
	}
	if item.TargetQuantity < 0 {
		return validation.New("target_quantity", "target quantity must not be negative")
	}
	return nil
}

// ValidateRecord checks every item and the partition invariant of a full record.
func ValidateRecord(record Record) error {
	if len(record.Inventory) > MaxItems {
		return fmt.Errorf("%w: max %d items", ErrTooManyItems, MaxItems)
	}
	seen := make(map[string]struct{}, len(record.Inventory)+len(record.DeletedInventory))
	for _, list := range [][]Item{record.Inventory, record.DeletedInventory} {
		for _, item := range list {
			if err := Validate(item); err != nil {
				return err
			}
			if item.ID == "" {
				continue
			}
			if _, exists := seen[item.ID]; exists {
				return fmt.Errorf("%w: %s", ErrDuplicateItemID, item.ID)
			}
			seen[item.ID] = struct{}{}
		}
	}
	return nil
}

// Need returns how many units are missing to reach the target quantity.
// Negative values indicate a surplus.
func Need(item Item) int {
	return item.TargetQuantity - item.Quantity
}

// NeedLabel renders the stock indicator shown next to an item.
func NeedLabel(item Item) string {
	need := Need(item)
	switch {
	case need > 0:
		return fmt.Sprintf("Need: +%d", need)
	case need < 0:
		return fmt.Sprintf("Surplus: %d", -need)
	default:
		return "Stocked"
	}
}
