package inventory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

const legacyCodePrefix = "LEGACY-"

// itemNamespace seeds the deterministic ids handed to items stored without one.
var itemNamespace = uuid.MustParse("6f1c3d1e-5a0b-4c55-9d0e-2b8f7c4e9a10")

// NewItemID issues a fresh identifier for an item created by a user.
func NewItemID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// DecodeList parses a stored inventory list, accepting both the current object form and
// the legacy bare-string form. scope distinguishes lists (for example the owner email and
// list name) so that synthesized ids never collide across lists.
func DecodeList(data []byte, scope string) ([]Item, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []Item{}, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("inventory: decode list: %w", err)
	}
	return Normalize(raw, scope)
}

// Normalize converts raw list entries into items. A bare string at index i becomes an
// item with that description, code LEGACY-(i+1), number (i+1), and quantities of one.
func Normalize(raw []json.RawMessage, scope string) ([]Item, error) {
	items := make([]Item, 0, len(raw))
	for index, entry := range raw {
		entry = bytes.TrimSpace(entry)
		if len(entry) > 0 && entry[0] == '"' {
			var description string
			if err := json.Unmarshal(entry, &description); err != nil {
				return nil, fmt.Errorf("inventory: decode legacy item %d: %w", index, err)
			}
			items = append(items, legacyItem(description, index, scope))
			continue
		}

		var item Item
		if err := json.Unmarshal(entry, &item); err != nil {
			return nil, fmt.Errorf("inventory: decode item %d: %w", index, err)
		}
		if item.ID == "" {
			item.ID = derivedID(scope, index, item.Description)
		}
		items = append(items, item)
	}
	return items, nil
}

func legacyItem(description string, index int, scope string) Item {
	position := strconv.Itoa(index + 1)
	return Item{
		ID:             derivedID(scope, index, description),
		Description:    description,
		Code:           legacyCodePrefix + position,
		Number:         position,
		Quantity:       1,
		TargetQuantity: 1,
	}
}

func derivedID(scope string, index int, description string) string {
	name := scope + "\x00" + strconv.Itoa(index) + "\x00" + description
	return uuid.NewSHA1(itemNamespace, []byte(name)).String()
}
