package training

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/trainhub/internal/validation"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MaxTitleLength bounds document titles.
const MaxTitleLength = 200

// BlockType tags the shape of a block's content.
type BlockType string

const (
	BlockTitle   BlockType = "title"
	BlockText    BlockType = "text"
	BlockVideo   BlockType = "video"
	BlockImage   BlockType = "image"
	BlockCode    BlockType = "code"
	BlockList    BlockType = "list"
	BlockQuote   BlockType = "quote"
	BlockDivider BlockType = "divider"
)

// ErrUnknownBlock indicates a block id that is not part of the document.
var ErrUnknownBlock = errors.New("training: unknown block")

// Block is one ordered unit of training content.
type Block struct {
	ID      string         `json:"id"`
	Type    BlockType      `json:"type"`
	Order   int            `json:"order"`
	Content map[string]any `json:"content"`
}

// Document is an authored training with ordered content blocks.
type Document struct {
	ID           string                    `gorm:"column:id;primaryKey;size:64" json:"id"`
	Title        string                    `gorm:"column:title;size:200;not null" json:"title"`
	Description  string                    `gorm:"column:description;type:text" json:"description,omitempty"`
	ThumbnailURL string                    `gorm:"column:thumbnail_url;size:512" json:"thumbnail_url,omitempty"`
	CreatedBy    string                    `gorm:"column:created_by;size:320;not null;index" json:"created_by"`
	Blocks       datatypes.JSONSlice[Block] `gorm:"column:blocks" json:"blocks"`
	CreatedAt    time.Time                 `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time                 `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt    gorm.DeletedAt            `gorm:"column:deleted_at;index" json:"deleted_at"`
}

// TableName provides the explicit table binding for GORM.
func (Document) TableName() string {
	return "trainings"
}

// EntityID returns the document identifier.
func (d Document) EntityID() string {
	return d.ID
}

// Draft carries the author-supplied fields of a new document.
type Draft struct {
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
	Blocks       []Block `json:"blocks,omitempty"`
}

// Patch carries an update. Empty strings and a nil block list leave fields unchanged.
type Patch struct {
	ID           string  `json:"id"`
	Title        string  `json:"title,omitempty"`
	Description  string  `json:"description,omitempty"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
	Blocks       []Block `json:"blocks,omitempty"`
}

// ValidateTitle checks the required title.
func ValidateTitle(title string) error {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return validation.New("title", "title is required")
	}
	if len(trimmed) > MaxTitleLength {
		return validation.New("title", "title too long (max 200 characters)")
	}
	return nil
}

// ValidateDocument checks the title and every block of a document.
func ValidateDocument(document Document) error {
	if err := ValidateTitle(document.Title); err != nil {
		return err
	}
	for _, block := range document.Blocks {
		if err := ValidateBlock(block); err != nil {
			return err
		}
	}
	return nil
}

// ValidateBlock checks that the block's content carries what its type requires.
func ValidateBlock(block Block) error {
	switch block.Type {
	case BlockTitle, BlockText, BlockQuote:
		return requireString(block, "text")
	case BlockVideo, BlockImage:
		return requireString(block, "url")
	case BlockCode:
		return requireString(block, "code")
	case BlockList:
		if listLength(block.Content["items"]) == 0 {
			return validation.New("blocks", "list block requires at least one item")
		}
		return nil
	case BlockDivider:
		return nil
	default:
		return validation.New("blocks", fmt.Sprintf("unknown block type %q", block.Type))
	}
}

func listLength(value any) int {
	switch items := value.(type) {
	case []any:
		return len(items)
	case []string:
		return len(items)
	default:
		return 0
	}
}

func requireString(block Block, key string) error {
	value, _ := block.Content[key].(string)
	if strings.TrimSpace(value) == "" {
		return validation.New("blocks", fmt.Sprintf("%s block requires %s", block.Type, key))
	}
	return nil
}

// NormalizeBlocks sorts blocks by their order, reassigns a dense 0..n-1 order, fills
// missing ids, and validates each block.
func NormalizeBlocks(blocks []Block, ids IDProvider) ([]Block, error) {
	normalized := slices.Clone(blocks)
	slices.SortStableFunc(normalized, func(a, b Block) int {
		return a.Order - b.Order
	})
	for index := range normalized {
		if err := ValidateBlock(normalized[index]); err != nil {
			return nil, err
		}
		if normalized[index].ID == "" {
			id, err := ids.NewID()
			if err != nil {
				return nil, err
			}
			normalized[index].ID = id
		}
		normalized[index].Order = index
	}
	if normalized == nil {
		normalized = []Block{}
	}
	return normalized, nil
}

// MoveBlock relocates the block with the given id to position and renumbers the order.
func MoveBlock(blocks []Block, id string, position int) ([]Block, error) {
	from := slices.IndexFunc(blocks, func(block Block) bool { return block.ID == id })
	if from < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlock, id)
	}
	moved := slices.Clone(blocks)
	block := moved[from]
	moved = slices.Delete(moved, from, from+1)
	position = max(0, min(position, len(moved)))
	moved = slices.Insert(moved, position, block)
	return renumber(moved), nil
}

// RemoveBlock drops the block with the given id and renumbers the order.
func RemoveBlock(blocks []Block, id string) ([]Block, error) {
	index := slices.IndexFunc(blocks, func(block Block) bool { return block.ID == id })
	if index < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlock, id)
	}
	remaining := slices.Delete(slices.Clone(blocks), index, index+1)
	return renumber(remaining), nil
}

func renumber(blocks []Block) []Block {
	for index := range blocks {
		blocks[index].Order = index
	}
	return blocks
}
