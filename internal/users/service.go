package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/trainhub/internal/inventory"
	"github.com/MarcoPoloResearchLab/trainhub/internal/validation"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrAccountExists indicates a signup for an email that is already registered.
	ErrAccountExists = errors.New("account already exists")
	// ErrInvalidCredentials indicates an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotFound indicates no account is registered for the email.
	ErrNotFound = errors.New("user not found")

	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
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
	opServiceNew = "users.service.new"
	opSignup     = "users.signup"
	opLogin      = "users.login"
	opGetRecord  = "users.get_record"
	opSaveRecord = "users.save_record"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: operation + "." + reason, err: cause}
}

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
	// HashCost overrides the bcrypt cost; zero selects bcrypt.DefaultCost.
	HashCost int
}

// Service manages accounts and their inventory records.
type Service struct {
	db       *gorm.DB
	now      func() time.Time
	logger   *zap.Logger
	hashCost int
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	hashCost := cfg.HashCost
	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}
	return &Service{
		db:       cfg.Database,
		now:      clock,
		logger:   logger,
		hashCost: hashCost,
	}, nil
}

// Signup registers a new account with empty inventory lists.
func (s *Service) Signup(ctx context.Context, name, email, password string) (Principal, error) {
	name = strings.TrimSpace(name)
	email = validation.NormalizeEmail(email)
	password = strings.TrimSpace(password)
	if err := validation.ValidateSignup(name, email, password); err != nil {
		return Principal{}, newServiceError(opSignup, "invalid_input", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		s.logError(opSignup, "hash_failed", err)
		return Principal{}, newServiceError(opSignup, "hash_failed", err)
	}

	now := s.now().UTC()
	account := Account{
		Email:            email,
		Name:             name,
		PasswordHash:     string(hashed),
		Inventory:        datatypes.JSON("[]"),
		DeletedInventory: datatypes.JSON("[]"),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&Account{}).Where("email = ?", email).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrAccountExists
		}
		return tx.Create(&account).Error
	})
	if errors.Is(err, ErrAccountExists) {
		return Principal{}, newServiceError(opSignup, "account_exists", ErrAccountExists)
	}
	if err != nil {
		s.logError(opSignup, "insert_failed", err, zap.String("email", email))
		return Principal{}, newServiceError(opSignup, "insert_failed", err)
	}
	return account.principal(), nil
}

// Login verifies the credentials and returns the principal.
func (s *Service) Login(ctx context.Context, email, password string) (Principal, error) {
	email = validation.NormalizeEmail(email)
	password = strings.TrimSpace(password)
	if err := validation.ValidateLogin(email, password); err != nil {
		return Principal{}, newServiceError(opLogin, "invalid_input", err)
	}

	account, err := s.load(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return Principal{}, newServiceError(opLogin, "invalid_credentials", ErrInvalidCredentials)
	}
	if err != nil {
		s.logError(opLogin, "query_failed", err, zap.String("email", email))
		return Principal{}, newServiceError(opLogin, "query_failed", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Principal{}, newServiceError(opLogin, "invalid_credentials", ErrInvalidCredentials)
	}
	return account.principal(), nil
}

// GetRecord returns the principal and its normalized inventory record.
func (s *Service) GetRecord(ctx context.Context, email string) (Principal, inventory.Record, error) {
	email = validation.NormalizeEmail(email)
	if email == "" {
		return Principal{}, inventory.Record{}, newServiceError(opGetRecord, "missing_email", validation.New("email", "email required"))
	}
	account, err := s.load(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return Principal{}, inventory.Record{}, newServiceError(opGetRecord, "not_found", ErrNotFound)
	}
	if err != nil {
		s.logError(opGetRecord, "query_failed", err, zap.String("email", email))
		return Principal{}, inventory.Record{}, newServiceError(opGetRecord, "query_failed", err)
	}
	record, err := decodeRecord(account)
	if err != nil {
		s.logError(opGetRecord, "decode_failed", err, zap.String("email", email))
		return Principal{}, inventory.Record{}, newServiceError(opGetRecord, "decode_failed", err)
	}
	return account.principal(), record, nil
}

// SavedRecord is the stored record together with the recycling bin moves that produced it.
type SavedRecord struct {
	inventory.Record
	Changes []inventory.Change
}

// SaveRecord replaces the stored inventory lists. A nil list leaves the stored list unchanged.
// Items without an id are assigned one. Every item must move along the recycling bin
// lifecycle; the check runs against the record read inside the same transaction.
func (s *Service) SaveRecord(ctx context.Context, record inventory.Record) (SavedRecord, error) {
	email := validation.NormalizeEmail(record.Email)
	if email == "" {
		return SavedRecord{}, newServiceError(opSaveRecord, "missing_email", validation.New("email", "email required"))
	}
	if err := inventory.ValidateRecord(record); err != nil {
		return SavedRecord{}, newServiceError(opSaveRecord, "invalid_record", err)
	}

	var saved SavedRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account Account
		err := tx.Where("email = ?", email).Take(&account).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		previous, err := decodeRecord(account)
		if err != nil {
			return err
		}
		current := inventory.Record{
			Email:            previous.Email,
			Inventory:        slices.Clone(previous.Inventory),
			DeletedInventory: slices.Clone(previous.DeletedInventory),
		}
		if record.Inventory != nil {
			current.Inventory = slices.Clone(record.Inventory)
		}
		if record.DeletedInventory != nil {
			current.DeletedInventory = slices.Clone(record.DeletedInventory)
		}
		if err := assignMissingIDs(current.Inventory, current.DeletedInventory); err != nil {
			return err
		}
		if err := inventory.ValidateRecord(current); err != nil {
			return newServiceError(opSaveRecord, "invalid_record", err)
		}
		changes, err := inventory.Diff(previous, current)
		if err != nil {
			return newServiceError(opSaveRecord, "invalid_transition", err)
		}
		active, err := json.Marshal(current.Inventory)
		if err != nil {
			return err
		}
		deleted, err := json.Marshal(current.DeletedInventory)
		if err != nil {
			return err
		}
		err = tx.Model(&Account{}).Where("email = ?", email).Updates(map[string]any{
			"inventory":         datatypes.JSON(active),
			"deleted_inventory": datatypes.JSON(deleted),
			"updated_at":        s.now().UTC(),
		}).Error
		if err != nil {
			return err
		}
		saved = SavedRecord{Record: current, Changes: changes}
		return nil
	})
	var serviceErr *ServiceError
	switch {
	case err == nil:
		return saved, nil
	case errors.Is(err, ErrNotFound):
		return SavedRecord{}, newServiceError(opSaveRecord, "not_found", ErrNotFound)
	case errors.As(err, &serviceErr):
		return SavedRecord{}, err
	default:
		s.logError(opSaveRecord, "write_failed", err, zap.String("email", email))
		return SavedRecord{}, newServiceError(opSaveRecord, "write_failed", err)
	}
}

func (s *Service) load(ctx context.Context, email string) (Account, error) {
	var account Account
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, ErrNotFound
	}
	return account, err
}

func decodeRecord(account Account) (inventory.Record, error) {
	active, err := inventory.DecodeList(account.Inventory, InventoryScope(account.Email))
	if err != nil {
		return inventory.Record{}, err
	}
	deleted, err := inventory.DecodeList(account.DeletedInventory, DeletedInventoryScope(account.Email))
	if err != nil {
		return inventory.Record{}, err
	}
	return inventory.Record{
		Email:            account.Email,
		Inventory:        active,
		DeletedInventory: deleted,
	}, nil
}

func assignMissingIDs(lists ...[]inventory.Item) error {
	for _, list := range lists {
		for index := range list {
			if list[index].ID != "" {
				continue
			}
			id, err := inventory.NewItemID()
			if err != nil {
				return err
			}
			list[index].ID = id
		}
	}
	return nil
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
	s.logger.Error("users service error", attrs...)
}
