package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/forgo/saga/presence/internal/database"
	"github.com/forgo/saga/presence/internal/model"
)

// AccountRepository reads accounts and persists their last selected layer
type AccountRepository struct {
	db database.Database
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db database.Database) *AccountRepository {
	return &AccountRepository{db: db}
}

// GetByID retrieves an account by ID. Returns nil, nil when absent.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*model.Account, error) {
	if !sameTable(id, "account") {
		return nil, nil
	}

	query := `SELECT * FROM type::record($id)`
	vars := map[string]interface{}{"id": id}

	result, err := r.db.QueryOne(ctx, query, vars)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	data, err := unwrapRecord(result)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return parseAccount(data), nil
}

// UpdateCurrentLayer records the layer an account last joined
func (r *AccountRepository) UpdateCurrentLayer(ctx context.Context, accountID, layerID string) error {
	if !sameTable(accountID, "account") {
		return database.ErrNotFound
	}

	query := `UPDATE type::record($id) SET current_layer = IF $layer IS NOT NULL THEN $layer ELSE NONE END, updated_on = time::now() WHERE id != NONE`
	vars := map[string]interface{}{
		"id":    accountID,
		"layer": nilIfEmpty(layerID),
	}

	if err := r.db.Execute(ctx, query, vars); err != nil {
		return fmt.Errorf("update current layer: %w", err)
	}
	return nil
}

// HasAdminCapability reports whether the account holds the admin role.
// Missing accounts have no capability.
func (r *AccountRepository) HasAdminCapability(ctx context.Context, accountID string) (bool, error) {
	account, err := r.GetByID(ctx, accountID)
	if err != nil {
		return false, err
	}
	if account == nil {
		return false, nil
	}
	return account.IsAdmin(), nil
}

func parseAccount(data map[string]interface{}) *model.Account {
	account := &model.Account{
		DisplayName:  getString(data, "display_name"),
		Role:         model.AccountRole(getString(data, "role")),
		CurrentLayer: getStringPtr(data, "current_layer"),
		CreatedAt:    getTime(data, "created_on"),
		UpdatedAt:    getTime(data, "updated_on"),
	}
	if id, ok := data["id"]; ok {
		account.ID = convertSurrealID(id)
	}
	if account.Role == "" {
		account.Role = model.AccountRoleUser
	}
	return account
}
