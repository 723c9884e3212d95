package fixtures

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/forgo/saga/presence/internal/database"
	"github.com/forgo/saga/presence/internal/model"
)

// Factory creates test records in the database
type Factory struct {
	db database.Database
}

// New creates a new fixture factory
func New(db database.Database) *Factory {
	return &Factory{db: db}
}

// randomID generates a random hex record key
func randomID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// create inserts a record with a fixed key. Only the given fields are set,
// so optional fields left out stay NONE.
func (f *Factory) create(t *testing.T, table, key string, fields map[string]interface{}) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	assignments := make([]string, 0, len(fields))
	vars := map[string]interface{}{"key": key}
	for field, value := range fields {
		assignments = append(assignments, fmt.Sprintf("%s = $%s", field, field))
		vars[field] = value
	}

	query := fmt.Sprintf(`CREATE type::thing("%s", $key) SET %s`, table, strings.Join(assignments, ", "))
	if err := f.db.Execute(ctx, query, vars); err != nil {
		t.Fatalf("fixtures: failed to create %s: %v", table, err)
	}
}

// ============================================================================
// Account Fixtures
// ============================================================================

// AccountOpts customizes account creation
type AccountOpts struct {
	Key          string
	DisplayName  string
	Role         model.AccountRole
	CurrentLayer string
}

// WithRole sets the account role
func WithRole(role model.AccountRole) func(*AccountOpts) {
	return func(o *AccountOpts) { o.Role = role }
}

// WithCurrentLayer sets the account's persisted layer
func WithCurrentLayer(layerID string) func(*AccountOpts) {
	return func(o *AccountOpts) { o.CurrentLayer = layerID }
}

// CreateAccount creates an account with optional customizations
func (f *Factory) CreateAccount(t *testing.T, opts ...func(*AccountOpts)) *model.Account {
	t.Helper()

	o := &AccountOpts{
		Key:         randomID(),
		DisplayName: fmt.Sprintf("player_%s", randomID()[:6]),
		Role:        model.AccountRoleUser,
	}
	for _, fn := range opts {
		fn(o)
	}

	fields := map[string]interface{}{
		"display_name": o.DisplayName,
		"role":         string(o.Role),
	}
	if o.CurrentLayer != "" {
		fields["current_layer"] = o.CurrentLayer
	}
	f.create(t, "account", o.Key, fields)

	account := &model.Account{
		ID:          "account:" + o.Key,
		DisplayName: o.DisplayName,
		Role:        o.Role,
	}
	if o.CurrentLayer != "" {
		account.CurrentLayer = &o.CurrentLayer
	}
	return account
}

// CreateAdmin creates an admin account
func (f *Factory) CreateAdmin(t *testing.T) *model.Account {
	return f.CreateAccount(t, WithRole(model.AccountRoleAdmin))
}

// ============================================================================
// Layer Fixtures
// ============================================================================

// LayerOpts customizes layer creation
type LayerOpts struct {
	Key         string
	Name        string
	Description string
	Order       int
	IsDefault   bool
	IsActive    bool
	MaxPlayers  int
}

// WithLayerName sets the layer name
func WithLayerName(name string) func(*LayerOpts) {
	return func(o *LayerOpts) { o.Name = name }
}

// WithOrder sets the layer sort order
func WithOrder(order int) func(*LayerOpts) {
	return func(o *LayerOpts) { o.Order = order }
}

// WithMaxPlayers sets the layer capacity
func WithMaxPlayers(n int) func(*LayerOpts) {
	return func(o *LayerOpts) { o.MaxPlayers = n }
}

// Inactive creates the layer with isActive false
func Inactive() func(*LayerOpts) {
	return func(o *LayerOpts) { o.IsActive = false }
}

// AsDefault marks the layer as the default. The factory writes the flag
// directly, so callers own the single-default invariant.
func AsDefault() func(*LayerOpts) {
	return func(o *LayerOpts) { o.IsDefault = true }
}

// CreateLayer creates a layer with optional customizations
func (f *Factory) CreateLayer(t *testing.T, opts ...func(*LayerOpts)) *model.Layer {
	t.Helper()

	o := &LayerOpts{
		Key:      randomID(),
		IsActive: true,
	}
	o.Name = "layer_" + o.Key
	for _, fn := range opts {
		fn(o)
	}

	f.create(t, "layer", o.Key, map[string]interface{}{
		"name":        o.Name,
		"description": o.Description,
		"sort_order":  o.Order,
		"is_default":  o.IsDefault,
		"is_active":   o.IsActive,
		"max_players": o.MaxPlayers,
	})

	return &model.Layer{
		ID:          "layer:" + o.Key,
		Name:        o.Name,
		Description: o.Description,
		Order:       o.Order,
		IsDefault:   o.IsDefault,
		IsActive:    o.IsActive,
		MaxPlayers:  o.MaxPlayers,
	}
}
