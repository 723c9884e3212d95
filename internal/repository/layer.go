package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/forgo/saga/presence/internal/database"
	"github.com/forgo/saga/presence/internal/model"
)

// Clears the default flag on every other layer. Bound inside the same
// transaction as the write that sets it.
const clearOtherDefaultsQuery = `UPDATE layer SET is_default = false, updated_on = time::now() WHERE is_default = true AND id != type::record($id)`

// LayerRepository handles layer data access
type LayerRepository struct {
	db database.Database
}

// NewLayerRepository creates a new layer repository
func NewLayerRepository(db database.Database) *LayerRepository {
	return &LayerRepository{db: db}
}

// FindActive returns all active layers ordered by sort order then name
func (r *LayerRepository) FindActive(ctx context.Context) ([]*model.Layer, error) {
	query := `SELECT * FROM layer WHERE is_active = true ORDER BY sort_order ASC, name ASC`

	results, err := r.db.Query(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("find active layers: %w", err)
	}
	if len(results) == 0 {
		return []*model.Layer{}, nil
	}

	records := statementRecords(results[0])
	layers := make([]*model.Layer, 0, len(records))
	for _, data := range records {
		layers = append(layers, parseLayer(data))
	}
	return layers, nil
}

// GetByID retrieves a layer by ID. Returns nil, nil when absent.
func (r *LayerRepository) GetByID(ctx context.Context, id string) (*model.Layer, error) {
	if !sameTable(id, "layer") {
		return nil, nil
	}

	query := `SELECT * FROM type::record($id)`
	vars := map[string]interface{}{"id": id}

	return r.queryOne(ctx, query, vars)
}

// GetByName retrieves a layer by exact name. Returns nil, nil when absent.
func (r *LayerRepository) GetByName(ctx context.Context, name string) (*model.Layer, error) {
	query := `SELECT * FROM layer WHERE name = $name LIMIT 1`
	vars := map[string]interface{}{"name": strings.TrimSpace(name)}

	return r.queryOne(ctx, query, vars)
}

// GetDefault retrieves the active default layer. Returns nil, nil when none is set.
func (r *LayerRepository) GetDefault(ctx context.Context) (*model.Layer, error) {
	query := `SELECT * FROM layer WHERE is_default = true AND is_active = true LIMIT 1`

	return r.queryOne(ctx, query, nil)
}

// Create saves a new layer. When the layer is the default, clearing the flag
// on every other layer happens in the same transaction.
func (r *LayerRepository) Create(ctx context.Context, layer *model.Layer) error {
	batch := database.NewAtomicBatch()

	if layer.IsDefault {
		batch.Add(`UPDATE layer SET is_default = false, updated_on = time::now() WHERE is_default = true`, nil)
	}

	batch.Add(`
		CREATE layer CONTENT {
			name: $name,
			description: $description,
			sort_order: $sort_order,
			is_default: $is_default,
			is_active: $is_active,
			max_players: $max_players,
			created_by: IF $created_by IS NOT NULL THEN $created_by ELSE NONE END,
			created_on: time::now(),
			updated_on: time::now()
		}
	`, map[string]interface{}{
		"name":        layer.Name,
		"description": layer.Description,
		"sort_order":  layer.Order,
		"is_default":  layer.IsDefault,
		"is_active":   layer.IsActive,
		"max_players": layer.MaxPlayers,
		"created_by":  nilIfEmpty(layer.CreatedBy),
	})

	results, err := batch.Execute(ctx, r.db)
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return fmt.Errorf("%w: layer name already exists", database.ErrDuplicate)
		}
		return fmt.Errorf("create layer: %w", err)
	}

	data, err := lastStatementRecord(results)
	if err != nil {
		return fmt.Errorf("create layer: %w", err)
	}

	created := parseLayer(data)
	layer.ID = created.ID
	layer.CreatedAt = created.CreatedAt
	layer.UpdatedAt = created.UpdatedAt
	return nil
}

// Update applies field updates to a layer and returns the updated record.
// Setting is_default to true clears it on every other layer in the same transaction.
func (r *LayerRepository) Update(ctx context.Context, id string, updates map[string]interface{}) (*model.Layer, error) {
	if !sameTable(id, "layer") {
		return nil, database.ErrNotFound
	}

	batch := database.NewAtomicBatch()

	if isDefault, ok := updates["is_default"].(bool); ok && isDefault {
		batch.Add(clearOtherDefaultsQuery, map[string]interface{}{"id": id})
	}

	// Sorted so the generated statement is stable
	fields := make([]string, 0, len(updates))
	for field := range updates {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	vars := map[string]interface{}{"id": id}
	sets := make([]string, 0, len(fields)+1)
	for _, field := range fields {
		sets = append(sets, fmt.Sprintf("%s = $%s", field, field))
		vars[field] = updates[field]
	}
	sets = append(sets, "updated_on = time::now()")

	batch.Add(fmt.Sprintf(`UPDATE type::record($id) SET %s WHERE id != NONE RETURN AFTER`, strings.Join(sets, ", ")), vars)

	results, err := batch.Execute(ctx, r.db)
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, fmt.Errorf("%w: layer name already exists", database.ErrDuplicate)
		}
		return nil, fmt.Errorf("update layer: %w", err)
	}

	data, err := lastStatementRecord(results)
	if err != nil {
		return nil, err
	}
	return parseLayer(data), nil
}

// CountDefaults returns how many layers currently carry the default flag
func (r *LayerRepository) CountDefaults(ctx context.Context) (int, error) {
	query := `SELECT count() AS count FROM layer WHERE is_default = true GROUP ALL`

	result, err := r.db.QueryOne(ctx, query, nil)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	data, ok := result.(map[string]interface{})
	if !ok {
		return 0, errUnexpectedFormat
	}
	return getInt(data, "count"), nil
}

func (r *LayerRepository) queryOne(ctx context.Context, query string, vars map[string]interface{}) (*model.Layer, error) {
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
	return parseLayer(data), nil
}

func parseLayer(data map[string]interface{}) *model.Layer {
	layer := &model.Layer{
		Name:        getString(data, "name"),
		Description: getString(data, "description"),
		Order:       getInt(data, "sort_order"),
		IsDefault:   getBool(data, "is_default"),
		IsActive:    getBool(data, "is_active"),
		MaxPlayers:  getInt(data, "max_players"),
		CreatedBy:   getString(data, "created_by"),
		CreatedAt:   getTime(data, "created_on"),
		UpdatedAt:   getTime(data, "updated_on"),
	}
	if id, ok := data["id"]; ok {
		layer.ID = convertSurrealID(id)
	}
	return layer
}

// nilIfEmpty maps an empty string to nil. Queries turn nil into NONE with
// IF $v IS NOT NULL THEN $v ELSE NONE END, since option<string> fields reject NULL.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
