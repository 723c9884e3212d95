package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/forgo/saga/presence/internal/database"
	"github.com/forgo/saga/presence/internal/model"
)

// LayerRepository defines the interface for layer storage
type LayerRepository interface {
	FindActive(ctx context.Context) ([]*model.Layer, error)
	GetByID(ctx context.Context, id string) (*model.Layer, error)
	GetByName(ctx context.Context, name string) (*model.Layer, error)
	GetDefault(ctx context.Context) (*model.Layer, error)
	Create(ctx context.Context, layer *model.Layer) error
	Update(ctx context.Context, id string, updates map[string]interface{}) (*model.Layer, error)
}

// AccountRepository defines the interface for the account fields presence uses
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*model.Account, error)
	UpdateCurrentLayer(ctx context.Context, accountID, layerID string) error
}

// AdminChecker decides whether an account may administer layers
type AdminChecker interface {
	HasAdminCapability(ctx context.Context, accountID string) (bool, error)
}

// LayerServiceConfig holds the dependencies of a LayerService
type LayerServiceConfig struct {
	LayerRepo   LayerRepository
	AccountRepo AccountRepository
	Admin       AdminChecker
	Registry    *Registry[model.LayerPresence] // Optional, a new registry is created if nil

	// StrictCapacity checks capacity and joins under one lock. When false
	// the member count is read before the layer document, so joins racing
	// across that read can push a layer past maxPlayers.
	StrictCapacity bool
}

// LayerService implements the layer directory and layer selection.
// A connection is in at most one layer at a time.
type LayerService struct {
	layerRepo   LayerRepository
	accountRepo AccountRepository
	admin       AdminChecker
	layers      *Registry[model.LayerPresence]
	strict      bool

	mu sync.Mutex // guards layer transitions
}

// NewLayerService creates a new layer service
func NewLayerService(cfg LayerServiceConfig) *LayerService {
	layers := cfg.Registry
	if layers == nil {
		layers = NewRegistry[model.LayerPresence]()
	}
	return &LayerService{
		layerRepo:   cfg.LayerRepo,
		accountRepo: cfg.AccountRepo,
		admin:       cfg.Admin,
		layers:      layers,
		strict:      cfg.StrictCapacity,
	}
}

// List returns active layers in display order with live member counts
func (s *LayerService) List(ctx context.Context) ([]*model.LayerWithCount, error) {
	layers, err := s.layerRepo.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}
	model.SortLayers(layers)

	result := make([]*model.LayerWithCount, 0, len(layers))
	for _, layer := range layers {
		result = append(result, s.withCount(layer))
	}
	return result, nil
}

// Get returns a single layer with its live member count
func (s *LayerService) Get(ctx context.Context, layerID string) (*model.LayerWithCount, error) {
	if layerID == "" {
		return nil, ErrLayerIDRequired
	}
	layer, err := s.layerRepo.GetByID(ctx, layerID)
	if err != nil {
		return nil, fmt.Errorf("get layer: %w", err)
	}
	if layer == nil {
		return nil, ErrLayerNotFound
	}
	return s.withCount(layer), nil
}

// Default returns the active default layer, or nil when none is set
func (s *LayerService) Default(ctx context.Context) (*model.LayerWithCount, error) {
	layer, err := s.layerRepo.GetDefault(ctx)
	if err != nil {
		return nil, fmt.Errorf("get default layer: %w", err)
	}
	if layer == nil {
		return nil, nil
	}
	return s.withCount(layer), nil
}

// Create adds a layer to the directory. Requires admin capability, which is
// checked before the request is validated.
func (s *LayerService) Create(ctx context.Context, accountID string, req *model.CreateLayerRequest) (*model.LayerWithCount, error) {
	if err := s.requireAdmin(ctx, accountID); err != nil {
		return nil, err
	}

	req.Normalize()
	if errs := req.Validate(); len(errs) > 0 {
		return nil, model.NewValidationError(errs)
	}

	existing, err := s.layerRepo.GetByName(ctx, req.Name)
	if err != nil {
		return nil, fmt.Errorf("check layer name: %w", err)
	}
	if existing != nil {
		return nil, ErrLayerNameExists
	}

	layer := req.ToLayer(accountID)
	if err := s.layerRepo.Create(ctx, layer); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, ErrLayerNameExists
		}
		return nil, fmt.Errorf("create layer: %w", err)
	}

	slog.Info("layer created",
		slog.String("layer_id", layer.ID),
		slog.String("name", layer.Name),
		slog.String("account_id", accountID),
		slog.Bool("is_default", layer.IsDefault),
	)

	return s.withCount(layer), nil
}

// Update changes a layer's fields. Requires admin capability. Current
// members are never evicted, even when the layer is deactivated or its
// capacity drops below its member count.
func (s *LayerService) Update(ctx context.Context, accountID string, req *model.UpdateLayerRequest) (*model.LayerWithCount, error) {
	if err := s.requireAdmin(ctx, accountID); err != nil {
		return nil, err
	}

	req.Normalize()
	if errs := req.Validate(); len(errs) > 0 {
		return nil, model.NewValidationError(errs)
	}

	layer, err := s.layerRepo.GetByID(ctx, req.LayerID)
	if err != nil {
		return nil, fmt.Errorf("get layer: %w", err)
	}
	if layer == nil {
		return nil, ErrLayerNotFound
	}

	updates := req.Updates()
	if len(updates) == 0 {
		return nil, ErrNoLayerUpdates
	}

	if req.Name != nil && *req.Name != layer.Name {
		existing, err := s.layerRepo.GetByName(ctx, *req.Name)
		if err != nil {
			return nil, fmt.Errorf("check layer name: %w", err)
		}
		if existing != nil && existing.ID != layer.ID {
			return nil, ErrLayerNameExists
		}
	}

	updated, err := s.layerRepo.Update(ctx, layer.ID, updates)
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, ErrLayerNameExists
		}
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrLayerNotFound
		}
		return nil, fmt.Errorf("update layer: %w", err)
	}

	slog.Info("layer updated",
		slog.String("layer_id", updated.ID),
		slog.String("account_id", accountID),
	)

	return s.withCount(updated), nil
}

// Join moves the connection into a layer, leaving its previous layer.
// Rejoining the layer the connection is already in always succeeds.
func (s *LayerService) Join(ctx context.Context, conn *Connection, layerID string) (*model.LayerWithCount, error) {
	if layerID == "" {
		return nil, ErrLayerIDRequired
	}

	// Read before the store round trip; see StrictCapacity.
	observed := s.layers.CountOf(layerID)

	layer, err := s.layerRepo.GetByID(ctx, layerID)
	if err != nil {
		return nil, fmt.Errorf("get layer: %w", err)
	}
	if layer == nil {
		return nil, ErrLayerNotFound
	}
	if !layer.IsActive {
		return nil, ErrLayerInactive
	}

	if s.strict {
		if err := s.joinStrict(conn, layer); err != nil {
			return nil, err
		}
	} else {
		if err := s.joinObserved(conn, layer, observed); err != nil {
			return nil, err
		}
	}

	if !conn.IsGuest() {
		if err := s.accountRepo.UpdateCurrentLayer(ctx, conn.AccountID, layer.ID); err != nil {
			slog.Warn("failed to persist current layer",
				slog.String("connection_id", conn.ID),
				slog.String("account_id", conn.AccountID),
				slog.String("layer_id", layer.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return s.withCount(layer), nil
}

func (s *LayerService) joinObserved(conn *Connection, layer *model.Layer, observed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.currentLayerLocked(conn)
	if prev == layer.ID {
		return nil
	}
	if layer.IsFull(observed) {
		return ErrLayerFull
	}

	if prev != "" {
		s.layers.Leave(prev, conn.ID)
	}
	s.layers.Join(layer.ID, conn.ID, model.LayerPresence{})
	conn.setLayer(layer.ID)
	return nil
}

func (s *LayerService) joinStrict(conn *Connection, layer *model.Layer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.currentLayerLocked(conn)
	if !s.layers.JoinIfUnder(layer.ID, conn.ID, model.LayerPresence{}, layer.MaxPlayers) {
		return ErrLayerFull
	}
	if prev != "" && prev != layer.ID {
		s.layers.Leave(prev, conn.ID)
	}
	conn.setLayer(layer.ID)
	return nil
}

// Leave removes the connection from its layer. Succeeds when it has none.
func (s *LayerService) Leave(conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.layers.RemoveEverywhere(conn.ID)
	conn.setLayer("")
}

// Current resolves the connection's layer: its live membership first, then
// the account's persisted layer if that layer is still active. Returns nil
// when neither applies.
func (s *LayerService) Current(ctx context.Context, conn *Connection) (*model.LayerWithCount, error) {
	s.mu.Lock()
	live := s.currentLayerLocked(conn)
	s.mu.Unlock()

	if live != "" {
		layer, err := s.layerRepo.GetByID(ctx, live)
		if err != nil {
			return nil, fmt.Errorf("get layer: %w", err)
		}
		if layer != nil {
			return s.withCount(layer), nil
		}
	}

	if conn.IsGuest() {
		return nil, nil
	}

	account, err := s.accountRepo.GetByID(ctx, conn.AccountID)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if account == nil || account.CurrentLayer == nil || *account.CurrentLayer == "" {
		return nil, nil
	}

	layer, err := s.layerRepo.GetByID(ctx, *account.CurrentLayer)
	if err != nil {
		return nil, fmt.Errorf("get layer: %w", err)
	}
	if layer == nil || !layer.IsActive {
		return nil, nil
	}
	return s.withCount(layer), nil
}

// Disconnect removes the connection from every layer. Safe to call repeatedly.
func (s *LayerService) Disconnect(connectionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layers.RemoveEverywhere(connectionID)
}

// CountOf returns the number of connections in a layer
func (s *LayerService) CountOf(layerID string) int {
	return s.layers.CountOf(layerID)
}

// Counts returns the member count of every non-empty layer
func (s *LayerService) Counts() map[string]int {
	return s.layers.Counts()
}

func (s *LayerService) requireAdmin(ctx context.Context, accountID string) error {
	if accountID == "" {
		return ErrAuthRequired
	}
	ok, err := s.admin.HasAdminCapability(ctx, accountID)
	if err != nil {
		return fmt.Errorf("check admin capability: %w", err)
	}
	if !ok {
		return ErrPermissionDenied
	}
	return nil
}

func (s *LayerService) currentLayerLocked(conn *Connection) string {
	if cached := conn.cachedLayer(); cached != "" {
		if _, ok := s.layers.Get(cached, conn.ID); ok {
			return cached
		}
	}
	layerID, _ := s.layers.CurrentGroup(conn.ID)
	return layerID
}

func (s *LayerService) withCount(layer *model.Layer) *model.LayerWithCount {
	return &model.LayerWithCount{
		Layer:       layer,
		PlayerCount: s.layers.CountOf(layer.ID),
	}
}
