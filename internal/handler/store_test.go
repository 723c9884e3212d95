package handler

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/forgo/saga/presence/internal/model"
)

// memoryStore is an in-memory layer and account store for transport tests
type memoryStore struct {
	mu       sync.Mutex
	layers   map[string]*model.Layer
	accounts map[string]*model.Account
	seq      int
}

func newMemoryStore(layers ...*model.Layer) *memoryStore {
	s := &memoryStore{
		layers:   make(map[string]*model.Layer),
		accounts: make(map[string]*model.Account),
	}
	for _, l := range layers {
		s.layers[l.ID] = l
	}
	return s
}

func (s *memoryStore) addAccount(id string, role model.AccountRole) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[id] = &model.Account{ID: id, Role: role}
}

func (s *memoryStore) FindActive(_ context.Context) ([]*model.Layer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Layer
	for _, l := range s.layers {
		if l.IsActive {
			copied := *l
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memoryStore) GetByID(_ context.Context, id string) (*model.Layer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.layers[id]; ok {
		copied := *l
		return &copied, nil
	}
	return nil, nil
}

func (s *memoryStore) GetByName(_ context.Context, name string) (*model.Layer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.layers {
		if strings.EqualFold(l.Name, name) {
			copied := *l
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) GetDefault(_ context.Context) (*model.Layer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.layers {
		if l.IsDefault && l.IsActive {
			copied := *l
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) Create(_ context.Context, layer *model.Layer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	layer.ID = fmt.Sprintf("layer:new%d", s.seq)
	if layer.IsDefault {
		for _, l := range s.layers {
			l.IsDefault = false
		}
	}
	copied := *layer
	s.layers[layer.ID] = &copied
	return nil
}

func (s *memoryStore) Update(_ context.Context, id string, updates map[string]interface{}) (*model.Layer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.layers[id]
	if !ok {
		return nil, nil
	}
	for field, v := range updates {
		switch field {
		case "name":
			l.Name = v.(string)
		case "description":
			l.Description = v.(string)
		case "sort_order":
			l.Order = v.(int)
		case "is_active":
			l.IsActive = v.(bool)
		case "max_players":
			l.MaxPlayers = v.(int)
		case "is_default":
			if v.(bool) {
				for _, other := range s.layers {
					other.IsDefault = false
				}
			}
			l.IsDefault = v.(bool)
		}
	}
	copied := *l
	return &copied, nil
}

func (s *memoryStore) getAccount(_ context.Context, id string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[id]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, nil
}

func (s *memoryStore) UpdateCurrentLayer(_ context.Context, accountID, layerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[accountID]; ok {
		a.CurrentLayer = &layerID
	}
	return nil
}

func (s *memoryStore) HasAdminCapability(_ context.Context, accountID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	return ok && a.IsAdmin(), nil
}

// accountView adapts memoryStore to service.AccountRepository, whose GetByID
// clashes with the layer method of the same name.
type accountView struct{ *memoryStore }

func (v accountView) GetByID(ctx context.Context, id string) (*model.Account, error) {
	return v.getAccount(ctx, id)
}
