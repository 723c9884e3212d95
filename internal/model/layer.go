package model

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Layer validation constants
const (
	MaxLayerNameLength        = 64
	MaxLayerDescriptionLength = 500
)

// Layer is a persistent world shard that isolates one population from another
type Layer struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Order       int       `json:"order"`
	IsDefault   bool      `json:"isDefault"`
	IsActive    bool      `json:"isActive"`
	MaxPlayers  int       `json:"maxPlayers"` // 0 = unlimited
	CreatedBy   string    `json:"createdBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// IsFull reports whether a layer holding count members accepts no one else
func (l *Layer) IsFull(count int) bool {
	return l.MaxPlayers > 0 && count >= l.MaxPlayers
}

// LayerWithCount is a layer annotated with its live member count
type LayerWithCount struct {
	*Layer
	PlayerCount int `json:"playerCount"`
}

// SortLayers orders layers by order ascending, then name ascending
func SortLayers(layers []*Layer) {
	sort.SliceStable(layers, func(i, j int) bool {
		if layers[i].Order != layers[j].Order {
			return layers[i].Order < layers[j].Order
		}
		return layers[i].Name < layers[j].Name
	})
}

// CreateLayerRequest is the payload of layer.create
type CreateLayerRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Order       *int    `json:"order,omitempty"`
	IsDefault   *bool   `json:"isDefault,omitempty"`
	MaxPlayers  *int    `json:"maxPlayers,omitempty"`
}

// Normalize trims free-text fields in place
func (r *CreateLayerRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	if r.Description != nil {
		d := strings.TrimSpace(*r.Description)
		r.Description = &d
	}
}

// Validate validates the create request. Call Normalize first.
func (r *CreateLayerRequest) Validate() []FieldError {
	var errors []FieldError

	if r.Name == "" {
		errors = append(errors, FieldError{Field: "name", Message: "name is required"})
	} else if utf8.RuneCountInString(r.Name) > MaxLayerNameLength {
		errors = append(errors, FieldError{Field: "name", Message: "name must be 64 characters or less"})
	}
	if r.Description != nil && utf8.RuneCountInString(*r.Description) > MaxLayerDescriptionLength {
		errors = append(errors, FieldError{Field: "description", Message: "description must be 500 characters or less"})
	}
	if r.MaxPlayers != nil && *r.MaxPlayers < 0 {
		errors = append(errors, FieldError{Field: "maxPlayers", Message: "maxPlayers must be 0 (unlimited) or greater"})
	}

	return errors
}

// ToLayer builds a new active layer from the request
func (r *CreateLayerRequest) ToLayer(creatorID string) *Layer {
	layer := &Layer{
		Name:      r.Name,
		IsActive:  true,
		CreatedBy: creatorID,
	}
	if r.Description != nil {
		layer.Description = *r.Description
	}
	if r.Order != nil {
		layer.Order = *r.Order
	}
	if r.IsDefault != nil {
		layer.IsDefault = *r.IsDefault
	}
	if r.MaxPlayers != nil {
		layer.MaxPlayers = *r.MaxPlayers
	}
	return layer
}

// UpdateLayerRequest is the payload of layer.update. Nil fields are left unchanged.
type UpdateLayerRequest struct {
	LayerID     string  `json:"layerId"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Order       *int    `json:"order,omitempty"`
	IsDefault   *bool   `json:"isDefault,omitempty"`
	IsActive    *bool   `json:"isActive,omitempty"`
	MaxPlayers  *int    `json:"maxPlayers,omitempty"`
}

// Normalize trims free-text fields in place
func (r *UpdateLayerRequest) Normalize() {
	r.LayerID = strings.TrimSpace(r.LayerID)
	if r.Name != nil {
		n := strings.TrimSpace(*r.Name)
		r.Name = &n
	}
	if r.Description != nil {
		d := strings.TrimSpace(*r.Description)
		r.Description = &d
	}
}

// Validate validates the update request. Call Normalize first.
func (r *UpdateLayerRequest) Validate() []FieldError {
	var errors []FieldError

	if r.LayerID == "" {
		errors = append(errors, FieldError{Field: "layerId", Message: "layerId is required"})
	}
	if r.Name != nil {
		if *r.Name == "" {
			errors = append(errors, FieldError{Field: "name", Message: "name cannot be blank"})
		} else if utf8.RuneCountInString(*r.Name) > MaxLayerNameLength {
			errors = append(errors, FieldError{Field: "name", Message: "name must be 64 characters or less"})
		}
	}
	if r.Description != nil && utf8.RuneCountInString(*r.Description) > MaxLayerDescriptionLength {
		errors = append(errors, FieldError{Field: "description", Message: "description must be 500 characters or less"})
	}
	if r.MaxPlayers != nil && *r.MaxPlayers < 0 {
		errors = append(errors, FieldError{Field: "maxPlayers", Message: "maxPlayers must be 0 (unlimited) or greater"})
	}

	return errors
}

// Updates returns the store field updates this request describes
func (r *UpdateLayerRequest) Updates() map[string]interface{} {
	updates := make(map[string]interface{})
	if r.Name != nil {
		updates["name"] = *r.Name
	}
	if r.Description != nil {
		updates["description"] = *r.Description
	}
	if r.Order != nil {
		updates["sort_order"] = *r.Order
	}
	if r.IsDefault != nil {
		updates["is_default"] = *r.IsDefault
	}
	if r.IsActive != nil {
		updates["is_active"] = *r.IsActive
	}
	if r.MaxPlayers != nil {
		updates["max_players"] = *r.MaxPlayers
	}
	return updates
}

// LayerRef is the payload of layer.join and layer.get
type LayerRef struct {
	LayerID string `json:"layerId"`
}

// LayerListResponse is the acknowledgement data of layer.list
type LayerListResponse struct {
	Layers []*LayerWithCount `json:"layers"`
}

// LayerResponse is the acknowledgement data of layer.create, layer.update,
// layer.join, layer.get and layer.current. Layer is null when there is no
// current layer; DefaultLayer then suggests where a selection flow could start.
type LayerResponse struct {
	Layer        *LayerWithCount `json:"layer"`
	DefaultLayer *LayerWithCount `json:"defaultLayer,omitempty"`
}
