package model

import "time"

// AccountRole represents the role of an account
type AccountRole string

const (
	AccountRoleUser      AccountRole = "user"
	AccountRoleModerator AccountRole = "moderator"
	AccountRoleAdmin     AccountRole = "admin"
)

// Account is the persistent record of an authenticated player. Presence only
// reads its role and reads/writes its current layer.
type Account struct {
	ID           string      `json:"id"`
	DisplayName  string      `json:"displayName,omitempty"`
	Role         AccountRole `json:"role"`
	CurrentLayer *string     `json:"currentLayer,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// IsAdmin returns true if the account has the admin role
func (a *Account) IsAdmin() bool {
	return a.Role == AccountRoleAdmin
}
