package models

import (
	"time"

	"github.com/google/uuid"
)

// Account status enums.
const (
	AccountStatusPending   = "pending"
	AccountStatusApproved  = "approved"
	AccountStatusSuspended = "suspended"
)

// Account role enums.
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

type Account struct {
	ID                    uuid.UUID  `json:"id"`
	Email                 string     `json:"email"`
	DisplayName           string     `json:"display_name"`
	PasswordHash          string     `json:"-"`
	Status                string     `json:"status"`
	Role                  string     `json:"role"`
	Level                 int        `json:"level"`
	CurrentSubscriptionID *uuid.UUID `json:"current_subscription_id,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// IsAdmin reports whether the account may enter administrative paths.
func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin || a.Role == RoleSuperAdmin
}
