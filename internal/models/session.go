package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is the single active login of an account. A new login overwrites it.
type Session struct {
	AccountID uuid.UUID `json:"account_id"`
	SessionID string    `json:"session_id"`
	IssuedAt  time.Time `json:"issued_at"`
}
