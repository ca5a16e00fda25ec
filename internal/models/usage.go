package models

import (
	"time"

	"github.com/google/uuid"
)

// Action types metered by the quota ledger.
const (
	ActionUpload = "upload"
	ActionQuery  = "query"
)

// Quota regimes.
const (
	QuotaDaily = "daily"
	QuotaTotal = "total"
)

// LifetimeBucket is the single bucket key used by the total regime. Daily
// buckets are keyed by calendar date (YYYY-MM-DD).
const LifetimeBucket = "lifetime"

type UsageCounter struct {
	AccountID  uuid.UUID `json:"account_id"`
	ActionType string    `json:"action_type"`
	Bucket     string    `json:"bucket"`
	Used       int       `json:"used"`
	UpdatedAt  time.Time `json:"updated_at"`
}
