package models

import (
	"time"

	"github.com/google/uuid"
)

// Plan types.
const (
	PlanTypeFreeTrial = "free_trial"
	PlanTypePaid      = "paid"
)

// Subscription status enums. Cancelled is terminal.
const (
	SubscriptionStatusTrial     = "trial"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusExpired   = "expired"
	SubscriptionStatusCancelled = "cancelled"
)

type Subscription struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	PlanID    uuid.UUID `json:"plan_id"`
	PlanType  string    `json:"plan_type"`
	Status    string    `json:"status"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Audit actions recorded in subscription_audit.
const (
	AuditAdjustDays = "adjust_days"
	AuditCancel     = "cancel"
	AuditResetTotal = "reset_total"
	AuditStartTrial = "start_trial"
)

type AuditEntry struct {
	ID         uuid.UUID  `json:"id"`
	AccountID  uuid.UUID  `json:"account_id"`
	ActorID    *uuid.UUID `json:"actor_id,omitempty"`
	Action     string     `json:"action"`
	DeltaDays  int        `json:"delta_days"`
	Reason     string     `json:"reason"`
	OldEndDate *time.Time `json:"old_end_date,omitempty"`
	NewEndDate *time.Time `json:"new_end_date,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
