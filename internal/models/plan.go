package models

import (
	"github.com/google/uuid"
)

// PlanConfig holds the base quota of a plan. For each action exactly one of the
// daily/total pair is set; the populated one decides the quota regime.
type PlanConfig struct {
	ID               uuid.UUID `json:"id"`
	PlanName         string    `json:"plan_name"`
	PriceCents       int       `json:"price_cents"`
	DurationDays     int       `json:"duration_days"`
	UploadQuotaDaily *int      `json:"upload_quota_daily,omitempty"`
	UploadQuotaTotal *int      `json:"upload_quota_total,omitempty"`
	QueryQuotaDaily  *int      `json:"query_quota_daily,omitempty"`
	QueryQuotaTotal  *int      `json:"query_quota_total,omitempty"`
}

// LevelBonus is added to the plan's base limit at read time.
type LevelBonus struct {
	Level            int `json:"level"`
	BonusUploadQuota int `json:"bonus_upload_quota"`
	BonusQueryQuota  int `json:"bonus_query_quota"`
}
