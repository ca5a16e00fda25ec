package subscription

import (
	"math"
	"time"

	"github.com/memberhub/backend/internal/models"
)

// State is the lifecycle view of a subscription at a given instant. Callers
// read it instead of the stored status column, which may lag behind the
// dates until the expiry sweep runs.
type State struct {
	Status        string `json:"status"`
	IsActive      bool   `json:"is_active"`
	DaysRemaining int    `json:"days_remaining"`
}

// Derive computes the effective state of sub at now. Cancelled is terminal and
// never re-derived as active; trial and active rows past their end date read
// as expired.
func Derive(sub *models.Subscription, now time.Time) State {
	if sub == nil {
		return State{Status: models.SubscriptionStatusExpired}
	}

	st := State{
		Status:        sub.Status,
		DaysRemaining: daysRemaining(sub.EndDate, now),
	}
	switch sub.Status {
	case models.SubscriptionStatusTrial, models.SubscriptionStatusActive:
		if now.After(sub.EndDate) {
			st.Status = models.SubscriptionStatusExpired
		} else {
			st.IsActive = true
		}
	}
	return st
}

func daysRemaining(end, now time.Time) int {
	d := end.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}

// reconcile returns the stored status that matches sub's dates after its end
// date moved. Cancelled rows keep their status.
func reconcile(sub *models.Subscription, now time.Time) string {
	switch sub.Status {
	case models.SubscriptionStatusCancelled:
		return sub.Status
	case models.SubscriptionStatusExpired:
		if now.After(sub.EndDate) {
			return sub.Status
		}
		if sub.PlanType == models.PlanTypeFreeTrial {
			return models.SubscriptionStatusTrial
		}
		return models.SubscriptionStatusActive
	default:
		if now.After(sub.EndDate) {
			return models.SubscriptionStatusExpired
		}
		return sub.Status
	}
}
