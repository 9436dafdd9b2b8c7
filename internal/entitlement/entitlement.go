package entitlement

import (
	"errors"
	"net/http"
	"time"

	"github.com/calmbackend/internal/models"
)

type Feature string

const (
	FeaturePanicPlan    Feature = "panic_plan"
	FeatureDailyCheckIn Feature = "daily_check_in"
	FeatureJournal      Feature = "journal"
	FeatureCoachChat    Feature = "coach_chat"
	FeaturePersonalPlan Feature = "ai_plan_personalized"
)

var premiumOnly = map[Feature]bool{
	FeatureCoachChat:    true,
	FeaturePersonalPlan: true,
}

var freeFeatures = map[Feature]bool{
	FeaturePanicPlan:    true,
	FeatureDailyCheckIn: true,
	FeatureJournal:      true,
}

// ErrPremiumRequired is returned for premium features on a free tier.
var ErrPremiumRequired = &Denied{
	code:    "PREMIUM_REQUIRED",
	message: "This feature is part of Calm Premium.",
}

var ErrUnknownFeature = &Denied{
	code:    "UNKNOWN_FEATURE",
	message: "This feature is not available.",
}

type Denied struct {
	code    string
	message string
}

func (d *Denied) Error() string       { return d.code }
func (d *Denied) Code() string        { return d.code }
func (d *Denied) StatusCode() int     { return http.StatusForbidden }
func (d *Denied) UserMessage() string { return d.message }

// Gate decides feature access from the user's subscription.
type Gate struct {
	now func() time.Time
}

func NewGate() *Gate {
	return &Gate{now: time.Now}
}

// NewGateWithClock is NewGate with a fixed time source.
func NewGateWithClock(now func() time.Time) *Gate {
	return &Gate{now: now}
}

// EffectiveTier is premium only while the subscription has not expired.
// A premium tier without an expiry never lapses.
func (g *Gate) EffectiveTier(u *models.User) models.Tier {
	if u == nil || u.Tier != models.TierPremium {
		return models.TierFree
	}
	if u.SubscriptionExpiresAt != nil && !g.now().Before(*u.SubscriptionExpiresAt) {
		return models.TierFree
	}
	return models.TierPremium
}

func (g *Gate) Allow(u *models.User, f Feature) error {
	switch {
	case freeFeatures[f]:
		return nil
	case premiumOnly[f]:
		if g.EffectiveTier(u) == models.TierPremium {
			return nil
		}
		return ErrPremiumRequired
	default:
		return ErrUnknownFeature
	}
}

func (g *Gate) Allowed(u *models.User, f Feature) bool {
	return g.Allow(u, f) == nil
}

// Features lists what the user can use right now.
func (g *Gate) Features(u *models.User) []Feature {
	out := []Feature{FeaturePanicPlan, FeatureDailyCheckIn, FeatureJournal}
	if g.EffectiveTier(u) == models.TierPremium {
		out = append(out, FeatureCoachChat, FeaturePersonalPlan)
	}
	return out
}

// IsDenied reports whether err came from the gate.
func IsDenied(err error) bool {
	var d *Denied
	return errors.As(err, &d)
}
