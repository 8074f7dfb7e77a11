package domain

import (
	"encoding/json"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const defaultPlanDurationDays = 30

// PlanLimits holds the entitlement configuration attached to a plan. It is
// persisted as JSON but always decoded into this typed form.
type PlanLimits struct {
	TokenAllocation int `json:"token_allocation"`
	ValidityDays    int `json:"validity_days"`
	DurationDays    int `json:"duration_days"`
	TokenLimit      int `json:"token_limit"`
}

// Plan is immutable reference data describing a purchasable tier.
type Plan struct {
	ID         int64
	Name       string
	PriceCents int64
	Limits     PlanLimits
}

// DurationDays returns the subscription period length, falling back to the
// default when the plan carries no explicit duration.
func (p Plan) DurationDays() int {
	if p.Limits.DurationDays > 0 {
		return p.Limits.DurationDays
	}
	return defaultPlanDurationDays
}

// ValidityDays returns the token validity window granted by a purchase of
// this plan.
func (p Plan) ValidityDays() int {
	if p.Limits.ValidityDays > 0 {
		return p.Limits.ValidityDays
	}
	return defaultPlanDurationDays
}

// DisplayName renders the plan name in title case for client-facing payloads.
func (p Plan) DisplayName() string {
	return cases.Title(language.English).String(p.Name)
}

// DecodePlanLimits parses the stored JSON limits, tolerating absent or
// malformed payloads by returning zero limits.
func DecodePlanLimits(raw []byte) PlanLimits {
	var limits PlanLimits
	if len(raw) == 0 {
		return limits
	}
	_ = json.Unmarshal(raw, &limits)
	return limits
}
