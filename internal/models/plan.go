package models

import "strings"

// PlanType is a premium tier. Unknown values are kept verbatim so that
// access checks can reject them.
type PlanType string

const (
	PlanNone  PlanType = "none"
	PlanBasic PlanType = "basic"
	PlanPro   PlanType = "pro"
)

// NormalizePlan maps an absent or blank value to PlanNone and lower-cases
// everything else.
func NormalizePlan(s string) PlanType {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PlanNone
	}
	return PlanType(s)
}

// IsPaid reports whether p is one of the paid tiers.
func (p PlanType) IsPaid() bool {
	return p == PlanBasic || p == PlanPro
}

// Valid reports whether p is a known tier, including none.
func (p PlanType) Valid() bool {
	return p == PlanNone || p.IsPaid()
}

// docValue is the stored form: none is persisted as null.
func (p PlanType) docValue() any {
	if !p.IsPaid() {
		return nil
	}
	return string(p)
}
