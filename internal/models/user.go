package models

import (
	"time"

	"github.com/admxx9/pecc-studii-sub000/internal/docstore"
)

// User is a member account. The premium flag is never stored; it is derived
// from PremiumPlanType.
type User struct {
	ID                string     `firestore:"-" json:"id"`
	DisplayName       string     `firestore:"displayName" json:"displayName"`
	Email             string     `firestore:"email" json:"email"`
	IsAdmin           bool       `firestore:"isAdmin" json:"isAdmin"`
	Rank              string     `firestore:"rank" json:"rank"`
	PremiumPlanType   PlanType   `firestore:"premiumPlanType" json:"premiumPlanType"`
	PremiumExpiryDate *time.Time `firestore:"premiumExpiryDate" json:"premiumExpiryDate"`
	CreatedAt         time.Time  `firestore:"createdAt" json:"createdAt"`
}

// Plan returns the stored tier with absent values read as none.
func (u User) Plan() PlanType {
	return NormalizePlan(string(u.PremiumPlanType))
}

// IsPremium is the boolean projection of the stored tier.
func (u User) IsPremium() bool {
	return u.Plan() != PlanNone
}

// EffectivePlan is the tier used for access decisions at now. A plan whose
// expiry has passed counts as none; the stored record is left alone.
func (u User) EffectivePlan(now time.Time) PlanType {
	plan := u.Plan()
	if plan == PlanNone {
		return PlanNone
	}
	if u.PremiumExpiryDate != nil && !now.Before(*u.PremiumExpiryDate) {
		return PlanNone
	}
	return plan
}

// NewUserDoc is the document written at first sign-in.
func NewUserDoc(displayName, email string) map[string]any {
	return map[string]any{
		"displayName":       displayName,
		"email":             email,
		"isAdmin":           false,
		"rank":              "Iniciante",
		"premiumPlanType":   nil,
		"premiumExpiryDate": nil,
		"createdAt":         docstore.ServerTimestamp,
	}
}

// PlanUpdates are the field writes that move a user to plan. Any legacy
// isPremium field is removed in the same write.
func PlanUpdates(plan PlanType, expiry *time.Time, clearExpiry bool) []docstore.Update {
	updates := []docstore.Update{
		{Path: "premiumPlanType", Value: plan.docValue()},
		{Path: "isPremium", Value: docstore.DeleteField},
	}
	switch {
	case expiry != nil:
		updates = append(updates, docstore.Update{Path: "premiumExpiryDate", Value: *expiry})
	case clearExpiry:
		updates = append(updates, docstore.Update{Path: "premiumExpiryDate", Value: nil})
	}
	return updates
}

// UserFromDoc decodes a users document.
func UserFromDoc(doc *docstore.Document) (*User, error) {
	var u User
	if err := doc.DataTo(&u); err != nil {
		return nil, err
	}
	u.ID = doc.ID
	u.PremiumPlanType = u.Plan()
	return &u, nil
}
