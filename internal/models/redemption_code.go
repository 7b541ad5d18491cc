package models

import (
	"strings"
	"time"

	"github.com/admxx9/pecc-studii-sub000/internal/docstore"
)

type CodeStatus string

const (
	CodeStatusActive   CodeStatus = "active"
	CodeStatusRedeemed CodeStatus = "redeemed"
)

// RedemptionCode is a single-use grant of a plan for DurationDays.
type RedemptionCode struct {
	ID               string     `firestore:"-" json:"id"`
	Code             string     `firestore:"code" json:"code"`
	PlanType         PlanType   `firestore:"planType" json:"planType"`
	DurationDays     int        `firestore:"durationDays" json:"durationDays"`
	Status           CodeStatus `firestore:"status" json:"status"`
	RedeemedByUserID string     `firestore:"redeemedByUserId" json:"redeemedByUserId,omitempty"`
	RedeemedAt       *time.Time `firestore:"redeemedAt" json:"redeemedAt,omitempty"`
	CreatedBy        string     `firestore:"createdBy" json:"createdBy,omitempty"`
	CreatedAt        time.Time  `firestore:"createdAt" json:"createdAt"`
}

// NormalizeCode trims and upper-cases a code as typed by a user.
func NormalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ToDoc encodes a fresh, active code.
func (c RedemptionCode) ToDoc() map[string]any {
	return map[string]any{
		"code":             c.Code,
		"planType":         string(c.PlanType),
		"durationDays":     c.DurationDays,
		"status":           string(CodeStatusActive),
		"redeemedByUserId": nil,
		"redeemedAt":       nil,
		"createdBy":        c.CreatedBy,
		"createdAt":        docstore.ServerTimestamp,
	}
}

// RedeemUpdates marks a code consumed by userID at commit time.
func RedeemUpdates(userID string) []docstore.Update {
	return []docstore.Update{
		{Path: "status", Value: string(CodeStatusRedeemed)},
		{Path: "redeemedByUserId", Value: userID},
		{Path: "redeemedAt", Value: docstore.ServerTimestamp},
	}
}

func RedemptionCodeFromDoc(doc *docstore.Document) (*RedemptionCode, error) {
	var c RedemptionCode
	if err := doc.DataTo(&c); err != nil {
		return nil, err
	}
	c.ID = doc.ID
	return &c, nil
}
