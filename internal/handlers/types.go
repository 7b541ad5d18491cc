package handlers

import (
	"time"

	"github.com/admxx9/pecc-studii-sub000/internal/models"
)

// UserView is the signed-in member as returned to the client. IsPremium is
// projected from the plan.
type UserView struct {
	ID                string          `json:"id"`
	DisplayName       string          `json:"displayName"`
	Email             string          `json:"email"`
	IsAdmin           bool            `json:"isAdmin"`
	Rank              string          `json:"rank"`
	PremiumPlanType   models.PlanType `json:"premiumPlanType"`
	IsPremium         bool            `json:"isPremium"`
	PremiumExpiryDate *time.Time      `json:"premiumExpiryDate"`
	EffectivePlan     models.PlanType `json:"effectivePlan"`
}

func userView(u *models.User, now time.Time) UserView {
	return UserView{
		ID:                u.ID,
		DisplayName:       u.DisplayName,
		Email:             u.Email,
		IsAdmin:           u.IsAdmin,
		Rank:              u.Rank,
		PremiumPlanType:   u.Plan(),
		IsPremium:         u.IsPremium(),
		PremiumExpiryDate: u.PremiumExpiryDate,
		EffectivePlan:     u.EffectivePlan(now),
	}
}

// MessageView flattens a message body with a kind discriminator.
type MessageView struct {
	ID           string                   `json:"id"`
	Kind         models.MessageKind       `json:"kind"`
	Text         string                   `json:"text"`
	SenderID     string                   `json:"senderId"`
	SenderName   string                   `json:"senderName"`
	SentByAdmin  bool                     `json:"isAdmin"`
	CreatedAt    time.Time                `json:"createdAt"`
	ReplyTo      *models.Reply            `json:"replyTo,omitempty"`
	Contract     *models.ContractBody     `json:"contract,omitempty"`
	Cancellation *models.CancellationBody `json:"cancellation,omitempty"`
}

func messageView(m *models.Message) MessageView {
	v := MessageView{
		ID:          m.ID,
		Kind:        m.Body.Kind(),
		Text:        m.Text,
		SenderID:    m.SenderID,
		SenderName:  m.SenderName,
		SentByAdmin: m.SentByAdmin,
		CreatedAt:   m.CreatedAt,
	}
	switch b := m.Body.(type) {
	case *models.PlainBody:
		v.ReplyTo = b.ReplyTo
	case *models.ContractBody:
		v.Contract = b
	case *models.CancellationBody:
		v.Cancellation = b
	}
	return v
}

func messageViews(msgs []*models.Message) []MessageView {
	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageView(m))
	}
	return out
}
