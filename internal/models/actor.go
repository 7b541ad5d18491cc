package models

import "time"

// Actor is the authenticated caller of an operation. Plan is the caller's
// effective plan at authentication time.
type Actor struct {
	UserID  string
	Name    string
	Email   string
	IsAdmin bool
	Plan    PlanType
}

// ActorFromUser builds the actor for a loaded user.
func ActorFromUser(u *User, now time.Time) Actor {
	return Actor{
		UserID:  u.ID,
		Name:    u.DisplayName,
		Email:   u.Email,
		IsAdmin: u.IsAdmin,
		Plan:    u.EffectivePlan(now),
	}
}
