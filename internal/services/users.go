package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/admxx9/pecc-studii-sub000/internal/docstore"
	"github.com/admxx9/pecc-studii-sub000/internal/models"
)

// UserService loads and bootstraps member profiles.
type UserService struct {
	store docstore.Store
	now   func() time.Time
}

func NewUserService(store docstore.Store, now func() time.Time) *UserService {
	if now == nil {
		now = time.Now
	}
	return &UserService{store: store, now: now}
}

// GetUser loads a profile.
func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	doc, err := s.store.Get(ctx, models.CollectionUsers, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return models.UserFromDoc(doc)
}

// EnsureUser returns the profile for userID, creating it with plan none on
// first sign-in.
func (s *UserService) EnsureUser(ctx context.Context, userID, displayName, email string) (*models.User, error) {
	var user *models.User
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		doc, err := tx.Get(models.CollectionUsers, userID)
		if err == nil {
			user, err = models.UserFromDoc(doc)
			return err
		}
		if !errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		user = &models.User{
			ID:              userID,
			DisplayName:     displayName,
			Email:           email,
			PremiumPlanType: models.PlanNone,
			CreatedAt:       s.now(),
		}
		return tx.Set(models.CollectionUsers, userID, models.NewUserDoc(displayName, email))
	})
	if err != nil {
		return nil, fmt.Errorf("ensure user %s: %w", userID, err)
	}
	return user, nil
}

// SetAdmin grants or revokes the admin flag.
func (s *UserService) SetAdmin(ctx context.Context, userID string, admin bool) error {
	err := s.store.Update(ctx, models.CollectionUsers, userID, []docstore.Update{{Path: "isAdmin", Value: admin}})
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("set admin %s: %w", userID, err)
	}
	slog.Info("admin flag changed", "user_id", userID, "is_admin", admin)
	return nil
}
