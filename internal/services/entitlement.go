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

const (
	MinCodeQuantity = 1
	MaxCodeQuantity = 50
	MinCodeDays     = 1
	MaxCodeDays     = 365
)

// EntitlementService owns premium plans and redemption codes.
type EntitlementService struct {
	store      docstore.Store
	throttle   Throttle
	codeLength int
	now        func() time.Time
}

type EntitlementOption func(*EntitlementService)

// WithEntitlementClock overrides the clock used for expiry computation.
func WithEntitlementClock(now func() time.Time) EntitlementOption {
	return func(s *EntitlementService) { s.now = now }
}

// WithRedeemThrottle limits redeem attempts per user.
func WithRedeemThrottle(t Throttle) EntitlementOption {
	return func(s *EntitlementService) { s.throttle = t }
}

// WithCodeLength sets the number of random characters in generated codes.
func WithCodeLength(n int) EntitlementOption {
	return func(s *EntitlementService) { s.codeLength = n }
}

func NewEntitlementService(store docstore.Store, opts ...EntitlementOption) *EntitlementService {
	s := &EntitlementService{
		store:      store,
		codeLength: DefaultCodeLength,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RedeemResult is what the member sees after a successful redemption.
type RedeemResult struct {
	PlanType     models.PlanType `json:"planType"`
	DurationDays int             `json:"durationDays"`
	ExpiresAt    time.Time       `json:"expiresAt"`
}

// Redeem consumes an active code and moves the user to its plan for its
// duration. The code is re-read inside the transaction, so of two concurrent
// redeemers of one code exactly one succeeds.
func (s *EntitlementService) Redeem(ctx context.Context, userID, code string) (*RedeemResult, error) {
	normalized := models.NormalizeCode(code)
	if normalized == "" {
		return nil, newValidationError("code", "is required")
	}

	if s.throttle != nil {
		ok, err := s.throttle.Allow(ctx, userID)
		if err != nil {
			slog.Warn("redeem throttle unavailable, allowing attempt", "error", err, "user_id", userID)
		} else if !ok {
			return nil, ErrTooManyAttempts
		}
	}

	var result *RedeemResult
	var codeID string
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if _, err := tx.Get(models.CollectionUsers, userID); err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		docs, err := tx.Query(models.CollectionRedemptionCodes, docstore.Query{
			Filters: []docstore.Filter{
				docstore.Where("code", docstore.OpEqual, normalized),
				docstore.Where("status", docstore.OpEqual, string(models.CodeStatusActive)),
			},
			Limit: 1,
		})
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return ErrCodeInvalid
		}

		rc, err := models.RedemptionCodeFromDoc(docs[0])
		if err != nil {
			return err
		}
		if !rc.PlanType.IsPaid() || rc.DurationDays < MinCodeDays {
			return fmt.Errorf("code %s: %w", rc.ID, models.ErrMalformed)
		}

		expiry := s.now().AddDate(0, 0, rc.DurationDays)
		if err := tx.Update(models.CollectionUsers, userID, models.PlanUpdates(rc.PlanType, &expiry, false)); err != nil {
			return err
		}
		if err := tx.Update(models.CollectionRedemptionCodes, rc.ID, models.RedeemUpdates(userID)); err != nil {
			return err
		}

		codeID = rc.ID
		result = &RedeemResult{PlanType: rc.PlanType, DurationDays: rc.DurationDays, ExpiresAt: expiry}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redeem code: %w", err)
	}

	slog.Info("code redeemed",
		"user_id", userID,
		"code_id", codeID,
		"plan", result.PlanType,
		"duration_days", result.DurationDays,
	)
	return result, nil
}

// SetPlan is the admin override. It never sets an expiry; clearing to none
// also clears the expiry.
func (s *EntitlementService) SetPlan(ctx context.Context, actor models.Actor, userID string, plan models.PlanType) error {
	if !actor.IsAdmin {
		return ErrForbidden
	}
	plan = models.NormalizePlan(string(plan))
	if !plan.Valid() {
		return newValidationError("planType", "must be one of [none basic pro]")
	}

	err := s.store.Update(ctx, models.CollectionUsers, userID, models.PlanUpdates(plan, nil, plan == models.PlanNone))
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("set plan for %s: %w", userID, err)
	}

	slog.Info("plan set by admin", "user_id", userID, "plan", plan, "admin_id", actor.UserID)
	return nil
}

// GenerateCodesRequest describes a batch of codes to create.
type GenerateCodesRequest struct {
	PlanType     models.PlanType `json:"planType" validate:"oneof=basic pro"`
	DurationDays int             `json:"durationDays" validate:"gte=1,lte=365"`
	Quantity     int             `json:"quantity" validate:"gte=1,lte=50"`
	CustomCode   string          `json:"customCode" validate:"max=64"`
}

// GenerateCodes creates Quantity active codes. Records are inserted one by
// one, so on failure the codes created so far are returned with the error.
// A custom code may only be issued once.
func (s *EntitlementService) GenerateCodes(ctx context.Context, actor models.Actor, req GenerateCodesRequest) ([]models.RedemptionCode, error) {
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}
	req.PlanType = models.NormalizePlan(string(req.PlanType))
	req.CustomCode = models.NormalizeCode(req.CustomCode)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if req.CustomCode != "" && req.Quantity > 1 {
		return nil, newValidationError("quantity", "must be 1 when a custom code is given")
	}

	var created []models.RedemptionCode
	var err error
	if req.CustomCode != "" {
		created, err = s.createCustomCode(ctx, actor, req)
	} else {
		created, err = s.createRandomCodes(ctx, actor, req)
	}
	if err != nil {
		return created, err
	}

	slog.Info("codes generated",
		"count", len(created),
		"plan", req.PlanType,
		"duration_days", req.DurationDays,
		"admin_id", actor.UserID,
	)
	return created, nil
}

func (s *EntitlementService) newCode(actor models.Actor, req GenerateCodesRequest, code string) models.RedemptionCode {
	return models.RedemptionCode{
		Code:         code,
		PlanType:     req.PlanType,
		DurationDays: req.DurationDays,
		Status:       models.CodeStatusActive,
		CreatedBy:    actor.UserID,
		CreatedAt:    s.now(),
	}
}

// createCustomCode checks and inserts in one transaction so two admins
// cannot issue the same custom code.
func (s *EntitlementService) createCustomCode(ctx context.Context, actor models.Actor, req GenerateCodesRequest) ([]models.RedemptionCode, error) {
	rc := s.newCode(actor, req, req.CustomCode)
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		existing, err := tx.Query(models.CollectionRedemptionCodes, docstore.Query{
			Filters: []docstore.Filter{docstore.Where("code", docstore.OpEqual, req.CustomCode)},
			Limit:   1,
		})
		if err != nil {
			return fmt.Errorf("check custom code: %w", err)
		}
		if len(existing) > 0 {
			return ErrCodeExists
		}
		id, err := tx.Create(models.CollectionRedemptionCodes, rc.ToDoc())
		if err != nil {
			return fmt.Errorf("create custom code: %w", err)
		}
		rc.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	return []models.RedemptionCode{rc}, nil
}

func (s *EntitlementService) createRandomCodes(ctx context.Context, actor models.Actor, req GenerateCodesRequest) ([]models.RedemptionCode, error) {
	created := make([]models.RedemptionCode, 0, req.Quantity)
	for i := 0; i < req.Quantity; i++ {
		code, err := randomCode(s.codeLength)
		if err != nil {
			return created, err
		}
		rc := s.newCode(actor, req, code)
		id, err := s.store.Create(ctx, models.CollectionRedemptionCodes, rc.ToDoc())
		if err != nil {
			return created, fmt.Errorf("create code %d of %d: %w", i+1, req.Quantity, err)
		}
		rc.ID = id
		created = append(created, rc)
	}
	return created, nil
}

// ListCodes returns codes newest first, optionally restricted to a status.
func (s *EntitlementService) ListCodes(ctx context.Context, actor models.Actor, status models.CodeStatus) ([]*models.RedemptionCode, error) {
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}
	q := docstore.Query{OrderBy: "createdAt", Desc: true}
	if status != "" {
		if status != models.CodeStatusActive && status != models.CodeStatusRedeemed {
			return nil, newValidationError("status", "must be one of [active redeemed]")
		}
		q.Filters = []docstore.Filter{docstore.Where("status", docstore.OpEqual, string(status))}
	}

	docs, err := s.store.Query(ctx, models.CollectionRedemptionCodes, q)
	if err != nil {
		return nil, fmt.Errorf("list codes: %w", err)
	}
	codes := make([]*models.RedemptionCode, 0, len(docs))
	for _, doc := range docs {
		rc, err := models.RedemptionCodeFromDoc(doc)
		if err != nil {
			return nil, err
		}
		codes = append(codes, rc)
	}
	return codes, nil
}

// DeleteCode removes a code regardless of its status.
func (s *EntitlementService) DeleteCode(ctx context.Context, actor models.Actor, codeID string) error {
	if !actor.IsAdmin {
		return ErrForbidden
	}
	if err := s.store.Delete(ctx, models.CollectionRedemptionCodes, codeID); err != nil {
		return fmt.Errorf("delete code %s: %w", codeID, err)
	}
	slog.Info("code deleted", "code_id", codeID, "admin_id", actor.UserID)
	return nil
}
