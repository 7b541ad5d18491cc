package services

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admxx9/pecc-studii-sub000/internal/docstore"
	"github.com/admxx9/pecc-studii-sub000/internal/models"
)

var (
	testNow   = time.Date(2026, 4, 10, 15, 30, 0, 0, time.UTC)
	testAdmin = models.Actor{UserID: "admin-1", Name: "Admin", IsAdmin: true}
	errFault  = errors.New("injected commit failure")
)

func fixedNow() time.Time { return testNow }

func newTestStore() *docstore.MemoryStore {
	return docstore.NewMemoryStore(docstore.WithClock(fixedNow))
}

func seedUser(t *testing.T, store docstore.Store, id string, data map[string]any) {
	t.Helper()
	doc := models.NewUserDoc("User "+id, id+"@example.com")
	for k, v := range data {
		doc[k] = v
	}
	require.NoError(t, store.Set(context.Background(), models.CollectionUsers, id, doc))
}

func seedCode(t *testing.T, store docstore.Store, code string, plan models.PlanType, days int) string {
	t.Helper()
	rc := models.RedemptionCode{Code: code, PlanType: plan, DurationDays: days}
	id, err := store.Create(context.Background(), models.CollectionRedemptionCodes, rc.ToDoc())
	require.NoError(t, err)
	return id
}

func loadUser(t *testing.T, store docstore.Store, id string) *models.User {
	t.Helper()
	doc, err := store.Get(context.Background(), models.CollectionUsers, id)
	require.NoError(t, err)
	u, err := models.UserFromDoc(doc)
	require.NoError(t, err)
	return u
}

func loadCode(t *testing.T, store docstore.Store, id string) *models.RedemptionCode {
	t.Helper()
	doc, err := store.Get(context.Background(), models.CollectionRedemptionCodes, id)
	require.NoError(t, err)
	rc, err := models.RedemptionCodeFromDoc(doc)
	require.NoError(t, err)
	return rc
}

func TestRedeem_GrantsPlanAndConsumesCode(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	seedUser(t, store, "U1", map[string]any{"isPremium": false})
	codeID := seedCode(t, store, "ABCD-1234", models.PlanPro, 30)

	svc := NewEntitlementService(store, WithEntitlementClock(fixedNow))
	res, err := svc.Redeem(ctx, "U1", "ABCD-1234")
	require.NoError(t, err)
	assert.Equal(t, models.PlanPro, res.PlanType)
	assert.Equal(t, 30, res.DurationDays)

	user := loadUser(t, store, "U1")
	assert.True(t, user.IsPremium())
	assert.Equal(t, models.PlanPro, user.PremiumPlanType)
	require.NotNil(t, user.PremiumExpiryDate)
	assert.WithinDuration(t, testNow.AddDate(0, 0, 30), *user.PremiumExpiryDate, time.Second)

	raw, err := store.Get(ctx, models.CollectionUsers, "U1")
	require.NoError(t, err)
	_, stored := raw.Data["isPremium"]
	assert.False(t, stored, "premium flag must not be persisted")

	code := loadCode(t, store, codeID)
	assert.Equal(t, models.CodeStatusRedeemed, code.Status)
	assert.Equal(t, "U1", code.RedeemedByUserID)
	require.NotNil(t, code.RedeemedAt)
	assert.True(t, testNow.Equal(*code.RedeemedAt))
}

func TestRedeem_FailedCommitLeavesNoPartialState(t *testing.T) {
	tests := []struct {
		name       string
		collection string
	}{
		{name: "code write fails", collection: models.CollectionRedemptionCodes},
		{name: "user write fails", collection: models.CollectionUsers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newTestStore()
			seedUser(t, store, "U1", nil)
			codeID := seedCode(t, store, "ABCD-1234", models.PlanPro, 30)

			store.SetFaultHook(func(w docstore.Write) error {
				if w.Collection == tt.collection {
					return errFault
				}
				return nil
			})

			svc := NewEntitlementService(store, WithEntitlementClock(fixedNow))
			_, err := svc.Redeem(ctx, "U1", "ABCD-1234")
			require.ErrorIs(t, err, errFault)

			store.SetFaultHook(nil)
			user := loadUser(t, store, "U1")
			assert.Equal(t, models.PlanNone, user.PremiumPlanType)
			assert.Nil(t, user.PremiumExpiryDate)
			assert.Equal(t, models.CodeStatusActive, loadCode(t, store, codeID).Status)
		})
	}
}

func TestRedeem_RejectsReuse(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	seedUser(t, store, "U1", nil)
	seedCode(t, store, "ABCD-1234", models.PlanBasic, 10)

	svc := NewEntitlementService(store, WithEntitlementClock(fixedNow))
	_, err := svc.Redeem(ctx, "U1", "ABCD-1234")
	require.NoError(t, err)
	first := loadUser(t, store, "U1")

	later := testNow.Add(48 * time.Hour)
	svc = NewEntitlementService(store, WithEntitlementClock(func() time.Time { return later }))
	_, err = svc.Redeem(ctx, "U1", "ABCD-1234")
	assert.ErrorIs(t, err, ErrCodeInvalid)

	second := loadUser(t, store, "U1")
	assert.Equal(t, first.PremiumExpiryDate, second.PremiumExpiryDate)
	assert.Equal(t, first.PremiumPlanType, second.PremiumPlanType)
}

func TestRedeem_NormalizesInput(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	seedUser(t, store, "U1", nil)
	codeID := seedCode(t, store, "ABCD-1234", models.PlanBasic, 7)

	svc := NewEntitlementService(store, WithEntitlementClock(fixedNow))
	res, err := svc.Redeem(ctx, "U1", " abcd-1234 ")
	require.NoError(t, err)
	assert.Equal(t, models.PlanBasic, res.PlanType)
	assert.Equal(t, models.CodeStatusRedeemed, loadCode(t, store, codeID).Status)
}

func TestRedeem_Errors(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	seedUser(t, store, "U1", nil)

	svc := NewEntitlementService(store, WithEntitlementClock(fixedNow))

	_, err := svc.Redeem(ctx, "U1", "   ")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.Redeem(ctx, "U1", "NOPE-NOPE-NOPE")
	assert.ErrorIs(t, err, ErrCodeInvalid)

	seedCode(t, store, "ABCD-1234", models.PlanPro, 30)
	_, err = svc.Redeem(ctx, "ghost", "ABCD-1234")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRedeem_ConcurrentRedeemersGetOneSuccess(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	seedUser(t, store, "U1", nil)
	seedUser(t, store, "U2", nil)
	seedCode(t, store, "SAME-CODE-0001", models.PlanPro, 30)

	svc := NewEntitlementService(store, WithEntitlementClock(fixedNow))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, uid := range []string{"U1", "U2"} {
		wg.Add(1)
		go func(i int, uid string) {
			defer wg.Done()
			_, errs[i] = svc.Redeem(ctx, uid, "SAME-CODE-0001")
		}(i, uid)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, ErrCodeInvalid)
	}
	assert.Equal(t, 1, successes)
	assert.NotEqual(t, loadUser(t, store, "U1").IsPremium(), loadUser(t, store, "U2").IsPremium())
}

type denyAfter struct {
	allowed int
	calls   int
}

func (d *denyAfter) Allow(context.Context, string) (bool, error) {
	d.calls++
	return d.calls <= d.allowed, nil
}

func TestRedeem_Throttled(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	seedUser(t, store, "U1", nil)

	svc := NewEntitlementService(store, WithEntitlementClock(fixedNow), WithRedeemThrottle(&denyAfter{allowed: 1}))

	_, err := svc.Redeem(ctx, "U1", "WRONG")
	assert.ErrorIs(t, err, ErrCodeInvalid)
	_, err = svc.Redeem(ctx, "U1", "WRONG")
	assert.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestSetPlan(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	expiry := testNow.AddDate(0, 0, 5)
	seedUser(t, store, "U1", map[string]any{
		"premiumPlanType":   "basic",
		"premiumExpiryDate": expiry,
		"isPremium":         true,
	})
	svc := NewEntitlementService(store, WithEntitlementClock(fixedNow))

	require.NoError(t, svc.SetPlan(ctx, testAdmin, "U1", models.PlanPro))
	user := loadUser(t, store, "U1")
	assert.Equal(t, models.PlanPro, user.PremiumPlanType)
	require.NotNil(t, user.PremiumExpiryDate, "direct edits keep the existing expiry")
	assert.True(t, expiry.Equal(*user.PremiumExpiryDate))

	require.NoError(t, svc.SetPlan(ctx, testAdmin, "U1", models.PlanNone))
	user = loadUser(t, store, "U1")
	assert.False(t, user.IsPremium())
	assert.Nil(t, user.PremiumExpiryDate)

	raw, err := store.Get(ctx, models.CollectionUsers, "U1")
	require.NoError(t, err)
	assert.Nil(t, raw.Data["premiumPlanType"])
	_, stored := raw.Data["isPremium"]
	assert.False(t, stored)

	assert.ErrorIs(t, svc.SetPlan(ctx, models.Actor{UserID: "U1"}, "U1", models.PlanPro), ErrForbidden)
	assert.ErrorIs(t, svc.SetPlan(ctx, testAdmin, "ghost", models.PlanPro), ErrUserNotFound)

	var verr *ValidationError
	assert.ErrorAs(t, svc.SetPlan(ctx, testAdmin, "U1", "gold"), &verr)
}

func TestGenerateCodes_Bounds(t *testing.T) {
	tests := []struct {
		name     string
		quantity int
		days     int
		ok       bool
	}{
		{name: "quantity zero", quantity: 0, days: 30, ok: false},
		{name: "quantity 51", quantity: 51, days: 30, ok: false},
		{name: "days zero", quantity: 1, days: 0, ok: false},
		{name: "days 366", quantity: 1, days: 366, ok: false},
		{name: "lower bounds", quantity: 1, days: 1, ok: true},
		{name: "upper bounds", quantity: 50, days: 365, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore()
			svc := NewEntitlementService(store, WithEntitlementClock(fixedNow))
			codes, err := svc.GenerateCodes(context.Background(), testAdmin, GenerateCodesRequest{
				PlanType:     models.PlanBasic,
				DurationDays: tt.days,
				Quantity:     tt.quantity,
			})
			if !tt.ok {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				docs, qerr := store.Query(context.Background(), models.CollectionRedemptionCodes, docstore.Query{})
				require.NoError(t, qerr)
				assert.Empty(t, docs)
				return
			}
			require.NoError(t, err)
			assert.Len(t, codes, tt.quantity)
		})
	}
}

func TestGenerateCodes_RandomFormat(t *testing.T) {
	svc := NewEntitlementService(newTestStore(), WithEntitlementClock(fixedNow))
	codes, err := svc.GenerateCodes(context.Background(), testAdmin, GenerateCodesRequest{
		PlanType: models.PlanPro, DurationDays: 30, Quantity: 20,
	})
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^[A-Z0-9]{4}(-[A-Z0-9]{4}){2}$`)
	seen := map[string]bool{}
	for _, c := range codes {
		assert.Regexp(t, pattern, c.Code)
		assert.Equal(t, models.CodeStatusActive, c.Status)
		assert.Equal(t, models.PlanPro, c.PlanType)
		seen[c.Code] = true
	}
	assert.Len(t, seen, 20)
}

func TestGenerateCodes_CustomCode(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	svc := NewEntitlementService(store, WithEntitlementClock(fixedNow))

	codes, err := svc.GenerateCodes(ctx, testAdmin, GenerateCodesRequest{
		PlanType: models.PlanPro, DurationDays: 30, Quantity: 1, CustomCode: " promo2026 ",
	})
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.Equal(t, "PROMO2026", codes[0].Code)

	_, err = svc.GenerateCodes(ctx, testAdmin, GenerateCodesRequest{
		PlanType: models.PlanPro, DurationDays: 30, Quantity: 1, CustomCode: "PROMO2026",
	})
	assert.ErrorIs(t, err, ErrCodeExists)

	_, err = svc.GenerateCodes(ctx, testAdmin, GenerateCodesRequest{
		PlanType: models.PlanPro, DurationDays: 30, Quantity: 5, CustomCode: "OTHER",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "quantity")
}

func TestGenerateCodes_ConcurrentCustomCodeIssuedOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	svc := NewEntitlementService(store, WithEntitlementClock(fixedNow))

	const admins = 8
	var wg sync.WaitGroup
	errs := make([]error, admins)
	for i := 0; i < admins; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.GenerateCodes(ctx, testAdmin, GenerateCodesRequest{
				PlanType: models.PlanBasic, DurationDays: 7, Quantity: 1, CustomCode: "LANCAMENTO",
			})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, ErrCodeExists)
	}
	assert.Equal(t, 1, successes)

	docs, err := store.Query(ctx, models.CollectionRedemptionCodes, docstore.Query{
		Filters: []docstore.Filter{docstore.Where("code", docstore.OpEqual, "LANCAMENTO")},
	})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestGenerateCodes_Authorization(t *testing.T) {
	svc := NewEntitlementService(newTestStore())
	_, err := svc.GenerateCodes(context.Background(), models.Actor{UserID: "U1"}, GenerateCodesRequest{
		PlanType: models.PlanPro, DurationDays: 30, Quantity: 1,
	})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestListAndDeleteCodes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	seedUser(t, store, "U1", nil)
	svc := NewEntitlementService(store, WithEntitlementClock(fixedNow))

	redeemedID := seedCode(t, store, "AAAA-AAAA-AAAA", models.PlanBasic, 10)
	seedCode(t, store, "BBBB-BBBB-BBBB", models.PlanPro, 10)
	_, err := svc.Redeem(ctx, "U1", "AAAA-AAAA-AAAA")
	require.NoError(t, err)

	active, err := svc.ListCodes(ctx, testAdmin, models.CodeStatusActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "BBBB-BBBB-BBBB", active[0].Code)

	all, err := svc.ListCodes(ctx, testAdmin, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, svc.DeleteCode(ctx, testAdmin, redeemedID))
	all, err = svc.ListCodes(ctx, testAdmin, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = svc.ListCodes(ctx, models.Actor{UserID: "U1"}, "")
	assert.ErrorIs(t, err, ErrForbidden)
}
