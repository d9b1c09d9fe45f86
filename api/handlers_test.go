/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Identity resolution and the login lockout
- Claim endpoints and error mapping
- Admin sync, fulfillment and raffle endpoints
- Demo scenarios
*/
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/creator-rewards/catalog"
	"github.com/warp/creator-rewards/claims"
	"github.com/warp/creator-rewards/loyalty"
	"github.com/warp/creator-rewards/ratelimit"
	"github.com/warp/creator-rewards/salesync"
	"github.com/warp/creator-rewards/store/memory"
	"github.com/warp/creator-rewards/store/storetest"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testAPI struct {
	*storetest.Fixture
	router  http.Handler
	handler *Handler
	lockout *ratelimit.Lockout
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memory.New()
	f := storetest.NewFixture(t, store)
	f.User(loyalty.User{ID: "admin1", Handle: "ops", CurrentTierID: "bronze", IsAdmin: true})

	cat := catalog.NewService(store, zap.NewNop())
	cat.Now = f.Clock()
	sealer, err := claims.NewSealer("")
	require.NoError(t, err)
	cl := claims.NewService(store, nil, sealer, zap.NewNop())
	cl.Now = f.Clock()
	sy := salesync.NewService(store, zap.NewNop())
	sy.Now = f.Clock()

	h := NewHandler(store, cat, cl, sy, zap.NewNop())
	h.Now = f.Clock()
	h.Seed.Now = f.Clock()

	lock := ratelimit.NewLockout(5, 15*time.Minute)
	lock.Now = f.Clock()
	return &testAPI{Fixture: f, router: NewRouter(h, RouterOptions{Lockout: lock}), handler: h, lockout: lock}
}

func (a *testAPI) do(method, path string, user loyalty.UserID, body any) *httptest.ResponseRecorder {
	a.T.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.T, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.10:5555"
	if user != "" {
		req.Header.Set(HeaderClientID, string(a.ClientID))
		req.Header.Set(HeaderUserID, string(user))
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (a *testAPI) completedGiftCardMission(id loyalty.MissionID, rule loyalty.TierRule) loyalty.Mission {
	a.T.Helper()
	reward := a.Reward(loyalty.Reward{ID: loyalty.RewardID("r-" + id), Value: loyalty.GiftCardValue{Amount: decimal.NewFromInt(50)}})
	m := a.Mission(loyalty.Mission{ID: id, Type: loyalty.MissionSalesDollars, Title: "Sell $1,000",
		TargetValue: decimal.NewFromInt(1000), RewardID: reward.ID, Eligibility: rule})
	a.Progress("u1", m, 1200)
	return m
}

// =============================================================================
// IDENTITY
// =============================================================================

func TestIdentify_RejectsUnknownCreator(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodGet, "/api/missions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeUnauthenticated, decodeBody[ErrorResponse](t, rec).Code)

	rec = a.do(http.MethodGet, "/api/missions", "ghost", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIdentify_LocksOutAfterRepeatedFailures(t *testing.T) {
	// GIVEN: Five failed resolutions from one address
	a := newTestAPI(t)
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/missions", "ghost", nil).Code)
	}

	// WHEN: The same address presents a valid identity
	rec := a.do(http.MethodGet, "/api/missions", "u1", nil)

	// THEN: It is locked out until the window passes
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, CodeLockedOut, decodeBody[ErrorResponse](t, rec).Code)

	a.Now = a.Now.Add(16 * time.Minute)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/missions", "u1", nil).Code)
}

func TestIdentify_SuccessResetsFailures(t *testing.T) {
	a := newTestAPI(t)
	for i := 0; i < 4; i++ {
		a.do(http.MethodGet, "/api/missions", "ghost", nil)
	}
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/missions", "u1", nil).Code)

	for i := 0; i < 4; i++ {
		a.do(http.MethodGet, "/api/missions", "ghost", nil)
	}
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/missions", "u1", nil).Code)
}

func TestRequireAdmin(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodGet, "/api/admin/sync/runs", "u1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, CodeForbidden, decodeBody[ErrorResponse](t, rec).Code)

	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/admin/sync/runs", "admin1", nil).Code)
}

// =============================================================================
// CREATOR ENDPOINTS
// =============================================================================

func TestClaimMission_Endpoint(t *testing.T) {
	// GIVEN: A completed $1,000 mission with a gift card reward
	a := newTestAPI(t)
	a.completedGiftCardMission("m1", loyalty.TierRule{})

	// WHEN: The creator claims with an empty body
	rec := a.do(http.MethodPost, "/api/missions/m1/claim", "u1", nil)

	// THEN: The claim succeeds once; a repeat is a conflict
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[claims.ClaimResult](t, rec)
	assert.True(t, res.Success)
	assert.Equal(t, loyalty.RedemptionClaimed, res.Status)

	rec = a.do(http.MethodPost, "/api/missions/m1/claim", "u1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, loyalty.CodeAlreadyClaimed, decodeBody[ErrorResponse](t, rec).Code)

	history := a.do(http.MethodGet, "/api/missions", "u1", nil)
	require.Equal(t, http.StatusOK, history.Code)
	list := decodeBody[catalog.MissionList](t, history)
	require.Len(t, list.Missions, 1)
	assert.Equal(t, loyalty.StatusClaimed, list.Missions[0].Status)
}

func TestClaimMission_ErrorMapping(t *testing.T) {
	a := newTestAPI(t)
	a.completedGiftCardMission("m-gold", loyalty.TierRule{TierID: "gold", Comparator: loyalty.Exact})
	a.completedGiftCardMission("m-ok", loyalty.TierRule{})

	tests := []struct {
		name     string
		path     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"unknown mission", "/api/missions/nope/claim", nil, http.StatusNotFound, loyalty.CodeNotFound},
		{"tier not eligible", "/api/missions/m-gold/claim", nil, http.StatusForbidden, loyalty.CodeNotEligible},
		{"payload on instant reward", "/api/missions/m-ok/claim", ClaimRequest{Size: "M"}, http.StatusBadRequest, loyalty.CodeInvalidPayload},
		{"not a raffle", "/api/missions/m-ok/participate", nil, http.StatusBadRequest, loyalty.CodeNotARaffle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(http.MethodPost, tt.path, "u1", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantErr, decodeBody[ErrorResponse](t, rec).Code)
		})
	}
}

func TestClaimMission_MalformedBody(t *testing.T) {
	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/missions/m1/claim", bytes.NewBufferString("{not json"))
	req.Header.Set(HeaderClientID, string(a.ClientID))
	req.Header.Set(HeaderUserID, "u1")
	rec := httptest.NewRecorder()

	a.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, loyalty.CodeInvalidRequest, decodeBody[ErrorResponse](t, rec).Code)
}

func TestGetTiers_Endpoint(t *testing.T) {
	a := newTestAPI(t)
	a.Reward(loyalty.Reward{ID: "gold-gc", Source: loyalty.SourceVIPTier, Value: loyalty.GiftCardValue{Amount: decimal.NewFromInt(100)},
		Eligibility: loyalty.TierRule{TierID: "gold", Comparator: loyalty.Exact}})

	rec := a.do(http.MethodGet, "/api/tiers", "u1", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decodeBody[catalog.TiersPage](t, rec)
	assert.Equal(t, loyalty.TierID("silver"), page.CurrentTier.ID)
	assert.Equal(t, "Gold", page.Progress.NextTierName)
	require.Len(t, page.Tiers, 2)
	require.Len(t, page.Tiers[1].Rewards, 1)
	assert.Equal(t, "$100 Gift Card", page.Tiers[1].Rewards[0].DisplayText)

	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/tiers", "", nil).Code)
}

func TestCreatorViews(t *testing.T) {
	a := newTestAPI(t)
	a.Reward(loyalty.Reward{ID: "vip-gc", Source: loyalty.SourceVIPTier, Value: loyalty.GiftCardValue{Amount: decimal.NewFromInt(25)}})

	for _, path := range []string{"/api/dashboard", "/api/missions/history", "/api/rewards/history", "/api/rewards/payment-info"} {
		rec := a.do(http.MethodGet, path, "u1", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := a.do(http.MethodGet, "/api/rewards", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[catalog.RewardList](t, rec)
	assert.Equal(t, loyalty.TierID("silver"), list.TierID)
	require.Len(t, list.Rewards, 1)

	rec = a.do(http.MethodPost, "/api/rewards/vip-gc/claim", "u1", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

func TestAdminSync_AppliesRows(t *testing.T) {
	a := newTestAPI(t)
	body := map[string]any{"rows": []map[string]any{
		{"handle": "@creator_one", "videoUrl": "https://video/1", "gmv": "300", "unitsSold": 2},
		{"handle": "", "videoUrl": "https://video/2"},
	}}

	rec := a.do(http.MethodPost, "/api/admin/sync", "admin1", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[salesync.Result](t, rec)
	assert.Equal(t, 1, res.RowsApplied)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 1, res.Errors[0].Row)

	runs := decodeBody[[]SyncRunDTO](t, a.do(http.MethodGet, "/api/admin/sync/runs", "admin1", nil))
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
}

func TestAdminAdjustment(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodPost, "/api/admin/adjustments", "admin1", AdjustmentRequest{
		UserID: "u1", Amount: decimal.NewFromInt(1500), Type: loyalty.AdjustmentBonus, Reason: "launch bonus",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	totals := decodeBody[UserTotalsDTO](t, rec)
	assert.True(t, decimal.NewFromInt(1500).Equal(totals.TotalSales))

	rec = a.do(http.MethodPost, "/api/admin/adjustments", "admin1", AdjustmentRequest{UserID: "u1", Type: loyalty.AdjustmentBonus, Reason: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	adj := decodeBody[[]AdjustmentDTO](t, a.do(http.MethodGet, "/api/admin/users/u1/adjustments", "admin1", nil))
	require.Len(t, adj, 1)
	assert.Equal(t, loyalty.UserID("admin1"), adj[0].CreatedBy)
}

func TestAdminRedemptionActions(t *testing.T) {
	// GIVEN: A claimed gift card
	a := newTestAPI(t)
	a.completedGiftCardMission("m1", loyalty.TierRule{})
	claim := decodeBody[claims.ClaimResult](t, a.do(http.MethodPost, "/api/missions/m1/claim", "u1", nil))

	pending := decodeBody[[]RedemptionDTO](t, a.do(http.MethodGet, "/api/admin/redemptions", "admin1", nil))
	require.Len(t, pending, 1)
	assert.Equal(t, claim.RedemptionID, pending[0].ID)

	// WHEN: The operator fulfills then concludes it
	path := "/api/admin/redemptions/" + string(claim.RedemptionID)
	rec := a.do(http.MethodPost, path+"/fulfill", "admin1", RedemptionActionRequest{Notes: "code sent"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, loyalty.RedemptionFulfilled, decodeBody[RedemptionDTO](t, rec).Status)

	rec = a.do(http.MethodPost, path+"/conclude", "admin1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, loyalty.RedemptionConcluded, decodeBody[RedemptionDTO](t, rec).Status)

	// THEN: Further transitions are rejected
	rec = a.do(http.MethodPost, path+"/reject", "admin1", RedemptionActionRequest{Reason: "late"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(http.MethodPost, path+"/teleport", "admin1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminRaffle(t *testing.T) {
	a := newTestAPI(t)
	reward := a.Reward(loyalty.Reward{ID: "trip", Value: loyalty.ExperienceValue{DisplayText: "studio trip"}})
	end := a.Now.AddDate(0, 0, 3)
	a.Mission(loyalty.Mission{ID: "raffle", Type: loyalty.MissionRaffle, Title: "Trip", RewardID: reward.ID, RaffleEndDate: &end})

	rec := a.do(http.MethodPost, "/api/admin/missions/raffle/activate", "admin1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/api/missions/raffle/participate", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/api/admin/missions/raffle/winner", "admin1", WinnerRequest{UserID: "u1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, loyalty.UserID("u1"), decodeBody[claims.WinnerResult](t, rec).WinnerID)

	rec = a.do(http.MethodPost, "/api/admin/missions/raffle/winner", "admin1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, loyalty.CodeWinnerAlreadySelected, decodeBody[ErrorResponse](t, rec).Code)
}

func TestAdminLifecycleRun(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodPost, "/api/admin/lifecycle/run", "admin1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, claims.LifecycleReport{}, decodeBody[claims.LifecycleReport](t, rec))
}

// =============================================================================
// SCENARIOS & OPERATIONS
// =============================================================================

func TestScenarios(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodGet, "/api/scenarios", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sales-sprint")

	assert.Equal(t, "null\n", a.do(http.MethodGet, "/api/scenarios/current", "", nil).Body.String())

	rec = a.do(http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "sales-sprint"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(http.MethodGet, "/api/scenarios/current", "", nil)
	assert.Contains(t, rec.Body.String(), `"id":"sales-sprint"`)

	rec = a.do(http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	a := newTestAPI(t)

	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/healthz", "", nil).Code)
	a.do(http.MethodGet, "/api/missions", "u1", nil)

	rec := a.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{loyalty.NotFound("mission", "m1"), http.StatusNotFound},
		{loyalty.NotEligible(loyalty.CodeLimitReached, "used"), http.StatusForbidden},
		{loyalty.Conflict(loyalty.CodeAlreadyClaimed, loyalty.ErrDuplicateClaim, "dup"), http.StatusConflict},
		{loyalty.Invalid(loyalty.CodeInvalidPayload, "size", "missing"), http.StatusBadRequest},
		{loyalty.Internal("get", errors.New("disk")), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}

func TestWriteDomainError_HidesInternalCause(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDomainError(rec, loyalty.Internal("get user", errors.New("secret dsn")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret dsn")
	assert.Equal(t, loyalty.CodeInternal, decodeBody[ErrorResponse](t, rec).Code)
}
