package api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"campus-loyalty/internal/auth"
	"campus-loyalty/internal/ledger"
	"campus-loyalty/internal/ledger/api"
	ledgerdb "campus-loyalty/internal/ledger/db"
	"campus-loyalty/internal/ledger/promotion"
	"campus-loyalty/internal/ledger/qr"
	"campus-loyalty/internal/models"
	"campus-loyalty/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

const testJWTSecret = "handler-test-secret"

type dbResolver struct {
	bun *bun.DB
}

func (r *dbResolver) ResolveUser(ctx context.Context, utorid string) (*models.User, error) {
	return ledgerdb.UserByUtorid(ctx, r.bun, utorid)
}

func setupRouter(t *testing.T) (chi.Router, *bun.DB, *ledger.TransactionService) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, ledgerdb.CreateTables(context.Background(), bunDB))
	t.Cleanup(func() { bunDB.Close() })

	service := ledger.NewTransactionService(bunDB, promotion.NewEvaluator(), nil, nil)
	handler := &api.Handler{
		Service: service,
		QR:      qr.NewGenerator("qr-test-secret"),
	}

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(testJWTSecret, &dbResolver{bun: bunDB}, nil))
		handler.Routes(r)
	})
	return r, bunDB, service
}

func seedUser(t *testing.T, bunDB *bun.DB, utorid string, role models.Role, pts int, verified bool) *models.User {
	user := &models.User{
		Utorid:    utorid,
		Name:      utorid,
		Role:      role,
		Points:    pts,
		Verified:  verified,
		CreatedAt: time.Now(),
	}
	_, err := bunDB.NewInsert().Model(user).Exec(context.Background())
	require.NoError(t, err)
	return user
}

func doRequest(t *testing.T, router chi.Router, method, path, asUtorid string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if asUtorid != "" {
		token, err := auth.GenerateToken(testJWTSecret, asUtorid, "", time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) utils.APIResponse {
	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCreateTransactionEndpoint(t *testing.T) {
	router, bunDB, _ := setupRouter(t)

	seedUser(t, bunDB, "cashier1", models.RoleCashier, 0, true)
	seedUser(t, bunDB, "customer1", models.RoleRegular, 0, true)

	rec := doRequest(t, router, http.MethodPost, "/transactions", "cashier1", map[string]interface{}{
		"type":   "purchase",
		"utorid": "customer1",
		"spent":  10.00,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)

	// Unsupported type in the payload.
	rec = doRequest(t, router, http.MethodPost, "/transactions", "cashier1", map[string]interface{}{
		"type":   "transfer",
		"utorid": "customer1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoleGates(t *testing.T) {
	router, bunDB, _ := setupRouter(t)

	seedUser(t, bunDB, "regular1", models.RoleRegular, 0, true)
	seedUser(t, bunDB, "cashier1", models.RoleCashier, 0, true)

	// Creating transactions requires cashier.
	rec := doRequest(t, router, http.MethodPost, "/transactions", "regular1", map[string]interface{}{
		"type": "purchase", "utorid": "cashier1", "spent": 1.00,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Reading arbitrary transactions requires manager; cashier is not enough.
	rec = doRequest(t, router, http.MethodGet, "/transactions/1", "cashier1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUnauthorizedRequests(t *testing.T) {
	router, bunDB, _ := setupRouter(t)
	seedUser(t, bunDB, "customer1", models.RoleRegular, 0, true)

	// No token at all.
	rec := doRequest(t, router, http.MethodGet, "/users/me/transactions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid token for a user that does not exist.
	rec = doRequest(t, router, http.MethodGet, "/users/me/transactions", "ghost", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	router, bunDB, _ := setupRouter(t)

	seedUser(t, bunDB, "manager1", models.RoleManager, 0, true)
	seedUser(t, bunDB, "customer1", models.RoleRegular, 10, true)

	// Not found.
	rec := doRequest(t, router, http.MethodGet, "/transactions/9999", "manager1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Invalid input: redemption above balance.
	rec = doRequest(t, router, http.MethodPost, "/users/me/transactions", "customer1", map[string]interface{}{
		"amount": 500,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Conflict: reusing a one-time promotion.
	promo := &models.Promotion{
		Name:      "one shot",
		Type:      models.PromotionOneTime,
		StartTime: time.Now().Add(-time.Hour),
		EndTime:   time.Now().Add(time.Hour),
		Points:    func() *int { v := 5; return &v }(),
	}
	_, err := bunDB.NewInsert().Model(promo).Exec(context.Background())
	require.NoError(t, err)

	purchase := map[string]interface{}{
		"type": "purchase", "utorid": "customer1", "spent": 10.00, "promotionIds": []int64{promo.ID},
	}
	rec = doRequest(t, router, http.MethodPost, "/transactions", "manager1", purchase)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/transactions", "manager1", purchase)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTransferEndpoint(t *testing.T) {
	router, bunDB, _ := setupRouter(t)

	sender := seedUser(t, bunDB, "sender1", models.RoleRegular, 100, true)
	seedUser(t, bunDB, "receiver1", models.RoleRegular, 0, true)

	rec := doRequest(t, router, http.MethodPost, "/users/receiver1/transactions", "sender1", map[string]interface{}{
		"amount": 40,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	updated, err := ledgerdb.UserByID(context.Background(), bunDB, sender.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, updated.Points)
}

func TestRedemptionQREndpoint(t *testing.T) {
	router, bunDB, service := setupRouter(t)

	customer := seedUser(t, bunDB, "customer1", models.RoleRegular, 100, true)
	seedUser(t, bunDB, "snoop1", models.RoleRegular, 0, true)

	redemption, err := service.CreateRedemption(context.Background(), customer.ID, ledger.RedemptionRequest{Amount: 20})
	require.NoError(t, err)

	path := fmt.Sprintf("/users/me/transactions/%d/qr", redemption.ID)

	rec := doRequest(t, router, http.MethodGet, path, "customer1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Body.Bytes())

	// Someone else's redemption is off limits.
	rec = doRequest(t, router, http.MethodGet, path, "snoop1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAwardEventPointsEndpoint(t *testing.T) {
	router, bunDB, _ := setupRouter(t)

	seedUser(t, bunDB, "manager1", models.RoleManager, 0, true)
	guest := seedUser(t, bunDB, "guest1", models.RoleRegular, 0, true)

	event := &models.Event{Name: "hackathon", PointsTotal: 100, PointsRemain: 100}
	_, err := bunDB.NewInsert().Model(event).Exec(context.Background())
	require.NoError(t, err)
	_, err = bunDB.NewInsert().Model(&models.EventGuest{EventID: event.ID, UserID: guest.ID, Confirmed: true}).Exec(context.Background())
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodPost, fmt.Sprintf("/events/%d/transactions", event.ID), "manager1", map[string]interface{}{
		"amount": 25,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	updated, err := ledgerdb.UserByID(context.Background(), bunDB, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, updated.Points)

	rec = doRequest(t, router, http.MethodPost, "/events/notanumber/transactions", "manager1", map[string]interface{}{
		"amount": 25,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
