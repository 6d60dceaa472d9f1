package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

type APITestSuite struct {
	suite.Suite
	repo   *storage.SQLiteRepository
	srv    *Server
	tokenA string
	tokenB string
}

func newTestServer(t *testing.T, repo *storage.SQLiteRepository, rateLimit int) *Server {
	t.Helper()
	logger := log.Discard()
	tokens := auth.NewTokenManager("api-test-secret", time.Hour)
	cfg := services.AuthConfig{BcryptCost: bcrypt.MinCost, ResetTokenTTL: time.Hour, ExposeResetToken: true}

	srv := NewServer(":0", Deps{
		Auth:               services.NewAuthService(repo, tokens, nil, cfg, logger),
		Categories:         services.NewCategoryService(repo, logger),
		Transactions:       services.NewTransactionService(repo, nil, logger),
		Analytics:          services.NewAnalyticsService(repo, logger),
		Tokens:             tokens,
		Store:              repo,
		Logger:             logger,
		CORSOrigin:         "*",
		RateLimitPerMinute: rateLimit,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func (s *APITestSuite) SetupTest() {
	repo, err := storage.NewSQLiteRepository(filepath.Join(s.T().TempDir(), "api.db"))
	require.NoError(s.T(), err)
	s.repo = repo
	s.srv = newTestServer(s.T(), repo, 0)

	s.tokenA = s.register("Alice", "alice@example.com", "pw-alice")
	s.tokenB = s.register("Bob", "bob@example.com", "pw-bob")
}

func (s *APITestSuite) TearDownTest() {
	if s.repo != nil {
		s.repo.Close()
	}
}

func (s *APITestSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(s.T(), json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func (s *APITestSuite) decode(rec *httptest.ResponseRecorder, v any) {
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func (s *APITestSuite) errorOf(rec *httptest.ResponseRecorder) string {
	var body errorBody
	s.decode(rec, &body)
	return body.Error
}

func (s *APITestSuite) register(name, email, password string) string {
	rec := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": name, "email": email, "password": password,
	})
	require.Equal(s.T(), http.StatusOK, rec.Code, rec.Body.String())
	var res services.AuthResult
	s.decode(rec, &res)
	require.NotEmpty(s.T(), res.Token)
	return res.Token
}

func (s *APITestSuite) createTx(token string, body map[string]any) core.Transaction {
	rec := s.do(http.MethodPost, "/api/transactions", token, body)
	require.Equal(s.T(), http.StatusCreated, rec.Code, rec.Body.String())
	var t core.Transaction
	s.decode(rec, &t)
	return t
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

func (s *APITestSuite) TestRootHealthAndReady() {
	rec := s.do(http.MethodGet, "/", "", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("OK", rec.Body.String())

	rec = s.do(http.MethodGet, "/healthz", "", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"status":"ok"`)

	rec = s.do(http.MethodGet, "/readyz", "", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"database":"ok"`)

	rec = s.do(http.MethodGet, "/metrics", "", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "http_requests_total")
}

func (s *APITestSuite) TestReadyFailsWhenStoreDown() {
	s.repo.Close()
	rec := s.do(http.MethodGet, "/readyz", "", nil)
	s.Equal(http.StatusServiceUnavailable, rec.Code)
	s.Contains(rec.Body.String(), `"not_ready"`)
}

func (s *APITestSuite) TestUnknownAPIRoute() {
	rec := s.do(http.MethodGet, "/api/nope", s.tokenA, nil)
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal("Not found", s.errorOf(rec))
}

func (s *APITestSuite) TestResponsesCarryHeaders() {
	req := httptest.NewRequest(http.MethodGet, "/api/categories", nil)
	req.Header.Set("Authorization", "Bearer "+s.tokenA)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("nosniff", rec.Header().Get("X-Content-Type-Options"))
	s.Equal("*", rec.Header().Get("Access-Control-Allow-Origin"))
	s.NotEmpty(rec.Header().Get("X-Request-ID"))
}

func (s *APITestSuite) TestRegisterDuplicateEmail() {
	rec := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Alice again", "email": "ALICE@example.com", "password": "x",
	})
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("Email already used", s.errorOf(rec))
}

func (s *APITestSuite) TestRegisterMissingFields() {
	rec := s.do(http.MethodPost, "/api/auth/register", "", "")
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("Email and password required", s.errorOf(rec))

	rec = s.do(http.MethodPost, "/api/auth/register", "", "{not json")
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("Invalid JSON body", s.errorOf(rec))
}

func (s *APITestSuite) TestLoginFailuresAreIdentical() {
	wrongPw := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": "nope"})
	noUser := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ghost@example.com", "password": "nope"})

	s.Equal(http.StatusUnauthorized, wrongPw.Code)
	s.Equal(wrongPw.Code, noUser.Code)
	s.Equal(wrongPw.Body.String(), noUser.Body.String())

	ok := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": "pw-alice"})
	s.Equal(http.StatusOK, ok.Code)
	var res services.AuthResult
	s.decode(ok, &res)
	s.Equal("Alice", res.User.Name)
	s.Equal("alice@example.com", res.User.Email)
}

func (s *APITestSuite) TestProtectedRoutesRequireToken() {
	rec := s.do(http.MethodGet, "/api/transactions", "", nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("Missing token", s.errorOf(rec))

	rec = s.do(http.MethodGet, "/api/transactions", "garbage", nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("Invalid token", s.errorOf(rec))
}

func (s *APITestSuite) TestMe() {
	rec := s.do(http.MethodGet, "/api/auth/me", s.tokenB, nil)
	s.Equal(http.StatusOK, rec.Code)
	var u core.PublicUser
	s.decode(rec, &u)
	s.Equal("bob@example.com", u.Email)
}

func (s *APITestSuite) TestPasswordResetFlow() {
	unknown := s.do(http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "ghost@example.com"})
	s.Equal(http.StatusOK, unknown.Code)
	s.JSONEq(`{"ok":true}`, unknown.Body.String())

	rec := s.do(http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "alice@example.com"})
	s.Equal(http.StatusOK, rec.Code)
	var forgot services.ForgotResult
	s.decode(rec, &forgot)
	s.True(forgot.OK)
	s.Len(forgot.Token, 40)

	rec = s.do(http.MethodPost, "/api/auth/reset-password", "", map[string]string{"token": "not-on-record", "newPassword": "x"})
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("Invalid token", s.errorOf(rec))

	rec = s.do(http.MethodPost, "/api/auth/reset-password", "", map[string]string{"token": forgot.Token, "newPassword": "new-pw"})
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"ok":true}`, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": "new-pw"})
	s.Equal(http.StatusOK, rec.Code)

	// the token is single use
	rec = s.do(http.MethodPost, "/api/auth/reset-password", "", map[string]string{"token": forgot.Token, "newPassword": "again"})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *APITestSuite) TestChangePassword() {
	rec := s.do(http.MethodPut, "/api/auth/change-password", s.tokenA, map[string]string{"currentPassword": "wrong", "newPassword": "x"})
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("Current password incorrect", s.errorOf(rec))

	rec = s.do(http.MethodPut, "/api/auth/change-password", s.tokenA, map[string]string{"currentPassword": "pw-alice", "newPassword": "changed"})
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": "changed"})
	s.Equal(http.StatusOK, rec.Code)
}

func (s *APITestSuite) TestCategoryLifecycle() {
	rec := s.do(http.MethodPost, "/api/categories", s.tokenA, map[string]string{"name": "Food"})
	s.Require().Equal(http.StatusCreated, rec.Code)
	var food core.Category
	s.decode(rec, &food)
	s.Equal("Food", food.Name)

	rec = s.do(http.MethodPost, "/api/categories", s.tokenA, map[string]string{"name": "Food"})
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("Category already exists", s.errorOf(rec))

	rec = s.do(http.MethodPost, "/api/categories", s.tokenA, map[string]string{"name": "  "})
	s.Equal(http.StatusBadRequest, rec.Code)

	// same name for another user is fine
	rec = s.do(http.MethodPost, "/api/categories", s.tokenB, map[string]string{"name": "Food"})
	s.Equal(http.StatusCreated, rec.Code)

	s.do(http.MethodPost, "/api/categories", s.tokenA, map[string]string{"name": "Bills"})
	rec = s.do(http.MethodGet, "/api/categories", s.tokenA, nil)
	var list []core.Category
	s.decode(rec, &list)
	s.Require().Len(list, 2)
	s.Equal("Bills", list[0].Name)
	s.Equal("Food", list[1].Name)

	path := "/api/categories/" + itoa(food.ID)
	rec = s.do(http.MethodPut, path, s.tokenA, map[string]string{"name": "Groceries"})
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "Groceries")

	rec = s.do(http.MethodPut, path, s.tokenB, map[string]string{"name": "Mine"})
	s.Equal(http.StatusNotFound, rec.Code)
	rec = s.do(http.MethodDelete, path, s.tokenB, nil)
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodDelete, path, s.tokenA, nil)
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"success":true}`, rec.Body.String())

	rec = s.do(http.MethodDelete, "/api/categories/abc", s.tokenA, nil)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("Invalid id", s.errorOf(rec))
}

func (s *APITestSuite) TestCreateTransactionWithImplicitCategory() {
	t := s.createTx(s.tokenA, map[string]any{
		"amount": "12.50", "type": "expense", "transactionDate": "2024-03-15", "categoryName": "Food", "note": "lunch",
	})
	s.Equal(int64(1250), t.Amount.Cents)
	s.Equal(core.Expense, t.Type)
	s.Require().NotNil(t.Category)
	s.Equal("Food", t.Category.Name)
	s.Require().NotNil(t.Note)
	s.Equal("lunch", *t.Note)
	s.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), t.TransactionDate)

	rec := s.do(http.MethodGet, "/api/categories", s.tokenA, nil)
	var list []core.Category
	s.decode(rec, &list)
	s.Require().Len(list, 1)
	s.Equal(list[0].ID, *t.CategoryID)

	rec = s.do(http.MethodGet, "/api/transactions/"+itoa(t.ID), s.tokenA, nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"amount":12.50`)
}

func (s *APITestSuite) TestCreateTransactionValidation() {
	cases := []struct {
		body map[string]any
		want string
	}{
		{map[string]any{"type": "expense", "transactionDate": "2024-01-01"}, "Missing fields"},
		{map[string]any{"amount": -5, "type": "expense", "transactionDate": "2024-01-01"}, "Amount must be a positive number"},
		{map[string]any{"amount": "abc", "type": "expense", "transactionDate": "2024-01-01"}, "Amount must be a positive number"},
		{map[string]any{"amount": 5, "type": "gift", "transactionDate": "2024-01-01"}, "Type must be 'expense' or 'income'"},
		{map[string]any{"amount": 5, "type": "income", "transactionDate": "01/02/2024"}, "Invalid date, expected YYYY-MM-DD or RFC 3339"},
	}
	for _, c := range cases {
		rec := s.do(http.MethodPost, "/api/transactions", s.tokenA, c.body)
		s.Equal(http.StatusBadRequest, rec.Code, c.body)
		s.Equal(c.want, s.errorOf(rec), c.body)
	}
}

func (s *APITestSuite) TestListTransactionsFilterAndOrder() {
	s.createTx(s.tokenA, map[string]any{"amount": 1, "type": "expense", "transactionDate": "2024-01-10"})
	s.createTx(s.tokenA, map[string]any{"amount": 2, "type": "income", "transactionDate": "2024-02-10T15:30:00Z"})
	s.createTx(s.tokenA, map[string]any{"amount": 3, "type": "expense", "transactionDate": "2024-03-10"})
	s.createTx(s.tokenB, map[string]any{"amount": 99, "type": "expense", "transactionDate": "2024-02-10"})

	var all []core.Transaction
	s.decode(s.do(http.MethodGet, "/api/transactions", s.tokenA, nil), &all)
	s.Require().Len(all, 3)
	s.Equal(int64(300), all[0].Amount.Cents)
	s.Equal(int64(100), all[2].Amount.Cents)
	s.Nil(all[0].Category)

	var feb []core.Transaction
	s.decode(s.do(http.MethodGet, "/api/transactions?from=2024-02-01&to=2024-02-10", s.tokenA, nil), &feb)
	s.Require().Len(feb, 1, "a date-only upper bound includes the whole day")
	s.Equal(int64(200), feb[0].Amount.Cents)

	var expenses []core.Transaction
	s.decode(s.do(http.MethodGet, "/api/transactions?type=expense", s.tokenA, nil), &expenses)
	s.Len(expenses, 2)

	rec := s.do(http.MethodGet, "/api/transactions?from=yesterday", s.tokenA, nil)
	s.Equal(http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodGet, "/api/transactions?from=2024-03-01&to=2024-01-01", s.tokenA, nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *APITestSuite) TestUpdateTransactionPartial() {
	t := s.createTx(s.tokenA, map[string]any{
		"amount": 10, "type": "expense", "transactionDate": "2024-05-01", "categoryName": "Food", "note": "n",
	})
	path := "/api/transactions/" + itoa(t.ID)

	rec := s.do(http.MethodPut, path, s.tokenA, `{"amount": "20.005"}`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var got core.Transaction
	s.decode(rec, &got)
	s.Equal(int64(2001), got.Amount.Cents)
	s.Equal(core.Expense, got.Type)
	s.Require().NotNil(got.Category)
	s.Require().NotNil(got.Note)

	rec = s.do(http.MethodPut, path, s.tokenA, `{"note": null, "categoryName": null}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	got = core.Transaction{}
	s.decode(rec, &got)
	s.Nil(got.Note)
	s.Nil(got.Category)
	s.Nil(got.CategoryID)

	rec = s.do(http.MethodPut, path, s.tokenA, `{"categoryName": "Travel", "type": "income"}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	got = core.Transaction{}
	s.decode(rec, &got)
	s.Equal(core.Income, got.Type)
	s.Require().NotNil(got.Category)
	s.Equal("Travel", got.Category.Name)

	rec = s.do(http.MethodPut, path, s.tokenA, `{"type": "gift"}`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *APITestSuite) TestOtherUsersTransactionsAreNotFound() {
	t := s.createTx(s.tokenA, map[string]any{"amount": 10, "type": "expense", "transactionDate": "2024-05-01"})
	path := "/api/transactions/" + itoa(t.ID)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rec := s.do(method, path, s.tokenB, `{"amount": 1}`)
		s.Equal(http.StatusNotFound, rec.Code, method)
		s.Equal("Not found", s.errorOf(rec))
		s.NotContains(rec.Body.String(), "amount")
	}

	rec := s.do(http.MethodDelete, path, s.tokenA, nil)
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"success":true}`, rec.Body.String())

	rec = s.do(http.MethodGet, path, s.tokenA, nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *APITestSuite) TestDeleteCategoryDetachesTransactions() {
	t := s.createTx(s.tokenA, map[string]any{"amount": 10, "type": "expense", "transactionDate": "2024-05-01", "categoryName": "Food"})

	rec := s.do(http.MethodDelete, "/api/categories/"+itoa(*t.CategoryID), s.tokenA, nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var got core.Transaction
	s.decode(s.do(http.MethodGet, "/api/transactions/"+itoa(t.ID), s.tokenA, nil), &got)
	s.Nil(got.CategoryID)
	s.Nil(got.Category)

	var list []core.Category
	s.decode(s.do(http.MethodGet, "/api/categories", s.tokenA, nil), &list)
	s.Empty(list)
}

func (s *APITestSuite) TestSumByCategory() {
	s.createTx(s.tokenA, map[string]any{"amount": 10, "type": "expense", "transactionDate": "2024-05-01", "categoryName": "Food"})
	s.createTx(s.tokenA, map[string]any{"amount": 5.5, "type": "expense", "transactionDate": "2024-05-02", "categoryName": "Food"})
	s.createTx(s.tokenA, map[string]any{"amount": 7, "type": "income", "transactionDate": "2024-05-03"})
	s.createTx(s.tokenB, map[string]any{"amount": 1000, "type": "expense", "transactionDate": "2024-05-01", "categoryName": "Food"})

	rec := s.do(http.MethodGet, "/api/analytics/sum-by-category", s.tokenA, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var totals []core.CategoryTotal
	s.decode(rec, &totals)
	s.Require().Len(totals, 2)
	s.Equal("Food", totals[0].Category)
	s.Equal(int64(1550), totals[0].Total.Cents)
	s.Equal(core.UncategorizedName, totals[1].Category)
	s.Nil(totals[1].CategoryID)
	s.Equal(int64(700), totals[1].Total.Cents)

	rec = s.do(http.MethodGet, "/api/analytics/sum-by-category?type=income", s.tokenA, nil)
	totals = nil
	s.decode(rec, &totals)
	s.Require().Len(totals, 1)
	s.Equal(core.UncategorizedName, totals[0].Category)
}

func (s *APITestSuite) TestMonthlySummary() {
	s.createTx(s.tokenA, map[string]any{"amount": 100, "type": "expense", "transactionDate": "2024-03-15"})
	s.createTx(s.tokenA, map[string]any{"amount": 50, "type": "expense", "transactionDate": "2024-03-20"})
	s.createTx(s.tokenA, map[string]any{"amount": 1, "type": "expense", "transactionDate": "2023-12-31"})

	rec := s.do(http.MethodGet, "/api/analytics/monthly-summary?year=2024", s.tokenA, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var months []core.MonthTotal
	s.decode(rec, &months)
	s.Require().Len(months, 12)
	for _, m := range months {
		if m.Month == 3 {
			s.Equal(int64(15000), m.Total.Cents)
		} else {
			s.Equal(int64(0), m.Total.Cents, "month %d", m.Month)
		}
	}
	s.Contains(rec.Body.String(), `{"month":3,"total":150.00}`)

	rec = s.do(http.MethodGet, "/api/analytics/monthly-summary?year=abc", s.tokenA, nil)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("Invalid year", s.errorOf(rec))

	rec = s.do(http.MethodGet, "/api/analytics/monthly-summary", s.tokenA, nil)
	s.Equal(http.StatusOK, rec.Code)
	months = nil
	s.decode(rec, &months)
	s.Len(months, 12)
}

func TestAuthEndpointsAreRateLimited(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "rl.db"))
	require.NoError(t, err)
	defer repo.Close()
	srv := newTestServer(t, repo, 2)

	login := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@b.c","password":"x"}`))
		req.RemoteAddr = "203.0.113.10:5555"
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, login().Code)
	assert.Equal(t, http.StatusUnauthorized, login().Code)
	rec := login()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"Too many requests"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRecoverMiddleware(t *testing.T) {
	s := &Server{logger: log.Discard()}
	h := s.recoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("boom"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/x", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
}
