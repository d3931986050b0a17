package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"retailpos/backend/internal/service"
	"retailpos/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager
// and real Service so handler tests exercise the complete request path.
// The seeded store ships admin/cashier/client accounts with the default
// dev passwords.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil, time.Second)
	auth := NewAuthManager("test-secret-test-secret-test-secret!", time.Hour, repo, nil)

	return New(svc, auth, "*")
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func loginAs(t *testing.T, handler http.Handler, login string, password string) string {
	t.Helper()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"login":    login,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d (%s)", login, rec.Code, rec.Body.String())
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if body.AccessToken == "" {
		t.Fatalf("empty access token for %s", login)
	}
	return body.AccessToken
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestClientCannotReachStaffRoutes(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "client", "client123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for client on staff route, got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/checkout", token, map[string]any{})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for client on checkout, got %d", rec.Code)
	}
}

func TestCheckoutFlow(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	cashierToken := loginAs(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/checkout", cashierToken, map[string]any{
		"items": []map[string]any{
			{"product_id": 1, "qty": 2, "unit_price_cents": 8900},
		},
		"discount_percent": 10,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Sale struct {
			Reference     string `json:"reference"`
			TotalCents    int64  `json:"total_cents"`
			DiscountCents int64  `json:"discount_cents"`
			FinalCents    int64  `json:"final_cents"`
		} `json:"sale"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode checkout response: %v", err)
	}
	if !strings.HasPrefix(body.Sale.Reference, "CHK") {
		t.Fatalf("expected CHK reference, got %q", body.Sale.Reference)
	}
	if body.Sale.TotalCents != 17800 || body.Sale.DiscountCents != 1780 || body.Sale.FinalCents != 16020 {
		t.Fatalf("unexpected totals: %+v", body.Sale)
	}

	// The cashier sees the sale in their own history.
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales", cashierToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing sales, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), body.Sale.Reference) {
		t.Fatalf("expected reference %s in sales list", body.Sale.Reference)
	}
}

func TestCheckoutInsufficientStockReturnsConflict(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	cashierToken := loginAs(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/checkout", cashierToken, map[string]any{
		"items": []map[string]any{
			{"product_id": 1, "qty": 100000, "unit_price_cents": 8900},
		},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestSelfServiceCartFlow(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	clientToken := loginAs(t, handler, "client", "client123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/cart", clientToken, map[string]any{
		"product_id": 1, "qty": 2,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add to cart failed: %d (%s)", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/cart", clientToken, map[string]any{
		"product_id": 2, "qty": 1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("second add to cart failed: %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/cart/checkout", clientToken, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("self-service checkout failed: %d (%s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Sale struct {
			Reference     string `json:"reference"`
			DiscountCents int64  `json:"discount_cents"`
		} `json:"sale"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode checkout response: %v", err)
	}
	// Seeded prices: 2 x 8900 + 1 x 5500 = 23300; 3 items is the 5% tier.
	if body.Sale.DiscountCents != 1165 {
		t.Fatalf("expected tier discount 1165, got %d", body.Sale.DiscountCents)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/cart", clientToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cart fetch failed: %d", rec.Code)
	}
	var cart struct {
		Items []any `json:"items"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&cart); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected drained cart, got %d items", len(cart.Items))
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/cart/checkout", clientToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on empty cart checkout, got %d", rec.Code)
	}
}

func TestSalesExportIsQuotedCSV(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	adminToken := loginAs(t, handler, "admin", "admin123")
	cashierToken := loginAs(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/checkout", cashierToken, map[string]any{
		"items": []map[string]any{{"product_id": 1, "qty": 1, "unit_price_cents": 8900}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout failed: %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/export", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export failed: %d (%s)", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("expected text/csv content type, got %q", ct)
	}
	firstLine, _, _ := strings.Cut(rec.Body.String(), "\n")
	for _, field := range strings.Split(firstLine, ";") {
		if !strings.HasPrefix(field, `"`) || !strings.HasSuffix(field, `"`) {
			t.Fatalf("expected every header field quoted, got %q", field)
		}
	}
}

func TestProfitReportEndpoint(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	adminToken := loginAs(t, handler, "admin", "admin123")
	cashierToken := loginAs(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/checkout", cashierToken, map[string]any{
		"items": []map[string]any{{"product_id": 1, "qty": 2, "unit_price_cents": 8900}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout failed: %d", rec.Code)
	}

	today := time.Now().UTC().Format("2006-01-02")
	rec = doJSON(t, handler, http.MethodGet,
		fmt.Sprintf("/api/v1/reports/profit?start=%s&end=%s", today, today), adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("profit report failed: %d (%s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Report struct {
			TotalRevenueCents int64 `json:"total_revenue_cents"`
		} `json:"report"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if body.Report.TotalRevenueCents != 17800 {
		t.Fatalf("expected revenue 17800, got %d", body.Report.TotalRevenueCents)
	}

	// Non-admins are kept out of reporting.
	rec = doJSON(t, handler, http.MethodGet,
		fmt.Sprintf("/api/v1/reports/profit?start=%s&end=%s", today, today), cashierToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier on reports, got %d", rec.Code)
	}
}

func TestUserManagement(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	adminToken := loginAs(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/users", adminToken, map[string]string{
		"login":    "cashier2",
		"password": "cashier2pass",
		"role":     "cashier",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create user failed: %d (%s)", rec.Code, rec.Body.String())
	}

	if token := loginAs(t, handler, "cashier2", "cashier2pass"); token == "" {
		t.Fatalf("new cashier cannot log in")
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/users", adminToken, map[string]string{
		"login":    "cashier2",
		"password": "cashier2pass",
		"role":     "cashier",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate login, got %d", rec.Code)
	}
}
