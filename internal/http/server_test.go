package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"cassa/internal/core"
	"cassa/internal/services"
	"cassa/internal/storage"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type testServer struct {
	*Server
	repo  *storage.SQLiteRepository
	clock *core.MockClock
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "cassa.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	clock := core.NewMockClock(testNow)
	inventory := services.NewInventoryService(repo, clock)
	expenses := services.NewExpenseService(repo, clock)
	income := services.NewIncomeService(repo, clock)
	analytics := services.NewAnalyticsService(expenses, income, inventory, clock)

	srv := NewServer(":0", repo, Services{
		Inventory: inventory,
		Cart:      services.NewCartService(repo, clock, services.WithStrictStock(true)),
		Expenses:  expenses,
		Income:    income,
		Analytics: analytics,
		Reports:   services.NewReportService(analytics, expenses, clock),
	}, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return &testServer{Server: srv, repo: repo, clock: clock}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return v
}

func (ts *testServer) createProduct(t *testing.T, body string) int64 {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/products", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create product: status %d body %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[struct {
		ProductID int64 `json:"product_id"`
	}](t, rec)
	return resp.ProductID
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, Options{})

	tests := []struct {
		path       string
		wantStatus string
	}{
		{"/healthz", "ok"},
		{"/readyz", "ready"},
		{"/api/health", "healthy"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, tt.path, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			body := decodeBody[map[string]any](t, rec)
			if body["status"] != tt.wantStatus {
				t.Errorf("status field = %v, want %q", body["status"], tt.wantStatus)
			}
		})
	}
}

func TestReadyzFailsWhenStoreIsDown(t *testing.T) {
	ts := newTestServer(t, Options{})
	if err := ts.repo.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rec := ts.do(t, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestWidgetCheckoutScenario(t *testing.T) {
	ts := newTestServer(t, Options{})

	id := ts.createProduct(t, `{"name":"Widget","price":100,"quantity":10}`)

	rec := ts.do(t, http.MethodPost, "/api/cart", `{"product_id":`+itoa(id)+`,"quantity":3}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add to cart: status %d body %s", rec.Code, rec.Body.String())
	}

	summary := decodeBody[core.CartSummary](t, ts.do(t, http.MethodGet, "/api/cart/summary", ""))
	if summary.TotalPrice.Cents != 30000 || summary.ItemCount != 1 || summary.TotalQuantity != 3 {
		t.Fatalf("summary = %+v, want total 300.00 with 1 line of 3", summary)
	}

	rec = ts.do(t, http.MethodPost, "/api/cart/checkout", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("checkout: status %d body %s", rec.Code, rec.Body.String())
	}
	receipt := decodeBody[struct {
		Success       bool    `json:"success"`
		TransactionID int64   `json:"transaction_id"`
		TotalAmount   float64 `json:"total_amount"`
		ItemsCount    int     `json:"items_count"`
	}](t, rec)
	if !receipt.Success || receipt.TransactionID != 1 || receipt.TotalAmount != 300 || receipt.ItemsCount != 1 {
		t.Errorf("receipt = %+v", receipt)
	}

	p := decodeBody[core.Product](t, ts.do(t, http.MethodGet, "/api/products/"+itoa(id), ""))
	if p.Quantity != 7 {
		t.Errorf("stock = %d, want 7", p.Quantity)
	}

	if body := strings.TrimSpace(ts.do(t, http.MethodGet, "/api/cart", "").Body.String()); body != "[]" {
		t.Errorf("cart = %s, want []", body)
	}

	txs := decodeBody[[]core.Transaction](t, ts.do(t, http.MethodGet, "/api/transactions", ""))
	if len(txs) != 1 || txs[0].TotalAmount.Cents != 30000 {
		t.Errorf("transactions = %+v", txs)
	}
}

func TestNotFoundVersusEmptyList(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(t, http.MethodGet, "/api/products/42", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["error"] != core.ErrProductNotFound.Error() {
		t.Errorf("error = %v", body["error"])
	}

	rec = ts.do(t, http.MethodGet, "/api/products", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("list = %d %s, want 200 []", rec.Code, rec.Body.String())
	}
}

func TestErrorStatusMapping(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.createProduct(t, `{"name":"Widget","price":"2.50","quantity":2}`)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"malformed json", http.MethodPost, "/api/products", `{"name":`, http.StatusBadRequest},
		{"empty body", http.MethodPost, "/api/expenses", ``, http.StatusBadRequest},
		{"bad path id", http.MethodDelete, "/api/expenses/abc", ``, http.StatusBadRequest},
		{"bad days", http.MethodGet, "/api/expenses?days=soon", ``, http.StatusBadRequest},
		{"missing name", http.MethodPost, "/api/products", `{"price":1}`, http.StatusUnprocessableEntity},
		{"missing price", http.MethodPost, "/api/products", `{"name":"Gadget"}`, http.StatusUnprocessableEntity},
		{"invalid amount", http.MethodPost, "/api/expenses", `{"category":"Food","amount":"lots"}`, http.StatusUnprocessableEntity},
		{"amount out of range", http.MethodPost, "/api/expenses", `{"category":"Food","amount":1e20}`, http.StatusUnprocessableEntity},
		{"bad date", http.MethodPost, "/api/income", `{"source":"Job","amount":10,"date":"yesterday"}`, http.StatusUnprocessableEntity},
		{"empty update", http.MethodPut, "/api/products/" + itoa(id), `{}`, http.StatusUnprocessableEntity},
		{"unknown update field", http.MethodPut, "/api/products/" + itoa(id), `{"colour":"red"}`, http.StatusBadRequest},
		{"zero days", http.MethodGet, "/api/analytics/summary?days=0", ``, http.StatusUnprocessableEntity},
		{"trend too long", http.MethodGet, "/api/analytics/trend?months=500", ``, http.StatusUnprocessableEntity},
		{"unknown product in cart", http.MethodPost, "/api/cart", `{"product_id":999}`, http.StatusNotFound},
		{"unknown cart line", http.MethodDelete, "/api/cart/7", ``, http.StatusNotFound},
		{"unknown expense", http.MethodDelete, "/api/expenses/7", ``, http.StatusNotFound},
		{"nothing to export", http.MethodGet, "/api/expenses/export.csv", ``, http.StatusNotFound},
		{"duplicate name", http.MethodPost, "/api/products", `{"name":"Widget","price":1}`, http.StatusConflict},
		{"empty cart checkout", http.MethodPost, "/api/cart/checkout", ``, http.StatusConflict},
		{"outbox disabled", http.MethodGet, "/api/outbox/stats", ``, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
			body := decodeBody[map[string]any](t, rec)
			if body["success"] != false {
				t.Errorf("success = %v, want false", body["success"])
			}
		})
	}
}

func TestInsufficientStockConflictCarriesDetails(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.createProduct(t, `{"name":"Widget","price":5,"quantity":2}`)

	rec := ts.do(t, http.MethodPost, "/api/cart", `{"product_id":`+itoa(id)+`,"quantity":3}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["requested"] != float64(3) || body["available"] != float64(2) || body["product_id"] != float64(id) {
		t.Errorf("body = %v", body)
	}

	cart := decodeBody[[]core.CartItem](t, ts.do(t, http.MethodGet, "/api/cart", ""))
	if len(cart) != 0 {
		t.Errorf("cart has %d lines after rejected add", len(cart))
	}
}

func TestProductInCartCannotBeDeleted(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.createProduct(t, `{"name":"Widget","price":5,"quantity":2}`)
	ts.do(t, http.MethodPost, "/api/cart", `{"product_id":`+itoa(id)+`}`)

	if rec := ts.do(t, http.MethodDelete, "/api/products/"+itoa(id), ""); rec.Code != http.StatusConflict {
		t.Fatalf("delete referenced product: status %d, want 409", rec.Code)
	}

	ts.do(t, http.MethodDelete, "/api/cart", "")
	if rec := ts.do(t, http.MethodDelete, "/api/products/"+itoa(id), ""); rec.Code != http.StatusOK {
		t.Fatalf("delete after clearing cart: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestUpdateProduct(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.createProduct(t, `{"name":"Widget","price":5,"quantity":2,"category":"Tools"}`)

	rec := ts.do(t, http.MethodPut, "/api/products/"+itoa(id), `{"price":7.5,"quantity":9}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d body %s", rec.Code, rec.Body.String())
	}

	p := decodeBody[core.Product](t, ts.do(t, http.MethodGet, "/api/products/"+itoa(id), ""))
	if p.Price.Cents != 750 || p.Quantity != 9 || p.Name != "Widget" || p.Category != "Tools" {
		t.Errorf("product = %+v", p)
	}
}

func TestLedgerEndpoints(t *testing.T) {
	ts := newTestServer(t, Options{})

	for _, body := range []string{
		`{"category":"Food","amount":50}`,
		`{"category":"Food","amount":30,"description":"lunch"}`,
		`{"category":"Rent","amount":700,"payment_method":"transfer"}`,
	} {
		rec := ts.do(t, http.MethodPost, "/api/expenses", body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create expense: status %d body %s", rec.Code, rec.Body.String())
		}
	}
	rec := ts.do(t, http.MethodPost, "/api/income", `{"source":"Salary","amount":2000}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create income: status %d body %s", rec.Code, rec.Body.String())
	}
	incomeID := decodeBody[map[string]any](t, rec)["income_id"]

	breakdown := decodeBody[map[string]float64](t, ts.do(t, http.MethodGet, "/api/analytics/expenses", ""))
	if breakdown["Food"] != 80 || breakdown["Rent"] != 700 {
		t.Errorf("breakdown = %v", breakdown)
	}

	summary := decodeBody[core.FinancialSummary](t, ts.do(t, http.MethodGet, "/api/analytics/summary", ""))
	if summary.Balance.Cents != 122000 || summary.SavingsRate != 61 {
		t.Errorf("summary = %+v", summary)
	}

	top := decodeBody[[]core.Expense](t, ts.do(t, http.MethodGet, "/api/analytics/top-expenses?limit=1", ""))
	if len(top) != 1 || top[0].Category != "Rent" {
		t.Errorf("top = %+v", top)
	}

	rec = ts.do(t, http.MethodDelete, "/api/income/"+itoa(int64(incomeID.(float64))), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete income: status %d", rec.Code)
	}
	income := decodeBody[[]core.Income](t, ts.do(t, http.MethodGet, "/api/income", ""))
	if len(income) != 0 {
		t.Errorf("income after delete = %+v", income)
	}
}

func TestExportExpensesCSV(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.do(t, http.MethodPost, "/api/expenses", `{"category":"Food","amount":12.5}`)

	rec := ts.do(t, http.MethodGet, "/api/expenses/export.csv?days=7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "expenses_7d.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "id,category,amount") || !strings.Contains(lines[1], "Food,12.50") {
		t.Errorf("csv = %q", rec.Body.String())
	}
}

func TestDashboardCacheInvalidatedOnMutation(t *testing.T) {
	ts := newTestServer(t, Options{DashboardCacheTTL: time.Minute})

	first := decodeBody[core.Dashboard](t, ts.do(t, http.MethodGet, "/api/dashboard", ""))
	if first.Summary.TotalExpenses.Cents != 0 {
		t.Fatalf("initial expenses = %v", first.Summary.TotalExpenses)
	}
	ts.do(t, http.MethodGet, "/api/dashboard", "")
	if hits := ts.appMetrics.cacheHits.Load(); hits != 1 {
		t.Errorf("cache hits = %d, want 1", hits)
	}

	ts.do(t, http.MethodPost, "/api/expenses", `{"category":"Food","amount":50}`)

	after := decodeBody[core.Dashboard](t, ts.do(t, http.MethodGet, "/api/dashboard", ""))
	if after.Summary.TotalExpenses.Cents != 5000 {
		t.Errorf("expenses after write = %v, want 50.00", after.Summary.TotalExpenses)
	}
	if misses := ts.appMetrics.cacheMisses.Load(); misses != 2 {
		t.Errorf("cache misses = %d, want 2", misses)
	}
}

func TestDashboardWithoutCache(t *testing.T) {
	ts := newTestServer(t, Options{})

	ts.do(t, http.MethodGet, "/api/dashboard?days=7", "")
	ts.do(t, http.MethodGet, "/api/dashboard?days=7", "")
	if hits := ts.appMetrics.cacheHits.Load(); hits != 0 {
		t.Errorf("cache hits = %d with caching disabled", hits)
	}
}

func TestRateLimitOnWrites(t *testing.T) {
	ts := newTestServer(t, Options{RateLimitPerMinute: 2})

	for i, want := range []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests} {
		rec := ts.do(t, http.MethodPost, "/api/expenses", `{"category":"Food","amount":1}`)
		if rec.Code != want {
			t.Fatalf("request %d: status = %d, want %d", i, rec.Code, want)
		}
		if want == http.StatusTooManyRequests && rec.Header().Get("Retry-After") == "" {
			t.Error("missing Retry-After header")
		}
	}

	// Reads are not limited.
	if rec := ts.do(t, http.MethodGet, "/api/expenses", ""); rec.Code != http.StatusOK {
		t.Errorf("GET after limit: status = %d", rec.Code)
	}
}

func TestResponsesCarryRequestIDAndSecurityHeaders(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(t, http.MethodGet, "/api/products", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff header")
	}
	if ct := rec.Header().Get("Content-Type"); ct != contentTypeJSON {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.createProduct(t, `{"name":"Widget","price":1}`)

	rec := ts.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, want := range []string{"http_requests_total 2", "mutations_total 1", "# TYPE checkouts_total counter"} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("metrics missing %q:\n%s", want, rec.Body.String())
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, Options{})
	rec := ts.do(t, http.MethodPatch, "/api/products", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
