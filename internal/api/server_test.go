package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/safar/go-stock-ledger/internal/cart"
	"github.com/safar/go-stock-ledger/internal/models"
	"github.com/safar/go-stock-ledger/internal/purchase"
)

type testEnv struct {
	handler  http.Handler
	ledger   *fakeLedger
	catalog  *fakeCatalog
	activity *fakeActivity
	carts    *cart.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := newFakeLedger()
	cat := newFakeCatalog()
	activity := &fakeActivity{}
	carts := cart.NewMemoryStore(time.Hour)

	srv := NewServer(ledger, purchase.New(ledger, logger), cat, activity, carts, Config{LowStockThreshold: 5}, logger)
	return &testEnv{handler: srv.Handler(), ledger: ledger, catalog: cat, activity: activity, carts: carts}
}

type request struct {
	method string
	path   string
	body   string
	role   string
	user   string
	header map[string]string
	cookie *http.Cookie
}

func (e *testEnv) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if req.body != "" {
		body = strings.NewReader(req.body)
	}
	r := httptest.NewRequest(req.method, req.path, body)
	if req.user == "" {
		req.user = "user-1"
	}
	if req.user != "-" {
		r.Header.Set(headerUserID, req.user)
		r.Header.Set(headerUserName, "Test User")
		r.Header.Set(headerUserRole, req.role)
	}
	for k, v := range req.header {
		r.Header.Set(k, v)
	}
	if req.cookie != nil {
		r.AddCookie(req.cookie)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, r)
	return rec
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
}

func sessionCookieFrom(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	t.Fatal("Expected a session cookie")
	return nil
}

func TestHealthNeedsNoIdentity(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, request{method: http.MethodGet, path: "/health", user: "-"})
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

func TestAuthorization(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.seed("Widget", 10, "2.50", true)

	tests := []struct {
		name string
		req  request
		want int
	}{
		{"missing identity", request{method: http.MethodGet, path: "/items", user: "-"}, http.StatusUnauthorized},
		{"oversized user id", request{method: http.MethodGet, path: "/items", user: strings.Repeat("u", 65)}, http.StatusUnauthorized},
		{"staff lists items", request{method: http.MethodGet, path: "/items", role: models.RoleStaff}, http.StatusOK},
		{"staff creates item", request{method: http.MethodPost, path: "/items", role: models.RoleStaff,
			body: `{"name":"Lamp","category_id":1,"quantity":3,"price":"12.00","supplier":"Acme"}`}, http.StatusCreated},
		{"unknown role cannot create", request{method: http.MethodPost, path: "/items", role: "Guest",
			body: `{"name":"Lamp","category_id":1,"quantity":3,"price":"12.00","supplier":"Acme"}`}, http.StatusForbidden},
		{"staff cannot delete", request{method: http.MethodDelete, path: "/items/1", role: models.RoleStaff}, http.StatusForbidden},
		{"staff cannot view dashboard", request{method: http.MethodGet, path: "/dashboard", role: models.RoleStaff}, http.StatusForbidden},
		{"admin views dashboard", request{method: http.MethodGet, path: "/dashboard", role: models.RoleAdmin}, http.StatusOK},
		{"staff cannot create category", request{method: http.MethodPost, path: "/categories", role: models.RoleStaff,
			body: `{"name":"Toys"}`}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.req)
			if rec.Code != tt.want {
				t.Errorf("Expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestBuyWidget(t *testing.T) {
	env := newTestEnv(t)
	id := env.ledger.seed("Widget", 10, "2.50", true)
	path := "/items/" + itoa(id) + "/buy"

	rec := env.do(t, request{method: http.MethodPost, path: path, body: `{"quantity":4}`})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var receipt models.Receipt
	decodeBody(t, rec, &receipt)
	if receipt.Remaining != 6 {
		t.Errorf("Expected remaining 6, got %d", receipt.Remaining)
	}
	if !receipt.LineTotal.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected line total 10.00, got %s", receipt.LineTotal)
	}

	rec = env.do(t, request{method: http.MethodPost, path: path, body: `{"quantity":7}`})
	if rec.Code != http.StatusConflict {
		t.Fatalf("Expected 409, got %d", rec.Code)
	}
	var conflict struct {
		Available int `json:"available"`
	}
	decodeBody(t, rec, &conflict)
	if conflict.Available != 6 {
		t.Errorf("Expected available 6, got %d", conflict.Available)
	}

	item, _ := env.ledger.Find(context.Background(), id)
	if item.Quantity != 6 {
		t.Errorf("Expected quantity 6, got %d", item.Quantity)
	}
}

func TestBuyErrors(t *testing.T) {
	env := newTestEnv(t)
	id := env.ledger.seed("Widget", 10, "2.50", true)
	path := "/items/" + itoa(id) + "/buy"

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"zero quantity", path, `{"quantity":0}`, http.StatusUnprocessableEntity},
		{"unknown item", "/items/999/buy", `{"quantity":1}`, http.StatusNotFound},
		{"malformed id", "/items/abc/buy", `{"quantity":1}`, http.StatusBadRequest},
		{"malformed body", path, `{"quantity":`, http.StatusBadRequest},
		{"empty body buys one", path, ``, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, request{method: http.MethodPost, path: tt.path, body: tt.body})
			if rec.Code != tt.want {
				t.Errorf("Expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestBuyFormHidesInactiveItems(t *testing.T) {
	env := newTestEnv(t)
	active := env.ledger.seed("Widget", 10, "2.50", true)
	inactive := env.ledger.seed("Retired", 3, "1.00", false)

	rec := env.do(t, request{method: http.MethodGet, path: "/items/" + itoa(active) + "/buy"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var form buyForm
	decodeBody(t, rec, &form)
	if form.Available != 10 || form.Quantity != 1 {
		t.Errorf("Expected available 10 and default quantity 1, got %d and %d", form.Available, form.Quantity)
	}

	rec = env.do(t, request{method: http.MethodGet, path: "/items/" + itoa(inactive) + "/buy"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for inactive item, got %d", rec.Code)
	}
}

func TestAdjustHonoursIfMatch(t *testing.T) {
	env := newTestEnv(t)
	id := env.ledger.seed("Widget", 10, "2.50", true)
	path := "/items/" + itoa(id)
	body := `{"name":"Widget","category_id":1,"quantity":12,"price":"2.50","supplier":"Acme"}`

	rec := env.do(t, request{method: http.MethodPut, path: path, body: body, role: models.RoleAdmin,
		header: map[string]string{"If-Match": `"7"`}})
	if rec.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for stale version, got %d", rec.Code)
	}

	rec = env.do(t, request{method: http.MethodPut, path: path, body: body, role: models.RoleAdmin,
		header: map[string]string{"If-Match": `"1"`}})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if etag := rec.Header().Get("ETag"); etag != `"2"` {
		t.Errorf(`Expected ETag "2", got %s`, etag)
	}

	rec = env.do(t, request{method: http.MethodPut, path: path, body: body, role: models.RoleAdmin,
		header: map[string]string{"If-Match": "not-a-version"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed If-Match, got %d", rec.Code)
	}
}

type cartResponse struct {
	Items []struct {
		ItemID    int64           `json:"item_id"`
		Quantity  int             `json:"quantity"`
		LineTotal decimal.Decimal `json:"line_total"`
	} `json:"items"`
	Total decimal.Decimal `json:"total"`
}

func TestCartAddMergesAndChecksOut(t *testing.T) {
	env := newTestEnv(t)
	chair := env.ledger.seed("Chair", 5, "50.00", true)

	rec := env.do(t, request{method: http.MethodGet, path: "/cart"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	cookie := sessionCookieFrom(t, rec)
	if !cookie.HttpOnly || cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("Expected HttpOnly SameSite=Lax cookie, got %+v", cookie)
	}

	env.do(t, request{method: http.MethodPost, path: "/cart/add", cookie: cookie,
		body: `{"item_id":` + itoa(chair) + `,"quantity":1}`})
	rec = env.do(t, request{method: http.MethodPost, path: "/cart/add", cookie: cookie,
		body: `{"item_id":` + itoa(chair) + `,"quantity":2}`})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var view cartResponse
	decodeBody(t, rec, &view)
	if len(view.Items) != 1 || view.Items[0].Quantity != 3 {
		t.Fatalf("Expected one line with quantity 3, got %+v", view.Items)
	}
	if !view.Total.Equal(decimal.NewFromInt(150)) {
		t.Errorf("Expected total 150.00, got %s", view.Total)
	}

	item, _ := env.ledger.Find(context.Background(), chair)
	if item.Quantity != 5 {
		t.Errorf("Expected adding to cart to leave stock at 5, got %d", item.Quantity)
	}

	rec = env.do(t, request{method: http.MethodPost, path: "/cart/checkout", cookie: cookie})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Committed int          `json:"committed"`
		Cart      cartResponse `json:"cart"`
	}
	decodeBody(t, rec, &result)
	if result.Committed != 1 {
		t.Errorf("Expected 1 committed line, got %d", result.Committed)
	}
	if len(result.Cart.Items) != 0 {
		t.Errorf("Expected empty cart after checkout, got %d lines", len(result.Cart.Items))
	}

	item, _ = env.ledger.Find(context.Background(), chair)
	if item.Quantity != 2 {
		t.Errorf("Expected stock 2 after checkout, got %d", item.Quantity)
	}
}

func TestCheckoutKeepsRejectedLines(t *testing.T) {
	env := newTestEnv(t)
	widget := env.ledger.seed("Widget", 10, "2.50", true)
	chair := env.ledger.seed("Chair", 1, "50.00", true)

	rec := env.do(t, request{method: http.MethodPost, path: "/cart/add",
		body: `{"item_id":` + itoa(widget) + `,"quantity":2}`})
	cookie := sessionCookieFrom(t, rec)
	env.do(t, request{method: http.MethodPost, path: "/cart/add", cookie: cookie,
		body: `{"item_id":` + itoa(chair) + `,"quantity":3}`})

	rec = env.do(t, request{method: http.MethodPost, path: "/cart/checkout", cookie: cookie})
	var result struct {
		Lines []purchase.LineResult `json:"lines"`
		Cart  cartResponse          `json:"cart"`
	}
	decodeBody(t, rec, &result)

	if len(result.Lines) != 2 {
		t.Fatalf("Expected 2 line results, got %d", len(result.Lines))
	}
	if len(result.Cart.Items) != 1 || result.Cart.Items[0].ItemID != chair {
		t.Errorf("Expected only the chair line to remain, got %+v", result.Cart.Items)
	}

	rec = env.do(t, request{method: http.MethodGet, path: "/cart", cookie: cookie})
	var persisted cartResponse
	decodeBody(t, rec, &persisted)
	if len(persisted.Items) != 1 {
		t.Errorf("Expected persisted cart to keep 1 line, got %d", len(persisted.Items))
	}
}

func TestCartRemoveAndClear(t *testing.T) {
	env := newTestEnv(t)
	widget := env.ledger.seed("Widget", 10, "2.50", true)

	rec := env.do(t, request{method: http.MethodPost, path: "/cart/add",
		body: `{"item_id":` + itoa(widget) + `}`})
	cookie := sessionCookieFrom(t, rec)

	rec = env.do(t, request{method: http.MethodPost, path: "/cart/remove", cookie: cookie, body: `{"item_id":424242}`})
	var view cartResponse
	decodeBody(t, rec, &view)
	if len(view.Items) != 1 {
		t.Errorf("Expected removing an absent item to be a no-op, got %d lines", len(view.Items))
	}

	rec = env.do(t, request{method: http.MethodPost, path: "/cart/clear", cookie: cookie})
	view = cartResponse{}
	decodeBody(t, rec, &view)
	if len(view.Items) != 0 || !view.Total.IsZero() {
		t.Errorf("Expected empty cart, got %+v", view)
	}

	rec = env.do(t, request{method: http.MethodPost, path: "/cart/checkout", cookie: cookie})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for empty checkout, got %d", rec.Code)
	}
}

func TestCartAddRejectsOverflowingQuantity(t *testing.T) {
	env := newTestEnv(t)
	widget := env.ledger.seed("Widget", 10, "2.50", true)
	add := func(cookie *http.Cookie, qty int) *httptest.ResponseRecorder {
		return env.do(t, request{method: http.MethodPost, path: "/cart/add", cookie: cookie,
			body: `{"item_id":` + itoa(widget) + `,"quantity":` + strconv.Itoa(qty) + `}`})
	}

	if rec := add(nil, math.MaxInt32+1); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for a quantity above the line cap, got %d", rec.Code)
	}

	rec := add(nil, math.MaxInt32-1)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	cookie := sessionCookieFrom(t, rec)

	if rec := add(cookie, 2); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 when the merge would pass the line cap, got %d", rec.Code)
	}

	rec = env.do(t, request{method: http.MethodGet, path: "/cart", cookie: cookie})
	var view cartResponse
	decodeBody(t, rec, &view)
	if len(view.Items) != 1 || view.Items[0].Quantity != math.MaxInt32-1 {
		t.Errorf("Expected the line to stay at %d, got %+v", math.MaxInt32-1, view.Items)
	}
	if view.Total.IsNegative() {
		t.Errorf("Expected a non-negative total, got %s", view.Total)
	}
}

func TestCategoryErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, request{method: http.MethodDelete, path: "/categories/1", role: models.RoleAdmin})
	if rec.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for category with items, got %d", rec.Code)
	}
	var body struct {
		Relationship string `json:"relationship"`
	}
	decodeBody(t, rec, &body)
	if body.Relationship != "stock_items" {
		t.Errorf("Expected relationship stock_items, got %q", body.Relationship)
	}

	rec = env.do(t, request{method: http.MethodPost, path: "/categories", role: models.RoleAdmin, body: `{"name":"Goods"}`})
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate name, got %d", rec.Code)
	}

	rec = env.do(t, request{method: http.MethodDelete, path: "/categories/2", role: models.RoleAdmin})
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for empty category, got %d", rec.Code)
	}

	rec = env.do(t, request{method: http.MethodGet, path: "/categories/2"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rec.Code)
	}
}

func TestActivityEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, request{method: http.MethodPost, path: "/login", role: models.RoleStaff, user: "staff-7"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	rec = env.do(t, request{method: http.MethodGet, path: "/users/staff-7/activity", role: models.RoleAdmin})
	var logs []models.ActivityLog
	decodeBody(t, rec, &logs)
	if len(logs) != 1 || logs[0].Action != models.ActionLogin {
		t.Errorf("Expected one Login entry, got %+v", logs)
	}

	rec = env.do(t, request{method: http.MethodGet, path: "/activity?cursor=not-base64!", role: models.RoleAdmin})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad cursor, got %d", rec.Code)
	}

	rec = env.do(t, request{method: http.MethodGet, path: "/activity?page=1", role: models.RoleAdmin})
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

func TestLogoutExpiresSessionAndRecordsActivity(t *testing.T) {
	env := newTestEnv(t)
	widget := env.ledger.seed("Widget", 10, "2.50", true)

	rec := env.do(t, request{method: http.MethodPost, path: "/cart/add", body: `{"item_id":` + itoa(widget) + `}`})
	cookie := sessionCookieFrom(t, rec)

	rec = env.do(t, request{method: http.MethodPost, path: "/logout", cookie: cookie})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}

	c, _, err := env.carts.Load(context.Background(), cookie.Value)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !c.IsEmpty() {
		t.Errorf("Expected cart to be emptied on logout")
	}
	if len(env.activity.entries) != 1 || env.activity.entries[0].Action != models.ActionLogout {
		t.Errorf("Expected one Logout entry, got %+v", env.activity.entries)
	}
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.seed("Widget", 10, "2.50", true)
	env.ledger.seed("Chair", 2, "50.00", true)

	rec := env.do(t, request{method: http.MethodGet, path: "/dashboard", role: models.RoleAdmin})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var d dashboard
	decodeBody(t, rec, &d)
	if d.TotalItems != 2 || d.LowStockCount != 1 {
		t.Errorf("Expected 2 items and 1 low stock, got %d and %d", d.TotalItems, d.LowStockCount)
	}
	if d.TotalValue != "125.00" {
		t.Errorf("Expected total value 125.00, got %s", d.TotalValue)
	}
	if d.ActiveCategories != 2 {
		t.Errorf("Expected 2 active categories, got %d", d.ActiveCategories)
	}
	if len(d.LowStockItems) != 1 {
		t.Errorf("Expected 1 low stock item, got %d", len(d.LowStockItems))
	}
}

func TestParseIfMatch(t *testing.T) {
	tests := []struct {
		header  string
		want    int
		pinned  bool
		wantErr bool
	}{
		{"", 0, false, false},
		{"*", 0, false, false},
		{`"3"`, 3, true, false},
		{`W/"4"`, 4, true, false},
		{"5", 5, true, false},
		{`"abc"`, 0, false, true},
	}

	for _, tt := range tests {
		got, err := parseIfMatch(tt.header)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseIfMatch(%q) error = %v, wantErr %v", tt.header, err, tt.wantErr)
			continue
		}
		if (got != nil) != tt.pinned {
			t.Errorf("parseIfMatch(%q) pinned = %v, want %v", tt.header, got != nil, tt.pinned)
			continue
		}
		if got != nil && *got != tt.want {
			t.Errorf("parseIfMatch(%q) = %d, want %d", tt.header, *got, tt.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	if got := clientIP(r); got != "10.0.0.9" {
		t.Errorf("Expected 10.0.0.9, got %s", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if got := clientIP(r); got != "203.0.113.5" {
		t.Errorf("Expected 203.0.113.5, got %s", got)
	}

	r.Header.Set("X-Forwarded-For", "not-an-ip-but-a-very-long-forwarded-for-value-0123456789, 10.0.0.1")
	if got := clientIP(r); got != "10.0.0.9" {
		t.Errorf("Expected fallback to 10.0.0.9 for a non-address hop, got %s", got)
	}

	r.Header.Set("X-Forwarded-For", "2001:db8::1")
	if got := clientIP(r); got != "2001:db8::1" {
		t.Errorf("Expected 2001:db8::1, got %s", got)
	}
}
