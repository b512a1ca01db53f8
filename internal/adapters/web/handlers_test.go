package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"billing-engine/internal/adapters/web"
	"billing-engine/internal/app"
	"billing-engine/internal/core"
	"billing-engine/internal/store/memory"

	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type errorBody struct {
	Error     string            `json:"error"`
	Code      string            `json:"code"`
	RequestID string            `json:"request_id"`
	Fields    map[string]string `json:"fields"`
}

type testServer struct {
	t       *testing.T
	handler http.Handler
}

func newTestServer(t *testing.T, store core.Store, guard core.Guard) *testServer {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	svc := app.NewAppService(store, guard, logger)
	return &testServer{t: t, handler: web.NewHandler(svc, logger, "")}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) seed() (itemID, partyID int64) {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/items", map[string]any{
		"name": "Rice", "unit_price": "100", "tax_rate": "10", "opening_quantity": "10",
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	item := decode[core.Item](s.t, rec)

	rec = s.do(http.MethodPost, "/api/parties", map[string]any{"name": "Asha", "role": "CUSTOMER"})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	party := decode[core.Party](s.t, rec)
	return item.ID, party.ID
}

func sale(partyID, itemID int64, qty string) map[string]any {
	return map[string]any{
		"kind": "SALE", "party_id": partyID, "tax_mode": "OUT_TAX",
		"lines": []map[string]any{{"item_id": itemID, "quantity": qty}},
	}
}

func TestHandler_PostAndVoidInvoice(t *testing.T) {
	s := newTestServer(t, memory.New(core.DefaultRetryPolicy), nil)
	itemID, partyID := s.seed()

	rec := s.do(http.MethodPost, "/api/invoices", sale(partyID, itemID, "2"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	inv := decode[core.Invoice](t, rec)
	assert.Equal(t, core.StatusPosted, inv.Status)
	assert.True(t, decimal.RequireFromString("220").Equal(inv.GrandTotal))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = s.do(http.MethodGet, fmt.Sprintf("/api/items/%d", itemID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decimal.RequireFromString("8").Equal(decode[core.Item](t, rec).Quantity))

	rec = s.do(http.MethodPost, fmt.Sprintf("/api/invoices/%d/void", inv.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, fmt.Sprintf("/api/invoices/%d/void", inv.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_VOIDED", decode[errorBody](t, rec).Code)

	rec = s.do(http.MethodGet, fmt.Sprintf("/api/items/%d/history", itemID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[app.HistoryResult](t, rec).Entries, 3)
}

func TestHandler_DraftLifecycle(t *testing.T) {
	s := newTestServer(t, memory.New(core.DefaultRetryPolicy), nil)
	itemID, partyID := s.seed()

	rec := s.do(http.MethodPost, "/api/invoices/quote", sale(partyID, itemID, "1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decimal.RequireFromString("110").Equal(decode[core.Invoice](t, rec).GrandTotal))

	rec = s.do(http.MethodPost, "/api/invoices/drafts", sale(partyID, itemID, "1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	draft := decode[core.Invoice](t, rec)
	assert.Equal(t, core.StatusDraft, draft.Status)

	rec = s.do(http.MethodPut, fmt.Sprintf("/api/invoices/%d/lines", draft.ID), map[string]any{
		"lines": []map[string]any{{"item_id": itemID, "quantity": "3"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, fmt.Sprintf("/api/invoices/%d/post", draft.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decimal.RequireFromString("330").Equal(decode[core.Invoice](t, rec).GrandTotal))

	rec = s.do(http.MethodPut, fmt.Sprintf("/api/invoices/%d/lines", draft.ID), map[string]any{
		"lines": []map[string]any{{"item_id": itemID, "quantity": "1"}},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVOICE_NOT_DRAFT", decode[errorBody](t, rec).Code)
}

func TestHandler_ErrorMapping(t *testing.T) {
	s := newTestServer(t, memory.New(core.DefaultRetryPolicy), nil)
	itemID, partyID := s.seed()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"oversell", http.MethodPost, "/api/invoices", sale(partyID, itemID, "11"), http.StatusConflict, "INSUFFICIENT_STOCK"},
		{"zero quantity", http.MethodPost, "/api/invoices", sale(partyID, itemID, "0"), http.StatusUnprocessableEntity, "INVALID_QUANTITY"},
		{"bad tax mode", http.MethodPost, "/api/invoices", map[string]any{
			"kind": "SALE", "party_id": partyID, "tax_mode": "MAYBE",
			"lines": []map[string]any{{"item_id": itemID, "quantity": "1"}},
		}, http.StatusUnprocessableEntity, "INCONSISTENT_TAX_CONFIG"},
		{"unknown invoice", http.MethodGet, "/api/invoices/404", nil, http.StatusNotFound, "NOT_FOUND"},
		{"bad id", http.MethodGet, "/api/items/abc", nil, http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown field", http.MethodPost, "/api/parties", map[string]any{"name": "X", "role": "CUSTOMER", "nick": "x"}, http.StatusBadRequest, "BAD_REQUEST"},
		{"negative payment", http.MethodPost, fmt.Sprintf("/api/parties/%d/payments", partyID),
			map[string]any{"amount": "-1", "direction": "IN", "reference_id": "R1"}, http.StatusUnprocessableEntity, "INVALID_AMOUNT"},
		{"void unknown payment", http.MethodPost, fmt.Sprintf("/api/parties/%d/payments/NOPE/void", partyID), nil, http.StatusNotFound, "NOT_FOUND"},
		{"unknown lot", http.MethodPost, "/api/stock-lots/77/convert",
			map[string]any{"targets": []map[string]any{{"item_id": itemID, "quantity": "1"}}}, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decode[errorBody](t, rec)
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

func TestHandler_ValidationFieldsReported(t *testing.T) {
	s := newTestServer(t, memory.New(core.DefaultRetryPolicy), nil)

	rec := s.do(http.MethodPost, "/api/parties", map[string]any{"role": "VENDOR"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "VALIDATION_FAILED", body.Code)
	assert.Equal(t, "required", body.Fields["name"])
	assert.Equal(t, "oneof", body.Fields["role"])
}

func TestHandler_ConvertAndPayments(t *testing.T) {
	s := newTestServer(t, memory.New(core.DefaultRetryPolicy), nil)
	itemID, partyID := s.seed()

	rec := s.do(http.MethodPost, "/api/stock-lots", map[string]any{"source_ref": "GRN-1", "quantity": "10", "unit_cost": "50"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	lot := decode[core.StockLot](t, rec)

	convert := map[string]any{"reference_id": "C-1", "targets": []map[string]any{{"item_id": itemID, "quantity": "5"}}}
	rec = s.do(http.MethodPost, fmt.Sprintf("/api/stock-lots/%d/convert", lot.ID), convert)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	convert["reference_id"] = "C-2"
	convert["targets"] = []map[string]any{{"item_id": itemID, "quantity": "6"}}
	rec = s.do(http.MethodPost, fmt.Sprintf("/api/stock-lots/%d/convert", lot.ID), convert)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodGet, fmt.Sprintf("/api/stock-lots/%d", lot.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decimal.RequireFromString("5").Equal(decode[core.StockLot](t, rec).Quantity))

	pay := map[string]any{"amount": "40", "direction": "IN", "reference_id": "UPI-1"}
	rec = s.do(http.MethodPost, fmt.Sprintf("/api/parties/%d/payments", partyID), pay)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decimal.RequireFromString("-40").Equal(decode[core.Party](t, rec).Balance))

	rec = s.do(http.MethodPost, fmt.Sprintf("/api/parties/%d/payments", partyID), pay)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_ENTRY", decode[errorBody](t, rec).Code)

	rec = s.do(http.MethodPost, fmt.Sprintf("/api/parties/%d/payments/UPI-1/void", partyID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[core.Party](t, rec).Balance.IsZero())
}

type busyGuard struct{}

func (busyGuard) Acquire(context.Context, string) (func(), error) {
	return nil, fmt.Errorf("%w: key held", core.ErrContention)
}

func TestHandler_ContentionReturnsRetryAfter(t *testing.T) {
	store := memory.New(core.DefaultRetryPolicy)
	seeder := newTestServer(t, store, nil)
	itemID, partyID := seeder.seed()

	rec := seeder.do(http.MethodPost, "/api/invoices/drafts", sale(partyID, itemID, "1"))
	require.Equal(t, http.StatusCreated, rec.Code)
	draft := decode[core.Invoice](t, rec)

	s := newTestServer(t, store, busyGuard{})
	rec = s.do(http.MethodPost, fmt.Sprintf("/api/invoices/%d/post", draft.ID), nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "CONTENTION", decode[errorBody](t, rec).Code)
}

func TestHandler_Health(t *testing.T) {
	s := newTestServer(t, memory.New(core.DefaultRetryPolicy), nil)
	rec := s.do(http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
