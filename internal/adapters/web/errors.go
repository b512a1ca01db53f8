package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"billing-engine/internal/app"
	"billing-engine/internal/config"
	"billing-engine/internal/core"
)

// retryAfterSeconds is advertised on 503 responses caused by contention.
const retryAfterSeconds = "1"

type errorResponse struct {
	Error     string            `json:"error"`
	Code      string            `json:"code"`
	RequestID string            `json:"request_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeErrorResponse(w, status, errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	})
}

func writeErrorResponse(w http.ResponseWriter, status int, resp errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorMapping struct {
	target error
	status int
	code   string
}

// errorMappings is checked in order; the first match wins.
var errorMappings = []errorMapping{
	{core.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{core.ErrContention, http.StatusServiceUnavailable, "CONTENTION"},
	{core.ErrInsufficientStock, http.StatusConflict, "INSUFFICIENT_STOCK"},
	{core.ErrAlreadyVoided, http.StatusConflict, "ALREADY_VOIDED"},
	{core.ErrDuplicateLedgerEntry, http.StatusConflict, "DUPLICATE_ENTRY"},
	{core.ErrDuplicateNumber, http.StatusConflict, "DUPLICATE_NUMBER"},
	{core.ErrInvoiceNotDraft, http.StatusConflict, "INVOICE_NOT_DRAFT"},
	{core.ErrInvoiceNotPosted, http.StatusConflict, "INVOICE_NOT_POSTED"},
	{core.ErrInvoiceVoided, http.StatusConflict, "INVOICE_VOIDED"},
	{core.ErrInvalidQuantity, http.StatusUnprocessableEntity, "INVALID_QUANTITY"},
	{core.ErrInvalidAmount, http.StatusUnprocessableEntity, "INVALID_AMOUNT"},
	{core.ErrInconsistentTaxConfig, http.StatusUnprocessableEntity, "INCONSISTENT_TAX_CONFIG"},
	{core.ErrInvalidInvoice, http.StatusUnprocessableEntity, "INVALID_INVOICE"},
	{core.ErrMissingReference, http.StatusUnprocessableEntity, "MISSING_REFERENCE"},
	{core.ErrInvalidInput, http.StatusBadRequest, "VALIDATION_FAILED"},
}

// writeServiceError maps a service error to an HTTP response. Unknown errors
// are logged and reported as a generic 500 without internal detail.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{Error: err.Error(), RequestID: requestIDFromContext(r.Context())}

	var verr *app.ValidationError
	if errors.As(err, &verr) {
		resp.Code = "VALIDATION_FAILED"
		resp.Fields = verr.Fields
		writeErrorResponse(w, http.StatusBadRequest, resp)
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			if m.status == http.StatusServiceUnavailable {
				w.Header().Set("Retry-After", retryAfterSeconds)
			}
			resp.Code = m.code
			writeErrorResponse(w, m.status, resp)
			return
		}
	}

	config.LogError(h.logger, "web", "writeServiceError", r.Method+" "+r.URL.Path, resp.RequestID, err)
	writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
}
