package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"billing-engine/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc    app.ApplicationService
	logger *logrus.Logger
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, logger *logrus.Logger, allowedOrigins string) http.Handler {
	h := &Handler{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recoverer(logger))
	r.Use(CORS(allowedOrigins))

	r.Get("/api/health", h.health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestSize(maxBodyBytes))

		// ── Invoices ──────────────────────────────────────────────────────────
		r.Post("/api/invoices", h.postInvoice)
		r.Post("/api/invoices/quote", h.quoteInvoice)
		r.Post("/api/invoices/drafts", h.createDraft)
		r.Get("/api/invoices/{id}", h.getInvoice)
		r.Put("/api/invoices/{id}/lines", h.updateDraftLines)
		r.Post("/api/invoices/{id}/post", h.postDraft)
		r.Post("/api/invoices/{id}/void", h.voidInvoice)

		// ── Stock ─────────────────────────────────────────────────────────────
		r.Post("/api/items", h.createItem)
		r.Get("/api/items/{id}", h.getItem)
		r.Post("/api/items/{id}/adjust", h.adjustStock)
		r.Get("/api/items/{id}/history", h.itemHistory)
		r.Post("/api/stock-lots", h.receiveLot)
		r.Get("/api/stock-lots/{id}", h.getStockLot)
		r.Post("/api/stock-lots/{id}/convert", h.convertStock)
		r.Get("/api/stock-lots/{id}/history", h.lotHistory)

		// ── Parties ───────────────────────────────────────────────────────────
		r.Post("/api/parties", h.createParty)
		r.Get("/api/parties/{id}", h.getParty)
		r.Post("/api/parties/{id}/payments", h.applyPayment)
		r.Post("/api/parties/{id}/payments/{ref}/void", h.voidPayment)
		r.Get("/api/parties/{id}/history", h.partyHistory)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pathID extracts a positive int64 URL parameter, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, "invalid "+name+": "+chi.URLParam(r, name), "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by the RequestSize middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}
