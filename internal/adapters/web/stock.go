package web

import (
	"net/http"

	"billing-engine/internal/app"
	"billing-engine/internal/core"
)

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req app.CreateItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	item, err := h.svc.CreateItem(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	item, err := h.svc.GetItem(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req app.AdjustStockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ItemID = id
	item, err := h.svc.AdjustStock(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) receiveLot(w http.ResponseWriter, r *http.Request) {
	var req app.ReceiveLotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	lot, err := h.svc.ReceiveLot(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lot)
}

func (h *Handler) getStockLot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	lot, err := h.svc.GetStockLot(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lot)
}

func (h *Handler) convertStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req app.ConvertStockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.LotID = id
	res, err := h.svc.ConvertStockToItem(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) itemHistory(w http.ResponseWriter, r *http.Request) {
	h.history(w, r, core.TargetItem)
}

func (h *Handler) lotHistory(w http.ResponseWriter, r *http.Request) {
	h.history(w, r, core.TargetStockLot)
}

func (h *Handler) partyHistory(w http.ResponseWriter, r *http.Request) {
	h.history(w, r, core.TargetParty)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request, target core.LedgerTarget) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.svc.History(r.Context(), target, id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
