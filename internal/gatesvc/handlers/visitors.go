package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/avvvet/gatepass-services/internal/gatesvc/service"
)

func (h *Handler) Checkin(w http.ResponseWriter, r *http.Request) {
	var body checkinBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.badRequest(w, "invalid request body: "+err.Error())
		return
	}

	res, err := h.checkin.Checkin(r.Context(), body.request())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, res.Message, res)
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var body checkoutBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.badRequest(w, "invalid request body: "+err.Error())
		return
	}

	res, err := h.checkout.Checkout(r.Context(), service.CheckoutRequest{
		CardIDs:  []string(body.SelectedValues),
		ExitGate: body.SelectedExit,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "Checkout processed successfully", res)
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("scope")
	switch scope {
	case "":
		scope = service.ScopeAll
	case service.ScopeAll, service.ScopeToday:
	default:
		h.badRequest(w, "scope must be today or all")
		return
	}

	views, err := h.query.ListSessions(r.Context(), scope)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "visitor sessions", views)
}

func (h *Handler) LookupByPhone(w http.ResponseWriter, r *http.Request) {
	phone := r.URL.Query().Get("phone_number")
	if phone == "" {
		h.badRequest(w, "Missing required fields: phone_number")
		return
	}

	name, err := h.query.LookupByPhone(r.Context(), phone)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "visitor lookup", map[string]string{"name": name})
}

func (h *Handler) VisitorAccess(w http.ResponseWriter, r *http.Request) {
	access, err := h.query.VisitorAccess(r.Context(), r.URL.Query().Get("phone_number"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "visitor access", access)
}

func (h *Handler) SearchPurposes(w http.ResponseWriter, r *http.Request) {
	purposes, err := h.query.SearchPurposes(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "purposes", purposes)
}

func (h *Handler) VisitorDetails(w http.ResponseWriter, r *http.Request) {
	details, err := h.query.VisitorDetails(r.Context(), r.URL.Query().Get("card_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "visitor details", details)
}

func (h *Handler) VisitorReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	views, err := h.query.Report(r.Context(), q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "visitor report", views)
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconcile.Reconcile(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "reconciliation finished", report)
}
