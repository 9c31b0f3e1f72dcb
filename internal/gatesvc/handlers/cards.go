package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

func (h *Handler) AvailableCards(w http.ResponseWriter, r *http.Request) {
	ids, err := h.cards.FindAvailable(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "available cards", ids)
}

func (h *Handler) AssignedCards(w http.ResponseWriter, r *http.Request) {
	ids, err := h.cards.FindAssigned(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "assigned cards", ids)
}

// CheckAvailability takes ids as repeated parameters, comma lists, or both.
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, v := range r.URL.Query()["ids"] {
		ids = append(ids, strings.Split(v, ",")...)
	}
	if len(ids) == 0 {
		h.badRequest(w, "Missing required fields: ids")
		return
	}
	for i := range ids {
		ids[i] = strings.TrimSpace(ids[i])
	}

	avail, err := h.cards.CheckAvailability(r.Context(), ids)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "availability checked", avail)
}

func (h *Handler) CardSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.cards.Summary(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "card summary", summary)
}

// provisionFactor bounds a provisioning request relative to CARD_POOL_SIZE.
const provisionFactor = 10

// ProvisionCards replaces the card pool. It is guarded by the init password
// rather than a token so a fresh deployment can be seeded.
func (h *Handler) ProvisionCards(w http.ResponseWriter, r *http.Request) {
	var body provisionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	if h.initPassword == "" ||
		subtle.ConstantTimeCompare([]byte(body.Password), []byte(h.initPassword)) != 1 {
		h.CreateResponse(w, Response{Message: "Invalid password", Code: http.StatusUnauthorized, Error: "UNAUTHORIZED"})
		return
	}

	count := int(body.Count)
	if count == 0 {
		count = h.poolSize
	}
	if limit := h.poolSize * provisionFactor; count > limit {
		h.CreateResponse(w, Response{
			Message: fmt.Sprintf("count must not exceed %d", limit),
			Code:    http.StatusBadRequest,
			Error:   "INVALID_COUNT",
		})
		return
	}
	n, err := h.cards.Provision(r.Context(), count)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, "card pool provisioned", map[string]int{"count": n})
}
