package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/bobarin/adshot/internal/db"
	"github.com/bobarin/adshot/internal/models"
)

// Credits granted per plan on a confirmed payment.
var planCredits = map[string]int{
	"pro":     80,
	"premium": 240,
}

// identityEvent is the envelope the identity/payment provider posts.
type identityEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type userEventData struct {
	ID    string  `json:"id"`
	Email string  `json:"email"`
	Name  *string `json:"name,omitempty"`
	Image *string `json:"image,omitempty"`
}

type paymentEventData struct {
	UserID     string `json:"user_id"`
	ChargeType string `json:"charge_type"` // "recurring" or "checkout"
	Status     string `json:"status"`
	PlanSlug   string `json:"plan_slug"`
}

// HandleWebhook handles POST /api/webhooks/identity: user lifecycle events
// keep the local user table in sync, and confirmed payments fund the credit
// ledger.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var evt identityEvent
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid event payload")
		return
	}

	log.Printf("[Webhook] Received event: %s", evt.Type)

	switch evt.Type {
	case "user.created", "user.updated":
		var data userEventData
		if err := json.Unmarshal(evt.Data, &data); err != nil || data.ID == "" {
			respondError(w, http.StatusBadRequest, "Invalid user event data")
			return
		}
		user := &models.User{ID: data.ID, Email: data.Email, Name: data.Name, Image: data.Image}
		if err := h.db.UpsertUser(r.Context(), user); err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to upsert user")
			return
		}

	case "user.deleted":
		var data userEventData
		if err := json.Unmarshal(evt.Data, &data); err != nil || data.ID == "" {
			respondError(w, http.StatusBadRequest, "Invalid user event data")
			return
		}
		if err := h.db.DeleteUser(r.Context(), data.ID); err != nil && !errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusInternalServerError, "Failed to delete user")
			return
		}

	case "payment.updated":
		var data paymentEventData
		if err := json.Unmarshal(evt.Data, &data); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid payment event data")
			return
		}
		if data.Status != "paid" || (data.ChargeType != "recurring" && data.ChargeType != "checkout") {
			break // nothing to do until the payment settles
		}
		amount, ok := planCredits[data.PlanSlug]
		if !ok {
			respondError(w, http.StatusBadRequest, "Invalid plan")
			return
		}
		if err := h.db.AddCredits(r.Context(), data.UserID, amount); err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to add credits")
			return
		}
		log.Printf("[Webhook] Credited %d to user %s (plan %s)", amount, data.UserID, data.PlanSlug)
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Webhook received: " + evt.Type})
}
