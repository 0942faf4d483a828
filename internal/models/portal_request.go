package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hrita/customer-portal/internal/workflow"
)

// Envelope is the response shape of every portal endpoint
type Envelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

const (
	EnvelopeSuccess = "success"
	EnvelopeError   = "error"
)

// ActionRequest is the body of POST /portal/exec
type ActionRequest struct {
	Action  string          `json:"action" binding:"required"`
	Phone   string          `json:"phone,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ActionResult is returned in the envelope data of a successful action
type ActionResult struct {
	Action   workflow.Action      `json:"action"`
	Phone    string               `json:"phone"`
	Stage    workflow.Stage       `json:"stage"`
	Advanced bool                 `json:"advanced"`
	Phase    *workflow.PhaseState `json:"phase,omitempty"`
	EntityID *uuid.UUID           `json:"entity_id,omitempty"`
}

// AddLeadPayload creates a new client at the first stage
type AddLeadPayload struct {
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone" binding:"required"`
	Email string `json:"email,omitempty"`
	City  string `json:"city,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// EstimatePayload drafts or shares an estimate
type EstimatePayload struct {
	EstimateID *uuid.UUID `json:"estimate_id,omitempty"`
	Title      string     `json:"title,omitempty"`
	Amount     float64    `json:"amount,omitempty"`
	Currency   string     `json:"currency,omitempty"`
	Items      LineItems  `json:"items,omitempty"`
	FileURL    string     `json:"file_url,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

// SiteVisitPayload schedules the site visit
type SiteVisitPayload struct {
	VisitAt time.Time `json:"visit_at" binding:"required"`
	Notes   string    `json:"notes,omitempty"`
}

// EstimateRequestPayload is a client's request for an estimate
type EstimateRequestPayload struct {
	Requirements string  `json:"requirements" binding:"required"`
	Budget       float64 `json:"budget,omitempty"`
}

// ReviewPayload answers a shared estimate or design
type ReviewPayload struct {
	ID       uuid.UUID      `json:"id" binding:"required"`
	Decision ReviewDecision `json:"decision" binding:"required"`
	Comment  string         `json:"comment,omitempty"`
}

// DesignPayload shares a design with the client
type DesignPayload struct {
	Title    string   `json:"title" binding:"required"`
	FileURLs []string `json:"file_urls" binding:"required"`
	Notes    string   `json:"notes,omitempty"`
}

// PayChargesPayload reports a payment made by the client
type PayChargesPayload struct {
	Kind      PaymentKind `json:"kind,omitempty"`
	Amount    float64     `json:"amount" binding:"required"`
	Reference string      `json:"reference" binding:"required"`
}

// VerifyPaymentPayload accepts or rejects a reported payment
type VerifyPaymentPayload struct {
	PaymentID uuid.UUID `json:"payment_id" binding:"required"`
	Approved  bool      `json:"approved"`
	Note      string    `json:"note,omitempty"`
}

// AdvanceStagePayload moves the client one stage forward.
// To is optional; when set it must be the next stage.
type AdvanceStagePayload struct {
	To workflow.Stage `json:"to,omitempty"`
}

// UpdatePhasePayload moves the opportunity inside its current phase
type UpdatePhasePayload struct {
	Status workflow.PhaseStatus `json:"status" binding:"required"`
}

// AddViewerPayload grants read-only access to a client's project
type AddViewerPayload struct {
	Phone string `json:"phone" binding:"required"`
	Name  string `json:"name" binding:"required"`
}
