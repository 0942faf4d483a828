package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hrita/customer-portal/internal/workflow"
	"github.com/lib/pq"
)

// EstimateStatus tracks an estimate document through drafting and review
type EstimateStatus string

const (
	EstimateDraft            EstimateStatus = "draft"
	EstimateShared           EstimateStatus = "shared"
	EstimateApproved         EstimateStatus = "approved"
	EstimateChangesRequested EstimateStatus = "changes_requested"
	EstimateSuperseded       EstimateStatus = "superseded"
)

// DesignStatus tracks a design upload through review
type DesignStatus string

const (
	DesignShared           DesignStatus = "shared"
	DesignApproved         DesignStatus = "approved"
	DesignChangesRequested DesignStatus = "changes_requested"
	DesignSuperseded       DesignStatus = "superseded"
)

// PaymentKind distinguishes the booking amount from the post-installation payment
type PaymentKind string

const (
	PaymentBooking PaymentKind = "booking"
	PaymentFinal   PaymentKind = "final"
)

// PaymentStatus tracks a client-reported payment
type PaymentStatus string

const (
	PaymentPendingVerification PaymentStatus = "verification_pending"
	PaymentVerified            PaymentStatus = "verified"
	PaymentRejected            PaymentStatus = "rejected"
)

// ReviewDecision is a client's answer to a shared estimate or design
type ReviewDecision string

const (
	DecisionApproved         ReviewDecision = "approved"
	DecisionChangesRequested ReviewDecision = "changes_requested"
)

// LineItem is one row of an estimate
type LineItem struct {
	Description string  `json:"description" yaml:"description"`
	Quantity    float64 `json:"quantity" yaml:"quantity"`
	Unit        string  `json:"unit,omitempty" yaml:"unit,omitempty"`
	UnitPrice   float64 `json:"unit_price" yaml:"unit_price"`
}

// Total is quantity times unit price
func (li LineItem) Total() float64 {
	return li.Quantity * li.UnitPrice
}

// LineItems is stored as a JSONB column
type LineItems []LineItem

// Value implements the driver.Valuer interface.
// Returns JSON as string for compatibility with pgx simple protocol mode.
func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	bytes, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan implements the sql.Scanner interface
func (l *LineItems) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported line items type %T", value)
	}
}

// Sum adds up all line totals
func (l LineItems) Sum() float64 {
	var total float64
	for _, item := range l {
		total += item.Total()
	}
	return total
}

// Estimate is a priced proposal shared with a client
type Estimate struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	ClientPhone string         `json:"client_phone" db:"client_phone"`
	Title       string         `json:"title" db:"title"`
	Amount      float64        `json:"amount" db:"amount"`
	Currency    string         `json:"currency" db:"currency"`
	Items       LineItems      `json:"items" db:"line_items"`
	FileURL     NullString     `json:"file_url,omitempty" db:"file_url"`
	Notes       NullString     `json:"notes,omitempty" db:"notes"`
	Status      EstimateStatus `json:"status" db:"status"`
	Version     int            `json:"version" db:"version"`
	ReviewNote  NullString     `json:"review_note,omitempty" db:"review_note"`
	CreatedBy   uuid.NullUUID  `json:"created_by,omitempty" db:"created_by"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// Design is a set of design files shared with a client
type Design struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	ClientPhone string         `json:"client_phone" db:"client_phone"`
	Title       string         `json:"title" db:"title"`
	FileURLs    pq.StringArray `json:"file_urls" db:"file_urls"`
	Notes       NullString     `json:"notes,omitempty" db:"notes"`
	Status      DesignStatus   `json:"status" db:"status"`
	Version     int            `json:"version" db:"version"`
	ReviewNote  NullString     `json:"review_note,omitempty" db:"review_note"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// Opportunity carries the two-axis phase state of a client's project
type Opportunity struct {
	ID           uuid.UUID            `json:"id" db:"id"`
	ClientPhone  string               `json:"client_phone" db:"client_phone"`
	Phase        workflow.Phase       `json:"phase" db:"phase"`
	PhaseStatus  workflow.PhaseStatus `json:"phase_status" db:"phase_status"`
	Requirements NullString           `json:"requirements,omitempty" db:"requirements"`
	Budget       float64              `json:"budget,omitempty" db:"budget"`
	SiteVisitAt  NullTime             `json:"site_visit_at,omitempty" db:"site_visit_at"`
	CreatedAt    time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at" db:"updated_at"`
}

// State returns the phase position of the opportunity
func (o *Opportunity) State() workflow.PhaseState {
	return workflow.PhaseState{Phase: o.Phase, Status: o.PhaseStatus}
}

// SetState stores a phase position on the opportunity
func (o *Opportunity) SetState(s workflow.PhaseState) {
	o.Phase = s.Phase
	o.PhaseStatus = s.Status
}

// Payment is a client-reported payment awaiting or past admin verification
type Payment struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	ClientPhone string        `json:"client_phone" db:"client_phone"`
	Kind        PaymentKind   `json:"kind" db:"kind"`
	Amount      float64       `json:"amount" db:"amount"`
	Reference   string        `json:"reference" db:"reference"`
	Status      PaymentStatus `json:"status" db:"status"`
	Note        NullString    `json:"note,omitempty" db:"note"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	VerifiedAt  NullTime      `json:"verified_at,omitempty" db:"verified_at"`
}

// ProjectViewer grants a read-only viewer access to a client's project
type ProjectViewer struct {
	ClientPhone string    `json:"client_phone" db:"client_phone"`
	ViewerPhone string    `json:"viewer_phone" db:"viewer_phone"`
	ViewerName  string    `json:"viewer_name" db:"viewer_name"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ClientSummary is one row of the admin client list
type ClientSummary struct {
	Phone     string         `json:"phone" db:"phone"`
	Name      string         `json:"name" db:"name"`
	City      NullString     `json:"city,omitempty" db:"city"`
	Stage     workflow.Stage `json:"stage" db:"stage"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// RecentActivity is one row of the recents feed
type RecentActivity struct {
	Action       string     `json:"action" db:"action"`
	SubjectPhone string     `json:"subject_phone" db:"subject_phone"`
	SubjectName  NullString `json:"subject_name,omitempty" db:"subject_name"`
	Details      NullString `json:"details,omitempty" db:"details"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// PortalData is the getData payload
type PortalData struct {
	User        *User                  `json:"user"`
	ViewRole    workflow.Role          `json:"viewRole"`
	Recents     []RecentActivity       `json:"recents"`
	AllClients  []ClientSummary        `json:"allClients"`
	Estimates   []Estimate             `json:"estimates,omitempty"`
	Designs     []Design               `json:"designs,omitempty"`
	Opportunity *Opportunity           `json:"opportunity,omitempty"`
	Payments    []Payment              `json:"payments,omitempty"`
	Viewers     []ProjectViewer        `json:"viewers,omitempty"`
	Timeline    []workflow.StageConfig `json:"timeline"`
	Phases      []workflow.StageConfig `json:"phases,omitempty"`
}

// TimelineResponse is returned by the timeline endpoint
type TimelineResponse struct {
	Phone    string                 `json:"phone"`
	Stage    workflow.Stage         `json:"stage"`
	ViewRole workflow.Role          `json:"viewRole"`
	Timeline []workflow.StageConfig `json:"timeline"`
	Phases   []workflow.StageConfig `json:"phases,omitempty"`
}
