package workflow

// Style is the visual weight of a timeline button
type Style string

const (
	StylePrimary   Style = "primary"
	StyleSecondary Style = "secondary"
	StyleGhost     Style = "ghost"
)

// Category classifies a stage relative to the subject's current stage
type Category string

const (
	CategoryCompleted Category = "completed"
	CategoryCurrent   Category = "current"
	CategoryUpcoming  Category = "upcoming"
)

// StageConfig is the display/action descriptor of one timeline entry.
// It is derived on every request and never stored.
//
// HasAction is the only availability flag: it is true exactly when Style is primary.
type StageConfig struct {
	Stage       Stage    `json:"stage,omitempty"`
	Phase       Phase    `json:"phase,omitempty"`
	Label       string   `json:"label"`
	Style       Style    `json:"style"`
	StatusLabel string   `json:"status_label"`
	HasAction   bool     `json:"has_action"`
	Category    Category `json:"category"`
	Role        Role     `json:"role"`
	Action      Action   `json:"action,omitempty"`
}

type entry struct {
	label  string
	style  Style
	status string
	action Action
}

var adminStageTable = map[Stage]entry{
	StageLeadCollected:    {"Add Estimate", StylePrimary, "New lead", ActionAddEstimate},
	StageContacted:        {"Schedule Site Visit", StylePrimary, "Client contacted", ActionScheduleSiteVisit},
	StageSiteVisit:        {"Share Estimate", StylePrimary, "Site visit done", ActionUploadEstimate},
	StageEstimateProvided: {"Pending Approval", StyleSecondary, "Awaiting client approval", ""},
	StageDesignPhase:      {"Upload Design", StylePrimary, "Design in progress", ActionUploadDesign},
	StageBookingPayment:   {"Verify Payment", StylePrimary, "Awaiting booking payment", ActionVerifyPayment},
	StageAgreementSigned:  {"Start Project", StylePrimary, "Agreement signed", ActionAdvanceStage},
	StageProjectStarted:   {"Mark In Progress", StylePrimary, "Project started", ActionAdvanceStage},
	StageInProgress:       {"Complete Handover", StylePrimary, "Work in progress", ActionAdvanceStage},
	StageFinalHandover:    {"Project Closed", StyleGhost, "Handed over", ""},
}

var clientStageTable = map[Stage]entry{
	StageLeadCollected:    {"Request Estimate", StylePrimary, "We have your details", ActionSubmitEstimate},
	StageContacted:        {"Awaiting Site Visit", StyleSecondary, "Our team will visit soon", ""},
	StageSiteVisit:        {"Estimate in Preparation", StyleSecondary, "Preparing your estimate", ""},
	StageEstimateProvided: {"Review Estimate", StylePrimary, "Estimate ready for review", ActionReviewEstimate},
	StageDesignPhase:      {"Review Design", StylePrimary, "Design ready for review", ActionReviewDesign},
	StageBookingPayment:   {"Pay Booking Amount", StylePrimary, "Booking payment due", ActionPayCharges},
	StageAgreementSigned:  {"View Agreement", StyleGhost, "Agreement signed", ""},
	StageProjectStarted:   {"Track Progress", StyleGhost, "Project started", ""},
	StageInProgress:       {"Track Progress", StyleGhost, "Work in progress", ""},
	StageFinalHandover:    {"View Handover", StyleGhost, "Handed over", ""},
}

var (
	completedEntry = entry{"Completed", StyleGhost, "Verified", ""}
	upcomingEntry  = entry{"Upcoming", StyleGhost, "Scheduled", ""}
	fallbackEntry  = entry{"View Details", StyleSecondary, "In Progress", ""}
)

func tableFor(role Role) map[Stage]entry {
	if role == RoleAdmin {
		return adminStageTable
	}
	return clientStageTable
}

func build(e entry, category Category, role Role) StageConfig {
	cfg := StageConfig{
		Label:       e.label,
		Style:       e.style,
		StatusLabel: e.status,
		Category:    category,
		Role:        role,
	}
	if e.style == StylePrimary && e.action != "" {
		cfg.HasAction = true
		cfg.Action = e.action
	}
	return cfg
}

// Resolve returns the descriptor for stage as seen by role while the subject is at current.
//
// Architects see the client's table with every action disabled.
func Resolve(stage, current Stage, role Role) StageConfig {
	var cfg StageConfig
	switch {
	case !stage.IsValid() || !current.IsValid():
		cfg = build(fallbackEntry, CategoryCurrent, role)
	case IsPast(stage, current):
		cfg = build(completedEntry, CategoryCompleted, role)
	case IsCurrent(stage, current):
		e, ok := tableFor(role)[stage]
		if !ok {
			e = fallbackEntry
		}
		cfg = build(e, CategoryCurrent, role)
	default:
		cfg = build(upcomingEntry, CategoryUpcoming, role)
	}

	if role == RoleArchitect && cfg.HasAction {
		cfg.HasAction = false
		cfg.Action = ""
		cfg.Style = StyleSecondary
	}
	cfg.Stage = stage
	return cfg
}

// Timeline resolves every stage for a subject at current
func Timeline(current Stage, role Role) []StageConfig {
	out := make([]StageConfig, 0, len(stageOrder))
	for _, s := range stageOrder {
		out = append(out, Resolve(s, current, role))
	}
	return out
}

type phaseKey struct {
	phase  Phase
	status PhaseStatus
}

var adminPhaseTable = map[phaseKey]entry{
	{PhaseEstimateRequest, StatusNotRequested}:                {"Awaiting Request", StyleSecondary, "No estimate requested", ""},
	{PhaseEstimateRequest, StatusPending}:                     {"Upload Estimate", StylePrimary, "Estimate requested", ActionUploadEstimate},
	{PhaseEstimateReview, StatusCreated}:                      {"Pending Approval", StyleSecondary, "Estimate shared", ""},
	{PhaseEstimateReview, StatusChangesRequested}:             {"Revise Estimate", StylePrimary, "Changes requested", ActionUploadEstimate},
	{PhaseDesign, StatusPending}:                              {"Upload Design", StylePrimary, "Design pending", ActionUploadDesign},
	{PhaseDesign, StatusCreated}:                              {"Pending Approval", StyleSecondary, "Design shared", ""},
	{PhaseDesign, StatusChangesRequested}:                     {"Revise Design", StylePrimary, "Changes requested", ActionUploadDesign},
	{PhaseBooking, StatusPending}:                             {"Awaiting Payment", StyleSecondary, "Booking payment due", ""},
	{PhaseBooking, StatusVerificationPending}:                 {"Verify Payment", StylePrimary, "Payment submitted", ActionVerifyPayment},
	{PhaseShipping, StatusPending}:                            {"Mark Shipped", StylePrimary, "Preparing shipment", ActionUpdatePhase},
	{PhaseInstallation, StatusPending}:                        {"Mark Installed", StylePrimary, "Installation scheduled", ActionUpdatePhase},
	{PhasePostInstallationPayment, StatusPending}:             {"Awaiting Payment", StyleSecondary, "Final payment due", ""},
	{PhasePostInstallationPayment, StatusVerificationPending}: {"Verify Payment", StylePrimary, "Payment submitted", ActionVerifyPayment},
	{PhaseCompleted, StatusCompleted}:                         {"Project Closed", StyleGhost, "Completed", ""},
}

var clientPhaseTable = map[phaseKey]entry{
	{PhaseEstimateRequest, StatusNotRequested}:                {"Request Estimate", StylePrimary, "Tell us about your space", ActionSubmitEstimate},
	{PhaseEstimateRequest, StatusPending}:                     {"Estimate Requested", StyleSecondary, "Preparing your estimate", ""},
	{PhaseEstimateReview, StatusCreated}:                      {"Review Estimate", StylePrimary, "Estimate ready for review", ActionReviewEstimate},
	{PhaseEstimateReview, StatusChangesRequested}:             {"Changes Requested", StyleSecondary, "We are revising your estimate", ""},
	{PhaseDesign, StatusPending}:                              {"Design in Progress", StyleSecondary, "Our designers are at work", ""},
	{PhaseDesign, StatusCreated}:                              {"Review Design", StylePrimary, "Design ready for review", ActionReviewDesign},
	{PhaseDesign, StatusChangesRequested}:                     {"Changes Requested", StyleSecondary, "We are revising your design", ""},
	{PhaseBooking, StatusPending}:                             {"Pay Booking Amount", StylePrimary, "Booking payment due", ActionPayCharges},
	{PhaseBooking, StatusVerificationPending}:                 {"Payment Submitted", StyleSecondary, "Verifying your payment", ""},
	{PhaseShipping, StatusPending}:                            {"Track Shipment", StyleGhost, "Preparing shipment", ""},
	{PhaseInstallation, StatusPending}:                        {"Track Installation", StyleGhost, "Installation scheduled", ""},
	{PhasePostInstallationPayment, StatusPending}:             {"Pay Final Amount", StylePrimary, "Final payment due", ActionPayCharges},
	{PhasePostInstallationPayment, StatusVerificationPending}: {"Payment Submitted", StyleSecondary, "Verifying your payment", ""},
	{PhaseCompleted, StatusCompleted}:                         {"View Handover", StyleGhost, "Completed", ""},
}

// ResolvePhase returns the descriptor for phase p while the opportunity is at current.
// Past phases collapse to the completed descriptor whatever status they ended on.
func ResolvePhase(p Phase, current PhaseState, role Role) StageConfig {
	var cfg StageConfig
	switch {
	case PhaseIndex(p) < 0 || PhaseIndex(current.Phase) < 0:
		cfg = build(fallbackEntry, CategoryCurrent, role)
	case IsPhasePast(p, current):
		cfg = build(completedEntry, CategoryCompleted, role)
	case p == current.Phase:
		table := clientPhaseTable
		if role == RoleAdmin {
			table = adminPhaseTable
		}
		e, ok := table[phaseKey{p, current.Status}]
		if !ok {
			e = fallbackEntry
		}
		cfg = build(e, CategoryCurrent, role)
	default:
		cfg = build(upcomingEntry, CategoryUpcoming, role)
	}

	if role == RoleArchitect && cfg.HasAction {
		cfg.HasAction = false
		cfg.Action = ""
		cfg.Style = StyleSecondary
	}
	cfg.Phase = p
	return cfg
}

// PhaseTimeline resolves every phase for an opportunity at current
func PhaseTimeline(current PhaseState, role Role) []StageConfig {
	out := make([]StageConfig, 0, len(phaseOrder))
	for _, p := range phaseOrder {
		out = append(out, ResolvePhase(p, current, role))
	}
	return out
}

// ActionStages returns, in order, the stages at which the current-stage
// descriptor offers action to role
func ActionStages(action Action, role Role) []Stage {
	if role == RoleArchitect {
		return nil
	}
	table := tableFor(role)
	var out []Stage
	for _, s := range stageOrder {
		if e := table[s]; e.style == StylePrimary && e.action == action {
			out = append(out, s)
		}
	}
	return out
}
