package workflow

import (
	"errors"
	"fmt"
)

// Phase is the coarse axis of the two-axis progress model
type Phase string

const (
	PhaseEstimateRequest         Phase = "EstimateRequest"
	PhaseEstimateReview          Phase = "EstimateReview"
	PhaseDesign                  Phase = "Design"
	PhaseBooking                 Phase = "Booking"
	PhaseShipping                Phase = "Shipping"
	PhaseInstallation            Phase = "Installation"
	PhasePostInstallationPayment Phase = "PostInstallationPayment"
	PhaseCompleted               Phase = "Completed"
)

// PhaseStatus is the position inside a phase. Its meaning depends on the phase.
type PhaseStatus string

const (
	StatusNotRequested        PhaseStatus = "not_requested"
	StatusPending             PhaseStatus = "pending"
	StatusCreated             PhaseStatus = "created"
	StatusApproved            PhaseStatus = "approved"
	StatusChangesRequested    PhaseStatus = "changes_requested"
	StatusVerificationPending PhaseStatus = "verification_pending"
	StatusPaid                PhaseStatus = "paid"
	StatusCompleted           PhaseStatus = "completed"
)

var (
	// ErrUnknownPhase indicates a value outside the phase registry
	ErrUnknownPhase = errors.New("unknown phase")

	// ErrUnknownPhaseStatus indicates a value outside the status set
	ErrUnknownPhaseStatus = errors.New("unknown phase status")

	// ErrInvalidTransition indicates a status move the phase does not allow
	ErrInvalidTransition = errors.New("invalid phase status transition")
)

var phaseOrder = []Phase{
	PhaseEstimateRequest,
	PhaseEstimateReview,
	PhaseDesign,
	PhaseBooking,
	PhaseShipping,
	PhaseInstallation,
	PhasePostInstallationPayment,
	PhaseCompleted,
}

var phaseIndex = func() map[Phase]int {
	m := make(map[Phase]int, len(phaseOrder))
	for i, p := range phaseOrder {
		m[p] = i
	}
	return m
}()

var knownStatuses = map[PhaseStatus]bool{
	StatusNotRequested:        true,
	StatusPending:             true,
	StatusCreated:             true,
	StatusApproved:            true,
	StatusChangesRequested:    true,
	StatusVerificationPending: true,
	StatusPaid:                true,
	StatusCompleted:           true,
}

// phaseRule describes how statuses move inside a single phase
type phaseRule struct {
	initial     PhaseStatus
	completing  PhaseStatus
	transitions map[PhaseStatus][]PhaseStatus
}

var phaseRules = map[Phase]phaseRule{
	PhaseEstimateRequest: {
		initial:    StatusNotRequested,
		completing: StatusCompleted,
		transitions: map[PhaseStatus][]PhaseStatus{
			StatusNotRequested: {StatusPending},
			StatusPending:      {StatusCompleted},
		},
	},
	PhaseEstimateReview: {
		initial:    StatusCreated,
		completing: StatusApproved,
		transitions: map[PhaseStatus][]PhaseStatus{
			StatusCreated:          {StatusApproved, StatusChangesRequested},
			StatusChangesRequested: {StatusCreated},
		},
	},
	PhaseDesign: {
		initial:    StatusPending,
		completing: StatusApproved,
		transitions: map[PhaseStatus][]PhaseStatus{
			StatusPending:          {StatusCreated},
			StatusCreated:          {StatusApproved, StatusChangesRequested},
			StatusChangesRequested: {StatusCreated},
		},
	},
	PhaseBooking: {
		initial:    StatusPending,
		completing: StatusPaid,
		transitions: map[PhaseStatus][]PhaseStatus{
			StatusPending:             {StatusVerificationPending},
			StatusVerificationPending: {StatusPaid, StatusPending},
		},
	},
	PhaseShipping: {
		initial:    StatusPending,
		completing: StatusCompleted,
		transitions: map[PhaseStatus][]PhaseStatus{
			StatusPending: {StatusCompleted},
		},
	},
	PhaseInstallation: {
		initial:    StatusPending,
		completing: StatusCompleted,
		transitions: map[PhaseStatus][]PhaseStatus{
			StatusPending: {StatusCompleted},
		},
	},
	PhasePostInstallationPayment: {
		initial:    StatusPending,
		completing: StatusPaid,
		transitions: map[PhaseStatus][]PhaseStatus{
			StatusPending:             {StatusVerificationPending},
			StatusVerificationPending: {StatusPaid, StatusPending},
		},
	},
	PhaseCompleted: {
		initial:     StatusCompleted,
		completing:  StatusCompleted,
		transitions: map[PhaseStatus][]PhaseStatus{},
	},
}

// PhaseState is a position in the two-axis model
type PhaseState struct {
	Phase  Phase       `json:"phase" yaml:"phase"`
	Status PhaseStatus `json:"status" yaml:"status"`
}

// Phases returns the ordered phase list
func Phases() []Phase {
	out := make([]Phase, len(phaseOrder))
	copy(out, phaseOrder)
	return out
}

// InitialPhaseState is the state of a freshly created opportunity
func InitialPhaseState() PhaseState {
	return PhaseState{Phase: PhaseEstimateRequest, Status: StatusNotRequested}
}

// ParsePhase converts a stored value into a Phase
func ParsePhase(value string) (Phase, error) {
	p := Phase(value)
	if _, ok := phaseIndex[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPhase, value)
	}
	return p, nil
}

// ParsePhaseStatus converts a stored value into a PhaseStatus
func ParsePhaseStatus(value string) (PhaseStatus, error) {
	s := PhaseStatus(value)
	if !knownStatuses[s] {
		return "", fmt.Errorf("%w: %q", ErrUnknownPhaseStatus, value)
	}
	return s, nil
}

// PhaseIndex returns the position of the phase, or -1 for an unknown value
func PhaseIndex(p Phase) int {
	i, ok := phaseIndex[p]
	if !ok {
		return -1
	}
	return i
}

// NextPhase returns the phase following p
func NextPhase(p Phase) (Phase, bool) {
	i := PhaseIndex(p)
	if i < 0 || i+1 >= len(phaseOrder) {
		return "", false
	}
	return phaseOrder[i+1], true
}

// InitialStatus returns the status a phase starts in
func InitialStatus(p Phase) PhaseStatus {
	return phaseRules[p].initial
}

// IsPhaseComplete reports whether status finishes phase p.
// "approved" on Design and "paid" on Booking are both completing statuses.
func IsPhaseComplete(p Phase, status PhaseStatus) bool {
	rule, ok := phaseRules[p]
	if !ok {
		return false
	}
	return rule.completing == status
}

// CanTransition reports whether the phase allows moving from one status to another
func CanTransition(p Phase, from, to PhaseStatus) bool {
	rule, ok := phaseRules[p]
	if !ok {
		return false
	}
	for _, next := range rule.transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition applies a status move to state. When the new status completes the
// phase, the result is the next phase at its initial status.
func Transition(state PhaseState, to PhaseStatus) (PhaseState, error) {
	if PhaseIndex(state.Phase) < 0 {
		return state, fmt.Errorf("%w: %q", ErrUnknownPhase, state.Phase)
	}
	if !knownStatuses[to] {
		return state, fmt.Errorf("%w: %q", ErrUnknownPhaseStatus, to)
	}
	if !CanTransition(state.Phase, state.Status, to) {
		return state, fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, state.Phase, state.Status, to)
	}

	if IsPhaseComplete(state.Phase, to) {
		next, ok := NextPhase(state.Phase)
		if !ok {
			return PhaseState{Phase: state.Phase, Status: to}, nil
		}
		return PhaseState{Phase: next, Status: InitialStatus(next)}, nil
	}

	return PhaseState{Phase: state.Phase, Status: to}, nil
}

// Drive applies several transitions in order, stopping at the first failure
func Drive(state PhaseState, statuses ...PhaseStatus) (PhaseState, error) {
	current := state
	for _, s := range statuses {
		next, err := Transition(current, s)
		if err != nil {
			return state, err
		}
		current = next
	}
	return current, nil
}

// IsPhasePast reports whether phase p is behind the current state
func IsPhasePast(p Phase, current PhaseState) bool {
	i, c := PhaseIndex(p), PhaseIndex(current.Phase)
	return i >= 0 && c >= 0 && i < c
}

// IsPhaseFuture reports whether phase p is ahead of the current state
func IsPhaseFuture(p Phase, current PhaseState) bool {
	i, c := PhaseIndex(p), PhaseIndex(current.Phase)
	return i >= 0 && c >= 0 && i > c
}
