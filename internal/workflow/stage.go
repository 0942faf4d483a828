package workflow

import (
	"errors"
	"fmt"
)

// Stage is one step of the project timeline shown to a client
type Stage string

const (
	StageLeadCollected    Stage = "LeadCollected"
	StageContacted        Stage = "Contacted"
	StageSiteVisit        Stage = "SiteVisit"
	StageEstimateProvided Stage = "EstimateProvided"
	StageDesignPhase      Stage = "DesignPhase"
	StageBookingPayment   Stage = "BookingPayment"
	StageAgreementSigned  Stage = "AgreementSigned"
	StageProjectStarted   Stage = "ProjectStarted"
	StageInProgress       Stage = "InProgress"
	StageFinalHandover    Stage = "FinalHandover"
)

var (
	// ErrUnknownStage indicates a value outside the stage registry
	ErrUnknownStage = errors.New("unknown stage")

	// ErrStageRegression indicates an attempt to move a subject backwards or skip a stage
	ErrStageRegression = errors.New("stage can only advance one step forward")

	// ErrFinalStage indicates the subject is already at the last stage
	ErrFinalStage = errors.New("stage is already final")
)

// stageOrder is the total progression order. Index in this slice is the stage index.
var stageOrder = []Stage{
	StageLeadCollected,
	StageContacted,
	StageSiteVisit,
	StageEstimateProvided,
	StageDesignPhase,
	StageBookingPayment,
	StageAgreementSigned,
	StageProjectStarted,
	StageInProgress,
	StageFinalHandover,
}

var stageIndex = func() map[Stage]int {
	m := make(map[Stage]int, len(stageOrder))
	for i, s := range stageOrder {
		m[s] = i
	}
	return m
}()

// Stages returns the ordered stage list
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// FirstStage is where every new lead starts
func FirstStage() Stage {
	return stageOrder[0]
}

// ParseStage converts a stored value into a Stage
func ParseStage(value string) (Stage, error) {
	s := Stage(value)
	if _, ok := stageIndex[s]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStage, value)
	}
	return s, nil
}

// IsValid reports whether the stage belongs to the registry
func (s Stage) IsValid() bool {
	_, ok := stageIndex[s]
	return ok
}

// IndexOf returns the position of the stage in the progression, or -1 for an unknown value
func IndexOf(s Stage) int {
	i, ok := stageIndex[s]
	if !ok {
		return -1
	}
	return i
}

// IsPast reports whether stage comes before current. Unknown values are never past.
func IsPast(stage, current Stage) bool {
	i, c := IndexOf(stage), IndexOf(current)
	return i >= 0 && c >= 0 && i < c
}

// IsCurrent reports whether stage is the current one
func IsCurrent(stage, current Stage) bool {
	return stage == current
}

// IsFuture reports whether stage comes after current. Unknown values are never future.
func IsFuture(stage, current Stage) bool {
	i, c := IndexOf(stage), IndexOf(current)
	return i >= 0 && c >= 0 && i > c
}

// Next returns the stage following s. ok is false for the final stage or an unknown value.
func Next(s Stage) (Stage, bool) {
	i := IndexOf(s)
	if i < 0 || i+1 >= len(stageOrder) {
		return "", false
	}
	return stageOrder[i+1], true
}

// Advance validates a move from one stage to another.
// Subjects move strictly forward, exactly one step at a time.
func Advance(from, to Stage) error {
	if !from.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownStage, from)
	}
	if !to.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownStage, to)
	}
	next, ok := Next(from)
	if !ok {
		return ErrFinalStage
	}
	if next != to {
		return fmt.Errorf("%w: %s -> %s", ErrStageRegression, from, to)
	}
	return nil
}

// CanAdvance reports whether Advance(from, to) would succeed
func CanAdvance(from, to Stage) bool {
	return Advance(from, to) == nil
}
