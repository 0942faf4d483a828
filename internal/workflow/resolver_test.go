package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allRoles = []Role{RoleAdmin, RoleClient, RoleArchitect}

func TestResolve_RequiredScenarios(t *testing.T) {
	tests := []struct {
		name      string
		current   Stage
		role      Role
		label     string
		style     Style
		hasAction bool
	}{
		{"Client reviews estimate", StageEstimateProvided, RoleClient, "Review Estimate", StylePrimary, true},
		{"Admin waits for approval", StageEstimateProvided, RoleAdmin, "Pending Approval", StyleSecondary, false},
		{"Admin adds estimate for new lead", StageLeadCollected, RoleAdmin, "Add Estimate", StylePrimary, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Resolve(tc.current, tc.current, tc.role)
			assert.Equal(t, tc.label, cfg.Label)
			assert.Equal(t, tc.style, cfg.Style)
			assert.Equal(t, tc.hasAction, cfg.HasAction)
			assert.Equal(t, CategoryCurrent, cfg.Category)
		})
	}
}

func TestResolve_PastStagesAreCompleted(t *testing.T) {
	for _, role := range allRoles {
		for _, current := range Stages() {
			for _, s := range Stages()[:IndexOf(current)] {
				cfg := Resolve(s, current, role)
				assert.False(t, cfg.HasAction, "%s/%s/%s", s, current, role)
				assert.Equal(t, CategoryCompleted, cfg.Category)
				assert.Equal(t, "Completed", cfg.Label)
				assert.Equal(t, "Verified", cfg.StatusLabel)
				assert.Equal(t, StyleGhost, cfg.Style)
				assert.Empty(t, cfg.Action)
			}
		}
	}
}

func TestResolve_FutureStagesAreRoleIndependent(t *testing.T) {
	for _, current := range Stages() {
		for _, s := range Stages()[IndexOf(current)+1:] {
			admin := Resolve(s, current, RoleAdmin)
			for _, role := range allRoles {
				cfg := Resolve(s, current, role)
				assert.False(t, cfg.HasAction)
				assert.Equal(t, CategoryUpcoming, cfg.Category)
				assert.Equal(t, "Upcoming", cfg.Label)
				assert.Equal(t, "Scheduled", cfg.StatusLabel)
				assert.Equal(t, admin.Label, cfg.Label)
				assert.Equal(t, admin.Style, cfg.Style)
			}
		}
	}
}

func TestResolve_HasActionMatchesStyle(t *testing.T) {
	for _, role := range allRoles {
		for _, current := range Stages() {
			for _, cfg := range Timeline(current, role) {
				assert.Equal(t, cfg.Style == StylePrimary, cfg.HasAction,
					"%s at %s for %s", cfg.Stage, current, role)
				assert.Equal(t, cfg.HasAction, cfg.Action != "")
			}
		}
	}
}

func TestResolve_TablesAreExhaustive(t *testing.T) {
	for _, s := range Stages() {
		_, ok := adminStageTable[s]
		assert.True(t, ok, "admin table misses %s", s)
		_, ok = clientStageTable[s]
		assert.True(t, ok, "client table misses %s", s)
	}
}

func TestResolve_ActionsAreAllowedForRole(t *testing.T) {
	for _, role := range []Role{RoleAdmin, RoleClient} {
		for _, current := range Stages() {
			cfg := Resolve(current, current, role)
			if cfg.HasAction {
				assert.True(t, cfg.Action.Allows(role), "%s may not %s", role, cfg.Action)
			}
		}
	}
}

func TestResolve_ArchitectIsReadOnlyClientView(t *testing.T) {
	for _, current := range Stages() {
		client := Resolve(current, current, RoleClient)
		arch := Resolve(current, current, RoleArchitect)
		assert.Equal(t, client.Label, arch.Label)
		assert.Equal(t, client.StatusLabel, arch.StatusLabel)
		assert.False(t, arch.HasAction)
		assert.NotEqual(t, StylePrimary, arch.Style)
	}
}

func TestResolve_UnknownStageFallsBack(t *testing.T) {
	cfg := Resolve(Stage("Archived"), StageContacted, RoleAdmin)
	assert.Equal(t, "View Details", cfg.Label)
	assert.Equal(t, "In Progress", cfg.StatusLabel)
	assert.Equal(t, StyleSecondary, cfg.Style)
	assert.False(t, cfg.HasAction)

	cfg = Resolve(StageContacted, Stage("Archived"), RoleClient)
	assert.Equal(t, "View Details", cfg.Label)
}

func TestResolve_AdvanceRoundTrip(t *testing.T) {
	current := StageEstimateProvided
	before := Resolve(StageEstimateProvided, current, RoleClient)
	require.True(t, before.HasAction)
	require.Equal(t, ActionReviewEstimate, before.Action)

	next, ok := Next(current)
	require.True(t, ok)
	require.NoError(t, Advance(current, next))
	current = next

	assert.Equal(t, StageDesignPhase, current)
	assert.True(t, IsPast(StageEstimateProvided, current))
	after := Resolve(StageEstimateProvided, current, RoleClient)
	assert.Equal(t, CategoryCompleted, after.Category)
	assert.False(t, after.HasAction)

	assert.ErrorIs(t, Advance(current, StageEstimateProvided), ErrStageRegression)
}

func TestTimeline(t *testing.T) {
	tl := Timeline(StageBookingPayment, RoleClient)
	require.Len(t, tl, 10)
	assert.Equal(t, StageLeadCollected, tl[0].Stage)
	assert.Equal(t, CategoryCompleted, tl[4].Category)
	assert.Equal(t, CategoryCurrent, tl[5].Category)
	assert.Equal(t, "Pay Booking Amount", tl[5].Label)
	assert.Equal(t, CategoryUpcoming, tl[6].Category)
}

func TestResolvePhase(t *testing.T) {
	current := PhaseState{PhaseDesign, StatusCreated}

	client := ResolvePhase(PhaseDesign, current, RoleClient)
	assert.Equal(t, "Review Design", client.Label)
	assert.True(t, client.HasAction)
	assert.Equal(t, ActionReviewDesign, client.Action)

	admin := ResolvePhase(PhaseDesign, current, RoleAdmin)
	assert.Equal(t, "Pending Approval", admin.Label)
	assert.False(t, admin.HasAction)

	past := ResolvePhase(PhaseEstimateReview, current, RoleAdmin)
	assert.Equal(t, CategoryCompleted, past.Category)
	assert.Equal(t, "Completed", past.Label)

	future := ResolvePhase(PhaseBooking, current, RoleClient)
	assert.Equal(t, CategoryUpcoming, future.Category)
	assert.False(t, future.HasAction)

	odd := ResolvePhase(PhaseDesign, PhaseState{PhaseDesign, StatusPaid}, RoleClient)
	assert.Equal(t, "View Details", odd.Label)
}

func TestPhaseTimeline_HasActionMatchesStyle(t *testing.T) {
	for key := range adminPhaseTable {
		for _, role := range allRoles {
			for _, cfg := range PhaseTimeline(PhaseState{key.phase, key.status}, role) {
				assert.Equal(t, cfg.Style == StylePrimary, cfg.HasAction, "%s %s %s", key.phase, key.status, role)
			}
		}
	}
	assert.Len(t, PhaseTimeline(InitialPhaseState(), RoleAdmin), len(Phases()))
}

func TestActionStages(t *testing.T) {
	assert.Equal(t, []Stage{StageLeadCollected}, ActionStages(ActionAddEstimate, RoleAdmin))
	assert.Equal(t, []Stage{StageEstimateProvided}, ActionStages(ActionReviewEstimate, RoleClient))
	assert.Equal(t,
		[]Stage{StageAgreementSigned, StageProjectStarted, StageInProgress},
		ActionStages(ActionAdvanceStage, RoleAdmin))
	assert.Empty(t, ActionStages(ActionReviewEstimate, RoleAdmin))
	assert.Empty(t, ActionStages(ActionReviewEstimate, RoleArchitect))

	for _, s := range ActionStages(ActionPayCharges, RoleClient) {
		cfg := Resolve(s, s, RoleClient)
		assert.True(t, cfg.HasAction)
		assert.Equal(t, ActionPayCharges, cfg.Action)
	}
}
