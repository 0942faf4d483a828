package workflow

import (
	"errors"
	"fmt"
)

// Role is the viewer role a descriptor is resolved for
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleClient    Role = "client"
	RoleArchitect Role = "architect"
)

// ErrUnknownRole indicates a role outside admin/client/architect
var ErrUnknownRole = errors.New("unknown role")

// ParseRole converts a stored role into a Role
func ParseRole(value string) (Role, error) {
	switch Role(value) {
	case RoleAdmin, RoleClient, RoleArchitect:
		return Role(value), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, value)
	}
}

// Action is a verb accepted by the portal action endpoint
type Action string

const (
	ActionGetData           Action = "getData"
	ActionAddLead           Action = "addLead"
	ActionAddEstimate       Action = "addEstimate"
	ActionScheduleSiteVisit Action = "scheduleSiteVisit"
	ActionSubmitEstimate    Action = "submitEstimate"
	ActionUploadEstimate    Action = "uploadEstimate"
	ActionReviewEstimate    Action = "reviewEstimate"
	ActionUploadDesign      Action = "uploadDesign"
	ActionReviewDesign      Action = "reviewDesign"
	ActionPayCharges        Action = "payCharges"
	ActionVerifyPayment     Action = "verifyPayment"
	ActionAdvanceStage      Action = "advanceStage"
	ActionUpdatePhase       Action = "updatePhase"
	ActionAddViewer         Action = "addViewer"
)

// actionRoles lists who may invoke each mutating action
var actionRoles = map[Action][]Role{
	ActionAddLead:           {RoleAdmin},
	ActionAddEstimate:       {RoleAdmin},
	ActionScheduleSiteVisit: {RoleAdmin},
	ActionSubmitEstimate:    {RoleClient},
	ActionUploadEstimate:    {RoleAdmin},
	ActionReviewEstimate:    {RoleClient},
	ActionUploadDesign:      {RoleAdmin},
	ActionReviewDesign:      {RoleClient},
	ActionPayCharges:        {RoleClient},
	ActionVerifyPayment:     {RoleAdmin},
	ActionAdvanceStage:      {RoleAdmin},
	ActionUpdatePhase:       {RoleAdmin},
	ActionAddViewer:         {RoleAdmin, RoleClient},
}

// ParseAction validates an action name. getData is accepted as the read verb.
func ParseAction(value string) (Action, error) {
	a := Action(value)
	if a == ActionGetData {
		return a, nil
	}
	if _, ok := actionRoles[a]; !ok {
		return "", fmt.Errorf("unknown action: %q", value)
	}
	return a, nil
}

// Allows reports whether role may invoke action
func (a Action) Allows(role Role) bool {
	for _, r := range actionRoles[a] {
		if r == role {
			return true
		}
	}
	return false
}
