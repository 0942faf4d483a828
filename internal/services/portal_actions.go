package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hrita/customer-portal/internal/database"
	"github.com/hrita/customer-portal/internal/models"
	"github.com/hrita/customer-portal/internal/workflow"
	"github.com/sirupsen/logrus"
)

// actionCall carries one action through its transaction
type actionCall struct {
	ctx     context.Context
	r       repos
	actor   Actor
	action  workflow.Action
	subject *models.User
	req     models.ActionRequest
	result  *models.ActionResult

	entityType string
}

type actionFunc func(s *PortalService, call *actionCall) error

var actionHandlers = map[workflow.Action]actionFunc{
	workflow.ActionAddLead:           (*PortalService).addLead,
	workflow.ActionAddEstimate:       (*PortalService).addEstimate,
	workflow.ActionScheduleSiteVisit: (*PortalService).scheduleSiteVisit,
	workflow.ActionSubmitEstimate:    (*PortalService).submitEstimate,
	workflow.ActionUploadEstimate:    (*PortalService).uploadEstimate,
	workflow.ActionReviewEstimate:    (*PortalService).reviewEstimate,
	workflow.ActionUploadDesign:      (*PortalService).uploadDesign,
	workflow.ActionReviewDesign:      (*PortalService).reviewDesign,
	workflow.ActionPayCharges:        (*PortalService).payCharges,
	workflow.ActionVerifyPayment:     (*PortalService).verifyPayment,
	workflow.ActionAdvanceStage:      (*PortalService).advanceStage,
	workflow.ActionUpdatePhase:       (*PortalService).updatePhase,
	workflow.ActionAddViewer:         (*PortalService).addViewer,
}

// extraStages lists stages where an action is accepted although the
// current-stage button points elsewhere
var extraStages = map[workflow.Action][]workflow.Stage{
	// revision after the client asked for changes
	workflow.ActionUploadEstimate: {workflow.StageEstimateProvided},
	// post-installation payment
	workflow.ActionPayCharges:     {workflow.StageInProgress, workflow.StageFinalHandover},
	workflow.ActionVerifyPayment:  {workflow.StageInProgress, workflow.StageFinalHandover},
}

// anyStage actions are gated by role only
var anyStage = map[workflow.Action]bool{
	workflow.ActionUpdatePhase: true,
	workflow.ActionAddViewer:   true,
}

// ExecuteAction performs one mutating action in a transaction and records it
// in the audit log
func (s *PortalService) ExecuteAction(ctx context.Context, actor Actor, req models.ActionRequest) (*models.ActionResult, error) {
	action, err := workflow.ParseAction(req.Action)
	if err != nil || action == workflow.ActionGetData {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, req.Action)
	}
	if !action.Allows(actor.Role) {
		return nil, ErrForbiddenAction
	}

	subjectPhone := actor.Phone
	if actor.Role == workflow.RoleAdmin && action != workflow.ActionAddLead {
		if req.Phone == "" {
			return nil, fmt.Errorf("%w: phone is required", ErrInvalidPayload)
		}
		if subjectPhone, err = s.normalizePhone(req.Phone); err != nil {
			return nil, err
		}
	}

	result := &models.ActionResult{Action: action, Phone: subjectPhone}

	err = database.WithTransaction(ctx, s.db, func(q database.Querier) error {
		call := &actionCall{
			ctx:    ctx,
			r:      newRepos(q),
			actor:  actor,
			action: action,
			req:    req,
			result: result,
		}

		if action != workflow.ActionAddLead {
			subject, err := s.loadSubject(ctx, call.r.users, subjectPhone)
			if err != nil {
				return err
			}
			if !stageAllows(action, actor.Role, subject.Stage) {
				return fmt.Errorf("%w: %s at %s", ErrStageMismatch, action, subject.Stage)
			}
			call.subject = subject
		}

		if err := actionHandlers[action](s, call); err != nil {
			return err
		}

		result.Phone = call.subject.Phone
		result.Stage = call.subject.Stage
		if !result.Advanced && action != workflow.ActionAddLead {
			if err := call.r.users.Touch(ctx, call.subject.Phone); err != nil {
				return err
			}
		}

		return s.audit.LogPortalAction(ctx, q, AuditEvent{
			UserID:       &actor.UserID,
			SubjectPhone: call.subject.Phone,
			Action:       string(action),
			EntityType:   call.entityType,
			EntityID:     result.EntityID,
			IPAddress:    actor.IPAddress,
			UserAgent:    actor.UserAgent,
			Details: map[string]interface{}{
				"role":     actor.Role,
				"stage":    result.Stage,
				"advanced": result.Advanced,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"action":   action,
		"actor":    actor.Phone,
		"subject":  result.Phone,
		"stage":    result.Stage,
		"advanced": result.Advanced,
	}).Info("Portal action completed")

	return result, nil
}

func stageAllows(action workflow.Action, role workflow.Role, stage workflow.Stage) bool {
	if anyStage[action] {
		return true
	}
	for _, s := range workflow.ActionStages(action, role) {
		if s == stage {
			return true
		}
	}
	for _, s := range extraStages[action] {
		if s == stage {
			return true
		}
	}
	return false
}

// advance moves the subject exactly one stage forward
func (c *actionCall) advance(to workflow.Stage) error {
	from := c.subject.Stage
	if err := workflow.Advance(from, to); err != nil {
		return err
	}
	if err := c.r.users.UpdateStage(c.ctx, c.subject.Phone, from, to); err != nil {
		return err
	}
	c.subject.Stage = to
	c.result.Advanced = true
	return nil
}

// opportunity returns the subject's opportunity, creating it on first use
func (c *actionCall) opportunity() (*models.Opportunity, error) {
	opp, err := c.r.opportunities.GetByClient(c.ctx, c.subject.Phone)
	if err != nil {
		return nil, err
	}
	if opp != nil {
		return opp, nil
	}
	return c.r.opportunities.Create(c.ctx, c.subject.Phone, "")
}

// movePhase applies status moves to the opportunity and stores the result
func (c *actionCall) movePhase(opp *models.Opportunity, statuses ...workflow.PhaseStatus) error {
	from := opp.State()
	to, err := workflow.Drive(from, statuses...)
	if err != nil {
		return err
	}
	if err := c.r.opportunities.UpdateState(c.ctx, opp.ID, from, to); err != nil {
		return err
	}
	opp.SetState(to)
	c.result.Phase = &to
	return nil
}

func (c *actionCall) setEntity(kind string, id uuid.UUID) {
	c.entityType = kind
	c.result.EntityID = &id
}

func (s *PortalService) addLead(call *actionCall) error {
	var p models.AddLeadPayload
	if err := decodePayload(call.req.Payload, &p); err != nil {
		return err
	}

	phone, err := s.normalizePhone(p.Phone)
	if err != nil {
		return err
	}

	user := &models.User{
		Phone: phone,
		Name:  strings.TrimSpace(p.Name),
		Email: models.NewNullString(p.Email),
		City:  models.NewNullString(p.City),
		Role:  workflow.RoleClient,
	}
	if err := call.r.users.CreateUser(call.ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicatePhone) {
			return fmt.Errorf("%w: a client with phone %s already exists", ErrInvalidPayload, phone)
		}
		return err
	}

	if _, err := call.r.opportunities.Create(call.ctx, phone, p.Notes); err != nil {
		return err
	}

	call.subject = user
	call.setEntity("user", user.ID)
	return nil
}

func (s *PortalService) addEstimate(call *actionCall) error {
	var p models.EstimatePayload
	if err := decodePayload(call.req.Payload, &p); err != nil {
		return err
	}

	estimate := s.newEstimate(call, p, models.EstimateDraft)
	if err := call.r.estimates.Create(call.ctx, estimate); err != nil {
		return err
	}

	call.setEntity("estimate", estimate.ID)
	return call.advance(workflow.StageContacted)
}

func (s *PortalService) scheduleSiteVisit(call *actionCall) error {
	var p models.SiteVisitPayload
	if err := decodePayload(call.req.Payload, &p); err != nil {
		return err
	}

	opp, err := call.opportunity()
	if err != nil {
		return err
	}
	if err := call.r.opportunities.SetSiteVisit(call.ctx, opp.ID, p.VisitAt); err != nil {
		return err
	}

	call.setEntity("opportunity", opp.ID)
	return call.advance(workflow.StageSiteVisit)
}

func (s *PortalService) submitEstimate(call *actionCall) error {
	var p models.EstimateRequestPayload
	if err := decodePayload(call.req.Payload, &p); err != nil {
		return err
	}

	opp, err := call.opportunity()
	if err != nil {
		return err
	}
	if err := call.movePhase(opp, workflow.StatusPending); err != nil {
		return err
	}
	if err := call.r.opportunities.SetRequest(call.ctx, opp.ID, p.Requirements, p.Budget); err != nil {
		return err
	}

	call.setEntity("opportunity", opp.ID)
	return nil
}

// uploadEstimate shares an estimate with the client. It shares the given or
// latest draft, or creates a new estimate from the payload.
func (s *PortalService) uploadEstimate(call *actionCall) error {
	var p models.EstimatePayload
	if err := decodePayload(call.req.Payload, &p); err != nil {
		return err
	}

	estimate, err := s.estimateToShare(call, p)
	if err != nil {
		return err
	}

	if err := call.r.estimates.SupersedeOpen(call.ctx, call.subject.Phone); err != nil {
		return err
	}

	if estimate.Version == 0 {
		if err := call.r.estimates.Create(call.ctx, estimate); err != nil {
			return err
		}
	} else if err := call.r.estimates.Update(call.ctx, estimate); err != nil {
		return err
	}

	opp, err := call.opportunity()
	if err != nil {
		return err
	}
	switch state := opp.State(); {
	case state.Phase == workflow.PhaseEstimateRequest && state.Status == workflow.StatusNotRequested:
		err = call.movePhase(opp, workflow.StatusPending, workflow.StatusCompleted)
	case state.Phase == workflow.PhaseEstimateRequest:
		err = call.movePhase(opp, workflow.StatusCompleted)
	case state.Phase == workflow.PhaseEstimateReview && state.Status == workflow.StatusChangesRequested:
		err = call.movePhase(opp, workflow.StatusCreated)
	}
	if err != nil {
		return err
	}

	call.setEntity("estimate", estimate.ID)
	if call.subject.Stage == workflow.StageSiteVisit {
		return call.advance(workflow.StageEstimateProvided)
	}
	return nil
}

func (s *PortalService) estimateToShare(call *actionCall, p models.EstimatePayload) (*models.Estimate, error) {
	var draft *models.Estimate
	var err error

	switch {
	case p.EstimateID != nil:
		draft, err = call.r.estimates.GetByID(call.ctx, *p.EstimateID)
		if err != nil {
			return nil, err
		}
		if draft == nil || draft.ClientPhone != call.subject.Phone || draft.Status != models.EstimateDraft {
			return nil, fmt.Errorf("%w: estimate is not a draft of this client", ErrInvalidPayload)
		}
	case p.Amount == 0:
		draft, err = call.r.estimates.LatestDraft(call.ctx, call.subject.Phone)
		if err != nil {
			return nil, err
		}
		if draft == nil {
			// line items price the estimate on their own
			if len(p.Items) > 0 {
				return s.newEstimate(call, p, models.EstimateShared), nil
			}
			return nil, fmt.Errorf("%w: amount or items are required when no draft exists", ErrInvalidPayload)
		}
	default:
		return s.newEstimate(call, p, models.EstimateShared), nil
	}

	applyEstimatePayload(draft, p)
	draft.Status = models.EstimateShared
	return draft, nil
}

func (s *PortalService) newEstimate(call *actionCall, p models.EstimatePayload, status models.EstimateStatus) *models.Estimate {
	e := &models.Estimate{
		ClientPhone: call.subject.Phone,
		Title:       "Estimate",
		Currency:    s.cfg.DefaultCurrency,
		Status:      status,
		CreatedBy:   uuid.NullUUID{UUID: call.actor.UserID, Valid: call.actor.UserID != uuid.Nil},
	}
	applyEstimatePayload(e, p)
	return e
}

func applyEstimatePayload(e *models.Estimate, p models.EstimatePayload) {
	if p.Title != "" {
		e.Title = p.Title
	}
	if p.Currency != "" {
		e.Currency = strings.ToUpper(p.Currency)
	}
	if len(p.Items) > 0 {
		e.Items = p.Items
		e.Amount = p.Items.Sum()
	}
	if p.Amount > 0 {
		e.Amount = p.Amount
	}
	if p.FileURL != "" {
		e.FileURL = models.NewNullString(p.FileURL)
	}
	if p.Notes != "" {
		e.Notes = models.NewNullString(p.Notes)
	}
}

func (s *PortalService) reviewEstimate(call *actionCall) error {
	var p models.ReviewPayload
	if err := decodeReview(call, &p); err != nil {
		return err
	}

	estimate, err := call.r.estimates.GetByID(call.ctx, p.ID)
	if err != nil {
		return err
	}
	if estimate == nil || estimate.ClientPhone != call.subject.Phone || estimate.Status != models.EstimateShared {
		return fmt.Errorf("%w: estimate is not awaiting review", ErrInvalidPayload)
	}

	opp, err := call.opportunity()
	if err != nil {
		return err
	}

	call.setEntity("estimate", estimate.ID)

	if p.Decision == models.DecisionChangesRequested {
		if err := call.r.estimates.SetStatus(call.ctx, estimate.ID, models.EstimateChangesRequested, p.Comment); err != nil {
			return err
		}
		return call.movePhase(opp, workflow.StatusChangesRequested)
	}

	if err := call.r.estimates.SetStatus(call.ctx, estimate.ID, models.EstimateApproved, p.Comment); err != nil {
		return err
	}
	if err := call.movePhase(opp, workflow.StatusApproved); err != nil {
		return err
	}
	return call.advance(workflow.StageDesignPhase)
}

func (s *PortalService) uploadDesign(call *actionCall) error {
	var p models.DesignPayload
	if err := decodePayload(call.req.Payload, &p); err != nil {
		return err
	}
	if len(p.FileURLs) == 0 {
		return fmt.Errorf("%w: at least one file is required", ErrInvalidPayload)
	}

	opp, err := call.opportunity()
	if err != nil {
		return err
	}
	if state := opp.State(); state.Phase == workflow.PhaseDesign && state.Status != workflow.StatusCreated {
		if err := call.movePhase(opp, workflow.StatusCreated); err != nil {
			return err
		}
	} else if state.Phase != workflow.PhaseDesign {
		return fmt.Errorf("%w: opportunity is in phase %s", ErrStageMismatch, state.Phase)
	}

	if err := call.r.designs.SupersedeOpen(call.ctx, call.subject.Phone); err != nil {
		return err
	}

	design := &models.Design{
		ClientPhone: call.subject.Phone,
		Title:       p.Title,
		FileURLs:    p.FileURLs,
		Notes:       models.NewNullString(p.Notes),
		Status:      models.DesignShared,
	}
	if err := call.r.designs.Create(call.ctx, design); err != nil {
		return err
	}

	call.setEntity("design", design.ID)
	return nil
}

func (s *PortalService) reviewDesign(call *actionCall) error {
	var p models.ReviewPayload
	if err := decodeReview(call, &p); err != nil {
		return err
	}

	design, err := call.r.designs.GetByID(call.ctx, p.ID)
	if err != nil {
		return err
	}
	if design == nil || design.ClientPhone != call.subject.Phone || design.Status != models.DesignShared {
		return fmt.Errorf("%w: design is not awaiting review", ErrInvalidPayload)
	}

	opp, err := call.opportunity()
	if err != nil {
		return err
	}

	call.setEntity("design", design.ID)

	if p.Decision == models.DecisionChangesRequested {
		if err := call.r.designs.SetStatus(call.ctx, design.ID, models.DesignChangesRequested, p.Comment); err != nil {
			return err
		}
		return call.movePhase(opp, workflow.StatusChangesRequested)
	}

	if err := call.r.designs.SetStatus(call.ctx, design.ID, models.DesignApproved, p.Comment); err != nil {
		return err
	}
	if err := call.movePhase(opp, workflow.StatusApproved); err != nil {
		return err
	}
	return call.advance(workflow.StageBookingPayment)
}

func decodeReview(call *actionCall, p *models.ReviewPayload) error {
	if err := decodePayload(call.req.Payload, p); err != nil {
		return err
	}
	switch p.Decision {
	case models.DecisionApproved, models.DecisionChangesRequested:
	default:
		return fmt.Errorf("%w: decision must be approved or changes_requested", ErrInvalidPayload)
	}
	if p.Decision == models.DecisionChangesRequested && strings.TrimSpace(p.Comment) == "" {
		return fmt.Errorf("%w: a comment is required when requesting changes", ErrInvalidPayload)
	}
	return nil
}

// paymentPhase is the opportunity phase a payment kind settles
func paymentPhase(kind models.PaymentKind) workflow.Phase {
	if kind == models.PaymentFinal {
		return workflow.PhasePostInstallationPayment
	}
	return workflow.PhaseBooking
}

func (s *PortalService) payCharges(call *actionCall) error {
	var p models.PayChargesPayload
	if err := decodePayload(call.req.Payload, &p); err != nil {
		return err
	}
	if p.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidPayload)
	}

	if p.Kind == "" {
		p.Kind = models.PaymentBooking
		if call.subject.Stage != workflow.StageBookingPayment {
			p.Kind = models.PaymentFinal
		}
	}
	if (p.Kind == models.PaymentBooking) != (call.subject.Stage == workflow.StageBookingPayment) {
		return fmt.Errorf("%w: %s payment at %s", ErrStageMismatch, p.Kind, call.subject.Stage)
	}

	opp, err := call.opportunity()
	if err != nil {
		return err
	}
	if opp.Phase != paymentPhase(p.Kind) {
		return fmt.Errorf("%w: opportunity is in phase %s", ErrStageMismatch, opp.Phase)
	}
	if err := call.movePhase(opp, workflow.StatusVerificationPending); err != nil {
		return err
	}

	payment := &models.Payment{
		ClientPhone: call.subject.Phone,
		Kind:        p.Kind,
		Amount:      p.Amount,
		Reference:   strings.TrimSpace(p.Reference),
	}
	if err := call.r.payments.Create(call.ctx, payment); err != nil {
		return err
	}

	call.setEntity("payment", payment.ID)
	return nil
}

func (s *PortalService) verifyPayment(call *actionCall) error {
	var p models.VerifyPaymentPayload
	if err := decodePayload(call.req.Payload, &p); err != nil {
		return err
	}

	payment, err := call.r.payments.GetByID(call.ctx, p.PaymentID)
	if err != nil {
		return err
	}
	if payment == nil || payment.ClientPhone != call.subject.Phone || payment.Status != models.PaymentPendingVerification {
		return fmt.Errorf("%w: payment is not awaiting verification", ErrInvalidPayload)
	}

	opp, err := call.opportunity()
	if err != nil {
		return err
	}
	if opp.Phase != paymentPhase(payment.Kind) {
		return fmt.Errorf("%w: opportunity is in phase %s", ErrStageMismatch, opp.Phase)
	}

	call.setEntity("payment", payment.ID)

	if !p.Approved {
		if err := call.r.payments.Resolve(call.ctx, payment.ID, models.PaymentRejected, p.Note); err != nil {
			return err
		}
		return call.movePhase(opp, workflow.StatusPending)
	}

	if err := call.r.payments.Resolve(call.ctx, payment.ID, models.PaymentVerified, p.Note); err != nil {
		return err
	}
	if err := call.movePhase(opp, workflow.StatusPaid); err != nil {
		return err
	}
	if payment.Kind == models.PaymentBooking {
		return call.advance(workflow.StageAgreementSigned)
	}
	return nil
}

func (s *PortalService) advanceStage(call *actionCall) error {
	var p models.AdvanceStagePayload
	if err := decodePayload(call.req.Payload, &p); err != nil {
		return err
	}

	next, ok := workflow.Next(call.subject.Stage)
	if !ok {
		return workflow.ErrFinalStage
	}
	if p.To != "" && p.To != next {
		return workflow.Advance(call.subject.Stage, p.To)
	}
	return call.advance(next)
}

// updatePhase lets admins record shipping and installation progress
func (s *PortalService) updatePhase(call *actionCall) error {
	var p models.UpdatePhasePayload
	if err := decodePayload(call.req.Payload, &p); err != nil {
		return err
	}

	opp, err := call.opportunity()
	if err != nil {
		return err
	}
	if opp.Phase != workflow.PhaseShipping && opp.Phase != workflow.PhaseInstallation {
		return fmt.Errorf("%w: phase %s is driven by client actions", ErrStageMismatch, opp.Phase)
	}

	call.setEntity("opportunity", opp.ID)
	return call.movePhase(opp, p.Status)
}

func (s *PortalService) addViewer(call *actionCall) error {
	var p models.AddViewerPayload
	if err := decodePayload(call.req.Payload, &p); err != nil {
		return err
	}

	phone, err := s.normalizePhone(p.Phone)
	if err != nil {
		return err
	}

	viewer, err := call.r.users.GetUserByPhone(call.ctx, phone)
	if err != nil {
		return err
	}
	if viewer == nil {
		viewer = &models.User{Phone: phone, Name: strings.TrimSpace(p.Name), Role: workflow.RoleArchitect}
		if err := call.r.users.CreateUser(call.ctx, viewer); err != nil {
			return err
		}
	} else if viewer.Role != workflow.RoleArchitect {
		return fmt.Errorf("%w: %s is not a viewer account", ErrInvalidPayload, phone)
	}

	if err := call.r.viewers.Add(call.ctx, call.subject.Phone, phone); err != nil {
		return err
	}

	call.setEntity("user", viewer.ID)
	return nil
}
