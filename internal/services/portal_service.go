package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/hrita/customer-portal/internal/config"
	"github.com/hrita/customer-portal/internal/database"
	"github.com/hrita/customer-portal/internal/models"
	"github.com/hrita/customer-portal/internal/workflow"
	"github.com/hrita/customer-portal/pkg/validator"
	"github.com/sirupsen/logrus"
)

var (
	// ErrSubjectNotFound indicates the phone does not belong to a client
	ErrSubjectNotFound = errors.New("client not found")

	// ErrForbiddenAction indicates the caller's role may not perform the action
	ErrForbiddenAction = errors.New("action not allowed for this role")

	// ErrStageMismatch indicates the action is not available at the client's current stage
	ErrStageMismatch = errors.New("action not available at the current stage")

	// ErrInvalidPayload indicates a missing or malformed action payload
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrInvalidAction indicates an action name outside the supported set
	ErrInvalidAction = errors.New("invalid action")
)

// Actor is the authenticated caller of a portal operation
type Actor struct {
	UserID    uuid.UUID
	Phone     string
	Role      workflow.Role
	IPAddress string
	UserAgent string
}

// PortalService implements the data and action verbs of the portal
type PortalService struct {
	db     database.DB
	audit  *AuditService
	phones *validator.PhoneValidator
	cfg    config.PortalConfig
	logger *logrus.Logger
}

// NewPortalService creates a new portal service
func NewPortalService(db database.DB, audit *AuditService, cfg config.PortalConfig, logger *logrus.Logger) *PortalService {
	return &PortalService{
		db:     db,
		audit:  audit,
		phones: validator.NewPhoneValidator(),
		cfg:    cfg,
		logger: logger,
	}
}

// repos groups the repositories bound to one Querier
type repos struct {
	users         *database.UserRepository
	estimates     *database.EstimateRepository
	designs       *database.DesignRepository
	opportunities *database.OpportunityRepository
	payments      *database.PaymentRepository
	viewers       *database.ViewerRepository
}

func newRepos(q database.Querier) repos {
	return repos{
		users:         database.NewUserRepository(q),
		estimates:     database.NewEstimateRepository(q),
		designs:       database.NewDesignRepository(q),
		opportunities: database.NewOpportunityRepository(q),
		payments:      database.NewPaymentRepository(q),
		viewers:       database.NewViewerRepository(q),
	}
}

// DataRequest selects whose dashboard is fetched and through which role's eyes
type DataRequest struct {
	Phone  string        // subject client; ignored for clients
	ViewAs workflow.Role // admins may render a client's view
}

// GetPortalData assembles the dashboard payload for the actor.
//
// Clients always receive their own project. Admins without a phone get the
// admin overview; with a phone they open that client's project. Architects
// may only open projects they were added to.
func (s *PortalService) GetPortalData(ctx context.Context, actor Actor, req DataRequest) (*models.PortalData, error) {
	r := newRepos(s.db)

	self, err := r.users.GetUserByPhone(ctx, actor.Phone)
	if err != nil {
		return nil, err
	}
	if self == nil {
		return nil, ErrSubjectNotFound
	}

	subjectPhone, err := s.resolveSubject(ctx, r, actor, req.Phone)
	if err != nil {
		return nil, err
	}

	viewRole := s.viewRole(actor, req.ViewAs)
	data := &models.PortalData{
		User:       self,
		ViewRole:   viewRole,
		Recents:    []models.RecentActivity{},
		AllClients: []models.ClientSummary{},
		Timeline:   []workflow.StageConfig{},
	}

	if actor.Role == workflow.RoleAdmin {
		if data.AllClients, err = r.users.ListClients(ctx, s.cfg.ClientListLimit); err != nil {
			return nil, err
		}
	}

	if subjectPhone == "" {
		if actor.Role == workflow.RoleAdmin {
			if data.Recents, err = s.audit.RecentActivity(ctx, "", s.cfg.RecentsLimit); err != nil {
				return nil, err
			}
		}
		return data, nil
	}

	subject, err := s.loadSubject(ctx, r.users, subjectPhone)
	if err != nil {
		return nil, err
	}
	data.User = subject

	if data.Recents, err = s.audit.RecentActivity(ctx, subject.Phone, s.cfg.RecentsLimit); err != nil {
		return nil, err
	}
	if err := s.loadProject(ctx, r, subject.Phone, viewRole, data); err != nil {
		return nil, err
	}

	data.Timeline = workflow.Timeline(subject.Stage, viewRole)
	if data.Opportunity != nil {
		data.Phases = workflow.PhaseTimeline(data.Opportunity.State(), viewRole)
	}

	return data, nil
}

// Timeline resolves only the stage and phase timelines of a client
func (s *PortalService) Timeline(ctx context.Context, actor Actor, req DataRequest) (*models.TimelineResponse, error) {
	r := newRepos(s.db)

	subjectPhone, err := s.resolveSubject(ctx, r, actor, req.Phone)
	if err != nil {
		return nil, err
	}
	if subjectPhone == "" {
		return nil, fmt.Errorf("%w: phone is required", ErrInvalidPayload)
	}

	subject, err := s.loadSubject(ctx, r.users, subjectPhone)
	if err != nil {
		return nil, err
	}

	viewRole := s.viewRole(actor, req.ViewAs)
	resp := &models.TimelineResponse{
		Phone:    subject.Phone,
		Stage:    subject.Stage,
		ViewRole: viewRole,
		Timeline: workflow.Timeline(subject.Stage, viewRole),
	}

	opp, err := r.opportunities.GetByClient(ctx, subject.Phone)
	if err != nil {
		return nil, err
	}
	if opp != nil {
		resp.Phases = workflow.PhaseTimeline(opp.State(), viewRole)
	}

	return resp, nil
}

// EstimateForActor returns an estimate the actor is allowed to see
func (s *PortalService) EstimateForActor(ctx context.Context, actor Actor, id uuid.UUID) (*models.Estimate, *models.User, error) {
	r := newRepos(s.db)

	estimate, err := r.estimates.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if estimate == nil {
		return nil, nil, ErrSubjectNotFound
	}

	if _, err := s.resolveSubject(ctx, r, actor, estimate.ClientPhone); err != nil {
		return nil, nil, err
	}
	if actor.Role == workflow.RoleClient && actor.Phone != estimate.ClientPhone {
		return nil, nil, ErrForbiddenAction
	}
	if actor.Role != workflow.RoleAdmin && estimate.Status == models.EstimateDraft {
		return nil, nil, ErrSubjectNotFound
	}

	client, err := s.loadSubject(ctx, r.users, estimate.ClientPhone)
	if err != nil {
		return nil, nil, err
	}

	return estimate, client, nil
}

// resolveSubject decides whose project the actor is looking at.
// An empty result means the admin overview.
func (s *PortalService) resolveSubject(ctx context.Context, r repos, actor Actor, phone string) (string, error) {
	switch actor.Role {
	case workflow.RoleClient:
		return actor.Phone, nil

	case workflow.RoleAdmin:
		if phone == "" {
			return "", nil
		}
		return s.normalizePhone(phone)

	case workflow.RoleArchitect:
		if !s.cfg.ArchitectEnabled {
			return "", ErrForbiddenAction
		}
		if phone == "" {
			projects, err := r.viewers.ClientsForViewer(ctx, actor.Phone)
			if err != nil {
				return "", err
			}
			if len(projects) == 0 {
				return "", nil
			}
			return projects[0], nil
		}
		normalized, err := s.normalizePhone(phone)
		if err != nil {
			return "", err
		}
		ok, err := r.viewers.CanView(ctx, normalized, actor.Phone)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", ErrForbiddenAction
		}
		return normalized, nil

	default:
		return "", ErrForbiddenAction
	}
}

// viewRole is the role the timeline is resolved for
func (s *PortalService) viewRole(actor Actor, viewAs workflow.Role) workflow.Role {
	if actor.Role == workflow.RoleAdmin && (viewAs == workflow.RoleClient || viewAs == workflow.RoleArchitect) {
		return viewAs
	}
	return actor.Role
}

func (s *PortalService) normalizePhone(phone string) (string, error) {
	normalized, err := s.phones.Validate(phone)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return normalized, nil
}

func (s *PortalService) loadSubject(ctx context.Context, users *database.UserRepository, phone string) (*models.User, error) {
	subject, err := users.GetUserByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if subject == nil || subject.Role != workflow.RoleClient {
		return nil, ErrSubjectNotFound
	}
	return subject, nil
}

// loadProject fills the project records of a client. Drafts stay hidden
// from everyone but admins.
func (s *PortalService) loadProject(ctx context.Context, r repos, phone string, viewRole workflow.Role, data *models.PortalData) error {
	estimates, err := r.estimates.ListByClient(ctx, phone)
	if err != nil {
		return err
	}
	if viewRole != workflow.RoleAdmin {
		visible := estimates[:0]
		for _, e := range estimates {
			if e.Status != models.EstimateDraft {
				visible = append(visible, e)
			}
		}
		estimates = visible
	}
	data.Estimates = estimates

	if data.Designs, err = r.designs.ListByClient(ctx, phone); err != nil {
		return err
	}
	if data.Opportunity, err = r.opportunities.GetByClient(ctx, phone); err != nil {
		return err
	}
	if data.Payments, err = r.payments.ListByClient(ctx, phone); err != nil {
		return err
	}
	if data.Viewers, err = r.viewers.ListByClient(ctx, phone); err != nil {
		return err
	}

	return nil
}

// decodePayload unmarshals an action payload and applies its binding rules
func decodePayload(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := binding.Validator.ValidateStruct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
