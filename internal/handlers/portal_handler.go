package handlers

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hrita/customer-portal/internal/database"
	"github.com/hrita/customer-portal/internal/middleware"
	"github.com/hrita/customer-portal/internal/models"
	"github.com/hrita/customer-portal/internal/services"
	"github.com/hrita/customer-portal/internal/utils"
	"github.com/hrita/customer-portal/internal/workflow"
	"github.com/sirupsen/logrus"
)

// PortalHandler serves the single portal endpoint and its read-only companions
type PortalHandler struct {
	portalService   *services.PortalService
	documentService *services.DocumentService
	logger          *logrus.Logger
}

// NewPortalHandler creates a new portal handler
func NewPortalHandler(portalService *services.PortalService, documentService *services.DocumentService, logger *logrus.Logger) *PortalHandler {
	return &PortalHandler{
		portalService:   portalService,
		documentService: documentService,
		logger:          logger,
	}
}

func success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, models.Envelope{Status: models.EnvelopeSuccess, Data: data})
}

func failure(c *gin.Context, status int, message string) {
	c.JSON(status, models.Envelope{Status: models.EnvelopeError, Message: message})
}

// statusFor maps service errors to an HTTP status. The body is the same
// error envelope whatever the status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrForbiddenAction):
		return http.StatusForbidden
	case errors.Is(err, services.ErrSubjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidPayload),
		errors.Is(err, services.ErrInvalidAction),
		errors.Is(err, workflow.ErrUnknownStage),
		errors.Is(err, workflow.ErrUnknownPhase),
		errors.Is(err, workflow.ErrUnknownPhaseStatus),
		errors.Is(err, workflow.ErrUnknownRole):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrStageMismatch),
		errors.Is(err, workflow.ErrStageRegression),
		errors.Is(err, workflow.ErrFinalStage),
		errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, database.ErrDuplicatePhone),
		errors.Is(err, database.ErrStageConflict),
		errors.Is(err, database.ErrPhaseConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail answers with the error envelope; internal errors are logged and hidden
func (h *PortalHandler) fail(c *gin.Context, err error, fields logrus.Fields) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.WithFields(fields).WithError(err).Error("Portal request failed")
		failure(c, status, "Something went wrong. Please try again.")
		return
	}
	h.logger.WithFields(fields).WithError(err).Info("Portal request rejected")
	failure(c, status, err.Error())
}

func actorFrom(c *gin.Context) (services.Actor, bool) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		return services.Actor{}, false
	}
	return services.Actor{
		UserID:    userCtx.UserID,
		Phone:     userCtx.Phone,
		Role:      userCtx.Role,
		IPAddress: utils.GetRealIP(c),
		UserAgent: utils.GetUserAgent(c),
	}, true
}

// dataRequest reads the phone and as query parameters
func dataRequest(c *gin.Context) (services.DataRequest, error) {
	req := services.DataRequest{Phone: c.Query("phone")}
	if as := c.Query("as"); as != "" {
		role, err := workflow.ParseRole(as)
		if err != nil {
			return req, err
		}
		req.ViewAs = role
	}
	return req, nil
}

// GetData handles GET /api/v1/portal/exec?action=getData
func (h *PortalHandler) GetData(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		failure(c, http.StatusUnauthorized, "User context not found")
		return
	}

	if action := c.DefaultQuery("action", string(workflow.ActionGetData)); action != string(workflow.ActionGetData) {
		failure(c, http.StatusBadRequest, "Only getData is served over GET")
		return
	}

	req, err := dataRequest(c)
	if err != nil {
		h.fail(c, err, logrus.Fields{"phone": actor.Phone})
		return
	}

	data, err := h.portalService.GetPortalData(c.Request.Context(), actor, req)
	if err != nil {
		h.fail(c, err, logrus.Fields{"phone": actor.Phone, "subject": req.Phone, "action": workflow.ActionGetData})
		return
	}

	success(c, data)
}

// Exec handles POST /api/v1/portal/exec
func (h *PortalHandler) Exec(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		failure(c, http.StatusUnauthorized, "User context not found")
		return
	}

	var req models.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	// getData is also accepted over POST for clients that only speak one verb
	if req.Action == string(workflow.ActionGetData) {
		data, err := h.portalService.GetPortalData(c.Request.Context(), actor, services.DataRequest{Phone: req.Phone})
		if err != nil {
			h.fail(c, err, logrus.Fields{"phone": actor.Phone, "subject": req.Phone, "action": req.Action})
			return
		}
		success(c, data)
		return
	}

	result, err := h.portalService.ExecuteAction(c.Request.Context(), actor, req)
	if err != nil {
		h.fail(c, err, logrus.Fields{"phone": actor.Phone, "subject": req.Phone, "action": req.Action})
		return
	}

	c.JSON(http.StatusOK, models.Envelope{
		Status:  models.EnvelopeSuccess,
		Message: "Action completed",
		Data:    result,
	})
}

// Timeline handles GET /api/v1/portal/timeline
func (h *PortalHandler) Timeline(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		failure(c, http.StatusUnauthorized, "User context not found")
		return
	}

	req, err := dataRequest(c)
	if err != nil {
		h.fail(c, err, logrus.Fields{"phone": actor.Phone})
		return
	}

	timeline, err := h.portalService.Timeline(c.Request.Context(), actor, req)
	if err != nil {
		h.fail(c, err, logrus.Fields{"phone": actor.Phone, "subject": req.Phone})
		return
	}

	success(c, timeline)
}

// EstimatePDF handles GET /api/v1/portal/estimates/:id/pdf
func (h *PortalHandler) EstimatePDF(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		failure(c, http.StatusUnauthorized, "User context not found")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		failure(c, http.StatusBadRequest, "Invalid estimate ID")
		return
	}

	fields := logrus.Fields{"phone": actor.Phone, "estimate_id": id}

	estimate, client, err := h.portalService.EstimateForActor(c.Request.Context(), actor, id)
	if err != nil {
		h.fail(c, err, fields)
		return
	}

	var buf bytes.Buffer
	if err := h.documentService.RenderEstimate(&buf, estimate, client); err != nil {
		h.fail(c, err, fields)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+services.EstimateFilename(estimate)+`"`)
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
