package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/hrita/customer-portal/internal/config"
	"github.com/hrita/customer-portal/internal/database"
	"github.com/hrita/customer-portal/internal/middleware"
	"github.com/hrita/customer-portal/internal/models"
	"github.com/hrita/customer-portal/internal/services"
	"github.com/hrita/customer-portal/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var estimateColumns = []string{"id", "client_phone", "title", "amount", "currency", "line_items", "file_url", "notes", "status", "version", "review_note", "created_by", "created_at", "updated_at"}

func setupPortalHandler(t *testing.T) (*PortalHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	cfg := testConfig()
	logger := quietLogger()

	portal := services.NewPortalService(db, services.NewAuditService(db), cfg.Portal, logger)
	docs := services.NewDocumentService(config.DocumentsConfig{CompanyName: "Hrita Interiors"})
	return NewPortalHandler(portal, docs, logger), mock
}

func adminContext() *middleware.UserContext {
	return &middleware.UserContext{UserID: uuid.New(), Phone: adminPhone, Role: workflow.RoleAdmin}
}

func decodeEnvelope(t *testing.T, body []byte) (models.Envelope, json.RawMessage) {
	t.Helper()
	var raw struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &raw))
	return models.Envelope{Status: raw.Status, Message: raw.Message}, raw.Data
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{services.ErrForbiddenAction, http.StatusForbidden},
		{services.ErrSubjectNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: amount must be positive", services.ErrInvalidPayload), http.StatusBadRequest},
		{services.ErrInvalidAction, http.StatusBadRequest},
		{workflow.ErrUnknownRole, http.StatusBadRequest},
		{services.ErrStageMismatch, http.StatusConflict},
		{workflow.ErrStageRegression, http.StatusConflict},
		{workflow.ErrInvalidTransition, http.StatusConflict},
		{database.ErrDuplicatePhone, http.StatusConflict},
		{database.ErrStageConflict, http.StatusConflict},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.status, statusFor(tt.err))
		})
	}
}

func TestPortalGetData_AdminOverview(t *testing.T) {
	handler, mock := setupPortalHandler(t)

	mock.ExpectQuery(`SELECT (.+) FROM users WHERE phone`).WithArgs(adminPhone).
		WillReturnRows(userRow(uuid.New(), adminPhone, workflow.RoleAdmin, "active"))
	mock.ExpectQuery(`SELECT phone, name, city, stage, updated_at FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"phone", "name", "city", "stage", "updated_at"}).
			AddRow(clientPhone, "Asha Rao", "Pune", "SiteVisit", time.Now()))
	mock.ExpectQuery(`FROM audit_logs a`).
		WillReturnRows(sqlmock.NewRows([]string{"action", "subject_phone", "subject_name", "details", "created_at"}))

	w := perform(handler.GetData, http.MethodGet, "/api/v1/portal/exec?action=getData", nil, adminContext())

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	envelope, data := decodeEnvelope(t, w.Body.Bytes())
	assert.Equal(t, models.EnvelopeSuccess, envelope.Status)

	var portalData models.PortalData
	require.NoError(t, json.Unmarshal(data, &portalData))
	require.Len(t, portalData.AllClients, 1)
	assert.Equal(t, clientPhone, portalData.AllClients[0].Phone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPortalGetData_UnknownSubjectIsErrorEnvelope(t *testing.T) {
	handler, mock := setupPortalHandler(t)

	mock.ExpectQuery(`SELECT (.+) FROM users WHERE phone`).WithArgs(adminPhone).
		WillReturnRows(userRow(uuid.New(), adminPhone, workflow.RoleAdmin, "active"))
	mock.ExpectQuery(`SELECT phone, name, city, stage, updated_at FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"phone", "name", "city", "stage", "updated_at"}))
	mock.ExpectQuery(`SELECT (.+) FROM users WHERE phone`).WithArgs(clientPhone).
		WillReturnRows(sqlmock.NewRows(userColumns))

	w := perform(handler.GetData, http.MethodGet, "/api/v1/portal/exec?action=getData&phone=9876543210", nil, adminContext())

	assert.Equal(t, http.StatusNotFound, w.Code)
	envelope, data := decodeEnvelope(t, w.Body.Bytes())
	assert.Equal(t, models.EnvelopeError, envelope.Status)
	assert.Equal(t, services.ErrSubjectNotFound.Error(), envelope.Message)
	assert.Empty(t, data)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPortalGetData_Rejections(t *testing.T) {
	handler, _ := setupPortalHandler(t)

	t.Run("Other Action Over GET", func(t *testing.T) {
		w := perform(handler.GetData, http.MethodGet, "/api/v1/portal/exec?action=addLead", nil, adminContext())
		assert.Equal(t, http.StatusBadRequest, w.Code)
		envelope, _ := decodeEnvelope(t, w.Body.Bytes())
		assert.Equal(t, models.EnvelopeError, envelope.Status)
	})

	t.Run("Unknown View Role", func(t *testing.T) {
		w := perform(handler.GetData, http.MethodGet, "/api/v1/portal/exec?as=owner", nil, adminContext())
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("No User Context", func(t *testing.T) {
		w := perform(handler.GetData, http.MethodGet, "/api/v1/portal/exec", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		envelope, _ := decodeEnvelope(t, w.Body.Bytes())
		assert.Equal(t, models.EnvelopeError, envelope.Status)
	})
}

func TestPortalExec_Rejections(t *testing.T) {
	handler, mock := setupPortalHandler(t)
	client := clientContext(uuid.New())

	tests := []struct {
		name   string
		body   interface{}
		status int
	}{
		{"Missing Action", map[string]string{}, http.StatusBadRequest},
		{"Unknown Action", models.ActionRequest{Action: "deleteClient"}, http.StatusBadRequest},
		{"Client Adds Lead", models.ActionRequest{Action: "addLead", Payload: json.RawMessage(`{"name":"A","phone":"9123456789"}`)}, http.StatusForbidden},
		{"Client Verifies Payment", models.ActionRequest{Action: "verifyPayment"}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := perform(handler.Exec, http.MethodPost, "/api/v1/portal/exec", tt.body, client)
			assert.Equal(t, tt.status, w.Code)
			envelope, _ := decodeEnvelope(t, w.Body.Bytes())
			assert.Equal(t, models.EnvelopeError, envelope.Status)
			assert.NotEmpty(t, envelope.Message)
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPortalExec_InternalErrorIsHidden(t *testing.T) {
	handler, mock := setupPortalHandler(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM users WHERE phone`).
		WillReturnError(errors.New("pq: relation \"users\" does not exist"))
	mock.ExpectRollback()

	body := models.ActionRequest{Action: "advanceStage", Phone: clientPhone}
	w := perform(handler.Exec, http.MethodPost, "/api/v1/portal/exec", body, adminContext())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	envelope, _ := decodeEnvelope(t, w.Body.Bytes())
	assert.Equal(t, models.EnvelopeError, envelope.Status)
	assert.NotContains(t, envelope.Message, "relation")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPortalTimeline_AdminViewsAsClient(t *testing.T) {
	handler, mock := setupPortalHandler(t)

	now := time.Now()
	mock.ExpectQuery(`SELECT (.+) FROM users WHERE phone`).WithArgs(clientPhone).
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(
			uuid.NewString(), clientPhone, "Asha Rao", nil, "Pune", "client", "EstimateProvided", "active", nil, now, now,
		))
	mock.ExpectQuery(`FROM opportunities`).WithArgs(clientPhone).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	w := perform(handler.Timeline, http.MethodGet, "/api/v1/portal/timeline?phone=9876543210&as=client", nil, adminContext())

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	_, data := decodeEnvelope(t, w.Body.Bytes())
	var timeline models.TimelineResponse
	require.NoError(t, json.Unmarshal(data, &timeline))
	assert.Equal(t, workflow.RoleClient, timeline.ViewRole)
	assert.Equal(t, workflow.StageEstimateProvided, timeline.Stage)

	current := timeline.Timeline[workflow.IndexOf(workflow.StageEstimateProvided)]
	assert.Equal(t, "Review Estimate", current.Label)
	assert.True(t, current.HasAction)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPortalEstimatePDF(t *testing.T) {
	t.Run("Renders For Admin", func(t *testing.T) {
		handler, mock := setupPortalHandler(t)
		id := uuid.New()
		now := time.Now()

		mock.ExpectQuery(`FROM estimates WHERE id`).WithArgs(id.String()).
			WillReturnRows(sqlmock.NewRows(estimateColumns).AddRow(
				id.String(), clientPhone, "Full home interiors", 850000.0, "INR",
				[]byte(`[{"description":"Modular kitchen","quantity":1,"unit_price":850000}]`),
				nil, nil, "shared", 2, nil, nil, now, now,
			))
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE phone`).WithArgs(clientPhone).
			WillReturnRows(userRow(uuid.New(), clientPhone, workflow.RoleClient, "active"))

		w := performRoute(handler.EstimatePDF, http.MethodGet, "/api/v1/portal/estimates/:id/pdf", "/api/v1/portal/estimates/"+id.String()+"/pdf", nil, adminContext())

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), "estimate_9876543210_v2.pdf")
		assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Found", func(t *testing.T) {
		handler, mock := setupPortalHandler(t)
		id := uuid.New()

		mock.ExpectQuery(`FROM estimates WHERE id`).WithArgs(id.String()).
			WillReturnRows(sqlmock.NewRows(estimateColumns))

		w := performRoute(handler.EstimatePDF, http.MethodGet, "/api/v1/portal/estimates/:id/pdf", "/api/v1/portal/estimates/"+id.String()+"/pdf", nil, adminContext())

		assert.Equal(t, http.StatusNotFound, w.Code)
		envelope, _ := decodeEnvelope(t, w.Body.Bytes())
		assert.Equal(t, models.EnvelopeError, envelope.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
