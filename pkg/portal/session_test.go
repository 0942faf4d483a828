package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hrita/customer-portal/internal/models"
	"github.com/hrita/customer-portal/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedInSession(t *testing.T, serverURL string) *Session {
	t.Helper()
	s := NewSession(NewClient(serverURL, WithLogger(quietLogger())))
	s.applyTokens(&Tokens{AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 3600, Role: workflow.RoleAdmin})
	s.state.Phone = "9000000001"
	return s
}

func TestSession_RefreshDiscardsStaleResponse(t *testing.T) {
	slowStarted := make(chan struct{})
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		phone := r.URL.Query().Get("phone")
		if phone == "slow" {
			close(slowStarted)
			select {
			case <-release:
			case <-r.Context().Done():
				return
			}
		}
		writeEnvelope(w, http.StatusOK, models.Envelope{
			Status: models.EnvelopeSuccess,
			Data:   models.PortalData{User: &models.User{Phone: phone}},
		})
	}))
	defer server.Close()
	defer close(release)

	s := signedInSession(t, server.URL)

	slowErr := make(chan error, 1)
	go func() {
		_, err := s.Refresh(context.Background(), "slow")
		slowErr <- err
	}()

	<-slowStarted
	data, err := s.Refresh(context.Background(), clientPhone)
	require.NoError(t, err)
	assert.Equal(t, clientPhone, data.User.Phone)

	select {
	case err := <-slowErr:
		assert.ErrorIs(t, err, ErrStaleResponse)
	case <-time.After(5 * time.Second):
		t.Fatal("superseded refresh did not return")
	}

	require.NotNil(t, s.Data())
	assert.Equal(t, clientPhone, s.Data().User.Phone)
}

func TestSession_RefreshErrorKeepsPreviousData(t *testing.T) {
	var fail atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			writeEnvelope(w, http.StatusInternalServerError, models.Envelope{Status: models.EnvelopeError, Message: "Something went wrong"})
			return
		}
		writeEnvelope(w, http.StatusOK, models.Envelope{
			Status: models.EnvelopeSuccess,
			Data:   models.PortalData{User: &models.User{Phone: clientPhone}},
		})
	}))
	defer server.Close()

	s := signedInSession(t, server.URL)

	_, err := s.Refresh(context.Background(), clientPhone)
	require.NoError(t, err)

	fail.Store(true)
	_, err = s.Refresh(context.Background(), clientPhone)
	require.Error(t, err)

	require.NotNil(t, s.Data())
	assert.Equal(t, clientPhone, s.Data().User.Phone)
}

func TestSession_RefreshRequiresLogin(t *testing.T) {
	s := NewSession(NewClient("http://127.0.0.1:1", WithLogger(quietLogger())))

	_, err := s.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotSignedIn)
}

func TestSession_AddLeadOptimistic(t *testing.T) {
	t.Run("Placeholder Kept On Success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req models.ActionRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "addLead", req.Action)
			writeEnvelope(w, http.StatusOK, models.Envelope{
				Status: models.EnvelopeSuccess,
				Data:   models.ActionResult{Action: workflow.ActionAddLead, Phone: "9123456789", Stage: workflow.StageLeadCollected},
			})
		}))
		defer server.Close()

		s := signedInSession(t, server.URL)
		result, err := s.AddLeadOptimistic(context.Background(), models.AddLeadPayload{Name: "Ravi Kumar", Phone: "9123456789", City: "Pune"})
		require.NoError(t, err)
		assert.Equal(t, workflow.StageLeadCollected, result.Stage)

		require.Len(t, s.Data().AllClients, 1)
		assert.Equal(t, "Ravi Kumar", s.Data().AllClients[0].Name)
		assert.Equal(t, workflow.StageLeadCollected, s.Data().AllClients[0].Stage)
	})

	t.Run("Placeholder Removed On Failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, http.StatusConflict, models.Envelope{Status: models.EnvelopeError, Message: "a user with this phone number already exists"})
		}))
		defer server.Close()

		s := signedInSession(t, server.URL)
		s.data = &models.PortalData{AllClients: []models.ClientSummary{{Phone: clientPhone, Name: "Asha Rao"}}}

		_, err := s.AddLeadOptimistic(context.Background(), models.AddLeadPayload{Name: "Asha Again", Phone: clientPhone})
		require.Error(t, err)

		require.Len(t, s.Data().AllClients, 1)
		assert.Equal(t, "Asha Rao", s.Data().AllClients[0].Name)
	})
}

func TestSession_Logout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/auth/logout", r.URL.Path)
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "refresh", body["refresh_token"])
		assert.Equal(t, false, body["logout_all"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"Successfully logged out"}`))
	}))
	defer server.Close()

	s := signedInSession(t, server.URL)
	require.NoError(t, s.Logout(context.Background(), false))

	assert.True(t, s.Expired())
	assert.Empty(t, s.Phone())
	assert.Empty(t, s.Client().token())
	assert.ErrorIs(t, s.Logout(context.Background(), false), ErrNotSignedIn)
}

func TestSession_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portal", "session.yaml")

	s := signedInSession(t, "http://localhost:8080")
	require.NoError(t, s.Save(path))

	loaded, err := LoadSession(path, WithLogger(quietLogger()))
	require.NoError(t, err)

	assert.Equal(t, "9000000001", loaded.Phone())
	assert.Equal(t, workflow.RoleAdmin, loaded.Role())
	assert.False(t, loaded.Expired())
	assert.Equal(t, "access", loaded.Client().token())
	assert.Equal(t, "http://localhost:8080", loaded.Client().baseURL)
	assert.Nil(t, loaded.Data())
}

func TestLoadSession_MissingFile(t *testing.T) {
	_, err := LoadSession(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
