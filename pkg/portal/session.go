package portal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hrita/customer-portal/internal/models"
	"github.com/hrita/customer-portal/internal/workflow"
	"gopkg.in/yaml.v3"
)

// ErrStaleResponse is returned by Refresh when a newer refresh started while
// this one was in flight. The newer result wins; the stale one is discarded.
var ErrStaleResponse = errors.New("portal: response superseded by a newer refresh")

// ErrNotSignedIn is returned when a session has no access token
var ErrNotSignedIn = errors.New("portal: not signed in")

// Session holds the signed-in identity and the last portal data fetched for it
type Session struct {
	client *Client

	mu         sync.Mutex
	state      sessionState
	data       *models.PortalData
	generation uint64
	cancel     context.CancelFunc
}

// sessionState is the part of a session persisted between CLI runs
type sessionState struct {
	BaseURL      string        `yaml:"base_url"`
	Phone        string        `yaml:"phone"`
	Name         string        `yaml:"name,omitempty"`
	Role         workflow.Role `yaml:"role"`
	AccessToken  string        `yaml:"access_token"`
	RefreshToken string        `yaml:"refresh_token"`
	ExpiresAt    time.Time     `yaml:"expires_at"`
}

// NewSession creates an empty session bound to client
func NewSession(client *Client) *Session {
	return &Session{client: client, state: sessionState{BaseURL: client.baseURL}}
}

// Client returns the client the session uses
func (s *Session) Client() *Client {
	return s.client
}

// Login verifies an OTP and stores the resulting identity
func (s *Session) Login(ctx context.Context, phone, code string) error {
	tokens, err := s.client.VerifyOTP(ctx, phone, code)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyTokens(tokens)
	s.state.Phone = phone
	if tokens.User != nil {
		s.state.Phone = tokens.User.Phone
		s.state.Name = tokens.User.Name
	}
	s.data = nil
	return nil
}

// RenewTokens rotates the refresh token when the access token has expired
func (s *Session) RenewTokens(ctx context.Context) error {
	s.mu.Lock()
	refreshToken := s.state.RefreshToken
	s.mu.Unlock()

	if refreshToken == "" {
		return ErrNotSignedIn
	}

	tokens, err := s.client.RefreshTokens(ctx, refreshToken)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyTokens(tokens)
	return nil
}

// Logout revokes the session's refresh token on the server and forgets the identity
func (s *Session) Logout(ctx context.Context, all bool) error {
	s.mu.Lock()
	refreshToken := s.state.RefreshToken
	s.mu.Unlock()

	if refreshToken == "" {
		return ErrNotSignedIn
	}
	if err := s.client.Logout(ctx, refreshToken, all); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = sessionState{BaseURL: s.state.BaseURL}
	s.data = nil
	s.client.SetAccessToken("")
	return nil
}

func (s *Session) applyTokens(tokens *Tokens) {
	s.state.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		s.state.RefreshToken = tokens.RefreshToken
	}
	if tokens.Role != "" {
		s.state.Role = tokens.Role
	}
	s.state.ExpiresAt = time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second)
	s.client.SetAccessToken(tokens.AccessToken)
}

// Phone is the signed-in phone number
func (s *Session) Phone() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Phone
}

// Role is the signed-in role
func (s *Session) Role() workflow.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Role
}

// Expired reports whether the access token is past its expiry
func (s *Session) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.AccessToken == "" || time.Now().After(s.state.ExpiresAt)
}

// Data returns the last applied portal data, or nil before the first refresh
func (s *Session) Data() *models.PortalData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// Refresh fetches portal data and applies it. Starting a refresh cancels the
// previous one; a result is applied only if no newer refresh has started.
// On error the previously applied data is kept.
func (s *Session) Refresh(ctx context.Context, phone string) (*models.PortalData, error) {
	s.mu.Lock()
	if s.state.AccessToken == "" {
		s.mu.Unlock()
		return nil, ErrNotSignedIn
	}
	s.generation++
	gen := s.generation
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	defer cancel()

	data, err := s.client.FetchPortalData(ctx, phone)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return nil, ErrStaleResponse
	}
	s.cancel = nil
	if err != nil {
		return nil, err
	}

	s.data = data
	return data, nil
}

// AddLeadOptimistic shows the new lead in the cached client list before the
// server confirms it. The placeholder is removed again if the action fails;
// on success the caller should Refresh to reconcile with the server.
func (s *Session) AddLeadOptimistic(ctx context.Context, lead models.AddLeadPayload) (*models.ActionResult, error) {
	placeholder := models.ClientSummary{
		Phone:     lead.Phone,
		Name:      lead.Name,
		City:      models.NewNullString(lead.City),
		Stage:     workflow.FirstStage(),
		UpdatedAt: time.Now(),
	}

	s.mu.Lock()
	if s.data == nil {
		s.data = &models.PortalData{}
	}
	s.data.AllClients = append([]models.ClientSummary{placeholder}, s.data.AllClients...)
	s.mu.Unlock()

	result, err := s.client.SubmitAction(ctx, workflow.ActionAddLead, "", lead)
	if err != nil {
		s.mu.Lock()
		s.removePlaceholder(placeholder)
		s.mu.Unlock()
		return nil, err
	}

	return result, nil
}

func (s *Session) removePlaceholder(p models.ClientSummary) {
	if s.data == nil {
		return
	}
	clients := s.data.AllClients[:0]
	for _, c := range s.data.AllClients {
		if c.Phone == p.Phone && c.UpdatedAt.Equal(p.UpdatedAt) {
			continue
		}
		clients = append(clients, c)
	}
	s.data.AllClients = clients
}

// Save writes the identity and tokens to path with owner-only permissions.
// Portal data is not persisted.
func (s *Session) Save(path string) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	raw, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// LoadSession restores a session saved with Save. The stored base URL is
// used unless opts override the client.
func LoadSession(path string, opts ...Option) (*Session, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var state sessionState
	if err := yaml.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if state.BaseURL == "" {
		return nil, fmt.Errorf("session file %s has no base_url", path)
	}

	client := NewClient(state.BaseURL, append([]Option{WithAccessToken(state.AccessToken)}, opts...)...)
	return &Session{client: client, state: state}, nil
}
