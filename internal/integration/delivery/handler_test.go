package delivery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"daybrief-backend/internal/integration/domain"
	"daybrief-backend/internal/integration/usecase"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubIntegrationUsecase answers every operation from scripted fields.
type stubIntegrationUsecase struct {
	err        error
	page       *usecase.EmailPage
	cachedPage *usecase.CachedPage
	execResult interface{}
	execErr    error
	queued     bool
	state      *domain.EmailSyncState
	searchRows []*domain.EmailMessage
	searchDist []float64
}

func (s *stubIntegrationUsecase) AvailableProviders() []usecase.ProviderInfo {
	return []usecase.ProviderInfo{{ProviderType: domain.ProviderGmail, Name: "Gmail"}}
}

func (s *stubIntegrationUsecase) ListForUser(userID string) ([]*domain.Integration, error) {
	return nil, s.err
}

func (s *stubIntegrationUsecase) GetForUser(userID, integrationID string) (*domain.Integration, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Integration{ID: integrationID, UserID: userID}, nil
}

func (s *stubIntegrationUsecase) Update(userID, integrationID string, status *string, config map[string]interface{}) (*domain.Integration, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Integration{ID: integrationID, UserID: userID}, nil
}

func (s *stubIntegrationUsecase) Disconnect(ctx context.Context, userID, integrationID string) error {
	return s.err
}

func (s *stubIntegrationUsecase) Execute(ctx context.Context, userID, integrationID, action string, params map[string]interface{}) (interface{}, error) {
	return s.execResult, s.execErr
}

func (s *stubIntegrationUsecase) ListEmails(ctx context.Context, userID, integrationID string, query usecase.EmailQuery) (*usecase.EmailPage, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.page, nil
}

func (s *stubIntegrationUsecase) ListCachedEmails(userID, integrationID string, query usecase.CachedQuery) (*usecase.CachedPage, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.cachedPage, nil
}

func (s *stubIntegrationUsecase) SyncStatus(userID, integrationID string) (*domain.EmailSyncState, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.state, nil
}

func (s *stubIntegrationUsecase) QueueSync(userID, integrationID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.queued, nil
}

func (s *stubIntegrationUsecase) WatchMailbox(ctx context.Context, userID, integrationID string) error {
	return s.err
}

func (s *stubIntegrationUsecase) SemanticSearch(ctx context.Context, userID, integrationID, query string, limit int) ([]*domain.EmailMessage, []float64, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.searchRows, s.searchDist, nil
}

type stubOAuthUsecase struct {
	integration *domain.Integration
	redirectURI string
	err         error
}

func (s *stubOAuthUsecase) BeginAuthorization(ctx context.Context, userID string, providerType domain.ProviderType, redirectURI string) (string, string, error) {
	if s.err != nil {
		return "", "", s.err
	}
	return "https://consent.example.com/auth", "state-1", nil
}

func (s *stubOAuthUsecase) CompleteAuthorization(ctx context.Context, code, state string) (*domain.Integration, string, error) {
	if s.err != nil {
		return nil, "", s.err
	}
	return s.integration, s.redirectURI, nil
}

func (s *stubOAuthUsecase) GetValidAccessToken(ctx context.Context, integrationID string) (string, error) {
	return "access-token", nil
}

func newHandlerRouter(integrations *stubIntegrationUsecase, oauth *stubOAuthUsecase) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("userID", "user-1") })

	h := NewIntegrationHandler(integrations, oauth)
	r.GET("/integrations/callback", h.Callback)
	r.GET("/integrations/:id/emails", h.ListEmails)
	r.POST("/integrations/:id/execute", h.Execute)
	r.POST("/integrations/:id/sync", h.QueueSync)
	r.POST("/search/semantic", h.SemanticSearch)
	return r
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", domain.ErrIntegrationNotFound, http.StatusNotFound},
		{"expired", domain.ErrIntegrationExpired, http.StatusBadRequest},
		{"not active", domain.ErrIntegrationNotActive, http.StatusBadRequest},
		{"not email provider", domain.ErrNotEmailProvider, http.StatusBadRequest},
		{"unknown filter", domain.ErrUnknownFilter, http.StatusBadRequest},
		{"not implemented", domain.ErrProviderNotImplemented, http.StatusNotImplemented},
		{"search unavailable", domain.ErrSearchUnavailable, http.StatusServiceUnavailable},
		{"provider failure", &domain.ProviderError{Op: "list", StatusCode: 503, Err: errors.New("upstream down")}, http.StatusBadGateway},
		{"unmapped", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newHandlerRouter(&stubIntegrationUsecase{err: tt.err}, &stubOAuthUsecase{})

			req := httptest.NewRequest(http.MethodGet, "/integrations/int-1/emails", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestExpiredIntegrationTellsClientToReconnect(t *testing.T) {
	router := newHandlerRouter(&stubIntegrationUsecase{err: domain.ErrIntegrationExpired}, &stubOAuthUsecase{})

	req := httptest.NewRequest(http.MethodGet, "/integrations/int-1/emails", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"reconnect_required"`)
}

func TestExecuteEnvelope(t *testing.T) {
	t.Run("guard errors keep their HTTP status", func(t *testing.T) {
		router := newHandlerRouter(&stubIntegrationUsecase{execErr: domain.ErrIntegrationNotActive}, &stubOAuthUsecase{})

		req := httptest.NewRequest(http.MethodPost, "/integrations/int-1/execute", strings.NewReader(`{"action":"list_emails"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("action failures ride a 200 envelope", func(t *testing.T) {
		router := newHandlerRouter(&stubIntegrationUsecase{execErr: errors.New("message not found")}, &stubOAuthUsecase{})

		req := httptest.NewRequest(http.MethodPost, "/integrations/int-1/execute", strings.NewReader(`{"action":"get_email"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"success":false`)
		assert.Contains(t, w.Body.String(), "message not found")
	})

	t.Run("success carries the result", func(t *testing.T) {
		router := newHandlerRouter(&stubIntegrationUsecase{execResult: map[string]string{"thread": "t-1"}}, &stubOAuthUsecase{})

		req := httptest.NewRequest(http.MethodPost, "/integrations/int-1/execute", strings.NewReader(`{"action":"get_threads"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"success":true`)
		assert.Contains(t, w.Body.String(), `"thread":"t-1"`)
	})

	t.Run("missing action is rejected before the usecase", func(t *testing.T) {
		router := newHandlerRouter(&stubIntegrationUsecase{}, &stubOAuthUsecase{})

		req := httptest.NewRequest(http.MethodPost, "/integrations/int-1/execute", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCallback(t *testing.T) {
	t.Run("missing parameters", func(t *testing.T) {
		router := newHandlerRouter(&stubIntegrationUsecase{}, &stubOAuthUsecase{})

		req := httptest.NewRequest(http.MethodGet, "/integrations/callback?code=abc", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "missing code or state")
	})

	t.Run("redirects back to the frontend", func(t *testing.T) {
		oauth := &stubOAuthUsecase{
			integration: &domain.Integration{ID: "int-1"},
			redirectURI: "app://done",
		}
		router := newHandlerRouter(&stubIntegrationUsecase{}, oauth)

		req := httptest.NewRequest(http.MethodGet, "/integrations/callback?code=abc&state=xyz", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "app://done?integration_id=int-1&status=connected", w.Header().Get("Location"))
	})

	t.Run("serves JSON when no redirect was requested", func(t *testing.T) {
		oauth := &stubOAuthUsecase{integration: &domain.Integration{ID: "int-1"}}
		router := newHandlerRouter(&stubIntegrationUsecase{}, oauth)

		req := httptest.NewRequest(http.MethodGet, "/integrations/callback?code=abc&state=xyz", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"id":"int-1"`)
	})

	t.Run("exchange failure", func(t *testing.T) {
		router := newHandlerRouter(&stubIntegrationUsecase{}, &stubOAuthUsecase{err: domain.ErrInvalidState})

		req := httptest.NewRequest(http.MethodGet, "/integrations/callback?code=abc&state=xyz", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "OAuth error")
	})
}

func TestQueueSyncResponds202(t *testing.T) {
	router := newHandlerRouter(&stubIntegrationUsecase{queued: true}, &stubOAuthUsecase{})

	req := httptest.NewRequest(http.MethodPost, "/integrations/int-1/sync", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"queued":true`)
}

func TestSemanticSearchValidatesRequest(t *testing.T) {
	router := newHandlerRouter(&stubIntegrationUsecase{}, &stubOAuthUsecase{})

	req := httptest.NewRequest(http.MethodPost, "/search/semantic", strings.NewReader(`{"integration_id":"int-1"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
