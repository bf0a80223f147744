package usecase

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"time"

	"daybrief-backend/internal/integration/domain"
	"daybrief-backend/internal/integration/repository"
	"daybrief-backend/pkg/config"
	"daybrief-backend/pkg/crypto"

	"golang.org/x/oauth2"
)

const (
	// stateLength is the entropy of the anti-CSRF state in bytes.
	stateLength = 32
	// tokenRefreshBuffer refreshes tokens this long before they actually
	// expire, so a token handed to a caller stays valid for the whole request.
	tokenRefreshBuffer = 5 * time.Minute
)

// oauthUsecase owns the credential lifecycle for integrations. It is the only
// component reading or writing token rows, so encryption and refresh policy
// live in one place.
type oauthUsecase struct {
	integrationRepo repository.IntegrationRepository
	tokenRepo       repository.TokenRepository
	stateRepo       repository.OAuthStateRepository
	registry        *Registry
	vault           *crypto.Vault
	httpClient      *http.Client
	cfg             *config.Config
}

func NewOAuthUsecase(
	integrationRepo repository.IntegrationRepository,
	tokenRepo repository.TokenRepository,
	stateRepo repository.OAuthStateRepository,
	registry *Registry,
	vault *crypto.Vault,
	httpClient *http.Client,
	cfg *config.Config,
) OAuthUsecase {
	return &oauthUsecase{
		integrationRepo: integrationRepo,
		tokenRepo:       tokenRepo,
		stateRepo:       stateRepo,
		registry:        registry,
		vault:           vault,
		httpClient:      httpClient,
		cfg:             cfg,
	}
}

// oauthContext routes oauth2 HTTP traffic (code exchange, refresh) through
// the shared retrying client.
func (u *oauthUsecase) oauthContext(ctx context.Context) context.Context {
	if u.httpClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, u.httpClient)
	}
	return ctx
}

func generateState() (string, error) {
	buf := make([]byte, stateLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (u *oauthUsecase) BeginAuthorization(ctx context.Context, userID string, providerType domain.ProviderType, redirectURI string) (string, string, error) {
	provider, ok := u.registry.Get(providerType)
	if !ok {
		return "", "", fmt.Errorf("unknown provider: %s", providerType)
	}
	if !provider.Configured() {
		return "", "", fmt.Errorf("provider %s is not configured", providerType)
	}

	state, err := generateState()
	if err != nil {
		return "", "", err
	}

	// Replace drops any earlier pending state for this user and provider;
	// only the newest authorization attempt can complete.
	record := &domain.OAuthState{
		State:        state,
		UserID:       userID,
		ProviderType: providerType,
		RedirectURI:  redirectURI,
		ExpiresAt:    time.Now().Add(domain.OAuthStateTTL),
	}
	if err := u.stateRepo.Replace(record); err != nil {
		return "", "", fmt.Errorf("failed to store authorization state: %w", err)
	}

	conf := provider.OAuthConfig(u.cfg.OAuthCallbackURL)
	authURL := conf.AuthCodeURL(state, provider.AuthCodeOptions()...)

	log.Printf("[OAuth] Authorization started for user %s provider %s", userID, providerType)
	return authURL, state, nil
}

func (u *oauthUsecase) CompleteAuthorization(ctx context.Context, code, state string) (*domain.Integration, string, error) {
	record, err := u.stateRepo.FindByState(state)
	if err != nil {
		return nil, "", err
	}
	if record == nil {
		return nil, "", domain.ErrInvalidState
	}
	if record.Expired(time.Now()) {
		_ = u.stateRepo.Delete(state)
		return nil, "", domain.ErrStateExpired
	}

	provider, ok := u.registry.Get(record.ProviderType)
	if !ok {
		return nil, "", fmt.Errorf("unknown provider: %s", record.ProviderType)
	}

	conf := provider.OAuthConfig(u.cfg.OAuthCallbackURL)
	token, err := conf.Exchange(u.oauthContext(ctx), code)
	if err != nil {
		return nil, "", fmt.Errorf("code exchange failed: %w", err)
	}

	// Best effort; an integration without an account email still works.
	accountEmail := ""
	if email, profErr := provider.Profile(ctx, token.AccessToken); profErr == nil {
		accountEmail = email
	} else {
		log.Printf("[OAuth] Could not resolve account profile: %v", profErr)
	}

	tokenRecord, err := u.encryptToken(token)
	if err != nil {
		return nil, "", err
	}

	integration, err := u.integrationRepo.FindByUserAndProvider(record.UserID, record.ProviderType)
	if err != nil {
		return nil, "", err
	}
	if integration == nil {
		integration = &domain.Integration{
			UserID:       record.UserID,
			ProviderType: record.ProviderType,
			Config:       domain.JSONMap{},
		}
	}
	// Completing consent reactivates an expired integration.
	integration.Status = domain.StatusActive
	if accountEmail != "" {
		integration.AccountEmail = accountEmail
	}

	if err := u.integrationRepo.CommitAuthorization(integration, tokenRecord, state); err != nil {
		return nil, "", fmt.Errorf("failed to persist authorization: %w", err)
	}

	log.Printf("[OAuth] Authorization completed for user %s provider %s", record.UserID, record.ProviderType)
	return integration, record.RedirectURI, nil
}

func (u *oauthUsecase) encryptToken(token *oauth2.Token) (*domain.IntegrationToken, error) {
	encryptedAccess, err := u.vault.Encrypt(token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	record := &domain.IntegrationToken{
		AccessToken: encryptedAccess,
		TokenType:   token.TokenType,
	}
	if record.TokenType == "" {
		record.TokenType = "bearer"
	}
	if token.RefreshToken != "" {
		encryptedRefresh, err := u.vault.Encrypt(token.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
		record.RefreshToken = &encryptedRefresh
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		record.ExpiresAt = &expiry
	}
	return record, nil
}

// GetValidAccessToken returns a decrypted access token that is good for at
// least the refresh buffer. It refreshes and persists rotated credentials
// when the stored token is at or past the buffer.
func (u *oauthUsecase) GetValidAccessToken(ctx context.Context, integrationID string) (string, error) {
	record, err := u.tokenRepo.FindByIntegration(integrationID)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", domain.ErrNoToken
	}

	accessToken, err := u.vault.Decrypt(record.AccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt access token: %w", err)
	}

	// No recorded expiry means the provider did not send one; serve as is.
	if record.ExpiresAt == nil || time.Now().Add(tokenRefreshBuffer).Before(*record.ExpiresAt) {
		return accessToken, nil
	}

	if record.RefreshToken == nil {
		return "", domain.ErrTokenExpired
	}
	refreshToken, err := u.vault.Decrypt(*record.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	integration, err := u.integrationRepo.FindByID(integrationID)
	if err != nil {
		return "", err
	}
	if integration == nil {
		return "", domain.ErrNoToken
	}
	provider, ok := u.registry.Get(integration.ProviderType)
	if !ok {
		return "", fmt.Errorf("unknown provider: %s", integration.ProviderType)
	}

	conf := provider.OAuthConfig(u.cfg.OAuthCallbackURL)
	// An already-expired Expiry forces the token source down the refresh path.
	stale := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	}
	fresh, err := conf.TokenSource(u.oauthContext(ctx), stale).Token()
	if err != nil {
		return "", fmt.Errorf("token refresh failed: %w", err)
	}

	encryptedAccess, err := u.vault.Encrypt(fresh.AccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt access token: %w", err)
	}
	record.AccessToken = encryptedAccess
	if fresh.RefreshToken != "" && fresh.RefreshToken != refreshToken {
		encryptedRefresh, encErr := u.vault.Encrypt(fresh.RefreshToken)
		if encErr != nil {
			return "", fmt.Errorf("failed to encrypt refresh token: %w", encErr)
		}
		record.RefreshToken = &encryptedRefresh
	}
	if !fresh.Expiry.IsZero() {
		expiry := fresh.Expiry
		record.ExpiresAt = &expiry
	}
	if fresh.TokenType != "" {
		record.TokenType = fresh.TokenType
	}
	if err := u.tokenRepo.Save(record); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	log.Printf("[OAuth] Refreshed access token for integration %s", integrationID)
	return fresh.AccessToken, nil
}
