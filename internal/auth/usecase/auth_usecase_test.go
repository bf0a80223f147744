package usecase

import (
	"path/filepath"
	"testing"
	"time"

	authdomain "daybrief-backend/internal/auth/domain"
	authdto "daybrief-backend/internal/auth/dto"
	"daybrief-backend/internal/auth/repository"
	"daybrief-backend/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type authHarness struct {
	usecase  AuthUsecase
	userRepo repository.UserRepository
	fcmRepo  repository.FCMTokenRepository
}

func newAuthHarness(t *testing.T) *authHarness {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&authdomain.User{},
		&authdomain.RefreshToken{},
		&authdomain.FCMToken{},
	))

	cfg := &config.Config{
		JWTSecret:        "test-secret",
		JWTAccessExpiry:  15 * time.Minute,
		JWTRefreshExpiry: 24 * time.Hour,
	}
	userRepo := repository.NewUserRepository(db)
	fcmRepo := repository.NewFCMTokenRepository(db)

	return &authHarness{
		usecase:  NewAuthUsecase(userRepo, fcmRepo, cfg),
		userRepo: userRepo,
		fcmRepo:  fcmRepo,
	}
}

func (h *authHarness) register(t *testing.T, email string) *authdto.TokenResponse {
	t.Helper()

	resp, err := h.usecase.Register(&authdto.RegisterRequest{
		Email:    email,
		Password: "hunter2hunter2",
		Name:     "Alice",
	})
	require.NoError(t, err)
	return resp
}

func TestRegisterAndLogin(t *testing.T) {
	h := newAuthHarness(t)

	resp := h.register(t, "alice@example.com")
	require.NotNil(t, resp.User)
	assert.NotEmpty(t, resp.User.ID)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)

	// Password at rest is a bcrypt hash, never the plaintext.
	stored, err := h.userRepo.FindByEmail("alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.NotEqual(t, "hunter2hunter2", stored.Password)
	assert.True(t, repository.CheckPasswordHash("hunter2hunter2", stored.Password))

	_, err = h.usecase.Register(&authdto.RegisterRequest{
		Email:    "alice@example.com",
		Password: "different",
		Name:     "Imposter",
	})
	assert.EqualError(t, err, "email already registered")

	login, err := h.usecase.Login(&authdto.LoginRequest{Email: "alice@example.com", Password: "hunter2hunter2"})
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, login.User.ID)
}

func TestLoginDoesNotLeakAccountExistence(t *testing.T) {
	h := newAuthHarness(t)
	h.register(t, "alice@example.com")

	_, wrongPassword := h.usecase.Login(&authdto.LoginRequest{Email: "alice@example.com", Password: "nope"})
	_, unknownEmail := h.usecase.Login(&authdto.LoginRequest{Email: "nobody@example.com", Password: "nope"})

	require.Error(t, wrongPassword)
	require.Error(t, unknownEmail)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	h := newAuthHarness(t)
	resp := h.register(t, "alice@example.com")

	refreshed, err := h.usecase.RefreshToken(resp.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEqual(t, resp.RefreshToken, refreshed.RefreshToken)

	// The new refresh token is on record and the access token resolves to
	// the same user.
	stored, err := h.userRepo.FindRefreshToken(refreshed.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, resp.User.ID, stored.UserID)

	user, err := h.usecase.ValidateToken(refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, user.ID)
}

func TestRefreshTokenRejectsGarbage(t *testing.T) {
	h := newAuthHarness(t)

	_, err := h.usecase.RefreshToken("not-a-jwt")
	assert.EqualError(t, err, "invalid refresh token")
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	h := newAuthHarness(t)
	resp := h.register(t, "alice@example.com")

	require.NoError(t, h.usecase.Logout(resp.RefreshToken))

	// The signature still verifies, but the token is no longer on record.
	_, err := h.usecase.RefreshToken(resp.RefreshToken)
	assert.EqualError(t, err, "refresh token expired")
}

func TestValidateTokenRejectsForgedToken(t *testing.T) {
	h := newAuthHarness(t)

	_, err := h.usecase.ValidateToken("garbage")
	require.Error(t, err)
}

func TestFCMTokenLifecycle(t *testing.T) {
	h := newAuthHarness(t)
	resp := h.register(t, "alice@example.com")
	userID := resp.User.ID

	require.NoError(t, h.usecase.RegisterFCMToken(userID, "device-token-1", "pixel-9"))
	require.NoError(t, h.usecase.RegisterFCMToken(userID, "device-token-1", "pixel-9-updated"))
	require.NoError(t, h.usecase.RegisterFCMToken(userID, "device-token-2", "laptop"))

	tokens, err := h.fcmRepo.GetTokensByUserID(userID)
	require.NoError(t, err)
	require.Len(t, tokens, 2)

	// Re-registering updated the device info in place.
	infos := map[string]string{}
	for _, token := range tokens {
		infos[token.Token] = token.DeviceInfo
	}
	assert.Equal(t, "pixel-9-updated", infos["device-token-1"])

	require.NoError(t, h.usecase.UnregisterFCMToken("device-token-1"))
	tokens, err = h.fcmRepo.GetTokensByUserID(userID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "device-token-2", tokens[0].Token)
}
