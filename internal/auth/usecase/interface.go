package usecase

import (
	authdomain "daybrief-backend/internal/auth/domain"
	authdto "daybrief-backend/internal/auth/dto"
)

// AuthUsecase defines the interface for authentication operations
type AuthUsecase interface {
	Login(req *authdto.LoginRequest) (*authdto.TokenResponse, error)
	Register(req *authdto.RegisterRequest) (*authdto.TokenResponse, error)
	RefreshToken(refreshToken string) (*authdto.TokenResponse, error)
	Logout(refreshToken string) error
	Me(userID string) (*authdomain.User, error)
	// ValidateToken resolves a bearer token to its user. The middleware calls
	// this on every protected request.
	ValidateToken(tokenString string) (*authdomain.User, error)
	RegisterFCMToken(userID, token, deviceInfo string) error
	UnregisterFCMToken(token string) error
}
