package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
)

var (
	ErrEmailTaken     = errors.New("email already taken")
	ErrUsernameTaken  = errors.New("username already taken")
	ErrInvalidCreds   = errors.New("invalid email or password")
	ErrAccountBanned  = errors.New("account is banned")
	ErrAccountLocked  = errors.New("account is locked")
	ErrAccountDeleted = errors.New("account was deleted")
	ErrTokenInvalid   = errors.New("credential is malformed or badly signed")
	ErrUnknownActor   = errors.New("credential references an unknown user")
	ErrSessionRevoked = errors.New("session epoch does not match; credential revoked")
	ErrNotAdmin       = errors.New("caller is not an administrator")
)

type AuthService struct {
	userRepo   repository.UserRepository
	jwtSecret  []byte
	adminEmail string
}

func NewAuthService(userRepo repository.UserRepository, jwtSecret, adminEmail string) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		jwtSecret:  []byte(jwtSecret),
		adminEmail: adminEmail,
	}
}

type RegisterInput struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	User        *domain.User `json:"user"`
	AccessToken string       `json:"access_token"`
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResponse, error) {
	existing, err := s.userRepo.GetByEmail(ctx, input.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	existing, err = s.userRepo.GetByUsername(ctx, input.Username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	hash, err := hashSecret(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	now := time.Now()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        input.Email,
		Username:     input.Username,
		DisplayName:  input.DisplayName,
		PasswordHash: hash,
		Status:       domain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	token, err := s.generateToken(user.ID, user.TokenVersion)
	if err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}

	return &AuthResponse{User: user, AccessToken: token}, nil
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, input.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCreds
	}

	if !verifySecret(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCreds
	}

	switch user.Status {
	case domain.UserStatusBanned:
		return nil, ErrAccountBanned
	case domain.UserStatusLocked:
		return nil, ErrAccountLocked
	case domain.UserStatusSelfDeleted:
		return nil, ErrAccountDeleted
	}

	// Each login starts a fresh session epoch, cutting off every
	// previously issued credential.
	version, err := s.userRepo.BumpTokenVersion(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("bumping session epoch: %w", err)
	}
	user.TokenVersion = version

	token, err := s.generateToken(user.ID, version)
	if err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}

	return &AuthResponse{User: user, AccessToken: token}, nil
}

// Logout revokes all of the caller's sessions by advancing the epoch.
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID) error {
	_, err := s.userRepo.BumpTokenVersion(ctx, userID)
	return err
}

// Authenticate resolves a bearer credential to its user. Expiry is
// deliberately not validated: the session epoch embedded in the token is the
// sole revocation mechanism, and it is checked against the stored epoch on
// every call.
func (s *AuthService) Authenticate(ctx context.Context, tokenStr string) (*domain.User, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return s.jwtSecret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return nil, ErrTokenInvalid
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnknownActor
	}

	embedded := 0
	if tv, ok := claims["tv"].(float64); ok {
		embedded = int(tv)
	}
	if embedded != user.TokenVersion {
		return nil, ErrSessionRevoked
	}

	return user, nil
}

// RequireAdmin checks admins membership, seeding the well-known admin
// account on first use.
func (s *AuthService) RequireAdmin(ctx context.Context, user *domain.User) error {
	isAdmin, err := s.userRepo.IsAdmin(ctx, user.ID)
	if err != nil {
		return err
	}
	if isAdmin {
		return nil
	}

	if s.adminEmail != "" && strings.EqualFold(user.Email, s.adminEmail) {
		if err := s.userRepo.SeedAdmin(ctx, user.ID); err != nil {
			return err
		}
		return nil
	}

	return ErrNotAdmin
}

func (s *AuthService) generateToken(userID uuid.UUID, tokenVersion int) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID.String(),
		"tv":  tokenVersion,
		"exp": time.Now().Add(24 * time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func hashSecret(secret string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2IDKey([]byte(secret), salt)

	return fmt.Sprintf("%s:%s",
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

func verifySecret(secret, encoded string) bool {
	saltB64, hashB64, ok := strings.Cut(encoded, ":")
	if !ok {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(saltB64)
	if err != nil {
		return false
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(hashB64)
	if err != nil {
		return false
	}

	hash := argon2IDKey([]byte(secret), salt)
	return subtle.ConstantTimeCompare(hash, expectedHash) == 1
}
