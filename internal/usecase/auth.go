package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/domain"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/repository"
)

const minPasswordLen = 8

type AuthUsecase struct {
	users  repository.UserRepository
	jwtKey []byte
	jwtTTL time.Duration
}

func NewAuthUsecase(users repository.UserRepository, jwtKey []byte, jwtTTL time.Duration) *AuthUsecase {
	return &AuthUsecase{
		users:  users,
		jwtKey: jwtKey,
		jwtTTL: jwtTTL,
	}
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	// Role is the requested role. Only an admin caller can grant it;
	// everyone else gets viewer no matter what they ask for.
	Role      domain.Role
	ActorRole domain.Role
}

func (u *AuthUsecase) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	if input.Username == "" {
		return nil, domain.NewValidationError("username", "required")
	}
	if len(input.Username) > 64 {
		return nil, domain.NewValidationError("username", "longer than 64 characters")
	}
	if input.Email == "" || !strings.Contains(input.Email, "@") {
		return nil, domain.NewValidationError("email", "not a valid address")
	}
	if len(input.Password) < minPasswordLen {
		return nil, domain.NewValidationError("password", "shorter than %d characters", minPasswordLen)
	}
	if input.Role != "" && !input.Role.Valid() {
		return nil, domain.NewValidationError("role", "unknown role: %s", input.Role)
	}

	role := domain.RoleViewer
	if input.Role != "" && input.ActorRole == domain.RoleAdmin {
		role = input.Role
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := u.users.Create(ctx, &domain.User{
		Username:     input.Username,
		Email:        strings.ToLower(input.Email),
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

type LoginResult struct {
	Token     string
	ExpiresIn int // seconds
	User      *domain.User
}

// Login verifies credentials and mints a signed JWT. An unknown username and
// a wrong password both come back as ErrInvalidCredentials so the response
// never confirms which usernames exist.
func (u *AuthUsecase) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := u.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !user.Active {
		return nil, domain.ErrUserDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      user.ID,
		"username": user.Username,
		"role":     string(user.Role),
		"iat":      now.Unix(),
		"exp":      now.Add(u.jwtTTL).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(u.jwtKey)
	if err != nil {
		return nil, fmt.Errorf("sign jwt: %w", err)
	}

	return &LoginResult{
		Token:     signed,
		ExpiresIn: int(u.jwtTTL.Seconds()),
		User:      user,
	}, nil
}

func (u *AuthUsecase) ListUsers(ctx context.Context) ([]*domain.User, error) {
	users, err := u.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
