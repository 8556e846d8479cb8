package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"masterdata/internal/domain"
	"masterdata/internal/storage"
	dErrors "masterdata/pkg/domainerrors"
	"masterdata/pkg/platform/sentinel"
)

const tokenTTL = 24 * time.Hour

// rolePermissions maps each role to the actions its users may perform.
var rolePermissions = map[domain.Role][]string{
	domain.RoleDataEntry:  {"create", "edit_own", "view_own"},
	domain.RoleReviewer:   {"view_all", "approve", "reject", "assign"},
	domain.RoleCompliance: {"view_approved", "compliance_approve", "compliance_block"},
	domain.RoleAdmin:      {"all"},
}

// PermissionsFor returns the permission set for a role, defaulting to the
// most restrictive set for unknown roles.
func PermissionsFor(role domain.Role) []string {
	if perms, ok := rolePermissions[role]; ok {
		return perms
	}
	return []string{"view_own"}
}

// Claims is the JWT claim set issued at login.
type Claims struct {
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Session is a successful login: the user, their permissions, and a signed
// bearer token.
type Session struct {
	User        *domain.User `json:"user"`
	Permissions []string     `json:"permissions"`
	Token       string       `json:"token"`
}

// Service authenticates operators. Authentication here is deliberately thin:
// the engine needs actor identities and role permissions, not a full IdP.
type Service struct {
	users      storage.UserStore
	signingKey []byte
	now        func() time.Time
}

func NewService(users storage.UserStore, signingKey string) *Service {
	return &Service{
		users:      users,
		signingKey: []byte(signingKey),
		now:        time.Now,
	}
}

// Login verifies credentials and issues a session token. Unknown users and
// wrong passwords fail identically so probing cannot enumerate accounts.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := s.users.FindUser(ctx, username)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, err
	}
	if user.Password != password {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}

	now := s.now()
	claims := Claims{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	user.Password = ""
	return &Session{
		User:        user,
		Permissions: PermissionsFor(user.Role),
		Token:       token,
	}, nil
}

// Verify parses and validates a bearer token, returning the actor identity.
func (s *Service) Verify(tokenString string) (domain.Identity, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil || !token.Valid {
		return domain.Identity{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return domain.Identity{Username: claims.Username, Role: claims.Role}, nil
}
