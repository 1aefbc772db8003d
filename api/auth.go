package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/warp/barstock/inventory"
)

// Claims carried by a bearer token. Subject is the actor id.
type Claims struct {
	Location string `json:"location"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Issue signs a token for id valid for ttl.
func (a *Authenticator) Issue(id inventory.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Location: string(id.Location),
		Role:     string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(id.Actor),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Parse verifies a token and resolves the identity it names.
func (a *Authenticator) Parse(tokenString string) (inventory.Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return inventory.Identity{}, &inventory.AccessDeniedError{Reason: "invalid token"}
	}

	id := inventory.Identity{
		Actor:    inventory.ActorID(claims.Subject),
		Location: inventory.LocationID(claims.Location),
		Role:     inventory.Role(claims.Role),
	}
	switch {
	case id.Actor == "":
		return inventory.Identity{}, &inventory.AccessDeniedError{Reason: "token has no subject"}
	case id.Role != inventory.RoleBartender && id.Role != inventory.RoleAuditor:
		return inventory.Identity{}, &inventory.AccessDeniedError{Actor: id.Actor, Reason: "unknown role " + claims.Role}
	case id.Role == inventory.RoleBartender && id.Location == "":
		return inventory.Identity{}, &inventory.AccessDeniedError{Actor: id.Actor, Reason: "user has no assigned location"}
	}
	return id, nil
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

type identityKey struct{}

// Middleware rejects requests without a valid bearer token with 401 and
// stores the resolved identity in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "authentication required", nil)
			return
		}
		id, err := a.Parse(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequireAuditor allows only auditors through.
func RequireAuditor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())
		if !id.IsAuditor() {
			writeDomainError(w, r, &inventory.AccessDeniedError{Actor: id.Actor, Reason: "auditor role required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithIdentity(ctx context.Context, id inventory.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFrom(ctx context.Context) (inventory.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(inventory.Identity)
	return id, ok
}

func identity(r *http.Request) (inventory.Identity, error) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		return inventory.Identity{}, errors.Join(inventory.ErrAccessDenied, errors.New("no identity in request"))
	}
	return id, nil
}
