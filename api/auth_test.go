package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/barstock/inventory"
)

func TestAuthenticator_IssueAndParse(t *testing.T) {
	a := NewAuthenticator("s3cret")
	want := inventory.Identity{Actor: "ana", Location: bar, Role: inventory.RoleBartender}

	tok, err := a.Issue(want, time.Minute)
	require.NoError(t, err)

	got, err := a.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAuthenticator_Rejects(t *testing.T) {
	a := NewAuthenticator("s3cret")

	sign := func(claims Claims, method jwt.SigningMethod, key any) string {
		tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return tok
	}
	valid := func(sub, loc, role string) Claims {
		return Claims{
			Location: loc,
			Role:     role,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   sub,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
	}

	expired := valid("ana", "negro-amaro", "bartender")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	noExpiry := valid("ana", "negro-amaro", "bartender")
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", sign(valid("ana", "negro-amaro", "bartender"), jwt.SigningMethodHS256, []byte("other"))},
		{"expired", sign(expired, jwt.SigningMethodHS256, []byte("s3cret"))},
		{"no expiry", sign(noExpiry, jwt.SigningMethodHS256, []byte("s3cret"))},
		{"unsigned", sign(valid("ana", "negro-amaro", "bartender"), jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType)},
		{"no subject", sign(valid("", "negro-amaro", "bartender"), jwt.SigningMethodHS256, []byte("s3cret"))},
		{"unknown role", sign(valid("ana", "negro-amaro", "owner"), jwt.SigningMethodHS256, []byte("s3cret"))},
		{"bartender without location", sign(valid("ana", "", "bartender"), jwt.SigningMethodHS256, []byte("s3cret"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Parse(tt.token)
			assert.ErrorIs(t, err, inventory.ErrAccessDenied)
		})
	}
}

func TestAuthenticator_AuditorNeedsNoLocation(t *testing.T) {
	a := NewAuthenticator("s3cret")
	tok, err := a.Issue(inventory.Identity{Actor: "luis", Role: inventory.RoleAuditor}, time.Minute)
	require.NoError(t, err)

	id, err := a.Parse(tok)
	require.NoError(t, err)
	assert.True(t, id.IsAuditor())
}

func TestMiddleware_StoresIdentity(t *testing.T) {
	a := NewAuthenticator("s3cret")
	tok, err := a.Issue(inventory.Identity{Actor: "ana", Location: bar, Role: inventory.RoleBartender}, time.Minute)
	require.NoError(t, err)

	var seen inventory.Identity
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, inventory.ActorID("ana"), seen.Actor)
	assert.Equal(t, bar, seen.Location)
}
