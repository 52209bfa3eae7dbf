package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfsingest/dfsingest/pkg/config"
	"github.com/dfsingest/dfsingest/pkg/ingest"
)

func signToken(t *testing.T, secret, userID string, isAdmin bool, issuer, audience string) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID:  userID,
		IsAdmin: isAdmin,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestResolverAPIKeyMode(t *testing.T) {
	res := NewResolver(config.AuthConfig{
		Mode:           "api_key",
		APIKeyMappings: "key-1:user-1,key-2:user-2",
		AdminUserIDs:   "user-2",
	})

	t.Run("ResolvesKnownKey", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-API-Key", "key-1")
		p, err := res.Resolve(req)
		require.NoError(t, err)
		assert.Equal(t, "user-1", p.UserID)
		assert.False(t, p.IsAdmin)
	})

	t.Run("MarksConfiguredAdmin", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-API-Key", "key-2")
		p, err := res.Resolve(req)
		require.NoError(t, err)
		assert.True(t, p.IsAdmin)
	})

	t.Run("RejectsUnknownKey", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-API-Key", "bogus")
		_, err := res.Resolve(req)
		require.Error(t, err)
	})

	t.Run("RejectsMissingCredential", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		_, err := res.Resolve(req)
		require.Error(t, err)
	})

	t.Run("IgnoresBearerTokenInAPIKeyMode", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer whatever")
		_, err := res.Resolve(req)
		require.Error(t, err)
	})
}

func TestResolverJWTMode(t *testing.T) {
	res := NewResolver(config.AuthConfig{
		Mode:        "jwt",
		JWTSecret:   "top-secret",
		JWTIssuer:   "dfsingest",
		JWTAudience: "dfsingest-clients",
	})

	t.Run("ResolvesValidToken", func(t *testing.T) {
		token := signToken(t, "top-secret", "user-1", false, "dfsingest", "dfsingest-clients")
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		p, err := res.Resolve(req)
		require.NoError(t, err)
		assert.Equal(t, "user-1", p.UserID)
	})

	t.Run("RejectsBadSignature", func(t *testing.T) {
		token := signToken(t, "wrong-secret", "user-1", false, "dfsingest", "dfsingest-clients")
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		_, err := res.Resolve(req)
		require.Error(t, err)
	})

	t.Run("RejectsMissingBearer", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		_, err := res.Resolve(req)
		require.Error(t, err)
	})
}

func TestResolverHybridMode(t *testing.T) {
	res := NewResolver(config.AuthConfig{
		Mode:           "hybrid",
		APIKeyMappings: "key-1:user-1",
		JWTSecret:      "top-secret",
	})

	t.Run("PrefersBearerWhenBothPresent", func(t *testing.T) {
		token := signToken(t, "top-secret", "user-jwt", false, "", "")
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-API-Key", "key-1")
		p, err := res.Resolve(req)
		require.NoError(t, err)
		assert.Equal(t, "user-jwt", p.UserID)
	})

	t.Run("FallsBackToAPIKey", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-API-Key", "key-1")
		p, err := res.Resolve(req)
		require.NoError(t, err)
		assert.Equal(t, "user-1", p.UserID)
	})
}

func TestRequireAdminRejectsNonAdmin(t *testing.T) {
	handler := RequireAdmin("v1")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("RejectsWithoutPrincipal", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/admin/cleanup", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("RejectsNonAdminPrincipal", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/admin/cleanup", nil)
		ctx := ingest.WithPrincipal(req.Context(), ingest.Principal{UserID: "user-1"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req.WithContext(ctx))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("AllowsAdminPrincipal", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/admin/cleanup", nil)
		ctx := ingest.WithPrincipal(req.Context(), ingest.Principal{UserID: "admin-1", IsAdmin: true})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req.WithContext(ctx))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRateLimiterAllow(t *testing.T) {
	t.Run("AllowsUpToLimitThenBlocks", func(t *testing.T) {
		rl := NewRateLimiter(2)
		now := time.Now()
		assert.True(t, rl.Allow("user-1", now))
		assert.True(t, rl.Allow("user-1", now))
		assert.False(t, rl.Allow("user-1", now))
	})

	t.Run("ExpiresOldEventsOutsideWindow", func(t *testing.T) {
		rl := NewRateLimiter(1)
		now := time.Now()
		assert.True(t, rl.Allow("user-1", now))
		assert.False(t, rl.Allow("user-1", now))
		assert.True(t, rl.Allow("user-1", now.Add(2*time.Minute)))
	})

	t.Run("TracksKeysIndependently", func(t *testing.T) {
		rl := NewRateLimiter(1)
		now := time.Now()
		assert.True(t, rl.Allow("user-1", now))
		assert.True(t, rl.Allow("user-2", now))
	})

	t.Run("ZeroLimitDisablesLimiting", func(t *testing.T) {
		rl := NewRateLimiter(0)
		now := time.Now()
		for i := 0; i < 100; i++ {
			assert.True(t, rl.Allow("user-1", now))
		}
	})
}
