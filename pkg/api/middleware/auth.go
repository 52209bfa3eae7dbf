// Package middleware provides the request-scoped collaborators the ingest
// API mounts ahead of every /v1 route: principal resolution (hybrid
// bearer-or-API-key auth) and per-principal rate limiting. Both are
// constructed once at startup and passed in explicitly rather than held in
// package-level state.
package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dfsingest/dfsingest/internal/logger"
	"github.com/dfsingest/dfsingest/pkg/config"
	"github.com/dfsingest/dfsingest/pkg/ingest"
	"github.com/dfsingest/dfsingest/pkg/ingest/apierror"
)

// Claims is the JWT payload accepted in "jwt"/"hybrid" auth mode.
type Claims struct {
	jwt.RegisteredClaims
	UserID  string `json:"uid"`
	IsAdmin bool   `json:"is_admin"`
}

// Resolver resolves an ingest.Principal from a request: try bearer token
// first when present, else API key.
type Resolver struct {
	mode         string
	apiKeyToUser map[string]string
	adminUsers   map[string]struct{}
	jwtSecret    []byte
	jwtAudience  string
	jwtIssuer    string
}

// NewResolver builds a Resolver from AuthConfig, parsing the
// "k1:u1,k2:u2" api_key_mappings and comma-separated admin_user_ids forms.
func NewResolver(cfg config.AuthConfig) *Resolver {
	r := &Resolver{
		mode:         cfg.Mode,
		apiKeyToUser: make(map[string]string),
		adminUsers:   make(map[string]struct{}),
		jwtSecret:    []byte(cfg.JWTSecret),
		jwtAudience:  cfg.JWTAudience,
		jwtIssuer:    cfg.JWTIssuer,
	}
	for _, pair := range strings.Split(cfg.APIKeyMappings, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, ":", 2)
		if len(kv) != 2 {
			continue
		}
		r.apiKeyToUser[kv[0]] = kv[1]
	}
	for _, id := range strings.Split(cfg.AdminUserIDs, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			r.adminUsers[id] = struct{}{}
		}
	}
	return r
}

// Resolve implements the pipeline: try bearer first when present, else API
// key. rate_key is the resolved user id in both cases, so the two
// credential types are rate-limited symmetrically.
func (res *Resolver) Resolve(r *http.Request) (ingest.Principal, error) {
	if token, ok := bearerToken(r); ok && res.mode != "api_key" {
		return res.resolveJWT(token)
	}
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" && res.mode != "jwt" {
		return res.resolveAPIKey(apiKey)
	}
	if res.mode == "jwt" {
		return ingest.Principal{}, apierror.MissingCredential("Authorization: Bearer <jwt> required")
	}
	return ingest.Principal{}, apierror.MissingCredential("X-API-Key required")
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

func (res *Resolver) resolveJWT(token string) (ingest.Principal, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return res.jwtSecret, nil
	}, jwt.WithIssuer(res.jwtIssuer), jwt.WithAudience(res.jwtAudience))
	if err != nil || !parsed.Valid {
		return ingest.Principal{}, apierror.InvalidCredential("invalid or expired token")
	}

	isAdmin := claims.IsAdmin
	if _, ok := res.adminUsers[claims.UserID]; ok {
		isAdmin = true
	}
	return ingest.Principal{UserID: claims.UserID, IsAdmin: isAdmin, RateKey: claims.UserID}, nil
}

func (res *Resolver) resolveAPIKey(apiKey string) (ingest.Principal, error) {
	userID, ok := res.apiKeyToUser[apiKey]
	if !ok {
		return ingest.Principal{}, apierror.InvalidCredential("unrecognized API key")
	}
	_, isAdmin := res.adminUsers[userID]
	return ingest.Principal{UserID: userID, IsAdmin: isAdmin, RateKey: userID}, nil
}

// Authenticate resolves the principal and stashes it (and a logging
// context carrying the owner id) on the request, or rejects the request
// with a 401.
func Authenticate(resolver *Resolver, appVersion string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := resolver.Resolve(r)
			if err != nil {
				respondError(w, r, err, appVersion)
				return
			}

			ctx := ingest.WithPrincipal(r.Context(), principal)
			lc := logger.NewLogContext(r.RemoteAddr).WithOwner(principal.UserID)
			ctx = logger.WithContext(ctx, lc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin blocks non-admin principals. Must run after Authenticate.
func RequireAdmin(appVersion string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := ingest.PrincipalFromContext(r.Context())
			if !ok || !principal.IsAdmin {
				respondError(w, r, apierror.Forbidden("admin principal required"), appVersion)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter enforces api_rate_limit_per_minute per rate_key using a
// sliding-window deque guarded by a dedicated mutex; entries expire as old
// events drop below the window.
type RateLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	buckets map[string][]time.Time
}

// NewRateLimiter builds a limiter allowing limit events per rolling
// minute. limit <= 0 disables the limiter (every request allowed).
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  time.Minute,
		buckets: make(map[string][]time.Time),
	}
}

// Allow reports whether key may proceed now, recording the event if so.
func (rl *RateLimiter) Allow(key string, now time.Time) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-rl.window)
	events := rl.buckets[key]

	i := 0
	for i < len(events) && events[i].Before(cutoff) {
		i++
	}
	events = events[i:]

	if len(events) >= rl.limit {
		rl.buckets[key] = events
		return false
	}

	rl.buckets[key] = append(events, now)
	return true
}

// Middleware enforces rl against the principal resolved by Authenticate.
// Must run after Authenticate.
func (rl *RateLimiter) Middleware(appVersion string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := ingest.PrincipalFromContext(r.Context())
			if ok && !rl.Allow(principal.RateKey, time.Now()) {
				respondError(w, r, apierror.Throttled("api_key_rate_limit"), appVersion)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// errorBody mirrors pkg/api's response shape. Kept local (rather than
// imported) so this package has no dependency on pkg/api, which imports
// this package for Authenticate/RequireAdmin/RateLimiter.
type errorBody struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code"`
	RequestID string `json:"request_id"`
}

// respondError writes the same structured error body pkg/api.Wrap writes,
// for requests rejected before a coordinator handler ever runs.
func respondError(w http.ResponseWriter, r *http.Request, err error, appVersion string) {
	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) {
		apiErr = apierror.Internal("unexpected error")
	}

	requestID := middleware.GetReqID(r.Context())
	if requestID == "" {
		requestID = uuid.NewString()
	}

	w.Header().Set("X-DFS-App-Version", appVersion)
	w.Header().Set("X-Request-ID", requestID)

	logger.ErrorCtx(r.Context(), "request rejected",
		logger.ErrorCode(apiErr.Code),
		logger.Err(apiErr),
		logger.RequestID(requestID),
	)

	if apiErr.Kind == apierror.KindThrottled {
		w.Header().Set("Retry-After", "1")
		w.Header().Set("X-RateLimit-Reason", apiErr.RateLimitReason)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	json.NewEncoder(w).Encode(errorBody{
		Detail:    apiErr.Message,
		ErrorCode: apiErr.Code,
		RequestID: requestID,
	})
}
