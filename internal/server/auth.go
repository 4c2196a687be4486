package server

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// Roles understood by the moderation API. Moderators review checks and audit
// trails through their session; admins additionally manage thresholds and
// users.
const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
)

var errNoSession = errors.New("no valid session")

// Auth authenticates requests two ways: moderator sessions backed by the
// users and sessions tables, and a static admin token for automation. With a
// nil pool only token auth is available.
type Auth struct {
	pool       *pgxpool.Pool
	adminToken string
	cookieName string
	sessionTTL time.Duration
}

func NewAuth(pool *pgxpool.Pool, cfg ServerConfig) *Auth {
	ttl := 8 * time.Hour
	if parsed, err := time.ParseDuration(cfg.Auth.SessionTTL); err == nil && parsed > 0 {
		ttl = parsed
	}
	name := strings.TrimSpace(cfg.Auth.CookieName)
	if name == "" {
		name = "guard_session"
	}
	return &Auth{
		pool:       pool,
		adminToken: strings.TrimSpace(cfg.Security.AdminToken),
		cookieName: name,
		sessionTTL: ttl,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *Auth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}
	if a.pool == nil {
		writeError(w, http.StatusServiceUnavailable, "moderator login requires a database")
		return
	}

	principal, err := a.verifyCredentials(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := a.startSession(r.Context(), principal)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session error")
		return
	}
	a.setSessionCookie(w, r, token, int(a.sessionTTL.Seconds()))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "role": principal.Role})
}

func (a *Auth) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(a.cookieName); err == nil {
		a.endSession(r.Context(), cookie.Value)
	}
	a.setSessionCookie(w, r, "", -1)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *Auth) HandleMe(w http.ResponseWriter, r *http.Request) {
	principal, err := a.AuthenticateRequest(r)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"principal":     principal,
	})
}

func (a *Auth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.AuthenticateRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) RequireAdmin(next http.Handler) http.Handler {
	return a.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFromContext(r.Context())
		if p.Role != RoleAdmin {
			writeError(w, http.StatusForbidden, "admin required")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// AuthenticateRequest resolves the caller: session cookie first, then the
// admin token (X-Admin-Token header or Bearer).
func (a *Auth) AuthenticateRequest(r *http.Request) (Principal, error) {
	if principal, err := a.sessionPrincipal(r); err == nil {
		return principal, nil
	}
	if principal, ok := a.tokenPrincipal(r); ok {
		return principal, nil
	}
	return Principal{}, errNoSession
}

func (a *Auth) verifyCredentials(ctx context.Context, username, password string) (Principal, error) {
	var principal Principal
	var hash string
	err := a.pool.QueryRow(ctx,
		`SELECT id, username, role, password_hash FROM users WHERE username=$1`, username).
		Scan(&principal.Subject, &principal.Username, &principal.Role, &hash)
	if err != nil {
		return Principal{}, errNoSession
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return Principal{}, errNoSession
	}
	return principal, nil
}

func (a *Auth) startSession(ctx context.Context, principal Principal) (string, error) {
	token, err := newSessionToken()
	if err != nil {
		return "", err
	}
	// expired sessions are reaped opportunistically on each login
	_, _ = a.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
	_, err = a.pool.Exec(ctx,
		`INSERT INTO sessions (token_hash, user_id, expires_at) VALUES ($1, $2, $3)`,
		hashToken(token), principal.Subject, time.Now().Add(a.sessionTTL))
	if err != nil {
		return "", err
	}
	return token, nil
}

func (a *Auth) endSession(ctx context.Context, token string) {
	if a.pool == nil || strings.TrimSpace(token) == "" {
		return
	}
	_, _ = a.pool.Exec(ctx, `DELETE FROM sessions WHERE token_hash=$1`, hashToken(token))
}

func (a *Auth) sessionPrincipal(r *http.Request) (Principal, error) {
	if a.pool == nil {
		return Principal{}, errNoSession
	}
	cookie, err := r.Cookie(a.cookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return Principal{}, errNoSession
	}
	var principal Principal
	err = a.pool.QueryRow(r.Context(),
		`SELECT u.id, u.username, u.role FROM sessions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.token_hash=$1 AND s.expires_at > now()`,
		hashToken(cookie.Value)).
		Scan(&principal.Subject, &principal.Username, &principal.Role)
	if err != nil {
		return Principal{}, errNoSession
	}
	return principal, nil
}

func (a *Auth) tokenPrincipal(r *http.Request) (Principal, bool) {
	if a.adminToken == "" {
		return Principal{}, false
	}
	candidates := []string{strings.TrimSpace(r.Header.Get("X-Admin-Token"))}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		candidates = append(candidates, strings.TrimSpace(header[7:]))
	}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(a.adminToken)) == 1 {
			return Principal{Subject: "admin-token", Username: "admin-token", Role: RoleAdmin}, true
		}
	}
	return Principal{}, false
}

func (a *Auth) setSessionCookie(w http.ResponseWriter, r *http.Request, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

// SeedUser creates or updates a moderation user. Role must be one of the
// known roles.
func SeedUser(ctx context.Context, pool *pgxpool.Pool, username, password, role string) error {
	switch role {
	case RoleAdmin, RoleModerator:
	default:
		return fmt.Errorf("unknown role %q (want %s or %s)", role, RoleAdmin, RoleModerator)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = pool.Exec(ctx,
		`INSERT INTO users (username, password_hash, role) VALUES ($1, $2, $3)
		 ON CONFLICT (username) DO UPDATE SET password_hash=$2, role=$3, updated_at=now()`,
		username, string(hash), role)
	return err
}

type principalContextKey struct{}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	value := ctx.Value(principalContextKey{})
	principal, ok := value.(Principal)
	return principal, ok
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newSessionToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return "cgs_" + base64.RawURLEncoding.EncodeToString(raw), nil
}
