package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// tokenQueryParam carries the token for WebSocket clients that cannot set
// headers.
const tokenQueryParam = "token"

var errInvalidToken = errors.New("invalid token")

// Auth issues and verifies bearer tokens for the mobile client.
type Auth struct {
	username     string
	passwordHash []byte
	hmacKey      []byte
	ttl          time.Duration
	logger       *zap.Logger

	// attempts throttles credential checks across all clients.
	attempts *rate.Limiter
	now      func() time.Time
}

// NewAuth verifies logins against a bcrypt hash. Tokens are signed with a
// key derived from secret, so they stay valid across restarts that keep it.
func NewAuth(username string, passwordHash []byte, secret string, ttl time.Duration, logger *zap.Logger) *Auth {
	if logger == nil {
		logger = zap.NewNop()
	}
	key := sha256.Sum256([]byte("pocketdev-token:" + secret))
	return &Auth{
		username:     username,
		passwordHash: passwordHash,
		hmacKey:      key[:],
		ttl:          ttl,
		logger:       logger,
		attempts:     rate.NewLimiter(rate.Every(time.Second), 5),
		now:          time.Now,
	}
}

// HashPassword returns the bcrypt hash stored in POCKETDEV_GATEWAY_PASSWORD_HASH.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// Routes registers the auth endpoints on mux.
func (a *Auth) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/token", a.handleToken)
}

// Middleware rejects requests without a valid token. /auth/, /tunnel and
// /gateway/health are exempt.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if strings.HasPrefix(path, "/auth/") || path == "/tunnel" || path == "/gateway/health" {
			next.ServeHTTP(w, r)
			return
		}
		if err := a.Verify(requestToken(r)); err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleToken accepts HTTP basic credentials or a JSON body
// {"username","password"} and returns a signed token.
func (a *Auth) handleToken(w http.ResponseWriter, r *http.Request) {
	if !a.attempts.Allow() {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many attempts"})
		return
	}

	username, password, ok := r.BasicAuth()
	if !ok {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "credentials required"})
			return
		}
		username, password = body.Username, body.Password
	}

	if !a.checkCredentials(username, password) {
		a.logger.Warn("rejected login", zap.String("username", username), zap.String("remote", r.RemoteAddr))
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid username or password"})
		return
	}

	expires := a.now().Add(a.ttl).UTC().Truncate(time.Second)
	writeJSON(w, http.StatusOK, tokenResponse{Token: a.Sign(username, expires), ExpiresAt: expires})
}

func (a *Auth) checkCredentials(username, password string) bool {
	userOK := hmac.Equal([]byte(username), []byte(a.username))
	// Always run bcrypt so a wrong username costs the same as a wrong password.
	passOK := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) == nil
	return userOK && passOK
}

// Sign creates a token of the form user.expiry.signature, where user is
// base64url encoded and the signature is a hex HMAC-SHA256 of the first two.
func (a *Auth) Sign(username string, expires time.Time) string {
	payload := base64.RawURLEncoding.EncodeToString([]byte(username)) + "." + strconv.FormatInt(expires.Unix(), 10)
	return payload + "." + a.signature(payload)
}

// Verify checks the token's signature, user and expiry.
func (a *Auth) Verify(token string) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return errInvalidToken
	}
	payload := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(parts[2]), []byte(a.signature(payload))) {
		return errInvalidToken
	}
	user, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil || string(user) != a.username {
		return errInvalidToken
	}
	expiry, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return errInvalidToken
	}
	if a.now().Unix() > expiry {
		return fmt.Errorf("%w: expired", errInvalidToken)
	}
	return nil
}

func (a *Auth) signature(payload string) string {
	mac := hmac.New(sha256.New, a.hmacKey)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// requestToken reads the bearer token, falling back to the query parameter
// on WebSocket paths.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if strings.HasPrefix(r.URL.Path, "/ws/") {
		return r.URL.Query().Get(tokenQueryParam)
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
