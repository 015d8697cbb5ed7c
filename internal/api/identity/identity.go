// Package identity issues the per-browser session key and resolves the
// authenticated flag for incoming HTTP requests.
package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SessionCookie names the cookie carrying the opaque session key.
const SessionCookie = "waveroom_session"

const (
	ctxSessionKey    = "identity.session_key"
	ctxAuthenticated = "identity.authenticated"
)

// Middleware ensures every request carries a session key, minting one
// into a cookie when absent, and marks the request authenticated when
// the Authorization header carries a known bearer token.
func Middleware(tokens []string) gin.HandlerFunc {
	known := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if t != "" {
			known[t] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		key, err := c.Cookie(SessionCookie)
		if err != nil || key == "" {
			key = uuid.NewString()
			http.SetCookie(c.Writer, &http.Cookie{
				Name:     SessionCookie,
				Value:    key,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		c.Set(ctxSessionKey, key)

		auth := false
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token := strings.TrimPrefix(h, "Bearer ")
			_, auth = known[token]
		}
		c.Set(ctxAuthenticated, auth)

		c.Next()
	}
}

// SessionKey returns the session key resolved by Middleware.
func SessionKey(c *gin.Context) string {
	return c.GetString(ctxSessionKey)
}

// Authenticated reports whether Middleware validated a bearer token.
func Authenticated(c *gin.Context) bool {
	return c.GetBool(ctxAuthenticated)
}

// ClientIP resolves the originating address, preferring the first entry
// of X-Forwarded-For over the socket peer.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}
