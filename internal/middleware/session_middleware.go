package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/storefront-cart/config"
	"github.com/ikkim/storefront-cart/internal/app/service"
	apperrors "github.com/ikkim/storefront-cart/internal/errors"
	"github.com/ikkim/storefront-cart/internal/session"
	"github.com/ikkim/storefront-cart/pkg/util"
)

// Context keys for session information
const (
	SessionKey       = "cart_session"
	TokenKey         = "bearer_token"
	RestoreReportKey = "restore_report"
)

type SessionMiddleware struct {
	registry *session.Registry
	cfg      config.SessionConfig
}

func NewSessionMiddleware(registry *session.Registry, cfg config.SessionConfig) *SessionMiddleware {
	return &SessionMiddleware{
		registry: registry,
		cfg:      cfg,
	}
}

// Attach resolves the guest session cookie (issuing one when missing),
// records the bearer token on the session and restores an authenticated
// cart the first time a token is seen.
func (m *SessionMiddleware) Attach() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := GetLoggerFromContext(c)

		sessionID, err := c.Cookie(m.cfg.CookieName)
		if err != nil || !util.ValidSessionID(sessionID) {
			sessionID = util.NewSessionID()
			log.Debug("Issuing guest session", map[string]interface{}{
				"session_id": sessionID,
			})
		}
		// refresh the cookie lifetime on every request
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(m.cfg.CookieName, sessionID, int(m.cfg.CookieLifetime.Seconds()), "/", "", m.cfg.SecureCookie, true)

		sess := m.registry.Get(sessionID)
		c.Set(SessionKey, sess)

		if token := bearerToken(c); token != "" {
			c.Set(TokenKey, token)
			if sess.SetToken(c.Request.Context(), token) {
				log.Info("Bearer token belongs to another user, session logged out", map[string]interface{}{
					"session_id": sessionID,
				})
			}

			report, err := sess.RestoreOnce(c.Request.Context())
			if err != nil {
				log.Warn("Session restore failed, continuing as guest", map[string]interface{}{
					"session_id": sessionID,
					"error":      err.Error(),
				})
			} else if report != nil {
				c.Set(RestoreReportKey, report)
			}
		}

		c.Next()
	}
}

// RequireToken rejects requests without a bearer token
func (m *SessionMiddleware) RequireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetToken(c); !ok {
			GetLoggerFromContext(c).Warn("Missing authorization header", map[string]interface{}{
				"path": c.Request.URL.Path,
			})
			apperrors.Unauthorized(c, "")
			c.Abort()
			return
		}
		c.Next()
	}
}

// bearerToken reads "Authorization: Bearer <token>", falling back to the
// token query parameter for WebSocket upgrades.
func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("token")
}

// GetSession extracts the cart session from context
func GetSession(c *gin.Context) (*session.Session, bool) {
	value, exists := c.Get(SessionKey)
	if !exists {
		return nil, false
	}
	sess, ok := value.(*session.Session)
	return sess, ok
}

// GetToken extracts the bearer token from context
func GetToken(c *gin.Context) (string, bool) {
	token := c.GetString(TokenKey)
	return token, token != ""
}

// GetRestoreReport returns the merge report of a session restore that ran
// during this request.
func GetRestoreReport(c *gin.Context) (*service.MergeReport, bool) {
	value, exists := c.Get(RestoreReportKey)
	if !exists {
		return nil, false
	}
	report, ok := value.(*service.MergeReport)
	return report, ok
}
