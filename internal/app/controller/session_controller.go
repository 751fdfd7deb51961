package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/storefront-cart/internal/app/service"
	"github.com/ikkim/storefront-cart/internal/app/viewmodel"
	apperrors "github.com/ikkim/storefront-cart/internal/errors"
	"github.com/ikkim/storefront-cart/internal/middleware"
)

type SessionController struct{}

func NewSessionController() *SessionController {
	return &SessionController{}
}

type MergedLineResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type SkippedLineResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Error     string `json:"error"`
	Message   string `json:"message"`
}

type MergeResponse struct {
	Merged       []MergedLineResponse  `json:"merged"`
	Skipped      []SkippedLineResponse `json:"skipped"`
	RefreshError string                `json:"refresh_error,omitempty"`
}

type LoginResponse struct {
	Cart  *viewmodel.CartView `json:"cart"`
	Merge *MergeResponse      `json:"merge"`
}

func toMergeResponse(report *service.MergeReport) *MergeResponse {
	resp := &MergeResponse{
		Merged:  []MergedLineResponse{},
		Skipped: []SkippedLineResponse{},
	}
	if report == nil {
		return resp
	}
	for _, m := range report.Merged {
		resp.Merged = append(resp.Merged, MergedLineResponse{ProductID: m.ProductID, Quantity: m.Quantity})
	}
	for _, s := range report.Skipped {
		info := apperrors.ParseError(s.Err)
		resp.Skipped = append(resp.Skipped, SkippedLineResponse{
			ProductID: s.ProductID,
			Quantity:  s.Quantity,
			Error:     info.Code,
			Message:   info.Message,
		})
	}
	if report.RefreshErr != nil {
		resp.RefreshError = apperrors.ParseError(report.RefreshErr).Code
	}
	return resp
}

// Login merges the guest cart into the signed-in user's cart
// POST /api/v1/session/login
func (ctrl *SessionController) Login(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	sess, ok := requireSession(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	// the session middleware already merged on the first request with a token
	report, restored := middleware.GetRestoreReport(c)
	if !restored {
		user, err := sess.Upstream.CheckSession(ctx)
		if err != nil {
			log.Error("Session check failed", err, map[string]interface{}{
				"session_id": sess.ID,
			})
			apperrors.RespondWithCartError(c, err)
			return
		}
		if user == nil {
			log.Warn("Login with rejected token", map[string]interface{}{
				"session_id": sess.ID,
			})
			apperrors.Unauthorized(c, "")
			return
		}

		_, report, err = sess.Engine.Login(ctx, user)
		sess.MarkRestored()
		if err != nil {
			respondCartError(c, sess, err, "merge", map[string]interface{}{
				"user_id": user.ID,
			})
			return
		}
	}

	snap := sess.Engine.Snapshot()
	if snap.State != service.StateAuthenticated || snap.User == nil {
		apperrors.Unauthorized(c, "")
		return
	}

	log.Info("Session logged in", map[string]interface{}{
		"session_id": sess.ID,
		"user_id":    snap.User.ID,
		"merged":     len(report.Merged),
		"skipped":    len(report.Skipped),
	})
	c.JSON(http.StatusOK, LoginResponse{
		Cart:  sess.View(),
		Merge: toMergeResponse(report),
	})
}

// Logout switches the session back to its guest cart
// POST /api/v1/session/logout
func (ctrl *SessionController) Logout(c *gin.Context) {
	sess, ok := requireSession(c)
	if !ok {
		return
	}

	sess.Tokens.Set("")
	sess.MarkRestored()
	if _, err := sess.Engine.Logout(c.Request.Context()); err != nil {
		respondCartError(c, sess, err, "logout", nil)
		return
	}

	middleware.GetLoggerFromContext(c).Info("Session logged out", map[string]interface{}{
		"session_id": sess.ID,
	})
	c.JSON(http.StatusOK, sess.View())
}
