package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/fintrack/internal/access"
	authdomain "github.com/smallbiznis/fintrack/internal/auth/domain"
	"go.uber.org/zap"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SubmitLicenseRequest struct {
	LicenseKey string `json:"license_key"`
}

type sessionResponse struct {
	User      userResponse `json:"user"`
	State     access.State `json:"state"`
	Reason    string       `json:"reason,omitempty"`
	ExpiresAt time.Time    `json:"expires_at"`
	Processed int          `json:"recurring_processed,omitempty"`
}

type userResponse struct {
	ID       string          `json:"id"`
	Username string          `json:"username"`
	Email    string          `json:"email,omitempty"`
	Role     authdomain.Role `json:"role"`
}

func newUserResponse(u *authdomain.User) userResponse {
	return userResponse{
		ID:       u.ID.String(),
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
	}
}

func newSessionResponse(outcome *access.LoginOutcome) sessionResponse {
	return sessionResponse{
		User:      newUserResponse(outcome.User),
		State:     outcome.State,
		Reason:    outcome.Reason,
		ExpiresAt: outcome.ExpiresAt,
		Processed: outcome.Processed,
	}
}

func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		AbortWithError(c, newValidationError("username", "required", "username and password are required"))
		return
	}

	outcome, err := s.gate.Login(c.Request.Context(), authdomain.LoginRequest{
		Username:  username,
		Password:  req.Password,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		s.log.Info("http.login.failed", zap.String("username", username), zap.String("client_ip", c.ClientIP()))
		AbortWithError(c, err)
		return
	}

	s.sessions.Set(c, outcome.RawToken, outcome.ExpiresAt)
	c.JSON(http.StatusOK, gin.H{"data": newSessionResponse(outcome)})
}

// SubmitLicense accepts a license key from an administrator whose session is
// still pending.
func (s *Server) SubmitLicense(c *gin.Context) {
	var req SubmitLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	token, ok := s.sessions.ReadToken(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	outcome, err := s.gate.SubmitLicenseKey(c.Request.Context(), token, req.LicenseKey)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newSessionResponse(outcome)})
}

func (s *Server) Logout(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.gate.Logout(c.Request.Context(), actor); err != nil {
		AbortWithError(c, err)
		return
	}

	s.sessions.Clear(c)
	c.Status(http.StatusNoContent)
}

func (s *Server) Me(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp := gin.H{
		"user":       newUserResponse(actor.User),
		"state":      actor.State(),
		"expires_at": actor.Session.ExpiresAt,
	}
	if state, ok := actor.License.State(); ok {
		resp["license"] = gin.H{
			"valid":      state.Valid,
			"features":   state.Features,
			"expires_at": state.ExpiresAt,
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
