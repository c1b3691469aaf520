package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) LicenseStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	status, err := s.license.Status(c.Request.Context(), actor.License)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": status})
}

// RevalidateLicense forces an online check of the session's license. A
// rejection ends the session.
func (s *Server) RevalidateLicense(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.gate.Revalidate(c.Request.Context(), actor); err != nil {
		if endsSession(err) {
			s.sessions.Clear(c)
		}
		AbortWithError(c, err)
		return
	}

	state, _ := actor.License.State()
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"valid":      state.Valid,
		"features":   state.Features,
		"expires_at": state.ExpiresAt,
	}})
}

func (s *Server) DeactivateLicense(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	result, err := s.gate.Deactivate(c.Request.Context(), actor)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.sessions.Clear(c)
	c.JSON(http.StatusOK, gin.H{"data": result})
}

// ClearLicenseCache drops every cached validation and re-validates the
// calling session online against the installation key.
func (s *Server) ClearLicenseCache(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	ctx := c.Request.Context()
	if err := s.license.ClearCache(ctx, actor.License); err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.gate.Revalidate(ctx, actor); err != nil {
		if endsSession(err) {
			s.sessions.Clear(c)
		}
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
