package server

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/fintrack/internal/access"
	authdomain "github.com/smallbiznis/fintrack/internal/auth/domain"
	obscontext "github.com/smallbiznis/fintrack/internal/observability/context"
	"go.uber.org/zap"
)

const (
	contextActorKey      = "actor"
	contextRetryAfterKey = "retry_after"
	pendingPathPrefix    = "/auth/"
)

// SessionRequired runs the access check on every request. Sessions still
// waiting for a license may only reach the /auth routes.
func (s *Server) SessionRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.ReadToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		actor, err := s.gate.Check(ctx, token)
		if err != nil {
			if endsSession(err) {
				s.sessions.Clear(c)
			}
			AbortWithError(c, err)
			return
		}

		if actor.State() == access.StatePendingLicense && !strings.HasPrefix(c.Request.URL.Path, pendingPathPrefix) {
			AbortWithError(c, ErrLicenseRequired)
			return
		}

		c.Set(contextActorKey, actor)
		c.Request = c.Request.WithContext(obscontext.WithActor(ctx, actor.User.Role.String(), actor.User.ID.String()))

		c.Next()

		if err := s.gate.Persist(c.Request.Context(), actor); err != nil {
			s.log.Warn("http.session.persist_failed", zap.Error(err))
		}
	}
}

// RequireRole aborts with 403 unless the session user's role passes allowed.
func (s *Server) RequireRole(allowed func(authdomain.Role) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !allowed(actor.User.Role) {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

// LoginRateLimit throttles login attempts per client IP. Limiter errors fail
// open; Redis being down must not lock everyone out.
func (s *Server) LoginRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		result, err := s.limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			s.log.Warn("http.login.rate_limit_failed", zap.Error(err))
			c.Next()
			return
		}
		if !result.Allowed {
			seconds := int(result.RetryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Set(contextRetryAfterKey, strconv.Itoa(seconds))
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

func actorFromContext(c *gin.Context) (*access.Actor, bool) {
	value, ok := c.Get(contextActorKey)
	if !ok {
		return nil, false
	}
	actor, ok := value.(*access.Actor)
	return actor, ok && actor != nil
}

func endsSession(err error) bool {
	return errors.Is(err, access.ErrSessionIdle) ||
		errors.Is(err, access.ErrLicenseRejected) ||
		errors.Is(err, authdomain.ErrSessionExpired) ||
		errors.Is(err, authdomain.ErrSessionRevoked) ||
		errors.Is(err, authdomain.ErrInvalidSession)
}
