package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/revenue/internal/auditcontext"
	"github.com/smallbiznis/revenue/internal/authorization"
	"github.com/smallbiznis/revenue/internal/identity"
	obscontext "github.com/smallbiznis/revenue/internal/observability/context"
	"github.com/smallbiznis/revenue/internal/observability/logger"
	"go.uber.org/zap"
)

const contextPrincipalKey = "principal"

// Authenticate verifies the bearer token and stores the caller on the request.
func (s *Server) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := identity.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		principal, err := s.verifier.Verify(raw)
		if err != nil {
			logger.FromContext(c.Request.Context()).Debug("bearer token rejected", zap.Error(err))
			AbortWithError(c, identity.ErrInvalidToken)
			return
		}

		ctx := identity.WithPrincipal(c.Request.Context(), principal)
		ctx = auditcontext.WithActor(ctx, authorization.ActorTypeUser, principal.ExternalID)
		ctx = obscontext.WithActor(ctx, authorization.ActorTypeUser, principal.ExternalID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextPrincipalKey, principal)
		c.Next()
	}
}

// RequireRole rejects callers whose token role is not one of roles.
func (s *Server) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalFromGin(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		for _, role := range roles {
			if strings.EqualFold(principal.Role, role) {
				c.Next()
				return
			}
		}
		AbortWithError(c, ErrForbidden)
	}
}

func principalFromGin(c *gin.Context) (identity.Principal, bool) {
	if c == nil {
		return identity.Principal{}, false
	}
	if value, ok := c.Get(contextPrincipalKey); ok {
		if principal, ok := value.(identity.Principal); ok && principal.ExternalID != "" {
			return principal, true
		}
	}
	return identity.PrincipalFromContext(c.Request.Context())
}
