package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/revenue/internal/authorization"
)

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorizeWithContext(c, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeWithContext(c *gin.Context, object string, action string) error {
	actor, ok := s.actorFromContext(c)
	if !ok {
		return ErrUnauthorized
	}
	if s.authzSvc == nil {
		return ErrForbidden
	}
	return s.authzSvc.Authorize(c.Request.Context(), actor, strings.TrimSpace(object), strings.TrimSpace(action))
}

func (s *Server) actorFromContext(c *gin.Context) (authorization.Actor, bool) {
	principal, ok := principalFromGin(c)
	if !ok {
		return authorization.Actor{}, false
	}
	return authorization.Actor{
		Type: authorization.ActorTypeUser,
		ID:   principal.ExternalID,
		Role: principal.Role,
	}, true
}
