package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	dashboarddomain "github.com/smallbiznis/revenue/internal/dashboard/domain"
	"github.com/smallbiznis/revenue/internal/tariff"
)

func (s *Server) GetDashboard(c *gin.Context) {
	summary, err := s.dashboardSvc.Summary(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "", summary)
}

func (s *Server) ListCollections(c *gin.Context) {
	var req dashboarddomain.CollectionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if code := strings.TrimSpace(req.ServiceCode); code != "" {
		parsed, err := tariff.ParseServiceCode(code)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		req.ServiceCode = parsed.String()
	}

	page, err := s.dashboardSvc.Collections(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "", page)
}
