package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/revenue/internal/catalog/domain"
	"github.com/smallbiznis/revenue/internal/tariff"
)

type quoteResponse struct {
	ServiceCode string         `json:"serviceCode"`
	ServiceName string         `json:"serviceName"`
	Attributes  map[string]any `json:"attributes"`
	Amount      float64        `json:"amount"`
	Fee         float64        `json:"fee"`
	Total       float64        `json:"total"`
	Currency    string         `json:"currency"`
}

func (s *Server) ListServices(c *gin.Context) {
	defs, err := s.catalogSvc.List(c.Request.Context(), catalogdomain.ListRequest{ActiveOnly: true})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "", defs)
}

func (s *Server) GetService(c *gin.Context) {
	code, err := tariff.ParseServiceCode(c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	def, err := s.catalogSvc.GetByCode(c.Request.Context(), code.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !def.IsActive {
		AbortWithError(c, catalogdomain.ErrInactive)
		return
	}
	respond(c, http.StatusOK, "", def)
}

// QuoteService prices the attributes in the request body without persisting.
func (s *Server) QuoteService(c *gin.Context) {
	var attrs map[string]any
	if err := c.ShouldBindJSON(&attrs); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	quote, err := s.catalogSvc.Quote(c.Request.Context(), c.Param("code"), attrs)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	amount, _ := quote.Amount.Float64()
	fee, _ := quote.Fee.Float64()
	total, _ := quote.Total.Float64()
	respond(c, http.StatusOK, "", quoteResponse{
		ServiceCode: quote.Service.Code,
		ServiceName: quote.Service.Name,
		Attributes:  quote.Request.Attributes(),
		Amount:      amount,
		Fee:         fee,
		Total:       total,
		Currency:    quote.Currency,
	})
}

func (s *Server) AdminListServices(c *gin.Context) {
	active, err := parseOptionalBool(c.Query("active"))
	if err != nil {
		AbortWithError(c, newValidationError("active", "invalid_active", "invalid active"))
		return
	}

	defs, err := s.catalogSvc.List(c.Request.Context(), catalogdomain.ListRequest{ActiveOnly: active != nil && *active})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if active != nil && !*active {
		inactive := defs[:0]
		for _, def := range defs {
			if !def.IsActive {
				inactive = append(inactive, def)
			}
		}
		defs = inactive
	}
	respond(c, http.StatusOK, "", defs)
}

func (s *Server) AdminGetService(c *gin.Context) {
	def, err := s.catalogSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "", def)
}

func (s *Server) CreateService(c *gin.Context) {
	var req catalogdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	def, err := s.catalogSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, "service created", def)
}

func (s *Server) UpdateService(c *gin.Context) {
	var req catalogdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	def, err := s.catalogSvc.Update(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "service updated", def)
}

func (s *Server) DeactivateService(c *gin.Context) {
	def, err := s.catalogSvc.Deactivate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "service deactivated", def)
}
