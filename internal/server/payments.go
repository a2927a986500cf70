package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	historydomain "github.com/smallbiznis/revenue/internal/history/domain"
	"github.com/smallbiznis/revenue/internal/identity"
	"github.com/smallbiznis/revenue/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/revenue/internal/payment/domain"
	settlementdomain "github.com/smallbiznis/revenue/internal/settlement/domain"
	"github.com/smallbiznis/revenue/internal/tariff"
	userdomain "github.com/smallbiznis/revenue/internal/user/domain"
	"go.uber.org/zap"
)

const paymentProcessedMessage = "Payment processed successfully"

type lastPaymentResponse struct {
	ServiceCode   string                    `json:"serviceCode"`
	AccountNumber string                    `json:"accountNumber,omitempty"`
	LastCharge    *float64                  `json:"lastCharge"`
	LastReading   *int64                    `json:"lastReading"`
	Details       historydomain.LastPayment `json:"details"`
}

// SettlePayment runs one citizen payment. The body is kept as a raw map since
// required attributes depend on the service code.
func (s *Server) SettlePayment(c *gin.Context) {
	principal, ok := principalFromGin(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, settlementdomain.InvalidFieldError("request", "invalid_json", "request body must be a JSON object"))
		return
	}

	result, err := s.settlementSvc.Settle(c.Request.Context(), settlementdomain.Request{
		Payer: principal,
		Body:  body,
		Origin: settlementdomain.Origin{
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			RequestID: c.GetString("request_id"),
		},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, paymentProcessedMessage, result)
}

func (s *Server) GetLastPayment(c *gin.Context) {
	if strings.TrimSpace(c.Query("serviceCode")) == "" {
		AbortWithError(c, newValidationError("serviceCode", "required", "serviceCode is required"))
		return
	}
	code, err := tariff.ParseServiceCode(c.Query("serviceCode"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := lastPaymentResponse{ServiceCode: code.String()}
	user, found, err := s.lookupUser(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !found {
		respond(c, http.StatusOK, "", resp)
		return
	}

	last, err := s.historySvc.LastPayment(c.Request.Context(), user.ID, code.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	resp.Details = last
	if last.ServiceAccount != nil {
		resp.AccountNumber = last.ServiceAccount.AccountNumber
	}
	if last.Payment != nil {
		amount, _ := last.Payment.Amount.Float64()
		resp.LastCharge = &amount
	}
	if last.Reading != nil {
		reading := last.Reading.CurrentReading
		resp.LastReading = &reading
	}
	respond(c, http.StatusOK, "", resp)
}

func (s *Server) ListBillingHistory(c *gin.Context) {
	var filter historydomain.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if code := strings.TrimSpace(filter.ServiceCode); code != "" {
		parsed, err := tariff.ParseServiceCode(code)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		filter.ServiceCode = parsed.String()
	}

	user, found, err := s.lookupUser(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !found {
		respond(c, http.StatusOK, "", historydomain.Page{Entries: []historydomain.Entry{}})
		return
	}

	page, err := s.historySvc.BillingHistory(c.Request.Context(), user.ID, filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "", page)
}

// DownloadReceipt streams the PDF receipt of a completed payment. Payments of
// other users are reported as missing.
func (s *Server) DownloadReceipt(c *gin.Context) {
	ctx := c.Request.Context()
	transactionID := strings.TrimSpace(c.Param("transactionId"))

	user, found, err := s.lookupUser(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !found {
		AbortWithError(c, paymentdomain.ErrNotFound)
		return
	}

	payment, err := s.paymentSvc.GetByTransactionID(ctx, transactionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if payment.UserID != user.ID {
		AbortWithError(c, paymentdomain.ErrNotFound)
		return
	}
	if payment.Status != paymentdomain.StatusCompleted {
		AbortWithError(c, ErrConflict)
		return
	}

	receipt, err := s.receipts.Compose(ctx, payment)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	doc, err := s.pdf.GenerateReceipt(ctx, receipt.PDFData())
	if err != nil {
		logger.FromContext(ctx).Error("render receipt pdf failed",
			zap.String("transaction_id", transactionID),
			zap.Error(err),
		)
		AbortWithError(c, err)
		return
	}
	content, err := io.ReadAll(doc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="receipt-%s.pdf"`, transactionID))
	c.Data(http.StatusOK, "application/pdf", content)
}

func (s *Server) GetMe(c *gin.Context) {
	principal, ok := principalFromGin(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	user, err := s.userSvc.Upsert(c.Request.Context(), profileFromPrincipal(principal))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{
		"user": user,
		"role": principal.Role,
	})
}

// lookupUser resolves the caller's stored user without creating one.
func (s *Server) lookupUser(c *gin.Context) (userdomain.User, bool, error) {
	principal, ok := principalFromGin(c)
	if !ok {
		return userdomain.User{}, false, ErrUnauthorized
	}
	user, err := s.userSvc.GetByExternalID(c.Request.Context(), principal.ExternalID)
	if errors.Is(err, userdomain.ErrNotFound) {
		return userdomain.User{}, false, nil
	}
	if err != nil {
		return userdomain.User{}, false, err
	}
	return user, true, nil
}

func profileFromPrincipal(p identity.Principal) userdomain.Profile {
	return userdomain.Profile{
		ExternalID: p.ExternalID,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Email:      p.Email,
		Phone:      p.Phone,
	}
}
