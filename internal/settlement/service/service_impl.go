package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/revenue/internal/account/domain"
	auditdomain "github.com/smallbiznis/revenue/internal/audit/domain"
	billingdomain "github.com/smallbiznis/revenue/internal/billing/domain"
	catalogdomain "github.com/smallbiznis/revenue/internal/catalog/domain"
	"github.com/smallbiznis/revenue/internal/clock"
	"github.com/smallbiznis/revenue/internal/config"
	"github.com/smallbiznis/revenue/internal/identity"
	"github.com/smallbiznis/revenue/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/revenue/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/revenue/internal/payment/domain"
	"github.com/smallbiznis/revenue/internal/settlement/domain"
	"github.com/smallbiznis/revenue/internal/tariff"
	userdomain "github.com/smallbiznis/revenue/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// costTolerance is the largest accepted gap between the client-computed cost
// and the server-side tariff.
var costTolerance = decimal.RequireFromString("0.01")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Billing    *config.BillingConfigHolder
	UserSvc    userdomain.Service
	CatalogSvc catalogdomain.Service
	AccountSvc accountdomain.Service
	PaymentSvc paymentdomain.Service
	Gateway    paymentdomain.Gateway
	BillRepo   billingdomain.Repository
	Locker     domain.Locker       `optional:"true"`
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	billing         *config.BillingConfigHolder
	confirmOnCharge bool
	userSvc         userdomain.Service
	catalogSvc      catalogdomain.Service
	accountSvc      accountdomain.Service
	paymentSvc      paymentdomain.Service
	gateway         paymentdomain.Gateway
	billRepo        billingdomain.Repository
	locker          domain.Locker
	auditSvc        auditdomain.Service
	obsMetrics      *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("settlement.service"),
		genID:           p.GenID,
		clock:           p.Clock,
		billing:         p.Billing,
		confirmOnCharge: p.Cfg.Gateway.ConfirmOnCharge,
		userSvc:         p.UserSvc,
		catalogSvc:      p.CatalogSvc,
		accountSvc:      p.AccountSvc,
		paymentSvc:      p.PaymentSvc,
		gateway:         p.Gateway,
		billRepo:        p.BillRepo,
		locker:          p.Locker,
		auditSvc:        p.AuditSvc,
		obsMetrics:      p.ObsMetrics,
	}
}

type settlement struct {
	user    userdomain.User
	quote   catalogdomain.Quote
	account accountdomain.ServiceAccount
	charge  paymentdomain.ChargeResult
	trx     string
	bill    billingdomain.Bill
	payment paymentdomain.Payment
}

// Settle runs one payment attempt end to end. Everything before the gateway
// charge is validation or idempotent; the reading, bill, and payment are
// written in one transaction after the charge succeeds.
func (s *Service) Settle(ctx context.Context, req domain.Request) (domain.Result, error) {
	if strings.TrimSpace(req.Payer.ExternalID) == "" {
		return domain.Result{}, identity.ErrMissingToken
	}

	user, err := s.userSvc.Upsert(ctx, userdomain.Profile{
		ExternalID: req.Payer.ExternalID,
		FirstName:  req.Payer.FirstName,
		LastName:   req.Payer.LastName,
		Email:      req.Payer.Email,
		Phone:      req.Payer.Phone,
	})
	if err != nil {
		return domain.Result{}, fmt.Errorf("upsert user: %w", err)
	}

	code, cost, err := parseTopLevel(req.Body)
	if err != nil {
		return domain.Result{}, err
	}

	quote, err := s.quote(ctx, code, cost, req.Body)
	if err != nil {
		return domain.Result{}, err
	}

	st := &settlement{user: user, quote: quote}
	lockUser := user.ID.String()
	token, ok, err := s.lock(ctx, lockUser, code.String())
	if err != nil {
		return domain.Result{}, err
	}
	if !ok {
		return domain.Result{}, domain.ErrSettlementInFlight
	}
	defer s.unlock(lockUser, code.String(), token)

	st.account, _, err = s.accountSvc.ResolveOrCreate(ctx, nil, accountdomain.ResolveRequest{
		UserID:      user.ID,
		ServiceID:   quote.Service.ID,
		ServiceCode: code.String(),
	})
	if err != nil {
		return domain.Result{}, err
	}

	st.trx = NewTransactionID()
	st.charge, err = s.chargeGateway(ctx, st, req.Body)
	if err != nil {
		s.obsMetrics.RecordSettlement(ctx, code.String(), "GATEWAY_FAILED")
		s.log.Warn("gateway charge failed",
			zap.String("transaction_id", st.trx),
			zap.String("service_code", code.String()),
			zap.String("service_account_id", st.account.ID.String()),
			zap.Error(err),
		)
		return domain.Result{}, err
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.persist(ctx, tx, st, req)
	}); err != nil {
		s.log.Error("persist settlement failed after charge",
			zap.String("transaction_id", st.trx),
			zap.String("gateway_reference", st.charge.GatewayReference),
			zap.Error(err),
		)
		return domain.Result{}, persistenceError(st.trx, "transaction", err)
	}

	s.paymentSvc.Finalize(ctx, st.payment)
	s.audit(ctx, req, st)

	s.log.Info("payment settled",
		zap.String("transaction_id", st.trx),
		zap.String("service_code", code.String()),
		zap.String("status", string(st.payment.Status)),
		zap.String("total", st.payment.Total.StringFixed(2)),
		logger.Email("payer", user.Email),
	)

	return domain.Result{
		TransactionID:    st.payment.TransactionID,
		BillID:           st.bill.ID.String(),
		BillNumber:       st.bill.BillNumber,
		ServiceAccountID: st.account.ID.String(),
		AccountNumber:    st.account.AccountNumber,
		Amount:           st.payment.Amount,
		Fee:              st.payment.Fee,
		Total:            st.payment.Total,
		Currency:         st.payment.Currency,
		Status:           string(st.payment.Status),
		Timestamp:        st.payment.UpdatedAt,
	}, nil
}

func parseTopLevel(body map[string]any) (tariff.ServiceCode, decimal.Decimal, error) {
	missing := make([]string, 0, len(domain.TopLevelFields))
	for _, field := range domain.TopLevelFields {
		if !present(body[field]) {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return "", decimal.Zero, domain.MissingFieldsError(domain.MsgMissingPaymentInfo, missing)
	}

	code, err := tariff.ParseServiceCode(fmt.Sprint(body[domain.FieldServiceCode]))
	if err != nil {
		return "", decimal.Zero, err
	}
	cost, err := tariff.Amount(body, domain.FieldCalculatedCost)
	if err != nil {
		return "", decimal.Zero, domain.InvalidFieldError(domain.FieldCalculatedCost, "invalid", err.Error())
	}
	return code, cost, nil
}

func (s *Service) quote(ctx context.Context, code tariff.ServiceCode, cost decimal.Decimal, body map[string]any) (catalogdomain.Quote, error) {
	result, err := tariff.Validate(code, body)
	if err != nil {
		return catalogdomain.Quote{}, err
	}
	if !result.Valid {
		return catalogdomain.Quote{}, domain.MissingFieldsError(domain.MsgMissingServiceFields, result.MissingFields)
	}

	quote, err := s.catalogSvc.Quote(ctx, code.String(), body)
	if err != nil {
		var attrErr *tariff.AttributeError
		if errors.As(err, &attrErr) {
			return catalogdomain.Quote{}, domain.InvalidFieldError(attrErr.Field, "invalid", attrErr.Error())
		}
		if errors.Is(err, catalogdomain.ErrZeroAmount) || errors.Is(err, tariff.ErrRateNotFound) {
			return catalogdomain.Quote{}, domain.InvalidFieldError(domain.FieldCalculatedCost, "no_rate", err.Error())
		}
		return catalogdomain.Quote{}, err
	}

	if quote.Amount.Sub(cost).Abs().GreaterThan(costTolerance) {
		return catalogdomain.Quote{}, domain.InvalidFieldError(
			domain.FieldCalculatedCost,
			"amount_mismatch",
			fmt.Sprintf("calculated cost %s does not match tariff amount %s", cost.StringFixed(2), quote.Amount.StringFixed(2)),
		)
	}
	return quote, nil
}

func (s *Service) chargeGateway(ctx context.Context, st *settlement, body map[string]any) (paymentdomain.ChargeResult, error) {
	res, err := s.gateway.Charge(ctx, paymentdomain.ChargeRequest{
		Reference: st.trx,
		Amount:    st.quote.Total,
		Currency:  st.quote.Currency,
		Email:     st.user.Email,
		Phone:     firstNonEmpty(stringValue(body["phoneNumber"]), st.user.Phone),
		FirstName: st.user.FirstName,
		LastName:  st.user.LastName,
		Narrative: st.quote.Service.Name,
	})
	if err != nil {
		if paymentdomain.IsGatewayError(err) {
			return paymentdomain.ChargeResult{}, err
		}
		return paymentdomain.ChargeResult{}, &paymentdomain.GatewayError{
			Provider:  s.gateway.Provider(),
			Operation: "charge",
			Err:       err,
		}
	}
	if res.Status == paymentdomain.StatusFailed {
		return paymentdomain.ChargeResult{}, &paymentdomain.GatewayError{
			Provider:  s.gateway.Provider(),
			Operation: "charge",
			Message:   firstNonEmpty(res.Reason, "charge declined"),
		}
	}
	return res, nil
}

func (s *Service) persist(ctx context.Context, tx *gorm.DB, st *settlement, req domain.Request) error {
	now := s.clock.Now()
	cfg := s.billing.Get()
	paymentID := s.genID.Generate()
	details := serviceDetails(st.quote)

	var readingID *snowflake.ID
	if water, ok := st.quote.Request.(tariff.WaterRequest); ok {
		reading, err := s.accountSvc.RecordReading(ctx, tx, accountdomain.RecordReadingRequest{
			AccountID: st.account.ID,
			PaymentID: &paymentID,
			Reading:   water.Reading,
		})
		if err != nil {
			return persistenceError(st.trx, "meter reading", err)
		}
		readingID = &reading.ID
		details["consumption"] = reading.Consumption
		if reading.PreviousReading != nil {
			details["previous_reading"] = *reading.PreviousReading
		}
	}

	st.bill = billingdomain.Bill{
		ID:               s.genID.Generate(),
		BillNumber:       NewBillNumber(),
		ServiceAccountID: st.account.ID,
		MeterReadingID:   readingID,
		Amount:           st.quote.Amount,
		Currency:         st.quote.Currency,
		Status:           billingdomain.StatusPending,
		DueDate:          now.AddDate(0, 0, cfg.DueDays),
		Details:          details,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.billRepo.Insert(ctx, tx, &st.bill); err != nil {
		return persistenceError(st.trx, "bill", err)
	}

	payment, err := s.paymentSvc.Create(ctx, tx, paymentdomain.CreateRequest{
		ID:               paymentID,
		TransactionID:    st.trx,
		UserID:           st.user.ID,
		ServiceAccountID: st.account.ID,
		BillID:           st.bill.ID,
		ServiceCode:      st.quote.Service.Code,
		Amount:           st.quote.Amount,
		Fee:              st.quote.Fee,
		Total:            st.quote.Total,
		Currency:         st.quote.Currency,
		PaymentMethod:    stringValue(req.Body[domain.FieldPaymentMethod]),
		Provider:         s.gateway.Provider(),
		GatewayReference: st.charge.GatewayReference,
		Details: map[string]any{
			"service_name": st.quote.Service.Name,
			"attributes":   st.quote.Request.Attributes(),
			"origin": map[string]any{
				"ip":         req.Origin.IP,
				"user_agent": req.Origin.UserAgent,
				"request_id": req.Origin.RequestID,
			},
			"gateway": st.charge.Raw,
		},
	})
	if err != nil {
		return persistenceError(st.trx, "payment", err)
	}

	if st.charge.Status == paymentdomain.StatusCompleted || s.confirmOnCharge {
		if _, err := s.paymentSvc.Transition(ctx, tx, &payment, paymentdomain.Outcome{
			Status:           paymentdomain.StatusCompleted,
			GatewayReference: st.charge.GatewayReference,
			Source:           "settlement",
		}); err != nil {
			return persistenceError(st.trx, "payment status", err)
		}
		st.bill.Status = billingdomain.StatusPaid
		st.bill.PaidAt = payment.CompletedAt
	}
	st.payment = payment

	if err := s.accountSvc.TouchPayment(ctx, tx, st.account.ID, st.trx); err != nil {
		return persistenceError(st.trx, "service account", err)
	}
	return nil
}

// persistenceError keeps the innermost write that failed.
func persistenceError(trx, op string, err error) error {
	var perr *domain.PersistenceError
	if errors.As(err, &perr) {
		return err
	}
	return &domain.PersistenceError{TransactionID: trx, Op: op, Err: err}
}

func (s *Service) lock(ctx context.Context, userID, code string) (string, bool, error) {
	if s.locker == nil {
		return "", true, nil
	}
	token, ok, err := s.locker.TryLockSettlement(ctx, userID, code)
	if err != nil {
		// redis trouble must not block payments
		s.log.Warn("settlement lock unavailable", zap.Error(err))
		return "", true, nil
	}
	return token, ok, nil
}

func (s *Service) unlock(userID, code, token string) {
	if s.locker == nil || token == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.locker.ReleaseSettlement(ctx, userID, code, token); err != nil {
		s.log.Warn("release settlement lock failed", zap.Error(err))
	}
}

func (s *Service) audit(ctx context.Context, req domain.Request, st *settlement) {
	if s.auditSvc == nil {
		return
	}
	actorID := req.Payer.ExternalID
	targetID := st.trx
	err := s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeCitizen), &actorID, "payment.settle", "payment", &targetID, map[string]any{
		"service_code":       st.quote.Service.Code,
		"service_account_id": st.account.ID.String(),
		"bill_number":        st.bill.BillNumber,
		"total":              st.payment.Total.StringFixed(2),
		"status":             string(st.payment.Status),
		"ip":                 req.Origin.IP,
	})
	if err != nil {
		s.log.Warn("audit settlement failed", zap.Error(err))
	}
}

// NewTransactionID returns a collision-resistant, time-ordered transaction id.
func NewTransactionID() string {
	return "TRX-" + ulid.Make().String()
}

func NewBillNumber() string {
	return "BILL-" + ulid.Make().String()
}

func serviceDetails(quote catalogdomain.Quote) datatypes.JSONMap {
	details := datatypes.JSONMap{
		"service_code": quote.Service.Code,
		"service_name": quote.Service.Name,
	}
	for k, v := range quote.Request.Attributes() {
		details[k] = v
	}
	return details
}

func present(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(val) != ""
	default:
		return true
	}
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
