package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/revenue/internal/audit/domain"
	billingdomain "github.com/smallbiznis/revenue/internal/billing/domain"
	"github.com/smallbiznis/revenue/internal/clock"
	"github.com/smallbiznis/revenue/internal/events"
	obsmetrics "github.com/smallbiznis/revenue/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/revenue/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       paymentdomain.Repository
	BillRepo   billingdomain.Repository
	Publisher  events.Publisher              `optional:"true"`
	AuditSvc   auditdomain.Service           `optional:"true"`
	ObsMetrics *obsmetrics.Metrics           `optional:"true"`
	Receipts   paymentdomain.ReceiptNotifier `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       paymentdomain.Repository
	billRepo   billingdomain.Repository
	publisher  events.Publisher
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
	receipts   paymentdomain.ReceiptNotifier
}

func NewService(p Params) paymentdomain.Service {
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		billRepo:   p.BillRepo,
		publisher:  publisher,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
		receipts:   p.Receipts,
	}
}

func (s *Service) Create(ctx context.Context, db *gorm.DB, req paymentdomain.CreateRequest) (paymentdomain.Payment, error) {
	if db == nil {
		db = s.db
	}
	req.TransactionID = strings.TrimSpace(req.TransactionID)
	if req.TransactionID == "" {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidTransaction
	}
	if !req.Amount.IsPositive() || req.Fee.IsNegative() || !req.Total.Equal(req.Amount.Add(req.Fee)) {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidAmount
	}
	if req.UserID == 0 || req.ServiceAccountID == 0 || req.BillID == 0 {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidTransaction
	}

	details := datatypes.JSONMap{}
	for k, v := range req.Details {
		details[k] = v
	}

	id := req.ID
	if id == 0 {
		id = s.genID.Generate()
	}
	now := s.clock.Now()
	payment := paymentdomain.Payment{
		ID:               id,
		TransactionID:    req.TransactionID,
		UserID:           req.UserID,
		ServiceAccountID: req.ServiceAccountID,
		BillID:           req.BillID,
		ServiceCode:      strings.ToUpper(strings.TrimSpace(req.ServiceCode)),
		Amount:           req.Amount,
		Fee:              req.Fee,
		Total:            req.Total,
		Currency:         strings.ToUpper(strings.TrimSpace(req.Currency)),
		Status:           paymentdomain.StatusPending,
		PaymentMethod:    strings.TrimSpace(req.PaymentMethod),
		Provider:         strings.ToLower(strings.TrimSpace(req.Provider)),
		GatewayReference: strings.TrimSpace(req.GatewayReference),
		Details:          details,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if payment.PaymentMethod == "" {
		payment.PaymentMethod = "mobile_money"
	}

	if err := s.repo.Insert(ctx, db, &payment); err != nil {
		return paymentdomain.Payment{}, err
	}
	return payment, nil
}

func (s *Service) Transition(ctx context.Context, db *gorm.DB, payment *paymentdomain.Payment, outcome paymentdomain.Outcome) (bool, error) {
	if db == nil {
		db = s.db
	}
	if payment == nil || payment.ID == 0 {
		return false, paymentdomain.ErrNotFound
	}
	if !outcome.Status.Terminal() {
		return false, paymentdomain.ErrInvalidStatus
	}

	now := s.clock.Now()
	updates := map[string]any{
		"status":     outcome.Status,
		"updated_at": now,
	}
	if ref := strings.TrimSpace(outcome.GatewayReference); ref != "" {
		updates["gateway_reference"] = ref
	}
	switch outcome.Status {
	case paymentdomain.StatusCompleted:
		updates["completed_at"] = now
	case paymentdomain.StatusFailed:
		updates["failed_at"] = now
		updates["failure_reason"] = strings.TrimSpace(outcome.Reason)
	}

	changed, err := s.repo.UpdateIfPending(ctx, db, payment.ID, updates)
	if err != nil || !changed {
		return false, err
	}

	if outcome.Status == paymentdomain.StatusCompleted {
		if _, err := s.billRepo.MarkPaid(ctx, db, payment.BillID, now); err != nil {
			return false, err
		}
	}

	payment.Status = outcome.Status
	payment.UpdatedAt = now
	if ref := strings.TrimSpace(outcome.GatewayReference); ref != "" {
		payment.GatewayReference = ref
	}
	if outcome.Status == paymentdomain.StatusCompleted {
		payment.CompletedAt = &now
	} else {
		payment.FailedAt = &now
		payment.FailureReason = strings.TrimSpace(outcome.Reason)
	}
	return true, nil
}

func (s *Service) Finalize(ctx context.Context, payment paymentdomain.Payment) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordSettlement(ctx, payment.ServiceCode, string(payment.Status))
	}

	if err := s.publisher.Publish(ctx, toEvent(payment)); err != nil {
		s.log.Warn("publish payment event failed",
			zap.String("transaction_id", payment.TransactionID),
			zap.Error(err),
		)
	}

	if payment.Status == paymentdomain.StatusCompleted && s.receipts != nil {
		s.receipts.PaymentCompleted(ctx, payment)
	}
}

func (s *Service) ApplyOutcome(ctx context.Context, transactionID string, outcome paymentdomain.Outcome) (paymentdomain.Payment, bool, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return paymentdomain.Payment{}, false, paymentdomain.ErrInvalidTransaction
	}

	var (
		payment paymentdomain.Payment
		changed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByTransactionID(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if found == nil {
			return paymentdomain.ErrNotFound
		}
		payment = *found
		changed, err = s.Transition(ctx, tx, &payment, outcome)
		return err
	})
	if err != nil {
		return paymentdomain.Payment{}, false, err
	}
	if !changed {
		return payment, false, nil
	}

	s.log.Info("payment transitioned",
		zap.String("transaction_id", payment.TransactionID),
		zap.String("status", string(payment.Status)),
		zap.String("source", outcome.Source),
	)
	s.Finalize(ctx, payment)
	s.audit(ctx, payment, outcome)
	return payment, true, nil
}

func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	payload := event.RawPayload
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	now := s.clock.Now()
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Reference:       event.Reference,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			return paymentdomain.ErrEventAlreadyProcessed
		}
	}

	outcome := paymentdomain.Outcome{
		GatewayReference: event.GatewayReference,
		Reason:           event.Reason,
		Source:           "webhook",
	}
	switch event.Type {
	case paymentdomain.EventTypePaymentSucceeded:
		outcome.Status = paymentdomain.StatusCompleted
	case paymentdomain.EventTypePaymentFailed:
		outcome.Status = paymentdomain.StatusFailed
	}

	_, _, err = s.ApplyOutcome(ctx, event.Reference, outcome)
	switch {
	case errors.Is(err, paymentdomain.ErrNotFound):
		s.log.Warn("payment event for unknown transaction",
			zap.String("provider", event.Provider),
			zap.String("reference", event.Reference),
		)
	case err != nil:
		return err
	}

	if err := s.repo.MarkEventProcessed(ctx, s.db, stored.ID, s.clock.Now()); err != nil {
		return err
	}
	if inserted && s.obsMetrics != nil {
		s.obsMetrics.RecordPaymentEvent(ctx, event.Provider, event.Type)
	}
	return nil
}

func (s *Service) ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]paymentdomain.Payment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListPending(ctx, s.db, createdBefore, limit)
}

func (s *Service) GetByTransactionID(ctx context.Context, transactionID string) (paymentdomain.Payment, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidTransaction
	}
	payment, err := s.repo.FindByTransactionID(ctx, s.db, transactionID)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if payment == nil {
		return paymentdomain.Payment{}, paymentdomain.ErrNotFound
	}
	return *payment, nil
}

func validateEvent(event *paymentdomain.PaymentEvent) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	event.Reference = strings.TrimSpace(event.Reference)
	if event.ProviderEventID == "" || event.Reference == "" {
		return paymentdomain.ErrInvalidEvent
	}
	switch event.Type {
	case paymentdomain.EventTypePaymentSucceeded, paymentdomain.EventTypePaymentFailed:
	default:
		return paymentdomain.ErrInvalidEvent
	}
	return nil
}

func (s *Service) audit(ctx context.Context, payment paymentdomain.Payment, outcome paymentdomain.Outcome) {
	if s.auditSvc == nil {
		return
	}
	actorType := string(auditdomain.ActorTypeSystem)
	if outcome.Source == "webhook" {
		actorType = string(auditdomain.ActorTypeGateway)
	}
	action := "payment.completed"
	if payment.Status == paymentdomain.StatusFailed {
		action = "payment.failed"
	}
	targetID := payment.TransactionID
	metadata := map[string]any{
		"source":       outcome.Source,
		"service_code": payment.ServiceCode,
		"total":        payment.Total.StringFixed(2),
	}
	if payment.FailureReason != "" {
		metadata["reason"] = payment.FailureReason
	}
	if err := s.auditSvc.AuditLog(ctx, actorType, nil, action, "payment", &targetID, metadata); err != nil {
		s.log.Warn("audit payment transition failed", zap.Error(err))
	}
}

func toEvent(payment paymentdomain.Payment) events.Event {
	eventType := events.TypePaymentPending
	occurredAt := payment.UpdatedAt
	switch payment.Status {
	case paymentdomain.StatusCompleted:
		eventType = events.TypePaymentSettled
		if payment.CompletedAt != nil {
			occurredAt = *payment.CompletedAt
		}
	case paymentdomain.StatusFailed:
		eventType = events.TypePaymentFailed
		if payment.FailedAt != nil {
			occurredAt = *payment.FailedAt
		}
	}
	return events.Event{
		Type:             eventType,
		OccurredAt:       occurredAt,
		TransactionID:    payment.TransactionID,
		BillID:           payment.BillID.String(),
		ServiceAccountID: payment.ServiceAccountID.String(),
		ServiceCode:      payment.ServiceCode,
		Amount:           payment.Amount.StringFixed(2),
		Fee:              payment.Fee.StringFixed(2),
		Total:            payment.Total.StringFixed(2),
		Currency:         payment.Currency,
		Status:           string(payment.Status),
		Reason:           payment.FailureReason,
	}
}
