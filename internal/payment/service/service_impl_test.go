package service_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/revenue/internal/billing/domain"
	billingrepo "github.com/smallbiznis/revenue/internal/billing/repository"
	"github.com/smallbiznis/revenue/internal/clock"
	"github.com/smallbiznis/revenue/internal/events"
	"github.com/smallbiznis/revenue/internal/payment/adapters"
	"github.com/smallbiznis/revenue/internal/payment/adapters/sandbox"
	paymentdomain "github.com/smallbiznis/revenue/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/revenue/internal/payment/repository"
	paymentservice "github.com/smallbiznis/revenue/internal/payment/service"
	paymentwebhook "github.com/smallbiznis/revenue/internal/payment/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

type captureReceipts struct {
	mu       sync.Mutex
	payments []paymentdomain.Payment
}

func (r *captureReceipts) PaymentCompleted(ctx context.Context, payment paymentdomain.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments = append(r.payments, payment)
}

type fixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	clock     *clock.FakeClock
	svc       paymentdomain.Service
	publisher *capturePublisher
	receipts  *captureReceipts
}

func setup(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:payment_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&paymentdomain.Payment{}, &paymentdomain.EventRecord{}, &billingdomain.Bill{}))

	node, err := snowflake.NewNode(7)
	require.NoError(t, err)

	f := &fixture{
		db:        db,
		node:      node,
		clock:     clock.NewFakeClock(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)),
		publisher: &capturePublisher{},
		receipts:  &captureReceipts{},
	}
	f.svc = paymentservice.NewService(paymentservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     f.clock,
		Repo:      paymentrepo.Provide(),
		BillRepo:  billingrepo.Provide(),
		Publisher: f.publisher,
		Receipts:  f.receipts,
	})
	return f
}

func (f *fixture) pendingPayment(t *testing.T, trx, gatewayRef string) paymentdomain.Payment {
	t.Helper()
	now := f.clock.Now()
	bill := billingdomain.Bill{
		ID:               f.node.Generate(),
		BillNumber:       "BILL-" + trx,
		ServiceAccountID: f.node.Generate(),
		Amount:           decimal.NewFromInt(220),
		Currency:         "KES",
		Status:           billingdomain.StatusPending,
		DueDate:          now.AddDate(0, 0, 30),
		Details:          datatypes.JSONMap{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, f.db.Create(&bill).Error)

	payment, err := f.svc.Create(context.Background(), nil, paymentdomain.CreateRequest{
		TransactionID:    trx,
		UserID:           f.node.Generate(),
		ServiceAccountID: bill.ServiceAccountID,
		BillID:           bill.ID,
		ServiceCode:      "wtr",
		Amount:           decimal.NewFromInt(220),
		Fee:              decimal.NewFromInt(50),
		Total:            decimal.NewFromInt(270),
		Currency:         "kes",
		Provider:         "sandbox",
		GatewayReference: gatewayRef,
	})
	require.NoError(t, err)
	return payment
}

func TestCreateRejectsInconsistentTotals(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Create(context.Background(), nil, paymentdomain.CreateRequest{
		TransactionID:    "TRX-BAD",
		UserID:           1,
		ServiceAccountID: 2,
		BillID:           3,
		Amount:           decimal.NewFromInt(220),
		Fee:              decimal.NewFromInt(50),
		Total:            decimal.NewFromInt(260),
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)
}

func TestApplyOutcomeCompletesOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	created := f.pendingPayment(t, "TRX-1", "SBX-1")
	assert.Equal(t, paymentdomain.StatusPending, created.Status)
	assert.Equal(t, "WTR", created.ServiceCode)
	assert.Equal(t, "KES", created.Currency)

	payment, changed, err := f.svc.ApplyOutcome(ctx, "TRX-1", paymentdomain.Outcome{Status: paymentdomain.StatusCompleted, Source: "test"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, paymentdomain.StatusCompleted, payment.Status)
	require.NotNil(t, payment.CompletedAt)

	var bill billingdomain.Bill
	require.NoError(t, f.db.First(&bill, "id = ?", created.BillID).Error)
	assert.Equal(t, billingdomain.StatusPaid, bill.Status)
	assert.NotNil(t, bill.PaidAt)

	_, changed, err = f.svc.ApplyOutcome(ctx, "TRX-1", paymentdomain.Outcome{Status: paymentdomain.StatusFailed, Source: "test"})
	require.NoError(t, err)
	assert.False(t, changed)

	stored, err := f.svc.GetByTransactionID(ctx, "TRX-1")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusCompleted, stored.Status)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, events.TypePaymentSettled, f.publisher.events[0].Type)
	assert.Equal(t, "270.00", f.publisher.events[0].Total)
	require.Len(t, f.receipts.payments, 1)
}

func TestApplyOutcomeFailureLeavesBillPending(t *testing.T) {
	f := setup(t)
	created := f.pendingPayment(t, "TRX-2", "SBX-2")

	payment, changed, err := f.svc.ApplyOutcome(context.Background(), "TRX-2", paymentdomain.Outcome{
		Status: paymentdomain.StatusFailed,
		Reason: "insufficient funds",
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "insufficient funds", payment.FailureReason)

	var bill billingdomain.Bill
	require.NoError(t, f.db.First(&bill, "id = ?", created.BillID).Error)
	assert.Equal(t, billingdomain.StatusPending, bill.Status)
	assert.Empty(t, f.receipts.payments)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, events.TypePaymentFailed, f.publisher.events[0].Type)
}

func TestApplyOutcomeUnknownTransaction(t *testing.T) {
	f := setup(t)
	_, _, err := f.svc.ApplyOutcome(context.Background(), "TRX-missing", paymentdomain.Outcome{Status: paymentdomain.StatusCompleted})
	assert.ErrorIs(t, err, paymentdomain.ErrNotFound)

	_, _, err = f.svc.ApplyOutcome(context.Background(), "TRX-missing", paymentdomain.Outcome{Status: paymentdomain.StatusPending})
	assert.Error(t, err)
}

func TestWebhookAppliesEventOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.pendingPayment(t, "TRX-3", "SBX-3")

	gw, err := adapters.NewRegistry(sandbox.NewFactory()).NewAdapter(paymentdomain.AdapterConfig{
		Provider:      "sandbox",
		WebhookSecret: "whsec",
	})
	require.NoError(t, err)
	hook := paymentwebhook.NewService(paymentwebhook.Params{Log: zap.NewNop(), Gateway: gw, PaymentSvc: f.svc})

	payload := []byte(`{"id":"evt_1","type":"payment.succeeded","reference":"TRX-3","gateway_reference":"SBX-3"}`)
	headers := http.Header{}
	headers.Set("X-Sandbox-Signature", adapters.Sign("whsec", payload))

	require.NoError(t, hook.IngestWebhook(ctx, "Sandbox", payload, headers))
	require.NoError(t, hook.IngestWebhook(ctx, "sandbox", payload, headers))

	stored, err := f.svc.GetByTransactionID(ctx, "TRX-3")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusCompleted, stored.Status)

	var eventCount int64
	require.NoError(t, f.db.Model(&paymentdomain.EventRecord{}).Count(&eventCount).Error)
	assert.Equal(t, int64(1), eventCount)
	assert.Len(t, f.publisher.events, 1)

	assert.ErrorIs(t, hook.IngestWebhook(ctx, "intasend", payload, headers), paymentdomain.ErrProviderNotFound)
	assert.ErrorIs(t, hook.IngestWebhook(ctx, "sandbox", payload, http.Header{}), paymentdomain.ErrInvalidSignature)
}

func TestListPendingHonoursGraceAndReference(t *testing.T) {
	f := setup(t)
	f.pendingPayment(t, "TRX-old", "SBX-old")
	f.pendingPayment(t, "TRX-noref", "")
	f.clock.Advance(10 * time.Minute)
	f.pendingPayment(t, "TRX-new", "SBX-new")

	items, err := f.svc.ListPending(context.Background(), f.clock.Now().Add(-5*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "TRX-old", items[0].TransactionID)
}
