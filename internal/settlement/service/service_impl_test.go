package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	accountdomain "github.com/smallbiznis/revenue/internal/account/domain"
	accountrepo "github.com/smallbiznis/revenue/internal/account/repository"
	accountservice "github.com/smallbiznis/revenue/internal/account/service"
	billingdomain "github.com/smallbiznis/revenue/internal/billing/domain"
	billingrepo "github.com/smallbiznis/revenue/internal/billing/repository"
	catalogdomain "github.com/smallbiznis/revenue/internal/catalog/domain"
	catalogservice "github.com/smallbiznis/revenue/internal/catalog/service"
	"github.com/smallbiznis/revenue/internal/clock"
	"github.com/smallbiznis/revenue/internal/config"
	"github.com/smallbiznis/revenue/internal/identity"
	"github.com/smallbiznis/revenue/internal/notification"
	obsmetrics "github.com/smallbiznis/revenue/internal/observability/metrics"
	"github.com/smallbiznis/revenue/internal/payment/adapters/sandbox"
	paymentdomain "github.com/smallbiznis/revenue/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/revenue/internal/payment/repository"
	paymentservice "github.com/smallbiznis/revenue/internal/payment/service"
	"github.com/smallbiznis/revenue/internal/providers/email"
	"github.com/smallbiznis/revenue/internal/settlement/domain"
	settlementservice "github.com/smallbiznis/revenue/internal/settlement/service"
	"github.com/smallbiznis/revenue/internal/tariff"
	userdomain "github.com/smallbiznis/revenue/internal/user/domain"
	userrepo "github.com/smallbiznis/revenue/internal/user/repository"
	userservice "github.com/smallbiznis/revenue/internal/user/service"
	"github.com/smallbiznis/revenue/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

type failingGateway struct {
	paymentdomain.Gateway
	calls int
}

func (g *failingGateway) Provider() string { return "sandbox" }

func (g *failingGateway) Charge(ctx context.Context, req paymentdomain.ChargeRequest) (paymentdomain.ChargeResult, error) {
	g.calls++
	return paymentdomain.ChargeResult{}, errors.New("connection reset")
}

type countingReceipts struct {
	mu    sync.Mutex
	count int
}

func (r *countingReceipts) PaymentCompleted(ctx context.Context, payment paymentdomain.Payment) {
	r.mu.Lock()
	r.count++
	r.mu.Unlock()
}

type busyLocker struct{}

func (busyLocker) TryLockSettlement(ctx context.Context, userID, serviceCode string) (string, bool, error) {
	return "", false, nil
}

func (busyLocker) ReleaseSettlement(ctx context.Context, userID, serviceCode, token string) error {
	return nil
}

type fixture struct {
	db       *gorm.DB
	svc      domain.Service
	receipts *countingReceipts
	params   settlementservice.Params
}

func setup(t *testing.T, gateway paymentdomain.Gateway) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:settlement_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&userdomain.User{},
		&catalogdomain.ServiceDefinition{},
		&accountdomain.ServiceAccount{},
		&accountdomain.MeterReading{},
		&billingdomain.Bill{},
		&paymentdomain.Payment{},
		&paymentdomain.EventRecord{},
	))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	billing := config.NewStaticBillingConfigHolder(config.DefaultBillingConfig())

	catalogSvc := catalogservice.NewService(catalogservice.Params{
		Log:     log,
		GenID:   node,
		Clock:   clk,
		Store:   repository.ProvideStore[catalogdomain.ServiceDefinition](db),
		Billing: billing,
	})
	_, err = catalogSvc.Seed(context.Background(), billing.Get().Services)
	require.NoError(t, err)

	receipts := &countingReceipts{}
	billRepo := billingrepo.Provide()
	if gateway == nil {
		gateway, err = sandbox.NewFactory().NewAdapter(paymentdomain.AdapterConfig{Provider: "sandbox"})
		require.NoError(t, err)
	}

	p := settlementservice.Params{
		DB:      db,
		Log:     log,
		GenID:   node,
		Clock:   clk,
		Billing: billing,
		UserSvc: userservice.NewService(userservice.Params{
			DB: db, Log: log, GenID: node, Clock: clk, Repo: userrepo.Provide(),
		}),
		CatalogSvc: catalogSvc,
		AccountSvc: accountservice.NewService(accountservice.Params{
			DB: db, Log: log, GenID: node, Clock: clk, Repo: accountrepo.Provide(),
		}),
		PaymentSvc: paymentservice.NewService(paymentservice.Params{
			DB:       db,
			Log:      log,
			GenID:    node,
			Clock:    clk,
			Repo:     paymentrepo.Provide(),
			BillRepo: billRepo,
			Receipts: receipts,
		}),
		Gateway:  gateway,
		BillRepo: billRepo,
	}
	return &fixture{db: db, svc: settlementservice.NewService(p), receipts: receipts, params: p}
}

func payer() identity.Principal {
	return identity.Principal{
		ExternalID: "kc-citizen-1",
		FirstName:  "Amina",
		LastName:   "Otieno",
		Email:      "amina@example.com",
		Phone:      "+254700000001",
	}
}

func waterBody(reading any, cost any) map[string]any {
	return map[string]any{
		"serviceCode":    "WTR",
		"serviceName":    "Water Billing",
		"calculatedCost": cost,
		"usageType":      "domestic",
		"reading":        reading,
	}
}

func count(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestSettleWaterPayment(t *testing.T) {
	f := setup(t, nil)

	res, err := f.svc.Settle(context.Background(), domain.Request{
		Payer:  payer(),
		Body:   waterBody(float64(25), float64(220)),
		Origin: domain.Origin{IP: "10.0.0.1", UserAgent: "test"},
	})
	require.NoError(t, err)

	assert.Regexp(t, `^TRX-[0-9A-Z]{26}$`, res.TransactionID)
	assert.Regexp(t, `^BILL-[0-9A-Z]{26}$`, res.BillNumber)
	assert.Equal(t, "220.00", res.Amount.StringFixed(2))
	assert.Equal(t, "50.00", res.Fee.StringFixed(2))
	assert.Equal(t, "270.00", res.Total.StringFixed(2))
	assert.Equal(t, "KES", res.Currency)
	assert.Equal(t, string(paymentdomain.StatusCompleted), res.Status)
	assert.NotEmpty(t, res.AccountNumber)

	var payment paymentdomain.Payment
	require.NoError(t, f.db.Where("transaction_id = ?", res.TransactionID).First(&payment).Error)
	assert.Equal(t, paymentdomain.StatusCompleted, payment.Status)
	assert.Equal(t, "270", payment.Total.String())

	var bill billingdomain.Bill
	require.NoError(t, f.db.Where("bill_number = ?", res.BillNumber).First(&bill).Error)
	assert.Equal(t, billingdomain.StatusPaid, bill.Status)
	assert.Equal(t, "220", bill.Amount.String())
	assert.Equal(t, payment.BillID, bill.ID)
	require.NotNil(t, bill.MeterReadingID)

	var reading accountdomain.MeterReading
	require.NoError(t, f.db.First(&reading, "id = ?", *bill.MeterReadingID).Error)
	assert.Equal(t, int64(25), reading.CurrentReading)
	assert.Equal(t, int64(25), reading.Consumption)
	require.NotNil(t, reading.PaymentID)
	assert.Equal(t, payment.ID, *reading.PaymentID)

	assert.Equal(t, 1, f.receipts.count)
}

func TestSettleReusesAccountAcrossPayments(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	first, err := f.svc.Settle(ctx, domain.Request{Payer: payer(), Body: waterBody(float64(25), float64(220))})
	require.NoError(t, err)
	second, err := f.svc.Settle(ctx, domain.Request{Payer: payer(), Body: waterBody(float64(35), float64(290))})
	require.NoError(t, err)

	assert.Equal(t, first.ServiceAccountID, second.ServiceAccountID)
	assert.NotEqual(t, first.TransactionID, second.TransactionID)
	assert.Equal(t, int64(1), count(t, f.db, &userdomain.User{}))
	assert.Equal(t, int64(1), count(t, f.db, &accountdomain.ServiceAccount{}))
	assert.Equal(t, int64(2), count(t, f.db, &paymentdomain.Payment{}))

	var latest accountdomain.MeterReading
	require.NoError(t, f.db.Order("id DESC").First(&latest).Error)
	require.NotNil(t, latest.PreviousReading)
	assert.Equal(t, int64(25), *latest.PreviousReading)
	assert.Equal(t, int64(10), latest.Consumption)
}

func TestSettleMissingTopLevelFields(t *testing.T) {
	f := setup(t, nil)

	_, err := f.svc.Settle(context.Background(), domain.Request{
		Payer: payer(),
		Body:  map[string]any{"serviceName": "Water Billing", "usageType": "domestic", "reading": float64(25)},
	})
	require.Error(t, err)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, domain.MsgMissingPaymentInfo, verr.Message)
	assert.Equal(t, []string{"serviceCode", "calculatedCost"}, verr.MissingFields())

	assert.Equal(t, int64(0), count(t, f.db, &accountdomain.ServiceAccount{}))
	assert.Equal(t, int64(0), count(t, f.db, &paymentdomain.Payment{}))
}

func TestSettleMissingServiceFields(t *testing.T) {
	f := setup(t, nil)

	_, err := f.svc.Settle(context.Background(), domain.Request{
		Payer: payer(),
		Body: map[string]any{
			"serviceCode":    "PRK",
			"serviceName":    "Parking Fees",
			"calculatedCost": float64(50),
			"vehicleType":    "car",
		},
	})

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, domain.MsgMissingServiceFields, verr.Message)
	assert.Equal(t, []string{"duration", "plateNumber", "zone"}, verr.MissingFields())
	assert.Equal(t, int64(0), count(t, f.db, &accountdomain.ServiceAccount{}))
}

func TestSettleUnknownServiceCode(t *testing.T) {
	f := setup(t, nil)

	_, err := f.svc.Settle(context.Background(), domain.Request{
		Payer: payer(),
		Body:  map[string]any{"serviceCode": "XYZ", "serviceName": "Nope", "calculatedCost": float64(1)},
	})
	assert.ErrorIs(t, err, tariff.ErrUnknownServiceCode)
}

func TestSettleRejectsCostMismatch(t *testing.T) {
	f := setup(t, nil)

	_, err := f.svc.Settle(context.Background(), domain.Request{
		Payer: payer(),
		Body:  waterBody(float64(25), float64(100)),
	})

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "calculatedCost", verr.Fields[0].Field)
	assert.Equal(t, "amount_mismatch", verr.Fields[0].Code)
	assert.Equal(t, int64(0), count(t, f.db, &paymentdomain.Payment{}))
}

func TestSettleGatewayFailureKeepsAccountOnly(t *testing.T) {
	gw := &failingGateway{}
	f := setup(t, gw)

	_, err := f.svc.Settle(context.Background(), domain.Request{Payer: payer(), Body: waterBody(float64(25), float64(220))})
	require.Error(t, err)
	assert.True(t, paymentdomain.IsGatewayError(err))
	assert.Equal(t, 1, gw.calls)

	assert.Equal(t, int64(1), count(t, f.db, &accountdomain.ServiceAccount{}))
	assert.Equal(t, int64(0), count(t, f.db, &accountdomain.MeterReading{}))
	assert.Equal(t, int64(0), count(t, f.db, &billingdomain.Bill{}))
	assert.Equal(t, int64(0), count(t, f.db, &paymentdomain.Payment{}))
	assert.Equal(t, 0, f.receipts.count)
}

func TestSettleRejectsConcurrentAttempt(t *testing.T) {
	f := setup(t, nil)
	p := f.params
	p.Locker = busyLocker{}
	svc := settlementservice.NewService(p)

	_, err := svc.Settle(context.Background(), domain.Request{Payer: payer(), Body: waterBody(float64(25), float64(220))})
	assert.ErrorIs(t, err, domain.ErrSettlementInFlight)
	assert.Equal(t, int64(0), count(t, f.db, &accountdomain.ServiceAccount{}))
}

func TestSettleRequiresPayer(t *testing.T) {
	f := setup(t, nil)

	_, err := f.svc.Settle(context.Background(), domain.Request{Body: waterBody(float64(25), float64(220))})
	assert.ErrorIs(t, err, identity.ErrMissingToken)
}

func TestSettlePersistenceFailureNamesTheWrite(t *testing.T) {
	f := setup(t, nil)
	require.NoError(t, f.db.Migrator().DropTable(&billingdomain.Bill{}))

	_, err := f.svc.Settle(context.Background(), domain.Request{Payer: payer(), Body: waterBody(float64(25), float64(220))})

	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "bill", perr.Op)
	assert.Regexp(t, `^TRX-[0-9A-Z]{26}$`, perr.TransactionID)
	assert.Equal(t, "payment "+perr.TransactionID+" was charged but the bill could not be saved", perr.Message())
	assert.Equal(t, int64(0), count(t, f.db, &accountdomain.MeterReading{}))
	assert.Equal(t, int64(0), count(t, f.db, &paymentdomain.Payment{}))
	assert.Equal(t, 0, f.receipts.count)
}

type brokenMailer struct {
	mu    sync.Mutex
	calls int
}

func (m *brokenMailer) Name() string { return "broken" }

func (m *brokenMailer) Send(ctx context.Context, msg email.Message) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return errors.New("smtp: 421 service not available")
}

func receiptCount(t *testing.T, reader *sdkmetric.ManualReader, outcome string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "revenue_receipts_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value("outcome"); ok && v.AsString() == outcome {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestSettleSucceedsWhenReceiptDeliveryFails(t *testing.T) {
	f := setup(t, nil)
	p := f.params

	reader := sdkmetric.NewManualReader()
	obs, err := obsmetrics.New(obsmetrics.Config{ServiceName: "revenue"}, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)
	core, logs := observer.New(zapcore.WarnLevel)

	mailer := &brokenMailer{}
	dispatcher := notification.NewDispatcher(notification.Params{
		Cfg:   config.Config{Receipt: config.ReceiptConfig{Workers: 1, QueueSize: 4}},
		Log:   zap.New(core),
		Email: mailer,
		Composer: notification.NewComposer(notification.ComposerParams{
			DB:         p.DB,
			UserSvc:    p.UserSvc,
			CatalogSvc: p.CatalogSvc,
			AccountSvc: p.AccountSvc,
			BillRepo:   p.BillRepo,
		}),
		ObsMetrics: obs,
	})
	dispatcher.Start()

	p.PaymentSvc = paymentservice.NewService(paymentservice.Params{
		DB:       p.DB,
		Log:      zap.NewNop(),
		GenID:    p.GenID,
		Clock:    p.Clock,
		Repo:     paymentrepo.Provide(),
		BillRepo: p.BillRepo,
		Receipts: dispatcher,
	})
	svc := settlementservice.NewService(p)

	res, err := svc.Settle(context.Background(), domain.Request{Payer: payer(), Body: waterBody(float64(25), float64(220))})
	require.NoError(t, err)
	assert.Equal(t, string(paymentdomain.StatusCompleted), res.Status)

	require.NoError(t, dispatcher.Stop(context.Background()))

	assert.Equal(t, 1, mailer.calls)
	failures := logs.FilterMessage("receipt delivery failed").All()
	require.Len(t, failures, 1)
	assert.Equal(t, res.TransactionID, failures[0].ContextMap()["transaction_id"])
	assert.Equal(t, int64(1), receiptCount(t, reader, "failed"))
	assert.Equal(t, int64(0), receiptCount(t, reader, "sent"))

	var payment paymentdomain.Payment
	require.NoError(t, f.db.Where("transaction_id = ?", res.TransactionID).First(&payment).Error)
	assert.Equal(t, paymentdomain.StatusCompleted, payment.Status)
	var bill billingdomain.Bill
	require.NoError(t, f.db.First(&bill, "id = ?", payment.BillID).Error)
	assert.Equal(t, billingdomain.StatusPaid, bill.Status)
}
