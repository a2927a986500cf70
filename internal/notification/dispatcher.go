package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smallbiznis/revenue/internal/config"
	"github.com/smallbiznis/revenue/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/revenue/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/revenue/internal/payment/domain"
	"github.com/smallbiznis/revenue/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const deliveryTimeout = 30 * time.Second

var ErrQueueFull = errors.New("receipt_queue_full")

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	Email      email.Provider
	Composer   *Composer
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Dispatcher delivers receipts from a bounded queue on a fixed worker pool.
type Dispatcher struct {
	log        *zap.Logger
	email      email.Provider
	composer   *Composer
	obsMetrics *obsmetrics.Metrics

	workers  int
	queue    chan paymentdomain.Payment
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopped  bool
	stopOnce sync.Once
}

func NewDispatcher(p Params) *Dispatcher {
	workers := p.Cfg.Receipt.Workers
	if workers <= 0 {
		workers = 1
	}
	size := p.Cfg.Receipt.QueueSize
	if size <= 0 {
		size = 64
	}
	return &Dispatcher{
		log:        p.Log.Named("notification.dispatcher"),
		email:      p.Email,
		composer:   p.Composer,
		obsMetrics: p.ObsMetrics,
		workers:    workers,
		queue:      make(chan paymentdomain.Payment, size),
	}
}

func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.log.Info("receipt dispatcher started",
		zap.Int("workers", d.workers),
		zap.Int("queue_capacity", cap(d.queue)),
		zap.String("provider", d.email.Name()),
	)
}

// Stop closes the queue and waits for queued receipts to drain or ctx to end.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		close(d.queue)
		d.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PaymentCompleted queues a receipt without blocking the caller.
func (d *Dispatcher) PaymentCompleted(ctx context.Context, payment paymentdomain.Payment) {
	if err := d.Enqueue(payment); err != nil {
		d.log.Warn("receipt dropped",
			zap.String("transaction_id", payment.TransactionID),
			zap.Error(err),
		)
		d.obsMetrics.RecordReceipt(ctx, "dropped")
	}
}

func (d *Dispatcher) Enqueue(payment paymentdomain.Payment) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrQueueFull
	}
	select {
	case d.queue <- payment:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for payment := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		err := d.Deliver(ctx, payment)
		cancel()
		if err != nil {
			d.log.Error("receipt delivery failed",
				zap.Int("worker", id),
				zap.String("transaction_id", payment.TransactionID),
				zap.Error(err),
			)
			d.obsMetrics.RecordReceipt(context.Background(), "failed")
			continue
		}
		d.obsMetrics.RecordReceipt(context.Background(), "sent")
	}
}

// Deliver composes and sends the receipt email for one payment.
func (d *Dispatcher) Deliver(ctx context.Context, payment paymentdomain.Payment) error {
	receipt, err := d.composer.Compose(ctx, payment)
	if err != nil {
		return err
	}
	if receipt.Email == "" {
		d.log.Info("payer has no email, receipt skipped", zap.String("transaction_id", payment.TransactionID))
		return nil
	}

	html, err := email.Render("receipt", receipt.templateData())
	if err != nil {
		return err
	}
	if err := d.email.Send(ctx, email.Message{
		To:      []string{receipt.Email},
		Subject: receiptSubject,
		HTML:    html,
	}); err != nil {
		return err
	}
	d.log.Info("receipt sent",
		zap.String("transaction_id", payment.TransactionID),
		logger.Email("to", receipt.Email),
	)
	return nil
}
