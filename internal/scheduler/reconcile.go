package scheduler

import (
	"context"
	"errors"

	obsmetrics "github.com/smallbiznis/revenue/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/revenue/internal/payment/domain"
	"github.com/smallbiznis/revenue/internal/resilience"
	"go.uber.org/zap"
)

const reasonExpired = "payment expired awaiting gateway confirmation"

// ReconcilePendingPaymentsJob polls the gateway for payments whose webhook
// never arrived. One batch per run, oldest first.
func (s *Scheduler) ReconcilePendingPaymentsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobReconcilePendingPayments, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	now := s.clock.Now()
	payments, err := s.paymentSvc.ListPending(ctx, now.Add(-s.cfg.PendingGrace), s.cfg.BatchSize)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.reconcile.list_failed", JobReconcilePendingPayments, err)
		return err
	}

	provider := s.gateway.Provider()
	schedMetrics := obsmetrics.Scheduler()
	var jobErr error

	for _, payment := range payments {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		if payment.Provider != "" && payment.Provider != provider {
			continue
		}

		outcome, err := s.reconcileOne(ctx, payment)
		schedMetrics.IncReconcileOutcome(provider, outcome)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logSchedulerError(ctx, run, "scheduler.reconcile.payment_failed", JobReconcilePendingPayments, err,
				zap.String("transaction_id", payment.TransactionID),
				zap.String("gateway_reference", payment.GatewayReference),
			)
			if errors.Is(err, paymentdomain.ErrGatewayUnavailable) || resilience.IsOpen(err) {
				// stop hammering an unavailable gateway
				break
			}
			continue
		}
		run.AddProcessed(1)
	}

	schedMetrics.AddBatchProcessed(JobReconcilePendingPayments, "payments", run.processedCount)
	return jobErr
}

func (s *Scheduler) reconcileOne(ctx context.Context, payment paymentdomain.Payment) (string, error) {
	status, err := s.gateway.Status(ctx, payment.GatewayReference)
	if err != nil {
		return obsmetrics.ReconcileOutcomeError, err
	}

	outcome := paymentdomain.Outcome{
		GatewayReference: payment.GatewayReference,
		Reason:           status.Reason,
		Source:           "reconcile",
	}
	label := obsmetrics.ReconcileOutcomePending

	switch status.Status {
	case paymentdomain.StatusCompleted:
		outcome.Status = paymentdomain.StatusCompleted
		label = obsmetrics.ReconcileOutcomeCompleted
	case paymentdomain.StatusFailed:
		outcome.Status = paymentdomain.StatusFailed
		label = obsmetrics.ReconcileOutcomeFailed
	default:
		if s.clock.Now().Sub(payment.CreatedAt) < s.cfg.PendingExpiry {
			return label, nil
		}
		outcome.Status = paymentdomain.StatusFailed
		outcome.Reason = reasonExpired
		label = obsmetrics.ReconcileOutcomeFailed
	}

	if _, changed, err := s.paymentSvc.ApplyOutcome(ctx, payment.TransactionID, outcome); err != nil {
		return obsmetrics.ReconcileOutcomeError, err
	} else if changed {
		s.logger(ctx).Info("scheduler.reconcile.applied",
			zap.String("transaction_id", payment.TransactionID),
			zap.String("status", string(outcome.Status)),
		)
	}
	return label, nil
}
