package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/ticketing-backend/internal/models"
)

const reconcileBatchSize = 100

// PaymentReconciler periodically verifies pending payments with the gateway.
// Payments the gateway still reports as pending stay pending.
type PaymentReconciler struct {
	cron     *cron.Cron
	payments PaymentStore
	service  *PaymentService
	schedule string
	grace    time.Duration
	logger   *logrus.Logger
	now      func() time.Time
}

// NewPaymentReconciler creates a reconciler running on a cron schedule such as "@every 1m"
func NewPaymentReconciler(payments PaymentStore, service *PaymentService, schedule string, grace time.Duration, logger *logrus.Logger) *PaymentReconciler {
	return &PaymentReconciler{
		cron:     cron.New(),
		payments: payments,
		service:  service,
		schedule: schedule,
		grace:    grace,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the reconciler clock
func (r *PaymentReconciler) WithClock(now func() time.Time) *PaymentReconciler {
	r.now = now
	return r
}

// Start schedules the job and starts the scheduler
func (r *PaymentReconciler) Start() error {
	if _, err := r.cron.AddFunc(r.schedule, r.reconcileJob); err != nil {
		return fmt.Errorf("failed to schedule payment reconciliation: %w", err)
	}
	r.cron.Start()
	r.logger.WithField("schedule", r.schedule).Info("Payment reconciliation scheduled")
	return nil
}

// Stop stops the scheduler and waits for a running job
func (r *PaymentReconciler) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("Payment reconciliation stopped")
}

func (r *PaymentReconciler) reconcileJob() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start := time.Now()
	settled, err := r.ReconcileNow(ctx)
	if err != nil {
		r.logger.WithError(err).Error("Payment reconciliation failed")
		return
	}
	r.logger.WithFields(logrus.Fields{
		"settled":  settled,
		"duration": time.Since(start).String(),
	}).Info("Payment reconciliation finished")
}

// ReconcileNow verifies every pending payment older than the grace period and
// returns how many left the pending state
func (r *PaymentReconciler) ReconcileNow(ctx context.Context) (int, error) {
	pending, err := r.payments.ListPendingPayments(ctx, r.now().Add(-r.grace), reconcileBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending payments: %w", err)
	}

	settled := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		updated, err := r.service.VerifyPayment(ctx, nil, p.TxID())
		if err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{
				"payment_id":     p.ID,
				"transaction_id": p.TxID(),
			}).Warn("Could not verify pending payment")
			continue
		}
		if updated.Status != models.PaymentStatusPending {
			settled++
		}
	}
	return settled, nil
}
