// Package overdue flips active loans past their due date to overdue and
// notifies the borrowers.
package overdue

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/apperr"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/db"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// LoanStore is the part of the record store the job needs
type LoanStore interface {
	ListOverdueCandidates(ctx context.Context, today time.Time) ([]db.Loan, error)
	MarkOverdue(ctx context.Context, id uuid.UUID) error
}

// Notifier tells a borrower that a loan became overdue
type Notifier interface {
	NotifyOverdue(ctx context.Context, loan db.Loan) error
}

// Result is the tally of one run. Processed + Errors == Total.
type Result struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
	Total     int `json:"total"`
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeUpdateFailed
	outcomeNotifyFailed
)

func (o outcome) String() string {
	switch o {
	case outcomeProcessed:
		return "processed"
	case outcomeUpdateFailed:
		return "update_failed"
	default:
		return "notify_failed"
	}
}

// apply folds one loan outcome into the tally
func (r Result) apply(o outcome) Result {
	r.Total++
	if o == outcomeProcessed {
		r.Processed++
	} else {
		r.Errors++
	}
	return r
}

// Job is the overdue reconciliation routine
type Job struct {
	loans    LoanStore
	notifier Notifier
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	now      func() time.Time
	log      *zap.Logger
}

// Option customizes a Job
type Option func(*Job)

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(j *Job) { j.now = now }
}

// WithTracer replaces the global tracer
func WithTracer(tracer trace.Tracer) Option {
	return func(j *Job) { j.tracer = tracer }
}

// NewJob creates a reconciliation job
func NewJob(loans LoanStore, notifier Notifier, m *metrics.Metrics, log *zap.Logger, opts ...Option) *Job {
	j := &Job{
		loans:    loans,
		notifier: notifier,
		metrics:  m,
		tracer:   otel.Tracer("library/overdue"),
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Today truncates t to the start of its UTC day
func Today(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Run processes every active loan due before today, one at a time. Failures
// on a single loan are counted and never abort the run or undo earlier work.
// Only a failing candidate query fails the run itself.
func (j *Job) Run(ctx context.Context) (Result, error) {
	ctx, span := j.tracer.Start(ctx, "overdue.Run")
	defer span.End()

	today := Today(j.now())
	span.SetAttributes(attribute.String("overdue.today", today.Format(time.DateOnly)))

	candidates, err := j.loans.ListOverdueCandidates(ctx, today)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "candidate query failed")
		j.log.Error("Failed to query overdue loans", zap.Error(err))
		return Result{}, apperr.Upstream("list overdue loans", err)
	}

	var result Result
	for _, loan := range candidates {
		o := j.reconcile(ctx, loan)
		result = result.apply(o)
		j.metrics.ReconcileLoans.WithLabelValues(o.String()).Inc()
	}

	j.metrics.ReconcileRuns.Inc()
	span.SetAttributes(
		attribute.Int("overdue.total", result.Total),
		attribute.Int("overdue.processed", result.Processed),
		attribute.Int("overdue.errors", result.Errors),
	)

	j.log.Info("Overdue reconciliation finished",
		zap.Time("today", today),
		zap.Int("total", result.Total),
		zap.Int("processed", result.Processed),
		zap.Int("errors", result.Errors),
	)
	return result, nil
}

// reconcile marks one loan overdue and notifies its borrower. A failed
// notification leaves the status change in place.
func (j *Job) reconcile(ctx context.Context, loan db.Loan) outcome {
	if err := j.loans.MarkOverdue(ctx, loan.ID); err != nil {
		j.log.Warn("Failed to mark loan overdue",
			zap.String("loan_id", loan.ID.String()),
			zap.Error(err),
		)
		return outcomeUpdateFailed
	}

	loan.Status = db.LoanOverdue
	if err := j.notifier.NotifyOverdue(ctx, loan); err != nil {
		j.log.Warn("Failed to notify overdue loan",
			zap.String("loan_id", loan.ID.String()),
			zap.String("user_id", loan.UserID.String()),
			zap.Error(err),
		)
		return outcomeNotifyFailed
	}

	return outcomeProcessed
}

// Authorized reports whether the presented bearer credential equals the
// configured secret. An empty secret authorizes nobody.
func Authorized(presented, secret string) bool {
	if secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) == 1
}
