package ledger

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/kart-promotions/internal/domain/money"
)

// Status is the per-rule result of a commit.
type Status string

const (
	StatusCommitted Status = "committed"
	StatusReplayed  Status = "replayed"
	StatusFailed    Status = "failed"
)

// Outcome reports what happened to one entry.
type Outcome struct {
	RuleID string
	Status Status
	Err    error
}

// CommitResult lists an outcome for every entry, in request order.
type CommitResult struct {
	Outcomes []Outcome
}

// Failed returns the ids of the rules that could not be committed.
func (r *CommitResult) Failed() []string {
	var ids []string
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			ids = append(ids, o.RuleID)
		}
	}
	return ids
}

// Err returns the first failure, or nil when every entry was recorded.
func (r *CommitResult) Err() error {
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			return errors.Wrapf(o.Err, "rule %s", o.RuleID)
		}
	}
	return nil
}

// Options configures a Service.
type Options struct {
	// CommitTimeout bounds a whole Commit call. Zero disables the bound.
	CommitTimeout  time.Duration
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Service commits redemptions through a Store.
type Service struct {
	store   Store
	timeout time.Duration
	now     func() time.Time

	tracer      trace.Tracer
	redemptions metric.Int64Counter
	rejections  metric.Int64Counter
	granted     metric.Float64Counter
}

// NewService creates a ledger Service.
func NewService(store Store, opts Options) (*Service, error) {
	meter := opts.MeterProvider.Meter("kart-promotions/ledger")

	redemptions, err := meter.Int64Counter("ledger.redemptions",
		metric.WithDescription("Redemptions committed, by outcome"))
	if err != nil {
		return nil, errors.Wrap(err, "create redemptions counter")
	}
	rejections, err := meter.Int64Counter("ledger.rejections",
		metric.WithDescription("Redemptions rejected by an exhausted limit"))
	if err != nil {
		return nil, errors.Wrap(err, "create rejections counter")
	}
	granted, err := meter.Float64Counter("ledger.discount.granted",
		metric.WithDescription("Discount amount granted by committed redemptions"))
	if err != nil {
		return nil, errors.Wrap(err, "create granted counter")
	}

	return &Service{
		store:       store,
		timeout:     opts.CommitTimeout,
		now:         time.Now,
		tracer:      opts.TracerProvider.Tracer("kart-promotions/ledger"),
		redemptions: redemptions,
		rejections:  rejections,
		granted:     granted,
	}, nil
}

// Commit records every entry of req. Each entry is applied in its own
// store transaction, so one exhausted rule does not roll back the others;
// the returned result reports every entry. Committing the same order twice
// is a no-op for the entries already recorded.
//
// The returned error is non-nil only when the request itself is malformed
// or the context expires before any entry is attempted.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	if req.OrderID == "" {
		return nil, errors.New("order id required")
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	ctx, span := s.tracer.Start(ctx, "ledger.Commit",
		trace.WithAttributes(
			attribute.String("order.id", req.OrderID),
			attribute.Int("ledger.entries", len(req.Entries)),
		),
	)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "commit")
	}

	lg := zctx.From(ctx).With(zap.String("order_id", req.OrderID))
	now := s.now()

	res := &CommitResult{Outcomes: make([]Outcome, 0, len(req.Entries))}
	for _, e := range req.Entries {
		red := Redemption{
			OrderID:    req.OrderID,
			CustomerID: req.CustomerID,
			RuleID:     e.RuleID,
			Amount:     money.Round(e.Amount),
			OrderTotal: money.Round(req.OrderTotal),
			CreatedAt:  now,
		}
		out := s.apply(ctx, red)
		res.Outcomes = append(res.Outcomes, out)

		attrs := metric.WithAttributes(attribute.String("status", string(out.Status)))
		s.redemptions.Add(ctx, 1, attrs)

		switch out.Status {
		case StatusCommitted:
			s.granted.Add(ctx, red.Amount.InexactFloat64())
			lg.Info("Redemption committed",
				zap.String("rule_id", e.RuleID),
				zap.String("amount", money.Format(red.Amount)),
			)
		case StatusReplayed:
			lg.Info("Redemption already recorded", zap.String("rule_id", e.RuleID))
		case StatusFailed:
			if errors.Is(out.Err, ErrUsageExhausted) || errors.Is(out.Err, ErrBudgetExhausted) {
				s.rejections.Add(ctx, 1)
				lg.Warn("Redemption rejected", zap.String("rule_id", e.RuleID), zap.Error(out.Err))
			} else {
				lg.Error("Redemption failed", zap.String("rule_id", e.RuleID), zap.Error(out.Err))
			}
		}
	}

	if err := res.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "partial commit")
	}
	return res, nil
}

func (s *Service) apply(ctx context.Context, red Redemption) Outcome {
	replayed, err := s.store.Apply(ctx, red, Redeem(red.Amount))
	switch {
	case err != nil:
		return Outcome{RuleID: red.RuleID, Status: StatusFailed, Err: err}
	case replayed:
		return Outcome{RuleID: red.RuleID, Status: StatusReplayed}
	default:
		return Outcome{RuleID: red.RuleID, Status: StatusCommitted}
	}
}
