package discount

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Service loads the rules relevant to a cart and runs the engine on them.
type Service struct {
	rules  RuleRepository
	engine *Engine
}

// NewService creates a Service backed by the given rule repository.
func NewService(rules RuleRepository, engine *Engine) *Service {
	return &Service{rules: rules, engine: engine}
}

// Evaluate fetches the store's automatic rules and the rule behind
// dc.CouponCode concurrently, then evaluates.
func (s *Service) Evaluate(ctx context.Context, dc *Context) (*Result, error) {
	var (
		automatic []Rule
		coupon    *Rule
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rules, err := s.rules.ListAutomaticRules(gctx, dc.StoreID)
		if err != nil {
			return errors.Wrap(err, "list automatic rules")
		}
		automatic = rules
		return nil
	})
	if dc.CouponCode != "" {
		g.Go(func() error {
			r, err := s.rules.FindByCode(gctx, dc.StoreID, dc.CouponCode)
			switch {
			case errors.Is(err, ErrRuleNotFound):
				return nil
			case err != nil:
				return errors.Wrap(err, "find rule by code")
			}
			coupon = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res, err := s.engine.Evaluate(dc, automatic, coupon)
	if err != nil {
		return nil, errors.Wrap(err, "evaluate")
	}

	zctx.From(ctx).Debug("Discounts evaluated",
		zap.String("store_id", dc.StoreID),
		zap.Int("automatic_rules", len(automatic)),
		zap.Bool("valid", res.IsValid),
		zap.Strings("applied", res.AppliedRuleIDs),
		zap.String("amount", res.DiscountAmount.StringFixed(2)),
	)
	return res, nil
}

// ListPublicRules returns the store's automatic rules flagged as public,
// ordered the way the resolver would consider them.
func (s *Service) ListPublicRules(ctx context.Context, storeID string) ([]Rule, error) {
	rules, err := s.rules.ListAutomaticRules(ctx, storeID)
	if err != nil {
		return nil, errors.Wrap(err, "list automatic rules")
	}
	now := s.engine.now()
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if !r.IsPublic || !r.IsActive {
			continue
		}
		if r.EndsAt != nil && now.After(*r.EndsAt) {
			continue
		}
		out = append(out, r)
	}
	slices.SortStableFunc(out, func(a, b Rule) int {
		if a.Priority != b.Priority {
			return a.Priority - b.Priority
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}
