package memory

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-promotions/internal/domain/ledger"
)

var _ ledger.Store = (*Store)(nil)

// Apply runs mutate against a snapshot of the rule's counter and publishes
// the result only if the counter's version is unchanged, retrying
// otherwise. The replay check and the marker write happen under the write
// lock together with the publish.
func (s *Store) Apply(ctx context.Context, red ledger.Redemption, mutate ledger.Mutation) (bool, error) {
	key := redemptionKey{orderID: red.OrderID, ruleID: red.RuleID}

	for {
		if err := ctx.Err(); err != nil {
			return false, errors.Wrap(err, "apply redemption")
		}

		s.mu.RLock()
		rec, ok := s.rules[red.RuleID]
		if !ok {
			s.mu.RUnlock()
			return false, errors.Wrapf(ledger.ErrUnknownRule, "rule %s", red.RuleID)
		}
		if _, done := s.redemptions[key]; done {
			s.mu.RUnlock()
			return true, nil
		}
		version := rec.version
		counter := counterOf(rec)
		s.mu.RUnlock()

		if err := mutate(&counter); err != nil {
			return false, err
		}

		s.mu.Lock()
		if _, done := s.redemptions[key]; done {
			s.mu.Unlock()
			return true, nil
		}
		if rec.version != version {
			s.mu.Unlock()
			continue
		}
		rec.rule.UsageCount = counter.UsageCount
		rec.rule.Budget = counter.Budget
		rec.version++
		s.redemptions[key] = red
		s.mu.Unlock()
		return false, nil
	}
}

// Redemptions returns every recorded redemption of a rule.
func (s *Store) Redemptions(ruleID string) []ledger.Redemption {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ledger.Redemption
	for k, r := range s.redemptions {
		if k.ruleID == ruleID {
			out = append(out, r)
		}
	}
	return out
}

func counterOf(rec *ruleRecord) ledger.Counter {
	c := ledger.Counter{
		UsageCount: rec.rule.UsageCount,
		UsageLimit: rec.rule.UsageLimit,
	}
	if rec.rule.Budget != nil {
		b := *rec.rule.Budget
		c.Budget = &b
	}
	return c
}
