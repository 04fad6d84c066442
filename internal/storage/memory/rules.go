package memory

import (
	"context"
	"sort"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-promotions/internal/domain/discount"
)

var _ discount.RuleRepository = (*Store)(nil)

// ErrDuplicateCode is returned when a store already has a rule with the code.
var ErrDuplicateCode = errors.New("duplicate coupon code")

// PutRule inserts or replaces a rule. The rule is validated first.
func (s *Store) PutRule(r discount.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r.HasCode() {
		key := codeKey(r.StoreID, r.Code)
		if id, ok := s.codes[key]; ok && id != r.ID {
			return errors.Wrapf(ErrDuplicateCode, "code %q", r.Code)
		}
		s.codes[key] = r.ID
	}

	rec, ok := s.rules[r.ID]
	if !ok {
		s.rules[r.ID] = &ruleRecord{rule: cloneRule(r)}
		return nil
	}
	if rec.rule.HasCode() && !rec.rule.MatchesCode(r.Code) {
		delete(s.codes, codeKey(rec.rule.StoreID, rec.rule.Code))
	}
	rec.rule = cloneRule(r)
	rec.version++
	return nil
}

// Rule returns a copy of the rule with the given id.
func (s *Store) Rule(id string) (discount.Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.rules[id]
	if !ok {
		return discount.Rule{}, false
	}
	return cloneRule(rec.rule), true
}

// ListAutomaticRules returns the store's code-less automatic rules ordered
// by id.
func (s *Store) ListAutomaticRules(_ context.Context, storeID string) ([]discount.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []discount.Rule
	for _, rec := range s.rules {
		if rec.rule.StoreID == storeID && rec.rule.IsAutomaticCandidate() {
			out = append(out, cloneRule(rec.rule))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindByCode looks a rule up by code, case-insensitively.
func (s *Store) FindByCode(_ context.Context, storeID, code string) (*discount.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.codes[codeKey(storeID, code)]
	if !ok {
		return nil, discount.ErrRuleNotFound
	}
	r := cloneRule(s.rules[id].rule)
	return &r, nil
}
