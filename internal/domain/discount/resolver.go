package discount

import (
	"sort"
)

// Policy carries the store-wide stacking configuration.
type Policy struct {
	// MaxPerOrder caps how many rules may apply to one cart. Zero means no cap.
	MaxPerOrder int
	// StackingEnabled allows more than one rule per cart.
	StackingEnabled bool
}

// Candidate is an eligible rule together with its computed effect.
type Candidate struct {
	Rule        *Rule
	Computation Computation
}

// Resolve picks the applied subset of candidates, in application order.
func Resolve(candidates []Candidate, policy Policy) []Candidate {
	if len(candidates) == 0 {
		return nil
	}

	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Rule, sorted[j].Rule
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	first := sorted[0]
	if !policy.StackingEnabled || !first.Rule.IsCombinable {
		return []Candidate{first}
	}

	applied := []Candidate{first}
	for _, c := range sorted[1:] {
		if policy.MaxPerOrder > 0 && len(applied) >= policy.MaxPerOrder {
			break
		}
		// Every applied rule is combinable at this point, so only the
		// candidate needs checking.
		if !c.Rule.IsCombinable {
			continue
		}
		applied = append(applied, c)
	}
	return applied
}
