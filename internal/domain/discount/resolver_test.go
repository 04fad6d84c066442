package discount

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func candidate(id string, priority int, combinable bool, created time.Time) Candidate {
	r := automaticRule(id, Percentage{Value: d("10")})
	r.Priority = priority
	r.IsCombinable = combinable
	r.CreatedAt = created
	return Candidate{Rule: &r}
}

func ids(cs []Candidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Rule.ID)
	}
	return out
}

func TestResolve(t *testing.T) {
	early := testNow.Add(-2 * time.Hour)
	late := testNow.Add(-time.Hour)
	stacking := Policy{StackingEnabled: true}

	tests := []struct {
		name       string
		candidates []Candidate
		policy     Policy
		want       []string
	}{
		{
			name:   "empty",
			policy: stacking,
			want:   []string{},
		},
		{
			name: "orders by priority then creation",
			candidates: []Candidate{
				candidate("c", 2, true, early),
				candidate("b", 1, true, late),
				candidate("a", 1, true, early),
			},
			policy: stacking,
			want:   []string{"a", "b", "c"},
		},
		{
			name: "ties broken by id",
			candidates: []Candidate{
				candidate("z", 1, true, early),
				candidate("y", 1, true, early),
			},
			policy: stacking,
			want:   []string{"y", "z"},
		},
		{
			name: "non combinable first wins alone",
			candidates: []Candidate{
				candidate("a", 1, false, early),
				candidate("b", 2, true, early),
			},
			policy: stacking,
			want:   []string{"a"},
		},
		{
			name: "non combinable later candidate is skipped",
			candidates: []Candidate{
				candidate("a", 1, true, early),
				candidate("b", 2, false, early),
				candidate("c", 3, true, early),
			},
			policy: stacking,
			want:   []string{"a", "c"},
		},
		{
			name: "max per order caps the set",
			candidates: []Candidate{
				candidate("a", 1, true, early),
				candidate("b", 2, true, early),
				candidate("c", 3, true, early),
			},
			policy: Policy{StackingEnabled: true, MaxPerOrder: 2},
			want:   []string{"a", "b"},
		},
		{
			name: "stacking disabled keeps first only",
			candidates: []Candidate{
				candidate("b", 2, true, early),
				candidate("a", 1, true, early),
			},
			policy: Policy{},
			want:   []string{"a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Resolve(tt.candidates, tt.policy)))
		})
	}
}

func TestResolve_DoesNotReorderInput(t *testing.T) {
	in := []Candidate{
		candidate("b", 2, true, testNow),
		candidate("a", 1, true, testNow),
	}
	Resolve(in, Policy{StackingEnabled: true})
	assert.Equal(t, []string{"b", "a"}, ids(in))
}
