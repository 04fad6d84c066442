package customer

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	profile    *Profile
	profileErr error
	history    *History
	historyErr error
}

func (m *mockRepo) GetProfile(_ context.Context, _ string) (*Profile, error) {
	return m.profile, m.profileErr
}

func (m *mockRepo) History(_ context.Context, _ string) (*History, error) {
	return m.history, m.historyErr
}

func TestResolver_Resolve(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		repo      *mockRepo
		wantFirst bool
		wantGroup []string
		wantUsage map[string]int
		wantErr   string
	}{
		{
			name:      "guest",
			id:        "",
			repo:      &mockRepo{},
			wantUsage: map[string]int{},
		},
		{
			name: "returning customer",
			id:   "c1",
			repo: &mockRepo{
				profile: &Profile{ID: "c1", GroupIDs: []string{"vip"}, RegionID: "eu"},
				history: &History{OrderCount: 3, RuleUsage: map[string]int{"r1": 2}},
			},
			wantGroup: []string{"vip"},
			wantUsage: map[string]int{"r1": 2},
		},
		{
			name: "unknown profile, first order",
			id:   "c2",
			repo: &mockRepo{
				profileErr: ErrNotFound,
				history:    &History{},
			},
			wantFirst: true,
			wantUsage: map[string]int{},
		},
		{
			name:    "profile lookup fails",
			id:      "c3",
			repo:    &mockRepo{profileErr: errors.New("db down")},
			wantErr: "get profile",
		},
		{
			name: "history lookup fails",
			id:   "c4",
			repo: &mockRepo{
				profile:    &Profile{ID: "c4"},
				historyErr: errors.New("db down"),
			},
			wantErr: "get history",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts, err := NewResolver(tt.repo).Resolve(context.Background(), tt.id)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, facts.CustomerID)
			assert.Equal(t, tt.wantFirst, facts.IsFirstOrder)
			assert.Equal(t, tt.wantGroup, facts.GroupIDs)
			assert.Equal(t, tt.wantUsage, facts.RuleUsage)
		})
	}
}
