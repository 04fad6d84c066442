package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-promotions/internal/domain/discount"
)

func writeGz(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func testScanner(minFiles int) codeScanner {
	return codeScanner{minFiles: minFiles, minLen: 8, maxLen: 10, capacity: 1000, fpRate: 0.0001}
}

func TestCodeScanner_Scan(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "a.gz", "SUMMER2025", "ONLYINA1", "short", "BOTHAANDC", "SUMMER2025"),
		writeGz(t, dir, "b.gz", "summer2025", "ONLYINB1", "WAYTOOLONGCODE"),
		writeGz(t, dir, "c.gz", "BOTHAANDC", " SUMMER2025 "),
	}

	tests := []struct {
		name     string
		minFiles int
		want     []string
	}{
		{name: "any file", minFiles: 1, want: []string{"BOTHAANDC", "ONLYINA1", "ONLYINB1", "SUMMER2025"}},
		{name: "two files", minFiles: 2, want: []string{"BOTHAANDC", "SUMMER2025"}},
		{name: "every file", minFiles: 3, want: []string{"SUMMER2025"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codes, err := testScanner(tt.minFiles).Scan(context.Background(), files)
			require.NoError(t, err)
			assert.Equal(t, tt.want, codes)
		})
	}
}

func TestCodeScanner_Errors(t *testing.T) {
	dir := t.TempDir()
	good := writeGz(t, dir, "a.gz", "SUMMER2025")
	plain := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(plain, []byte("SUMMER2025\n"), 0o600))

	ctx := context.Background()

	_, err := testScanner(1).Scan(ctx, nil)
	require.Error(t, err)

	_, err = testScanner(2).Scan(ctx, []string{good})
	require.Error(t, err)

	_, err = testScanner(1).Scan(ctx, []string{good, plain})
	require.Error(t, err)

	_, err = testScanner(1).Scan(ctx, []string{filepath.Join(dir, "missing.gz")})
	require.Error(t, err)
}

func TestCloneRule(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	template := &discount.Rule{
		ID:          "tmpl",
		StoreID:     "store-1",
		Code:        "TEMPLATE",
		Effect:      discount.Percentage{Value: decimal.NewFromInt(20)},
		Target:      discount.Target{AppliesTo: discount.AppliesToSpecificCategories, CategoryIDs: []string{"drinks"}},
		IsActive:    true,
		IsAutomatic: true,
		UsageCount:  12,
		Budget:      &discount.Budget{Type: discount.BudgetSpend, Limit: decimal.NewFromInt(500)},
	}

	r := cloneRule(template, "SUMMER2025", now)
	assert.NotEqual(t, "tmpl", r.ID)
	assert.Equal(t, "SUMMER2025", r.Code)
	assert.Equal(t, "store-1", r.StoreID)
	assert.False(t, r.IsAutomatic)
	assert.Zero(t, r.UsageCount)
	assert.Equal(t, 1, r.UsageLimit)
	assert.Nil(t, r.Budget)
	assert.Equal(t, now, r.CreatedAt)
	require.NoError(t, r.Validate())

	r.Target.CategoryIDs[0] = "food"
	assert.Equal(t, "drinks", template.Target.CategoryIDs[0])

	template.UsageLimit = 5
	assert.Equal(t, 5, cloneRule(template, "OTHERCODE", now).UsageLimit)
}
