package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakkat/grocery-market/internal/domain/coupon"
)

var testRule = rule{
	discountType: coupon.DiscountPercentage,
	value:        decimal.NewFromInt(10),
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantOK   bool
		wantErr  bool
		wantCode string
		wantType coupon.DiscountType
		wantVal  string
		wantMin  string
	}{
		{name: "blank", line: "   "},
		{name: "comment", line: "# header"},
		{name: "code only", line: " summer24 ", wantOK: true, wantCode: "SUMMER24", wantType: coupon.DiscountPercentage, wantVal: "10", wantMin: "0"},
		{name: "with rule", line: "FLAT75,flat,75", wantOK: true, wantCode: "FLAT75", wantType: coupon.DiscountFlat, wantVal: "75", wantMin: "0"},
		{name: "with minimum", line: "BIG20, percentage, 20, 999.50", wantOK: true, wantCode: "BIG20", wantType: coupon.DiscountPercentage, wantVal: "20", wantMin: "999.5"},
		{name: "too short", line: "ABC", wantErr: true},
		{name: "unknown type", line: "CODE1,bogo,1", wantErr: true},
		{name: "bad value", line: "CODE1,flat,ten", wantErr: true},
		{name: "two fields", line: "CODE1,flat", wantErr: true},
		{name: "percentage over 100", line: "CODE1,percentage,120", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok, err := parseLine(tt.line, testRule)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantCode, c.Code)
			assert.Equal(t, tt.wantType, c.DiscountType)
			assert.Equal(t, tt.wantVal, c.DiscountValue.String())
			assert.Equal(t, tt.wantMin, c.MinOrderValue.String())
			assert.True(t, c.IsActive)
		})
	}
}

func TestDedupe(t *testing.T) {
	d := newDedupe(1000, 0.01)
	assert.True(t, d.first("A1"))
	assert.True(t, d.first("B2"))
	assert.False(t, d.first("A1"))
	assert.False(t, d.first("B2"))
	assert.True(t, d.first("C3"))
}

type memImporter struct {
	mu    sync.Mutex
	codes map[string]coupon.Coupon
}

func (m *memImporter) Import(_ context.Context, c coupon.Coupon) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.codes[c.Code]; ok {
		return false, nil
	}
	m.codes[c.Code] = c
	return true, nil
}

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

func TestRun(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "a.gz", "# codes", "ALPHA1", "BRAVO2,flat,50", "bad"),
		writeGz(t, dir, "b.gz", "alpha1", "CHARLIE3,percentage,15,200", "DELTA4"),
	}
	repo := &memImporter{codes: map[string]coupon.Coupon{
		"DELTA4": {Code: "DELTA4"},
	}}

	var st stats
	require.NoError(t, run(context.Background(), repo, files, testRule, 3, &st))

	assert.Equal(t, int64(5), st.read.Load())
	assert.Equal(t, int64(1), st.invalid.Load())
	assert.Equal(t, int64(1), st.duplicate.Load())
	assert.Equal(t, int64(3), st.inserted.Load())
	assert.Equal(t, int64(1), st.existing.Load())

	require.Contains(t, repo.codes, "BRAVO2")
	assert.Equal(t, coupon.DiscountFlat, repo.codes["BRAVO2"].DiscountType)
	assert.Equal(t, "200", repo.codes["CHARLIE3"].MinOrderValue.String())
}

func TestRun_MissingFile(t *testing.T) {
	var st stats
	err := run(context.Background(), &memImporter{codes: map[string]coupon.Coupon{}}, []string{"/nonexistent.gz"}, testRule, 1, &st)
	require.Error(t, err)
}
