package numbering

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/facturia-app/facturia/internal/clock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestAllocator(t *testing.T) *Allocator {
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared&_pragma=busy_timeout(10000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	db.Exec(`CREATE TABLE IF NOT EXISTS series_counters (
		issuer_id BIGINT NOT NULL,
		series TEXT NOT NULL,
		period TEXT NOT NULL,
		last_number BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (issuer_id, series, period)
	)`)

	return NewAllocator(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)),
	})
}

func TestReserveSequential(t *testing.T) {
	a := newTestAllocator(t)
	date := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	first, err := a.Reserve(context.Background(), snowflake.ID(1), "F", date)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Number)
	assert.Equal(t, "F-000001", first.Formatted)
	assert.Equal(t, "2025", first.Period)

	second, err := a.Reserve(context.Background(), snowflake.ID(1), "F", date)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Number)
}

func TestReserveIsolatesSeriesAndPeriod(t *testing.T) {
	a := newTestAllocator(t)
	date2025 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	date2026 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	r1, err := a.Reserve(context.Background(), snowflake.ID(1), "F", date2025)
	require.NoError(t, err)
	r2, err := a.Reserve(context.Background(), snowflake.ID(1), "R", date2025)
	require.NoError(t, err)
	r3, err := a.Reserve(context.Background(), snowflake.ID(1), "F", date2026)
	require.NoError(t, err)
	r4, err := a.Reserve(context.Background(), snowflake.ID(2), "F", date2025)
	require.NoError(t, err)

	// Each (issuer, series, period) counter starts at 1 independently.
	assert.Equal(t, int64(1), r1.Number)
	assert.Equal(t, int64(1), r2.Number)
	assert.Equal(t, int64(1), r3.Number)
	assert.Equal(t, int64(1), r4.Number)
}

func TestReserveConcurrentCallersGetDistinctConsecutiveNumbers(t *testing.T) {
	a := newTestAllocator(t)
	date := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	const n = 25
	var wg sync.WaitGroup
	results := make([]int64, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := a.Reserve(context.Background(), snowflake.ID(7), "F", date)
			results[i] = r.Number
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
	}

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i := 0; i < n; i++ {
		// No gaps, no duplicates: 1..n exactly.
		assert.Equal(t, int64(i+1), results[i])
	}
}
