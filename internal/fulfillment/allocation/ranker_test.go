package allocation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func datePtr(year int, month time.Month, day int) *time.Time {
	d := date(year, month, day)
	return &d
}

func plate(id string, available int64, receipt time.Time, bestBefore *time.Time) Plate {
	return Plate{
		ID:                id,
		LPNumber:          "LP-" + id,
		LotNumber:         "LOT-" + id,
		AvailableQuantity: decimal.NewFromInt(available),
		ReceiptDate:       receipt,
		BestBeforeDate:    bestBefore,
	}
}

func TestRank_FIFO(t *testing.T) {
	pool := []Plate{
		plate("b", 50, date(2025, 1, 15), nil),
		plate("a", 50, date(2025, 1, 1), nil),
	}

	ranked := Rank(pool, StrategyFIFO, date(2025, 2, 1), 7)

	require.Len(t, ranked, 2)
	assert.Equal(t, "a", ranked[0].ID)
	assert.Equal(t, "b", ranked[1].ID)
	assert.Equal(t, "FIFO: received 2025-01-01", ranked[0].RankReason)
}

func TestRank_FIFO_TieBreakByID(t *testing.T) {
	sameDay := date(2025, 1, 1)
	pool := []Plate{
		plate("z", 10, sameDay, nil),
		plate("a", 10, sameDay, nil),
		plate("m", 10, sameDay, nil),
	}

	ranked := Rank(pool, StrategyFIFO, date(2025, 2, 1), 7)

	assert.Equal(t, "a", ranked[0].ID)
	assert.Equal(t, "m", ranked[1].ID)
	assert.Equal(t, "z", ranked[2].ID)
}

func TestRank_FEFO_EarliestExpiryFirst(t *testing.T) {
	pool := []Plate{
		plate("lp1", 50, date(2025, 1, 1), datePtr(2026, 6, 1)),
		plate("lp2", 50, date(2025, 1, 15), datePtr(2026, 3, 1)),
	}

	ranked := Rank(pool, StrategyFEFO, date(2025, 2, 1), 7)

	assert.Equal(t, "lp2", ranked[0].ID)
	assert.Equal(t, "lp1", ranked[1].ID)
	assert.Equal(t, "FEFO: expires 2026-03-01", ranked[0].RankReason)
}

func TestRank_FEFO_NullsSortLast(t *testing.T) {
	pool := []Plate{
		plate("no-date", 50, date(2025, 1, 1), nil),
		plate("dated", 50, date(2025, 1, 15), datePtr(2026, 3, 1)),
	}

	ranked := Rank(pool, StrategyFEFO, date(2025, 2, 1), 7)

	assert.Equal(t, "dated", ranked[0].ID)
	assert.Equal(t, "no-date", ranked[1].ID)
	assert.Equal(t, "FEFO: no best-before date", ranked[1].RankReason)
}

func TestRank_FEFO_TieBreakByReceipt(t *testing.T) {
	sameExpiry := datePtr(2026, 3, 1)
	pool := []Plate{
		plate("newer", 50, date(2025, 1, 15), sameExpiry),
		plate("older", 50, date(2025, 1, 1), sameExpiry),
	}

	ranked := Rank(pool, StrategyFEFO, date(2025, 2, 1), 7)

	assert.Equal(t, "older", ranked[0].ID)
	assert.Equal(t, "newer", ranked[1].ID)
}

func TestRank_ExpiryWarning(t *testing.T) {
	now := date(2025, 6, 1)
	pool := []Plate{
		plate("soon", 10, date(2025, 1, 1), datePtr(2025, 6, 5)),
		plate("later", 10, date(2025, 1, 1), datePtr(2025, 6, 20)),
		plate("none", 10, date(2025, 1, 1), nil),
	}

	ranked := Rank(pool, StrategyFIFO, now, 7)

	byID := map[string]Candidate{}
	for _, c := range ranked {
		byID[c.ID] = c
	}

	require.NotNil(t, byID["soon"].ExpiryDaysRemaining)
	assert.Equal(t, 4, *byID["soon"].ExpiryDaysRemaining)
	assert.True(t, byID["soon"].IsExpiryWarning)

	assert.False(t, byID["later"].IsExpiryWarning)
	assert.Nil(t, byID["none"].ExpiryDaysRemaining)
	assert.False(t, byID["none"].IsExpiryWarning)
}

func TestRank_DoesNotMutateInput(t *testing.T) {
	pool := []Plate{
		plate("b", 50, date(2025, 1, 15), nil),
		plate("a", 50, date(2025, 1, 1), nil),
	}

	Rank(pool, StrategyFIFO, date(2025, 2, 1), 7)

	assert.Equal(t, "b", pool[0].ID)
	assert.Equal(t, "a", pool[1].ID)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("FEFO")
	require.NoError(t, err)
	assert.Equal(t, StrategyFEFO, s)

	_, err = ParseStrategy("LIFO")
	assert.Error(t, err)
}
