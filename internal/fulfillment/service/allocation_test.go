package service

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bakeflow/bakeflow-backend/internal/fulfillment/allocation"
	"github.com/bakeflow/bakeflow-backend/pkg/errors"
	"github.com/bakeflow/bakeflow-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAllocationServiceWithStore(t *testing.T) *AllocationService {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	store := allocation.NewStore(rdb, 10*time.Minute)
	log := logger.New("fulfillment-service-test", "development")
	return NewAllocationService(nil, nil, nil, store, nil, testFulfillmentConfig(), log)
}

func savedSession(t *testing.T, svc *AllocationService, required int64) *allocation.Session {
	t.Helper()
	pool := []allocation.Plate{{
		ID:                "lp-1",
		LPNumber:          "LP-lp-1",
		LotNumber:         "LOT-1",
		AvailableQuantity: decimal.NewFromInt(100),
		ReceiptDate:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
	session := allocation.NewSession(
		"sess-1", "dl-1", "ord-1", "prod-1",
		allocation.StrategyFIFO, decimal.NewFromInt(required), pool,
		time.Now().UTC(), 7,
	)
	require.NoError(t, svc.sessions.Save(testCtx("operator"), session))
	return session
}

// Committing more than the line requires without the explicit over-production
// pair stops at the resolver with the variance and candidate parent LPs.
func TestCommitAllocation_OverProductionGate(t *testing.T) {
	svc := newAllocationServiceWithStore(t)
	ctx := testCtx("operator")

	session := savedSession(t, svc, 50)
	require.NoError(t, session.SetOverrideQuantity("lp-1", decimal.NewFromInt(80)))
	require.NoError(t, svc.sessions.Save(ctx, session))

	_, err := svc.CommitAllocation(ctx, "sess-1", CommitRequest{})
	require.Error(t, err)

	var overErr *OverConsumptionError
	require.True(t, errors.As(err, &overErr))
	assert.Equal(t, "dl-1", overErr.DemandLineID)
	assert.Equal(t, "80", overErr.AttemptedQuantity.String())
	assert.Equal(t, "30", overErr.ExcessQuantity.String())
	require.Len(t, overErr.CandidateParentLPs, 1)
	assert.Equal(t, "lp-1", overErr.CandidateParentLPs[0].LicensePlateID)
}

// The flag alone is not enough; the excess must be attributed to a parent LP.
func TestCommitAllocation_OverProductionNeedsParentLP(t *testing.T) {
	svc := newAllocationServiceWithStore(t)
	ctx := testCtx("operator")

	session := savedSession(t, svc, 50)
	require.NoError(t, session.SetOverrideQuantity("lp-1", decimal.NewFromInt(80)))
	require.NoError(t, svc.sessions.Save(ctx, session))

	_, err := svc.CommitAllocation(ctx, "sess-1", CommitRequest{IsOverProduction: true})
	require.Error(t, err)

	var overErr *OverConsumptionError
	assert.True(t, errors.As(err, &overErr))
}

// A session older than the freshness window cannot commit until refreshed.
func TestCommitAllocation_StaleSessionBlocked(t *testing.T) {
	svc := newAllocationServiceWithStore(t)
	ctx := testCtx("operator")

	session := savedSession(t, svc, 50)
	session.SnapshotAt = time.Now().UTC().Add(-10 * time.Minute)
	require.NoError(t, svc.sessions.Save(ctx, session))

	_, err := svc.CommitAllocation(ctx, "sess-1", CommitRequest{})
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "STALE_ALLOCATION", appErr.Code)
	assert.True(t, errors.Is(err, errors.ErrStaleAllocation))
}

func TestCommitAllocation_RoleGate(t *testing.T) {
	svc := newAllocationServiceWithStore(t)

	_, err := svc.CommitAllocation(testCtx("viewer"), "sess-1", CommitRequest{})
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", appErr.Code)
}
