package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"org-authority-go/internal/model"
	"org-authority-go/internal/orgerr"
	"org-authority-go/internal/repository"
)

func TestResolveUsesCacheUntilAWriteInvalidatesIt(t *testing.T) {
	f := newFixture(t)
	p := f.position(t, "LSUP", 1)
	a := f.assign(t, p.ID, "alice")

	first := f.resolveNow(t, p.ID)
	require.Equal(t, "alice", first.UserID)
	require.Equal(t, a.ID, first.AssignmentID)
	require.False(t, first.UsedCache)
	require.True(t, first.ResolvedAt.Equal(t0))

	f.clock.Advance(10 * time.Second)
	second := f.resolveNow(t, p.ID)
	require.True(t, second.UsedCache)
	require.Equal(t, "alice", second.UserID)
	require.True(t, second.AsOf.Equal(f.clock.Now()))

	_, err := f.assignments.End(f.ctx, company, a.ID, time.Time{}, "left", hr)
	require.NoError(t, err)
	third := f.resolveNow(t, p.ID)
	require.True(t, third.Vacant)
	require.False(t, third.UsedCache)
	require.Empty(t, third.UserID)
}

func TestResolveCacheNeverOutlivesTheSLA(t *testing.T) {
	f := newFixture(t)
	p := f.position(t, "LSUP", 1)
	f.assign(t, p.ID, "alice")

	f.resolveNow(t, p.ID)
	f.clock.Advance(61 * time.Second)
	require.False(t, f.resolveNow(t, p.ID).UsedCache)
}

func TestVacantResultsUseShortTTL(t *testing.T) {
	f := newFixture(t)
	p := f.position(t, "LSUP", 1)

	require.True(t, f.resolveNow(t, p.ID).Vacant)
	require.True(t, f.resolveNow(t, p.ID).UsedCache)

	f.clock.Advance(6 * time.Second)
	require.False(t, f.resolveNow(t, p.ID).UsedCache)
}

func TestHistoricalResolveBypassesCache(t *testing.T) {
	f := newFixture(t)
	p := f.position(t, "LSUP", 1)
	f.clock.Advance(time.Hour)
	f.assign(t, p.ID, "alice")
	f.resolveNow(t, p.ID)

	past, err := f.resolution.Resolve(f.ctx, ResolveRequest{CompanyID: company, PositionID: p.ID, AsOf: t0.Add(30 * time.Minute)})
	require.NoError(t, err)
	require.True(t, past.Vacant)
	require.False(t, past.UsedCache)
	require.NotNil(t, past.ValidUntil)
	require.True(t, past.ValidUntil.Equal(t0.Add(time.Hour)))
}

func TestResolveUnknownPosition(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolution.Resolve(f.ctx, ResolveRequest{CompanyID: company, PositionID: "missing"})
	require.ErrorIs(t, err, orgerr.ErrNotFound)

	_, err = f.resolution.Resolve(f.ctx, ResolveRequest{CompanyID: "other", PositionID: f.position(t, "X", 1).ID})
	require.ErrorIs(t, err, orgerr.ErrNotFound, "positions are tenant scoped")
}

func TestExplicitInvalidate(t *testing.T) {
	f := newFixture(t)
	p := f.position(t, "LSUP", 1)
	f.assign(t, p.ID, "alice")
	f.resolveNow(t, p.ID)

	require.NoError(t, f.resolution.Invalidate(f.ctx, company, p.ID))
	require.False(t, f.resolveNow(t, p.ID).UsedCache)
	require.NoError(t, f.resolution.Invalidate(f.ctx, company))
}

func TestCacheReadFailureFallsBackToStore(t *testing.T) {
	f := newFixture(t, withCache(func(c repository.ResolutionCacheRepository) repository.ResolutionCacheRepository {
		return &failingCache{ResolutionCacheRepository: c, failGet: true}
	}))
	p := f.position(t, "LSUP", 1)
	f.assign(t, p.ID, "alice")

	for range 2 {
		got := f.resolveNow(t, p.ID)
		require.Equal(t, "alice", got.UserID)
		require.False(t, got.UsedCache)
	}
}

func TestCacheInvalidationFailureRollsBackTheWrite(t *testing.T) {
	f := newFixture(t, withCache(func(c repository.ResolutionCacheRepository) repository.ResolutionCacheRepository {
		return &failingCache{ResolutionCacheRepository: c, failInvalidate: true}
	}))
	p := f.position(t, "LSUP", 1)
	before := f.publisher.count()

	_, err := f.assignments.Assign(f.ctx, AssignRequest{CompanyID: company, PositionID: p.ID, UserID: "alice", Actor: hr})
	require.ErrorIs(t, err, orgerr.ErrStoreUnavailable)
	require.True(t, orgerr.IsRetryable(err))

	history, err := f.assignments.HistoryOf(f.ctx, company, p.ID)
	require.NoError(t, err)
	require.Empty(t, history)
	logs, err := f.audit.QueryByTimeRange(f.ctx, company, t0, t0.Add(time.Hour))
	require.NoError(t, err)
	for _, l := range logs {
		require.NotEqual(t, model.EntityAssignment, l.EntityType)
	}
	require.Equal(t, before, f.publisher.count(), "nothing is published for a rolled back write")
}
