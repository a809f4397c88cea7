package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"org-authority-go/internal/model"
	"org-authority-go/internal/orgerr"
)

func TestAssignRespectsHeadcount(t *testing.T) {
	f := newFixture(t)
	p := f.position(t, "LSUP", 1)

	f.assign(t, p.ID, "alice")
	f.clock.Advance(time.Second)

	_, err := f.assignments.Assign(f.ctx, AssignRequest{CompanyID: company, PositionID: p.ID, UserID: "bob", Type: model.AssignmentPermanent, Actor: hr})
	require.ErrorIs(t, err, orgerr.ErrCapacityExceeded)

	// acting coverage does not consume a slot
	acting, err := f.assignments.Assign(f.ctx, AssignRequest{CompanyID: company, PositionID: p.ID, UserID: "carol", Type: model.AssignmentActing, Actor: hr})
	require.NoError(t, err)
	require.Equal(t, model.AssignmentActing, acting.Type)

	occupants, err := f.assignments.OccupantsAt(f.ctx, company, p.ID, f.clock.Now())
	require.NoError(t, err)
	require.Len(t, occupants, 2)
	require.Equal(t, "alice", occupants[0].UserID, "non-acting occupant is primary")
}

func TestAssignRejectsOverlapForSameUser(t *testing.T) {
	f := newFixture(t)
	p := f.position(t, "TECH", 3)

	f.assign(t, p.ID, "alice")
	_, err := f.assignments.Assign(f.ctx, AssignRequest{CompanyID: company, PositionID: p.ID, UserID: "alice", Actor: hr})
	require.ErrorIs(t, err, orgerr.ErrOverlappingAssignment)
}

func TestAssignValidation(t *testing.T) {
	f := newFixture(t)
	p := f.position(t, "TECH", 1)

	_, err := f.assignments.Assign(f.ctx, AssignRequest{CompanyID: company, PositionID: p.ID, UserID: "alice", Type: "intern", Actor: hr})
	require.ErrorIs(t, err, orgerr.ErrInvalidArgument)

	_, err = f.assignments.Assign(f.ctx, AssignRequest{CompanyID: company, PositionID: "missing", UserID: "alice", Actor: hr})
	require.ErrorIs(t, err, orgerr.ErrNotFound)

	_, err = f.assignments.Assign(f.ctx, AssignRequest{CompanyID: company, PositionID: p.ID, UserID: "alice"})
	require.ErrorIs(t, err, orgerr.ErrInvalidArgument, "an actor is required for the audit entry")
	history, err := f.assignments.HistoryOf(f.ctx, company, p.ID)
	require.NoError(t, err)
	require.Empty(t, history, "failed audit rolls the assignment back")
}

func TestEndThenOccupantIsVacant(t *testing.T) {
	f := newFixture(t)
	p := f.position(t, "LSUP", 1)
	a := f.assign(t, p.ID, "alice")

	f.clock.Advance(time.Hour)
	ended, err := f.assignments.End(f.ctx, company, a.ID, time.Time{}, "transfer", hr)
	require.NoError(t, err)
	require.Equal(t, model.AssignmentEnded, ended.Status)
	require.True(t, ended.EndAt.Equal(f.clock.Now()))

	occ, err := f.assignments.OccupantAt(f.ctx, company, p.ID, f.clock.Now())
	require.NoError(t, err)
	require.Nil(t, occ)

	// still the occupant for any instant inside the window
	occ, err = f.assignments.OccupantAt(f.ctx, company, p.ID, t0.Add(30*time.Minute))
	require.NoError(t, err)
	require.Equal(t, a.ID, occ.ID)

	_, err = f.assignments.End(f.ctx, company, a.ID, time.Time{}, "again", hr)
	require.ErrorIs(t, err, orgerr.ErrAlreadyEnded)

	_, err = f.assignments.End(f.ctx, company, "nope", time.Time{}, "", hr)
	require.ErrorIs(t, err, orgerr.ErrNotFound)
}

func TestEndBeforeStartIsInvalid(t *testing.T) {
	f := newFixture(t)
	p := f.position(t, "LSUP", 1)
	a := f.assign(t, p.ID, "alice")

	_, err := f.assignments.End(f.ctx, company, a.ID, t0.Add(-time.Hour), "typo", hr)
	require.ErrorIs(t, err, orgerr.ErrInvalidWindow)
}

func TestHistoryIsOrderedAndChained(t *testing.T) {
	f := newFixture(t)
	p := f.position(t, "LSUP", 1)

	for _, user := range []string{"alice", "bob", "carol"} {
		a := f.assign(t, p.ID, user)
		f.clock.Advance(24 * time.Hour)
		_, err := f.assignments.End(f.ctx, company, a.ID, time.Time{}, "rotation", hr)
		require.NoError(t, err)
	}

	history, err := f.assignments.HistoryOf(f.ctx, company, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, []string{"alice", "bob", "carol"}, []string{history[0].UserID, history[1].UserID, history[2].UserID})
	for i := 1; i < len(history); i++ {
		require.True(t, history[i-1].StartAt.Before(history[i].StartAt))
		require.NotNil(t, history[i].PreviousAssignmentID)
		require.Equal(t, history[i-1].ID, *history[i].PreviousAssignmentID)
	}
	require.Nil(t, history[0].PreviousAssignmentID)

	// restartable: a second read yields the same sequence
	again, err := f.assignments.HistoryOf(f.ctx, company, p.ID)
	require.NoError(t, err)
	require.Equal(t, history, again)
}

func TestConcurrentAssignNeverDoubleBooks(t *testing.T) {
	f := newFixture(t)
	p := f.position(t, "CREW", 2)
	f.assign(t, p.ID, "alice")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, user := range []string{"bob", "carol"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			_, err := f.assignments.Assign(f.ctx, AssignRequest{CompanyID: company, PositionID: p.ID, UserID: user, Actor: hr})
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}(user)
	}
	wg.Wait()

	var ok, full int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case orgerr.KindName(err) == "CAPACITY_EXCEEDED":
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, full)

	open, err := f.store.Assignments().FindOpenByPosition(f.ctx, company, p.ID)
	require.NoError(t, err)
	require.Len(t, open, 2)
}

func TestAssignmentsForUser(t *testing.T) {
	f := newFixture(t)
	p1 := f.position(t, "P1", 1)
	p2 := f.position(t, "P2", 1)
	a1 := f.assign(t, p1.ID, "alice")
	f.assign(t, p2.ID, "alice")

	f.clock.Advance(time.Hour)
	_, err := f.assignments.End(f.ctx, company, a1.ID, time.Time{}, "", hr)
	require.NoError(t, err)

	now, err := f.assignments.AssignmentsForUser(f.ctx, company, "alice", f.clock.Now())
	require.NoError(t, err)
	require.Len(t, now, 1)
	require.Equal(t, p2.ID, now[0].PositionID)

	then, err := f.assignments.AssignmentsForUser(f.ctx, company, "alice", t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, then, 2)
}

func TestAssignAndEndAreAudited(t *testing.T) {
	f := newFixture(t)
	p := f.position(t, "LSUP", 1)
	a := f.assign(t, p.ID, "alice")
	_, err := f.assignments.End(f.ctx, company, a.ID, time.Time{}, "left", hr)
	require.NoError(t, err)

	logs := f.auditFor(t, model.EntityAssignment, a.ID)
	require.Equal(t, []model.AuditAction{model.ActionAssign, model.ActionUnassign}, actions(logs))
	require.Equal(t, hr, logs[0].Actor)
	require.Equal(t, "left", logs[1].Reason)
}
