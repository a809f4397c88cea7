package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"org-authority-go/internal/model"
	"org-authority-go/internal/orgerr"
)

// delegationSetup 创建两个有人在岗的岗位：P 由 alice 担任，Q 由 bob 担任。
func delegationSetup(t *testing.T) (*fixture, *model.Position, *model.Position) {
	t.Helper()
	f := newFixture(t)
	p := f.position(t, "P", 1)
	q := f.position(t, "Q", 1)
	f.assign(t, p.ID, "alice")
	f.assign(t, q.ID, "bob")
	return f, p, q
}

func (f *fixture) delegate(t *testing.T, from, to *model.Position, start, end time.Time, approval bool) *model.Delegation {
	t.Helper()
	d, err := f.delegations.Create(f.ctx, CreateDelegationRequest{
		CompanyID:           company,
		DelegatorPositionID: from.ID,
		DelegatePositionID:  to.ID,
		StartAt:             start,
		EndAt:               end,
		Reason:              "annual leave",
		RequiresApproval:    approval,
		Actor:               hr,
	})
	require.NoError(t, err)
	return d
}

func TestDelegationResolvesOnlyInsideItsWindow(t *testing.T) {
	f, p, q := delegationSetup(t)
	t1, t2 := t0.Add(24*time.Hour), t0.Add(72*time.Hour)
	d := f.delegate(t, p, q, t1, t2, false)
	require.Equal(t, model.DelegationPending, d.Status, "future delegations wait for their start")

	during, err := f.resolution.Resolve(f.ctx, ResolveRequest{CompanyID: company, PositionID: p.ID, AsOf: t1.Add(time.Second)})
	require.NoError(t, err)
	require.Equal(t, "bob", during.UserID)
	require.True(t, during.IsDelegated)
	require.Equal(t, "alice", during.OriginalUserID)
	require.Equal(t, d.ID, during.DelegationID)
	require.True(t, during.ValidFrom.Equal(t1))
	require.NotNil(t, during.ValidUntil)
	require.True(t, during.ValidUntil.Equal(t2))

	after, err := f.resolution.Resolve(f.ctx, ResolveRequest{CompanyID: company, PositionID: p.ID, AsOf: t2.Add(time.Second)})
	require.NoError(t, err)
	require.Equal(t, "alice", after.UserID)
	require.False(t, after.IsDelegated)
	require.Empty(t, after.OriginalUserID)
}

func TestDelegationExpiryIsPersistedLazily(t *testing.T) {
	f, p, q := delegationSetup(t)
	d := f.delegate(t, p, q, t0, t0.Add(time.Hour), false)
	require.Equal(t, model.DelegationActive, d.Status)
	require.Equal(t, "bob", f.resolveNow(t, p.ID).UserID)

	f.clock.Advance(2 * time.Hour)
	require.Equal(t, "alice", f.resolveNow(t, p.ID).UserID)

	stored, err := f.store.Delegations().FindByID(f.ctx, company, d.ID)
	require.NoError(t, err)
	require.Equal(t, model.DelegationExpired, stored.Status)

	logs := f.auditFor(t, model.EntityDelegation, d.ID)
	require.Equal(t, []model.AuditAction{model.ActionCreate, model.ActionExpire}, actions(logs))
	require.Equal(t, model.SystemActor, logs[1].Actor)

	// 再次读取不会重复记录
	_, err = f.delegations.Get(f.ctx, company, d.ID)
	require.NoError(t, err)
	require.Len(t, f.auditFor(t, model.EntityDelegation, d.ID), 2)
}

func TestDelegationInvalidWindowPersistsNothing(t *testing.T) {
	f, p, q := delegationSetup(t)
	_, err := f.delegations.Create(f.ctx, CreateDelegationRequest{
		CompanyID:           company,
		DelegatorPositionID: p.ID,
		DelegatePositionID:  q.ID,
		StartAt:             time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		EndAt:               time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
		Actor:               hr,
	})
	require.ErrorIs(t, err, orgerr.ErrInvalidWindow)

	list, err := f.delegations.ListByPosition(f.ctx, company, p.ID)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestDelegationCreateValidation(t *testing.T) {
	f, p, q := delegationSetup(t)
	vacant := f.position(t, "VAC", 1)
	end := t0.Add(time.Hour)

	_, err := f.delegations.Create(f.ctx, CreateDelegationRequest{CompanyID: company, DelegatorPositionID: p.ID, DelegatePositionID: p.ID, StartAt: t0, EndAt: end, Actor: hr})
	require.ErrorIs(t, err, orgerr.ErrInvalidArgument)

	_, err = f.delegations.Create(f.ctx, CreateDelegationRequest{CompanyID: company, DelegatorPositionID: p.ID, DelegatePositionID: q.ID, Scope: model.DelegationScope{Type: "most"}, StartAt: t0, EndAt: end, Actor: hr})
	require.ErrorIs(t, err, orgerr.ErrInvalidArgument)

	_, err = f.delegations.Create(f.ctx, CreateDelegationRequest{CompanyID: company, DelegatorPositionID: p.ID, DelegatePositionID: vacant.ID, StartAt: t0, EndAt: end, Actor: hr})
	require.ErrorIs(t, err, orgerr.ErrNoActiveOccupant)

	_, err = f.delegations.Create(f.ctx, CreateDelegationRequest{CompanyID: company, DelegatorPositionID: p.ID, DelegatorUserID: "mallory", DelegatePositionID: q.ID, StartAt: t0, EndAt: end, Actor: hr})
	require.ErrorIs(t, err, orgerr.ErrNoActiveOccupant)

	_, err = f.delegations.Create(f.ctx, CreateDelegationRequest{CompanyID: company, DelegatorPositionID: p.ID, DelegatePositionID: "ghost", StartAt: t0, EndAt: end, Actor: hr})
	require.ErrorIs(t, err, orgerr.ErrNotFound)
}

func TestOverlappingFullDelegationsAreRejected(t *testing.T) {
	f, p, q := delegationSetup(t)
	r := f.position(t, "R", 1)
	f.assign(t, r.ID, "carol")

	f.delegate(t, p, q, t0, t0.Add(48*time.Hour), false)
	_, err := f.delegations.Create(f.ctx, CreateDelegationRequest{CompanyID: company, DelegatorPositionID: p.ID, DelegatePositionID: r.ID, StartAt: t0.Add(24 * time.Hour), EndAt: t0.Add(96 * time.Hour), Actor: hr})
	require.ErrorIs(t, err, orgerr.ErrDelegationOverlap)

	// 限定范围的授权可以与全量授权并存
	_, err = f.delegations.Create(f.ctx, CreateDelegationRequest{
		CompanyID:           company,
		DelegatorPositionID: p.ID,
		DelegatePositionID:  r.ID,
		Scope:               model.DelegationScope{Type: model.ScopePartial, Departments: []string{"PROD"}},
		StartAt:             t0.Add(24 * time.Hour),
		EndAt:               t0.Add(96 * time.Hour),
		Actor:               hr,
	})
	require.NoError(t, err)
}

func TestScopedDelegationNeedsMatchingQuery(t *testing.T) {
	f, p, q := delegationSetup(t)
	r := f.position(t, "R", 1)
	f.assign(t, r.ID, "carol")

	f.delegate(t, p, q, t0, t0.Add(48*time.Hour), false)
	f.clock.Advance(time.Minute)
	limit := 5000.0
	_, err := f.delegations.Create(f.ctx, CreateDelegationRequest{
		CompanyID:           company,
		DelegatorPositionID: p.ID,
		DelegatePositionID:  r.ID,
		Scope:               model.DelegationScope{Type: model.ScopeSpecific, ApprovalTypes: []string{"purchase"}, BudgetLimit: &limit},
		StartAt:             t0,
		EndAt:               t0.Add(48 * time.Hour),
		Actor:               hr,
	})
	require.NoError(t, err)

	require.Equal(t, "bob", f.resolveNow(t, p.ID).UserID, "without context only the full delegation applies")

	small := 1200.0
	scoped, err := f.resolution.Resolve(f.ctx, ResolveRequest{CompanyID: company, PositionID: p.ID, Query: &model.ScopeQuery{ApprovalType: "purchase", Amount: &small}})
	require.NoError(t, err)
	require.Equal(t, "carol", scoped.UserID, "the most recent matching delegation wins")
	require.False(t, scoped.UsedCache)

	large := 9000.0
	overBudget, err := f.resolution.Resolve(f.ctx, ResolveRequest{CompanyID: company, PositionID: p.ID, Query: &model.ScopeQuery{ApprovalType: "purchase", Amount: &large}})
	require.NoError(t, err)
	require.Equal(t, "bob", overBudget.UserID)
}

func TestDelegationApprovalFlow(t *testing.T) {
	f, p, q := delegationSetup(t)
	d := f.delegate(t, p, q, t0, t0.Add(24*time.Hour), true)
	require.Equal(t, model.DelegationPending, d.Status)

	pending, err := f.delegations.PendingApprovals(f.ctx, company)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "alice", f.resolveNow(t, p.ID).UserID)

	f.clock.Advance(30 * time.Second)
	approver := model.Actor{UserID: "director-1", Name: "Director"}
	approved, err := f.delegations.Approve(f.ctx, company, d.ID, approver, "ok")
	require.NoError(t, err)
	require.Equal(t, model.DelegationActive, approved.Status)
	require.Equal(t, "director-1", *approved.ApprovedBy)

	got := f.resolveNow(t, p.ID)
	require.Equal(t, "bob", got.UserID, "approval invalidates the cached result")
	require.False(t, got.UsedCache)

	_, err = f.delegations.Approve(f.ctx, company, d.ID, approver, "again")
	require.ErrorIs(t, err, orgerr.ErrInvalidStateTransition)
	_, err = f.delegations.Reject(f.ctx, company, d.ID, approver, "too late")
	require.ErrorIs(t, err, orgerr.ErrInvalidStateTransition)

	logs := f.auditFor(t, model.EntityDelegation, d.ID)
	require.Equal(t, []model.AuditAction{model.ActionCreate, model.ActionApprove}, actions(logs))
	require.Len(t, logs[1].ApprovalChain, 1)
	require.Equal(t, "approved", logs[1].ApprovalChain[0].Decision)
}

func TestDelegationRejectIsTerminal(t *testing.T) {
	f, p, q := delegationSetup(t)
	d := f.delegate(t, p, q, t0, t0.Add(24*time.Hour), true)

	rejected, err := f.delegations.Reject(f.ctx, company, d.ID, hr, "not covered")
	require.NoError(t, err)
	require.Equal(t, model.DelegationRejected, rejected.Status)
	require.Equal(t, "not covered", rejected.RejectionReason)

	_, err = f.delegations.Approve(f.ctx, company, d.ID, hr, "")
	require.ErrorIs(t, err, orgerr.ErrInvalidStateTransition)
	_, err = f.delegations.Revoke(f.ctx, company, d.ID, hr, "")
	require.ErrorIs(t, err, orgerr.ErrInvalidStateTransition)

	pending, err := f.delegations.PendingApprovals(f.ctx, company)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestRevokeRestoresOccupant(t *testing.T) {
	f, p, q := delegationSetup(t)
	d := f.delegate(t, p, q, t0, t0.Add(24*time.Hour), false)
	require.Equal(t, "bob", f.resolveNow(t, p.ID).UserID)

	f.clock.Advance(time.Hour)
	revoked, err := f.delegations.Revoke(f.ctx, company, d.ID, hr, "back early")
	require.NoError(t, err)
	require.Equal(t, model.DelegationRevoked, revoked.Status)
	require.Equal(t, "alice", f.resolveNow(t, p.ID).UserID)

	// 撤销前的时间点仍能看到授权
	before, err := f.resolution.Resolve(f.ctx, ResolveRequest{CompanyID: company, PositionID: p.ID, AsOf: t0.Add(30 * time.Minute)})
	require.NoError(t, err)
	require.Equal(t, "bob", before.UserID)

	_, err = f.delegations.Revoke(f.ctx, company, d.ID, hr, "twice")
	require.ErrorIs(t, err, orgerr.ErrInvalidStateTransition)
}

func TestRevokeRequiresActiveDelegation(t *testing.T) {
	f, p, q := delegationSetup(t)
	awaiting := f.delegate(t, p, q, t0, t0.Add(24*time.Hour), true)
	_, err := f.delegations.Revoke(f.ctx, company, awaiting.ID, hr, "")
	require.ErrorIs(t, err, orgerr.ErrInvalidStateTransition)

	_, err = f.delegations.Revoke(f.ctx, company, "missing", hr, "")
	require.ErrorIs(t, err, orgerr.ErrNotFound)
}

func TestDelegationEndsWhenDelegatorLeaves(t *testing.T) {
	f, p, q := delegationSetup(t)
	f.delegate(t, p, q, t0, t0.Add(72*time.Hour), false)

	history, err := f.assignments.HistoryOf(f.ctx, company, p.ID)
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	_, err = f.assignments.End(f.ctx, company, history[0].ID, time.Time{}, "resigned", hr)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	f.assign(t, p.ID, "dave")

	got := f.resolveNow(t, p.ID)
	require.Equal(t, "dave", got.UserID, "the successor does not inherit the delegation")
	require.False(t, got.IsDelegated)
}

func TestActiveDelegationsForIsPointInTime(t *testing.T) {
	f, p, q := delegationSetup(t)
	d := f.delegate(t, p, q, t0.Add(time.Hour), t0.Add(2*time.Hour), false)

	now, err := f.delegations.ActiveDelegationsFor(f.ctx, company, DelegationSubject{UserID: "bob"}, t0)
	require.NoError(t, err)
	require.Empty(t, now)

	later, err := f.delegations.ActiveDelegationsFor(f.ctx, company, DelegationSubject{UserID: "bob"}, t0.Add(90*time.Minute))
	require.NoError(t, err)
	require.Len(t, later, 1)
	require.Equal(t, d.ID, later[0].ID)
	require.Equal(t, model.DelegationActive, later[0].Status)

	byPosition, err := f.delegations.ActiveDelegationsFor(f.ctx, company, DelegationSubject{PositionID: q.ID}, t0.Add(90*time.Minute))
	require.NoError(t, err)
	require.Len(t, byPosition, 1)

	_, err = f.delegations.ActiveDelegationsFor(f.ctx, company, DelegationSubject{}, t0)
	require.ErrorIs(t, err, orgerr.ErrInvalidArgument)
}

func TestListByPositionShowsBothSides(t *testing.T) {
	f, p, q := delegationSetup(t)
	d := f.delegate(t, p, q, t0, t0.Add(time.Hour), false)

	for _, pos := range []*model.Position{p, q} {
		list, err := f.delegations.ListByPosition(f.ctx, company, pos.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, d.ID, list[0].ID)
	}

	f.clock.Advance(2 * time.Hour)
	list, err := f.delegations.ListByPosition(f.ctx, company, p.ID)
	require.NoError(t, err)
	require.Equal(t, model.DelegationExpired, list[0].Status)
}

func TestExpirySweeper(t *testing.T) {
	f, p, q := delegationSetup(t)
	r := f.position(t, "R", 1)
	f.assign(t, r.ID, "carol")
	short := f.delegate(t, p, q, t0, t0.Add(time.Hour), false)
	long := f.delegate(t, q, r, t0, t0.Add(48*time.Hour), false)

	f.clock.Advance(3 * time.Hour)
	sweeper := NewExpirySweeper(f.delegations, time.Minute, 1)
	n, err := sweeper.SweepOnce(f.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	stored, err := f.store.Delegations().FindByID(f.ctx, company, short.ID)
	require.NoError(t, err)
	require.Equal(t, model.DelegationExpired, stored.Status)
	stored, err = f.store.Delegations().FindByID(f.ctx, company, long.ID)
	require.NoError(t, err)
	require.Equal(t, model.DelegationActive, stored.Status)

	n, err = sweeper.SweepOnce(f.ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestExpirySweeperDisabled(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, NewExpirySweeper(f.delegations, 0, 10).Run(f.ctx))
}
