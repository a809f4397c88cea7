package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"org-authority-go/internal/model"
	"org-authority-go/internal/orgerr"
	"org-authority-go/pkg/database"
)

const company = "acme"

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func openSQLiteStore(t *testing.T) Store {
	t.Helper()
	db, err := database.Open("sqlite", "", filepath.Join(t.TempDir(), "org_authority_test.db"))
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(context.Background(), db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewGormStore(db)
}

func openMemoryStore(t *testing.T) Store {
	return NewMemoryStore()
}

// 两种实现必须满足同一套行为约定。
func TestStoreContract(t *testing.T) {
	impls := map[string]func(t *testing.T) Store{
		"gorm-sqlite": openSQLiteStore,
		"memory":      openMemoryStore,
	}
	for name, open := range impls {
		t.Run(name, func(t *testing.T) {
			t.Run("department codes are unique per tenant", func(t *testing.T) { testDepartmentCodes(t, open(t)) })
			t.Run("versioned update detects conflicts", func(t *testing.T) { testVersionConflict(t, open(t)) })
			t.Run("transaction rolls back on error", func(t *testing.T) { testTransactionRollback(t, open(t)) })
			t.Run("assignment queries", func(t *testing.T) { testAssignmentQueries(t, open(t)) })
			t.Run("delegation queries", func(t *testing.T) { testDelegationQueries(t, open(t)) })
			t.Run("audit range is inclusive", func(t *testing.T) { testAuditQueries(t, open(t)) })
			t.Run("swap requests", func(t *testing.T) { testSwapRequests(t, open(t)) })
			t.Run("not found", func(t *testing.T) { testNotFound(t, open(t)) })
		})
	}
}

func seedPosition(t *testing.T, s Store, id, code string) *model.Position {
	t.Helper()
	ctx := context.Background()
	if _, err := s.Departments().FindByID(ctx, company, "dept-1"); errors.Is(err, orgerr.ErrNotFound) {
		require.NoError(t, s.Departments().Create(ctx, &model.Department{
			ID: "dept-1", CompanyID: company, Name: "Production", Code: "PROD", Status: model.StatusActive, Version: 1, CreatedAt: base, UpdatedAt: base,
		}))
	}
	p := &model.Position{
		ID: id, CompanyID: company, DepartmentID: "dept-1", Title: id, Code: code, Level: 2, Headcount: 1,
		Scope:  model.PositionScope{Locations: []string{"plant-1"}},
		Skills: []string{"forklift"},
		Status: model.StatusActive, Version: 1, CreatedAt: base, UpdatedAt: base,
	}
	require.NoError(t, s.Positions().Create(ctx, p))
	return p
}

func testDepartmentCodes(t *testing.T, s Store) {
	ctx := context.Background()
	d := &model.Department{ID: "d1", CompanyID: company, Name: "Ops", Code: "OPS", Status: model.StatusActive, Version: 1, CreatedAt: base, UpdatedAt: base}
	require.NoError(t, s.Departments().Create(ctx, d))

	dup := &model.Department{ID: "d2", CompanyID: company, Name: "Ops 2", Code: "OPS", Status: model.StatusActive, Version: 1, CreatedAt: base, UpdatedAt: base}
	require.ErrorIs(t, s.Departments().Create(ctx, dup), orgerr.ErrDuplicateCode)

	other := &model.Department{ID: "d3", CompanyID: "globex", Name: "Ops", Code: "OPS", Status: model.StatusActive, Version: 1, CreatedAt: base, UpdatedAt: base}
	require.NoError(t, s.Departments().Create(ctx, other), "codes are scoped to the tenant")

	all, err := s.Departments().FindAll(ctx, company)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func testVersionConflict(t *testing.T, s Store) {
	ctx := context.Background()
	seedPosition(t, s, "p1", "P1")

	first, err := s.Positions().FindByID(ctx, company, "p1")
	require.NoError(t, err)
	second, err := s.Positions().FindByID(ctx, company, "p1")
	require.NoError(t, err)

	first.Headcount = 3
	require.NoError(t, s.Positions().Update(ctx, first))
	require.Equal(t, int64(2), first.Version)

	second.Title = "stale"
	err = s.Positions().Update(ctx, second)
	require.ErrorIs(t, err, orgerr.ErrConcurrentModification)
	require.Equal(t, int64(1), second.Version, "failed update keeps the caller's version")

	got, err := s.Positions().FindByID(ctx, company, "p1")
	require.NoError(t, err)
	require.Equal(t, 3, got.Headcount)
	require.Equal(t, "p1", got.Title)
	require.Equal(t, []string{"plant-1"}, got.Scope.Locations)
	require.Equal(t, []string{"forklift"}, got.Skills)
}

func testTransactionRollback(t *testing.T, s Store) {
	ctx := context.Background()
	seedPosition(t, s, "p1", "P1")
	boom := errors.New("boom")

	err := s.Transaction(ctx, func(tx Store) error {
		require.NoError(t, tx.Assignments().Create(ctx, &model.PositionAssignment{
			ID: "a1", CompanyID: company, PositionID: "p1", UserID: "u1", Type: model.AssignmentPermanent,
			StartAt: base, Status: model.AssignmentActive, Version: 1, CreatedAt: base, UpdatedAt: base,
		}))
		// visible inside the transaction
		_, err := tx.Assignments().FindByID(ctx, company, "a1")
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Assignments().FindByID(ctx, company, "a1")
	require.ErrorIs(t, err, orgerr.ErrNotFound)

	err = s.Transaction(ctx, func(tx Store) error {
		return orgerr.New(orgerr.ErrCapacityExceeded, "full")
	})
	require.ErrorIs(t, err, orgerr.ErrCapacityExceeded, "domain errors pass through unchanged")
}

func testAssignmentQueries(t *testing.T, s Store) {
	ctx := context.Background()
	seedPosition(t, s, "p1", "P1")

	end := base.Add(24 * time.Hour)
	records := []*model.PositionAssignment{
		{ID: "a2", PositionID: "p1", UserID: "u2", StartAt: end, Status: model.AssignmentActive},
		{ID: "a1", PositionID: "p1", UserID: "u1", StartAt: base, EndAt: &end, Status: model.AssignmentEnded},
		{ID: "a3", PositionID: "p2", UserID: "u1", StartAt: base, Status: model.AssignmentActive},
	}
	for _, a := range records {
		a.CompanyID = company
		a.Type = model.AssignmentPermanent
		a.Version = 1
		a.CreatedAt, a.UpdatedAt = base, base
		require.NoError(t, s.Assignments().Create(ctx, a))
	}

	history, err := s.Assignments().FindByPosition(ctx, company, "p1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "a1", history[0].ID)
	require.Equal(t, "a2", history[1].ID)
	require.NotNil(t, history[0].EndAt)
	require.True(t, history[0].EndAt.Equal(end))

	open, err := s.Assignments().FindOpenByPosition(ctx, company, "p1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, "a2", open[0].ID)

	byUser, err := s.Assignments().FindByUser(ctx, company, "u1")
	require.NoError(t, err)
	require.Len(t, byUser, 2)
}

func testDelegationQueries(t *testing.T, s Store) {
	ctx := context.Background()
	limit := 500.0
	mk := func(id, from, to string, status model.DelegationStatus, start, end time.Time) *model.Delegation {
		return &model.Delegation{
			ID: id, CompanyID: company, DelegatorUserID: "u-" + from, DelegatorPositionID: from,
			DelegateUserID: "u-" + to, DelegatePositionID: to,
			Scope:   model.DelegationScope{Type: model.ScopePartial, Departments: []string{"d1"}, BudgetLimit: &limit},
			StartAt: start, EndAt: end, Status: status, Version: 1, CreatedAt: base, UpdatedAt: base,
		}
	}
	require.NoError(t, s.Delegations().Create(ctx, mk("g1", "p", "q", model.DelegationActive, base, base.Add(time.Hour))))
	require.NoError(t, s.Delegations().Create(ctx, mk("g2", "p", "r", model.DelegationPending, base.Add(time.Hour), base.Add(48*time.Hour))))
	require.NoError(t, s.Delegations().Create(ctx, mk("g3", "q", "p", model.DelegationRevoked, base, base.Add(time.Hour))))

	fromP, err := s.Delegations().FindByDelegatorPosition(ctx, company, "p")
	require.NoError(t, err)
	require.Len(t, fromP, 2)
	require.Equal(t, "g1", fromP[0].ID)
	require.Equal(t, []string{"d1"}, fromP[0].Scope.Departments)
	require.Equal(t, 500.0, *fromP[0].Scope.BudgetLimit)

	toP, err := s.Delegations().FindByDelegatePosition(ctx, company, "p")
	require.NoError(t, err)
	require.Len(t, toP, 1)

	byUser, err := s.Delegations().FindByUser(ctx, company, "u-q")
	require.NoError(t, err)
	require.Len(t, byUser, 2)

	pending, err := s.Delegations().FindByStatus(ctx, company, model.DelegationPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	overdue, err := s.Delegations().FindOverdue(ctx, base.Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, overdue, 1, "revoked delegations are already terminal")
	require.Equal(t, "g1", overdue[0].ID)
}

func testAuditQueries(t *testing.T, s Store) {
	ctx := context.Background()
	for i, id := range []string{"l1", "l2", "l3"} {
		require.NoError(t, s.AuditLogs().Create(ctx, &model.OrgAuditLog{
			ID: id, CompanyID: company, EntityType: model.EntityPosition, EntityID: "p1", Action: model.ActionUpdate,
			Actor:     model.Actor{UserID: "admin", Name: "Admin"},
			Changes:   []model.FieldChange{model.Modified("title", "old", "new")},
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	inRange, err := s.AuditLogs().FindByTimeRange(ctx, company, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, inRange, 2)
	require.Equal(t, "l1", inRange[0].ID)
	require.Equal(t, "l2", inRange[1].ID)

	byEntity, err := s.AuditLogs().FindByEntity(ctx, company, model.EntityPosition, "p1")
	require.NoError(t, err)
	require.Len(t, byEntity, 3)
	require.Equal(t, "Admin", byEntity[0].Actor.Name)
	require.Equal(t, "title", byEntity[0].Changes[0].Field)
	require.Equal(t, "new", byEntity[0].Changes[0].NewValue)

	other, err := s.AuditLogs().FindByEntity(ctx, "globex", model.EntityPosition, "p1")
	require.NoError(t, err)
	require.Empty(t, other)
}

func testSwapRequests(t *testing.T, s Store) {
	ctx := context.Background()
	req := &model.OccupantSwapRequest{
		ID: "s1", CompanyID: company,
		SideA:          model.SwapSide{PositionID: "p1", CurrentUserID: "u1", CurrentAssignmentID: "a1"},
		SideB:          model.SwapSide{PositionID: "p2", CurrentUserID: "u2", CurrentAssignmentID: "a2"},
		EffectiveDate:  base,
		AssignmentType: model.AssignmentPermanent,
		Status:         model.SwapPending,
		Version:        1, CreatedAt: base, UpdatedAt: base,
	}
	require.NoError(t, s.SwapRequests().Create(ctx, req))

	got, err := s.SwapRequests().FindByID(ctx, company, "s1")
	require.NoError(t, err)
	require.Equal(t, "a2", got.SideB.CurrentAssignmentID)

	got.Status = model.SwapCompleted
	got.ReassignmentDetails = model.ReassignmentDetails{TasksMoved: 2, TotalMoved: 2, Errors: []string{"project x locked"}}
	require.NoError(t, s.SwapRequests().Update(ctx, got))

	completed, err := s.SwapRequests().FindByCompany(ctx, company, model.SwapCompleted)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	require.Equal(t, []string{"project x locked"}, completed[0].ReassignmentDetails.Errors)

	pending, err := s.SwapRequests().FindByCompany(ctx, company, model.SwapPending)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func testNotFound(t *testing.T, s Store) {
	ctx := context.Background()
	seedPosition(t, s, "p1", "P1")

	_, err := s.Positions().FindByID(ctx, "globex", "p1")
	require.ErrorIs(t, err, orgerr.ErrNotFound, "records are invisible to other tenants")
	_, err = s.Delegations().FindByID(ctx, company, "missing")
	require.ErrorIs(t, err, orgerr.ErrNotFound)
	_, err = s.SwapRequests().FindByIDForUpdate(ctx, company, "missing")
	require.ErrorIs(t, err, orgerr.ErrNotFound)
}
