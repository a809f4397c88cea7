package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"org-authority-go/internal/model"
	"org-authority-go/internal/repository"
	"org-authority-go/pkg/events"
	"org-authority-go/pkg/workitems"
)

const company = "acme"

var t0 = time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)

var hr = model.Actor{UserID: "hr-1", Name: "HR Admin", Email: "hr@acme.test"}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.OrgChangeEvent
	err    error
}

func (p *recordingPublisher) PublishOrgChange(_ context.Context, e events.OrgChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type fakeReassigner struct {
	mu     sync.Mutex
	calls  []string
	result workitems.Result
	err    error
}

func (f *fakeReassigner) ReassignOpenItems(_ context.Context, _, from, to, positionID string) (workitems.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, from+"->"+to+"@"+positionID)
	return f.result, f.err
}

// failingCache 模拟缓存后端故障。
type failingCache struct {
	repository.ResolutionCacheRepository
	failInvalidate bool
	failGet        bool
}

func (c *failingCache) Get(ctx context.Context, companyID, positionID string) (*model.EffectiveAssignment, error) {
	if c.failGet {
		return nil, errors.New("redis: connection refused")
	}
	return c.ResolutionCacheRepository.Get(ctx, companyID, positionID)
}

func (c *failingCache) Invalidate(ctx context.Context, companyID string, positionIDs ...string) error {
	if c.failInvalidate {
		return errors.New("redis: connection refused")
	}
	return c.ResolutionCacheRepository.Invalidate(ctx, companyID, positionIDs...)
}

type fixture struct {
	ctx         context.Context
	clock       *fakeClock
	store       *repository.MemoryStore
	cache       repository.ResolutionCacheRepository
	publisher   *recordingPublisher
	reassigner  *fakeReassigner
	audit       AuditService
	org         OrgService
	assignments AssignmentService
	delegations DelegationService
	resolution  ResolutionService
	swaps       SwapService
	dept        *model.Department
}

type fixtureOption func(f *fixture)

func withCache(wrap func(repository.ResolutionCacheRepository) repository.ResolutionCacheRepository) fixtureOption {
	return func(f *fixture) { f.cache = wrap(f.cache) }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	f := &fixture{
		ctx:        context.Background(),
		clock:      &fakeClock{now: t0},
		store:      repository.NewMemoryStore(),
		publisher:  &recordingPublisher{},
		reassigner: &fakeReassigner{},
	}
	f.cache = repository.NewMemoryResolutionCacheRepository(f.clock.Now)
	for _, opt := range opts {
		opt(f)
	}
	now := f.clock.Now
	f.audit = NewAuditService(f.store, f.publisher, nil, nil, now)
	f.org = NewOrgService(f.store, f.audit, now)
	f.assignments = NewAssignmentService(f.store, f.cache, f.audit, now)
	f.delegations = NewDelegationService(f.store, f.cache, f.audit, now)
	f.resolution = NewResolutionService(f.store, f.cache, f.delegations, ResolutionOptions{StalenessSLA: time.Minute, VacantTTL: 5 * time.Second}, now)
	f.swaps = NewSwapService(f.store, f.cache, f.audit, f.reassigner, now)

	dept, err := f.org.CreateDepartment(f.ctx, company, DepartmentInput{Name: "Production", Code: "PROD", Location: "plant-1"}, hr)
	require.NoError(t, err)
	f.dept = dept
	return f
}

func (f *fixture) position(t *testing.T, code string, headcount int) *model.Position {
	t.Helper()
	p, err := f.org.CreatePosition(f.ctx, company, PositionInput{
		DepartmentID: f.dept.ID,
		Title:        code,
		Code:         code,
		Level:        2,
		Headcount:    headcount,
	}, hr)
	require.NoError(t, err)
	return p
}

func (f *fixture) assign(t *testing.T, positionID, userID string) *model.PositionAssignment {
	t.Helper()
	a, err := f.assignments.Assign(f.ctx, AssignRequest{
		CompanyID:  company,
		PositionID: positionID,
		UserID:     userID,
		Type:       model.AssignmentPermanent,
		Actor:      hr,
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) resolveNow(t *testing.T, positionID string) *model.EffectiveAssignment {
	t.Helper()
	e, err := f.resolution.Resolve(f.ctx, ResolveRequest{CompanyID: company, PositionID: positionID})
	require.NoError(t, err)
	return e
}

func (f *fixture) auditFor(t *testing.T, entityType model.EntityType, entityID string) []model.OrgAuditLog {
	t.Helper()
	logs, err := f.audit.QueryByEntity(f.ctx, company, entityType, entityID)
	require.NoError(t, err)
	return logs
}

func actions(logs []model.OrgAuditLog) []model.AuditAction {
	out := make([]model.AuditAction, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.Action)
	}
	return out
}

func TestFieldChanges(t *testing.T) {
	before := model.Department{Name: "Ops", Code: "OPS", Version: 1}
	after := model.Department{Name: "Operations", Code: "OPS", Location: "plant-2", Version: 2}

	changes := fieldChanges(before, after, bookkeepingFields...)
	fields := map[string]model.FieldChange{}
	for _, c := range changes {
		fields[c.Field] = c
	}
	require.Len(t, changes, 2)
	require.Equal(t, "Ops", fields["name"].OldValue)
	require.Equal(t, "Operations", fields["name"].NewValue)
	require.Equal(t, "modified", fields["location"].Type)
	_, hasVersion := fields["version"]
	require.False(t, hasVersion)
}
