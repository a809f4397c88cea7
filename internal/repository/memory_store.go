package repository

import (
	"cmp"
	"context"
	"maps"
	"org-authority-go/internal/model"
	"org-authority-go/internal/orgerr"
	"org-authority-go/pkg/metrics"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStore 是 Store 的内存实现，用于单元测试和无数据库的本地运行。
// 事务持有全局锁并在状态副本上执行，提交时整体替换，因此事务之间是串行化的。
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
}

type memoryState struct {
	departments map[string]model.Department
	positions   map[string]model.Position
	assignments map[string]model.PositionAssignment
	delegations map[string]model.Delegation
	auditLogs   []model.OrgAuditLog
	swaps       map[string]model.OccupantSwapRequest
}

func newMemoryState() *memoryState {
	return &memoryState{
		departments: make(map[string]model.Department),
		positions:   make(map[string]model.Position),
		assignments: make(map[string]model.PositionAssignment),
		delegations: make(map[string]model.Delegation),
		swaps:       make(map[string]model.OccupantSwapRequest),
	}
}

// 存储的值从不原地修改，只整体替换，所以浅拷贝 map 即可得到独立快照。
func (s *memoryState) clone() *memoryState {
	return &memoryState{
		departments: maps.Clone(s.departments),
		positions:   maps.Clone(s.positions),
		assignments: maps.Clone(s.assignments),
		delegations: maps.Clone(s.delegations),
		auditLogs:   slices.Clone(s.auditLogs),
		swaps:       maps.Clone(s.swaps),
	}
}

// NewMemoryStore 创建一个空的内存 Store。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

func (m *MemoryStore) view() *memoryView {
	return &memoryView{root: m}
}

func (m *MemoryStore) Departments() DepartmentRepository   { return &memDepartments{m.view()} }
func (m *MemoryStore) Positions() PositionRepository       { return &memPositions{m.view()} }
func (m *MemoryStore) Assignments() AssignmentRepository   { return &memAssignments{m.view()} }
func (m *MemoryStore) Delegations() DelegationRepository   { return &memDelegations{m.view()} }
func (m *MemoryStore) AuditLogs() AuditLogRepository       { return &memAuditLogs{m.view()} }
func (m *MemoryStore) SwapRequests() SwapRequestRepository { return &memSwaps{m.view()} }

// Transaction 在状态副本上执行 fn，成功时提交副本。
func (m *MemoryStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if err := ctx.Err(); err != nil {
		return orgerr.Unavailable(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memoryTx{view: &memoryView{root: m, tx: m.state.clone()}}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = tx.view.tx
	return nil
}

// memoryTx 是事务内的 Store，直接读写副本，不再加锁。
type memoryTx struct {
	view *memoryView
}

func (t *memoryTx) Departments() DepartmentRepository   { return &memDepartments{t.view} }
func (t *memoryTx) Positions() PositionRepository       { return &memPositions{t.view} }
func (t *memoryTx) Assignments() AssignmentRepository   { return &memAssignments{t.view} }
func (t *memoryTx) Delegations() DelegationRepository   { return &memDelegations{t.view} }
func (t *memoryTx) AuditLogs() AuditLogRepository       { return &memAuditLogs{t.view} }
func (t *memoryTx) SwapRequests() SwapRequestRepository { return &memSwaps{t.view} }

// Transaction 在已有事务内直接执行 fn；失败时由外层事务整体回滚。
func (t *memoryTx) Transaction(_ context.Context, fn func(tx Store) error) error {
	return fn(t)
}

// memoryView 在事务外对每次访问加锁，在事务内直接访问副本。
type memoryView struct {
	root *MemoryStore
	tx   *memoryState
}

func (v *memoryView) do(ctx context.Context, fn func(st *memoryState) error) error {
	if err := ctx.Err(); err != nil {
		return orgerr.Unavailable(err)
	}
	if v.tx != nil {
		return fn(v.tx)
	}
	v.root.mu.Lock()
	defer v.root.mu.Unlock()
	return fn(v.root.state)
}

func conflict(kind, id string, expected int64) error {
	metrics.RecordWriteConflict(kind)
	return orgerr.New(orgerr.ErrConcurrentModification, "%s %s was modified concurrently (expected version %d)", kind, id, expected)
}

func sameCode(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func byStartAt[T any](startAt func(T) time.Time, id func(T) string) func(a, b T) int {
	return func(a, b T) int {
		if c := startAt(a).Compare(startAt(b)); c != 0 {
			return c
		}
		return cmp.Compare(id(a), id(b))
	}
}

// ---- departments ----

type memDepartments struct{ v *memoryView }

func (r *memDepartments) Create(ctx context.Context, d *model.Department) error {
	return r.v.do(ctx, func(st *memoryState) error {
		if _, ok := st.departments[d.ID]; ok {
			return orgerr.New(orgerr.ErrDuplicateCode, "department id %s already exists", d.ID)
		}
		for _, other := range st.departments {
			if other.CompanyID == d.CompanyID && sameCode(other.Code, d.Code) {
				return orgerr.New(orgerr.ErrDuplicateCode, "department code %q already exists", d.Code)
			}
		}
		if d.Version == 0 {
			d.Version = 1
		}
		st.departments[d.ID] = *d
		return nil
	})
}

func (r *memDepartments) FindByID(ctx context.Context, companyID, id string) (*model.Department, error) {
	var out *model.Department
	err := r.v.do(ctx, func(st *memoryState) error {
		d, ok := st.departments[id]
		if !ok || d.CompanyID != companyID {
			return orgerr.New(orgerr.ErrNotFound, "department %s", id)
		}
		out = &d
		return nil
	})
	return out, err
}

func (r *memDepartments) FindAll(ctx context.Context, companyID string) ([]model.Department, error) {
	var out []model.Department
	err := r.v.do(ctx, func(st *memoryState) error {
		for _, d := range st.departments {
			if d.CompanyID == companyID {
				out = append(out, d)
			}
		}
		slices.SortFunc(out, byStartAt(func(d model.Department) time.Time { return d.CreatedAt }, func(d model.Department) string { return d.ID }))
		return nil
	})
	return out, err
}

func (r *memDepartments) FindAllForUpdate(ctx context.Context, companyID string) ([]model.Department, error) {
	return r.FindAll(ctx, companyID)
}

func (r *memDepartments) Update(ctx context.Context, d *model.Department) error {
	return r.v.do(ctx, func(st *memoryState) error {
		cur, ok := st.departments[d.ID]
		if !ok || cur.CompanyID != d.CompanyID || cur.Version != d.Version {
			return conflict("department", d.ID, d.Version)
		}
		for _, other := range st.departments {
			if other.ID != d.ID && other.CompanyID == d.CompanyID && sameCode(other.Code, d.Code) {
				return orgerr.New(orgerr.ErrDuplicateCode, "department code %q already exists", d.Code)
			}
		}
		d.Version++
		st.departments[d.ID] = *d
		return nil
	})
}

// ---- positions ----

type memPositions struct{ v *memoryView }

func clonePosition(p model.Position) model.Position {
	p.Scope.Departments = slices.Clone(p.Scope.Departments)
	p.Scope.Locations = slices.Clone(p.Scope.Locations)
	p.Scope.Processes = slices.Clone(p.Scope.Processes)
	p.Scope.EquipmentTypes = slices.Clone(p.Scope.EquipmentTypes)
	p.Responsibilities = slices.Clone(p.Responsibilities)
	p.Skills = slices.Clone(p.Skills)
	p.Certifications = slices.Clone(p.Certifications)
	p.ApprovalAuthority.CustomApprovalTypes = slices.Clone(p.ApprovalAuthority.CustomApprovalTypes)
	return p
}

func (r *memPositions) Create(ctx context.Context, p *model.Position) error {
	return r.v.do(ctx, func(st *memoryState) error {
		if _, ok := st.positions[p.ID]; ok {
			return orgerr.New(orgerr.ErrDuplicateCode, "position id %s already exists", p.ID)
		}
		for _, other := range st.positions {
			if other.CompanyID == p.CompanyID && sameCode(other.Code, p.Code) {
				return orgerr.New(orgerr.ErrDuplicateCode, "position code %q already exists", p.Code)
			}
		}
		if p.Version == 0 {
			p.Version = 1
		}
		st.positions[p.ID] = clonePosition(*p)
		return nil
	})
}

func (r *memPositions) FindByID(ctx context.Context, companyID, id string) (*model.Position, error) {
	var out *model.Position
	err := r.v.do(ctx, func(st *memoryState) error {
		p, ok := st.positions[id]
		if !ok || p.CompanyID != companyID {
			return orgerr.New(orgerr.ErrNotFound, "position %s", id)
		}
		p = clonePosition(p)
		out = &p
		return nil
	})
	return out, err
}

func (r *memPositions) FindByIDForUpdate(ctx context.Context, companyID, id string) (*model.Position, error) {
	return r.FindByID(ctx, companyID, id)
}

func (r *memPositions) filter(ctx context.Context, keep func(model.Position) bool) ([]model.Position, error) {
	var out []model.Position
	err := r.v.do(ctx, func(st *memoryState) error {
		for _, p := range st.positions {
			if keep(p) {
				out = append(out, clonePosition(p))
			}
		}
		slices.SortFunc(out, byStartAt(func(p model.Position) time.Time { return p.CreatedAt }, func(p model.Position) string { return p.ID }))
		return nil
	})
	return out, err
}

func (r *memPositions) FindAll(ctx context.Context, companyID string) ([]model.Position, error) {
	return r.filter(ctx, func(p model.Position) bool { return p.CompanyID == companyID })
}

func (r *memPositions) FindAllForUpdate(ctx context.Context, companyID string) ([]model.Position, error) {
	return r.FindAll(ctx, companyID)
}

func (r *memPositions) FindByDepartment(ctx context.Context, companyID, departmentID string) ([]model.Position, error) {
	return r.filter(ctx, func(p model.Position) bool { return p.CompanyID == companyID && p.DepartmentID == departmentID })
}

func (r *memPositions) Update(ctx context.Context, p *model.Position) error {
	return r.v.do(ctx, func(st *memoryState) error {
		cur, ok := st.positions[p.ID]
		if !ok || cur.CompanyID != p.CompanyID || cur.Version != p.Version {
			return conflict("position", p.ID, p.Version)
		}
		for _, other := range st.positions {
			if other.ID != p.ID && other.CompanyID == p.CompanyID && sameCode(other.Code, p.Code) {
				return orgerr.New(orgerr.ErrDuplicateCode, "position code %q already exists", p.Code)
			}
		}
		p.Version++
		st.positions[p.ID] = clonePosition(*p)
		return nil
	})
}

// ---- assignments ----

type memAssignments struct{ v *memoryView }

var assignmentOrder = byStartAt(
	func(a model.PositionAssignment) time.Time { return a.StartAt },
	func(a model.PositionAssignment) string { return a.ID },
)

func (r *memAssignments) Create(ctx context.Context, a *model.PositionAssignment) error {
	return r.v.do(ctx, func(st *memoryState) error {
		if _, ok := st.assignments[a.ID]; ok {
			return orgerr.New(orgerr.ErrInvalidArgument, "assignment id %s already exists", a.ID)
		}
		if a.Version == 0 {
			a.Version = 1
		}
		st.assignments[a.ID] = *a
		return nil
	})
}

func (r *memAssignments) FindByID(ctx context.Context, companyID, id string) (*model.PositionAssignment, error) {
	var out *model.PositionAssignment
	err := r.v.do(ctx, func(st *memoryState) error {
		a, ok := st.assignments[id]
		if !ok || a.CompanyID != companyID {
			return orgerr.New(orgerr.ErrNotFound, "assignment %s", id)
		}
		out = &a
		return nil
	})
	return out, err
}

func (r *memAssignments) FindByIDForUpdate(ctx context.Context, companyID, id string) (*model.PositionAssignment, error) {
	return r.FindByID(ctx, companyID, id)
}

func (r *memAssignments) filter(ctx context.Context, keep func(model.PositionAssignment) bool) ([]model.PositionAssignment, error) {
	var out []model.PositionAssignment
	err := r.v.do(ctx, func(st *memoryState) error {
		for _, a := range st.assignments {
			if keep(a) {
				out = append(out, a)
			}
		}
		slices.SortFunc(out, assignmentOrder)
		return nil
	})
	return out, err
}

func (r *memAssignments) FindByPosition(ctx context.Context, companyID, positionID string) ([]model.PositionAssignment, error) {
	return r.filter(ctx, func(a model.PositionAssignment) bool {
		return a.CompanyID == companyID && a.PositionID == positionID
	})
}

func (r *memAssignments) FindOpenByPosition(ctx context.Context, companyID, positionID string) ([]model.PositionAssignment, error) {
	return r.filter(ctx, func(a model.PositionAssignment) bool {
		return a.CompanyID == companyID && a.PositionID == positionID && a.IsOpen()
	})
}

func (r *memAssignments) FindByUser(ctx context.Context, companyID, userID string) ([]model.PositionAssignment, error) {
	return r.filter(ctx, func(a model.PositionAssignment) bool {
		return a.CompanyID == companyID && a.UserID == userID
	})
}

func (r *memAssignments) Update(ctx context.Context, a *model.PositionAssignment) error {
	return r.v.do(ctx, func(st *memoryState) error {
		cur, ok := st.assignments[a.ID]
		if !ok || cur.CompanyID != a.CompanyID || cur.Version != a.Version {
			return conflict("assignment", a.ID, a.Version)
		}
		a.Version++
		st.assignments[a.ID] = *a
		return nil
	})
}

// ---- delegations ----

type memDelegations struct{ v *memoryView }

func cloneDelegation(d model.Delegation) model.Delegation {
	d.Scope.Departments = slices.Clone(d.Scope.Departments)
	d.Scope.Locations = slices.Clone(d.Scope.Locations)
	d.Scope.Processes = slices.Clone(d.Scope.Processes)
	d.Scope.ApprovalTypes = slices.Clone(d.Scope.ApprovalTypes)
	d.Scope.ProjectIDs = slices.Clone(d.Scope.ProjectIDs)
	d.Scope.TaskTypes = slices.Clone(d.Scope.TaskTypes)
	return d
}

var delegationOrder = byStartAt(
	func(d model.Delegation) time.Time { return d.StartAt },
	func(d model.Delegation) string { return d.ID },
)

func (r *memDelegations) Create(ctx context.Context, d *model.Delegation) error {
	return r.v.do(ctx, func(st *memoryState) error {
		if _, ok := st.delegations[d.ID]; ok {
			return orgerr.New(orgerr.ErrInvalidArgument, "delegation id %s already exists", d.ID)
		}
		if d.Version == 0 {
			d.Version = 1
		}
		st.delegations[d.ID] = cloneDelegation(*d)
		return nil
	})
}

func (r *memDelegations) FindByID(ctx context.Context, companyID, id string) (*model.Delegation, error) {
	var out *model.Delegation
	err := r.v.do(ctx, func(st *memoryState) error {
		d, ok := st.delegations[id]
		if !ok || d.CompanyID != companyID {
			return orgerr.New(orgerr.ErrNotFound, "delegation %s", id)
		}
		d = cloneDelegation(d)
		out = &d
		return nil
	})
	return out, err
}

func (r *memDelegations) FindByIDForUpdate(ctx context.Context, companyID, id string) (*model.Delegation, error) {
	return r.FindByID(ctx, companyID, id)
}

func (r *memDelegations) filter(ctx context.Context, keep func(model.Delegation) bool) ([]model.Delegation, error) {
	var out []model.Delegation
	err := r.v.do(ctx, func(st *memoryState) error {
		for _, d := range st.delegations {
			if keep(d) {
				out = append(out, cloneDelegation(d))
			}
		}
		slices.SortFunc(out, delegationOrder)
		return nil
	})
	return out, err
}

func (r *memDelegations) FindByDelegatorPosition(ctx context.Context, companyID, positionID string) ([]model.Delegation, error) {
	return r.filter(ctx, func(d model.Delegation) bool {
		return d.CompanyID == companyID && d.DelegatorPositionID == positionID
	})
}

func (r *memDelegations) FindByDelegatePosition(ctx context.Context, companyID, positionID string) ([]model.Delegation, error) {
	return r.filter(ctx, func(d model.Delegation) bool {
		return d.CompanyID == companyID && d.DelegatePositionID == positionID
	})
}

func (r *memDelegations) FindByUser(ctx context.Context, companyID, userID string) ([]model.Delegation, error) {
	return r.filter(ctx, func(d model.Delegation) bool {
		return d.CompanyID == companyID && (d.DelegatorUserID == userID || d.DelegateUserID == userID)
	})
}

func (r *memDelegations) FindByStatus(ctx context.Context, companyID string, status model.DelegationStatus) ([]model.Delegation, error) {
	return r.filter(ctx, func(d model.Delegation) bool {
		return d.CompanyID == companyID && d.Status == status
	})
}

func (r *memDelegations) FindOverdue(ctx context.Context, now time.Time, limit int) ([]model.Delegation, error) {
	out, err := r.filter(ctx, func(d model.Delegation) bool {
		return (d.Status == model.DelegationPending || d.Status == model.DelegationActive) && !d.EndAt.After(now)
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b model.Delegation) int {
		if c := a.EndAt.Compare(b.EndAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memDelegations) Update(ctx context.Context, d *model.Delegation) error {
	return r.v.do(ctx, func(st *memoryState) error {
		cur, ok := st.delegations[d.ID]
		if !ok || cur.CompanyID != d.CompanyID || cur.Version != d.Version {
			return conflict("delegation", d.ID, d.Version)
		}
		d.Version++
		st.delegations[d.ID] = cloneDelegation(*d)
		return nil
	})
}

// ---- audit logs ----

type memAuditLogs struct{ v *memoryView }

func (r *memAuditLogs) Create(ctx context.Context, l *model.OrgAuditLog) error {
	return r.v.do(ctx, func(st *memoryState) error {
		entry := *l
		entry.Changes = slices.Clone(l.Changes)
		entry.RelatedEntities = slices.Clone(l.RelatedEntities)
		entry.ApprovalChain = slices.Clone(l.ApprovalChain)
		st.auditLogs = append(st.auditLogs, entry)
		return nil
	})
}

func (r *memAuditLogs) filter(ctx context.Context, keep func(model.OrgAuditLog) bool) ([]model.OrgAuditLog, error) {
	var out []model.OrgAuditLog
	err := r.v.do(ctx, func(st *memoryState) error {
		for _, l := range st.auditLogs {
			if keep(l) {
				out = append(out, l)
			}
		}
		return nil
	})
	// 追加顺序即写入顺序，稳定排序保留同一时间戳内的先后。
	slices.SortStableFunc(out, func(a, b model.OrgAuditLog) int { return a.Timestamp.Compare(b.Timestamp) })
	return out, err
}

func (r *memAuditLogs) FindByEntity(ctx context.Context, companyID string, entityType model.EntityType, entityID string) ([]model.OrgAuditLog, error) {
	return r.filter(ctx, func(l model.OrgAuditLog) bool {
		return l.CompanyID == companyID && l.EntityType == entityType && l.EntityID == entityID
	})
}

func (r *memAuditLogs) FindByTimeRange(ctx context.Context, companyID string, from, to time.Time) ([]model.OrgAuditLog, error) {
	return r.filter(ctx, func(l model.OrgAuditLog) bool {
		return l.CompanyID == companyID && !l.Timestamp.Before(from) && !l.Timestamp.After(to)
	})
}

// ---- swap requests ----

type memSwaps struct{ v *memoryView }

func cloneSwap(s model.OccupantSwapRequest) model.OccupantSwapRequest {
	s.ReassignmentDetails.Errors = slices.Clone(s.ReassignmentDetails.Errors)
	return s
}

func (r *memSwaps) Create(ctx context.Context, s *model.OccupantSwapRequest) error {
	return r.v.do(ctx, func(st *memoryState) error {
		if _, ok := st.swaps[s.ID]; ok {
			return orgerr.New(orgerr.ErrInvalidArgument, "swap request id %s already exists", s.ID)
		}
		if s.Version == 0 {
			s.Version = 1
		}
		st.swaps[s.ID] = cloneSwap(*s)
		return nil
	})
}

func (r *memSwaps) FindByID(ctx context.Context, companyID, id string) (*model.OccupantSwapRequest, error) {
	var out *model.OccupantSwapRequest
	err := r.v.do(ctx, func(st *memoryState) error {
		s, ok := st.swaps[id]
		if !ok || s.CompanyID != companyID {
			return orgerr.New(orgerr.ErrNotFound, "swap request %s", id)
		}
		s = cloneSwap(s)
		out = &s
		return nil
	})
	return out, err
}

func (r *memSwaps) FindByIDForUpdate(ctx context.Context, companyID, id string) (*model.OccupantSwapRequest, error) {
	return r.FindByID(ctx, companyID, id)
}

func (r *memSwaps) FindByCompany(ctx context.Context, companyID string, status model.SwapStatus) ([]model.OccupantSwapRequest, error) {
	var out []model.OccupantSwapRequest
	err := r.v.do(ctx, func(st *memoryState) error {
		for _, s := range st.swaps {
			if s.CompanyID == companyID && (status == "" || s.Status == status) {
				out = append(out, cloneSwap(s))
			}
		}
		slices.SortFunc(out, byStartAt(
			func(s model.OccupantSwapRequest) time.Time { return s.CreatedAt },
			func(s model.OccupantSwapRequest) string { return s.ID },
		))
		return nil
	})
	return out, err
}

func (r *memSwaps) Update(ctx context.Context, s *model.OccupantSwapRequest) error {
	return r.v.do(ctx, func(st *memoryState) error {
		cur, ok := st.swaps[s.ID]
		if !ok || cur.CompanyID != s.CompanyID || cur.Version != s.Version {
			return conflict("swap_request", s.ID, s.Version)
		}
		s.Version++
		st.swaps[s.ID] = cloneSwap(*s)
		return nil
	})
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*memoryTx)(nil)
)

