package service

import (
	"context"
	"iter"
	"org-authority-go/internal/model"
	"org-authority-go/internal/orgerr"
	"org-authority-go/internal/orggraph"
	"org-authority-go/internal/repository"
	"org-authority-go/pkg/log"
	"slices"
	"strings"
)

// DepartmentInput 是创建或更新部门时可由调用方设置的字段。
type DepartmentInput struct {
	Name               string          `json:"name"`
	Code               string          `json:"code"`
	ParentDepartmentID *string         `json:"parentDepartmentId"`
	Location           string          `json:"location"`
	CostCenter         string          `json:"costCenter"`
	Budget             *float64        `json:"budget"`
	Status             model.OrgStatus `json:"status"`
}

// PositionInput 是创建或更新岗位时可由调用方设置的字段。
type PositionInput struct {
	DepartmentID        string                  `json:"departmentId"`
	Title               string                  `json:"title"`
	Code                string                  `json:"code"`
	Level               int                     `json:"level"`
	Scope               model.PositionScope     `json:"scope"`
	Responsibilities    []string                `json:"responsibilities"`
	Skills              []string                `json:"skills"`
	Certifications      []string                `json:"certifications"`
	ReportsToPositionID *string                 `json:"reportsToPositionId"`
	EmploymentType      string                  `json:"employmentType"`
	Headcount           int                     `json:"headcount"`
	ApprovalAuthority   model.ApprovalAuthority `json:"approvalAuthority"`
	Status              model.OrgStatus         `json:"status"`
}

// OrgService 接口定义了部门与岗位结构的维护操作。
type OrgService interface {
	CreateDepartment(ctx context.Context, companyID string, in DepartmentInput, actor model.Actor) (*model.Department, error)
	UpdateDepartment(ctx context.Context, companyID, id string, in DepartmentInput, actor model.Actor) (*model.Department, error)
	ArchiveDepartment(ctx context.Context, companyID, id string, actor model.Actor) (*model.Department, error)
	GetDepartment(ctx context.Context, companyID, id string) (*model.Department, error)
	ListDepartments(ctx context.Context, companyID string) ([]model.Department, error)
	DepartmentTree(ctx context.Context, companyID string) ([]*model.DepartmentNode, error)

	CreatePosition(ctx context.Context, companyID string, in PositionInput, actor model.Actor) (*model.Position, error)
	UpdatePosition(ctx context.Context, companyID, id string, in PositionInput, actor model.Actor) (*model.Position, error)
	ArchivePosition(ctx context.Context, companyID, id string, actor model.Actor) (*model.Position, error)
	GetPosition(ctx context.Context, companyID, id string) (*model.Position, error)
	ListPositions(ctx context.Context, companyID, departmentID string) ([]model.Position, error)
	PositionTree(ctx context.Context, companyID string) ([]*model.PositionNode, error)

	// AncestorsOf 返回从汇报链顶端到直接上级的岗位序列。
	AncestorsOf(ctx context.Context, companyID, positionID string) ([]model.Position, error)
	// DescendantsOf 按层序返回全部下属岗位。
	DescendantsOf(ctx context.Context, companyID, positionID string) ([]model.Position, error)
}

type orgService struct {
	w   writer
	now Clock
}

// NewOrgService 创建一个新的 OrgService 实例。
func NewOrgService(store repository.Store, audit AuditService, now Clock) OrgService {
	return &orgService{w: writer{store: store, audit: audit}, now: now}
}

// loadGraph 读取租户的完整结构。forUpdate 为真时在事务内加锁，保证结构校验到提交前不失效。
func loadGraph(ctx context.Context, store repository.Store, companyID string, forUpdate bool) (*orggraph.Graph, error) {
	var (
		depts     []model.Department
		positions []model.Position
		err       error
	)
	if forUpdate {
		depts, err = store.Departments().FindAllForUpdate(ctx, companyID)
	} else {
		depts, err = store.Departments().FindAll(ctx, companyID)
	}
	if err != nil {
		return nil, err
	}
	if forUpdate {
		positions, err = store.Positions().FindAllForUpdate(ctx, companyID)
	} else {
		positions, err = store.Positions().FindAll(ctx, companyID)
	}
	if err != nil {
		return nil, err
	}
	return orggraph.Load(companyID, depts, positions)
}

func validateDepartmentInput(in DepartmentInput) error {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Code) == "" {
		return orgerr.New(orgerr.ErrInvalidArgument, "department name and code are required")
	}
	if in.Status != "" && in.Status != model.StatusActive && in.Status != model.StatusInactive {
		return orgerr.New(orgerr.ErrInvalidArgument, "department status must be active or inactive, use archive to archive")
	}
	return nil
}

func validatePositionInput(in PositionInput) error {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Code) == "" || in.DepartmentID == "" {
		return orgerr.New(orgerr.ErrInvalidArgument, "position title, code and departmentId are required")
	}
	if in.Headcount < 1 {
		return orgerr.New(orgerr.ErrInvalidArgument, "headcount must be at least 1")
	}
	if in.Level < 1 {
		return orgerr.New(orgerr.ErrInvalidArgument, "level must be at least 1")
	}
	if in.Status != "" && in.Status != model.StatusActive && in.Status != model.StatusInactive {
		return orgerr.New(orgerr.ErrInvalidArgument, "position status must be active or inactive, use archive to archive")
	}
	return nil
}

func statusOrActive(s model.OrgStatus) model.OrgStatus {
	if s == "" {
		return model.StatusActive
	}
	return s
}

// CreateDepartment 处理创建部门的逻辑。
func (s *orgService) CreateDepartment(ctx context.Context, companyID string, in DepartmentInput, actor model.Actor) (*model.Department, error) {
	if err := validateDepartmentInput(in); err != nil {
		return nil, err
	}
	now := s.now()
	d := &model.Department{
		ID:                 newID(),
		CompanyID:          companyID,
		Name:               in.Name,
		Code:               in.Code,
		ParentDepartmentID: in.ParentDepartmentID,
		Location:           in.Location,
		CostCenter:         in.CostCenter,
		Budget:             in.Budget,
		Status:             statusOrActive(in.Status),
		Version:            1,
		CreatedBy:          actor.UserID,
		UpdatedBy:          actor.UserID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	err := s.w.run(ctx, companyID, "department", func(tx repository.Store, cs *changeSet) error {
		// 1. 在加锁的结构快照上校验编码唯一与父链无环
		g, err := loadGraph(ctx, tx, companyID, true)
		if err != nil {
			return err
		}
		if err := g.AddDepartment(d); err != nil {
			return err
		}
		// 2. 持久化并记录审计
		if err := tx.Departments().Create(ctx, d); err != nil {
			return err
		}
		return cs.record(AuditEntry{
			CompanyID:  companyID,
			EntityType: model.EntityDepartment,
			EntityID:   d.ID,
			Action:     model.ActionCreate,
			Actor:      actor,
			Changes:    fieldChanges(struct{}{}, d, bookkeepingFields...),
		})
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[OrgService] department %s (%s) created in company %s", d.ID, d.Code, companyID)
	return d, nil
}

// UpdateDepartment 更新部门。重新挂接父部门时会重新做环检测。
func (s *orgService) UpdateDepartment(ctx context.Context, companyID, id string, in DepartmentInput, actor model.Actor) (*model.Department, error) {
	if err := validateDepartmentInput(in); err != nil {
		return nil, err
	}
	var updated *model.Department
	err := s.w.run(ctx, companyID, "department", func(tx repository.Store, cs *changeSet) error {
		g, err := loadGraph(ctx, tx, companyID, true)
		if err != nil {
			return err
		}
		current, ok := g.Department(id)
		if !ok {
			return orgerr.New(orgerr.ErrNotFound, "department %s", id)
		}
		before := *current
		next := before
		next.Name = in.Name
		next.Code = in.Code
		next.ParentDepartmentID = in.ParentDepartmentID
		next.Location = in.Location
		next.CostCenter = in.CostCenter
		next.Budget = in.Budget
		next.Status = statusOrActive(in.Status)
		next.UpdatedBy = actor.UserID
		next.UpdatedAt = s.now()
		if err := g.UpdateDepartment(&next); err != nil {
			return err
		}
		if err := tx.Departments().Update(ctx, &next); err != nil {
			return err
		}
		updated = &next
		return cs.record(AuditEntry{
			CompanyID:  companyID,
			EntityType: model.EntityDepartment,
			EntityID:   id,
			Action:     model.ActionUpdate,
			Actor:      actor,
			Changes:    fieldChanges(before, next, bookkeepingFields...),
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ArchiveDepartment 把部门标记为归档。仍有未归档的下级部门或岗位时拒绝。
func (s *orgService) ArchiveDepartment(ctx context.Context, companyID, id string, actor model.Actor) (*model.Department, error) {
	var archived *model.Department
	err := s.w.run(ctx, companyID, "department", func(tx repository.Store, cs *changeSet) error {
		g, err := loadGraph(ctx, tx, companyID, true)
		if err != nil {
			return err
		}
		current, ok := g.Department(id)
		if !ok {
			return orgerr.New(orgerr.ErrNotFound, "department %s", id)
		}
		before := *current
		d, err := g.ArchiveDepartment(id)
		if err != nil {
			return err
		}
		next := *d
		now := s.now()
		next.ArchivedAt = &now
		next.UpdatedAt = now
		next.UpdatedBy = actor.UserID
		if err := tx.Departments().Update(ctx, &next); err != nil {
			return err
		}
		archived = &next
		return cs.record(AuditEntry{
			CompanyID:  companyID,
			EntityType: model.EntityDepartment,
			EntityID:   id,
			Action:     model.ActionDelete,
			Actor:      actor,
			Changes:    fieldChanges(before, next, bookkeepingFields...),
		})
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[OrgService] department %s archived in company %s", id, companyID)
	return archived, nil
}

func (s *orgService) GetDepartment(ctx context.Context, companyID, id string) (*model.Department, error) {
	return s.w.store.Departments().FindByID(ctx, companyID, id)
}

func (s *orgService) ListDepartments(ctx context.Context, companyID string) ([]model.Department, error) {
	return s.w.store.Departments().FindAll(ctx, companyID)
}

// DepartmentTree 返回部门森林的树形视图。
func (s *orgService) DepartmentTree(ctx context.Context, companyID string) ([]*model.DepartmentNode, error) {
	g, err := loadGraph(ctx, s.w.store, companyID, false)
	if err != nil {
		return nil, err
	}
	return g.DepartmentTree(), nil
}

// CreatePosition 处理创建岗位的逻辑。
func (s *orgService) CreatePosition(ctx context.Context, companyID string, in PositionInput, actor model.Actor) (*model.Position, error) {
	if err := validatePositionInput(in); err != nil {
		return nil, err
	}
	now := s.now()
	p := &model.Position{
		ID:        newID(),
		CompanyID: companyID,
		Version:   1,
		CreatedBy: actor.UserID,
		CreatedAt: now,
	}
	applyPositionInput(p, in, actor)
	p.UpdatedAt = now
	err := s.w.run(ctx, companyID, "position", func(tx repository.Store, cs *changeSet) error {
		g, err := loadGraph(ctx, tx, companyID, true)
		if err != nil {
			return err
		}
		if err := g.AddPosition(p); err != nil {
			return err
		}
		if err := tx.Positions().Create(ctx, p); err != nil {
			return err
		}
		return cs.record(AuditEntry{
			CompanyID:  companyID,
			EntityType: model.EntityPosition,
			EntityID:   p.ID,
			Action:     model.ActionCreate,
			Actor:      actor,
			Changes:    fieldChanges(struct{}{}, p, bookkeepingFields...),
		})
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[OrgService] position %s (%s) created in company %s", p.ID, p.Code, companyID)
	return p, nil
}

func applyPositionInput(p *model.Position, in PositionInput, actor model.Actor) {
	p.DepartmentID = in.DepartmentID
	p.Title = in.Title
	p.Code = in.Code
	p.Level = in.Level
	p.Scope = in.Scope
	p.Responsibilities = in.Responsibilities
	p.Skills = in.Skills
	p.Certifications = in.Certifications
	p.ReportsToPositionID = in.ReportsToPositionID
	p.EmploymentType = in.EmploymentType
	p.Headcount = in.Headcount
	p.ApprovalAuthority = in.ApprovalAuthority
	p.Status = statusOrActive(in.Status)
	p.UpdatedBy = actor.UserID
}

// UpdatePosition 更新岗位。编制不能低于当前在任人数。
func (s *orgService) UpdatePosition(ctx context.Context, companyID, id string, in PositionInput, actor model.Actor) (*model.Position, error) {
	if err := validatePositionInput(in); err != nil {
		return nil, err
	}
	var updated *model.Position
	err := s.w.run(ctx, companyID, "position", func(tx repository.Store, cs *changeSet) error {
		g, err := loadGraph(ctx, tx, companyID, true)
		if err != nil {
			return err
		}
		current, ok := g.Position(id)
		if !ok {
			return orgerr.New(orgerr.ErrNotFound, "position %s", id)
		}
		before := *current
		next := before
		applyPositionInput(&next, in, actor)
		next.UpdatedAt = s.now()
		if next.Headcount < before.Headcount {
			open, err := tx.Assignments().FindOpenByPosition(ctx, companyID, id)
			if err != nil {
				return err
			}
			if n := countSlotHolders(open); n > next.Headcount {
				return orgerr.New(orgerr.ErrCapacityExceeded, "position %s has %d active occupants, headcount %d is too low", id, n, next.Headcount)
			}
		}
		if err := g.UpdatePosition(&next); err != nil {
			return err
		}
		if err := tx.Positions().Update(ctx, &next); err != nil {
			return err
		}
		updated = &next
		return cs.record(AuditEntry{
			CompanyID:  companyID,
			EntityType: model.EntityPosition,
			EntityID:   id,
			Action:     model.ActionUpdate,
			Actor:      actor,
			Changes:    fieldChanges(before, next, bookkeepingFields...),
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ArchivePosition 把岗位标记为归档。仍有直接下属或在任人员时拒绝。
func (s *orgService) ArchivePosition(ctx context.Context, companyID, id string, actor model.Actor) (*model.Position, error) {
	var archived *model.Position
	err := s.w.run(ctx, companyID, "position", func(tx repository.Store, cs *changeSet) error {
		g, err := loadGraph(ctx, tx, companyID, true)
		if err != nil {
			return err
		}
		current, ok := g.Position(id)
		if !ok {
			return orgerr.New(orgerr.ErrNotFound, "position %s", id)
		}
		before := *current
		open, err := tx.Assignments().FindOpenByPosition(ctx, companyID, id)
		if err != nil {
			return err
		}
		if len(open) > 0 {
			return orgerr.New(orgerr.ErrInvalidStateTransition, "position %s still has %d open assignments", id, len(open))
		}
		p, err := g.ArchivePosition(id)
		if err != nil {
			return err
		}
		next := *p
		now := s.now()
		next.ArchivedAt = &now
		next.UpdatedAt = now
		next.UpdatedBy = actor.UserID
		if err := tx.Positions().Update(ctx, &next); err != nil {
			return err
		}
		archived = &next
		cs.touch(id)
		return cs.record(AuditEntry{
			CompanyID:  companyID,
			EntityType: model.EntityPosition,
			EntityID:   id,
			Action:     model.ActionDelete,
			Actor:      actor,
			Changes:    fieldChanges(before, next, bookkeepingFields...),
		})
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[OrgService] position %s archived in company %s", id, companyID)
	return archived, nil
}

func (s *orgService) GetPosition(ctx context.Context, companyID, id string) (*model.Position, error) {
	return s.w.store.Positions().FindByID(ctx, companyID, id)
}

// ListPositions 返回租户的岗位，departmentID 非空时只返回该部门的岗位。
func (s *orgService) ListPositions(ctx context.Context, companyID, departmentID string) ([]model.Position, error) {
	if departmentID != "" {
		return s.w.store.Positions().FindByDepartment(ctx, companyID, departmentID)
	}
	return s.w.store.Positions().FindAll(ctx, companyID)
}

func (s *orgService) PositionTree(ctx context.Context, companyID string) ([]*model.PositionNode, error) {
	g, err := loadGraph(ctx, s.w.store, companyID, false)
	if err != nil {
		return nil, err
	}
	return g.PositionTree(), nil
}

func (s *orgService) AncestorsOf(ctx context.Context, companyID, positionID string) ([]model.Position, error) {
	g, err := s.graphWith(ctx, companyID, positionID)
	if err != nil {
		return nil, err
	}
	return collectPositions(g.AncestorsOf(positionID)), nil
}

func (s *orgService) DescendantsOf(ctx context.Context, companyID, positionID string) ([]model.Position, error) {
	g, err := s.graphWith(ctx, companyID, positionID)
	if err != nil {
		return nil, err
	}
	return collectPositions(g.DescendantsOf(positionID)), nil
}

func (s *orgService) graphWith(ctx context.Context, companyID, positionID string) (*orggraph.Graph, error) {
	g, err := loadGraph(ctx, s.w.store, companyID, false)
	if err != nil {
		return nil, err
	}
	if _, ok := g.Position(positionID); !ok {
		return nil, orgerr.New(orgerr.ErrNotFound, "position %s", positionID)
	}
	return g, nil
}

func collectPositions(seq iter.Seq[*model.Position]) []model.Position {
	out := []model.Position{}
	for p := range seq {
		out = append(out, *p)
	}
	return out
}

// countSlotHolders 统计占用编制的在任记录，代理任职不占编制。
func countSlotHolders(open []model.PositionAssignment) int {
	return len(slices.DeleteFunc(slices.Clone(open), func(a model.PositionAssignment) bool {
		return a.Type == model.AssignmentActing
	}))
}
