// Package orggraph holds one tenant's departments and positions as two independent
// forests (department parents and position reporting lines) and enforces their
// structural invariants at write time: unique codes, existing references and
// acyclic parent chains.
//
// A Graph is not safe for concurrent use. Services build one per operation from
// a consistent store snapshot.
package orggraph

import (
	"iter"
	"strings"

	"org-authority-go/internal/model"
	"org-authority-go/internal/orgerr"
)

// Graph is the in-memory org structure of a single company.
type Graph struct {
	companyID string

	depts     forest
	deptNodes []*model.Department
	deptCodes map[string]string

	positions forest
	posNodes  []*model.Position
	posCodes  map[string]string
}

// New returns an empty graph for companyID.
func New(companyID string) *Graph {
	return &Graph{
		companyID: companyID,
		depts:     newForest(),
		deptCodes: make(map[string]string),
		positions: newForest(),
		posCodes:  make(map[string]string),
	}
}

// Load builds a graph from persisted records in any order. Records that break an
// invariant (which the store should never contain) are reported as errors.
func Load(companyID string, departments []model.Department, positions []model.Position) (*Graph, error) {
	g := New(companyID)
	for i := range departments {
		d := &departments[i]
		if err := g.registerDepartment(d); err != nil {
			return nil, err
		}
	}
	for i := range departments {
		d := &departments[i]
		if d.ParentDepartmentID == nil {
			continue
		}
		idx, _ := g.depts.lookup(d.ID)
		p, ok := g.depts.lookup(*d.ParentDepartmentID)
		if !ok {
			return nil, orgerr.New(orgerr.ErrInvalidReference, "department %s references unknown parent %s", d.ID, *d.ParentDepartmentID)
		}
		if g.depts.createsCycle(idx, p) {
			return nil, orgerr.New(orgerr.ErrCycle, "department %s is its own ancestor", d.ID)
		}
		g.depts.setParent(idx, p)
	}
	for i := range positions {
		p := &positions[i]
		if _, ok := g.depts.lookup(p.DepartmentID); !ok {
			return nil, orgerr.New(orgerr.ErrInvalidReference, "position %s references unknown department %s", p.ID, p.DepartmentID)
		}
		if err := g.registerPosition(p); err != nil {
			return nil, err
		}
	}
	for i := range positions {
		p := &positions[i]
		if p.ReportsToPositionID == nil {
			continue
		}
		idx, _ := g.positions.lookup(p.ID)
		r, ok := g.positions.lookup(*p.ReportsToPositionID)
		if !ok {
			return nil, orgerr.New(orgerr.ErrInvalidReference, "position %s reports to unknown position %s", p.ID, *p.ReportsToPositionID)
		}
		if g.positions.createsCycle(idx, r) {
			return nil, orgerr.New(orgerr.ErrCycle, "position %s reports to itself", p.ID)
		}
		g.positions.setParent(idx, r)
	}
	return g, nil
}

func codeKey(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

func (g *Graph) checkTenant(companyID string) error {
	if companyID != g.companyID {
		return orgerr.New(orgerr.ErrInvalidArgument, "record belongs to company %q, graph to %q", companyID, g.companyID)
	}
	return nil
}

func (g *Graph) registerDepartment(d *model.Department) error {
	if err := g.checkTenant(d.CompanyID); err != nil {
		return err
	}
	if _, exists := g.depts.lookup(d.ID); exists {
		return orgerr.New(orgerr.ErrInvalidArgument, "department id %s already exists", d.ID)
	}
	key := codeKey(d.Code)
	if owner, taken := g.deptCodes[key]; taken {
		return orgerr.New(orgerr.ErrDuplicateCode, "department code %q is used by %s", d.Code, owner)
	}
	g.depts.add(d.ID)
	g.deptNodes = append(g.deptNodes, d)
	g.deptCodes[key] = d.ID
	return nil
}

func (g *Graph) registerPosition(p *model.Position) error {
	if err := g.checkTenant(p.CompanyID); err != nil {
		return err
	}
	if _, exists := g.positions.lookup(p.ID); exists {
		return orgerr.New(orgerr.ErrInvalidArgument, "position id %s already exists", p.ID)
	}
	key := codeKey(p.Code)
	if owner, taken := g.posCodes[key]; taken {
		return orgerr.New(orgerr.ErrDuplicateCode, "position code %q is used by %s", p.Code, owner)
	}
	g.positions.add(p.ID)
	g.posNodes = append(g.posNodes, p)
	g.posCodes[key] = p.ID
	return nil
}

// resolveDepartmentParent 校验父部门引用，返回父节点下标。
func (g *Graph) resolveDepartmentParent(self string, parentID *string) (int, error) {
	if parentID == nil {
		return noParent, nil
	}
	if *parentID == self {
		return noParent, orgerr.New(orgerr.ErrCycle, "department %s cannot be its own parent", self)
	}
	p, ok := g.depts.lookup(*parentID)
	if !ok {
		return noParent, orgerr.New(orgerr.ErrInvalidReference, "parent department %s does not exist", *parentID)
	}
	if g.deptNodes[p].Status == model.StatusArchived {
		return noParent, orgerr.New(orgerr.ErrInvalidReference, "parent department %s is archived", *parentID)
	}
	return p, nil
}

func (g *Graph) resolveReportsTo(self string, reportsTo *string) (int, error) {
	if reportsTo == nil {
		return noParent, nil
	}
	if *reportsTo == self {
		return noParent, orgerr.New(orgerr.ErrCycle, "position %s cannot report to itself", self)
	}
	r, ok := g.positions.lookup(*reportsTo)
	if !ok {
		return noParent, orgerr.New(orgerr.ErrInvalidReference, "reports-to position %s does not exist", *reportsTo)
	}
	if g.posNodes[r].Status == model.StatusArchived {
		return noParent, orgerr.New(orgerr.ErrInvalidReference, "reports-to position %s is archived", *reportsTo)
	}
	return r, nil
}

func (g *Graph) requireDepartment(id string) error {
	i, ok := g.depts.lookup(id)
	if !ok {
		return orgerr.New(orgerr.ErrInvalidReference, "department %s does not exist", id)
	}
	if g.deptNodes[i].Status == model.StatusArchived {
		return orgerr.New(orgerr.ErrInvalidReference, "department %s is archived", id)
	}
	return nil
}

// AddDepartment validates and inserts a new department.
func (g *Graph) AddDepartment(d *model.Department) error {
	p, err := g.resolveDepartmentParent(d.ID, d.ParentDepartmentID)
	if err != nil {
		return err
	}
	if err := g.registerDepartment(d); err != nil {
		return err
	}
	idx, _ := g.depts.lookup(d.ID)
	g.depts.setParent(idx, p)
	return nil
}

// UpdateDepartment replaces the stored department with d. Re-parenting re-runs the
// cycle check against the current forest.
func (g *Graph) UpdateDepartment(d *model.Department) error {
	idx, ok := g.depts.lookup(d.ID)
	if !ok {
		return orgerr.New(orgerr.ErrNotFound, "department %s", d.ID)
	}
	current := g.deptNodes[idx]
	if current.Status == model.StatusArchived {
		return orgerr.New(orgerr.ErrInvalidStateTransition, "department %s is archived", d.ID)
	}
	p, err := g.resolveDepartmentParent(d.ID, d.ParentDepartmentID)
	if err != nil {
		return err
	}
	if p != noParent && g.depts.createsCycle(idx, p) {
		return orgerr.New(orgerr.ErrCycle, "moving department %s under %s would create a cycle", d.ID, *d.ParentDepartmentID)
	}
	newKey, oldKey := codeKey(d.Code), codeKey(current.Code)
	if newKey != oldKey {
		if owner, taken := g.deptCodes[newKey]; taken {
			return orgerr.New(orgerr.ErrDuplicateCode, "department code %q is used by %s", d.Code, owner)
		}
		delete(g.deptCodes, oldKey)
		g.deptCodes[newKey] = d.ID
	}
	g.deptNodes[idx] = d
	g.depts.setParent(idx, p)
	return nil
}

// ArchiveDepartment marks the department archived. The node stays in the forest so
// history recorded against its id remains resolvable.
func (g *Graph) ArchiveDepartment(id string) (*model.Department, error) {
	idx, ok := g.depts.lookup(id)
	if !ok {
		return nil, orgerr.New(orgerr.ErrNotFound, "department %s", id)
	}
	d := g.deptNodes[idx]
	if d.Status == model.StatusArchived {
		return nil, orgerr.New(orgerr.ErrInvalidStateTransition, "department %s is already archived", id)
	}
	for c := range g.depts.descendants(idx) {
		if g.deptNodes[c].Status != model.StatusArchived {
			return nil, orgerr.New(orgerr.ErrInvalidStateTransition, "department %s still has sub-department %s", id, g.depts.ids[c])
		}
	}
	for _, p := range g.posNodes {
		if p.DepartmentID == id && p.Status != model.StatusArchived {
			return nil, orgerr.New(orgerr.ErrInvalidStateTransition, "department %s still has position %s", id, p.ID)
		}
	}
	d.Status = model.StatusArchived
	return d, nil
}

// AddPosition validates and inserts a new position.
func (g *Graph) AddPosition(p *model.Position) error {
	if err := g.requireDepartment(p.DepartmentID); err != nil {
		return err
	}
	r, err := g.resolveReportsTo(p.ID, p.ReportsToPositionID)
	if err != nil {
		return err
	}
	if err := g.registerPosition(p); err != nil {
		return err
	}
	idx, _ := g.positions.lookup(p.ID)
	g.positions.setParent(idx, r)
	return nil
}

// UpdatePosition replaces the stored position with p.
func (g *Graph) UpdatePosition(p *model.Position) error {
	idx, ok := g.positions.lookup(p.ID)
	if !ok {
		return orgerr.New(orgerr.ErrNotFound, "position %s", p.ID)
	}
	current := g.posNodes[idx]
	if current.Status == model.StatusArchived {
		return orgerr.New(orgerr.ErrInvalidStateTransition, "position %s is archived", p.ID)
	}
	if p.DepartmentID != current.DepartmentID {
		if err := g.requireDepartment(p.DepartmentID); err != nil {
			return err
		}
	}
	r, err := g.resolveReportsTo(p.ID, p.ReportsToPositionID)
	if err != nil {
		return err
	}
	if r != noParent && g.positions.createsCycle(idx, r) {
		return orgerr.New(orgerr.ErrCycle, "position %s reporting to %s would create a cycle", p.ID, *p.ReportsToPositionID)
	}
	newKey, oldKey := codeKey(p.Code), codeKey(current.Code)
	if newKey != oldKey {
		if owner, taken := g.posCodes[newKey]; taken {
			return orgerr.New(orgerr.ErrDuplicateCode, "position code %q is used by %s", p.Code, owner)
		}
		delete(g.posCodes, oldKey)
		g.posCodes[newKey] = p.ID
	}
	g.posNodes[idx] = p
	g.positions.setParent(idx, r)
	return nil
}

// ArchivePosition marks the position archived. Positions that others still report
// to cannot be archived.
func (g *Graph) ArchivePosition(id string) (*model.Position, error) {
	idx, ok := g.positions.lookup(id)
	if !ok {
		return nil, orgerr.New(orgerr.ErrNotFound, "position %s", id)
	}
	p := g.posNodes[idx]
	if p.Status == model.StatusArchived {
		return nil, orgerr.New(orgerr.ErrInvalidStateTransition, "position %s is already archived", id)
	}
	for _, c := range g.positions.children[idx] {
		if g.posNodes[c].Status != model.StatusArchived {
			return nil, orgerr.New(orgerr.ErrInvalidStateTransition, "position %s still has direct report %s", id, g.positions.ids[c])
		}
	}
	p.Status = model.StatusArchived
	return p, nil
}

// Department returns the department with id.
func (g *Graph) Department(id string) (*model.Department, bool) {
	i, ok := g.depts.lookup(id)
	if !ok {
		return nil, false
	}
	return g.deptNodes[i], true
}

// Position returns the position with id.
func (g *Graph) Position(id string) (*model.Position, bool) {
	i, ok := g.positions.lookup(id)
	if !ok {
		return nil, false
	}
	return g.posNodes[i], true
}

// AncestorsOf yields the reporting chain above positionID from the root down,
// excluding the position itself. Unknown ids yield nothing.
func (g *Graph) AncestorsOf(positionID string) iter.Seq[*model.Position] {
	return g.positionWalk(positionID, g.positions.ancestors)
}

// DescendantsOf yields every position reporting (directly or indirectly) to
// positionID in breadth-first order, excluding the position itself.
func (g *Graph) DescendantsOf(positionID string) iter.Seq[*model.Position] {
	return g.positionWalk(positionID, g.positions.descendants)
}

func (g *Graph) positionWalk(id string, walk func(int) iter.Seq[int]) iter.Seq[*model.Position] {
	return func(yield func(*model.Position) bool) {
		i, ok := g.positions.lookup(id)
		if !ok {
			return
		}
		for n := range walk(i) {
			if !yield(g.posNodes[n]) {
				return
			}
		}
	}
}

// DepartmentAncestorsOf yields the parent chain of departmentID from the root down.
func (g *Graph) DepartmentAncestorsOf(departmentID string) iter.Seq[*model.Department] {
	return g.departmentWalk(departmentID, g.depts.ancestors)
}

// DepartmentDescendantsOf yields all sub-departments of departmentID breadth-first.
func (g *Graph) DepartmentDescendantsOf(departmentID string) iter.Seq[*model.Department] {
	return g.departmentWalk(departmentID, g.depts.descendants)
}

func (g *Graph) departmentWalk(id string, walk func(int) iter.Seq[int]) iter.Seq[*model.Department] {
	return func(yield func(*model.Department) bool) {
		i, ok := g.depts.lookup(id)
		if !ok {
			return
		}
		for n := range walk(i) {
			if !yield(g.deptNodes[n]) {
				return
			}
		}
	}
}

// ScopeDepartments expands a position's authority to concrete department ids: its
// own department, every department listed in its scope, and all of their
// sub-departments. Archived departments are skipped.
func (g *Graph) ScopeDepartments(positionID string) []string {
	p, ok := g.Position(positionID)
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	visit := func(d *model.Department) {
		if seen[d.ID] || d.Status == model.StatusArchived {
			return
		}
		seen[d.ID] = true
		out = append(out, d.ID)
	}
	roots := append([]string{p.DepartmentID}, p.Scope.Departments...)
	for _, id := range roots {
		d, ok := g.Department(id)
		if !ok {
			continue
		}
		visit(d)
		for sub := range g.DepartmentDescendantsOf(id) {
			visit(sub)
		}
	}
	return out
}

// DepartmentTree returns the department forest as nested nodes, roots first in
// insertion order.
func (g *Graph) DepartmentTree() []*model.DepartmentNode {
	var build func(i int) *model.DepartmentNode
	build = func(i int) *model.DepartmentNode {
		d := g.deptNodes[i]
		node := &model.DepartmentNode{
			ID:                 d.ID,
			Name:               d.Name,
			Code:               d.Code,
			ParentDepartmentID: d.ParentDepartmentID,
			Status:             d.Status,
			Children:           []*model.DepartmentNode{},
		}
		for _, c := range g.depts.children[i] {
			node.Children = append(node.Children, build(c))
		}
		return node
	}
	tree := []*model.DepartmentNode{}
	for _, r := range g.depts.roots() {
		tree = append(tree, build(r))
	}
	return tree
}

// PositionTree returns the reporting forest as nested nodes.
func (g *Graph) PositionTree() []*model.PositionNode {
	var build func(i int) *model.PositionNode
	build = func(i int) *model.PositionNode {
		p := g.posNodes[i]
		node := &model.PositionNode{
			ID:                  p.ID,
			Title:               p.Title,
			Code:                p.Code,
			DepartmentID:        p.DepartmentID,
			Level:               p.Level,
			ReportsToPositionID: p.ReportsToPositionID,
			Status:              p.Status,
			Children:            []*model.PositionNode{},
		}
		for _, c := range g.positions.children[i] {
			node.Children = append(node.Children, build(c))
		}
		return node
	}
	tree := []*model.PositionNode{}
	for _, r := range g.positions.roots() {
		tree = append(tree, build(r))
	}
	return tree
}
