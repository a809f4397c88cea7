// Package service 包含了应用的业务逻辑层。
//
// 每个写操作都遵循同一个流程：在一个存储事务内完成读后写的校验与写入，
// 同一事务内追加审计日志；提交前失效受影响岗位的解析缓存（失败则整体回滚），
// 提交后再失效一次并把审计条目作为变更事件发布出去。
package service

import (
	"context"
	"encoding/json"
	"org-authority-go/internal/model"
	"org-authority-go/internal/orgerr"
	"org-authority-go/internal/repository"
	"org-authority-go/pkg/log"
	"org-authority-go/pkg/metrics"
	"reflect"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Clock 返回当前时间。测试中注入固定时钟。
type Clock func() time.Time

func newID() string {
	return uuid.NewString()
}

// writer 封装了事务、审计与缓存失效的公共流程。
type writer struct {
	store repository.Store
	cache repository.ResolutionCacheRepository
	audit AuditService
}

// changeSet 收集一次写操作中受影响的岗位与写入的审计日志。
type changeSet struct {
	ctx       context.Context
	tx        repository.Store
	audit     AuditService
	positions []string
	logs      []*model.OrgAuditLog
}

// touch 标记岗位的解析结果需要失效。
func (c *changeSet) touch(positionIDs ...string) {
	for _, id := range positionIDs {
		if id != "" && !slices.Contains(c.positions, id) {
			c.positions = append(c.positions, id)
		}
	}
}

// record 在当前事务内追加一条审计日志。
func (c *changeSet) record(entry AuditEntry) error {
	l, err := c.audit.RecordTx(c.ctx, c.tx, entry)
	if err != nil {
		return err
	}
	c.logs = append(c.logs, l)
	return nil
}

// run 在事务内执行 fn。reason 用作缓存失效指标的标签。
func (w *writer) run(ctx context.Context, companyID, reason string, fn func(tx repository.Store, cs *changeSet) error) error {
	var cs *changeSet
	err := w.store.Transaction(ctx, func(tx repository.Store) error {
		cs = &changeSet{ctx: ctx, tx: tx, audit: w.audit}
		if err := fn(tx, cs); err != nil {
			return err
		}
		return w.invalidate(ctx, companyID, reason, cs.positions)
	})
	if err != nil {
		return err
	}
	// 提交后再失效一次，覆盖事务进行期间并发解析写回的旧结果
	if err := w.invalidate(ctx, companyID, reason, cs.positions); err != nil {
		log.Warnw("post-commit resolution invalidation failed", "company", companyID, "positions", cs.positions, "error", err)
	}
	w.audit.Publish(ctx, cs.logs...)
	return nil
}

func (w *writer) invalidate(ctx context.Context, companyID, reason string, positionIDs []string) error {
	if w.cache == nil || len(positionIDs) == 0 {
		return nil
	}
	if err := w.cache.Invalidate(ctx, companyID, positionIDs...); err != nil {
		return orgerr.Unavailable(err)
	}
	metrics.RecordCacheInvalidate(reason)
	return nil
}

// occupantsAt 返回在时刻 t 有效的全部任职记录，按主次排序：
// 非代理优先，其次 startAt 较早者，最后按 id。
func occupantsAt(ctx context.Context, repo repository.AssignmentRepository, companyID, positionID string, t time.Time) ([]model.PositionAssignment, error) {
	history, err := repo.FindByPosition(ctx, companyID, positionID)
	if err != nil {
		return nil, err
	}
	return coveringAt(history, t), nil
}

func coveringAt(history []model.PositionAssignment, t time.Time) []model.PositionAssignment {
	var out []model.PositionAssignment
	for i := range history {
		if history[i].Covers(t) {
			out = append(out, history[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := out[i].Type == model.AssignmentActing, out[j].Type == model.AssignmentActing
		if ai != aj {
			return !ai
		}
		if !out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].StartAt.Before(out[j].StartAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// primaryOccupant 返回岗位在时刻 t 的主在岗记录，空缺时返回 nil。
func primaryOccupant(ctx context.Context, repo repository.AssignmentRepository, companyID, positionID string, t time.Time) (*model.PositionAssignment, error) {
	list, err := occupantsAt(ctx, repo, companyID, positionID, t)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

// fieldChanges 比较两个记录的 JSON 投影，生成字段级变更列表。
// skip 中的字段（版本号、更新时间等）不参与比较。
func fieldChanges(before, after any, skip ...string) []model.FieldChange {
	old, cur := jsonFields(before), jsonFields(after)
	keys := make([]string, 0, len(cur))
	for k := range cur {
		keys = append(keys, k)
	}
	for k := range old {
		if _, ok := cur[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var changes []model.FieldChange
	for _, k := range keys {
		if slices.Contains(skip, k) {
			continue
		}
		ov, inOld := old[k]
		nv, inNew := cur[k]
		switch {
		case !inOld:
			changes = append(changes, model.Added(k, nv))
		case !inNew:
			changes = append(changes, model.FieldChange{Field: k, OldValue: ov, Type: "removed"})
		case !reflect.DeepEqual(ov, nv):
			changes = append(changes, model.Modified(k, ov, nv))
		}
	}
	return changes
}

func jsonFields(v any) map[string]any {
	out := map[string]any{}
	data, err := json.Marshal(v)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(data, &out)
	return out
}

var bookkeepingFields = []string{"version", "updatedAt", "updatedBy", "createdAt", "createdBy"}

func positionRef(id, relationship string) model.RelatedEntity {
	return model.RelatedEntity{EntityType: model.EntityPosition, EntityID: id, RelationshipType: relationship}
}
