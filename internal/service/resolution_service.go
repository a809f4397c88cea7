package service

import (
	"context"
	"org-authority-go/internal/model"
	"org-authority-go/internal/repository"
	"org-authority-go/pkg/log"
	"org-authority-go/pkg/metrics"
	"time"
)

// ResolveRequest 是一次解析请求。AsOf 为零值表示当前时刻。
type ResolveRequest struct {
	CompanyID  string
	PositionID string
	AsOf       time.Time
	// Query 为空时只有 all 范围的授权参与解析。
	Query *model.ScopeQuery
}

// ResolutionService 回答"谁在某一时刻实际行使岗位的权限"。
type ResolutionService interface {
	Resolve(ctx context.Context, req ResolveRequest) (*model.EffectiveAssignment, error)
	// Invalidate 删除岗位的缓存结果，供变更事件消费方和运维命令使用。
	Invalidate(ctx context.Context, companyID string, positionIDs ...string) error
}

// ResolutionOptions 控制缓存行为。
type ResolutionOptions struct {
	// StalenessSLA 是缓存结果允许的最大陈旧时间，同时是缓存 TTL 的上限。
	StalenessSLA time.Duration
	// VacantTTL 是空缺结果的缓存时间。
	VacantTTL time.Duration
}

// lazyExpirer 在读路径上持久化已过期授权的状态。
type lazyExpirer interface {
	settle(ctx context.Context, list []model.Delegation)
}

type resolutionService struct {
	store  repository.Store
	cache  repository.ResolutionCacheRepository
	expiry lazyExpirer
	opts   ResolutionOptions
	now    Clock
}

// NewResolutionService 创建一个新的 ResolutionService 实例。cache 为 nil 时每次都实时计算。
func NewResolutionService(store repository.Store, cache repository.ResolutionCacheRepository, delegations DelegationService, opts ResolutionOptions, now Clock) ResolutionService {
	if opts.StalenessSLA <= 0 {
		opts.StalenessSLA = 60 * time.Second
	}
	if opts.VacantTTL <= 0 || opts.VacantTTL > opts.StalenessSLA {
		opts.VacantTTL = min(5*time.Second, opts.StalenessSLA)
	}
	expiry, _ := delegations.(lazyExpirer)
	return &resolutionService{store: store, cache: cache, expiry: expiry, opts: opts, now: now}
}

func (s *resolutionService) Resolve(ctx context.Context, req ResolveRequest) (*model.EffectiveAssignment, error) {
	started := time.Now()
	now := s.now()
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = now
	}

	// 1. 只缓存"当前"的无上下文解析，历史查询与带范围的查询总是实时计算
	cacheable := s.cache != nil && req.Query.IsZero() &&
		!asOf.Before(now.Add(-s.opts.StalenessSLA)) && !asOf.After(now.Add(s.opts.StalenessSLA))
	if cacheable {
		hit, err := s.cache.Get(ctx, req.CompanyID, req.PositionID)
		metrics.RecordCacheRequest(hit != nil && err == nil && hit.ValidAt(asOf), err)
		if err != nil {
			log.Warnw("[ResolutionService] cache lookup failed, computing from store", "position", req.PositionID, "error", err)
		} else if hit != nil && hit.ValidAt(asOf) {
			hit.AsOf = asOf
			hit.UsedCache = true
			hit.LatencyMs = time.Since(started).Milliseconds()
			metrics.ObserveResolve("cache", time.Since(started))
			return hit, nil
		}
	}

	// 2. 未命中时从台账与授权实时计算
	result, err := s.compute(ctx, req.CompanyID, req.PositionID, asOf, req.Query)
	if err != nil {
		return nil, err
	}
	result.ResolvedAt = now
	result.LatencyMs = time.Since(started).Milliseconds()
	metrics.ObserveResolve("store", time.Since(started))

	// 3. 回写缓存，TTL 不超过 SLA 也不超过结果的有效期
	if cacheable {
		if ttl := s.ttlFor(result, now); ttl > 0 {
			if err := s.cache.Set(ctx, result, ttl); err != nil {
				log.Warnw("[ResolutionService] cache write failed", "position", req.PositionID, "error", err)
			}
		}
	}
	return result, nil
}

func (s *resolutionService) ttlFor(e *model.EffectiveAssignment, now time.Time) time.Duration {
	ttl := s.opts.StalenessSLA
	if e.Vacant {
		ttl = s.opts.VacantTTL
	}
	if e.ValidUntil != nil {
		ttl = min(ttl, e.ValidUntil.Sub(now))
	}
	return ttl
}

// compute 计算岗位在 asOf 时刻的有效责任人。
//
// 授权只在授权人当时仍在岗时生效；多个授权同时匹配时取最近批准的一条
// （未经审批的按创建时间）。结果的有效区间由相邻的已知变更点界定：
// 任职的开始与结束、授权的开始、结束、批准、撤销与驳回。
func (s *resolutionService) compute(ctx context.Context, companyID, positionID string, asOf time.Time, query *model.ScopeQuery) (*model.EffectiveAssignment, error) {
	if _, err := s.store.Positions().FindByID(ctx, companyID, positionID); err != nil {
		return nil, err
	}
	history, err := s.store.Assignments().FindByPosition(ctx, companyID, positionID)
	if err != nil {
		return nil, err
	}
	delegations, err := s.store.Delegations().FindByDelegatorPosition(ctx, companyID, positionID)
	if err != nil {
		return nil, err
	}
	if s.expiry != nil {
		s.expiry.settle(ctx, delegations)
	}

	w := window{at: asOf}
	for _, a := range history {
		if a.Status == model.AssignmentCancelled {
			continue
		}
		w.observe(a.StartAt)
		if a.EndAt != nil {
			w.observe(*a.EndAt)
		}
	}
	for _, d := range delegations {
		w.observe(d.StartAt)
		w.observe(d.EndAt)
		for _, t := range []*time.Time{d.ApprovedAt, d.RevokedAt, d.RejectedAt} {
			if t != nil {
				w.observe(*t)
			}
		}
	}

	result := &model.EffectiveAssignment{
		CompanyID:  companyID,
		PositionID: positionID,
		AsOf:       asOf,
		ValidFrom:  w.from,
		ValidUntil: w.until,
	}

	occupants := coveringAt(history, asOf)
	if len(occupants) == 0 {
		result.Vacant = true
		return result, nil
	}
	primary := occupants[0]
	result.UserID = primary.UserID
	result.AssignmentID = primary.ID

	var chosen *model.Delegation
	for i := range delegations {
		d := &delegations[i]
		if !d.ActiveAt(asOf) || !d.Scope.Matches(query) {
			continue
		}
		holder := -1
		for j := range occupants {
			if occupants[j].UserID == d.DelegatorUserID {
				holder = j
				break
			}
		}
		if holder < 0 {
			continue
		}
		if chosen == nil || takesPrecedence(d, chosen) {
			chosen = d
			result.AssignmentID = occupants[holder].ID
			result.OriginalUserID = occupants[holder].UserID
		}
	}
	if chosen != nil {
		result.UserID = chosen.DelegateUserID
		result.IsDelegated = true
		result.DelegationID = chosen.ID
	} else {
		result.AssignmentID = primary.ID
	}
	return result, nil
}

func takesPrecedence(a, b *model.Delegation) bool {
	if c := a.PrecedenceTime().Compare(b.PrecedenceTime()); c != 0 {
		return c > 0
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c > 0
	}
	return a.ID > b.ID
}

// window 收集 at 两侧最近的变更点。
type window struct {
	at    time.Time
	from  time.Time
	until *time.Time
}

func (w *window) observe(t time.Time) {
	if !t.After(w.at) {
		if t.After(w.from) {
			w.from = t
		}
		return
	}
	if w.until == nil || t.Before(*w.until) {
		tt := t
		w.until = &tt
	}
}

func (s *resolutionService) Invalidate(ctx context.Context, companyID string, positionIDs ...string) error {
	if s.cache == nil || len(positionIDs) == 0 {
		return nil
	}
	if err := s.cache.Invalidate(ctx, companyID, positionIDs...); err != nil {
		return err
	}
	metrics.RecordCacheInvalidate("event")
	return nil
}
