package service

import (
	"context"
	"errors"
	"org-authority-go/internal/model"
	"org-authority-go/internal/orgerr"
	"org-authority-go/internal/repository"
	"org-authority-go/pkg/log"
	"org-authority-go/pkg/metrics"
	"slices"
	"time"
)

// CreateDelegationRequest 是发起授权的请求。
// DelegatorUserID/DelegateUserID 可选，为空时取对应岗位当前的主在岗人。
type CreateDelegationRequest struct {
	CompanyID           string                `json:"-"`
	DelegatorPositionID string                `json:"delegatorPositionId"`
	DelegatorUserID     string                `json:"delegatorUserId"`
	DelegatePositionID  string                `json:"delegatePositionId"`
	DelegateUserID      string                `json:"delegateUserId"`
	Scope               model.DelegationScope `json:"scope"`
	StartAt             time.Time             `json:"startAt"`
	EndAt               time.Time             `json:"endAt"`
	Reason              string                `json:"reason"`
	Notes               string                `json:"notes"`
	RequiresApproval    bool                  `json:"requiresApproval"`
	Actor               model.Actor           `json:"-"`
}

// DelegationSubject 指定查询授权的对象：用户或岗位，二选一。
type DelegationSubject struct {
	UserID     string
	PositionID string
}

// DelegationService 接口定义了授权引擎的操作。
type DelegationService interface {
	Create(ctx context.Context, req CreateDelegationRequest) (*model.Delegation, error)
	Approve(ctx context.Context, companyID, id string, approver model.Actor, comment string) (*model.Delegation, error)
	Reject(ctx context.Context, companyID, id string, approver model.Actor, reason string) (*model.Delegation, error)
	Revoke(ctx context.Context, companyID, id string, revoker model.Actor, reason string) (*model.Delegation, error)
	Get(ctx context.Context, companyID, id string) (*model.Delegation, error)
	// ListByPosition 返回岗位作为授权方或被授权方的全部授权。
	ListByPosition(ctx context.Context, companyID, positionID string) ([]model.Delegation, error)
	PendingApprovals(ctx context.Context, companyID string) ([]model.Delegation, error)
	// ActiveDelegationsFor 返回在 asOf 时刻生效的授权，按时间点推算状态而不依赖持久化状态。
	ActiveDelegationsFor(ctx context.Context, companyID string, subject DelegationSubject, asOf time.Time) ([]model.Delegation, error)
	// ExpireOverdue 持久化已过期授权的状态，返回处理的数量。limit 不大于 0 时使用默认批量。
	ExpireOverdue(ctx context.Context, limit int) (int, error)
}

type delegationService struct {
	w   writer
	now Clock
}

// NewDelegationService 创建一个新的 DelegationService 实例。
func NewDelegationService(store repository.Store, cache repository.ResolutionCacheRepository, audit AuditService, now Clock) DelegationService {
	return &delegationService{w: writer{store: store, cache: cache, audit: audit}, now: now}
}

// Create 发起授权。窗口校验先于任何读取。
func (s *delegationService) Create(ctx context.Context, req CreateDelegationRequest) (*model.Delegation, error) {
	if !req.EndAt.After(req.StartAt) {
		return nil, orgerr.New(orgerr.ErrInvalidWindow, "delegation must end after it starts")
	}
	if req.Scope.Type == "" {
		req.Scope.Type = model.ScopeAll
	}
	switch req.Scope.Type {
	case model.ScopeAll, model.ScopePartial, model.ScopeSpecific:
	default:
		return nil, orgerr.New(orgerr.ErrInvalidArgument, "unknown scope type %q", req.Scope.Type)
	}
	if req.DelegatorPositionID == "" || req.DelegatePositionID == "" {
		return nil, orgerr.New(orgerr.ErrInvalidArgument, "delegator and delegate positions are required")
	}
	if req.DelegatorPositionID == req.DelegatePositionID {
		return nil, orgerr.New(orgerr.ErrInvalidArgument, "a position cannot delegate to itself")
	}

	now := s.now()
	d := &model.Delegation{
		ID:                  newID(),
		CompanyID:           req.CompanyID,
		DelegatorPositionID: req.DelegatorPositionID,
		DelegatePositionID:  req.DelegatePositionID,
		Scope:               req.Scope,
		StartAt:             req.StartAt,
		EndAt:               req.EndAt,
		RequiresApproval:    req.RequiresApproval,
		Reason:              req.Reason,
		Notes:               req.Notes,
		CreatedBy:           req.Actor.UserID,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if !req.RequiresApproval && !req.StartAt.After(now) {
		d.Status = model.DelegationActive
	} else {
		d.Status = model.DelegationPending
	}

	err := s.w.run(ctx, req.CompanyID, "delegation", func(tx repository.Store, cs *changeSet) error {
		// 1. 双方岗位必须存在且当前有人在岗
		var err error
		if d.DelegatorUserID, err = currentHolder(ctx, tx, req.CompanyID, req.DelegatorPositionID, req.DelegatorUserID, now); err != nil {
			return err
		}
		if d.DelegateUserID, err = currentHolder(ctx, tx, req.CompanyID, req.DelegatePositionID, req.DelegateUserID, now); err != nil {
			return err
		}

		// 2. 同一授权岗位的 all 范围授权不能在时间上重叠
		if d.Scope.Type == model.ScopeAll {
			existing, err := tx.Delegations().FindByDelegatorPosition(ctx, req.CompanyID, req.DelegatorPositionID)
			if err != nil {
				return err
			}
			for i := range existing {
				e := &existing[i]
				if e.Scope.Type != model.ScopeAll {
					continue
				}
				if st := e.StatusAt(now); st != model.DelegationPending && st != model.DelegationActive {
					continue
				}
				if e.Overlaps(d.StartAt, d.EndAt) {
					return orgerr.New(orgerr.ErrDelegationOverlap, "position %s already delegates all authority in an overlapping window (delegation %s)", req.DelegatorPositionID, e.ID)
				}
			}
		}

		if err := tx.Delegations().Create(ctx, d); err != nil {
			return err
		}
		cs.touch(d.DelegatorPositionID)
		return cs.record(AuditEntry{
			CompanyID:  d.CompanyID,
			EntityType: model.EntityDelegation,
			EntityID:   d.ID,
			Action:     model.ActionCreate,
			Actor:      req.Actor,
			Changes: []model.FieldChange{
				model.Added("delegatorUserId", d.DelegatorUserID),
				model.Added("delegateUserId", d.DelegateUserID),
				model.Added("scope", d.Scope),
				model.Added("startAt", d.StartAt),
				model.Added("endAt", d.EndAt),
				model.Added("status", d.Status),
			},
			Reason: d.Reason,
			Notes:  d.Notes,
			RelatedEntities: []model.RelatedEntity{
				positionRef(d.DelegatorPositionID, "delegator"),
				positionRef(d.DelegatePositionID, "delegate"),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[DelegationService] delegation %s created: position %s -> %s, status %s", d.ID, d.DelegatorPositionID, d.DelegatePositionID, d.Status)
	return d, nil
}

// currentHolder 返回岗位在 now 的在岗人。userID 非空时它必须是在岗人之一。
func currentHolder(ctx context.Context, tx repository.Store, companyID, positionID, userID string, now time.Time) (string, error) {
	if _, err := tx.Positions().FindByID(ctx, companyID, positionID); err != nil {
		return "", err
	}
	occupants, err := occupantsAt(ctx, tx.Assignments(), companyID, positionID, now)
	if err != nil {
		return "", err
	}
	if len(occupants) == 0 {
		return "", orgerr.New(orgerr.ErrNoActiveOccupant, "position %s is vacant", positionID)
	}
	if userID == "" {
		return occupants[0].UserID, nil
	}
	for _, o := range occupants {
		if o.UserID == userID {
			return userID, nil
		}
	}
	return "", orgerr.New(orgerr.ErrNoActiveOccupant, "user %s does not occupy position %s", userID, positionID)
}

// transition 在事务内加载授权并执行状态变更。
func (s *delegationService) transition(ctx context.Context, companyID, id string, mutate func(d *model.Delegation, now time.Time) (AuditEntry, error)) (*model.Delegation, error) {
	var out *model.Delegation
	err := s.w.run(ctx, companyID, "delegation", func(tx repository.Store, cs *changeSet) error {
		d, err := tx.Delegations().FindByIDForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		now := s.now()
		entry, err := mutate(d, now)
		if err != nil {
			return err
		}
		d.UpdatedAt = now
		if err := tx.Delegations().Update(ctx, d); err != nil {
			return err
		}
		out = d
		cs.touch(d.DelegatorPositionID)
		entry.CompanyID = companyID
		entry.EntityType = model.EntityDelegation
		entry.EntityID = d.ID
		entry.RelatedEntities = []model.RelatedEntity{
			positionRef(d.DelegatorPositionID, "delegator"),
			positionRef(d.DelegatePositionID, "delegate"),
		}
		return cs.record(entry)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Approve 批准一条待审批的授权。
func (s *delegationService) Approve(ctx context.Context, companyID, id string, approver model.Actor, comment string) (*model.Delegation, error) {
	d, err := s.transition(ctx, companyID, id, func(d *model.Delegation, now time.Time) (AuditEntry, error) {
		if d.Status != model.DelegationPending || !d.RequiresApproval {
			return AuditEntry{}, orgerr.New(orgerr.ErrInvalidStateTransition, "delegation %s is %s and cannot be approved", d.ID, d.Status)
		}
		if !now.Before(d.EndAt) {
			return AuditEntry{}, orgerr.New(orgerr.ErrInvalidStateTransition, "delegation %s has expired", d.ID)
		}
		d.Status = model.DelegationActive
		d.ApprovedBy = &approver.UserID
		d.ApprovedAt = &now
		return AuditEntry{
			Action:  model.ActionApprove,
			Actor:   approver,
			Changes: []model.FieldChange{model.Modified("status", model.DelegationPending, model.DelegationActive)},
			Reason:  comment,
			ApprovalChain: []model.ApprovalStep{
				{ApproverID: approver.UserID, Decision: "approved", DecidedAt: now, Comment: comment},
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[DelegationService] delegation %s approved by %s", id, approver.UserID)
	return d, nil
}

// Reject 驳回一条待审批的授权。
func (s *delegationService) Reject(ctx context.Context, companyID, id string, approver model.Actor, reason string) (*model.Delegation, error) {
	d, err := s.transition(ctx, companyID, id, func(d *model.Delegation, now time.Time) (AuditEntry, error) {
		if d.Status != model.DelegationPending || !d.RequiresApproval {
			return AuditEntry{}, orgerr.New(orgerr.ErrInvalidStateTransition, "delegation %s is %s and cannot be rejected", d.ID, d.Status)
		}
		d.Status = model.DelegationRejected
		d.RejectedBy = &approver.UserID
		d.RejectedAt = &now
		d.RejectionReason = reason
		return AuditEntry{
			Action:  model.ActionReject,
			Actor:   approver,
			Changes: []model.FieldChange{model.Modified("status", model.DelegationPending, model.DelegationRejected)},
			Reason:  reason,
			ApprovalChain: []model.ApprovalStep{
				{ApproverID: approver.UserID, Decision: "rejected", DecidedAt: now, Comment: reason},
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[DelegationService] delegation %s rejected by %s", id, approver.UserID)
	return d, nil
}

// Revoke 撤销一条生效中的授权。已批准但尚未开始的授权也视为生效中。
func (s *delegationService) Revoke(ctx context.Context, companyID, id string, revoker model.Actor, reason string) (*model.Delegation, error) {
	d, err := s.transition(ctx, companyID, id, func(d *model.Delegation, now time.Time) (AuditEntry, error) {
		effective := d.StatusAt(now)
		revocable := (d.Status == model.DelegationActive || effective == model.DelegationActive) &&
			!d.IsTerminal() && now.Before(d.EndAt)
		if !revocable {
			return AuditEntry{}, orgerr.New(orgerr.ErrInvalidStateTransition, "delegation %s is %s and cannot be revoked", d.ID, effective)
		}
		d.Status = model.DelegationRevoked
		d.RevokedBy = &revoker.UserID
		d.RevokedAt = &now
		d.RevocationReason = reason
		return AuditEntry{
			Action:  model.ActionRevoke,
			Actor:   revoker,
			Changes: []model.FieldChange{model.Modified("status", model.DelegationActive, model.DelegationRevoked)},
			Reason:  reason,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[DelegationService] delegation %s revoked by %s", id, revoker.UserID)
	return d, nil
}

// Get 返回授权，状态按当前时间推算，过期的授权会顺带持久化。
func (s *delegationService) Get(ctx context.Context, companyID, id string) (*model.Delegation, error) {
	d, err := s.w.store.Delegations().FindByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	s.settle(ctx, []model.Delegation{*d})
	view := effectiveView(*d, s.now())
	return &view, nil
}

func (s *delegationService) ListByPosition(ctx context.Context, companyID, positionID string) ([]model.Delegation, error) {
	list, err := s.byPosition(ctx, companyID, positionID)
	if err != nil {
		return nil, err
	}
	s.settle(ctx, list)
	now := s.now()
	for i := range list {
		list[i] = effectiveView(list[i], now)
	}
	return list, nil
}

// PendingApprovals 返回仍在等待审批且未过期的授权。
func (s *delegationService) PendingApprovals(ctx context.Context, companyID string) ([]model.Delegation, error) {
	list, err := s.w.store.Delegations().FindByStatus(ctx, companyID, model.DelegationPending)
	if err != nil {
		return nil, err
	}
	s.settle(ctx, list)
	now := s.now()
	out := []model.Delegation{}
	for _, d := range list {
		if d.RequiresApproval && d.StatusAt(now) == model.DelegationPending {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *delegationService) ActiveDelegationsFor(ctx context.Context, companyID string, subject DelegationSubject, asOf time.Time) ([]model.Delegation, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	var (
		list []model.Delegation
		err  error
	)
	switch {
	case subject.PositionID != "":
		list, err = s.byPosition(ctx, companyID, subject.PositionID)
	case subject.UserID != "":
		list, err = s.w.store.Delegations().FindByUser(ctx, companyID, subject.UserID)
	default:
		return nil, orgerr.New(orgerr.ErrInvalidArgument, "either userId or positionId is required")
	}
	if err != nil {
		return nil, err
	}
	s.settle(ctx, list)
	out := []model.Delegation{}
	for _, d := range list {
		if d.ActiveAt(asOf) {
			d.Status = model.DelegationActive
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *delegationService) byPosition(ctx context.Context, companyID, positionID string) ([]model.Delegation, error) {
	out, err := s.w.store.Delegations().FindByDelegatorPosition(ctx, companyID, positionID)
	if err != nil {
		return nil, err
	}
	in, err := s.w.store.Delegations().FindByDelegatePosition(ctx, companyID, positionID)
	if err != nil {
		return nil, err
	}
	for _, d := range in {
		if !slices.ContainsFunc(out, func(o model.Delegation) bool { return o.ID == d.ID }) {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b model.Delegation) int {
		if c := a.StartAt.Compare(b.StartAt); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

// effectiveView 把持久化状态替换为按 now 推算的状态，用于读接口的返回值。
func effectiveView(d model.Delegation, now time.Time) model.Delegation {
	if d.Status == model.DelegationPending || d.Status == model.DelegationActive {
		d.Status = d.StatusAt(now)
	}
	return d
}

// settle 在读路径上惰性地持久化过期状态。失败只记日志，读结果不受影响。
func (s *delegationService) settle(ctx context.Context, list []model.Delegation) {
	now := s.now()
	for i := range list {
		d := &list[i]
		if (d.Status == model.DelegationPending || d.Status == model.DelegationActive) && !now.Before(d.EndAt) {
			if err := s.expire(ctx, d.CompanyID, d.ID); err != nil {
				log.Warnw("[DelegationService] lazy expiry failed", "delegation", d.ID, "error", err)
			}
		}
	}
}

// expire 持久化单条授权的过期状态。已被其他调用处理的授权直接跳过。
func (s *delegationService) expire(ctx context.Context, companyID, id string) error {
	var applied bool
	err := s.w.run(ctx, companyID, "expire", func(tx repository.Store, cs *changeSet) error {
		d, err := tx.Delegations().FindByIDForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		now := s.now()
		if (d.Status != model.DelegationPending && d.Status != model.DelegationActive) || now.Before(d.EndAt) {
			return nil
		}
		before := d.Status
		d.Status = model.DelegationExpired
		d.UpdatedAt = now
		if err := tx.Delegations().Update(ctx, d); err != nil {
			return err
		}
		applied = true
		return cs.record(AuditEntry{
			CompanyID:  companyID,
			EntityType: model.EntityDelegation,
			EntityID:   d.ID,
			Action:     model.ActionExpire,
			Actor:      model.SystemActor,
			Changes:    []model.FieldChange{model.Modified("status", before, model.DelegationExpired)},
			RelatedEntities: []model.RelatedEntity{
				positionRef(d.DelegatorPositionID, "delegator"),
				positionRef(d.DelegatePositionID, "delegate"),
			},
		})
	})
	if err == nil && applied {
		metrics.RecordDelegationExpired(1)
	}
	return err
}

const defaultSweepBatch = 200

func (s *delegationService) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultSweepBatch
	}
	overdue, err := s.w.store.Delegations().FindOverdue(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, d := range overdue {
		if err := s.expire(ctx, d.CompanyID, d.ID); err != nil {
			if errors.Is(err, orgerr.ErrConcurrentModification) {
				continue
			}
			return n, err
		}
		n++
	}
	if n > 0 {
		log.Infof("[DelegationService] persisted expiry for %d delegations", n)
	}
	return n, nil
}
