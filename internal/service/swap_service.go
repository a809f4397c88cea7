package service

import (
	"context"
	"org-authority-go/internal/model"
	"org-authority-go/internal/orgerr"
	"org-authority-go/internal/repository"
	"org-authority-go/pkg/log"
	"org-authority-go/pkg/metrics"
	"org-authority-go/pkg/workitems"
	"time"
)

// SwapRequestInput 是发起岗位互换的请求。EffectiveDate 为零值时取当前时间。
type SwapRequestInput struct {
	CompanyID        string               `json:"-"`
	PositionAID      string               `json:"positionAId"`
	PositionBID      string               `json:"positionBId"`
	Reason           string               `json:"reason"`
	EffectiveDate    time.Time            `json:"effectiveDate"`
	AssignmentType   model.AssignmentType `json:"assignmentType"`
	RequiresApproval bool                 `json:"requiresApproval"`
	Actor            model.Actor          `json:"-"`
}

// SwapService 接口定义了两个岗位在岗人互换的操作。
type SwapService interface {
	RequestSwap(ctx context.Context, in SwapRequestInput) (*model.OccupantSwapRequest, error)
	Get(ctx context.Context, companyID, id string) (*model.OccupantSwapRequest, error)
	// List 返回租户的互换请求，status 为空时返回全部。
	List(ctx context.Context, companyID string, status model.SwapStatus) ([]model.OccupantSwapRequest, error)
	Approve(ctx context.Context, companyID, id string, approver model.Actor) (*model.OccupantSwapRequest, error)
	Cancel(ctx context.Context, companyID, id string, actor model.Actor, reason string) (*model.OccupantSwapRequest, error)
	// Execute 执行互换。任职变更提交前的任何失败都把请求置为 failed 且不留下台账修改，可以重新执行。
	Execute(ctx context.Context, companyID, id string, actor model.Actor) (*model.OccupantSwapRequest, error)
}

type swapService struct {
	w          writer
	reassigner workitems.Reassigner
	now        Clock
}

// NewSwapService 创建一个新的 SwapService 实例。reassigner 为 nil 时不改派工作项。
func NewSwapService(store repository.Store, cache repository.ResolutionCacheRepository, audit AuditService, reassigner workitems.Reassigner, now Clock) SwapService {
	if reassigner == nil {
		reassigner = workitems.Noop{}
	}
	return &swapService{w: writer{store: store, cache: cache, audit: audit}, reassigner: reassigner, now: now}
}

func swapRef(id string) model.RelatedEntity {
	return model.RelatedEntity{EntityType: model.EntitySwapRequest, EntityID: id, RelationshipType: "swap_request"}
}

// RequestSwap 记录双方岗位当前的在岗人与任职记录，执行时据此做乐观并发校验。
func (s *swapService) RequestSwap(ctx context.Context, in SwapRequestInput) (*model.OccupantSwapRequest, error) {
	if in.PositionAID == "" || in.PositionBID == "" || in.PositionAID == in.PositionBID {
		return nil, orgerr.New(orgerr.ErrInvalidArgument, "two distinct positions are required")
	}
	if in.AssignmentType == "" {
		in.AssignmentType = model.AssignmentPermanent
	}
	if !in.AssignmentType.Valid() {
		return nil, orgerr.New(orgerr.ErrInvalidArgument, "unknown assignment type %q", in.AssignmentType)
	}
	now := s.now()
	if in.EffectiveDate.IsZero() {
		in.EffectiveDate = now
	}

	req := &model.OccupantSwapRequest{
		ID:               newID(),
		CompanyID:        in.CompanyID,
		Reason:           in.Reason,
		EffectiveDate:    in.EffectiveDate,
		AssignmentType:   in.AssignmentType,
		Status:           model.SwapPending,
		RequiresApproval: in.RequiresApproval,
		RequestedBy:      in.Actor.UserID,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := s.w.run(ctx, in.CompanyID, "swap", func(tx repository.Store, cs *changeSet) error {
		var err error
		if req.SideA, err = captureSide(ctx, tx, in.CompanyID, in.PositionAID, now, in.EffectiveDate); err != nil {
			return err
		}
		if req.SideB, err = captureSide(ctx, tx, in.CompanyID, in.PositionBID, now, in.EffectiveDate); err != nil {
			return err
		}
		if req.SideA.CurrentUserID == req.SideB.CurrentUserID {
			return orgerr.New(orgerr.ErrInvalidArgument, "user %s occupies both positions", req.SideA.CurrentUserID)
		}
		if err := tx.SwapRequests().Create(ctx, req); err != nil {
			return err
		}
		return cs.record(AuditEntry{
			CompanyID:  in.CompanyID,
			EntityType: model.EntitySwapRequest,
			EntityID:   req.ID,
			Action:     model.ActionCreate,
			Actor:      in.Actor,
			Changes: []model.FieldChange{
				model.Added("sideA", req.SideA),
				model.Added("sideB", req.SideB),
				model.Added("effectiveDate", req.EffectiveDate),
			},
			Reason: req.Reason,
			RelatedEntities: []model.RelatedEntity{
				positionRef(req.SideA.PositionID, "side_a"),
				positionRef(req.SideB.PositionID, "side_b"),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[SwapService] swap %s requested between %s (%s) and %s (%s)", req.ID,
		req.SideA.PositionID, req.SideA.CurrentUserID, req.SideB.PositionID, req.SideB.CurrentUserID)
	return req, nil
}

func captureSide(ctx context.Context, tx repository.Store, companyID, positionID string, now, effective time.Time) (model.SwapSide, error) {
	pos, err := tx.Positions().FindByID(ctx, companyID, positionID)
	if err != nil {
		return model.SwapSide{}, err
	}
	if pos.Status == model.StatusArchived {
		return model.SwapSide{}, orgerr.New(orgerr.ErrInvalidReference, "position %s is archived", positionID)
	}
	occ, err := primaryOccupant(ctx, tx.Assignments(), companyID, positionID, now)
	if err != nil {
		return model.SwapSide{}, err
	}
	if occ == nil {
		return model.SwapSide{}, orgerr.New(orgerr.ErrNoActiveOccupant, "position %s is vacant", positionID)
	}
	if effective.Before(occ.StartAt) {
		return model.SwapSide{}, orgerr.New(orgerr.ErrInvalidWindow, "effective date precedes assignment %s", occ.ID)
	}
	return model.SwapSide{PositionID: positionID, CurrentUserID: occ.UserID, CurrentAssignmentID: occ.ID}, nil
}

func (s *swapService) Get(ctx context.Context, companyID, id string) (*model.OccupantSwapRequest, error) {
	return s.w.store.SwapRequests().FindByID(ctx, companyID, id)
}

func (s *swapService) List(ctx context.Context, companyID string, status model.SwapStatus) ([]model.OccupantSwapRequest, error) {
	return s.w.store.SwapRequests().FindByCompany(ctx, companyID, status)
}

// transition 在事务内加载互换请求并执行状态变更。mutate 返回 nil 条目表示不记审计。
func (s *swapService) transition(ctx context.Context, companyID, id string, mutate func(r *model.OccupantSwapRequest, now time.Time) (*AuditEntry, error)) (*model.OccupantSwapRequest, error) {
	var out *model.OccupantSwapRequest
	err := s.w.run(ctx, companyID, "swap", func(tx repository.Store, cs *changeSet) error {
		r, err := tx.SwapRequests().FindByIDForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		now := s.now()
		entry, err := mutate(r, now)
		if err != nil {
			return err
		}
		r.UpdatedAt = now
		if err := tx.SwapRequests().Update(ctx, r); err != nil {
			return err
		}
		out = r
		if entry == nil {
			return nil
		}
		entry.CompanyID = companyID
		entry.EntityType = model.EntitySwapRequest
		entry.EntityID = r.ID
		entry.RelatedEntities = []model.RelatedEntity{
			positionRef(r.SideA.PositionID, "side_a"),
			positionRef(r.SideB.PositionID, "side_b"),
		}
		return cs.record(*entry)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Approve 批准需要审批的互换请求。
func (s *swapService) Approve(ctx context.Context, companyID, id string, approver model.Actor) (*model.OccupantSwapRequest, error) {
	return s.transition(ctx, companyID, id, func(r *model.OccupantSwapRequest, now time.Time) (*AuditEntry, error) {
		if r.Status != model.SwapPending || !r.RequiresApproval {
			return nil, orgerr.New(orgerr.ErrInvalidStateTransition, "swap %s is %s and cannot be approved", r.ID, r.Status)
		}
		r.Status = model.SwapApproved
		r.ApprovedBy = &approver.UserID
		r.ApprovedAt = &now
		return &AuditEntry{
			Action:        model.ActionApprove,
			Actor:         approver,
			Changes:       []model.FieldChange{model.Modified("status", model.SwapPending, model.SwapApproved)},
			ApprovalChain: []model.ApprovalStep{{ApproverID: approver.UserID, Decision: "approved", DecidedAt: now}},
		}, nil
	})
}

// Cancel 取消尚未开始执行的互换请求。
func (s *swapService) Cancel(ctx context.Context, companyID, id string, actor model.Actor, reason string) (*model.OccupantSwapRequest, error) {
	return s.transition(ctx, companyID, id, func(r *model.OccupantSwapRequest, now time.Time) (*AuditEntry, error) {
		if !r.Cancellable() {
			return nil, orgerr.New(orgerr.ErrInvalidStateTransition, "swap %s is %s and cannot be cancelled", r.ID, r.Status)
		}
		before := r.Status
		r.Status = model.SwapCancelled
		r.CancelledBy = &actor.UserID
		r.CancelledAt = &now
		return &AuditEntry{
			Action:  model.ActionCancel,
			Actor:   actor,
			Changes: []model.FieldChange{model.Modified("status", before, model.SwapCancelled)},
			Reason:  reason,
		}, nil
	})
}

func (s *swapService) Execute(ctx context.Context, companyID, id string, actor model.Actor) (*model.OccupantSwapRequest, error) {
	// 1. 进入 in_progress，并发的第二次执行会在这里失败
	req, err := s.transition(ctx, companyID, id, func(r *model.OccupantSwapRequest, now time.Time) (*AuditEntry, error) {
		if !r.Executable() {
			return nil, orgerr.New(orgerr.ErrInvalidStateTransition, "swap %s is %s and cannot be executed", r.ID, r.Status)
		}
		r.Status = model.SwapInProgress
		r.StartedAt = &now
		r.FailureReason = ""
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	// 2. 同一事务内结束双方任职并建立互换后的任职
	if err := s.swapOccupants(ctx, req, actor); err != nil {
		log.Warnf("[SwapService] swap %s failed before commit: %v", id, err)
		if _, ferr := s.markFailed(ctx, companyID, id, actor, err); ferr != nil {
			log.Errorf("[SwapService] swap %s could not be marked failed: %v", id, ferr)
		}
		metrics.RecordSwapFinished("failed")
		return nil, err
	}

	// 3. 改派工作项。任职互换已经提交，改派失败只记录不回滚
	details := s.reassign(ctx, req)

	// 4. 完成
	done, err := s.transition(ctx, companyID, id, func(r *model.OccupantSwapRequest, now time.Time) (*AuditEntry, error) {
		r.Status = model.SwapCompleted
		r.CompletedAt = &now
		r.ReassignmentDetails = details
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	outcome := "completed"
	if len(details.Errors) > 0 {
		outcome = "completed_with_errors"
	}
	metrics.RecordSwapFinished(outcome)
	log.Infof("[SwapService] swap %s completed, %d work items moved, %d reassignment errors", id, details.TotalMoved, len(details.Errors))
	return done, nil
}

func (s *swapService) swapOccupants(ctx context.Context, req *model.OccupantSwapRequest, actor model.Actor) error {
	return s.w.run(ctx, req.CompanyID, "swap", func(tx repository.Store, cs *changeSet) error {
		r, err := tx.SwapRequests().FindByIDForUpdate(ctx, req.CompanyID, req.ID)
		if err != nil {
			return err
		}
		if r.Status != model.SwapInProgress {
			return orgerr.New(orgerr.ErrInvalidStateTransition, "swap %s is %s", r.ID, r.Status)
		}

		// 按 id 顺序锁定岗位，避免两个方向相反的互换互相等待
		first, second := r.SideA.PositionID, r.SideB.PositionID
		if second < first {
			first, second = second, first
		}
		for _, pid := range []string{first, second} {
			if _, err := tx.Positions().FindByIDForUpdate(ctx, r.CompanyID, pid); err != nil {
				return err
			}
		}

		now := s.now()
		sides := []*model.SwapSide{&r.SideA, &r.SideB}
		incoming := []string{r.SideB.CurrentUserID, r.SideA.CurrentUserID}
		for i, side := range sides {
			cur, err := tx.Assignments().FindByIDForUpdate(ctx, r.CompanyID, side.CurrentAssignmentID)
			if err != nil {
				return err
			}
			if !cur.IsOpen() || cur.PositionID != side.PositionID || cur.UserID != side.CurrentUserID {
				return orgerr.New(orgerr.ErrStaleSwap, "assignment %s on position %s changed since the swap was requested", cur.ID, side.PositionID)
			}
			if r.EffectiveDate.Before(cur.StartAt) {
				return orgerr.New(orgerr.ErrInvalidWindow, "effective date precedes assignment %s", cur.ID)
			}
			eff := r.EffectiveDate
			cur.EndAt = &eff
			cur.Status = model.AssignmentEnded
			cur.EndReason = "swap " + r.ID
			cur.EndedBy = actor.UserID
			cur.UpdatedAt = now
			if err := tx.Assignments().Update(ctx, cur); err != nil {
				return err
			}

			next := &model.PositionAssignment{
				ID:                   newID(),
				CompanyID:            r.CompanyID,
				PositionID:           side.PositionID,
				UserID:               incoming[i],
				Type:                 r.AssignmentType,
				StartAt:              eff,
				Reason:               r.Reason,
				Status:               model.AssignmentActive,
				AssignedBy:           actor.UserID,
				ApprovedBy:           r.ApprovedBy,
				PreviousAssignmentID: &cur.ID,
				Version:              1,
				CreatedAt:            now,
				UpdatedAt:            now,
			}
			if err := tx.Assignments().Create(ctx, next); err != nil {
				return err
			}
			side.NewAssignmentID = next.ID
		}

		r.UpdatedAt = now
		if err := tx.SwapRequests().Update(ctx, r); err != nil {
			return err
		}
		*req = *r

		cs.touch(r.SideA.PositionID, r.SideB.PositionID)
		pairs := [][2]*model.SwapSide{{&r.SideA, &r.SideB}, {&r.SideB, &r.SideA}}
		for _, p := range pairs {
			self, other := p[0], p[1]
			err := cs.record(AuditEntry{
				CompanyID:  r.CompanyID,
				EntityType: model.EntityPosition,
				EntityID:   self.PositionID,
				Action:     model.ActionAssign,
				Actor:      actor,
				Changes: []model.FieldChange{
					model.Modified("occupant", self.CurrentUserID, other.CurrentUserID),
					model.Modified("assignmentId", self.CurrentAssignmentID, self.NewAssignmentID),
				},
				Reason: r.Reason,
				RelatedEntities: []model.RelatedEntity{
					positionRef(other.PositionID, model.RelationshipSwappedWith),
					swapRef(r.ID),
				},
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *swapService) reassign(ctx context.Context, req *model.OccupantSwapRequest) model.ReassignmentDetails {
	details := model.ReassignmentDetails{Errors: []string{}}
	moves := []struct {
		from, to, position string
	}{
		{req.SideA.CurrentUserID, req.SideB.CurrentUserID, req.SideA.PositionID},
		{req.SideB.CurrentUserID, req.SideA.CurrentUserID, req.SideB.PositionID},
	}
	for _, m := range moves {
		res, err := s.reassigner.ReassignOpenItems(ctx, req.CompanyID, m.from, m.to, m.position)
		if err != nil {
			details.Errors = append(details.Errors, "position "+m.position+": "+err.Error())
			continue
		}
		details.TasksMoved += res.TasksMoved
		details.ProjectsMoved += res.ProjectsMoved
		details.ApprovalsMoved += res.ApprovalsMoved
		details.Errors = append(details.Errors, res.Errors...)
	}
	details.TotalMoved = details.TasksMoved + details.ProjectsMoved + details.ApprovalsMoved
	return details
}

func (s *swapService) markFailed(ctx context.Context, companyID, id string, actor model.Actor, cause error) (*model.OccupantSwapRequest, error) {
	return s.transition(ctx, companyID, id, func(r *model.OccupantSwapRequest, now time.Time) (*AuditEntry, error) {
		if r.Status != model.SwapInProgress {
			return nil, orgerr.New(orgerr.ErrInvalidStateTransition, "swap %s is %s", r.ID, r.Status)
		}
		r.Status = model.SwapFailed
		r.FailureReason = cause.Error()
		return &AuditEntry{
			Action:  model.ActionUpdate,
			Actor:   actor,
			Changes: []model.FieldChange{model.Modified("status", model.SwapInProgress, model.SwapFailed)},
			Reason:  r.FailureReason,
		}, nil
	})
}
