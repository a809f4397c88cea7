package service

import (
	"context"
	"org-authority-go/internal/model"
	"org-authority-go/internal/orgerr"
	"org-authority-go/internal/repository"
	"org-authority-go/pkg/log"
	"strings"
	"time"
)

// AssignRequest 是任职请求。StartAt 为零值时取当前时间。
type AssignRequest struct {
	CompanyID  string               `json:"-"`
	PositionID string               `json:"positionId"`
	UserID     string               `json:"userId"`
	Type       model.AssignmentType `json:"assignmentType"`
	StartAt    time.Time            `json:"startAt"`
	Reason     string               `json:"reason"`
	ApprovedBy *string              `json:"approvedBy"`
	// PreviousAssignmentID 为空时自动链接到岗位上最近的一条任职记录。
	PreviousAssignmentID *string     `json:"previousAssignmentId"`
	Actor                model.Actor `json:"-"`
}

// AssignmentService 接口定义了任职台账的操作。
type AssignmentService interface {
	Assign(ctx context.Context, req AssignRequest) (*model.PositionAssignment, error)
	End(ctx context.Context, companyID, assignmentID string, endAt time.Time, reason string, actor model.Actor) (*model.PositionAssignment, error)
	// HistoryOf 按 startAt 升序返回岗位的全部任职记录。
	HistoryOf(ctx context.Context, companyID, positionID string) ([]model.PositionAssignment, error)
	// OccupantAt 返回在时刻 t 的主在岗记录，空缺时返回 (nil, nil)。t 为零值表示当前时刻。
	OccupantAt(ctx context.Context, companyID, positionID string, t time.Time) (*model.PositionAssignment, error)
	OccupantsAt(ctx context.Context, companyID, positionID string, t time.Time) ([]model.PositionAssignment, error)
	AssignmentsForUser(ctx context.Context, companyID, userID string, asOf time.Time) ([]model.PositionAssignment, error)
}

type assignmentService struct {
	w   writer
	now Clock
}

// NewAssignmentService 创建一个新的 AssignmentService 实例。
func NewAssignmentService(store repository.Store, cache repository.ResolutionCacheRepository, audit AuditService, now Clock) AssignmentService {
	return &assignmentService{w: writer{store: store, cache: cache, audit: audit}, now: now}
}

// Assign 追加一条任职记录。不会自动结束其他任职。
func (s *assignmentService) Assign(ctx context.Context, req AssignRequest) (*model.PositionAssignment, error) {
	if req.Type == "" {
		req.Type = model.AssignmentPermanent
	}
	if !req.Type.Valid() {
		return nil, orgerr.New(orgerr.ErrInvalidArgument, "unknown assignment type %q", req.Type)
	}
	if strings.TrimSpace(req.UserID) == "" || req.PositionID == "" {
		return nil, orgerr.New(orgerr.ErrInvalidArgument, "positionId and userId are required")
	}
	now := s.now()
	if req.StartAt.IsZero() {
		req.StartAt = now
	}

	a := &model.PositionAssignment{
		ID:         newID(),
		CompanyID:  req.CompanyID,
		PositionID: req.PositionID,
		UserID:     req.UserID,
		Type:       req.Type,
		StartAt:    req.StartAt,
		Reason:     req.Reason,
		Status:     model.AssignmentActive,
		AssignedBy: req.Actor.UserID,
		ApprovedBy: req.ApprovedBy,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.w.run(ctx, req.CompanyID, "assign", func(tx repository.Store, cs *changeSet) error {
		// 1. 锁定岗位，后续的编制检查在提交前不会被并发任职破坏
		pos, err := tx.Positions().FindByIDForUpdate(ctx, req.CompanyID, req.PositionID)
		if err != nil {
			return err
		}
		if pos.Status == model.StatusArchived {
			return orgerr.New(orgerr.ErrInvalidReference, "position %s is archived", pos.ID)
		}

		history, err := tx.Assignments().FindByPosition(ctx, req.CompanyID, req.PositionID)
		if err != nil {
			return err
		}

		// 2. 编制检查，代理任职不占编制
		if a.Type != model.AssignmentActing {
			var open []model.PositionAssignment
			for _, h := range history {
				if h.IsOpen() {
					open = append(open, h)
				}
			}
			if n := countSlotHolders(open); n >= pos.Headcount {
				return orgerr.New(orgerr.ErrCapacityExceeded, "position %s already has %d of %d occupants", pos.ID, n, pos.Headcount)
			}
		}

		// 3. 同一人在同一岗位上的任职区间不能重叠
		if a.Type != model.AssignmentActing {
			for _, h := range history {
				if h.UserID != a.UserID || h.Type == model.AssignmentActing || h.Status == model.AssignmentCancelled {
					continue
				}
				if model.WindowsOverlap(h.StartAt, h.EndAt, a.StartAt, nil) {
					return orgerr.New(orgerr.ErrOverlappingAssignment, "user %s already holds position %s in an overlapping window (assignment %s)", a.UserID, pos.ID, h.ID)
				}
			}
		}

		// 4. 历史链
		if req.PreviousAssignmentID != nil {
			prev, err := tx.Assignments().FindByID(ctx, req.CompanyID, *req.PreviousAssignmentID)
			if err != nil {
				return orgerr.New(orgerr.ErrInvalidReference, "previous assignment %s: %v", *req.PreviousAssignmentID, err)
			}
			if prev.PositionID != a.PositionID {
				return orgerr.New(orgerr.ErrInvalidReference, "previous assignment %s belongs to another position", prev.ID)
			}
			a.PreviousAssignmentID = &prev.ID
		} else if len(history) > 0 {
			a.PreviousAssignmentID = &history[len(history)-1].ID
		}

		if err := tx.Assignments().Create(ctx, a); err != nil {
			return err
		}
		cs.touch(a.PositionID)
		return cs.record(AuditEntry{
			CompanyID:  a.CompanyID,
			EntityType: model.EntityAssignment,
			EntityID:   a.ID,
			Action:     model.ActionAssign,
			Actor:      req.Actor,
			Changes: []model.FieldChange{
				model.Added("positionId", a.PositionID),
				model.Added("userId", a.UserID),
				model.Added("assignmentType", a.Type),
				model.Added("startAt", a.StartAt),
			},
			Reason:          a.Reason,
			RelatedEntities: []model.RelatedEntity{positionRef(a.PositionID, "position")},
		})
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[AssignmentService] user %s assigned to position %s (%s) as %s", a.UserID, a.PositionID, a.ID, a.Type)
	return a, nil
}

// End 结束一条任职。endAt 为零值时取当前时间。
func (s *assignmentService) End(ctx context.Context, companyID, assignmentID string, endAt time.Time, reason string, actor model.Actor) (*model.PositionAssignment, error) {
	if endAt.IsZero() {
		endAt = s.now()
	}
	var ended *model.PositionAssignment
	err := s.w.run(ctx, companyID, "end", func(tx repository.Store, cs *changeSet) error {
		a, err := tx.Assignments().FindByIDForUpdate(ctx, companyID, assignmentID)
		if err != nil {
			return err
		}
		if !a.IsOpen() {
			return orgerr.New(orgerr.ErrAlreadyEnded, "assignment %s is %s", a.ID, a.Status)
		}
		if endAt.Before(a.StartAt) {
			return orgerr.New(orgerr.ErrInvalidWindow, "assignment %s cannot end before it starts", a.ID)
		}
		a.EndAt = &endAt
		a.Status = model.AssignmentEnded
		a.EndReason = reason
		a.EndedBy = actor.UserID
		a.UpdatedAt = s.now()
		if err := tx.Assignments().Update(ctx, a); err != nil {
			return err
		}
		ended = a
		cs.touch(a.PositionID)
		return cs.record(AuditEntry{
			CompanyID:  companyID,
			EntityType: model.EntityAssignment,
			EntityID:   a.ID,
			Action:     model.ActionUnassign,
			Actor:      actor,
			Changes: []model.FieldChange{
				model.Modified("status", model.AssignmentActive, model.AssignmentEnded),
				model.Modified("endAt", nil, endAt),
			},
			Reason:          reason,
			RelatedEntities: []model.RelatedEntity{positionRef(a.PositionID, "position")},
		})
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[AssignmentService] assignment %s on position %s ended at %s", ended.ID, ended.PositionID, endAt.Format(time.RFC3339))
	return ended, nil
}

func (s *assignmentService) HistoryOf(ctx context.Context, companyID, positionID string) ([]model.PositionAssignment, error) {
	if _, err := s.w.store.Positions().FindByID(ctx, companyID, positionID); err != nil {
		return nil, err
	}
	return s.w.store.Assignments().FindByPosition(ctx, companyID, positionID)
}

func (s *assignmentService) OccupantAt(ctx context.Context, companyID, positionID string, t time.Time) (*model.PositionAssignment, error) {
	list, err := s.OccupantsAt(ctx, companyID, positionID, t)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

func (s *assignmentService) OccupantsAt(ctx context.Context, companyID, positionID string, t time.Time) ([]model.PositionAssignment, error) {
	if t.IsZero() {
		t = s.now()
	}
	history, err := s.HistoryOf(ctx, companyID, positionID)
	if err != nil {
		return nil, err
	}
	return coveringAt(history, t), nil
}

// AssignmentsForUser 返回用户在 asOf 时刻担任的全部任职。
func (s *assignmentService) AssignmentsForUser(ctx context.Context, companyID, userID string, asOf time.Time) ([]model.PositionAssignment, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	all, err := s.w.store.Assignments().FindByUser(ctx, companyID, userID)
	if err != nil {
		return nil, err
	}
	out := []model.PositionAssignment{}
	for _, a := range all {
		if a.Covers(asOf) {
			out = append(out, a)
		}
	}
	return out, nil
}
