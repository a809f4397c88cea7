package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"org-authority-go/internal/model"
	"org-authority-go/internal/orgerr"
	"org-authority-go/internal/repository"
	"org-authority-go/pkg/events"
	"org-authority-go/pkg/log"
	"strings"
	"time"
)

// AuditEntry 是写入审计日志的输入，ID 与时间戳由 AuditService 填写。
type AuditEntry struct {
	CompanyID       string
	EntityType      model.EntityType
	EntityID        string
	Action          model.AuditAction
	Actor           model.Actor
	Changes         []model.FieldChange
	Reason          string
	Notes           string
	RelatedEntities []model.RelatedEntity
	ApprovalChain   []model.ApprovalStep
}

// AuditExport 描述一次导出到对象存储的结果。
type AuditExport struct {
	ObjectName string `json:"objectName"`
	Entries    int    `json:"entries"`
	URL        string `json:"url"`
}

// EventPublisher 发布已提交的组织变更事件。
type EventPublisher interface {
	PublishOrgChange(ctx context.Context, event events.OrgChangeEvent) error
}

// AuditSearcher 在审计检索投影上做全文检索。
type AuditSearcher interface {
	SearchAudit(ctx context.Context, companyID, query string, size int) ([]model.AuditSearchHit, error)
}

// AuditArchive 保存导出文件并返回下载地址。
type AuditArchive interface {
	PutExport(ctx context.Context, objectName string, body []byte) (string, error)
}

// AuditService 接口定义了审计日志的追加与查询操作。没有修改和删除。
type AuditService interface {
	// Record 在独立事务中追加一条日志并发布事件。
	Record(ctx context.Context, entry AuditEntry) (*model.OrgAuditLog, error)
	// RecordTx 在调用方的事务中追加日志，事件由调用方在提交后通过 Publish 发布。
	RecordTx(ctx context.Context, tx repository.Store, entry AuditEntry) (*model.OrgAuditLog, error)
	Publish(ctx context.Context, logs ...*model.OrgAuditLog)
	QueryByEntity(ctx context.Context, companyID string, entityType model.EntityType, entityID string) ([]model.OrgAuditLog, error)
	QueryByTimeRange(ctx context.Context, companyID string, from, to time.Time) ([]model.OrgAuditLog, error)
	Search(ctx context.Context, companyID, query string, size int) ([]model.AuditSearchHit, error)
	Export(ctx context.Context, companyID string, from, to time.Time) (*AuditExport, error)
}

type auditService struct {
	store     repository.Store
	publisher EventPublisher
	searcher  AuditSearcher
	archive   AuditArchive
	now       Clock
}

// NewAuditService 创建一个新的 AuditService 实例。publisher、searcher、archive 均可为 nil。
func NewAuditService(store repository.Store, publisher EventPublisher, searcher AuditSearcher, archive AuditArchive, now Clock) AuditService {
	if now == nil {
		now = time.Now
	}
	return &auditService{store: store, publisher: publisher, searcher: searcher, archive: archive, now: now}
}

func (s *auditService) build(entry AuditEntry) (*model.OrgAuditLog, error) {
	l := &model.OrgAuditLog{
		ID:              newID(),
		CompanyID:       entry.CompanyID,
		EntityType:      entry.EntityType,
		EntityID:        entry.EntityID,
		Action:          entry.Action,
		Actor:           entry.Actor,
		Changes:         entry.Changes,
		Reason:          entry.Reason,
		Notes:           entry.Notes,
		RelatedEntities: entry.RelatedEntities,
		ApprovalChain:   entry.ApprovalChain,
		Timestamp:       s.now(),
	}
	if l.Changes == nil {
		l.Changes = []model.FieldChange{}
	}
	if l.RelatedEntities == nil {
		l.RelatedEntities = []model.RelatedEntity{}
	}
	if err := l.Validate(); err != nil {
		return nil, orgerr.New(orgerr.ErrInvalidArgument, "%v", err)
	}
	return l, nil
}

func (s *auditService) RecordTx(ctx context.Context, tx repository.Store, entry AuditEntry) (*model.OrgAuditLog, error) {
	l, err := s.build(entry)
	if err != nil {
		return nil, err
	}
	if err := tx.AuditLogs().Create(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *auditService) Record(ctx context.Context, entry AuditEntry) (*model.OrgAuditLog, error) {
	l, err := s.build(entry)
	if err != nil {
		return nil, err
	}
	if err := s.store.AuditLogs().Create(ctx, l); err != nil {
		return nil, err
	}
	s.Publish(ctx, l)
	return l, nil
}

// Publish 发布变更事件。事件只服务于检索投影与跨实例缓存失效，发布失败只记日志。
func (s *auditService) Publish(ctx context.Context, logs ...*model.OrgAuditLog) {
	if s.publisher == nil {
		return
	}
	for _, l := range logs {
		if err := s.publisher.PublishOrgChange(ctx, events.FromAuditLog(l)); err != nil {
			log.Warnw("[AuditService] publish org change event failed", "logId", l.ID, "entity", l.EntityID, "error", err)
		}
	}
}

func (s *auditService) QueryByEntity(ctx context.Context, companyID string, entityType model.EntityType, entityID string) ([]model.OrgAuditLog, error) {
	if !entityType.Valid() {
		return nil, orgerr.New(orgerr.ErrInvalidArgument, "unknown entity type %q", entityType)
	}
	return s.store.AuditLogs().FindByEntity(ctx, companyID, entityType, entityID)
}

func (s *auditService) QueryByTimeRange(ctx context.Context, companyID string, from, to time.Time) ([]model.OrgAuditLog, error) {
	if to.IsZero() {
		to = s.now()
	}
	if to.Before(from) {
		return nil, orgerr.New(orgerr.ErrInvalidWindow, "range ends before it starts")
	}
	return s.store.AuditLogs().FindByTimeRange(ctx, companyID, from, to)
}

func (s *auditService) Search(ctx context.Context, companyID, query string, size int) ([]model.AuditSearchHit, error) {
	if s.searcher == nil {
		return nil, orgerr.New(orgerr.ErrStoreUnavailable, "audit search is not configured")
	}
	if strings.TrimSpace(query) == "" {
		return nil, orgerr.New(orgerr.ErrInvalidArgument, "query is required")
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return s.searcher.SearchAudit(ctx, companyID, query, size)
}

// Export 把时间范围内的日志按 JSON Lines 写入对象存储。
func (s *auditService) Export(ctx context.Context, companyID string, from, to time.Time) (*AuditExport, error) {
	if s.archive == nil {
		return nil, orgerr.New(orgerr.ErrStoreUnavailable, "audit export is not configured")
	}
	logs, err := s.QueryByTimeRange(ctx, companyID, from, to)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range logs {
		if err := enc.Encode(&logs[i]); err != nil {
			return nil, fmt.Errorf("encode audit log %s: %w", logs[i].ID, err)
		}
	}
	objectName := fmt.Sprintf("audit-exports/%s/%s_%s_%s.jsonl", companyID,
		from.UTC().Format("20060102T150405Z"), to.UTC().Format("20060102T150405Z"), newID())
	url, err := s.archive.PutExport(ctx, objectName, buf.Bytes())
	if err != nil {
		return nil, orgerr.Unavailable(err)
	}
	log.Infof("[AuditService] exported %d audit entries for company %s to %s", len(logs), companyID, objectName)
	return &AuditExport{ObjectName: objectName, Entries: len(logs), URL: url}, nil
}
