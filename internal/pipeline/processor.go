// Package pipeline 定义了组织变更事件的消费流程：维护审计检索投影并失效解析缓存。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"org-authority-go/internal/model"
	"org-authority-go/pkg/es"
	"org-authority-go/pkg/events"
	"org-authority-go/pkg/log"
)

// AuditIndexWriter 写入审计检索文档。
type AuditIndexWriter interface {
	IndexAudit(ctx context.Context, doc model.AuditDocument) error
}

// CacheInvalidator 失效岗位的解析缓存。
type CacheInvalidator interface {
	Invalidate(ctx context.Context, companyID string, positionIDs ...string) error
}

// Processor 封装了事件处理的所有依赖和逻辑。
type Processor struct {
	index AuditIndexWriter
	cache CacheInvalidator
}

// NewProcessor 创建一个新的 Processor 实例。index 或 cache 为 nil 时跳过对应步骤。
func NewProcessor(index AuditIndexWriter, cache CacheInvalidator) *Processor {
	return &Processor{index: index, cache: cache}
}

// Handle 处理一条组织变更事件。两个步骤都是幂等的，失败时整条事件交给消费者重试。
func (p *Processor) Handle(ctx context.Context, event events.OrgChangeEvent) error {
	log.Debugf("[Processor] 处理事件 %s: %s %s/%s", event.EventID, event.Action, event.EntityType, event.EntityID)

	var errs []error
	// 1. 其他实例写入的变更也要失效本地缓存
	if p.cache != nil && len(event.PositionIDs) > 0 {
		if err := p.cache.Invalidate(ctx, event.CompanyID, event.PositionIDs...); err != nil {
			errs = append(errs, fmt.Errorf("invalidate resolution cache: %w", err))
		}
	}
	// 2. 写入审计检索投影，文档 ID 即日志 ID
	if p.index != nil {
		if err := p.index.IndexAudit(ctx, es.DocumentOf(event.Log)); err != nil {
			errs = append(errs, fmt.Errorf("index audit log %s: %w", event.Log.ID, err))
		}
	}
	return errors.Join(errs...)
}
