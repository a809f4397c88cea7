package repository

import (
	"context"
	"errors"
	"org-authority-go/internal/orgerr"
	"org-authority-go/pkg/metrics"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormStore 是 Store 接口的 GORM 实现，生产环境使用 MySQL，本地与测试使用 SQLite。
type gormStore struct {
	db *gorm.DB
}

// NewGormStore 创建一个新的基于 GORM 的 Store 实例。
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Departments() DepartmentRepository   { return &departmentRepository{db: s.db} }
func (s *gormStore) Positions() PositionRepository       { return &positionRepository{db: s.db} }
func (s *gormStore) Assignments() AssignmentRepository   { return &assignmentRepository{db: s.db} }
func (s *gormStore) Delegations() DelegationRepository   { return &delegationRepository{db: s.db} }
func (s *gormStore) AuditLogs() AuditLogRepository       { return &auditLogRepository{db: s.db} }
func (s *gormStore) SwapRequests() SwapRequestRepository { return &swapRequestRepository{db: s.db} }

// Transaction 在数据库事务中执行 fn。fn 返回的业务错误原样返回，数据库错误转换为 ErrStoreUnavailable。
func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
	if err == nil || orgerr.KindName(err) != "INTERNAL" {
		return err
	}
	return translateError(err)
}

// forUpdate 为查询加上行锁；SQLite 方言会忽略该子句，由其库级写锁保证串行。
func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// translateError 将 GORM 错误映射为领域错误。
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return orgerr.New(orgerr.ErrNotFound, "record not found")
	case isDuplicateKey(err):
		return orgerr.New(orgerr.ErrDuplicateCode, "%v", err)
	}
	return orgerr.Unavailable(err)
}

// isDuplicateKey 识别唯一约束冲突。modernc 的 sqlite 错误无法被 GORM 的翻译器识别，因此再按消息匹配一次。
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry")
}

func findOne(db *gorm.DB, dest interface{}, kind, companyID, id string) error {
	err := db.Where("company_id = ? AND id = ?", companyID, id).First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return orgerr.New(orgerr.ErrNotFound, "%s %s", kind, id)
	}
	return translateError(err)
}

// updateWithVersion 执行乐观锁更新：version 自增，WHERE 条件携带旧版本号。
// 影响行数为 0 说明记录已被并发修改（或不存在），返回 ErrConcurrentModification。
func updateWithVersion(db *gorm.DB, kind string, value interface{}, companyID, id string, version *int64) error {
	expected := *version
	*version = expected + 1
	res := db.Model(value).
		Where("company_id = ? AND version = ?", companyID, expected).
		Select("*").
		Updates(value)
	if res.Error != nil {
		*version = expected
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		*version = expected
		metrics.RecordWriteConflict(kind)
		return orgerr.New(orgerr.ErrConcurrentModification, "%s %s was modified concurrently (expected version %d)", kind, id, expected)
	}
	return nil
}
