package service

import (
	"context"
	"errors"
	"org-authority-go/pkg/log"
	"time"
)

// ExpirySweeper 定期持久化已过期授权的状态。
// 解析与读接口都按时间推算授权状态，清理只是让持久化状态追上来，不影响正确性。
type ExpirySweeper struct {
	delegations DelegationService
	interval    time.Duration
	batch       int
}

// NewExpirySweeper 创建清理器。interval 不大于 0 时 Run 立即返回。
func NewExpirySweeper(delegations DelegationService, interval time.Duration, batch int) *ExpirySweeper {
	return &ExpirySweeper{delegations: delegations, interval: interval, batch: batch}
}

// Run 阻塞运行直到 ctx 结束。
func (s *ExpirySweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return nil
	}
	log.Infof("[ExpirySweeper] started, interval %s", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if _, err := s.SweepOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			log.Warnw("[ExpirySweeper] sweep failed", "error", err)
		}
	}
}

// SweepOnce 处理过期授权直到没有剩余或出错，返回处理的总数。
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (int, error) {
	batch := s.batch
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	total := 0
	for {
		n, err := s.delegations.ExpireOverdue(ctx, batch)
		total += n
		if err != nil {
			return total, err
		}
		if n < batch {
			return total, nil
		}
	}
}
