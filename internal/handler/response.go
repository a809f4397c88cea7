// Package handler 包含了处理 HTTP 请求的控制器逻辑。
//
// 所有响应使用统一的信封 {"code","message","data"}，出错时额外带上 "kind"，
// 调用方据此区分错误种类，而不需要解析 message。
package handler

import (
	"errors"
	"fmt"
	"net/http"
	"org-authority-go/internal/orgerr"
	"org-authority-go/pkg/log"
	"time"

	"github.com/gin-gonic/gin"
)

// statusOf 把错误种类映射为 HTTP 状态码。
func statusOf(err error) int {
	switch {
	case errors.Is(err, orgerr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orgerr.ErrInvalidArgument),
		errors.Is(err, orgerr.ErrInvalidWindow),
		errors.Is(err, orgerr.ErrInvalidReference),
		errors.Is(err, orgerr.ErrCycle):
		return http.StatusBadRequest
	case errors.Is(err, orgerr.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, orgerr.ErrDuplicateCode),
		errors.Is(err, orgerr.ErrCapacityExceeded),
		errors.Is(err, orgerr.ErrAlreadyEnded),
		errors.Is(err, orgerr.ErrNoActiveOccupant),
		errors.Is(err, orgerr.ErrInvalidStateTransition),
		errors.Is(err, orgerr.ErrStaleSwap),
		errors.Is(err, orgerr.ErrConcurrentModification),
		errors.Is(err, orgerr.ErrOverlappingAssignment),
		errors.Is(err, orgerr.ErrDelegationOverlap):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": data})
}

func created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{"code": http.StatusCreated, "message": "success", "data": data})
}

// fail 写出错误响应。op 用于日志定位。
func fail(c *gin.Context, op string, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("%s: %v", op, err)
	} else {
		log.Warnf("%s: %v", op, err)
	}
	c.JSON(status, gin.H{
		"code":      status,
		"message":   err.Error(),
		"kind":      orgerr.KindName(err),
		"retryable": orgerr.IsRetryable(err),
		"data":      nil,
	})
}

// badRequest 处理无法解析的请求体或参数。
func badRequest(c *gin.Context, op string, err error) {
	fail(c, op, orgerr.New(orgerr.ErrInvalidArgument, "无效的请求参数: %v", err))
}

// queryTime 解析 RFC3339 格式的查询参数，缺省时返回零值。
func queryTime(c *gin.Context, key string) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s 不是 RFC3339 时间: %q", key, raw)
	}
	return t, nil
}
