// Package workitems 提供了一个与工作项改派服务交互的客户端。
package workitems

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"org-authority-go/internal/config"
	"strings"
	"time"
)

// Result 是一次改派的结果。改派服务可能只移动了部分工作项，未移动的原因记录在 Errors 中。
type Result struct {
	TasksMoved     int      `json:"tasksMoved"`
	ProjectsMoved  int      `json:"projectsMoved"`
	ApprovalsMoved int      `json:"approvalsMoved"`
	Errors         []string `json:"errors"`
}

// Total 返回移动的工作项总数。
func (r Result) Total() int {
	return r.TasksMoved + r.ProjectsMoved + r.ApprovalsMoved
}

// Reassigner 把一个用户在某岗位上的未完成工作项转给另一个用户。
type Reassigner interface {
	ReassignOpenItems(ctx context.Context, companyID, fromUserID, toUserID, positionID string) (Result, error)
}

// Client 是改派服务的 HTTP 客户端。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建一个新的改派服务客户端。BaseURL 为空时返回 Noop。
func NewClient(cfg config.WorkItemsConfig) Reassigner {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return Noop{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type reassignRequest struct {
	CompanyID  string `json:"companyId"`
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
	PositionID string `json:"positionId"`
}

// ReassignOpenItems 调用 POST {baseURL}/reassignments。
func (c *Client) ReassignOpenItems(ctx context.Context, companyID, fromUserID, toUserID, positionID string) (Result, error) {
	body, err := json.Marshal(reassignRequest{CompanyID: companyID, FromUserID: fromUserID, ToUserID: toUserID, PositionID: positionID})
	if err != nil {
		return Result{}, fmt.Errorf("编码改派请求失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/reassignments", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("调用改派服务失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, fmt.Errorf("改派服务返回错误 [%d]: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("解析改派响应失败: %w", err)
	}
	return result, nil
}

// Noop 在没有配置改派服务时使用，不移动任何工作项。
type Noop struct{}

func (Noop) ReassignOpenItems(context.Context, string, string, string, string) (Result, error) {
	return Result{}, nil
}
