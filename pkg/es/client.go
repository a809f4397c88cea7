// Package es 提供了与 Elasticsearch 交互的客户端功能，用于审计日志的检索投影。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"org-authority-go/internal/config"
	"org-authority-go/internal/model"
	"org-authority-go/pkg/log"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ESClient *elasticsearch.Client

// NewClient 创建 Elasticsearch 客户端。
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	return elasticsearch.NewClient(cfg)
}

// InitES 初始化 Elasticsearch 客户端并确保审计索引存在。
func InitES(ctx context.Context, esCfg config.ElasticsearchConfig) (*AuditIndex, error) {
	client, err := NewClient(esCfg)
	if err != nil {
		return nil, err
	}
	ESClient = client
	idx := NewAuditIndex(client, esCfg.AuditIndex)
	if err := idx.EnsureIndex(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

// auditMapping 中 changes_text 与 reason/notes 做全文检索，其余字段精确过滤。
const auditMapping = `{
	"mappings": {
		"properties": {
			"id": { "type": "keyword" },
			"company_id": { "type": "keyword" },
			"entity_type": { "type": "keyword" },
			"entity_id": { "type": "keyword" },
			"action": { "type": "keyword" },
			"actor_user_id": { "type": "keyword" },
			"actor_name": { "type": "text", "fields": { "raw": { "type": "keyword" } } },
			"reason": { "type": "text" },
			"notes": { "type": "text" },
			"changed_fields": { "type": "keyword" },
			"changes_text": { "type": "text" },
			"related_entity_ids": { "type": "keyword" },
			"timestamp": { "type": "date" }
		}
	}
}`

// AuditIndex 封装了审计索引的写入与检索。
type AuditIndex struct {
	client *elasticsearch.Client
	index  string
}

// NewAuditIndex 创建一个新的 AuditIndex 实例。
func NewAuditIndex(client *elasticsearch.Client, index string) *AuditIndex {
	return &AuditIndex{client: client, index: index}
}

// EnsureIndex 检查索引是否存在，如果不存在则创建它。
func (a *AuditIndex) EnsureIndex(ctx context.Context) error {
	res, err := a.client.Indices.Exists([]string{a.index}, a.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", a.index)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = a.client.Indices.Create(
		a.index,
		a.client.Indices.Create.WithContext(ctx),
		a.client.Indices.Create.WithBody(strings.NewReader(auditMapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", a.index, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", a.index, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}
	log.Infof("索引 '%s' 创建成功", a.index)
	return nil
}

// DocumentOf 把审计日志转换为检索文档。
func DocumentOf(l model.OrgAuditLog) model.AuditDocument {
	doc := model.AuditDocument{
		ID:               l.ID,
		CompanyID:        l.CompanyID,
		EntityType:       string(l.EntityType),
		EntityID:         l.EntityID,
		Action:           string(l.Action),
		ActorUserID:      l.Actor.UserID,
		ActorName:        l.Actor.Name,
		Reason:           l.Reason,
		Notes:            l.Notes,
		ChangedFields:    []string{},
		RelatedEntityIDs: []string{},
		Timestamp:        l.Timestamp,
	}
	var text []string
	for _, c := range l.Changes {
		doc.ChangedFields = append(doc.ChangedFields, c.Field)
		text = append(text, fmt.Sprintf("%s: %v -> %v", c.Field, c.OldValue, c.NewValue))
	}
	doc.ChangesText = strings.Join(text, "; ")
	for _, r := range l.RelatedEntities {
		doc.RelatedEntityIDs = append(doc.RelatedEntityIDs, r.EntityID)
	}
	return doc
}

// IndexAudit 写入一条审计文档。文档 ID 即日志 ID，重复投递是幂等的。
func (a *AuditIndex) IndexAudit(ctx context.Context, doc model.AuditDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{
		Index:      a.index,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(docBytes),
	}
	res, err := req.Do(ctx, a.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("索引审计文档到 Elasticsearch 出错: %s", res.String())
		return fmt.Errorf("failed to index audit document %s", doc.ID)
	}
	return nil
}

// SearchAudit 在租户范围内对审计文档做全文检索，按相关度与时间排序。
func (a *AuditIndex) SearchAudit(ctx context.Context, companyID, query string, size int) ([]model.AuditSearchHit, error) {
	esQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"multi_match": map[string]interface{}{
						"query":  query,
						"fields": []string{"reason^2", "notes", "changes_text", "actor_name", "entity_id", "related_entity_ids"},
					},
				},
				"filter": []map[string]interface{}{
					{"term": map[string]interface{}{"company_id": companyID}},
				},
			},
		},
		"sort": []interface{}{"_score", map[string]interface{}{"timestamp": "desc"}},
		"size": size,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := a.client.Search(
		a.client.Search.WithContext(ctx),
		a.client.Search.WithIndex(a.index),
		a.client.Search.WithBody(&buf),
	)
	if err != nil {
		log.Errorf("[AuditIndex] 向 Elasticsearch 发送搜索请求失败: %v", err)
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("[AuditIndex] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.AuditDocument `json:"_source"`
				Score  float64             `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}
	hits := make([]model.AuditSearchHit, 0, len(esResponse.Hits.Hits))
	for _, h := range esResponse.Hits.Hits {
		hits = append(hits, model.AuditSearchHit{Document: h.Source, Score: h.Score})
	}
	return hits, nil
}
