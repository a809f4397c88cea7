// Package kafka 提供了与 Kafka 消息队列交互的功能：发布组织变更事件并消费它们。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"org-authority-go/internal/config"
	"org-authority-go/pkg/events"
	"org-authority-go/pkg/log"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// EventHandler 处理一条组织变更事件。
// 这样 Kafka 消费者就不依赖具体的投影实现。
type EventHandler interface {
	Handle(ctx context.Context, event events.OrgChangeEvent) error
}

// messageWriter 是 *kafka.Writer 中生产者用到的部分。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// messageReader 是 *kafka.Reader 中消费者用到的部分。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer 把已提交的审计日志作为变更事件发布到 Kafka。
type Producer struct {
	writer messageWriter
}

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// NewProducer 创建 Kafka 生产者。同一租户的事件使用相同的分区键，保持顺序。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers(cfg)...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	log.Infof("Kafka 生产者初始化成功, topic=%s", cfg.Topic)
	return &Producer{writer: w}
}

// PublishOrgChange 发送一条组织变更事件到 Kafka。
func (p *Producer) PublishOrgChange(ctx context.Context, event events.OrgChangeEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   event.Key(),
		Value: body,
		Time:  event.OccurredAt,
	})
}

// Close 刷新并关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// maxAttempts 是同一事件处理失败后重试的次数上限，超过后提交 offset 放弃该事件。
const maxAttempts = 3

// Consumer 消费组织变更事件。失败次数记录在 Redis 中，多个实例共享同一计数。
type Consumer struct {
	reader  messageReader
	handler EventHandler
	rdb     *redis.Client
}

// NewConsumer 创建一个新的 Kafka 消费者。rdb 为 nil 时失败的事件总是留给 Kafka 重投。
func NewConsumer(cfg config.KafkaConfig, handler EventHandler, rdb *redis.Client) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  500 * time.Millisecond,
	})
	log.Infof("Kafka 消费者已创建，正在监听主题 '%s'", cfg.Topic)
	return &Consumer{reader: r, handler: handler, rdb: rdb}
}

func attemptsKey(eventID string) string {
	return fmt.Sprintf("kafka:attempts:%s", eventID)
}

// Run 循环拉取并处理事件，直到 ctx 结束或读取失败。
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			log.Error("从 Kafka 读取消息失败", err)
			return err
		}
		c.handleMessage(ctx, m)
	}
}

func (c *Consumer) handleMessage(ctx context.Context, m kafka.Message) {
	var event events.OrgChangeEvent
	if err := json.Unmarshal(m.Value, &event); err != nil || event.EventID == "" {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		// 消息格式错误，直接提交，避免阻塞队列
		c.commit(ctx, m)
		return
	}

	if err := c.handler.Handle(ctx, event); err != nil {
		log.Errorf("处理组织变更事件失败: event=%s entity=%s/%s, Error: %v", event.EventID, event.EntityType, event.EntityID, err)
		if c.rdb == nil {
			return
		}
		// 使用 Redis 计数失败次数，达到阈值后提交 offset 终止重试
		key := attemptsKey(event.EventID)
		attempts, incErr := c.rdb.Incr(ctx, key).Result()
		if incErr != nil {
			// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
			return
		}
		_ = c.rdb.Expire(ctx, key, 24*time.Hour).Err()
		if attempts >= maxAttempts {
			log.Errorf("组织变更事件多次失败(>=%d)，提交 offset 终止重试: event=%s", maxAttempts, event.EventID)
			c.commit(ctx, m)
		}
		return
	}

	if c.rdb != nil {
		_ = c.rdb.Del(ctx, attemptsKey(event.EventID)).Err()
	}
	c.commit(ctx, m)
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}
