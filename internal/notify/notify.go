// Package notify publishes per-user render events over Redis Pub/Sub; the
// WebSocket handler forwards them to the browser.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// 事件状态。
const (
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Message 是推送给前端的渲染事件，字段名与前端解析保持一致。
type Message struct {
	Status        string   `json:"status"`
	ResumeID      string   `json:"resume_id"`
	CorrelationID string   `json:"correlation_id,omitempty"`
	ThumbnailURL  string   `json:"thumbnail_url,omitempty"`
	ErrorType     string   `json:"error_type,omitempty"`
	ErrorMessage  string   `json:"error_message,omitempty"`
	Retryable     bool     `json:"retryable,omitempty"`
	MissingIcons  []string `json:"missing_icons,omitempty"`
}

// Channel 返回 owner 的通知频道名。
func Channel(ownerID string) string {
	return "user_notify:" + ownerID
}

// Publisher 向 Redis 发布事件。
type Publisher struct {
	client redis.UniversalClient
}

// NewPublisher 构造 Publisher。
func NewPublisher(client redis.UniversalClient) *Publisher {
	return &Publisher{client: client}
}

// Publish 序列化并发布到 owner 的频道。
func (p *Publisher) Publish(ctx context.Context, ownerID string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := Channel(ownerID)
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}

// Subscribe 订阅 owner 的频道，调用方负责关闭返回的 PubSub。
func (p *Publisher) Subscribe(ctx context.Context, ownerID string) *redis.PubSub {
	return p.client.Subscribe(ctx, Channel(ownerID))
}
