package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeStoragePurge = "storage:purge"
)

// QueueMaintenance 是后台维护任务使用的队列。
const QueueMaintenance = "maintenance"

// StoragePurgePayload 描述需要删除的孤儿对象。
type StoragePurgePayload struct {
	Bucket string   `json:"bucket"`
	Keys   []string `json:"keys"`
}

// NewStoragePurgeTask 构造一个对象清理任务。
func NewStoragePurgeTask(bucket string, keys []string) (*asynq.Task, error) {
	payload, err := json.Marshal(StoragePurgePayload{
		Bucket: bucket,
		Keys:   keys,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeStoragePurge, payload,
		asynq.Queue(QueueMaintenance),
		asynq.MaxRetry(10),
		asynq.Timeout(2*time.Minute),
	), nil
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// PurgeQueue 把删除失败的对象键投递到 asynq。
type PurgeQueue struct {
	client enqueuer
}

// NewPurgeQueue 构造 PurgeQueue，client 通常是 *asynq.Client。
func NewPurgeQueue(client enqueuer) *PurgeQueue {
	return &PurgeQueue{client: client}
}

// EnqueuePurge 投递一个清理任务；keys 为空时什么都不做。
func (q *PurgeQueue) EnqueuePurge(ctx context.Context, bucket string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	task, err := NewStoragePurgeTask(bucket, keys)
	if err != nil {
		return fmt.Errorf("build purge task: %w", err)
	}
	if _, err := q.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue purge task: %w", err)
	}
	return nil
}
