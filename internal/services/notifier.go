package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/go-redis/redis/v8"
)

// Notifier delivers transaction outcome notifications. Delivery is
// fire-and-forget: failures are logged and never fail the transaction.
type Notifier interface {
	Notify(ctx context.Context, transactionID, summary string)
}

// QueueNotifier pushes notifications onto a Redis list for downstream
// delivery workers (SMS, push, email). A nil client disables queueing.
type QueueNotifier struct {
	client *redis.Client
	queue  string
}

// NewQueueNotifier builds a notifier publishing to the given queue.
func NewQueueNotifier(client *redis.Client, queue string) *QueueNotifier {
	if queue == "" {
		queue = "notification_queue"
	}
	return &QueueNotifier{client: client, queue: queue}
}

type notificationPayload struct {
	TransactionID string `json:"transaction_id"`
	Summary       string `json:"summary"`
}

// Notify queues a notification. Errors are logged, never returned.
func (n *QueueNotifier) Notify(ctx context.Context, transactionID, summary string) {
	if n.client == nil {
		return
	}
	data, err := json.Marshal(notificationPayload{
		TransactionID: transactionID,
		Summary:       summary,
	})
	if err != nil {
		log.Printf("[NOTIFIER] failed to marshal notification for %s: %v", transactionID, err)
		return
	}
	if err := n.client.RPush(ctx, n.queue, data).Err(); err != nil {
		log.Printf("[NOTIFIER] failed to queue notification for %s: %v", transactionID, err)
	}
}
