package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"

	"github.com/shopfront/checkout/pkg/metrics"
)

const topic = "storefront-notifications"

type kind string

const (
	kindAdmin    kind = "admin"
	kindCustomer kind = "customer"
)

type envelope struct {
	EventID string            `json:"event_id"`
	Kind    kind              `json:"kind"`
	Payload OrderNotification `json:"payload"`
	SentAt  time.Time         `json:"sent_at"`
}

type KafkaDispatcher struct {
	writer  *kafka.Writer
	breaker *gobreaker.CircuitBreaker[struct{}]
	metrics *metrics.CheckoutMetrics
}

func NewKafkaDispatcher(m *metrics.CheckoutMetrics, brokers ...string) *KafkaDispatcher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	// once the broker starts failing, stop paying the connect timeout on
	// every finalization and drop notifications fast until it recovers
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "notification-writer",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &KafkaDispatcher{writer: w, breaker: cb, metrics: m}
}

func (d *KafkaDispatcher) NotifyAdmin(ctx context.Context, n OrderNotification) {
	d.publish(ctx, kindAdmin, n)
}

func (d *KafkaDispatcher) NotifyCustomer(ctx context.Context, n OrderNotification) {
	d.publish(ctx, kindCustomer, n)
}

func (d *KafkaDispatcher) publish(ctx context.Context, k kind, n OrderNotification) {
	value, err := json.Marshal(envelope{
		EventID: uuid.NewString(),
		Kind:    k,
		Payload: n,
		SentAt:  time.Now(),
	})
	if err != nil {
		log.Printf("failed to marshal %v notification for order %v: %v", k, n.OrderNumber, err)
		return
	}

	_, err = d.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, d.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(n.OrderNumber),
			Value: value,
		})
	})
	if err != nil {
		log.Printf("failed to publish %v notification for order %v: %v", k, n.OrderNumber, err)
		d.metrics.Notification(string(k), "failed")
		return
	}
	d.metrics.Notification(string(k), "sent")
}

func (d *KafkaDispatcher) Close() {
	if err := d.writer.Close(); err != nil {
		log.Printf("error closing kafka writer: %v", err)
	}
}
