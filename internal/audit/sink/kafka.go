// Package sink exports sealed audit events to downstream consumers. Export
// is best effort: the audit trail of record is the database, so a sink
// failure never fails the commit it follows.
package sink

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"worksafe/internal/audit"
	"worksafe/pkg/platform/circuit"
)

const defaultTopic = "worksafe.audit-events"

// Kafka publishes sealed events to a Kafka topic, keyed by tenant so a
// tenant's events stay ordered within a partition. A circuit breaker sheds
// produce attempts while the brokers are unhealthy; dropped events are
// logged with their id so they can be replayed from the database.
type Kafka struct {
	client  *kgo.Client
	topic   string
	breaker *circuit.Breaker
	logger  *slog.Logger
	shed    atomic.Uint64
}

const probeInterval = 10

func (k *Kafka) probe() bool {
	return k.shed.Add(1)%probeInterval == 0
}

// Option configures the Kafka sink.
type Option func(*Kafka)

func WithTopic(topic string) Option {
	return func(k *Kafka) { k.topic = topic }
}

func WithLogger(l *slog.Logger) Option {
	return func(k *Kafka) { k.logger = l }
}

// NewKafka connects to the brokers and ensures the topic exists. Topic
// creation failing because the topic is already there is fine.
func NewKafka(ctx context.Context, brokers []string, opts ...Option) (*Kafka, error) {
	k := &Kafka{
		topic:  defaultTopic,
		logger: slog.Default(),
		breaker: circuit.New("kafka-audit",
			circuit.WithFailureThreshold(5),
			circuit.WithSuccessThreshold(2)),
	}
	for _, opt := range opts {
		opt(k)
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(k.topic),
		kgo.ProducerLinger(50*time.Millisecond),
	)
	if err != nil {
		return nil, err
	}
	k.client = client

	admin := kadm.NewClient(client)
	if _, err := admin.CreateTopic(ctx, -1, -1, nil, k.topic); err != nil {
		k.logger.Debug("audit topic create skipped", "topic", k.topic, "error", err)
	}
	return k, nil
}

// envelope is the wire shape of one exported event.
type envelope struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	TenantID  string         `json:"tenant_id"`
	ActorID   string         `json:"actor_id,omitempty"`
	ActorName string         `json:"actor_name,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Diffs     []envelopeDiff `json:"diffs"`
}

type envelopeDiff struct {
	ObjectType string          `json:"object_type"`
	ObjectID   string          `json:"object_id"`
	Type       string          `json:"type"`
	OldValues  json.RawMessage `json:"old_values,omitempty"`
	NewValues  json.RawMessage `json:"new_values,omitempty"`
}

// Publish produces the event asynchronously. Implements audit.Sink.
func (k *Kafka) Publish(ctx context.Context, event *audit.Event) {
	// While open, most events are shed but every probeInterval'th still
	// produces so consecutive successes can close the breaker again.
	if k.breaker.IsOpen() && !k.probe() {
		k.logger.Warn("audit event export skipped, sink circuit open",
			"event_id", event.ID.String())
		return
	}

	value, err := json.Marshal(toEnvelope(event))
	if err != nil {
		k.logger.Error("encode audit event for export", "error", err)
		return
	}
	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(event.TenantID.String()),
		Value: value,
	}
	eventID := event.ID.String()
	k.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			if _, change := k.breaker.RecordFailure(); change.Opened {
				k.logger.Error("audit kafka sink circuit opened", "error", err)
			}
			k.logger.Warn("audit event export failed", "event_id", eventID, "error", err)
			return
		}
		if _, change := k.breaker.RecordSuccess(); change.Closed {
			k.logger.Info("audit kafka sink circuit closed")
		}
	})
}

// Close flushes buffered records and releases the client.
func (k *Kafka) Close(ctx context.Context) error {
	if err := k.client.Flush(ctx); err != nil {
		return err
	}
	k.client.Close()
	return nil
}

func toEnvelope(event *audit.Event) envelope {
	env := envelope{
		ID:        event.ID.String(),
		Type:      string(event.Type),
		TenantID:  event.TenantID.String(),
		ActorName: event.Actor.Name,
		RequestID: event.RequestID,
		CreatedAt: event.CreatedAt,
		Diffs:     make([]envelopeDiff, 0, len(event.Diffs)),
	}
	if !event.Actor.UserID.IsNil() {
		env.ActorID = event.Actor.UserID.String()
	}
	for _, d := range event.Diffs {
		env.Diffs = append(env.Diffs, envelopeDiff{
			ObjectType: string(d.ObjectType),
			ObjectID:   d.ObjectID.String(),
			Type:       string(d.Type),
			OldValues:  d.OldValues,
			NewValues:  d.NewValues,
		})
	}
	return env
}
