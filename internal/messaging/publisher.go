package messaging

import (
	"context"

	"github.com/bardlex/ducomon/internal/snapshot"
	"github.com/bardlex/ducomon/internal/trend"
	"github.com/bardlex/ducomon/pkg/errors"
)

// SnapshotPublisher publishes every rendered cycle to a Kafka topic, keyed
// by username so one account's snapshots stay on one partition.
type SnapshotPublisher struct {
	client *KafkaClient
	topic  string
}

// NewSnapshotPublisher creates a publisher writing to topic
func NewSnapshotPublisher(client *KafkaClient, topic string) *SnapshotPublisher {
	if topic == "" {
		topic = TopicAccountSnapshots
	}
	return &SnapshotPublisher{client: client, topic: topic}
}

// Name identifies the sink in logs
func (p *SnapshotPublisher) Name() string {
	return "kafka"
}

// Export publishes one cycle
func (p *SnapshotPublisher) Export(ctx context.Context, snap *snapshot.AccountSnapshot, tr trend.Trend, cycleID string) error {
	msg := NewSnapshotMessage(snap, tr, cycleID)

	body, err := msg.ToProto()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "encode_snapshot", "failed to encode snapshot").
			WithContext("cycle_id", cycleID)
	}

	headers, err := msg.Headers()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "encode_snapshot", "failed to encode headers").
			WithContext("cycle_id", cycleID)
	}

	return p.client.PublishProto(ctx, p.topic, snap.Username, body, headers...)
}

// Close releases the underlying Kafka connections
func (p *SnapshotPublisher) Close() error {
	return p.client.Close()
}
