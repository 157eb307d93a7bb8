package messaging

import (
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/bardlex/ducomon/internal/snapshot"
	"github.com/bardlex/ducomon/internal/trend"
)

// SnapshotMessage is one rendered cycle as published to TopicAccountSnapshots
type SnapshotMessage struct {
	CycleID        string        `json:"cycle_id"`
	Username       string        `json:"username"`
	Balance        float64       `json:"balance"`
	BalanceDisplay string        `json:"balance_display"`
	PriceUSD       float64       `json:"price_usd"`
	TotalHashrate  int64         `json:"total_hashrate"`
	TotalAccepted  int64         `json:"total_accepted"`
	TotalSharerate int64         `json:"total_sharerate"`
	SuccessPercent int64         `json:"success_percent"`
	DailyRate      float64       `json:"daily_rate"`
	FirstCycle     bool          `json:"first_cycle"`
	Workers        []WorkerStats `json:"workers"`
	CapturedAt     time.Time     `json:"captured_at"`
}

// WorkerStats is one miner inside a SnapshotMessage
type WorkerStats struct {
	Identifier string `json:"identifier"`
	Software   string `json:"software"`
	Algorithm  string `json:"algorithm"`
	Hashrate   int64  `json:"hashrate"`
	Accepted   int64  `json:"accepted"`
	Rejected   int64  `json:"rejected"`
	Sharerate  int64  `json:"sharerate"`
	Difficulty int64  `json:"difficulty"`
}

// NewSnapshotMessage builds the message for one cycle
func NewSnapshotMessage(snap *snapshot.AccountSnapshot, tr trend.Trend, cycleID string) *SnapshotMessage {
	msg := &SnapshotMessage{
		CycleID:        cycleID,
		Username:       snap.Username,
		Balance:        snap.Balance,
		BalanceDisplay: snap.BalanceDisplay,
		PriceUSD:       snap.PriceUSD,
		TotalHashrate:  snap.TotalHashrate,
		TotalAccepted:  snap.TotalAccepted,
		TotalSharerate: snap.TotalSharerate,
		SuccessPercent: snap.SuccessPercent(),
		DailyRate:      tr.DailyRate,
		FirstCycle:     tr.First,
		Workers:        make([]WorkerStats, 0, len(snap.Miners)),
		CapturedAt:     snap.CapturedAt,
	}

	for _, m := range snap.Miners {
		msg.Workers = append(msg.Workers, WorkerStats{
			Identifier: m.Identifier,
			Software:   m.Software,
			Algorithm:  m.Algorithm,
			Hashrate:   m.Hashrate,
			Accepted:   m.Accepted,
			Rejected:   m.Rejected,
			Sharerate:  m.Sharerate,
			Difficulty: m.Difficulty,
		})
	}

	return msg
}

// ToProto encodes the message body as a google.protobuf.Struct. The capture
// time travels separately in the HeaderCapturedAt header.
func (m *SnapshotMessage) ToProto() (*structpb.Struct, error) {
	workers := make([]any, 0, len(m.Workers))
	for _, w := range m.Workers {
		workers = append(workers, map[string]any{
			"identifier": w.Identifier,
			"software":   w.Software,
			"algorithm":  w.Algorithm,
			"hashrate":   w.Hashrate,
			"accepted":   w.Accepted,
			"rejected":   w.Rejected,
			"sharerate":  w.Sharerate,
			"difficulty": w.Difficulty,
		})
	}

	return structpb.NewStruct(map[string]any{
		"cycle_id":        m.CycleID,
		"username":        m.Username,
		"balance":         m.Balance,
		"balance_display": m.BalanceDisplay,
		"price_usd":       m.PriceUSD,
		"total_hashrate":  m.TotalHashrate,
		"total_accepted":  m.TotalAccepted,
		"total_sharerate": m.TotalSharerate,
		"success_percent": m.SuccessPercent,
		"daily_rate":      m.DailyRate,
		"first_cycle":     m.FirstCycle,
		"workers":         workers,
	})
}

// Headers returns the Kafka headers carried alongside the body
func (m *SnapshotMessage) Headers() ([]kafka.Header, error) {
	ts := timestamppb.New(m.CapturedAt)
	if err := ts.CheckValid(); err != nil {
		return nil, fmt.Errorf("invalid capture time: %w", err)
	}

	raw, err := proto.Marshal(ts)
	if err != nil {
		return nil, err
	}

	return []kafka.Header{
		{Key: HeaderCapturedAt, Value: raw},
		{Key: HeaderCycleID, Value: []byte(m.CycleID)},
	}, nil
}
