package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/bardlex/ducomon/internal/snapshot"
)

func TestAverageSamples(t *testing.T) {
	tests := []struct {
		name    string
		members []string
		want    float64
	}{
		{"empty", nil, 0},
		{"single", []string{"1714564800:1500"}, 1500},
		{"mean", []string{"1:1000", "2:2000", "3:3000"}, 2000},
		{"skips garbage", []string{"1:1000", "bogus", "2:x", "3:3000"}, 2000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := averageSamples(tt.members); got != tt.want {
				t.Errorf("averageSamples() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewClient_InvalidURL(t *testing.T) {
	if _, err := NewClient(&Config{URL: "not-a-redis-url"}); err == nil {
		t.Error("NewClient() should reject a non redis:// URL")
	}
}

func TestConfig_Options(t *testing.T) {
	cfg := &Config{URL: "redis://:secret@cache.local:6380/2?dial_timeout=3s", PoolSize: 4, ReadTimeout: time.Second}

	opts, err := cfg.options()
	if err != nil {
		t.Fatalf("options() error = %v", err)
	}

	if opts.Addr != "cache.local:6380" || opts.DB != 2 || opts.Password != "secret" {
		t.Errorf("options() addr/db/password = %s/%d/%s, want cache.local:6380/2/secret", opts.Addr, opts.DB, opts.Password)
	}
	if opts.PoolSize != 4 {
		t.Errorf("PoolSize = %d, want 4", opts.PoolSize)
	}
	if opts.ReadTimeout != time.Second {
		t.Errorf("ReadTimeout = %v, want 1s", opts.ReadTimeout)
	}
	if opts.DialTimeout != 3*time.Second {
		t.Errorf("DialTimeout = %v, want the URL's 3s", opts.DialTimeout)
	}
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/15"
	}

	client, err := NewClient(&Config{URL: url, DialTimeout: 500 * time.Millisecond})
	if err != nil {
		t.Skipf("Redis not available at %s: %v", url, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClient_Snapshot(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	user := "ducomon-test-" + time.Now().Format("150405.000")
	snap := &snapshot.AccountSnapshot{
		Username:       user,
		BalanceDisplay: "3 DUCO",
		Balance:        3,
		Miners:         []snapshot.MinerRecord{{Identifier: "rig", Hashrate: 10, Accepted: 1, Sharerate: 1}},
		TotalHashrate:  10,
		CapturedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	if _, err := client.GetSnapshot(ctx, user); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetSnapshot() before set error = %v, want ErrNotFound", err)
	}

	if err := client.SetSnapshot(ctx, snap, time.Minute); err != nil {
		t.Fatalf("SetSnapshot() error = %v", err)
	}

	got, err := client.GetSnapshot(ctx, user)
	if err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if got.Balance != 3 || len(got.Miners) != 1 || !got.CapturedAt.Equal(snap.CapturedAt) {
		t.Errorf("GetSnapshot() = %+v, want %+v", got, snap)
	}
}

func TestClient_Hashrate(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	user := "ducomon-test-" + time.Now().Format("150405.000")
	now := time.Now()

	for i, rate := range []int64{1000, 1000, 4000} {
		if err := client.RecordHashrate(ctx, user, rate, now.Add(time.Duration(i-2)*time.Second), time.Hour); err != nil {
			t.Fatalf("RecordHashrate() error = %v", err)
		}
	}

	got, err := client.GetAverageHashrate(ctx, user, now, time.Hour)
	if err != nil {
		t.Fatalf("GetAverageHashrate() error = %v", err)
	}
	if got != 2000 {
		t.Errorf("GetAverageHashrate() = %v, want 2000", got)
	}

	n, err := client.IncrementCycles(ctx, user, time.Minute)
	if err != nil || n != 1 {
		t.Errorf("IncrementCycles() = %d, %v, want 1, nil", n, err)
	}
	if n, _ := client.GetCycles(ctx, user); n != 1 {
		t.Errorf("GetCycles() = %d, want 1", n)
	}
}
