// Package influx writes per-cycle account and worker metrics to InfluxDB.
package influx

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/bardlex/ducomon/internal/snapshot"
	"github.com/bardlex/ducomon/internal/trend"
)

// Measurement names
const (
	MeasurementAccount = "account"
	MeasurementWorker  = "worker"
)

// connectTimeout bounds the readiness check made by NewClient
const connectTimeout = 5 * time.Second

// Client writes cycle points through the blocking write API and reads the
// balance series back
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	bucket   string
}

// Config holds InfluxDB connection configuration
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// NewClient connects to cfg.URL and fails unless the server reports itself
// healthy within connectTimeout.
func NewClient(cfg *Config) (*Client, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := checkHealth(ctx, client); err != nil {
		client.Close()
		return nil, err
	}

	return &Client{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		queryAPI: client.QueryAPI(cfg.Org),
		bucket:   cfg.Bucket,
	}, nil
}

func checkHealth(ctx context.Context, client influxdb2.Client) error {
	health, err := client.Health(ctx)
	if err != nil {
		return fmt.Errorf("influxdb unreachable: %w", err)
	}
	if health.Status == "pass" {
		return nil
	}

	reason := string(health.Status)
	if health.Message != nil {
		reason = *health.Message
	}
	return fmt.Errorf("influxdb not ready: %s", reason)
}

// Close releases the underlying HTTP client. Writes are blocking, so there
// is nothing left to flush.
func (c *Client) Close() {
	c.client.Close()
}

// AccountPoint builds the account-level point for one cycle
func AccountPoint(snap *snapshot.AccountSnapshot, tr trend.Trend, cycleID string) *write.Point {
	tags := map[string]string{"username": snap.Username}

	fields := map[string]any{
		"balance":         snap.Balance,
		"miners":          int64(len(snap.Miners)),
		"total_hashrate":  snap.TotalHashrate,
		"total_accepted":  snap.TotalAccepted,
		"total_sharerate": snap.TotalSharerate,
		"success_percent": snap.SuccessPercent(),
		"price_usd":       snap.PriceUSD,
		"cycle_id":        cycleID,
	}
	if !tr.First {
		fields["daily_rate"] = tr.DailyRate
		fields["balance_delta"] = tr.Delta
	}

	return write.NewPoint(MeasurementAccount, tags, fields, snap.CapturedAt)
}

// WorkerPoints builds one point per miner of the snapshot
func WorkerPoints(snap *snapshot.AccountSnapshot) []*write.Point {
	points := make([]*write.Point, 0, len(snap.Miners))
	for _, m := range snap.Miners {
		tags := map[string]string{
			"username":   snap.Username,
			"identifier": m.Identifier,
			"software":   m.Software,
			"algorithm":  m.Algorithm,
		}

		fields := map[string]any{
			"hashrate":           m.Hashrate,
			"accepted":           m.Accepted,
			"rejected":           m.Rejected,
			"sharerate":          m.Sharerate,
			"reported_sharerate": m.ReportedSharerate,
			"difficulty":         m.Difficulty,
		}

		points = append(points, write.NewPoint(MeasurementWorker, tags, fields, snap.CapturedAt))
	}
	return points
}

// WriteCycle writes the account point and every worker point of one cycle
func (c *Client) WriteCycle(ctx context.Context, snap *snapshot.AccountSnapshot, tr trend.Trend, cycleID string) error {
	points := append([]*write.Point{AccountPoint(snap, tr, cycleID)}, WorkerPoints(snap)...)

	if err := c.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write %d points for %s: %w", len(points), snap.Username, err)
	}
	return nil
}

// GetBalanceHistory returns the balance observations of username over the
// last duration, oldest first. Non-float values are skipped.
func (c *Client) GetBalanceHistory(ctx context.Context, username string, duration time.Duration) ([]BalancePoint, error) {
	result, err := c.queryAPI.Query(ctx, balanceHistoryQuery(c.bucket, username, duration))
	if err != nil {
		return nil, fmt.Errorf("balance history query: %w", err)
	}
	defer func() { _ = result.Close() }()

	var points []BalancePoint
	for result.Next() {
		record := result.Record()
		balance, ok := record.Value().(float64)
		if !ok {
			continue
		}
		points = append(points, BalancePoint{Time: record.Time(), Balance: balance})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("balance history result: %w", err)
	}

	return points, nil
}

func balanceHistoryQuery(bucket, username string, duration time.Duration) string {
	return fmt.Sprintf(`
		from(bucket: %s)
		|> range(start: -%s)
		|> filter(fn: (r) => r._measurement == %s)
		|> filter(fn: (r) => r.username == %s)
		|> filter(fn: (r) => r._field == "balance")
	`, fluxString(bucket), duration.String(), fluxString(MeasurementAccount), fluxString(username))
}

// fluxString quotes s as a Flux string literal. "${" is escaped because Flux
// interpolates it.
func fluxString(s string) string {
	return strings.ReplaceAll(strconv.Quote(s), "${", `\${`)
}

// BalancePoint is one balance observation
type BalancePoint struct {
	Time    time.Time `json:"time"`
	Balance float64   `json:"balance"`
}
