// Package dashboard drives the poll loop: fetch, aggregate, project, render,
// then wait for the next cycle.
package dashboard

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"

	"github.com/bardlex/ducomon/internal/duco"
	"github.com/bardlex/ducomon/internal/format"
	"github.com/bardlex/ducomon/internal/snapshot"
	"github.com/bardlex/ducomon/internal/trend"
	"github.com/bardlex/ducomon/pkg/errors"
	"github.com/bardlex/ducomon/pkg/log"
	"github.com/bardlex/ducomon/pkg/retry"
)

const defaultExportTimeout = 5 * time.Second

// Fetcher retrieves one complete set of pool payloads.
type Fetcher interface {
	FetchAll(ctx context.Context) (*duco.Payloads, error)
}

// Exporter ships a rendered cycle to an external sink. Exports are best
// effort and never influence what is rendered next.
type Exporter interface {
	Name() string
	Export(ctx context.Context, snap *snapshot.AccountSnapshot, tr trend.Trend, cycleID string) error
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Config holds the loop settings.
type Config struct {
	Username      string
	PollInterval  time.Duration
	RetryInterval time.Duration
	Glyph         string
	ExportTimeout time.Duration
}

// Option customizes a Dashboard.
type Option func(*Dashboard)

// WithExporters adds snapshot exporters.
func WithExporters(exporters ...Exporter) Option {
	return func(d *Dashboard) {
		d.exporters = append(d.exporters, exporters...)
	}
}

// WithSleeper replaces the wait between cycles.
func WithSleeper(s Sleeper) Option {
	return func(d *Dashboard) {
		d.sleep = s
	}
}

// WithClock replaces the time source used to stamp snapshots.
func WithClock(now func() time.Time) Option {
	return func(d *Dashboard) {
		d.now = now
	}
}

// Dashboard owns the trend state and runs the poll loop on a single goroutine.
type Dashboard struct {
	cfg       Config
	fetcher   Fetcher
	renderer  Renderer
	exporters []Exporter
	tracker   *trend.Tracker
	recovery  *retry.Config
	sleep     Sleeper
	now       func() time.Time
	logger    *log.Logger
}

// New creates a dashboard for cfg.Username.
func New(cfg Config, fetcher Fetcher, renderer Renderer, logger *log.Logger, opts ...Option) *Dashboard {
	if cfg.Glyph == "" {
		cfg.Glyph = format.DefaultGlyph
	}
	if cfg.ExportTimeout <= 0 {
		cfg.ExportTimeout = defaultExportTimeout
	}

	d := &Dashboard{
		cfg:      cfg,
		fetcher:  fetcher,
		renderer: renderer,
		tracker:  trend.NewTracker(),
		recovery: retry.FixedConfig(cfg.RetryInterval),
		sleep:    retry.Sleep,
		now:      time.Now,
		logger:   logger.WithComponent("dashboard").WithUser(cfg.Username),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// TrendState returns the state carried into the next cycle.
func (d *Dashboard) TrendState() trend.State {
	return d.tracker.State()
}

// Run repeats cycles until ctx is canceled. A successful cycle is followed by
// the poll interval, a failed one by the recovery interval; either way the
// next cycle starts from a fresh fetch. Run only returns ctx.Err().
func (d *Dashboard) Run(ctx context.Context) error {
	failures := 0

	for {
		err := d.RunCycle(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		delay := d.cfg.PollInterval
		if err != nil {
			delay = d.recovery.Delay(failures)
			failures++
			d.report(err, delay)
		} else {
			failures = 0
		}

		if err := d.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// RunCycle performs one fetch-aggregate-render pass. Nothing is rendered and
// the trend state is untouched unless the whole pass succeeds.
func (d *Dashboard) RunCycle(ctx context.Context) error {
	cycleID := uuid.NewString()
	logger := d.logger.WithCycle(cycleID)

	payloads, err := d.fetcher.FetchAll(ctx)
	if err != nil {
		return err
	}

	snap, err := snapshot.Aggregate(payloads, d.cfg.Username, d.now())
	if err != nil {
		return err
	}

	tr := d.tracker.Project(snap)

	d.renderer.Clear()
	d.renderer.Render(Present(snap, tr, d.cfg.Glyph))
	d.tracker.Commit(snap)

	logger.LogCycle(len(snap.Miners), snap.TotalHashrate, snap.Balance, tr.DailyRate)

	d.export(ctx, logger, snap, tr, cycleID)
	return nil
}

func (d *Dashboard) export(ctx context.Context, logger *log.Logger, snap *snapshot.AccountSnapshot, tr trend.Trend, cycleID string) {
	if len(d.exporters) == 0 {
		return
	}

	exportCtx, cancel := context.WithTimeout(ctx, d.cfg.ExportTimeout)
	defer cancel()

	for _, e := range d.exporters {
		if err := e.Export(exportCtx, snap, tr, cycleID); err != nil {
			logger.LogExport(e.Name(), err)
		}
	}
}

// report prints the one-line notice for a failed cycle.
func (d *Dashboard) report(err error, retryIn time.Duration) {
	var statusErr *duco.StatusError
	switch {
	case stderrors.As(err, &statusErr):
		d.renderer.Message("HTTP error occurred: " + statusErr.Error())
		d.logger.LogFetchFailure(err, retryIn)
	case errors.IsType(err, errors.ErrorTypeValidation):
		d.renderer.Message("Malformed payload: " + err.Error())
		d.logger.Error("malformed payload", "error", err, "retry_in", retryIn.String())
	default:
		d.renderer.Message("Other error occurred: " + err.Error())
		d.logger.LogFetchFailure(err, retryIn)
	}
}
