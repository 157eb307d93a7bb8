// Package main implements ducomon, a terminal dashboard for a Duino-Coin
// pool account. It polls the public pool API and redraws the account
// summary and per-miner table every cycle.
package main

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bardlex/ducomon/internal/config"
	"github.com/bardlex/ducomon/internal/dashboard"
	"github.com/bardlex/ducomon/internal/database"
	"github.com/bardlex/ducomon/internal/database/influx"
	"github.com/bardlex/ducomon/internal/database/redis"
	"github.com/bardlex/ducomon/internal/duco"
	"github.com/bardlex/ducomon/internal/messaging"
	"github.com/bardlex/ducomon/pkg/log"
)

const (
	usernamePrompt  = "Enter your DUCO username: "
	fetchingMessage = "Fetching miners list…"
	exitingMessage  = "Exiting…"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger; stdout belongs to the tables
	logOut, closeLog, err := openLogOutput(cfg, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	logger := log.New(cfg.ServiceName, cfg.Version, cfg.LogLevel, cfg.LogFormat, logOut)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	renderer := dashboard.NewTableRenderer(os.Stdout, dashboard.DefaultTheme)

	if err := run(ctx, cfg, logger, renderer, os.Stdin, os.Stdout); err != nil {
		if stderrors.Is(err, context.Canceled) {
			renderer.Message(exitingMessage)
			return
		}
		logger.WithError(err).Error("ducomon failed")
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// openLogOutput picks the log sink. LOG_FILE wins; otherwise logs go to stderr
// only when LOG_LEVEL is set, since stderr shares the terminal with the tables
// and every failed cycle already prints its own notice there.
func openLogOutput(cfg *config.Config, stderr io.Writer) (io.Writer, func(), error) {
	switch {
	case cfg.LogFile != "":
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		return f, func() { _ = f.Close() }, nil
	case cfg.LogLevel != "":
		return stderr, func() {}, nil
	default:
		return io.Discard, func() {}, nil
	}
}

// run drives everything after configuration: prompt, wiring and the loop.
// It only returns once ctx is done or setup failed.
func run(ctx context.Context, cfg *config.Config, logger *log.Logger, renderer dashboard.Renderer, in io.Reader, out io.Writer) error {
	renderer.Clear()

	username := cfg.Username
	if username == "" {
		var err error
		username, err = promptUsername(ctx, in, out)
		if err != nil {
			return err
		}
	}

	renderer.Message(fetchingMessage)
	logger.Info("starting ducomon",
		"version", cfg.Version,
		"api_url", cfg.APIURL,
		"username", username,
	)

	exporters, closeExporters, err := buildExporters(cfg, logger)
	if err != nil {
		return err
	}
	defer closeExporters()

	for _, e := range exporters {
		if m, ok := e.(*database.Manager); ok {
			logPreviousSession(ctx, m, username, cfg.ExportTimeout, logger)
		}
	}

	client := duco.NewClient(cfg.APIURL, logger, duco.WithTimeout(cfg.HTTPTimeout))

	dash := dashboard.New(dashboard.Config{
		Username:      username,
		PollInterval:  cfg.PollInterval,
		RetryInterval: cfg.RetryInterval,
		Glyph:         cfg.CurrencyGlyph,
		ExportTimeout: cfg.ExportTimeout,
	}, client, renderer, logger, dashboard.WithExporters(exporters...))

	return dash.Run(ctx)
}

// logPreviousSession logs what the sinks kept from earlier runs of username.
func logPreviousSession(ctx context.Context, m *database.Manager, username string, timeout time.Duration, logger *log.Logger) {
	recallCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r, err := m.Recall(recallCtx, username, time.Now())
	if err != nil {
		logger.WithError(err).Warn("failed to read previous session")
	}

	fields := []any{
		"cycles", r.Cycles,
		"avg_hashrate", r.AverageHashrate,
		"balance_points", r.BalancePoints,
		"balance_change", r.BalanceChange,
	}
	if r.LastSnapshot != nil {
		fields = append(fields, "last_captured_at", r.LastSnapshot.CapturedAt, "last_balance", r.LastSnapshot.Balance)
	}
	logger.Info("previous session", fields...)
}

// promptUsername asks until a non-empty name is entered. The read runs on its
// own goroutine so an interrupt is honoured while the terminal waits.
func promptUsername(ctx context.Context, in io.Reader, out io.Writer) (string, error) {
	type result struct {
		name string
		err  error
	}

	done := make(chan result, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for {
			fmt.Fprint(out, usernamePrompt)
			if !scanner.Scan() {
				err := scanner.Err()
				if err == nil {
					err = io.ErrUnexpectedEOF
				}
				done <- result{err: err}
				return
			}
			if name := strings.TrimSpace(scanner.Text()); name != "" {
				done <- result{name: name}
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("failed to read username: %w", r.err)
		}
		return r.name, nil
	}
}

// buildExporters connects every sink enabled in cfg. The returned func
// closes them.
func buildExporters(cfg *config.Config, logger *log.Logger) ([]dashboard.Exporter, func(), error) {
	var (
		exporters []dashboard.Exporter
		closers   []func() error
	)

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.WithError(err).Warn("failed to close exporter")
			}
		}
	}

	if cfg.KafkaEnabled() {
		publisher := messaging.NewSnapshotPublisher(messaging.NewKafkaClient(cfg.KafkaBrokers, logger), cfg.KafkaTopic)
		exporters = append(exporters, publisher)
		closers = append(closers, publisher.Close)
	}

	dbCfg := &database.Config{SnapshotTTL: cfg.SnapshotTTL}
	if cfg.RedisEnabled() {
		dbCfg.Redis = &redis.Config{URL: cfg.RedisURL}
	}
	if cfg.InfluxEnabled() {
		dbCfg.Influx = &influx.Config{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		}
	}

	manager, err := database.NewManager(dbCfg, logger)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	if manager.Enabled() {
		exporters = append(exporters, manager)
		closers = append(closers, manager.Close)
	}

	return exporters, closeAll, nil
}
