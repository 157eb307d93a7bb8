package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bardlex/ducomon/internal/config"
	"github.com/bardlex/ducomon/internal/dashboard"
	"github.com/bardlex/ducomon/internal/database"
	"github.com/bardlex/ducomon/internal/snapshot"
	"github.com/bardlex/ducomon/pkg/log"
)

func TestPromptUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		prompts int
		wantErr bool
	}{
		{"first line", "revox\n", "revox", 1, false},
		{"repeats until non-empty", "\n   \nrevox\n", "revox", 3, false},
		{"trims", "  revox  \n", "revox", 1, false},
		{"eof", "", "", 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got, err := promptUsername(context.Background(), strings.NewReader(tt.input), &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("promptUsername() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("promptUsername() = %q, want %q", got, tt.want)
			}
			if n := strings.Count(out.String(), usernamePrompt); n != tt.prompts {
				t.Errorf("prompt shown %d times, want %d", n, tt.prompts)
			}
		})
	}
}

func TestPromptUsername_Canceled(t *testing.T) {
	reader, writer := io.Pipe()
	defer writer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := promptUsername(ctx, reader, io.Discard)
	if err != context.Canceled {
		t.Errorf("promptUsername() error = %v, want context.Canceled", err)
	}
}

func TestBuildExporters_NoneEnabled(t *testing.T) {
	cfg := &config.Config{SnapshotTTL: time.Minute}

	exporters, closeAll, err := buildExporters(cfg, log.Discard())
	if err != nil {
		t.Fatalf("buildExporters() error = %v", err)
	}
	defer closeAll()

	if len(exporters) != 0 {
		t.Errorf("buildExporters() returned %d exporters, want 0", len(exporters))
	}
}

func TestBuildExporters_Kafka(t *testing.T) {
	cfg := &config.Config{
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "duco.account_snapshots",
		SnapshotTTL:  time.Minute,
	}

	exporters, closeAll, err := buildExporters(cfg, log.Discard())
	if err != nil {
		t.Fatalf("buildExporters() error = %v", err)
	}
	defer closeAll()

	if len(exporters) != 1 || exporters[0].Name() != "kafka" {
		t.Errorf("buildExporters() = %v, want the kafka publisher", exporters)
	}
}

// cancelingRenderer stops the run after the first rendered cycle.
type cancelingRenderer struct {
	cancel   context.CancelFunc
	views    []dashboard.View
	messages []string
}

func (r *cancelingRenderer) Clear() {}

func (r *cancelingRenderer) Render(v dashboard.View) {
	r.views = append(r.views, v)
	r.cancel()
}

func (r *cancelingRenderer) Message(line string) {
	r.messages = append(r.messages, line)
}

func TestRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/miners.json":
			_, _ = w.Write([]byte(`{"k": {"User": "revox", "Identifier": "rig", "Software": "PC Miner", "Algorithm": "DUCO-S1",
				"Hashrate": 2500, "Accepted": 10, "Rejected": 2, "Sharerate": 5, "Diff": 300}}`))
		case "/balances.json":
			_, _ = w.Write([]byte(`{"revox": "42.5 DUCO"}`))
		case "/api.json":
			_, _ = w.Write([]byte(`{"Duco price": 0.0004}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := &config.Config{
		Version:       "test",
		APIURL:        srv.URL,
		PollInterval:  15 * time.Second,
		RetryInterval: 10 * time.Second,
		CurrencyGlyph: "ᕲ",
		ExportTimeout: time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	renderer := &cancelingRenderer{cancel: cancel}
	var out bytes.Buffer

	err := run(ctx, cfg, log.Discard(), renderer, strings.NewReader("revox\n"), &out)
	if err != context.Canceled {
		t.Fatalf("run() error = %v, want context.Canceled", err)
	}

	if len(renderer.messages) == 0 || renderer.messages[0] != fetchingMessage {
		t.Errorf("messages = %v, want %q first", renderer.messages, fetchingMessage)
	}
	if len(renderer.views) != 1 {
		t.Fatalf("rendered %d views, want 1", len(renderer.views))
	}

	got := renderer.views[0]
	if got.Summary.Balance != "42.5 ᕲ" {
		t.Errorf("Summary.Balance = %q, want %q", got.Summary.Balance, "42.5 ᕲ")
	}
	if got.Summary.DailyProfit != "0 ᕲ" {
		t.Errorf("Summary.DailyProfit = %q, want %q", got.Summary.DailyProfit, "0 ᕲ")
	}
	if len(got.Miners) != 1 || got.Miners[0].Success != "10/12" {
		t.Errorf("Miners = %+v, want one rig at 10/12", got.Miners)
	}
}

func TestOpenLogOutput(t *testing.T) {
	var stderr bytes.Buffer

	w, closeLog, err := openLogOutput(&config.Config{}, &stderr)
	if err != nil {
		t.Fatalf("openLogOutput() error = %v", err)
	}
	closeLog()
	if w != io.Discard {
		t.Errorf("default sink = %T, want io.Discard", w)
	}

	w, closeLog, err = openLogOutput(&config.Config{LogLevel: "debug"}, &stderr)
	if err != nil {
		t.Fatalf("openLogOutput() error = %v", err)
	}
	closeLog()
	if w != &stderr {
		t.Errorf("explicit level sink = %T, want stderr", w)
	}

	path := filepath.Join(t.TempDir(), "ducomon.log")
	w, closeLog, err = openLogOutput(&config.Config{LogFile: path, LogLevel: "debug"}, &stderr)
	if err != nil {
		t.Fatalf("openLogOutput() error = %v", err)
	}
	log.New("ducomon", "test", "", "text", w).Warn("written")
	closeLog()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "written") {
		t.Errorf("log file = %q, want the warning", data)
	}
}

func TestRun_OneLinePerFailureByDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	t.Chdir(t.TempDir())
	for _, key := range []string{"LOG_LEVEL", "LOG_FILE", "KAFKA_BROKERS", "REDIS_URL", "INFLUX_URL"} {
		t.Setenv(key, "")
	}
	t.Setenv("DUCO_API_URL", srv.URL)
	t.Setenv("DUCO_USERNAME", "revox")
	t.Setenv("RETRY_INTERVAL", "5ms")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}

	// Tables, notices and stderr all land on the same terminal.
	var terminal bytes.Buffer
	logOut, closeLog, err := openLogOutput(cfg, &terminal)
	if err != nil {
		t.Fatalf("openLogOutput() error = %v", err)
	}
	defer closeLog()
	logger := log.New(cfg.ServiceName, cfg.Version, cfg.LogLevel, cfg.LogFormat, logOut)
	renderer := dashboard.NewTableRenderer(&terminal, dashboard.DefaultTheme)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	if err := run(ctx, cfg, logger, renderer, strings.NewReader(""), &terminal); err != context.DeadlineExceeded {
		t.Fatalf("run() error = %v, want context.DeadlineExceeded", err)
	}

	lines := strings.Split(strings.TrimSuffix(terminal.String(), "\n"), "\n")
	if len(lines) < 3 {
		t.Fatalf("terminal = %q, want the fetching line and at least two failures", terminal.String())
	}
	if !strings.HasSuffix(lines[0], fetchingMessage) {
		t.Errorf("first line = %q, want %q", lines[0], fetchingMessage)
	}
	notice := "HTTP error occurred: 503 Service Unavailable for url: " + srv.URL + "/miners.json"
	for i, line := range lines[1:] {
		if line != notice {
			t.Errorf("line %d = %q, want only %q", i+1, line, notice)
		}
	}
}

type cachedSession struct {
	snap *snapshot.AccountSnapshot
}

func (c cachedSession) SetSnapshot(context.Context, *snapshot.AccountSnapshot, time.Duration) error {
	return nil
}

func (c cachedSession) RecordHashrate(context.Context, string, int64, time.Time, time.Duration) error {
	return nil
}

func (c cachedSession) IncrementCycles(context.Context, string, time.Duration) (int64, error) {
	return 0, nil
}

func (c cachedSession) GetSnapshot(context.Context, string) (*snapshot.AccountSnapshot, error) {
	return c.snap, nil
}

func (c cachedSession) GetCycles(context.Context, string) (int64, error) { return 42, nil }

func (c cachedSession) GetAverageHashrate(context.Context, string, time.Time, time.Duration) (float64, error) {
	return 1500, nil
}

func (c cachedSession) Close() error { return nil }

func TestLogPreviousSession(t *testing.T) {
	snap := &snapshot.AccountSnapshot{Username: "revox", Balance: 12.5, CapturedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	manager := database.New(cachedSession{snap: snap}, nil, time.Minute, time.Hour, log.Discard())

	var buf bytes.Buffer
	logger := log.New("ducomon", "test", "info", "text", &buf)

	logPreviousSession(context.Background(), manager, "revox", time.Second, logger)

	out := buf.String()
	for _, want := range []string{`msg="previous session"`, "cycles=42", "avg_hashrate=1500", "last_balance=12.5"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}
