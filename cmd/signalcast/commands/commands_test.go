package commands

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/signalcast/internal/api/handlers"
	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/internal/scheduler"
)

const testFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>markets</title>
<item><guid>fed-1</guid><title>Emergency Fed rate hike shocks markets</title>
<description>&lt;p&gt;The Federal Reserve delivered an emergency 0.75% rate hike, sending gold down sharply.&lt;/p&gt;</description></item>
<item><guid>cpi-1</guid><title>CPI rose 3.2% in March</title></item>
<item><guid>oil-1</guid><title>Oil may fall, analysts say prices could drop</title></item>
</channel></rss>`

// upstream serves the feed and a quote for every symbol
func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/rss":
			w.Header().Set("Content-Type", "application/rss+xml")
			_, _ = w.Write([]byte(testFeed))
		case strings.HasPrefix(r.URL.Path, "/v8/finance/chart/"):
			_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"regularMarketPrice":100.5,"regularMarketTime":1772442000}}],"error":null}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	dbPath   string
	lockPath string
}

func setupEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	srv := upstream(t)

	e := testEnv{
		dbPath:   filepath.Join(dir, "signalcast.db"),
		lockPath: filepath.Join(dir, "worker.lock"),
	}
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", e.dbPath)
	t.Setenv("WORKER_LOCK_PATH", e.lockPath)
	t.Setenv("FEED_URLS", srv.URL+"/rss")
	t.Setenv("PRICES_BASE_URL", srv.URL)
	t.Setenv("PRICES_REQUESTS_PER_SEC", "0")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "error")
	return e
}

// run executes the CLI once with fresh flag values
func run(t *testing.T, args ...string) (int, string) {
	t.Helper()
	configFile, env, verbose = "", "", false
	workerCycles, workerOnce, workerMetricsPort = 0, false, ""
	summaryWindowDays = 0
	forecastsStatus, forecastsAsset, forecastsLimit = "", "", 20

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	code := Execute()
	return code, out.String()
}

func TestWorkerOnce_ThenQueries(t *testing.T) {
	setupEnv(t)

	code, out := run(t, "worker", "start", "--once")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "[Cycle]")
	for _, stage := range []string{"ingest", "prices", "generate", "evaluate", "downstream"} {
		assert.Contains(t, out, stage)
	}

	code, out = run(t, "status")
	assert.Equal(t, 0, code, out)
	assert.Contains(t, out, contracts.WorkerAlive)

	code, out = run(t, "forecasts", "--status", "active")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "Forecasts (")
	assert.NotContains(t, out, "active=0 ")

	code, out = run(t, "migrate", "status")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "create_core_tables")

	code, out = run(t, "evaluate")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "Evaluation Pass")

	// 아직 평가된 예측이 없으므로 행 없음
	code, out = run(t, "summary", "--window-days", "3")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "No summary rows")
}

func TestWorker_LockHeldExitsWithoutSideEffects(t *testing.T) {
	e := setupEnv(t)

	lock, err := scheduler.AcquireLock(e.lockPath)
	require.NoError(t, err)
	defer lock.Release()

	code, out := run(t, "worker", "start", "--once")
	assert.Equal(t, 0, code, out)
	assert.NotContains(t, out, "[Cycle]")

	_, err = os.Stat(e.dbPath)
	assert.True(t, os.IsNotExist(err), "store must not be opened while another worker holds the lock")
}

func TestFlagValidation(t *testing.T) {
	setupEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"bad status", []string{"forecasts", "--status", "done"}},
		{"bad limit", []string{"forecasts", "--limit", "0"}},
		{"negative cycles", []string{"worker", "start", "--cycles", "-1"}},
		{"negative window", []string{"summary", "--window-days", "-2"}},
		{"bad env", []string{"status", "--env", "qa"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := run(t, tt.args...)
			assert.Equal(t, 1, code)
		})
	}
}

func TestStatus_NeverStartedExitsOne(t *testing.T) {
	setupEnv(t)

	code, out := run(t, "migrate", "up")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "Applied Now")

	code, out = run(t, "status")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, contracts.WorkerNeverStarted)
}

func TestPrintLiveness(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	hb := now.Add(-5 * time.Minute)
	l := &contracts.Liveness{LastHeartbeatAt: &hb, LastCycleID: "c-1", LastError: "prices: timeout", LastErrorAt: &hb, PID: 42}

	var buf bytes.Buffer
	printLiveness(&buf, handlers.NewLivenessView(l, now, 2*time.Minute), "pid=42 started_at=2026-03-02T08:00:00Z")

	out := buf.String()
	assert.Contains(t, out, "❌ stalled")
	assert.Contains(t, out, "age 300.0s")
	assert.Contains(t, out, "prices: timeout")
	assert.Contains(t, out, "pid=42")
}

func TestForecastResult(t *testing.T) {
	tests := []struct {
		name string
		f    contracts.Forecast
		want string
	}{
		{"active", contracts.Forecast{Status: contracts.StatusActive}, "-"},
		{"expired", contracts.Forecast{Status: contracts.StatusExpired, ExpiryReason: contracts.ExpiryReasonNoPrice}, "expired: no_price_after_due"},
		{"hit", contracts.Forecast{Status: contracts.StatusEvaluated, Outcome: &contracts.Outcome{DirectionCorrect: true, PctMove: 1.25, Quality: contracts.QualityExact}}, "HIT +1.25% (exact)"},
		{"miss", contracts.Forecast{Status: contracts.StatusEvaluated, Outcome: &contracts.Outcome{PctMove: -0.4, Quality: contracts.QualityApprox}}, "MISS -0.40% (approx)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, forecastResult(tt.f))
		})
	}
}
