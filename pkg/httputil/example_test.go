package httputil_test

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/signalcast/pkg/config"
	"github.com/wonny/signalcast/pkg/httputil"
	"github.com/wonny/signalcast/pkg/logger"
	"github.com/wonny/signalcast/pkg/redis"
)

// Example_adapterClient shows the client chain used by the price adapter
func Example_adapterClient() {
	cfg := &config.Config{
		Feeds: config.FeedsConfig{UserAgent: "signalcast/1.0"},
	}
	log := logger.Nop()

	// SSOT: http.Client 는 httputil.New 에서만 생성
	client := httputil.NewWithTimeout(cfg, log, 10*time.Second).
		WithRetry(2, 500*time.Millisecond).
		WithLimiter(2, 1).
		WithRateLimiter(redis.NewRateLimiter(redis.Disabled(), "signalcast"), redis.RateLimitConfig{
			Key:    "yahoo",
			Limit:  2,
			Window: time.Second,
		}).
		WithBreaker("yahoo", time.Minute)

	resp, err := client.Get(context.Background(), "https://query1.finance.yahoo.com/v8/finance/chart/GC=F")
	if err != nil {
		fmt.Printf("Request failed: %v\n", err)
		return
	}
	defer resp.Body.Close()

	fmt.Printf("Status: %d\n", resp.StatusCode)
}
