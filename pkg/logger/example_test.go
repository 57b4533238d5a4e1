package logger_test

import (
	"errors"

	"github.com/wonny/signalcast/pkg/config"
	"github.com/wonny/signalcast/pkg/logger"
)

// Example_cycleFields demonstrates the correlation fields a cycle stage logs with
func Example_cycleFields() {
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "info",
		LogFormat: "json",
	}

	log := logger.New(cfg).WithModule("scheduler.cycle")

	stageLog := log.WithCycle("5f0c2d1e").WithField(logger.FieldStage, "prices")
	stageLog.Info("stage finished")

	stageLog.WithError(errors.New("context deadline exceeded")).
		WithField("failure", "timeout").
		Error("stage failed")

	// 내부 컴포넌트는 zerolog.Logger 로 받음
	zl := log.Zerolog().With().Str("component", "forecast.manager").Logger()
	zl.Debug().Msg("not shown at info level")
}
