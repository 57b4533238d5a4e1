package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/signalcast/internal/forecast"
	"github.com/wonny/signalcast/pkg/logger"
)

// GenerateStage turns unconsumed signals into forecasts
type GenerateStage struct {
	generator *forecast.Generator
	logger    *logger.Logger
}

// NewGenerateStage creates the generation stage
func NewGenerateStage(gen *forecast.Generator, log *logger.Logger) *GenerateStage {
	return &GenerateStage{
		generator: gen,
		logger:    log.WithModule("jobs.generate"),
	}
}

// Name returns the stage name
func (s *GenerateStage) Name() string {
	return "generate"
}

// Run executes one generation pass
func (s *GenerateStage) Run(ctx context.Context) error {
	res, err := s.generator.Generate(ctx)
	if err != nil {
		return fmt.Errorf("generate forecasts: %w", err)
	}
	if res.Failed > 0 {
		return fmt.Errorf("generate forecasts: %d failures", res.Failed)
	}
	return nil
}

// EvaluateStage resolves due forecasts
type EvaluateStage struct {
	manager *forecast.Manager
	logger  *logger.Logger
}

// NewEvaluateStage creates the evaluation stage
func NewEvaluateStage(m *forecast.Manager, log *logger.Logger) *EvaluateStage {
	return &EvaluateStage{
		manager: m,
		logger:  log.WithModule("jobs.evaluate"),
	}
}

// Name returns the stage name
func (s *EvaluateStage) Name() string {
	return "evaluate"
}

// Run executes one evaluation pass
func (s *EvaluateStage) Run(ctx context.Context) error {
	res, err := s.manager.EvaluateDue(ctx)
	if err != nil {
		return fmt.Errorf("evaluate due forecasts: %w", err)
	}
	if res.Failed > 0 {
		return fmt.Errorf("evaluate due forecasts: %d failures", res.Failed)
	}
	return nil
}
