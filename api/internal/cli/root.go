// Package cli holds the exam-grader command line: the HTTP server plus one-shot
// evaluate, ocr and model-answer commands.
package cli

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"exam-grader/api/internal/app"
	"exam-grader/api/internal/config"
	"exam-grader/api/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:           "examiner",
	Short:         "Grade scanned exam answers against a model answer",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig and buildApp are variables so tests can swap them.
var (
	loadConfig = config.Load
	buildApp   = app.Build
)

// setup loads config, validates it and wires the application.
func setup(ctx context.Context, requireGemini, withStore bool) (*app.App, *logrus.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(requireGemini); err != nil {
		return nil, nil, err
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	a, err := buildApp(ctx, cfg, log, app.Options{WithStore: withStore})
	if err != nil {
		return nil, nil, err
	}
	return a, log, nil
}
