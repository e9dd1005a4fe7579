// Package app wires configuration into the running grader: recognizers, the extraction
// pipeline, the grading engine and the optional Postgres store.
package app

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"exam-grader/api/internal/config"
	"exam-grader/api/internal/document"
	"exam-grader/api/internal/examiner"
	"exam-grader/api/internal/extraction"
	"exam-grader/api/internal/gemini"
	"exam-grader/api/internal/grading"
	"exam-grader/api/internal/handle"
	"exam-grader/api/internal/openai"
	"exam-grader/api/internal/recognize"
	"exam-grader/api/internal/store"
)

type App struct {
	Config *config.Config
	Log    logrus.FieldLogger
	Exam   *examiner.Service
	DB     *sql.DB // nil without DATABASE_URL
}

// Options choose which optional parts Build brings up.
type Options struct {
	WithStore bool
}

func Build(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, opts Options) (*App, error) {
	raster := document.NewRasterizer(cfg.PdftoppmPath)
	if err := raster.CheckRenderer(); err != nil {
		log.WithError(err).Warn("pdf rendering unavailable; only images and typed PDFs can be read")
	}

	// without a key the client still exists and fails each call with a clear error
	model := newBackend(cfg)

	recs := map[recognize.Strategy]recognize.PageRecognizer{}
	tess := recognize.NewTesseract(recognize.TesseractConfig{Langs: cfg.OCRLangs})
	if err := tess.Ready(); err != nil {
		log.WithError(err).Warn("local OCR unavailable")
	} else {
		recs[recognize.StrategyLocal] = tess
	}
	if cfg.ModelAPIKey() != "" {
		recs[recognize.StrategyVision] = recognize.NewVision(model, recognize.VisionConfig{
			MaxSide: cfg.VisionMaxSide,
			Quality: cfg.VisionQuality,
			Timeout: cfg.VisionTimeout,
			RPS:     cfg.VisionRPS,
		})
	}

	pipeline := extraction.New(raster, log, extraction.Config{
		Options: document.Options{
			MaxPages:  cfg.MaxPages,
			DPI:       cfg.DPI,
			MaxPixels: cfg.MaxPixels,
		},
		Workers:     cfg.PageWorkers,
		Recognizers: recs,
		Native:      recognize.NewNativeExtractor(),
	})

	strategy, err := recognize.ParseStrategy(cfg.StudentStrategy)
	if err != nil {
		return nil, err
	}
	if !pipeline.Supports(strategy) {
		fallback := recognize.StrategyNative
		if pipeline.Supports(recognize.StrategyVision) {
			fallback = recognize.StrategyVision
		}
		log.WithFields(logrus.Fields{"configured": strategy, "using": fallback}).
			Warn("student strategy unavailable, falling back")
		strategy = fallback
	}

	engine := grading.NewEngine(model, cfg.GradeTimeout, log)

	a := &App{
		Config: cfg,
		Log:    log,
		Exam:   examiner.New(pipeline, engine, strategy, log),
	}

	if opts.WithStore && cfg.DatabaseURL != "" {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.WithField("db", store.SafeDSNSummary(cfg.DatabaseURL)).Info("db connected")
		a.DB = db
	}
	return a, nil
}

type backend interface {
	grading.Generator
	recognize.ImageGenerator
}

func newBackend(cfg *config.Config) backend {
	if cfg.Backend == config.BackendOpenAI {
		return openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	}
	return gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.VisionModel())
}

// Handler builds the HTTP API. Store-backed routes answer 503 when no database is configured.
func (a *App) Handler() http.Handler {
	return handle.New(a.handlerDeps()).Routes()
}

func (a *App) handlerDeps() handle.Deps {
	d := handle.Deps{
		Exam:           a.Exam,
		MaxUploadBytes: a.Config.MaxUploadBytes,
		RequestTimeout: a.Config.RequestBudget(),
		AllowedOrigins: a.Config.AllowedOrigins,
		Log:            a.Log,
	}
	if a.DB != nil {
		d.Teachers = store.NewTeacherRepo(a.DB)
		d.Students = store.NewStudentRepo(a.DB)
		d.Evaluations = store.NewEvaluationRepo(a.DB)
		d.DB = a.DB
	}
	return d
}

// RunRetention purges old evaluations every interval until ctx ends. It returns at once when
// retention is disabled or there is no database.
func (a *App) RunRetention(ctx context.Context, interval time.Duration) {
	if a.DB == nil || a.Config.Retention <= 0 {
		return
	}
	repo := store.NewEvaluationRepo(a.DB)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		n, err := repo.PurgeOlderThan(ctx, a.Config.Retention)
		if err != nil && ctx.Err() == nil {
			a.Log.WithError(err).Warn("evaluation purge failed")
		} else if n > 0 {
			a.Log.WithField("deleted", n).Info("old evaluations purged")
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
