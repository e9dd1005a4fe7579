// Package examiner composes extraction, grading and decoding into the document-to-verdict flow.
package examiner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"exam-grader/api/internal/evaluation"
	"exam-grader/api/internal/extraction"
	"exam-grader/api/internal/grading"
	"exam-grader/api/internal/logger"
	"exam-grader/api/internal/recognize"
)

var ErrNoModelAnswerText = errors.New("model answer has no extractable text")

type Extractor interface {
	Extract(ctx context.Context, data []byte, strategy recognize.Strategy) (extraction.ExtractedDocument, error)
	ExtractImages(ctx context.Context, images [][]byte, strategy recognize.Strategy) (extraction.ExtractedDocument, error)
	Supports(strategy recognize.Strategy) bool
}

type Grader interface {
	Grade(ctx context.Context, req grading.Request) (string, error)
}

type Submission struct {
	Document    []byte
	Images      [][]byte // photos taken page by page; used instead of Document when set
	ModelAnswer string
	MaxMarks    int
	Question    string
	Strategy    recognize.Strategy // empty means the service default
}

// Report is a verdict plus the text it was based on.
type Report struct {
	Result    evaluation.EvaluationResult
	Extracted extraction.ExtractedDocument
	Outcome   evaluation.Outcome
	Anomalies []string
}

type Service struct {
	ext             Extractor
	grader          Grader
	studentStrategy recognize.Strategy
	log             logrus.FieldLogger
}

func New(ext Extractor, grader Grader, studentStrategy recognize.Strategy, log logrus.FieldLogger) *Service {
	if studentStrategy == "" {
		studentStrategy = recognize.StrategyLocal
	}
	return &Service{ext: ext, grader: grader, studentStrategy: studentStrategy, log: log}
}

func (s *Service) StudentStrategy() recognize.Strategy { return s.studentStrategy }

// Supports reports whether strategy is wired into the extraction pipeline.
func (s *Service) Supports(strategy recognize.Strategy) bool { return s.ext.Supports(strategy) }

// Evaluate extracts the student's answer, grades it and decodes the verdict. Only document and
// grading-backend failures are returned as errors; a bad model reply still yields a Report.
func (s *Service) Evaluate(ctx context.Context, sub Submission) (Report, error) {
	req := grading.Request{ModelAnswer: sub.ModelAnswer, MaxMarks: sub.MaxMarks, Question: sub.Question}
	if err := req.Validate(); err != nil {
		return Report{}, err
	}
	log := logger.FromContext(ctx, s.log)
	start := time.Now()

	var (
		doc extraction.ExtractedDocument
		err error
	)
	if len(sub.Images) > 0 {
		doc, err = s.ext.ExtractImages(ctx, sub.Images, s.strategyOr(sub.Strategy))
	} else {
		doc, err = s.ExtractOnly(ctx, sub.Document, sub.Strategy)
	}
	if err != nil {
		return Report{}, err
	}
	req.StudentText = doc.FullText

	raw, err := s.grader.Grade(ctx, req)
	if err != nil {
		return Report{}, err
	}

	dec := evaluation.Decode(raw, sub.MaxMarks)
	entry := log.WithFields(logrus.Fields{
		"strategy":  doc.Strategy,
		"pages":     len(doc.Pages),
		"max_marks": sub.MaxMarks,
		"marks":     dec.Result.MarksAwarded,
		"grade":     dec.Result.Grade,
		"outcome":   dec.Outcome,
		"took":      time.Since(start).Round(time.Millisecond).String(),
	})
	switch {
	case dec.Err != nil:
		entry.WithError(dec.Err).Warn("grading output degraded")
	case len(dec.Anomalies) > 0:
		entry.WithField("anomalies", dec.Anomalies).Warn("grading output normalized")
	default:
		entry.Info("evaluation done")
	}

	return Report{Result: dec.Result, Extracted: doc, Outcome: dec.Outcome, Anomalies: dec.Anomalies}, nil
}

// ExtractOnly runs the extraction pipeline without grading.
func (s *Service) ExtractOnly(ctx context.Context, data []byte, strategy recognize.Strategy) (extraction.ExtractedDocument, error) {
	return s.ext.Extract(ctx, data, s.strategyOr(strategy))
}

func (s *Service) strategyOr(strategy recognize.Strategy) recognize.Strategy {
	if strategy == "" {
		return s.studentStrategy
	}
	return strategy
}

// ModelAnswerText reads a typed model answer from its PDF text layer.
func (s *Service) ModelAnswerText(ctx context.Context, data []byte) (string, error) {
	doc, err := s.ext.Extract(ctx, data, recognize.StrategyNative)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(doc.Pages))
	for _, p := range doc.Pages {
		if p.Status == recognize.StatusOK {
			parts = append(parts, p.Text)
		}
	}
	text := strings.TrimSpace(strings.Join(parts, "\n"))
	if text == "" {
		return "", fmt.Errorf("%w (%d pages)", ErrNoModelAnswerText, len(doc.Pages))
	}
	return text, nil
}
