package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"exam-grader/api/internal/document"
	"exam-grader/api/internal/evaluation"
	"exam-grader/api/internal/examiner"
	"exam-grader/api/internal/extraction"
	"exam-grader/api/internal/grading"
	"exam-grader/api/internal/recognize"
	"exam-grader/api/internal/util"
)

// Telegram rejects messages over 4096 characters.
const maxMessageRunes = 3900

const helpText = `Send me a student's answer sheet (PDF or photos) and I will grade it against your model answer.

Setup:
/model <text> - model answer (or send /model, then the text or a typed PDF)
/question <text> - optional question text
/marks <n> - maximum marks
/engine local|vision - how handwriting is read
/status - current settings
/reset - forget everything for this chat`

func formatMarks(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatVerdict renders a report as a plain-text chat message.
func FormatVerdict(rep examiner.Report, maxMarks int) string {
	res := rep.Result
	var b strings.Builder
	fmt.Fprintf(&b, "📝 Marks: %s/%d (%s%%)\nGrade: %s\n",
		formatMarks(res.MarksAwarded), maxMarks, formatMarks(res.Percentage), res.Grade)

	if len(res.Strengths) > 0 {
		b.WriteString("\n✅ Strengths:\n")
		for _, s := range res.Strengths {
			b.WriteString("• " + s + "\n")
		}
	}
	if len(res.MissingPoints) > 0 {
		b.WriteString("\n⚠️ Missing:\n")
		for _, s := range res.MissingPoints {
			b.WriteString("• " + s + "\n")
		}
	}
	b.WriteString("\n💬 " + res.Feedback + "\n")

	var notes []string
	if rep.Outcome == evaluation.OutcomeDegraded {
		notes = append(notes, "The grader's reply could not be parsed, so this is a fallback result.")
	}
	if n := rep.Extracted.FailedPages(); n > 0 {
		notes = append(notes, fmt.Sprintf("%d of %d pages could not be read.", n, len(rep.Extracted.Pages)))
	}
	if rep.Extracted.TotalPages > len(rep.Extracted.Pages) {
		notes = append(notes, fmt.Sprintf("Only the first %d of %d pages were graded.", len(rep.Extracted.Pages), rep.Extracted.TotalPages))
	}
	if len(notes) > 0 {
		b.WriteString("\nℹ️ " + strings.Join(notes, "\nℹ️ ") + "\n")
	}
	return util.Ellipsize(strings.TrimRight(b.String(), "\n"), maxMessageRunes)
}

func formatSession(s Session, def recognize.Strategy) string {
	strategy := s.Strategy
	if strategy == "" {
		strategy = def
	}
	model := "(not set)"
	if s.ModelAnswer != "" {
		model = util.Ellipsize(s.ModelAnswer, 300)
	}
	question := "(none)"
	if s.Question != "" {
		question = util.Ellipsize(s.Question, 300)
	}
	marks := "(not set)"
	if s.MaxMarks > 0 {
		marks = strconv.Itoa(s.MaxMarks)
	}
	return fmt.Sprintf("Model answer: %s\nQuestion: %s\nMax marks: %s\nEngine: %s", model, question, marks, strategy)
}

// userError turns a pipeline failure into something a teacher can act on.
func userError(err error) string {
	switch {
	case errors.Is(err, document.ErrDocumentFormat):
		return "❌ I could not open this file. Send a PDF, JPEG or PNG."
	case errors.Is(err, examiner.ErrNoModelAnswerText):
		return "❌ This PDF has no text layer. Paste the model answer as text instead."
	case errors.Is(err, extraction.ErrStrategyUnavailable):
		return "❌ This engine is not configured here. Try /engine."
	case errors.Is(err, grading.ErrGradingUnavailable):
		return "❌ The grading service is unavailable right now. Please try again later."
	}
	return "❌ Something went wrong: " + err.Error()
}

func engineKeyboard(strategies []recognize.Strategy) tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(strategies))
	for _, s := range strategies {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(string(s), callbackEnginePrefix+string(s)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}
