package telegram

import (
	"context"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-grader/api/internal/document"
	"exam-grader/api/internal/evaluation"
	"exam-grader/api/internal/examiner"
	"exam-grader/api/internal/extraction"
	"exam-grader/api/internal/grading"
	"exam-grader/api/internal/recognize"
	"exam-grader/api/internal/testutil"
)

type fakeBot struct {
	mu       sync.Mutex
	sent     []string
	markups  []any
	requests int
	fileURL  string
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		b.sent = append(b.sent, m.Text)
		b.markups = append(b.markups, m.ReplyMarkup)
	}
	return tgbotapi.Message{}, nil
}

func (b *fakeBot) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.mu.Lock()
	b.requests++
	b.mu.Unlock()
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) GetFileDirectURL(fileID string) (string, error) {
	return b.fileURL + "/" + fileID, nil
}

func (b *fakeBot) last() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sent) == 0 {
		return ""
	}
	return b.sent[len(b.sent)-1]
}

type fakeExam struct {
	mu        sync.Mutex
	subs      []examiner.Submission
	report    examiner.Report
	err       error
	modelText string
	supported map[recognize.Strategy]bool
}

func (f *fakeExam) Evaluate(_ context.Context, sub examiner.Submission) (examiner.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, sub)
	return f.report, f.err
}

func (f *fakeExam) ModelAnswerText(context.Context, []byte) (string, error) { return f.modelText, nil }
func (f *fakeExam) Supports(s recognize.Strategy) bool                    { return f.supported[s] }
func (f *fakeExam) StudentStrategy() recognize.Strategy                   { return recognize.StrategyLocal }

func (f *fakeExam) calls() []examiner.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]examiner.Submission(nil), f.subs...)
}

func sampleReport() examiner.Report {
	pages := []recognize.PageExtraction{recognize.Recognized(0, "boils at 100C")}
	return examiner.Report{
		Result: evaluation.EvaluationResult{
			MarksAwarded:  7.5,
			Percentage:    75,
			Strengths:     []string{"correct temperature"},
			MissingPoints: []string{"no mention of pressure"},
			Feedback:      "Mostly right.",
			Grade:         "B",
		},
		Extracted: extraction.ExtractedDocument{Pages: pages, FullText: extraction.Join(pages), TotalPages: 1},
		Outcome:   evaluation.OutcomeParsed,
	}
}

func newTestRouter(t *testing.T, files map[string][]byte) (*Router, *fakeBot, *fakeExam) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)

	log, _ := test.NewNullLogger()
	bot := &fakeBot{fileURL: srv.URL}
	exam := &fakeExam{
		report:    sampleReport(),
		modelText: "Water boils at 100C.",
		supported: map[recognize.Strategy]bool{recognize.StrategyLocal: true, recognize.StrategyNative: true},
	}
	r := NewRouter(bot, exam, log, Options{MaxFileBytes: 1 << 20, AlbumWait: 30 * time.Millisecond})
	return r, bot, exam
}

func command(chatID int64, text string) tgbotapi.Update {
	cmd := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func text(chatID int64, s string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}, Text: s}}
}

func documentUpd(chatID int64, fileID string, size int) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Document: &tgbotapi.Document{FileID: fileID, FileName: fileID, FileSize: size},
	}}
}

func photoUpd(chatID int64, fileID, group string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:         &tgbotapi.Chat{ID: chatID},
		MediaGroupID: group,
		Photo:        []tgbotapi.PhotoSize{{FileID: "thumb"}, {FileID: fileID}},
	}}
}

func TestSessionSetupAndGrade(t *testing.T) {
	pdf := testutil.PDF("Water boils at 100C")
	r, bot, exam := newTestRouter(t, map[string][]byte{"sheet.pdf": pdf})
	ctx := context.Background()

	r.HandleUpdate(ctx, documentUpd(1, "sheet.pdf", len(pdf)))
	assert.Equal(t, "Set these first: /model, /marks", bot.last())
	assert.Empty(t, exam.calls())

	r.HandleUpdate(ctx, command(1, "/model Water boils at 100C at sea level."))
	assert.Equal(t, "✅ Model answer saved. Now set /marks.", bot.last())
	r.HandleUpdate(ctx, command(1, "/marks 10"))
	r.HandleUpdate(ctx, command(1, "/question At what temperature does water boil?"))

	r.HandleUpdate(ctx, documentUpd(1, "sheet.pdf", len(pdf)))
	calls := exam.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, pdf, calls[0].Document)
	assert.Equal(t, 10, calls[0].MaxMarks)
	assert.Equal(t, "Water boils at 100C at sea level.", calls[0].ModelAnswer)
	assert.Equal(t, "At what temperature does water boil?", calls[0].Question)
	assert.Contains(t, bot.last(), "Marks: 7.5/10 (75%)")
}

func TestModelAnswerFromFollowUpMessages(t *testing.T) {
	pdf := testutil.PDF("Key")
	r, bot, _ := newTestRouter(t, map[string][]byte{"key.pdf": pdf})
	ctx := context.Background()

	r.HandleUpdate(ctx, command(2, "/model"))
	r.HandleUpdate(ctx, documentUpd(2, "key.pdf", len(pdf)))
	assert.Equal(t, "Water boils at 100C.", r.sessions.Get(2).ModelAnswer)
	assert.Equal(t, modeIdle, r.sessions.Get(2).Mode)

	r.HandleUpdate(ctx, command(2, "/question"))
	r.HandleUpdate(ctx, text(2, "  Why is the sky blue?  "))
	assert.Equal(t, "Why is the sky blue?", r.sessions.Get(2).Question)
	assert.Equal(t, "✅ Question saved.", bot.last())

	r.HandleUpdate(ctx, text(2, "hello"))
	assert.Equal(t, "Send an answer sheet to grade, or see /help.", bot.last())
}

func TestMarksValidation(t *testing.T) {
	r, bot, _ := newTestRouter(t, nil)
	for _, in := range []string{"/marks", "/marks zero", "/marks -3"} {
		r.HandleUpdate(context.Background(), command(3, in))
		assert.Contains(t, bot.last(), "Usage: /marks", in)
	}
	assert.Equal(t, 0, r.sessions.Get(3).MaxMarks)
}

func TestEngineSelection(t *testing.T) {
	r, bot, exam := newTestRouter(t, nil)
	ctx := context.Background()

	r.HandleUpdate(ctx, command(4, "/engine vision"))
	assert.Equal(t, "❌ Engine vision is not configured here.", bot.last())

	r.HandleUpdate(ctx, command(4, "/engine crayon"))
	assert.Equal(t, "Unknown engine. Available: local | native", bot.last())

	r.HandleUpdate(ctx, command(4, "/engine"))
	assert.Contains(t, bot.last(), "Current engine: local")
	kb, ok := bot.markups[len(bot.markups)-1].(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 1)
	assert.Len(t, kb.InlineKeyboard[0], 2)

	exam.supported[recognize.StrategyVision] = true
	r.HandleUpdate(ctx, tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		Data:    callbackEnginePrefix + "vision",
		Message: &tgbotapi.Message{MessageID: 9, Chat: &tgbotapi.Chat{ID: 4}},
	}})
	assert.Equal(t, recognize.StrategyVision, r.sessions.Get(4).Strategy)
	assert.Equal(t, 2, bot.requests)
	assert.Equal(t, "✅ Engine: vision.", bot.last())
}

func TestResetAndStatus(t *testing.T) {
	r, bot, _ := newTestRouter(t, nil)
	ctx := context.Background()
	r.HandleUpdate(ctx, command(5, "/model x"))
	r.HandleUpdate(ctx, command(5, "/marks 4"))

	r.HandleUpdate(ctx, command(5, "/status"))
	assert.Equal(t, "Model answer: x\nQuestion: (none)\nMax marks: 4\nEngine: local", bot.last())

	r.HandleUpdate(ctx, command(5, "/reset"))
	assert.Equal(t, Session{}, r.sessions.Get(5))
}

func TestGradeErrorsAreExplained(t *testing.T) {
	png := testutil.PNG(20, 20, color.White)
	r, bot, exam := newTestRouter(t, map[string][]byte{"p.png": png})
	ctx := context.Background()
	r.HandleUpdate(ctx, command(6, "/model x"))
	r.HandleUpdate(ctx, command(6, "/marks 5"))

	exam.err = &grading.GradingUnavailableError{Backend: "gemini", Err: context.DeadlineExceeded}
	r.HandleUpdate(ctx, photoUpd(6, "p.png", ""))
	assert.Equal(t, "❌ The grading service is unavailable right now. Please try again later.", bot.last())

	exam.err = &document.DocumentFormatError{Kind: "pdf"}
	r.HandleUpdate(ctx, photoUpd(6, "p.png", ""))
	assert.Equal(t, "❌ I could not open this file. Send a PDF, JPEG or PNG.", bot.last())
}

func TestOversizedDocumentIsRefused(t *testing.T) {
	r, bot, exam := newTestRouter(t, nil)
	r.HandleUpdate(context.Background(), documentUpd(7, "big.pdf", 2<<20))
	assert.Equal(t, "❌ File too large, the limit is 1 MB.", bot.last())
	assert.Empty(t, exam.calls())
}

func TestAlbumIsGradedOnce(t *testing.T) {
	files := map[string][]byte{
		"a.png": testutil.PNG(40, 30, color.White),
		"b.png": testutil.PNG(20, 50, color.Black),
	}
	r, _, exam := newTestRouter(t, files)
	r.opts.AlbumWait = 300 * time.Millisecond
	ctx := context.Background()
	r.HandleUpdate(ctx, command(8, "/model x"))
	r.HandleUpdate(ctx, command(8, "/marks 5"))

	r.HandleUpdate(ctx, photoUpd(8, "a.png", "g1"))
	r.HandleUpdate(ctx, photoUpd(8, "b.png", "g1"))

	require.Eventually(t, func() bool { return len(exam.calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	calls := exam.calls()
	require.Len(t, calls, 1)
	assert.Nil(t, calls[0].Document)
	assert.Equal(t, [][]byte{files["a.png"], files["b.png"]}, calls[0].Images, "one page per photo, in order")
	assert.Equal(t, 5, calls[0].MaxMarks)
}

func TestAlbumFlushesOnce(t *testing.T) {
	var a albums
	var mu sync.Mutex
	var flushed [][][]byte
	flush := func(_ int64, images [][]byte) {
		mu.Lock()
		flushed = append(flushed, images)
		mu.Unlock()
	}

	assert.True(t, a.add("g", 1, []byte("a"), time.Hour, flush))
	v, ok := a.m.Load("g")
	require.True(t, ok)
	al := v.(*album)

	images, ok := al.take()
	require.True(t, ok)
	assert.Equal(t, [][]byte{[]byte("a")}, images)
	_, ok = al.take()
	assert.False(t, ok, "a fired timer that lost the race must not flush again")

	// the album is spent, so a late photo opens a new one
	assert.True(t, a.add("g", 1, []byte("b"), 10*time.Millisecond, flush))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(flushed) == 1
	}, time.Second, 5*time.Millisecond)
	al.timer.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, [][]byte{[]byte("b")}, flushed[0])
}

func TestFormatVerdict(t *testing.T) {
	rep := sampleReport()
	got := FormatVerdict(rep, 10)
	want := "📝 Marks: 7.5/10 (75%)\nGrade: B\n\n" +
		"✅ Strengths:\n• correct temperature\n\n" +
		"⚠️ Missing:\n• no mention of pressure\n\n" +
		"💬 Mostly right."
	assert.Equal(t, want, got)

	rep.Outcome = evaluation.OutcomeDegraded
	rep.Extracted.Pages = append(rep.Extracted.Pages, recognize.Failed(1, context.Canceled))
	rep.Extracted.TotalPages = 12
	got = FormatVerdict(rep, 10)
	assert.Contains(t, got, "could not be parsed")
	assert.Contains(t, got, "1 of 2 pages could not be read.")
	assert.Contains(t, got, "Only the first 2 of 12 pages were graded.")
}

func TestSessionMissing(t *testing.T) {
	assert.Equal(t, []string{"/model", "/marks"}, Session{}.Missing())
	assert.Equal(t, []string{"/marks"}, Session{ModelAnswer: "x"}.Missing())
	assert.Empty(t, Session{ModelAnswer: "x", MaxMarks: 1}.Missing())
}
