package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"exam-grader/api/internal/examiner"
	"exam-grader/api/internal/recognize"
)

// Bot is the part of *tgbotapi.BotAPI the router needs.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, sub examiner.Submission) (examiner.Report, error)
	ModelAnswerText(ctx context.Context, data []byte) (string, error)
	Supports(strategy recognize.Strategy) bool
	StudentStrategy() recognize.Strategy
}

type Options struct {
	MaxFileBytes int64
	Timeout      time.Duration // per grading run
	AlbumWait    time.Duration // how long to wait for the rest of a photo album
}

type Router struct {
	bot      Bot
	exam     Evaluator
	sessions *Sessions
	albums   *albums
	http     *http.Client
	opts     Options
	log      logrus.FieldLogger
}

func NewRouter(bot Bot, exam Evaluator, log logrus.FieldLogger, opts Options) *Router {
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = 16 << 20
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.AlbumWait <= 0 {
		opts.AlbumWait = 1200 * time.Millisecond
	}
	return &Router{
		bot:      bot,
		exam:     exam,
		sessions: &Sessions{},
		albums:   &albums{},
		http:     &http.Client{Timeout: 60 * time.Second},
		opts:     opts,
		log:      log,
	}
}

func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		r.handleCallback(*upd.CallbackQuery)
		return
	}
	msg := upd.Message
	if msg == nil {
		return
	}
	cid := msg.Chat.ID

	switch {
	case msg.IsCommand():
		r.HandleCommand(ctx, msg)
	case msg.Document != nil:
		r.acceptDocument(ctx, msg)
	case len(msg.Photo) > 0:
		r.acceptPhoto(ctx, msg)
	case strings.TrimSpace(msg.Text) != "":
		r.acceptText(cid, msg.Text)
	}
}

func (r *Router) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		r.send(cid, helpText)
	case "model":
		if args == "" {
			r.sessions.Update(cid, func(s *Session) { s.Mode = modeAwaitModel })
			r.send(cid, "Send the model answer as text or as a typed PDF.")
			return
		}
		r.setModelAnswer(cid, args)
	case "question":
		if args == "" {
			r.sessions.Update(cid, func(s *Session) { s.Mode = modeAwaitQuestion })
			r.send(cid, "Send the question text.")
			return
		}
		r.sessions.Update(cid, func(s *Session) { s.Question, s.Mode = args, modeIdle })
		r.send(cid, "✅ Question saved.")
	case "marks":
		n, err := strconv.Atoi(args)
		if err != nil || n <= 0 {
			r.send(cid, "Usage: /marks <positive whole number>, e.g. /marks 10")
			return
		}
		r.sessions.Update(cid, func(s *Session) { s.MaxMarks = n })
		r.send(cid, fmt.Sprintf("✅ Maximum marks: %d.", n))
	case "engine":
		r.handleEngineCommand(cid, args)
	case "status":
		r.send(cid, formatSession(r.sessions.Get(cid), r.exam.StudentStrategy()))
	case "reset":
		r.sessions.Reset(cid)
		r.send(cid, "Session cleared.")
	default:
		r.send(cid, "Unknown command. See /help.")
	}
}

// handleEngineCommand switches how this chat's answer sheets are read.
//
//	/engine
//	/engine local
//	/engine vision
func (r *Router) handleEngineCommand(chatID int64, arg string) {
	if arg == "" {
		cur := r.sessions.Get(chatID).Strategy
		if cur == "" {
			cur = r.exam.StudentStrategy()
		}
		msg := tgbotapi.NewMessage(chatID, "Current engine: "+string(cur)+"\nChoose another:")
		msg.ReplyMarkup = engineKeyboard(r.availableStrategies())
		r.sendMsg(msg)
		return
	}
	r.setStrategy(chatID, arg)
}

func (r *Router) setStrategy(chatID int64, name string) {
	s, err := recognize.ParseStrategy(name)
	if err != nil {
		r.send(chatID, "Unknown engine. Available: "+joinStrategies(r.availableStrategies()))
		return
	}
	if !r.exam.Supports(s) {
		r.send(chatID, "❌ Engine "+string(s)+" is not configured here.")
		return
	}
	r.sessions.Update(chatID, func(sess *Session) { sess.Strategy = s })
	r.send(chatID, "✅ Engine: "+string(s)+".")
}

func (r *Router) availableStrategies() []recognize.Strategy {
	var out []recognize.Strategy
	for _, s := range []recognize.Strategy{recognize.StrategyLocal, recognize.StrategyVision, recognize.StrategyNative} {
		if r.exam.Supports(s) {
			out = append(out, s)
		}
	}
	return out
}

func joinStrategies(ss []recognize.Strategy) string {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = string(s)
	}
	return strings.Join(parts, " | ")
}

func (r *Router) acceptText(chatID int64, text string) {
	text = strings.TrimSpace(text)
	switch r.sessions.Get(chatID).Mode {
	case modeAwaitModel:
		r.setModelAnswer(chatID, text)
	case modeAwaitQuestion:
		r.sessions.Update(chatID, func(s *Session) { s.Question, s.Mode = text, modeIdle })
		r.send(chatID, "✅ Question saved.")
	default:
		r.send(chatID, "Send an answer sheet to grade, or see /help.")
	}
}

func (r *Router) setModelAnswer(chatID int64, text string) {
	s := r.sessions.Update(chatID, func(s *Session) { s.ModelAnswer, s.Mode = text, modeIdle })
	reply := "✅ Model answer saved."
	if s.MaxMarks <= 0 {
		reply += " Now set /marks."
	}
	r.send(chatID, reply)
}

// grade runs one answer sheet through the examiner and replies with the verdict.
// grade fills sub from the chat session and sends back the verdict.
func (r *Router) grade(ctx context.Context, chatID int64, sub examiner.Submission) {
	sess := r.sessions.Get(chatID)
	if missing := sess.Missing(); len(missing) > 0 {
		r.send(chatID, "Set these first: "+strings.Join(missing, ", "))
		return
	}
	r.send(chatID, "⏳ Grading…")

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	sub.ModelAnswer = sess.ModelAnswer
	sub.MaxMarks = sess.MaxMarks
	sub.Question = sess.Question
	sub.Strategy = sess.Strategy
	rep, err := r.exam.Evaluate(ctx, sub)
	if err != nil {
		r.log.WithError(err).WithField("chat_id", chatID).Warn("telegram grading failed")
		r.send(chatID, userError(err))
		return
	}
	r.send(chatID, FormatVerdict(rep, sess.MaxMarks))
}

func (r *Router) send(chatID int64, text string) {
	r.sendMsg(tgbotapi.NewMessage(chatID, text))
}

func (r *Router) sendMsg(msg tgbotapi.MessageConfig) {
	if _, err := r.bot.Send(msg); err != nil {
		r.log.WithError(err).WithField("chat_id", msg.ChatID).Warn("telegram send failed")
	}
}
