package main

import (
	"context"
	"errors"
	"hash/fnv"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"exam-grader/api/internal/app"
	"exam-grader/api/internal/config"
	"exam-grader/api/internal/httpserver"
	"exam-grader/api/internal/logger"
	"exam-grader/api/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(true); err != nil {
		logrus.Fatalf("config: %v", err)
	}
	if cfg.TelegramBotToken == "" {
		logrus.Fatal("missing required env TELEGRAM_BOT_TOKEN")
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log, app.Options{})
	if err != nil {
		log.Fatalf("build: %v", err)
	}
	defer a.Close()

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Fatalf("telegram: %v", err)
	}
	bot.Debug = false

	r := telegram.NewRouter(bot, a.Exam, log, routerOptions(cfg))

	// DefaultServeMux, so ListenForWebhook's handler and /healthz share one server
	http.Handle("/healthz", httpserver.Healthz("ok"))
	addr := "0.0.0.0:" + cfg.Port

	if webhookURL := strings.TrimSpace(cfg.WebhookURL); webhookURL != "" {
		if err := startWebhookMode(ctx, addr, bot, r, webhookURL, log); err != nil {
			log.Fatal(err)
		}
		return
	}
	startPollingMode(ctx, addr, bot, r, log)
}

func startWebhookMode(ctx context.Context, addr string, bot *tgbotapi.BotAPI, r *telegram.Router, baseURL string, log logrus.FieldLogger) error {
	path := "/webhook/" + shortHash(bot.Token)
	wh, err := tgbotapi.NewWebhook(strings.TrimRight(baseURL, "/") + path)
	if err != nil {
		return err
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		return err
	}

	updates := bot.ListenForWebhook(path)
	go func() {
		for upd := range updates {
			r.HandleUpdate(ctx, upd)
		}
		log.Info("webhook updates channel closed")
	}()

	log.WithField("path", path).Info("webhook registered")
	return httpserver.Run(ctx, addr, http.DefaultServeMux, log)
}

func startPollingMode(ctx context.Context, addr string, bot *tgbotapi.BotAPI, r *telegram.Router, log logrus.FieldLogger) {
	// drop a webhook left over from an earlier deployment, polling is refused otherwise
	if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		log.WithError(err).Warn("delete webhook")
	}
	go func() {
		if err := httpserver.Run(ctx, addr, http.DefaultServeMux, log); err != nil {
			log.WithError(err).Error("health server stopped")
		}
	}()

	poll(ctx, bot, func(upd tgbotapi.Update) { r.HandleUpdate(ctx, upd) }, log)
}

// routerOptions gives a chat the same evaluation deadline as an HTTP request.
func routerOptions(cfg *config.Config) telegram.Options {
	return telegram.Options{
		MaxFileBytes: cfg.MaxUploadBytes,
		Timeout:      cfg.RequestBudget(),
	}
}

type updateSource interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

const (
	pollTimeoutSec = 30
	pollMinDelay   = time.Second
	pollMaxDelay   = 15 * time.Second
)

// poll long-polls for updates until ctx ends. Each update is acknowledged through the offset
// of the next request.
func poll(ctx context.Context, src updateSource, handle func(tgbotapi.Update), log logrus.FieldLogger) {
	req := tgbotapi.NewUpdate(0)
	req.Timeout = pollTimeoutSec

	failures := 0
	for ctx.Err() == nil {
		updates, err := src.GetUpdates(req)
		if err != nil {
			failures++
			d := pollBackoff(err, failures)
			log.WithError(err).WithFields(logrus.Fields{
				"failures": failures,
				"retry_in": d.String(),
			}).Warn("polling error")
			sleep(ctx, d)
			continue
		}
		failures = 0
		for _, upd := range updates {
			req.Offset = max(req.Offset, upd.UpdateID+1)
			handle(upd)
		}
	}
	log.Info("polling stopped")
}

// pollBackoff doubles the wait with every consecutive failure up to pollMaxDelay. A flood-control
// reply from Telegram names its own wait, which is honoured as is.
func pollBackoff(err error, failures int) time.Duration {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return time.Duration(apiErr.RetryAfter) * time.Second
	}
	return min(pollMinDelay<<min(max(failures-1, 0), 4), pollMaxDelay)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// shortHash keeps the bot token out of the webhook path.
func shortHash(s string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return strconv.FormatUint(h.Sum64(), 16)
}
