package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const callbackEnginePrefix = "engine:"

func (r *Router) handleCallback(cb tgbotapi.CallbackQuery) {
	_, _ = r.bot.Request(tgbotapi.NewCallback(cb.ID, "")) // ack
	if cb.Message == nil {
		return
	}
	cid := cb.Message.Chat.ID

	if name, ok := strings.CutPrefix(cb.Data, callbackEnginePrefix); ok {
		// drop the keyboard so the choice cannot be pressed twice
		edit := tgbotapi.NewEditMessageReplyMarkup(cid, cb.Message.MessageID, tgbotapi.InlineKeyboardMarkup{})
		_, _ = r.bot.Request(edit)
		r.setStrategy(cid, name)
	}
}
