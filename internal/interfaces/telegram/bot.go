package telegram

import (
	"context"
	"strings"
	"sync"
	"time"

	"brigadebot/internal/infrastructure"
	"brigadebot/internal/logger"
	"brigadebot/internal/usecases"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotAPI is the part of tgbotapi.BotAPI the dispatcher needs.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// updateTimeout bounds the work done for one update, Bitrix retries included.
const updateTimeout = 60 * time.Second

// Dispatcher routes Telegram updates to command and callback handlers.
type Dispatcher struct {
	api        BotAPI
	membership *usecases.MembershipUsecase
	tasks      *usecases.TaskUsecase
	reports    *usecases.ReportUsecase
	limiter    *infrastructure.MessageRateLimiter
	sessions   *infrastructure.SessionManager
	log        *logger.Logger

	wg sync.WaitGroup
}

func NewDispatcher(api BotAPI, membership *usecases.MembershipUsecase, tasks *usecases.TaskUsecase,
	reports *usecases.ReportUsecase, limiter *infrastructure.MessageRateLimiter,
	sessions *infrastructure.SessionManager, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		api:        api,
		membership: membership,
		tasks:      tasks,
		reports:    reports,
		limiter:    limiter,
		sessions:   sessions,
		log:        log.Named("telegram"),
	}
}

// Dispatch handles the update in the background so the webhook can answer
// Telegram immediately.
func (d *Dispatcher) Dispatch(update tgbotapi.Update) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
		defer cancel()
		if err := d.HandleUpdate(ctx, update); err != nil {
			d.log.Errorw("handle update", "update_id", update.UpdateID, "error", err)
		}
	}()
}

// Wait blocks until every dispatched update is handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	switch {
	case update.CallbackQuery != nil:
		return d.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		return d.handleMessage(ctx, update.Message)
	}
	return nil
}

func (d *Dispatcher) handleMessage(ctx context.Context, m *tgbotapi.Message) error {
	if m.From == nil || !m.IsCommand() {
		return nil
	}

	allowed, warn := d.limiter.Allow(m.From.ID)
	if !allowed {
		if warn {
			return d.reply(m.Chat.ID, "Too many requests, slow down a little ⏳")
		}
		return nil
	}

	handler, ok := commands[m.Command()]
	if !ok {
		return nil
	}
	d.log.Debugw("command", "command", m.Command(), "tg_user_id", m.From.ID, "chat_id", m.Chat.ID)
	return handler(d, ctx, m)
}

func (d *Dispatcher) reply(chatID int64, text string) error {
	_, err := d.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (d *Dispatcher) replyMarkdown(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	_, err := d.api.Send(msg)
	return err
}

// edit replaces a bot message. Telegram rejects edits that change nothing;
// that is not an error for us.
func (d *Dispatcher) edit(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	edit.ReplyMarkup = markup
	_, err := d.api.Send(edit)
	if isNotModified(err) {
		return nil
	}
	return err
}

func (d *Dispatcher) answer(callbackID, text string, alert bool) error {
	cb := tgbotapi.NewCallback(callbackID, text)
	cb.ShowAlert = alert
	_, err := d.api.Request(cb)
	return err
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func fullName(u *tgbotapi.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
