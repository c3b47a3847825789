package infrastructure

import (
	"fmt"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxMessageLength is Telegram's limit for a single text message.
const maxMessageLength = 4096

// TelegramClient wraps the bot API used in webhook mode.
type TelegramClient struct {
	Bot *tgbotapi.BotAPI
}

func NewTelegramClient(token string) (*TelegramClient, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &TelegramClient{Bot: bot}, nil
}

// Username is the bot's @name without the @.
func (t *TelegramClient) Username() string {
	return t.Bot.Self.UserName
}

func (t *TelegramClient) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return t.Bot.Send(c)
}

func (t *TelegramClient) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return t.Bot.Request(c)
}

// RegisterWebhook drops pending updates and points Telegram at url,
// subscribing to messages and callback queries only.
func (t *TelegramClient) RegisterWebhook(url string) error {
	if _, err := t.Bot.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}

	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("build webhook: %w", err)
	}
	wh.AllowedUpdates = []string{"message", "callback_query"}
	if _, err := t.Bot.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}

// SendText sends plain text, splitting it into several messages when it
// exceeds the Telegram limit.
func (t *TelegramClient) SendText(chatID int64, text string) error {
	for _, chunk := range SplitMessage(text, maxMessageLength) {
		if _, err := t.Bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			return err
		}
	}
	return nil
}

// SplitMessage cuts text into chunks of at most limit runes, preferring to
// break after a newline.
func SplitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
