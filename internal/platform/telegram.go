package platform

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/claude-session-player/watcher/internal/destination"
)

// TelegramDebounceDelay is TG's default per-binding coalescing delay
// (spec.md §4.5).
const TelegramDebounceDelay = 500 * time.Millisecond

const telegramRetryBackoff = time.Second

// Telegram is the TG PlatformClient. It wraps go-telegram-bot-api and adds
// the retry-once-with-backoff and validate-result-caching behaviour spec.md
// §4.7 requires.
type Telegram struct {
	bot *tgbotapi.BotAPI

	mu        sync.Mutex
	validated bool
}

// NewTelegram constructs a Telegram client for the given bot token.
func NewTelegram(token string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("platform: create telegram client: %w", err)
	}
	return &Telegram{bot: bot}, nil
}

// Validate calls getMe and caches success, per spec.md §4.7.
func (t *Telegram) Validate(ctx context.Context) error {
	t.mu.Lock()
	if t.validated {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if _, err := t.bot.GetMe(); err != nil {
		return fmt.Errorf("%w: %v", ErrCredentialsInvalid, err)
	}
	t.mu.Lock()
	t.validated = true
	t.mu.Unlock()
	return nil
}

// Send posts content as a new message, optionally into a topic thread,
// and returns the resulting message id.
func (t *Telegram) Send(ctx context.Context, identifier string, content RenderedContent) (string, error) {
	tg, ok := content.(TGContent)
	if !ok {
		return "", fmt.Errorf("platform: telegram send: unexpected content type %T", content)
	}
	chatID, threadID, hasThread, err := destination.ParseTelegramIdentifier(identifier)
	if err != nil {
		return "", fmt.Errorf("platform: telegram send: %w", err)
	}

	msg := tgbotapi.NewMessage(chatID, tg.Text)
	msg.ParseMode = tgbotapi.ModeHTML
	if hasThread {
		msg.MessageThreadID = threadID
	}
	if kb := buildKeyboard(tg.Buttons); kb != nil {
		msg.ReplyMarkup = *kb
	}

	sent, err := t.sendWithRetry(msg)
	if err != nil {
		return "", &Error{Platform: "telegram", Op: "send", Err: err}
	}
	return strconv.Itoa(sent.MessageID), nil
}

// Update edits an existing message's text (and keyboard). It returns
// (false, nil) when Telegram reports the message no longer exists, and
// (true, nil) when Telegram reports the content is unchanged.
func (t *Telegram) Update(ctx context.Context, identifier, messageID string, content RenderedContent) (bool, error) {
	tg, ok := content.(TGContent)
	if !ok {
		return false, fmt.Errorf("platform: telegram update: unexpected content type %T", content)
	}
	chatID, _, _, err := destination.ParseTelegramIdentifier(identifier)
	if err != nil {
		return false, fmt.Errorf("platform: telegram update: %w", err)
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return false, fmt.Errorf("platform: telegram update: invalid message id %q: %w", messageID, err)
	}

	edit := tgbotapi.NewEditMessageText(chatID, msgID, tg.Text)
	edit.ParseMode = tgbotapi.ModeHTML
	if kb := buildKeyboard(tg.Buttons); kb != nil {
		edit.ReplyMarkup = kb
	}

	_, err = t.sendWithRetry(edit)
	if err == nil {
		return true, nil
	}
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "message to edit not found") || strings.Contains(lower, "message not found") {
		return false, nil
	}
	if strings.Contains(lower, "message is not modified") {
		return true, nil
	}
	return false, &Error{Platform: "telegram", Op: "update", Err: err}
}

func (t *Telegram) sendWithRetry(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, err := t.bot.Send(c)
	if err == nil {
		return msg, nil
	}
	time.Sleep(telegramRetryBackoff)
	return t.bot.Send(c)
}

func buildKeyboard(buttons []TGButton) *tgbotapi.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Callback))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(row)
	return &kb
}
