package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// API is the part of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

const adminQueueSize = 32

// Messenger sends outbound messages. It serves background jobs and the
// admin error feed.
type Messenger struct {
	api         API
	adminChatID int64
	admin       chan string
	log         *zap.Logger
}

// NewMessenger builds a Messenger. log must not forward to the admin chat.
func NewMessenger(api API, adminChatID int64, log *zap.Logger) *Messenger {
	return &Messenger{
		api:         api,
		adminChatID: adminChatID,
		admin:       make(chan string, adminQueueSize),
		log:         log.Named("messenger"),
	}
}

// Send delivers an HTML message without a keyboard.
func (m *Messenger) Send(_ context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := m.api.Send(msg)
	return err
}

// NotifyAdmin queues text for the admin chat and drops it when the queue is full.
func (m *Messenger) NotifyAdmin(text string) {
	if m.adminChatID == 0 {
		return
	}
	select {
	case m.admin <- text:
	default:
	}
}

// RunAdminFeed delivers queued admin messages until ctx is done.
func (m *Messenger) RunAdminFeed(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-m.admin:
			msg := tgbotapi.NewMessage(m.adminChatID, text)
			if _, err := m.api.Send(msg); err != nil {
				m.log.Warn("failed to forward log entry to admin", zap.Error(err))
			}
		}
	}
}

func (m *Messenger) send(chatID int64, text string, markup any) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	return m.api.Send(msg)
}

func (m *Messenger) editText(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true
	edit.ReplyMarkup = markup
	_, err := m.api.Request(edit)
	return ignoreNotModified(err)
}

func (m *Messenger) editMarkup(chatID int64, messageID int, markup tgbotapi.InlineKeyboardMarkup) error {
	_, err := m.api.Request(tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, markup))
	return ignoreNotModified(err)
}

func (m *Messenger) deleteMessage(chatID int64, messageID int) error {
	_, err := m.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	return err
}

func (m *Messenger) answerCallback(cb *tgbotapi.CallbackQuery, text string, alert bool) {
	answer := tgbotapi.NewCallback(cb.ID, text)
	answer.ShowAlert = alert
	if _, err := m.api.Request(answer); err != nil {
		m.log.Debug("callback ack failed", zap.Error(err))
	}
}

func (m *Messenger) typing(chatID int64) {
	if _, err := m.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		m.log.Debug("chat action failed", zap.Error(err))
	}
}

func ignoreNotModified(err error) error {
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	if err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}
