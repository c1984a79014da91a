package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"deadline-bot/internal/conversation"
	"deadline-bot/internal/metrics"
	"deadline-bot/internal/repository"
	"deadline-bot/internal/service"
)

// Options carries the settings the front end needs.
type Options struct {
	PortalBaseURL string
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api       API
	messenger *Messenger
	users     *repository.UserRepository
	deadlines *service.DeadlineService
	sync      *service.SyncService
	machine   *conversation.Machine
	store     *conversation.Store
	opts      Options
	log       *zap.Logger
}

func New(
	api API,
	messenger *Messenger,
	users *repository.UserRepository,
	deadlines *service.DeadlineService,
	syncSvc *service.SyncService,
	registrar conversation.Registrar,
	opts Options,
	log *zap.Logger,
) *Bot {
	b := &Bot{
		api:       api,
		messenger: messenger,
		users:     users,
		deadlines: deadlines,
		sync:      syncSvc,
		store:     conversation.NewStore(),
		opts:      opts,
		log:       log.Named("bot"),
	}
	b.machine = conversation.NewMachine(b.store, b, registrar, deadlines, users, log)
	return b
}

// Start begins polling updates until ctx is cancelled. It returns after
// every received update has been handled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	d := newDispatcher(func(update tgbotapi.Update) {
		b.handleUpdate(ctx, update)
	})
	for update := range updates {
		userID, ok := updateUserID(update)
		if !ok {
			continue
		}
		d.dispatch(userID, update)
	}
	d.wait()
	return nil
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic while handling update", zap.Any("panic", r), zap.Int("update_id", update.UpdateID))
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		metrics.UpdatesHandled.WithLabelValues("callback").Inc()
		if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
			b.log.Error("handle callback", zap.Int64("telegram_id", update.CallbackQuery.From.ID), zap.Error(err))
		}
	case update.Message != nil:
		if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			return
		}
		metrics.UpdatesHandled.WithLabelValues("message").Inc()
		if err := b.handleMessage(ctx, update.Message); err != nil {
			b.log.Error("handle message", zap.Int64("telegram_id", update.Message.From.ID), zap.Error(err))
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.Text == "" {
		return nil
	}

	ev := conversation.Event{
		Kind:      conversation.EventText,
		UserID:    msg.From.ID,
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Username:  msg.From.UserName,
		Text:      msg.Text,
	}
	if msg.IsCommand() {
		ev.Kind = conversation.EventCommand
		ev.Text = msg.Command()
		b.log.Debug("command received", zap.Int64("telegram_id", msg.From.ID), zap.String("command", ev.Text))
	}

	if b.machine.Handle(ctx, ev) {
		return nil
	}

	if msg.IsCommand() {
		return b.handleCommand(ctx, msg)
	}
	if handled, err := b.handleMenuLabel(ctx, msg); handled {
		return err
	}
	return b.reply(msg.Chat.ID, "🤔 Я пока не понял сообщение. Воспользуйтесь кнопками меню или /help.", nil)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case conversation.CmdHelp:
		return b.reply(chatID, helpText, nil)
	case conversation.CmdStatus:
		return b.showDeadlines(ctx, msg.From.ID, chatID)
	case conversation.CmdUpdate:
		return b.refresh(ctx, msg.From.ID, chatID)
	case conversation.CmdAdd:
		return b.machine.BeginManualAdd(ctx, msg.From.ID, chatID)
	case conversation.CmdStop:
		markup := confirmKeyboard("Да, удалить", cbConfirmDelete, "Нет, оставить", cbCancelDelete)
		return b.reply(chatID, textConfirmDeleteData, markup)
	default:
		return b.reply(chatID, "🤔 Неизвестная команда. Наберите /help для списка команд.", nil)
	}
}

func (b *Bot) handleMenuLabel(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	chatID := msg.Chat.ID
	switch strings.TrimSpace(msg.Text) {
	case conversation.LabelDeadlines:
		return true, b.showDeadlines(ctx, msg.From.ID, chatID)
	case conversation.LabelNotifications:
		return true, b.showNotificationSettings(ctx, msg.From.ID, chatID)
	case conversation.LabelProfile:
		return true, b.showProfile(ctx, msg.From.ID, chatID)
	case conversation.LabelDeadlineSettings:
		return true, b.showDeadlineSettings(ctx, msg.From.ID, chatID)
	default:
		return false, nil
	}
}

// Reply implements conversation.Responder.
func (b *Bot) Reply(ctx context.Context, chatID int64, text string, kb conversation.Keyboard) (int, error) {
	var markup any
	switch kb {
	case conversation.KeyboardMain:
		markup = mainMenuKeyboard()
	case conversation.KeyboardCancel:
		markup = cancelKeyboard()
	case conversation.KeyboardNotificationSettings:
		// Private chats share the user's id.
		user, err := b.users.FindByTelegramID(ctx, chatID)
		if err != nil {
			return 0, fmt.Errorf("load settings: %w", err)
		}
		markup = notificationSettingsKeyboard(user)
	}
	sent, err := b.messenger.send(chatID, text, markup)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// DeleteMessage implements conversation.Responder.
func (b *Bot) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	return b.messenger.deleteMessage(chatID, messageID)
}

func (b *Bot) reply(chatID int64, text string, markup any) error {
	_, err := b.messenger.send(chatID, text, markup)
	return err
}
