package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"deadline-bot/internal/conversation"
	"deadline-bot/internal/model"
	"deadline-bot/internal/service"
)

const (
	textDeadlineGone      = "Этот дедлайн уже удалён!"
	textTrashEmpty        = "🗑️ Корзина пуста."
	textTrash             = "🗑️ <b>Корзина</b>\nНажмите на дедлайн, чтобы восстановить его:"
	textMovedToTrash      = "🗑️ Дедлайн перемещён в корзину"
	textRestored          = "♻️ Дедлайн восстановлен"
	textDataDeleted       = "🗑️ Все ваши данные удалены."
	textUnsubscribed      = "👋 Вы были отписаны. Чтобы начать заново, отправьте /start."
	textDeleteCancelled   = "👌 Удаление отменено."
	textConfirmDeleteAll  = "🚮 Удалить <b>все</b> ваши личные дедлайны?"
	textNotificationsOn   = "🔔 Напоминания включены"
	textNotificationsOff  = "🔕 Напоминания выключены"
	textCustomDeletedTmpl = "🚮 Удалено личных дедлайнов: <b>%d</b>"
)

// callback is the routing view of a callback query.
type callback struct {
	userID    int64
	chatID    int64
	messageID int
	data      string
}

// notice is the answer shown to the user for a callback query.
type notice struct {
	text  string
	alert bool
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb.Message == nil || cb.Message.Chat == nil {
		b.messenger.answerCallback(cb, "", false)
		return nil
	}
	c := callback{
		userID:    cb.From.ID,
		chatID:    cb.Message.Chat.ID,
		messageID: cb.Message.MessageID,
		data:      cb.Data,
	}

	ev := conversation.Event{
		Kind:      conversation.EventButton,
		UserID:    c.userID,
		ChatID:    c.chatID,
		MessageID: c.messageID,
		Username:  cb.From.UserName,
		Text:      c.data,
	}
	if b.machine.Handle(ctx, ev) {
		b.messenger.answerCallback(cb, "", false)
		return nil
	}

	n, err := b.routeCallback(ctx, c)
	switch {
	case errors.Is(err, service.ErrDeadlineGone):
		n, err = notice{text: textDeadlineGone, alert: true}, nil
	case errors.Is(err, service.ErrUserNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		n, err = notice{text: textNoProfile, alert: true}, nil
	}
	b.messenger.answerCallback(cb, n.text, n.alert)
	return err
}

func (b *Bot) routeCallback(ctx context.Context, c callback) (notice, error) {
	b.log.Debug("callback received", zap.Int64("telegram_id", c.userID), zap.String("data", c.data))

	switch c.data {
	case cbIgnore:
		return notice{}, nil
	case cbUpdate:
		return notice{}, b.refresh(ctx, c.userID, c.chatID)
	case cbCancelDeleteDl:
		return notice{}, b.editDeadlineSettings(ctx, c, 0)
	case cbTrash:
		return b.showTrash(ctx, c)
	case cbAddDeadline:
		if err := b.messenger.deleteMessage(c.chatID, c.messageID); err != nil {
			b.log.Debug("delete settings message", zap.Error(err))
		}
		return notice{}, b.machine.BeginManualAdd(ctx, c.userID, c.chatID)
	case cbToggleNotifications:
		return b.toggleNotifications(ctx, c)
	case cbSetInterval:
		return notice{}, b.machine.BeginIntervalConfig(ctx, c.userID, c.chatID)
	case cbDeleteMyData:
		markup := confirmKeyboard("Да, удалить", cbConfirmDelete, "Нет, оставить", cbCancelDelete)
		return notice{}, b.messenger.editText(c.chatID, c.messageID, textConfirmDeleteData, &markup)
	case cbConfirmDelete:
		return notice{}, b.deleteUserData(ctx, c)
	case cbCancelDelete:
		return notice{}, b.messenger.editText(c.chatID, c.messageID, textDeleteCancelled, nil)
	case cbDeleteAllCustom:
		markup := confirmKeyboard("Да", cbConfirmDeleteCustom, "Нет", cbCancelDeleteCustom)
		return notice{}, b.messenger.editText(c.chatID, c.messageID, textConfirmDeleteAll, &markup)
	case cbConfirmDeleteCustom:
		n, err := b.deadlines.DeleteAllCustom(ctx, c.userID)
		if err != nil {
			return notice{}, err
		}
		b.log.Info("custom deadlines deleted", zap.Int64("telegram_id", c.userID), zap.Int64("deleted", n))
		return notice{}, b.messenger.editText(c.chatID, c.messageID, fmt.Sprintf(textCustomDeletedTmpl, n), nil)
	case cbCancelDeleteCustom:
		return notice{}, b.editProfile(ctx, c)
	}

	switch {
	case strings.HasPrefix(c.data, cbPagePrefix):
		page, err := callbackNumber(c.data, cbPagePrefix)
		if err != nil {
			return notice{}, err
		}
		return notice{}, b.editDeadlinesPage(ctx, c, page)
	case strings.HasPrefix(c.data, cbSettingsPagePrefix):
		page, err := callbackNumber(c.data, cbSettingsPagePrefix)
		if err != nil {
			return notice{}, err
		}
		return notice{}, b.editDeadlineSettings(ctx, c, page)
	case strings.HasPrefix(c.data, cbDeleteDeadline):
		id, err := callbackNumber(c.data, cbDeleteDeadline)
		if err != nil {
			return notice{}, err
		}
		return notice{}, b.confirmTrash(ctx, c, uint(id))
	case strings.HasPrefix(c.data, cbConfirmDeleteDl):
		id, err := callbackNumber(c.data, cbConfirmDeleteDl)
		if err != nil {
			return notice{}, err
		}
		if err := b.deadlines.Trash(ctx, c.userID, uint(id)); err != nil {
			return notice{}, err
		}
		return notice{text: textMovedToTrash}, b.editDeadlineSettings(ctx, c, 0)
	case strings.HasPrefix(c.data, cbRestorePrefix):
		id, err := callbackNumber(c.data, cbRestorePrefix)
		if err != nil {
			return notice{}, err
		}
		if err := b.deadlines.Restore(ctx, c.userID, uint(id)); err != nil {
			return notice{}, err
		}
		if _, err := b.showTrash(ctx, c); err != nil {
			return notice{}, err
		}
		return notice{text: textRestored}, nil
	case strings.HasPrefix(c.data, cbToggleDayPrefix):
		day, err := callbackNumber(c.data, cbToggleDayPrefix)
		if err != nil {
			return notice{}, err
		}
		if _, err := b.users.ToggleNotificationDay(ctx, c.userID, day); err != nil {
			return notice{}, err
		}
		return notice{}, b.refreshNotificationMarkup(ctx, c)
	}

	b.log.Warn("unknown callback data", zap.Int64("telegram_id", c.userID), zap.String("data", c.data))
	return notice{}, nil
}

func callbackNumber(data, prefix string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(data, prefix))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("malformed callback data %q", data)
	}
	return n, nil
}

func (b *Bot) editDeadlinesPage(ctx context.Context, c callback, page int) error {
	deadlines, err := b.deadlines.Active(ctx, c.userID)
	if err != nil {
		return err
	}
	if len(deadlines) == 0 {
		markup := updateKeyboard()
		return b.messenger.editText(c.chatID, c.messageID, textNoDeadlines, &markup)
	}
	page, _, _ = pageBounds(page, len(deadlines))
	return b.messenger.editText(c.chatID, c.messageID,
		deadlinesPageText(deadlines, page),
		paginationKeyboard(page, totalPages(len(deadlines))),
	)
}

func (b *Bot) editDeadlineSettings(ctx context.Context, c callback, page int) error {
	deadlines, err := b.deadlines.Active(ctx, c.userID)
	if err != nil {
		return err
	}
	markup := deadlineSettingsKeyboard(deadlines, page)
	return b.messenger.editText(c.chatID, c.messageID, textDeadlineSettings, &markup)
}

func (b *Bot) confirmTrash(ctx context.Context, c callback, id uint) error {
	d, err := b.deadlines.Get(ctx, c.userID, id)
	if err != nil {
		return err
	}
	markup := confirmKeyboard("Да", fmt.Sprintf("%s%d", cbConfirmDeleteDl, d.ID), "Нет", cbCancelDeleteDl)
	return b.messenger.editText(c.chatID, c.messageID, trashConfirmText(d), &markup)
}

func trashConfirmText(d *model.Deadline) string {
	return fmt.Sprintf("❓ Удалить дедлайн?\n\n<b>%s</b>\n📝 %s\n🗓️ %s",
		html.EscapeString(d.CourseName),
		html.EscapeString(d.TaskName),
		d.DueDate.Format(model.DateLayout),
	)
}

func (b *Bot) showTrash(ctx context.Context, c callback) (notice, error) {
	trashed, err := b.deadlines.Trashed(ctx, c.userID)
	if err != nil {
		return notice{}, err
	}
	if len(trashed) == 0 {
		return notice{text: textTrashEmpty}, b.editDeadlineSettings(ctx, c, 0)
	}
	markup := trashKeyboard(trashed)
	return notice{}, b.messenger.editText(c.chatID, c.messageID, textTrash, &markup)
}

func (b *Bot) toggleNotifications(ctx context.Context, c callback) (notice, error) {
	enabled, err := b.users.ToggleNotifications(ctx, c.userID)
	if err != nil {
		return notice{}, err
	}
	n := notice{text: textNotificationsOff}
	if enabled {
		n.text = textNotificationsOn
	}
	return n, b.refreshNotificationMarkup(ctx, c)
}

func (b *Bot) refreshNotificationMarkup(ctx context.Context, c callback) error {
	user, err := b.users.FindByTelegramID(ctx, c.userID)
	if err != nil {
		return err
	}
	return b.messenger.editMarkup(c.chatID, c.messageID, notificationSettingsKeyboard(user))
}

func (b *Bot) editProfile(ctx context.Context, c callback) error {
	profile, err := b.deadlines.Profile(ctx, c.userID)
	if err != nil {
		return err
	}
	markup := profileKeyboard(profile.Custom)
	return b.messenger.editText(c.chatID, c.messageID, b.profileText(profile), &markup)
}

func (b *Bot) deleteUserData(ctx context.Context, c callback) error {
	deleted, err := b.users.DeleteCascade(ctx, c.userID)
	if err != nil {
		return err
	}
	b.store.Clear(c.userID)
	b.log.Info("user unsubscribed", zap.Int64("telegram_id", c.userID), zap.Bool("existed", deleted))

	if err := b.messenger.editText(c.chatID, c.messageID, textDataDeleted, nil); err != nil {
		b.log.Debug("edit confirmation message", zap.Error(err))
	}
	return b.reply(c.chatID, textUnsubscribed, tgbotapi.NewRemoveKeyboard(true))
}
