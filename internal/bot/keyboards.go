package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"deadline-bot/internal/conversation"
	"deadline-bot/internal/model"
)

const pageSize = 5

// Callback data.
const (
	cbIgnore              = "ignore"
	cbUpdate              = "update"
	cbPagePrefix          = "page_"
	cbSettingsPagePrefix  = "settings_page_"
	cbDeleteDeadline      = "del_deadline_"
	cbConfirmDeleteDl     = "confirm_del_deadline_"
	cbCancelDeleteDl      = "cancel_del_deadline"
	cbTrash               = "trash"
	cbRestorePrefix       = "restore_"
	cbAddDeadline         = "add_deadline"
	cbToggleNotifications = "toggle_notifications"
	cbToggleDayPrefix     = "toggle_day_"
	cbSetInterval         = "set_interval"
	cbDeleteMyData        = "delete_my_data"
	cbConfirmDelete       = "confirm_delete"
	cbCancelDelete        = "cancel_delete"
	cbDeleteAllCustom     = "delete_all_custom"
	cbConfirmDeleteCustom = "confirm_delete_all_custom"
	cbCancelDeleteCustom  = "cancel_delete_all_custom"
)

var reminderDays = []int{1, 3, 7}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(conversation.LabelDeadlines),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(conversation.LabelNotifications),
			tgbotapi.NewKeyboardButton(conversation.LabelProfile),
			tgbotapi.NewKeyboardButton(conversation.LabelDeadlineSettings),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(conversation.LabelCancel),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func confirmKeyboard(confirmText, confirmData, cancelText, cancelData string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ "+confirmText, confirmData),
			tgbotapi.NewInlineKeyboardButtonData("❌ "+cancelText, cancelData),
		),
	)
}

func updateKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Обновить", cbUpdate)),
	)
}

func totalPages(n int) int {
	return (n + pageSize - 1) / pageSize
}

// pageBounds clamps page into range and returns the slice bounds for it.
func pageBounds(page, n int) (int, int, int) {
	pages := totalPages(n)
	if page >= pages {
		page = pages - 1
	}
	if page < 0 {
		page = 0
	}
	start := page * pageSize
	end := min(start+pageSize, n)
	return page, start, end
}

func paginationRow(prefix string, page, pages int) []tgbotapi.InlineKeyboardButton {
	var row []tgbotapi.InlineKeyboardButton
	if page > 0 {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", fmt.Sprintf("%s%d", prefix, page-1)))
	}
	if pages > 1 {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("📄 %d/%d", page+1, pages), cbIgnore))
	}
	if page < pages-1 {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("Вперёд ➡️", fmt.Sprintf("%s%d", prefix, page+1)))
	}
	return row
}

func paginationKeyboard(page, pages int) *tgbotapi.InlineKeyboardMarkup {
	row := paginationRow(cbPagePrefix, page, pages)
	if len(row) == 0 {
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(row)
	return &kb
}

func deadlineSettingsKeyboard(deadlines []model.Deadline, page int) tgbotapi.InlineKeyboardMarkup {
	page, start, end := pageBounds(page, len(deadlines))

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, d := range deadlines[start:end] {
		label := fmt.Sprintf("❌ %s (%s)", shorten(d.CourseName, 20), d.DueDate.Format("02.01"))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("%s%d", cbDeleteDeadline, d.ID)),
		))
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("➕ Добавить собственный дедлайн", cbAddDeadline)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📨 Синхронизировать дедлайны с ЛК", cbUpdate)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🗑️ Корзина", cbTrash)),
	)
	if row := paginationRow(cbSettingsPagePrefix, page, totalPages(len(deadlines))); len(row) > 0 {
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func trashKeyboard(trashed []model.Deadline) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, d := range trashed {
		label := fmt.Sprintf("♻️ %s (%s)", shorten(d.CourseName, 20), d.DueDate.Format("02.01"))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("%s%d", cbRestorePrefix, d.ID)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", cbSettingsPagePrefix+"0"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func notificationSettingsKeyboard(user *model.User) tgbotapi.InlineKeyboardMarkup {
	status := "❌ Выкл."
	if user.NotificationsEnabled {
		status = "✅ Вкл."
	}
	interval := "❌ Выкл."
	if user.NotificationIntervalHours > 0 {
		interval = fmt.Sprintf("✅ %d ч.", user.NotificationIntervalHours)
	}

	days := make([]tgbotapi.InlineKeyboardButton, 0, len(reminderDays))
	for _, d := range reminderDays {
		label := fmt.Sprintf("🔕 за %d д.", d)
		if user.HasNotificationDay(d) {
			label = fmt.Sprintf("✅ за %d д.", d)
		}
		days = append(days, tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("%s%d", cbToggleDayPrefix, d)))
	}

	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Напоминания: "+status, cbToggleNotifications),
			tgbotapi.NewInlineKeyboardButtonData("Частые: "+interval, cbSetInterval),
		),
		days,
	)
}

func profileKeyboard(customCount int64) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if customCount > 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🚮 Удалить все личные дедлайны", cbDeleteAllCustom),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🗑️ Удалить все мои данные", cbDeleteMyData),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func shorten(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}
