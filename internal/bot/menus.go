package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"deadline-bot/internal/model"
	"deadline-bot/internal/portal"
	"deadline-bot/internal/service"
)

const (
	helpText = "🤖 Я - помощник в организации контрольных сроков для студентов вуза «ГУАП»!\n\n" +
		"✅ <b>Автоматически</b> (раз в час) проверяю ваш личный кабинет и вовремя присылаю уведомления о <i>предстоящих</i> сроках сдачи работ (дедлайнов).\n" +
		"🗃️ Предоставляю <b>сортированный</b> список актуальных дедлайнов и позволяю управлять ими вручную (удалять имеющиеся/добавлять свои).\n" +
		"🔒 Храню ваши данные в <u>зашифрованном</u> виде и не передаю их третьим лицам.\n\n" +
		"Доступные команды:\n" +
		"/start - Старт/перезапуск бота\n" +
		"/help - Справка по работе бота (данное сообщение)\n" +
		"/status - Посмотреть дедлайны\n" +
		"/update - Синхронизировать дедлайны с ЛК вручную\n" +
		"/add - Добавить собственный дедлайн\n" +
		"/cancel - Отменить текущее действие\n" +
		"/stop - Остановить работу бота и удалить свои данные"

	textNoProfile        = "⛔ Не удалось найти ваш профиль. Попробуйте /start."
	textNotAuthenticated = "⛔ Не удалось обновить дедлайны, вы не авторизованы в личный кабинет!"
	textCredentialsStale = "⛔ Личный кабинет не принял сохранённые данные. Давайте войдём заново."
	textRefreshFailed    = "⛔ Не удалось обновить дедлайны: личный кабинет недоступен. Попробуйте позже."
	textNoDeadlines      = "🕳 У вас пока нет предстоящих дедлайнов в базе.\n" +
		"⏰ Обновление происходит автоматически <u>раз в час</u>.\n" +
		"🧲 Вы можете запросить обновление дедлайнов с помощью кнопки 'Обновить' или набрав команду '/update'."
	textConfirmDeleteData = "🗑️ Вы уверены, что хотите отписаться и удалить все свои данные?\n" +
		"❗️ Это действие <b><u>необратимо</u></b>."
	textDeadlineSettings     = "🔧 Здесь вы можете управлять дедлайнами:\nдобавлять собственные или удалять уже имеющиеся"
	textNotificationSettings = "🔔 Здесь вы можете настроить уведомления:"
)

// replyLookupError answers for the errors a menu lookup can end with and
// reports whether it did.
func (b *Bot) replyLookupError(chatID int64, err error) (bool, error) {
	switch {
	case errors.Is(err, service.ErrUserNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return true, b.reply(chatID, textNoProfile, nil)
	case err != nil:
		return true, err
	default:
		return false, nil
	}
}

func (b *Bot) showDeadlines(ctx context.Context, userID, chatID int64) error {
	deadlines, err := b.deadlines.Active(ctx, userID)
	if done, err := b.replyLookupError(chatID, err); done {
		return err
	}
	if len(deadlines) == 0 {
		return b.reply(chatID, textNoDeadlines, updateKeyboard())
	}

	page, _, _ := pageBounds(0, len(deadlines))
	text := deadlinesPageText(deadlines, page)
	if kb := paginationKeyboard(page, totalPages(len(deadlines))); kb != nil {
		return b.reply(chatID, text, *kb)
	}
	return b.reply(chatID, text, nil)
}

func deadlinesPageText(deadlines []model.Deadline, page int) string {
	_, start, end := pageBounds(page, len(deadlines))

	var sb strings.Builder
	sb.WriteString("⏳ <b>Ваши актуальные дедлайны:</b>\n\n")
	for i, d := range deadlines[start:end] {
		icon := "📚"
		if d.IsCustom {
			icon = "✍️"
		}
		sb.WriteString(fmt.Sprintf("%d.%s <b>%s</b>\n", start+i+1, icon, html.EscapeString(d.CourseName)))
		sb.WriteString(fmt.Sprintf("   📝 <b>Задание:</b> %s\n", html.EscapeString(d.TaskName)))
		sb.WriteString(fmt.Sprintf("   🗓️ <b>Срок сдачи:</b> %s\n\n", d.DueDate.Format(model.DateLayout)))
	}
	return strings.TrimSpace(sb.String())
}

// refresh force-syncs the user's deadlines with the portal. Users without
// working credentials are sent through registration.
func (b *Bot) refresh(ctx context.Context, userID, chatID int64) error {
	user, err := b.users.FindByTelegramID(ctx, userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if err != nil || !user.Authenticated() {
		if err := b.reply(chatID, textNotAuthenticated, nil); err != nil {
			return err
		}
		return b.machine.BeginRegistration(ctx, userID, chatID)
	}

	b.messenger.typing(chatID)
	if _, err := b.sync.Refresh(ctx, userID, service.TriggerManual, true); err != nil {
		service.LogRefreshError(b.log, userID, err)
		if errors.Is(err, portal.ErrAuth) {
			if err := b.reply(chatID, textCredentialsStale, nil); err != nil {
				return err
			}
			return b.machine.BeginRegistration(ctx, userID, chatID)
		}
		return b.reply(chatID, textRefreshFailed, nil)
	}
	b.log.Info("manual refresh finished", zap.Int64("telegram_id", userID))
	return nil
}

func (b *Bot) showNotificationSettings(ctx context.Context, userID, chatID int64) error {
	user, err := b.users.FindByTelegramID(ctx, userID)
	if done, err := b.replyLookupError(chatID, err); done {
		return err
	}
	return b.reply(chatID, textNotificationSettings, notificationSettingsKeyboard(user))
}

func (b *Bot) showDeadlineSettings(ctx context.Context, userID, chatID int64) error {
	deadlines, err := b.deadlines.Active(ctx, userID)
	if done, err := b.replyLookupError(chatID, err); done {
		return err
	}
	return b.reply(chatID, textDeadlineSettings, deadlineSettingsKeyboard(deadlines, 0))
}

func (b *Bot) showProfile(ctx context.Context, userID, chatID int64) error {
	profile, err := b.deadlines.Profile(ctx, userID)
	if done, err := b.replyLookupError(chatID, err); done {
		return err
	}
	return b.reply(chatID, b.profileText(profile), profileKeyboard(profile.Custom))
}

func (b *Bot) profileText(p *service.Profile) string {
	var sb strings.Builder
	if name := p.User.DisplayName(); name != "" {
		sb.WriteString(fmt.Sprintf("👤 <b>%s</b>", html.EscapeString(name)))
	} else {
		sb.WriteString("👤 <b>Ваш профиль</b>")
	}
	if p.User.ProfileID != nil && *p.User.ProfileID != "" {
		link := fmt.Sprintf("%s/inside/profile/%s", strings.TrimRight(b.opts.PortalBaseURL, "/"), *p.User.ProfileID)
		sb.WriteString(fmt.Sprintf("\n🔗 ID профиля ГУАП: <a href='%s'>%s</a>", link, html.EscapeString(*p.User.ProfileID)))
	}
	sb.WriteString(fmt.Sprintf("\n\n🎓 Текущий семестр: <b>%s</b>\n\n", p.Semester.Name))
	sb.WriteString(fmt.Sprintf("Активных дедлайнов: <b>%d</b>", p.Active))
	if p.Custom > 0 {
		sb.WriteString(fmt.Sprintf("\n📌 из них <i>личных</i>: <b>%d</b>", p.Custom))
	}
	return sb.String()
}
