package conversation

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"go.uber.org/zap"

	"deadline-bot/internal/model"
	"deadline-bot/internal/portal"
	"deadline-bot/internal/service"
)

// Registrar checks portal credentials and stores them on success. The
// password buffer is destroyed when Register returns; implementations must
// copy password.String() rather than keep it.
type Registrar interface {
	Register(ctx context.Context, telegramID int64, username, login string, password *memguard.LockedBuffer) (*service.Registration, error)
}

// DeadlineAdder validates and stores manual deadlines.
type DeadlineAdder interface {
	ParseFutureDate(text string) (time.Time, error)
	AddCustom(ctx context.Context, telegramID int64, course, task string, due time.Time) (*model.Deadline, error)
}

// Accounts creates users on first contact and stores preferences.
type Accounts interface {
	EnsureFromTelegram(ctx context.Context, telegramID int64, username string) (*model.User, bool, error)
	SetNotificationInterval(ctx context.Context, telegramID int64, hours int) error
}

const maxIntervalHours = 100

const (
	textRegistrationPrompt = "Привет! Я бот для отслеживания дедлайнов в лк ГУАП.\n" +
		"🥸 Вижу, ты здесь впервые. Давай пройдем регистрацию!\n\n" +
		"[1️⃣/2️⃣] Отправь мне свой логин/почту от личного кабинета:"
	textWelcomeBack = "😊 С возвращением! Я уже знаю тебя!\n" +
		"👇 Чтобы посмотреть дедлайны, используй соответствующие кнопки."
	textPasswordPrompt = "[2️⃣/2️⃣] Отлично! Теперь введи свой пароль:"
	textLoggingIn      = "🔐 Пытаюсь войти в личный кабинет, это может занять минуту..."
	textLoginFailed    = "⛔ Не удалось войти. Скорее всего, логин и/или пароль неверны.\n" +
		"🥴 Пожалуйста, попробуй еще раз. Введи логин:"
	textRegistered = "✅️ Отлично!\n" +
		"💾 Я успешно вошёл в твой личный кабинет и сохранил твои данные.\n" +
		"🤫 Для безопасности я удалил сообщение с паролем из нашего чата."
	textNoDeadlinesFound = "На данный момент не найдено активных дедлайнов."
	textNothingToCancel  = "Нечего отменять.\nВы в главном меню."
	textCancelled        = "Действие отменено.\nВы в главном меню."
	textFinishFirst      = "Пожалуйста, сначала завершите текущее действие (регистрацию/добавление дедлайна), " +
		"или отмените его кнопкой '❌ Отмена' (команда /cancel)."
	textIntervalPrompt = "✍ Введите интервал в часах для частых уведомлений:\n" +
		"каждые <u>сколько часов</u> будет отправляться уведомление.\n\n" +
		"<i>Или введите <b>0</b>, чтобы отключить частые уведомления</i>:"
	textIntervalInvalid = "⛔️ Неверный формат. Пожалуйста, введите целое число от 0 до 100."
	textSettingsSaved   = "✅ Настройки сохранены!"
	textCoursePrompt    = "[1️⃣/3️⃣] Введите название предмета:"
	textTaskPrompt      = "[2️⃣/3️⃣] Теперь введите название задания:"
	textDuePrompt       = "[3️⃣/3️⃣] Теперь введите дату сдачи в формате ДД.ММ.ГГГГ (например, 25.12.2025):"
	textEmptyInput      = "⛔️ Пустое сообщение. Попробуйте еще раз:"
	textDueInPast       = "⛔️ Нельзя добавить дедлайн на уже <u>прошедшую</u> или <u>сегодняшнюю</u> дату.\n" +
		"Введите дату, начиная с завтрашнего дня:"
	textDueInvalid    = "⛔️ Неверный формат даты. Пожалуйста, введите дату в формате ДД.ММ.ГГГГ:"
	textDeadlineSaved = "✅ Новый дедлайн успешно добавлен!\nВы в главном меню."
	textApology       = "😔 Что-то пошло не так. Попробуйте еще раз позже.\nВы в главном меню."
)

// Machine routes chat events through an ordered rule table. The caller must
// not run two Handle calls for the same user at once.
type Machine struct {
	store     *Store
	responder Responder
	registrar Registrar
	deadlines DeadlineAdder
	accounts  Accounts
	log       *zap.Logger
}

func NewMachine(store *Store, responder Responder, registrar Registrar, deadlines DeadlineAdder, accounts Accounts, log *zap.Logger) *Machine {
	return &Machine{
		store:     store,
		responder: responder,
		registrar: registrar,
		deadlines: deadlines,
		accounts:  accounts,
		log:       log.Named("conversation"),
	}
}

type rule struct {
	name   string
	match  func(sess *Session, ev Event) bool
	handle func(m *Machine, ctx context.Context, sess *Session, ev Event) error
}

// rules are evaluated in order; the first match handles the event. Global
// commands come first, then the menu block for non-idle sessions, then the
// state-specific input handlers.
var rules = []rule{
	{name: "cancel", match: isCancel, handle: (*Machine).cancel},
	{name: "start", match: isCommand(CmdStart), handle: (*Machine).start},
	{name: "block_menu", match: blocksMenu, handle: (*Machine).blockMenu},
	{name: "login", match: textIn(AwaitingLogin), handle: (*Machine).login},
	{name: "password", match: textIn(AwaitingPassword), handle: (*Machine).password},
	{name: "interval", match: textIn(AwaitingNotificationHours), handle: (*Machine).interval},
	{name: "course", match: textIn(AwaitingDeadlineCourse), handle: (*Machine).course},
	{name: "task", match: textIn(AwaitingDeadlineTask), handle: (*Machine).task},
	{name: "due_date", match: textIn(AwaitingDeadlineDueDate), handle: (*Machine).dueDate},
}

func isCancel(_ *Session, ev Event) bool {
	return (ev.Kind == EventCommand && ev.Text == CmdCancel) ||
		(ev.Kind == EventText && strings.TrimSpace(ev.Text) == LabelCancel)
}

func isCommand(name string) func(*Session, Event) bool {
	return func(_ *Session, ev Event) bool {
		return ev.Kind == EventCommand && ev.Text == name
	}
}

func textIn(state State) func(*Session, Event) bool {
	return func(sess *Session, ev Event) bool {
		return sess.State == state && ev.Kind == EventText
	}
}

// blocksMenu matches menu actions attempted in the middle of a flow. /help is
// still allowed.
func blocksMenu(sess *Session, ev Event) bool {
	if sess.State == Idle {
		return false
	}
	switch ev.Kind {
	case EventButton:
		return true
	case EventCommand:
		return ev.Text != CmdHelp
	default:
		return slices.Contains(MenuLabels, strings.TrimSpace(ev.Text))
	}
}

// Handle processes ev and reports whether the machine consumed it. Events it
// does not consume belong to the menu handlers. A handler error resets the
// session to Idle.
func (m *Machine) Handle(ctx context.Context, ev Event) bool {
	sess := m.store.Load(ev.UserID)
	for _, r := range rules {
		if !r.match(&sess, ev) {
			continue
		}
		from := sess.State
		if err := r.handle(m, ctx, &sess, ev); err != nil {
			m.log.Error("conversation step failed",
				zap.Int64("telegram_id", ev.UserID),
				zap.String("rule", r.name),
				zap.Stringer("state", from),
				zap.Error(err),
			)
			sess.Reset()
			m.reply(ctx, ev.ChatID, textApology, KeyboardMain)
		}
		m.store.Save(ev.UserID, sess)
		if from != sess.State {
			m.log.Debug("conversation state changed",
				zap.Int64("telegram_id", ev.UserID),
				zap.Stringer("from", from),
				zap.Stringer("to", sess.State),
			)
		}
		return true
	}
	return false
}

// State returns the user's current state.
func (m *Machine) State(userID int64) State {
	return m.store.Load(userID).State
}

// BeginRegistration asks for the portal login.
func (m *Machine) BeginRegistration(ctx context.Context, userID, chatID int64) error {
	sess := Session{}
	sess.Transition(AwaitingLogin)
	m.store.Save(userID, sess)
	_, err := m.responder.Reply(ctx, chatID, textRegistrationPrompt, KeyboardCancel)
	return err
}

// BeginManualAdd asks for the course of a new custom deadline.
func (m *Machine) BeginManualAdd(ctx context.Context, userID, chatID int64) error {
	sess := Session{}
	sess.Transition(AwaitingDeadlineCourse)
	m.store.Save(userID, sess)
	_, err := m.responder.Reply(ctx, chatID, textCoursePrompt, KeyboardCancel)
	return err
}

// BeginIntervalConfig asks for the reminder interval in hours.
func (m *Machine) BeginIntervalConfig(ctx context.Context, userID, chatID int64) error {
	sess := Session{}
	sess.Transition(AwaitingNotificationHours)
	m.store.Save(userID, sess)
	_, err := m.responder.Reply(ctx, chatID, textIntervalPrompt, KeyboardNone)
	return err
}

func (m *Machine) cancel(ctx context.Context, sess *Session, ev Event) error {
	if sess.State == Idle {
		m.reply(ctx, ev.ChatID, textNothingToCancel, KeyboardMain)
		return nil
	}
	sess.Reset()
	m.log.Info("action cancelled", zap.Int64("telegram_id", ev.UserID))
	m.reply(ctx, ev.ChatID, textCancelled, KeyboardMain)
	return nil
}

func (m *Machine) start(ctx context.Context, sess *Session, ev Event) error {
	sess.Reset()
	user, created, err := m.accounts.EnsureFromTelegram(ctx, ev.UserID, ev.Username)
	if err != nil {
		return err
	}
	if created || !user.Authenticated() {
		m.log.Info("registration started", zap.Int64("telegram_id", ev.UserID), zap.Bool("new_user", created))
		sess.Transition(AwaitingLogin)
		m.reply(ctx, ev.ChatID, textRegistrationPrompt, KeyboardCancel)
		return nil
	}
	m.reply(ctx, ev.ChatID, textWelcomeBack, KeyboardMain)
	return nil
}

func (m *Machine) blockMenu(ctx context.Context, _ *Session, ev Event) error {
	m.reply(ctx, ev.ChatID, textFinishFirst, KeyboardNone)
	return nil
}

func (m *Machine) login(ctx context.Context, sess *Session, ev Event) error {
	login := strings.TrimSpace(ev.Text)
	if login == "" {
		m.reply(ctx, ev.ChatID, textEmptyInput, KeyboardNone)
		return nil
	}
	sess.Put(keyLogin, login)
	sess.Transition(AwaitingPassword)
	m.reply(ctx, ev.ChatID, textPasswordPrompt, KeyboardNone)
	return nil
}

func (m *Machine) password(ctx context.Context, sess *Session, ev Event) error {
	// The locked copy only limits how long the password lives in this
	// package; ev.Text and the transport's message still hold the plaintext.
	password := memguard.NewBufferFromBytes([]byte(ev.Text))
	defer password.Destroy()

	if err := m.responder.DeleteMessage(ctx, ev.ChatID, ev.MessageID); err != nil {
		m.log.Warn("failed to delete password message", zap.Int64("telegram_id", ev.UserID), zap.Error(err))
	}

	progressID, err := m.responder.Reply(ctx, ev.ChatID, textLoggingIn, KeyboardNone)
	if err != nil {
		m.log.Warn("failed to send progress message", zap.Int64("telegram_id", ev.UserID), zap.Error(err))
	}

	reg, err := m.registrar.Register(ctx, ev.UserID, ev.Username, sess.Get(keyLogin), password)

	if progressID != 0 {
		if derr := m.responder.DeleteMessage(ctx, ev.ChatID, progressID); derr != nil {
			m.log.Debug("failed to delete progress message", zap.Error(derr))
		}
	}

	if err != nil {
		if !errors.Is(err, portal.ErrAuth) && !errors.Is(err, portal.ErrUnavailable) {
			return err
		}
		service.LogRefreshError(m.log, ev.UserID, err)
		sess.Reset()
		sess.Transition(AwaitingLogin)
		m.reply(ctx, ev.ChatID, textLoginFailed, KeyboardCancel)
		return nil
	}

	sess.Reset()
	m.log.Info("user authenticated", zap.Int64("telegram_id", ev.UserID))
	m.reply(ctx, ev.ChatID, textRegistered, KeyboardMain)

	summary := textNoDeadlinesFound
	if len(reg.Deadlines) > 0 {
		summary = "Вот, что я нашёл:\n\n" + service.DeadlineListText(reg.Deadlines)
	}
	m.reply(ctx, ev.ChatID, summary, KeyboardNone)
	return nil
}

func (m *Machine) interval(ctx context.Context, sess *Session, ev Event) error {
	hours, err := strconv.Atoi(strings.TrimSpace(ev.Text))
	if err != nil || hours < 0 || hours > maxIntervalHours {
		m.reply(ctx, ev.ChatID, textIntervalInvalid, KeyboardNone)
		return nil
	}
	if err := m.accounts.SetNotificationInterval(ctx, ev.UserID, hours); err != nil {
		return err
	}
	sess.Reset()
	m.reply(ctx, ev.ChatID, textSettingsSaved, KeyboardNotificationSettings)
	return nil
}

func (m *Machine) course(ctx context.Context, sess *Session, ev Event) error {
	course := strings.TrimSpace(ev.Text)
	if course == "" {
		m.reply(ctx, ev.ChatID, textEmptyInput, KeyboardNone)
		return nil
	}
	sess.Put(keyCourse, course)
	sess.Transition(AwaitingDeadlineTask)
	m.reply(ctx, ev.ChatID, textTaskPrompt, KeyboardNone)
	return nil
}

func (m *Machine) task(ctx context.Context, sess *Session, ev Event) error {
	task := strings.TrimSpace(ev.Text)
	if task == "" {
		m.reply(ctx, ev.ChatID, textEmptyInput, KeyboardNone)
		return nil
	}
	sess.Put(keyTask, task)
	sess.Transition(AwaitingDeadlineDueDate)
	m.reply(ctx, ev.ChatID, textDuePrompt, KeyboardNone)
	return nil
}

func (m *Machine) dueDate(ctx context.Context, sess *Session, ev Event) error {
	due, err := m.deadlines.ParseFutureDate(ev.Text)
	if err == nil {
		_, err = m.deadlines.AddCustom(ctx, ev.UserID, sess.Get(keyCourse), sess.Get(keyTask), due)
	}
	switch {
	case errors.Is(err, service.ErrPastDate):
		m.reply(ctx, ev.ChatID, textDueInPast, KeyboardNone)
		return nil
	case errors.Is(err, service.ErrInvalidDate):
		m.reply(ctx, ev.ChatID, textDueInvalid, KeyboardNone)
		return nil
	case err != nil:
		return err
	}

	sess.Reset()
	m.reply(ctx, ev.ChatID, textDeadlineSaved, KeyboardMain)
	return nil
}

// reply logs delivery failures instead of returning them, so a lost message
// never resets the conversation.
func (m *Machine) reply(ctx context.Context, chatID int64, text string, kb Keyboard) {
	if _, err := m.responder.Reply(ctx, chatID, text, kb); err != nil {
		m.log.Error("failed to send reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
