package conversation

import "context"

// EventKind tells how the user produced an event.
type EventKind int

const (
	EventText EventKind = iota
	EventCommand
	EventButton
)

// Event is one inbound chat action. For commands Text is the command name
// without the slash; for buttons it is the callback data.
type Event struct {
	Kind      EventKind
	UserID    int64
	ChatID    int64
	MessageID int
	Username  string
	Text      string
}

// Commands recognised by the bot.
const (
	CmdStart  = "start"
	CmdHelp   = "help"
	CmdStatus = "status"
	CmdUpdate = "update"
	CmdAdd    = "add"
	CmdCancel = "cancel"
	CmdStop   = "stop"
)

// Reply keyboard labels.
const (
	LabelDeadlines        = "🚨 Посмотреть дедлайны"
	LabelNotifications    = "🔔 Настройка напоминаний"
	LabelProfile          = "👤 Мой профиль"
	LabelDeadlineSettings = "🛠️ Настройка дедлайнов"
	LabelCancel           = "❌ Отмена"
)

// MenuLabels are the main menu buttons.
var MenuLabels = []string{LabelDeadlines, LabelNotifications, LabelProfile, LabelDeadlineSettings}

// Keyboard selects the markup sent with a reply.
type Keyboard int

const (
	KeyboardNone Keyboard = iota
	KeyboardMain
	KeyboardCancel
	KeyboardNotificationSettings
)

// Responder is the outbound side of the chat used by the machine.
type Responder interface {
	// Reply sends text to chatID and returns the id of the sent message.
	Reply(ctx context.Context, chatID int64, text string, kb Keyboard) (int, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}
