package service

import (
	"fmt"
	"html"
	"strings"

	"deadline-bot/internal/model"
)

// DayReminderText renders the single-deadline reminder of the day channel.
func DayReminderText(d model.Deadline, daysLeft int) string {
	var sb strings.Builder
	sb.WriteString("🔔 <b>Напоминание о дедлайне!</b>\n\n")
	sb.WriteString(fmt.Sprintf("📚 <b>Предмет:</b> %s\n", escape(d.CourseName)))
	sb.WriteString(fmt.Sprintf("📝 <b>Задание:</b> %s\n\n", escape(d.TaskName)))
	sb.WriteString(fmt.Sprintf("🗓️ <u>Осталось дней</u>: <b>%d</b>", daysLeft))
	return sb.String()
}

// IntervalReminderText renders the rollup of all active deadlines.
func IntervalReminderText(deadlines []model.Deadline) string {
	var sb strings.Builder
	sb.WriteString("⏰ <b>Часовое напоминание!</b>\n\nВаши активные дедлайны:\n\n")
	for _, d := range deadlines {
		sb.WriteString(fmt.Sprintf("▪️ %s: %s (до %s)\n",
			escape(d.CourseName), escape(d.TaskName), d.DueDate.Format("02.01")))
	}
	return strings.TrimSpace(sb.String())
}

// NewDeadlinesText lists deadlines found by a refresh.
func NewDeadlinesText(added []model.Deadline) string {
	var sb strings.Builder
	sb.WriteString("✨ <b>Обнаружены новые дедлайны!</b>\n\n")
	for _, d := range added {
		sb.WriteString(formatDeadline(d))
	}
	return strings.TrimSpace(sb.String())
}

// DeadlineListText renders deadlines the way the registration summary and
// the deadline pages show them.
func DeadlineListText(deadlines []model.Deadline) string {
	var sb strings.Builder
	for _, d := range deadlines {
		sb.WriteString(formatDeadline(d))
	}
	return strings.TrimSpace(sb.String())
}

func formatDeadline(d model.Deadline) string {
	var sb strings.Builder
	icon := "📚"
	if d.IsCustom {
		icon = "✍️"
	}
	sb.WriteString(fmt.Sprintf("%s <b>%s</b>\n", icon, escape(d.CourseName)))
	sb.WriteString(fmt.Sprintf("📝 %s\n", escape(d.TaskName)))
	sb.WriteString(fmt.Sprintf("🗓️ Срок сдачи: %s\n\n", d.DueDate.Format(model.DateLayout)))
	return sb.String()
}

func escape(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
