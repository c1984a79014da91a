package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"deadline-bot/internal/metrics"
	"deadline-bot/internal/model"
	"deadline-bot/internal/repository"
)

// Channel names a reminder channel.
type Channel string

const (
	ChannelDay      Channel = "day"
	ChannelInterval Channel = "interval"
	ChannelNew      Channel = "new"
)

// Sender delivers an HTML message to a Telegram chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Notification is one message the scheduler decided to send.
type Notification struct {
	TelegramID int64
	Channel    Channel
	Text       string
}

// Plan decides which reminder, if any, the user gets at now. active must be
// the user's non-trashed deadlines due today or later, soonest first.
//
// The day channel fires at dailyHour for the first deadline whose remaining
// days are among the user's offsets. The interval channel fires on hours
// divisible by the interval unless the day channel already fired.
func Plan(user *model.User, active []model.Deadline, now time.Time, dailyHour int) (Notification, bool) {
	if !user.NotificationsEnabled || len(active) == 0 {
		return Notification{}, false
	}

	hour := now.Hour()
	if hour == dailyHour && len(user.NotificationDays) > 0 {
		today := model.CalendarDate(now)
		for _, d := range active {
			left := d.DaysUntil(today)
			if left >= 0 && user.HasNotificationDay(left) {
				return Notification{
					TelegramID: user.TelegramID,
					Channel:    ChannelDay,
					Text:       DayReminderText(d, left),
				}, true
			}
		}
	}

	if interval := user.NotificationIntervalHours; interval > 0 && hour%interval == 0 {
		return Notification{
			TelegramID: user.TelegramID,
			Channel:    ChannelInterval,
			Text:       IntervalReminderText(active),
		}, true
	}
	return Notification{}, false
}

// NotificationService evaluates and delivers due reminders.
type NotificationService struct {
	users     *repository.UserRepository
	deadlines *repository.DeadlineRepository
	sender    Sender
	loc       *time.Location
	dailyHour int
	log       *zap.Logger
}

func NewNotificationService(
	users *repository.UserRepository,
	deadlines *repository.DeadlineRepository,
	sender Sender,
	loc *time.Location,
	dailyHour int,
	log *zap.Logger,
) *NotificationService {
	return &NotificationService{
		users:     users,
		deadlines: deadlines,
		sender:    sender,
		loc:       loc,
		dailyHour: dailyHour,
		log:       log.Named("notifier"),
	}
}

// Evaluate returns the reminders due at now for every opted-in user. A user
// whose deadlines cannot be loaded is logged and skipped.
func (s *NotificationService) Evaluate(ctx context.Context, now time.Time) ([]Notification, error) {
	now = now.In(s.loc)
	users, err := s.users.ListNotifiable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list notifiable users: %w", err)
	}

	today := model.CalendarDate(now)
	var out []Notification
	for i := range users {
		user := &users[i]
		active, err := s.deadlines.ListActive(ctx, user.ID, today)
		if err != nil {
			s.log.Error("failed to load deadlines", zap.Int64("telegram_id", user.TelegramID), zap.Error(err))
			continue
		}
		if n, ok := Plan(user, active, now, s.dailyHour); ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// Dispatch evaluates reminders at now and sends them. Delivery failures are
// logged per user and never stop the batch. It returns the number of
// messages delivered.
func (s *NotificationService) Dispatch(ctx context.Context, now time.Time) (int, error) {
	notifications, err := s.Evaluate(ctx, now)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, n := range notifications {
		if err := s.sender.Send(ctx, n.TelegramID, n.Text); err != nil {
			metrics.NotificationsSent.WithLabelValues(string(n.Channel), "error").Inc()
			s.log.Error("failed to deliver reminder",
				zap.Int64("telegram_id", n.TelegramID),
				zap.String("channel", string(n.Channel)),
				zap.Error(err),
			)
			continue
		}
		sent++
		metrics.NotificationsSent.WithLabelValues(string(n.Channel), "ok").Inc()
		s.log.Info("reminder sent", zap.Int64("telegram_id", n.TelegramID), zap.String("channel", string(n.Channel)))
	}
	s.log.Info("notification sweep finished", zap.Int("planned", len(notifications)), zap.Int("sent", sent))
	return sent, nil
}
