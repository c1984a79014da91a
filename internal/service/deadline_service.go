package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"deadline-bot/internal/model"
	"deadline-bot/internal/portal"
	"deadline-bot/internal/repository"
)

var (
	ErrInvalidDate  = errors.New("date must be dd.mm.yyyy")
	ErrPastDate     = errors.New("date must be after today")
	ErrDeadlineGone = errors.New("deadline no longer exists")
)

// Profile is what the profile page shows.
type Profile struct {
	User     *model.User
	Semester portal.Semester
	Active   int64
	Custom   int64
}

// DeadlineService wraps user-facing deadline operations.
type DeadlineService struct {
	users     *repository.UserRepository
	deadlines *repository.DeadlineRepository
	loc       *time.Location
	now       func() time.Time
	log       *zap.Logger
}

func NewDeadlineService(users *repository.UserRepository, deadlines *repository.DeadlineRepository, loc *time.Location, log *zap.Logger) *DeadlineService {
	return &DeadlineService{
		users:     users,
		deadlines: deadlines,
		loc:       loc,
		now:       time.Now,
		log:       log.Named("deadlines"),
	}
}

// Today is the current calendar date in the configured location.
func (s *DeadlineService) Today() time.Time {
	return model.CalendarDate(s.now().In(s.loc))
}

// ParseFutureDate parses manual input and requires a date after today.
func (s *DeadlineService) ParseFutureDate(text string) (time.Time, error) {
	due, err := model.ParseDate(strings.TrimSpace(text))
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	if !due.After(s.Today()) {
		return time.Time{}, ErrPastDate
	}
	return due, nil
}

func (s *DeadlineService) user(ctx context.Context, telegramID int64) (*model.User, error) {
	user, err := s.users.FindByTelegramID(ctx, telegramID)
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrUserNotFound
	default:
		return nil, fmt.Errorf("load user: %w", err)
	}
}

// Active lists the user's active deadlines, soonest first.
func (s *DeadlineService) Active(ctx context.Context, telegramID int64) ([]model.Deadline, error) {
	user, err := s.user(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	return s.deadlines.ListActive(ctx, user.ID, s.Today())
}

// AddCustom stores a manually entered deadline.
func (s *DeadlineService) AddCustom(ctx context.Context, telegramID int64, course, task string, due time.Time) (*model.Deadline, error) {
	if !due.After(s.Today()) {
		return nil, ErrPastDate
	}
	user, err := s.user(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	deadline := model.Deadline{
		UserID:     user.ID,
		CourseName: truncate(strings.TrimSpace(course), 100),
		TaskName:   truncate(strings.TrimSpace(task), 255),
		DueDate:    model.CalendarDate(due),
		IsCustom:   true,
	}
	if err := s.deadlines.Create(ctx, &deadline); err != nil {
		return nil, err
	}
	s.log.Info("custom deadline added", zap.Int64("telegram_id", telegramID), zap.Uint("deadline_id", deadline.ID))
	return &deadline, nil
}

// Get returns one of the user's deadlines.
func (s *DeadlineService) Get(ctx context.Context, telegramID int64, id uint) (*model.Deadline, error) {
	user, err := s.user(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	deadline, err := s.deadlines.GetByID(ctx, user.ID, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDeadlineGone
	}
	return deadline, err
}

// Trash moves a deadline to the trash. Reconciliation keeps trashed portal
// deadlines trashed while the portal still lists them.
func (s *DeadlineService) Trash(ctx context.Context, telegramID int64, id uint) error {
	return s.setTrashed(ctx, telegramID, id, true)
}

func (s *DeadlineService) Restore(ctx context.Context, telegramID int64, id uint) error {
	return s.setTrashed(ctx, telegramID, id, false)
}

func (s *DeadlineService) setTrashed(ctx context.Context, telegramID int64, id uint, trashed bool) error {
	user, err := s.user(ctx, telegramID)
	if err != nil {
		return err
	}
	if trashed {
		err = s.deadlines.SoftTrash(ctx, user.ID, id)
	} else {
		err = s.deadlines.Restore(ctx, user.ID, id)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrDeadlineGone
	}
	return err
}

func (s *DeadlineService) Trashed(ctx context.Context, telegramID int64) ([]model.Deadline, error) {
	user, err := s.user(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	return s.deadlines.ListTrashed(ctx, user.ID)
}

// PurgeExpiredTrash permanently deletes trashed deadlines that are past due.
func (s *DeadlineService) PurgeExpiredTrash(ctx context.Context) (int64, error) {
	n, err := s.deadlines.PurgeExpiredTrash(ctx, s.Today())
	if err != nil {
		return 0, err
	}
	s.log.Info("expired trash purged", zap.Int64("deleted", n))
	return n, nil
}

func (s *DeadlineService) DeleteAllCustom(ctx context.Context, telegramID int64) (int64, error) {
	user, err := s.user(ctx, telegramID)
	if err != nil {
		return 0, err
	}
	return s.deadlines.DeleteAllCustom(ctx, user.ID)
}

// Profile collects the data shown on the profile page.
func (s *DeadlineService) Profile(ctx context.Context, telegramID int64) (*Profile, error) {
	user, err := s.user(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	total, custom, err := s.deadlines.Stats(ctx, user.ID, s.Today())
	if err != nil {
		return nil, err
	}
	return &Profile{
		User:     user,
		Semester: portal.CurrentSemester(s.now().In(s.loc)),
		Active:   total,
		Custom:   custom,
	}, nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
