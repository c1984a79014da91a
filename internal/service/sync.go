package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"deadline-bot/internal/metrics"
	"deadline-bot/internal/model"
	"deadline-bot/internal/portal"
	"deadline-bot/internal/repository"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrNotAuthenticated = errors.New("user has no stored portal credentials")
)

// Refresh triggers, used as metric labels.
const (
	TriggerSweep        = "sweep"
	TriggerManual       = "manual"
	TriggerRegistration = "registration"
)

// Cipher encrypts credentials at rest.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Registration is the outcome of a successful credential check.
type Registration struct {
	User      *model.User
	Deadlines []model.Deadline
}

// SyncService keeps stored deadlines in line with the portal.
type SyncService struct {
	users      *repository.UserRepository
	deadlines  *repository.DeadlineRepository
	reconciler *Reconciler
	fetcher    portal.Fetcher
	cipher     Cipher
	sender     Sender
	limiter    *rate.Limiter
	group      singleflight.Group
	loc        *time.Location
	now        func() time.Time
	log        *zap.Logger
}

// NewSyncService builds the service. userDelay is the minimum pause between
// two users of a sweep; zero disables it.
func NewSyncService(
	users *repository.UserRepository,
	deadlines *repository.DeadlineRepository,
	reconciler *Reconciler,
	fetcher portal.Fetcher,
	cipher Cipher,
	sender Sender,
	userDelay time.Duration,
	loc *time.Location,
	log *zap.Logger,
) *SyncService {
	limit := rate.Inf
	if userDelay > 0 {
		limit = rate.Every(userDelay)
	}
	return &SyncService{
		users:      users,
		deadlines:  deadlines,
		reconciler: reconciler,
		fetcher:    fetcher,
		cipher:     cipher,
		sender:     sender,
		limiter:    rate.NewLimiter(limit, 1),
		loc:        loc,
		now:        time.Now,
		log:        log.Named("sync"),
	}
}

// Refresh scrapes the portal for one user and reconciles the result. New
// deadlines are announced to the user. With force set, the user is also told
// when nothing changed. Concurrent refreshes of the same user share one
// portal session.
func (s *SyncService) Refresh(ctx context.Context, telegramID int64, trigger string, force bool) ([]model.Deadline, error) {
	v, err, _ := s.group.Do(strconv.FormatInt(telegramID, 10), func() (any, error) {
		return s.refresh(ctx, telegramID)
	})
	if err != nil {
		metrics.SyncRuns.WithLabelValues(trigger, "error").Inc()
		return nil, err
	}
	metrics.SyncRuns.WithLabelValues(trigger, "ok").Inc()

	added := v.([]model.Deadline)
	if len(added) == 0 && force {
		if err := s.sender.Send(ctx, telegramID, "✅ Новых дедлайнов не найдено, всё по-прежнему!"); err != nil {
			s.log.Error("failed to send refresh result", zap.Int64("telegram_id", telegramID), zap.Error(err))
		}
	}
	return added, nil
}

func (s *SyncService) refresh(ctx context.Context, telegramID int64) ([]model.Deadline, error) {
	user, err := s.users.FindByTelegramID(ctx, telegramID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.Authenticated() {
		return nil, ErrNotAuthenticated
	}

	creds, err := s.credentials(user)
	if err != nil {
		return nil, err
	}
	defer creds.Password.Destroy()

	res, err := s.fetcher.Fetch(ctx, creds)
	if err != nil {
		return nil, err
	}

	added, err := s.reconciler.Reconcile(ctx, user.ID, res.Deadlines)
	if err != nil {
		return nil, err
	}

	if len(added) > 0 {
		s.log.Info("new deadlines found", zap.Int64("telegram_id", telegramID), zap.Int("count", len(added)))
		if err := s.sender.Send(ctx, telegramID, NewDeadlinesText(added)); err != nil {
			metrics.NotificationsSent.WithLabelValues(string(ChannelNew), "error").Inc()
			s.log.Error("failed to announce new deadlines", zap.Int64("telegram_id", telegramID), zap.Error(err))
		} else {
			metrics.NotificationsSent.WithLabelValues(string(ChannelNew), "ok").Inc()
		}
	}
	return added, nil
}

func (s *SyncService) credentials(user *model.User) (portal.Credentials, error) {
	login, err := s.cipher.Decrypt(*user.EncryptedLogin)
	if err != nil {
		return portal.Credentials{}, fmt.Errorf("decrypt login: %w", err)
	}
	password, err := s.cipher.Decrypt(*user.EncryptedPassword)
	if err != nil {
		return portal.Credentials{}, fmt.Errorf("decrypt password: %w", err)
	}
	return portal.Credentials{
		Login:    login,
		Password: memguard.NewBufferFromBytes([]byte(password)),
	}, nil
}

// Register checks the credentials against the portal and, on success, stores
// them encrypted together with the scraped deadlines. The caller owns
// password and destroys it.
func (s *SyncService) Register(ctx context.Context, telegramID int64, username, login string, password *memguard.LockedBuffer) (*Registration, error) {
	res, err := s.fetcher.Fetch(ctx, portal.Credentials{Login: login, Password: password})
	if err != nil {
		metrics.SyncRuns.WithLabelValues(TriggerRegistration, "error").Inc()
		return nil, err
	}

	encLogin, err := s.cipher.Encrypt(login)
	if err != nil {
		return nil, fmt.Errorf("encrypt login: %w", err)
	}
	encPassword, err := s.cipher.Encrypt(password.String())
	if err != nil {
		return nil, fmt.Errorf("encrypt password: %w", err)
	}

	user, _, err := s.users.EnsureFromTelegram(ctx, telegramID, username)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetCredentials(ctx, telegramID, encLogin, encPassword, res.ProfileID, res.FullName); err != nil {
		return nil, fmt.Errorf("store credentials: %w", err)
	}
	if _, err := s.reconciler.Reconcile(ctx, user.ID, res.Deadlines); err != nil {
		return nil, err
	}
	metrics.SyncRuns.WithLabelValues(TriggerRegistration, "ok").Inc()

	user, err = s.users.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("reload user: %w", err)
	}
	active, err := s.deadlines.ListActive(ctx, user.ID, model.CalendarDate(s.now().In(s.loc)))
	if err != nil {
		return nil, fmt.Errorf("list deadlines: %w", err)
	}

	s.log.Info("user registered", zap.Int64("telegram_id", telegramID), zap.Int("deadlines", len(active)))
	return &Registration{User: user, Deadlines: active}, nil
}

// Sweep refreshes every authenticated user one after another, pausing
// between users. Failures are logged per user.
func (s *SyncService) Sweep(ctx context.Context) error {
	sweepID := uuid.NewString()
	log := s.log.With(zap.String("sweep_id", sweepID))

	users, err := s.users.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	log.Info("deadline sweep started", zap.Int("users", len(users)))
	refreshed := 0
	for i := range users {
		user := &users[i]
		if !user.Authenticated() {
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("sweep %s interrupted: %w", sweepID, err)
		}

		if _, err := s.Refresh(ctx, user.TelegramID, TriggerSweep, false); err != nil {
			LogRefreshError(log, user.TelegramID, err)
			continue
		}
		refreshed++
	}
	log.Info("deadline sweep finished", zap.Int("refreshed", refreshed))
	return nil
}

// VerifyKey decrypts every stored credential pair. A failure means the
// configured key does not match the stored data.
func (s *SyncService) VerifyKey(ctx context.Context) error {
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	for i := range users {
		user := &users[i]
		if !user.Authenticated() {
			continue
		}
		creds, err := s.credentials(user)
		if err != nil {
			return fmt.Errorf("user %d: %w", user.TelegramID, err)
		}
		creds.Password.Destroy()
	}
	return nil
}

// LogRefreshError logs a failed portal refresh at the level its cause deserves.
func LogRefreshError(log *zap.Logger, telegramID int64, err error) {
	fields := []zap.Field{zap.Int64("telegram_id", telegramID), zap.Error(err)}
	switch {
	case errors.Is(err, portal.ErrAuth):
		log.Warn("portal rejected stored credentials", fields...)
	case errors.Is(err, ErrNotAuthenticated), errors.Is(err, ErrUserNotFound):
		log.Info("refresh skipped", fields...)
	default:
		log.Error("failed to refresh deadlines", fields...)
	}
}
