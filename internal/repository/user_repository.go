package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"deadline-bot/internal/model"
)

// ErrPartialCredentials is returned when only one of login/password is supplied.
var ErrPartialCredentials = errors.New("login and password must be stored together")

// UserRepository handles CRUD for users.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// EnsureFromTelegram finds or creates a user by TelegramID. The second result
// reports whether the user was created by this call.
func (r *UserRepository) EnsureFromTelegram(ctx context.Context, telegramID int64, username string) (*model.User, bool, error) {
	var user model.User
	db := r.db.WithContext(ctx)
	err := db.Where("telegram_id = ?", telegramID).First(&user).Error
	switch {
	case err == nil:
		if username != "" && user.Username != username {
			if err := db.Model(&user).Update("username", username).Error; err != nil {
				return nil, false, fmt.Errorf("update user: %w", err)
			}
		}
		return &user, false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = model.User{
			TelegramID:           telegramID,
			Username:             username,
			NotificationsEnabled: true,
			NotificationDays:     slices.Clone(model.DefaultNotificationDays),
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, false, fmt.Errorf("create user: %w", err)
		}
		return &user, true, nil
	default:
		return nil, false, fmt.Errorf("find user: %w", err)
	}
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// SetCredentials stores the encrypted credential pair together with the portal profile.
func (r *UserRepository) SetCredentials(ctx context.Context, telegramID int64, encLogin, encPassword string, profileID, fullName *string) error {
	if encLogin == "" || encPassword == "" {
		return ErrPartialCredentials
	}
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("telegram_id = ?", telegramID).
		Updates(map[string]interface{}{
			"encrypted_login":    encLogin,
			"encrypted_password": encPassword,
			"profile_id":         profileID,
			"full_name":          fullName,
		})
	if res.Error != nil {
		return fmt.Errorf("set credentials: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// ListNotifiable returns users with notifications enabled.
func (r *UserRepository) ListNotifiable(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Where("notifications_enabled = ?", true).Order("id ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// ToggleNotifications flips the notifications switch and returns the new value.
func (r *UserRepository) ToggleNotifications(ctx context.Context, telegramID int64) (bool, error) {
	var enabled bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user model.User
		if err := tx.Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
			return err
		}
		enabled = !user.NotificationsEnabled
		return tx.Model(&user).Update("notifications_enabled", enabled).Error
	})
	if err != nil {
		return false, fmt.Errorf("toggle notifications: %w", err)
	}
	return enabled, nil
}

// ToggleNotificationDay adds or removes a day offset and returns the sorted result.
func (r *UserRepository) ToggleNotificationDay(ctx context.Context, telegramID int64, day int) ([]int, error) {
	if day < 0 {
		return nil, fmt.Errorf("notification day must be non-negative, got %d", day)
	}
	var days []int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user model.User
		if err := tx.Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
			return err
		}
		days = slices.Clone([]int(user.NotificationDays))
		if i := slices.Index(days, day); i >= 0 {
			days = slices.Delete(days, i, i+1)
		} else {
			days = append(days, day)
		}
		slices.Sort(days)
		return tx.Model(&user).Update("notification_days", datatypes.NewJSONSlice(days)).Error
	})
	if err != nil {
		return nil, fmt.Errorf("toggle notification day: %w", err)
	}
	return days, nil
}

func (r *UserRepository) SetNotificationInterval(ctx context.Context, telegramID int64, hours int) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("telegram_id = ?", telegramID).
		Update("notification_interval_hours", hours)
	if res.Error != nil {
		return fmt.Errorf("set notification interval: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteCascade removes the user and every deadline they own. It reports
// whether a user was found.
func (r *UserRepository) DeleteCascade(ctx context.Context, telegramID int64) (bool, error) {
	deleted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user model.User
		err := tx.Where("telegram_id = ?", telegramID).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&model.Deadline{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&user).Error; err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	return deleted, nil
}
