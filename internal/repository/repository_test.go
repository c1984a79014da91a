package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"deadline-bot/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := NewDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func strPtr(s string) *string { return &s }

func TestUserRepository_EnsureFromTelegram(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))

	user, created, err := repo.EnsureFromTelegram(ctx, 42, "student")
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, user.NotificationsEnabled)
	assert.Equal(t, []int{1, 3, 7}, []int(user.NotificationDays))
	assert.Zero(t, user.NotificationIntervalHours)
	assert.False(t, user.Authenticated())

	again, created, err := repo.EnsureFromTelegram(ctx, 42, "renamed")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.ID, again.ID)

	stored, err := repo.FindByTelegramID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "renamed", stored.Username)
	assert.Equal(t, []int{1, 3, 7}, []int(stored.NotificationDays))
}

func TestUserRepository_SetCredentials(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))
	_, _, err := repo.EnsureFromTelegram(ctx, 7, "")
	require.NoError(t, err)

	assert.ErrorIs(t, repo.SetCredentials(ctx, 7, "login", "", nil, nil), ErrPartialCredentials)
	assert.ErrorIs(t, repo.SetCredentials(ctx, 7, "", "password", nil, nil), ErrPartialCredentials)

	user, err := repo.FindByTelegramID(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, user.EncryptedLogin)
	assert.Nil(t, user.EncryptedPassword)

	require.NoError(t, repo.SetCredentials(ctx, 7, "enc-login", "enc-password", strPtr("1234"), strPtr("Иванов Иван")))
	user, err = repo.FindByTelegramID(ctx, 7)
	require.NoError(t, err)
	assert.True(t, user.Authenticated())
	assert.Equal(t, "1234", *user.ProfileID)
	assert.Equal(t, "Иванов Иван", user.DisplayName())

	assert.ErrorIs(t, repo.SetCredentials(ctx, 999, "a", "b", nil, nil), gorm.ErrRecordNotFound)
}

func TestUserRepository_NotificationPreferences(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))
	_, _, err := repo.EnsureFromTelegram(ctx, 1, "")
	require.NoError(t, err)
	_, _, err = repo.EnsureFromTelegram(ctx, 2, "")
	require.NoError(t, err)

	enabled, err := repo.ToggleNotifications(ctx, 1)
	require.NoError(t, err)
	assert.False(t, enabled)

	notifiable, err := repo.ListNotifiable(ctx)
	require.NoError(t, err)
	require.Len(t, notifiable, 1)
	assert.Equal(t, int64(2), notifiable[0].TelegramID)

	days, err := repo.ToggleNotificationDay(ctx, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 7}, days)

	days, err = repo.ToggleNotificationDay(ctx, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 7}, days)

	require.NoError(t, repo.SetNotificationInterval(ctx, 2, 6))
	user, err := repo.FindByTelegramID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 6, user.NotificationIntervalHours)
	assert.True(t, user.HasNotificationDay(3))

	assert.ErrorIs(t, repo.SetNotificationInterval(ctx, 404, 1), gorm.ErrRecordNotFound)
}

func TestUserRepository_DeleteCascade(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := NewUserRepository(db)
	deadlines := NewDeadlineRepository(db)

	keep, _, err := users.EnsureFromTelegram(ctx, 1, "")
	require.NoError(t, err)
	gone, _, err := users.EnsureFromTelegram(ctx, 2, "")
	require.NoError(t, err)

	due := model.Date(2026, time.June, 1)
	require.NoError(t, deadlines.BulkInsert(ctx, []model.Deadline{
		{UserID: keep.ID, CourseName: "OS", TaskName: "Lab1", DueDate: due},
		{UserID: gone.ID, CourseName: "OS", TaskName: "Lab1", DueDate: due},
		{UserID: gone.ID, CourseName: "DB", TaskName: "Essay", DueDate: due, IsCustom: true},
	}))

	deleted, err := users.DeleteCascade(ctx, 2)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = users.FindByTelegramID(ctx, 2)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var remaining int64
	require.NoError(t, db.Model(&model.Deadline{}).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining)

	deleted, err = users.DeleteCascade(ctx, 2)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDeadlineRepository_ActiveAndTrash(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	user, _, err := NewUserRepository(db).EnsureFromTelegram(ctx, 1, "")
	require.NoError(t, err)
	repo := NewDeadlineRepository(db)

	today := model.Date(2026, time.May, 10)
	require.NoError(t, repo.BulkInsert(ctx, []model.Deadline{
		{UserID: user.ID, CourseName: "OS", TaskName: "Lab2", DueDate: model.Date(2026, time.May, 20)},
		{UserID: user.ID, CourseName: "OS", TaskName: "Lab1", DueDate: today},
		{UserID: user.ID, CourseName: "OS", TaskName: "Old", DueDate: model.Date(2026, time.May, 1)},
		{UserID: user.ID, CourseName: "Math", TaskName: "Own", DueDate: model.Date(2026, time.May, 15), IsCustom: true},
	}))

	active, err := repo.ListActive(ctx, user.ID, today)
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, "Lab1", active[0].TaskName)
	assert.Equal(t, "Own", active[1].TaskName)
	assert.Equal(t, "Lab2", active[2].TaskName)

	total, custom, err := repo.Stats(ctx, user.ID, today)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, int64(1), custom)

	nonCustom, err := repo.ListNonCustom(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, nonCustom, 3)

	require.NoError(t, repo.SoftTrash(ctx, user.ID, active[2].ID))
	active, err = repo.ListActive(ctx, user.ID, today)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	trashed, err := repo.ListTrashed(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, trashed, 1)
	assert.Equal(t, "Lab2", trashed[0].TaskName)

	require.NoError(t, repo.Restore(ctx, user.ID, trashed[0].ID))
	assert.ErrorIs(t, repo.SoftTrash(ctx, user.ID+1, trashed[0].ID), gorm.ErrRecordNotFound)

	_, err = repo.GetByID(ctx, user.ID+1, trashed[0].ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDeadlineRepository_PurgeExpiredTrash(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	user, _, err := NewUserRepository(db).EnsureFromTelegram(ctx, 1, "")
	require.NoError(t, err)
	repo := NewDeadlineRepository(db)

	today := model.Date(2026, time.May, 10)
	require.NoError(t, repo.BulkInsert(ctx, []model.Deadline{
		{UserID: user.ID, CourseName: "A", TaskName: "expired trash", DueDate: model.Date(2026, time.May, 9), IsTrashed: true},
		{UserID: user.ID, CourseName: "A", TaskName: "future trash", DueDate: today, IsTrashed: true},
		{UserID: user.ID, CourseName: "A", TaskName: "expired", DueDate: model.Date(2026, time.May, 1)},
	}))

	purged, err := repo.PurgeExpiredTrash(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	trashed, err := repo.ListTrashed(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, trashed, 1)
	assert.Equal(t, "future trash", trashed[0].TaskName)
}

func TestDeadlineRepository_TransactionRollback(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	user, _, err := NewUserRepository(db).EnsureFromTelegram(ctx, 1, "")
	require.NoError(t, err)
	repo := NewDeadlineRepository(db)

	boom := fmt.Errorf("boom")
	err = repo.Transaction(ctx, func(tx *DeadlineRepository) error {
		if err := tx.BulkInsert(ctx, []model.Deadline{
			{UserID: user.ID, CourseName: "OS", TaskName: "Lab1", DueDate: model.Date(2026, time.June, 1)},
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	all, err := repo.ListNonCustom(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, all)
}
