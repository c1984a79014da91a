package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"deadline-bot/internal/model"
)

// DeadlineRepository handles CRUD for deadlines. Dates passed in as "today"
// are calendar dates built with model.CalendarDate.
type DeadlineRepository struct {
	db *gorm.DB
}

func NewDeadlineRepository(db *gorm.DB) *DeadlineRepository {
	return &DeadlineRepository{db: db}
}

// Transaction runs fn against a repository bound to a single transaction.
func (r *DeadlineRepository) Transaction(ctx context.Context, fn func(tx *DeadlineRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&DeadlineRepository{db: tx})
	})
}

// ListActive returns non-trashed deadlines due today or later, soonest first.
func (r *DeadlineRepository) ListActive(ctx context.Context, userID uint, today time.Time) ([]model.Deadline, error) {
	var deadlines []model.Deadline
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_trashed = ? AND due_date >= ?", userID, false, today).
		Order("due_date ASC, id ASC").
		Find(&deadlines).Error; err != nil {
		return nil, err
	}
	return deadlines, nil
}

// ListNonCustom returns every portal-sourced deadline of the user, trashed ones included.
func (r *DeadlineRepository) ListNonCustom(ctx context.Context, userID uint) ([]model.Deadline, error) {
	var deadlines []model.Deadline
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_custom = ?", userID, false).
		Order("id ASC").
		Find(&deadlines).Error; err != nil {
		return nil, err
	}
	return deadlines, nil
}

func (r *DeadlineRepository) ListTrashed(ctx context.Context, userID uint) ([]model.Deadline, error) {
	var deadlines []model.Deadline
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_trashed = ?", userID, true).
		Order("due_date ASC, id ASC").
		Find(&deadlines).Error; err != nil {
		return nil, err
	}
	return deadlines, nil
}

func (r *DeadlineRepository) BulkInsert(ctx context.Context, deadlines []model.Deadline) error {
	if len(deadlines) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&deadlines).Error; err != nil {
		return fmt.Errorf("insert deadlines: %w", err)
	}
	return nil
}

func (r *DeadlineRepository) BulkDeleteByID(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&model.Deadline{}).Error; err != nil {
		return fmt.Errorf("delete deadlines: %w", err)
	}
	return nil
}

func (r *DeadlineRepository) Create(ctx context.Context, deadline *model.Deadline) error {
	if err := r.db.WithContext(ctx).Create(deadline).Error; err != nil {
		return fmt.Errorf("create deadline: %w", err)
	}
	return nil
}

// GetByID returns a deadline only if it belongs to the given user.
func (r *DeadlineRepository) GetByID(ctx context.Context, userID, id uint) (*model.Deadline, error) {
	var deadline model.Deadline
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).First(&deadline).Error; err != nil {
		return nil, err
	}
	return &deadline, nil
}

// SoftTrash moves a deadline to the trash.
func (r *DeadlineRepository) SoftTrash(ctx context.Context, userID, id uint) error {
	return r.setTrashed(ctx, userID, id, true)
}

// Restore takes a deadline out of the trash.
func (r *DeadlineRepository) Restore(ctx context.Context, userID, id uint) error {
	return r.setTrashed(ctx, userID, id, false)
}

func (r *DeadlineRepository) setTrashed(ctx context.Context, userID, id uint, trashed bool) error {
	res := r.db.WithContext(ctx).Model(&model.Deadline{}).
		Where("user_id = ? AND id = ?", userID, id).
		Update("is_trashed", trashed)
	if res.Error != nil {
		return fmt.Errorf("update deadline: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// PurgeExpiredTrash deletes trashed deadlines whose due date has passed.
func (r *DeadlineRepository) PurgeExpiredTrash(ctx context.Context, today time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("is_trashed = ? AND due_date < ?", true, today).
		Delete(&model.Deadline{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge trash: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *DeadlineRepository) DeleteAllCustom(ctx context.Context, userID uint) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND is_custom = ?", userID, true).
		Delete(&model.Deadline{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete custom deadlines: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Stats returns the number of active deadlines and how many of them are custom.
func (r *DeadlineRepository) Stats(ctx context.Context, userID uint, today time.Time) (total, custom int64, err error) {
	base := r.db.WithContext(ctx).Model(&model.Deadline{}).
		Where("user_id = ? AND is_trashed = ? AND due_date >= ?", userID, false, today)
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("count deadlines: %w", err)
	}
	if err := base.Session(&gorm.Session{}).Where("is_custom = ?", true).Count(&custom).Error; err != nil {
		return 0, 0, fmt.Errorf("count custom deadlines: %w", err)
	}
	return total, custom, nil
}
