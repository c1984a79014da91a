package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"deadline-bot/internal/metrics"
	"deadline-bot/internal/model"
	"deadline-bot/internal/portal"
	"deadline-bot/internal/repository"
)

// Diff is the change set that brings stored portal deadlines in line with a scrape.
type Diff struct {
	Added   []model.Deadline
	Removed []model.Deadline
}

// Empty reports whether applying the diff would change nothing.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// ComputeDiff compares the user's stored deadlines with freshly scraped ones.
// Custom deadlines in stored are ignored. Both sets are computed before
// anything is mutated, so a key is never both added and removed. Scraped
// records with an unparseable date are dropped; for repeated keys the last
// scraped record wins.
func ComputeDiff(userID uint, stored []model.Deadline, scraped []portal.Deadline) Diff {
	existing := make(map[model.Key]struct{}, len(stored))
	for _, d := range stored {
		if d.IsCustom {
			continue
		}
		existing[d.Key()] = struct{}{}
	}

	fresh := make(map[model.Key]portal.Deadline, len(scraped))
	order := make([]model.Key, 0, len(scraped))
	for _, s := range scraped {
		key := model.Key{Course: s.Course, Task: s.Task}
		if _, seen := fresh[key]; !seen {
			order = append(order, key)
		}
		fresh[key] = s
	}

	var diff Diff
	for _, d := range stored {
		if d.IsCustom {
			continue
		}
		if _, ok := fresh[d.Key()]; !ok {
			diff.Removed = append(diff.Removed, d)
		}
	}

	for _, key := range order {
		if _, ok := existing[key]; ok {
			continue
		}
		due, err := model.ParseDate(strings.TrimSpace(fresh[key].DueDate))
		if err != nil {
			continue
		}
		diff.Added = append(diff.Added, model.Deadline{
			UserID:     userID,
			CourseName: key.Course,
			TaskName:   key.Task,
			DueDate:    due,
		})
	}
	return diff
}

// Reconciler applies scrape results to the stored portal deadlines of a user.
type Reconciler struct {
	deadlines *repository.DeadlineRepository
	log       *zap.Logger
}

func NewReconciler(deadlines *repository.DeadlineRepository, log *zap.Logger) *Reconciler {
	return &Reconciler{deadlines: deadlines, log: log.Named("reconciler")}
}

// Reconcile replaces the user's portal deadlines with the scraped set inside
// one transaction and returns only the deadlines that were added.
func (r *Reconciler) Reconcile(ctx context.Context, userID uint, scraped []portal.Deadline) ([]model.Deadline, error) {
	var diff Diff
	err := r.deadlines.Transaction(ctx, func(tx *repository.DeadlineRepository) error {
		stored, err := tx.ListNonCustom(ctx, userID)
		if err != nil {
			return fmt.Errorf("list stored deadlines: %w", err)
		}

		diff = ComputeDiff(userID, stored, scraped)

		ids := make([]uint, 0, len(diff.Removed))
		for _, d := range diff.Removed {
			ids = append(ids, d.ID)
		}
		if err := tx.BulkDeleteByID(ctx, ids); err != nil {
			return err
		}
		return tx.BulkInsert(ctx, diff.Added)
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile user %d: %w", userID, err)
	}

	metrics.DeadlinesReconciled.WithLabelValues("added").Add(float64(len(diff.Added)))
	metrics.DeadlinesReconciled.WithLabelValues("removed").Add(float64(len(diff.Removed)))
	r.log.Info("deadlines reconciled",
		zap.Uint("user_id", userID),
		zap.Int("scraped", len(scraped)),
		zap.Int("added", len(diff.Added)),
		zap.Int("removed", len(diff.Removed)),
	)
	return diff.Added, nil
}
