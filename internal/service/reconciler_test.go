package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"deadline-bot/internal/model"
	"deadline-bot/internal/portal"
	"deadline-bot/internal/repository"
)

func keys(deadlines []model.Deadline) []model.Key {
	out := make([]model.Key, 0, len(deadlines))
	for _, d := range deadlines {
		out = append(out, d.Key())
	}
	return out
}

func TestComputeDiff(t *testing.T) {
	stored := []model.Deadline{
		{ID: 1, CourseName: "OS", TaskName: "Lab1", DueDate: model.Date(2026, time.May, 1)},
		{ID: 2, CourseName: "OS", TaskName: "Lab2", DueDate: model.Date(2026, time.May, 2)},
		{ID: 3, CourseName: "OS", TaskName: "Lab3", DueDate: model.Date(2026, time.May, 3), IsCustom: true},
	}
	scraped := []portal.Deadline{
		{Course: "OS", Task: "Lab1", DueDate: "09.09.2026"},
		{Course: "OS", Task: "Lab3", DueDate: "10.06.2026"},
		{Course: "DB", Task: "Essay", DueDate: "not a date"},
		{Course: "DB", Task: "Quiz", DueDate: "01.06.2026"},
		{Course: "DB", Task: "Quiz", DueDate: "02.06.2026"},
		{Course: "DB", Task: "Lab", DueDate: "1.6.2026"},
	}

	diff := ComputeDiff(7, stored, scraped)

	assert.Equal(t, []model.Key{{Course: "OS", Task: "Lab2"}}, keys(diff.Removed))
	assert.Equal(t, []model.Key{
		{Course: "OS", Task: "Lab3"},
		{Course: "DB", Task: "Quiz"},
		{Course: "DB", Task: "Lab"},
	}, keys(diff.Added))
	for _, d := range diff.Added {
		assert.Equal(t, uint(7), d.UserID)
		assert.False(t, d.IsCustom)
	}
	assert.Equal(t, model.Date(2026, time.June, 2), diff.Added[1].DueDate)
	assert.Equal(t, model.Date(2026, time.June, 1), diff.Added[2].DueDate)
}

func TestComputeDiff_CustomNeverRemoved(t *testing.T) {
	stored := []model.Deadline{
		{ID: 1, CourseName: "OS", TaskName: "Own", IsCustom: true},
	}
	diff := ComputeDiff(1, stored, nil)
	assert.True(t, diff.Empty())
}

func newReconcilerFixture(t *testing.T) (*Reconciler, *repository.DeadlineRepository, *model.User) {
	t.Helper()
	db := newTestDB(t)
	user, _, err := repository.NewUserRepository(db).EnsureFromTelegram(context.Background(), 100, "")
	require.NoError(t, err)
	deadlines := repository.NewDeadlineRepository(db)
	return NewReconciler(deadlines, zap.NewNop()), deadlines, user
}

func TestReconciler_NewDeadlineDetected(t *testing.T) {
	ctx := context.Background()
	r, repo, user := newReconcilerFixture(t)

	require.NoError(t, repo.BulkInsert(ctx, []model.Deadline{
		{UserID: user.ID, CourseName: "OS", TaskName: "Lab1", DueDate: model.Date(2026, time.May, 20)},
	}))

	added, err := r.Reconcile(ctx, user.ID, []portal.Deadline{
		{Course: "OS", Task: "Lab1", DueDate: "20.05.2026"},
		{Course: "OS", Task: "Lab2", DueDate: "01.06.2026"},
	})
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, model.Key{Course: "OS", Task: "Lab2"}, added[0].Key())
	assert.Equal(t, model.Date(2026, time.June, 1), added[0].DueDate)

	stored, err := repo.ListNonCustom(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestReconciler_VanishedDeadline(t *testing.T) {
	ctx := context.Background()
	r, repo, user := newReconcilerFixture(t)

	require.NoError(t, repo.BulkInsert(ctx, []model.Deadline{
		{UserID: user.ID, CourseName: "OS", TaskName: "Lab1", DueDate: model.Date(2026, time.May, 20)},
		{UserID: user.ID, CourseName: "OS", TaskName: "Lab2", DueDate: model.Date(2026, time.May, 21)},
	}))

	added, err := r.Reconcile(ctx, user.ID, []portal.Deadline{
		{Course: "OS", Task: "Lab1", DueDate: "20.05.2026"},
	})
	require.NoError(t, err)
	assert.Empty(t, added)

	stored, err := repo.ListNonCustom(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.Key{{Course: "OS", Task: "Lab1"}}, keys(stored))
}

func TestReconciler_KeepsTrashedPortalDeadline(t *testing.T) {
	ctx := context.Background()
	r, repo, user := newReconcilerFixture(t)

	require.NoError(t, repo.BulkInsert(ctx, []model.Deadline{
		{UserID: user.ID, CourseName: "OS", TaskName: "Lab1", DueDate: model.Date(2026, time.May, 20)},
		{UserID: user.ID, CourseName: "OS", TaskName: "Lab2", DueDate: model.Date(2026, time.May, 21)},
	}))
	stored, err := repo.ListNonCustom(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.NoError(t, repo.SoftTrash(ctx, user.ID, stored[0].ID))

	scrape := []portal.Deadline{
		{Course: "OS", Task: "Lab1", DueDate: "20.05.2026"},
		{Course: "OS", Task: "Lab2", DueDate: "21.05.2026"},
	}
	added, err := r.Reconcile(ctx, user.ID, scrape)
	require.NoError(t, err)
	assert.Empty(t, added)

	trashed, err := repo.ListTrashed(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.Key{{Course: "OS", Task: "Lab1"}}, keys(trashed))

	// The portal stops listing the trashed deadline.
	added, err = r.Reconcile(ctx, user.ID, scrape[1:])
	require.NoError(t, err)
	assert.Empty(t, added)

	trashed, err = repo.ListTrashed(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, trashed)
	stored, err = repo.ListNonCustom(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.Key{{Course: "OS", Task: "Lab2"}}, keys(stored))
}

func TestReconciler_Idempotent(t *testing.T) {
	ctx := context.Background()
	r, repo, user := newReconcilerFixture(t)

	scraped := []portal.Deadline{
		{Course: "OS", Task: "Lab1", DueDate: "20.05.2026"},
		{Course: "Math", Task: "HW", DueDate: "21.05.2026"},
	}
	first, err := r.Reconcile(ctx, user.ID, scraped)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	before, err := repo.ListNonCustom(ctx, user.ID)
	require.NoError(t, err)

	second, err := r.Reconcile(ctx, user.ID, scraped)
	require.NoError(t, err)
	assert.Empty(t, second)

	after, err := repo.ListNonCustom(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, keys(before), keys(after))
	assert.Equal(t, before[0].ID, after[0].ID)
}

func TestReconciler_LeavesCustomAndKeepsDueDate(t *testing.T) {
	ctx := context.Background()
	r, repo, user := newReconcilerFixture(t)

	own := model.Deadline{UserID: user.ID, CourseName: "OS", TaskName: "Lab1", DueDate: model.Date(2026, time.May, 30), IsCustom: true}
	require.NoError(t, repo.Create(ctx, &own))
	require.NoError(t, repo.BulkInsert(ctx, []model.Deadline{
		{UserID: user.ID, CourseName: "Math", TaskName: "HW", DueDate: model.Date(2026, time.May, 20)},
	}))

	added, err := r.Reconcile(ctx, user.ID, []portal.Deadline{
		{Course: "Math", Task: "HW", DueDate: "25.05.2026"},
	})
	require.NoError(t, err)
	assert.Empty(t, added)

	got, err := repo.GetByID(ctx, user.ID, own.ID)
	require.NoError(t, err)
	assert.True(t, got.IsCustom)

	stored, err := repo.ListNonCustom(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, model.Date(2026, time.May, 20), stored[0].DueDate.UTC())

	// An empty scrape removes every portal deadline but not the custom one.
	_, err = r.Reconcile(ctx, user.ID, nil)
	require.NoError(t, err)
	stored, err = repo.ListNonCustom(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
	_, err = repo.GetByID(ctx, user.ID, own.ID)
	assert.NoError(t, err)
}
