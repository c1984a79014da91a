package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"deadline-bot/internal/model"
)

func TestPageBounds(t *testing.T) {
	tests := []struct {
		name            string
		page, n         int
		wantPage        int
		wantStart, wEnd int
	}{
		{"first page", 0, 12, 0, 0, 5},
		{"last partial page", 2, 12, 2, 10, 12},
		{"page past the end", 9, 12, 2, 10, 12},
		{"negative page", -1, 12, 0, 0, 5},
		{"empty", 0, 0, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, start, end := pageBounds(tt.page, tt.n)
			assert.Equal(t, tt.wantPage, page)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wEnd, end)
		})
	}
}

func TestPaginationKeyboard(t *testing.T) {
	assert.Nil(t, paginationKeyboard(0, 1))

	kb := paginationKeyboard(1, 3)
	require.NotNil(t, kb)
	row := kb.InlineKeyboard[0]
	require.Len(t, row, 3)
	assert.Equal(t, "page_0", *row[0].CallbackData)
	assert.Equal(t, "📄 2/3", row[1].Text)
	assert.Equal(t, cbIgnore, *row[1].CallbackData)
	assert.Equal(t, "page_2", *row[2].CallbackData)
}

func TestDeadlineSettingsKeyboard(t *testing.T) {
	deadlines := make([]model.Deadline, 7)
	for i := range deadlines {
		deadlines[i] = model.Deadline{ID: uint(i + 1), CourseName: "Course", DueDate: model.Date(2026, time.May, 20)}
	}

	kb := deadlineSettingsKeyboard(deadlines, 1)
	rows := kb.InlineKeyboard
	// two deadlines, three actions, pagination
	require.Len(t, rows, 6)
	assert.Equal(t, "del_deadline_6", *rows[0][0].CallbackData)
	assert.Equal(t, "❌ Course (20.05)", rows[0][0].Text)
	assert.Equal(t, cbAddDeadline, *rows[2][0].CallbackData)
	assert.Equal(t, cbTrash, *rows[4][0].CallbackData)
	assert.Equal(t, "settings_page_0", *rows[5][0].CallbackData)
}

func TestNotificationSettingsKeyboard(t *testing.T) {
	user := &model.User{
		NotificationsEnabled:      true,
		NotificationDays:          datatypes.NewJSONSlice([]int{1, 7}),
		NotificationIntervalHours: 4,
	}
	kb := notificationSettingsKeyboard(user)
	require.Len(t, kb.InlineKeyboard, 2)
	assert.Equal(t, "Напоминания: ✅ Вкл.", kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, "Частые: ✅ 4 ч.", kb.InlineKeyboard[0][1].Text)

	days := kb.InlineKeyboard[1]
	assert.Equal(t, "✅ за 1 д.", days[0].Text)
	assert.Equal(t, "🔕 за 3 д.", days[1].Text)
	assert.Equal(t, "toggle_day_3", *days[1].CallbackData)
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "Сети", shorten("Сети", 20))
	assert.Equal(t, "Операц…", shorten("Операционные системы", 7))
}

func TestDeadlinesPageText(t *testing.T) {
	deadlines := make([]model.Deadline, 6)
	for i := range deadlines {
		deadlines[i] = model.Deadline{CourseName: "A&B", TaskName: "Lab", DueDate: model.Date(2026, time.June, 1)}
	}
	deadlines[5].IsCustom = true

	text := deadlinesPageText(deadlines, 1)
	assert.Contains(t, text, "6.✍️ <b>A&amp;B</b>")
	assert.Contains(t, text, "01.06.2026")
	assert.NotContains(t, text, "1.📚")
}
