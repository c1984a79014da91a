package model

import "time"

// DateLayout is how due dates are shown.
const DateLayout = "02.01.2006"

// inputLayout accepts day and month with or without a leading zero.
const inputLayout = "2.1.2006"

// Deadline is a single due date owned by one user.
type Deadline struct {
	ID         uint   `gorm:"primaryKey"`
	UserID     uint   `gorm:"index;not null"`
	CourseName string `gorm:"size:100;not null"`
	TaskName   string `gorm:"size:255;not null"`
	// DueDate is a calendar date stored as midnight UTC.
	DueDate   time.Time `gorm:"index;not null"`
	IsCustom  bool      `gorm:"not null;default:false"`
	IsTrashed bool      `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key identifies a portal deadline within one user's non-custom deadlines.
type Key struct {
	Course string
	Task   string
}

// Key returns the deduplication key of the deadline.
func (d Deadline) Key() Key {
	return Key{Course: d.CourseName, Task: d.TaskName}
}

// Date builds the stored representation of a calendar date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// CalendarDate drops the time of day of t as observed in t's location.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// ParseDate parses a d.m.yyyy or dd.mm.yyyy string into a calendar date.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(inputLayout, value)
	if err != nil {
		return time.Time{}, err
	}
	return CalendarDate(t), nil
}

// DaysUntil returns the whole days from today to the deadline's due date.
func (d Deadline) DaysUntil(today time.Time) int {
	return int(CalendarDate(d.DueDate).Sub(CalendarDate(today)).Hours() / 24)
}
