package model

import (
	"slices"
	"time"

	"gorm.io/datatypes"
)

// DefaultNotificationDays are the day offsets a new user is reminded at.
var DefaultNotificationDays = []int{1, 3, 7}

// User stores Telegram identity, encrypted portal credentials and notification preferences.
type User struct {
	ID         uint  `gorm:"primaryKey"`
	TelegramID int64 `gorm:"uniqueIndex;not null"`
	Username   string
	FullName   *string
	ProfileID  *string

	// Both columns are set together or both are NULL.
	EncryptedLogin    *string
	EncryptedPassword *string

	NotificationsEnabled      bool                     `gorm:"not null;default:true"`
	NotificationDays          datatypes.JSONSlice[int] `gorm:"not null"`
	NotificationIntervalHours int                      `gorm:"not null;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Deadlines []Deadline `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// Authenticated reports whether portal credentials are stored.
func (u *User) Authenticated() bool {
	return u.EncryptedLogin != nil && u.EncryptedPassword != nil &&
		*u.EncryptedLogin != "" && *u.EncryptedPassword != ""
}

// HasNotificationDay reports whether a reminder fires when days are left before a due date.
func (u *User) HasNotificationDay(days int) bool {
	return slices.Contains(u.NotificationDays, days)
}

// DisplayName returns the portal full name if known.
func (u *User) DisplayName() string {
	if u.FullName != nil && *u.FullName != "" {
		return *u.FullName
	}
	return ""
}
