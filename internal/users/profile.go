package users

import (
	"strings"
	"time"
)

// Profile captures what the service knows about a signed-in account. The
// IsAdmin flag stored here, not the token, decides access to the admin
// surface: session tokens live for hours, revocations take effect on the
// next request.
type Profile struct {
	UserID     string    `gorm:"column:user_id;primaryKey;size:190;not null" json:"user_id"`
	Username   string    `gorm:"column:username;size:320" json:"username"`
	AvatarURL  string    `gorm:"column:avatar_url;size:512" json:"avatar_url"`
	IsAdmin    bool      `gorm:"column:is_admin;not null;default:false" json:"is_admin"`
	LastSeenAt time.Time `gorm:"column:last_seen_at;autoUpdateTime" json:"last_seen_at"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName exposes the table backing profiles.
func (Profile) TableName() string {
	return "profiles"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
