package session

import "time"

// Session is a bearer session row. UserID is a plain column, not a foreign key:
// a session never keeps its user alive.
type Session struct {
	ID        int64     `gorm:"primaryKey"`
	Token     string    `gorm:"column:token;uniqueIndex;not null"`
	UserID    int64     `gorm:"column:user_id;index;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null"`
	Active    bool      `gorm:"column:active;not null"`
}

func (Session) TableName() string {
	return "sessions"
}
