package loginlog

import "time"

// Entry is an append-only authentication audit row.
type Entry struct {
	ID        int64     `gorm:"primaryKey"`
	UserID    *int64    `gorm:"column:user_id;index"`
	Email     string    `gorm:"column:email;not null"`
	Success   bool      `gorm:"column:success;not null"`
	Message   string    `gorm:"column:message"`
	IPAddress string    `gorm:"column:ip_address"`
	UserAgent string    `gorm:"column:user_agent"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (Entry) TableName() string {
	return "login_logs"
}
