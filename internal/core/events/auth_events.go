package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeUserRegistered = "auth.user_registered"
	EventTypeLoginSucceeded = "auth.login_succeeded"
	EventTypeLoginFailed    = "auth.login_failed"
	EventTypeLoggedOut      = "auth.logged_out"
	EventTypeUserRemoved    = "user.removed"
)

func newBase(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

type UserRegisteredEvent struct {
	BaseEvent
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

func NewUserRegisteredEvent(userID int64, email, role string) *UserRegisteredEvent {
	return &UserRegisteredEvent{
		BaseEvent: newBase(EventTypeUserRegistered, map[string]interface{}{
			"user_id": userID,
			"email":   email,
			"role":    role,
		}),
		UserID: userID,
		Email:  email,
		Role:   role,
	}
}

type LoginSucceededEvent struct {
	BaseEvent
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewLoginSucceededEvent(userID int64, expiresAt time.Time) *LoginSucceededEvent {
	return &LoginSucceededEvent{
		BaseEvent: newBase(EventTypeLoginSucceeded, map[string]interface{}{
			"user_id":    userID,
			"expires_at": expiresAt,
		}),
		UserID:    userID,
		ExpiresAt: expiresAt,
	}
}

// LoginFailedEvent carries the audit reason. UserID is nil when the email matched no account.
type LoginFailedEvent struct {
	BaseEvent
	UserID *int64 `json:"user_id,omitempty"`
	Reason string `json:"reason"`
}

func NewLoginFailedEvent(userID *int64, reason string) *LoginFailedEvent {
	return &LoginFailedEvent{
		BaseEvent: newBase(EventTypeLoginFailed, map[string]interface{}{
			"user_id": userID,
			"reason":  reason,
		}),
		UserID: userID,
		Reason: reason,
	}
}

type LoggedOutEvent struct {
	BaseEvent
	UserID int64 `json:"user_id"`
}

func NewLoggedOutEvent(userID int64) *LoggedOutEvent {
	return &LoggedOutEvent{
		BaseEvent: newBase(EventTypeLoggedOut, map[string]interface{}{
			"user_id": userID,
		}),
		UserID: userID,
	}
}

// UserRemovedEvent is published after an account is deleted or deactivated.
type UserRemovedEvent struct {
	BaseEvent
	UserID            int64 `json:"user_id"`
	Deleted           bool  `json:"deleted"`
	SessionsRevoked   int64 `json:"sessions_revoked"`
	PerformedByUserID int64 `json:"performed_by_user_id"`
}

func NewUserRemovedEvent(userID int64, deleted bool, sessionsRevoked, performedBy int64) *UserRemovedEvent {
	return &UserRemovedEvent{
		BaseEvent: newBase(EventTypeUserRemoved, map[string]interface{}{
			"user_id":              userID,
			"deleted":              deleted,
			"sessions_revoked":     sessionsRevoked,
			"performed_by_user_id": performedBy,
		}),
		UserID:            userID,
		Deleted:           deleted,
		SessionsRevoked:   sessionsRevoked,
		PerformedByUserID: performedBy,
	}
}
