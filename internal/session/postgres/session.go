package postgres

import (
	"context"

	sessionDatamodel "github.com/frahmantamala/access-management/internal/core/datamodel/session"
	"github.com/frahmantamala/access-management/internal/session"
	"gorm.io/gorm"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) session.RepositoryAPI {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *sessionDatamodel.Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *SessionRepository) FindWithOwner(ctx context.Context, token string) (*session.Record, error) {
	var rec session.Record
	err := r.db.WithContext(ctx).
		Table("sessions AS s").
		Select(`s.id, s.token, s.user_id, s.created_at, s.expires_at, s.active,
			u.email AS owner_email, u.last_name AS owner_last_name,
			u.first_name AS owner_first_name, u.is_active AS owner_active`).
		Joins("LEFT JOIN users u ON u.id = s.user_id").
		Where("s.token = ?", token).
		Take(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *SessionRepository) FindByToken(ctx context.Context, token string) (*sessionDatamodel.Session, error) {
	var s sessionDatamodel.Session
	if err := r.db.WithContext(ctx).Where("token = ?", token).Take(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// Deactivate flips active to false only while it is still true, so two concurrent logouts
// cannot both succeed.
func (r *SessionRepository) Deactivate(ctx context.Context, token string) error {
	result := r.db.WithContext(ctx).
		Model(&sessionDatamodel.Session{}).
		Where("token = ? AND active = ?", token, true).
		Update("active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return session.ErrNoActiveSession
	}
	return nil
}

func (r *SessionRepository) DeactivateAllForUser(ctx context.Context, userID int64) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&sessionDatamodel.Session{}).
		Where("user_id = ? AND active = ?", userID, true).
		Update("active", false)
	return result.RowsAffected, result.Error
}
