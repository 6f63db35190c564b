package postgres

import (
	"context"

	loginlogDatamodel "github.com/frahmantamala/access-management/internal/core/datamodel/loginlog"
	"github.com/frahmantamala/access-management/internal/loginlog"
	"gorm.io/gorm"
)

type LoginLogRepository struct {
	db *gorm.DB
}

func NewLoginLogRepository(db *gorm.DB) loginlog.RepositoryAPI {
	return &LoginLogRepository{db: db}
}

func (r *LoginLogRepository) Append(ctx context.Context, entry *loginlogDatamodel.Entry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *LoginLogRepository) List(ctx context.Context, filter loginlog.Filter) ([]*loginlogDatamodel.Entry, int64, error) {
	scoped := func() *gorm.DB {
		query := r.db.WithContext(ctx).Model(&loginlogDatamodel.Entry{})
		if filter.UserID != nil {
			query = query.Where("user_id = ?", *filter.UserID)
		}
		return query
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []*loginlogDatamodel.Entry
	err := scoped().
		Order("created_at DESC, id DESC").
		Limit(filter.Limit).
		Offset(filter.Offset()).
		Find(&entries).Error
	return entries, total, err
}
