// Package storetest builds migrated in-memory SQLite stores for tests.
package storetest

import (
	"context"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	loginlogDatamodel "github.com/frahmantamala/access-management/internal/core/datamodel/loginlog"
	sessionDatamodel "github.com/frahmantamala/access-management/internal/core/datamodel/session"
	userDatamodel "github.com/frahmantamala/access-management/internal/core/datamodel/user"
)

// Open returns a fresh schema in a private in-memory database.
// The pool is pinned to one connection so every statement sees the same database.
func Open() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)

	err = db.AutoMigrate(
		&userDatamodel.User{},
		&userDatamodel.Role{},
		&userDatamodel.Permission{},
		&userDatamodel.RolePermission{},
		&userDatamodel.UserRole{},
		&sessionDatamodel.Session{},
		&loginlogDatamodel.Entry{},
	)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Grant is a (resource, action) pair seeded under a role.
type Grant struct {
	Resource string
	Action   string
}

// DefaultCatalog mirrors the reference data shipped by the migrations.
var DefaultCatalog = map[string][]Grant{
	"user": {
		{Resource: "profile", Action: "read"},
	},
	"admin": {
		{Resource: "profile", Action: "read"},
		{Resource: "users", Action: "read"},
		{Resource: "users", Action: "write"},
		{Resource: "users", Action: "delete"},
		{Resource: "audit", Action: "read"},
	},
}

// OpenSeeded opens a store and loads DefaultCatalog.
func OpenSeeded() (*gorm.DB, error) {
	db, err := Open()
	if err != nil {
		return nil, err
	}
	if err := SeedCatalog(context.Background(), db, DefaultCatalog); err != nil {
		return nil, err
	}
	return db, nil
}

// SeedCatalog creates roles and their grants, reusing permissions that already exist.
func SeedCatalog(ctx context.Context, db *gorm.DB, catalog map[string][]Grant) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for roleName, grants := range catalog {
			role := userDatamodel.Role{Name: roleName}
			if err := tx.Where("name = ?", roleName).FirstOrCreate(&role).Error; err != nil {
				return err
			}
			for _, g := range grants {
				perm := userDatamodel.Permission{
					Name:     g.Resource + ":" + g.Action,
					Resource: g.Resource,
					Action:   g.Action,
				}
				if err := tx.Where("name = ?", perm.Name).FirstOrCreate(&perm).Error; err != nil {
					return err
				}
				link := userDatamodel.RolePermission{RoleID: role.ID, PermissionID: perm.ID}
				if err := tx.Where(&link).FirstOrCreate(&link).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// AssignRole links an existing user to a role by name.
func AssignRole(ctx context.Context, db *gorm.DB, userID int64, roleName string) error {
	var role userDatamodel.Role
	if err := db.WithContext(ctx).Where("name = ?", roleName).First(&role).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Create(&userDatamodel.UserRole{
		UserID:     userID,
		RoleID:     role.ID,
		AssignedAt: time.Now(),
	}).Error
}
