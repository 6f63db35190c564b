package user

import "time"

type User struct {
	ID           int64     `gorm:"primaryKey"`
	Email        string    `gorm:"column:email;uniqueIndex;not null"`
	PasswordHash string    `gorm:"column:password_hash;not null"`
	LastName     *string   `gorm:"column:last_name"`
	FirstName    *string   `gorm:"column:first_name"`
	IsActive     bool      `gorm:"column:is_active;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}

type Role struct {
	ID          int64     `gorm:"primaryKey"`
	Name        string    `gorm:"column:name;uniqueIndex;not null"`
	Description string    `gorm:"column:description"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Role) TableName() string {
	return "roles"
}

type Permission struct {
	ID          int64     `gorm:"primaryKey"`
	Name        string    `gorm:"column:name;uniqueIndex;not null"`
	Resource    string    `gorm:"column:resource;not null;index:idx_permissions_resource_action"`
	Action      string    `gorm:"column:action;not null;index:idx_permissions_resource_action"`
	Description string    `gorm:"column:description"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Permission) TableName() string {
	return "permissions"
}

type RolePermission struct {
	RoleID       int64 `gorm:"column:role_id;primaryKey;autoIncrement:false"`
	PermissionID int64 `gorm:"column:permission_id;primaryKey;autoIncrement:false"`
}

func (RolePermission) TableName() string {
	return "role_permissions"
}

type UserRole struct {
	UserID     int64     `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	RoleID     int64     `gorm:"column:role_id;primaryKey;autoIncrement:false"`
	AssignedAt time.Time `gorm:"column:assigned_at;not null"`
}

func (UserRole) TableName() string {
	return "user_roles"
}
