package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/banklink_backend/config"
	"github.com/mmdatafocus/banklink_backend/utils"
)

type User struct {
	ID        uuid.UUID `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"size:100;not null;unique" json:"username" binding:"required"`
	Name      string    `gorm:"size:100" json:"name"`
	Password  string    `gorm:"size:255;not null" json:"password"`
	Role      UserRole  `gorm:"type:enum('A', 'O');default:O" json:"role"`
	Timezone  string    `gorm:"size:64;default:UTC" json:"timezone"`
	IsActive  *bool     `gorm:"not null" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username string `json:"username" validate:"required"`
	Name     string `json:"name"`
	Password string `json:"password" validate:"required,min=8"`
	Timezone string `json:"timezone"`
}

/*
caches:
	User:$username
*/

func (user User) RemoveInstanceRedis() error {
	return config.RemoveRedisKey("User:" + user.Username)
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	tz := input.Timezone
	if tz == "" {
		tz = "UTC"
	}

	user := User{
		ID:       uuid.New(),
		Username: input.Username,
		Name:     input.Name,
		Password: string(hashed),
		Role:     UserRoleOwner,
		Timezone: tz,
		IsActive: utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err == nil && exists {
		return &user, nil
	}

	db := config.GetDB()
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := db.WithContext(ctx).
		Where("username = ?", username).
		Take(&user).Error; err != nil {
		return nil, err
	}
	_ = config.SetRedisObject("User:"+username, user, 30*time.Minute)
	return &user, nil
}

func GetUserById(ctx context.Context, id string) (*User, error) {
	var user User
	db := config.GetDB()
	if err := db.WithContext(ctx).
		Where("id = ?", id).
		Take(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UserTimezone returns the owner's IANA timezone, defaulting to UTC when the
// user cannot be loaded. Balance snapshots are bucketed by this day.
func UserTimezone(ctx context.Context, userId string) string {
	user, err := GetUserById(ctx, userId)
	if err != nil || user.Timezone == "" {
		return "UTC"
	}
	return user.Timezone
}
