package model

import (
	"time"
)

type User struct {
	ID                int64      `gorm:"primaryKey" json:"id"`
	Username          string     `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Email             string     `gorm:"size:100;uniqueIndex;not null" json:"email"`
	PasswordHash      string     `gorm:"size:255;not null" json:"-"`
	SubscriptionLevel string     `gorm:"size:20;default:free" json:"subscription_level"`
	DailyQuota        int        `gorm:"default:5" json:"daily_quota"`
	QuotaUsedToday    int        `gorm:"default:0" json:"quota_used_today"`
	QuotaResetAt      *time.Time `json:"quota_reset_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
