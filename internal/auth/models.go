package auth

import (
	"time"

	"github.com/lib/pq"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User is the account record. HashedPassword and DeviceTokens never appear
// in responses; everything else is the redacted view handlers return.
type User struct {
	ID             string         `gorm:"primaryKey" json:"id"`
	Name           string         `json:"name"`
	StdCode        string         `gorm:"uniqueIndex:idx_users_std_code" json:"std_code"`
	Gender         string         `json:"gender"`
	Email          string         `gorm:"uniqueIndex:idx_users_email;not null" json:"email"`
	PhoneNumber    string         `gorm:"uniqueIndex:idx_users_phone_number" json:"phone_number"`
	HashedPassword string         `json:"-"`
	Role           string         `gorm:"default:'USER'" json:"role"`
	EmailVerified  bool           `gorm:"default:false" json:"email_verified"`
	ProfileImage   string         `json:"profile_image"`
	DeviceTokens   pq.StringArray `gorm:"type:text[]" json:"-"`
	CreatedAt      time.Time      `json:"-"`
	UpdatedAt      time.Time      `json:"-"`
}

func (User) TableName() string { return "app_auth.users" }
