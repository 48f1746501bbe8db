package database

import (
	"gorm.io/datatypes"
	"time"
)

// UserDB defines the users table.
type UserDB struct {
	ID          string  `gorm:"primaryKey;size:36"`
	Name        string  `gorm:"size:255;not null"`
	Email       string  `gorm:"size:255;uniqueIndex;not null"`
	Password    string  `gorm:"size:255;not null"`
	Role        string  `gorm:"size:64"`
	IsVerified  bool    `gorm:"column:is_verified;default:false"`
	VerifyToken *string `gorm:"column:verify_token;size:36;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName overrides the pluralized default.
func (UserDB) TableName() string {
	return "users"
}

// ScanDB defines the website_scans table.
type ScanDB struct {
	ID              uint           `gorm:"primaryKey"`
	WebsiteLink     string         `gorm:"column:website_link;size:2048;not null"`
	UserID          string         `gorm:"column:user_id;size:36;index;not null"`
	ScanComplete    bool           `gorm:"column:scan_complete;default:false"`
	Vulnerabilities datatypes.JSON `gorm:"column:vulnerabilities"`
	CreatedAt       time.Time      `gorm:"index"`
	UpdatedAt       time.Time
}

// TableName overrides the pluralized default.
func (ScanDB) TableName() string {
	return "website_scans"
}
