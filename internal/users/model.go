package users

import (
	"strings"
	"time"
)

// User is a registered account. Email is stored lower-cased and is the
// immutable business key.
type User struct {
	ID           string    `gorm:"column:id;primaryKey;size:64;not null"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex:idx_users_email"`
	PasswordHash string    `gorm:"column:password_hash;size:255;not null" json:"-"`
	Name         string    `gorm:"column:name;size:255;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

// TableName exposes the table backing users.
func (User) TableName() string {
	return "users"
}

// Profile is the public identity of a user.
type Profile struct {
	ID    string
	Name  string
	Email string
}

// Profile strips the credential from the user.
func (u User) Profile() Profile {
	return Profile{ID: u.ID, Name: u.Name, Email: u.Email}
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
