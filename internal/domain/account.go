package domain

import "time"

// RegistrationType tags the path an account was created through. It never changes.
type RegistrationType string

const (
	RegistrationEmail RegistrationType = "email"
	RegistrationKakao RegistrationType = "kakao"
)

// Race is the optional favourite-race profile attribute.
type Race string

const (
	RaceZerg    Race = "zerg"
	RaceProtoss Race = "protoss"
	RaceTerran  Race = "terran"
	RaceRandom  Race = "random"
)

// Races lists the accepted profile values.
var Races = []Race{RaceZerg, RaceProtoss, RaceTerran, RaceRandom}

type Account struct {
	ID               string           `gorm:"type:varchar(36);primaryKey" json:"id"`
	Handle           string           `gorm:"type:varchar(150);uniqueIndex:ux_account_handle;not null" json:"handle"`
	Nickname         string           `gorm:"type:varchar(100);uniqueIndex:ux_account_nickname;not null" json:"nickname"`
	Email            *string          `gorm:"type:varchar(254);uniqueIndex:ux_account_email" json:"email,omitempty"`
	RegistrationType RegistrationType `gorm:"type:varchar(20);not null;index" json:"registration_type"`
	ProviderID       *int64           `gorm:"uniqueIndex:ux_account_provider_id" json:"provider_id,omitempty"`
	PasswordHash     string           `gorm:"type:varchar(255);not null" json:"-"`
	FavoriteRace     Race             `gorm:"type:varchar(20);not null" json:"favorite_race,omitempty"`
	IsVerified       bool             `gorm:"not null" json:"is_verified"`
	IsActive         bool             `gorm:"not null" json:"is_active"`
	IsStaff          bool             `gorm:"not null" json:"is_staff"`
	IsSuperuser      bool             `gorm:"not null" json:"is_superuser"`
	JoinedAt         time.Time        `gorm:"autoCreateTime" json:"joined_at"`
	LastLoginAt      *time.Time       `json:"last_login_at"`
}

func (Account) TableName() string { return "account" }

// HasUsablePassword reports whether password sign-in can ever succeed for the account.
func (a *Account) HasUsablePassword() bool {
	return a.RegistrationType == RegistrationEmail && a.PasswordHash != ""
}

// EmailAddress returns the account email or "" for accounts without one.
func (a *Account) EmailAddress() string {
	if a.Email == nil {
		return ""
	}
	return *a.Email
}
