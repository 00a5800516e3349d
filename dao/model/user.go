package model

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User is the basic entity of the system
type User struct {
	gorm.Model
	Name     string  `gorm:"uniqueIndex;type:varchar(32);not null;comment:login name"`
	Nickname *string `gorm:"type:varchar(64);comment:display name"`
	Password *string `gorm:"type:varchar(128);comment:bcrypt hash, null for directory-only users"`
	Role     Role    `gorm:"not null;comment:portal role"`
	Status   Status  `gorm:"not null;comment:user status"`

	// PrimaryAreaID is the user's default work area. It is set once
	// (first join wins) and never overwritten implicitly.
	PrimaryAreaID *uint `gorm:"index"`

	Attributes datatypes.JSONType[UserAttribute]

	AreaMemberships    []AreaMembership
	ProjectMemberships []ProjectMembership
}

type UserAttribute struct {
	Email      *string `json:"email,omitempty"`
	FullName   *string `json:"fullName,omitempty"`
	Department *string `json:"department,omitempty"`
}
