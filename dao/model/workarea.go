package model

import "gorm.io/gorm"

// WorkArea groups users and projects, workspace style. Areas are only
// ever deactivated, never hard-deleted, so code uniqueness holds for
// the lifetime of the database.
type WorkArea struct {
	gorm.Model
	Code   string `gorm:"uniqueIndex;type:varchar(8);not null;comment:immutable code, format XXXX-YYY"`
	Name   string `gorm:"type:varchar(128);not null"`
	Active bool   `gorm:"not null;default:true"`

	Memberships []AreaMembership `gorm:"foreignKey:AreaID"`
}

// AreaMembership binds a user to a work area. One row per (area, user)
// pair; removal flips Active and re-joining reuses the row, so the
// unique index stays valid. At most one active owner per area, and an
// owner is always an admin.
type AreaMembership struct {
	gorm.Model
	AreaID  uint `gorm:"uniqueIndex:idx_area_user;not null"`
	UserID  uint `gorm:"uniqueIndex:idx_area_user;not null"`
	IsAdmin bool `gorm:"not null;default:false"`
	IsOwner bool `gorm:"not null;default:false"`
	Active  bool `gorm:"not null;default:true"`
}
