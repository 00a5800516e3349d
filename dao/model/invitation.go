package model

import (
	"time"

	"gorm.io/gorm"
)

// InvitationCode is a bearer token granting project membership on
// redemption, bounded by use count and optional expiry.
//
// An exhausted code stays Active and is merely unusable; Active only
// becomes false through explicit deactivation, which is terminal.
// Expiry is computed from ExpiresAt at redemption time, not persisted.
type InvitationCode struct {
	gorm.Model
	ProjectID uint       `gorm:"index;not null"`
	Code      string     `gorm:"uniqueIndex;type:varchar(16);not null"`
	CreatedBy uint       `gorm:"not null;comment:user id of the issuer"`
	MaxUses   int        `gorm:"not null;default:1"`
	UsesSoFar int        `gorm:"not null;default:0"`
	ExpiresAt *time.Time `gorm:"comment:null means no expiry"`
	Active    bool       `gorm:"not null;default:true"`
}

func (ic *InvitationCode) Expired(now time.Time) bool {
	return ic.ExpiresAt != nil && now.After(*ic.ExpiresAt)
}

func (ic *InvitationCode) Exhausted() bool {
	return ic.UsesSoFar >= ic.MaxUses
}

// Consumable reports whether a redeem attempt could succeed right now.
func (ic *InvitationCode) Consumable(now time.Time) bool {
	return ic.Active && !ic.Expired(now) && !ic.Exhausted()
}
