package model

import (
	"time"

	"gorm.io/gorm"
)

type Project struct {
	gorm.Model
	Title       string       `gorm:"type:varchar(256);not null"`
	Description *string      `gorm:"type:varchar(1024)"`
	State       ProjectState `gorm:"not null;comment:lifecycle state"`

	// AreaID scopes default visibility: members of the area may see the
	// project even without an explicit membership row, depending on role.
	AreaID uint `gorm:"index;not null"`

	// Primary role bindings, distinct from ledger membership rows.
	DirectorID *uint `gorm:"index"`
	StudentID  *uint `gorm:"index"`

	Memberships []ProjectMembership `gorm:"foreignKey:ProjectID"`
	Invitations []InvitationCode    `gorm:"foreignKey:ProjectID"`
}

// ProjectMembership is the durable record of who can act on a project.
// Rows are never deleted on removal; Status flips to inactive and a
// later re-add reactivates the same row.
type ProjectMembership struct {
	gorm.Model
	ProjectID  uint         `gorm:"uniqueIndex:idx_project_user;not null"`
	UserID     uint         `gorm:"uniqueIndex:idx_project_user;not null"`
	Role       Role         `gorm:"not null;comment:role in project"`
	Status     MemberStatus `gorm:"not null"`
	AssignedAt time.Time    `gorm:"not null"`
}
