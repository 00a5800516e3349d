// Package membership owns the project membership ledger, the durable
// record of who can act on a project.
package membership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/acadlab/progest/dao/model"
	"github.com/acadlab/progest/pkg/apperr"
)

var (
	ErrNotActiveMember   = apperr.New(apperr.KindNotFound, "no active membership for the user on the project")
	ErrNotInactiveMember = apperr.New(apperr.KindNotFound, "no inactive membership for the user on the project")
)

// CoordinatorExistsError reports that a different coordinator already
// holds the single active coordinator slot of a project.
type CoordinatorExistsError struct {
	ProjectID      uint
	ExistingUserID uint
	ExistingName   string
}

func (e *CoordinatorExistsError) Error() string {
	who := e.ExistingName
	if who == "" {
		who = fmt.Sprintf("user %d", e.ExistingUserID)
	}
	return fmt.Sprintf("project already has another coordinator: %s", who)
}

type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// AddMember upserts the (project, user) membership: an existing row is
// reactivated and its role overwritten, otherwise a new row is
// inserted. Calling it twice is safe.
func (l *Ledger) AddMember(ctx context.Context, projectID, userID uint, role model.Role) (*model.ProjectMembership, error) {
	var membership model.ProjectMembership
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("project_id = ? AND user_id = ?", projectID, userID).First(&membership).Error
		switch {
		case err == nil:
			membership.Role = role
			membership.Status = model.MemberActive
			membership.AssignedAt = time.Now()
			return tx.Save(&membership).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			membership = model.ProjectMembership{
				ProjectID:  projectID,
				UserID:     userID,
				Role:       role,
				Status:     model.MemberActive,
				AssignedAt: time.Now(),
			}
			return tx.Create(&membership).Error
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// RemoveMember flips the membership to inactive. The row stays so a
// later re-add reactivates it.
func (l *Ledger) RemoveMember(ctx context.Context, projectID, userID uint) error {
	res := l.db.WithContext(ctx).Model(&model.ProjectMembership{}).
		Where("project_id = ? AND user_id = ? AND status = ?", projectID, userID, model.MemberActive).
		Update("status", model.MemberInactive)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotActiveMember
	}
	return nil
}

// ReactivateMember is the inverse of RemoveMember.
func (l *Ledger) ReactivateMember(ctx context.Context, projectID, userID uint) error {
	res := l.db.WithContext(ctx).Model(&model.ProjectMembership{}).
		Where("project_id = ? AND user_id = ? AND status = ?", projectID, userID, model.MemberInactive).
		Update("status", model.MemberActive)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotInactiveMember
	}
	return nil
}

// FindMember returns the membership row for the pair, nil when absent.
func (l *Ledger) FindMember(ctx context.Context, projectID, userID uint) (*model.ProjectMembership, error) {
	var membership model.ProjectMembership
	err := l.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// HasActiveMember reports whether the user holds an active membership
// on the project.
func (l *Ledger) HasActiveMember(ctx context.Context, projectID, userID uint) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&model.ProjectMembership{}).
		Where("project_id = ? AND user_id = ? AND status = ?", projectID, userID, model.MemberActive).
		Count(&count).Error
	return count > 0, err
}

func (l *Ledger) ActiveMembers(ctx context.Context, projectID uint) ([]model.ProjectMembership, error) {
	var members []model.ProjectMembership
	err := l.db.WithContext(ctx).
		Where("project_id = ? AND status = ?", projectID, model.MemberActive).
		Order("assigned_at").
		Find(&members).Error
	return members, err
}

// ActiveCoordinator returns the active coordinator membership of the
// project, nil when there is none.
func (l *Ledger) ActiveCoordinator(ctx context.Context, projectID uint) (*model.ProjectMembership, error) {
	var membership model.ProjectMembership
	err := l.db.WithContext(ctx).
		Where("project_id = ? AND role = ? AND status = ?", projectID, model.RoleCoordinator, model.MemberActive).
		First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// AssignCoordinator upserts the coordinator membership for the project.
// Re-assigning the same user overwrites the row; a different active
// coordinator fails with CoordinatorExistsError. The pre-check runs in
// the same transaction as the write, and the partial unique index on
// (project_id) for active coordinator rows catches whatever races past
// it, so two concurrent assignments cannot both commit.
func (l *Ledger) AssignCoordinator(ctx context.Context, projectID, userID uint) (*model.ProjectMembership, error) {
	var membership model.ProjectMembership
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.ProjectMembership
		err := tx.Where("project_id = ? AND role = ? AND status = ? AND user_id <> ?",
			projectID, model.RoleCoordinator, model.MemberActive, userID).
			First(&existing).Error
		if err == nil {
			return l.coordinatorExists(tx, projectID, existing.UserID)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		err = tx.Where("project_id = ? AND user_id = ?", projectID, userID).First(&membership).Error
		switch {
		case err == nil:
			membership.Role = model.RoleCoordinator
			membership.Status = model.MemberActive
			membership.AssignedAt = time.Now()
			return tx.Save(&membership).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			membership = model.ProjectMembership{
				ProjectID:  projectID,
				UserID:     userID,
				Role:       model.RoleCoordinator,
				Status:     model.MemberActive,
				AssignedAt: time.Now(),
			}
			return tx.Create(&membership).Error
		default:
			return err
		}
	})
	if err != nil {
		var dup *CoordinatorExistsError
		if errors.Is(err, gorm.ErrDuplicatedKey) && !errors.As(err, &dup) {
			// Lost a race with a concurrent assignment.
			if lookupErr := l.db.WithContext(ctx).
				Where("project_id = ? AND role = ? AND status = ?", projectID, model.RoleCoordinator, model.MemberActive).
				First(&membership).Error; lookupErr == nil {
				return nil, l.coordinatorExists(l.db.WithContext(ctx), projectID, membership.UserID)
			}
			return nil, err
		}
		return nil, err
	}
	return &membership, nil
}

func (l *Ledger) coordinatorExists(tx *gorm.DB, projectID, existingUserID uint) error {
	existsErr := &CoordinatorExistsError{ProjectID: projectID, ExistingUserID: existingUserID}
	var user model.User
	if err := tx.First(&user, existingUserID).Error; err == nil {
		existsErr.ExistingName = user.Name
	}
	return existsErr
}
