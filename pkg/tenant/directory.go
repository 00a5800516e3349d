// Package tenant owns work areas and area memberships.
package tenant

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/acadlab/progest/dao/model"
	"github.com/acadlab/progest/pkg/apperr"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// Defensive bound on code generation. The keyspace is 36^7, so more
	// than a couple of attempts means something else is wrong.
	codeAttempts = 10
)

var (
	ErrCodeSpaceExhausted = apperr.New(apperr.KindConflict, "could not generate a unique area code")
	ErrDuplicateCode      = apperr.New(apperr.KindConflict, "area code already in use")
	ErrAreaNotFound       = apperr.New(apperr.KindNotFound, "work area not found")
	ErrAlreadyMember      = apperr.New(apperr.KindConflict, "user is already an active member of the area")
	ErrOwnerExists        = apperr.New(apperr.KindConflict, "area already has an active owner")
	ErrNotOwner           = apperr.New(apperr.KindForbidden, "user is not the owner of the area")
	ErrNewOwnerNotMember  = apperr.New(apperr.KindInvalidState, "new owner has no access to the area")
)

type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// GenerateUniqueCode produces an unused area code in the XXXX-YYY
// format, retrying on collision up to codeAttempts times.
func (d *Directory) GenerateUniqueCode(ctx context.Context) (string, error) {
	for range codeAttempts {
		code := randomCode()
		var count int64
		err := d.db.WithContext(ctx).Model(&model.WorkArea{}).
			Where("code = ?", code).Count(&count).Error
		if err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

func randomCode() string {
	buf := make([]byte, 7)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand never fails on supported platforms
	}
	for i := range buf {
		buf[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}
	return fmt.Sprintf("%s-%s", buf[:4], buf[4:])
}

// CreateArea creates a work area. An empty code is auto-generated; an
// explicit code that is already taken fails with ErrDuplicateCode.
func (d *Directory) CreateArea(ctx context.Context, name, code string) (*model.WorkArea, error) {
	if code == "" {
		generated, err := d.GenerateUniqueCode(ctx)
		if err != nil {
			return nil, err
		}
		code = generated
	}

	area := model.WorkArea{Code: code, Name: name, Active: true}
	if err := d.db.WithContext(ctx).Create(&area).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateCode
		}
		return nil, err
	}
	return &area, nil
}

func (d *Directory) GetArea(ctx context.Context, areaID uint) (*model.WorkArea, error) {
	var area model.WorkArea
	err := d.db.WithContext(ctx).First(&area, areaID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAreaNotFound
	}
	if err != nil {
		return nil, err
	}
	return &area, nil
}

// DeactivateArea soft-deletes an area. Projects and memberships keep
// their rows; visibility rules stop matching once the area is inactive.
func (d *Directory) DeactivateArea(ctx context.Context, areaID uint) error {
	res := d.db.WithContext(ctx).Model(&model.WorkArea{}).
		Where("id = ?", areaID).Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAreaNotFound
	}
	return nil
}

func (d *Directory) BelongsToArea(ctx context.Context, userID, areaID uint) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&model.AreaMembership{}).
		Where("user_id = ? AND area_id = ? AND active", userID, areaID).
		Count(&count).Error
	return count > 0, err
}

// UserAreas lists the active areas the user is an active member of,
// ordered by code.
func (d *Directory) UserAreas(ctx context.Context, userID uint) ([]model.WorkArea, error) {
	var areas []model.WorkArea
	err := d.db.WithContext(ctx).Model(&model.WorkArea{}).
		Joins("JOIN area_memberships am ON am.area_id = work_areas.id").
		Where("am.user_id = ? AND am.active AND work_areas.active", userID).
		Where("am.deleted_at IS NULL").
		Order("work_areas.code").
		Find(&areas).Error
	return areas, err
}

// AssignUserToArea adds the user to the area. An existing active
// membership fails with ErrAlreadyMember; an inactive row is
// reactivated in place so the (area, user) uniqueness holds. isOwner
// implies isAdmin, and a second active owner is refused.
func (d *Directory) AssignUserToArea(ctx context.Context, userID, areaID uint, isAdmin, isOwner bool) error {
	if isOwner {
		isAdmin = true
	}

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var area model.WorkArea
		if err := tx.First(&area, areaID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAreaNotFound
			}
			return err
		}

		if isOwner {
			var owners int64
			err := tx.Model(&model.AreaMembership{}).
				Where("area_id = ? AND is_owner AND active AND user_id <> ?", areaID, userID).
				Count(&owners).Error
			if err != nil {
				return err
			}
			if owners > 0 {
				return ErrOwnerExists
			}
		}

		var membership model.AreaMembership
		err := tx.Where("area_id = ? AND user_id = ?", areaID, userID).First(&membership).Error
		switch {
		case err == nil:
			if membership.Active {
				return ErrAlreadyMember
			}
			return tx.Model(&membership).Updates(map[string]any{
				"active":   true,
				"is_admin": isAdmin,
				"is_owner": isOwner,
			}).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			membership = model.AreaMembership{
				AreaID:  areaID,
				UserID:  userID,
				IsAdmin: isAdmin,
				IsOwner: isOwner,
				Active:  true,
			}
			return tx.Create(&membership).Error
		default:
			return err
		}
	})
}

// SetPrimaryAreaIfEmpty sets the user's primary area pointer only when
// it is unset. First write wins; later calls are silent no-ops.
func (d *Directory) SetPrimaryAreaIfEmpty(ctx context.Context, userID, areaID uint) error {
	return d.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND primary_area_id IS NULL", userID).
		Update("primary_area_id", areaID).Error
}

// TransferOwnership moves area ownership from currentOwner to newOwner
// in one transaction. Both steps are conditional updates checked by
// affected-row count, so no window with zero or two owners is ever
// committed.
func (d *Directory) TransferOwnership(ctx context.Context, areaID, currentOwnerID, newOwnerID uint) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.AreaMembership{}).
			Where("area_id = ? AND user_id = ? AND is_owner AND active", areaID, currentOwnerID).
			Update("is_owner", false)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotOwner
		}

		res = tx.Model(&model.AreaMembership{}).
			Where("area_id = ? AND user_id = ? AND active", areaID, newOwnerID).
			Updates(map[string]any{"is_admin": true, "is_owner": true})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNewOwnerNotMember
		}
		return nil
	})
}

// ProvisionOwnedArea creates an area owned by the user and makes it
// their primary area when unset. Used when a general admin registers.
func (d *Directory) ProvisionOwnedArea(ctx context.Context, userID uint, name string) (*model.WorkArea, error) {
	area, err := d.CreateArea(ctx, name, "")
	if err != nil {
		return nil, err
	}
	if err := d.AssignUserToArea(ctx, userID, area.ID, true, true); err != nil {
		return nil, err
	}
	if err := d.SetPrimaryAreaIfEmpty(ctx, userID, area.ID); err != nil {
		return nil, err
	}
	return area, nil
}
