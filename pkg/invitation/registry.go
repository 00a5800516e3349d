// Package invitation owns project invitation codes: bearer tokens that
// grant project membership, and transitively area membership, when
// redeemed.
package invitation

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/acadlab/progest/dao/model"
	"github.com/acadlab/progest/pkg/apperr"
	"github.com/acadlab/progest/pkg/membership"
	"github.com/acadlab/progest/pkg/tenant"
)

const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // unambiguous subset
	codeLength   = 10
	codeAttempts = 10

	// Role granted to users joining through a code.
	defaultJoinRole = model.RoleStudent
)

var (
	ErrInvalidMaxUses = apperr.New(apperr.KindInvalidArgument, "maxUses must be at least 1")
	ErrCodeNotFound   = apperr.New(apperr.KindNotFound, "invitation code not found")
	ErrCodeExpired    = apperr.New(apperr.KindInvalidState, "invitation code has expired")
	ErrCodeExhausted  = apperr.New(apperr.KindInvalidState, "invitation code has no uses left")
	ErrCodeInactive   = apperr.New(apperr.KindInvalidState, "invitation code was deactivated")
)

type Registry struct {
	db *gorm.DB
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// Create issues a new code for the project. expiresAt nil means the
// code never expires.
func (r *Registry) Create(ctx context.Context, projectID, creatorID uint, maxUses int, expiresAt *time.Time) (*model.InvitationCode, error) {
	if maxUses < 1 {
		return nil, ErrInvalidMaxUses
	}

	for range codeAttempts {
		code := model.InvitationCode{
			ProjectID: projectID,
			Code:      randomCode(),
			CreatedBy: creatorID,
			MaxUses:   maxUses,
			UsesSoFar: 0,
			ExpiresAt: expiresAt,
			Active:    true,
		}
		err := r.db.WithContext(ctx).Create(&code).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &code, nil
	}
	return nil, apperr.New(apperr.KindConflict, "could not generate a unique invitation code")
}

func randomCode() string {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	for i := range buf {
		buf[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}
	return string(buf)
}

// RedeemResult reports what a successful redemption produced.
type RedeemResult struct {
	Project    *model.Project
	Membership *model.ProjectMembership
}

// Redeem consumes one use of the code and enrolls the user: membership
// upsert with the default join role, area auto-join, and primary-area
// set-if-empty, all in one transaction.
//
// The usage counter is advanced with a single conditional UPDATE
// checked by affected-row count, so two concurrent redemptions of a
// maxUses=1 code cannot both succeed.
func (r *Registry) Redeem(ctx context.Context, code string, userID uint) (*RedeemResult, error) {
	result := &RedeemResult{}
	now := time.Now()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv model.InvitationCode
		err := tx.Where("code = ?", code).First(&inv).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCodeNotFound
		}
		if err != nil {
			return err
		}

		if inv.Expired(now) {
			return ErrCodeExpired
		}
		if inv.Exhausted() {
			return ErrCodeExhausted
		}
		if !inv.Active {
			return ErrCodeInactive
		}

		res := tx.Model(&model.InvitationCode{}).
			Where("id = ? AND active AND uses_so_far < max_uses", inv.ID).
			Update("uses_so_far", gorm.Expr("uses_so_far + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost a race for the last use.
			return ErrCodeExhausted
		}

		var project model.Project
		if err := tx.First(&project, inv.ProjectID).Error; err != nil {
			return err
		}
		result.Project = &project

		m, err := membership.NewLedger(tx).AddMember(ctx, project.ID, userID, defaultJoinRole)
		if err != nil {
			return err
		}
		result.Membership = m

		directory := tenant.NewDirectory(tx)
		err = directory.AssignUserToArea(ctx, userID, project.AreaID, false, false)
		if err != nil && !errors.Is(err, tenant.ErrAlreadyMember) {
			return err
		}
		return directory.SetPrimaryAreaIfEmpty(ctx, userID, project.AreaID)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Deactivate turns the code off for good. Deactivating an already
// inactive code is a no-op success; there is no way back.
func (r *Registry) Deactivate(ctx context.Context, codeID uint) error {
	res := r.db.WithContext(ctx).Model(&model.InvitationCode{}).
		Where("id = ?", codeID).Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&model.InvitationCode{}).
			Where("id = ?", codeID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrCodeNotFound
		}
	}
	return nil
}

// ListForProject returns all codes of a project, newest first.
func (r *Registry) ListForProject(ctx context.Context, projectID uint) ([]model.InvitationCode, error) {
	var codes []model.InvitationCode
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("id DESC").
		Find(&codes).Error
	return codes, err
}
