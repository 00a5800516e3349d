package invitation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"k8s.io/utils/ptr"

	"github.com/acadlab/progest/dao/model"
	"github.com/acadlab/progest/dao/query"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, query.Migrate(db))
	return db
}

type fixture struct {
	area    *model.WorkArea
	project *model.Project
	issuer  *model.User
}

func setupFixture(t *testing.T, db *gorm.DB) *fixture {
	t.Helper()
	area := model.WorkArea{Code: "TEST-001", Name: "Testing", Active: true}
	require.NoError(t, db.Create(&area).Error)
	project := model.Project{Title: "invited", State: model.ProjectProposed, AreaID: area.ID}
	require.NoError(t, db.Create(&project).Error)
	issuer := model.User{Name: "issuer", Role: model.RoleDirector, Status: model.StatusActive}
	require.NoError(t, db.Create(&issuer).Error)
	return &fixture{area: &area, project: &project, issuer: &issuer}
}

func createUser(t *testing.T, db *gorm.DB, name string) *model.User {
	t.Helper()
	user := model.User{Name: name, Role: model.RoleStudent, Status: model.StatusActive}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func TestCreate(t *testing.T) {
	db := newTestDB(t)
	r := NewRegistry(db)
	ctx := context.Background()
	fx := setupFixture(t, db)

	t.Run("maxUses below one", func(t *testing.T) {
		_, err := r.Create(ctx, fx.project.ID, fx.issuer.ID, 0, nil)
		assert.ErrorIs(t, err, ErrInvalidMaxUses)
	})

	t.Run("issued code is consumable", func(t *testing.T) {
		code, err := r.Create(ctx, fx.project.ID, fx.issuer.ID, 3, nil)
		require.NoError(t, err)
		assert.Len(t, code.Code, codeLength)
		assert.True(t, code.Consumable(time.Now()))
		assert.Equal(t, 3, code.MaxUses)
		assert.Zero(t, code.UsesSoFar)
	})
}

func TestRedeem(t *testing.T) {
	db := newTestDB(t)
	r := NewRegistry(db)
	ctx := context.Background()
	fx := setupFixture(t, db)

	t.Run("unknown code", func(t *testing.T) {
		_, err := r.Redeem(ctx, "NOPE", 1)
		assert.ErrorIs(t, err, ErrCodeNotFound)
	})

	t.Run("enrolls the user end to end", func(t *testing.T) {
		user := createUser(t, db, "joiner")
		code, err := r.Create(ctx, fx.project.ID, fx.issuer.ID, 1, nil)
		require.NoError(t, err)

		res, err := r.Redeem(ctx, code.Code, user.ID)
		require.NoError(t, err)
		assert.Equal(t, fx.project.ID, res.Project.ID)
		assert.Equal(t, model.RoleStudent, res.Membership.Role)
		assert.Equal(t, model.MemberActive, res.Membership.Status)

		var am model.AreaMembership
		require.NoError(t, db.Where("area_id = ? AND user_id = ?", fx.area.ID, user.ID).First(&am).Error)
		assert.True(t, am.Active)
		assert.False(t, am.IsAdmin)

		var got model.User
		require.NoError(t, db.First(&got, user.ID).Error)
		assert.Equal(t, ptr.To(fx.area.ID), got.PrimaryAreaID)
	})

	t.Run("existing primary area is kept", func(t *testing.T) {
		user := createUser(t, db, "settled")
		require.NoError(t, db.Model(user).Update("primary_area_id", 42).Error)

		code, err := r.Create(ctx, fx.project.ID, fx.issuer.ID, 1, nil)
		require.NoError(t, err)
		_, err = r.Redeem(ctx, code.Code, user.ID)
		require.NoError(t, err)

		var got model.User
		require.NoError(t, db.First(&got, user.ID).Error)
		assert.Equal(t, ptr.To(uint(42)), got.PrimaryAreaID)
	})

	t.Run("exhaustion after maxUses redemptions", func(t *testing.T) {
		const maxUses = 2
		code, err := r.Create(ctx, fx.project.ID, fx.issuer.ID, maxUses, nil)
		require.NoError(t, err)

		for i := range maxUses {
			user := createUser(t, db, fmt.Sprintf("redeemer-%d", i))
			_, err := r.Redeem(ctx, code.Code, user.ID)
			require.NoError(t, err)
		}

		late := createUser(t, db, "too-late")
		_, err = r.Redeem(ctx, code.Code, late.ID)
		assert.ErrorIs(t, err, ErrCodeExhausted)

		// exhaustion does not deactivate the code
		var got model.InvitationCode
		require.NoError(t, db.First(&got, code.ID).Error)
		assert.True(t, got.Active)
		assert.Equal(t, maxUses, got.UsesSoFar)
	})

	t.Run("expired code", func(t *testing.T) {
		user := createUser(t, db, "tardy")
		code, err := r.Create(ctx, fx.project.ID, fx.issuer.ID, 1, ptr.To(time.Now().Add(-time.Hour)))
		require.NoError(t, err)

		_, err = r.Redeem(ctx, code.Code, user.ID)
		assert.ErrorIs(t, err, ErrCodeExpired)
	})

	t.Run("deactivated code", func(t *testing.T) {
		user := createUser(t, db, "blocked")
		code, err := r.Create(ctx, fx.project.ID, fx.issuer.ID, 5, nil)
		require.NoError(t, err)
		require.NoError(t, r.Deactivate(ctx, code.ID))

		_, err = r.Redeem(ctx, code.Code, user.ID)
		assert.ErrorIs(t, err, ErrCodeInactive)
	})

	t.Run("rejoining through a second code stays idempotent", func(t *testing.T) {
		user := createUser(t, db, "repeat")
		first, err := r.Create(ctx, fx.project.ID, fx.issuer.ID, 1, nil)
		require.NoError(t, err)
		second, err := r.Create(ctx, fx.project.ID, fx.issuer.ID, 1, nil)
		require.NoError(t, err)

		_, err = r.Redeem(ctx, first.Code, user.ID)
		require.NoError(t, err)
		_, err = r.Redeem(ctx, second.Code, user.ID)
		require.NoError(t, err)

		var count int64
		require.NoError(t, db.Model(&model.ProjectMembership{}).
			Where("project_id = ? AND user_id = ?", fx.project.ID, user.ID).Count(&count).Error)
		assert.EqualValues(t, 1, count)
	})
}

func TestDeactivate(t *testing.T) {
	db := newTestDB(t)
	r := NewRegistry(db)
	ctx := context.Background()
	fx := setupFixture(t, db)

	t.Run("unknown code", func(t *testing.T) {
		err := r.Deactivate(ctx, 9999)
		assert.ErrorIs(t, err, ErrCodeNotFound)
	})

	t.Run("idempotent", func(t *testing.T) {
		code, err := r.Create(ctx, fx.project.ID, fx.issuer.ID, 1, nil)
		require.NoError(t, err)

		require.NoError(t, r.Deactivate(ctx, code.ID))
		require.NoError(t, r.Deactivate(ctx, code.ID))

		var got model.InvitationCode
		require.NoError(t, db.First(&got, code.ID).Error)
		assert.False(t, got.Active)
	})
}

func TestListForProject(t *testing.T) {
	db := newTestDB(t)
	r := NewRegistry(db)
	ctx := context.Background()
	fx := setupFixture(t, db)

	first, err := r.Create(ctx, fx.project.ID, fx.issuer.ID, 1, nil)
	require.NoError(t, err)
	second, err := r.Create(ctx, fx.project.ID, fx.issuer.ID, 1, nil)
	require.NoError(t, err)

	codes, err := r.ListForProject(ctx, fx.project.ID)
	require.NoError(t, err)
	require.Len(t, codes, 2)
	assert.Equal(t, second.ID, codes[0].ID)
	assert.Equal(t, first.ID, codes[1].ID)
}
