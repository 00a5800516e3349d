package tenant

import (
	"context"
	"regexp"
	"testing"

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
	// one connection so every session sees the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, query.Migrate(db))
	return db
}

func createUser(t *testing.T, db *gorm.DB, name string, role model.Role) *model.User {
	t.Helper()
	user := model.User{Name: name, Role: role, Status: model.StatusActive}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func TestGenerateUniqueCode(t *testing.T) {
	db := newTestDB(t)
	d := NewDirectory(db)
	ctx := context.Background()

	format := regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{3}$`)
	seen := make(map[string]bool)
	for range 20 {
		code, err := d.GenerateUniqueCode(ctx)
		require.NoError(t, err)
		assert.Regexp(t, format, code)
		assert.False(t, seen[code], "generated code %s twice", code)
		seen[code] = true
	}
}

func TestCreateArea(t *testing.T) {
	db := newTestDB(t)
	d := NewDirectory(db)
	ctx := context.Background()

	t.Run("auto generated code", func(t *testing.T) {
		area, err := d.CreateArea(ctx, "Computer Science", "")
		require.NoError(t, err)
		assert.Regexp(t, `^[A-Z0-9]{4}-[A-Z0-9]{3}$`, area.Code)
		assert.True(t, area.Active)
	})

	t.Run("explicit code", func(t *testing.T) {
		area, err := d.CreateArea(ctx, "Mathematics", "MATH-001")
		require.NoError(t, err)
		assert.Equal(t, "MATH-001", area.Code)
	})

	t.Run("duplicate code refused", func(t *testing.T) {
		_, err := d.CreateArea(ctx, "Mathematics bis", "MATH-001")
		assert.ErrorIs(t, err, ErrDuplicateCode)
	})
}

func TestAssignUserToArea(t *testing.T) {
	db := newTestDB(t)
	d := NewDirectory(db)
	ctx := context.Background()

	owner := createUser(t, db, "owner", model.RoleAdmin)
	student := createUser(t, db, "student", model.RoleStudent)
	area, err := d.CreateArea(ctx, "Engineering", "")
	require.NoError(t, err)

	t.Run("unknown area", func(t *testing.T) {
		err := d.AssignUserToArea(ctx, student.ID, 9999, false, false)
		assert.ErrorIs(t, err, ErrAreaNotFound)
	})

	t.Run("owner implies admin", func(t *testing.T) {
		require.NoError(t, d.AssignUserToArea(ctx, owner.ID, area.ID, false, true))

		var m model.AreaMembership
		require.NoError(t, db.Where("area_id = ? AND user_id = ?", area.ID, owner.ID).First(&m).Error)
		assert.True(t, m.IsOwner)
		assert.True(t, m.IsAdmin)
	})

	t.Run("second owner refused", func(t *testing.T) {
		err := d.AssignUserToArea(ctx, student.ID, area.ID, false, true)
		assert.ErrorIs(t, err, ErrOwnerExists)
	})

	t.Run("double join refused", func(t *testing.T) {
		require.NoError(t, d.AssignUserToArea(ctx, student.ID, area.ID, false, false))
		err := d.AssignUserToArea(ctx, student.ID, area.ID, false, false)
		assert.ErrorIs(t, err, ErrAlreadyMember)
	})

	t.Run("rejoin reuses the inactive row", func(t *testing.T) {
		require.NoError(t, db.Model(&model.AreaMembership{}).
			Where("area_id = ? AND user_id = ?", area.ID, student.ID).
			Update("active", false).Error)

		require.NoError(t, d.AssignUserToArea(ctx, student.ID, area.ID, true, false))

		var count int64
		require.NoError(t, db.Model(&model.AreaMembership{}).
			Where("area_id = ? AND user_id = ?", area.ID, student.ID).Count(&count).Error)
		assert.EqualValues(t, 1, count)

		var m model.AreaMembership
		require.NoError(t, db.Where("area_id = ? AND user_id = ?", area.ID, student.ID).First(&m).Error)
		assert.True(t, m.Active)
		assert.True(t, m.IsAdmin)
	})
}

func TestUserAreas(t *testing.T) {
	db := newTestDB(t)
	d := NewDirectory(db)
	ctx := context.Background()

	user := createUser(t, db, "member", model.RoleCoordinator)
	b, err := d.CreateArea(ctx, "Beta", "BBBB-002")
	require.NoError(t, err)
	a, err := d.CreateArea(ctx, "Alpha", "AAAA-001")
	require.NoError(t, err)
	inactive, err := d.CreateArea(ctx, "Gone", "GONE-003")
	require.NoError(t, err)

	require.NoError(t, d.AssignUserToArea(ctx, user.ID, b.ID, false, false))
	require.NoError(t, d.AssignUserToArea(ctx, user.ID, a.ID, false, false))
	require.NoError(t, d.AssignUserToArea(ctx, user.ID, inactive.ID, false, false))
	require.NoError(t, d.DeactivateArea(ctx, inactive.ID))

	areas, err := d.UserAreas(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, areas, 2)
	assert.Equal(t, "AAAA-001", areas[0].Code)
	assert.Equal(t, "BBBB-002", areas[1].Code)
}

func TestSetPrimaryAreaIfEmpty(t *testing.T) {
	db := newTestDB(t)
	d := NewDirectory(db)
	ctx := context.Background()

	user := createUser(t, db, "fresh", model.RoleStudent)
	require.NoError(t, d.SetPrimaryAreaIfEmpty(ctx, user.ID, 7))
	// second write loses
	require.NoError(t, d.SetPrimaryAreaIfEmpty(ctx, user.ID, 8))

	var got model.User
	require.NoError(t, db.First(&got, user.ID).Error)
	require.NotNil(t, got.PrimaryAreaID)
	assert.EqualValues(t, 7, *got.PrimaryAreaID)
}

func TestTransferOwnership(t *testing.T) {
	db := newTestDB(t)
	d := NewDirectory(db)
	ctx := context.Background()

	owner := createUser(t, db, "current", model.RoleAdmin)
	member := createUser(t, db, "next", model.RoleCoordinator)
	outsider := createUser(t, db, "outsider", model.RoleStudent)

	area, err := d.CreateArea(ctx, "Handover", "")
	require.NoError(t, err)
	require.NoError(t, d.AssignUserToArea(ctx, owner.ID, area.ID, false, true))
	require.NoError(t, d.AssignUserToArea(ctx, member.ID, area.ID, false, false))

	t.Run("requester is not the owner", func(t *testing.T) {
		err := d.TransferOwnership(ctx, area.ID, member.ID, owner.ID)
		assert.ErrorIs(t, err, ErrNotOwner)
	})

	t.Run("new owner has no access", func(t *testing.T) {
		err := d.TransferOwnership(ctx, area.ID, owner.ID, outsider.ID)
		assert.ErrorIs(t, err, ErrNewOwnerNotMember)

		// the refused transfer must not have dropped the current owner
		var m model.AreaMembership
		require.NoError(t, db.Where("area_id = ? AND user_id = ?", area.ID, owner.ID).First(&m).Error)
		assert.True(t, m.IsOwner)
	})

	t.Run("transfer flips both rows", func(t *testing.T) {
		require.NoError(t, d.TransferOwnership(ctx, area.ID, owner.ID, member.ID))

		var old, neu model.AreaMembership
		require.NoError(t, db.Where("area_id = ? AND user_id = ?", area.ID, owner.ID).First(&old).Error)
		require.NoError(t, db.Where("area_id = ? AND user_id = ?", area.ID, member.ID).First(&neu).Error)
		assert.False(t, old.IsOwner)
		assert.True(t, neu.IsOwner)
		assert.True(t, neu.IsAdmin)
	})
}

func TestProvisionOwnedArea(t *testing.T) {
	db := newTestDB(t)
	d := NewDirectory(db)
	ctx := context.Background()

	admin := createUser(t, db, "provisioned", model.RoleAdmin)
	admin.PrimaryAreaID = nil

	area, err := d.ProvisionOwnedArea(ctx, admin.ID, "provisioned")
	require.NoError(t, err)

	var m model.AreaMembership
	require.NoError(t, db.Where("area_id = ? AND user_id = ?", area.ID, admin.ID).First(&m).Error)
	assert.True(t, m.IsOwner)

	var got model.User
	require.NoError(t, db.First(&got, admin.ID).Error)
	assert.Equal(t, ptr.To(area.ID), got.PrimaryAreaID)
}
