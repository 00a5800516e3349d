package coordassign

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"k8s.io/utils/ptr"

	"github.com/acadlab/progest/dao/model"
	"github.com/acadlab/progest/dao/query"
	"github.com/acadlab/progest/pkg/membership"
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
	area        *model.WorkArea
	project     *model.Project
	coordinator *model.User
}

func setupFixture(t *testing.T, db *gorm.DB) *fixture {
	t.Helper()
	area := model.WorkArea{Code: "COOR-001", Name: "Coordination", Active: true}
	require.NoError(t, db.Create(&area).Error)
	project := model.Project{Title: "to coordinate", State: model.ProjectProposed, AreaID: area.ID}
	require.NoError(t, db.Create(&project).Error)
	coordinator := model.User{Name: "k1", Role: model.RoleCoordinator, Status: model.StatusActive}
	require.NoError(t, db.Create(&coordinator).Error)
	return &fixture{area: &area, project: &project, coordinator: &coordinator}
}

func issueCodes(r *Result) []string {
	return lo.Map(r.Issues, func(i Issue, _ int) string { return i.Code })
}

func TestValidate(t *testing.T) {
	db := newTestDB(t)
	v := NewValidator(db)
	ctx := context.Background()
	fx := setupFixture(t, db)

	t.Run("clean binding", func(t *testing.T) {
		result, err := v.Validate(ctx, fx.coordinator.ID, fx.project.ID)
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.Empty(t, result.Issues)
	})

	t.Run("missing coordinator and project block", func(t *testing.T) {
		result, err := v.Validate(ctx, 9998, 9999)
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.ElementsMatch(t,
			[]string{IssueCoordinatorNotFound, IssueProjectNotFound},
			issueCodes(result))
	})

	t.Run("inactive coordinator warns", func(t *testing.T) {
		inactive := model.User{Name: "sleepy", Role: model.RoleCoordinator, Status: model.StatusInactive}
		require.NoError(t, db.Create(&inactive).Error)

		result, err := v.Validate(ctx, inactive.ID, fx.project.ID)
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.True(t, result.Warnings())
		assert.Contains(t, issueCodes(result), IssueCoordinatorInactive)
	})

	t.Run("wrong role warns", func(t *testing.T) {
		student := model.User{Name: "studious", Role: model.RoleStudent, Status: model.StatusActive}
		require.NoError(t, db.Create(&student).Error)

		result, err := v.Validate(ctx, student.ID, fx.project.ID)
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.Contains(t, issueCodes(result), IssueWrongRole)
	})

	t.Run("terminal project warns", func(t *testing.T) {
		done := model.Project{Title: "done", State: model.ProjectCompleted, AreaID: fx.area.ID}
		require.NoError(t, db.Create(&done).Error)

		result, err := v.Validate(ctx, fx.coordinator.ID, done.ID)
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.Contains(t, issueCodes(result), IssueProjectTerminal)
	})

	t.Run("area mismatch warns", func(t *testing.T) {
		elsewhere := model.WorkArea{Code: "ELSE-001", Name: "Elsewhere", Active: true}
		require.NoError(t, db.Create(&elsewhere).Error)
		foreign := model.User{
			Name: "foreign", Role: model.RoleCoordinator, Status: model.StatusActive,
			PrimaryAreaID: ptr.To(elsewhere.ID),
		}
		require.NoError(t, db.Create(&foreign).Error)

		result, err := v.Validate(ctx, foreign.ID, fx.project.ID)
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.Contains(t, issueCodes(result), IssueAreaMismatch)
	})
}

func TestAssign(t *testing.T) {
	db := newTestDB(t)
	v := NewValidator(db)
	ctx := context.Background()
	fx := setupFixture(t, db)

	t.Run("clean assign joins area and sets primary", func(t *testing.T) {
		result, err := v.Assign(ctx, fx.coordinator.ID, fx.project.ID, false)
		require.NoError(t, err)
		require.True(t, result.Success)
		require.NotNil(t, result.Membership)
		assert.Equal(t, model.RoleCoordinator, result.Membership.Role)

		var am model.AreaMembership
		require.NoError(t, db.Where("area_id = ? AND user_id = ?", fx.area.ID, fx.coordinator.ID).First(&am).Error)
		assert.True(t, am.Active)
		assert.False(t, am.IsAdmin)

		var got model.User
		require.NoError(t, db.First(&got, fx.coordinator.ID).Error)
		assert.Equal(t, ptr.To(fx.area.ID), got.PrimaryAreaID)
	})

	t.Run("second coordinator refused, incumbent named", func(t *testing.T) {
		k2 := model.User{Name: "k2", Role: model.RoleCoordinator, Status: model.StatusActive}
		require.NoError(t, db.Create(&k2).Error)

		result, err := v.Assign(ctx, k2.ID, fx.project.ID, false)
		require.NoError(t, err)
		assert.False(t, result.Success)
		require.NotEmpty(t, result.Issues)

		issue, found := lo.Find(result.Issues, func(i Issue) bool { return i.Code == IssueOtherCoordinator })
		require.True(t, found)
		assert.Contains(t, issue.Message, "k1")

		// the incumbent keeps the slot
		current, err := membership.NewLedger(db).ActiveCoordinator(ctx, fx.project.ID)
		require.NoError(t, err)
		require.NotNil(t, current)
		assert.Equal(t, fx.coordinator.ID, current.UserID)
	})

	t.Run("force cannot override another active coordinator", func(t *testing.T) {
		k3 := model.User{Name: "k3", Role: model.RoleCoordinator, Status: model.StatusActive}
		require.NoError(t, db.Create(&k3).Error)

		result, err := v.Assign(ctx, k3.ID, fx.project.ID, true)
		require.NoError(t, err)
		assert.False(t, result.Success)
	})

	t.Run("force overrides a wrong-role warning", func(t *testing.T) {
		area := model.WorkArea{Code: "FREE-001", Name: "Free", Active: true}
		require.NoError(t, db.Create(&area).Error)
		project := model.Project{Title: "unclaimed", State: model.ProjectProposed, AreaID: area.ID}
		require.NoError(t, db.Create(&project).Error)
		director := model.User{Name: "acting", Role: model.RoleDirector, Status: model.StatusActive}
		require.NoError(t, db.Create(&director).Error)

		refused, err := v.Assign(ctx, director.ID, project.ID, false)
		require.NoError(t, err)
		assert.False(t, refused.Success)

		forced, err := v.Assign(ctx, director.ID, project.ID, true)
		require.NoError(t, err)
		assert.True(t, forced.Success)
	})

	t.Run("blocking issue ignores force", func(t *testing.T) {
		result, err := v.Assign(ctx, 9998, fx.project.ID, true)
		require.NoError(t, err)
		assert.False(t, result.Success)
	})
}
