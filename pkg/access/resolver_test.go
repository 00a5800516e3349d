package access

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"k8s.io/utils/ptr"

	"github.com/acadlab/progest/dao/model"
	"github.com/acadlab/progest/dao/query"
	"github.com/acadlab/progest/pkg/membership"
	"github.com/acadlab/progest/pkg/tenant"
)

func TestDecide(t *testing.T) {
	project := &model.Project{
		AreaID:     10,
		DirectorID: ptr.To(uint(100)),
		StudentID:  ptr.To(uint(200)),
	}
	project.ID = 1

	tests := []struct {
		name  string
		rc    Context
		facts Facts
		want  bool
	}{
		{
			name: "admin always",
			rc:   Context{UserID: 1, Role: model.RoleAdmin},
			want: true,
		},
		{
			name: "director of the project",
			rc:   Context{UserID: 100, Role: model.RoleDirector},
			want: true,
		},
		{
			name: "director of another project",
			rc:   Context{UserID: 101, Role: model.RoleDirector, PrimaryAreaID: ptr.To(uint(10))},
			want: false,
		},
		{
			name:  "coordinator with membership",
			rc:    Context{UserID: 2, Role: model.RoleCoordinator},
			facts: Facts{ActiveMember: true},
			want:  true,
		},
		{
			name: "coordinator via area",
			rc:   Context{UserID: 2, Role: model.RoleCoordinator, AreaIDs: []uint{5, 10}},
			want: true,
		},
		{
			name: "coordinator outside the area",
			rc:   Context{UserID: 2, Role: model.RoleCoordinator, AreaIDs: []uint{5}},
			want: false,
		},
		{
			name: "the project's student",
			rc:   Context{UserID: 200, Role: model.RoleStudent},
			want: true,
		},
		{
			name:  "student with membership",
			rc:    Context{UserID: 201, Role: model.RoleStudent},
			facts: Facts{ActiveMember: true},
			want:  true,
		},
		{
			name: "student with matching primary area",
			rc:   Context{UserID: 201, Role: model.RoleStudent, PrimaryAreaID: ptr.To(uint(10))},
			want: true,
		},
		{
			name: "student without any tie",
			rc:   Context{UserID: 201, Role: model.RoleStudent, PrimaryAreaID: ptr.To(uint(11))},
			want: false,
		},
		{
			name: "evaluator with matching primary area",
			rc:   Context{UserID: 300, Role: model.RoleEvaluator, PrimaryAreaID: ptr.To(uint(10))},
			want: true,
		},
		{
			name: "evaluator without primary area",
			rc:   Context{UserID: 300, Role: model.RoleEvaluator},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(&tt.rc, project, tt.facts))
		})
	}
}

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

func TestResolver(t *testing.T) {
	db := newTestDB(t)
	r := NewResolver(db)
	ctx := context.Background()

	area := model.WorkArea{Code: "AREA-001", Name: "Area", Active: true}
	require.NoError(t, db.Create(&area).Error)
	other := model.WorkArea{Code: "AREA-002", Name: "Other", Active: true}
	require.NoError(t, db.Create(&other).Error)

	coordinator := model.User{Name: "koo", Role: model.RoleCoordinator, Status: model.StatusActive}
	require.NoError(t, db.Create(&coordinator).Error)

	directory := tenant.NewDirectory(db)
	require.NoError(t, directory.AssignUserToArea(ctx, coordinator.ID, area.ID, false, false))

	inArea := model.Project{Title: "in area", State: model.ProjectProposed, AreaID: area.ID}
	require.NoError(t, db.Create(&inArea).Error)
	outside := model.Project{Title: "elsewhere", State: model.ProjectProposed, AreaID: other.ID}
	require.NoError(t, db.Create(&outside).Error)

	rc, err := r.BuildContext(ctx, coordinator.ID, coordinator.Role, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint{area.ID}, rc.AreaIDs)

	t.Run("coordinator sees the area's project", func(t *testing.T) {
		assert.True(t, r.CanAccessProject(ctx, rc, &inArea))
	})

	t.Run("coordinator denied outside the area", func(t *testing.T) {
		assert.False(t, r.CanAccessProject(ctx, rc, &outside))
	})

	t.Run("membership opens the outside project", func(t *testing.T) {
		_, err := membership.NewLedger(db).AddMember(ctx, outside.ID, coordinator.ID, model.RoleCoordinator)
		require.NoError(t, err)
		assert.True(t, r.CanAccessProject(ctx, rc, &outside))
	})
}
