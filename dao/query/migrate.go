package query

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/acadlab/progest/dao/model"
)

// Migrate runs the schema migrations. The partial unique index on
// project_memberships backs the "at most one active coordinator per
// project" invariant at the storage level, so concurrent assignments
// cannot slip past the validator.
func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "20250901-init",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(
					&model.User{},
					&model.WorkArea{},
					&model.AreaMembership{},
					&model.Project{},
					&model.ProjectMembership{},
					&model.InvitationCode{},
				)
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(
					"invitation_codes",
					"project_memberships",
					"projects",
					"area_memberships",
					"work_areas",
					"users",
				)
			},
		},
		{
			ID: "20250901-active-coordinator-unique",
			Migrate: func(tx *gorm.DB) error {
				// sqlite (tests) and postgres both support partial indexes
				// with this syntax.
				return tx.Exec(
					`CREATE UNIQUE INDEX IF NOT EXISTS idx_active_coordinator
					 ON project_memberships (project_id)
					 WHERE role = 2 AND status = 1 AND deleted_at IS NULL`,
				).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec(`DROP INDEX IF EXISTS idx_active_coordinator`).Error
			},
		},
	})
	return m.Migrate()
}
