package cronjob

import (
	"time"

	"k8s.io/klog/v2"

	"github.com/acadlab/progest/dao/model"
)

// AuditReport collects the inconsistencies a run found.
type AuditReport struct {
	RanAt                 time.Time
	AreasWithoutOwner     []uint
	AreasWithManyOwners   []uint
	ExpiredActiveCodes    int64
	DanglingPrimaryAreas  int64
	ProjectsWithoutMember int64
}

func (r *AuditReport) Clean() bool {
	return len(r.AreasWithoutOwner) == 0 &&
		len(r.AreasWithManyOwners) == 0 &&
		r.ExpiredActiveCodes == 0 &&
		r.DanglingPrimaryAreas == 0 &&
		r.ProjectsWithoutMember == 0
}

func (r *AuditReport) Log() {
	if r.Clean() {
		klog.Info("consistency audit: no findings")
		return
	}
	if len(r.AreasWithoutOwner) > 0 {
		klog.Warningf("consistency audit: %d active areas without an owner: %v", len(r.AreasWithoutOwner), r.AreasWithoutOwner)
	}
	if len(r.AreasWithManyOwners) > 0 {
		klog.Warningf("consistency audit: %d areas with more than one owner: %v", len(r.AreasWithManyOwners), r.AreasWithManyOwners)
	}
	if r.ExpiredActiveCodes > 0 {
		klog.Warningf("consistency audit: %d invitation codes are expired but still active", r.ExpiredActiveCodes)
	}
	if r.DanglingPrimaryAreas > 0 {
		klog.Warningf("consistency audit: %d users have a primary area they are not a member of", r.DanglingPrimaryAreas)
	}
	if r.ProjectsWithoutMember > 0 {
		klog.Warningf("consistency audit: %d non-terminal projects have no active member", r.ProjectsWithoutMember)
	}
}

// RunAudit executes every check once. Exported so an operator can
// trigger it outside the schedule.
func (am *AuditManager) RunAudit() (*AuditReport, error) {
	report := &AuditReport{RanAt: time.Now()}

	// Active areas whose owner count is not exactly one.
	rows := []struct {
		AreaID uint
		Owners int64
	}{}
	err := am.db.Model(&model.WorkArea{}).
		Select("work_areas.id AS area_id, COUNT(area_memberships.id) AS owners").
		Joins("LEFT JOIN area_memberships ON area_memberships.area_id = work_areas.id"+
			" AND area_memberships.is_owner AND area_memberships.active AND area_memberships.deleted_at IS NULL").
		Where("work_areas.active").
		Group("work_areas.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		switch {
		case rows[i].Owners == 0:
			report.AreasWithoutOwner = append(report.AreasWithoutOwner, rows[i].AreaID)
		case rows[i].Owners > 1:
			report.AreasWithManyOwners = append(report.AreasWithManyOwners, rows[i].AreaID)
		}
	}

	err = am.db.Model(&model.InvitationCode{}).
		Where("active AND expires_at IS NOT NULL AND expires_at <= ?", report.RanAt).
		Count(&report.ExpiredActiveCodes).Error
	if err != nil {
		return nil, err
	}

	err = am.db.Model(&model.User{}).
		Where("primary_area_id IS NOT NULL").
		Where("NOT EXISTS (SELECT 1 FROM area_memberships am"+
			" WHERE am.user_id = users.id AND am.area_id = users.primary_area_id"+
			" AND am.active AND am.deleted_at IS NULL)").
		Count(&report.DanglingPrimaryAreas).Error
	if err != nil {
		return nil, err
	}

	err = am.db.Model(&model.Project{}).
		Where("state NOT IN ?", []model.ProjectState{model.ProjectCompleted, model.ProjectCancelled}).
		Where("NOT EXISTS (SELECT 1 FROM project_memberships pm"+
			" WHERE pm.project_id = projects.id AND pm.status = ? AND pm.deleted_at IS NULL)", model.MemberActive).
		Count(&report.ProjectsWithoutMember).Error
	if err != nil {
		return nil, err
	}

	return report, nil
}
