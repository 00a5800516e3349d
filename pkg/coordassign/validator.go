// Package coordassign validates and performs coordinator-to-project
// bindings.
package coordassign

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/acadlab/progest/dao/model"
	"github.com/acadlab/progest/pkg/membership"
	"github.com/acadlab/progest/pkg/tenant"
)

type Severity uint8

const (
	SeverityBlocking Severity = iota + 1
	SeverityWarning
)

// Issue codes, stable identifiers for the frontend.
const (
	IssueCoordinatorNotFound  = "coordinator_not_found"
	IssueProjectNotFound      = "project_not_found"
	IssueCoordinatorInactive  = "coordinator_inactive"
	IssueWrongRole            = "coordinator_wrong_role"
	IssueProjectTerminal      = "project_terminal_state"
	IssueAlreadyAssigned      = "already_assigned"
	IssueOtherCoordinator     = "other_active_coordinator"
	IssueAreaMismatch         = "area_mismatch"
)

type Issue struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
}

type Result struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues"`
}

// Warnings reports whether the result carries at least one advisory
// issue. Warnings block an assignment unless forced.
func (r *Result) Warnings() bool {
	for i := range r.Issues {
		if r.Issues[i].Severity == SeverityWarning {
			return true
		}
	}
	return false
}

type Validator struct {
	db        *gorm.DB
	ledger    *membership.Ledger
	directory *tenant.Directory
}

func NewValidator(db *gorm.DB) *Validator {
	return &Validator{
		db:        db,
		ledger:    membership.NewLedger(db),
		directory: tenant.NewDirectory(db),
	}
}

// Validate collects everything wrong with binding the coordinator to
// the project. Business-rule violations are reported as issues, never
// as errors; the returned error is reserved for infrastructure
// failures. Valid is true iff no blocking issue exists.
func (v *Validator) Validate(ctx context.Context, coordinatorID, projectID uint) (*Result, error) {
	result := &Result{}

	var coordinator model.User
	err := v.db.WithContext(ctx).First(&coordinator, coordinatorID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		result.Issues = append(result.Issues, Issue{
			Severity: SeverityBlocking,
			Code:     IssueCoordinatorNotFound,
			Message:  fmt.Sprintf("coordinator %d does not exist", coordinatorID),
		})
	} else if err != nil {
		return nil, err
	}

	var project model.Project
	err = v.db.WithContext(ctx).First(&project, projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		result.Issues = append(result.Issues, Issue{
			Severity: SeverityBlocking,
			Code:     IssueProjectNotFound,
			Message:  fmt.Sprintf("project %d does not exist", projectID),
		})
	} else if err != nil {
		return nil, err
	}

	result.Valid = len(result.Issues) == 0
	if !result.Valid {
		return result, nil
	}

	if coordinator.Status != model.StatusActive {
		result.Issues = append(result.Issues, Issue{
			Severity: SeverityWarning,
			Code:     IssueCoordinatorInactive,
			Message:  fmt.Sprintf("user %s is not active", coordinator.Name),
		})
	}
	if coordinator.Role != model.RoleCoordinator {
		result.Issues = append(result.Issues, Issue{
			Severity: SeverityWarning,
			Code:     IssueWrongRole,
			Message:  fmt.Sprintf("user %s has role %s, not coordinator", coordinator.Name, coordinator.Role),
		})
	}
	if project.State.Terminal() {
		result.Issues = append(result.Issues, Issue{
			Severity: SeverityWarning,
			Code:     IssueProjectTerminal,
			Message:  fmt.Sprintf("project is %s and can no longer change", project.State),
		})
	}

	pair, err := v.ledger.FindMember(ctx, projectID, coordinatorID)
	if err != nil {
		return nil, err
	}
	if pair != nil {
		result.Issues = append(result.Issues, Issue{
			Severity: SeverityWarning,
			Code:     IssueAlreadyAssigned,
			Message:  fmt.Sprintf("user %s already has a membership on the project", coordinator.Name),
		})
	}

	current, err := v.ledger.ActiveCoordinator(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if current != nil && current.UserID != coordinatorID {
		var incumbent model.User
		who := fmt.Sprintf("user %d", current.UserID)
		if err := v.db.WithContext(ctx).First(&incumbent, current.UserID).Error; err == nil {
			who = incumbent.Name
		}
		result.Issues = append(result.Issues, Issue{
			Severity: SeverityWarning,
			Code:     IssueOtherCoordinator,
			Message:  fmt.Sprintf("project already has another coordinator: %s", who),
		})
	}

	if project.AreaID != 0 {
		belongs, err := v.directory.BelongsToArea(ctx, coordinatorID, project.AreaID)
		if err != nil {
			return nil, err
		}
		if !belongs && coordinator.PrimaryAreaID != nil && *coordinator.PrimaryAreaID != project.AreaID {
			result.Issues = append(result.Issues, Issue{
				Severity: SeverityWarning,
				Code:     IssueAreaMismatch,
				Message:  "coordinator's area differs from the project's area",
			})
		}
	}

	return result, nil
}

// AssignResult is what a (possibly refused) assignment returns.
type AssignResult struct {
	Success    bool                     `json:"success"`
	Message    string                   `json:"message,omitempty"`
	Issues     []Issue                  `json:"issues,omitempty"`
	Membership *model.ProjectMembership `json:"membership,omitempty"`
}

// Assign validates and performs the binding. Blocking issues always
// refuse; warnings refuse too unless force is set. On proceeding the
// coordinator is auto-joined to the project's area as a plain member
// when needed, their primary area is set if empty, and the membership
// is upserted with the coordinator role.
func (v *Validator) Assign(ctx context.Context, coordinatorID, projectID uint, force bool) (*AssignResult, error) {
	result, err := v.Validate(ctx, coordinatorID, projectID)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return &AssignResult{Success: false, Issues: result.Issues}, nil
	}
	if result.Warnings() && !force {
		return &AssignResult{Success: false, Issues: result.Issues}, nil
	}

	var project model.Project
	if err := v.db.WithContext(ctx).First(&project, projectID).Error; err != nil {
		return nil, err
	}

	if project.AreaID != 0 {
		belongs, err := v.directory.BelongsToArea(ctx, coordinatorID, project.AreaID)
		if err != nil {
			return nil, err
		}
		if !belongs {
			err = v.directory.AssignUserToArea(ctx, coordinatorID, project.AreaID, false, false)
			if err != nil && !errors.Is(err, tenant.ErrAlreadyMember) {
				return nil, err
			}
		}
		if err := v.directory.SetPrimaryAreaIfEmpty(ctx, coordinatorID, project.AreaID); err != nil {
			return nil, err
		}
	}

	m, err := v.ledger.AssignCoordinator(ctx, projectID, coordinatorID)
	if err != nil {
		var dup *membership.CoordinatorExistsError
		if errors.As(err, &dup) {
			// Raced with another assignment between validation and write.
			return &AssignResult{
				Success: false,
				Issues: []Issue{{
					Severity: SeverityWarning,
					Code:     IssueOtherCoordinator,
					Message:  dup.Error(),
				}},
			}, nil
		}
		return nil, err
	}

	return &AssignResult{
		Success:    true,
		Message:    fmt.Sprintf("coordinator assigned to project %d", projectID),
		Membership: m,
	}, nil
}
