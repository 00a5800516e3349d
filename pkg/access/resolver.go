// Package access decides whether a requester may act on a project. The
// decision combines direct membership, the project's primary director
// and student bindings, and area membership, per role.
package access

import (
	"context"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/acadlab/progest/dao/model"
	"github.com/acadlab/progest/pkg/logutils"
	"github.com/acadlab/progest/pkg/membership"
	"github.com/acadlab/progest/pkg/tenant"
)

// Context is the request-scoped identity handed to the resolver. It is
// built once per request from the verified token plus a directory
// lookup and passed explicitly; nothing here is cached across requests
// because membership and area state can change between them.
type Context struct {
	UserID        uint
	Role          model.Role
	PrimaryAreaID *uint
	AreaIDs       []uint
}

// Facts are what the decision needs to know beyond the requester's
// identity. Separated out so the rule table stays a pure function.
type Facts struct {
	ActiveMember bool
}

type Resolver struct {
	ledger    *membership.Ledger
	directory *tenant.Directory
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{
		ledger:    membership.NewLedger(db),
		directory: tenant.NewDirectory(db),
	}
}

// CanAccessProject reports whether the requester may access the
// project. Absence of access is a normal boolean outcome, never an
// error; lookup failures deny and log.
func (r *Resolver) CanAccessProject(ctx context.Context, rc *Context, project *model.Project) bool {
	facts := Facts{}

	// Membership only matters to the roles that consult it.
	if rc.Role == model.RoleCoordinator || rc.Role == model.RoleStudent {
		active, err := r.ledger.HasActiveMember(ctx, project.ID, rc.UserID)
		if err != nil {
			logutils.Log.WithFields(logutils.Fields{
				"user":    rc.UserID,
				"project": project.ID,
			}).Error("membership lookup failed, denying: ", err)
			return false
		}
		facts.ActiveMember = active
	}

	return Decide(rc, project, facts)
}

// Decide applies the per-role precedence rules. First match wins.
//
// The coordinator area fallback mirrors the portal's long-standing
// behavior: a coordinator sees every project in their areas even
// without an explicit assignment. Tightening it to membership-only
// would break coordinators who oversee an area's whole portfolio.
func Decide(rc *Context, project *model.Project, facts Facts) bool {
	switch rc.Role {
	case model.RoleAdmin:
		return true
	case model.RoleDirector:
		return project.DirectorID != nil && *project.DirectorID == rc.UserID
	case model.RoleCoordinator:
		if facts.ActiveMember {
			return true
		}
		return lo.Contains(rc.AreaIDs, project.AreaID)
	case model.RoleStudent:
		if project.StudentID != nil && *project.StudentID == rc.UserID {
			return true
		}
		if facts.ActiveMember {
			return true
		}
		return rc.PrimaryAreaID != nil && *rc.PrimaryAreaID == project.AreaID
	default:
		return rc.PrimaryAreaID != nil && *rc.PrimaryAreaID == project.AreaID
	}
}

// BuildContext resolves the requester's areas and returns the identity
// value handed to CanAccessProject. Called once per request.
func (r *Resolver) BuildContext(ctx context.Context, userID uint, role model.Role, primaryAreaID *uint) (*Context, error) {
	areas, err := r.directory.UserAreas(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Context{
		UserID:        userID,
		Role:          role,
		PrimaryAreaID: primaryAreaID,
		AreaIDs: lo.Map(areas, func(a model.WorkArea, _ int) uint {
			return a.ID
		}),
	}, nil
}
