// Constants mirroring database enum columns.
// Gin rejects zero values for fields tagged `required`, so every enum
// starts at iota + 1 to keep the zero value out of the valid range.
package model

// Role is the closed set of portal roles. It doubles as the
// role-in-project for membership rows.
type Role uint8

const (
	RoleAdmin       Role = iota + 1 // general administrator, no area restriction
	RoleCoordinator                 // academic coordinator
	RoleDirector                    // project director
	RoleStudent                     // student
	RoleEvaluator                   // evaluator
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleCoordinator:
		return "coordinator"
	case RoleDirector:
		return "director"
	case RoleStudent:
		return "student"
	case RoleEvaluator:
		return "evaluator"
	default:
		return "unknown"
	}
}

// User status
type Status uint8

const (
	StatusPending  Status = iota + 1 // registered but not yet approved
	StatusActive                     // active
	StatusInactive                   // deactivated
)

// Project lifecycle state
type ProjectState uint8

const (
	ProjectProposed ProjectState = iota + 1
	ProjectInDevelopment
	ProjectCompleted
	ProjectCancelled
)

func (s ProjectState) String() string {
	switch s {
	case ProjectProposed:
		return "proposed"
	case ProjectInDevelopment:
		return "in_development"
	case ProjectCompleted:
		return "completed"
	case ProjectCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the project can no longer change.
func (s ProjectState) Terminal() bool {
	return s == ProjectCompleted || s == ProjectCancelled
}

// Project membership status
type MemberStatus uint8

const (
	MemberActive MemberStatus = iota + 1
	MemberInactive
)
