package alert

import (
	"context"

	"github.com/acadlab/progest/dao/model"
)

// AlertInterface is the notification component invoked by handlers
// after membership-changing operations succeed. The core services
// never send anything themselves.
type AlertInterface interface {
	ProjectJoined(ctx context.Context, user *model.User, project *model.Project) error
	CoordinatorAssigned(ctx context.Context, coordinator *model.User, project *model.Project) error
	InvitationDeactivated(ctx context.Context, code *model.InvitationCode) error
}

// alertHandlerInterface is what a concrete channel (mail, webhook)
// implements.
type alertHandlerInterface interface {
	SendMessageTo(ctx context.Context, receiver *model.UserAttribute, subject, body string) error
}
