// Package alert fans portal notifications out to the configured
// channels. Delivery is best effort; failures are logged and never
// bubble into the request that triggered them.
package alert

import (
	"context"
	"fmt"
	"sync"

	"github.com/acadlab/progest/dao/model"
	"github.com/acadlab/progest/pkg/config"
	"github.com/acadlab/progest/pkg/logutils"
)

type Alerter struct {
	handlers []alertHandlerInterface
}

var (
	once    sync.Once
	alerter *Alerter
)

func GetAlertMgr() *Alerter {
	once.Do(func() {
		conf := config.GetConfig()
		alerter = &Alerter{}
		if conf.SMTP.Host != "" {
			alerter.handlers = append(alerter.handlers, newMailHandler())
		}
		if conf.Notify.WebhookURL != "" {
			alerter.handlers = append(alerter.handlers, newWebhookHandler(conf.Notify.WebhookURL))
		}
	})
	return alerter
}

func (a *Alerter) send(ctx context.Context, receiver *model.UserAttribute, subject, body string) error {
	for _, h := range a.handlers {
		if err := h.SendMessageTo(ctx, receiver, subject, body); err != nil {
			logutils.Log.Errorf("send alert %q: %v", subject, err)
		}
	}
	return nil
}

func (a *Alerter) ProjectJoined(ctx context.Context, user *model.User, project *model.Project) error {
	attrs := user.Attributes.Data()
	return a.send(ctx, &attrs,
		"Welcome to the project",
		fmt.Sprintf("%s, you joined the project %q.", user.Name, project.Title))
}

func (a *Alerter) CoordinatorAssigned(ctx context.Context, coordinator *model.User, project *model.Project) error {
	attrs := coordinator.Attributes.Data()
	return a.send(ctx, &attrs,
		"Coordinator assignment",
		fmt.Sprintf("%s, you are now the coordinator of %q.", coordinator.Name, project.Title))
}

func (a *Alerter) InvitationDeactivated(ctx context.Context, code *model.InvitationCode) error {
	// Codes carry no receiver, only the webhook channel cares.
	return a.send(ctx, &model.UserAttribute{},
		"Invitation code deactivated",
		fmt.Sprintf("Code %s of project %d was deactivated.", code.Code, code.ProjectID))
}
