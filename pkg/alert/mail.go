package alert

import (
	"context"

	gomail "gopkg.in/gomail.v2"

	"github.com/acadlab/progest/dao/model"
	"github.com/acadlab/progest/pkg/config"
	"github.com/acadlab/progest/pkg/logutils"
)

type mailHandler struct {
	dialer *gomail.Dialer
	from   string
}

func newMailHandler() alertHandlerInterface {
	conf := config.GetConfig()
	return &mailHandler{
		dialer: gomail.NewDialer(conf.SMTP.Host, conf.SMTP.Port, conf.SMTP.User, conf.SMTP.Password),
		from:   conf.SMTP.From,
	}
}

func (m *mailHandler) SendMessageTo(_ context.Context, receiver *model.UserAttribute, subject, body string) error {
	if receiver.Email == nil {
		logutils.Log.Warn("receiver has no email address, skipping mail")
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", *receiver.Email)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return err
	}
	logutils.Log.Infof("sent mail to %s", *receiver.Email)
	return nil
}
