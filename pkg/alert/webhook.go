package alert

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/imroc/req/v3"

	"github.com/acadlab/progest/dao/model"
)

type webhookHandler struct {
	client *req.Client
	url    string
}

func newWebhookHandler(url string) alertHandlerInterface {
	return &webhookHandler{
		client: req.C(),
		url:    url,
	}
}

type webhookPayload struct {
	// EventID lets the receiver deduplicate retried deliveries.
	EventID string  `json:"eventID"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
	Email   *string `json:"email,omitempty"`
}

func (w *webhookHandler) SendMessageTo(ctx context.Context, receiver *model.UserAttribute, subject, body string) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBodyJsonMarshal(webhookPayload{
			EventID: uuid.NewString(),
			Subject: subject,
			Body:    body,
			Email:   receiver.Email,
		}).
		Post(w.url)
	if err != nil {
		return err
	}
	if resp.IsErrorState() {
		return fmt.Errorf("webhook returned status %s", resp.Status)
	}
	return nil
}
