// Package delivery fans urgent notification items out to external channels.
// It sits behind notify.Sender; the aggregator never knows which channel a
// viewer is reached on.
package delivery

import (
	"context"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"portal-engine/internal/common/aws"
	apperrors "portal-engine/internal/common/errors"
	"portal-engine/internal/common/logger"
	"portal-engine/internal/identity"
	"portal-engine/internal/models"
)

// ContactResolver maps a viewer identity to its delivery addresses. The
// portal's profile CRUD owns the data; only the lookup is consumed here.
type ContactResolver interface {
	Email(ctx context.Context, identity string) (string, error)
	Phone(ctx context.Context, identity string) (string, error)
}

// EmailSender delivers urgent items over SES.
type EmailSender struct {
	client   *aws.SESClient
	contacts ContactResolver
	from     string
	log      logger.Logger
}

func NewEmailSender(client *aws.SESClient, contacts ContactResolver, from string, log logger.Logger) *EmailSender {
	return &EmailSender{client: client, contacts: contacts, from: from, log: log}
}

func (s *EmailSender) Send(ctx context.Context, viewer identity.ViewerContext, item models.NotificationItem) error {
	to, err := s.contacts.Email(ctx, viewer.Identity)
	if err != nil {
		return err
	}
	if to == "" {
		s.log.Debug("viewer has no email address, skipping delivery", map[string]interface{}{
			"viewer": viewer.Identity,
		})
		return nil
	}

	_, err = s.client.SendEmail(ctx, &ses.SendEmailInput{
		Source: awssdk.String(s.from),
		Destination: &sestypes.Destination{
			ToAddresses: []string{to},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: awssdk.String(item.Title)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: awssdk.String(item.Message)},
			},
		},
	})
	if err != nil {
		return apperrors.NewInfrastructureError("send email", err)
	}
	return nil
}

// SMSSender delivers urgent items over SNS.
type SMSSender struct {
	client   *aws.SNSClient
	contacts ContactResolver
	prefix   string
	log      logger.Logger
}

func NewSMSSender(client *aws.SNSClient, contacts ContactResolver, prefix string, log logger.Logger) *SMSSender {
	return &SMSSender{client: client, contacts: contacts, prefix: prefix, log: log}
}

func (s *SMSSender) Send(ctx context.Context, viewer identity.ViewerContext, item models.NotificationItem) error {
	phone, err := s.contacts.Phone(ctx, viewer.Identity)
	if err != nil {
		return err
	}
	if phone == "" {
		s.log.Debug("viewer has no phone number, skipping delivery", map[string]interface{}{
			"viewer": viewer.Identity,
		})
		return nil
	}

	_, err = s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: awssdk.String(phone),
		Message:     awssdk.String(s.prefix + item.Title + ": " + item.Message),
	})
	if err != nil {
		return apperrors.NewInfrastructureError("send sms", err)
	}
	return nil
}

// Fanout sends through every configured channel, keeping the first error.
type Fanout struct {
	senders []Sender
}

// Sender mirrors notify.Sender locally to avoid an import cycle.
type Sender interface {
	Send(ctx context.Context, viewer identity.ViewerContext, item models.NotificationItem) error
}

func NewFanout(senders ...Sender) *Fanout {
	return &Fanout{senders: senders}
}

func (f *Fanout) Send(ctx context.Context, viewer identity.ViewerContext, item models.NotificationItem) error {
	var first error
	for _, s := range f.senders {
		if err := s.Send(ctx, viewer, item); err != nil && first == nil {
			first = err
		}
	}
	return first
}
