// Package notify delivers the ingestion run summary over SNS and SES.
package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	awsclients "movie-recommender/internal/common/aws"
	"movie-recommender/internal/common/config"
	apperrors "movie-recommender/internal/common/errors"
	"movie-recommender/internal/common/logger"
)

// SNS rejects longer subjects.
const maxSubjectLen = 100

type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Notifier struct {
	cfg    config.NotificationConfig
	ses    SESService
	sns    SNSService
	logger logger.Logger
}

// New builds a notifier on real AWS clients. clients may be nil when no
// channel is enabled.
func New(cfg config.NotificationConfig, clients *awsclients.Clients, log logger.Logger) *Notifier {
	n := &Notifier{cfg: cfg, logger: log.WithFields(map[string]interface{}{"component": "notify"})}
	if clients != nil {
		n.ses = clients.SES
		n.sns = clients.SNS
	}
	return n
}

// NewWithServices is New with injected service clients.
func NewWithServices(cfg config.NotificationConfig, sesSvc SESService, snsSvc SNSService, log logger.Logger) *Notifier {
	return &Notifier{
		cfg:    cfg,
		ses:    sesSvc,
		sns:    snsSvc,
		logger: log.WithFields(map[string]interface{}{"component": "notify"}),
	}
}

func (n *Notifier) snsEnabled() bool {
	return n.cfg.SNS.Enabled && n.cfg.SNS.TopicARN != "" && n.sns != nil
}

func (n *Notifier) emailEnabled() bool {
	return n.cfg.Email.Enabled && n.cfg.Email.FromEmail != "" && len(n.cfg.Email.To) > 0 && n.ses != nil
}

// Enabled reports whether any channel would deliver.
func (n *Notifier) Enabled() bool {
	return n.snsEnabled() || n.emailEnabled()
}

// Notify sends subject and body on every enabled channel. A failing
// channel does not stop the others.
func (n *Notifier) Notify(ctx context.Context, subject, body string) error {
	var errs []error
	if n.snsEnabled() {
		if err := n.publish(ctx, subject, body); err != nil {
			errs = append(errs, apperrors.NewNotificationSendFailedError("sns", err))
		} else {
			n.logger.Info("summary published", map[string]interface{}{"topic": n.cfg.SNS.TopicARN})
		}
	}
	if n.emailEnabled() {
		if err := n.sendEmail(ctx, subject, body); err != nil {
			errs = append(errs, apperrors.NewNotificationSendFailedError("email", err))
		} else {
			n.logger.Info("summary emailed", map[string]interface{}{"recipients": len(n.cfg.Email.To)})
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) publish(ctx context.Context, subject, body string) error {
	_, err := n.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.cfg.SNS.TopicARN),
		Subject:  aws.String(snsSubject(subject)),
		Message:  aws.String(body),
	})
	return err
}

func (n *Notifier) sendEmail(ctx context.Context, subject, body string) error {
	_, err := n.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: n.cfg.Email.To,
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.cfg.Email.FromEmail),
	})
	return err
}

// snsSubject keeps a subject on one line and within the SNS limit.
func snsSubject(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxSubjectLen {
		s = s[:maxSubjectLen]
	}
	return s
}
