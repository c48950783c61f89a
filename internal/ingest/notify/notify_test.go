package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movie-recommender/internal/common/config"
	apperrors "movie-recommender/internal/common/errors"
	"movie-recommender/internal/common/logger"
)

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
	calls         int
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.calls++
	return m.SendEmailFunc(ctx, params, optFns...)
}

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	calls       int
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.calls++
	return m.PublishFunc(ctx, params, optFns...)
}

func enabledConfig() config.NotificationConfig {
	var cfg config.NotificationConfig
	cfg.SNS.Enabled = true
	cfg.SNS.TopicARN = "arn:aws:sns:us-east-1:123456789012:ingest"
	cfg.Email.Enabled = true
	cfg.Email.FromEmail = "ingest@example.com"
	cfg.Email.To = []string{"ops@example.com"}
	return cfg
}

func TestNotify_BothChannels(t *testing.T) {
	mockSES := &MockSESService{
		SendEmailFunc: func(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			assert.Equal(t, "ingest@example.com", aws.ToString(in.Source))
			assert.Equal(t, []string{"ops@example.com"}, in.Destination.ToAddresses)
			assert.Equal(t, "Ingestion completed", aws.ToString(in.Message.Subject.Data))
			assert.Equal(t, "body", aws.ToString(in.Message.Body.Text.Data))
			return &ses.SendEmailOutput{MessageId: aws.String("m-1")}, nil
		},
	}
	mockSNS := &MockSNSService{
		PublishFunc: func(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
			assert.Equal(t, "arn:aws:sns:us-east-1:123456789012:ingest", aws.ToString(in.TopicArn))
			assert.Equal(t, "body", aws.ToString(in.Message))
			return &sns.PublishOutput{MessageId: aws.String("p-1")}, nil
		},
	}

	n := NewWithServices(enabledConfig(), mockSES, mockSNS, logger.NewTestLogger(t))
	require.True(t, n.Enabled())
	require.NoError(t, n.Notify(context.Background(), "Ingestion completed", "body"))
	assert.Equal(t, 1, mockSES.calls)
	assert.Equal(t, 1, mockSNS.calls)
}

func TestNotify_OneChannelFails(t *testing.T) {
	mockSES := &MockSESService{
		SendEmailFunc: func(context.Context, *ses.SendEmailInput, ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			return nil, errors.New("MessageRejected")
		},
	}
	mockSNS := &MockSNSService{
		PublishFunc: func(context.Context, *sns.PublishInput, ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return &sns.PublishOutput{}, nil
		},
	}

	n := NewWithServices(enabledConfig(), mockSES, mockSNS, logger.NewTestLogger(t))
	err := n.Notify(context.Background(), "s", "b")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeNotificationSendFailed, apperrors.CodeOf(err))
	assert.Equal(t, 1, mockSNS.calls)
}

func TestNotify_Disabled(t *testing.T) {
	mockSNS := &MockSNSService{}
	cfg := enabledConfig()
	cfg.SNS.Enabled = false
	cfg.Email.Enabled = false

	n := NewWithServices(cfg, nil, mockSNS, logger.NewTestLogger(t))
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Notify(context.Background(), "s", "b"))
	assert.Equal(t, 0, mockSNS.calls)
}

func TestSNSSubject(t *testing.T) {
	assert.Equal(t, "a b", snsSubject("a\n  b"))
	assert.Len(t, snsSubject(strings.Repeat("x", 150)), maxSubjectLen)
}
