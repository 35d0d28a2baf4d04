package mailing

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/lumail/lumail/internal/domain"
	"github.com/lumail/lumail/internal/pkg/logger"
)

// SESSender delivers email via AWS SES using the SDK v2. It is the alternate
// provider for deployments that already route transactional mail through AWS.
type SESSender struct {
	client  *sesv2.Client
	region  string
	timeout time.Duration
}

// NewSESSender creates an SES sender. With empty credentials the default
// AWS credential chain is used (IAM role on ECS/Lambda). A non-positive
// timeout falls back to 30 seconds.
func NewSESSender(ctx context.Context, accessKey, secretKey, region string, timeout time.Duration) (*SESSender, error) {
	if region == "" {
		region = "us-east-1"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &SESSender{client: sesv2.NewFromConfig(cfg), region: region, timeout: timeout}, nil
}

// Send delivers a single email through AWS SES.
func (s *SESSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body := &types.Body{
		Html: &types.Content{Data: aws.String(msg.HTMLContent), Charset: aws.String("UTF-8")},
	}
	if msg.TextContent != "" {
		body.Text = &types.Content{Data: aws.String(msg.TextContent), Charset: aws.String("UTF-8")}
	}

	message := &types.Message{
		Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
		Body:    body,
	}
	for name, value := range msg.Headers {
		message.Headers = append(message.Headers, types.MessageHeader{
			Name:  aws.String(name),
			Value: aws.String(value),
		})
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{msg.Email}},
		Content:          &types.EmailContent{Simple: message},
	}
	for name, value := range msg.Tags {
		input.EmailTags = append(input.EmailTags, types.MessageTag{
			Name:  aws.String(name),
			Value: aws.String(value),
		})
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return &domain.SendResult{Success: false, ESPType: domain.ESPSES, Error: err.Error()}, err
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}
	if messageID == "" {
		return &domain.SendResult{
			Success: false,
			ESPType: domain.ESPSES,
			Error:   "provider returned no message id",
		}, nil
	}

	logger.Debug("ses send accepted", "email", msg.Email, "message_id", messageID)

	return &domain.SendResult{
		Success:   true,
		MessageID: messageID,
		ESPType:   domain.ESPSES,
		SentAt:    time.Now(),
	}, nil
}
