package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/BradenHooton/warden/pkg/logger"
)

// Message is one outbound email
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Mailer delivers a message and returns the provider's message id
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// sesAPI is the part of the SES client the mailer uses
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESMailer sends email through AWS SES
type SESMailer struct {
	client      sesAPI
	fromAddress string
	logger      *slog.Logger
}

// NewSESMailer loads the default AWS credential chain for region
func NewSESMailer(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESMailer, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newSESMailer(ses.NewFromConfig(cfg), fromAddress, logger), nil
}

func newSESMailer(client sesAPI, fromAddress string, logger *slog.Logger) *SESMailer {
	return &SESMailer{client: client, fromAddress: fromAddress, logger: logger}
}

func (m *SESMailer) Send(ctx context.Context, msg Message) (string, error) {
	body := &types.Body{
		Html: &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")},
	}
	if msg.TextBody != "" {
		body.Text = &types.Content{Data: aws.String(msg.TextBody), Charset: aws.String("UTF-8")}
	}

	result, err := m.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(m.fromAddress),
		Destination: &types.Destination{ToAddresses: []string{msg.To}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body:    body,
		},
	})
	if err != nil {
		m.logger.Error("SES send failed",
			slog.String("to", pkglogger.SanitizedEmail(msg.To)),
			slog.Any("error", err))
		return "", fmt.Errorf("failed to send email: %w", err)
	}

	messageID := aws.ToString(result.MessageId)
	m.logger.Info("email sent",
		slog.String("to", pkglogger.SanitizedEmail(msg.To)),
		slog.String("message_id", messageID))

	return messageID, nil
}
