package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	pkglogger "github.com/mereside/opsgate/pkg/logger"
)

// AWSSESEmailSender delivers one-time login codes using AWS SES
type AWSSESEmailSender struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESEmailSender creates a new AWS SES passcode sender
func NewAWSSESEmailSender(region, fromAddress string, logger *slog.Logger) (*AWSSESEmailSender, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailSender{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// SendPasscodeEmail sends the 6-digit login code to the user's inbox
func (s *AWSSESEmailSender) SendPasscodeEmail(ctx context.Context, email, code string, expiresAt time.Time) error {
	minutes := int(time.Until(expiresAt).Round(time.Minute).Minutes())
	if minutes < 1 {
		minutes = 1
	}

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .code { font-size: 32px; letter-spacing: 8px; font-weight: bold; text-align: center; padding: 20px; background-color: #f1f3f5; border-radius: 4px; margin: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
        .warning { background-color: #fff3cd; padding: 10px; border-left: 4px solid #ffc107; margin: 10px 0; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Your Sign-In Code</h1>
        </div>
        <p>Enter this code to finish signing in:</p>
        <div class="code">%s</div>
        <div class="warning">
            <strong>⚠️ Security Notice:</strong> This code will expire in %d minutes. Never share it with anyone.
        </div>
        <p><strong>Didn't try to sign in?</strong><br>
        If you didn't request this code, you can ignore this email and consider changing your password.</p>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, code, minutes)

	textBody := fmt.Sprintf(`Your Sign-In Code

Enter this code to finish signing in:

%s

⚠️  Security Notice: This code will expire in %d minutes. Never share it with anyone.

Didn't try to sign in?
If you didn't request this code, you can ignore this email and consider changing your password.

This is an automated message. Please do not reply to this email.
`, code, minutes)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &sestypes.Destination{
			ToAddresses: []string{email},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{
				Data: aws.String(fmt.Sprintf("%s is your sign-in code", code)),
			},
			Body: &sestypes.Body{
				Html: &sestypes.Content{
					Data: aws.String(htmlBody),
				},
				Text: &sestypes.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send passcode email via SES",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("passcode email sent",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("message_id", *result.MessageId))

	return nil
}

// AWSSNSSMSSender delivers one-time login codes using AWS SNS
type AWSSNSSMSSender struct {
	snsClient *sns.Client
	senderID  string
	logger    *slog.Logger
}

// NewAWSSNSSMSSender creates a new AWS SNS passcode sender
func NewAWSSNSSMSSender(region, senderID string, logger *slog.Logger) (*AWSSNSSMSSender, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSNSSMSSender{
		snsClient: sns.NewFromConfig(cfg),
		senderID:  senderID,
		logger:    logger,
	}, nil
}

// SendPasscodeSMS sends the 6-digit login code as a text message
func (s *AWSSNSSMSSender) SendPasscodeSMS(ctx context.Context, phone, code string) error {
	attrs := map[string]snstypes.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String("Transactional"),
		},
	}
	if s.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = snstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(s.senderID),
		}
	}

	input := &sns.PublishInput{
		PhoneNumber:       aws.String(phone),
		Message:           aws.String(fmt.Sprintf("%s is your sign-in code. Never share it with anyone.", code)),
		MessageAttributes: attrs,
	}

	result, err := s.snsClient.Publish(ctx, input)
	if err != nil {
		s.logger.Error("failed to send passcode SMS via SNS",
			slog.String("phone", pkglogger.SanitizedPhone(phone)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send sms: %w", err)
	}

	s.logger.Info("passcode SMS sent",
		slog.String("phone", pkglogger.SanitizedPhone(phone)),
		slog.String("message_id", *result.MessageId))

	return nil
}
