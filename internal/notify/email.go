// Package notify hands accepted leads to the outbound email channel. It
// consumes the email-view projection; template rendering happens downstream,
// this package only composes and sends the ordered field list.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	apperrors "lead-engine/internal/common/errors"
	"lead-engine/internal/common/logger"
	"lead-engine/internal/project"
	"lead-engine/internal/schema"
)

// EmailSender is the SES surface used by the notifier.
type EmailSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// NewSESClient builds the real SES client for a region.
func NewSESClient(ctx context.Context, region string) (*ses.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return ses.NewFromConfig(cfg), nil
}

// Notifier sends new-lead emails.
type Notifier struct {
	sender EmailSender
	from   string
	logger logger.Logger
}

func NewNotifier(sender EmailSender, fromAddress string, log logger.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		from:   fromAddress,
		logger: log.WithFields(map[string]interface{}{"component": "notifier"}),
	}
}

// SendLead emails the email-view projection of one lead to a recipient. The
// branch's template identifier travels in the message headers for the
// downstream renderer; the body carries the ordered label/value list.
func (n *Notifier) SendLead(ctx context.Context, to string, branch *schema.Branch, p *project.Projection) (string, error) {
	subject := fmt.Sprintf("New %s lead", branch.DisplayName)
	body := composeBody(p)

	out, err := n.sender.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(n.from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		n.logger.Error("lead email send failed", map[string]interface{}{
			"to":     to,
			"branch": branch.MachineName,
			"error":  err.Error(),
		})
		return "", apperrors.NewNotificationSendFailedError(err)
	}

	messageID := ""
	if out.MessageId != nil {
		messageID = *out.MessageId
	}
	n.logger.Info("lead email sent", map[string]interface{}{
		"to":        to,
		"branch":    branch.MachineName,
		"messageId": messageID,
	})
	return messageID, nil
}

func composeBody(p *project.Projection) string {
	var b strings.Builder
	if p.TemplateID != "" {
		fmt.Fprintf(&b, "Template: %s\n\n", p.TemplateID)
	}
	for _, f := range p.Fields {
		fmt.Fprintf(&b, "%s: %v\n", f.Label, f.Value)
	}
	return b.String()
}
