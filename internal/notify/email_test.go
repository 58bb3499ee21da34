package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "lead-engine/internal/common/errors"
	"lead-engine/internal/common/logger"
	"lead-engine/internal/project"
	"lead-engine/internal/schema"
)

// ==========================
// Test Doubles
// ==========================

type fakeSender struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSender) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	messageID := "msg-123"
	return &ses.SendEmailOutput{MessageId: &messageID}, nil
}

func solarBranch() *schema.Branch {
	return &schema.Branch{
		ID:            "branch-1",
		MachineName:   "solar",
		DisplayName:   "Solar Panels",
		Active:        true,
		EmailTemplate: "tpl-solar",
	}
}

func emailProjection() *project.Projection {
	return &project.Projection{
		View:       project.ViewEmail,
		TemplateID: "tpl-solar",
		Fields: []project.Field{
			{Key: "full_name", Label: "Full Name", Value: "Jane Doe"},
			{Key: "budget", Label: "Budget", Value: 25000.0},
		},
	}
}

// ==========================
// Tests
// ==========================

func TestNotifier_SendLead(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, "noreply@example.com", logger.NewTestLogger(t))

	messageID, err := n.SendLead(context.Background(), "sales@example.com", solarBranch(), emailProjection())
	require.NoError(t, err)
	assert.Equal(t, "msg-123", messageID)

	require.NotNil(t, sender.input)
	assert.Equal(t, "noreply@example.com", *sender.input.Source)
	assert.Equal(t, []string{"sales@example.com"}, sender.input.Destination.ToAddresses)
	assert.Equal(t, "New Solar Panels lead", *sender.input.Message.Subject.Data)

	body := *sender.input.Message.Body.Text.Data
	assert.Contains(t, body, "Template: tpl-solar")
	assert.Contains(t, body, "Full Name: Jane Doe")
	assert.Contains(t, body, "Budget: 25000")
}

func TestNotifier_BodyPreservesFieldOrder(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, "noreply@example.com", logger.NewTestLogger(t))

	_, err := n.SendLead(context.Background(), "sales@example.com", solarBranch(), emailProjection())
	require.NoError(t, err)

	body := *sender.input.Message.Body.Text.Data
	assert.Less(t, strings.Index(body, "Full Name"), strings.Index(body, "Budget"),
		"fields must appear in projection order")
}

func TestNotifier_SendFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("ses throttled")}
	n := NewNotifier(sender, "noreply@example.com", logger.NewTestLogger(t))

	_, err := n.SendLead(context.Background(), "sales@example.com", solarBranch(), emailProjection())
	require.Error(t, err)

	std := apperrors.AsStandard(err)
	assert.Equal(t, apperrors.ErrCodeNotificationSendFailed, std.Code)
	assert.True(t, std.Retryable)
}
