package email

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESAPI is the part of the SES v2 client used for sending.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends through AWS SES. Messages go out as raw MIME so the
// threading headers reach the recipient unchanged.
type SESSender struct {
	client SESAPI
	now    func() time.Time
}

// NewSESSender creates an SES transport around client.
func NewSESSender(client SESAPI) *SESSender {
	return &SESSender{client: client, now: time.Now}
}

// Send composes msg and hands it to SES.
func (s *SESSender) Send(ctx context.Context, msg *OutboundMessage) error {
	if s.client == nil {
		return fmt.Errorf("SES client not initialized: %w", ErrNotConfigured)
	}

	raw, err := compose(msg, s.now())
	if err != nil {
		return err
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", msg.FromName, msg.FromAddress)),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("SES send failed: %w", err)
	}
	return nil
}
