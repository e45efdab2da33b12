package sms

import (
	"context"

	"campaign-dashboard/internal/templateutil"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// MaxLength caps a rendered message at ten concatenated segments
const MaxLength = 1600

var ErrEmptyMessage = errors.New("sms: empty message")

type Transport interface {
	Send(ctx context.Context, number, message string) error
}

type snsTransport struct {
	sns snsiface.SNSAPI
	log logrus.FieldLogger

	senderID string
	smsType  string
}

type SNSOption func(t *snsTransport)

// SetSenderID sets the alphanumeric sender shown on supporting networks
func SetSenderID(id string) SNSOption {
	return func(t *snsTransport) {
		t.senderID = id
	}
}

// SetTransactional switches from promotional to transactional routing
func SetTransactional() SNSOption {
	return func(t *snsTransport) {
		t.smsType = "Transactional"
	}
}

func NewSNSTransport(sess *session.Session, log logrus.FieldLogger, options ...SNSOption) Transport {
	return newSNSTransport(sns.New(sess), log, options...)
}

func newSNSTransport(api snsiface.SNSAPI, log logrus.FieldLogger, options ...SNSOption) *snsTransport {
	t := &snsTransport{
		sns:     api,
		log:     log,
		smsType: "Promotional",
	}
	for _, option := range options {
		option(t)
	}
	return t
}

func (t *snsTransport) Send(ctx context.Context, number, message string) error {
	if message == "" {
		return ErrEmptyMessage
	}
	if len(message) > MaxLength {
		return errors.Errorf("sms: message is %d bytes, limit is %d", len(message), MaxLength)
	}
	number = templateutil.NormalizePhone(number)
	if !templateutil.IsCompletePhoneNumber(number) {
		return errors.Errorf("sms: invalid number %q", number)
	}

	attrs := map[string]*sns.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String(t.smsType),
		},
	}
	if t.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = &sns.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(t.senderID),
		}
	}

	out, err := t.sns.PublishWithContext(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(number),
		Message:           aws.String(message),
		MessageAttributes: attrs,
	})
	if err != nil {
		return errors.Wrap(err, "sms: publish")
	}

	t.log.WithFields(logrus.Fields{
		"to":       number,
		"id":       aws.StringValue(out.MessageId),
		"segments": Segments(message),
	}).Debug("sms published")
	return nil
}

// Render replaces each {{n}} in text with values[n-1]. Missing values
// render as empty strings.
func Render(text string, values []string) string {
	tokens := templateutil.FindVariablesAndReplacements(text)
	if len(tokens) == 0 {
		return text
	}

	out := make([]byte, 0, len(text))
	last := 0
	for _, tok := range tokens {
		out = append(out, text[last:tok.StartIndex]...)
		if n := tok.MatchVariable; n >= 1 && n <= len(values) {
			out = append(out, values[n-1]...)
		}
		last = tok.EndIndex
	}
	out = append(out, text[last:]...)
	return string(out)
}

// Segments estimates how many SMS parts a GSM-7 message occupies
func Segments(message string) int {
	n := len(message)
	switch {
	case n == 0:
		return 0
	case n <= 160:
		return 1
	}
	return (n + 152) / 153
}
