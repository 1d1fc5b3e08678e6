package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// SESConfig configures the Amazon SES v2 gate. Empty keys fall back to the
// default AWS credential chain.
type SESConfig struct {
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	FromAddress      string
	AccountName      string
	ConfigurationSet string
	DKIM             *DKIMSigner
}

type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	GetAccount(ctx context.Context, in *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error)
}

// SESGate sends raw MIME through SES so headers and DKIM stay under our
// control.
type SESGate struct {
	cfg    SESConfig
	client sesAPI
	now    func() time.Time
}

// NewSESGate loads AWS configuration and builds the client.
func NewSESGate(ctx context.Context, cfg SESConfig) (*SESGate, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("ses: load aws config: %w", err)
	}
	return newSESGate(cfg, sesv2.NewFromConfig(awsCfg)), nil
}

func newSESGate(cfg SESConfig, client sesAPI) *SESGate {
	return &SESGate{cfg: cfg, client: client, now: time.Now}
}

func (g *SESGate) Name() string { return "ses" }

func (g *SESGate) Identity() Identity {
	return Identity{Address: g.cfg.FromAddress, AccountName: g.cfg.AccountName}
}

func (g *SESGate) endpoint() string { return "email." + g.cfg.Region + ".amazonaws.com" }

func (g *SESGate) identityLabel() string {
	if g.cfg.AccessKeyID != "" {
		return "access key " + g.cfg.AccessKeyID
	}
	return "default credentials"
}

// Verify calls GetAccount and requires sending to be enabled.
func (g *SESGate) Verify(ctx context.Context) error {
	out, err := g.client.GetAccount(ctx, &sesv2.GetAccountInput{})
	if err == nil && !out.SendingEnabled {
		err = errors.New("sending is disabled for this account")
	}
	if err != nil {
		return &ConnectError{Provider: "ses", Host: g.endpoint(), Port: 443, Identity: g.identityLabel(), Err: err}
	}
	log.Printf("[SES] Verified account in %s", g.cfg.Region)
	return nil
}

func (g *SESGate) Send(ctx context.Context, msg *Message) (*Receipt, error) {
	raw, err := encodeMIME(msg, g.cfg.DKIM, g.now())
	if err != nil {
		return nil, &SendError{Provider: "ses", Response: err.Error(), Err: err}
	}

	from := msg.EnvelopeFrom
	if from == "" {
		from = g.cfg.FromAddress
	}
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content:          &types.EmailContent{Raw: &types.RawMessage{Data: raw}},
	}
	if g.cfg.ConfigurationSet != "" {
		input.ConfigurationSetName = aws.String(g.cfg.ConfigurationSet)
	}

	out, err := g.client.SendEmail(ctx, input)
	if err != nil {
		log.Printf("[SES] Failed to send to %s: %v", logger.RedactEmail(msg.To), err)
		return nil, sesSendError(err)
	}

	id := aws.ToString(out.MessageId)
	log.Printf("[SES] Sent to %s (id: %s)", logger.RedactEmail(msg.To), id)
	return &Receipt{Provider: "ses", MessageID: msg.ID, ProviderID: id, AcceptedAt: g.now()}, nil
}

func (g *SESGate) Close() error { return nil }

var sesThrottleCodes = map[string]bool{
	"TooManyRequestsException": true,
	"LimitExceededException":   true,
	"ThrottlingException":      true,
	"Throttling":               true,
}

func sesSendError(err error) *SendError {
	se := &SendError{Provider: "ses", Response: err.Error(), Err: err}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		se.HTTPStatus = respErr.HTTPStatusCode()
		se.Code = replyCodeForStatus(se.HTTPStatus)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		se.Response = apiErr.ErrorCode() + ": " + apiErr.ErrorMessage()
		switch {
		case sesThrottleCodes[apiErr.ErrorCode()]:
			se.Code = 421
		case se.Code == 0 && apiErr.ErrorFault() == smithy.FaultServer:
			se.Code = 451
		case se.Code == 0:
			se.Code = 550
		}
	}
	return se
}
