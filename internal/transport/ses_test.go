package transport

import (
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	sendErr    error
	accountErr error
	disabled   bool
	inputs     []*sesv2.SendEmailInput
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func (f *fakeSES) GetAccount(context.Context, *sesv2.GetAccountInput, ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error) {
	if f.accountErr != nil {
		return nil, f.accountErr
	}
	return &sesv2.GetAccountOutput{SendingEnabled: !f.disabled}, nil
}

func TestSESGateSendRaw(t *testing.T) {
	api := &fakeSES{}
	g := newSESGate(SESConfig{Region: "eu-west-1", FromAddress: "news@acme.com", ConfigurationSet: "bulk"}, api)

	receipt, err := g.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "ses-1", receipt.ID())

	require.Len(t, api.inputs, 1)
	in := api.inputs[0]
	assert.Equal(t, "news@acme.com", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"bob@x.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "bulk", aws.ToString(in.ConfigurationSetName))
	raw := string(in.Content.Raw.Data)
	assert.True(t, strings.Contains(raw, "Subject: Hi"))
	assert.True(t, strings.Contains(raw, "X-Dispatch-ID: d-1"))
}

func TestSESGateErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"throttled", &smithy.GenericAPIError{Code: "TooManyRequestsException", Message: "Maximum sending rate exceeded."}, 421},
		{"rejected", &smithy.GenericAPIError{Code: "MessageRejected", Message: "Email address is not verified.", Fault: smithy.FaultClient}, 550},
		{"server fault", &smithy.GenericAPIError{Code: "InternalFailure", Message: "oops", Fault: smithy.FaultServer}, 451},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newSESGate(SESConfig{FromAddress: "news@acme.com"}, &fakeSES{sendErr: tt.err})
			_, err := g.Send(context.Background(), testMessage())

			var se *SendError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.code, se.ResponseCode())
			assert.Contains(t, se.Response, tt.err.(*smithy.GenericAPIError).Code)
		})
	}
}

func TestSESGateVerify(t *testing.T) {
	g := newSESGate(SESConfig{Region: "us-east-1", AccessKeyID: "AKIATEST", SecretAccessKey: "topsecret"}, &fakeSES{})
	assert.NoError(t, g.Verify(context.Background()))

	g = newSESGate(SESConfig{Region: "us-east-1", AccessKeyID: "AKIATEST", SecretAccessKey: "topsecret"}, &fakeSES{disabled: true})
	err := g.Verify(context.Background())
	var ce *ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "email.us-east-1.amazonaws.com", ce.Host)
	assert.Contains(t, err.Error(), "AKIATEST")
	assert.NotContains(t, err.Error(), "topsecret")
}
