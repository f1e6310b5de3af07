package sender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/campuslink/notifier/internal/config"
	"github.com/campuslink/notifier/internal/domain"
	"github.com/campuslink/notifier/internal/pkg/logger"
)

var log = logger.New("sender")

// sesAPI is the slice of the SESv2 client the sender uses. Tests inject a
// fake implementation.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	GetEmailTemplate(ctx context.Context, params *sesv2.GetEmailTemplateInput, optFns ...func(*sesv2.Options)) (*sesv2.GetEmailTemplateOutput, error)
}

// SESSender delivers rendered messages through AWS SESv2. One message per
// call; SES has no true bulk endpoint, fan-out belongs to the dispatcher.
type SESSender struct {
	client          sesAPI
	fromAddress     string
	fromName        string
	configSet       string
	environment     string
	timeout         time.Duration
	nativeTemplates bool
}

// NewSESSender builds a sender from config. Static credentials take
// precedence; without them the default AWS credential chain applies.
func NewSESSender(cfg config.SESConfig, notify config.NotifyConfig) (*SESSender, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &SESSender{
		client:          sesv2.NewFromConfig(awsCfg),
		fromAddress:     notify.FromAddress,
		fromName:        notify.FromName,
		configSet:       cfg.ConfigurationSet,
		environment:     notify.Environment,
		timeout:         cfg.Timeout(),
		nativeTemplates: cfg.NativeTemplates,
	}, nil
}

// NewSESSenderWithClient injects an SES client. Used by tests.
func NewSESSenderWithClient(client sesAPI, fromAddress, fromName, configSet, environment string, timeout time.Duration) *SESSender {
	return &SESSender{
		client:      client,
		fromAddress: fromAddress,
		fromName:    fromName,
		configSet:   configSet,
		environment: environment,
		timeout:     timeout,
	}
}

// UseNativeTemplates switches delivery to SES server-side templating.
// The template must be provisioned in SES under the same name.
func (s *SESSender) UseNativeTemplates(enabled bool) {
	s.nativeTemplates = enabled
}

// VerifyTemplate checks that a template exists in SES. Used at startup
// when native templating is enabled.
func (s *SESSender) VerifyTemplate(ctx context.Context, name string) error {
	_, err := s.client.GetEmailTemplate(ctx, &sesv2.GetEmailTemplateInput{
		TemplateName: aws.String(name),
	})
	if err != nil {
		return classify("", err)
	}
	return nil
}

// Send delivers one rendered message to one recipient and returns the
// provider message ID. Failures come back as *TransportError.
func (s *SESSender) Send(ctx context.Context, recipient string, msg *domain.RenderedMessage, priority domain.Priority) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress)),
		Destination:      &types.Destination{ToAddresses: []string{recipient}},
		Content:          s.content(msg),
		EmailTags: []types.MessageTag{
			{Name: aws.String("message_id"), Value: aws.String(msg.MessageID)},
			{Name: aws.String("environment"), Value: aws.String(s.environment)},
			{Name: aws.String("priority"), Value: aws.String(string(priority))},
		},
	}
	if s.configSet != "" {
		input.ConfigurationSetName = aws.String(s.configSet)
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		terr := classify(recipient, err)
		log.Warn("SES send failed",
			"recipient", recipient,
			"message_id", msg.MessageID,
			"code", terr.Code,
			"retryable", terr.Retryable)
		return "", terr
	}

	providerID := ""
	if result.MessageId != nil {
		providerID = *result.MessageId
	}
	log.Debug("SES send accepted",
		"recipient", recipient,
		"message_id", msg.MessageID,
		"provider_id", providerID)
	return providerID, nil
}

// content picks the delivery mode. With native templating on and a
// template name present, SES renders server-side from the request's
// variables; otherwise the locally rendered bodies go out as Simple
// content.
func (s *SESSender) content(msg *domain.RenderedMessage) *types.EmailContent {
	if s.nativeTemplates && msg.TemplateID != "" {
		data, err := json.Marshal(msg.TemplateData)
		if err != nil {
			data = []byte("{}")
		}
		return &types.EmailContent{
			Template: &types.Template{
				TemplateName: aws.String(msg.TemplateID),
				TemplateData: aws.String(string(data)),
			},
		}
	}

	body := &types.Body{
		Html: &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")},
	}
	if msg.TextBody != "" {
		body.Text = &types.Content{Data: aws.String(msg.TextBody), Charset: aws.String("UTF-8")}
	}
	return &types.EmailContent{
		Simple: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body:    body,
		},
	}
}

// classify maps SESv2 error types to a TransportError with a stable code.
func classify(recipient string, err error) *TransportError {
	var (
		tooMany   *types.TooManyRequestsException
		limit     *types.LimitExceededException
		rejected  *types.MessageRejected
		badReq    *types.BadRequestException
		suspended *types.AccountSuspendedException
		paused    *types.SendingPausedException
		notFound  *types.NotFoundException
	)
	switch {
	case errors.As(err, &tooMany):
		return &TransportError{Code: "throttled", Recipient: recipient, Retryable: true, Err: err}
	case errors.As(err, &limit):
		return &TransportError{Code: "limit_exceeded", Recipient: recipient, Retryable: true, Err: err}
	case errors.As(err, &rejected):
		return &TransportError{Code: "message_rejected", Recipient: recipient, Err: err}
	case errors.As(err, &badReq):
		return &TransportError{Code: "bad_request", Recipient: recipient, Err: err}
	case errors.As(err, &suspended):
		return &TransportError{Code: "account_suspended", Recipient: recipient, Err: err}
	case errors.As(err, &paused):
		return &TransportError{Code: "sending_paused", Recipient: recipient, Err: err}
	case errors.As(err, &notFound):
		return &TransportError{Code: "not_found", Recipient: recipient, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &TransportError{Code: "timeout", Recipient: recipient, Retryable: true, Err: err}
	default:
		return &TransportError{Code: "transport_error", Recipient: recipient, Err: err}
	}
}
