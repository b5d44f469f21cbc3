// Package alerts records email risk-alert subscriptions. It is a side
// channel to the broadcast engine and shares no state with it.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"riskfeed/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var (
	ErrInvalidRequest = errors.New("invalid alert request")
	ErrStorage        = errors.New("failed to save subscription")
)

const MsgMissingFields = "Missing required fields: option, email, risk, expiry"

// SESAPI is the subset of the SES client used to verify addresses.
type SESAPI interface {
	GetIdentityVerificationAttributes(ctx context.Context, in *ses.GetIdentityVerificationAttributesInput, optFns ...func(*ses.Options)) (*ses.GetIdentityVerificationAttributesOutput, error)
	VerifyEmailIdentity(ctx context.Context, in *ses.VerifyEmailIdentityInput, optFns ...func(*ses.Options)) (*ses.VerifyEmailIdentityOutput, error)
}

// DynamoAPI is the subset of the DynamoDB client used to persist
// subscriptions.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Risk is the alert threshold. Clients send it either as a JSON string
// ("75") or a number (75); the original form is kept.
type Risk struct {
	Value   string
	Numeric bool
}

func (r *Risk) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = Risk{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = Risk{Value: strings.TrimSpace(s)}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("risk must be a string or number: %w", err)
	}
	*r = Risk{Value: n.String(), Numeric: true}
	return nil
}

func (r Risk) MarshalJSON() ([]byte, error) {
	if r.Numeric {
		return []byte(r.Value), nil
	}
	return json.Marshal(r.Value)
}

func (r Risk) String() string { return r.Value }

// Request is an email alert subscription.
type Request struct {
	Option string `json:"option" validate:"required"`
	Email  string `json:"email" validate:"required,email"`
	Risk   Risk   `json:"risk"`
	Expiry string `json:"expiry" validate:"required"`
}

// Result is returned to the caller after a successful subscription.
type Result struct {
	Status   string `json:"status"`
	Verified bool   `json:"verified"`
	Message  string `json:"message"`
}

type Service struct {
	ses      SESAPI
	dynamo   DynamoAPI
	cfg      config.AlertsConfig
	validate *validator.Validate
	logger   *zap.Logger
}

func NewService(sesClient SESAPI, dynamo DynamoAPI, cfg config.AlertsConfig, logger *zap.Logger) *Service {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Service{
		ses:      sesClient,
		dynamo:   dynamo,
		cfg:      cfg,
		validate: validate,
		logger:   logger.Named("alerts"),
	}
}

// NewServiceFromConfig builds the AWS clients from a loaded aws.Config.
func NewServiceFromConfig(awsCfg aws.Config, cfg config.AlertsConfig, logger *zap.Logger) *Service {
	return NewService(ses.NewFromConfig(awsCfg), dynamodb.NewFromConfig(awsCfg), cfg, logger)
}

// Subscribe validates req, sends an SES verification email unless the
// address is already verified, and stores the subscription.
func (s *Service) Subscribe(ctx context.Context, req Request) (*Result, error) {
	req.Option = strings.TrimSpace(req.Option)
	req.Expiry = strings.TrimSpace(req.Expiry)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := s.check(req); err != nil {
		return nil, err
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	log := s.logger.With(zap.String("email", req.Email), zap.String("option", req.Option))

	status, err := s.verificationStatus(ctx, req.Email)
	if err != nil {
		log.Error("ses verification lookup failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	verified := status == sestypes.VerificationStatusSuccess
	log.Info("ses verification status", zap.String("status", statusLabel(status)))

	if !verified {
		if _, err := s.ses.VerifyEmailIdentity(ctx, &ses.VerifyEmailIdentityInput{
			EmailAddress: aws.String(req.Email),
		}); err != nil {
			log.Error("send verification email failed", zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		log.Info("verification email sent")
	}

	if _, err := s.dynamo.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.cfg.Table),
		Item:      item(req),
	}); err != nil {
		log.Error("put subscription failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	log.Info("subscription saved", zap.String("risk", req.Risk.Value), zap.String("expiry", req.Expiry))

	res := &Result{Status: "ok", Verified: verified}
	if verified {
		res.Message = fmt.Sprintf("Successfully subscribed %s to %s (%s). You will receive alerts when risk exceeds %s.",
			req.Email, req.Option, req.Expiry, req.Risk)
	} else {
		res.Message = fmt.Sprintf("Subscription request received. Please check %s and click the verification link to activate alerts for %s (%s).",
			req.Email, req.Option, req.Expiry)
	}
	return res, nil
}

func (s *Service) check(req Request) error {
	if req.Option == "" || req.Email == "" || req.Risk.Value == "" || req.Expiry == "" {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, MsgMissingFields)
	}
	if err := s.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fmt.Errorf("%w: invalid %s", ErrInvalidRequest, fieldErrs[0].Field())
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

func (s *Service) verificationStatus(ctx context.Context, email string) (sestypes.VerificationStatus, error) {
	out, err := s.ses.GetIdentityVerificationAttributes(ctx, &ses.GetIdentityVerificationAttributesInput{
		Identities: []string{email},
	})
	if err != nil {
		return "", err
	}
	attrs, ok := out.VerificationAttributes[email]
	if !ok {
		return "", nil
	}
	return attrs.VerificationStatus, nil
}

func item(req Request) map[string]ddbtypes.AttributeValue {
	var risk ddbtypes.AttributeValue = &ddbtypes.AttributeValueMemberS{Value: req.Risk.Value}
	if req.Risk.Numeric {
		risk = &ddbtypes.AttributeValueMemberN{Value: req.Risk.Value}
	}
	return map[string]ddbtypes.AttributeValue{
		"Option": &ddbtypes.AttributeValueMemberS{Value: req.Option},
		"Email":  &ddbtypes.AttributeValueMemberS{Value: req.Email},
		"Risk":   risk,
		"Expiry": &ddbtypes.AttributeValueMemberS{Value: req.Expiry},
	}
}

func statusLabel(s sestypes.VerificationStatus) string {
	if s == "" {
		return "NONE"
	}
	return string(s)
}
