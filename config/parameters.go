package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

var ErrParameterNotFound = errors.New("parameter not found")

// SSMAPI is the subset of the SSM client used by ParameterStore.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ParameterStore reads values from AWS Systems Manager Parameter Store.
type ParameterStore struct {
	client SSMAPI
}

func NewParameterStore(client SSMAPI) *ParameterStore {
	return &ParameterStore{client: client}
}

// LoadAWS builds the shared AWS config for the configured region/profile.
func LoadAWS(ctx context.Context, cfg AWSConfig) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// NewParameterStoreFromConfig wires a ParameterStore to a real SSM client.
func NewParameterStoreFromConfig(awsCfg aws.Config) *ParameterStore {
	return NewParameterStore(ssm.NewFromConfig(awsCfg))
}

func (p *ParameterStore) Get(ctx context.Context, name string, decrypt bool) (string, error) {
	input := &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(decrypt),
	}

	result, err := p.client.GetParameter(ctx, input)
	if err != nil {
		return "", fmt.Errorf("get parameter %s: %w", name, err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("%s: %w", name, ErrParameterNotFound)
	}

	return *result.Parameter.Value, nil
}
