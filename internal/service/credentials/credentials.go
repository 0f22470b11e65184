package credentials

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"BinPull/internal/domain/errs"
	"BinPull/internal/domain/models"
	domrepo "BinPull/internal/domain/repository"
)

// Env resolves tokens from environment variables:
// PREFIX_ACCOUNT_USER first, then PREFIX_ACCOUNT.
type Env struct {
	prefix string
	lookup func(string) (string, bool)
}

func NewEnv(prefix string) *Env {
	return &Env{prefix: prefix, lookup: os.LookupEnv}
}

func (e *Env) Token(_ context.Context, userID string, account models.AccountType) (string, error) {
	base := envKey(e.prefix, string(account))
	for _, k := range []string{envKey(base, userID), base} {
		if v, ok := e.lookup(k); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}
	return "", errs.Newf(errs.ErrAuth, "credentials.env", "no %s token for user %q", account, userID)
}

func envKey(parts ...string) string {
	s := strings.Join(parts, "_")
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, s)
}

// ParameterAPI is the slice of the SSM client used here.
type ParameterAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSM resolves tokens from Parameter Store at PREFIX/USER/account.
type SSM struct {
	prefix string
	api    ParameterAPI
}

func NewSSM(prefix string, api ParameterAPI) *SSM {
	return &SSM{prefix: strings.TrimRight(prefix, "/"), api: api}
}

// NewSSMFromDefault builds the client from the default AWS credential chain.
func NewSSMFromDefault(ctx context.Context, prefix string) (*SSM, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("credentials: load aws config: %w", err)
	}
	return NewSSM(prefix, ssm.NewFromConfig(cfg)), nil
}

func (s *SSM) Token(ctx context.Context, userID string, account models.AccountType) (string, error) {
	name := fmt.Sprintf("%s/%s/%s", s.prefix, userID, strings.ToLower(string(account)))
	out, err := s.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("credentials.ssm: get %s: %w", name, err)
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return "", errs.Newf(errs.ErrAuth, "credentials.ssm", "parameter %s is empty", name)
	}
	return aws.ToString(out.Parameter.Value), nil
}

// Chain tries each provider in order and returns the first token found.
type Chain []domrepo.CredentialProvider

func (c Chain) Token(ctx context.Context, userID string, account models.AccountType) (string, error) {
	var lastErr error
	for _, p := range c {
		tok, err := p.Token(ctx, userID, account)
		if err == nil {
			return tok, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errs.Newf(errs.ErrAuth, "credentials", "no providers configured")
	}
	return "", lastErr
}

// New picks the provider for source: "env", "ssm" or "chain" (SSM, then env).
func New(ctx context.Context, source, envPrefix, ssmPrefix string) (domrepo.CredentialProvider, error) {
	switch source {
	case "", "env":
		return NewEnv(envPrefix), nil
	case "ssm", "chain":
		s, err := NewSSMFromDefault(ctx, ssmPrefix)
		if err != nil {
			return nil, err
		}
		if source == "ssm" {
			return s, nil
		}
		return Chain{s, NewEnv(envPrefix)}, nil
	default:
		return nil, fmt.Errorf("credentials: unknown source %q", source)
	}
}
