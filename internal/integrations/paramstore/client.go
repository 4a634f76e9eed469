// Package paramstore reads the relay's credentials from AWS SSM Parameter
// Store. Every credential lives under one hierarchy prefix.
package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Credential keys under the parameter prefix.
const (
	KeyOpenAIToken     = "open-ai-token"
	KeyPageAccessToken = "page-access-token"
	KeyVerifyToken     = "verify-token"
)

type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter returns a decrypted parameter value by full name.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Client is a Getter backed by SSM. *ssm.Client satisfies its api.
type Client struct {
	api ssmAPI
}

func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

// GetParameter always requests decryption; the relay only stores
// SecureStrings.
func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c == nil || c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: parameter name is required")
	}

	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: boolPtr(true),
	})
	switch {
	case err != nil:
		return "", fmt.Errorf("paramstore: get %q: %w", name, err)
	case out == nil || out.Parameter == nil || out.Parameter.Value == nil:
		return "", fmt.Errorf("paramstore: parameter %q missing value", name)
	}
	return *out.Parameter.Value, nil
}

// Path joins a hierarchy prefix and a credential key.
func Path(prefix, key string) string {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	return prefix + "/" + strings.TrimLeft(strings.TrimSpace(key), "/")
}

func boolPtr(b bool) *bool { return &b }
