package certificate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"

	"github.com/svcauth/go-svcauth/core"
)

// SecretAccessor is the subset of the Secret Manager client used here.
type SecretAccessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

// SecretManagerSource reads the service-account JSON from a Google Secret
// Manager secret version on every call.
type SecretManagerSource struct {
	client SecretAccessor
	name   string
}

// NewSecretManagerSource creates a Secret Manager backed Source. name is a
// full secret version resource name, e.g.
// "projects/my-project/secrets/svc-key/versions/latest". A bare
// "projects/p/secrets/s" resolves to its latest version.
func NewSecretManagerSource(ctx context.Context, name string, opts ...option.ClientOption) (*SecretManagerSource, error) {
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}
	return NewSecretManagerSourceWithClient(client, name)
}

// NewSecretManagerSourceWithClient creates a Source over an existing client.
func NewSecretManagerSourceWithClient(client SecretAccessor, name string) (*SecretManagerSource, error) {
	if client == nil {
		return nil, errors.New("secret manager client cannot be nil")
	}
	if !strings.HasPrefix(name, "projects/") || !strings.Contains(name, "/secrets/") {
		return nil, fmt.Errorf("invalid secret resource name %q", name)
	}
	if !strings.Contains(name, "/versions/") {
		name += "/versions/latest"
	}
	return &SecretManagerSource{client: client, name: name}, nil
}

// Certificate fetches and decodes the secret payload.
func (s *SecretManagerSource) Certificate(ctx context.Context) (*Certificate, error) {
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: s.name})
	if err != nil {
		return nil, core.NewError(core.ErrorCodeInvalidCertificate, fmt.Sprintf("could not access secret %s", s.name), err)
	}
	if resp.GetPayload() == nil {
		return nil, core.NewError(core.ErrorCodeInvalidCertificate, fmt.Sprintf("secret %s has no payload", s.name), nil)
	}
	return FromJSON(resp.GetPayload().GetData())
}
