// Package certificate supplies service-account credentials to the assertion
// builder. A Source is consulted once per issuance call; nothing here caches
// or persists key material.
package certificate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/svcauth/go-svcauth/core"
)

// Certificate is a service account's signing identity.
type Certificate struct {
	// PrivateKey is the PEM-encoded RSA private key (PKCS#1 or PKCS#8).
	PrivateKey string `json:"private_key"`

	// ClientEmail is the service account's email, used as the assertion issuer.
	ClientEmail string `json:"client_email"`

	// PrivateKeyID is emitted as the kid header of built assertions when set.
	PrivateKeyID string `json:"private_key_id,omitempty"`

	ProjectID string `json:"project_id,omitempty"`
	TokenURI  string `json:"token_uri,omitempty"`
	Type      string `json:"type,omitempty"`
}

// String hides the private key so certificates can be logged safely.
func (c Certificate) String() string {
	return fmt.Sprintf("Certificate{ClientEmail: %q, PrivateKeyID: %q, ProjectID: %q}", c.ClientEmail, c.PrivateKeyID, c.ProjectID)
}

// GoString keeps %#v from printing the private key.
func (c Certificate) GoString() string {
	return c.String()
}

// Source yields the certificate to sign with.
type Source interface {
	Certificate(ctx context.Context) (*Certificate, error)
}

// SourceFunc adapts an ordinary function to the Source interface.
type SourceFunc func(ctx context.Context) (*Certificate, error)

// Certificate calls f(ctx).
func (f SourceFunc) Certificate(ctx context.Context) (*Certificate, error) {
	return f(ctx)
}

// Static returns a Source that always yields cert.
func Static(cert *Certificate) Source {
	return SourceFunc(func(context.Context) (*Certificate, error) {
		if cert == nil {
			return nil, core.NewError(core.ErrorCodeInvalidCertificate, "no certificate configured", nil)
		}
		return cert, nil
	})
}

// FromJSON decodes a service-account JSON document.
func FromJSON(data []byte) (*Certificate, error) {
	var cert Certificate
	if err := json.Unmarshal(data, &cert); err != nil {
		return nil, core.NewError(core.ErrorCodeInvalidCertificate, "could not decode service account JSON", err)
	}
	if cert.PrivateKey == "" {
		return nil, core.NewError(core.ErrorCodeInvalidCertificate, "service account JSON has no private_key", nil)
	}
	if cert.ClientEmail == "" {
		return nil, core.NewError(core.ErrorCodeInvalidCertificate, "service account JSON has no client_email", nil)
	}
	return &cert, nil
}

// FileSource reads a service-account JSON file on every call, so a rotated
// key file is picked up without a restart.
type FileSource struct {
	Path string
}

// NewFileSource returns a Source reading the service-account JSON at path.
func NewFileSource(path string) (*FileSource, error) {
	if path == "" {
		return nil, errors.New("certificate file path cannot be empty")
	}
	return &FileSource{Path: path}, nil
}

// Certificate reads and decodes the file.
func (s *FileSource) Certificate(context.Context) (*Certificate, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, core.NewError(core.ErrorCodeInvalidCertificate, "could not read service account file", err)
	}
	return FromJSON(data)
}

// EnvSource reads a service-account JSON document from an environment variable.
type EnvSource struct {
	Variable string
}

// Certificate decodes the variable's current value.
func (s EnvSource) Certificate(context.Context) (*Certificate, error) {
	value, ok := os.LookupEnv(s.Variable)
	if !ok || value == "" {
		return nil, core.NewError(core.ErrorCodeInvalidCertificate, fmt.Sprintf("environment variable %s is not set", s.Variable), nil)
	}
	return FromJSON([]byte(value))
}
