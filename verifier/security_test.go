package verifier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTokenFormat(t *testing.T) {
	tests := []struct {
		name      string
		token     string
		expectErr error
	}{
		{
			name:  "compact JWS (2 dots)",
			token: "eyJhbGciOiJSUzI1NiJ9.eyJzdWIiOiIxMjM0NTY3ODkwIn0.signature",
		},
		{
			name:      "JWE shaped token (4 dots)",
			token:     "header.encrypted_key.iv.ciphertext.tag",
			expectErr: ErrTokenSegments,
		},
		{
			name:      "many dots",
			token:     strings.Repeat("a.", 100) + "z",
			expectErr: ErrTokenSegments,
		},
		{
			name:      "only dots",
			token:     strings.Repeat(".", 10000),
			expectErr: ErrTokenSegments,
		},
		{
			name:      "empty signature segment",
			token:     "header.payload.",
			expectErr: ErrTokenSegments,
		},
		{
			name:      "empty header segment",
			token:     ".payload.signature",
			expectErr: ErrTokenSegments,
		},
		{
			name:      "empty token",
			token:     "",
			expectErr: ErrTokenEmpty,
		},
		{
			name:      "token exceeds 1MB",
			token:     strings.Repeat("a", 1024*1024+1),
			expectErr: ErrTokenTooLarge,
		},
		{
			name:  "token exactly 1MB (allowed)",
			token: "header." + strings.Repeat("a", 1024*1024-11) + ".sig",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTokenFormat(tt.token)
			if tt.expectErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.expectErr)
		})
	}
}
