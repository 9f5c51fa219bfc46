package tls

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTLSError_Error(t *testing.T) {
	tests := []struct {
		name     string
		tlsError *TLSError
		expected string
	}{
		{
			name: "basic error",
			tlsError: &TLSError{
				Type:    ErrorTypeProviderUnavailable,
				Message: "certificate provider is unavailable",
			},
			expected: "[provider_unavailable] | certificate provider is unavailable",
		},
		{
			name: "error with sorted context",
			tlsError: &TLSError{
				Type:    ErrorTypeFileNotFound,
				Message: "file not found",
				Context: map[string]interface{}{
					"file_path": "/etc/tls/cert.pem",
					"attempt":   1,
				},
			},
			expected: "[file_not_found] | file not found | context: attempt=1, file_path=/etc/tls/cert.pem",
		},
		{
			name: "error with context and cause",
			tlsError: &TLSError{
				Type:    ErrorTypeFilePermission,
				Message: "permission denied",
				Context: map[string]interface{}{
					"file_path": "/etc/tls/key.pem",
				},
				Cause: fmt.Errorf("permission denied"),
			},
			expected: "[file_permission] | permission denied | context: file_path=/etc/tls/key.pem | cause: permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.tlsError.Error())
		})
	}
}

func TestTLSError_DetailedMessage(t *testing.T) {
	err := NewFileNotFoundError("/etc/tls/cert.pem")
	detailed := err.GetDetailedMessage()
	assert.Contains(t, detailed, "Suggestions:")
	assert.Contains(t, detailed, "1. Verify the file path is correct")
}

func TestErrorClassification(t *testing.T) {
	notFound := NewFileNotFoundError("/x").withCause(fs.ErrNotExist)
	wrapped := fmt.Errorf("loading: %w", notFound)

	assert.True(t, IsProviderError(wrapped))
	assert.True(t, IsFileSystemError(wrapped))
	assert.False(t, IsHandshakeError(wrapped))
	assert.True(t, errors.Is(wrapped, fs.ErrNotExist))

	watchErr := NewFileWatchingError("/etc/tls", errors.New("too many watches"))
	assert.True(t, IsFileSystemError(watchErr))
	assert.False(t, IsProviderError(watchErr))

	handshake := NewHandshakeFailureError("10.0.0.1:5555", errors.New("bad certificate"))
	assert.True(t, IsHandshakeError(handshake))

	assert.False(t, IsProviderError(errors.New("plain")))
}
