package tls

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// TLSErrorType represents different categories of TLS errors
type TLSErrorType string

const (
	// Certificate provider errors
	ErrorTypeProviderUnavailable TLSErrorType = "provider_unavailable"
	ErrorTypeCertificateParsing  TLSErrorType = "certificate_parsing"
	ErrorTypeCertificateGenerate TLSErrorType = "certificate_generate"

	// File system errors
	ErrorTypeFileAccess     TLSErrorType = "file_access"
	ErrorTypeFileNotFound   TLSErrorType = "file_not_found"
	ErrorTypeFilePermission TLSErrorType = "file_permission"
	ErrorTypeFileWatching   TLSErrorType = "file_watching"

	// Runtime errors observed on live listeners
	ErrorTypeHandshakeFailure TLSErrorType = "handshake_failure"
)

// TLSError represents a structured TLS error with context
type TLSError struct {
	Type        TLSErrorType
	Message     string
	Cause       error
	Context     map[string]interface{}
	Suggestions []string
}

// Error implements the error interface
func (e *TLSError) Error() string {
	parts := []string{fmt.Sprintf("[%s]", string(e.Type)), e.Message}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for key := range e.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		contextParts := make([]string, 0, len(keys))
		for _, key := range keys {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", key, e.Context[key]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

// Unwrap returns the underlying error for error unwrapping
func (e *TLSError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *TLSError) WithContext(key string, value interface{}) *TLSError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for resolving the error
func (e *TLSError) WithSuggestion(suggestion string) *TLSError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

func (e *TLSError) withCause(cause error) *TLSError {
	e.Cause = cause
	return e
}

// GetDetailedMessage returns a detailed error message with suggestions
func (e *TLSError) GetDetailedMessage() string {
	message := e.Error()

	if len(e.Suggestions) > 0 {
		message += "\n\nSuggestions:"
		for i, suggestion := range e.Suggestions {
			message += fmt.Sprintf("\n  %d. %s", i+1, suggestion)
		}
	}

	return message
}

// NewTLSError creates a new TLS error with the specified type and message
func NewTLSError(errorType TLSErrorType, message string) *TLSError {
	return &TLSError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewTLSErrorWithCause creates a new TLS error with an underlying cause
func NewTLSErrorWithCause(errorType TLSErrorType, message string, cause error) *TLSError {
	return &TLSError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Certificate provider error constructors
func NewProviderUnavailableError(provider string, cause error) *TLSError {
	return NewTLSErrorWithCause(ErrorTypeProviderUnavailable, "certificate provider is unavailable", cause).
		WithContext("provider", provider).
		WithSuggestion("Check that the certificate provider is configured").
		WithSuggestion("Set TLS_DIR or pass explicit certificate material")
}

func NewCertificateParsingError(source string, cause error) *TLSError {
	return NewTLSErrorWithCause(ErrorTypeCertificateParsing, "failed to parse certificate material", cause).
		WithContext("source", source).
		WithSuggestion("Ensure the material is PEM encoded")
}

func NewCertificateGenerateError(commonName string, cause error) *TLSError {
	return NewTLSErrorWithCause(ErrorTypeCertificateGenerate, "failed to generate self-signed certificate", cause).
		WithContext("common_name", commonName)
}

// File system error constructors
func NewFileNotFoundError(filePath string) *TLSError {
	return NewTLSError(ErrorTypeFileNotFound, fmt.Sprintf("file not found: %s", filePath)).
		WithContext("file_path", filePath).
		WithSuggestion("Verify the file path is correct").
		WithSuggestion("Check that the file exists at the specified location")
}

func NewFilePermissionError(filePath string, operation string) *TLSError {
	return NewTLSError(ErrorTypeFilePermission, fmt.Sprintf("permission denied for %s operation on file: %s", operation, filePath)).
		WithContext("file_path", filePath).
		WithContext("operation", operation).
		WithSuggestion("Check file permissions (should be readable by the process)").
		WithSuggestion("For private keys, ensure permissions are restrictive (e.g., 600)")
}

func NewFileWatchingError(path string, cause error) *TLSError {
	return NewTLSErrorWithCause(ErrorTypeFileWatching, "failed to watch certificate directory", cause).
		WithContext("path", path)
}

// NewHandshakeFailureError wraps a client handshake failure seen on a live listener.
func NewHandshakeFailureError(remoteAddr string, cause error) *TLSError {
	return NewTLSErrorWithCause(ErrorTypeHandshakeFailure, "TLS handshake with client failed", cause).
		WithContext("remote_addr", remoteAddr)
}

// Error classification helpers
func IsProviderError(err error) bool {
	var tlsErr *TLSError
	if !errors.As(err, &tlsErr) {
		return false
	}
	switch tlsErr.Type {
	case ErrorTypeProviderUnavailable, ErrorTypeCertificateParsing,
		ErrorTypeCertificateGenerate, ErrorTypeFileAccess, ErrorTypeFileNotFound, ErrorTypeFilePermission:
		return true
	}
	return false
}

func IsFileSystemError(err error) bool {
	var tlsErr *TLSError
	if !errors.As(err, &tlsErr) {
		return false
	}
	switch tlsErr.Type {
	case ErrorTypeFileAccess, ErrorTypeFileNotFound, ErrorTypeFilePermission, ErrorTypeFileWatching:
		return true
	}
	return false
}

func IsHandshakeError(err error) bool {
	var tlsErr *TLSError
	return errors.As(err, &tlsErr) && tlsErr.Type == ErrorTypeHandshakeFailure
}
