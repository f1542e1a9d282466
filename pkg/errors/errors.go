package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/zfogg/photostream/cli/pkg/api"
	"github.com/zfogg/photostream/cli/pkg/client"
	"github.com/zfogg/photostream/cli/pkg/images"
	"github.com/zfogg/photostream/cli/pkg/photostream"
	"github.com/zfogg/photostream/cli/pkg/socket"
	"github.com/zfogg/photostream/cli/pkg/store"
)

// ErrorType categorizes different error types
type ErrorType string

const (
	// Network errors
	ErrorTypeNetwork ErrorType = "network"
	ErrorTypeTimeout ErrorType = "timeout"
	ErrorTypeSocket  ErrorType = "socket"

	// Permission errors
	ErrorTypeForbidden ErrorType = "forbidden"

	// Validation errors
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeFileNotFound  ErrorType = "file_not_found"
	ErrorTypeInvalidFormat ErrorType = "invalid_format"

	// Server errors
	ErrorTypeHTTP      ErrorType = "http"
	ErrorTypeServer    ErrorType = "server"
	ErrorTypeNotFound  ErrorType = "not_found"
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// Local cache errors
	ErrorTypeCache ErrorType = "cache"

	ErrorTypeUnknown ErrorType = "unknown"
)

// CLIError represents a structured error with context
type CLIError struct {
	Type       ErrorType
	Message    string
	Cause      error
	Suggestion string
	StatusCode int
	RetryAfter int
}

// Error implements the error interface
func (e *CLIError) Error() string {
	return e.Message
}

// WithSuggestion adds a helpful suggestion to the error
func (e *CLIError) WithSuggestion(suggestion string) *CLIError {
	e.Suggestion = suggestion
	return e
}

// HasSuggestion returns true if the error has a suggestion
func (e *CLIError) HasSuggestion() bool {
	return e.Suggestion != ""
}

// Unwrap returns the underlying error
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// NewCLIError creates a new CLI error
func NewCLIError(errorType ErrorType, message string, cause error) *CLIError {
	return &CLIError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NetworkError creates a network error
func NetworkError(message string) *CLIError {
	err := NewCLIError(ErrorTypeNetwork, message, nil)
	err.Suggestion = "Check that the server at api.base_url is reachable and try again."
	return err
}

// TimeoutError creates a timeout error
func TimeoutError() *CLIError {
	err := NewCLIError(ErrorTypeTimeout, "Request timed out", nil)
	err.Suggestion = "The server is taking too long to respond. Try again in a moment."
	return err
}

// SocketError creates a realtime connection error
func SocketError(message string) *CLIError {
	err := NewCLIError(ErrorTypeSocket, message, nil)
	err.Suggestion = "Check socket.url and socket.reconnect_attempts in your config."
	return err
}

// ForbiddenError creates a forbidden error
func ForbiddenError(message string) *CLIError {
	if message == "" {
		message = "Access denied"
	}
	err := NewCLIError(ErrorTypeForbidden, message, nil)
	err.StatusCode = http.StatusForbidden
	err.Suggestion = "Only the installation that created a photo or comment can delete it."
	return err
}

// ValidationError creates a validation error
func ValidationError(field, reason string) *CLIError {
	message := fmt.Sprintf("Validation error: %s - %s", field, reason)
	return NewCLIError(ErrorTypeValidation, message, nil)
}

// FileNotFoundError creates a file not found error
func FileNotFoundError(path string) *CLIError {
	err := NewCLIError(ErrorTypeFileNotFound, fmt.Sprintf("File not found: %s", path), nil)
	err.Suggestion = "Check the file path and try again."
	return err
}

// ImageFormatError is returned for uploads that are not images
func ImageFormatError(path string) *CLIError {
	err := NewCLIError(ErrorTypeInvalidFormat, fmt.Sprintf("Not a supported image: %s", path), nil)
	err.Suggestion = "Upload a JPEG, PNG, GIF, WebP or BMP file."
	return err
}

// HTTPError creates an error for an unexpected status code
func HTTPError(statusCode int, message string) *CLIError {
	err := NewCLIError(ErrorTypeHTTP, fmt.Sprintf("[%d] %s", statusCode, message), nil)
	err.StatusCode = statusCode
	return err
}

// ServerError creates a server error
func ServerError(statusCode int, message string) *CLIError {
	if message == "" {
		message = "Server error"
	}
	err := NewCLIError(ErrorTypeServer, message, nil)
	err.StatusCode = statusCode
	err.Suggestion = "The server encountered an error. Try again in a few moments."
	return err
}

// NotFoundError creates a not found error
func NotFoundError(resourceType, identifier string) *CLIError {
	err := NewCLIError(ErrorTypeNotFound,
		fmt.Sprintf("%s not found: %s", resourceType, identifier),
		nil)
	err.StatusCode = http.StatusNotFound
	return err
}

// RateLimitError creates a rate limit error
func RateLimitError(retryAfter int) *CLIError {
	err := NewCLIError(ErrorTypeRateLimit,
		"Rate limit exceeded. Too many requests.",
		nil)
	err.StatusCode = http.StatusTooManyRequests
	err.RetryAfter = retryAfter
	err.Suggestion = fmt.Sprintf("Please wait %d seconds before trying again.", retryAfter)
	return err
}

// CacheError creates an error for the local database or image directory
func CacheError(message string) *CLIError {
	err := NewCLIError(ErrorTypeCache, message, nil)
	err.Suggestion = "Run 'photostream-cli cache clear' to reset the local cache."
	return err
}

func fromAPIError(apiErr *client.APIError) *CLIError {
	var cliErr *CLIError
	switch {
	case apiErr.Kind == client.KindNetwork:
		if errors.Is(apiErr.Cause, context.DeadlineExceeded) || strings.Contains(apiErr.Message, "timeout") {
			cliErr = TimeoutError()
		} else {
			cliErr = NetworkError(apiErr.Message)
		}
	case apiErr.StatusCode == http.StatusForbidden:
		cliErr = ForbiddenError(apiErr.Message)
	case apiErr.StatusCode == http.StatusNotFound:
		cliErr = NotFoundError("Resource", apiErr.Message)
	case apiErr.StatusCode == http.StatusTooManyRequests:
		cliErr = RateLimitError(60)
	case apiErr.StatusCode >= 500:
		cliErr = ServerError(apiErr.StatusCode, apiErr.Message)
	default:
		cliErr = HTTPError(apiErr.StatusCode, apiErr.Message)
	}
	cliErr.Cause = apiErr
	return cliErr
}

// CategorizeError converts a standard error into a CLIError
func CategorizeError(err error) *CLIError {
	if err == nil {
		return nil
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr
	}

	if apiErr, ok := client.AsAPIError(err); ok {
		return fromAPIError(apiErr)
	}

	var categorized *CLIError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		categorized = TimeoutError()
	case errors.Is(err, api.ErrInvalidInput):
		categorized = NewCLIError(ErrorTypeValidation, err.Error(), nil)
	case errors.Is(err, images.ErrNotImage):
		categorized = NewCLIError(ErrorTypeInvalidFormat, err.Error(), nil)
		categorized.Suggestion = "Upload a JPEG, PNG, GIF, WebP or BMP file."
	case errors.Is(err, os.ErrNotExist):
		categorized = NewCLIError(ErrorTypeFileNotFound, err.Error(), nil)
		categorized.Suggestion = "Check the file path and try again."
	case errors.Is(err, store.ErrClosed), errors.Is(err, photostream.ErrClosed):
		categorized = CacheError(err.Error())
	case errors.Is(err, socket.ErrReconnectExhausted), errors.Is(err, socket.ErrNotConnected),
		errors.Is(err, photostream.ErrNoSocket):
		categorized = SocketError(err.Error())
	default:
		return NewCLIError(ErrorTypeUnknown, err.Error(), err)
	}
	categorized.Cause = err
	return categorized
}

// FormatError returns a user-friendly error message
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	cliErr := CategorizeError(err)
	var sb strings.Builder

	sb.WriteString("Error")
	if cliErr.Type != ErrorTypeUnknown {
		sb.WriteString(" (")
		sb.WriteString(string(cliErr.Type))
		sb.WriteString(")")
	}
	sb.WriteString(": ")
	sb.WriteString(cliErr.Message)
	sb.WriteString("\n")

	if cliErr.HasSuggestion() {
		sb.WriteString("\nSuggestion: ")
		sb.WriteString(cliErr.Suggestion)
		sb.WriteString("\n")
	}

	if cliErr.Type == ErrorTypeRateLimit && cliErr.RetryAfter > 0 {
		sb.WriteString(fmt.Sprintf("\nRetry in: %d seconds\n", cliErr.RetryAfter))
	}

	return sb.String()
}
