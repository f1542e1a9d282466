package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	json "github.com/json-iterator/go"
)

// ErrorKind separates transport failures from HTTP status failures
type ErrorKind string

const (
	KindNetwork ErrorKind = "network"
	KindHTTP    ErrorKind = "http"
)

// APIError is the status-code-plus-message value every failed call yields.
// Network failures carry StatusCode 0.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Cause      error
}

func (e *APIError) Error() string {
	if e.Kind == KindNetwork {
		return fmt.Sprintf("network error: %s", e.Message)
	}
	return fmt.Sprintf("[%d] %s", e.StatusCode, e.Message)
}

// Unwrap returns the underlying transport error, if any
func (e *APIError) Unwrap() error {
	return e.Cause
}

// errorBody is the JSON error shape the server may send
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// ParseError builds an APIError from a non-2xx response
func ParseError(resp *resty.Response) *APIError {
	statusCode := resp.StatusCode()
	apiErr := &APIError{Kind: KindHTTP, StatusCode: statusCode}

	var body errorBody
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		switch {
		case body.Message != "":
			apiErr.Message = body.Message
			return apiErr
		case body.Error != "":
			apiErr.Message = body.Error
			return apiErr
		}
	}

	if len(resp.Body()) > 0 {
		apiErr.Message = string(resp.Body())
	} else {
		apiErr.Message = http.StatusText(statusCode)
	}
	return apiErr
}

// NetworkError wraps a transport-level failure
func NetworkError(err error) *APIError {
	return &APIError{
		Kind:    KindNetwork,
		Message: err.Error(),
		Cause:   err,
	}
}

// AsAPIError extracts an APIError from err
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsNetwork checks if error is a transport failure
func IsNetwork(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Kind == KindNetwork
}

// IsNotFound checks if error is due to resource not found
func IsNotFound(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// IsForbidden checks if error is due to insufficient permissions
func IsForbidden(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.StatusCode == http.StatusForbidden
}

// IsServerError checks if error is due to server error (5xx)
func IsServerError(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.StatusCode >= 500
}
