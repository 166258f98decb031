package errs

import (
	"fmt"
	"strings"
)

type ErrorMessage struct {
	Message string
}

func (e *ErrorMessage) Error() string { return e.Message }

type NotFoundError struct {
	ErrorMessage
}

type ValidationError struct {
	ErrorMessage
}

// ConfigurationError means the chat settings are incomplete; the console
// answers with a setup prompt instead of a transcript entry.
type ConfigurationError struct {
	ErrorMessage
	Missing []string
}

// BusyError is returned when a session already has a turn in flight.
type BusyError struct {
	ErrorMessage
}

type ExternalServiceError struct {
	ErrorMessage
	Service    string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

func NewNotFoundError(message string) *NotFoundError {
	return &NotFoundError{
		ErrorMessage: ErrorMessage{Message: message},
	}
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		ErrorMessage: ErrorMessage{Message: message},
	}
}

func NewConfigurationError(missing []string) *ConfigurationError {
	return &ConfigurationError{
		ErrorMessage: ErrorMessage{Message: "chat settings incomplete: missing " + strings.Join(missing, ", ")},
		Missing:      missing,
	}
}

func NewBusyError(sessionID string) *BusyError {
	return &BusyError{
		ErrorMessage: ErrorMessage{Message: fmt.Sprintf("session %s is already processing a message", sessionID)},
	}
}

// NewExternalServiceError describes a failed call to a remote dependency.
// 5xx and 429 responses and transport failures (status 0) are transient.
func NewExternalServiceError(service string, status int, err error) *ExternalServiceError {
	msg := fmt.Sprintf("%s request failed", service)
	if status > 0 {
		msg = fmt.Sprintf("%s returned status %d", service, status)
	}
	if err != nil {
		msg += ": " + err.Error()
	}
	return &ExternalServiceError{
		ErrorMessage: ErrorMessage{Message: msg},
		Service:      service,
		StatusCode:   status,
		Transient:    status == 0 || status == 429 || status >= 500,
		Err:          err,
	}
}
