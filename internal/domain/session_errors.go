package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Type    string
	Message string
	Code    string
}

func (e DomainError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// ValidationError represents a validation error
type ValidationError struct {
	DomainError
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		DomainError: DomainError{
			Type:    "VALIDATION_ERROR",
			Message: message,
			Code:    "VALIDATION_FAILED",
		},
	}
}

// BusinessError represents a business rule violation
type BusinessError struct {
	DomainError
}

// NewBusinessError creates a new business error
func NewBusinessError(message string) *BusinessError {
	return &BusinessError{
		DomainError: DomainError{
			Type:    "BUSINESS_ERROR",
			Message: message,
			Code:    "BUSINESS_RULE_VIOLATION",
		},
	}
}

// NotFoundError represents a not found error
type NotFoundError struct {
	DomainError
	Resource string
	ID       string
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{
		DomainError: DomainError{
			Type:    "NOT_FOUND_ERROR",
			Message: fmt.Sprintf("%s with ID '%s' not found", resource, id),
			Code:    "RESOURCE_NOT_FOUND",
		},
		Resource: resource,
		ID:       id,
	}
}

// NotConnectedError is returned when a session exists but holds no live
// connection.
type NotConnectedError struct {
	DomainError
	ID     string
	Status Status
}

// NewNotConnectedError creates a new not connected error
func NewNotConnectedError(id SessionID, status Status) *NotConnectedError {
	return &NotConnectedError{
		DomainError: DomainError{
			Type:    "NOT_CONNECTED_ERROR",
			Message: fmt.Sprintf("session '%s' is not connected (status: %s)", id, status),
			Code:    "SESSION_NOT_CONNECTED",
		},
		ID:     id.String(),
		Status: status,
	}
}

// ConfigError is raised at construction time, before any connection attempt.
type ConfigError struct {
	DomainError
	Field string
}

// NewConfigError creates a new configuration error
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		DomainError: DomainError{
			Type:    "CONFIG_ERROR",
			Message: fmt.Sprintf("%s: %s", field, message),
			Code:    "INVALID_CONFIGURATION",
		},
		Field: field,
	}
}

// Session-specific errors
func ErrSessionNotFound(id SessionID) error {
	return NewNotFoundError("Session", id.String())
}

func ErrSessionNotConnected(id SessionID, status Status) error {
	return NewNotConnectedError(id, status)
}

func ErrCannotConnect(id SessionID, currentStatus Status) error {
	return NewBusinessError(fmt.Sprintf("cannot connect session %s: current status is %s", id, currentStatus))
}

func ErrInvalidStatus(status string) error {
	return NewValidationError(fmt.Sprintf("invalid session status: %s", status))
}
