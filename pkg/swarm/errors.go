package swarm

import (
	"errors"
	"fmt"
)

// Error is a classified swarmkit error. Validation errors come from
// constructors, integrity errors from explicit validity checks, not-found
// from lookups that came back empty, and precondition errors from
// programmer mistakes such as signing with the wrong key.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hash    *Hash  `json:"hash,omitempty"`
	Cause   error  `json:"-"`
}

// Error codes
const (
	ErrCodeValidation   = "VALIDATION"
	ErrCodeIntegrity    = "INTEGRITY"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodePrecondition = "PRECONDITION"
)

var (
	// ErrNotFound matches every not-found *Error through errors.Is
	ErrNotFound = errors.New("not found")

	// ErrInvalidChunk matches every integrity *Error through errors.Is
	ErrInvalidChunk = errors.New("invalid chunk")
)

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("swarm error %s: %s", e.Code, e.Message)
	if e.Hash != nil {
		msg = fmt.Sprintf("%s (hash: %s)", msg, e.Hash)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is maps codes onto the package sentinels
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == ErrCodeNotFound
	case ErrInvalidChunk:
		return e.Code == ErrCodeIntegrity
	}
	return false
}

// NewValidationError reports a malformed fixed-size field, length or encoding
func NewValidationError(message string, cause error) *Error {
	return &Error{Code: ErrCodeValidation, Message: message, Cause: cause}
}

// NewIntegrityError reports bytes that do not hash or verify to what they claim
func NewIntegrityError(message string, hash *Hash, cause error) *Error {
	return &Error{Code: ErrCodeIntegrity, Message: message, Hash: hash, Cause: cause}
}

// NewNotFoundError reports that nothing is stored or present
func NewNotFoundError(message string, hash *Hash) *Error {
	return &Error{Code: ErrCodeNotFound, Message: message, Hash: hash}
}

// NewPreconditionError reports a caller contract violation
func NewPreconditionError(message string, cause error) *Error {
	return &Error{Code: ErrCodePrecondition, Message: message, Cause: cause}
}

func hasCode(err error, code string) bool {
	var swarmErr *Error
	if errors.As(err, &swarmErr) {
		return swarmErr.Code == code
	}
	return false
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

// IsIntegrityError checks if an error is an integrity error
func IsIntegrityError(err error) bool {
	return hasCode(err, ErrCodeIntegrity)
}

// IsNotFoundError checks if an error is a not-found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsPreconditionError checks if an error is a precondition violation
func IsPreconditionError(err error) bool {
	return hasCode(err, ErrCodePrecondition)
}
