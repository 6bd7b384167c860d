package clientauth

import (
	"errors"
	"net/http"
)

// FlowError classifies an authentication failure.
type FlowError string

const (
	FlowErrorInvalidClientCredentials FlowError = "INVALID_CLIENT_CREDENTIALS"
	FlowErrorClientNotFound           FlowError = "CLIENT_NOT_FOUND"
	FlowErrorClientDisabled           FlowError = "CLIENT_DISABLED"
	FlowErrorCredentialsSetupRequired FlowError = "CLIENT_CREDENTIALS_SETUP_REQUIRED"
	// FlowErrorInternal is recorded for unexpected failures, including
	// providers that return without recording an outcome.
	FlowErrorInternal FlowError = "INTERNAL_ERROR"
)

const invalidClientDescription = "Invalid client or Invalid client credentials"

func (k FlowError) String() string { return string(k) }

// DefaultChallenge is the response used when a failure of kind k carries no
// challenge of its own.
func (k FlowError) DefaultChallenge() *Challenge {
	switch k {
	case FlowErrorInvalidClientCredentials, FlowErrorClientNotFound,
		FlowErrorClientDisabled, FlowErrorCredentialsSetupRequired:
		return NewChallenge(http.StatusUnauthorized, CodeInvalidClient, invalidClientDescription)
	default:
		return NewChallenge(http.StatusInternalServerError, CodeServerError, "Unexpected error when authenticating client")
	}
}

// Error is a classified authentication failure. Providers may return it from
// internal steps and hand it to FlowContext.Fail.
type Error struct {
	Kind      FlowError
	Challenge *Challenge
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the FlowError kind carried by err, or FlowErrorInternal.
func KindOf(err error) FlowError {
	var fe *Error
	if errors.As(err, &fe) && fe.Kind != "" {
		return fe.Kind
	}
	return FlowErrorInternal
}

var (
	// ErrOutcomeRecorded is returned when an outcome is recorded twice.
	ErrOutcomeRecorded = errors.New("clientauth: outcome already recorded")
	// ErrUnknownProvider is returned by Registry.Authenticate for an unregistered ID.
	ErrUnknownProvider = errors.New("clientauth: unknown provider")
	// ErrDuplicateProvider is returned by Registry.Register for an ID already in use.
	ErrDuplicateProvider = errors.New("clientauth: duplicate provider")
)
