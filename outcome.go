package clientauth

import (
	"encoding/json"
	"net/http"
)

// OAuth 2.0 error codes used by client authentication.
const (
	CodeInvalidClient  = "invalid_client"
	CodeInvalidRequest = "invalid_request"
	CodeServerError    = "server_error"
)

// Status is the coarse result of an authentication attempt.
type Status int

const (
	StatusUnset Status = iota
	StatusSuccess
	StatusChallenge
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusChallenge:
		return "challenge"
	case StatusFailure:
		return "failure"
	default:
		return "unset"
	}
}

// Challenge is an error response returned to the client, rendered as the
// RFC 6749 §5.2 JSON error body.
type Challenge struct {
	Status      int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// NewChallenge builds a Challenge.
func NewChallenge(status int, code, description string) *Challenge {
	return &Challenge{Status: status, Code: code, Description: description}
}

// InvalidClient builds a 400 invalid_client challenge.
func InvalidClient(description string) *Challenge {
	return NewChallenge(http.StatusBadRequest, CodeInvalidClient, description)
}

// WriteHTTP writes c as a JSON error response.
func (c *Challenge) WriteHTTP(w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	status := c.Status
	if status == 0 {
		status = http.StatusBadRequest
	}
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(c)
}

// Outcome is the recorded result of an authentication attempt.
type Outcome struct {
	Status Status
	// Error is set for StatusFailure.
	Error FlowError
	// Challenge is the response attached by the provider, if any.
	Challenge *Challenge
}

// Response returns the error response to send for o: the attached challenge,
// or the default challenge of the failure kind. It is nil for successes and
// unset outcomes.
func (o Outcome) Response() *Challenge {
	switch o.Status {
	case StatusChallenge:
		return o.Challenge
	case StatusFailure:
		if o.Challenge != nil {
			return o.Challenge
		}
		return o.Error.DefaultChallenge()
	default:
		return nil
	}
}
