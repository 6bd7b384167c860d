package clientauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/clientauth-go/clients"
	"github.com/ggoodman/clientauth-go/internal/logctx"
	"github.com/google/uuid"
)

var formMediaType = contenttype.NewMediaType("application/x-www-form-urlencoded")

// FlowConfig describes a client authentication attempt independent of any
// transport. NewFlowContext derives one from an *http.Request.
type FlowConfig struct {
	Realm string
	// BaseURI is the server base URI the realm URLs are resolved against.
	BaseURI *url.URL
	// Form holds the decoded form parameters.
	Form url.Values
	// FormEncoded reports whether the request body was form encoded.
	FormEncoded bool
	// RequestID defaults to a random UUID.
	RequestID string
	// Events defaults to NopEvents.
	Events EventSink
}

// FlowContext is the request-scoped state of one authentication attempt.
// Exactly one outcome may be recorded on it.
type FlowContext struct {
	realm       string
	baseURI     url.URL
	form        url.Values
	formEncoded bool
	requestID   string
	events      EventSink
	attempt     *logctx.Attempt

	mu      sync.Mutex
	client  *clients.Client
	outcome Outcome
}

// NewFlow builds a FlowContext from cfg.
func NewFlow(cfg FlowConfig) *FlowContext {
	fc := &FlowContext{
		realm:       cfg.Realm,
		form:        cfg.Form,
		formEncoded: cfg.FormEncoded,
		requestID:   cfg.RequestID,
		events:      cfg.Events,
	}
	if cfg.BaseURI != nil {
		fc.baseURI = *cfg.BaseURI
	}
	if fc.form == nil {
		fc.form = url.Values{}
	}
	if fc.requestID == "" {
		fc.requestID = uuid.NewString()
	}
	if fc.events == nil {
		fc.events = NopEvents{}
	}
	fc.attempt = &logctx.Attempt{RequestID: fc.requestID, Realm: fc.realm}
	return fc
}

// FlowContextOption customizes NewFlowContext.
type FlowContextOption func(*FlowConfig)

// WithBaseURI overrides the base URI derived from the request.
func WithBaseURI(u *url.URL) FlowContextOption {
	return func(c *FlowConfig) { c.BaseURI = u }
}

// WithRequestID sets the request ID instead of generating one.
func WithRequestID(id string) FlowContextOption {
	return func(c *FlowConfig) { c.RequestID = id }
}

// WithEvents sets the event sink for the attempt.
func WithEvents(sink EventSink) FlowContextOption {
	return func(c *FlowConfig) { c.Events = sink }
}

// NewFlowContext builds a FlowContext for a token endpoint request. The body
// is parsed only when the request is application/x-www-form-urlencoded.
func NewFlowContext(r *http.Request, realm string, opts ...FlowContextOption) (*FlowContext, error) {
	cfg := FlowConfig{Realm: realm, BaseURI: RequestBaseURI(r)}
	for _, opt := range opts {
		opt(&cfg)
	}

	if mt, err := contenttype.GetMediaType(r); err == nil && mt.Matches(formMediaType) {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("clientauth: parse form: %w", err)
		}
		cfg.FormEncoded = true
		cfg.Form = r.PostForm
	}

	return NewFlow(cfg), nil
}

// RequestBaseURI derives the server base URI from r's host and scheme,
// honoring X-Forwarded-Proto.
func RequestBaseURI(r *http.Request) *url.URL {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	return &url.URL{Scheme: scheme, Host: r.Host, Path: "/"}
}

// Realm returns the realm name.
func (fc *FlowContext) Realm() string { return fc.realm }

// BaseURI returns a copy of the base URI.
func (fc *FlowContext) BaseURI() *url.URL {
	u := fc.baseURI
	return &u
}

// FormEncoded reports whether the request carried a form-encoded body.
func (fc *FlowContext) FormEncoded() bool { return fc.formEncoded }

// Param returns the first value of the named form parameter and whether it
// was present at all.
func (fc *FlowContext) Param(name string) (string, bool) {
	if !fc.form.Has(name) {
		return "", false
	}
	return fc.form.Get(name), true
}

// RequestID returns the attempt's request ID.
func (fc *FlowContext) RequestID() string { return fc.requestID }

// Events returns the attempt's event sink.
func (fc *FlowContext) Events() EventSink { return fc.events }

// LogContext returns ctx decorated with the attempt's identifiers for
// loggers built on internal/logctx.
func (fc *FlowContext) LogContext(ctx context.Context) context.Context {
	if logctx.AttemptFrom(ctx) == fc.attempt {
		return ctx
	}
	return logctx.WithAttempt(ctx, fc.attempt)
}

// SetClient records the resolved client.
func (fc *FlowContext) SetClient(c *clients.Client) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.client = c
	if c != nil {
		fc.attempt.ClientID = c.ClientID
	}
}

// Client returns the resolved client, or nil before it is known.
func (fc *FlowContext) Client() *clients.Client {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.client
}

// Success records a successful authentication.
func (fc *FlowContext) Success() error {
	return fc.record(Outcome{Status: StatusSuccess})
}

// Challenge records that the client must retry with corrected input. A nil
// challenge is replaced by the default invalid_client response.
func (fc *FlowContext) Challenge(c *Challenge) error {
	if c == nil {
		c = FlowErrorInvalidClientCredentials.DefaultChallenge()
	}
	return fc.record(Outcome{Status: StatusChallenge, Challenge: c})
}

// Failure records a failure of the given kind. c may be nil.
func (fc *FlowContext) Failure(kind FlowError, c *Challenge) error {
	if kind == "" {
		kind = FlowErrorInternal
	}
	return fc.record(Outcome{Status: StatusFailure, Error: kind, Challenge: c})
}

// Fail records err as a failure, using the kind and challenge of an *Error
// in its chain and FlowErrorInternal otherwise.
func (fc *FlowContext) Fail(err error) error {
	var fe *Error
	if errors.As(err, &fe) {
		return fc.Failure(fe.Kind, fe.Challenge)
	}
	return fc.Failure(FlowErrorInternal, nil)
}

// Outcome returns the recorded outcome; Status is StatusUnset if none.
func (fc *FlowContext) Outcome() Outcome {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.outcome
}

func (fc *FlowContext) record(o Outcome) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.outcome.Status != StatusUnset {
		return ErrOutcomeRecorded
	}
	fc.outcome = o
	return nil
}
