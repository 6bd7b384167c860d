package jwtclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"time"

	"github.com/ggoodman/clientauth-go"
	"github.com/ggoodman/clientauth-go/endpoints"
	"github.com/ggoodman/clientauth-go/internal/assertion"
	"github.com/ggoodman/clientauth-go/keys"
)

const (
	descMissingAssertionType = "Parameter client_assertion_type is missing"
	descMissingAssertion     = "client_assertion parameter missing"
	descInvalidAlgorithm     = "invalid signature algorithm"
	descNoPublicKey          = "Unable to load public key"
	descFailedPrefix         = "Client authentication with signed JWT failed: "
	descInternal             = descFailedPrefix + "Unexpected error"
)

// validationError is a rejected assertion. Its message is safe to return to
// the client.
type validationError struct {
	msg string
	err error
}

func (e *validationError) Error() string { return e.msg }
func (e *validationError) Unwrap() error { return e.err }

func invalid(format string, args ...any) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

// challengeError asks the client to retry without counting as a failure.
type challengeError struct {
	challenge *clientauth.Challenge
}

func (e *challengeError) Error() string { return e.challenge.Description }

// AuthenticateClient implements clientauth.Authenticator.
func (a *Authenticator) AuthenticateClient(ctx context.Context, fc *clientauth.FlowContext) {
	ctx = fc.LogContext(ctx)
	defer func() {
		if rec := recover(); rec != nil {
			a.log.ErrorContext(ctx, "client_jwt.panic",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			_ = fc.Failure(clientauth.FlowErrorInternal, clientauth.InvalidClient(descInternal))
		}
	}()

	if err := a.authenticate(ctx, fc); err != nil {
		a.record(ctx, fc, err)
		return
	}
	_ = fc.Success()
}

func (a *Authenticator) record(ctx context.Context, fc *clientauth.FlowContext, err error) {
	var (
		ce *challengeError
		ve *validationError
		fe *clientauth.Error
	)
	switch {
	case errors.As(err, &ce):
		a.log.DebugContext(ctx, "client_jwt.challenge", slog.String("reason", ce.Error()))
		_ = fc.Challenge(ce.challenge)
	case errors.As(err, &ve):
		a.log.WarnContext(ctx, "client_jwt.invalid_assertion", slog.String("err", err.Error()), slog.Any("cause", ve.err))
		_ = fc.Failure(clientauth.FlowErrorInvalidClientCredentials, clientauth.InvalidClient(descFailedPrefix+ve.msg))
	case errors.As(err, &fe):
		a.log.DebugContext(ctx, "client_jwt.failure", slog.String("kind", fe.Kind.String()))
		_ = fc.Failure(fe.Kind, fe.Challenge)
	default:
		a.log.ErrorContext(ctx, "client_jwt.internal_error", slog.String("err", err.Error()))
		_ = fc.Failure(clientauth.FlowErrorInternal, clientauth.InvalidClient(descInternal))
	}
}

func (a *Authenticator) authenticate(ctx context.Context, fc *clientauth.FlowContext) error {
	if !fc.FormEncoded() {
		return &challengeError{clientauth.InvalidClient(descMissingAssertionType)}
	}

	assertionType, ok := fc.Param(ParamClientAssertionType)
	if !ok {
		return &challengeError{clientauth.InvalidClient(descMissingAssertionType)}
	}
	if assertionType != AssertionTypeJWT {
		return &challengeError{clientauth.InvalidClient(fmt.Sprintf(
			"Parameter client_assertion_type has value '%s' but expected is '%s'", assertionType, AssertionTypeJWT))}
	}

	raw, ok := fc.Param(ParamClientAssertion)
	if !ok {
		return &clientauth.Error{
			Kind:      clientauth.FlowErrorInvalidClientCredentials,
			Challenge: clientauth.InvalidClient(descMissingAssertion),
		}
	}

	tok, err := assertion.Parse(raw)
	if err != nil {
		return &validationError{msg: "Failed to decode client assertion", err: err}
	}

	clientID := tok.Subject
	if clientID == "" {
		return invalid("Can't identify client. Subject missing on JWT token")
	}
	if clientID != tok.Issuer {
		return invalid("Issuer mismatch. The issuer should match the subject")
	}

	fc.Events().ClientResolved(ctx, clientID)
	client, err := a.clients.FindClientByClientID(ctx, fc.Realm(), clientID)
	if err != nil {
		return fmt.Errorf("find client %q: %w", clientID, err)
	}
	if client == nil {
		return &clientauth.Error{Kind: clientauth.FlowErrorClientNotFound}
	}
	fc.SetClient(client)
	if !client.Enabled {
		return &clientauth.Error{Kind: clientauth.FlowErrorClientDisabled}
	}

	alg := tok.Header.Algorithm
	if alg == "" {
		return &challengeError{clientauth.InvalidClient(descInvalidAlgorithm)}
	}
	if want := client.TokenEndpointAuthSigningAlg; want != "" && want != alg {
		return &challengeError{clientauth.InvalidClient(descInvalidAlgorithm)}
	}

	key, err := a.keys.ResolveClientKey(ctx, client, keys.HeaderInfo{
		Algorithm:            alg,
		KeyID:                tok.Header.KeyID,
		Type:                 tok.Header.Type,
		X509SHA256Thumbprint: tok.Header.X509SHA256Thumbprint,
	})
	if err != nil {
		return fmt.Errorf("resolve key for client %q: %w", clientID, err)
	}
	if key == nil {
		return &clientauth.Error{
			Kind:      clientauth.FlowErrorCredentialsSetupRequired,
			Challenge: clientauth.InvalidClient(descNoPublicKey),
		}
	}

	if err := assertion.Verify(tok, key); err != nil {
		return &validationError{msg: "Signature on JWT token failed validation", err: err}
	}

	expected := endpoints.ExpectedAudiences(fc.BaseURI(), fc.Realm())
	if !tok.HasAnyAudience(expected) {
		return invalid("Token audience doesn't match domain. Expected audiences are any of %v but audience from token is '%v'", expected, tok.Audience)
	}

	now := a.now().Unix()
	if !tok.IsActive(now) {
		return invalid("Token is not active")
	}
	if tok.ExpiresAt == 0 && tok.IssuedAt+int64(MinLifespan/time.Second) < now {
		return invalid("Token is not active")
	}
	if tok.ID == "" {
		return invalid("Missing ID on the token")
	}

	lifespan := replayLifespan(tok.ExpiresAt, now)
	stored, err := a.replay.PutIfAbsent(ctx, tok.ID, lifespan)
	if err != nil {
		return fmt.Errorf("record token id: %w", err)
	}
	if !stored {
		a.log.WarnContext(ctx, "client_jwt.token_reuse",
			slog.String("client_id", clientID),
			slog.String("jti", tok.ID),
		)
		return invalid("Token reuse detected")
	}
	a.log.DebugContext(ctx, "client_jwt.token_recorded",
		slog.String("jti", tok.ID),
		slog.Duration("lifespan", lifespan),
	)

	return nil
}

// replayLifespan is max(exp-now, MinLifespan), clamped to time.Duration's range.
func replayLifespan(exp, now int64) time.Duration {
	secs := max(exp-now, int64(MinLifespan/time.Second))
	if limit := int64(math.MaxInt64 / int64(time.Second)); secs > limit {
		secs = limit
	}
	return time.Duration(secs) * time.Second
}
