package clientauth

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/ggoodman/clientauth-go/clients"
	"github.com/ggoodman/clientauth-go/internal/logctx"
)

func formRequest(body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "http://idp.example.com/realms/r/protocol/openid-connect/token", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	return r
}

func TestNewFlowContext_ParsesForm(t *testing.T) {
	fc, err := NewFlowContext(formRequest("client_assertion_type=x&client_assertion="), "r")
	if err != nil {
		t.Fatalf("NewFlowContext: %v", err)
	}
	if !fc.FormEncoded() {
		t.Fatal("expected form encoded")
	}
	if v, ok := fc.Param("client_assertion_type"); !ok || v != "x" {
		t.Fatalf("client_assertion_type = %q, %v", v, ok)
	}
	if v, ok := fc.Param("client_assertion"); !ok || v != "" {
		t.Fatalf("empty parameter must be present: %q, %v", v, ok)
	}
	if _, ok := fc.Param("missing"); ok {
		t.Fatal("missing parameter reported present")
	}
	if fc.Realm() != "r" {
		t.Fatalf("realm = %q", fc.Realm())
	}
	if got := fc.BaseURI().String(); got != "http://idp.example.com/" {
		t.Fatalf("base uri = %q", got)
	}
	if fc.RequestID() == "" {
		t.Fatal("expected generated request id")
	}
}

func TestNewFlowContext_NonFormBodyIsNotParsed(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "http://idp.example.com/", strings.NewReader(`{"client_assertion":"x"}`))
	r.Header.Set("Content-Type", "application/json")
	fc, err := NewFlowContext(r, "r")
	if err != nil {
		t.Fatalf("NewFlowContext: %v", err)
	}
	if fc.FormEncoded() {
		t.Fatal("json request reported as form encoded")
	}
	if _, ok := fc.Param("client_assertion"); ok {
		t.Fatal("json body must not yield form params")
	}
}

func TestNewFlowContext_QueryParamsIgnored(t *testing.T) {
	r := formRequest("")
	r.URL.RawQuery = "client_assertion=fromquery"
	fc, err := NewFlowContext(r, "r")
	if err != nil {
		t.Fatalf("NewFlowContext: %v", err)
	}
	if _, ok := fc.Param("client_assertion"); ok {
		t.Fatal("query parameters must not be read as form parameters")
	}
}

func TestNewFlowContext_BaseURI(t *testing.T) {
	r := formRequest("")
	r.Header.Set("X-Forwarded-Proto", "https")
	fc, _ := NewFlowContext(r, "r")
	if got := fc.BaseURI().String(); got != "https://idp.example.com/" {
		t.Fatalf("forwarded base uri = %q", got)
	}

	r = formRequest("")
	r.TLS = &tls.ConnectionState{}
	fc, _ = NewFlowContext(r, "r")
	if fc.BaseURI().Scheme != "https" {
		t.Fatalf("tls base uri = %v", fc.BaseURI())
	}

	override, _ := url.Parse("https://auth.example.com/auth/")
	fc, _ = NewFlowContext(formRequest(""), "r", WithBaseURI(override), WithRequestID("req-9"))
	if fc.BaseURI().String() != override.String() || fc.RequestID() != "req-9" {
		t.Fatalf("options not applied: %v %q", fc.BaseURI(), fc.RequestID())
	}
	fc.BaseURI().Path = "/mutated"
	if fc.BaseURI().Path != "/auth/" {
		t.Fatal("BaseURI must return a copy")
	}
}

func TestFlowContext_OutcomeIsWriteOnce(t *testing.T) {
	fc := NewFlow(FlowConfig{Realm: "r"})
	if fc.Outcome().Status != StatusUnset {
		t.Fatal("expected unset outcome")
	}
	if err := fc.Success(); err != nil {
		t.Fatalf("Success: %v", err)
	}
	if err := fc.Failure(FlowErrorClientDisabled, nil); !errors.Is(err, ErrOutcomeRecorded) {
		t.Fatalf("second write: %v", err)
	}
	if err := fc.Challenge(InvalidClient("x")); !errors.Is(err, ErrOutcomeRecorded) {
		t.Fatalf("third write: %v", err)
	}
	if got := fc.Outcome(); got.Status != StatusSuccess || got.Error != "" {
		t.Fatalf("first outcome modified: %+v", got)
	}
}

func TestFlowContext_Fail(t *testing.T) {
	fc := NewFlow(FlowConfig{})
	ch := InvalidClient("Unable to load public key")
	_ = fc.Fail(&Error{Kind: FlowErrorCredentialsSetupRequired, Challenge: ch})
	if got := fc.Outcome(); got.Error != FlowErrorCredentialsSetupRequired || got.Challenge != ch {
		t.Fatalf("unexpected outcome: %+v", got)
	}

	fc = NewFlow(FlowConfig{})
	_ = fc.Fail(errors.New("boom"))
	if got := fc.Outcome(); got.Status != StatusFailure || got.Error != FlowErrorInternal {
		t.Fatalf("unexpected outcome: %+v", got)
	}
}

func TestFlowContext_ChallengeNilUsesDefault(t *testing.T) {
	fc := NewFlow(FlowConfig{})
	_ = fc.Challenge(nil)
	got := fc.Outcome().Response()
	if got == nil || got.Code != CodeInvalidClient {
		t.Fatalf("unexpected challenge: %+v", got)
	}
}

func TestFlowContext_SetClientDecoratesLogs(t *testing.T) {
	fc := NewFlow(FlowConfig{Realm: "r", RequestID: "req-1"})
	ctx := fc.LogContext(context.Background())
	fc.SetClient(&clients.Client{ClientID: "acme"})

	a := logctx.AttemptFrom(ctx)
	if a == nil || a.RequestID != "req-1" || a.Realm != "r" || a.ClientID != "acme" {
		t.Fatalf("unexpected attempt: %+v", a)
	}
	if fc.LogContext(ctx) != ctx {
		t.Fatal("LogContext must not re-wrap a decorated context")
	}
	if fc.Client().ClientID != "acme" {
		t.Fatal("client not recorded")
	}
}
