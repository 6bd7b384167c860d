package clientauth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFlowError_DefaultChallenge(t *testing.T) {
	for _, k := range []FlowError{
		FlowErrorInvalidClientCredentials,
		FlowErrorClientNotFound,
		FlowErrorClientDisabled,
		FlowErrorCredentialsSetupRequired,
	} {
		c := k.DefaultChallenge()
		if c.Status != http.StatusUnauthorized || c.Code != CodeInvalidClient || c.Description != "Invalid client or Invalid client credentials" {
			t.Errorf("%s: unexpected default challenge %+v", k, c)
		}
	}
	if c := FlowErrorInternal.DefaultChallenge(); c.Status != http.StatusInternalServerError || c.Code != CodeServerError {
		t.Errorf("internal: unexpected default challenge %+v", c)
	}
}

func TestOutcome_Response(t *testing.T) {
	own := InvalidClient("client_assertion parameter missing")
	cases := []struct {
		name string
		out  Outcome
		want *Challenge
		code string
	}{
		{"success", Outcome{Status: StatusSuccess}, nil, ""},
		{"unset", Outcome{}, nil, ""},
		{"challenge", Outcome{Status: StatusChallenge, Challenge: own}, own, ""},
		{"failure with body", Outcome{Status: StatusFailure, Error: FlowErrorInvalidClientCredentials, Challenge: own}, own, ""},
		{"failure without body", Outcome{Status: StatusFailure, Error: FlowErrorClientNotFound}, nil, CodeInvalidClient},
	}
	for _, tc := range cases {
		got := tc.out.Response()
		switch {
		case tc.code != "":
			if got == nil || got.Code != tc.code {
				t.Errorf("%s: got %+v, want code %s", tc.name, got, tc.code)
			}
		case got != tc.want:
			t.Errorf("%s: got %+v, want %+v", tc.name, got, tc.want)
		}
	}
}

func TestChallenge_WriteHTTP(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := InvalidClient("Token reuse detected").WriteHTTP(rec); err != nil {
		t.Fatalf("WriteHTTP: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "invalid_client" || body["error_description"] != "Token reuse detected" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := error(&Error{Kind: FlowErrorInternal, Err: cause})
	if !errors.Is(err, cause) {
		t.Fatal("Error must unwrap to its cause")
	}
	if KindOf(err) != FlowErrorInternal {
		t.Fatalf("KindOf = %s", KindOf(err))
	}
	if KindOf(errors.New("x")) != FlowErrorInternal {
		t.Fatal("unclassified errors are internal")
	}
	if KindOf(&Error{Kind: FlowErrorClientDisabled}) != FlowErrorClientDisabled {
		t.Fatal("kind not reported")
	}
	if StatusFailure.String() != "failure" || Status(42).String() != "unset" {
		t.Fatal("unexpected status strings")
	}
}
