// Package server exposes client authentication over HTTP for clientauthd.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/ggoodman/clientauth-go"
	"github.com/ggoodman/clientauth-go/clients"
	"github.com/ggoodman/clientauth-go/endpoints"
	"github.com/ggoodman/clientauth-go/internal/logctx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/invopop/jsonschema"
)

const maxBodySize = 64 << 10

// Config wires a Server.
type Config struct {
	Providers *clientauth.Registry
	Clients   clients.Registry
	// DefaultProvider is used when a request names no provider and the
	// client has no authenticator type configured.
	DefaultProvider string
	// BaseURI overrides the base URI derived from each request.
	BaseURI    *url.URL
	Events     clientauth.EventSink
	LogHandler slog.Handler
}

// Server is the HTTP surface of clientauthd.
type Server struct {
	cfg    Config
	log    *slog.Logger
	router chi.Router
}

// New builds a Server. Providers and Clients are required.
func New(cfg Config) (*Server, error) {
	if cfg.Providers == nil || cfg.Clients == nil {
		return nil, errors.New("server: providers and clients are required")
	}
	s := &Server{cfg: cfg, log: logctx.New(cfg.LogHandler)}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestSize(maxBodySize))
	r.Use(middleware.Recoverer)

	r.Get("/providers", s.listProviders)
	r.Route("/realms/{realm}", func(r chi.Router) {
		r.Post("/client-authentication", s.authenticate)
		r.Get("/client-authentication/audiences", s.audiences)
		r.Get("/clients/{clientID}/adapter-config", s.adapterConfig)
	})
	s.router = r
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) baseURI(r *http.Request) *url.URL {
	if s.cfg.BaseURI != nil {
		return s.cfg.BaseURI
	}
	return clientauth.RequestBaseURI(r)
}

type authenticationResponse struct {
	ClientID string `json:"client_id"`
	Provider string `json:"provider"`
	Realm    string `json:"realm"`
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	realm := chi.URLParam(r, "realm")
	provider := r.URL.Query().Get("provider")
	if provider == "" {
		provider = s.cfg.DefaultProvider
	}

	opts := []clientauth.FlowContextOption{
		clientauth.WithBaseURI(s.baseURI(r)),
	}
	if id := middleware.GetReqID(ctx); id != "" {
		opts = append(opts, clientauth.WithRequestID(id))
	}
	if s.cfg.Events != nil {
		opts = append(opts, clientauth.WithEvents(s.cfg.Events))
	}

	fc, err := clientauth.NewFlowContext(r, realm, opts...)
	if err != nil {
		s.log.WarnContext(ctx, "http.authenticate.bad_request", slog.String("err", err.Error()))
		_ = clientauth.NewChallenge(http.StatusBadRequest, clientauth.CodeInvalidRequest, "Malformed form body").WriteHTTP(w)
		return
	}

	out, err := s.cfg.Providers.Authenticate(ctx, provider, fc)
	if errors.Is(err, clientauth.ErrUnknownProvider) {
		_ = clientauth.NewChallenge(http.StatusNotFound, clientauth.CodeInvalidRequest, "Unknown client authentication provider").WriteHTTP(w)
		return
	}
	if err != nil {
		s.log.ErrorContext(ctx, "http.authenticate.error", slog.String("err", err.Error()))
		_ = clientauth.FlowErrorInternal.DefaultChallenge().WriteHTTP(w)
		return
	}

	if out.Status != clientauth.StatusSuccess {
		_ = out.Response().WriteHTTP(w)
		return
	}
	writeJSON(w, http.StatusOK, authenticationResponse{
		ClientID: fc.Client().ClientID,
		Provider: provider,
		Realm:    realm,
	})
}

func (s *Server) audiences(w http.ResponseWriter, r *http.Request) {
	realm := chi.URLParam(r, "realm")
	writeJSON(w, http.StatusOK, map[string][]string{
		"audiences": endpoints.ExpectedAudiences(s.baseURI(r), realm),
	})
}

type providerDescriptor struct {
	ID                  string             `json:"id"`
	DisplayName         string             `json:"display_name"`
	HelpText            string             `json:"help_text,omitempty"`
	Methods             []string           `json:"methods"`
	ConfigurationSchema *jsonschema.Schema `json:"configuration_schema,omitempty"`
}

func (s *Server) listProviders(w http.ResponseWriter, r *http.Request) {
	protocol := r.URL.Query().Get("protocol")
	if protocol == "" {
		protocol = "openid-connect"
	}
	providers := s.cfg.Providers.Providers()
	out := make([]providerDescriptor, 0, len(providers))
	for _, p := range providers {
		methods := p.ProtocolMethods(protocol)
		if methods == nil {
			methods = []string{}
		}
		out = append(out, providerDescriptor{
			ID:                  p.ProviderID(),
			DisplayName:         p.DisplayName(),
			HelpText:            p.HelpText(),
			Methods:             methods,
			ConfigurationSchema: p.ConfigurationSchema(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": out})
}

func (s *Server) adapterConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	realm := chi.URLParam(r, "realm")
	clientID := chi.URLParam(r, "clientID")

	c, err := s.cfg.Clients.FindClientByClientID(ctx, realm, clientID)
	if err != nil {
		s.log.ErrorContext(ctx, "http.adapter_config.lookup_failed", slog.String("err", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}
	if c == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "client_not_found"})
		return
	}

	id := c.AuthenticatorType
	if id == "" {
		id = s.cfg.DefaultProvider
	}
	p, ok := s.cfg.Providers.Lookup(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "provider_not_found"})
		return
	}
	ac, ok := p.(clientauth.AdapterConfigurer)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "adapter_config_unsupported"})
		return
	}
	writeJSON(w, http.StatusOK, ac.AdapterConfiguration(c))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
