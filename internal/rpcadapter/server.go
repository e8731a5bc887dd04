// Package rpcadapter is the thin shell mapping wire requests to façade
// calls. The RPC transport and code-generated message types are not
// this daemon's concern; this package realizes the unary
// request/response table as a JSON-over-HTTP surface using
// github.com/go-chi/chi/v5 rather than a generated gRPC/protobuf
// toolchain.
package rpcadapter

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/pipebase/pipebased/internal/daemond"
	"github.com/pipebase/pipebased/internal/descriptor"
	"github.com/pipebase/pipebased/internal/pipe"
	"github.com/pipebase/pipebased/internal/pipeerr"
	"github.com/pipebase/pipebased/pkg/logging"
)

const subsystem = "RPCAdapter"

// Server is the RPC adapter: a façade plus an HTTP router exposing
// the daemon's lifecycle and introspection methods.
type Server struct {
	facade *daemond.Facade
	router chi.Router
}

// New builds a Server routing requests to facade.
func New(facade *daemond.Facade) *Server {
	s := &Server{facade: facade}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestCorrelation)
	r.Use(cors.Handler(cors.Options{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET", "POST"}}))

	r.Get("/v1/apps", s.handleListApp)
	r.Post("/v1/apps/pull", s.handlePullApp)
	r.Post("/v1/apps/remove", s.handleRemoveApp)
	r.Get("/v1/catalogs", s.handleListCatalogs)
	r.Post("/v1/catalogs/pull", s.handlePullCatalogs)
	r.Post("/v1/catalogs/remove", s.handleRemoveCatalogs)
	r.Post("/v1/pipes", s.handleCreatePipe)
	r.Post("/v1/pipes/{id}/start", s.handleStartPipe)
	r.Post("/v1/pipes/{id}/stop", s.handleStopPipe)
	r.Delete("/v1/pipes/{id}", s.handleRemovePipe)
	r.Get("/v1/pipes", s.handleListPipe)

	s.router = r
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func requestCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := uuid.NewString()
		logging.Debug(subsystem, "handling %s %s [%s]", r.Method, r.URL.Path, correlationID)
		next.ServeHTTP(w, r)
	})
}

// errorResponse is the JSON body returned for any failed call: every
// error response carries a diagnostic string.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps err to invalid_argument (400) or internal (500) and
// writes the diagnostic body.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if pe, ok := err.(*pipeerr.Error); ok && pe.UserFault() {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return pipeerr.Transport("malformed request body: " + err.Error())
	}
	return nil
}

// ListApp — {} -> { apps: [AppDescriptor] }
func (s *Server) handleListApp(w http.ResponseWriter, r *http.Request) {
	descs, err := s.facade.ListApp(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	wire := make([]descriptor.AppWire, 0, len(descs))
	for _, d := range descs {
		wire = append(wire, d.ToWire())
	}
	writeJSON(w, map[string]any{"apps": wire})
}

// ListCatalogs — {} -> { catalogs: [CatalogsDescriptor] }
func (s *Server) handleListCatalogs(w http.ResponseWriter, r *http.Request) {
	descs, err := s.facade.ListCatalogs(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	wire := make([]descriptor.CatalogsWire, 0, len(descs))
	for _, d := range descs {
		wire = append(wire, d.ToWire())
	}
	writeJSON(w, map[string]any{"catalogs": wire})
}

// PullApp — { namespace, id, version } -> {}
func (s *Server) handlePullApp(w http.ResponseWriter, r *http.Request) {
	var req descriptor.AppWire
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.facade.PullApp(r.Context(), req.ToDescriptor()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, struct{}{})
}

// PullCatalogs — { namespace, id, version } -> {}
func (s *Server) handlePullCatalogs(w http.ResponseWriter, r *http.Request) {
	var req descriptor.CatalogsWire
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.facade.PullCatalogs(r.Context(), req.ToDescriptor()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, struct{}{})
}

// RemoveApp — { namespace, id, version } -> {}
func (s *Server) handleRemoveApp(w http.ResponseWriter, r *http.Request) {
	var req descriptor.AppWire
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.facade.RemoveApp(r.Context(), req.ToDescriptor()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, struct{}{})
}

// RemoveCatalogs — { namespace, id, version } -> {}
func (s *Server) handleRemoveCatalogs(w http.ResponseWriter, r *http.Request) {
	var req descriptor.CatalogsWire
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.facade.RemoveCatalogs(r.Context(), req.ToDescriptor()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, struct{}{})
}

// envWire is the wire shape of one envs entry: {key, value}.
type envWire struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// createPipeRequest is CreatePipe's request body:
// { id, description?, user?, group?, envs:[{key,value}], app, catalogs }
type createPipeRequest struct {
	ID          string                  `json:"id"`
	Description string                  `json:"description,omitempty"`
	User        string                  `json:"user,omitempty"`
	Group       string                  `json:"group,omitempty"`
	Envs        []envWire               `json:"envs"`
	App         descriptor.AppWire      `json:"app"`
	Catalogs    descriptor.CatalogsWire `json:"catalogs"`
}

// CreatePipe
func (s *Server) handleCreatePipe(w http.ResponseWriter, r *http.Request) {
	var req createPipeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	envs := make([]pipe.EnvVar, 0, len(req.Envs))
	for _, e := range req.Envs {
		envs = append(envs, pipe.EnvVar{Key: e.Key, Value: e.Value})
	}
	facadeReq := daemond.CreatePipeRequest{
		ID:          req.ID,
		Description: req.Description,
		User:        req.User,
		Group:       req.Group,
		Envs:        envs,
		App:         req.App.ToDescriptor(),
		Catalogs:    req.Catalogs.ToDescriptor(),
	}
	if err := s.facade.CreatePipe(r.Context(), facadeReq); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, struct{}{})
}

// StartPipe — { id } -> {}
func (s *Server) handleStartPipe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.facade.StartPipe(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, struct{}{})
}

// StopPipe — { id } -> {}
func (s *Server) handleStopPipe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.facade.StopPipe(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, struct{}{})
}

// RemovePipe — { id } -> {}
func (s *Server) handleRemovePipe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.facade.RemovePipe(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, struct{}{})
}

// pipeStateWire is the wire shape of one ListPipe entry.
type pipeStateWire struct {
	ID          string `json:"id"`
	LoadState   string `json:"load_state"`
	ActiveState string `json:"active_state"`
	SubState    string `json:"sub_state"`
}

// ListPipe — {} -> { pipes: [PipeState] }
func (s *Server) handleListPipe(w http.ResponseWriter, r *http.Request) {
	states, err := s.facade.ListPipeStatus(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	wire := make([]pipeStateWire, 0, len(states))
	for _, st := range states {
		wire = append(wire, pipeStateWire{
			ID:          st.ID,
			LoadState:   st.Load.String(),
			ActiveState: st.Active.String(),
			SubState:    st.Sub.String(),
		})
	}
	writeJSON(w, map[string]any{"pipes": wire})
}
