// Package gateway is the kernel's optional HTTP/WebSocket adapter: a thin
// chi router exposing health, route, dispatch, skill listing, and event
// history over REST, plus a live event stream and inline route/dispatch
// requests over the ws.Hub.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/corvid-labs/skillkernel/internal/dispatch"
	"github.com/corvid-labs/skillkernel/internal/events"
	"github.com/corvid-labs/skillkernel/internal/gateway/ws"
	"github.com/corvid-labs/skillkernel/internal/registry"
	"github.com/corvid-labs/skillkernel/internal/router"
)

// Server is the gateway's HTTP(S)+WS listener.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	bus        *events.Bus
	reg        *registry.Registry
}

// routerAdapter narrows *router.Router to the ws.Router interface, since the
// Hub must stay decoupled from the concrete RoutingResult type.
type routerAdapter struct{ r *router.Router }

func (a routerAdapter) Route(ctx context.Context, query string) (any, error) {
	return a.r.Route(ctx, query)
}

// dispatchAdapter narrows *dispatch.Dispatch to the ws.Dispatcher interface,
// supplying a fixed timeout and an empty feedback-attribution query since
// ad hoc gateway calls aren't routing decisions.
type dispatchAdapter struct{ d *dispatch.Dispatch }

func (a dispatchAdapter) Dispatch(ctx context.Context, skill, command string, args map[string]any) (any, error) {
	res := a.d.Execute(ctx, skill, command, args, dispatch.DefaultTimeout, "")
	if !res.OK {
		return nil, fmt.Errorf("%s: %s", res.Kind, res.Message)
	}
	return res.Payload, nil
}

// NewServer builds a gateway Server bound to host:port. router and
// dispatcher may be nil if the kernel is running without them configured;
// the corresponding WS methods then report unavailable.
func NewServer(bus *events.Bus, reg *registry.Registry, rt *router.Router, disp *dispatch.Dispatch, host string, port int) *Server {
	var hubRouter ws.Router
	if rt != nil {
		hubRouter = routerAdapter{rt}
	}
	var hubDispatcher ws.Dispatcher
	if disp != nil {
		hubDispatcher = dispatchAdapter{disp}
	}

	hub := ws.NewHub(bus, hubRouter, hubDispatcher, reg)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	s := &Server{hub: hub, bus: bus, reg: reg}

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ws", hub.ServeWS)
	r.Get("/api/events", s.handleEvents)
	r.Get("/api/skills", s.handleSkills)
	if rt != nil {
		r.Post("/api/route", s.handleRoute(rt))
	}
	if disp != nil {
		r.Post("/api/dispatch", s.handleDispatch(disp))
	}

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: r,
	}
	return s
}

// Start begins listening; it blocks until the server stops.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.httpServer.Serve(ln)
}

// Addr returns the address the server was configured to listen on. For a
// port-0 address it does not report the port the listener was bound to.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Shutdown gracefully stops the server and closes all WS connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	history := s.bus.History(limit)

	type eventJSON struct {
		ID        string             `json:"id"`
		Type      string             `json:"type"`
		Timestamp string             `json:"timestamp"`
		Source    events.EventSource `json:"source"`
		Payload   map[string]any     `json:"payload"`
	}
	result := make([]eventJSON, len(history))
	for i, e := range history {
		result[i] = eventJSON{
			ID: e.ID, Type: string(e.Type),
			Timestamp: e.Timestamp.Format(time.RFC3339Nano),
			Source:    e.Source, Payload: e.Payload,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (s *Server) handleSkills(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.reg.All())
}

func (s *Server) handleRoute(rt *router.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, err := rt.Route(r.Context(), body.Query)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

func (s *Server) handleDispatch(disp *dispatch.Dispatch) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Skill   string         `json:"skill"`
			Command string         `json:"command"`
			Args    map[string]any `json:"args"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		res := disp.Execute(r.Context(), body.Skill, body.Command, body.Args, dispatch.DefaultTimeout, "")
		w.Header().Set("Content-Type", "application/json")
		if !res.OK {
			w.WriteHeader(http.StatusUnprocessableEntity)
		}
		json.NewEncoder(w).Encode(res)
	}
}
