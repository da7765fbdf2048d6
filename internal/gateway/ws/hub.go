package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/corvid-labs/skillkernel/internal/events"
)

// Client is one connected WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Router resolves a routing decision for a free-text query; satisfied by
// *router.Router.
type Router interface {
	Route(ctx context.Context, query string) (any, error)
}

// Dispatcher runs a named command; satisfied by a thin adapter over
// *dispatch.Dispatch (the real signature takes more than a WS frame
// naturally carries, so the gateway wraps it — see server.go).
type Dispatcher interface {
	Dispatch(ctx context.Context, skill, command string, args map[string]any) (any, error)
}

// SkillLister lists loaded skill names; satisfied by *registry.Registry.
type SkillLister interface {
	Names() []string
}

// Hub fans every event bus notification out to connected clients and
// answers route/dispatch/skill_list requests inline.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	bus         *events.Bus
	router      Router
	dispatcher  Dispatcher
	skills      SkillLister
	unsubscribe func()
}

// NewHub wires a Hub to the event bus and the kernel operations it answers
// requests against. router, dispatcher, and skills may be nil — the
// corresponding method then errors per-request instead of panicking.
func NewHub(bus *events.Bus, router Router, dispatcher Dispatcher, skills SkillLister) *Hub {
	h := &Hub{clients: make(map[*Client]struct{}), bus: bus, router: router, dispatcher: dispatcher, skills: skills}
	h.unsubscribe = bus.Subscribe(func(e events.Event) {
		frame, err := NewEventFrame(string(e.Type), e)
		if err != nil {
			slog.Error("ws: marshal event frame", "error", err)
			return
		}
		data, err := MarshalFrame(frame)
		if err != nil {
			slog.Error("ws: marshal frame", "error", err)
			return
		}
		h.broadcast(data)
	})
	return h
}

func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	slog.Info("ws client connected", "clients", len(h.clients))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	slog.Info("ws client disconnected", "clients", len(h.clients))
}

// ServeWS upgrades the connection and runs the client's read/write pumps
// until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}

	client := &Client{conn: conn, send: make(chan []byte, 256), hub: h}
	h.register(client)

	ctx := r.Context()
	go client.writePump(ctx)
	client.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		frame, err := UnmarshalFrame(data)
		if err != nil {
			slog.Error("ws unmarshal frame", "error", err)
			continue
		}
		if frame.Type == FrameTypeRequest {
			c.handleRequest(ctx, frame)
		}
	}
}

func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) handleRequest(ctx context.Context, frame Frame) {
	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	switch Method(frame.Method) {
	case MethodRoute:
		var params struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			c.sendError(frame.ID, "invalid params")
			return
		}
		if c.hub.router == nil {
			c.sendError(frame.ID, "router not available")
			return
		}
		result, err := c.hub.router.Route(reqCtx, params.Query)
		if err != nil {
			c.sendError(frame.ID, err.Error())
			return
		}
		c.sendOK(frame.ID, result)

	case MethodDispatch:
		var params struct {
			Skill   string         `json:"skill"`
			Command string         `json:"command"`
			Args    map[string]any `json:"args"`
		}
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			c.sendError(frame.ID, "invalid params")
			return
		}
		if c.hub.dispatcher == nil {
			c.sendError(frame.ID, "dispatcher not available")
			return
		}
		result, err := c.hub.dispatcher.Dispatch(reqCtx, params.Skill, params.Command, params.Args)
		if err != nil {
			c.sendError(frame.ID, err.Error())
			return
		}
		c.sendOK(frame.ID, result)

	case MethodSkillList:
		if c.hub.skills == nil {
			c.sendError(frame.ID, "registry not available")
			return
		}
		c.sendOK(frame.ID, c.hub.skills.Names())

	default:
		c.sendError(frame.ID, "unknown method "+frame.Method)
	}
}

func (c *Client) sendOK(id string, payload any) {
	f, err := NewResponseFrame(id, true, payload, "")
	if err != nil {
		return
	}
	data, err := MarshalFrame(f)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) sendError(id string, errMsg string) {
	f, err := NewResponseFrame(id, false, nil, errMsg)
	if err != nil {
		return
	}
	data, err := MarshalFrame(f)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// Close shuts down the hub, unsubscribing from the event bus and closing
// every connected client.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
		delete(h.clients, c)
	}
}
