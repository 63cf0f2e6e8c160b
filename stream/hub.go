// Package stream broadcasts ensemble frames to remote viewers over WebSocket.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Frame is one broadcast snapshot of the ensemble.
// Positions and Colors are interleaved xyz / rgb, three values per particle.
type Frame struct {
	Tick        int32     `json:"tick"`
	SimTime     float64   `json:"sim_time"`
	Particles   int       `json:"particles"`
	Radius      float64   `json:"radius"`
	Height      float64   `json:"height"`
	AvgTemp     float64   `json:"avg_temp"`
	SurfaceTemp float64   `json:"surface_temp"`
	Paused      bool      `json:"paused"`
	HeatMap     bool      `json:"heat_map"`
	Positions   []float32 `json:"positions"`
	Colors      []float32 `json:"colors"`
}

// Command is a control message sent by a viewer. Nil fields are left alone.
type Command struct {
	Paused  *bool `json:"paused,omitempty"`
	HeatMap *bool `json:"heat_map,omitempty"`
	Reset   bool  `json:"reset,omitempty"`
}

const (
	writeTimeout    = 2 * time.Second
	commandBuffer   = 16
	shutdownTimeout = 2 * time.Second
)

// Hub tracks connected viewers and fans frames out to them.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex // per-conn write lock

	commands chan Command
	server   *http.Server
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:  make(map[*websocket.Conn]*sync.Mutex),
		commands: make(chan Command, commandBuffer),
	}
}

// ServeHTTP upgrades the request and keeps reading viewer commands until the
// connection drops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = &sync.Mutex{}
	h.mu.Unlock()
	defer h.remove(conn)

	slog.Info("viewer connected", "remote", conn.RemoteAddr().String())

	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("viewer read ended", "error", err)
			}
			return
		}
		select {
		case h.commands <- cmd:
		default:
			slog.Warn("dropping viewer command, queue full")
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
}

// Clients returns the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends f to every viewer and drops viewers whose write fails.
// It returns the number of viewers that received the frame.
func (h *Hub) Broadcast(f Frame) int {
	h.mu.RLock()
	var failed []*websocket.Conn
	sent := 0
	for conn, wmu := range h.clients {
		wmu.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := conn.WriteJSON(f)
		wmu.Unlock()
		if err != nil {
			failed = append(failed, conn)
			continue
		}
		sent++
	}
	h.mu.RUnlock()

	for _, conn := range failed {
		slog.Debug("dropping viewer", "remote", conn.RemoteAddr().String())
		h.remove(conn)
		conn.Close()
	}
	return sent
}

// Commands returns viewer commands in arrival order.
func (h *Hub) Commands() <-chan Command {
	return h.commands
}

// Listen serves the hub at /ws on addr in the background.
// The returned address is the one actually bound, useful when addr ends in ":0".
func (h *Hub) Listen(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listening on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	h.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("stream server stopped", "error", err)
		}
	}()
	slog.Info("stream listening", "addr", ln.Addr().String())
	return ln.Addr().String(), nil
}

// Close stops the server, if any, and disconnects every viewer.
func (h *Hub) Close() error {
	var err error
	if h.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = h.server.Shutdown(ctx)
	}

	h.mu.Lock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
	h.mu.Unlock()
	return err
}
