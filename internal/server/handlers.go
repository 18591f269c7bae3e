// Package server exposes HTTP handlers for health checks, stats, and the
// broadcast API used by other services.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mikagit25/neurogrid-sub000/internal/auth"
)

const maxBroadcastBody = 1 << 20

// BroadcastRequest is the body of POST /api/v1/broadcast/{topic,room}.
type BroadcastRequest struct {
	Topic string          `json:"topic,omitempty"`
	Room  string          `json:"room,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// BroadcastResponse reports how many connections the frame was queued to.
type BroadcastResponse struct {
	Delivered int `json:"delivered"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HealthHandler reports liveness with the active connection count.
func (g *Gateway) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	status, code := "ok", http.StatusOK
	if g.isShutdown() {
		status, code = "shutting_down", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":            status,
		"version":           g.cfg.ServerVersion,
		"activeConnections": g.reg.Stats().ActiveConnections,
	})
}

// StatsHandler returns the registry snapshot as JSON.
func (g *Gateway) StatsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, g.Stats())
}

// BroadcastTopicHandler publishes the request data to a topic. Requires an admin token.
func (g *Gateway) BroadcastTopicHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := g.decodeBroadcast(w, r)
	if !ok {
		return
	}
	g.writeBroadcastResult(w, req.Topic, func() (int, error) {
		return g.BroadcastToTopic(req.Topic, req.Data)
	})
}

// BroadcastRoomHandler publishes the request data to a room. Requires an admin token.
func (g *Gateway) BroadcastRoomHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := g.decodeBroadcast(w, r)
	if !ok {
		return
	}
	g.writeBroadcastResult(w, req.Room, func() (int, error) {
		return g.BroadcastToRoom(req.Room, req.Data)
	})
}

func (g *Gateway) decodeBroadcast(w http.ResponseWriter, r *http.Request) (*BroadcastRequest, bool) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return nil, false
	}

	token := strings.TrimSpace(r.Header.Get("Authorization"))
	if _, err := g.gate.Authenticate(token, string(auth.KindAdmin)); err != nil {
		code := http.StatusUnauthorized
		if errors.Is(err, auth.ErrInsufficientPermissions) {
			code = http.StatusForbidden
		}
		writeJSON(w, code, errorResponse{Error: err.Error()})
		return nil, false
	}

	var req BroadcastRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBroadcastBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return nil, false
	}
	if len(req.Data) == 0 {
		req.Data = json.RawMessage("null")
	}
	return &req, true
}

func (g *Gateway) writeBroadcastResult(w http.ResponseWriter, target string, publish func() (int, error)) {
	if target == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ErrEmptyTarget.Error()})
		return
	}
	delivered, err := publish()
	if err != nil {
		g.logger.Warn("broadcast failed", zap.String("target", target), zap.Error(err))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, BroadcastResponse{Delivered: delivered})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
