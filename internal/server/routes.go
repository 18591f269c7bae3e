// Package server wires gateway handlers into a ServeMux.
package server

import "net/http"

// SetupRoutes returns a ServeMux with the WebSocket endpoint, health, stats,
// metrics, and broadcast API routes.
func SetupRoutes(g *Gateway) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", g.HealthHandler)
	mux.HandleFunc("/stats", g.StatsHandler)
	mux.Handle("/metrics", g.metrics.Handler())
	mux.HandleFunc("/api/v1/broadcast/topic", g.BroadcastTopicHandler)
	mux.HandleFunc("/api/v1/broadcast/room", g.BroadcastRoomHandler)
	mux.HandleFunc(g.cfg.Path, g.WebSocketHandler)
	return mux
}
