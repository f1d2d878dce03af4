// Package api serves the local status and control surface over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"zedlink/internal/network"
)

// Status is the document served by /api/status and pushed over /ws.
type Status struct {
	Role       string               `json:"role"`
	Name       string               `json:"name"`
	Version    string               `json:"version"`
	ListenPort int                  `json:"listen_port,omitempty"`
	Mode       string               `json:"mode,omitempty"`
	Connection string               `json:"connection,omitempty"`
	Session    *network.SessionInfo `json:"session,omitempty"`
	Peer       *network.PeerInfo    `json:"peer,omitempty"`
}

// StatusFunc reports the current status.
type StatusFunc func() Status

// Controller carries the control endpoints. It is nil on a target.
type Controller interface {
	Connect()
	Disconnect()
	Toggle(ctx context.Context) error
}

// Server provides the HTTP API
type Server struct {
	status  StatusFunc
	control Controller
	token   string
	apiPort atomic.Int32
	log     *zap.Logger
	hub     *hub
}

// NewServer creates a new API server. control may be nil.
func NewServer(status StatusFunc, control Controller, token string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		status:  status,
		control: control,
		token:   token,
		log:     log.Named("api"),
	}
	s.hub = newHub(s.log)
	return s
}

// Handler returns the routed handler with auth and panic recovery applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/discover", s.handleDiscover)
	mux.HandleFunc("/api/connect", s.controlOnly(s.handleConnect))
	mux.HandleFunc("/api/disconnect", s.controlOnly(s.handleDisconnect))
	mux.HandleFunc("/api/toggle", s.controlOnly(s.handleToggle))
	mux.HandleFunc("/ws", s.hub.handleWebSocket(s.status))
	return s.authMiddleware(s.recoverMiddleware(mux))
}

// Start listens on port and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	// tcp4 avoids IPv6-only binding on some Windows hosts
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return fmt.Errorf("api listen %s: %w", addr, err)
	}
	s.log.Info("API server listening", zap.String("addr", addr))
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.apiPort.Store(int32(addr.Port))
	}
	go s.hub.run(ctx)

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})
	defer stop()

	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Notify pushes the current status to every websocket subscriber.
func (s *Server) Notify() {
	s.hub.publish(s.status())
}

// recoverMiddleware prevents panics from crashing the whole server
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.Error("handler panic", zap.Any("panic", err), zap.String("path", r.URL.Path))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authMiddleware checks the API token if configured
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.String("remote", r.RemoteAddr))

		// Health and status stay open so LAN discovery works without a token.
		if r.URL.Path == "/health" || r.URL.Path == "/api/status" {
			next.ServeHTTP(w, r)
			return
		}

		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) controlOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.control == nil {
			http.Error(w, "Not available on a target", http.StatusNotFound)
			return
		}
		h(w, r)
	}
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

// Port returns the port the API is served on, or 0 before Serve. Discovery
// scans peers on the same port.
func (s *Server) Port() int {
	return int(s.apiPort.Load())
}

// handleDiscover handles GET /api/discover and scans the LAN for targets.
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	hosts, err := network.ScanLAN(r.Context(), s.Port())
	if err != nil {
		s.log.Warn("LAN scan failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Info("LAN scan finished", zap.Int("targets", len(hosts)))
	writeJSON(w, http.StatusOK, hosts)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	s.control.Connect()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "connecting"})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.control.Disconnect()
	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if err := s.control.Toggle(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
