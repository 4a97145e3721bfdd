// Package rpc provides a JSON-RPC 2.0 server for the chainhop daemon.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/chainhop-exchange/chainhop/internal/encoder"
	"github.com/chainhop-exchange/chainhop/internal/quote"
	"github.com/chainhop-exchange/chainhop/internal/registry"
	"github.com/chainhop-exchange/chainhop/internal/route"
	"github.com/chainhop-exchange/chainhop/internal/storage"
	"github.com/chainhop-exchange/chainhop/internal/tracker"
	"github.com/chainhop-exchange/chainhop/pkg/logging"
)

// Server is a JSON-RPC 2.0 server over the aggregator core.
type Server struct {
	reg     *registry.Registry
	builder *route.Builder
	agg     *quote.Aggregator
	enc     *encoder.Encoder
	track   *tracker.Tracker
	store   *storage.Storage
	log     *logging.Logger
	wsHub   *WSHub

	server   *http.Server
	listener net.Listener

	handlers map[string]Handler

	// quotes issued by the most recent batch, keyed by quote id. A new
	// batch replaces the whole set.
	mu     sync.Mutex
	quotes map[string]*quote.Quote
}

// Handler is a JSON-RPC method handler.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Standard error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// NewServer creates a new JSON-RPC server.
func NewServer(reg *registry.Registry, builder *route.Builder, agg *quote.Aggregator,
	enc *encoder.Encoder, track *tracker.Tracker, store *storage.Storage, log *logging.Logger) *Server {
	s := &Server{
		reg:      reg,
		builder:  builder,
		agg:      agg,
		enc:      enc,
		track:    track,
		store:    store,
		log:      log.Component("rpc"),
		handlers: make(map[string]Handler),
		quotes:   make(map[string]*quote.Quote),
	}
	s.registerHandlers()
	return s
}

// registerHandlers registers all JSON-RPC method handlers.
func (s *Server) registerHandlers() {
	// Registry methods
	s.handlers["chains_list"] = s.chainsList
	s.handlers["tokens_list"] = s.tokensList

	// Quote methods
	s.handlers["quotes_request"] = s.quotesRequest
	s.handlers["quotes_confirm"] = s.quotesConfirm

	// Swap tracking methods
	s.handlers["swaps_track"] = s.swapsTrack
	s.handlers["swaps_get"] = s.swapsGet
	s.handlers["swaps_list"] = s.swapsList

	// Preference methods
	s.handlers["prefs_get"] = s.prefsGet
	s.handlers["prefs_set"] = s.prefsSet
}

// Start starts the RPC server and begins forwarding tracker notifications to
// WebSocket subscribers.
func (s *Server) Start(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	s.wsHub = NewWSHub(s.log)
	go s.wsHub.Run()
	go s.forwardNotifications(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /", s.handleRPC)
	mux.HandleFunc("GET /ws", s.handleWS)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("RPC server error", "error", err)
		}
	}()

	s.log.Info("RPC server started", "addr", listener.Addr(), "ws", "ws://"+listener.Addr().String()+"/ws")
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop stops the RPC server.
func (s *Server) Stop() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

// WSHub returns the WebSocket hub.
func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

// forwardNotifications relays tracker notifications to WebSocket clients.
func (s *Server) forwardNotifications(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-s.track.Notifications():
			s.wsHub.Broadcast(EventSwapUpdate, map[string]string{
				"kind":    string(n.Kind),
				"swap_id": n.SwapID,
				"message": n.Message,
			})
		}
	}
}

// handleRPC handles incoming JSON-RPC requests.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, nil, ParseError, "Parse error", nil)
		return
	}

	if req.JSONRPC != "2.0" {
		s.writeError(w, req.ID, InvalidRequest, "Invalid Request", nil)
		return
	}

	handler, ok := s.handlers[req.Method]
	if !ok {
		s.writeError(w, req.ID, MethodNotFound, "Method not found", req.Method)
		return
	}

	result, err := handler(r.Context(), req.Params)
	if err != nil {
		s.writeError(w, req.ID, InternalError, err.Error(), nil)
		return
	}

	s.writeResult(w, req.ID, result)
}

// writeResult writes a successful response.
func (s *Server) writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, id interface{}, code int, message string, data interface{}) {
	resp := Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
