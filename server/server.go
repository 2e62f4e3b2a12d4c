package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kiosk-next/kioskd/service"
	"github.com/kiosk-next/kioskd/utils"
)

const (
	// Parse error: Invalid JSON was received by the server
	ErrCodeParseError = -32700

	// Invalid Request: The JSON sent is not a valid Request object
	ErrCodeInvalidRequest = -32600

	// Method not found: The method does not exist / is not available
	ErrCodeMethodNotFound = -32601

	// Server error: Internal JSON-RPC error
	ErrCodeServerError = -32000
)

// Server timeouts
const (
	ReadTimeout  = 10 * time.Second
	WriteTimeout = 10 * time.Second
	IdleTimeout  = 120 * time.Second
)

var okResponse = map[string]interface{}{"status": "ok"}

type JSONRPCRequest struct {
	// these fields are all omitempty, so we can report back to client if they are missing
	JSONRPC string          `json:"jsonrpc,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC response
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   interface{} `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Server is the loopback control surface of the daemon: JSON-RPC on /rpc,
// a live event stream on /events.
type Server struct {
	controller *service.Controller
	// shutdown asks the daemon to stop; invoked by the service.shutdown method
	shutdown func()
	// doctor produces the diagnostics payload for the doctor method
	doctor func() (interface{}, error)

	httpServer *http.Server
}

// New builds a control server over the running controller. shutdown is
// called when a client requests service.shutdown; doctor backs the doctor
// method and may be nil.
func New(controller *service.Controller, shutdown func(), doctor func() (interface{}, error)) *Server {
	return &Server{
		controller: controller,
		shutdown:   shutdown,
		doctor:     doctor,
	}
}

// Start listens on addr and serves until Stop or a listener error.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.sendBanner)
	mux.HandleFunc("/rpc", s.handleJSONRPC)
	mux.HandleFunc("/events", s.handleEvents)

	// if host is missing, default to localhost
	if !strings.Contains(addr, ":") {
		port, err := strconv.Atoi(addr)
		if err != nil {
			return fmt.Errorf("invalid port: %v", err)
		}
		addr = fmt.Sprintf(":%d", port)
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
		IdleTimeout:  IdleTimeout,
	}

	utils.Info("control server listening on http://%s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Stop shuts the HTTP listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONRPCError(w, nil, ErrCodeParseError, "Parse error", "expecting jsonrpc payload")
		return
	}

	if req.JSONRPC != "2.0" {
		sendJSONRPCError(w, req.ID, ErrCodeInvalidRequest, "Invalid Request", "'jsonrpc' must be '2.0'")
		return
	}

	if req.ID == nil {
		sendJSONRPCError(w, nil, ErrCodeInvalidRequest, "Invalid Request", "'id' field is required")
		return
	}

	if req.Method == "" {
		sendJSONRPCError(w, req.ID, ErrCodeInvalidRequest, "Invalid Request", "'method' is required")
		return
	}

	utils.Verbose("rpc request id=%v method=%s", req.ID, req.Method)

	handler, exists := s.methodRegistry()[req.Method]
	if !exists {
		sendJSONRPCError(w, req.ID, ErrCodeMethodNotFound, "Method not found", fmt.Sprintf("Method '%s' not found", req.Method))
		return
	}

	result, err := handler(req.Params)
	if err != nil {
		utils.Error("rpc method %s failed: %v", req.Method, err)
		sendJSONRPCError(w, req.ID, ErrCodeServerError, "Server error", err.Error())
		return
	}

	sendJSONRPCResponse(w, req.ID, result)
}

func sendJSONRPCResponse(w http.ResponseWriter, id interface{}, result interface{}) {
	response := JSONRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func sendJSONRPCError(w http.ResponseWriter, id interface{}, code int, message string, data interface{}) {
	response := JSONRPCResponse{
		JSONRPC: "2.0",
		Error: map[string]interface{}{
			"code":    code,
			"message": message,
			"data":    data,
		},
		ID: id,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func (s *Server) sendBanner(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(okResponse)
}

func (s *Server) handleStatus(params json.RawMessage) (interface{}, error) {
	return s.controller.Status(), nil
}

func (s *Server) handleShutdown(params json.RawMessage) (interface{}, error) {
	utils.Info("shutdown requested over rpc")
	// respond first; the actual shutdown follows on its own goroutine
	go s.shutdown()
	return okResponse, nil
}

func (s *Server) handleDoctor(params json.RawMessage) (interface{}, error) {
	if s.doctor == nil {
		return nil, fmt.Errorf("diagnostics not available")
	}
	return s.doctor()
}
