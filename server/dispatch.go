package server

import (
	"encoding/json"
)

// HandlerFunc is the signature for JSON-RPC method handlers.
type HandlerFunc func(params json.RawMessage) (interface{}, error)

// methodRegistry maps method names to handlers.
func (s *Server) methodRegistry() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		"service.status":   s.handleStatus,
		"service.shutdown": s.handleShutdown,
		"doctor":           s.handleDoctor,
	}
}
