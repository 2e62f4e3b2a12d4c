package commands

import (
	"sync"
)

// CommandResponse represents a standardized response format for all commands
type CommandResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data interface{}) *CommandResponse {
	return &CommandResponse{
		Status: "ok",
		Data:   data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(err error) *CommandResponse {
	return &CommandResponse{
		Status: "error",
		Error:  err.Error(),
	}
}

var (
	shutdownMu sync.Mutex
	shutdownFn func()
)

// registerShutdown stores the cancel function of the running service so the
// process-level signal handler in main can reach it.
func registerShutdown(fn func()) {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	shutdownFn = fn
}

// Shutdown stops the running service, if any. Safe to call when no service
// is running.
func Shutdown() {
	shutdownMu.Lock()
	fn := shutdownFn
	shutdownMu.Unlock()

	if fn != nil {
		fn()
	}
}
