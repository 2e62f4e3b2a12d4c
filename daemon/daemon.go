package daemon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sevlyar/go-daemon"

	"github.com/kiosk-next/kioskd/server"
)

const (
	// DaemonEnvVar is the environment variable that marks a daemon child process
	DaemonEnvVar = "KIOSKD_DAEMON_CHILD"

	// rpcRequestID is the JSON-RPC request ID used for control commands
	rpcRequestID = 1
)

// Daemonize detaches the process and returns the child process handle.
// If the returned process is nil, this is the child process.
// If the returned process is non-nil, this is the parent process.
func Daemonize() (*os.Process, error) {
	// no PID file needed; the control server is the daemon's identity
	ctx := &daemon.Context{
		PidFileName: "",
		PidFilePerm: 0,
		LogFileName: "",
		LogFilePerm: 0,
		WorkDir:     "/",
		Umask:       027,
		Args:        os.Args,
		Env:         append(os.Environ(), fmt.Sprintf("%s=1", DaemonEnvVar)),
	}

	child, err := ctx.Reborn()
	if err != nil {
		return nil, fmt.Errorf("failed to daemonize: %w", err)
	}

	return child, nil
}

// IsChild returns true if this is the daemon child process
func IsChild() bool {
	return os.Getenv(DaemonEnvVar) == "1"
}

// StopService connects to the control server and sends a shutdown command
// via JSON-RPC.
func StopService(addr string) error {
	_, err := call(addr, "service.shutdown")
	return err
}

// QueryStatus fetches the running daemon's status snapshot via JSON-RPC.
func QueryStatus(addr string) (json.RawMessage, error) {
	return call(addr, "service.status")
}

// RunDoctor asks the running daemon for its diagnostics via JSON-RPC.
func RunDoctor(addr string) (json.RawMessage, error) {
	return call(addr, "doctor")
}

func call(addr, method string) (json.RawMessage, error) {
	addr = normalizeAddr(addr)

	reqBody := server.JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		ID:      rpcRequestID,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequest(http.MethodPost, addr+"/rpc", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if strings.Contains(err.Error(), "connection refused") {
			return nil, fmt.Errorf("kioskd is not running on %s", addr)
		}
		return nil, fmt.Errorf("failed to connect to kioskd: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kioskd returned error: %s", resp.Status)
	}

	var rpcResp struct {
		Result json.RawMessage        `json:"result"`
		Error  map[string]interface{} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("rpc error: %v", rpcResp.Error["message"])
	}
	return rpcResp.Result, nil
}

// normalizeAddr turns a bare port, ":port", or "host:port" into a full
// http URL.
func normalizeAddr(addr string) string {
	// if no colon, assume it's a bare port number
	if !strings.Contains(addr, ":") {
		if _, err := strconv.Atoi(addr); err == nil {
			addr = ":" + addr
		}
	}

	// if address starts with colon, prepend localhost
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	return "http://" + addr
}
