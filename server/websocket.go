package server

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kiosk-next/kioskd/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     isSameOrigin,
}

type wsConnection struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (wsc *wsConnection) sendJSON(v interface{}) error {
	wsc.writeMu.Lock()
	defer wsc.writeMu.Unlock()
	return wsc.conn.WriteJSON(v)
}

func isSameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	return originURL.Host == r.Host
}

// handleEvents upgrades the connection and streams controller events to the
// client until either side goes away. The first frame is a status snapshot.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		utils.Warn("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	wsConn := &wsConnection{conn: conn}

	id, events := s.controller.Subscribe()
	defer s.controller.Unsubscribe(id)

	// the read loop only exists to notice the client closing
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				utils.Verbose("websocket connection closed: %v", err)
				return
			}
		}
	}()

	snapshot := map[string]interface{}{
		"type":   "status",
		"time":   time.Now(),
		"status": s.controller.Status(),
	}
	if err := wsConn.sendJSON(snapshot); err != nil {
		return
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := wsConn.sendJSON(ev); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
