package viz

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// Clients only send control frames.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamHandler upgrades to a websocket and pushes every published
// snapshot as a JSON text message, starting with the latest one.
func (p *Publisher) StreamHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[viz] websocket upgrade failed: %v", err)
			return
		}
		snapshots, unsubscribe := p.Subscribe()
		defer unsubscribe()

		closed := make(chan struct{})
		go readPump(conn, closed)
		writePump(conn, p, snapshots, closed)
	}
}

// readPump discards client messages and signals when the peer goes away.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[viz] websocket read error: %v", err)
			}
			return
		}
	}
}

func writePump(conn *websocket.Conn, p *Publisher, snapshots <-chan Snapshot, closed <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	if s, ok := p.Latest(); ok {
		if err := writeSnapshot(conn, s); err != nil {
			return
		}
	}
	for {
		select {
		case <-closed:
			return
		case s := <-snapshots:
			if err := writeSnapshot(conn, s); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeSnapshot(conn *websocket.Conn, s Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}
