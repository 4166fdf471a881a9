package bridge

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Handler upgrades every incoming request to a WebSocket and registers it
// under a freshly minted client ID, matching the single-writer-per-
// connection discipline Register establishes. Mount at the ws_port
// listener's root.
func (b *Bridge) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.log.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
			return
		}

		clientID := r.URL.Query().Get("clientId")
		if clientID == "" {
			clientID = uuid.NewString()
		}
		b.log.Info("client connected", "client", clientID, "remote", r.RemoteAddr)
		b.Register(clientID, conn)
	})
}
