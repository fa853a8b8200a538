package coordinator

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/chatmesh/server/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// AdminEvent is one event pushed to connected admin-stream clients. The
// only kind the coordinator broadcasts is "message_logged" (from
// logChatMessage); roster-membership and transaction-decision changes are
// not broadcast. This is a read-only observability feed — it never
// influences 2PC or placement decisions.
type AdminEvent struct {
	Kind string `json:"kind"`
	Body string `json:"body"`
}

// AdminHub fans out AdminEvents to every connected admin websocket client.
type AdminHub struct {
	allowedOrigins []string

	mu      sync.Mutex
	clients map[*websocket.Conn]chan AdminEvent
}

// NewAdminHub constructs an AdminHub. allowedOrigins gates the websocket
// CheckOrigin the way the teacher's session hub does.
func NewAdminHub(allowedOrigins []string) *AdminHub {
	return &AdminHub{
		allowedOrigins: allowedOrigins,
		clients:        make(map[*websocket.Conn]chan AdminEvent),
	}
}

// Broadcast pushes ev to every connected admin client, dropping it for any
// client whose outbound buffer is full rather than blocking the caller.
func (h *AdminHub) Broadcast(ev AdminEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.clients {
		select {
		case ch <- ev:
		default:
		}
	}
}

// ServeWs upgrades the request to a websocket and streams AdminEvents to
// the caller until the connection closes.
func (h *AdminHub) ServeWs(c *gin.Context) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			originURL, err := url.Parse(origin)
			if err != nil {
				return false
			}
			for _, allowed := range h.allowedOrigins {
				if allowed == "*" {
					return true
				}
				allowedURL, err := url.Parse(allowed)
				if err != nil {
					continue
				}
				if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(c.Request.Context(), "admin websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ch := make(chan AdminEvent, 32)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}
