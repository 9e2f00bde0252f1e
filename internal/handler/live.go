package handler

import (
	"log"
	"net/http"
	"sync"
	"time"

	"finsight/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Hub fans refreshed market contexts out to connected websocket
// clients. It implements service.SummaryPublisher; the background
// refresher publishes through it after every sweep.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]bool)}
}

// Publish sends the context to every client. Slow or broken clients
// are dropped rather than allowed to stall the refresher.
func (h *Hub) Publish(mc *domain.MarketContext) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(mc); err != nil {
			log.Printf("websocket publish failed, dropping client: %v", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[conn] {
		delete(h.clients, conn)
		conn.Close()
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is already CORS-fronted; the websocket endpoint carries
	// no per-user data.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// LiveMarketContext godoc
// @Summary      Stream refreshed market summaries
// @Description  Upgrades to a websocket; pushes the market context after every background refresh
// @Tags         market
// @Router       /api/market-context/live [get]
func (h *Handler) LiveMarketContext(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live stream unavailable"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade: %v", err)
		return
	}
	h.hub.add(conn)

	// Reads are discarded; the socket exists only for pushes. The read
	// loop notices disconnects.
	go func() {
		defer h.hub.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
