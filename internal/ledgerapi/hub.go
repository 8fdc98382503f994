package ledgerapi

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rawblock/idx-consortium-ledger/internal/eventbus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub broadcasts the event bus's transaction_pending/block_mined/consensus/
// transaction_completed stream to every connected dashboard, the WebSocket
// leg of the concurrency model's event bus component (§5).
type Hub struct {
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
}

// NewHub builds a Hub and subscribes it to every event name the dashboard
// cares about.
func NewHub(bus *eventbus.Bus) *Hub {
	h := &Hub{clients: make(map[*websocket.Conn]bool)}
	for _, name := range []string{
		eventbus.TransactionPending,
		eventbus.TransactionConfirmed,
		eventbus.TransactionRejected,
		eventbus.BlockMined,
		eventbus.Consensus,
		eventbus.TransactionCompleted,
	} {
		go h.relay(bus.Subscribe(name))
	}
	return h
}

func (h *Hub) relay(events <-chan eventbus.Event) {
	for evt := range events {
		payload, err := json.Marshal(map[string]any{"event": evt.Name, "data": evt.Data})
		if err != nil {
			log.Printf("[hub] failed to marshal %s: %v", evt.Name, err)
			continue
		}
		h.broadcast(payload)
	}
}

func (h *Hub) broadcast(message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
			client.Close()
			delete(h.clients, client)
		}
	}
}

// Subscribe upgrades the request to a WebSocket and registers it as a
// broadcast target until it disconnects.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[hub] upgrade failed: %v", err)
		return
	}
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
