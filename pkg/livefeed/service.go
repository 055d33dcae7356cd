// Package livefeed exposes the run over HTTP: a status page, the latest
// sample, and a websocket broadcasting every sample as it is recorded.
package livefeed

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/synchlab/pvlogger/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans samples out to connected websocket clients and remembers the
// latest one. It implements the recorder's SampleSink.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
	latest  *types.Sample
	server  *http.Server
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
	}
}

// Record stores the sample as latest and broadcasts it. Always returns nil;
// a slow or dead client only gets dropped, it never affects the run.
func (h *Hub) Record(sample *types.Sample) error {
	h.mu.Lock()
	h.latest = sample
	h.mu.Unlock()
	h.broadcast(sample)
	return nil
}

func (h *Hub) Latest() *types.Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}

// Serve blocks on the HTTP listener. http.ErrServerClosed follows a clean
// Shutdown.
func (h *Hub) Serve(addr string) error {
	h.server = &http.Server{Addr: addr, Handler: h.Handler()}
	log.Infof("starting live feed on %s", addr)
	return h.server.ListenAndServe()
}

func (h *Hub) Shutdown() {
	if h.server != nil {
		h.server.Close()
	}
}

func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		response := map[string]string{
			"message": "pvlogger live feed",
			"status":  "running",
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	})

	mux.HandleFunc("/latest", func(w http.ResponseWriter, r *http.Request) {
		sample := h.Latest()
		w.Header().Set("Content-Type", "application/json")
		if sample == nil {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{
				"error": "No samples available yet",
			})
			return
		}
		w.Write(sample.ToJsonBytes())
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warnf("websocket upgrade error: %v", err)
			return
		}

		h.addClient(conn)

		// Send the current sample immediately if available
		if sample := h.Latest(); sample != nil {
			conn.WriteMessage(websocket.TextMessage, sample.ToJsonBytes())
		}

		// Keep connection alive
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				h.removeClient(conn)
				break
			}
		}
	})

	return mux
}

func (h *Hub) broadcast(sample *types.Sample) {
	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	data := sample.ToJsonBytes()
	for _, client := range clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			h.removeClient(client)
		}
	}
}

func (h *Hub) addClient(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}
