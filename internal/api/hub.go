package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/timbang-id/timbang/internal/infra/framing"
)

// ─── Live Reading Feed ──────────────────────────────────────────────────────
// The operator screen follows the indicator through Server-Sent Events:
//   data: {"weight":12345,"raw":"+012345kg","channel":"frame","at":"..."}

// ReadingHub fans accepted readings out to SSE clients.
type ReadingHub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
	last    []byte // most recent reading, replayed to new clients
	done    chan struct{}
	once    sync.Once
}

// NewReadingHub creates a new reading broadcast hub.
func NewReadingHub() *ReadingHub {
	return &ReadingHub{
		clients: make(map[chan []byte]struct{}),
		done:    make(chan struct{}),
	}
}

// Close ends every open stream. SSE connections never go idle, so
// http.Server.Shutdown needs this registered via RegisterOnShutdown.
func (h *ReadingHub) Close() {
	h.once.Do(func() { close(h.done) })
}

// Broadcast sends a reading to all connected clients.
// It runs on the serial reader goroutine and never blocks.
func (h *ReadingHub) Broadcast(r framing.Reading) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = data
	for ch := range h.clients {
		select {
		case ch <- data:
		default:
			// Client too slow, drop the reading. A newer one follows.
		}
	}
}

// Subscribe registers a new client. Returns the channel and an unsubscribe func.
func (h *ReadingHub) Subscribe() (chan []byte, func()) {
	ch := make(chan []byte, 32)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	if h.last != nil {
		ch <- h.last
	}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// ClientCount returns the number of connected clients.
func (h *ReadingHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleSSE serves the live reading feed.
// GET /api/scale/live
func (h *ReadingHub) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe before the headers go out so a client that has seen the
	// response never misses a broadcast.
	ch, unsub := h.Subscribe()
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		case data := <-ch:
			w.Write([]byte("data: "))
			w.Write(data)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
