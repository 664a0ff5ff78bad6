// Package hub delivers diagram events to connected renderer clients over
// Server-Sent Events. Every graph payload is a full replacement; clients
// reconcile nodes and edges by ID, so a renderer that attaches mid-session
// is handed the current graph as its first event and needs no catch-up
// protocol beyond that.
package hub

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"schemascope/internal/domain"
	"schemascope/internal/service"
)

// renderer is one connected SSE client. frames carries wire-ready SSE
// frames, encoded once per event in the hub loop rather than per client.
type renderer struct {
	id     string
	frames chan []byte
}

// Hub fans diagram events out to every connected renderer.
type Hub struct {
	mu        sync.RWMutex
	renderers map[*renderer]struct{}
	attach    chan *renderer
	detach    chan *renderer
	events    chan service.Event

	// snapshot produces the current graph for a renderer attaching
	// mid-session. It is replayed to that renderer as a graph_updated
	// event before anything else, so the client has a diagram to draw
	// without waiting for the next mutation.
	snapshot func() *domain.Graph
}

// New creates a hub. The snapshot function may be nil, in which case newly
// attached renderers wait for the next broadcast instead.
func New(snapshot func() *domain.Graph) *Hub {
	return &Hub{
		renderers: make(map[*renderer]struct{}),
		attach:    make(chan *renderer),
		detach:    make(chan *renderer),
		events:    make(chan service.Event, 256),
		snapshot:  snapshot,
	}
}

// Run drives the hub loop: renderer attach/detach bookkeeping and event
// fan-out. A renderer that cannot keep up skips frames rather than
// stalling the rest.
func (h *Hub) Run() {
	for {
		select {
		case r := <-h.attach:
			h.mu.Lock()
			h.renderers[r] = struct{}{}
			total := len(h.renderers)
			h.mu.Unlock()
			log.Printf("Renderer %s connected (total: %d)", r.id, total)

		case r := <-h.detach:
			h.mu.Lock()
			if _, ok := h.renderers[r]; ok {
				delete(h.renderers, r)
				close(r.frames)
			}
			total := len(h.renderers)
			h.mu.Unlock()
			log.Printf("Renderer %s disconnected (total: %d)", r.id, total)

		case event := <-h.events:
			frame, err := encodeFrame(event)
			if err != nil {
				log.Printf("Failed to encode %s event: %v", event.Type, err)
				continue
			}

			h.mu.RLock()
			for r := range h.renderers {
				select {
				case r.frames <- frame:
				default:
					log.Printf("Renderer %s is slow, skipping %s event", r.id, event.Type)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast queues a diagram event for delivery to every renderer.
func (h *Hub) Broadcast(event service.Event) {
	select {
	case h.events <- event:
	default:
		log.Printf("Event queue full, dropping %s event", event.Type)
	}
}

// RendererCount returns the number of connected renderers.
func (h *Hub) RendererCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.renderers)
}

// encodeFrame turns an event into one wire-ready SSE frame.
func encodeFrame(event service.Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("data: %s\n\n", data)), nil
}

// ServeHTTP handles one SSE renderer connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	r := &renderer{
		id:     fmt.Sprintf("%d", time.Now().UnixNano()),
		frames: make(chan []byte, 64),
	}

	h.attach <- r
	defer func() {
		h.detach <- r
	}()

	// Replay the current graph so a mid-session attach renders immediately
	// instead of showing an empty canvas until the next mutation.
	if h.snapshot != nil {
		frame, err := encodeFrame(service.Event{
			Type:    service.EventGraphUpdated,
			Payload: h.snapshot(),
		})
		if err != nil {
			log.Printf("Failed to encode snapshot for renderer %s: %v", r.id, err)
		} else {
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case frame, ok := <-r.frames:
			if !ok {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()

		case <-keepalive.C:
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-req.Context().Done():
			return
		}
	}
}
