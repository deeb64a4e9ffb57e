// Package sse streams pipeline run events to HTTP clients as Server-Sent Events.
package sse

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	// WriteTimeout bounds a single write to a client so a stale connection
	// cannot hold up a broadcast.
	WriteTimeout = 2 * time.Second
	// KeepAliveInterval is the period of comment frames sent to idle clients.
	KeepAliveInterval = 15 * time.Second
)

var errClientClosed = errors.New("sse client closed")

// Typed is implemented by events that carry an SSE event name.
type Typed interface {
	EventType() string
}

// Client represents a connected SSE client.
type Client struct {
	Writer  http.ResponseWriter
	Flusher http.Flusher
	Done    chan struct{}
	ID      string
	mu      sync.Mutex // serializes writes from broadcasts and keep-alives
	closed  bool       // set once the handler owning Writer has returned; guarded by mu
}

// close marks the client unwritable. It waits for an in-flight write to finish.
func (c *Client) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Broadcaster manages SSE client connections and message broadcasting.
type Broadcaster struct {
	clients map[string]*Client
	mu      sync.RWMutex
	nextID  int
}

// NewBroadcaster creates a new SSE broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]*Client),
	}
}

// AddClient registers a streaming response writer.
func (b *Broadcaster) AddClient(w http.ResponseWriter) (*Client, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	b.mu.Lock()
	b.nextID++
	id := fmt.Sprintf("client-%d", b.nextID)
	client := &Client{
		ID:      id,
		Writer:  w,
		Flusher: flusher,
		Done:    make(chan struct{}),
	}
	b.clients[id] = client
	clientCount := len(b.clients)
	b.mu.Unlock()

	log.Debug().
		Str("clientId", id).
		Int("totalClients", clientCount).
		Msg("SSE client connected")

	return client, nil
}

// RemoveClient unregisters a client. Safe to call more than once.
func (b *Broadcaster) RemoveClient(client *Client) {
	b.mu.Lock()
	_, exists := b.clients[client.ID]
	delete(b.clients, client.ID)
	clientCount := len(b.clients)
	b.mu.Unlock()

	if !exists {
		return
	}
	select {
	case <-client.Done:
	default:
		close(client.Done)
	}

	log.Debug().
		Str("clientId", client.ID).
		Int("totalClients", clientCount).
		Msg("SSE client disconnected")
}

// Broadcast sends data to every connected client as one SSE message.
// Values implementing Typed are sent with an "event:" line.
func (b *Broadcaster) Broadcast(data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal SSE data")
		return
	}

	message := formatMessage(data, payload)

	b.mu.RLock()
	clients := make([]*Client, 0, len(b.clients))
	for _, client := range b.clients {
		clients = append(clients, client)
	}
	b.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	deadCh := make(chan *Client, len(clients))
	var wg sync.WaitGroup
	for _, client := range clients {
		select {
		case <-client.Done:
			continue
		default:
		}
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			if !b.writeToClient(c, message) {
				deadCh <- c
			}
		}(client)
	}
	wg.Wait()
	close(deadCh)

	for c := range deadCh {
		b.RemoveClient(c)
	}
}

func formatMessage(data interface{}, payload []byte) string {
	if t, ok := data.(Typed); ok && t.EventType() != "" {
		return fmt.Sprintf("event: %s\ndata: %s\n\n", t.EventType(), payload)
	}
	return fmt.Sprintf("data: %s\n\n", payload)
}

// writeToClient writes message with a timeout and reports whether the client is still usable.
func (b *Broadcaster) writeToClient(client *Client, message string) bool {
	errCh := make(chan error, 1)
	go func() {
		client.mu.Lock()
		defer client.mu.Unlock()
		if client.closed {
			errCh <- errClientClosed
			return
		}
		_, err := client.Writer.Write([]byte(message))
		if err == nil {
			client.Flusher.Flush()
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Debug().Str("clientId", client.ID).Err(err).Msg("Failed to write to SSE client, marking for removal")
			return false
		}
		return true
	case <-time.After(WriteTimeout):
		log.Warn().Str("clientId", client.ID).Dur("timeout", WriteTimeout).Msg("SSE write timed out, marking client for removal")
		return false
	case <-client.Done:
		return false
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// HandleSSE serves the event stream until the request context ends.
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	client, err := b.AddClient(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer func() {
		b.RemoveClient(client)
		client.close()
	}()

	client.mu.Lock()
	fmt.Fprintf(w, "event: connected\ndata: {\"clientId\":%q}\n\n", client.ID)
	client.Flusher.Flush()
	client.mu.Unlock()

	ticker := time.NewTicker(KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.Done:
			return
		case <-ticker.C:
			if !b.writeToClient(client, ": keep-alive\n\n") {
				return
			}
		}
	}
}
