package daemon

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"harvest/internal/api"
	"harvest/internal/config"
	"harvest/internal/logging"
	"harvest/internal/queue"
)

// eventHub broadcasts job lifecycle events to websocket subscribers. It
// watches the queue by polling and diffing job statuses, so events cover
// every writer, including other machines sharing the queue database.
type eventHub struct {
	store    *queue.Store
	logger   *slog.Logger
	interval time.Duration
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	seen    map[int64]queue.Status
	primed  bool
}

func newEventHub(store *queue.Store, cfg *config.Config, logger *slog.Logger) *eventHub {
	interval := 2 * time.Second
	if cfg.Workflow.QueuePollInterval > 0 {
		interval = time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
	}
	return &eventHub{
		store:    store,
		logger:   logging.NewComponentLogger(logger, "events"),
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
		seen:    make(map[int64]queue.Status),
	}
}

func (h *eventHub) start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				h.closeAll()
				return
			case <-ticker.C:
				h.poll(ctx)
			}
		}
	}()
}

func (h *eventHub) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("event subscriber connected", logging.Int("clients", count))

	// Reader drains control frames and detects disconnects.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *eventHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		_ = conn.Close()
	}
	h.mu.Unlock()
}

func (h *eventHub) closeAll() {
	h.mu.Lock()
	for conn := range h.clients {
		_ = conn.Close()
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

// poll diffs job statuses since the previous tick and broadcasts one event
// per transition.
func (h *eventHub) poll(ctx context.Context) {
	jobs, err := h.store.ListAll(ctx)
	if err != nil {
		h.logger.Warn("event poll failed", logging.Error(err))
		return
	}

	h.mu.Lock()
	next := make(map[int64]queue.Status, len(jobs))
	var events []api.Event
	for _, job := range jobs {
		next[job.ID] = job.Status
		prev, known := h.seen[job.ID]
		if !known {
			events = append(events, api.NewEvent("job_created", job, ""))
			if job.Status != queue.StatusPending {
				events = append(events, api.NewEvent("job_updated", job, job.ErrorMessage))
			}
			continue
		}
		if prev != job.Status {
			events = append(events, api.NewEvent("job_updated", job, job.ErrorMessage))
		}
	}
	firstPoll := !h.primed
	h.primed = true
	h.seen = next
	h.mu.Unlock()

	// The first poll after startup only seeds the baseline.
	if firstPoll {
		return
	}
	for _, evt := range events {
		h.broadcast(evt)
	}
}

func (h *eventHub) broadcast(evt api.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		h.logger.Warn("failed to marshal event", logging.Error(err))
		return
	}
	h.mu.Lock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			_ = conn.Close()
			delete(h.clients, conn)
		}
	}
	h.mu.Unlock()
}
