package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/oisp-sensor/core/pkg/event"
)

// WebSocketExporter fans every event out to every currently-connected UI
// client over a plain JSON WebSocket frame, plus a couple of read-only HTTP
// endpoints for liveness and counters. Clients that aren't keeping up are
// disconnected rather than allowed to back-pressure the pipeline.
type WebSocketExporter struct {
	ListenAddr string
	Counters   func() Snapshot
	Log        *slog.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}

	server *http.Server
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func (e *WebSocketExporter) Name() string { return "export.websocket" }

// Serve starts the HTTP server and blocks until ctx is cancelled.
func (e *WebSocketExporter) Serve(ctx context.Context) error {
	log := e.Log
	if log == nil {
		log = slog.Default()
	}
	e.clients = make(map[*wsClient]struct{})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/stats", func(c *gin.Context) {
		if e.Counters == nil {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		c.JSON(http.StatusOK, e.Counters())
	})
	router.GET("/events", func(c *gin.Context) {
		e.handleWS(c.Writer, c.Request, log)
	})

	e.server = &http.Server{Addr: e.ListenAddr, Handler: router}

	errCh := make(chan error, 1)
	go func() { errCh <- e.server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return e.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (e *WebSocketExporter) handleWS(w http.ResponseWriter, r *http.Request, log *slog.Logger) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Debug("export.websocket: accept failed", "error", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, 256)}
	e.mu.Lock()
	e.clients[client] = struct{}{}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.clients, client)
		e.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := r.Context()
	for {
		select {
		case msg, ok := <-client.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Export broadcasts ev to every connected client, dropping clients whose
// send buffer is already full rather than blocking the exporter stage.
func (e *WebSocketExporter) Export(ctx context.Context, ev event.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for c := range e.clients {
		select {
		case c.send <- payload:
		default:
			delete(e.clients, c)
			close(c.send)
		}
	}
	return nil
}

func (e *WebSocketExporter) Flush(ctx context.Context) error {
	if e.server == nil {
		return nil
	}
	return e.server.Shutdown(ctx)
}
