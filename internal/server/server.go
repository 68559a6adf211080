package server

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"thermal-relay-go/internal/logging"
	"thermal-relay-go/internal/metrics"
	"thermal-relay-go/internal/processing"
	"thermal-relay-go/internal/types"
)

//go:embed web/*
var webFS embed.FS

type Options struct {
	Listen string
	// Config is served on /config and sent to every new client.
	Config map[string]any
	Status func() map[string]any
	// Cursor reports the identifier of the frame being rendered.
	Cursor func() int64
}

// Server is the browser renderer: every rendered frame is pushed to all
// connected websocket clients.
type Server struct {
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]*sync.Mutex
	mu       sync.Mutex
	opts     Options
	messages chan types.FrameSnapshot
	latest   atomic.Pointer[types.FrameSnapshot]
	log      zerolog.Logger
}

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10
)

func New(opts Options) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:  make(map[*websocket.Conn]*sync.Mutex),
		opts:     opts,
		messages: make(chan types.FrameSnapshot, 16),
		log:      logging.With().Str("component", "http").Logger(),
	}
}

// Render queues a frame for broadcast. When clients fall behind the frame
// is dropped rather than stalling the replay loop.
func (s *Server) Render(frame types.Frame, scale types.Scale) {
	snapshot := types.FrameSnapshot{
		Type:   "frame",
		Rows:   frame.Rows,
		Cols:   frame.Cols,
		Values: frame.Values,
		Scale:  scale,
		Ticks:  processing.Ticks(scale),
	}
	if s.opts.Cursor != nil {
		snapshot.Identifier = s.opts.Cursor()
	}
	s.latest.Store(&snapshot)
	select {
	case s.messages <- snapshot:
	default:
	}
}

func (s *Server) Handler() (http.Handler, error) {
	sub, err := fs.Sub(webFS, "web")
	if err != nil {
		return nil, err
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ws", s.handleWS)
	r.Get("/healthz", s.handleHealth)
	r.Get("/config", s.handleConfig)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/*", http.FileServer(http.FS(sub)))
	return r, nil
}

// Serve runs the HTTP server and the broadcaster until ctx is done or the
// listener fails. Both goroutines have exited when Serve returns, so a
// supervisor can restart it without leaking.
func (s *Server) Serve(ctx context.Context) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              s.opts.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveCtx, stop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		stop()
		wg.Wait()
	}()

	wg.Add(2)
	go func() {
		defer wg.Done()
		<-serveCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
	go func() {
		defer wg.Done()
		s.broadcast(serveCtx)
	}()

	s.log.Info().Str("listen", s.opts.Listen).Msg("display server listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.mu.Lock()
	writeMu := &sync.Mutex{}
	s.clients[conn] = writeMu
	count := len(s.clients)
	s.mu.Unlock()
	metrics.WebsocketClients.Set(float64(count))

	_ = s.writeJSON(conn, writeMu, s.configPayload("config"))

	go func() {
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(pingEvery)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if err := s.writeMessage(conn, writeMu, websocket.PingMessage, nil); err != nil {
						_ = conn.Close()
						return
					}
				}
			}
		}()
		defer close(done)
		defer s.removeClient(conn)
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			var request map[string]any
			if err := json.Unmarshal(payload, &request); err != nil {
				continue
			}
			if request["type"] == "snapshot_request" {
				snapshot := s.latest.Load()
				if snapshot == nil {
					continue
				}
				_ = s.writeJSON(conn, writeMu, snapshot)
			}
		}
	}()
}

func (s *Server) configPayload(kind string) map[string]any {
	payload := map[string]any{}
	for k, v := range s.opts.Config {
		payload[k] = v
	}
	if kind != "" {
		payload["type"] = kind
	}
	return payload
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.configPayload(""))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]any{}
	if s.opts.Status != nil {
		payload = s.opts.Status()
	}
	payload["ws_clients"] = s.clientCount()
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) broadcast(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-s.messages:
			payload, err := json.Marshal(message)
			if err != nil {
				continue
			}
			var stale []*websocket.Conn
			s.mu.Lock()
			for conn, writeMu := range s.clients {
				if err := s.writeMessage(conn, writeMu, websocket.TextMessage, payload); err != nil {
					stale = append(stale, conn)
				}
			}
			s.mu.Unlock()
			for _, conn := range stale {
				s.removeClient(conn)
			}
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	count := len(s.clients)
	s.mu.Unlock()
	metrics.WebsocketClients.Set(float64(count))
	conn.Close()
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) writeJSON(conn *websocket.Conn, writeMu *sync.Mutex, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.writeMessage(conn, writeMu, websocket.TextMessage, data)
}

func (s *Server) writeMessage(conn *websocket.Conn, writeMu *sync.Mutex, messageType int, payload []byte) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(messageType, payload)
}
