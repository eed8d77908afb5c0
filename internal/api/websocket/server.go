package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fortuna/pythia/internal/logging"
	"github.com/fortuna/pythia/internal/metrics"
	"github.com/fortuna/pythia/internal/pipeline"
	"github.com/fortuna/pythia/internal/store"
)

// MessageTypePredictions tags slate updates.
const MessageTypePredictions = "predictions"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the frame sent to clients.
type Message struct {
	Type        string              `json:"type"`
	RunID       string              `json:"run_id"`
	Status      string              `json:"status,omitempty"`
	GeneratedAt time.Time           `json:"generated_at"`
	Data        []*store.Prediction `json:"data"`
}

// SlateSource exposes the latest run for clients that connect between runs.
type SlateSource interface {
	Latest() *pipeline.Slate
}

// Server represents the WebSocket server
type Server struct {
	port   string
	server *http.Server
	hub    *Hub
	slate  SlateSource
	logger *zap.SugaredLogger
}

// NewServer creates a new WebSocket server and starts its hub.
func NewServer(slate SlateSource, m *metrics.Recorder, logger *zap.Logger) *Server {
	hub := NewHub(m)
	go hub.Run()

	return &Server{
		hub:    hub,
		slate:  slate,
		logger: logging.OrNop(logger).Named("websocket").Sugar(),
	}
}

// Handler returns the WebSocket routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/predictions", s.handlePredictions)
	mux.HandleFunc("/ws/health", s.handleHealth)
	return mux
}

// Start starts the WebSocket server
func (s *Server) Start(port string) error {
	s.port = port
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("WebSocket server listening on :%s", port)
	return s.server.ListenAndServe()
}

// handlePredictions upgrades the connection and sends the latest slate
// before any broadcast.
func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("⚠️  Failed to upgrade connection: %v", err)
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	if s.slate != nil {
		if latest := s.slate.Latest(); latest != nil {
			if data, err := encode(latest.Report, latest.Predictions); err == nil {
				client.send <- data
			}
		}
	}

	select {
	case client.hub.register <- client:
	case <-client.hub.done:
		conn.Close()
		return
	}

	// Start client goroutines
	go client.writePump()
	go client.readPump()
}

// handleHealth returns WebSocket server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "healthy", "clients": %d}`, s.hub.ClientCount())
}

// OnRun broadcasts each completed run's predictions.
func (s *Server) OnRun(_ context.Context, report *pipeline.Report, slate *pipeline.Slate) {
	if report.Status == pipeline.StatusFailed {
		return
	}
	data, err := encode(report, slate.Predictions)
	if err != nil {
		s.logger.Errorf("❌ encoding run %s: %v", report.RunID, err)
		return
	}
	s.hub.Broadcast(data)
	s.logger.Infof("✓ broadcast %d predictions to %d clients", len(slate.Predictions), s.hub.ClientCount())
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int { return s.hub.ClientCount() }

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func encode(report *pipeline.Report, preds []*store.Prediction) ([]byte, error) {
	if preds == nil {
		preds = []*store.Prediction{}
	}
	msg := Message{Type: MessageTypePredictions, Data: preds, GeneratedAt: time.Now().UTC()}
	if report != nil {
		msg.RunID, msg.Status = report.RunID, report.Status
		msg.GeneratedAt = report.FinishedAt
	}
	return json.Marshal(msg)
}
