package watch

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Reload message types sent to connected clients.
const (
	MessageRegenerating = "regenerating"
	MessageModels       = "models"
	MessageError        = "error"
)

// ReloadMessage tells a frontend dev client what happened to its models.
type ReloadMessage struct {
	Type           string   `json:"type"`
	Timestamp      int64    `json:"timestamp"`
	Files          []string `json:"files,omitempty"`
	Models         []string `json:"models,omitempty"`
	FilesWritten   int      `json:"files_written,omitempty"`
	DurationMillis float64  `json:"duration_ms,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// ReloadServer broadcasts regeneration events over WebSocket so frontend
// dev tooling can hot-reload the generated models.
type ReloadServer struct {
	connections map[*websocket.Conn]bool
	broadcast   chan *ReloadMessage
	register    chan *websocket.Conn
	unregister  chan *websocket.Conn
	done        chan struct{}
	mutex       sync.RWMutex
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

// NewReloadServer starts the connection loop. A nil logger disables logging.
func NewReloadServer(logger *zap.Logger) *ReloadServer {
	if logger == nil {
		logger = zap.NewNop()
	}

	rs := &ReloadServer{
		connections: make(map[*websocket.Conn]bool),
		broadcast:   make(chan *ReloadMessage, 256),
		register:    make(chan *websocket.Conn),
		unregister:  make(chan *websocket.Conn),
		done:        make(chan struct{}),
		logger:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				// Dev tooling only, so localhost origins only.
				return strings.HasPrefix(origin, "http://localhost") ||
					strings.HasPrefix(origin, "https://localhost") ||
					strings.HasPrefix(origin, "http://127.0.0.1") ||
					strings.HasPrefix(origin, "https://127.0.0.1")
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	go rs.run()

	return rs
}

func (rs *ReloadServer) run() {
	for {
		select {
		case <-rs.done:
			rs.logger.Debug("reload server stopping")
			return

		case conn := <-rs.register:
			rs.mutex.Lock()
			rs.connections[conn] = true
			total := len(rs.connections)
			rs.mutex.Unlock()
			rs.logger.Debug("reload client connected", zap.Int("total", total))

		case conn := <-rs.unregister:
			rs.mutex.Lock()
			if _, ok := rs.connections[conn]; ok {
				delete(rs.connections, conn)
				conn.Close()
			}
			total := len(rs.connections)
			rs.mutex.Unlock()
			rs.logger.Debug("reload client disconnected", zap.Int("total", total))

		case message := <-rs.broadcast:
			rs.sendToAll(message)
		}
	}
}

func (rs *ReloadServer) sendToAll(message *ReloadMessage) {
	payload, err := json.Marshal(message)
	if err != nil {
		rs.logger.Warn("marshaling reload message failed", zap.Error(err))
		return
	}

	rs.mutex.RLock()
	var failed []*websocket.Conn
	for conn := range rs.connections {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			rs.logger.Debug("sending reload message failed", zap.Error(err))
			failed = append(failed, conn)
		}
	}
	rs.mutex.RUnlock()

	if len(failed) > 0 {
		rs.mutex.Lock()
		for _, conn := range failed {
			if _, ok := rs.connections[conn]; ok {
				conn.Close()
				delete(rs.connections, conn)
			}
		}
		rs.mutex.Unlock()
	}
}

// HandleWebSocket upgrades an HTTP connection and registers the client.
func (rs *ReloadServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := rs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		rs.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	rs.register <- conn

	go rs.readMessages(conn)
}

// readMessages drains client frames for keepalive until the peer goes away.
func (rs *ReloadServer) readMessages(conn *websocket.Conn) {
	defer func() {
		rs.unregister <- conn
	}()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				rs.logger.Debug("websocket read error", zap.Error(err))
			}
			break
		}
	}
}

// NotifyRegenerating tells clients a regeneration started for these inputs.
func (rs *ReloadServer) NotifyRegenerating(files []string) {
	rs.broadcast <- &ReloadMessage{
		Type:      MessageRegenerating,
		Timestamp: time.Now().Unix(),
		Files:     files,
	}
}

// NotifyModels tells clients their models were regenerated.
func (rs *ReloadServer) NotifyModels(models []string, filesWritten int, elapsed time.Duration) {
	rs.broadcast <- &ReloadMessage{
		Type:           MessageModels,
		Timestamp:      time.Now().Unix(),
		Models:         models,
		FilesWritten:   filesWritten,
		DurationMillis: float64(elapsed.Milliseconds()),
	}
}

// NotifyError tells clients regeneration failed.
func (rs *ReloadServer) NotifyError(message string) {
	rs.broadcast <- &ReloadMessage{
		Type:      MessageError,
		Timestamp: time.Now().Unix(),
		Error:     message,
	}
}

// ConnectionCount returns the number of connected clients.
func (rs *ReloadServer) ConnectionCount() int {
	rs.mutex.RLock()
	defer rs.mutex.RUnlock()
	return len(rs.connections)
}

// Close disconnects all clients and stops the connection loop.
func (rs *ReloadServer) Close() {
	close(rs.done)

	rs.mutex.Lock()
	defer rs.mutex.Unlock()

	for conn := range rs.connections {
		conn.Close()
	}
	rs.connections = make(map[*websocket.Conn]bool)
}
