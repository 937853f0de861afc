// Package wsserver implements the WebSocket transport: the inbound
// Server collaborator described in spec.md §6 (send_to_connection; there
// is no add_listener, the RequestProcessor is fixed when New is called),
// grounded on the teacher's sdk/forward/ws_server.go
// TunnelServer/connSender connection-registry pattern generalized from
// one fixed tunnel peer to a registry of many action-protocol clients.
package wsserver

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"vssbroker/internal/shared/logger"
	"vssbroker/internal/vss/authz"
)

var errConnectionNotFound = errors.New("wsserver: no connection with that id")

// RequestProcessor is the surface of process.Processor this transport
// depends on, kept as an interface so neither package imports the
// other's concrete type.
type RequestProcessor interface {
	ProcessQuery(rawRequest []byte, ch *authz.Channel) []byte
}

// SubscriptionCleaner removes every subscription belonging to a
// disconnected channel, implemented by subscribe.Engine.
type SubscriptionCleaner interface {
	UnsubscribeAll(channelID uint64)
}

// Server accepts WebSocket connections, reads action-protocol requests
// and forwards each to a RequestProcessor, and implements
// subscribe.Server so the dispatcher can push asynchronous notifications
// back to a connection by id.
type Server struct {
	upgrader  websocket.Upgrader
	processor RequestProcessor
	cleaner   SubscriptionCleaner
	registry  *authz.Registry
	log       logger.Interface

	nextID atomic.Uint64

	connMu sync.RWMutex
	conns  map[uint64]*connection
}

type connection struct {
	id   uint64
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *connection) send(message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, message)
}

// New builds a WebSocket Server bound to its collaborators. Its upgrader's
// CheckOrigin accepts every origin, mirroring the teacher's override for
// internal/dev use.
func New(processor RequestProcessor, cleaner SubscriptionCleaner, registry *authz.Registry, log logger.Interface) *Server {
	return &Server{
		processor: processor,
		cleaner:   cleaner,
		registry:  registry,
		log:       log,
		conns:     make(map[uint64]*connection),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SendToConnection implements subscribe.Server: it writes message to the
// connection registered under connectionID, or reports
// errConnectionNotFound if it has since disconnected.
func (s *Server) SendToConnection(connectionID uint64, message []byte) error {
	s.connMu.RLock()
	conn, ok := s.conns[connectionID]
	s.connMu.RUnlock()
	if !ok {
		return errConnectionNotFound
	}
	return conn.send(message)
}

// HandleUpgrade upgrades an inbound HTTP request to a WebSocket
// connection and serves action-protocol requests on it until the client
// disconnects or the read fails.
func (s *Server) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", "error", err)
		return
	}

	id := s.nextID.Add(1)
	conn := &connection{id: id, conn: wsConn}

	s.connMu.Lock()
	s.conns[id] = conn
	s.connMu.Unlock()

	ch := authz.NewChannel(id, authz.TransportWS)
	s.log.Infow("websocket connection accepted", "connectionId", id)

	defer func() {
		s.connMu.Lock()
		delete(s.conns, id)
		s.connMu.Unlock()
		s.registry.Unregister(id)
		s.cleaner.UnsubscribeAll(id)
		wsConn.Close()
		s.log.Infow("websocket connection closed", "connectionId", id)
	}()

	s.readLoop(conn, ch)
}

// readLoop processes one request at a time, synchronously, so that a
// channel's successive requests observe TreeStore writes in the order
// they were sent (spec.md §5's write-read coherence requirement).
// Asynchronous subscription notifications are serialized against this
// loop's replies by connection.send's mutex, not by this loop itself.
func (s *Server) readLoop(conn *connection, ch *authz.Channel) {
	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warnw("websocket read error", "connectionId", conn.id, "error", err)
			}
			return
		}

		reply := s.processor.ProcessQuery(data, ch)
		if err := conn.send(reply); err != nil {
			s.log.Warnw("failed to send reply", "connectionId", conn.id, "error", err)
			return
		}
	}
}
