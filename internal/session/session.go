// Package session runs one control loop per WebSocket connection: inbound
// frames are decoded and routed strictly in arrival order, outbound messages
// are queued on a buffered channel and drained by a write pump.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chirm-app/chirm-server/internal/models"
	"github.com/chirm-app/chirm-server/internal/router"
)

const (
	sendBufferSize = 256

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var errConnClosed = errors.New("connection closed")

// handle is the delivery handle handed to the registry. Send never blocks:
// it queues on the buffered channel and fails when the buffer is full or the
// session has ended.
type handle struct {
	ch     chan []byte
	closed chan struct{}
	once   sync.Once
}

func newHandle() *handle {
	return &handle{
		ch:     make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
	}
}

func (h *handle) Send(msg models.Outbound) error {
	data, err := models.EncodeOutbound(msg)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	select {
	case <-h.closed:
		return errConnClosed
	default:
	}
	select {
	case h.ch <- data:
		return nil
	case <-h.closed:
		return errConnClosed
	default:
		return errors.New("send buffer full")
	}
}

func (h *handle) close() {
	h.once.Do(func() { close(h.closed) })
}

// Session owns a single client connection from upgrade to close.
type Session struct {
	conn   *websocket.Conn
	router *router.Router
	origin *router.Origin
	h      *handle
	log    *slog.Logger
}

func New(conn *websocket.Conn, rt *router.Router, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	h := newHandle()
	return &Session{
		conn:   conn,
		router: rt,
		origin: router.NewOrigin(h),
		h:      h,
		log:    logger.With("socket", uuid.New().String()),
	}
}

// Run blocks until the connection ends, then performs cleanup: the bound id
// (if any) is unregistered and its departure broadcast. Transport closure is
// the only cancellation signal a session needs.
func (s *Session) Run() {
	s.log.Info("socket opened")

	go s.writePump()
	s.readLoop()

	s.h.close()
	s.router.HandleClose(s.origin)
	s.conn.Close()
	s.log.Info("socket closed")
}

// readLoop processes inbound frames one at a time; a message is routed to
// completion before the next read. Frames that are not text or fail to
// decode are dropped without a reply.
func (s *Session) readLoop() {
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Warn("read failed", "error", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		msg, err := models.DecodeInbound(data)
		if err != nil {
			s.log.Warn("dropping malformed frame", "error", err)
			continue
		}
		if done := s.router.Route(s.origin, msg); done {
			return
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data := <-s.h.ch:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.log.Warn("write failed", "error", err)
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.h.closed:
			return
		}
	}
}
