package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/webitel/im-presence-service/internal/adapter/auth"
	"github.com/webitel/im-presence-service/internal/adapter/validation"
	"github.com/webitel/im-presence-service/internal/domain/event"
	"github.com/webitel/im-presence-service/internal/domain/model"
	"github.com/webitel/im-presence-service/internal/domain/registry"
	wsmarshaller "github.com/webitel/im-presence-service/internal/handler/marshaller/ws"
	"github.com/webitel/im-presence-service/internal/service"
)

// session owns one websocket. The reader runs on the handler goroutine and is
// the only one touching state; the writer goroutine is the only one writing
// data frames.
type session struct {
	h         *WSHandler
	ws        *websocket.Conn
	principal auth.Principal
	meta      registry.ConnectMetadata
	// logger belongs to the reader, wlog to the writer.
	logger *slog.Logger
	wlog   *slog.Logger

	state model.ConnState
	conn  registry.Connector

	attach  chan registry.Connector
	control chan []byte
	stop    chan struct{}
}

func newSession(h *WSHandler, ws *websocket.Conn, principal auth.Principal, meta registry.ConnectMetadata) *session {
	return &session{
		h:         h,
		ws:        ws,
		principal: principal,
		meta:      meta,
		logger:    h.logger.With("remote", meta.RemoteIP),
		wlog:      h.logger.With("remote", meta.RemoteIP),
		state:     model.ConnConnecting,
		attach:    make(chan registry.Connector, 1),
		control:   make(chan []byte, 16),
		stop:      make(chan struct{}),
	}
}

func (s *session) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop()
	}()

	s.readLoop(ctx)

	close(s.stop)
	<-writerDone

	s.transition(model.ConnDisconnected)
	if s.conn != nil {
		s.h.deliverer.Unsubscribe(s.conn.GetID())
	}
	_ = s.ws.Close()
}

func (s *session) transition(next model.ConnState) {
	if !s.state.CanTransition(next) {
		return
	}
	s.logger.Debug("WS_STATE_CHANGED", "from", s.state.String(), "to", next.String())
	s.state = next
}

// --- reader ---

func (s *session) readLoop(ctx context.Context) {
	cfg := s.h.cfg

	s.ws.SetReadLimit(cfg.MaxMessageBytes)
	// Until join, the join timeout bounds the silence; afterwards pongs keep the socket alive.
	_ = s.ws.SetReadDeadline(time.Now().Add(min(cfg.JoinTimeout, cfg.PongWait)))
	s.ws.SetPongHandler(func(string) error {
		if s.state == model.ConnConnected {
			return s.ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
		}
		return nil
	})

	for {
		_, raw, err := s.ws.ReadMessage()
		if err != nil {
			s.logReadError(err)
			return
		}
		if s.state == model.ConnConnected {
			_ = s.ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
		}

		frame, err := wsmarshaller.DecodeFrame(raw)
		if err != nil {
			s.reply(wsmarshaller.CodeBadFrame, err.Error())
			continue
		}

		switch frame.Event {
		case wsmarshaller.EventJoin:
			if stop := s.handleJoin(ctx, frame.Data); stop {
				return
			}
		case wsmarshaller.EventSendMessage:
			s.handleSendMessage(ctx, frame.Data)
		default:
			s.reply(wsmarshaller.CodeUnknownEvent, fmt.Sprintf("unknown event %q", frame.Event))
		}
	}
}

func (s *session) logReadError(err error) {
	var netErr interface{ Timeout() bool }
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		s.logger.Debug("WS_CLOSED_BY_CLIENT")
	case errors.As(err, &netErr) && netErr.Timeout() && s.state == model.ConnConnecting:
		s.reply(wsmarshaller.CodeJoinTimeout, "join was not received in time")
		s.logger.Info("WS_JOIN_TIMEOUT")
	case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		s.logger.Warn("WS_READ_FAILED", "err", err)
	default:
		s.logger.Debug("WS_READ_ENDED", "err", err)
	}
}

// handleJoin returns true when the session must end.
func (s *session) handleJoin(ctx context.Context, data json.RawMessage) bool {
	raw, err := wsmarshaller.DecodeJoin(data)
	if err != nil {
		s.reply(wsmarshaller.CodeBadFrame, err.Error())
		return false
	}
	claimed := model.ParseIdentity(raw)

	if s.state == model.ConnConnected {
		if claimed != s.conn.GetIdentity() {
			s.reply(wsmarshaller.CodeAlreadyJoined, "connection already joined as "+s.conn.GetIdentity().String())
		}
		return false
	}

	if err := validation.Default().Var(claimed.String(), "required,identity"); err != nil {
		s.reply(wsmarshaller.CodeInvalidIdentity, "identity must be a non-blank printable string")
		return false
	}

	identity, err := s.principal.Admit(claimed)
	if err != nil {
		s.reply(wsmarshaller.CodeIdentityMismatch, err.Error())
		return false
	}

	conn, err := s.h.deliverer.Subscribe(ctx, identity, s.meta)
	switch {
	case errors.Is(err, service.ErrShuttingDown):
		s.reply(wsmarshaller.CodeShuttingDown, "server is shutting down")
		return true
	case errors.Is(err, service.ErrEmptyIdentity):
		s.reply(wsmarshaller.CodeInvalidIdentity, err.Error())
		return false
	case err != nil:
		s.logger.Error("WS_SUBSCRIBE_FAILED", "identity", identity, "err", err)
		s.reply(wsmarshaller.CodeInternal, "subscribe failed")
		return true
	}

	s.conn = conn
	s.logger = s.logger.With("identity", identity, "conn_id", conn.GetID())
	s.transition(model.ConnConnected)
	_ = s.ws.SetReadDeadline(time.Now().Add(s.h.cfg.PongWait))

	s.attach <- conn
	return false
}

func (s *session) handleSendMessage(ctx context.Context, data json.RawMessage) {
	if s.state != model.ConnConnected {
		s.reply(wsmarshaller.CodeJoinRequired, "send join before sendMessage")
		return
	}

	req, err := wsmarshaller.DecodeSendMessage(data)
	if err != nil {
		s.reply(wsmarshaller.CodeBadFrame, err.Error())
		return
	}
	if err := validation.Default().Struct(req); err != nil {
		s.reply(wsmarshaller.CodeInvalidMessage, validation.Flatten(err).Error())
		return
	}

	// The joined identity is the only sender this connection may speak for.
	sender := s.conn.GetIdentity()
	if claimed := req.Sender(); !claimed.IsZero() && claimed != sender {
		s.reply(wsmarshaller.CodeIdentityMismatch, fmt.Sprintf("senderId %q does not match joined identity", claimed))
		return
	}

	if _, err := s.h.relayer.Relay(ctx, sender, req.Recipient(), req.Content); err != nil {
		s.reply(wsmarshaller.CodeInvalidMessage, err.Error())
	}
}

// reply queues an error frame for the writer. It never blocks the reader.
func (s *session) reply(code, message string) {
	select {
	case s.control <- wsmarshaller.MarshallError(code, message):
	default:
		s.logger.Warn("WS_CONTROL_FRAME_DROPPED", "code", code)
	}
}

// --- writer: every method below runs on the writer goroutine ---

func (s *session) writeLoop() {
	cfg := s.h.cfg
	ticker := time.NewTicker(cfg.PingPeriod)
	defer ticker.Stop()

	var (
		recv     <-chan event.Eventer
		connDone <-chan struct{}
	)

	defer func() {
		// Unblocks the reader if the writer is the side that failed.
		_ = s.ws.Close()
	}()

	for {
		select {
		case <-s.stop:
			s.flushControl()
			s.writeClose(websocket.CloseNormalClosure, "")
			return

		case conn := <-s.attach:
			recv = conn.Recv()
			connDone = conn.Done()
			s.wlog = s.wlog.With("identity", conn.GetIdentity(), "conn_id", conn.GetID())

		case frame := <-s.control:
			if !s.write(websocket.TextMessage, frame) {
				return
			}

		case ev := <-recv:
			if !s.writeEvent(ev) {
				return
			}

		case <-connDone:
			// Closed by the server (shutdown): deliver what is already buffered, the
			// disconnected frame included, then say goodbye.
			if s.drain(recv) {
				s.writeClose(websocket.CloseGoingAway, model.ReasonServerShutdown)
			}
			return

		case <-ticker.C:
			if err := s.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(cfg.WriteTimeout)); err != nil {
				s.wlog.Debug("WS_PING_FAILED", "err", err)
				return
			}
		}
	}
}

func (s *session) writeEvent(ev event.Eventer) bool {
	data, err := wsmarshaller.MarshallDeliveryEvent(ev)
	if err != nil {
		s.wlog.Error("WS_MARSHAL_FAILED", "event_id", ev.GetID(), "err", err)
		return true
	}
	return s.write(websocket.TextMessage, data)
}

func (s *session) write(kind int, data []byte) bool {
	_ = s.ws.SetWriteDeadline(time.Now().Add(s.h.cfg.WriteTimeout))
	if err := s.ws.WriteMessage(kind, data); err != nil {
		s.wlog.Warn("WS_SEND_FAILED", "err", err)
		return false
	}
	return true
}

// drain writes every buffered event. It returns false if the socket failed.
func (s *session) drain(recv <-chan event.Eventer) bool {
	for {
		select {
		case ev := <-recv:
			if !s.writeEvent(ev) {
				return false
			}
		default:
			return true
		}
	}
}

func (s *session) flushControl() {
	for {
		select {
		case frame := <-s.control:
			if !s.write(websocket.TextMessage, frame) {
				return
			}
		default:
			return
		}
	}
}

func (s *session) writeClose(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = s.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.h.cfg.WriteTimeout))
}
