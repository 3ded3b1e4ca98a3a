package ws

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/soeminnminn/run-js/internal/console"
	"github.com/soeminnminn/run-js/internal/shared/id"
	"github.com/soeminnminn/run-js/internal/transport"
)

// stream is one client connection. Frames are written by one goroutine at
// a time: the reader outside runs, the forwarder during a run.
type stream struct {
	*Handler
	conn   *websocket.Conn
	codec  *transport.Codec
	id     id.ConnectionID
	logger *zap.Logger
}

func (s *stream) serve(c *gin.Context) {
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				s.logger.Debug("Stream read ended", zap.Error(err))
			}
			return
		}

		msg, err := s.decode(kind, data)
		if err != nil {
			s.record("in", "malformed")
			s.sendError("malformed message")
			continue
		}
		s.record("in", msg.Type)

		switch msg.Type {
		case "run":
			s.run(c, msg)
		case "ping":
			s.send(Frame{Type: "pong"})
		default:
			s.sendError("unknown message type")
		}
	}
}

func (s *stream) decode(kind int, data []byte) (Message, error) {
	var msg Message
	codec := s.codec
	if kind == websocket.TextMessage && codec.Binary() {
		json, err := s.codecs.Get("json")
		if err != nil {
			return msg, err
		}
		codec = json
	}
	err := codec.Unmarshal(data, &msg)
	return msg, err
}

// run executes one script, forwarding events as they are captured and
// finishing with a complete frame.
func (s *stream) run(c *gin.Context, msg Message) {
	events := transport.NewChannel(s.buffer, func(console.Event) {
		if s.metrics != nil {
			s.metrics.RecordDrop("channel_full", 1)
		}
	})

	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for e := range events.Events() {
			s.send(Frame{Type: "event", Event: &e})
		}
	}()

	outcome, err := s.runner.Run(c.Request.Context(), msg.Request, events)
	events.Close()
	<-forwarded

	if err != nil {
		s.sendError(err.Error())
		return
	}
	s.send(Frame{Type: "complete", Result: outcome})
}

func (s *stream) send(f Frame) {
	f.Timestamp = time.Now().UnixMilli()
	codec := s.codec
	kind := websocket.BinaryMessage
	if !codec.Binary() {
		kind = websocket.TextMessage
	}

	data, err := codec.Marshal(f)
	if err != nil {
		s.logger.Error("Failed to encode frame", zap.String("type", f.Type), zap.Error(err))
		return
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(kind, data); err != nil {
		s.logger.Debug("Stream write failed", zap.Error(err))
		return
	}
	s.record("out", f.Type)
}

func (s *stream) sendError(message string) {
	s.send(Frame{Type: "error", Message: message})
}

func (s *stream) record(direction, msgType string) {
	if s.metrics != nil {
		s.metrics.RecordWSMessage(direction, msgType)
	}
}
