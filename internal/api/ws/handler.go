package ws

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/soeminnminn/run-js/internal/console"
	"github.com/soeminnminn/run-js/internal/infrastructure/logging"
	"github.com/soeminnminn/run-js/internal/infrastructure/monitoring"
	"github.com/soeminnminn/run-js/internal/runner"
	"github.com/soeminnminn/run-js/internal/shared/id"
	"github.com/soeminnminn/run-js/internal/transport"
)

const (
	writeWait    = 10 * time.Second
	maxFrameSize = runner.MaxScriptBytes + 64<<10
)

// Message is a client frame. Run messages carry the request inline.
type Message struct {
	Type string `json:"type" msgpack:"type"`
	runner.Request
}

// Frame is a server frame
type Frame struct {
	Type         string          `json:"type" msgpack:"type"`
	ConnectionID string          `json:"connection_id,omitempty" msgpack:"connection_id,omitempty"`
	Event        *console.Event  `json:"event,omitempty" msgpack:"event,omitempty"`
	Result       *runner.Outcome `json:"result,omitempty" msgpack:"result,omitempty"`
	Message      string          `json:"message,omitempty" msgpack:"message,omitempty"`
	Timestamp    int64           `json:"timestamp" msgpack:"timestamp"`
}

// Handler streams console events of script runs over WebSocket
type Handler struct {
	runner       *runner.Runner
	codecs       *transport.Codecs
	defaultCodec string
	buffer       int
	metrics      *monitoring.Metrics
	logger       *zap.Logger
	upgrader     websocket.Upgrader
}

// NewHandler creates a stream handler. Origins lists the allowed Origin
// headers, "*" allowing any.
func NewHandler(r *runner.Runner, codecs *transport.Codecs, defaultCodec string, buffer int,
	origins []string, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 256
	}
	h := &Handler{
		runner:       r,
		codecs:       codecs,
		defaultCodec: defaultCodec,
		buffer:       buffer,
		metrics:      metrics,
		logger:       logger,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(req *http.Request) bool {
			origin := req.Header.Get("Origin")
			return origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin)
		},
		EnableCompression: true,
	}
	return h
}

// HandleConnection handles WebSocket upgrade and messages
func (h *Handler) HandleConnection(c *gin.Context) {
	codec, err := h.codecs.Get(c.DefaultQuery("codec", h.defaultCodec))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameSize)

	s := &stream{
		Handler: h,
		conn:    conn,
		codec:   codec,
		id:      id.NewConnectionID(),
	}
	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}
	s.logger = h.logger.With(logging.Connection(s.id), zap.String("codec", codec.Name()))
	s.logger.Debug("Stream connected")

	s.send(Frame{Type: "system", ConnectionID: s.id.String(), Message: "connected"})
	s.serve(c)
}
