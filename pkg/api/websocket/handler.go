package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/aescanero/gasrunner/pkg/domain"
	"github.com/aescanero/gasrunner/pkg/ports"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StatusSource looks up stored batch states
type StatusSource interface {
	GetStatus(ctx context.Context, batchID string) (*domain.BatchState, error)
}

// Handler handles WebSocket connections
type Handler struct {
	eventBus ports.EventBus
	status   StatusSource
	topic    string
	buffer   int
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler streaming events published on topic
func NewHandler(eventBus ports.EventBus, status StatusSource, topic string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		eventBus: eventBus,
		status:   status,
		topic:    topic,
		buffer:   256,
		logger:   logger,
	}
}

// HandleBatchStream streams the events of one batch until its final
// event, or until the client disconnects. A batch that already finished
// gets a single snapshot message.
func (h *Handler) HandleBatchStream(c *gin.Context) {
	batchID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	log := h.logger.With(zap.String("batch_id", batchID), zap.String("client", c.ClientIP()))
	log.Info("WebSocket connection established")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Reading is required to notice a client close
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	events := make(chan domain.Event, h.buffer)
	handler := func(ctx context.Context, event domain.Event) error {
		if event.BatchID != batchID {
			return nil
		}
		select {
		case events <- event:
		default:
			log.Warn("event channel full, dropping event",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)))
		}
		return nil
	}

	if err := h.eventBus.Subscribe(ctx, h.topic, handler); err != nil {
		log.Error("failed to subscribe to events", zap.String("topic", h.topic), zap.Error(err))
		h.closeWith(conn, websocket.CloseInternalServerErr, "subscription failed")
		return
	}

	// Subscribing first means a batch finishing now is seen either here or on the bus
	if h.status != nil {
		state, err := h.status.GetStatus(ctx, batchID)
		if err != nil {
			h.closeWith(conn, websocket.ClosePolicyViolation, "unknown batch")
			return
		}
		if state.Status.IsTerminal() {
			if err := h.write(conn, state); err != nil {
				log.Warn("failed to write snapshot", zap.Error(err))
			}
			h.closeWith(conn, websocket.CloseNormalClosure, string(state.Status))
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			if err := h.write(conn, event); err != nil {
				log.Warn("failed to write message", zap.Error(err))
				return
			}
			if isFinal(event.Type) {
				h.closeWith(conn, websocket.CloseNormalClosure, string(event.Type))
				return
			}
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, v interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

func (h *Handler) closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}

func isFinal(t domain.EventType) bool {
	switch t {
	case domain.EventTypeBatchCompleted, domain.EventTypeBatchFailed, domain.EventTypeBatchCancelled:
		return true
	}
	return false
}
