package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/signalcast/pkg/logger"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamHandler 생존 상태 WebSocket 푸시
type StreamHandler struct {
	status   *StatusHandler
	interval time.Duration
	logger   *logger.Logger
}

// NewStreamHandler creates a liveness stream pushing every interval
func NewStreamHandler(status *StatusHandler, interval time.Duration, log *logger.Logger) *StreamHandler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &StreamHandler{
		status:   status,
		interval: interval,
		logger:   log,
	}
}

// LivenessStream pushes a LivenessView on connect and then every interval
// GET /ws/liveness
func (h *StreamHandler) LivenessStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// 클라이언트 종료 감지용 읽기 루프
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		view, err := h.status.Liveness(ctx)
		if err != nil {
			h.logger.WithError(err).Error("Failed to read liveness for stream")
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "liveness unavailable"),
				time.Now().Add(writeWait))
			return
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(view); err != nil {
			h.logger.WithError(err).Debug("WebSocket client gone")
			return
		}

		select {
		case <-ticker.C:
		case <-closed:
			return
		case <-ctx.Done():
			return
		}
	}
}
