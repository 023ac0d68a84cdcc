package http

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"exam-service/internal/app"
	"exam-service/internal/logger"
	"exam-service/internal/metrics"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	writeWait  = 10 * time.Second
)

// reportFeedHandler streams an exam's class report to instructors: once on
// connect and again after every recorded result.
type reportFeedHandler struct {
	service  *app.ExamService
	metrics  *metrics.Metrics
	log      *logger.Logger
	upgrader websocket.Upgrader
}

func newReportFeedHandler(service *app.ExamService, m *metrics.Metrics, log *logger.Logger, origins []string) *reportFeedHandler {
	return &reportFeedHandler{
		service: service,
		metrics: m,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     allowOrigins(origins),
		},
	}
}

// allowOrigins admits requests without an Origin header, same-host requests
// and the configured CORS origins.
func allowOrigins(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		for _, allowed := range origins {
			if allowed == "*" || strings.EqualFold(strings.TrimSuffix(allowed, "/"), origin) {
				return true
			}
		}
		return false
	}
}

type outboundMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func (h *reportFeedHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "id")

	// subscribe before upgrading so unknown exams get a plain 404
	updates, cancel, err := h.service.Subscribe(r.Context(), examID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "exam_id", examID, "error", err)
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.SubscriberOpened()
		defer h.metrics.SubscriberClosed()
	}

	closed := make(chan struct{})
	writerDone := make(chan struct{})

	// single writer: gorilla connections allow one concurrent writer
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case report, ok := <-updates:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(outboundMessage{Type: "report", Payload: report}); err != nil {
					h.log.Debug("ws write failed", "exam_id", examID, "error", err)
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-closed:
				return
			}
		}
	}()

	// the feed is one-way; reading only detects the client going away
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}

	close(closed)
	<-writerDone
}
