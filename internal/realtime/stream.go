package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"moai/api/internal/logging"
	"moai/api/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// SyncFunc builds the payload of the periodic sync event, typically unread
// totals. It runs once on connect and then every interval.
type SyncFunc func(ctx context.Context) (any, error)

type Streamer struct {
	broker   Broker
	interval time.Duration
	upgrader websocket.Upgrader
}

// NewStreamer accepts connections from allowedOrigin, or from anywhere when
// it is "*" or empty.
func NewStreamer(broker Broker, interval time.Duration, allowedOrigin string) *Streamer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Streamer{
		broker:   broker,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "" || allowedOrigin == "*" || origin == "" || origin == allowedOrigin
			},
		},
	}
}

// Serve upgrades the request and forwards userID's events until either side
// closes. The caller has already authenticated the request.
func (s *Streamer) Serve(w http.ResponseWriter, r *http.Request, userID string, sync SyncFunc) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	metrics.StreamSubscribers.Inc()
	defer metrics.StreamSubscribers.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	events, unsubscribe := s.broker.Subscribe(ctx, userID)
	defer unsubscribe()

	go readPump(conn, cancel)
	s.writePump(ctx, conn, userID, events, sync)
}

// readPump discards client frames and cancels the stream once the peer goes
// away or stops answering pings.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(4 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Streamer) writePump(ctx context.Context, conn *websocket.Conn, userID string, events <-chan Event, sync SyncFunc) {
	ping := time.NewTicker(pingPeriod)
	syncTicker := time.NewTicker(s.interval)
	defer func() {
		ping.Stop()
		syncTicker.Stop()
		_ = conn.Close()
	}()

	sendSync := func() bool {
		if sync == nil {
			return true
		}
		payload, err := sync(ctx)
		if err != nil {
			logging.Logger.WithFields(logrus.Fields{"user_id": userID, "error": err}).Warn("realtime: sync payload")
			return true
		}
		event, err := NewEvent(EventSync, payload)
		if err != nil {
			return true
		}
		return writeEvent(conn, event)
	}

	if !sendSync() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case event, ok := <-events:
			if !ok || !writeEvent(conn, event) {
				return
			}
		case <-syncTicker.C:
			if !sendSync() {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, event Event) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(event) == nil
}
