package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	streamWriteWait       = 5 * time.Second
	metricsStreamInterval = 2 * time.Second
)

// The API carries no cookie-based sessions, so upgrades are accepted
// from any origin.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleBatchStream streams job progress events over a websocket until
// the job reaches a terminal state, then sends the final snapshot with
// results and closes.
func (s *Server) handleBatchStream(c *gin.Context) {
	id := c.Param("id")

	events, cancel, ok := s.batches.Subscribe(id)
	if !ok {
		s.jsonError(c, http.StatusNotFound, "batch job not found")
		return
	}
	defer cancel()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	clientGone := drainClient(conn)

	for {
		select {
		case <-clientGone:
			return
		case event, open := <-events:
			if !open {
				if snapshot, found := s.batches.Get(id); found {
					conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
					_ = conn.WriteJSON(snapshot)
				}
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"),
					time.Now().Add(streamWriteWait))
				return
			}

			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}

// handleMetricsStream pushes metrics snapshots at a fixed interval
// until the client disconnects.
func (s *Server) handleMetricsStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	clientGone := drainClient(conn)

	ticker := time.NewTicker(metricsStreamInterval)
	defer ticker.Stop()

	for {
		conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(s.metrics.Snapshot()); err != nil {
			return
		}

		select {
		case <-clientGone:
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// drainClient consumes incoming frames so close messages are processed;
// the returned channel closes when the peer goes away.
func drainClient(conn *websocket.Conn) <-chan struct{} {
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return gone
}
