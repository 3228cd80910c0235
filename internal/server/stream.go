package server

import (
	"strconv"

	"github.com/gofiber/websocket/v2"

	"subflow/internal/logging"
)

// handleStream replays buffered events after ?since= and then forwards new
// events as JSON text frames until the run ends or the client goes away.
func (s *Server) handleStream(conn *websocket.Conn) {
	defer conn.Close()

	id := conn.Params("id")
	sess, ok := s.session(id)
	if !ok {
		_ = conn.WriteJSON(errorResponse{Error: errSessionGone.Error()})
		return
	}
	since, _ := strconv.ParseInt(conn.Query("since", "0"), 10, 64)

	notify, unsubscribe := sess.bus.Subscribe()
	defer unsubscribe()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		for _, event := range sess.bus.Since(since) {
			if err := conn.WriteJSON(event); err != nil {
				s.logger.Debug("websocket write failed", logging.String(logging.FieldRunID, id), logging.Error(err))
				return
			}
			since = event.Seq
		}
		if sess.bus.Closed() && len(sess.bus.Since(since)) == 0 {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
			return
		}
		select {
		case <-notify:
		case <-gone:
			return
		}
	}
}
