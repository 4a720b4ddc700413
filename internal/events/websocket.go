package events

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Handler streams a project's events to a websocket client as JSON text
// frames. The project id is read from the {projectId} path value.
func Handler(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	upgrader := &websocket.Upgrader{
		// origin checks belong to the CORS middleware in front of this handler
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := r.PathValue("projectId")

		wc, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("Event stream upgrade failed",
				"project_id", projectID,
				"error", err.Error(),
			)
			return
		}

		sub := hub.Subscribe(projectID)
		logger.Debug("Event stream opened", "project_id", projectID)

		done := make(chan struct{})
		go func() {
			defer close(done)
			// the client sends nothing; reading surfaces the close frame
			for {
				if _, _, err := wc.NextReader(); err != nil {
					return
				}
			}
		}()

		writeLoop(wc, sub, done, logger)
		sub.Close()
		_ = wc.Close()
		logger.Debug("Event stream closed", "project_id", projectID)
	}
}

func writeLoop(wc *websocket.Conn, sub *Subscription, done <-chan struct{}, logger *slog.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			_ = wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := wc.WriteJSON(e); err != nil {
				logger.Debug("Event stream write failed", "error", err.Error())
				return
			}
		case <-ticker.C:
			_ = wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := wc.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
