package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/patient-insight-server/internal/domain"
)

const wsMaxMessageBytes = 4096

// handleChatSocket upgrades the connection and answers questions frame by
// frame. All frames on one connection share a session, so pronoun
// follow-ups resolve without the client echoing the session header.
func (s *Server) handleChatSocket(c *gin.Context) {
	sessionID := c.GetString("session_id")

	// Headers set by middleware do not survive the hijacked handshake, so
	// the session ID rides the upgrade response explicitly.
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, http.Header{"X-Session-ID": {sessionID}})
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.logger.WithError(err).Debug("WebSocket upgrade rejected")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(wsMaxMessageBytes)

	s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"client_ip":  c.ClientIP(),
	}).Info("WebSocket chat session opened")

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.WithFields(logrus.Fields{
					"session_id": sessionID,
					"error":      err,
				}).Warn("WebSocket chat session ended abnormally")
			}
			return
		}

		response, err := s.pipeline.Answer(c.Request.Context(), sessionID, req.Query)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"session_id": sessionID,
				"error":      err,
			}).Error("Pipeline failed to answer WebSocket query")
			frame := domain.NewAPIError(
				domain.ErrInternalServer, "unable to answer the question right now", "", c.GetString("correlation_id"))
			if writeErr := conn.WriteJSON(frame); writeErr != nil {
				return
			}
			continue
		}

		if err := conn.WriteJSON(response); err != nil {
			return
		}
	}
}
