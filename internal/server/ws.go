package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mtc-tools/neos-proxy/internal/logging"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// echoWS mirrors every frame back to the client unchanged.
func (s *Server) echoWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", logging.KeyError, err)
		return
	}
	defer conn.Close()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(messageType, message); err != nil {
			log.Debug("websocket echo write failed", logging.KeyError, err)
			return
		}
	}
}

// helloWS greets every text message; other frame types are ignored.
func (s *Server) helloWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", logging.KeyError, err)
		return
	}
	defer conn.Close()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte("Hello, "+string(message)+"!")); err != nil {
			log.Debug("websocket hello write failed", logging.KeyError, err)
			return
		}
	}
}
