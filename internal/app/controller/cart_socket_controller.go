package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/ikkim/storefront-cart/internal/app/service"
	"github.com/ikkim/storefront-cart/internal/middleware"
	"github.com/ikkim/storefront-cart/internal/session"
	ws "github.com/ikkim/storefront-cart/internal/websocket"
)

type CartSocketController struct {
	hub      *ws.Hub
	upgrader gorillaws.Upgrader
}

// NewCartSocketController accepts upgrades from allowedOrigins only; an
// empty list accepts same-origin requests.
func NewCartSocketController(hub *ws.Hub, allowedOrigins []string) *CartSocketController {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &CartSocketController{
		hub: hub,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowed) == 0 {
					return true
				}
				return allowed[origin]
			},
		},
	}
}

// Stream pushes a cart view after every engine state change
// GET /api/v1/ws/cart
func (ctrl *CartSocketController) Stream(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	sess, ok := requireSession(c)
	if !ok {
		return
	}

	conn, err := ctrl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("Failed to upgrade to WebSocket", err)
		return
	}

	client := ws.NewClient(ctrl.hub, &ws.Conn{Conn: conn}, sess.ID, func(msg ws.ClientMessage) {
		handleSocketCommand(sess, msg)
	})
	ctrl.hub.Register(client)

	unsubscribe := sess.Engine.Subscribe(func(snap service.Snapshot) {
		_ = ctrl.hub.SendToClient(client, ws.ServerMessage{Type: "cart", Data: sess.Projector.Project(snap)})
	})
	// initial state
	_ = ctrl.hub.SendToClient(client, ws.ServerMessage{Type: "cart", Data: sess.View()})

	log.Info("Cart socket connected", map[string]interface{}{
		"session_id": sess.ID,
	})

	go client.WritePump()
	client.ReadPump()
	unsubscribe()
}

func handleSocketCommand(sess *session.Session, msg ws.ClientMessage) {
	sess.Touch(time.Now())
	switch msg.Type {
	case "refresh":
		go func() {
			_, _ = sess.Engine.Refresh(context.Background())
		}()
	case "clear_error":
		sess.Engine.ClearError()
	}
}
