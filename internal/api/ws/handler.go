package ws

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/waveroom/waveroom/internal/api/identity"
	"github.com/waveroom/waveroom/internal/app/clock"
	"github.com/waveroom/waveroom/internal/app/hub"
	"github.com/waveroom/waveroom/internal/app/ratelimit"
	"github.com/waveroom/waveroom/internal/app/roomstate"
)

// Handler upgrades room websocket requests and runs their sessions.
type Handler struct {
	rooms    *roomstate.Manager
	limiter  *ratelimit.Limiter
	hub      *hub.Hub
	clock    *clock.Runner
	upgrader websocket.Upgrader
}

// NewHandler wires the handler to the coordination components.
func NewHandler(rooms *roomstate.Manager, limiter *ratelimit.Limiter, h *hub.Hub, clk *clock.Runner) *Handler {
	return &Handler{
		rooms:   rooms,
		limiter: limiter,
		hub:     h,
		clock:   clk,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from arbitrary origins; identity
			// and admission control gate the connection instead.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Register mounts the websocket route on the router group.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/ws/music/:room", h.serve)
}

func (h *Handler) serve(c *gin.Context) {
	roomID := c.Param("room")
	userID := c.Query("user_id")
	if userID == "" {
		userID = fmt.Sprintf("user_%d", time.Now().Unix())
	}

	params := SessionParams{
		ConnID:        uuid.NewString(),
		RoomID:        roomID,
		UserID:        userID,
		SessionKey:    identity.SessionKey(c),
		Authenticated: identity.Authenticated(c),
		IP:            identity.ClientIP(c.Request),
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zlog.Warn().Msgf("websocket upgrade failed: room=%s error=%v", roomID, err)
		return
	}

	cn := newConn(params.ConnID, ws)
	session := NewSession(params, h.rooms, h.limiter, h.hub, h.clock, cn)

	if err := session.Start(); err != nil {
		reason := "connection rejected"
		if errors.Is(err, ErrAdmissionRejected) {
			reason = err.Error()
		}
		ws.SetWriteDeadline(time.Now().Add(writeWait))
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseCodePolicy, reason))
		ws.Close()
		return
	}

	go cn.writePump()
	go cn.readPump(session)
}
