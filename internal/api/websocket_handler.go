package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/wfunc/undercover-game/internal/config"
	apperrors "github.com/wfunc/undercover-game/internal/errors"
	"github.com/wfunc/undercover-game/internal/middleware"
	"github.com/wfunc/undercover-game/internal/service"
	ws "github.com/wfunc/undercover-game/internal/websocket"
	"go.uber.org/zap"
)

// WebSocketHandler WebSocket处理器
type WebSocketHandler struct {
	hub      *ws.Hub
	rooms    service.RoomService
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(hub *ws.Hub, rooms service.RoomService, cfg config.WebSocketConfig, logger *zap.Logger) *WebSocketHandler {
	readBuf, writeBuf := cfg.ReadBufferSize, cfg.WriteBufferSize
	if readBuf <= 0 {
		readBuf = 1024
	}
	if writeBuf <= 0 {
		writeBuf = 1024
	}
	return &WebSocketHandler{
		hub:   hub,
		rooms: rooms,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    readBuf,
			WriteBufferSize:   writeBuf,
			EnableCompression: cfg.EnableCompression,
			// 来源由CORS白名单和令牌共同约束
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Connect 建立房间连接
// GET /ws?token=...
func (h *WebSocketHandler) Connect(c *gin.Context) {
	claims, ok := middleware.GetPlayer(c)
	if !ok {
		middleware.AbortWithError(c, apperrors.New(apperrors.ErrTokenInvalid))
		return
	}
	// 令牌仍有效但已离开或房间已销毁时不升级
	if err := h.rooms.CheckPlayer(c.Request.Context(), claims.RoomCode, claims.PlayerID); err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket升级失败",
			zap.String("room", claims.RoomCode),
			zap.String("player_id", claims.PlayerID),
			zap.Error(err))
		return
	}

	h.hub.Attach(conn, claims.RoomCode, claims.PlayerID)
}
