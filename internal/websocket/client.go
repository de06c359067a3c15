package websocket

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	apperrors "github.com/wfunc/undercover-game/internal/errors"
	"github.com/wfunc/undercover-game/internal/game"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client WebSocket客户端，绑定到一个房间里的一个玩家
type Client struct {
	ID       string // 客户端ID
	RoomCode string
	PlayerID string

	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	// 被服务端断开的连接不触发离开
	evicted atomic.Bool
}

func newClient(hub *Hub, conn *websocket.Conn, roomCode, playerID string) *Client {
	return &Client{
		ID:       uuid.New().String(),
		RoomCode: roomCode,
		PlayerID: playerID,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, hub.opts.SendBuffer),
		limiter:  rate.NewLimiter(hub.opts.RateLimit, hub.opts.RateBurst),
	}
}

// readPump 读取消息。连接断开且该玩家没有其他连接时标记离线，宽限期过后离开房间
func (c *Client) readPump() {
	defer func() {
		others := c.hub.unregister(c)
		c.conn.Close()

		if c.evicted.Load() || others {
			return
		}
		if c.hub.opts.LeaveGrace <= 0 {
			c.closeSeat(game.CmdLeave)
			return
		}
		c.closeSeat(game.CmdDisconnect)
		c.hub.scheduleLeave(c.RoomCode, c.PlayerID)
	}()

	opts := c.hub.opts
	c.conn.SetReadLimit(opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
		return nil
	})

	// 补发快照和本人身份
	if err := c.hub.dispatch(c, game.Command{Type: game.CmdReconnect, PlayerID: c.PlayerID}); err != nil {
		c.hub.logger.Debug("接入房间失败",
			zap.String("room", c.RoomCode),
			zap.String("player_id", c.PlayerID),
			zap.Error(err))
		c.sendError(game.CmdReconnect, err)
		c.hub.evict(c)
	}

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("WebSocket读取错误",
					zap.String("client_id", c.ID),
					zap.Error(err))
			}
			return
		}
		c.handleMessage(message)
	}
}

func (c *Client) closeSeat(typ game.CommandType) {
	if err := c.hub.dispatch(c, game.Command{Type: typ, PlayerID: c.PlayerID}); err != nil {
		c.hub.logger.Debug("断线处理失败",
			zap.String("room", c.RoomCode),
			zap.String("player_id", c.PlayerID),
			zap.String("command", string(typ)),
			zap.Error(err))
	}
}

// writePump 写入消息，发送通道关闭时先发完队列再断开
func (c *Client) writePump() {
	opts := c.hub.opts
	ticker := time.NewTicker(opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理一条客户端消息，拒绝原因只回给本连接
func (c *Client) handleMessage(raw []byte) {
	if c.evicted.Load() {
		return
	}
	if !c.limiter.Allow() {
		c.sendError("", apperrors.New(apperrors.ErrRateLimitExceeded))
		return
	}

	msg, err := decodeMessage(raw)
	if err != nil {
		c.sendError("", err)
		return
	}
	if msg.Type == MessageTypePing {
		c.sendPong()
		return
	}

	cmd, err := toCommand(msg, c.PlayerID)
	if err != nil {
		c.sendError(game.CommandType(msg.Type), err)
		return
	}

	if err := c.hub.dispatch(c, cmd); err != nil {
		c.hub.logger.Debug("指令被拒绝",
			zap.String("room", c.RoomCode),
			zap.String("player_id", c.PlayerID),
			zap.String("command", string(cmd.Type)),
			zap.Int("code", int(apperrors.GetCode(err))),
			zap.Error(err))
		c.sendError(cmd.Type, err)
	}
}

// sendError 发送错误事件
func (c *Client) sendError(cmd game.CommandType, err error) {
	data, encErr := encodeEvent(game.ErrorEvent(c.RoomCode, c.PlayerID, cmd, err), c.hub.now())
	if encErr != nil {
		c.hub.logger.Error("序列化错误事件失败", zap.Error(encErr))
		return
	}
	c.hub.sendToClient(c, data)
}

func (c *Client) sendPong() {
	data, err := encodeEvent(game.Event{Type: MessageTypePong, RoomCode: c.RoomCode}, c.hub.now())
	if err != nil {
		return
	}
	c.hub.sendToClient(c, data)
}
