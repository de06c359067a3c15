package websocket

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wfunc/undercover-game/internal/config"
	"github.com/wfunc/undercover-game/internal/game"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Dispatcher 指令入口，由 game.Registry 实现
type Dispatcher interface {
	Dispatch(ctx context.Context, code string, cmd game.Command) ([]game.Event, error)
}

// Options 连接参数
type Options struct {
	WriteWait      time.Duration // 写超时
	PongWait       time.Duration // 读取pong超时
	PingPeriod     time.Duration // 必须小于PongWait
	MaxMessageSize int64
	SendBuffer     int
	RateLimit      rate.Limit // 每秒允许的指令数
	RateBurst      int
	CommandTimeout time.Duration
	LeaveGrace     time.Duration // 断线后保留座位的时间，0为立即离开
}

// DefaultOptions 默认连接参数
func DefaultOptions() Options {
	return Options{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 8 * 1024,
		SendBuffer:     256,
		RateLimit:      10,
		RateBurst:      20,
		CommandTimeout: 5 * time.Second,
		LeaveGrace:     15 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = (o.PongWait * 9) / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.RateLimit <= 0 {
		o.RateLimit = d.RateLimit
	}
	if o.RateBurst <= 0 {
		o.RateBurst = d.RateBurst
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = d.CommandTimeout
	}
	if o.LeaveGrace < 0 {
		o.LeaveGrace = 0
	}
	return o
}

// OptionsFromConfig 从配置生成连接参数，未配置的项使用默认值
func OptionsFromConfig(cfg *config.WebSocketConfig) Options {
	opts := DefaultOptions()
	if cfg == nil {
		return opts
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteWait = cfg.WriteTimeout
	}
	if cfg.PongTimeout > 0 {
		opts.PongWait = cfg.PongTimeout
	}
	if cfg.PingInterval > 0 && cfg.PingInterval < opts.PongWait {
		opts.PingPeriod = cfg.PingInterval
	} else {
		opts.PingPeriod = (opts.PongWait * 9) / 10
	}
	if cfg.MaxMessageSize > 0 {
		opts.MaxMessageSize = cfg.MaxMessageSize
	}
	if cfg.RateLimit > 0 {
		opts.RateLimit = rate.Limit(cfg.RateLimit)
	}
	if cfg.RateBurst > 0 {
		opts.RateBurst = cfg.RateBurst
	}
	if cfg.LeaveGrace >= 0 {
		opts.LeaveGrace = cfg.LeaveGrace
	}
	return opts
}

// Hub 房间事件网关，管理连接并实现 game.Notifier
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client // 房间码 -> 客户端ID -> 客户端
	leaving map[string]*time.Timer        // 房间码/玩家ID -> 离开定时器
	stopped bool

	dispatcher Dispatcher
	opts       Options
	logger     *zap.Logger
	now        func() time.Time
}

// NewHub 创建Hub，dispatcher 需在接入连接前通过 SetDispatcher 设置
func NewHub(opts Options, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		leaving: make(map[string]*time.Timer),
		opts:    opts.withDefaults(),
		logger:  logger,
		now:     time.Now,
	}
}

// SetDispatcher 设置指令入口
func (h *Hub) SetDispatcher(d Dispatcher) {
	h.dispatcher = d
}

// Attach 接入一条已鉴权的连接并启动读写协程
func (h *Hub) Attach(conn *websocket.Conn, roomCode, playerID string) *Client {
	c := newClient(h, conn, strings.ToUpper(roomCode), playerID)
	h.register(c)

	go c.writePump()
	go c.readPump()
	return c
}

// Publish 把房间事件推送给在线连接，在房间锁内调用，不能阻塞
func (h *Hub) Publish(events []game.Event) {
	now := h.now()

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, e := range events {
		data, err := encodeEvent(e, now)
		if err != nil {
			h.logger.Error("序列化事件失败",
				zap.String("room", e.RoomCode),
				zap.String("type", string(e.Type)),
				zap.Error(err))
			continue
		}

		room := h.rooms[e.RoomCode]
		for _, c := range room {
			if e.IsPrivate() && c.PlayerID != e.Recipient {
				continue
			}
			h.queueLocked(c, data)
		}

		// 已排队的消息发完后再断开
		switch e.Type {
		case game.EventRoomClosed:
			for _, c := range room {
				h.evictLocked(c)
			}
		case game.EventPlayerLeft:
			if p, ok := e.Payload.(game.PlayerLeftPayload); ok {
				for _, c := range room {
					if c.PlayerID == p.PlayerID {
						h.evictLocked(c)
					}
				}
			}
		}
	}
}

// register 注册客户端
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	room, ok := h.rooms[c.RoomCode]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[c.RoomCode] = room
	}
	room[c.ID] = c
	if timer, ok := h.leaving[seatKey(c.RoomCode, c.PlayerID)]; ok {
		timer.Stop()
		delete(h.leaving, seatKey(c.RoomCode, c.PlayerID))
	}
	h.mu.Unlock()

	h.logger.Info("WebSocket客户端连接",
		zap.String("client_id", c.ID),
		zap.String("room", c.RoomCode),
		zap.String("player_id", c.PlayerID))
}

// unregister 注销客户端，返回该玩家是否还有其他在线连接
func (h *Hub) unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.ID]; ok {
		h.removeLocked(c)
		h.logger.Info("WebSocket客户端断开",
			zap.String("client_id", c.ID),
			zap.String("room", c.RoomCode),
			zap.String("player_id", c.PlayerID))
	}

	return h.onlineLocked(c.RoomCode, c.PlayerID)
}

func (h *Hub) onlineLocked(roomCode, playerID string) bool {
	for _, other := range h.rooms[roomCode] {
		if other.PlayerID == playerID {
			return true
		}
	}
	return false
}

func seatKey(roomCode, playerID string) string {
	return roomCode + "/" + playerID
}

// scheduleLeave 宽限期内没有重连则离开房间
func (h *Hub) scheduleLeave(roomCode, playerID string) {
	key := seatKey(roomCode, playerID)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped || h.onlineLocked(roomCode, playerID) {
		return
	}
	if old, ok := h.leaving[key]; ok {
		old.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(h.opts.LeaveGrace, func() {
		h.mu.Lock()
		current := h.leaving[key] == timer
		if current {
			delete(h.leaving, key)
		}
		online := h.onlineLocked(roomCode, playerID)
		h.mu.Unlock()
		if !current || online {
			return
		}

		h.logger.Info("断线超时，玩家离开房间",
			zap.String("room", roomCode),
			zap.String("player_id", playerID))
		if err := h.dispatchTo(roomCode, game.Command{Type: game.CmdLeave, PlayerID: playerID}); err != nil {
			h.logger.Debug("断线离开失败",
				zap.String("room", roomCode),
				zap.String("player_id", playerID),
				zap.Error(err))
		}
	})
	h.leaving[key] = timer
}

// pendingLeaves 等待重连的座位数
func (h *Hub) pendingLeaves() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.leaving)
}

// evict 服务端主动断开客户端
func (h *Hub) evict(c *Client) {
	h.mu.Lock()
	h.evictLocked(c)
	h.mu.Unlock()
}

func (h *Hub) evictLocked(c *Client) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	c.evicted.Store(true)
	h.removeLocked(c)
}

// removeLocked 移出索引并关闭发送通道
func (h *Hub) removeLocked(c *Client) {
	delete(h.clients, c.ID)
	if room, ok := h.rooms[c.RoomCode]; ok {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(h.rooms, c.RoomCode)
		}
	}
	close(c.send)
}

// queueLocked 非阻塞写入发送队列
func (h *Hub) queueLocked(c *Client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.logger.Warn("客户端发送缓冲区满，丢弃消息",
			zap.String("client_id", c.ID),
			zap.String("room", c.RoomCode))
	}
}

// sendToClient 发送给单个客户端，客户端已注销时忽略
func (h *Hub) sendToClient(c *Client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[c.ID]; !ok {
		return false
	}
	h.queueLocked(c, data)
	return true
}

// dispatch 转发指令到房间
func (h *Hub) dispatch(c *Client, cmd game.Command) error {
	return h.dispatchTo(c.RoomCode, cmd)
}

func (h *Hub) dispatchTo(roomCode string, cmd game.Command) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.CommandTimeout)
	defer cancel()

	_, err := h.dispatcher.Dispatch(ctx, roomCode, cmd)
	return err
}

// Shutdown 断开所有连接，不会触发离开
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopped = true
	for key, timer := range h.leaving {
		timer.Stop()
		delete(h.leaving, key)
	}
	for _, c := range h.clients {
		h.evictLocked(c)
	}
}

// GetOnlineCount 获取在线连接数
func (h *Hub) GetOnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomOnlineCount 获取房间在线连接数
func (h *Hub) RoomOnlineCount(roomCode string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[strings.ToUpper(roomCode)])
}
