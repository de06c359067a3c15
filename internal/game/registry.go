package game

import (
	"context"
	"crypto/rand"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/wfunc/undercover-game/internal/errors"
	"go.uber.org/zap"
)

const (
	roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	roomCodeLength   = 6
	roomCodeAttempts = 10
)

// RegistryConfig 房间注册表配置
type RegistryConfig struct {
	Deps            Dependencies
	MaxRooms        int
	CleanupInterval time.Duration
}

// Registry 房间注册表：创建、查找、过期清理和重启恢复
//
// 注册表的锁与房间锁相互独立，持有注册表锁时不会调用房间方法。
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	deps     *Dependencies
	recovery *RecoveryManager
	logger   *zap.Logger

	maxRooms        int
	cleanupInterval time.Duration
	newCode         func() (string, error)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRegistry 创建注册表
func NewRegistry(cfg RegistryConfig) *Registry {
	deps := cfg.Deps.withDefaults()
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	return &Registry{
		rooms:           make(map[string]*Room),
		deps:            deps,
		recovery:        NewRecoveryManager(deps.Logger, deps.Persister, deps.Clock),
		logger:          deps.Logger,
		maxRooms:        cfg.MaxRooms,
		cleanupInterval: cfg.CleanupInterval,
		newCode:         generateRoomCode,
	}
}

// Rules 当前规则
func (g *Registry) Rules() Rules {
	return g.deps.Rules
}

// Words 词库来源
func (g *Registry) Words() WordSource {
	return g.deps.Words
}

// CreateRoom 创建房间，创建者为房主和第一位玩家
func (g *Registry) CreateRoom(ctx context.Context, hostID, displayName, avatarRef string, settings *Settings) (*Room, []Event, error) {
	name := strings.TrimSpace(displayName)
	if hostID == "" {
		return nil, nil, apperrors.New(apperrors.ErrInvalidParam, "缺少玩家ID")
	}
	if name == "" {
		return nil, nil, apperrors.New(apperrors.ErrEmptyName)
	}

	s := g.deps.Rules.Defaults
	if settings != nil {
		s = settings.normalized().withDefaults(g.deps.Rules.Defaults)
	}
	if err := s.Validate(g.deps.Words); err != nil {
		return nil, nil, err
	}

	code, err := g.reserveCode(ctx)
	if err != nil {
		return nil, nil, err
	}

	now := g.deps.Clock.Now()
	state := &RoomState{
		Code:     code,
		HostID:   hostID,
		Status:   StatusWaiting,
		Phase:    PhaseNone,
		Settings: s,
		Players: []Player{{
			ID:          hostID,
			DisplayName: name,
			AvatarRef:   avatarRef,
			Connected:   true,
			JoinedAt:    now,
		}},
		Winner:    WinnerNone,
		CreatedAt: now,
		ExpiresAt: now.Add(g.deps.Rules.RoomTTL),
		Version:   1,
	}
	if err := g.deps.Persister.Save(ctx, state); err != nil {
		g.logger.Warn("保存新房间失败", zap.String("room", code), zap.Error(err))
		return nil, nil, apperrors.Wrap(err, apperrors.ErrStorageUnavailable, "保存房间")
	}

	room := newRoom(state, g.deps, g.remove)

	g.mu.Lock()
	if _, exists := g.rooms[code]; exists {
		g.mu.Unlock()
		return nil, nil, apperrors.New(apperrors.ErrRoomCodeExhausted, code)
	}
	g.rooms[code] = room
	total := len(g.rooms)
	g.mu.Unlock()
	room.start()

	g.logger.Info("创建房间",
		zap.String("room", code),
		zap.String("host", hostID),
		zap.Int("rooms", total))

	events := []Event{{
		Type:     EventRoomUpdated,
		RoomCode: code,
		Version:  state.Version,
		Payload:  state.View(),
	}}
	return room, events, nil
}

// reserveCode 生成一个内存和存储中都未使用的房间码
func (g *Registry) reserveCode(ctx context.Context) (string, error) {
	g.mu.RLock()
	full := g.maxRooms > 0 && len(g.rooms) >= g.maxRooms
	g.mu.RUnlock()
	if full {
		return "", apperrors.Newf(apperrors.ErrTooManyRooms, "上限%d", g.maxRooms)
	}

	for i := 0; i < roomCodeAttempts; i++ {
		code, err := g.newCode()
		if err != nil {
			return "", apperrors.Wrap(err, apperrors.ErrUnknown, "生成房间码失败")
		}

		g.mu.RLock()
		_, used := g.rooms[code]
		g.mu.RUnlock()
		if used {
			continue
		}

		_, err = g.deps.Persister.Load(ctx, code)
		switch {
		case apperrors.Is(err, apperrors.ErrRoomNotFound):
			return code, nil
		case err == nil:
			continue
		default:
			return "", apperrors.Wrap(err, apperrors.ErrStorageUnavailable, "检查房间码")
		}
	}
	return "", apperrors.New(apperrors.ErrRoomCodeExhausted)
}

// Get 查找房间，内存中没有时尝试从持久化恢复
func (g *Registry) Get(ctx context.Context, code string) (*Room, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	g.mu.RLock()
	room, ok := g.rooms[code]
	g.mu.RUnlock()
	if ok && !room.IsClosed() {
		return room, nil
	}

	state, err := g.recovery.RecoverRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	return g.adopt(state), nil
}

// adopt 把恢复出的状态注册为房间，已存在时返回现有房间
func (g *Registry) adopt(state *RoomState) *Room {
	g.mu.RLock()
	existing, ok := g.rooms[state.Code]
	g.mu.RUnlock()
	if ok && !existing.IsClosed() {
		return existing
	}

	room := newRoom(state, g.deps, g.remove)

	g.mu.Lock()
	if cur, ok := g.rooms[state.Code]; ok && cur != existing {
		// 并发恢复同一房间时以先注册者为准
		g.mu.Unlock()
		return cur
	}
	g.rooms[state.Code] = room
	g.mu.Unlock()

	room.start()
	return room
}

// Dispatch 把指令交给对应房间
func (g *Registry) Dispatch(ctx context.Context, code string, cmd Command) ([]Event, error) {
	room, err := g.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	return room.Handle(ctx, cmd)
}

// remove 房间销毁回调，在房间锁内调用
func (g *Registry) remove(code string) {
	g.mu.Lock()
	delete(g.rooms, code)
	total := len(g.rooms)
	g.mu.Unlock()

	g.logger.Info("移除房间", zap.String("room", code), zap.Int("rooms", total))
}

// Count 内存中的房间数
func (g *Registry) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// Codes 内存中的房间码
func (g *Registry) Codes() []string {
	g.mu.RLock()
	codes := make([]string, 0, len(g.rooms))
	for code := range g.rooms {
		codes = append(codes, code)
	}
	g.mu.RUnlock()

	sort.Strings(codes)
	return codes
}

// CleanupExpired 关闭过期房间并清理存储中的过期快照
func (g *Registry) CleanupExpired(ctx context.Context) int {
	now := g.deps.Clock.Now()

	g.mu.RLock()
	var expired []*Room
	for _, room := range g.rooms {
		if now.After(room.ExpiresAt()) {
			expired = append(expired, room)
		}
	}
	g.mu.RUnlock()

	closed := 0
	for _, room := range expired {
		if err := room.Close(ctx, "expired"); err != nil {
			g.logger.Warn("关闭过期房间失败", zap.String("room", room.Code()), zap.Error(err))
			continue
		}
		g.remove(room.Code())
		closed++
	}

	if n, err := g.recovery.CleanupExpired(ctx); err != nil {
		g.logger.Warn("清理过期快照失败", zap.Error(err))
	} else if n > 0 {
		g.logger.Info("清理过期快照", zap.Int64("count", n))
	}

	if closed > 0 {
		g.logger.Info("清理过期房间", zap.Int("count", closed))
	}
	return closed
}

// Recover 启动时恢复全部未过期房间
func (g *Registry) Recover(ctx context.Context) (int, error) {
	states, err := g.recovery.RecoverAll(ctx)
	if err != nil {
		return 0, err
	}
	for _, s := range states {
		g.adopt(s)
	}
	g.logger.Info("恢复房间完成", zap.Int("count", len(states)))
	return len(states), nil
}

// Start 启动定期清理任务
func (g *Registry) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.done = make(chan struct{})

	go func() {
		defer close(g.done)
		ticker := time.NewTicker(g.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				g.logger.Info("停止房间清理任务")
				return
			case <-ticker.C:
				g.CleanupExpired(ctx)
			}
		}
	}()
}

// Stop 停止清理任务并挂起所有房间的定时器，快照保留用于重启恢复
func (g *Registry) Stop() {
	if g.cancel != nil {
		g.cancel()
		<-g.done
		g.cancel = nil
	}

	g.mu.Lock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}
	g.rooms = make(map[string]*Room)
	g.mu.Unlock()

	for _, room := range rooms {
		room.suspend()
	}
}

// generateRoomCode 生成6位房间码，去掉了容易混淆的字符
func generateRoomCode() (string, error) {
	max := big.NewInt(int64(len(roomCodeAlphabet)))
	b := make([]byte, roomCodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = roomCodeAlphabet[n.Int64()]
	}
	return string(b), nil
}
