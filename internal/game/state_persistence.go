package game

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	apperrors "github.com/wfunc/undercover-game/internal/errors"
	"github.com/wfunc/undercover-game/internal/models"
	"github.com/wfunc/undercover-game/internal/repository"
	"go.uber.org/zap"
)

// RoomPersister 房间状态持久化接口
//
// Save 必须是幂等的覆盖写入。Load 找不到时返回 ErrRoomNotFound。
type RoomPersister interface {
	Save(ctx context.Context, state *RoomState) error
	Load(ctx context.Context, code string) (*RoomState, error)
	Delete(ctx context.Context, code string) error
	ListActive(ctx context.Context, now time.Time) ([]*RoomState, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// MemoryRoomPersister 内存持久化（用于测试和单机部署）
type MemoryRoomPersister struct {
	mu    sync.RWMutex
	rooms map[string][]byte
}

// NewMemoryRoomPersister 创建内存持久化器
func NewMemoryRoomPersister() *MemoryRoomPersister {
	return &MemoryRoomPersister{
		rooms: make(map[string][]byte),
	}
}

// Save 保存状态，按JSON存储以隔离调用方的修改
func (p *MemoryRoomPersister) Save(ctx context.Context, state *RoomState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrDataIntegrity, "序列化房间状态失败")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.rooms[state.Code] = data
	return nil
}

// Load 加载状态
func (p *MemoryRoomPersister) Load(ctx context.Context, code string) (*RoomState, error) {
	p.mu.RLock()
	data, ok := p.rooms[code]
	p.mu.RUnlock()

	if !ok {
		return nil, apperrors.New(apperrors.ErrRoomNotFound, code)
	}
	return decodeState(data)
}

// Delete 删除状态
func (p *MemoryRoomPersister) Delete(ctx context.Context, code string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.rooms, code)
	return nil
}

// ListActive 未过期的房间，按房间码排序
func (p *MemoryRoomPersister) ListActive(ctx context.Context, now time.Time) ([]*RoomState, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var states []*RoomState
	for _, data := range p.rooms {
		s, err := decodeState(data)
		if err != nil {
			return nil, err
		}
		if !now.After(s.ExpiresAt) {
			states = append(states, s)
		}
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Code < states[j].Code })
	return states, nil
}

// DeleteExpired 删除过期房间
func (p *MemoryRoomPersister) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var n int64
	for code, data := range p.rooms {
		s, err := decodeState(data)
		if err != nil || now.After(s.ExpiresAt) {
			delete(p.rooms, code)
			n++
		}
	}
	return n, nil
}

// Len 已保存的房间数
func (p *MemoryRoomPersister) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.rooms)
}

func decodeState(data []byte) (*RoomState, error) {
	var s RoomState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDataIntegrity, "反序列化房间状态失败")
	}
	return &s, nil
}

// DatabaseRoomPersister 数据库持久化
type DatabaseRoomPersister struct {
	repo repository.RoomSnapshotRepository
}

// NewDatabaseRoomPersister 创建数据库持久化器
func NewDatabaseRoomPersister(repo repository.RoomSnapshotRepository) *DatabaseRoomPersister {
	return &DatabaseRoomPersister{repo: repo}
}

// Save 按房间码覆盖写入快照
func (p *DatabaseRoomPersister) Save(ctx context.Context, state *RoomState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrDataIntegrity, "序列化房间状态失败")
	}

	now := time.Now().UTC()
	snapshot := &models.RoomSnapshot{
		Code:        state.Code,
		HostID:      state.HostID,
		Status:      string(state.Status),
		Phase:       string(state.Phase),
		PlayerCount: len(state.PresentPlayers()),
		Version:     state.Version,
		StateData:   string(data),
		ExpiresAt:   state.ExpiresAt.UTC(),
		CreatedAt:   state.CreatedAt.UTC(),
		UpdatedAt:   now,
	}
	if err := p.repo.Upsert(ctx, snapshot); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrStorageUnavailable, "保存房间快照失败: %s", state.Code)
	}
	return nil
}

// Load 加载快照
func (p *DatabaseRoomPersister) Load(ctx context.Context, code string) (*RoomState, error) {
	snapshot, err := p.repo.FindByCode(ctx, code)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.New(apperrors.ErrRoomNotFound, code)
		}
		return nil, apperrors.Wrapf(err, apperrors.ErrStorageUnavailable, "查询房间快照失败: %s", code)
	}
	return decodeState([]byte(snapshot.StateData))
}

// Delete 删除快照
func (p *DatabaseRoomPersister) Delete(ctx context.Context, code string) error {
	if err := p.repo.DeleteByCode(ctx, code); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrStorageUnavailable, "删除房间快照失败: %s", code)
	}
	return nil
}

// ListActive 未过期的快照，解析失败的快照跳过
func (p *DatabaseRoomPersister) ListActive(ctx context.Context, now time.Time) ([]*RoomState, error) {
	snapshots, err := p.repo.ListActive(ctx, now.UTC())
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorageUnavailable, "查询房间快照失败")
	}

	states := make([]*RoomState, 0, len(snapshots))
	for _, snap := range snapshots {
		s, err := decodeState([]byte(snap.StateData))
		if err != nil {
			continue
		}
		states = append(states, s)
	}
	return states, nil
}

// DeleteExpired 删除过期快照
func (p *DatabaseRoomPersister) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := p.repo.DeleteExpired(ctx, now.UTC())
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrStorageUnavailable, "清理过期快照失败")
	}
	return n, nil
}

// RetryingPersister 对可重试的存储错误做有限次重试（装饰器）
type RetryingPersister struct {
	inner    RoomPersister
	attempts int
	interval time.Duration
	logger   *zap.Logger
}

// NewRetryingPersister 创建重试装饰器，attempts 为额外重试次数
func NewRetryingPersister(inner RoomPersister, attempts int, interval time.Duration, logger *zap.Logger) *RetryingPersister {
	if logger == nil {
		logger = zap.NewNop()
	}
	if attempts < 0 {
		attempts = 0
	}
	return &RetryingPersister{
		inner:    inner,
		attempts: attempts,
		interval: interval,
		logger:   logger,
	}
}

func (p *RetryingPersister) do(ctx context.Context, op string, fn func() error) error {
	err := fn()
	for i := 0; i < p.attempts && err != nil && apperrors.IsRetryable(err); i++ {
		p.logger.Warn("存储操作失败，准备重试",
			zap.String("op", op),
			zap.Int("attempt", i+1),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return apperrors.New(apperrors.ErrStorageUnavailable, op).WithCause(ctx.Err())
		case <-time.After(p.interval):
		}
		err = fn()
	}
	return err
}

// Save 保存
func (p *RetryingPersister) Save(ctx context.Context, state *RoomState) error {
	return p.do(ctx, "save", func() error { return p.inner.Save(ctx, state) })
}

// Load 加载
func (p *RetryingPersister) Load(ctx context.Context, code string) (*RoomState, error) {
	var state *RoomState
	err := p.do(ctx, "load", func() error {
		var err error
		state, err = p.inner.Load(ctx, code)
		return err
	})
	return state, err
}

// Delete 删除
func (p *RetryingPersister) Delete(ctx context.Context, code string) error {
	return p.do(ctx, "delete", func() error { return p.inner.Delete(ctx, code) })
}

// ListActive 列出未过期房间
func (p *RetryingPersister) ListActive(ctx context.Context, now time.Time) ([]*RoomState, error) {
	var states []*RoomState
	err := p.do(ctx, "list_active", func() error {
		var err error
		states, err = p.inner.ListActive(ctx, now)
		return err
	})
	return states, err
}

// DeleteExpired 删除过期房间
func (p *RetryingPersister) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := p.do(ctx, "delete_expired", func() error {
		var err error
		n, err = p.inner.DeleteExpired(ctx, now)
		return err
	})
	return n, err
}
