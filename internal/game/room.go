package game

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/wfunc/undercover-game/internal/config"
	apperrors "github.com/wfunc/undercover-game/internal/errors"
	"go.uber.org/zap"
)

// Rules 服务端统一的对局规则
type Rules struct {
	TieBreak          TieBreakPolicy
	MaxVoteRounds     int
	AllowSelfVote     bool
	BlankGuessTimeout time.Duration
	MaxClueLength     int
	RoomTTL           time.Duration
	Defaults          Settings
}

// DefaultRules 默认规则
func DefaultRules() Rules {
	return Rules{
		TieBreak:          TieBreakRevote,
		MaxVoteRounds:     3,
		AllowSelfVote:     false,
		BlankGuessTimeout: 30 * time.Second,
		MaxClueLength:     DefaultClueLimit,
		RoomTTL:           24 * time.Hour,
		Defaults: Settings{
			MaxPlayers:       8,
			RoundTimeSeconds: 60,
			WordPack:         "classic",
			MinorityCount:    1,
		},
	}
}

// RulesFromConfig 从配置构建规则
func RulesFromConfig(cfg *config.GameConfig) Rules {
	rules := DefaultRules()
	if cfg == nil {
		return rules
	}
	if cfg.TieBreak != "" {
		rules.TieBreak = TieBreakPolicy(cfg.TieBreak)
	}
	if cfg.MaxVoteRounds > 0 {
		rules.MaxVoteRounds = cfg.MaxVoteRounds
	}
	rules.AllowSelfVote = cfg.AllowSelfVote
	if cfg.BlankGuessTimeout > 0 {
		rules.BlankGuessTimeout = cfg.BlankGuessTimeout
	}
	if cfg.MaxClueLength > 0 {
		rules.MaxClueLength = cfg.MaxClueLength
	}
	if cfg.RoomTTL > 0 {
		rules.RoomTTL = cfg.RoomTTL
	}
	d := cfg.Defaults
	if d.MaxPlayers > 0 {
		rules.Defaults.MaxPlayers = d.MaxPlayers
	}
	if d.RoundTimeSeconds > 0 {
		rules.Defaults.RoundTimeSeconds = d.RoundTimeSeconds
	}
	if d.WordPack != "" {
		rules.Defaults.WordPack = d.WordPack
	}
	rules.Defaults.MinorityCount = d.MinorityCount
	rules.Defaults.BlankCount = d.BlankCount
	rules.Defaults.DiscussionEnabled = d.DiscussionEnabled
	return rules
}

// Dependencies 房间运行所需的协作者
type Dependencies struct {
	Clock     Clock
	Persister RoomPersister
	Notifier  Notifier
	Words     WordSource
	Recorder  ResultRecorder
	Rules     Rules
	Logger    *zap.Logger
	// NewRand 为每个房间创建随机源，测试中注入固定种子
	NewRand func() *rand.Rand
	// TimerRetry 定时器处理失败（如存储不可用）后的重试间隔
	TimerRetry time.Duration
}

func (d *Dependencies) withDefaults() *Dependencies {
	c := *d
	if c.Clock == nil {
		c.Clock = RealClock()
	}
	if c.Persister == nil {
		c.Persister = NewMemoryRoomPersister()
	}
	if c.Notifier == nil {
		c.Notifier = nopNotifier{}
	}
	if c.Words == nil {
		c.Words = DefaultWordLibrary()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.NewRand == nil {
		c.NewRand = func() *rand.Rand { return rand.New(rand.NewSource(time.Now().UnixNano())) }
	}
	if c.TimerRetry <= 0 {
		c.TimerRetry = time.Second
	}
	if c.Rules.MaxVoteRounds == 0 {
		c.Rules = DefaultRules()
	}
	return &c
}

// Room 单个房间的状态机，所有修改都在mu下串行执行
type Room struct {
	mu        sync.Mutex
	code      string
	expiresAt time.Time
	state     *RoomState
	deps      *Dependencies
	rng       *rand.Rand
	logger    *zap.Logger

	timer  Timer
	armed  timerToken
	closed bool

	onDestroy func(code string)
}

// newRoom 用已持久化的状态构建房间，注册后调用start挂起定时器
func newRoom(state *RoomState, deps *Dependencies, onDestroy func(string)) *Room {
	return &Room{
		code:      state.Code,
		expiresAt: state.ExpiresAt,
		state:     state,
		deps:      deps,
		rng:       deps.NewRand(),
		logger:    deps.Logger.With(zap.String("room", state.Code)),
		onDestroy: onDestroy,
	}
}

// start 按当前状态挂起定时器，截止时间已过的立即触发
func (r *Room) start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rearmLocked()
}

// suspend 停止定时器但保留持久化的快照，用于进程退出
func (r *Room) suspend() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

// Code 房间码
func (r *Room) Code() string { return r.code }

// ExpiresAt 过期时间，创建后不变
func (r *Room) ExpiresAt() time.Time { return r.expiresAt }

// View 公开快照
func (r *Room) View() RoomView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.View()
}

// Snapshot 完整状态副本
func (r *Room) Snapshot() *RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// HasPlayer 玩家是否仍在房间
func (r *Room) HasPlayer(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.state.Player(id)
	return p != nil && !p.Left
}

// IsClosed 房间是否已关闭
func (r *Room) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// txn 一次指令执行的上下文，只修改副本
type txn struct {
	s       *RoomState
	now     time.Time
	rng     *rand.Rand
	rules   Rules
	words   WordSource
	events  []Event
	destroy bool

	// 状态没有变化，只推送事件，不提交也不保存
	readOnly bool
}

func (t *txn) emit(typ EventType, payload interface{}) {
	t.events = append(t.events, Event{Type: typ, Payload: payload})
}

func (t *txn) emitTo(recipient string, typ EventType, payload interface{}) {
	t.events = append(t.events, Event{Type: typ, Recipient: recipient, Payload: payload})
}

func (t *txn) emitRoomUpdated() {
	t.emit(EventRoomUpdated, t.s.View())
}

// fire 执行阶段转换，阶段确实变化时发出事件
func (t *txn) fire(event PhaseEvent) error {
	from, to, err := defaultPhaseMachine.Fire(t.s, event)
	if err != nil {
		return err
	}
	if from == to {
		return nil
	}
	payload := PhasePayload{From: from, To: to}
	if r := t.s.CurrentRound(); r != nil {
		payload.Round = r.Number
	}
	if (to == PhaseDescription || to == PhaseDiscussion) && !t.s.Deadline.IsZero() {
		d := t.s.Deadline
		payload.Deadline = &d
	}
	t.emit(EventPhaseChanged, payload)
	return nil
}

// apply 在副本上执行fn，持久化成功后提交
func (r *Room) apply(ctx context.Context, op string, fn func(t *txn) error) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyLocked(ctx, op, fn)
}

func (r *Room) applyLocked(ctx context.Context, op string, fn func(t *txn) error) ([]Event, error) {
	if r.closed {
		return nil, apperrors.New(apperrors.ErrRoomClosed, r.code)
	}

	t := &txn{
		s:     r.state.Clone(),
		now:   r.deps.Clock.Now(),
		rng:   r.rng,
		rules: r.deps.Rules,
		words: r.deps.Words,
	}
	if err := fn(t); err != nil {
		r.logger.Debug("指令被拒绝", zap.String("op", op), zap.Error(err))
		return nil, err
	}

	if t.readOnly {
		r.stampEvents(t.events, r.state.Version)
		r.deps.Notifier.Publish(t.events)
		return t.events, nil
	}

	if t.destroy {
		if err := r.deps.Persister.Delete(ctx, r.code); err != nil {
			r.logger.Warn("删除房间失败", zap.String("op", op), zap.Error(err))
			return nil, apperrors.Wrap(err, apperrors.ErrStorageUnavailable, "删除房间")
		}
		r.closeLocked()
		r.stampEvents(t.events, r.state.Version)
		r.deps.Notifier.Publish(t.events)
		r.logger.Info("房间已销毁", zap.String("op", op))
		if r.onDestroy != nil {
			r.onDestroy(r.code)
		}
		return t.events, nil
	}

	t.s.Version++
	if err := r.deps.Persister.Save(ctx, t.s); err != nil {
		r.logger.Warn("保存房间失败，指令未生效", zap.String("op", op), zap.Error(err))
		return nil, apperrors.Wrap(err, apperrors.ErrStorageUnavailable, "保存房间")
	}

	prev := r.state
	r.state = t.s
	r.stampEvents(t.events, t.s.Version)
	r.rearmLocked()
	r.deps.Notifier.Publish(t.events)

	if prev.Status != StatusCompleted && t.s.Status == StatusCompleted {
		r.recordResultLocked(ctx)
	}

	r.logger.Debug("指令已提交",
		zap.String("op", op),
		zap.String("phase", string(t.s.Phase)),
		zap.Int64("version", t.s.Version),
		zap.Int("events", len(t.events)))
	return t.events, nil
}

func (r *Room) stampEvents(events []Event, version int64) {
	for i := range events {
		events[i].RoomCode = r.code
		events[i].Version = version
	}
}

// rearmLocked 让挂起的定时器与当前状态一致
func (r *Room) rearmLocked() {
	want := expectedTimer(r.state)
	if r.timer != nil && sameTimer(want, r.armed) {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.armed = want
	if want.Kind == timerNone || r.closed {
		return
	}

	delay := want.Deadline.Sub(r.deps.Clock.Now())
	if delay < 0 {
		delay = 0
	}
	r.timer = r.deps.Clock.AfterFunc(delay, func() { r.fire(want) })
}

// fire 定时器回调，身份与当前状态不符时直接忽略
func (r *Room) fire(tok timerToken) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || !sameTimer(tok, expectedTimer(r.state)) {
		r.logger.Debug("忽略过期定时器",
			zap.String("kind", string(tok.Kind)),
			zap.Int("round", tok.Round),
			zap.Int("turn", tok.Turn))
		return
	}
	r.timer = nil
	r.armed = timerToken{}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := r.applyLocked(ctx, "timeout:"+string(tok.Kind), func(t *txn) error {
		return t.handleTimeout(tok)
	}); err != nil {
		r.logger.Warn("定时器处理失败，稍后重试", zap.String("kind", string(tok.Kind)), zap.Error(err))
		if r.closed {
			return
		}
		r.armed = tok
		r.timer = r.deps.Clock.AfterFunc(r.deps.TimerRetry, func() { r.fire(tok) })
	}
}

// Close 关闭并删除房间（过期清理）
func (r *Room) Close(ctx context.Context, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	if err := r.deps.Persister.Delete(ctx, r.code); err != nil {
		return apperrors.Wrap(err, apperrors.ErrStorageUnavailable, "删除房间")
	}
	r.closeLocked()

	events := []Event{{Type: EventRoomClosed, Payload: RoomClosedPayload{Reason: reason}}}
	r.stampEvents(events, r.state.Version)
	r.deps.Notifier.Publish(events)
	r.logger.Info("房间已关闭", zap.String("reason", reason))
	return nil
}

func (r *Room) closeLocked() {
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.armed = timerToken{}
}

// recordResultLocked 记录对局结果，失败只记日志
func (r *Room) recordResultLocked(ctx context.Context) {
	if r.deps.Recorder == nil {
		return
	}
	if err := r.deps.Recorder.Record(ctx, summarize(r.state, r.deps.Clock.Now())); err != nil {
		r.logger.Warn("记录对局结果失败", zap.Error(err))
	}
}
