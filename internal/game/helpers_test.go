package game

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClock 手动推进的时钟，到期的定时器在Advance中同步执行
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance 推进时间并依次触发到期的定时器
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()

	for {
		t := c.nextDue()
		if t == nil {
			return
		}
		t.f()
	}
}

func (c *fakeClock) nextDue() *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due *fakeTimer
	for _, t := range c.timers {
		if t.stopped || t.fired || t.at.After(c.now) {
			continue
		}
		if due == nil || t.at.Before(due.at) {
			due = t
		}
	}
	if due != nil {
		due.fired = true
	}
	return due
}

// pending 未触发也未取消的定时器数
func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// lastTimer 最近创建的定时器
func (c *fakeClock) lastTimer() *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		return nil
	}
	return c.timers[len(c.timers)-1]
}

// recordingNotifier 记录所有发布的事件
type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Publish(events []Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, events...)
}

func (n *recordingNotifier) ofType(typ EventType) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Event
	for _, e := range n.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}

// testEnv 引擎测试环境
type testEnv struct {
	clock     *fakeClock
	persister *MemoryRoomPersister
	notifier  *recordingNotifier
	registry  *Registry
	rules     Rules
}

type envOption func(*Dependencies, *RegistryConfig)

func withRules(mutate func(*Rules)) envOption {
	return func(d *Dependencies, _ *RegistryConfig) { mutate(&d.Rules) }
}

func withPersister(p RoomPersister) envOption {
	return func(d *Dependencies, _ *RegistryConfig) { d.Persister = p }
}

func withRecorder(r ResultRecorder) envOption {
	return func(d *Dependencies, _ *RegistryConfig) { d.Recorder = r }
}

func withMaxRooms(n int) envOption {
	return func(_ *Dependencies, c *RegistryConfig) { c.MaxRooms = n }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	env := &testEnv{
		clock:     newFakeClock(),
		persister: NewMemoryRoomPersister(),
		notifier:  &recordingNotifier{},
	}

	var seedMu sync.Mutex
	seed := int64(42)
	deps := Dependencies{
		Clock:     env.clock,
		Persister: env.persister,
		Notifier:  env.notifier,
		Words:     DefaultWordLibrary(),
		Rules:     DefaultRules(),
		Logger:    zap.NewNop(),
		NewRand: func() *rand.Rand {
			seedMu.Lock()
			defer seedMu.Unlock()
			seed++
			return rand.New(rand.NewSource(seed))
		},
	}
	cfg := RegistryConfig{}
	for _, opt := range opts {
		opt(&deps, &cfg)
	}
	cfg.Deps = deps
	env.rules = deps.Rules
	env.registry = NewRegistry(cfg)
	return env
}

var testWords = &WordPair{Majority: "苹果", Minority: "梨"}

// setupRoom 创建n人房间并全部准备，玩家ID为p1..pn，p1为房主
func (e *testEnv) setupRoom(t *testing.T, n int, settings Settings) (*Room, []string) {
	t.Helper()
	ctx := context.Background()

	if settings.MaxPlayers == 0 {
		settings.MaxPlayers = n
		if settings.MaxPlayers < MinPlayers {
			settings.MaxPlayers = MinPlayers
		}
	}
	if settings.CustomWords == nil && settings.WordPack == "" {
		w := *testWords
		settings.CustomWords = &w
	}

	room, _, err := e.registry.CreateRoom(ctx, "p1", "玩家1", "", &settings)
	require.NoError(t, err)

	ids := []string{"p1"}
	for i := 2; i <= n; i++ {
		id := fmt.Sprintf("p%d", i)
		_, err := room.Join(ctx, id, fmt.Sprintf("玩家%d", i), "")
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids {
		_, err := room.SetReady(ctx, id, true)
		require.NoError(t, err)
	}
	return room, ids
}

// startRoom 创建房间并开局
func (e *testEnv) startRoom(t *testing.T, n int, settings Settings) (*Room, []string) {
	t.Helper()
	room, ids := e.setupRoom(t, n, settings)
	_, err := room.StartGame(context.Background(), "p1")
	require.NoError(t, err)
	return room, ids
}

// speakAll 当前轮次所有人按顺序发言
func speakAll(t *testing.T, room *Room, prefix string) {
	t.Helper()
	ctx := context.Background()
	for {
		s := room.Snapshot()
		if s.Phase != PhaseDescription {
			return
		}
		speaker := s.CurrentRound().CurrentSpeaker()
		require.NotEmpty(t, speaker)
		_, err := room.SubmitClue(ctx, speaker, fmt.Sprintf("%s-%d-%s", prefix, s.CurrentRound().Number, speaker))
		require.NoError(t, err)
	}
}

// voteAll 所有存活玩家投给target，target自己投给fallback
func voteAll(t *testing.T, room *Room, target, fallback string) []Event {
	t.Helper()
	ctx := context.Background()
	var last []Event
	for _, id := range room.Snapshot().ActiveIDs() {
		to := target
		if id == target {
			to = fallback
		}
		events, err := room.SubmitVote(ctx, id, to)
		require.NoError(t, err)
		last = events
	}
	return last
}

// idsWithRole 存活的指定身份玩家，按ID排序
func idsWithRole(s *RoomState, role Role) []string {
	var ids []string
	for _, p := range s.ActivePlayers() {
		if p.Role == role {
			ids = append(ids, p.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func eventTypes(events []Event) []EventType {
	types := make([]EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func findEvent(events []Event, typ EventType) (Event, bool) {
	for _, e := range events {
		if e.Type == typ {
			return e, true
		}
	}
	return Event{}, false
}
