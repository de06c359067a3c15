package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/undercover-game/internal/errors"
	"github.com/wfunc/undercover-game/internal/game"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type testGateway struct {
	hub      *Hub
	registry *game.Registry
	server   *httptest.Server
}

// newTestGateway 注册表和Hub互相连接，连接参数通过查询串指定房间和玩家
func newTestGateway(t *testing.T, opts Options) *testGateway {
	t.Helper()
	hub := NewHub(opts, zap.NewNop())
	registry := game.NewRegistry(game.RegistryConfig{Deps: game.Dependencies{
		Notifier: hub,
		Logger:   zap.NewNop(),
	}})
	hub.SetDispatcher(registry)

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Attach(conn, r.URL.Query().Get("room"), r.URL.Query().Get("player"))
	}))

	t.Cleanup(func() {
		hub.Shutdown()
		server.Close()
		registry.Stop()
	})
	return &testGateway{hub: hub, registry: registry, server: server}
}

// newRoom 创建房间，host 为 p1，其余玩家直接加入
func (g *testGateway) newRoom(t *testing.T, players int) string {
	t.Helper()
	ctx := context.Background()
	room, _, err := g.registry.CreateRoom(ctx, "p1", "玩家1", "", &game.Settings{
		MaxPlayers:       8,
		RoundTimeSeconds: 60,
		MinorityCount:    1,
		CustomWords:      &game.WordPair{Majority: "苹果", Minority: "梨"},
	})
	require.NoError(t, err)

	for i := 2; i <= players; i++ {
		id := playerID(i)
		_, err := g.registry.Dispatch(ctx, room.Code(), game.Command{Type: game.CmdJoin, PlayerID: id, DisplayName: "玩家" + id[1:]})
		require.NoError(t, err)
	}
	return room.Code()
}

func playerID(i int) string {
	return "p" + string(rune('0'+i))
}

func (g *testGateway) dial(t *testing.T, room, player string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(g.server.URL, "http") + "/?room=" + room + "&player=" + player
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (g *testGateway) room(t *testing.T, code string) *game.Room {
	t.Helper()
	room, err := g.registry.Get(context.Background(), code)
	require.NoError(t, err)
	return room
}

func send(t *testing.T, conn *websocket.Conn, typ string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Message{Type: typ, Data: raw}))
}

// readUntil 读取直到出现指定类型，返回途中收到的全部消息
func readUntil(t *testing.T, conn *websocket.Conn, typ string) []*Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var seen []*Message
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "等待消息 %s", typ)
		msg := &Message{}
		require.NoError(t, json.Unmarshal(data, msg))
		seen = append(seen, msg)
		if msg.Type == typ {
			return seen
		}
	}
}

func last(msgs []*Message) *Message {
	return msgs[len(msgs)-1]
}

func countType(msgs []*Message, typ string) int {
	n := 0
	for _, m := range msgs {
		if m.Type == typ {
			n++
		}
	}
	return n
}

func decodeError(t *testing.T, msg *Message) game.ErrorPayload {
	t.Helper()
	require.Equal(t, string(game.EventErrorOccurred), msg.Type)
	var p game.ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Data, &p))
	return p
}

// expectClosed 连接应被服务端关闭
func expectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "期望正常关闭: %v", err)
			return
		}
	}
}

func TestGateway_ConnectSendsSnapshot(t *testing.T) {
	g := newTestGateway(t, Options{})
	code := g.newRoom(t, 1)

	conn := g.dial(t, code, "p1")
	msg := last(readUntil(t, conn, string(game.EventRoomUpdated)))

	assert.Equal(t, code, msg.RoomCode)
	assert.NotZero(t, msg.Version)
	assert.NotZero(t, msg.Timestamp)

	var view game.RoomView
	require.NoError(t, json.Unmarshal(msg.Data, &view))
	assert.Equal(t, code, view.Code)
	require.Len(t, view.Players, 1)
	assert.True(t, view.Players[0].Connected)
	assert.Nil(t, view.Settings.CustomWords)
	assert.Equal(t, 1, g.hub.RoomOnlineCount(code))
}

func TestGateway_UnknownPlayerRejected(t *testing.T) {
	g := newTestGateway(t, Options{})
	code := g.newRoom(t, 1)

	conn := g.dial(t, code, "ghost")
	p := decodeError(t, last(readUntil(t, conn, string(game.EventErrorOccurred))))
	assert.Equal(t, apperrors.ErrPlayerNotFound, p.Code)
	assert.Equal(t, game.CmdReconnect, p.Command)

	expectClosed(t, conn)
	assert.True(t, g.room(t, code).HasPlayer("p1"))
}

func TestGateway_UnknownRoomRejected(t *testing.T) {
	g := newTestGateway(t, Options{})

	conn := g.dial(t, "ZZZZZZ", "p1")
	p := decodeError(t, last(readUntil(t, conn, string(game.EventErrorOccurred))))
	assert.Equal(t, apperrors.ErrRoomNotFound, p.Code)
	assert.Equal(t, apperrors.CategoryNotFound, p.Category)
	expectClosed(t, conn)
}

func TestGateway_StartGameSendsPrivateRoles(t *testing.T) {
	g := newTestGateway(t, Options{})
	code := g.newRoom(t, 3)

	conns := make(map[string]*websocket.Conn)
	for _, id := range []string{"p1", "p2", "p3"} {
		conns[id] = g.dial(t, code, id)
		readUntil(t, conns[id], string(game.EventRoomUpdated))
	}

	for _, id := range []string{"p1", "p2", "p3"} {
		send(t, conns[id], "set_ready", map[string]bool{"ready": true})
		readUntil(t, conns[id], string(game.EventRoomUpdated))
	}
	require.Eventually(t, func() bool {
		for _, p := range g.room(t, code).Snapshot().Players {
			if !p.IsReady {
				return false
			}
		}
		return true
	}, 3*time.Second, 10*time.Millisecond)

	send(t, conns["p1"], "start_game", nil)

	snapshot := g.room(t, code).Snapshot
	for id, conn := range conns {
		msgs := readUntil(t, conn, string(game.EventTurnOrderUpdated))
		require.Equal(t, 1, countType(msgs, string(game.EventRoleAssigned)), id)

		var role game.RoleAssignedPayload
		for _, m := range msgs {
			if m.Type == string(game.EventRoleAssigned) {
				require.NoError(t, json.Unmarshal(m.Data, &role))
			}
		}
		p := snapshot().Player(id)
		require.NotNil(t, p)
		assert.Equal(t, p.Role, role.Role, id)
		assert.Equal(t, p.SecretWord, role.Word, id)
	}
	assert.Equal(t, game.StatusInProgress, snapshot().Status)
}

func TestGateway_RejectionOnlyToSender(t *testing.T) {
	g := newTestGateway(t, Options{})
	code := g.newRoom(t, 2)

	host := g.dial(t, code, "p1")
	readUntil(t, host, string(game.EventRoomUpdated))
	guest := g.dial(t, code, "p2")
	readUntil(t, guest, string(game.EventRoomUpdated))

	send(t, guest, "start_game", nil)
	p := decodeError(t, last(readUntil(t, guest, string(game.EventErrorOccurred))))
	assert.Equal(t, apperrors.ErrNotHost, p.Code)
	assert.Equal(t, game.CmdStartGame, p.Command)
	assert.Equal(t, apperrors.CategoryGuard, p.Category)

	// 房主只会收到guest连接带来的快照，收不到错误
	send(t, host, MessageTypePing, nil)
	msgs := readUntil(t, host, MessageTypePong)
	assert.Zero(t, countType(msgs, string(game.EventErrorOccurred)))
}

func TestGateway_InvalidMessagesKeepConnection(t *testing.T) {
	g := newTestGateway(t, Options{})
	code := g.newRoom(t, 1)
	conn := g.dial(t, code, "p1")
	readUntil(t, conn, string(game.EventRoomUpdated))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	p := decodeError(t, last(readUntil(t, conn, string(game.EventErrorOccurred))))
	assert.Equal(t, apperrors.ErrMessageFormat, p.Code)

	// 建房和加入只能走HTTP，重连只能由网关发出
	for _, typ := range []string{"join", "create_room", "reconnect", "disconnect", "dance"} {
		send(t, conn, typ, nil)
		p := decodeError(t, last(readUntil(t, conn, string(game.EventErrorOccurred))))
		assert.Equal(t, apperrors.ErrUnknownCommand, p.Code, typ)
		assert.Equal(t, game.CommandType(typ), p.Command)
	}

	send(t, conn, "submit_vote", "not an object")
	p = decodeError(t, last(readUntil(t, conn, string(game.EventErrorOccurred))))
	assert.Equal(t, apperrors.ErrMessageFormat, p.Code)

	send(t, conn, MessageTypePing, nil)
	readUntil(t, conn, MessageTypePong)
	assert.True(t, g.room(t, code).HasPlayer("p1"))
}

func TestGateway_RateLimit(t *testing.T) {
	g := newTestGateway(t, Options{RateLimit: rate.Limit(0.001), RateBurst: 2})
	code := g.newRoom(t, 1)
	conn := g.dial(t, code, "p1")
	readUntil(t, conn, string(game.EventRoomUpdated))

	for i := 0; i < 3; i++ {
		send(t, conn, MessageTypePing, nil)
	}
	readUntil(t, conn, MessageTypePong)
	readUntil(t, conn, MessageTypePong)
	p := decodeError(t, last(readUntil(t, conn, string(game.EventErrorOccurred))))
	assert.Equal(t, apperrors.ErrRateLimitExceeded, p.Code)
}

func TestGateway_DisconnectLeavesRoom(t *testing.T) {
	g := newTestGateway(t, Options{})
	code := g.newRoom(t, 2)

	host := g.dial(t, code, "p1")
	readUntil(t, host, string(game.EventRoomUpdated))
	guest := g.dial(t, code, "p2")
	readUntil(t, guest, string(game.EventRoomUpdated))

	require.NoError(t, guest.Close())

	msgs := readUntil(t, host, string(game.EventPlayerLeft))
	var left game.PlayerLeftPayload
	require.NoError(t, json.Unmarshal(last(msgs).Data, &left))
	assert.Equal(t, "p2", left.PlayerID)
	assert.False(t, g.room(t, code).HasPlayer("p2"))
}

func TestGateway_ReconnectWithinGraceKeepsSeat(t *testing.T) {
	g := newTestGateway(t, Options{LeaveGrace: 300 * time.Millisecond})
	code := g.newRoom(t, 2)

	host := g.dial(t, code, "p1")
	readUntil(t, host, string(game.EventRoomUpdated))
	guest := g.dial(t, code, "p2")
	readUntil(t, guest, string(game.EventRoomUpdated))

	require.NoError(t, guest.Close())
	require.Eventually(t, func() bool {
		p := g.room(t, code).Snapshot().Player("p2")
		return p != nil && !p.Connected
	}, 3*time.Second, 10*time.Millisecond)
	assert.True(t, g.room(t, code).HasPlayer("p2"))

	// 刷新页面后回到原来的座位
	again := g.dial(t, code, "p2")
	readUntil(t, again, string(game.EventRoomUpdated))
	require.Eventually(t, func() bool { return g.room(t, code).Snapshot().Player("p2").Connected }, 3*time.Second, 10*time.Millisecond)
	assert.Zero(t, g.hub.pendingLeaves())

	assert.Never(t, func() bool { return !g.room(t, code).HasPlayer("p2") }, 500*time.Millisecond, 20*time.Millisecond)
}

func TestGateway_GraceExpiryLeavesRoom(t *testing.T) {
	g := newTestGateway(t, Options{LeaveGrace: 100 * time.Millisecond})
	code := g.newRoom(t, 2)

	host := g.dial(t, code, "p1")
	readUntil(t, host, string(game.EventRoomUpdated))
	guest := g.dial(t, code, "p2")
	readUntil(t, guest, string(game.EventRoomUpdated))

	require.NoError(t, guest.Close())

	msgs := readUntil(t, host, string(game.EventPlayerLeft))
	var left game.PlayerLeftPayload
	require.NoError(t, json.Unmarshal(last(msgs).Data, &left))
	assert.Equal(t, "p2", left.PlayerID)
	// 离开前先看到离线状态
	assert.NotZero(t, countType(msgs, string(game.EventRoomUpdated)))
	assert.False(t, g.room(t, code).HasPlayer("p2"))
}

func TestGateway_SecondConnectionKeepsPlayer(t *testing.T) {
	g := newTestGateway(t, Options{})
	code := g.newRoom(t, 2)

	first := g.dial(t, code, "p2")
	readUntil(t, first, string(game.EventRoomUpdated))
	second := g.dial(t, code, "p2")
	readUntil(t, second, string(game.EventRoomUpdated))
	require.Eventually(t, func() bool { return g.hub.RoomOnlineCount(code) == 2 }, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool { return g.hub.RoomOnlineCount(code) == 1 }, 3*time.Second, 10*time.Millisecond)

	assert.Never(t, func() bool { return !g.room(t, code).HasPlayer("p2") }, 200*time.Millisecond, 20*time.Millisecond)
}

func TestGateway_LeaveCommandClosesConnection(t *testing.T) {
	g := newTestGateway(t, Options{})
	code := g.newRoom(t, 2)

	host := g.dial(t, code, "p1")
	readUntil(t, host, string(game.EventRoomUpdated))
	guest := g.dial(t, code, "p2")
	readUntil(t, guest, string(game.EventRoomUpdated))

	send(t, guest, "leave", nil)
	readUntil(t, guest, string(game.EventPlayerLeft))
	expectClosed(t, guest)

	readUntil(t, host, string(game.EventPlayerLeft))
	assert.False(t, g.room(t, code).HasPlayer("p2"))
	require.Eventually(t, func() bool { return g.hub.RoomOnlineCount(code) == 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestGateway_RoomClosedDisconnects(t *testing.T) {
	g := newTestGateway(t, Options{})
	code := g.newRoom(t, 1)

	conn := g.dial(t, code, "p1")
	readUntil(t, conn, string(game.EventRoomUpdated))

	send(t, conn, "leave", nil)
	msgs := readUntil(t, conn, string(game.EventPlayerLeft))
	assert.Equal(t, string(game.EventPlayerLeft), last(msgs).Type)
	expectClosed(t, conn)

	_, err := g.registry.Get(context.Background(), code)
	assert.Equal(t, apperrors.ErrRoomNotFound, apperrors.GetCode(err))
	assert.Zero(t, g.hub.GetOnlineCount())
}

func TestGateway_ShutdownKeepsPlayers(t *testing.T) {
	g := newTestGateway(t, Options{})
	code := g.newRoom(t, 2)

	conn := g.dial(t, code, "p2")
	readUntil(t, conn, string(game.EventRoomUpdated))

	g.hub.Shutdown()
	expectClosed(t, conn)

	assert.Never(t, func() bool { return !g.room(t, code).HasPlayer("p2") }, 200*time.Millisecond, 20*time.Millisecond)
}
