// smoke 冒烟测试客户端：通过HTTP建房加入，再用多个机器人连接WebSocket走完一整局
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wfunc/undercover-game/internal/game"
	"github.com/wfunc/undercover-game/internal/service"
	ws "github.com/wfunc/undercover-game/internal/websocket"
	"go.uber.org/zap"
)

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:8080", "服务器地址")
		players = flag.Int("players", 4, "机器人数量")
		timeout = flag.Duration("timeout", 5*time.Minute, "整局超时时间")
		verbose = flag.Bool("v", false, "输出调试日志")
	)
	flag.Parse()

	cfg := zap.NewDevelopmentConfig()
	if !*verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	log, err := cfg.Build()
	if err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	client := &apiClient{baseURL: strings.TrimRight(*baseURL, "/"), http: &http.Client{Timeout: 10 * time.Second}}

	winner, err := run(client, *players, *timeout, log)
	if err != nil {
		log.Error("冒烟测试失败", zap.Error(err))
		os.Exit(1)
	}
	log.Info("冒烟测试通过", zap.String("winner", string(winner)))
}

// run 建房、加入、连接并等待游戏结束
func run(client *apiClient, n int, timeout time.Duration, log *zap.Logger) (game.Winner, error) {
	if n < game.MinPlayers {
		return "", fmt.Errorf("至少需要%d个机器人", game.MinPlayers)
	}

	host, err := client.createRoom("bot-1")
	if err != nil {
		return "", err
	}
	log.Info("房间已创建", zap.String("room", host.RoomCode))

	tickets := []*service.RoomTicket{host}
	for i := 2; i <= n; i++ {
		t, err := client.joinRoom(host.RoomCode, fmt.Sprintf("bot-%d", i))
		if err != nil {
			return "", err
		}
		tickets = append(tickets, t)
	}

	done := make(chan game.Winner, n)
	var wg sync.WaitGroup
	bots := make([]*bot, 0, n)
	for i, t := range tickets {
		b, err := dial(client.wsURL(t.Token), t, i == 0, n, log.Named(fmt.Sprintf("bot-%d", i+1)))
		if err != nil {
			return "", err
		}
		bots = append(bots, b)
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.loop(done)
		}()
	}
	defer func() {
		for _, b := range bots {
			b.conn.Close()
		}
		wg.Wait()
	}()

	select {
	case w := <-done:
		return w, nil
	case <-time.After(timeout):
		return "", fmt.Errorf("等待游戏结束超时")
	}
}

type apiClient struct {
	baseURL string
	http    *http.Client
}

func (c *apiClient) createRoom(name string) (*service.RoomTicket, error) {
	return c.post("/api/v1/rooms", service.CreateRoomRequest{DisplayName: name}, http.StatusCreated)
}

func (c *apiClient) joinRoom(code, name string) (*service.RoomTicket, error) {
	return c.post("/api/v1/rooms/"+code+"/join", service.JoinRoomRequest{DisplayName: name}, http.StatusOK)
}

func (c *apiClient) post(path string, body interface{}, want int) (*service.RoomTicket, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("请求%s失败: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var e map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return nil, fmt.Errorf("请求%s返回%d: %v", path, resp.StatusCode, e["error"])
	}
	var ticket service.RoomTicket
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	return &ticket, nil
}

func (c *apiClient) wsURL(token string) string {
	u := "ws" + strings.TrimPrefix(c.baseURL, "http")
	return u + "/ws?token=" + url.QueryEscape(token)
}

// bot 只根据房间快照做决定，每个机器人只在自己的读循环里写连接
type bot struct {
	conn    *websocket.Conn
	ticket  *service.RoomTicket
	isHost  bool
	players int
	log     *zap.Logger

	role       game.Role
	word       string
	readySent  bool
	startSent  bool
	guessSent  bool
	clueRound  int
	voteRound  int
	seenVotes  int
	discussion int
}

func dial(addr string, t *service.RoomTicket, isHost bool, players int, log *zap.Logger) (*bot, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("连接WebSocket失败: %w", err)
	}
	return &bot{conn: conn, ticket: t, isHost: isHost, players: players, log: log}, nil
}

func (b *bot) loop(done chan<- game.Winner) {
	for {
		var msg ws.Message
		if err := b.conn.ReadJSON(&msg); err != nil {
			b.log.Debug("连接已关闭", zap.Error(err))
			return
		}

		switch game.EventType(msg.Type) {
		case game.EventRoleAssigned:
			var p game.RoleAssignedPayload
			if err := json.Unmarshal(msg.Data, &p); err == nil {
				b.role, b.word = p.Role, p.Word
				b.log.Info("收到身份", zap.String("role", string(p.Role)), zap.String("word", p.Word))
			}
		case game.EventErrorOccurred:
			b.log.Debug("指令被拒绝", zap.ByteString("data", msg.Data))
		case game.EventRoomUpdated:
			var view game.RoomView
			if err := json.Unmarshal(msg.Data, &view); err != nil {
				b.log.Warn("解析房间快照失败", zap.Error(err))
				continue
			}
			if view.Status == game.StatusCompleted {
				done <- view.Winner
				return
			}
			b.act(&view)
		}
	}
}

func (b *bot) act(v *game.RoomView) {
	me := b.ticket.PlayerID
	self := findPlayer(v, me)
	if self == nil {
		return
	}

	if v.Status == game.StatusWaiting {
		if !b.readySent {
			b.readySent = true
			b.send(game.CmdSetReady, map[string]interface{}{"ready": true})
		}
		if b.isHost && !b.startSent && allReady(v, b.players) {
			b.startSent = true
			b.send(game.CmdStartGame, nil)
		}
		return
	}

	if self.IsEliminated {
		if b.role == game.RoleBlank && !b.guessSent {
			b.guessSent = true
			b.send(game.CmdSubmitBlankGuess, map[string]string{"guess": "猜一猜"})
		}
		return
	}
	if len(v.Rounds) == 0 {
		return
	}
	round := v.Rounds[len(v.Rounds)-1]

	switch v.Phase {
	case game.PhaseDescription:
		if round.CurrentSpeaker == me && b.clueRound < round.Number {
			b.clueRound = round.Number
			// 描述在整局内不能重复
			b.send(game.CmdSubmitClue, map[string]string{"text": fmt.Sprintf("%s-%d", me[:8], round.Number)})
		}
	case game.PhaseDiscussion:
		if b.isHost && b.discussion < round.Number {
			b.discussion = round.Number
			b.send(game.CmdBeginVoting, nil)
		}
	case game.PhaseVoting:
		// 平票重投时计票清零
		if b.voteRound < round.Number || round.VotedCount < b.seenVotes {
			if target := pickTarget(v, me); target != "" {
				b.voteRound = round.Number
				b.send(game.CmdSubmitVote, map[string]string{"targetId": target})
			}
		}
		b.seenVotes = round.VotedCount
	}
}

func (b *bot) send(cmd game.CommandType, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	if err := b.conn.WriteJSON(ws.Message{Type: string(cmd), Data: raw}); err != nil {
		b.log.Warn("发送指令失败", zap.String("type", string(cmd)), zap.Error(err))
		return
	}
	b.log.Debug("发送指令", zap.String("type", string(cmd)))
}

func findPlayer(v *game.RoomView, id string) *game.PlayerView {
	for i := range v.Players {
		if v.Players[i].ID == id {
			return &v.Players[i]
		}
	}
	return nil
}

func allReady(v *game.RoomView, want int) bool {
	if len(v.Players) < want {
		return false
	}
	for _, p := range v.Players {
		if !p.IsReady {
			return false
		}
	}
	return true
}

// pickTarget 平票重投时只能在候选人中选，否则选第一个仍在场的其他玩家
func pickTarget(v *game.RoomView, me string) string {
	for _, id := range v.Candidates {
		if id != me {
			return id
		}
	}
	for _, p := range v.Players {
		if p.ID != me && !p.IsEliminated && !p.Left {
			return p.ID
		}
	}
	return ""
}
