package game

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/wfunc/undercover-game/internal/errors"
)

// StartGame 房主开局：选词、分配身份、生成第一轮发言顺序
func (r *Room) StartGame(ctx context.Context, byID string) ([]Event, error) {
	return r.apply(ctx, "start_game", func(t *txn) error {
		s := t.s
		if !s.IsHost(byID) {
			return apperrors.New(apperrors.ErrNotHost)
		}
		switch s.Status {
		case StatusInProgress:
			return apperrors.New(apperrors.ErrGameAlreadyStarted)
		case StatusCompleted:
			return apperrors.New(apperrors.ErrWrongPhase, "需要先重置房间")
		}
		if len(s.Players) < MinPlayers {
			return apperrors.Newf(apperrors.ErrNotEnoughPlayers, "至少需要%d名玩家，当前%d名", MinPlayers, len(s.Players))
		}
		for _, p := range s.Players {
			if !p.IsReady {
				return apperrors.New(apperrors.ErrNotAllReady, p.DisplayName)
			}
		}

		pair, used, err := pickWordPair(t.words, s.Settings, s.UsedPairs, t.rng)
		if err != nil {
			return err
		}
		ids := make([]string, len(s.Players))
		for i, p := range s.Players {
			ids[i] = p.ID
		}
		assignments, _, err := AssignRoles(ids, s.Settings.MinorityCount, s.Settings.BlankCount, pair, t.rng)
		if err != nil {
			return err
		}

		for i := range s.Players {
			a := assignments[s.Players[i].ID]
			s.Players[i].Role = a.Role
			s.Players[i].SecretWord = a.Word
			s.Players[i].IsEliminated = false
		}
		s.Words = pair
		s.UsedPairs = used
		s.GameNumber++
		s.StartedAt = t.now
		s.Status = StatusInProgress
		s.Winner = WinnerNone
		s.Rounds = nil
		s.UsedClues = nil
		s.BlankGuessed = false

		for _, p := range s.Players {
			t.emitTo(p.ID, EventRoleAssigned, RoleAssignedPayload{Role: p.Role, Word: p.SecretWord})
		}

		t.startRound(1)
		if err := t.fire(EventStartGame); err != nil {
			return err
		}
		t.emitTurnOrder()
		t.emitRoomUpdated()
		return nil
	})
}

// startRound 追加新一轮并设置第一位发言者的截止时间
func (t *txn) startRound(number int) {
	s := t.s
	active := s.ActivePlayers()
	cands := make([]TurnCandidate, len(active))
	for i, p := range active {
		cands[i] = TurnCandidate{ID: p.ID, Role: p.Role}
	}

	s.Rounds = append(s.Rounds, Round{
		Number:        number,
		SpeakingOrder: GenerateTurnOrder(cands, number, t.rng),
		Votes:         make(map[string]string),
	})
	s.VoteRound = 0
	s.Candidates = nil
	s.Guess = nil
	s.Deadline = t.now.Add(s.Settings.RoundTime())
}

func (t *txn) emitTurnOrder() {
	round := t.s.CurrentRound()
	t.emit(EventTurnOrderUpdated, TurnOrderPayload{
		Round:          round.Number,
		SpeakingOrder:  append([]string(nil), round.SpeakingOrder...),
		CurrentSpeaker: round.CurrentSpeaker(),
		Deadline:       t.s.Deadline,
	})
}

// SubmitClue 当前发言者提交描述
func (r *Room) SubmitClue(ctx context.Context, playerID, text string) ([]Event, error) {
	clue := strings.TrimSpace(text)
	return r.apply(ctx, "submit_clue", func(t *txn) error {
		s := t.s
		if s.Status != StatusInProgress {
			return apperrors.New(apperrors.ErrGameNotStarted)
		}
		if s.Phase != PhaseDescription && s.Phase != PhaseDiscussion {
			return apperrors.Newf(apperrors.ErrWrongPhase, "当前阶段: %s", s.Phase)
		}
		p := s.Player(playerID)
		if p == nil || p.Left {
			return apperrors.New(apperrors.ErrPlayerNotFound, playerID)
		}
		if p.IsEliminated {
			return apperrors.New(apperrors.ErrPlayerEliminated)
		}
		round := s.CurrentRound()
		if round.CurrentSpeaker() != playerID {
			return apperrors.New(apperrors.ErrNotYourTurn)
		}
		if clue == "" {
			return apperrors.New(apperrors.ErrEmptyClue)
		}
		if utf8.RuneCountInString(clue) > t.rules.MaxClueLength {
			return apperrors.Newf(apperrors.ErrClueTooLong, "最多%d个字符", t.rules.MaxClueLength)
		}
		norm := normalizeText(clue)
		if containsString(s.UsedClues, norm) {
			return apperrors.New(apperrors.ErrDuplicateClue, clue)
		}

		round.Clues = append(round.Clues, Clue{PlayerID: playerID, Text: clue, At: t.now})
		s.UsedClues = append(s.UsedClues, norm)
		t.emit(EventClueSubmitted, CluePayload{Round: round.Number, PlayerID: playerID, Text: clue})
		return t.advanceTurn()
	})
}

// advanceTurn 移到下一位未出局的发言者，全部发言结束后进入下一阶段
func (t *txn) advanceTurn() error {
	s := t.s
	round := s.CurrentRound()
	round.TurnIndex++
	for !round.SpeakingDone() {
		if p := s.Player(round.CurrentSpeaker()); p != nil && !p.IsEliminated {
			break
		}
		round.TurnIndex++
	}

	if round.SpeakingDone() {
		return t.speakingDone()
	}

	s.Deadline = t.now.Add(s.Settings.RoundTime())
	d := s.Deadline
	t.emit(EventTurnAdvanced, TurnPayload{
		Round:    round.Number,
		PlayerID: round.CurrentSpeaker(),
		Turn:     round.TurnIndex,
		Deadline: &d,
	})
	return nil
}

// speakingDone 发言结束，进入讨论或直接投票
func (t *txn) speakingDone() error {
	s := t.s
	if s.Settings.DiscussionEnabled {
		s.Deadline = t.now.Add(s.Settings.RoundTime())
	} else {
		t.resetVoting()
	}
	if err := t.fire(EventSpeakingDone); err != nil {
		return err
	}
	t.emitRoomUpdated()
	return nil
}

func (t *txn) resetVoting() {
	t.s.Deadline = time.Time{}
	t.s.VoteRound = 1
	t.s.Candidates = nil
}

// BeginVoting 房主结束讨论，开始投票
func (r *Room) BeginVoting(ctx context.Context, byID string) ([]Event, error) {
	return r.apply(ctx, "begin_voting", func(t *txn) error {
		s := t.s
		if s.Status != StatusInProgress {
			return apperrors.New(apperrors.ErrGameNotStarted)
		}
		if !s.IsHost(byID) {
			return apperrors.New(apperrors.ErrNotHost)
		}
		if !defaultPhaseMachine.CanFire(s, EventBeginVoting) {
			return apperrors.Newf(apperrors.ErrWrongPhase, "当前阶段: %s", s.Phase)
		}
		return t.openVoting()
	})
}

func (t *txn) openVoting() error {
	t.resetVoting()
	if err := t.fire(EventBeginVoting); err != nil {
		return err
	}
	t.emitRoomUpdated()
	return nil
}

// SubmitVote 投票，重复投票覆盖之前的选择
func (r *Room) SubmitVote(ctx context.Context, voterID, targetID string) ([]Event, error) {
	return r.apply(ctx, "submit_vote", func(t *txn) error {
		s := t.s
		if s.Status != StatusInProgress {
			return apperrors.New(apperrors.ErrGameNotStarted)
		}
		if s.Phase != PhaseVoting {
			return apperrors.Newf(apperrors.ErrWrongPhase, "当前阶段: %s", s.Phase)
		}
		voter := s.Player(voterID)
		if voter == nil || voter.Left {
			return apperrors.New(apperrors.ErrPlayerNotFound, voterID)
		}
		if voter.IsEliminated {
			return apperrors.New(apperrors.ErrPlayerEliminated)
		}
		target := s.Player(targetID)
		if target == nil || target.IsEliminated {
			return apperrors.New(apperrors.ErrInvalidTarget, targetID)
		}
		if len(s.Candidates) > 0 && !containsString(s.Candidates, targetID) {
			return apperrors.New(apperrors.ErrInvalidTarget, "只能投给平票候选人")
		}
		if voterID == targetID && !t.rules.AllowSelfVote {
			return apperrors.New(apperrors.ErrSelfVote)
		}

		round := s.CurrentRound()
		round.Votes[voterID] = targetID
		voted, required := votingProgress(s)
		t.emit(EventVoteSubmitted, VoteSubmittedPayload{VoterID: voterID, Voted: voted, Required: required})
		return t.maybeResolveVotes()
	})
}

// votingProgress 已投票的存活人数和需要的人数
func votingProgress(s *RoomState) (voted, required int) {
	round := s.CurrentRound()
	for _, id := range s.ActiveIDs() {
		required++
		if _, ok := round.Votes[id]; ok {
			voted++
		}
	}
	return voted, required
}

// maybeResolveVotes 所有存活玩家都投票后自动计票
func (t *txn) maybeResolveVotes() error {
	if t.s.Phase != PhaseVoting {
		return nil
	}
	voted, required := votingProgress(t.s)
	if required == 0 || voted < required {
		return nil
	}
	return t.resolveVotes()
}

// resolveVotes 计票并处理平票
func (t *txn) resolveVotes() error {
	s := t.s
	round := s.CurrentRound()
	res := TallyVotes(round.Votes, s.ActiveIDs())
	round.Tally = res.Counts

	payload := VotingResultPayload{
		Round:     round.Number,
		VoteRound: s.VoteRound,
		Counts:    res.Counts,
		Votes:     copyVotes(round.Votes),
		Tied:      res.Tied,
	}

	eliminated := res.Eliminated
	if res.Tied {
		if t.rules.TieBreak == TieBreakLowestID {
			eliminated = res.BreakTie()
		} else if s.VoteRound < t.rules.MaxVoteRounds {
			payload.Revote = true
			payload.Candidates = append([]string(nil), res.Leaders...)
			t.emit(EventVotingResult, payload)

			s.VoteRound++
			s.Candidates = append([]string(nil), res.Leaders...)
			round.Votes = make(map[string]string)
			round.Tally = nil
			if err := t.fire(EventRevote); err != nil {
				return err
			}
			t.emitRoomUpdated()
			return nil
		}
		// 重投次数用完仍平票，本轮无人出局
	}

	var openGuess bool
	if eliminated != "" {
		p := s.Player(eliminated)
		p.IsEliminated = true
		snap := &EliminatedSnapshot{
			PlayerID:    p.ID,
			DisplayName: p.DisplayName,
			Role:        p.Role,
			SecretWord:  p.SecretWord,
		}
		round.Eliminated = snap
		payload.Eliminated = snap

		if p.Role == RoleBlank {
			s.Guess = &GuessWindow{
				PlayerID: p.ID,
				Round:    round.Number,
				Deadline: t.now.Add(t.rules.BlankGuessTimeout),
			}
			g := *s.Guess
			payload.GuessWindow = &g
			openGuess = true
		}
	}

	s.Candidates = nil
	t.emit(EventVotingResult, payload)
	if err := t.fire(EventTallyDone); err != nil {
		return err
	}
	if openGuess {
		t.emitRoomUpdated()
		return nil
	}
	return t.finishRound()
}

func copyVotes(votes map[string]string) map[string]string {
	out := make(map[string]string, len(votes))
	for k, v := range votes {
		out[k] = v
	}
	return out
}

// SubmitBlankGuess 出局的白板猜平民词
func (r *Room) SubmitBlankGuess(ctx context.Context, playerID, guess string) ([]Event, error) {
	text := strings.TrimSpace(guess)
	return r.apply(ctx, "submit_blank_guess", func(t *txn) error {
		s := t.s
		if s.Status != StatusInProgress || s.Phase != PhaseElimination ||
			s.Guess == nil || s.Guess.PlayerID != playerID {
			return apperrors.New(apperrors.ErrGuessNotAllowed)
		}
		if text == "" {
			return apperrors.New(apperrors.ErrEmptyGuess)
		}
		correct := normalizeText(text) == normalizeText(s.Words.Majority)
		return t.closeGuess(playerID, text, correct, false)
	})
}

// closeGuess 关闭猜词窗口后结算本轮
func (t *txn) closeGuess(playerID, guess string, correct, timedOut bool) error {
	t.s.Guess = nil
	t.s.BlankGuessed = correct
	t.emit(EventBlankGuessResult, BlankGuessPayload{
		PlayerID: playerID,
		Guess:    guess,
		Correct:  correct,
		TimedOut: timedOut,
	})
	return t.finishRound()
}

// finishRound 判定胜负，未分胜负则开始下一轮
func (t *txn) finishRound() error {
	s := t.s
	s.Guess = nil
	if w := EvaluateWinCondition(s); w != WinnerNone {
		return t.gameOver(w)
	}

	t.startRound(len(s.Rounds) + 1)
	if err := t.fire(EventNextRound); err != nil {
		return err
	}
	t.emitTurnOrder()
	t.emitRoomUpdated()
	return nil
}

// gameOver 结束对局并公开全部身份
func (t *txn) gameOver(w Winner) error {
	s := t.s
	if err := t.fire(EventGameOver); err != nil {
		return err
	}
	s.Winner = w
	s.Status = StatusCompleted
	s.Deadline = time.Time{}
	s.Guess = nil
	s.Candidates = nil

	t.emit(EventGameOverResult, GameOverPayload{
		Winner: w,
		Rounds: len(s.Rounds),
		Words:  s.Words,
		Reveal: s.reveal(),
	})
	t.emitRoomUpdated()
	return nil
}

// handleTimeout 定时器到期
func (t *txn) handleTimeout(tok timerToken) error {
	s := t.s
	switch tok.Kind {
	case timerTurn:
		round := s.CurrentRound()
		id := round.CurrentSpeaker()
		round.Skipped = append(round.Skipped, id)
		t.emit(EventTurnSkipped, TurnPayload{Round: round.Number, PlayerID: id, Turn: round.TurnIndex})
		return t.advanceTurn()
	case timerDiscussion:
		return t.openVoting()
	case timerGuess:
		return t.closeGuess(s.Guess.PlayerID, "", false, true)
	}
	return apperrors.Newf(apperrors.ErrUnknown, "未知定时器: %s", tok.Kind)
}
