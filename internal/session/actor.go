// File: internal/session/actor.go
// quiznet server - per-session actor
//
// Each session runs as its own goroutine draining a single inbox channel
// that funnels joins, leaves, answers, joker use, and timer ticks,
// exactly as recommended in spec.md §9: this is what lets Session's
// fields (types.go) be mutated without any lock, and makes the state
// machine linearizable by construction. Once a session reaches
// StatusFinished the actor keeps running (a session is a tombstone, not
// a process): it simply answers every further command with the
// "finished" outcome, which avoids a delicate shutdown handshake with
// callers that may already be mid-send to its inbox.

package session

import (
	"log"
	"sync/atomic"
	"time"

	"quiznet/internal/question"
)

type actor struct {
	session *Session
	engine  *Engine
	inbox   chan any
	stopCh  chan struct{} // closed once, cancels any in-flight timers
	active  atomic.Bool

	timeoutTimer   *time.Timer
	advanceTimer   *time.Timer
	countdownTimer *time.Timer
}

func newActor(s *Session, e *Engine) *actor {
	a := &actor{
		session: s,
		engine:  e,
		inbox:   make(chan any, 32),
		stopCh:  make(chan struct{}),
	}
	a.active.Store(true)
	return a
}

func (a *actor) run() {
	for cmd := range a.inbox {
		if !a.active.Load() {
			a.replyFinished(cmd)
			continue
		}
		a.handle(cmd)
	}
}

// --- command shapes -------------------------------------------------

type cmdJoin struct {
	clientID int
	pseudo   string
	reply    chan JoinResult
}

type cmdLeave struct {
	clientID int
	reply    chan LeaveResult
}

type cmdStart struct {
	clientID int
	reply    chan StartResult
}

type cmdAnswer struct {
	clientID     int
	answer       Answer
	responseTime float64
	reply        chan AnswerResult
}

type cmdJoker struct {
	clientID int
	jokType  JokerType
	reply    chan JokerResult
}

type cmdDescribe struct {
	reply chan SessionView
}

type cmdForceEnd struct {
	reply chan struct{}
}

// internal, timer-driven; never sent by a caller outside this package.
type cmdTimeout struct{ forQuestionIdx int }
type cmdAdvanceTick struct{}
type cmdCountdownDone struct{}

// --- dispatch ---------------------------------------------------------

func (a *actor) handle(cmd any) {
	switch c := cmd.(type) {
	case cmdJoin:
		c.reply <- a.handleJoin(c.clientID, c.pseudo)
	case cmdLeave:
		c.reply <- a.handleLeave(c.clientID)
	case cmdStart:
		c.reply <- a.handleStart(c.clientID)
	case cmdAnswer:
		c.reply <- a.handleAnswer(c.clientID, c.answer, c.responseTime)
	case cmdJoker:
		c.reply <- a.handleJoker(c.clientID, c.jokType)
	case cmdDescribe:
		c.reply <- a.describe()
	case cmdForceEnd:
		if a.session.Status != StatusFinished {
			a.triggerEnd()
		}
		c.reply <- struct{}{}
	case cmdTimeout:
		if a.session.Status == StatusPlaying && a.session.CurrentQuestionIdx == c.forQuestionIdx {
			a.handleTimeout()
		}
	case cmdAdvanceTick:
		if a.session.Status == StatusPlaying {
			a.session.CurrentQuestionIdx++
			a.dispatchQuestion()
		}
	case cmdCountdownDone:
		if a.session.Status == StatusPlaying {
			a.session.CurrentQuestionIdx = 0
			a.dispatchQuestion()
		}
	default:
		log.Printf("session %d: unknown command %T", a.session.ID, cmd)
	}
}

// replyFinished answers a command sent to an already-finished session
// with its "finished" outcome, without touching session state.
func (a *actor) replyFinished(cmd any) {
	switch c := cmd.(type) {
	case cmdJoin:
		c.reply <- JoinResult{Outcome: JoinNotWaiting}
	case cmdLeave:
		c.reply <- LeaveResult{Outcome: LeaveNotMember}
	case cmdStart:
		c.reply <- StartResult{Outcome: StartNotWaiting}
	case cmdAnswer:
		c.reply <- AnswerResult{Outcome: AnswerNotPlaying}
	case cmdJoker:
		c.reply <- JokerResult{Outcome: JokerUnavailable}
	case cmdDescribe:
		c.reply <- a.describe()
	case cmdForceEnd:
		c.reply <- struct{}{}
	default:
		// internal ticks: nothing to reply to.
	}
}

// --- join / leave / start ---------------------------------------------

func (a *actor) handleJoin(clientID int, pseudo string) JoinResult {
	s := a.session
	if s.Status != StatusWaiting {
		return JoinResult{Outcome: JoinNotWaiting}
	}
	if len(s.Players) >= s.MaxPlayers {
		return JoinResult{Outcome: JoinFull}
	}
	if _, idx := s.PlayerByClientID(clientID); idx != -1 {
		return JoinResult{Outcome: JoinAlreadyMember}
	}

	lives := 0
	if s.Mode == ModeBattle {
		lives = s.InitialLives
	}
	s.Players = append(s.Players, &SessionPlayer{
		ClientID: clientID,
		Pseudo:   pseudo,
		Lives:    lives,
	})

	a.engine.membership.SetClientSession(clientID, s.ID)

	others := clientIDsExcept(s.Players, clientID)
	a.engine.broadcaster.SendMany(others, PlayerJoinedEvent{
		Action:    "session/player/joined",
		Pseudo:    pseudo,
		NbPlayers: len(s.Players),
	})

	return JoinResult{Outcome: JoinOK, Players: pseudoList(s.Players)}
}

func (a *actor) handleLeave(clientID int) LeaveResult {
	s := a.session
	p, idx := s.PlayerByClientID(clientID)
	if idx == -1 {
		return LeaveResult{Outcome: LeaveNotMember}
	}

	wasCreator := s.CreatorClientID == clientID
	s.Players = append(s.Players[:idx], s.Players[idx+1:]...)
	a.engine.membership.ClearClientSession(clientID)

	if wasCreator && len(s.Players) > 0 {
		s.CreatorClientID = s.Players[0].ClientID
	}

	remaining := clientIDsAll(s.Players)
	a.engine.broadcaster.SendMany(remaining, PlayerLeftEvent{
		Action:    "session/player/left",
		Pseudo:    p.Pseudo,
		NbPlayers: len(s.Players),
	})

	result := LeaveResult{Outcome: LeaveOK}

	if len(s.Players) == 0 {
		a.triggerEnd()
	} else if len(s.Players) == 1 && s.Status == StatusPlaying {
		a.triggerEnd()
	}

	return result
}

func (a *actor) handleStart(clientID int) StartResult {
	s := a.session
	if s.Status != StatusWaiting {
		return StartResult{Outcome: StartNotWaiting}
	}
	if clientID != s.CreatorClientID {
		return StartResult{Outcome: StartNotCreator}
	}
	if len(s.Players) < 2 {
		return StartResult{Outcome: StartNotEnoughPlayers}
	}

	s.Status = StatusPlaying
	s.CurrentQuestionIdx = -1

	ids := clientIDsAll(s.Players)
	a.engine.broadcaster.SendMany(ids, StartedEvent{
		Action:        "session/started",
		CountdownSecs: 3,
	})

	a.scheduleCountdown(3 * time.Second)

	return StartResult{Outcome: StartOK}
}

// --- question dispatch / answers / jokers ------------------------------

func (a *actor) dispatchQuestion() {
	s := a.session
	for _, p := range s.Players {
		if p.Eliminated {
			continue
		}
		p.HasAnswered = false
		p.WasCorrect = false
		p.LastAnswer = Answer{}
		p.ResponseTime = 0
		p.UsedSkipThisRound = false
		p.PointsThisQuestion = 0
	}

	s.QuestionStartTime = time.Now()

	q, ok := a.engine.bank.Get(s.QuestionIDs[s.CurrentQuestionIdx])
	if !ok {
		log.Printf("session %d: dispatch: unknown question id %d", s.ID, s.QuestionIDs[s.CurrentQuestionIdx])
		a.triggerEnd()
		return
	}

	evt := NewQuestionEvent{
		Action:      "question/new",
		QuestionNum: s.CurrentQuestionNumber(),
		NbQuestions: s.NbQuestions,
		Kind:        string(q.Kind),
		Difficulty:  q.Difficulty.WireString(),
		Prompt:      q.Prompt,
		TimeLimit:   s.TimeLimit,
	}
	if q.Kind == question.KindMultiChoice {
		evt.Options = append([]string(nil), q.Options[:]...)
	}

	targets := nonEliminatedClientIDs(s.Players)
	a.engine.broadcaster.SendMany(targets, evt)

	a.scheduleTimeout(time.Duration(s.TimeLimit)*time.Second, s.CurrentQuestionIdx)
}

func (a *actor) handleAnswer(clientID int, ans Answer, responseTime float64) AnswerResult {
	s := a.session
	if s.Status != StatusPlaying {
		return AnswerResult{Outcome: AnswerNotPlaying}
	}
	p, idx := s.PlayerByClientID(clientID)
	if idx == -1 {
		return AnswerResult{Outcome: AnswerNotMember}
	}
	if p.Eliminated {
		return AnswerResult{Outcome: AnswerEliminated}
	}
	if p.HasAnswered {
		// Idempotent: the second answer from the same client for the
		// same question changes nothing (spec.md §8).
		return AnswerResult{Outcome: AnswerOK, Duplicate: true}
	}

	maxRT := float64(s.TimeLimit) + 1
	if responseTime < 0 || responseTime > maxRT {
		responseTime = maxRT
	}

	q, ok := a.engine.bank.Get(s.QuestionIDs[s.CurrentQuestionIdx])
	if !ok {
		return AnswerResult{Outcome: AnswerNotPlaying}
	}

	correct := evaluateAnswer(q, ans)

	p.HasAnswered = true
	p.WasCorrect = correct
	p.LastAnswer = ans
	p.ResponseTime = responseTime

	if correct {
		pts := pointsForCorrectAnswer(q.Difficulty, responseTime, s.TimeLimit)
		p.Score += pts
		p.CorrectCount++
		p.PointsThisQuestion = pts
		a.engine.presence.BumpScore(p.Pseudo, pts)
	}

	if a.allEligibleAnswered() {
		a.cancelTimeoutTimer()
		a.triggerResults()
	}

	return AnswerResult{Outcome: AnswerOK}
}

func (a *actor) handleJoker(clientID int, jk JokerType) JokerResult {
	s := a.session
	if s.Status != StatusPlaying {
		return JokerResult{Outcome: JokerNotInSession}
	}
	p, idx := s.PlayerByClientID(clientID)
	if idx == -1 {
		return JokerResult{Outcome: JokerNotMember}
	}
	if p.Eliminated {
		return JokerResult{Outcome: JokerUnavailable}
	}

	switch jk {
	case JokerFifty:
		q, ok := a.engine.bank.Get(s.QuestionIDs[s.CurrentQuestionIdx])
		if !ok || q.Kind != question.KindMultiChoice || p.HasAnswered || p.FiftyUsed {
			return JokerResult{Outcome: JokerUnavailable}
		}
		remaining := fiftyFiftyReveal(q)
		p.FiftyUsed = true
		return JokerResult{Outcome: JokerOK, FiftyRemaining: remaining}

	case JokerSkip:
		if p.HasAnswered || p.SkipUsed {
			return JokerResult{Outcome: JokerUnavailable}
		}
		p.HasAnswered = true
		p.WasCorrect = false
		p.LastAnswer = Answer{Kind: AnswerSkip, Index: SkipSentinel}
		p.SkipUsed = true
		p.UsedSkipThisRound = true

		if a.allEligibleAnswered() {
			a.cancelTimeoutTimer()
			a.triggerResults()
		}
		return JokerResult{Outcome: JokerOK}

	default:
		return JokerResult{Outcome: JokerUnavailable}
	}
}

// allEligibleAnswered reports whether every non-eliminated player has
// answered the current question (spec.md §4.5.7).
func (a *actor) allEligibleAnswered() bool {
	for _, p := range a.session.Players {
		if p.Eliminated {
			continue
		}
		if !p.HasAnswered {
			return false
		}
	}
	return true
}

func (a *actor) handleTimeout() {
	s := a.session
	for _, p := range s.Players {
		if p.Eliminated || p.HasAnswered {
			continue
		}
		p.HasAnswered = true
		p.WasCorrect = false
		p.LastAnswer = Answer{}
		p.ResponseTime = float64(s.TimeLimit) + 1
	}
	a.triggerResults()
}

// --- results / elimination / advance / end -----------------------------

func (a *actor) triggerResults() {
	s := a.session
	qnum := s.CurrentQuestionNumber()
	q, ok := a.engine.bank.Get(s.QuestionIDs[s.CurrentQuestionIdx])
	if !ok {
		a.triggerEnd()
		return
	}

	var newlyEliminated []*SessionPlayer
	var slowestPseudo string

	if s.Mode == ModeBattle {
		for _, p := range s.Players {
			if p.Eliminated {
				continue
			}
			if p.HasAnswered && !p.WasCorrect && !p.UsedSkipThisRound {
				p.Lives--
				if p.Lives <= 0 {
					p.Eliminated = true
					p.EliminatedAt = qnum
					newlyEliminated = append(newlyEliminated, p)
				}
			}
		}

		var slowest *SessionPlayer
		for _, p := range s.Players {
			if !p.HasAnswered || p.UsedSkipThisRound {
				continue
			}
			if slowest == nil || p.ResponseTime > slowest.ResponseTime {
				slowest = p
			}
		}
		if slowest != nil && slowest.WasCorrect {
			slowestPseudo = slowest.Pseudo
			if !slowest.Eliminated {
				slowest.Lives--
				if slowest.Lives <= 0 {
					slowest.Eliminated = true
					slowest.EliminatedAt = qnum
					newlyEliminated = append(newlyEliminated, slowest)
				}
			}
		}
	}

	playerResults := make([]PlayerResult, len(s.Players))
	for i, p := range s.Players {
		pr := PlayerResult{
			Pseudo:     p.Pseudo,
			Answer:     answerForWire(p.LastAnswer),
			Correct:    p.WasCorrect,
			Points:     p.PointsThisQuestion,
			TotalScore: p.Score,
		}
		if s.Mode == ModeBattle {
			rt := p.ResponseTime
			lv := p.Lives
			pr.ResponseTime = &rt
			pr.Lives = &lv
		}
		playerResults[i] = pr
	}

	allIDs := clientIDsAll(s.Players)
	a.engine.broadcaster.SendMany(allIDs, ResultsEvent{
		Action:        "question/results",
		QuestionNum:   qnum,
		CorrectAnswer: correctAnswerForWire(q),
		Explanation:   q.Explanation,
		Players:       playerResults,
		SlowestPseudo: slowestPseudo,
	})

	for _, p := range newlyEliminated {
		a.engine.broadcaster.SendMany(allIDs, EliminatedEvent{
			Action:           "session/player/eliminated",
			Pseudo:           p.Pseudo,
			EliminatedAtQNum: p.EliminatedAt,
		})
	}

	a.advanceOrEnd()
}

func (a *actor) advanceOrEnd() {
	s := a.session
	if s.Mode == ModeBattle && s.NonEliminatedCount() <= 1 {
		a.triggerEnd()
		return
	}
	if s.CurrentQuestionIdx+1 >= s.NbQuestions {
		a.triggerEnd()
		return
	}
	a.scheduleAdvance(5 * time.Second)
}

func (a *actor) triggerEnd() {
	s := a.session
	s.Status = StatusFinished

	a.cancelAllTimers()
	close(a.stopCh)
	a.active.Store(false)

	ranking := computeRanking(s)
	winner := ""
	if len(ranking) > 0 {
		winner = ranking[0].Pseudo
	}

	allIDs := clientIDsAll(s.Players)
	a.engine.broadcaster.SendMany(allIDs, FinishedEvent{
		Action:  "session/finished",
		Mode:    s.Mode.String(),
		Winner:  winner,
		Ranking: ranking,
	})

	for _, id := range allIDs {
		a.engine.membership.ClearClientSession(id)
	}

	if len(s.Players) > 0 {
		themeIDs := make([]int, 0, len(s.ThemeIDs))
		for id := range s.ThemeIDs {
			themeIDs = append(themeIDs, id)
		}
		a.engine.history.Record(SessionSummary{
			SessionID:   s.ID,
			Name:        s.Name,
			Mode:        s.Mode.String(),
			ThemeIDs:    themeIDs,
			NbQuestions: s.NbQuestions,
			Winner:      winner,
			Ranking:     ranking,
		})
	}
}

func computeRanking(s *Session) []RankingEntry {
	players := append([]*SessionPlayer(nil), s.Players...)

	if s.Mode == ModeBattle {
		sortStable(players, func(a, b *SessionPlayer) bool {
			if a.Lives != b.Lives {
				return a.Lives > b.Lives
			}
			if a.EliminatedAt != b.EliminatedAt {
				return a.EliminatedAt > b.EliminatedAt
			}
			return a.Score > b.Score
		})
	} else {
		sortStable(players, func(a, b *SessionPlayer) bool {
			return a.Score > b.Score
		})
	}

	ranking := make([]RankingEntry, len(players))
	for i, p := range players {
		entry := RankingEntry{
			Rank:         i + 1,
			Pseudo:       p.Pseudo,
			Score:        p.Score,
			CorrectCount: p.CorrectCount,
		}
		if s.Mode == ModeBattle {
			lv := p.Lives
			elim := p.EliminatedAt
			entry.Lives = &lv
			entry.EliminatedAt = &elim
		}
		ranking[i] = entry
	}
	return ranking
}

// --- timers -------------------------------------------------------------

func (a *actor) scheduleCountdown(d time.Duration) {
	a.countdownTimer = time.AfterFunc(d, func() {
		select {
		case a.inbox <- cmdCountdownDone{}:
		case <-a.stopCh:
		}
	})
}

func (a *actor) scheduleTimeout(d time.Duration, forIdx int) {
	a.cancelTimeoutTimer()
	a.timeoutTimer = time.AfterFunc(d, func() {
		select {
		case a.inbox <- cmdTimeout{forQuestionIdx: forIdx}:
		case <-a.stopCh:
		}
	})
}

func (a *actor) cancelTimeoutTimer() {
	if a.timeoutTimer != nil {
		a.timeoutTimer.Stop()
		a.timeoutTimer = nil
	}
}

func (a *actor) scheduleAdvance(d time.Duration) {
	a.advanceTimer = time.AfterFunc(d, func() {
		select {
		case a.inbox <- cmdAdvanceTick{}:
		case <-a.stopCh:
		}
	})
}

func (a *actor) cancelAllTimers() {
	if a.timeoutTimer != nil {
		a.timeoutTimer.Stop()
	}
	if a.advanceTimer != nil {
		a.advanceTimer.Stop()
	}
	if a.countdownTimer != nil {
		a.countdownTimer.Stop()
	}
}

// --- read-only description ----------------------------------------------

func (a *actor) describe() SessionView {
	s := a.session
	themeIDs := make([]int, 0, len(s.ThemeIDs))
	for id := range s.ThemeIDs {
		themeIDs = append(themeIDs, id)
	}
	return SessionView{
		ID:          s.ID,
		Name:        s.Name,
		Mode:        s.Mode.String(),
		Status:      s.Status.String(),
		Difficulty:  s.Difficulty.WireString(),
		ThemeIDs:    themeIDs,
		NbPlayers:   len(s.Players),
		MaxPlayers:  s.MaxPlayers,
		NbQuestions: s.NbQuestions,
	}
}
