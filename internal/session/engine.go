// File: internal/session/engine.go
// quiznet server - session engine (spec.md §4.5)
//
// The engine owns the session table and hands every session its own actor
// goroutine (actor.go). Engine methods never touch Session/SessionPlayer
// fields directly: they build a command, send it into the target actor's
// inbox, and block on a reply channel. The engine's own mutex protects
// only the session table itself (creation/lookup/enumeration), never a
// session's internals - that split is what keeps lock ordering simple
// (spec.md §5: engine table lock is always acquired and released before
// any actor round trip, never nested inside one).

package session

import (
	"sort"
	"sync"

	"quiznet/internal/question"
)

const (
	minQuestions = 10
	maxQuestions = 50
	minTimeLimit = 10
	maxTimeLimit = 60
	minLives     = 1
	maxLives     = 10

	maxConcurrentSessions = 20
)

type Engine struct {
	mu            sync.RWMutex
	sessions      map[int]*actor
	nextSessionID int

	bank        *question.Bank
	broadcaster Broadcaster
	membership  Membership
	history     HistoryRecorder
	presence    PresenceRecorder
}

func NewEngine(bank *question.Bank, broadcaster Broadcaster, membership Membership) *Engine {
	return &Engine{
		sessions:    make(map[int]*actor),
		nextSessionID: 1,
		bank:        bank,
		broadcaster: broadcaster,
		membership:  membership,
		history:     noopHistory{},
		presence:    noopPresence{},
	}
}

// WithHistory and WithPresence wire in the optional match-history store
// and leaderboard cache; either may be left unset (noop defaults apply).
func (e *Engine) WithHistory(h HistoryRecorder) *Engine {
	e.history = h
	return e
}

func (e *Engine) WithPresence(p PresenceRecorder) *Engine {
	e.presence = p
	return e
}

// CreateOutcome classifies the result of a session creation request.
type CreateOutcome int

const (
	CreateOK CreateOutcome = iota
	CreateInvalidParams
	CreateNoSuchThemes
	CreateInsufficientQuestions
	CreateTooManySessions
)

type CreateParams struct {
	Name         string
	CreatorID    int
	ThemeIDs     map[int]struct{}
	Difficulty   question.Difficulty
	NbQuestions  int
	TimeLimit    int
	Mode         Mode
	InitialLives int
	MaxPlayers   int
}

type CreateResult struct {
	Outcome   CreateOutcome
	SessionID int
}

// Create validates params, selects the question set up front (spec.md
// §4.5.2: a session's question list is fixed at creation, not resampled
// per question), and spawns the new session's actor goroutine. The
// creator is not joined as a player here; see the comment below.
func (e *Engine) Create(p CreateParams) CreateResult {
	if p.NbQuestions < minQuestions || p.NbQuestions > maxQuestions {
		return CreateResult{Outcome: CreateInvalidParams}
	}
	if p.TimeLimit < minTimeLimit || p.TimeLimit > maxTimeLimit {
		return CreateResult{Outcome: CreateInvalidParams}
	}
	if p.MaxPlayers < 2 {
		return CreateResult{Outcome: CreateInvalidParams}
	}
	if p.Mode == ModeBattle && (p.InitialLives < minLives || p.InitialLives > maxLives) {
		return CreateResult{Outcome: CreateInvalidParams}
	}
	if len(p.ThemeIDs) == 0 {
		return CreateResult{Outcome: CreateInvalidParams}
	}

	questionIDs, err := e.bank.Select(p.ThemeIDs, p.Difficulty, p.NbQuestions)
	if err != nil {
		return CreateResult{Outcome: CreateInsufficientQuestions}
	}

	e.mu.Lock()
	if e.activeCountLocked() >= maxConcurrentSessions {
		e.mu.Unlock()
		return CreateResult{Outcome: CreateTooManySessions}
	}
	id := e.nextSessionID
	e.nextSessionID++

	s := &Session{
		ID:                 id,
		Name:               p.Name,
		CreatorClientID:    p.CreatorID,
		ThemeIDs:           p.ThemeIDs,
		Difficulty:         p.Difficulty,
		NbQuestions:        p.NbQuestions,
		TimeLimit:          p.TimeLimit,
		Mode:               p.Mode,
		InitialLives:       p.InitialLives,
		MaxPlayers:         p.MaxPlayers,
		Status:             StatusWaiting,
		QuestionIDs:        questionIDs,
		CurrentQuestionIdx: -1,
	}

	// The creator is NOT auto-joined here: the dispatcher issues a
	// separate join immediately after a successful create, so session
	// creation and membership go through exactly one code path.
	a := newActor(s, e)
	e.sessions[id] = a
	e.mu.Unlock()

	go a.run()

	return CreateResult{Outcome: CreateOK, SessionID: id}
}

// activeCountLocked counts sessions not yet finished. Callers must hold e.mu.
func (e *Engine) activeCountLocked() int {
	n := 0
	for _, a := range e.sessions {
		if a.active.Load() {
			n++
		}
	}
	return n
}

func (e *Engine) lookup(sessionID int) (*actor, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.sessions[sessionID]
	return a, ok
}

func (e *Engine) Join(sessionID, clientID int, pseudo string) JoinResult {
	a, ok := e.lookup(sessionID)
	if !ok {
		return JoinResult{Outcome: JoinNoSuchSession}
	}
	reply := make(chan JoinResult, 1)
	a.inbox <- cmdJoin{clientID: clientID, pseudo: pseudo, reply: reply}
	return <-reply
}

func (e *Engine) Leave(sessionID, clientID int) LeaveResult {
	a, ok := e.lookup(sessionID)
	if !ok {
		return LeaveResult{Outcome: LeaveNoSuchSession}
	}
	reply := make(chan LeaveResult, 1)
	a.inbox <- cmdLeave{clientID: clientID, reply: reply}
	return <-reply
}

func (e *Engine) Start(sessionID, clientID int) StartResult {
	a, ok := e.lookup(sessionID)
	if !ok {
		return StartResult{Outcome: StartNoSuchSession}
	}
	reply := make(chan StartResult, 1)
	a.inbox <- cmdStart{clientID: clientID, reply: reply}
	return <-reply
}

func (e *Engine) Answer(sessionID, clientID int, ans Answer, responseTime float64) AnswerResult {
	a, ok := e.lookup(sessionID)
	if !ok {
		return AnswerResult{Outcome: AnswerNoSuchSession}
	}
	reply := make(chan AnswerResult, 1)
	a.inbox <- cmdAnswer{clientID: clientID, answer: ans, responseTime: responseTime, reply: reply}
	return <-reply
}

func (e *Engine) UseJoker(sessionID, clientID int, jk JokerType) JokerResult {
	a, ok := e.lookup(sessionID)
	if !ok {
		return JokerResult{Outcome: JokerNoSuchSession}
	}
	reply := make(chan JokerResult, 1)
	a.inbox <- cmdJoker{clientID: clientID, jokType: jk, reply: reply}
	return <-reply
}

// ForceEnd is used by the operator console to end a session out of band
// (spec.md §4.11).
func (e *Engine) ForceEnd(sessionID int) bool {
	a, ok := e.lookup(sessionID)
	if !ok {
		return false
	}
	reply := make(chan struct{}, 1)
	a.inbox <- cmdForceEnd{reply: reply}
	<-reply
	return true
}

// List returns a snapshot view of every session in the table, finished
// ones included, in creation order (spec.md §6 "sessions/list").
func (e *Engine) List() []SessionView {
	e.mu.RLock()
	ids := make([]int, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	sort.Ints(ids)

	views := make([]SessionView, 0, len(ids))
	for _, id := range ids {
		a, ok := e.lookup(id)
		if !ok {
			continue
		}
		reply := make(chan SessionView, 1)
		a.inbox <- cmdDescribe{reply: reply}
		views = append(views, <-reply)
	}
	return views
}
