package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiznet/internal/question"
)

// fakeBroadcaster records every event sent to every client, guarded by a
// mutex since the session actor goroutine calls it concurrently with the
// test goroutine reading the log.
type fakeBroadcaster struct {
	mu  sync.Mutex
	log map[int][]any
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{log: make(map[int][]any)}
}

func (f *fakeBroadcaster) Send(clientID int, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log[clientID] = append(f.log[clientID], v)
}

func (f *fakeBroadcaster) SendMany(clientIDs []int, v any) {
	for _, id := range clientIDs {
		f.Send(id, v)
	}
}

func (f *fakeBroadcaster) eventsFor(clientID int) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.log[clientID]...)
}

func (f *fakeBroadcaster) countFor(clientID int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.log[clientID])
}

type fakeMembership struct {
	mu sync.Mutex
	m  map[int]int
}

func newFakeMembership() *fakeMembership {
	return &fakeMembership{m: make(map[int]int)}
}

func (f *fakeMembership) SetClientSession(clientID, sessionID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[clientID] = sessionID
}

func (f *fakeMembership) ClearClientSession(clientID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.m, clientID)
}

type fakeHistory struct {
	mu       sync.Mutex
	recorded []SessionSummary
}

func (f *fakeHistory) Record(s SessionSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, s)
}

func (f *fakeHistory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recorded)
}

func testBank(t *testing.T, n int) *question.Bank {
	t.Helper()
	questions := make([]*question.Question, 0, n)
	for i := 1; i <= n; i++ {
		q := &question.Question{
			ID:           i,
			ThemeIDs:     map[int]struct{}{1: {}},
			Difficulty:   question.Easy,
			Kind:         question.KindMultiChoice,
			Prompt:       "prompt",
			CorrectIndex: 0,
		}
		q.Options = [4]string{"correct", "b", "c", "d"}
		questions = append(questions, q)
	}
	return question.NewBank([]question.Theme{{ID: 1, Name: "t"}}, questions)
}

func newTestEngine(t *testing.T) (*Engine, *fakeBroadcaster, *fakeMembership) {
	t.Helper()
	b := newFakeBroadcaster()
	m := newFakeMembership()
	e := NewEngine(testBank(t, 10), b, m)
	return e, b, m
}

func createTestSession(t *testing.T, e *Engine, mode Mode) int {
	t.Helper()
	res := e.Create(CreateParams{
		Name:         "quiz",
		CreatorID:    1,
		ThemeIDs:     map[int]struct{}{1: {}},
		Difficulty:   question.Easy,
		NbQuestions:  10,
		TimeLimit:    10,
		Mode:         mode,
		InitialLives: 3,
		MaxPlayers:   4,
	})
	require.Equal(t, CreateOK, res.Outcome)
	return res.SessionID
}

func TestCreateValidation(t *testing.T) {
	e, _, _ := newTestEngine(t)

	res := e.Create(CreateParams{Name: "x", ThemeIDs: map[int]struct{}{1: {}}, NbQuestions: 5, TimeLimit: 10, MaxPlayers: 2})
	assert.Equal(t, CreateInvalidParams, res.Outcome)

	res = e.Create(CreateParams{Name: "x", ThemeIDs: map[int]struct{}{1: {}}, NbQuestions: 10, TimeLimit: 10, MaxPlayers: 2})
	assert.Equal(t, CreateInsufficientQuestions, res.Outcome)

	res = e.Create(CreateParams{Name: "x", NbQuestions: 10, TimeLimit: 10, MaxPlayers: 2})
	assert.Equal(t, CreateInvalidParams, res.Outcome)
}

func TestCreatorIsNotAutoJoined(t *testing.T) {
	e, _, m := newTestEngine(t)
	createTestSession(t, e, ModeSolo)

	views := e.List()
	require.Len(t, views, 1)
	assert.Equal(t, 0, views[0].NbPlayers)

	_, ok := m.m[1]
	assert.False(t, ok)
}

func TestJoinThenStartRequiresTwoPlayers(t *testing.T) {
	e, _, _ := newTestEngine(t)
	sid := createTestSession(t, e, ModeSolo)

	join1 := e.Join(sid, 1, "alice")
	require.Equal(t, JoinOK, join1.Outcome)
	assert.Equal(t, []string{"alice"}, join1.Players)

	start := e.Start(sid, 1)
	assert.Equal(t, StartNotEnoughPlayers, start.Outcome)

	join2 := e.Join(sid, 2, "bob")
	require.Equal(t, JoinOK, join2.Outcome)

	start = e.Start(sid, 1)
	assert.Equal(t, StartOK, start.Outcome)
}

func TestJoinRejectsNonCreatorStart(t *testing.T) {
	e, _, _ := newTestEngine(t)
	sid := createTestSession(t, e, ModeSolo)
	require.Equal(t, JoinOK, e.Join(sid, 1, "alice").Outcome)
	require.Equal(t, JoinOK, e.Join(sid, 2, "bob").Outcome)

	start := e.Start(sid, 2)
	assert.Equal(t, StartNotCreator, start.Outcome)
}

func TestJoinFullSession(t *testing.T) {
	e, _, _ := newTestEngine(t)
	res := e.Create(CreateParams{
		Name: "quiz", CreatorID: 1, ThemeIDs: map[int]struct{}{1: {}},
		Difficulty: question.Easy, NbQuestions: 10, TimeLimit: 10,
		Mode: ModeSolo, MaxPlayers: 2,
	})
	require.Equal(t, CreateOK, res.Outcome)
	sid := res.SessionID

	require.Equal(t, JoinOK, e.Join(sid, 1, "a").Outcome)
	require.Equal(t, JoinOK, e.Join(sid, 2, "b").Outcome)
	assert.Equal(t, JoinFull, e.Join(sid, 3, "c").Outcome)
}

func TestJoinNoSuchSession(t *testing.T) {
	e, _, _ := newTestEngine(t)
	assert.Equal(t, JoinNoSuchSession, e.Join(999, 1, "a").Outcome)
}

// waitForQuestion blocks until clientID has received a NewQuestionEvent
// (the pre-game countdown is real time, so answering can't start until
// it elapses and CurrentQuestionIdx actually advances past -1).
func waitForQuestion(t *testing.T, b *fakeBroadcaster, clientID int) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, ev := range b.eventsFor(clientID) {
			if _, ok := ev.(NewQuestionEvent); ok {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond, "question was never dispatched")
}

func TestAnswerLifecycleSoloMode(t *testing.T) {
	e, b, _ := newTestEngine(t)
	sid := createTestSession(t, e, ModeSolo)
	require.Equal(t, JoinOK, e.Join(sid, 1, "alice").Outcome)
	require.Equal(t, JoinOK, e.Join(sid, 2, "bob").Outcome)
	require.Equal(t, StartOK, e.Start(sid, 1).Outcome)

	waitForQuestion(t, b, 1)

	ans := e.Answer(sid, 1, Answer{Kind: AnswerIndex, Index: 0}, 1.0)
	assert.Equal(t, AnswerOK, ans.Outcome)

	dup := e.Answer(sid, 1, Answer{Kind: AnswerIndex, Index: 0}, 1.0)
	assert.True(t, dup.Duplicate)

	ans2 := e.Answer(sid, 2, Answer{Kind: AnswerIndex, Index: 1}, 2.0)
	assert.Equal(t, AnswerOK, ans2.Outcome)

	require.Eventually(t, func() bool {
		for _, ev := range b.eventsFor(1) {
			if _, ok := ev.(ResultsEvent); ok {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAnswerRejectsUnknownMember(t *testing.T) {
	e, _, _ := newTestEngine(t)
	sid := createTestSession(t, e, ModeSolo)
	require.Equal(t, JoinOK, e.Join(sid, 1, "alice").Outcome)
	require.Equal(t, JoinOK, e.Join(sid, 2, "bob").Outcome)
	require.Equal(t, StartOK, e.Start(sid, 1).Outcome)

	res := e.Answer(sid, 99, Answer{Kind: AnswerIndex, Index: 0}, 1.0)
	assert.Equal(t, AnswerNotMember, res.Outcome)
}

func TestBattleModeEliminatesOnWrongAnswer(t *testing.T) {
	e, b, _ := newTestEngine(t)
	res := e.Create(CreateParams{
		Name: "battle", CreatorID: 1, ThemeIDs: map[int]struct{}{1: {}},
		Difficulty: question.Easy, NbQuestions: 10, TimeLimit: 10,
		Mode: ModeBattle, InitialLives: 1, MaxPlayers: 4,
	})
	require.Equal(t, CreateOK, res.Outcome)
	sid := res.SessionID

	require.Equal(t, JoinOK, e.Join(sid, 1, "alice").Outcome)
	require.Equal(t, JoinOK, e.Join(sid, 2, "bob").Outcome)
	require.Equal(t, StartOK, e.Start(sid, 1).Outcome)

	waitForQuestion(t, b, 1)

	require.Equal(t, AnswerOK, e.Answer(sid, 1, Answer{Kind: AnswerIndex, Index: 0}, 1.0).Outcome)
	require.Equal(t, AnswerOK, e.Answer(sid, 2, Answer{Kind: AnswerIndex, Index: 1}, 1.0).Outcome)

	require.Eventually(t, func() bool {
		for _, ev := range b.eventsFor(1) {
			if _, ok := ev.(FinishedEvent); ok {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond, "with initial lives 1, bob's wrong answer should eliminate him and end a 1-vs-1 battle")
}

func TestLeaveReassignsCreator(t *testing.T) {
	e, _, _ := newTestEngine(t)
	sid := createTestSession(t, e, ModeSolo)
	require.Equal(t, JoinOK, e.Join(sid, 1, "alice").Outcome)
	require.Equal(t, JoinOK, e.Join(sid, 2, "bob").Outcome)

	leave := e.Leave(sid, 1)
	assert.Equal(t, LeaveOK, leave.Outcome)

	start := e.Start(sid, 2)
	assert.Equal(t, StartNotEnoughPlayers, start.Outcome, "bob is now creator but only one player remains")
}

func TestForceEndFinishesSession(t *testing.T) {
	e, _, _ := newTestEngine(t)
	sid := createTestSession(t, e, ModeSolo)
	require.Equal(t, JoinOK, e.Join(sid, 1, "alice").Outcome)
	require.Equal(t, JoinOK, e.Join(sid, 2, "bob").Outcome)

	assert.True(t, e.ForceEnd(sid))

	views := e.List()
	require.Len(t, views, 1)
	assert.Equal(t, "finished", views[0].Status)

	// A finished session keeps answering commands instead of hanging.
	join := e.Join(sid, 3, "carol")
	assert.Equal(t, JoinNotWaiting, join.Outcome)
}

func TestHistoryRecordedOnFinish(t *testing.T) {
	b := newFakeBroadcaster()
	m := newFakeMembership()
	h := &fakeHistory{}
	e := NewEngine(testBank(t, 10), b, m).WithHistory(h)

	sid := createTestSession(t, e, ModeSolo)
	require.Equal(t, JoinOK, e.Join(sid, 1, "alice").Outcome)
	require.Equal(t, JoinOK, e.Join(sid, 2, "bob").Outcome)

	assert.True(t, e.ForceEnd(sid))
	assert.Equal(t, 1, h.count())
}

func TestJokerFiftyRevealsCorrectAndOneDecoyOnce(t *testing.T) {
	e, b, _ := newTestEngine(t)
	sid := createTestSession(t, e, ModeSolo)
	require.Equal(t, JoinOK, e.Join(sid, 1, "alice").Outcome)
	require.Equal(t, JoinOK, e.Join(sid, 2, "bob").Outcome)
	require.Equal(t, StartOK, e.Start(sid, 1).Outcome)

	waitForQuestion(t, b, 1)

	res := e.UseJoker(sid, 1, JokerFifty)
	require.Equal(t, JokerOK, res.Outcome)
	require.Len(t, res.FiftyRemaining, 2)
	assert.Contains(t, res.FiftyRemaining, "correct", "the surviving pair must include the correct option text")
	decoy := res.FiftyRemaining[0]
	if decoy == "correct" {
		decoy = res.FiftyRemaining[1]
	}
	assert.Contains(t, []string{"b", "c", "d"}, decoy, "the other survivor must be one of the actual wrong option strings")

	again := e.UseJoker(sid, 1, JokerFifty)
	assert.Equal(t, JokerUnavailable, again.Outcome, "fifty-fifty can only be used once per player")
}

func TestJokerSkipIsSingleUse(t *testing.T) {
	e, b, _ := newTestEngine(t)
	sid := createTestSession(t, e, ModeSolo)
	require.Equal(t, JoinOK, e.Join(sid, 1, "alice").Outcome)
	require.Equal(t, JoinOK, e.Join(sid, 2, "bob").Outcome)
	require.Equal(t, StartOK, e.Start(sid, 1).Outcome)

	waitForQuestion(t, b, 1)

	res := e.UseJoker(sid, 1, JokerSkip)
	assert.Equal(t, JokerOK, res.Outcome)

	dup := e.UseJoker(sid, 1, JokerSkip)
	assert.Equal(t, JokerUnavailable, dup.Outcome)
}
