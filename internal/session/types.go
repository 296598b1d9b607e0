// File: internal/session/types.go
// quiznet server - session data model
//
// Session and SessionPlayer as defined in spec.md §3. Fields are mutated
// only from within a session's own actor goroutine (see actor.go), which
// is what lets the per-session lock in spec.md §5's locking discipline be
// realized without a literal sync.Mutex on the hot path (spec.md §9).

package session

import (
	"time"

	"quiznet/internal/question"
)

// Status is the session lifecycle state. Transitions are strictly
// waiting -> playing -> finished (spec.md §4.5.1); once finished a
// session is a tombstone.
type Status int

const (
	StatusWaiting Status = iota
	StatusPlaying
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusPlaying:
		return "playing"
	case StatusFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Mode is solo (cooperative scoring) or battle (lives, elimination).
type Mode int

const (
	ModeSolo Mode = iota
	ModeBattle
)

func ParseMode(s string) (Mode, bool) {
	switch s {
	case "solo":
		return ModeSolo, true
	case "battle":
		return ModeBattle, true
	default:
		return 0, false
	}
}

func (m Mode) String() string {
	if m == ModeBattle {
		return "battle"
	}
	return "solo"
}

// AnswerKind distinguishes the three shapes an answer value can take.
type AnswerKind int

const (
	AnswerNone AnswerKind = iota
	AnswerIndex
	AnswerText
	AnswerBool
	AnswerSkip
)

// SkipSentinel is the "last-answer" value used for a skipped question
// (spec.md §4.5.12, "−2 denotes skip").
const SkipSentinel = -2

// Answer is the tagged union of the three wire answer shapes.
type Answer struct {
	Kind  AnswerKind
	Index int
	Text  string
	Bool  bool
}

// SessionPlayer is one joined client's per-session state (spec.md §3).
type SessionPlayer struct {
	ClientID int
	Pseudo   string

	Score          int
	CorrectCount   int
	Lives          int
	FiftyUsed      bool
	SkipUsed       bool
	Eliminated     bool
	EliminatedAt   int // question number (1-indexed), 0 if not eliminated

	HasAnswered        bool
	WasCorrect         bool
	LastAnswer         Answer
	ResponseTime       float64
	UsedSkipThisRound  bool
	PointsThisQuestion int
}

// Session is one self-contained game instance (spec.md §3). All fields
// below are owned by the session's actor goroutine.
type Session struct {
	ID              int
	Name            string
	CreatorClientID int
	ThemeIDs        map[int]struct{}
	Difficulty      question.Difficulty
	NbQuestions     int
	TimeLimit       int // seconds
	Mode            Mode
	InitialLives    int
	MaxPlayers      int

	Status Status

	Players []*SessionPlayer

	QuestionIDs        []int
	CurrentQuestionIdx int // -1 before start
	QuestionStartTime  time.Time
}

// PlayerByClientID returns the player and its index, or (nil, -1).
func (s *Session) PlayerByClientID(clientID int) (*SessionPlayer, int) {
	for i, p := range s.Players {
		if p.ClientID == clientID {
			return p, i
		}
	}
	return nil, -1
}

// NonEliminatedCount counts players still in the game. In solo mode no
// player is ever eliminated, so this equals len(Players).
func (s *Session) NonEliminatedCount() int {
	n := 0
	for _, p := range s.Players {
		if !p.Eliminated {
			n++
		}
	}
	return n
}

// CurrentQuestionNumber is the 1-indexed question number for display,
// valid only while Status == StatusPlaying.
func (s *Session) CurrentQuestionNumber() int {
	return s.CurrentQuestionIdx + 1
}
