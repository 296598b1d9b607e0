// File: internal/question/bank.go
// quiznet server - question bank
//
// The quiz content file format and its parser are out of scope (spec.md
// §1); this package only defines the in-memory shape the core operates
// on (a Bank built once at load time) and the read-only operations the
// session engine needs: themes(), select(), get().

package question

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Difficulty is one of easy/medium/hard. Serialization is bilingual
// (spec.md §9): the wire accepts both French and English spellings and
// always emits French.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// difficultyAliases maps every accepted wire spelling onto the internal
// Difficulty. French is also the canonical serialization per spec.md §9.
var difficultyAliases = map[string]Difficulty{
	"easy": Easy, "facile": Easy,
	"medium": Medium, "moyen": Medium, "moyenne": Medium,
	"hard": Hard, "difficile": Hard,
}

// frenchSpelling is the canonical wire spelling for each Difficulty.
var frenchSpelling = map[Difficulty]string{
	Easy:   "facile",
	Medium: "moyen",
	Hard:   "difficile",
}

// ParseDifficulty accepts either spelling and normalizes to Difficulty.
func ParseDifficulty(s string) (Difficulty, bool) {
	d, ok := difficultyAliases[s]
	return d, ok
}

// WireString returns the canonical (French) spelling for d.
func (d Difficulty) WireString() string {
	return frenchSpelling[d]
}

// Kind is the question type.
type Kind string

const (
	KindMultiChoice Kind = "multi-choice"
	KindBoolean     Kind = "boolean"
	KindText        Kind = "text"
)

// Theme is a category. Its ID is kept exactly as the content loader
// supplies it; the bank does not renumber themes, so ids are dense only
// if the source data makes them so.
type Theme struct {
	ID   int
	Name string
}

// Question is immutable after load. Exactly one "correctness" field is
// populated, matching Kind (spec.md §3 invariant).
type Question struct {
	ID         int
	ThemeIDs   map[int]struct{}
	Difficulty Difficulty
	Kind       Kind
	Prompt     string

	// multi-choice
	Options      [4]string
	CorrectIndex int

	// boolean
	CorrectBool bool

	// text
	AcceptedAnswers []string

	Explanation string
}

// ErrInsufficientQuestions is returned by Select when fewer than count
// questions match the filter.
var ErrInsufficientQuestions = fmt.Errorf("question: insufficient questions for filter")

// Bank is a read-only, in-memory collection of themes and questions. The
// zero value is not usable; build one with NewBank.
type Bank struct {
	themes    []Theme
	questions map[int]*Question
	byOrder   []*Question

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewBank constructs a Bank from themes and questions already parsed by
// the (out-of-scope) content loader.
func NewBank(themes []Theme, questions []*Question) *Bank {
	b := &Bank{
		themes:    append([]Theme(nil), themes...),
		questions: make(map[int]*Question, len(questions)),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, q := range questions {
		b.questions[q.ID] = q
		b.byOrder = append(b.byOrder, q)
	}
	return b
}

// Themes returns the immutable theme list.
func (b *Bank) Themes() []Theme {
	return b.themes
}

// Get looks up a question by id.
func (b *Bank) Get(id int) (*Question, bool) {
	q, ok := b.questions[id]
	return q, ok
}

// Select filters the bank to questions whose difficulty matches and
// whose theme-id set intersects themeIDs, then uniformly shuffles and
// returns the first count ids (spec.md §4.4). Fails if fewer than count
// questions match.
func (b *Bank) Select(themeIDs map[int]struct{}, difficulty Difficulty, count int) ([]int, error) {
	var filtered []int
	for _, q := range b.byOrder {
		if q.Difficulty != difficulty {
			continue
		}
		if !intersects(q.ThemeIDs, themeIDs) {
			continue
		}
		filtered = append(filtered, q.ID)
	}

	if len(filtered) < count {
		return nil, ErrInsufficientQuestions
	}

	b.rngMu.Lock()
	b.rng.Shuffle(len(filtered), func(i, j int) {
		filtered[i], filtered[j] = filtered[j], filtered[i]
	})
	b.rngMu.Unlock()

	return filtered[:count], nil
}

func intersects(a, b map[int]struct{}) bool {
	// iterate over the smaller set
	if len(b) < len(a) {
		a, b = b, a
	}
	for id := range a {
		if _, ok := b[id]; ok {
			return true
		}
	}
	return false
}
