// File: internal/session/helpers.go
// quiznet server - small pure helpers used by actor.go

package session

import (
	"math/rand"
	"sort"

	"quiznet/internal/question"
)

func clientIDsAll(players []*SessionPlayer) []int {
	ids := make([]int, len(players))
	for i, p := range players {
		ids[i] = p.ClientID
	}
	return ids
}

func clientIDsExcept(players []*SessionPlayer, except int) []int {
	ids := make([]int, 0, len(players))
	for _, p := range players {
		if p.ClientID != except {
			ids = append(ids, p.ClientID)
		}
	}
	return ids
}

func nonEliminatedClientIDs(players []*SessionPlayer) []int {
	ids := make([]int, 0, len(players))
	for _, p := range players {
		if !p.Eliminated {
			ids = append(ids, p.ClientID)
		}
	}
	return ids
}

func pseudoList(players []*SessionPlayer) []string {
	names := make([]string, len(players))
	for i, p := range players {
		names[i] = p.Pseudo
	}
	return names
}

func sortStable(players []*SessionPlayer, less func(a, b *SessionPlayer) bool) {
	sort.SliceStable(players, func(i, j int) bool {
		return less(players[i], players[j])
	})
}

// answerForWire converts a player's last Answer into the JSON shape the
// wire protocol uses for "what they submitted" (spec.md §4.5.12): the
// option index, the literal text, the bool, or the skip sentinel.
func answerForWire(a Answer) any {
	switch a.Kind {
	case AnswerIndex:
		return a.Index
	case AnswerText:
		return a.Text
	case AnswerBool:
		return a.Bool
	case AnswerSkip:
		return SkipSentinel
	default:
		return nil
	}
}

// correctAnswerForWire renders the canonical answer to a question in the
// same shape answerForWire uses, so clients can compare directly.
func correctAnswerForWire(q *question.Question) any {
	switch q.Kind {
	case question.KindMultiChoice:
		return q.CorrectIndex
	case question.KindBoolean:
		return q.CorrectBool
	case question.KindText:
		if len(q.AcceptedAnswers) > 0 {
			return q.AcceptedAnswers[0]
		}
		return ""
	default:
		return nil
	}
}

// fiftyFiftyReveal picks one wrong option to keep alongside the correct
// one and returns both option strings, unordered (spec.md §4.5.8:
// "removes two of the three wrong options"; §4.5.12: the requester gets
// the surviving option text, not indexes it would need the full option
// list to resolve).
func fiftyFiftyReveal(q *question.Question) []string {
	wrong := make([]int, 0, 3)
	for i := range q.Options {
		if i != q.CorrectIndex {
			wrong = append(wrong, i)
		}
	}
	keep := wrong[rand.Intn(len(wrong))]
	if rand.Intn(2) == 0 {
		return []string{q.Options[keep], q.Options[q.CorrectIndex]}
	}
	return []string{q.Options[q.CorrectIndex], q.Options[keep]}
}
