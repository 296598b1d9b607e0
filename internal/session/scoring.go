// File: internal/session/scoring.go
// quiznet server - answer evaluation and scoring (spec.md §4.5.7)

package session

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"quiznet/internal/question"
)

// basePoints and speedBonus are keyed by difficulty (spec.md §4.5.7).
var basePoints = map[question.Difficulty]int{
	question.Easy:   5,
	question.Medium: 10,
	question.Hard:   15,
}

var speedBonus = map[question.Difficulty]int{
	question.Easy:   1,
	question.Medium: 3,
	question.Hard:   6,
}

// evaluateAnswer checks correctness of a submitted Answer against q.
func evaluateAnswer(q *question.Question, a Answer) bool {
	switch q.Kind {
	case question.KindMultiChoice:
		return a.Kind == AnswerIndex && a.Index == q.CorrectIndex
	case question.KindBoolean:
		return a.Kind == AnswerBool && a.Bool == q.CorrectBool
	case question.KindText:
		if a.Kind != AnswerText {
			return false
		}
		needle := foldText(a.Text)
		for _, accepted := range q.AcceptedAnswers {
			if foldText(accepted) == needle {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// textFolder strips accents (NFKD + remove combining marks) and
// lower-cases, per spec.md §9's instruction to replace the reference
// implementation's hand-coded Latin-1/UTF-8 accent table with the
// platform's Unicode facilities.
var textFolder = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func foldText(s string) string {
	folded, _, err := transform.String(textFolder, strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return folded
}

// pointsForCorrectAnswer computes base + speed bonus for a correct
// answer to a question of the given difficulty, at responseTime against
// a per-question limit of timeLimitSecs.
func pointsForCorrectAnswer(d question.Difficulty, responseTime float64, timeLimitSecs int) int {
	pts := basePoints[d]
	if responseTime <= float64(timeLimitSecs)/2 {
		pts += speedBonus[d]
	}
	return pts
}
