// File: internal/question/load.go
// quiznet server - question bank content loader
//
// The quiz content file format itself is explicitly out of scope (the
// core receives an already-built Bank); this file is the minimal JSON
// loader cmd/server needs to actually produce one from a file on disk.
// Any richer authoring format is a separate concern from the core.

package question

import (
	"encoding/json"
	"fmt"
	"os"
)

type fileTheme struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type fileQuestion struct {
	ID              int      `json:"id"`
	ThemeIDs        []int    `json:"themeIds"`
	Difficulty      string   `json:"difficulty"`
	Kind            string   `json:"kind"`
	Prompt          string   `json:"prompt"`
	Options         []string `json:"options,omitempty"`
	CorrectIndex    int      `json:"correctIndex,omitempty"`
	CorrectBool     bool     `json:"correctBool,omitempty"`
	AcceptedAnswers []string `json:"acceptedAnswers,omitempty"`
	Explanation     string   `json:"explanation,omitempty"`
}

type fileBank struct {
	Themes    []fileTheme    `json:"themes"`
	Questions []fileQuestion `json:"questions"`
}

// LoadBank parses path (a JSON document of {themes, questions}) into a
// ready-to-use Bank.
func LoadBank(path string) (*Bank, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("question: read %s: %w", path, err)
	}

	var fb fileBank
	if err := json.Unmarshal(raw, &fb); err != nil {
		return nil, fmt.Errorf("question: parse %s: %w", path, err)
	}

	themes := make([]Theme, len(fb.Themes))
	for i, t := range fb.Themes {
		themes[i] = Theme{ID: t.ID, Name: t.Name}
	}

	questions := make([]*Question, 0, len(fb.Questions))
	for _, fq := range fb.Questions {
		difficulty, ok := ParseDifficulty(fq.Difficulty)
		if !ok {
			return nil, fmt.Errorf("question: id %d: unknown difficulty %q", fq.ID, fq.Difficulty)
		}

		themeIDs := make(map[int]struct{}, len(fq.ThemeIDs))
		for _, id := range fq.ThemeIDs {
			themeIDs[id] = struct{}{}
		}

		q := &Question{
			ID:              fq.ID,
			ThemeIDs:        themeIDs,
			Difficulty:      difficulty,
			Kind:            Kind(fq.Kind),
			Prompt:          fq.Prompt,
			CorrectIndex:    fq.CorrectIndex,
			CorrectBool:     fq.CorrectBool,
			AcceptedAnswers: fq.AcceptedAnswers,
			Explanation:     fq.Explanation,
		}
		copy(q.Options[:], fq.Options)
		questions = append(questions, q)
	}

	return NewBank(themes, questions), nil
}
