// Package questions holds the built-in interview question bank.
package questions

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"upitquest/internal/domain"
)

//go:embed questions.yaml
var builtIn []byte

// Question is an interview prompt with the code the editor starts from.
type Question = domain.Question

// Bank is an ordered, read-only set of questions.
type Bank struct {
	questions []Question
	byID      map[string]int
}

// BuiltIn returns the embedded bank.
func BuiltIn() (*Bank, error) {
	return Parse(builtIn)
}

// Parse decodes a YAML list of questions.
func Parse(contents []byte) (*Bank, error) {
	var questions []Question
	if err := yaml.Unmarshal(contents, &questions); err != nil {
		return nil, fmt.Errorf("failed to parse question bank: %w", err)
	}

	bank := &Bank{byID: make(map[string]int, len(questions))}
	for i, q := range questions {
		q.ID = strings.TrimSpace(q.ID)
		q.Prompt = strings.TrimSpace(q.Prompt)
		q.Starter = strings.TrimRight(q.Starter, "\n")
		if q.ID == "" {
			return nil, fmt.Errorf("question %d has no id", i+1)
		}
		if q.Prompt == "" {
			return nil, fmt.Errorf("question %q has no prompt", q.ID)
		}
		if _, dup := bank.byID[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %q", q.ID)
		}
		bank.byID[q.ID] = len(bank.questions)
		bank.questions = append(bank.questions, q)
	}
	return bank, nil
}

func (b *Bank) List() []Question {
	out := make([]Question, len(b.questions))
	copy(out, b.questions)
	return out
}

func (b *Bank) Get(id string) (Question, bool) {
	index, ok := b.byID[strings.TrimSpace(id)]
	if !ok {
		return Question{}, false
	}
	return b.questions[index], true
}
