// Package bank holds the fixed question sequence and the score-to-category table.
// A Bank is validated once when it is built and is read-only afterwards.
package bank

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidBank reports a malformed question list or category table.
	ErrInvalidBank = errors.New("bank: invalid configuration")
	// ErrOutOfRange reports a question index outside [0, Len()).
	ErrOutOfRange = errors.New("bank: question index out of range")
)

// Option is one selectable answer of a question.
type Option struct {
	Label string `yaml:"label" json:"label"`
	Text  string `yaml:"text" json:"text"`
	Score int    `yaml:"score" json:"score"`
}

// Question is a prompt with its ordered options.
type Question struct {
	Index   int      `yaml:"-" json:"index"`
	Prompt  string   `yaml:"prompt" json:"prompt"`
	Options []Option `yaml:"options" json:"options"`
}

// Option looks up an option by label. Labels match case-insensitively and the
// returned option carries the canonical label.
func (q Question) Option(label string) (Option, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Option{}, false
	}
	for _, o := range q.Options {
		if strings.EqualFold(o.Label, label) {
			return o, true
		}
	}
	return Option{}, false
}

// Labels returns the option labels in display order.
func (q Question) Labels() []string {
	out := make([]string, 0, len(q.Options))
	for _, o := range q.Options {
		out = append(out, o.Label)
	}
	return out
}

func (q Question) scoreBounds() (int, int) {
	if len(q.Options) == 0 {
		return 0, 0
	}
	lo, hi := q.Options[0].Score, q.Options[0].Score
	for _, o := range q.Options[1:] {
		lo = min(lo, o.Score)
		hi = max(hi, o.Score)
	}
	return lo, hi
}

// Category is an outcome bucket covering the inclusive range [Min, Max].
type Category struct {
	Name   string `yaml:"name" json:"name"`
	Min    int    `yaml:"min" json:"min"`
	Max    int    `yaml:"max" json:"max"`
	Advice string `yaml:"advice" json:"advice"`
	Media  string `yaml:"media,omitempty" json:"media,omitempty"`
}

// Contains reports whether total falls inside the category range.
func (c Category) Contains(total int) bool {
	return total >= c.Min && total <= c.Max
}

// Bank is an immutable, validated question sequence plus its category table.
type Bank struct {
	questions  []Question
	categories []Category
	minScore   int
	maxScore   int
}

// New validates the inputs and builds a Bank. Every problem found is reported
// in a single error wrapping ErrInvalidBank.
func New(questions []Question, categories []Category) (*Bank, error) {
	qs := make([]Question, len(questions))
	for i, q := range questions {
		q.Index = i
		q.Prompt = strings.TrimSpace(q.Prompt)
		opts := make([]Option, len(q.Options))
		for j, o := range q.Options {
			o.Label = strings.TrimSpace(o.Label)
			opts[j] = o
		}
		q.Options = opts
		qs[i] = q
	}
	cats := append([]Category(nil), categories...)

	lo, hi := 0, 0
	for _, q := range qs {
		qlo, qhi := q.scoreBounds()
		lo += qlo
		hi += qhi
	}

	if err := validate(qs, cats, lo, hi); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBank, err)
	}
	return &Bank{questions: qs, categories: cats, minScore: lo, maxScore: hi}, nil
}

// MustNew is New for statically known data; it panics on invalid input.
func MustNew(questions []Question, categories []Category) *Bank {
	b, err := New(questions, categories)
	if err != nil {
		panic(err)
	}
	return b
}

// Get returns the question at index i.
func (b *Bank) Get(i int) (Question, error) {
	if i < 0 || i >= len(b.questions) {
		return Question{}, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, i, len(b.questions))
	}
	return b.questions[i], nil
}

// Len returns the fixed number of questions.
func (b *Bank) Len() int {
	return len(b.questions)
}

// Categories returns a copy of the category table in configured order.
func (b *Bank) Categories() []Category {
	return append([]Category(nil), b.categories...)
}

// ScoreRange returns the lowest and highest reachable totals.
func (b *Bank) ScoreRange() (int, int) {
	return b.minScore, b.maxScore
}
