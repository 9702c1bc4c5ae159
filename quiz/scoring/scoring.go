// Package scoring sums answer contributions and maps totals to categories.
package scoring

import (
	"errors"
	"fmt"

	"github.com/m3rciful/quizbot/quiz/bank"
)

var (
	// ErrInvalidAnswer reports a label that is not an option of its question.
	ErrInvalidAnswer = errors.New("scoring: invalid answer")
	// ErrNoMatchingCategory reports a total outside every category range.
	ErrNoMatchingCategory = errors.New("scoring: no matching category")
)

// Scorer scores answer sequences against a bank.
type Scorer struct {
	bank *bank.Bank
}

// New returns a Scorer for b.
func New(b *bank.Bank) *Scorer {
	return &Scorer{bank: b}
}

// Contribution returns the score of label under question i.
func (s *Scorer) Contribution(i int, label string) (int, error) {
	q, err := s.bank.Get(i)
	if err != nil {
		return 0, err
	}
	o, ok := q.Option(label)
	if !ok {
		return 0, fmt.Errorf("%w: %q for question %d", ErrInvalidAnswer, label, i)
	}
	return o.Score, nil
}

// Score sums the contribution of answers[i] under question i. It fails with
// bank.ErrOutOfRange when there are more answers than questions.
func (s *Scorer) Score(answers []string) (int, error) {
	total := 0
	for i, label := range answers {
		c, err := s.Contribution(i, label)
		if err != nil {
			return 0, err
		}
		total += c
	}
	return total, nil
}

// Classify returns the category whose range contains total.
func (s *Scorer) Classify(total int) (bank.Category, error) {
	for _, c := range s.bank.Categories() {
		if c.Contains(total) {
			return c, nil
		}
	}
	return bank.Category{}, fmt.Errorf("%w: total %d", ErrNoMatchingCategory, total)
}
