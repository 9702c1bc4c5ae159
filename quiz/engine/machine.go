package engine

import (
	"errors"
	"fmt"
	"slices"

	"github.com/m3rciful/quizbot/quiz/bank"
	"github.com/m3rciful/quizbot/quiz/scoring"
	"github.com/m3rciful/quizbot/quiz/session"
)

// ErrCorruptAttempt reports a stored attempt that no valid transition could produce.
var ErrCorruptAttempt = errors.New("engine: corrupt attempt")

// Machine is the pure transition table. It holds only immutable configuration.
type Machine struct {
	bank   *bank.Bank
	scorer *scoring.Scorer
	idle   IdlePolicy
}

// NewMachine builds a Machine. An unknown idle policy falls back to IdleReply.
func NewMachine(b *bank.Bank, idle IdlePolicy) *Machine {
	if idle != IdleSilent {
		idle = IdleReply
	}
	return &Machine{bank: b, scorer: scoring.New(b), idle: idle}
}

// Transition maps (current, ev) to (next, decision). current is nil when the
// user has no attempt; a nil next means the attempt is removed. The result
// depends only on the arguments.
func (m *Machine) Transition(current *session.Attempt, ev Event) (*session.Attempt, Decision) {
	if ev.Kind == KindStart {
		return &session.Attempt{Answers: []string{}}, m.question(ShowQuestion, 0)
	}

	if current == nil {
		return nil, m.idleDecision()
	}

	q, err := m.check(current)
	if err != nil {
		return nil, Decision{Kind: ShowError, Index: current.Index, Fault: err}
	}

	if ev.Kind != KindAnswer {
		return current, m.question(ShowClarification, current.Index)
	}
	opt, ok := q.Option(ev.Payload)
	if !ok {
		return current, m.question(ShowClarification, current.Index)
	}

	next := &session.Attempt{
		Index:   current.Index + 1,
		Answers: append(slices.Clone(current.Answers), opt.Label),
		Score:   current.Score + opt.Score,
	}
	if next.Index < m.bank.Len() {
		return next, m.question(ShowQuestion, next.Index)
	}

	cat, err := m.scorer.Classify(next.Score)
	if err != nil {
		return nil, Decision{Kind: ShowError, Index: current.Index, Fault: fmt.Errorf("%w: %w", ErrCorruptAttempt, err)}
	}
	return nil, Decision{Kind: ShowResult, Index: current.Index, Total: next.Score, Category: cat}
}

// check asserts the attempt invariants and returns the current question.
func (m *Machine) check(a *session.Attempt) (bank.Question, error) {
	q, err := m.bank.Get(a.Index)
	if err != nil {
		return bank.Question{}, fmt.Errorf("%w: %w", ErrCorruptAttempt, err)
	}
	if len(a.Answers) != a.Index {
		return bank.Question{}, fmt.Errorf("%w: %d answers at index %d", ErrCorruptAttempt, len(a.Answers), a.Index)
	}
	total, err := m.scorer.Score(a.Answers)
	if err != nil {
		return bank.Question{}, fmt.Errorf("%w: %w", ErrCorruptAttempt, err)
	}
	if total != a.Score {
		return bank.Question{}, fmt.Errorf("%w: stored score %d, answers sum to %d", ErrCorruptAttempt, a.Score, total)
	}
	return q, nil
}

func (m *Machine) question(kind DecisionKind, i int) Decision {
	q, _ := m.bank.Get(i)
	return Decision{Kind: kind, Index: i, Question: q}
}

func (m *Machine) idleDecision() Decision {
	if m.idle == IdleSilent {
		return Decision{Kind: NoReply}
	}
	return Decision{Kind: ShowIdle}
}
