package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/quizbot/quiz/bank"
	"github.com/m3rciful/quizbot/quiz/session"
)

func sampleBank(t testing.TB) *bank.Bank {
	t.Helper()
	qs := make([]bank.Question, 4)
	for i := range qs {
		qs[i] = bank.Question{Prompt: "q", Options: []bank.Option{
			{Label: "A", Score: 0},
			{Label: "B", Score: 1},
			{Label: "C", Score: 2},
		}}
	}
	b, err := bank.New(qs, []bank.Category{
		{Name: "X", Min: 0, Max: 2},
		{Name: "Y", Min: 3, Max: 4},
		{Name: "Z", Min: 5, Max: 6},
		{Name: "W", Min: 7, Max: 8},
	})
	require.NoError(t, err)
	return b
}

func start(user string) Event { return Event{UserID: user, Kind: KindStart} }

func answer(user, label string) Event {
	return Event{UserID: user, Kind: KindAnswer, Payload: label}
}

// run feeds events through the machine the way the store would.
func run(m *Machine, cur *session.Attempt, events ...Event) (*session.Attempt, []Decision) {
	var out []Decision
	for _, ev := range events {
		var d Decision
		cur, d = m.Transition(cur.Clone(), ev)
		out = append(out, d)
	}
	return cur, out
}

func TestTransition_EndToEndScenarios(t *testing.T) {
	m := NewMachine(sampleBank(t), IdleReply)

	final, decs := run(m, nil, start("u"), answer("u", "C"), answer("u", "C"), answer("u", "B"), answer("u", "A"))
	assert.Nil(t, final)
	last := decs[len(decs)-1]
	assert.Equal(t, ShowResult, last.Kind)
	assert.Equal(t, 5, last.Total)
	assert.Equal(t, "Z", last.Category.Name)

	final, decs = run(m, nil, start("u"), answer("u", "A"), answer("u", "A"), answer("u", "A"), answer("u", "A"))
	assert.Nil(t, final)
	last = decs[len(decs)-1]
	assert.Equal(t, ShowResult, last.Kind)
	assert.Equal(t, 0, last.Total)
	assert.Equal(t, "X", last.Category.Name)
}

func TestTransition_QuestionsAdvanceInOrder(t *testing.T) {
	m := NewMachine(sampleBank(t), IdleReply)

	cur, decs := run(m, nil, start("u"), answer("u", "b"), answer("u", "C"))
	require.NotNil(t, cur)
	assert.Equal(t, 2, cur.Index)
	assert.Equal(t, []string{"B", "C"}, cur.Answers, "labels are stored in canonical form")
	assert.Equal(t, 3, cur.Score)

	for i, d := range decs {
		assert.Equal(t, ShowQuestion, d.Kind)
		assert.Equal(t, i, d.Index)
		assert.Equal(t, i, d.Question.Index)
	}
}

func TestTransition_StartIsIdempotent(t *testing.T) {
	m := NewMachine(sampleBank(t), IdleReply)

	first, d1 := m.Transition(nil, start("u"))
	second, d2 := m.Transition(first.Clone(), start("u"))
	assert.Equal(t, first, second)
	assert.Equal(t, d1, d2)
	assert.Equal(t, &session.Attempt{Answers: []string{}}, second)

	midway, _ := run(m, nil, start("u"), answer("u", "C"), answer("u", "B"))
	restarted, d := m.Transition(midway, start("u"))
	assert.Equal(t, &session.Attempt{Answers: []string{}}, restarted, "restart discards the partial attempt")
	assert.Equal(t, ShowQuestion, d.Kind)
	assert.Equal(t, 0, d.Index)
}

func TestTransition_DuplicateFinalAnswer(t *testing.T) {
	for _, tt := range []struct {
		policy IdlePolicy
		want   DecisionKind
	}{
		{IdleReply, ShowIdle},
		{IdleSilent, NoReply},
	} {
		m := NewMachine(sampleBank(t), tt.policy)
		final := answer("u", "A")
		cur, decs := run(m, nil, start("u"), answer("u", "A"), answer("u", "A"), answer("u", "A"), final)
		require.Equal(t, ShowResult, decs[len(decs)-1].Kind)

		again, d := m.Transition(cur, final)
		assert.Nil(t, again, "policy %s", tt.policy)
		assert.Equal(t, tt.want, d.Kind, "policy %s", tt.policy)
		assert.NotEqual(t, ShowResult, d.Kind)
	}
}

func TestTransition_InvalidOptionNeverAdvances(t *testing.T) {
	m := NewMachine(sampleBank(t), IdleReply)
	cur, _ := run(m, nil, start("u"), answer("u", "B"))

	for _, bad := range []string{"D", "", "AB", "1", "start"} {
		next, d := m.Transition(cur.Clone(), answer("u", bad))
		assert.Equal(t, cur, next, "label %q", bad)
		assert.Equal(t, ShowClarification, d.Kind)
		assert.Equal(t, 1, d.Index)
		assert.Equal(t, []string{"A", "B", "C"}, d.Question.Labels())
	}

	next, d := m.Transition(cur.Clone(), Event{UserID: "u", Kind: KindOther, Payload: "hello"})
	assert.Equal(t, cur, next)
	assert.Equal(t, ShowClarification, d.Kind)
}

func TestTransition_IdlePolicy(t *testing.T) {
	reply := NewMachine(sampleBank(t), IdleReply)
	silent := NewMachine(sampleBank(t), IdleSilent)
	fallback := NewMachine(sampleBank(t), IdlePolicy("bogus"))

	for _, ev := range []Event{answer("u", "A"), {UserID: "u", Kind: KindOther, Payload: "hi"}} {
		next, d := reply.Transition(nil, ev)
		assert.Nil(t, next)
		assert.Equal(t, ShowIdle, d.Kind)

		next, d = silent.Transition(nil, ev)
		assert.Nil(t, next)
		assert.Equal(t, NoReply, d.Kind)

		_, d = fallback.Transition(nil, ev)
		assert.Equal(t, ShowIdle, d.Kind)
	}
}

func TestTransition_CorruptAttemptResets(t *testing.T) {
	m := NewMachine(sampleBank(t), IdleReply)

	corrupt := []*session.Attempt{
		{Index: 7, Answers: []string{"A", "A", "A", "A", "A", "A", "A"}},
		{Index: -1, Answers: []string{}},
		{Index: 2, Answers: []string{"A"}},
		{Index: 2, Answers: []string{"A", "B"}, Score: 9},
		{Index: 1, Answers: []string{"Q"}},
	}
	for _, a := range corrupt {
		next, d := m.Transition(a, answer("u", "A"))
		assert.Nil(t, next, "%+v", a)
		assert.Equal(t, ShowError, d.Kind, "%+v", a)
		assert.ErrorIs(t, d.Fault, ErrCorruptAttempt)
	}
}

func TestTransition_Deterministic(t *testing.T) {
	m := NewMachine(sampleBank(t), IdleReply)
	cur := &session.Attempt{Index: 2, Answers: []string{"C", "A"}, Score: 2}

	n1, d1 := m.Transition(cur.Clone(), answer("u", "B"))
	n2, d2 := m.Transition(cur.Clone(), answer("u", "B"))
	assert.Equal(t, n1, n2)
	assert.Equal(t, d1, d2)
	assert.Equal(t, []string{"C", "A"}, cur.Answers, "input attempt is not mutated")
}
