// Package engine turns normalized inbound events into committed session
// transitions and outbound decisions.
package engine

import (
	"fmt"

	"github.com/m3rciful/quizbot/quiz/bank"
)

// EventKind classifies an inbound event.
type EventKind int

const (
	// KindOther is any input that is neither a start signal nor an answer.
	KindOther EventKind = iota
	// KindStart begins or restarts an attempt.
	KindStart
	// KindAnswer carries an option label in Payload.
	KindAnswer
)

func (k EventKind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindAnswer:
		return "answer"
	default:
		return "other"
	}
}

// Event is a transport-independent inbound event.
type Event struct {
	UserID  string
	Kind    EventKind
	Payload string
	// Seq is the event's position in its inbound batch.
	Seq int
}

// DecisionKind names what the transport should show.
type DecisionKind int

const (
	// NoReply sends nothing.
	NoReply DecisionKind = iota
	// ShowQuestion shows the question at Index.
	ShowQuestion
	// ShowClarification repeats the question at Index with its valid labels.
	ShowClarification
	// ShowResult shows Total and Category.
	ShowResult
	// ShowIdle shows the help prompt for users without an attempt.
	ShowIdle
	// ShowError shows a generic apology after a session was reset.
	ShowError
)

var decisionNames = map[DecisionKind]string{
	NoReply:           "no_reply",
	ShowQuestion:      "show_question",
	ShowClarification: "show_clarification",
	ShowResult:        "show_result",
	ShowIdle:          "show_idle",
	ShowError:         "show_error",
}

func (k DecisionKind) String() string {
	if s, ok := decisionNames[k]; ok {
		return s
	}
	return fmt.Sprintf("decision(%d)", int(k))
}

// Decision is the outcome of one transition.
type Decision struct {
	Kind     DecisionKind
	Index    int
	Question bank.Question
	Total    int
	Category bank.Category
	// Fault is set on ShowError.
	Fault error
}

// IdlePolicy selects the reply to non-start input from a user without an attempt.
type IdlePolicy string

const (
	// IdleReply answers with ShowIdle.
	IdleReply IdlePolicy = "reply"
	// IdleSilent answers with NoReply.
	IdleSilent IdlePolicy = "silent"
)
