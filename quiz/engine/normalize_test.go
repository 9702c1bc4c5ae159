package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizerText(t *testing.T) {
	n := Normalizer{StartPhrases: []string{"試煉開始", "Start Quiz"}}

	tests := []struct {
		text string
		kind EventKind
	}{
		{"試煉開始", KindStart},
		{"  試煉開始 ", KindStart},
		{"start quiz", KindStart},
		{"A", KindOther},
		{"hello", KindOther},
		{"", KindOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, n.Text("u", tt.text).Kind, "text %q", tt.text)
	}

	n.TextAnswers = true
	ev := n.Text("u", " b ")
	assert.Equal(t, KindAnswer, ev.Kind)
	assert.Equal(t, "B", ev.Payload)
	assert.Equal(t, KindOther, n.Text("u", "I think it is B").Kind)
	assert.Equal(t, KindOther, n.Text("u", "   ").Kind)
	assert.Equal(t, KindStart, n.Text("u", "試煉開始").Kind)
}

func TestKindStrings(t *testing.T) {
	assert.Equal(t, "show_result", ShowResult.String())
	assert.Equal(t, "decision(99)", DecisionKind(99).String())
	assert.Equal(t, "answer", KindAnswer.String())
}
