package engine

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxTextAnswer bounds how long typed text may be and still count as a label.
const maxTextAnswer = 8

// Normalizer maps raw transport input onto Events.
type Normalizer struct {
	// StartPhrases are free-text messages treated as a start signal.
	StartPhrases []string
	// TextAnswers lets a short typed token count as an answer attempt;
	// otherwise only button presses answer and typed text is KindOther.
	TextAnswers bool
}

// Text normalizes a typed message.
func (n Normalizer) Text(userID, text string) Event {
	text = strings.TrimSpace(text)
	ev := Event{UserID: userID, Kind: KindOther, Payload: text}
	for _, p := range n.StartPhrases {
		if p = strings.TrimSpace(p); p != "" && strings.EqualFold(p, text) {
			ev.Kind = KindStart
			return ev
		}
	}
	if n.TextAnswers && isToken(text) {
		ev.Kind = KindAnswer
		ev.Payload = strings.ToUpper(text)
	}
	return ev
}

// Start returns a start signal for userID.
func (n Normalizer) Start(userID string) Event {
	return Event{UserID: userID, Kind: KindStart}
}

// Answer returns an answer event carrying label.
func (n Normalizer) Answer(userID, label string) Event {
	return Event{UserID: userID, Kind: KindAnswer, Payload: strings.TrimSpace(label)}
}

func isToken(s string) bool {
	return s != "" && utf8.RuneCountInString(s) <= maxTextAnswer && !strings.ContainsFunc(s, unicode.IsSpace)
}
