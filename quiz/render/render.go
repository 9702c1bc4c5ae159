// Package render turns engine decisions into transport-neutral replies.
package render

import (
	"fmt"
	"strings"

	"github.com/m3rciful/quizbot/quiz/bank"
	"github.com/m3rciful/quizbot/quiz/engine"
)

// Callback actions carried by buttons.
const (
	ActionStart  = "quiz_start"
	ActionAnswer = "quiz_answer"
)

// Texts are the fixed user-facing strings. Result is a format taking the
// total, the category name and the advice.
type Texts struct {
	Idle    string
	Error   string
	Clarify string
	Result  string
	Start   string
	Restart string
}

// DefaultTexts returns the stock Traditional Chinese texts.
func DefaultTexts() Texts {
	return Texts{
		Idle:    "請輸入「試煉開始」來進行測驗，或點選按鈕作答。",
		Error:   "抱歉，系統發生錯誤，請重新開始測驗。",
		Clarify: "請點選下方選項作答：",
		Result:  "🎯 測驗完成！\n總分: %d\n%s\n%s",
		Start:   "試煉開始",
		Restart: "重新測驗",
	}
}

func (t Texts) withDefaults() Texts {
	d := DefaultTexts()
	pick := func(v, def string) string {
		if strings.TrimSpace(v) == "" {
			return def
		}
		return v
	}
	return Texts{
		Idle:    pick(t.Idle, d.Idle),
		Error:   pick(t.Error, d.Error),
		Clarify: pick(t.Clarify, d.Clarify),
		Result:  pick(t.Result, d.Result),
		Start:   pick(t.Start, d.Start),
		Restart: pick(t.Restart, d.Restart),
	}
}

// Button is a tappable choice. Data is the answer label for ActionAnswer.
type Button struct {
	Text   string
	Action string
	Data   string
}

// Reply is one outbound message.
type Reply struct {
	Text    string
	Buttons []Button
	// Media is an optional image URL shown with the reply.
	Media string
}

// Renderer formats decisions with a fixed set of texts.
type Renderer struct {
	texts Texts
}

// New returns a Renderer; empty texts fall back to DefaultTexts.
func New(t Texts) *Renderer {
	return &Renderer{texts: t.withDefaults()}
}

// Render formats d. It reports false for NoReply.
func (r *Renderer) Render(d engine.Decision) (Reply, bool) {
	switch d.Kind {
	case engine.ShowQuestion:
		return Reply{Text: d.Question.Prompt, Buttons: optionButtons(d.Question)}, true
	case engine.ShowClarification:
		text := fmt.Sprintf("%s\n%s (%s)", d.Question.Prompt, r.texts.Clarify, strings.Join(d.Question.Labels(), "/"))
		return Reply{Text: text, Buttons: optionButtons(d.Question)}, true
	case engine.ShowResult:
		return Reply{
			Text:    fmt.Sprintf(r.texts.Result, d.Total, d.Category.Name, d.Category.Advice),
			Buttons: []Button{{Text: r.texts.Restart, Action: ActionStart}},
			Media:   d.Category.Media,
		}, true
	case engine.ShowIdle:
		return Reply{Text: r.texts.Idle, Buttons: []Button{{Text: r.texts.Start, Action: ActionStart}}}, true
	case engine.ShowError:
		return Reply{Text: r.texts.Error, Buttons: []Button{{Text: r.texts.Restart, Action: ActionStart}}}, true
	default:
		return Reply{}, false
	}
}

func optionButtons(q bank.Question) []Button {
	out := make([]Button, 0, len(q.Options))
	for _, o := range q.Options {
		text := o.Label
		if o.Text != "" {
			text = o.Label + ": " + o.Text
		}
		out = append(out, Button{Text: text, Action: ActionAnswer, Data: o.Label})
	}
	return out
}
