package keyboard

import "testing"

func TestInlineRows(t *testing.T) {
	btns := []Button{
		{Text: "A", Action: "quiz_answer", Data: "A"},
		{Text: "B", Action: "quiz_answer", Data: "B"},
		{Text: "C", Action: "quiz_answer", Data: "C"},
	}
	m := Inline(btns, 2)
	if len(m.InlineKeyboard) != 2 || len(m.InlineKeyboard[0]) != 2 || len(m.InlineKeyboard[1]) != 1 {
		t.Fatalf("rows = %+v", m.InlineKeyboard)
	}
	got := m.InlineKeyboard[1][0]
	if got.Text != "C" || got.Unique != "quiz_answer" || got.Data != "C" {
		t.Fatalf("button = %+v", got)
	}

	for _, n := range []int{1, 0, -3} {
		if m := Inline(btns, n); len(m.InlineKeyboard) != 3 {
			t.Fatalf("perRow %d: %d rows", n, len(m.InlineKeyboard))
		}
	}
	if m := Inline(nil, 2); len(m.InlineKeyboard) != 0 {
		t.Fatalf("empty input gave %d rows", len(m.InlineKeyboard))
	}
}
