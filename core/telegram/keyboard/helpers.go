// Package keyboard builds inline keyboards.
package keyboard

import (
	"slices"

	tele "gopkg.in/telebot.v4"
)

// Button is one inline button. Action becomes the callback unique and Data
// its payload.
type Button struct {
	Text   string
	Action string
	Data   string
}

// Inline lays buttons out perRow to a row; perRow < 1 means one per row.
func Inline(buttons []Button, perRow int) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	for chunk := range slices.Chunk(buttons, max(perRow, 1)) {
		row := make([]tele.InlineButton, 0, len(chunk))
		for _, b := range chunk {
			row = append(row, *markup.Data(b.Text, b.Action, b.Data).Inline())
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, row)
	}
	return markup
}
