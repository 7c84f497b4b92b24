// Package keyboard builds inline keyboards from plain button descriptions.
package keyboard

import tele "gopkg.in/telebot.v4"

// Button is one inline button. Unique routes the press to a callback
// handler and Data travels with it.
type Button struct {
	Text   string
	Unique string
	Data   string
}

// Inline lays rows out as an inline keyboard, skipping empty rows. It returns
// nil when nothing is left, which Send treats as no markup.
func Inline(rows ...[]Button) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	var laid []tele.Row
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		btns := make(tele.Row, 0, len(row))
		for _, b := range row {
			btns = append(btns, markup.Data(b.Text, b.Unique, b.Data))
		}
		laid = append(laid, btns)
	}
	if len(laid) == 0 {
		return nil
	}
	markup.Inline(laid...)
	return markup
}
