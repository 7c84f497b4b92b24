package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Parse splits inline button data into its unique key and payload.
// Buttons built with ReplyMarkup.Data carry "\f<unique>|<payload>"; when the
// update is delivered through the generic OnCallback endpoint telebot leaves
// that encoding untouched, so both forms are accepted here.
func Parse(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	key, payload, _ := strings.Cut(raw, "|")
	return strings.TrimSpace(key), payload
}

// Key returns the unique key of the callback carried by c.
func Key(c tele.Context) string {
	k, _ := Parse(c.Callback())
	return k
}

// Payload returns the payload that follows the key.
func Payload(c tele.Context) string {
	_, p := Parse(c.Callback())
	return p
}
