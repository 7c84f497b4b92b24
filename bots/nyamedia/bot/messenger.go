// Package bot connects the dialogue engine and the notification dispatcher
// to Telegram through telebot.
package bot

import (
	"bytes"
	"context"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/nyamedia/nyabot/bots/nyamedia/dialogue"
	"github.com/nyamedia/nyabot/bots/nyamedia/domain"
	"github.com/nyamedia/nyabot/core/telegram/keyboard"
)

// API is the part of *tele.Bot the messenger uses.
type API interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
}

// Messenger sends and deletes messages on behalf of the engine and the
// notification dispatcher.
type Messenger struct {
	api API
}

// NewMessenger wraps api.
func NewMessenger(api API) *Messenger {
	return &Messenger{api: api}
}

// Send delivers m and returns the id of the sent message.
func (m *Messenger) Send(ctx context.Context, chatID int64, msg dialogue.Message) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, transportErr(err)
	}
	var what interface{} = msg.Text
	if msg.Photo != "" {
		what = &tele.Photo{File: tele.FromURL(msg.Photo), Caption: msg.Text}
	}
	var opts []interface{}
	if markup := keyboard.Inline(buttonRows(msg.Buttons)...); markup != nil {
		opts = append(opts, markup)
	}
	sent, err := m.api.Send(tele.ChatID(chatID), what, opts...)
	if err != nil && msg.Photo != "" {
		// a poster Telegram cannot fetch should not lose the card
		sent, err = m.api.Send(tele.ChatID(chatID), msg.Text, opts...)
	}
	if err != nil {
		return 0, transportErr(err)
	}
	return sent.ID, nil
}

// SendText delivers a plain text message.
func (m *Messenger) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := m.Send(ctx, chatID, dialogue.Message{Text: text})
	return err
}

// Delete removes a message.
func (m *Messenger) Delete(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return transportErr(err)
	}
	if err := m.api.Delete(tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}); err != nil {
		return transportErr(err)
	}
	return nil
}

// SendDocument uploads doc as a file.
func (m *Messenger) SendDocument(ctx context.Context, chatID int64, doc dialogue.Document) error {
	if err := ctx.Err(); err != nil {
		return transportErr(err)
	}
	file := &tele.Document{
		File:     tele.FromReader(bytes.NewReader(doc.Data)),
		FileName: doc.Name,
		Caption:  doc.Caption,
		MIME:     "text/csv",
	}
	if _, err := m.api.Send(tele.ChatID(chatID), file); err != nil {
		return transportErr(err)
	}
	return nil
}

func buttonRows(rows [][]dialogue.Button) [][]keyboard.Button {
	out := make([][]keyboard.Button, 0, len(rows))
	for _, row := range rows {
		r := make([]keyboard.Button, 0, len(row))
		for _, b := range row {
			r = append(r, keyboard.Button{Text: b.Text, Unique: b.Key, Data: b.Payload})
		}
		out = append(out, r)
	}
	return out
}

func transportErr(err error) error {
	return &domain.ExternalError{Service: "telegram", Code: "TG", Err: err}
}
