package dialogue

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"
)

// checkinZone is the hotel's local time for the check-in joke.
var checkinZone = time.FixedZone("UTC-5", -5*3600)

func (e *Engine) checkin(ctx context.Context, u Update) (State, error) {
	if u.Private {
		e.transient(ctx, u, msgCheckinPrivate)
		return idle(), nil
	}
	if !e.isDisabled(u) {
		e.cleanup(ctx, u.ChatID, u.MessageID)
		return idle(), nil
	}
	text := msgCheckinFull
	if e.now().In(checkinZone).Hour() < 16 {
		text = msgCheckinEarly
	}
	e.transient(ctx, u, text)
	return idle(), nil
}

func (e *Engine) chatID(ctx context.Context, u Update) (State, error) {
	e.reply(ctx, u.ChatID, fmt.Sprintf("Chat ID: %d", u.ChatID))
	return idle(), nil
}

func (e *Engine) requestList(ctx context.Context, u Update) (State, error) {
	cctx, cancel := e.call(ctx)
	views, err := e.ledger.ListAll(cctx)
	cancel()
	if err != nil {
		return idle(), failed("导出失败。", "", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"id", "source", "media_id", "request_user", "status", "title", "created_at", "updated_at"})
	for _, v := range views {
		title := ""
		if v.Title != nil {
			title = *v.Title
		}
		_ = w.Write([]string{
			strconv.FormatInt(v.ID, 10),
			v.Source,
			v.MediaID,
			strconv.FormatInt(v.RequestUser, 10),
			v.Status.String(),
			title,
			v.CreatedAt.UTC().Format(time.RFC3339),
			v.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return idle(), failed("导出失败。", "", err)
	}

	cctx, cancel = e.call(ctx)
	defer cancel()
	name := fmt.Sprintf("requests-%s.csv", e.now().UTC().Format("20060102"))
	if err := e.msg.SendDocument(cctx, u.ChatID, Document{Name: name, Caption: msgRequestListCap, Data: buf.Bytes()}); err != nil {
		return idle(), failed("导出失败。", "", err)
	}
	return idle(), nil
}
