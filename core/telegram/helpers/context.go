// Package helpers carries the per-update context.Context through telebot
// handlers.
package helpers

import (
	"context"

	"github.com/nyamedia/nyabot/core/logger"

	tele "gopkg.in/telebot.v4"
)

const ctxKey = "update_ctx"

// Attach builds a fresh context for the update in c and stores it there.
// The context carries the rid, the update identifiers and a "tg" logger.
func Attach(c tele.Context) context.Context {
	var chatID, userID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	updateID := c.Update().ID

	ctx := logger.WithRID(context.Background(), logger.BuildRID(updateID, chatID, userID))
	ctx = logger.WithUpdateMeta(ctx, updateID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.Component("tg"))
	c.Set(ctxKey, ctx)
	return ctx
}

// BuildContext returns the context attached to c, attaching one first when
// no middleware has done so.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := c.Get(ctxKey).(context.Context); ok && ctx != nil {
		return ctx
	}
	return Attach(c)
}

// WithHandler names the handler serving c in its stored context.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler != "" {
		ctx = logger.WithHandler(ctx, handler)
		c.Set(ctxKey, ctx)
	}
	return ctx
}
