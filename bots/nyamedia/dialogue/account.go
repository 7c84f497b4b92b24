package dialogue

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nyamedia/nyabot/core/logger"
)

const deleteToken = "CONFIRM"

func (e *Engine) startDeletion(ctx context.Context, u Update) (State, error) {
	if _, err := e.registration(ctx, u.ChatID); err != nil {
		return idle(), err
	}
	e.reply(ctx, u.ChatID, msgDeleteWarning)
	return State{Kind: AwaitingDeleteConfirmation}, nil
}

// confirmDeletion revokes the external account first and removes the
// registration second. A failed revocation keeps the registration.
func (e *Engine) confirmDeletion(ctx context.Context, u Update, raw string) (State, error) {
	if !strings.EqualFold(strings.TrimSpace(raw), deleteToken) {
		e.reply(ctx, u.ChatID, msgCancelled)
		return idle(), nil
	}
	reg, err := e.registration(ctx, u.ChatID)
	if err != nil {
		return idle(), err
	}
	if reg.AccountID != nil && *reg.AccountID != "" {
		cctx, cancel := e.call(ctx)
		err := e.accounts.DeleteUser(cctx, *reg.AccountID)
		cancel()
		if err != nil {
			return idle(), failed("删除失败。", "您的注册信息已保留。", err)
		}
	}

	cctx, cancel := e.call(ctx)
	err = e.dir.Delete(cctx, u.ChatID)
	cancel()
	if err != nil {
		return idle(), failed("删除失败。", "", err)
	}
	logger.Info(ctx, "dialogue", "delete_user", slog.String("status", "ok"))
	e.reply(ctx, u.ChatID, msgDeleted)
	return idle(), nil
}

func (e *Engine) resetPassword(ctx context.Context, u Update) (State, error) {
	reg, err := e.registration(ctx, u.ChatID)
	if err != nil {
		return idle(), err
	}
	if reg.AccountID == nil || *reg.AccountID == "" {
		e.reply(ctx, u.ChatID, msgNoAccount)
		return idle(), nil
	}
	cctx, cancel := e.call(ctx)
	err = e.accounts.ResetPassword(cctx, *reg.AccountID)
	cancel()
	if err != nil {
		return idle(), failed("重置密码失败。", "", err)
	}
	e.reply(ctx, u.ChatID, msgPasswordReset)
	return idle(), nil
}
