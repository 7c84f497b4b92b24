package dialogue

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nyamedia/nyabot/bots/nyamedia/domain"
	"github.com/nyamedia/nyabot/bots/nyamedia/metrics"
	"github.com/nyamedia/nyabot/core/logger"
)

const maxUsernameRunes = 64

func (e *Engine) startRegistration(ctx context.Context, u Update) (State, error) {
	_, err := e.registration(ctx, u.ChatID)
	switch {
	case err == nil:
		return idle(), domain.ErrAlreadyRegistered
	case !errors.Is(err, domain.ErrNotFound):
		return idle(), err
	}
	e.reply(ctx, u.ChatID, msgAskUsername)
	return State{Kind: AwaitingUsername}, nil
}

func (e *Engine) submitUsername(ctx context.Context, u Update, raw string) (State, error) {
	name := strings.TrimSpace(raw)
	if strings.HasPrefix(name, "/") {
		return State{Kind: AwaitingUsername}, &domain.InputError{Prompt: msgUsernameSlash}
	}
	if !validUsername(name) {
		return State{Kind: AwaitingUsername}, &domain.InputError{Prompt: msgUsernameInvalid}
	}

	cctx, cancel := e.call(ctx)
	accountID, err := e.accounts.CreateUser(cctx, name)
	cancel()
	if err != nil {
		metrics.Registrations.WithLabelValues(outcomeOf(err)).Inc()
		return idle(), failed("注册失败。", "请重新使用 /register 开始注册流程。", err)
	}

	reg := domain.Registration{
		ChatID:    u.ChatID,
		Username:  name,
		AccountID: &accountID,
		Admin:     slices.Contains(e.admins, u.ChatID),
	}
	cctx, cancel = e.call(ctx)
	err = e.dir.Create(cctx, reg)
	cancel()
	if err != nil {
		e.revoke(ctx, accountID)
		metrics.Registrations.WithLabelValues("fail").Inc()
		if errors.Is(err, domain.ErrAlreadyRegistered) {
			return idle(), err
		}
		return idle(), failed("注册失败。", "请稍后重新使用 /register 注册。", err)
	}

	metrics.Registrations.WithLabelValues("ok").Inc()
	logger.Info(ctx, "dialogue", "register", slog.String("status", "ok"), slog.Bool("admin", reg.Admin))
	e.reply(ctx, u.ChatID, msgRegistered)
	return idle(), nil
}

// revoke removes an account whose registration could not be stored, so no
// external account exists without a registration pointing at it.
func (e *Engine) revoke(ctx context.Context, accountID string) {
	cctx, cancel := e.call(ctx)
	defer cancel()
	if err := e.accounts.DeleteUser(cctx, accountID); err != nil {
		logger.Error(ctx, "dialogue", "register.compensate",
			slog.String("status", "fail"),
			slog.String("account_id", accountID),
			logger.Err(err),
		)
		return
	}
	logger.Warn(ctx, "dialogue", "register.compensate", slog.String("status", "ok"), slog.String("account_id", accountID))
}

func validUsername(name string) bool {
	if name == "" || utf8.RuneCountInString(name) > maxUsernameRunes {
		return false
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

func outcomeOf(err error) string {
	var rejected *domain.RejectedError
	if errors.As(err, &rejected) {
		return "rejected"
	}
	return "fail"
}
