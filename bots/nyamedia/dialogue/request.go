package dialogue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/nyamedia/nyabot/bots/nyamedia/catalog"
	"github.com/nyamedia/nyabot/bots/nyamedia/domain"
)

const maxSummaryRunes = 300

func (e *Engine) startRequest(ctx context.Context, u Update) (State, error) {
	e.send(ctx, u.ChatID, Message{
		Text: msgAskSource,
		Buttons: [][]Button{{
			{Text: string(domain.ProviderTMDB), Key: KeySource, Payload: string(domain.ProviderTMDB)},
			{Text: string(domain.ProviderBGM), Key: KeySource, Payload: string(domain.ProviderBGM)},
		}},
	})
	return State{Kind: AwaitingCatalogSource}, nil
}

func (e *Engine) chooseSource(ctx context.Context, u Update, payload string) (State, error) {
	provider, ok := domain.ParseProvider(payload)
	if !ok {
		return State{Kind: AwaitingCatalogSource}, &domain.InputError{Prompt: msgInvalidSource}
	}
	e.send(ctx, u.ChatID, Message{
		Text: msgAskMediaType,
		Buttons: [][]Button{{
			{Text: domain.KindMovie.Label(), Key: KeyMediaType, Payload: string(domain.KindMovie)},
			{Text: domain.KindTV.Label(), Key: KeyMediaType, Payload: string(domain.KindTV)},
		}},
	})
	return State{Kind: AwaitingMediaType, Provider: provider}, nil
}

func (e *Engine) chooseMediaType(ctx context.Context, u Update, cur State, payload string) (State, error) {
	kind, ok := domain.ParseKind(payload)
	if !ok {
		return cur, &domain.InputError{Prompt: msgInvalidMediaType}
	}
	e.reply(ctx, u.ChatID, fmt.Sprintf(msgAskMediaIDFormat, cur.Provider, kind.Label()))
	return State{Kind: AwaitingMediaID, Provider: cur.Provider, MediaKind: kind}, nil
}

func (e *Engine) submitMediaID(ctx context.Context, u Update, cur State, raw string) (State, error) {
	id := strings.TrimSpace(raw)
	if !isDigits(id) {
		return cur, &domain.InputError{Prompt: msgMediaIDDigits}
	}

	cctx, cancel := e.call(ctx)
	md, err := e.catalog.Fetch(cctx, cur.Provider, cur.MediaKind, id)
	cancel()
	if err != nil {
		var ext *domain.ExternalError
		if errors.As(err, &ext) && ext.Status == http.StatusNotFound {
			return idle(), &domain.RejectedError{Service: ext.Service, Reason: msgMediaNotFound}
		}
		return idle(), failed("获取媒体信息失败。", "请稍后重新使用 /request。", err)
	}

	e.send(ctx, u.ChatID, Message{
		Text:  confirmationText(cur.Provider, cur.MediaKind, id, md),
		Photo: deref(md.Poster),
		Buttons: [][]Button{{
			{Text: btnConfirm, Key: KeyConfirm, Payload: confirmPayload(cur.Provider, cur.MediaKind, id)},
			{Text: btnCancel, Key: KeyCancel},
		}},
	})
	return State{
		Kind:      AwaitingConfirmation,
		Provider:  cur.Provider,
		MediaKind: cur.MediaKind,
		MediaID:   id,
		Metadata:  &md,
	}, nil
}

// confirmRequest commits the item named by the button payload. A press on
// an old card still goes through the duplicate check.
func (e *Engine) confirmRequest(ctx context.Context, u Update, cur State, payload string) (State, error) {
	provider, kind, id, ok := parseConfirmPayload(payload)
	if !ok {
		return cur, &domain.InputError{Prompt: msgStaleButton}
	}
	n := domain.NewRequest{Provider: provider, Kind: kind, MediaID: id, RequestUser: u.ChatID}
	if cur.Kind == AwaitingConfirmation && cur.Provider == provider && cur.MediaKind == kind && cur.MediaID == id {
		n.Metadata = cur.Metadata
	}

	cctx, cancel := e.call(ctx)
	_, err := e.ledger.Submit(cctx, n)
	cancel()
	if err != nil {
		return idle(), failed("请求提交失败。", "", err)
	}
	e.reply(ctx, u.ChatID, msgRequestSubmitted)
	return idle(), nil
}

func confirmationText(p domain.Provider, k domain.Kind, id string, md domain.Metadata) string {
	lines := []string{md.Title}
	if md.Summary != nil {
		lines = append(lines, "", truncateRunes(*md.Summary, maxSummaryRunes))
	}
	lines = append(lines, "", catalog.ItemURL(p, k, id), "", "确认请求该媒体吗？")
	return strings.Join(lines, "\n")
}

func confirmPayload(p domain.Provider, k domain.Kind, id string) string {
	return string(p) + "|" + string(k) + "|" + id
}

func parseConfirmPayload(payload string) (domain.Provider, domain.Kind, string, bool) {
	parts := strings.Split(payload, "|")
	if len(parts) != 3 || !isDigits(parts[2]) {
		return "", "", "", false
	}
	p, okP := domain.ParseProvider(parts[0])
	k, okK := domain.ParseKind(parts[1])
	return p, k, parts[2], okP && okK
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
