package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nyamedia/nyabot/bots/nyamedia/domain"
	"github.com/nyamedia/nyabot/bots/nyamedia/metrics"
	"github.com/nyamedia/nyabot/core/logger"
	coremetrics "github.com/nyamedia/nyabot/core/metrics"
	"github.com/nyamedia/nyabot/core/telegram/state"
)

const maxStack = 4096

// Options wires an Engine.
type Options struct {
	Messenger Messenger
	Accounts  Accounts
	Directory Directory
	Catalog   Catalog
	Ledger    Ledger

	Admins        []int64
	DisabledUsers []int64

	CleanupDelay time.Duration
	CallTimeout  time.Duration

	// AfterFunc schedules delayed cleanup; time.AfterFunc when nil.
	AfterFunc func(d time.Duration, f func())
	// Now is the clock; time.Now when nil.
	Now func() time.Time
	// NewRef returns the support reference shown with internal errors.
	NewRef func() string
}

// Engine runs conversations.
type Engine struct {
	msg      Messenger
	accounts Accounts
	dir      Directory
	catalog  Catalog
	ledger   Ledger

	admins   []int64
	disabled []int64

	cleanupDelay time.Duration
	callTimeout  time.Duration
	afterFunc    func(time.Duration, func())
	now          func() time.Time
	newRef       func() string

	states *state.Store[State]
	seq    *state.Sequencer
}

// New builds an Engine.
func New(opts Options) *Engine {
	e := &Engine{
		msg:          opts.Messenger,
		accounts:     opts.Accounts,
		dir:          opts.Directory,
		catalog:      opts.Catalog,
		ledger:       opts.Ledger,
		admins:       slices.Clone(opts.Admins),
		disabled:     slices.Clone(opts.DisabledUsers),
		cleanupDelay: opts.CleanupDelay,
		callTimeout:  opts.CallTimeout,
		afterFunc:    opts.AfterFunc,
		now:          opts.Now,
		newRef:       opts.NewRef,
		states:       state.NewStore[State](),
		seq:          state.NewSequencer(),
	}
	if e.cleanupDelay <= 0 {
		e.cleanupDelay = 5 * time.Second
	}
	if e.callTimeout <= 0 {
		e.callTimeout = 15 * time.Second
	}
	if e.afterFunc == nil {
		e.afterFunc = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newRef == nil {
		e.newRef = func() string { return uuid.NewString()[:8] }
	}
	return e
}

// Submit queues u behind earlier updates of the same chat and returns
// immediately. ctx keeps its values but not its cancellation.
func (e *Engine) Submit(ctx context.Context, u Update) {
	ctx = context.WithoutCancel(ctx)
	e.seq.Go(u.ChatID, func() { e.handleQueued(ctx, u) })
}

// handleQueued is Handle for updates run off the chat's queue. A panic drops
// the chat back to Start and the user gets a support reference.
func (e *Engine) handleQueued(ctx context.Context, u Update) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		e.states.Reset(u.ChatID)
		metrics.DialogueSessions.Set(float64(e.states.Len()))
		coremetrics.TelegramPanics.WithLabelValues("dialogue").Inc()

		stack := debug.Stack()
		if len(stack) > maxStack {
			stack = stack[:maxStack]
		}
		ref := e.newRef()
		logger.Error(ctx, "dialogue", "panic",
			slog.String("intent", intentName(u.Intent)),
			slog.String("err", logger.SanitizeLimit(fmt.Sprint(r), 512)),
			slog.String("err_tag", "PANIC"),
			slog.String("ref", ref),
			slog.String("stack", string(stack)),
		)
		e.reply(ctx, u.ChatID, joinLines("操作失败。", fmt.Sprintf("%s[PANIC#%s]", msgContactAdmin, ref)))
	}()
	e.Handle(ctx, u)
}

// Wait blocks until every queued update has been handled.
func (e *Engine) Wait() {
	e.seq.Wait()
}

// StateOf returns the current state of chatID.
func (e *Engine) StateOf(chatID int64) State {
	st, _ := e.states.Get(chatID)
	return st
}

// Handle applies u synchronously. Callers other than Submit must not run two
// updates of the same chat concurrently.
func (e *Engine) Handle(ctx context.Context, u Update) {
	start := time.Now()
	cur := e.StateOf(u.ChatID)

	next, err := e.step(ctx, u, cur)
	next = e.resolve(ctx, u, cur, next, err)

	if next.Kind == Start {
		e.states.Reset(u.ChatID)
	} else {
		e.states.Set(u.ChatID, next)
	}
	metrics.DialogueSessions.Set(float64(e.states.Len()))

	attrs := []slog.Attr{
		slog.String("intent", intentName(u.Intent)),
		slog.String("state", cur.Kind.String()),
		slog.String("next_state", next.Kind.String()),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
	}
	logger.Debug(ctx, "dialogue", "transition", attrs...)
}

// step is the dispatch table over (intent, state).
func (e *Engine) step(ctx context.Context, u Update, cur State) (State, error) {
	switch in := u.Intent.(type) {
	case Command:
		return e.command(ctx, u, cur, in)
	case Choice:
		return e.choice(ctx, u, cur, in)
	case Text:
		return e.text(ctx, u, cur, in)
	default:
		return cur, nil
	}
}

func (e *Engine) command(ctx context.Context, u Update, cur State, cmd Command) (State, error) {
	name := strings.ToLower(cmd.Name)
	if e.isDisabled(u) && name != "checkin" {
		e.transient(ctx, u, msgNoPermission)
		return idle(), nil
	}
	switch name {
	case "register":
		return e.private(ctx, u, e.startRegistration)
	case "request":
		return e.private(ctx, u, e.startRequest)
	case "deleteuser":
		return e.private(ctx, u, e.startDeletion)
	case "resetpassword":
		return e.private(ctx, u, e.resetPassword)
	case "cancel":
		e.reply(ctx, u.ChatID, msgCancelled)
		return idle(), nil
	case "help", "start":
		if !u.Private {
			e.transient(ctx, u, msgSeeGroupIntro)
			return idle(), nil
		}
		e.reply(ctx, u.ChatID, msgHelp)
		return idle(), nil
	case "checkin":
		return e.checkin(ctx, u)
	case "checkout":
		e.transient(ctx, u, msgCheckout)
		return idle(), nil
	case "chatid":
		return e.admin(ctx, u, e.chatID)
	case "requestlist":
		return e.admin(ctx, u, e.requestList)
	}
	return e.text(ctx, u, cur, Text{Text: strings.TrimSpace("/" + cmd.Name + " " + cmd.Args)})
}

func (e *Engine) choice(ctx context.Context, u Update, cur State, ch Choice) (State, error) {
	switch ch.Key {
	case KeySource:
		if cur.Kind != AwaitingCatalogSource {
			return cur, &domain.InputError{Prompt: msgStaleButton}
		}
		return e.chooseSource(ctx, u, ch.Payload)
	case KeyMediaType:
		if cur.Kind != AwaitingMediaType {
			return cur, &domain.InputError{Prompt: msgStaleButton}
		}
		return e.chooseMediaType(ctx, u, cur, ch.Payload)
	case KeyConfirm:
		if cur.Kind != Start && cur.Kind != AwaitingConfirmation {
			return cur, &domain.InputError{Prompt: msgStaleButton}
		}
		return e.confirmRequest(ctx, u, cur, ch.Payload)
	case KeyCancel:
		e.reply(ctx, u.ChatID, msgCancelled)
		return idle(), nil
	}
	return cur, &domain.InputError{Prompt: msgStaleButton}
}

func (e *Engine) text(ctx context.Context, u Update, cur State, in Text) (State, error) {
	switch cur.Kind {
	case AwaitingUsername:
		return e.submitUsername(ctx, u, in.Text)
	case AwaitingMediaID:
		return e.submitMediaID(ctx, u, cur, in.Text)
	case AwaitingDeleteConfirmation:
		return e.confirmDeletion(ctx, u, in.Text)
	case AwaitingCatalogSource, AwaitingMediaType, AwaitingConfirmation:
		return cur, &domain.InputError{Prompt: msgUseButtons}
	}
	if u.Private {
		e.reply(ctx, u.ChatID, msgUnknownCommand)
	}
	return idle(), nil
}

// stepError gives the resolver a flow specific headline for a failure.
type stepError struct {
	headline string
	hint     string
	err      error
}

func (e *stepError) Error() string { return e.headline + ": " + e.err.Error() }

func (e *stepError) Unwrap() error { return e.err }

func failed(headline, hint string, err error) error {
	return &stepError{headline: headline, hint: hint, err: err}
}

// resolve maps a step error to a reply and the state the chat ends up in.
func (e *Engine) resolve(ctx context.Context, u Update, cur, next State, err error) State {
	if err == nil {
		return next
	}
	headline, hint := "操作失败。", ""
	var se *stepError
	if errors.As(err, &se) {
		headline, hint = se.headline, se.hint
	}

	var (
		input    *domain.InputError
		rejected *domain.RejectedError
	)
	switch {
	case errors.As(err, &input):
		e.reply(ctx, u.ChatID, input.Prompt)
		return cur
	case errors.Is(err, domain.ErrDuplicateRequest):
		e.reply(ctx, u.ChatID, msgDuplicateRequest)
	case errors.Is(err, domain.ErrAlreadyRegistered):
		e.reply(ctx, u.ChatID, msgAlreadyRegistered)
	case errors.Is(err, domain.ErrNotFound):
		e.reply(ctx, u.ChatID, msgNotRegistered)
	case errors.As(err, &rejected):
		e.reply(ctx, u.ChatID, joinLines(headline, rejected.Reason, hint))
	default:
		tag := errorTag(err)
		ref := e.newRef()
		logger.Error(ctx, "dialogue", "step.fail",
			slog.String("state", cur.Kind.String()),
			slog.String("intent", intentName(u.Intent)),
			logger.Err(err),
			slog.String("err_tag", tag),
			slog.String("ref", ref),
		)
		e.reply(ctx, u.ChatID, joinLines(headline, fmt.Sprintf("%s[%s#%s]", msgContactAdmin, tag, ref), hint))
	}
	return idle()
}

func errorTag(err error) string {
	var tagged interface{ Tag() string }
	if errors.As(err, &tagged) && tagged.Tag() != "" {
		return tagged.Tag()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "TIMEOUT"
	}
	return "INTERNAL"
}

func joinLines(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}

func intentName(in Intent) string {
	switch v := in.(type) {
	case Command:
		return "command." + strings.ToLower(v.Name)
	case Choice:
		return "choice." + v.Key
	case Text:
		return "text"
	}
	return "unknown"
}

// call bounds one external call.
func (e *Engine) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.callTimeout)
}

func (e *Engine) reply(ctx context.Context, chatID int64, text string) {
	e.send(ctx, chatID, Message{Text: text})
}

func (e *Engine) send(ctx context.Context, chatID int64, m Message) int {
	cctx, cancel := e.call(ctx)
	defer cancel()
	id, err := e.msg.Send(cctx, chatID, m)
	if err != nil {
		logger.Warn(ctx, "dialogue", "reply", slog.String("status", "fail"), logger.Err(err))
	}
	return id
}

// transient replies and later deletes both the reply and the message that
// triggered it. The deletion runs off the chat's queue.
func (e *Engine) transient(ctx context.Context, u Update, text string) {
	noticeID := e.send(ctx, u.ChatID, Message{Text: text})
	e.cleanup(ctx, u.ChatID, u.MessageID, noticeID)
}

func (e *Engine) cleanup(ctx context.Context, chatID int64, messageIDs ...int) {
	ctx = context.WithoutCancel(ctx)
	e.afterFunc(e.cleanupDelay, func() {
		for _, id := range messageIDs {
			if id == 0 {
				continue
			}
			cctx, cancel := e.call(ctx)
			if err := e.msg.Delete(cctx, chatID, id); err != nil {
				logger.Debug(ctx, "dialogue", "cleanup", slog.String("status", "fail"), logger.Err(err))
			}
			cancel()
		}
	})
}

func (e *Engine) private(ctx context.Context, u Update, fn func(context.Context, Update) (State, error)) (State, error) {
	if !u.Private {
		e.transient(ctx, u, msgPrivateOnly)
		return idle(), nil
	}
	return fn(ctx, u)
}

func (e *Engine) admin(ctx context.Context, u Update, fn func(context.Context, Update) (State, error)) (State, error) {
	ok, err := e.isAdmin(ctx, u)
	if err != nil {
		return idle(), err
	}
	if !ok {
		e.transient(ctx, u, msgNoPermission)
		return idle(), nil
	}
	return fn(ctx, u)
}

func (e *Engine) isAdmin(ctx context.Context, u Update) (bool, error) {
	if slices.Contains(e.admins, u.UserID) || slices.Contains(e.admins, u.ChatID) {
		return true, nil
	}
	cctx, cancel := e.call(ctx)
	defer cancel()
	reg, err := e.dir.Get(cctx, u.UserID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return reg.Admin, nil
}

func (e *Engine) isDisabled(u Update) bool {
	return slices.Contains(e.disabled, u.UserID)
}

// registration loads the caller's registration within the call timeout.
func (e *Engine) registration(ctx context.Context, chatID int64) (domain.Registration, error) {
	cctx, cancel := e.call(ctx)
	defer cancel()
	return e.dir.Get(cctx, chatID)
}
