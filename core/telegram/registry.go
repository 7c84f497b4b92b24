package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/nyamedia/nyabot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// Command is a slash command as shown in the menu and routed by the routers.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands are listed only in admin chats; the handler still
	// checks access itself.
	AdminOnly bool
	// Hidden commands are routed but never listed.
	Hidden  bool
	Aliases []string
}

// Registry holds the commands, inline button callbacks and the text fallback
// of one bot. It is filled during wiring and read concurrently afterwards.
type Registry struct {
	mu               sync.RWMutex
	commands         map[string]Command
	callbacks        map[string]tele.HandlerFunc
	callbackNotFound tele.HandlerFunc
	textFallback     tele.HandlerFunc
}

// NewRegistry returns an empty registry whose unknown-button handler tells
// the user the button has expired.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]Command),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			return c.Respond(&tele.CallbackResponse{Text: "该按钮已失效"})
		},
	}
}

// RegisterCommand adds cmd under name, which must start with a slash.
func (r *Registry) RegisterCommand(name string, cmd Command) error {
	name = strings.ToLower(strings.TrimSpace(name))
	switch {
	case !strings.HasPrefix(name, "/") || len(name) < 2:
		return r.reject("command", name, "no_slash_prefix")
	case cmd.Handler == nil || cmd.Description == "":
		return r.reject("command", name, "invalid")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.commands[name]; ok {
		return r.reject("command", name, "duplicate")
	}
	for _, alias := range cmd.Aliases {
		if _, ok := r.commands["/"+alias]; ok {
			return r.reject("command", name, "alias_collision")
		}
	}
	r.commands[name] = cmd
	return nil
}

// RegisterCallback binds handler to the unique key of inline buttons.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if key == "" || handler == nil {
		return r.reject("callback", key, "invalid")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.callbacks[key]; ok {
		return r.reject("callback", key, "duplicate")
	}
	r.callbacks[key] = handler
	return nil
}

func (r *Registry) reject(kind, name, reason string) error {
	logger.Warn(context.Background(), "tg.wire", "register."+kind+".skip",
		slog.String("handler", name),
		slog.String("reason", reason),
	)
	return fmt.Errorf("telegram: %s %q: %s", kind, name, strings.ReplaceAll(reason, "_", " "))
}

// Commands returns a copy of the registered commands keyed by "/name".
func (r *Registry) Commands() map[string]Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Command, len(r.commands))
	for k, v := range r.commands {
		out[k] = v
	}
	return out
}

// LookupCommand resolves text such as "/Start@mybot" to the canonical
// command key, following aliases.
func (r *Registry) LookupCommand(name string) (string, Command, bool) {
	name, _, _ = strings.Cut(strings.ToLower(strings.TrimSpace(name)), "@")
	name = "/" + strings.TrimPrefix(name, "/")
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cmd, ok := r.commands[name]; ok {
		return name, cmd, true
	}
	for key, cmd := range r.commands {
		for _, alias := range cmd.Aliases {
			if "/"+alias == name {
				return key, cmd, true
			}
		}
	}
	return "", Command{}, false
}

// MenuCommands lists the commands for the menu, sorted by name. Admin-only
// commands are included only when admin is set; hidden ones never are.
func (r *Registry) MenuCommands(admin bool) []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []tele.Command
	for name, cmd := range r.commands {
		if cmd.Hidden || (cmd.AdminOnly && !admin) {
			continue
		}
		list = append(list, tele.Command{Text: strings.TrimPrefix(name, "/"), Description: cmd.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// Callback returns the handler for key.
func (r *Registry) Callback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// CallbackKeys returns the registered keys, sorted.
func (r *Registry) CallbackKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CallbackNotFound returns the handler for presses on unknown buttons.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}

// SetTextFallback sets the handler for text that is not a known command.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.textFallback = h
}

// TextFallback returns the text fallback handler, nil when unset.
func (r *Registry) TextFallback() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.textFallback
}

// MenuSetter is the part of *tele.Bot used to publish the command menu.
type MenuSetter interface {
	SetCommands(opts ...interface{}) error
}

// PublishMenu sets the default command menu and, for each admin chat, a
// menu that also lists the admin-only commands.
func PublishMenu(ctx context.Context, bot MenuSetter, reg *Registry, adminChats []int64) error {
	var errs []error
	if err := bot.SetCommands(reg.MenuCommands(false)); err != nil {
		errs = append(errs, fmt.Errorf("default menu: %w", err))
	}
	admin := reg.MenuCommands(true)
	for _, chatID := range adminChats {
		scope := tele.CommandScope{Type: tele.CommandScopeChat, ChatID: chatID}
		if err := bot.SetCommands(admin, scope); err != nil {
			errs = append(errs, fmt.Errorf("admin menu for %d: %w", chatID, err))
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		logger.Error(ctx, "tg.wire", "menu.publish", slog.String("status", "fail"), logger.Err(err))
	} else {
		logger.Info(ctx, "tg.wire", "menu.publish", slog.String("status", "ok"), slog.Int("admin_chats", len(adminChats)))
	}
	return err
}
