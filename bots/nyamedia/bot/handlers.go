package bot

import (
	"context"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/nyamedia/nyabot/bots/nyamedia/dialogue"
	tg "github.com/nyamedia/nyabot/core/telegram"
	"github.com/nyamedia/nyabot/core/telegram/callbacks"
	tghelpers "github.com/nyamedia/nyabot/core/telegram/helpers"
)

// Engine accepts updates for asynchronous, per-chat ordered handling.
type Engine interface {
	Submit(ctx context.Context, u dialogue.Update)
}

type commandDef struct {
	name        string
	description string
	adminOnly   bool
	hidden      bool
	aliases     []string
}

var commandDefs = []commandDef{
	{name: "help", description: "显示帮助", aliases: []string{"start"}},
	{name: "register", description: "注册新用户"},
	{name: "request", description: "请求新媒体"},
	{name: "resetpassword", description: "重置密码"},
	{name: "deleteuser", description: "删除账号"},
	{name: "cancel", description: "取消当前操作"},
	{name: "checkin", description: "签到", hidden: true},
	{name: "checkout", description: "签退", hidden: true},
	{name: "chatid", description: "查看 Chat ID", adminOnly: true},
	{name: "requestlist", description: "导出媒体请求列表", adminOnly: true},
}

var callbackKeys = []string{dialogue.KeySource, dialogue.KeyMediaType, dialogue.KeyConfirm, dialogue.KeyCancel}

// Register binds the bot's commands, buttons and free text to engine.
// Handlers only translate the update and enqueue it, so they return at once.
func Register(reg *tg.Registry, engine Engine) error {
	for _, def := range commandDefs {
		name := def.name
		err := reg.RegisterCommand("/"+name, tg.Command{
			Description: def.description,
			AdminOnly:   def.adminOnly,
			Hidden:      def.hidden,
			Aliases:     def.aliases,
			Handler: func(c tele.Context) error {
				cmd := dialogue.Command{Name: commandName(c.Text(), name), Args: payloadOf(c)}
				engine.Submit(tghelpers.BuildContext(c), updateFrom(c, cmd))
				return nil
			},
		})
		if err != nil {
			return err
		}
	}
	for _, key := range callbackKeys {
		if err := reg.RegisterCallback(key, func(c tele.Context) error {
			key, payload := callbacks.Parse(c.Callback())
			engine.Submit(tghelpers.BuildContext(c), updateFrom(c, dialogue.Choice{Key: key, Payload: payload}))
			return nil
		}); err != nil {
			return err
		}
	}
	reg.SetTextFallback(func(c tele.Context) error {
		engine.Submit(tghelpers.BuildContext(c), updateFrom(c, dialogue.Text{Text: c.Text()}))
		return nil
	})
	return nil
}

// commandName resolves aliases such as /start to the text the user typed,
// so the engine sees what was actually invoked.
func commandName(text, fallback string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return fallback
	}
	name, _, _ := strings.Cut(strings.TrimPrefix(fields[0], "/"), "@")
	if name == "" {
		return fallback
	}
	return strings.ToLower(name)
}

func payloadOf(c tele.Context) string {
	if m := c.Message(); m != nil {
		return strings.TrimSpace(m.Payload)
	}
	return ""
}

func updateFrom(c tele.Context, in dialogue.Intent) dialogue.Update {
	u := dialogue.Update{Intent: in}
	if chat := c.Chat(); chat != nil {
		u.ChatID = chat.ID
		u.Private = chat.Type == tele.ChatPrivate
	}
	if s := c.Sender(); s != nil {
		u.UserID = s.ID
	}
	if c.Callback() == nil {
		if m := c.Message(); m != nil {
			u.MessageID = m.ID
		}
	}
	return u
}
