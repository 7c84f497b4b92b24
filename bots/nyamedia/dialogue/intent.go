// Package dialogue drives the per-chat conversations of the media bot:
// registration, account deletion, password reset and media requests.
//
// Each chat owns one State. An Update carries exactly one Intent, and the
// engine switches on (intent, state) to run a step. Steps return the next
// state and an error; one resolver turns errors into replies. Updates of the
// same chat are applied in arrival order, different chats run concurrently.
// States live in process memory and are lost on restart.
package dialogue

// Intent is what the user did: a command, a button press or free text.
type Intent interface {
	intent()
}

// Command is a slash command such as /register. Name has no slash.
type Command struct {
	Name string
	Args string
}

// Choice is an inline button press.
type Choice struct {
	Key     string
	Payload string
}

// Text is any other message.
type Text struct {
	Text string
}

func (Command) intent() {}
func (Choice) intent()  {}
func (Text) intent()    {}

// Update is one inbound event for the engine.
type Update struct {
	ChatID    int64
	UserID    int64
	MessageID int
	Private   bool
	Intent    Intent
}
