package dialogue

import (
	"context"

	"github.com/nyamedia/nyabot/bots/nyamedia/domain"
)

// Button is an inline button. Key routes the press back as a Choice.
type Button struct {
	Text    string
	Key     string
	Payload string
}

// Message is an outbound message. When Photo is set the text becomes its caption.
type Message struct {
	Text    string
	Photo   string
	Buttons [][]Button
}

// Document is an outbound file.
type Document struct {
	Name    string
	Caption string
	Data    []byte
}

// Messenger is the chat transport.
type Messenger interface {
	Send(ctx context.Context, chatID int64, msg Message) (int, error)
	Delete(ctx context.Context, chatID int64, messageID int) error
	SendDocument(ctx context.Context, chatID int64, doc Document) error
}

// Accounts provisions media-server accounts.
type Accounts interface {
	CreateUser(ctx context.Context, name string) (string, error)
	ResetPassword(ctx context.Context, accountID string) error
	DeleteUser(ctx context.Context, accountID string) error
}

// Directory stores registrations.
type Directory interface {
	Get(ctx context.Context, chatID int64) (domain.Registration, error)
	Create(ctx context.Context, reg domain.Registration) error
	Delete(ctx context.Context, chatID int64) error
}

// Catalog fetches item metadata.
type Catalog interface {
	Fetch(ctx context.Context, provider domain.Provider, kind domain.Kind, id string) (domain.Metadata, error)
}

// Ledger records media requests.
type Ledger interface {
	Submit(ctx context.Context, n domain.NewRequest) (domain.MediaRequest, error)
	ListAll(ctx context.Context) ([]domain.RequestView, error)
}
